// Package tokenstore persists issued token bundles and remembered
// device credentials for the sign-in engine.
//
// Two implementations ship: a Redis-backed [RedisStore] for processes
// that share a cache, and an in-memory [MemoryStore] for embedded use.
// Both expire cached sessions at the access token's expiry.
package tokenstore
