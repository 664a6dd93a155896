// Package userpool is a client-side authentication orchestrator for
// user-pool style identity providers. It drives the provider's multi-step
// challenge/response sign-in protocol (the secure remote password proof
// exchange, MFA rounds, new-password requirements, and device
// verification) to a terminal result, and hands issued token bundles to
// a pluggable token store.
//
// The package is designed for embedding: Engine methods are safe to call
// from multiple goroutines after initialization through [Builder.Build],
// but the provider permits only one sign-in attempt in flight per process
// and the engine enforces that invariant.
//
// # Architecture boundaries
//
// userpool is the public surface. It exposes [Engine], [Builder],
// [Config], and value types (SignInResult, CachedSession, DeviceMetadata).
// The SRP arithmetic lives in srp/, token and device persistence in
// tokenstore/, and the wire client in transport/. None of those
// subpackages import userpool.
//
// # What this package must NOT do
//
//   - Transmit a plaintext password on the SRP flow, ever.
//   - Retain challenge parameters beyond the round that consumed them.
//   - Leave active sign-in state populated on any failure path.
//   - Interpret service errors beyond the documented benign set.
package userpool
