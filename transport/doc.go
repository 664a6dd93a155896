// Package transport defines the wire contract between the sign-in
// engine and the remote identity provider, and ships an HTTP JSON
// implementation of it.
//
// The engine consumes only the [IdentityProvider] interface; every
// remote failure surfaces as a [*ServiceError] carrying the provider's
// error code name, which is the engine's sole classification input.
package transport
