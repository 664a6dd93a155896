// Package srp implements the client side of the secure remote password
// proof exchange used by the user-pool sign-in protocol.
//
// All values are large unsigned integers in the RFC 5054 3072-bit group.
// The hashing, hex padding, and byte-order rules here must stay bit-exact
// with the provider's reference algorithm: any drift makes every
// password-verifier round fail server-side even for a correct password.
//
// The package is pure. Given a fixed ephemeral secret, password, salt,
// and server ephemeral, every derivation is deterministic, which is what
// makes golden-vector regression testing possible.
package srp
