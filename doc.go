// Package authcore is an identity and session-issuance core for web
// applications: it authenticates principals (local password accounts and
// third-party identity-provider accounts), mints signed time-bounded
// bearer tokens, and drives the one-time-code lifecycle used for email
// confirmation and password recovery.
//
// The package is designed for concurrent server workloads: Engine methods
// are safe to call from multiple goroutines after initialization through
// [Builder.Build].
//
// # Architecture boundaries
//
// authcore is the public surface. It exposes [Engine], [Builder],
// [Config], the collaborator contracts ([CredentialStore], [Notifier]),
// and value types ([Principal], [LinkedIdentity], [Session]). Token
// signing lives in the token subpackage, password hashing in the password
// subpackage; code generation and rate counters live under internal/ and
// are never exported.
//
// # What this package must NOT do
//
//   - Own HTTP routing or serialization. The middleware subpackage is the
//     only HTTP-facing surface, and it only verifies bearer tokens.
//   - Deliver email. Outbound messages go through the caller's [Notifier];
//     a delivery failure is reported but never corrupts store state.
//   - Query a database directly. All persistence goes through the
//     caller's [CredentialStore]; gormstore is a reference implementation,
//     not a requirement.
//
// # Concurrency contract
//
// Token verification is lock-free and stateless and may run with
// unbounded parallelism. Code redemptions run inside
// [CredentialStore.WithinTx] so that two concurrent redemption attempts
// for the same one-time code race safely: at most one succeeds.
package authcore
