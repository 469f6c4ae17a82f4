// Package rate provides Redis-backed fixed-window counters for the
// throttles around login and one-time-code issuance.
//
// # Window semantics
//
// Fixed-window counters: INCR + conditional EXPIRE on first hit. Key
// prefixes:
//   - lg:  — login per-username
//   - lgi: — login per-IP
//   - vc:  — code requests per-email
//
// # What this package must NOT do
//
//   - Decide policy; callers choose when a counter applies.
//   - Be imported outside this module.
package rate
