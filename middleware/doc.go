// Package middleware exposes HTTP adapters over authcore.Engine token
// verification.
//
// # Guards
//
//   - [Guard] — stateless bearer-token verification.
//   - [RequireRole] — Guard plus a role check on the verified identity.
//
// Each guard reads the Authorization header, calls Engine.VerifyToken,
// and injects the verified identity into the request context.
//
// # What this package must NOT do
//
//   - Parse or create tokens directly (delegates to Engine).
//   - Make authorization decisions beyond pass/reject.
package middleware
