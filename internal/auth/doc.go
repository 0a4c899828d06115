// Package auth provides token authentication and authorisation for the
// bridge's local HTTP API.
//
// Access tokens are HS256 JWTs signed with the configured secret and carry
// a role. Each role maps to a static set of permissions:
//
//	viewer   → device:read
//	operator → device:read, device:send, learning:run
//	admin    → everything, including system:admin
//
// Tokens are minted by Gray Logic Core (or the graylogic-token tool) and
// validated by signature only.
package auth
