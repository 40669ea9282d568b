// Package auth provides bearer-token authentication for the HTTP API.
//
// Tokens are HS256-signed JWTs carrying the client ID in the "sub" claim.
// The Middleware validates the Authorization header and exposes the client
// ID to handlers via ClientIDFromContext. When no JWT secret is configured
// the gateway skips the middleware entirely and the API runs open.
package auth
