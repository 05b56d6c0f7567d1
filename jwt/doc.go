// Package jwt encodes and verifies the two signed bearer-token classes used by
// goToken: short-lived access tokens carrying principal claims, and long-lived
// refresh tokens carrying only the principal id, token id and family id.
//
// # Key separation
//
// Each token class has its own [KeyConfig]. A refresh token can never verify
// as an access token (and vice versa) because the keys differ and the "tu"
// claim is checked on parse.
//
// # What this package must NOT do
//
//   - Access Redis or any I/O.
//   - Decide whether a structurally valid token is revoked or reused.
package jwt
