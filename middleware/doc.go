// Package middleware adapts a goToken Manager to net/http.
//
//   - [Guard] verifies the bearer access token and stores the claims in the
//     request context.
//   - [RefreshHandler] serves the dedicated refresh endpoint.
//   - [RequireRole] restricts a handler to some roles.
//
// Denials map to 401 and store failures to 503. The package never parses
// tokens or touches Redis itself; every decision is made by the Manager.
package middleware
