// Package flows contains pure-function orchestrators for every Manager operation.
//
// Each flow function (RunIssue, RunRotate, RunVerify, RunRevokeFamily, etc.)
// accepts a typed dependency struct and returns results without side effects
// beyond those dependencies. The Manager maps results to public errors,
// metrics and audit events.
//
// # What this package must NOT do
//
//   - Hold mutable state between calls.
//   - Import goToken (to avoid import cycles).
//   - Perform I/O directly; all I/O goes through dependency interfaces.
package flows
