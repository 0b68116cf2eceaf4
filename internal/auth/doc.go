// Package auth manages the session credential used to talk to the backend.
//
// # Overview
//
// The Store owns the credential exclusively. Callers ask it for a valid
// credential; when the cached one is missing or expired, the Store drives
// the interactive Authenticator, a capability interface that may be backed
// by an embedded browser surface, the system browser, or a terminal prompt.
//
// # Single-flight refresh
//
// The interactive path is mutually exclusive across concurrent callers: if
// two operations discover an expired credential simultaneously, only one
// login surface is presented and every waiter shares its outcome. A
// cancelled or timed-out flow surfaces ErrAuthenticationFailed to all of
// them.
//
// # Persistence
//
// Credentials persist to a JSON file with owner-only permissions so a
// session survives process restarts. Invalidate removes both the cached and
// the persisted credential.
//
// # Expiry
//
// Session tokens captured from the login surface are JWTs; the store reads
// their iat/exp claims (without verifying the signature; the backend does
// that) to decide when re-login is needed.
package auth
