// ABOUTME: Authenticator capability interface for interactive login flows
// ABOUTME: The core depends only on this capability, never on a UI toolkit

package auth

import "context"

// Authenticator obtains a fresh credential by driving an interactive login
// flow. Implementations may present an embedded browser surface, open the
// system browser, or prompt on a terminal; the core does not care.
//
// PresentLogin blocks until the flow completes, returns ErrLoginCancelled if
// the user dismisses it, and honors ctx cancellation.
type Authenticator interface {
	PresentLogin(ctx context.Context) (*Credential, error)
}

// AuthenticatorFunc adapts a function to the Authenticator interface.
type AuthenticatorFunc func(ctx context.Context) (*Credential, error)

func (f AuthenticatorFunc) PresentLogin(ctx context.Context) (*Credential, error) {
	return f(ctx)
}
