// ABOUTME: Conversation client core: construction, authenticated requests, auth retry
// ABOUTME: Obtains credentials from the auth store and retries exactly once on rejection

package client

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/loomchat/loom/internal/auth"
	"github.com/loomchat/loom/internal/store"
)

const defaultRequestTimeout = 2 * time.Minute

// Client issues authenticated requests against the conversation backend
// and keeps the local conversation repository in sync.
//
// httpClient bounds plain reads with its Timeout. streamClient shares the
// same transport but carries no Timeout: http.Client.Timeout runs until the
// body is fully read, which would cut off any turn streaming longer than it.
// Streams are bounded by ctx cancellation instead.
type Client struct {
	baseURL      string
	httpClient   *http.Client
	streamClient *http.Client
	creds        *auth.Store
	repo         store.Repository
	logger       *slog.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

// WithRepository attaches a local conversation repository. Listings are
// served from it when possible and completed turns are written back to it.
func WithRepository(repo store.Repository) Option {
	return func(c *Client) { c.repo = repo }
}

// WithLogger sets the client logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.logger = l
		}
	}
}

// New creates a conversation client for the given backend base URL.
func New(baseURL string, creds *auth.Store, opts ...Option) *Client {
	c := &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: defaultRequestTimeout,
		},
		creds:  creds,
		logger: slog.Default().With("component", "client"),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.streamClient = &http.Client{
		Transport:     c.httpClient.Transport,
		CheckRedirect: c.httpClient.CheckRedirect,
		Jar:           c.httpClient.Jar,
	}
	return c
}

// IsAuthenticated reports whether a valid credential is currently cached.
// Non-blocking: never triggers the interactive flow.
func (c *Client) IsAuthenticated() bool {
	return c.creds.IsAuthenticated()
}

// authRejected reports whether the backend refused the credential.
func authRejected(status int) bool {
	return status == http.StatusUnauthorized || status == http.StatusForbidden
}

// authorizedDo obtains a credential, issues the request built by build on
// hc, and on an authentication rejection invalidates the credential,
// re-authenticates, and retries exactly once. A second rejection is
// terminal.
//
// build is called per attempt so request bodies are fresh on retry. The
// caller owns the response body.
func (c *Client) authorizedDo(ctx context.Context, hc *http.Client, build func() (*http.Request, error)) (*http.Response, error) {
	retried := false
	for {
		cred, err := c.creds.Get(ctx)
		if err != nil {
			return nil, err
		}

		req, err := build()
		if err != nil {
			return nil, fmt.Errorf("creating request: %w", err)
		}
		req.Header.Set("Authorization", "Bearer "+cred.Token)

		resp, err := hc.Do(req)
		if err != nil {
			return nil, &TransportError{Err: err}
		}

		if !authRejected(resp.StatusCode) {
			return resp, nil
		}

		io.Copy(io.Discard, resp.Body)
		resp.Body.Close()

		if retried {
			c.logger.Warn("credential rejected after refresh", "status", resp.StatusCode)
			return nil, fmt.Errorf("%w: backend rejected refreshed credential", auth.ErrAuthenticationFailed)
		}

		c.logger.Info("credential rejected, re-authenticating once", "status", resp.StatusCode)
		c.creds.Invalidate()
		retried = true
	}
}
