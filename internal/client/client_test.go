// ABOUTME: Shared test fixtures for the conversation client
// ABOUTME: Builds clients against httptest backends with a counting authenticator

package client

import (
	"context"
	"fmt"
	"net/http"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/loomchat/loom/internal/auth"
	"github.com/loomchat/loom/internal/store"
)

// newTestClient builds a client whose authenticator issues a fresh token on
// every presentation and counts how many times it was invoked.
func newTestClient(t *testing.T, baseURL string, opts ...Option) (*Client, *atomic.Int32) {
	t.Helper()

	var logins atomic.Int32
	authenticator := auth.AuthenticatorFunc(func(ctx context.Context) (*auth.Credential, error) {
		n := logins.Add(1)
		return &auth.Credential{Token: fmt.Sprintf("session-%d", n)}, nil
	})
	creds := auth.NewStore(authenticator, filepath.Join(t.TempDir(), "credential.json"))

	return New(baseURL, creds, opts...), &logins
}

// newTestRepo opens a throwaway sqlite repository.
func newTestRepo(t *testing.T) *store.SQLiteRepository {
	t.Helper()

	repo, err := store.NewSQLiteRepository(filepath.Join(t.TempDir(), "cache.db"))
	require.NoError(t, err)
	t.Cleanup(func() { repo.Close() })
	return repo
}

// writeSSE emits one SSE data frame and flushes it to the client.
func writeSSE(w http.ResponseWriter, data string) {
	fmt.Fprintf(w, "data: %s\n\n", data)
	if f, ok := w.(http.Flusher); ok {
		f.Flush()
	}
}

// waitFor receives from ch or fails the test after two seconds.
func waitFor[T any](t *testing.T, ch <-chan T, what string) T {
	t.Helper()

	select {
	case v := <-ch:
		return v
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for %s", what)
		panic("unreachable")
	}
}
