// ABOUTME: Tests for the credential store
// ABOUTME: Covers single-flight refresh, persistence, invalidation, and failure propagation

package auth

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// countingAuthenticator counts presentations and can block until released.
type countingAuthenticator struct {
	presentations atomic.Int32
	result        *Credential
	err           error
	block         chan struct{} // closed to release PresentLogin
}

func (a *countingAuthenticator) PresentLogin(ctx context.Context) (*Credential, error) {
	a.presentations.Add(1)
	if a.block != nil {
		select {
		case <-a.block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return a.result, a.err
}

func validCredential() *Credential {
	return &Credential{
		Token:     "session-token",
		IssuedAt:  time.Now(),
		ExpiresAt: time.Now().Add(time.Hour),
	}
}

func TestGet_RefreshesWhenEmpty(t *testing.T) {
	authn := &countingAuthenticator{result: validCredential()}
	s := NewStore(authn, "")

	cred, err := s.Get(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "session-token", cred.Token)
	assert.Equal(t, int32(1), authn.presentations.Load())

	// Second call hits the cache
	_, err = s.Get(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int32(1), authn.presentations.Load())
}

func TestGet_SingleFlight(t *testing.T) {
	authn := &countingAuthenticator{
		result: validCredential(),
		block:  make(chan struct{}),
	}
	s := NewStore(authn, "")

	const callers = 8
	var wg sync.WaitGroup
	creds := make([]*Credential, callers)
	errs := make([]error, callers)

	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			creds[i], errs[i] = s.Get(context.Background())
		}(i)
	}

	// Give every caller time to queue behind the in-flight login
	time.Sleep(50 * time.Millisecond)
	close(authn.block)
	wg.Wait()

	assert.Equal(t, int32(1), authn.presentations.Load(), "exactly one login presentation")
	for i := 0; i < callers; i++ {
		require.NoError(t, errs[i])
		assert.Equal(t, "session-token", creds[i].Token)
	}
}

func TestGet_CancelledLoginFailsAllWaiters(t *testing.T) {
	authn := &countingAuthenticator{
		err:   ErrLoginCancelled,
		block: make(chan struct{}),
	}
	s := NewStore(authn, "")

	const callers = 4
	var wg sync.WaitGroup
	errs := make([]error, callers)

	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = s.Get(context.Background())
		}(i)
	}

	time.Sleep(50 * time.Millisecond)
	close(authn.block)
	wg.Wait()

	assert.Equal(t, int32(1), authn.presentations.Load())
	for i := 0; i < callers; i++ {
		assert.ErrorIs(t, errs[i], ErrAuthenticationFailed)
		assert.ErrorIs(t, errs[i], ErrLoginCancelled)
	}
}

func TestGet_LoginTimeout(t *testing.T) {
	authn := &countingAuthenticator{
		result: validCredential(),
		block:  make(chan struct{}), // never released
	}
	s := NewStore(authn, "", WithLoginTimeout(50*time.Millisecond))

	_, err := s.Get(context.Background())
	assert.ErrorIs(t, err, ErrAuthenticationFailed)
}

func TestGet_ExpiredCredentialTriggersRefresh(t *testing.T) {
	authn := &countingAuthenticator{result: validCredential()}
	s := NewStore(authn, "")

	s.Set(&Credential{
		Token:     "stale",
		ExpiresAt: time.Now().Add(-time.Minute),
	})

	cred, err := s.Get(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "session-token", cred.Token)
	assert.Equal(t, int32(1), authn.presentations.Load())
}

func TestInvalidate_ForcesReauthentication(t *testing.T) {
	authn := &countingAuthenticator{result: validCredential()}
	s := NewStore(authn, "")

	_, err := s.Get(context.Background())
	require.NoError(t, err)

	s.Invalidate()
	assert.False(t, s.IsAuthenticated())

	_, err = s.Get(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int32(2), authn.presentations.Load())
}

func TestIsAuthenticated_NeverRefreshes(t *testing.T) {
	authn := &countingAuthenticator{result: validCredential()}
	s := NewStore(authn, "")

	assert.False(t, s.IsAuthenticated())
	assert.Equal(t, int32(0), authn.presentations.Load(), "IsAuthenticated must not trigger login")
}

func TestPersistence_SurvivesRestart(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cred", "session.json")
	authn := &countingAuthenticator{result: validCredential()}

	s1 := NewStore(authn, path)
	_, err := s1.Get(context.Background())
	require.NoError(t, err)

	// New store on the same path: no login needed
	s2 := NewStore(&countingAuthenticator{err: errors.New("must not be called")}, path)
	cred, err := s2.Get(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "session-token", cred.Token)
	assert.True(t, s2.IsAuthenticated())
}

func TestInvalidate_RemovesPersistedCredential(t *testing.T) {
	path := filepath.Join(t.TempDir(), "session.json")
	authn := &countingAuthenticator{result: validCredential()}

	s1 := NewStore(authn, path)
	_, err := s1.Get(context.Background())
	require.NoError(t, err)
	s1.Invalidate()

	s2 := NewStore(&countingAuthenticator{result: validCredential()}, path)
	assert.False(t, s2.IsAuthenticated())
}

func TestGet_EmptyCredentialFromAuthenticator(t *testing.T) {
	authn := &countingAuthenticator{result: &Credential{}}
	s := NewStore(authn, "")

	_, err := s.Get(context.Background())
	assert.ErrorIs(t, err, ErrAuthenticationFailed)
}
