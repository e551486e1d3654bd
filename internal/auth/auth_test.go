package auth

import (
	"testing"
	"time"

	"github.com/OCAP2/extracto/pkg/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	alice   = core.OwnerFromName("alice")
	bob     = core.OwnerFromName("bob")
	burner  = core.OwnerFromName("alice-burner")
	intrude = core.OwnerFromName("mallory")
)

func TestOwnerOnly(t *testing.T) {
	var a OwnerOnly
	assert.NoError(t, a.Authorize(alice, alice))
	assert.ErrorIs(t, a.Authorize(alice, bob), ErrUnauthorized)
}

func TestSessions_OwnerAlwaysAllowed(t *testing.T) {
	s := NewSessions()
	assert.NoError(t, s.Authorize(alice, alice))
}

func TestSessions_GrantAndExpire(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	s := NewSessions()
	s.now = func() time.Time { return now }

	_, err := s.Grant(alice, burner, time.Minute)
	require.NoError(t, err)

	assert.NoError(t, s.Authorize(alice, burner))
	assert.ErrorIs(t, s.Authorize(bob, burner), ErrUnauthorized)
	assert.ErrorIs(t, s.Authorize(alice, intrude), ErrUnauthorized)

	now = now.Add(time.Minute)
	assert.ErrorIs(t, s.Authorize(alice, burner), ErrUnauthorized)
	assert.Zero(t, s.Len(), "expired session is dropped")
}

func TestSessions_RegrantSurvivesExpiryCleanup(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	s := NewSessions()
	s.now = func() time.Time { return now }

	old, err := s.Grant(alice, burner, time.Minute)
	require.NoError(t, err)
	now = now.Add(2 * time.Minute)

	// the grant lands between the expired lookup and its cleanup
	_, err = s.Grant(alice, burner, time.Hour)
	require.NoError(t, err)
	s.dropExpired(burner, old)

	assert.Equal(t, 1, s.Len())
	assert.NoError(t, s.Authorize(alice, burner))
}

func TestSessions_Revoke(t *testing.T) {
	s := NewSessions()
	_, err := s.Grant(alice, burner, time.Hour)
	require.NoError(t, err)

	s.Revoke(burner)
	assert.ErrorIs(t, s.Authorize(alice, burner), ErrUnauthorized)
}

func TestSessions_GrantValidation(t *testing.T) {
	s := NewSessions()
	_, err := s.Grant(alice, burner, 0)
	assert.Error(t, err)
	_, err = s.Grant(alice, alice, time.Hour)
	assert.Error(t, err)
}
