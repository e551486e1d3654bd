// Package auth decides whether a signer may act on a run. A signer is either
// the run's owner or an ephemeral key the owner delegated through a session
// token with an expiry.
package auth

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/OCAP2/extracto/pkg/core"
)

// ErrUnauthorized is returned when a signer is neither the owner nor holds a
// live session for the owner.
var ErrUnauthorized = errors.New("unauthorized")

// Authorizer checks whether signer may act on authority's run.
type Authorizer interface {
	Authorize(authority, signer core.Owner) error
}

// OwnerOnly admits nothing but the owner itself.
type OwnerOnly struct{}

func (OwnerOnly) Authorize(authority, signer core.Owner) error {
	if authority != signer {
		return fmt.Errorf("%w: signer %s is not %s", ErrUnauthorized, signer.Short(), authority.Short())
	}
	return nil
}

// Session is a delegation from an authority to an ephemeral signer.
type Session struct {
	Authority core.Owner
	Signer    core.Owner
	ExpiresAt time.Time
}

// Sessions authorizes the owner plus any signer holding a valid session.
type Sessions struct {
	mu       sync.RWMutex
	sessions map[core.Owner]Session // keyed by signer
	now      func() time.Time
}

// NewSessions returns an empty session registry.
func NewSessions() *Sessions {
	return &Sessions{
		sessions: make(map[core.Owner]Session),
		now:      time.Now,
	}
}

// Grant lets signer act for authority for ttl. A new grant replaces any
// earlier session of the same signer.
func (s *Sessions) Grant(authority, signer core.Owner, ttl time.Duration) (Session, error) {
	if ttl <= 0 {
		return Session{}, fmt.Errorf("session ttl must be positive, got %s", ttl)
	}
	if authority == signer {
		return Session{}, fmt.Errorf("owner %s cannot delegate to itself", authority.Short())
	}
	sess := Session{Authority: authority, Signer: signer, ExpiresAt: s.now().Add(ttl)}

	s.mu.Lock()
	s.sessions[signer] = sess
	s.mu.Unlock()
	return sess, nil
}

// Revoke drops the session of signer, if any.
func (s *Sessions) Revoke(signer core.Owner) {
	s.mu.Lock()
	delete(s.sessions, signer)
	s.mu.Unlock()
}

func (s *Sessions) Authorize(authority, signer core.Owner) error {
	if authority == signer {
		return nil
	}

	s.mu.RLock()
	sess, ok := s.sessions[signer]
	s.mu.RUnlock()

	switch {
	case !ok:
		return fmt.Errorf("%w: no session for %s", ErrUnauthorized, signer.Short())
	case sess.Authority != authority:
		return fmt.Errorf("%w: session of %s belongs to %s", ErrUnauthorized, signer.Short(), sess.Authority.Short())
	case !s.now().Before(sess.ExpiresAt):
		s.dropExpired(signer, sess)
		return fmt.Errorf("%w: session of %s expired", ErrUnauthorized, signer.Short())
	}
	return nil
}

// dropExpired removes the session of signer only if it is still the expired
// one; a Grant made in the meantime is kept.
func (s *Sessions) dropExpired(signer core.Owner, expired Session) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if cur, ok := s.sessions[signer]; ok && cur.Authority == expired.Authority && cur.ExpiresAt.Equal(expired.ExpiresAt) {
		delete(s.sessions, signer)
	}
}

// Len returns the number of stored sessions, expired ones included.
func (s *Sessions) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}
