package driversync

import (
	"sync"

	"github.com/Overland-East-Bay/load-dispatch-client/internal/domain"
)

// Issuer names the identity generation a request was started for.
//
// Epoch increases on every identity change, so logging out and back in as the same
// driver still yields a distinct issuer.
type Issuer struct {
	Identity domain.DriverIdentity
	Epoch    uint64
}

// Session holds the current identity, if any.
type Session struct {
	mu       sync.RWMutex
	identity *domain.DriverIdentity
	epoch    uint64
}

func NewSession() *Session { return &Session{} }

// Set replaces the identity; nil logs out. Every call starts a new epoch.
func (s *Session) Set(id *domain.DriverIdentity) Issuer {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.epoch++
	if id == nil || id.IsZero() {
		s.identity = nil
		return Issuer{Epoch: s.epoch}
	}
	cp := *id
	s.identity = &cp
	return Issuer{Identity: cp, Epoch: s.epoch}
}

func (s *Session) Current() (domain.DriverIdentity, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.identity == nil {
		return domain.DriverIdentity{}, false
	}
	return *s.identity, true
}

// Issuer returns the issuer for the current identity.
func (s *Session) Issuer() (Issuer, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.identity == nil {
		return Issuer{}, false
	}
	return Issuer{Identity: *s.identity, Epoch: s.epoch}, true
}

// IsCurrent reports whether iss still names the live identity generation.
func (s *Session) IsCurrent(iss Issuer) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.identity != nil && s.epoch == iss.Epoch && s.identity.ID == iss.Identity.ID
}

// Epoch returns the current identity generation, logged in or not.
func (s *Session) Epoch() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.epoch
}
