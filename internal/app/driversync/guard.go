package driversync

import (
	"context"
	"sync"
	"sync/atomic"
)

// Guard tracks outstanding requests so results can be dropped once they no longer
// belong to the live identity, and so every outstanding call can be cancelled at once.
type Guard struct {
	session *Session

	mu      sync.Mutex
	nextID  uint64
	pending map[uint64]*PendingRequest
}

// PendingRequest is the token for one outstanding call.
type PendingRequest struct {
	Issuer Issuer

	id        uint64
	g         *Guard
	ctx       context.Context
	cancel    context.CancelFunc
	cancelled atomic.Bool
}

func NewGuard(s *Session) *Guard {
	return &Guard{session: s, pending: make(map[uint64]*PendingRequest)}
}

// Issue registers a request started on behalf of iss. The returned token's context
// is cancelled by CancelAll or when the parent is done. Callers must call Done.
func (g *Guard) Issue(parent context.Context, iss Issuer) *PendingRequest {
	ctx, cancel := context.WithCancel(parent)

	g.mu.Lock()
	defer g.mu.Unlock()
	g.nextID++
	p := &PendingRequest{Issuer: iss, id: g.nextID, g: g, ctx: ctx, cancel: cancel}
	g.pending[p.id] = p
	return p
}

// IsCurrent reports whether a result produced for iss may still be applied.
func (g *Guard) IsCurrent(iss Issuer) bool {
	return g.session.IsCurrent(iss)
}

// CancelAll cancels every outstanding request and returns how many there were.
// Results of cancelled requests are discarded even if they still arrive.
func (g *Guard) CancelAll() int {
	g.mu.Lock()
	reqs := make([]*PendingRequest, 0, len(g.pending))
	for id, p := range g.pending {
		reqs = append(reqs, p)
		delete(g.pending, id)
	}
	g.mu.Unlock()

	for _, p := range reqs {
		p.cancelled.Store(true)
		p.cancel()
	}
	return len(reqs)
}

// Outstanding returns the number of requests issued and not yet done.
func (g *Guard) Outstanding() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.pending)
}

// Context is the context the network call must run under.
func (p *PendingRequest) Context() context.Context { return p.ctx }

// Relevant reports whether the result may be applied. Callers check it under the
// same lock that guards the mutation it protects.
func (p *PendingRequest) Relevant() bool {
	return !p.cancelled.Load() && p.g.IsCurrent(p.Issuer)
}

// Done releases the request. It is safe to call more than once.
func (p *PendingRequest) Done() {
	p.g.mu.Lock()
	delete(p.g.pending, p.id)
	p.g.mu.Unlock()
	p.cancel()
}
