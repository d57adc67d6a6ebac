package driversync

import (
	"context"
	"strconv"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/singleflight"

	"github.com/Overland-East-Bay/load-dispatch-client/internal/domain"
	"github.com/Overland-East-Bay/load-dispatch-client/internal/ports/out/dispatch"
)

// Reserver collapses concurrent assignment requests for the same identity generation
// into a single backend call. Every caller observes that call's outcome.
type Reserver struct {
	gw    dispatch.Gateway
	group singleflight.Group

	mu      sync.Mutex
	gen     uint64
	cancels map[uint64]context.CancelFunc
	nextID  uint64

	inflight atomic.Int32
	waiting  atomic.Int32
	calls    atomic.Int64
}

func NewReserver(gw dispatch.Gateway) *Reserver {
	return &Reserver{gw: gw, cancels: make(map[uint64]context.CancelFunc)}
}

// TryAcquire asks the backend for a load on behalf of iss. A nil load with a nil
// error means nothing was available.
//
// The shared call is detached from every caller's cancellation: a caller whose ctx
// ends early stops waiting, and the others keep theirs. Only CancelAll stops it.
func (r *Reserver) TryAcquire(ctx context.Context, iss Issuer) (*domain.Load, error) {
	key := string(iss.Identity.ID) + "#" + strconv.FormatUint(iss.Epoch, 10)
	r.mu.Lock()
	gen := r.gen
	r.mu.Unlock()

	ch := r.group.DoChan(key, func() (any, error) {
		callCtx, done := r.detach(ctx, gen)
		defer done()
		r.inflight.Add(1)
		defer r.inflight.Add(-1)
		r.calls.Add(1)
		return r.gw.GetAssignment(callCtx, iss.Identity.ID)
	})
	r.waiting.Add(1)
	defer r.waiting.Add(-1)

	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		load, _ := res.Val.(*domain.Load)
		return domain.CloneLoad(load), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// detach derives the shared call's context. A call started for a generation that
// CancelAll already ended is cancelled from the outset.
func (r *Reserver) detach(ctx context.Context, gen uint64) (context.Context, func()) {
	callCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	r.mu.Lock()
	defer r.mu.Unlock()
	if gen != r.gen {
		cancel()
		return callCtx, func() {}
	}
	r.nextID++
	id := r.nextID
	r.cancels[id] = cancel
	return callCtx, func() {
		r.mu.Lock()
		delete(r.cancels, id)
		r.mu.Unlock()
		cancel()
	}
}

// CancelAll cancels every shared call in flight or about to start.
func (r *Reserver) CancelAll() {
	r.mu.Lock()
	r.gen++
	cancels := r.cancels
	r.cancels = make(map[uint64]context.CancelFunc)
	r.mu.Unlock()

	for _, cancel := range cancels {
		cancel()
	}
}

// InFlight reports whether an acquisition call is currently outstanding.
func (r *Reserver) InFlight() bool { return r.inflight.Load() > 0 }

// Waiting returns how many callers are waiting on a shared call.
func (r *Reserver) Waiting() int { return int(r.waiting.Load()) }

// Calls returns the number of backend acquisition calls made so far.
func (r *Reserver) Calls() int64 { return r.calls.Load() }
