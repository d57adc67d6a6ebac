package driversync

import (
	"context"
	"log/slog"
	"sync"
	"time"

	clockport "github.com/Overland-East-Bay/load-dispatch-client/internal/ports/out/clock"
)

// Loop is one periodic background task.
type Loop struct {
	Name     string
	Interval time.Duration
	Tick     func(ctx context.Context)
}

type canceller interface {
	CancelAll() int
}

// Scheduler runs self-rescheduling loops on a clock. A loop's next tick is armed only
// after the previous tick settled, so ticks of one loop never overlap.
type Scheduler struct {
	clk   clockport.Clock
	guard canceller
	log   *slog.Logger
	loops []Loop

	mu      sync.Mutex
	gen     uint64
	running bool
	timers  map[string]clockport.Timer
	ctx     context.Context
	cancel  context.CancelFunc
}

func NewScheduler(clk clockport.Clock, guard canceller, log *slog.Logger, loops ...Loop) *Scheduler {
	if log == nil {
		log = slog.Default()
	}
	return &Scheduler{
		clk:    clk,
		guard:  guard,
		log:    log,
		loops:  loops,
		timers: make(map[string]clockport.Timer),
	}
}

// Start stops any running loops, cancels outstanding requests and arms every loop
// for its first tick one interval from now.
func (s *Scheduler) Start() {
	s.Stop()

	s.mu.Lock()
	defer s.mu.Unlock()
	s.gen++
	s.running = true
	s.ctx, s.cancel = context.WithCancel(context.Background())
	for _, l := range s.loops {
		s.armLocked(s.gen, l)
	}
	s.log.Debug("sync loops started", "loops", len(s.loops))
}

// Stop disarms every loop and cancels outstanding requests. It is idempotent.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if s.running {
		s.gen++
		s.running = false
		for name, t := range s.timers {
			t.Stop()
			delete(s.timers, name)
		}
		s.cancel()
		s.log.Debug("sync loops stopped")
	}
	s.mu.Unlock()

	s.guard.CancelAll()
}

// Running reports whether the loops are armed.
func (s *Scheduler) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

func (s *Scheduler) armLocked(gen uint64, l Loop) {
	s.timers[l.Name] = s.clk.AfterFunc(l.Interval, func() { s.fire(gen, l) })
}

func (s *Scheduler) fire(gen uint64, l Loop) {
	s.mu.Lock()
	if !s.running || gen != s.gen {
		s.mu.Unlock()
		return
	}
	delete(s.timers, l.Name)
	ctx := s.ctx
	s.mu.Unlock()

	l.Tick(ctx)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running && gen == s.gen {
		s.armLocked(gen, l)
	}
}
