package activity

import (
	"context"
	"log/slog"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/Overland-East-Bay/load-dispatch-client/internal/app/driversync"
	"github.com/Overland-East-Bay/load-dispatch-client/internal/domain"
	"github.com/Overland-East-Bay/load-dispatch-client/internal/ports/out/journal"
	"github.com/Overland-East-Bay/load-dispatch-client/internal/ports/out/viewfeed"
)

const DefaultBuffer = 256

// Recorder copies engine changes into the activity journal and, optionally, the
// view feed. Handle never blocks the engine: changes are queued and written by Run.
type Recorder struct {
	journal journal.Journal
	feed    viewfeed.Publisher
	log     *slog.Logger
	newID   func() string

	queue   chan driversync.Change
	dropped atomic.Int64
}

// NewRecorder builds a recorder. feed may be nil.
func NewRecorder(j journal.Journal, feed viewfeed.Publisher, log *slog.Logger, buffer int) *Recorder {
	if log == nil {
		log = slog.Default()
	}
	if buffer <= 0 {
		buffer = DefaultBuffer
	}
	return &Recorder{
		journal: j,
		feed:    feed,
		log:     log,
		newID:   uuid.NewString,
		queue:   make(chan driversync.Change, buffer),
	}
}

// SetNewIDForTest overrides entry id generation.
func (r *Recorder) SetNewIDForTest(fn func() string) { r.newID = fn }

// Handle enqueues c. When the queue is full the change is dropped and counted.
func (r *Recorder) Handle(c driversync.Change) {
	if c.DriverID == "" {
		return
	}
	if c.Reason == driversync.ReasonNotice && c.Notice == nil {
		return
	}
	select {
	case r.queue <- c:
	default:
		r.dropped.Add(1)
		r.log.Warn("activity queue full, change dropped", "driver_id", c.DriverID, "reason", string(c.Reason))
	}
}

// Dropped returns how many changes were discarded because the queue was full.
func (r *Recorder) Dropped() int64 { return r.dropped.Load() }

// Run writes queued changes until ctx is done, then drains what is left.
func (r *Recorder) Run(ctx context.Context) error {
	for {
		select {
		case c := <-r.queue:
			r.record(ctx, c)
		case <-ctx.Done():
			r.drain()
			return nil
		}
	}
}

func (r *Recorder) drain() {
	ctx := context.Background()
	for {
		select {
		case c := <-r.queue:
			r.record(ctx, c)
		default:
			return
		}
	}
}

func (r *Recorder) record(ctx context.Context, c driversync.Change) {
	e := entryFor(c)
	e.ID = r.newID()
	if err := r.journal.Append(ctx, e); err != nil {
		r.log.Error("journal append failed", "driver_id", c.DriverID, "err", err)
	}

	if r.feed == nil || c.Reason == driversync.ReasonNotice {
		return
	}
	if err := r.feed.Publish(ctx, eventFor(c)); err != nil {
		r.log.Warn("view feed publish failed", "driver_id", c.DriverID, "err", err)
	}
}

func entryFor(c driversync.Change) journal.Entry {
	e := journal.Entry{
		DriverID: c.DriverID,
		Kind:     journal.KindTransition,
		State:    string(c.View.State()),
		LoadID:   loadID(c.View.Load),
		Message:  string(c.Reason),
		At:       c.At,
	}
	if c.Reason == driversync.ReasonNotice {
		e.Kind = journal.KindNotice
		e.Message = c.Notice.Message
	}
	return e
}

func eventFor(c driversync.Change) viewfeed.Event {
	ev := viewfeed.Event{
		DriverID: string(c.DriverID),
		State:    string(c.View.State()),
		OnShift:  c.View.OnShift,
		Reason:   string(c.Reason),
		At:       c.At,
	}
	if l := c.View.Load; l != nil {
		ev.LoadID = string(l.ID)
		ev.LoadStatus = string(l.Status)
		ev.CurrentStop = string(l.CurrentStop)
	}
	return ev
}

func loadID(l *domain.Load) domain.LoadID {
	if l == nil {
		return ""
	}
	return l.ID
}
