package driversync

import (
	"sync"
	"time"

	"github.com/Overland-East-Bay/load-dispatch-client/internal/app/notices"
	"github.com/Overland-East-Bay/load-dispatch-client/internal/domain"
)

// Reason says why a Change was emitted.
type Reason string

const (
	ReasonLogin              Reason = "login"
	ReasonLogout             Reason = "logout"
	ReasonStateSync          Reason = "state_sync"
	ReasonAssignmentSync     Reason = "assignment_sync"
	ReasonRefresh            Reason = "refresh"
	ReasonShiftStarted       Reason = "shift_started"
	ReasonShiftEnded         Reason = "shift_ended"
	ReasonReserved           Reason = "reserved"
	ReasonStopCompleted      Reason = "stop_completed"
	ReasonReservationExpired Reason = "reservation_expired"
	ReasonConflict           Reason = "conflict"
	ReasonRejected           Reason = "rejected"
	ReasonNotice             Reason = "notice"
)

// Change is delivered to subscribers after the view or notice changed.
type Change struct {
	Reason Reason
	// DriverID is the driver the change concerns. On logout and reject it is the
	// departing driver; the notice that follows a reject keeps it too.
	DriverID domain.DriverID
	Previous State
	View     View
	// Notice is set for ReasonNotice; nil means the notice was cleared.
	Notice *notices.Notice
	At     time.Time
}

type SubscriberID uint64

// changeBus delivers changes synchronously, in subscription order, outside the
// engine lock.
type changeBus struct {
	mu     sync.RWMutex
	nextID SubscriberID
	subs   []subscriber
}

type subscriber struct {
	id SubscriberID
	fn func(Change)
}

func (b *changeBus) subscribe(fn func(Change)) SubscriberID {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.nextID++
	b.subs = append(b.subs, subscriber{id: b.nextID, fn: fn})
	return b.nextID
}

func (b *changeBus) unsubscribe(id SubscriberID) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i, s := range b.subs {
		if s.id == id {
			b.subs = append(b.subs[:i:i], b.subs[i+1:]...)
			return
		}
	}
}

func (b *changeBus) emit(c Change) {
	b.mu.RLock()
	subs := make([]subscriber, len(b.subs))
	copy(subs, b.subs)
	b.mu.RUnlock()

	for _, s := range subs {
		s.fn(c)
	}
}
