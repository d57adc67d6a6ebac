package journal

import (
	"context"
	"errors"
	"time"

	"github.com/Overland-East-Bay/load-dispatch-client/internal/domain"
)

var (
	ErrInvalidEntry   = errors.New("journal: invalid entry")
	ErrDuplicateEntry = errors.New("journal: duplicate entry id")
)

// DefaultLimit applies when ListByDriver is called with a non-positive limit.
const DefaultLimit = 100

// Kind classifies a journal entry.
type Kind string

const (
	KindTransition Kind = "TRANSITION"
	KindNotice     Kind = "NOTICE"
)

// Entry is one recorded client activity.
type Entry struct {
	ID       string
	DriverID domain.DriverID
	Kind     Kind
	// State is the driver view state after the change (e.g. ON_SHIFT_ASSIGNED).
	State   string
	LoadID  domain.LoadID
	Message string
	At      time.Time
}

// Journal persists client activity for operators. It is write-mostly audit output and
// is never used to restore client state.
//
// Append requires a non-empty ID and DriverID (ErrInvalidEntry) and rejects a reused
// ID (ErrDuplicateEntry).
//
// Result ordering expectations:
// - ListByDriver returns newest entries first, ties broken by ID descending.
type Journal interface {
	Append(ctx context.Context, e Entry) error
	ListByDriver(ctx context.Context, driverID domain.DriverID, limit int) ([]Entry, error)
}
