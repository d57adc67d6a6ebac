package driversync

import (
	"time"

	"github.com/Overland-East-Bay/load-dispatch-client/internal/domain"
)

// State is derived from a View; it is never stored.
type State string

const (
	StateLoggedOut         State = "LOGGED_OUT"
	StateOffShift          State = "OFF_SHIFT"
	StateOnShiftUnassigned State = "ON_SHIFT_UNASSIGNED"
	StateOnShiftAssigned   State = "ON_SHIFT_ASSIGNED"
)

// View is the client's last-known picture of the driver.
type View struct {
	Identity *domain.DriverIdentity
	OnShift  bool
	Load     *domain.Load

	// UpdatedAt is when the backend state was last applied.
	UpdatedAt time.Time
	// SyncError is the last background sync failure, cleared by the next success.
	SyncError string
}

func (v View) State() State {
	switch {
	case v.Identity == nil:
		return StateLoggedOut
	case !v.OnShift:
		return StateOffShift
	case v.Load == nil:
		return StateOnShiftUnassigned
	default:
		return StateOnShiftAssigned
	}
}

// Affordances lists which user actions the current view permits.
type Affordances struct {
	CanStartShift bool
	CanAcquire    bool
	CanComplete   bool
	CanReject     bool
	CanEndShift   bool
	// NextStop is the stop CanComplete would complete.
	NextStop domain.Stop
}

func (v View) Affordances() Affordances {
	var a Affordances
	switch v.State() {
	case StateOffShift:
		a.CanStartShift = true
	case StateOnShiftUnassigned:
		a.CanAcquire = true
		a.CanEndShift = true
	case StateOnShiftAssigned:
		a.CanComplete = v.Load.Status.Open()
		a.CanReject = v.Load.Rejectable()
		a.NextStop = v.Load.CurrentStop
	}
	return a
}

func (v View) clone() View {
	out := v
	if v.Identity != nil {
		id := *v.Identity
		out.Identity = &id
	}
	out.Load = domain.CloneLoad(v.Load)
	return out
}

// materiallyDiffers ignores bookkeeping fields such as UpdatedAt and SyncError.
func materiallyDiffers(a, b View) bool {
	if a.State() != b.State() {
		return true
	}
	if (a.Identity == nil) != (b.Identity == nil) || (a.Identity != nil && *a.Identity != *b.Identity) {
		return true
	}
	if a.Load == nil || b.Load == nil {
		return a.Load != b.Load
	}
	return a.Load.ID != b.Load.ID || a.Load.Status != b.Load.Status || a.Load.CurrentStop != b.Load.CurrentStop
}
