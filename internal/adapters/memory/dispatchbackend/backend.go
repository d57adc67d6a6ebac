package dispatchbackend

import (
	"context"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Overland-East-Bay/load-dispatch-client/internal/domain"
	clockport "github.com/Overland-East-Bay/load-dispatch-client/internal/ports/out/clock"
	"github.com/Overland-East-Bay/load-dispatch-client/internal/ports/out/dispatch"
)

const (
	DefaultReservationTTL = 120 * time.Second

	maxUsernameLen = 64

	rejectResult = "REJECTED_AND_SHIFT_ENDED"
	rejectNoop   = "NO_OP_ALREADY_REJECTED_AND_SHIFT_ENDED"
)

// Backend is an in-memory dispatch backend for local development and tests.
// Loads are matched first-come first-served; reservations lapse after the TTL.
// It is safe for concurrent use.
type Backend struct {
	clk   clockport.Clock
	ttl   time.Duration
	newID func() string

	mu      sync.Mutex
	drivers map[domain.DriverID]*driver
	byName  map[string]domain.DriverID
	loads   map[domain.LoadID]*load
	seq     int64
}

type driver struct {
	id      domain.DriverID
	name    string
	onShift bool
	loc     *domain.Coordinate
}

type load struct {
	domain.Load
	seq       int64
	expiresAt time.Time
	// lapsedFrom is the driver whose reservation last expired, so a late pickup
	// still reports RESERVATION_EXPIRED after a background release.
	lapsedFrom domain.DriverID
}

var (
	_ dispatch.Gateway      = (*Backend)(nil)
	_ dispatch.FleetGateway = (*Backend)(nil)
)

// New returns an empty backend. A non-positive ttl uses DefaultReservationTTL.
func New(clk clockport.Clock, ttl time.Duration) *Backend {
	if ttl <= 0 {
		ttl = DefaultReservationTTL
	}
	return &Backend{
		clk:     clk,
		ttl:     ttl,
		newID:   uuid.NewString,
		drivers: make(map[domain.DriverID]*driver),
		byName:  make(map[string]domain.DriverID),
		loads:   make(map[domain.LoadID]*load),
	}
}

// SetNewIDForTest overrides id generation.
func (b *Backend) SetNewIDForTest(fn func() string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.newID = fn
}

// Login returns the driver for username, creating it on first use.
func (b *Backend) Login(ctx context.Context, username string) (domain.DriverIdentity, error) {
	_ = ctx
	name := domain.NormalizeHumanName(username)
	if name == "" {
		return domain.DriverIdentity{}, apiError(http.StatusBadRequest, dispatch.CodeValidation, "username is required", map[string]any{"username": "is required"})
	}
	if len(name) > maxUsernameLen {
		return domain.DriverIdentity{}, apiError(http.StatusBadRequest, dispatch.CodeValidation, "username is too long", map[string]any{"username": fmt.Sprintf("must be at most %d characters", maxUsernameLen)})
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	key := strings.ToLower(name)
	if id, ok := b.byName[key]; ok {
		d := b.drivers[id]
		return domain.DriverIdentity{ID: d.id, DisplayName: d.name}, nil
	}
	d := &driver{id: domain.DriverID(b.newID()), name: name}
	b.drivers[d.id] = d
	b.byName[key] = d.id
	return domain.DriverIdentity{ID: d.id, DisplayName: d.name}, nil
}

func (b *Backend) StartShift(ctx context.Context, driverID domain.DriverID, at domain.Coordinate) error {
	_ = ctx
	if !at.Valid() {
		return apiError(http.StatusBadRequest, dispatch.CodeValidation, "invalid coordinates", map[string]any{"lat": "must be within [-90, 90]", "lng": "must be within [-180, 180]"})
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	d, err := b.driverLocked(driverID)
	if err != nil {
		return err
	}
	if d.onShift {
		return apiError(http.StatusConflict, dispatch.CodeShiftAlreadyActive, "Driver is already on shift.", nil)
	}
	loc := at
	d.onShift = true
	d.loc = &loc
	return nil
}

func (b *Backend) EndShift(ctx context.Context, driverID domain.DriverID) error {
	_ = ctx
	b.mu.Lock()
	defer b.mu.Unlock()

	d, err := b.driverLocked(driverID)
	if err != nil {
		return err
	}
	if !d.onShift {
		return apiError(http.StatusConflict, dispatch.CodeShiftNotActive, "Driver is off-shift", nil)
	}
	b.releaseExpiredLocked()
	if b.openLoadLocked(driverID) != nil {
		return apiError(http.StatusConflict, dispatch.CodeActiveLoadPresent, "Cannot end shift: driver has an active load", nil)
	}
	d.onShift = false
	d.loc = nil
	return nil
}

func (b *Backend) GetState(ctx context.Context, driverID domain.DriverID) (dispatch.DriverState, error) {
	_ = ctx
	b.mu.Lock()
	defer b.mu.Unlock()

	d, err := b.driverLocked(driverID)
	if err != nil {
		return dispatch.DriverState{}, err
	}
	b.releaseExpiredLocked()
	st := dispatch.DriverState{OnShift: d.onShift}
	if l := b.openLoadLocked(driverID); l != nil {
		st.Load = b.viewLocked(l)
	}
	return st, nil
}

// GetAssignment returns the driver's open load, or reserves the oldest waiting one.
func (b *Backend) GetAssignment(ctx context.Context, driverID domain.DriverID) (*domain.Load, error) {
	_ = ctx
	b.mu.Lock()
	defer b.mu.Unlock()

	d, err := b.driverLocked(driverID)
	if err != nil {
		return nil, err
	}
	if !d.onShift {
		return nil, apiError(http.StatusConflict, dispatch.CodeShiftNotActive, "Driver is off-shift", nil)
	}
	b.releaseExpiredLocked()
	if l := b.openLoadLocked(driverID); l != nil {
		return b.viewLocked(l), nil
	}
	if d.loc == nil {
		return nil, apiError(http.StatusConflict, dispatch.CodeDriverLocation, "Driver location unknown", nil)
	}
	if l := b.reserveLocked(d); l != nil {
		return b.viewLocked(l), nil
	}
	return nil, nil
}

// CompleteStop advances RESERVED+PICKUP to IN_PROGRESS+DROPOFF and IN_PROGRESS+DROPOFF
// to COMPLETED, reserving the next waiting load after a drop-off.
func (b *Backend) CompleteStop(ctx context.Context, driverID domain.DriverID, loadID domain.LoadID) (dispatch.CompleteStopResult, error) {
	_ = ctx
	b.mu.Lock()
	defer b.mu.Unlock()

	d, err := b.driverLocked(driverID)
	if err != nil {
		return dispatch.CompleteStopResult{}, err
	}
	if !d.onShift {
		return dispatch.CompleteStopResult{}, apiError(http.StatusConflict, dispatch.CodeShiftNotActive, "Driver is off-shift", nil)
	}
	l, err := b.loadLocked(loadID)
	if err != nil {
		return dispatch.CompleteStopResult{}, err
	}

	if l.Status == domain.LoadStatusCompleted {
		res := dispatch.CompleteStopResult{Completed: b.viewLocked(l)}
		if open := b.openLoadLocked(driverID); open != nil {
			res.NextAssignment = b.viewLocked(open)
		} else if d.loc != nil {
			res.NextAssignment = b.viewLocked(b.reserveLocked(d))
		}
		return res, nil
	}
	if !l.heldBy(driverID) {
		if l.lapsedFrom == driverID {
			return dispatch.CompleteStopResult{}, errReservationExpired()
		}
		return dispatch.CompleteStopResult{}, apiError(http.StatusForbidden, dispatch.CodeAccessDenied, "Load not assigned to this driver", nil)
	}

	switch {
	case l.Status == domain.LoadStatusReserved && l.CurrentStop == domain.StopPickup:
		if b.clk.Now().After(l.expiresAt) {
			l.lapse()
			return dispatch.CompleteStopResult{}, errReservationExpired()
		}
		l.Status = domain.LoadStatusInProgress
		l.CurrentStop = domain.StopDropoff
		l.expiresAt = time.Time{}
		d.loc = cloneCoord(l.Pickup)
		return dispatch.CompleteStopResult{Completed: b.viewLocked(l)}, nil

	case l.Status == domain.LoadStatusInProgress && l.CurrentStop == domain.StopDropoff:
		l.Status = domain.LoadStatusCompleted
		l.CurrentStop = domain.StopNone
		l.AssignedDriver = nil
		d.loc = cloneCoord(l.Dropoff)
		res := dispatch.CompleteStopResult{Completed: b.viewLocked(l)}
		res.NextAssignment = b.viewLocked(b.reserveLocked(d))
		return res, nil
	}
	return dispatch.CompleteStopResult{}, apiError(http.StatusConflict, dispatch.CodeLoadStateConflict, "Invalid state for completing next stop", nil)
}

// RejectLoad releases a RESERVED load and ends the driver's shift.
func (b *Backend) RejectLoad(ctx context.Context, driverID domain.DriverID, loadID domain.LoadID) (dispatch.RejectOutcome, error) {
	_ = ctx
	b.mu.Lock()
	defer b.mu.Unlock()

	d, err := b.driverLocked(driverID)
	if err != nil {
		return dispatch.RejectOutcome{}, err
	}
	l, err := b.loadLocked(loadID)
	if err != nil {
		return dispatch.RejectOutcome{}, err
	}
	b.releaseExpiredLocked()
	now := b.clk.Now().UTC()
	if !l.heldBy(driverID) {
		if !d.onShift {
			return dispatch.RejectOutcome{Result: rejectNoop, ShiftEndedAt: now}, nil
		}
		return dispatch.RejectOutcome{}, apiError(http.StatusForbidden, dispatch.CodeAccessDenied, "Load not assigned to this driver", nil)
	}
	if l.Status != domain.LoadStatusReserved {
		return dispatch.RejectOutcome{}, apiError(http.StatusConflict, dispatch.CodeLoadStateConflict, "Only reserved loads can be rejected", nil)
	}
	l.release()
	d.onShift = false
	d.loc = nil
	return dispatch.RejectOutcome{Result: rejectResult, ShiftEndedAt: now}, nil
}

func (b *Backend) ListLoads(ctx context.Context, status domain.LoadStatus) ([]domain.Load, error) {
	_ = ctx
	b.mu.Lock()
	defer b.mu.Unlock()

	b.releaseExpiredLocked()
	out := make([]domain.Load, 0, len(b.loads))
	for _, l := range b.sortedLocked() {
		if status != "" && l.Status != status {
			continue
		}
		out = append(out, *b.viewLocked(l))
	}
	return out, nil
}

func (b *Backend) CreateLoad(ctx context.Context, pickup, dropoff domain.Coordinate) (domain.Load, error) {
	_ = ctx
	details := map[string]any{}
	if !pickup.Valid() {
		details["pickup"] = "must be a valid coordinate"
	}
	if !dropoff.Valid() {
		details["dropoff"] = "must be a valid coordinate"
	}
	if len(details) > 0 {
		return domain.Load{}, apiError(http.StatusBadRequest, dispatch.CodeValidation, "invalid coordinates", details)
	}
	if pickup == dropoff {
		return domain.Load{}, apiError(http.StatusBadRequest, dispatch.CodeValidation, "pickup and dropoff cannot be the same coordinates", nil)
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	b.seq++
	l := &load{
		Load: domain.Load{
			ID:      domain.LoadID(b.newID()),
			Status:  domain.LoadStatusAwaitingDriver,
			Pickup:  cloneCoord(&pickup),
			Dropoff: cloneCoord(&dropoff),
		},
		seq: b.seq,
	}
	b.loads[l.ID] = l
	return *b.viewLocked(l), nil
}

func (b *Backend) driverLocked(id domain.DriverID) (*driver, error) {
	d, ok := b.drivers[id]
	if !ok {
		return nil, apiError(http.StatusNotFound, dispatch.CodeDriverNotFound, "Driver not found: "+string(id), nil)
	}
	return d, nil
}

func (b *Backend) loadLocked(id domain.LoadID) (*load, error) {
	l, ok := b.loads[id]
	if !ok {
		return nil, apiError(http.StatusNotFound, dispatch.CodeLoadNotFound, "Load not found: "+string(id), nil)
	}
	return l, nil
}

func (b *Backend) openLoadLocked(driverID domain.DriverID) *load {
	for _, l := range b.loads {
		if l.Status.Open() && l.heldBy(driverID) {
			return l
		}
	}
	return nil
}

// releaseExpiredLocked returns lapsed reservations to the pool.
func (b *Backend) releaseExpiredLocked() {
	now := b.clk.Now()
	for _, l := range b.loads {
		if l.Status == domain.LoadStatusReserved && !l.expiresAt.IsZero() && now.After(l.expiresAt) {
			l.lapse()
		}
	}
}

func (b *Backend) reserveLocked(d *driver) *load {
	for _, l := range b.sortedLocked() {
		if l.Status != domain.LoadStatusAwaitingDriver {
			continue
		}
		l.Status = domain.LoadStatusReserved
		l.CurrentStop = domain.StopPickup
		l.AssignedDriver = &domain.AssignedDriver{ID: d.id, Name: d.name}
		l.expiresAt = b.clk.Now().Add(b.ttl)
		l.lapsedFrom = ""
		return l
	}
	return nil
}

func (b *Backend) sortedLocked() []*load {
	out := make([]*load, 0, len(b.loads))
	for _, l := range b.loads {
		out = append(out, l)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].seq < out[j].seq })
	return out
}

func (b *Backend) viewLocked(l *load) *domain.Load {
	if l == nil {
		return nil
	}
	return domain.CloneLoad(&l.Load)
}

func (l *load) heldBy(driverID domain.DriverID) bool {
	return l.AssignedDriver != nil && l.AssignedDriver.ID == driverID
}

func (l *load) release() {
	l.Status = domain.LoadStatusAwaitingDriver
	l.CurrentStop = domain.StopNone
	l.AssignedDriver = nil
	l.expiresAt = time.Time{}
}

func (l *load) lapse() {
	if l.AssignedDriver != nil {
		l.lapsedFrom = l.AssignedDriver.ID
	}
	l.release()
}

func cloneCoord(c *domain.Coordinate) *domain.Coordinate {
	if c == nil {
		return nil
	}
	out := *c
	return &out
}

func errReservationExpired() *dispatch.APIError {
	return apiError(http.StatusConflict, dispatch.CodeReservationExpired, "Reservation expired. Fetch assignment again.", nil)
}

func apiError(status int, code, msg string, details map[string]any) *dispatch.APIError {
	return &dispatch.APIError{Status: status, Code: code, Message: msg, Details: details}
}
