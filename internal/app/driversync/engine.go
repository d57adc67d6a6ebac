package driversync

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/Overland-East-Bay/load-dispatch-client/internal/app/notices"
	"github.com/Overland-East-Bay/load-dispatch-client/internal/domain"
	clockport "github.com/Overland-East-Bay/load-dispatch-client/internal/ports/out/clock"
	"github.com/Overland-East-Bay/load-dispatch-client/internal/ports/out/dispatch"
	"github.com/Overland-East-Bay/load-dispatch-client/internal/ports/out/location"
)

const (
	DefaultStatePollInterval      = 12 * time.Second
	DefaultAssignmentPollInterval = 8 * time.Second
	DefaultNoticeTTL              = 5 * time.Second
	DefaultLocationTimeout        = 10 * time.Second
)

const (
	msgShiftStartedReserved = "Shift started. A load was reserved for you."
	msgShiftStartedWaiting  = "Shift started. Waiting for a load…"
	msgReserved             = "A load has been reserved for you."
	msgNothingAvailable     = "No suitable load available yet."
	msgPickupComplete       = "Pickup complete. Proceed to the drop-off."
	msgDropoffNext          = "Drop-off complete. A new load has been assigned to you."
	msgDropoffWaiting       = "Drop-off complete. Waiting for your next assignment…"
	msgReservationExpired   = "Your reservation expired because pickup was not completed in time. Refreshing and checking for a new assignment…"
	msgRejected             = "Load rejected and your shift has been ended."
	msgShiftEnded           = "Shift ended."
)

// Options tunes an Engine. Zero values fall back to the defaults above.
type Options struct {
	StatePollInterval      time.Duration
	AssignmentPollInterval time.Duration
	NoticeTTL              time.Duration
	LocationTimeout        time.Duration

	// Locator backs UseCurrentLocation; nil disables it.
	Locator location.Locator
	Logger  *slog.Logger
}

// Engine keeps a driver's view in sync with the dispatch backend.
//
// Every view mutation happens under mu together with the relevance check of the
// request that produced it. Network calls never run under mu, and changes are
// delivered to subscribers after mu is released.
type Engine struct {
	gw              dispatch.Gateway
	clk             clockport.Clock
	log             *slog.Logger
	locator         location.Locator
	locationTimeout time.Duration

	session  *Session
	guard    *Guard
	reserver *Reserver
	sched    *Scheduler
	notices  *notices.Channel
	bus      changeBus

	mu   sync.Mutex
	view View

	// lastDriver survives teardown so late notices can still be attributed.
	lastDriver domain.DriverID
}

func NewEngine(gw dispatch.Gateway, clk clockport.Clock, opts Options) *Engine {
	if opts.StatePollInterval <= 0 {
		opts.StatePollInterval = DefaultStatePollInterval
	}
	if opts.AssignmentPollInterval <= 0 {
		opts.AssignmentPollInterval = DefaultAssignmentPollInterval
	}
	if opts.NoticeTTL <= 0 {
		opts.NoticeTTL = DefaultNoticeTTL
	}
	if opts.LocationTimeout <= 0 {
		opts.LocationTimeout = DefaultLocationTimeout
	}
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}

	session := NewSession()
	guard := NewGuard(session)
	e := &Engine{
		gw:              gw,
		clk:             clk,
		log:             log,
		locator:         opts.Locator,
		locationTimeout: opts.LocationTimeout,
		session:         session,
		guard:           guard,
		reserver:        NewReserver(gw),
		notices:         notices.NewChannel(clk, opts.NoticeTTL),
	}
	e.sched = NewScheduler(clk, guard, log,
		Loop{Name: "state", Interval: opts.StatePollInterval, Tick: func(ctx context.Context) { e.pollTick(ctx, ReasonStateSync) }},
		Loop{Name: "assignment", Interval: opts.AssignmentPollInterval, Tick: func(ctx context.Context) { e.pollTick(ctx, ReasonAssignmentSync) }},
	)
	e.notices.OnChange(e.noticeChanged)
	return e
}

// View returns a copy of the current view.
func (e *Engine) View() View {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.view.clone()
}

// Notice returns the live notice, if any.
func (e *Engine) Notice() (notices.Notice, bool) { return e.notices.Current() }

// Subscribe registers fn for every view or notice change and returns a function
// that removes it. fn runs synchronously and must not block.
func (e *Engine) Subscribe(fn func(Change)) (unsubscribe func()) {
	id := e.bus.subscribe(fn)
	return func() { e.bus.unsubscribe(id) }
}

// Polling reports whether the background loops are armed.
func (e *Engine) Polling() bool { return e.sched.Running() }

// Login authenticates username and makes it the current identity. Any previous
// identity is torn down first; its in-flight results are discarded.
func (e *Engine) Login(ctx context.Context, username string) (domain.DriverIdentity, error) {
	name := domain.NormalizeHumanName(username)
	if name == "" {
		return domain.DriverIdentity{}, e.fail(newError(KindValidation, "username is required"))
	}

	// The call belongs to the identity generation it started in. Logout or another
	// login moves the epoch on and cancels it; its result is then dropped.
	epoch := e.session.Epoch()
	p := e.guard.Issue(ctx, Issuer{Epoch: epoch})
	id, err := e.gw.Login(p.Context(), name)
	p.Done()
	current := func() bool { return !p.cancelled.Load() && e.session.Epoch() == epoch }

	if err == nil && id.IsZero() {
		err = newError(KindInternal, "login returned no driver id")
	}
	if err != nil {
		ce := Classify(err)
		if ce.Kind == KindCancelled {
			return domain.DriverIdentity{}, ce
		}
		if _, ok := e.notices.ShowIf(current, ce.Message, notices.KindError); !ok {
			return domain.DriverIdentity{}, errStale()
		}
		return domain.DriverIdentity{}, ce
	}

	e.mu.Lock()
	if !current() {
		e.mu.Unlock()
		return domain.DriverIdentity{}, errStale()
	}
	prev := e.view.clone()
	e.sched.Stop()
	iss := e.session.Set(&id)
	e.lastDriver = id.ID
	ident := iss.Identity
	e.view = View{Identity: &ident}
	next := e.view.clone()
	e.mu.Unlock()

	// Whatever the previous identity still had outstanding is now stale.
	e.guard.CancelAll()
	e.reserver.CancelAll()
	e.notices.Clear()
	e.emitIfChanged(ReasonLogin, prev, next)
	e.log.Info("driver logged in", "driver_id", id.ID)

	if _, err := e.refreshFor(ctx, iss, ReasonLogin); err != nil {
		e.logSyncError(ReasonLogin, iss, err)
	}
	e.restartLoops(iss)
	return id, nil
}

// Logout tears down identity, view, loops, in-flight calls and the notice.
// It always succeeds and may be called repeatedly.
func (e *Engine) Logout() {
	e.teardown(ReasonLogout, nil)
	e.notices.Clear()
}

// StartShift starts a shift at the given position. After the backend accepts it the
// engine re-fetches state, tries once to reserve a load and restarts the loops.
func (e *Engine) StartShift(ctx context.Context, at domain.Coordinate) error {
	iss, v, err := e.snapshot()
	if err != nil {
		return e.fail(err)
	}
	if !at.Valid() {
		return e.fail(newError(KindValidation, "lat must be between -90 and 90 and lng between -180 and 180"))
	}
	if v.OnShift {
		return e.fail(newError(KindShiftAlreadyActive, "shift is already active"))
	}

	p := e.guard.Issue(ctx, iss)
	defer p.Done()
	if err := e.gw.StartShift(p.Context(), iss.Identity.ID, at); err != nil {
		return e.failFor(iss, err)
	}
	if !e.apply(ReasonShiftStarted, func(v *View) bool {
		if !p.Relevant() {
			return false
		}
		v.OnShift = true
		return true
	}) {
		return errStale()
	}

	var load *domain.Load
	st, err := e.refreshFor(ctx, iss, ReasonShiftStarted)
	switch {
	case err != nil:
		e.logSyncError(ReasonShiftStarted, iss, err)
	case st.Load != nil:
		load = st.Load
	case st.OnShift:
		acquired, _, aerr := e.acquireFor(ctx, iss)
		if aerr != nil {
			e.logSyncError(ReasonShiftStarted, iss, aerr)
		}
		load = acquired
	}

	if !e.restartLoops(iss) {
		return errStale()
	}
	if load != nil {
		e.noticeFor(iss, msgShiftStartedReserved, notices.KindSuccess)
	} else {
		e.noticeFor(iss, msgShiftStartedWaiting, notices.KindInfo)
	}
	return nil
}

// AcquireAssignment asks for a load right away. A nil load with a nil error means the
// backend had nothing to offer. While a load is already held it is returned unchanged.
func (e *Engine) AcquireAssignment(ctx context.Context) (*domain.Load, error) {
	iss, v, err := e.snapshot()
	if err != nil {
		return nil, e.fail(err)
	}
	if !v.OnShift {
		return nil, e.fail(newError(KindShiftNotActive, "start a shift first"))
	}
	if v.Load != nil {
		return v.Load, nil
	}

	load, _, err := e.acquireFor(ctx, iss)
	if err != nil {
		return nil, e.failFor(iss, err)
	}
	if load == nil {
		if !e.noticeFor(iss, msgNothingAvailable, notices.KindInfo) {
			return nil, errStale()
		}
		return nil, nil
	}
	e.noticeFor(iss, msgReserved, notices.KindSuccess)
	return load, nil
}

// CompleteCurrentStop completes the current stop of loadID. An empty loadID means the
// load currently held.
func (e *Engine) CompleteCurrentStop(ctx context.Context, loadID domain.LoadID) (dispatch.CompleteStopResult, error) {
	iss, v, err := e.snapshot()
	if err != nil {
		return dispatch.CompleteStopResult{}, e.fail(err)
	}
	if v.Load == nil {
		return dispatch.CompleteStopResult{}, e.fail(newError(KindNoActiveLoad, "no active load to complete"))
	}
	if loadID == "" {
		loadID = v.Load.ID
	}
	if loadID != v.Load.ID {
		e.resync(ctx, iss, ReasonConflict)
		return dispatch.CompleteStopResult{}, e.failFor(iss, newError(KindLoadStateConflict, fmt.Sprintf("load %s is not your current assignment", loadID)))
	}
	prevStop := v.Load.CurrentStop

	p := e.guard.Issue(ctx, iss)
	defer p.Done()
	res, err := e.gw.CompleteStop(p.Context(), iss.Identity.ID, loadID)
	if err != nil {
		ce := Classify(err)
		switch ce.Kind {
		case KindReservationExpired:
			// The backend already released the load.
			if !e.apply(ReasonReservationExpired, func(v *View) bool {
				if !p.Relevant() {
					return false
				}
				if v.Load != nil && v.Load.ID == loadID {
					v.Load = nil
				}
				return true
			}) {
				return dispatch.CompleteStopResult{}, errStale()
			}
			e.noticeFor(iss, msgReservationExpired, notices.KindError)
			if err := e.syncAndAcquire(ctx, iss, ReasonReservationExpired); err != nil {
				e.logSyncError(ReasonReservationExpired, iss, err)
			}
			return dispatch.CompleteStopResult{}, ce
		case KindLoadStateConflict:
			if err := e.failFor(iss, ce); IsKind(err, KindCancelled) {
				return dispatch.CompleteStopResult{}, err
			}
			e.resync(ctx, iss, ReasonConflict)
			return dispatch.CompleteStopResult{}, ce
		default:
			return dispatch.CompleteStopResult{}, e.failFor(iss, ce)
		}
	}

	// After a pickup the backend returns the same load, still open, as completed.
	next := res.NextAssignment
	if next == nil && res.Completed != nil && res.Completed.Status.Open() {
		next = res.Completed
	}
	if !e.apply(ReasonStopCompleted, func(v *View) bool {
		if !p.Relevant() {
			return false
		}
		v.OnShift = true
		v.Load = domain.CloneLoad(next)
		v.UpdatedAt = e.clk.Now()
		return true
	}) {
		return dispatch.CompleteStopResult{}, errStale()
	}

	switch {
	case prevStop == domain.StopPickup:
		e.noticeFor(iss, msgPickupComplete, notices.KindSuccess)
	case res.NextAssignment != nil:
		e.noticeFor(iss, msgDropoffNext, notices.KindSuccess)
	default:
		e.noticeFor(iss, msgDropoffWaiting, notices.KindSuccess)
	}
	e.resync(ctx, iss, ReasonStopCompleted)
	return res, nil
}

// RejectCurrentLoad rejects a reserved load. The backend ends the shift as a side
// effect, so on success the session is torn down while the notice is kept.
func (e *Engine) RejectCurrentLoad(ctx context.Context, loadID domain.LoadID) error {
	iss, v, err := e.snapshot()
	if err != nil {
		return e.fail(err)
	}
	if v.Load == nil {
		return e.fail(newError(KindNoActiveLoad, "no active load to reject"))
	}
	if loadID == "" {
		loadID = v.Load.ID
	}
	if loadID != v.Load.ID {
		e.resync(ctx, iss, ReasonConflict)
		return e.failFor(iss, newError(KindLoadStateConflict, fmt.Sprintf("load %s is not your current assignment", loadID)))
	}
	if !v.Load.Rejectable() {
		return e.fail(newError(KindLoadStateConflict, "only reserved loads can be rejected"))
	}

	p := e.guard.Issue(ctx, iss)
	defer p.Done()
	if _, err := e.gw.RejectLoad(p.Context(), iss.Identity.ID, loadID); err != nil {
		ce := Classify(err)
		if err := e.failFor(iss, ce); IsKind(err, KindCancelled) {
			return err
		}
		if ce.Kind == KindLoadStateConflict {
			e.resync(ctx, iss, ReasonConflict)
		}
		return ce
	}
	epoch, ok := e.teardown(ReasonRejected, p)
	if !ok {
		return errStale()
	}
	// The notice outlives the session it ends, but not a logout or login after it.
	e.notices.ShowIf(func() bool { return e.session.Epoch() == epoch }, msgRejected, notices.KindInfo)
	return nil
}

// EndShift ends the shift. Any held load blocks it, whatever its status.
func (e *Engine) EndShift(ctx context.Context) error {
	iss, v, err := e.snapshot()
	if err != nil {
		return e.fail(err)
	}
	if !v.OnShift {
		return e.fail(newError(KindShiftNotActive, "shift is not active"))
	}
	if v.Load != nil {
		return e.fail(newError(KindActiveLoadPresent, "finish or reject the current load before ending the shift"))
	}

	p := e.guard.Issue(ctx, iss)
	defer p.Done()
	if err := e.gw.EndShift(p.Context(), iss.Identity.ID); err != nil {
		ce := Classify(err)
		if err := e.failFor(iss, ce); IsKind(err, KindCancelled) {
			return err
		}
		if ce.Kind == KindShiftNotActive || ce.Kind == KindActiveLoadPresent {
			e.resync(ctx, iss, ReasonConflict)
		}
		return ce
	}
	if !e.apply(ReasonShiftEnded, func(v *View) bool {
		if !p.Relevant() {
			return false
		}
		v.OnShift = false
		v.Load = nil
		v.UpdatedAt = e.clk.Now()
		return true
	}) {
		return errStale()
	}
	e.resync(ctx, iss, ReasonShiftEnded)
	e.noticeFor(iss, msgShiftEnded, notices.KindInfo)
	return nil
}

// Refresh re-fetches authoritative state now.
func (e *Engine) Refresh(ctx context.Context) (View, error) {
	iss, _, err := e.snapshot()
	if err != nil {
		return View{}, e.fail(err)
	}
	if _, err := e.refreshFor(ctx, iss, ReasonRefresh); err != nil {
		return e.View(), e.failFor(iss, err)
	}
	return e.View(), nil
}

// UseCurrentLocation asks the locator for the device position, waiting at most the
// configured location timeout. It never retries.
func (e *Engine) UseCurrentLocation(ctx context.Context) (domain.Coordinate, error) {
	if e.locator == nil {
		return domain.Coordinate{}, e.fail(newError(KindLocationUnavailable, "location is not available on this device"))
	}
	lctx, cancel := context.WithTimeout(ctx, e.locationTimeout)
	defer cancel()

	c, err := e.locator.Locate(lctx)
	if err != nil {
		if ctx.Err() != nil {
			return domain.Coordinate{}, e.fail(Classify(ctx.Err()))
		}
		msg := "failed to get location"
		if errors.Is(err, context.DeadlineExceeded) {
			msg = "location request timed out"
		}
		return domain.Coordinate{}, e.fail(&Error{Kind: KindLocationUnavailable, Message: msg, Err: err})
	}
	if !c.Valid() {
		return domain.Coordinate{}, e.fail(newError(KindValidation, "location returned an invalid coordinate"))
	}
	return c, nil
}

func (e *Engine) pollTick(ctx context.Context, reason Reason) {
	iss, ok := e.session.Issuer()
	if !ok {
		return
	}
	if err := e.syncAndAcquire(ctx, iss, reason); err != nil {
		e.logSyncError(reason, iss, err)
	}
}

// syncAndAcquire re-fetches state and, when on shift without a load, makes one
// reservation attempt.
func (e *Engine) syncAndAcquire(ctx context.Context, iss Issuer, reason Reason) error {
	st, err := e.refreshFor(ctx, iss, reason)
	if err != nil {
		return err
	}
	if !st.OnShift || st.Load != nil {
		return nil
	}
	load, fresh, err := e.acquireFor(ctx, iss)
	if err != nil {
		e.recordSyncError(iss, err)
		return err
	}
	if load != nil && fresh {
		e.noticeFor(iss, msgReserved, notices.KindSuccess)
	}
	return nil
}

func (e *Engine) refreshFor(ctx context.Context, iss Issuer, reason Reason) (dispatch.DriverState, error) {
	p := e.guard.Issue(ctx, iss)
	defer p.Done()

	st, err := e.gw.GetState(p.Context(), iss.Identity.ID)
	if err != nil {
		ce := Classify(err)
		e.recordSyncError(iss, ce)
		return dispatch.DriverState{}, ce
	}

	var announce bool
	if !e.apply(reason, func(v *View) bool {
		if !p.Relevant() {
			return false
		}
		announce = announcesReservation(reason) && v.State() == StateOnShiftUnassigned &&
			st.OnShift && st.Load != nil && st.Load.Status == domain.LoadStatusReserved
		v.OnShift = st.OnShift
		v.Load = domain.CloneLoad(st.Load)
		v.UpdatedAt = e.clk.Now()
		v.SyncError = ""
		return true
	}) {
		return dispatch.DriverState{}, errStale()
	}
	if announce {
		e.noticeFor(iss, msgReserved, notices.KindSuccess)
	}
	return st, nil
}

// acquireFor runs one reservation attempt through the single-flight reserver. fresh
// reports whether the result replaced a different (or no) load.
func (e *Engine) acquireFor(ctx context.Context, iss Issuer) (load *domain.Load, fresh bool, err error) {
	p := e.guard.Issue(ctx, iss)
	defer p.Done()

	load, err = e.reserver.TryAcquire(p.Context(), iss)
	if err != nil {
		return nil, false, Classify(err)
	}
	if load == nil {
		return nil, false, nil
	}
	if !e.apply(ReasonReserved, func(v *View) bool {
		if !p.Relevant() {
			return false
		}
		fresh = v.Load == nil || v.Load.ID != load.ID
		v.OnShift = true
		v.Load = domain.CloneLoad(load)
		v.UpdatedAt = e.clk.Now()
		return true
	}) {
		return nil, false, errStale()
	}
	return load, fresh, nil
}

func (e *Engine) resync(ctx context.Context, iss Issuer, reason Reason) {
	if _, err := e.refreshFor(ctx, iss, reason); err != nil {
		e.logSyncError(reason, iss, err)
	}
}

// apply runs fn under the engine lock. fn returns false, without mutating, to abandon
// the update. A material change is emitted after the lock is released.
func (e *Engine) apply(reason Reason, fn func(v *View) bool) bool {
	e.mu.Lock()
	prev := e.view.clone()
	if !fn(&e.view) {
		e.mu.Unlock()
		return false
	}
	next := e.view.clone()
	e.mu.Unlock()

	e.emitIfChanged(reason, prev, next)
	return true
}

func (e *Engine) recordSyncError(iss Issuer, err error) {
	ce := Classify(err)
	if ce.Kind == KindCancelled {
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.session.IsCurrent(iss) {
		e.view.SyncError = ce.Message
	}
}

// teardown drops identity and view and stops every loop. With a non-nil p it only
// proceeds while p is still relevant. It returns the logged-out epoch.
func (e *Engine) teardown(reason Reason, p *PendingRequest) (uint64, bool) {
	e.mu.Lock()
	if p != nil && !p.Relevant() {
		e.mu.Unlock()
		return 0, false
	}
	prev := e.view.clone()
	e.sched.Stop()
	out := e.session.Set(nil)
	e.view = View{}
	e.mu.Unlock()

	e.guard.CancelAll()
	e.reserver.CancelAll()
	if prev.Identity != nil {
		e.log.Info("driver session ended", "driver_id", prev.Identity.ID, "reason", string(reason))
	}
	e.emitIfChanged(reason, prev, View{})
	return out.Epoch, true
}

// restartLoops starts fresh loops only if iss still names the live session.
func (e *Engine) restartLoops(iss Issuer) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.session.IsCurrent(iss) {
		return false
	}
	e.sched.Start()
	return true
}

func (e *Engine) snapshot() (Issuer, View, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	iss, ok := e.session.Issuer()
	if !ok {
		return Issuer{}, View{}, newError(KindNotLoggedIn, "log in first")
	}
	return iss, e.view.clone(), nil
}

// fail surfaces err as an error notice unless it is a cancellation.
func (e *Engine) fail(err error) error {
	ce := Classify(err)
	if ce.Kind != KindCancelled {
		e.notices.Show(ce.Message, notices.KindError)
	}
	return ce
}

// failFor is fail for the outcome of a call made on behalf of iss. Once iss no longer
// names the live session nothing is surfaced and the result is reported as stale.
func (e *Engine) failFor(iss Issuer, err error) error {
	ce := Classify(err)
	if ce.Kind == KindCancelled {
		return ce
	}
	if _, ok := e.notices.ShowIf(func() bool { return e.session.IsCurrent(iss) }, ce.Message, notices.KindError); !ok {
		return errStale()
	}
	return ce
}

// noticeFor shows a notice only while iss is the live session.
func (e *Engine) noticeFor(iss Issuer, msg string, kind notices.Kind) bool {
	_, ok := e.notices.ShowIf(func() bool { return e.session.IsCurrent(iss) }, msg, kind)
	return ok
}

func (e *Engine) logSyncError(reason Reason, iss Issuer, err error) {
	kind := KindOf(err)
	if kind == KindCancelled {
		e.log.Debug("sync discarded", "loop", string(reason), "driver_id", iss.Identity.ID)
		return
	}
	e.log.Warn("sync failed", "loop", string(reason), "driver_id", iss.Identity.ID, "kind", kind.String(), "err", err)
}

func (e *Engine) emitIfChanged(reason Reason, prev, next View) {
	if !materiallyDiffers(prev, next) {
		return
	}
	var driver domain.DriverID
	switch {
	case next.Identity != nil:
		driver = next.Identity.ID
	case prev.Identity != nil:
		driver = prev.Identity.ID
	}
	e.bus.emit(Change{Reason: reason, DriverID: driver, Previous: prev.State(), View: next, At: e.clk.Now()})
}

func (e *Engine) noticeChanged(n notices.Notice, live bool) {
	e.mu.Lock()
	v := e.view.clone()
	driver := e.lastDriver
	e.mu.Unlock()

	c := Change{Reason: ReasonNotice, DriverID: driver, Previous: v.State(), View: v, At: e.clk.Now()}
	if live {
		c.Notice = &n
	}
	e.bus.emit(c)
}

func announcesReservation(r Reason) bool {
	return r == ReasonStateSync || r == ReasonAssignmentSync || r == ReasonRefresh
}

func errStale() *Error {
	return newError(KindCancelled, "result discarded: session changed")
}
