package driversync_test

import (
	"context"
	"sync"

	"github.com/Overland-East-Bay/load-dispatch-client/internal/domain"
	"github.com/Overland-East-Bay/load-dispatch-client/internal/ports/out/dispatch"
)

// fakeGateway is a scripted dispatch backend. Gates make a call block, ignoring its
// context, until the gate is released, so a test can let a result arrive late.
type fakeGateway struct {
	mu sync.Mutex

	states      map[domain.DriverID]dispatch.DriverState
	stateErr    error
	assignments []*domain.Load
	assignErr   error
	startErr    error
	endErr      error
	rejectErr   error
	complete    func(driverID domain.DriverID, loadID domain.LoadID) (dispatch.CompleteStopResult, error)

	stateGates map[domain.DriverID]*gate
	assignGate *gate
	loginGate  *gate
	endGate    *gate

	// assignCtxErrs records the context state each GetAssignment saw once unblocked.
	assignCtxErrs []error

	calls map[string]int
}

type gate struct {
	entered chan struct{}
	release chan struct{}
	once    sync.Once
}

func newGate() *gate {
	return &gate{entered: make(chan struct{}, 16), release: make(chan struct{})}
}

func (g *gate) wait() {
	g.entered <- struct{}{}
	<-g.release
}

func (g *gate) open() { g.once.Do(func() { close(g.release) }) }

func newFakeGateway() *fakeGateway {
	return &fakeGateway{
		states:     make(map[domain.DriverID]dispatch.DriverState),
		stateGates: make(map[domain.DriverID]*gate),
		calls:      make(map[string]int),
	}
}

func driverID(username string) domain.DriverID { return domain.DriverID("drv-" + username) }

func (f *fakeGateway) count(name string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[name]
}

func (f *fakeGateway) setState(id domain.DriverID, st dispatch.DriverState) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.states[id] = st
}

func (f *fakeGateway) assignmentCtxErrs() []error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]error(nil), f.assignCtxErrs...)
}

func (f *fakeGateway) gateLogin() *gate {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.loginGate = newGate()
	return f.loginGate
}

func (f *fakeGateway) gateEndShift(err error) *gate {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.endGate = newGate()
	f.endErr = err
	return f.endGate
}

func (f *fakeGateway) queueAssignment(l *domain.Load) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.assignments = append(f.assignments, l)
}

func (f *fakeGateway) gateState(id domain.DriverID) *gate {
	f.mu.Lock()
	defer f.mu.Unlock()
	g := newGate()
	f.stateGates[id] = g
	return g
}

func (f *fakeGateway) Login(_ context.Context, username string) (domain.DriverIdentity, error) {
	f.mu.Lock()
	f.calls["Login"]++
	g := f.loginGate
	f.loginGate = nil
	f.mu.Unlock()

	if g != nil {
		g.wait()
	}
	return domain.DriverIdentity{ID: driverID(username), DisplayName: username}, nil
}

func (f *fakeGateway) StartShift(_ context.Context, id domain.DriverID, _ domain.Coordinate) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls["StartShift"]++
	if f.startErr != nil {
		return f.startErr
	}
	st := f.states[id]
	st.OnShift = true
	f.states[id] = st
	return nil
}

func (f *fakeGateway) EndShift(_ context.Context, id domain.DriverID) error {
	f.mu.Lock()
	f.calls["EndShift"]++
	g := f.endGate
	f.endGate = nil
	f.mu.Unlock()

	if g != nil {
		g.wait()
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.endErr != nil {
		return f.endErr
	}
	f.states[id] = dispatch.DriverState{}
	return nil
}

func (f *fakeGateway) GetState(_ context.Context, id domain.DriverID) (dispatch.DriverState, error) {
	f.mu.Lock()
	f.calls["GetState"]++
	g := f.stateGates[id]
	delete(f.stateGates, id)
	f.mu.Unlock()

	if g != nil {
		g.wait()
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.stateErr != nil {
		return dispatch.DriverState{}, f.stateErr
	}
	st := f.states[id]
	return dispatch.DriverState{OnShift: st.OnShift, Load: domain.CloneLoad(st.Load)}, nil
}

func (f *fakeGateway) GetAssignment(ctx context.Context, id domain.DriverID) (*domain.Load, error) {
	f.mu.Lock()
	f.calls["GetAssignment"]++
	g := f.assignGate
	f.mu.Unlock()

	if g != nil {
		g.wait()
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.assignCtxErrs = append(f.assignCtxErrs, ctx.Err())
	if f.assignErr != nil {
		return nil, f.assignErr
	}
	if len(f.assignments) == 0 {
		return nil, nil
	}
	l := f.assignments[0]
	f.assignments = f.assignments[1:]
	if l != nil {
		st := f.states[id]
		st.Load = domain.CloneLoad(l)
		f.states[id] = st
	}
	return domain.CloneLoad(l), nil
}

func (f *fakeGateway) CompleteStop(_ context.Context, id domain.DriverID, loadID domain.LoadID) (dispatch.CompleteStopResult, error) {
	f.mu.Lock()
	f.calls["CompleteStop"]++
	fn := f.complete
	f.mu.Unlock()
	if fn == nil {
		return dispatch.CompleteStopResult{}, &dispatch.APIError{Status: 500, Code: dispatch.CodeInternal, Message: "not scripted"}
	}
	return fn(id, loadID)
}

func (f *fakeGateway) RejectLoad(_ context.Context, id domain.DriverID, _ domain.LoadID) (dispatch.RejectOutcome, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls["RejectLoad"]++
	if f.rejectErr != nil {
		return dispatch.RejectOutcome{}, f.rejectErr
	}
	f.states[id] = dispatch.DriverState{}
	return dispatch.RejectOutcome{Result: "REJECTED"}, nil
}

func reservedLoad(id domain.LoadID) *domain.Load {
	return &domain.Load{
		ID:          id,
		Status:      domain.LoadStatusReserved,
		CurrentStop: domain.StopPickup,
		Pickup:      domain.NewCoordinate(40.0, -105.2),
		Dropoff:     domain.NewCoordinate(40.1, -105.3),
	}
}

func inProgressLoad(id domain.LoadID) *domain.Load {
	l := reservedLoad(id)
	l.Status = domain.LoadStatusInProgress
	l.CurrentStop = domain.StopDropoff
	return l
}
