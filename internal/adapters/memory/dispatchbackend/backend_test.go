package dispatchbackend

import (
	"context"
	"fmt"
	"testing"
	"time"

	memclock "github.com/Overland-East-Bay/load-dispatch-client/internal/adapters/memory/clock"
	"github.com/Overland-East-Bay/load-dispatch-client/internal/domain"
	"github.com/Overland-East-Bay/load-dispatch-client/internal/ports/out/dispatch"
)

var (
	boulder = domain.Coordinate{Lat: 40.0, Lng: -105.2}
	denver  = domain.Coordinate{Lat: 39.74, Lng: -104.99}
	golden  = domain.Coordinate{Lat: 39.75, Lng: -105.22}
)

func newTestBackend(t *testing.T) (*Backend, *memclock.ManualClock) {
	t.Helper()
	clk := memclock.NewManualClock(time.Unix(1_700_000_000, 0).UTC())
	b := New(clk, time.Minute)
	n := 0
	b.SetNewIDForTest(func() string {
		n++
		return fmt.Sprintf("id-%02d", n)
	})
	return b, clk
}

func onShiftDriver(t *testing.T, b *Backend, name string) domain.DriverID {
	t.Helper()
	ctx := context.Background()
	id, err := b.Login(ctx, name)
	if err != nil {
		t.Fatalf("Login() err=%v", err)
	}
	if err := b.StartShift(ctx, id.ID, boulder); err != nil {
		t.Fatalf("StartShift() err=%v", err)
	}
	return id.ID
}

func wantCode(t *testing.T, err error, code string) {
	t.Helper()
	ae, ok := dispatch.AsAPIError(err)
	if !ok {
		t.Fatalf("err=%v want APIError %s", err, code)
	}
	if ae.Code != code {
		t.Fatalf("code=%s want=%s (%v)", ae.Code, code, err)
	}
}

func TestBackend_LoginIsCaseInsensitiveAndNormalized(t *testing.T) {
	t.Parallel()
	b, _ := newTestBackend(t)
	ctx := context.Background()

	a, err := b.Login(ctx, "  Alex   Smith ")
	if err != nil {
		t.Fatalf("Login() err=%v", err)
	}
	if a.DisplayName != "Alex Smith" {
		t.Fatalf("DisplayName=%q want=%q", a.DisplayName, "Alex Smith")
	}
	again, err := b.Login(ctx, "alex smith")
	if err != nil {
		t.Fatalf("Login() err=%v", err)
	}
	if again.ID != a.ID {
		t.Fatalf("ID=%s want=%s", again.ID, a.ID)
	}

	_, err = b.Login(ctx, "   ")
	wantCode(t, err, dispatch.CodeValidation)
}

func TestBackend_ShiftPreconditions(t *testing.T) {
	t.Parallel()
	b, _ := newTestBackend(t)
	ctx := context.Background()

	wantCode(t, b.StartShift(ctx, "missing", boulder), dispatch.CodeDriverNotFound)

	id, _ := b.Login(ctx, "alex")
	wantCode(t, b.StartShift(ctx, id.ID, domain.Coordinate{Lat: 91}), dispatch.CodeValidation)
	wantCode(t, b.EndShift(ctx, id.ID), dispatch.CodeShiftNotActive)

	if err := b.StartShift(ctx, id.ID, boulder); err != nil {
		t.Fatalf("StartShift() err=%v", err)
	}
	wantCode(t, b.StartShift(ctx, id.ID, boulder), dispatch.CodeShiftAlreadyActive)

	if _, err := b.CreateLoad(ctx, denver, golden); err != nil {
		t.Fatalf("CreateLoad() err=%v", err)
	}
	if _, err := b.GetAssignment(ctx, id.ID); err != nil {
		t.Fatalf("GetAssignment() err=%v", err)
	}
	wantCode(t, b.EndShift(ctx, id.ID), dispatch.CodeActiveLoadPresent)
}

func TestBackend_AssignmentIsFIFOAndIdempotent(t *testing.T) {
	t.Parallel()
	b, _ := newTestBackend(t)
	ctx := context.Background()

	first, _ := b.CreateLoad(ctx, denver, golden)
	second, _ := b.CreateLoad(ctx, golden, denver)

	alex := onShiftDriver(t, b, "alex")
	sam := onShiftDriver(t, b, "sam")

	got, err := b.GetAssignment(ctx, alex)
	if err != nil || got == nil {
		t.Fatalf("GetAssignment()=%v err=%v", got, err)
	}
	if got.ID != first.ID || got.Status != domain.LoadStatusReserved || got.CurrentStop != domain.StopPickup {
		t.Fatalf("GetAssignment()=%+v want reserved %s at pickup", got, first.ID)
	}
	again, _ := b.GetAssignment(ctx, alex)
	if again == nil || again.ID != first.ID {
		t.Fatalf("second GetAssignment()=%v want %s", again, first.ID)
	}

	other, _ := b.GetAssignment(ctx, sam)
	if other == nil || other.ID != second.ID {
		t.Fatalf("GetAssignment(sam)=%v want %s", other, second.ID)
	}

	nobody := onShiftDriver(t, b, "kim")
	none, err := b.GetAssignment(ctx, nobody)
	if err != nil || none != nil {
		t.Fatalf("GetAssignment(kim)=%v err=%v want nil", none, err)
	}
}

func TestBackend_AssignmentRequiresShift(t *testing.T) {
	t.Parallel()
	b, _ := newTestBackend(t)
	ctx := context.Background()

	id, _ := b.Login(ctx, "alex")
	_, err := b.GetAssignment(ctx, id.ID)
	wantCode(t, err, dispatch.CodeShiftNotActive)
}

func TestBackend_CompleteStopLifecycle(t *testing.T) {
	t.Parallel()
	b, _ := newTestBackend(t)
	ctx := context.Background()

	first, _ := b.CreateLoad(ctx, denver, golden)
	next, _ := b.CreateLoad(ctx, golden, boulder)
	alex := onShiftDriver(t, b, "alex")
	if _, err := b.GetAssignment(ctx, alex); err != nil {
		t.Fatalf("GetAssignment() err=%v", err)
	}

	res, err := b.CompleteStop(ctx, alex, first.ID)
	if err != nil {
		t.Fatalf("CompleteStop(pickup) err=%v", err)
	}
	if res.Completed.Status != domain.LoadStatusInProgress || res.Completed.CurrentStop != domain.StopDropoff || res.NextAssignment != nil {
		t.Fatalf("pickup result=%+v", res)
	}

	_, err = b.RejectLoad(ctx, alex, first.ID)
	wantCode(t, err, dispatch.CodeLoadStateConflict)

	res, err = b.CompleteStop(ctx, alex, first.ID)
	if err != nil {
		t.Fatalf("CompleteStop(dropoff) err=%v", err)
	}
	if res.Completed.Status != domain.LoadStatusCompleted || res.Completed.CurrentStop != domain.StopNone {
		t.Fatalf("dropoff completed=%+v", res.Completed)
	}
	if res.NextAssignment == nil || res.NextAssignment.ID != next.ID || res.NextAssignment.Status != domain.LoadStatusReserved {
		t.Fatalf("dropoff next=%+v want reserved %s", res.NextAssignment, next.ID)
	}

	// Completing a finished load again is a no-op that reports the open load.
	res, err = b.CompleteStop(ctx, alex, first.ID)
	if err != nil {
		t.Fatalf("CompleteStop(completed) err=%v", err)
	}
	if res.NextAssignment == nil || res.NextAssignment.ID != next.ID {
		t.Fatalf("idempotent next=%+v want %s", res.NextAssignment, next.ID)
	}
}

func TestBackend_CompleteStopOwnership(t *testing.T) {
	t.Parallel()
	b, _ := newTestBackend(t)
	ctx := context.Background()

	l, _ := b.CreateLoad(ctx, denver, golden)
	alex := onShiftDriver(t, b, "alex")
	sam := onShiftDriver(t, b, "sam")
	_, _ = b.GetAssignment(ctx, alex)

	_, err := b.CompleteStop(ctx, sam, l.ID)
	wantCode(t, err, dispatch.CodeAccessDenied)
	_, err = b.CompleteStop(ctx, alex, "nope")
	wantCode(t, err, dispatch.CodeLoadNotFound)
}

func TestBackend_ReservationExpiry(t *testing.T) {
	t.Parallel()
	b, clk := newTestBackend(t)
	ctx := context.Background()

	l, _ := b.CreateLoad(ctx, denver, golden)
	alex := onShiftDriver(t, b, "alex")
	_, _ = b.GetAssignment(ctx, alex)

	clk.Advance(time.Minute + time.Second)

	_, err := b.CompleteStop(ctx, alex, l.ID)
	wantCode(t, err, dispatch.CodeReservationExpired)

	loads, _ := b.ListLoads(ctx, domain.LoadStatusAwaitingDriver)
	if len(loads) != 1 || loads[0].ID != l.ID || loads[0].AssignedDriver != nil {
		t.Fatalf("awaiting loads=%+v want released %s", loads, l.ID)
	}
}

func TestBackend_ExpiryReleasedByStateStillReportsExpired(t *testing.T) {
	t.Parallel()
	b, clk := newTestBackend(t)
	ctx := context.Background()

	l, _ := b.CreateLoad(ctx, denver, golden)
	alex := onShiftDriver(t, b, "alex")
	_, _ = b.GetAssignment(ctx, alex)

	clk.Advance(2 * time.Minute)
	st, err := b.GetState(ctx, alex)
	if err != nil {
		t.Fatalf("GetState() err=%v", err)
	}
	if !st.OnShift || st.Load != nil {
		t.Fatalf("GetState()=%+v want on shift without load", st)
	}

	_, err = b.CompleteStop(ctx, alex, l.ID)
	wantCode(t, err, dispatch.CodeReservationExpired)
}

func TestBackend_RejectEndsShift(t *testing.T) {
	t.Parallel()
	b, _ := newTestBackend(t)
	ctx := context.Background()

	l, _ := b.CreateLoad(ctx, denver, golden)
	alex := onShiftDriver(t, b, "alex")
	_, _ = b.GetAssignment(ctx, alex)

	out, err := b.RejectLoad(ctx, alex, l.ID)
	if err != nil {
		t.Fatalf("RejectLoad() err=%v", err)
	}
	if out.Result != rejectResult || out.ShiftEndedAt.IsZero() {
		t.Fatalf("RejectLoad()=%+v", out)
	}
	st, _ := b.GetState(ctx, alex)
	if st.OnShift || st.Load != nil {
		t.Fatalf("GetState()=%+v want off shift", st)
	}

	out, err = b.RejectLoad(ctx, alex, l.ID)
	if err != nil || out.Result != rejectNoop {
		t.Fatalf("repeat RejectLoad()=%+v err=%v want no-op", out, err)
	}
}

func TestBackend_CreateLoadValidation(t *testing.T) {
	t.Parallel()
	b, _ := newTestBackend(t)
	ctx := context.Background()

	_, err := b.CreateLoad(ctx, domain.Coordinate{Lat: 91}, golden)
	wantCode(t, err, dispatch.CodeValidation)
	_, err = b.CreateLoad(ctx, denver, denver)
	wantCode(t, err, dispatch.CodeValidation)

	all, _ := b.ListLoads(ctx, "")
	if len(all) != 0 {
		t.Fatalf("ListLoads()=%d want=0", len(all))
	}
}
