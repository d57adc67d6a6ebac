package driversync_test

import (
	"context"
	"errors"
	"runtime"
	"testing"
	"time"

	"github.com/Overland-East-Bay/load-dispatch-client/internal/app/driversync"
	"github.com/Overland-East-Bay/load-dispatch-client/internal/domain"
)

func TestReserver_ConcurrentCallersShareOneCall(t *testing.T) {
	t.Parallel()

	gw := newFakeGateway()
	g := newGate()
	gw.assignGate = g
	gw.queueAssignment(reservedLoad("L1"))
	r := driversync.NewReserver(gw)
	iss := driversync.Issuer{Identity: domain.DriverIdentity{ID: "drv-a"}, Epoch: 1}

	type result struct {
		load *domain.Load
		err  error
	}
	const callers = 8
	results := make(chan result, callers)
	acquire := func() {
		l, err := r.TryAcquire(context.Background(), iss)
		results <- result{l, err}
	}

	go acquire()
	<-g.entered
	if !r.InFlight() {
		t.Fatalf("in-flight flag not set while the call is outstanding")
	}
	for i := 1; i < callers; i++ {
		go acquire()
	}
	waitForWaiters(t, r, callers)
	g.open()

	for i := 0; i < callers; i++ {
		res := <-results
		if res.err != nil || res.load == nil || res.load.ID != "L1" {
			t.Fatalf("caller %d got load=%v err=%v want L1", i, res.load, res.err)
		}
	}
	if gw.count("GetAssignment") != 1 || r.Calls() != 1 {
		t.Fatalf("backend calls=%d/%d want=1", gw.count("GetAssignment"), r.Calls())
	}
	if r.InFlight() {
		t.Fatalf("in-flight flag not cleared after settling")
	}
}

func TestReserver_SeparateEpochsDoNotShare(t *testing.T) {
	t.Parallel()

	gw := newFakeGateway()
	r := driversync.NewReserver(gw)
	a := driversync.Issuer{Identity: domain.DriverIdentity{ID: "drv-a"}, Epoch: 1}
	b := driversync.Issuer{Identity: domain.DriverIdentity{ID: "drv-a"}, Epoch: 2}

	for _, iss := range []driversync.Issuer{a, b} {
		if l, err := r.TryAcquire(context.Background(), iss); err != nil || l != nil {
			t.Fatalf("load=%v err=%v want nil/nil", l, err)
		}
	}
	if gw.count("GetAssignment") != 2 {
		t.Fatalf("calls=%d want=2", gw.count("GetAssignment"))
	}
}

func waitForWaiters(t *testing.T, r *driversync.Reserver, n int) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for r.Waiting() < n {
		if time.Now().After(deadline) {
			t.Fatalf("waiting=%d want=%d", r.Waiting(), n)
		}
		runtime.Gosched()
	}
}

func TestReserver_CallerCancellationDoesNotCancelSharedCall(t *testing.T) {
	t.Parallel()

	gw := newFakeGateway()
	g := newGate()
	gw.assignGate = g
	gw.queueAssignment(reservedLoad("L1"))
	r := driversync.NewReserver(gw)
	iss := driversync.Issuer{Identity: domain.DriverIdentity{ID: "drv-a"}, Epoch: 1}

	firstCtx, cancel := context.WithCancel(context.Background())
	defer cancel()
	first := make(chan error, 1)
	go func() {
		_, err := r.TryAcquire(firstCtx, iss)
		first <- err
	}()
	<-g.entered

	type result struct {
		load *domain.Load
		err  error
	}
	second := make(chan result, 1)
	go func() {
		l, err := r.TryAcquire(context.Background(), iss)
		second <- result{l, err}
	}()
	waitForWaiters(t, r, 2)

	cancel()
	if err := <-first; !errors.Is(err, context.Canceled) {
		t.Fatalf("first caller err=%v want=context.Canceled", err)
	}
	g.open()

	res := <-second
	if res.err != nil || res.load == nil || res.load.ID != "L1" {
		t.Fatalf("second caller got load=%v err=%v want L1", res.load, res.err)
	}
	if errs := gw.assignmentCtxErrs(); len(errs) != 1 || errs[0] != nil {
		t.Fatalf("shared call ctx errs=%v want=[<nil>]", errs)
	}
}

func TestReserver_CancelAllCancelsSharedCall(t *testing.T) {
	t.Parallel()

	gw := newFakeGateway()
	g := newGate()
	gw.assignGate = g
	r := driversync.NewReserver(gw)
	iss := driversync.Issuer{Identity: domain.DriverIdentity{ID: "drv-a"}, Epoch: 1}

	done := make(chan struct{})
	go func() {
		_, _ = r.TryAcquire(context.Background(), iss)
		close(done)
	}()
	<-g.entered

	r.CancelAll()
	g.open()
	<-done

	if errs := gw.assignmentCtxErrs(); len(errs) != 1 || !errors.Is(errs[0], context.Canceled) {
		t.Fatalf("shared call ctx errs=%v want=[context.Canceled]", errs)
	}
}
