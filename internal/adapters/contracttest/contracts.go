package contracttest

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/Overland-East-Bay/load-dispatch-client/internal/domain"
	journalport "github.com/Overland-East-Bay/load-dispatch-client/internal/ports/out/journal"
)

type CleanupFunc = func()

type JournalFactory func(t *testing.T) (journalport.Journal, CleanupFunc)

// RunJournal checks the behavior every journal.Journal implementation must share.
func RunJournal(t *testing.T, newJournal JournalFactory) {
	t.Helper()
	ctx := context.Background()

	j, cleanup := newJournal(t)
	if cleanup != nil {
		t.Cleanup(cleanup)
	}

	// Unique driver ids keep runs against a shared database independent.
	d1 := domain.DriverID("drv-" + uuid.NewString())
	d2 := domain.DriverID("drv-" + uuid.NewString())
	base := time.Unix(1_700_000_000, 0).UTC()

	entries := []journalport.Entry{
		{ID: uuid.NewString(), DriverID: d1, Kind: journalport.KindTransition, State: "OFF_SHIFT", Message: "login", At: base},
		{ID: uuid.NewString(), DriverID: d1, Kind: journalport.KindNotice, State: "ON_SHIFT_UNASSIGNED", Message: "Shift started. Waiting for a load…", At: base.Add(time.Second)},
		{ID: uuid.NewString(), DriverID: d1, Kind: journalport.KindTransition, State: "ON_SHIFT_ASSIGNED", LoadID: "L1", Message: "reserved", At: base.Add(2 * time.Second)},
		{ID: uuid.NewString(), DriverID: d2, Kind: journalport.KindTransition, State: "OFF_SHIFT", Message: "login", At: base},
	}
	for _, e := range entries {
		if err := j.Append(ctx, e); err != nil {
			t.Fatalf("Append(%s): %v", e.Message, err)
		}
	}

	got, err := j.ListByDriver(ctx, d1, 10)
	if err != nil {
		t.Fatalf("ListByDriver: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("len=%d want=3", len(got))
	}
	if got[0].Message != "reserved" || got[2].Message != "login" {
		t.Fatalf("order=%v want newest first", []string{got[0].Message, got[1].Message, got[2].Message})
	}
	if got[0].LoadID != "L1" || got[0].Kind != journalport.KindTransition || got[0].State != "ON_SHIFT_ASSIGNED" {
		t.Fatalf("entry=%+v", got[0])
	}
	if !got[1].At.Equal(base.Add(time.Second)) || got[1].Kind != journalport.KindNotice {
		t.Fatalf("entry=%+v", got[1])
	}

	limited, err := j.ListByDriver(ctx, d1, 2)
	if err != nil || len(limited) != 2 || limited[0].ID != got[0].ID {
		t.Fatalf("limited=%v err=%v", limited, err)
	}

	other, err := j.ListByDriver(ctx, d2, 10)
	if err != nil || len(other) != 1 {
		t.Fatalf("other=%v err=%v", other, err)
	}

	none, err := j.ListByDriver(ctx, domain.DriverID("drv-"+uuid.NewString()), 10)
	if err != nil || len(none) != 0 {
		t.Fatalf("none=%v err=%v", none, err)
	}

	// Ties on At are broken by ID descending.
	d3 := domain.DriverID("drv-" + uuid.NewString())
	for _, id := range []string{"tie-" + uuid.NewString()[:8] + "-a", "tie-" + uuid.NewString()[:8] + "-b"} {
		if err := j.Append(ctx, journalport.Entry{ID: id, DriverID: d3, Kind: journalport.KindTransition, Message: id, At: base}); err != nil {
			t.Fatalf("Append tie: %v", err)
		}
	}
	ties, err := j.ListByDriver(ctx, d3, 10)
	if err != nil || len(ties) != 2 || ties[0].ID < ties[1].ID {
		t.Fatalf("ties=%v err=%v want ID descending", ties, err)
	}

	if err := j.Append(ctx, entries[0]); !errors.Is(err, journalport.ErrDuplicateEntry) {
		t.Fatalf("duplicate err=%v want ErrDuplicateEntry", err)
	}
	if err := j.Append(ctx, journalport.Entry{ID: uuid.NewString(), At: base}); !errors.Is(err, journalport.ErrInvalidEntry) {
		t.Fatalf("invalid err=%v want ErrInvalidEntry", err)
	}
}
