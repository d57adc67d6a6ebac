package journal

import (
	"testing"

	"github.com/Overland-East-Bay/load-dispatch-client/internal/adapters/contracttest"
	journalport "github.com/Overland-East-Bay/load-dispatch-client/internal/ports/out/journal"
)

func TestContract_Journal(t *testing.T) {
	contracttest.RunJournal(t, func(t *testing.T) (journalport.Journal, func()) {
		t.Helper()
		return NewStore(), nil
	})
}
