package postgres

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
)

func TestAsPgError(t *testing.T) {
	t.Parallel()

	wrapped := fmt.Errorf("insert: %w", &pgconn.PgError{Code: UniqueViolationCode, ConstraintName: "activity_journal_pkey"})
	pe, ok := AsPgError(wrapped)
	if !ok || pe.Code != UniqueViolationCode {
		t.Fatalf("AsPgError()=%v,%v want unique violation", pe, ok)
	}
	if _, ok := AsPgError(errors.New("boom")); ok {
		t.Fatalf("AsPgError(plain)=true want=false")
	}
}

func TestNewPool_RejectsMalformedDSN(t *testing.T) {
	t.Parallel()
	if _, err := NewPool(context.Background(), "postgres://%zz", PoolOptions{}); err == nil {
		t.Fatalf("NewPool() err=nil want parse error")
	}
}

func TestMigrationsAreEmbedded(t *testing.T) {
	t.Parallel()
	names, err := fs.Glob(migrationFS, "migrations/*.sql")
	if err != nil || len(names) == 0 {
		t.Fatalf("migrations=%v err=%v", names, err)
	}
}
