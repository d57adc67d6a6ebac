package journal

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	postgres "github.com/Overland-East-Bay/load-dispatch-client/internal/adapters/postgres"
	"github.com/Overland-East-Bay/load-dispatch-client/internal/domain"
	"github.com/Overland-East-Bay/load-dispatch-client/internal/ports/out/journal"
)

// Store is a Postgres implementation of journal.Journal.
type Store struct {
	pool *pgxpool.Pool
}

func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

func (s *Store) Append(ctx context.Context, e journal.Entry) error {
	if s.pool == nil {
		return errors.New("nil postgres pool")
	}
	if e.ID == "" || e.DriverID == "" {
		return journal.ErrInvalidEntry
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO activity_journal (id, driver_id, kind, state, load_id, message, at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`,
		e.ID,
		string(e.DriverID),
		string(e.Kind),
		e.State,
		string(e.LoadID),
		e.Message,
		e.At.UTC(),
	)
	if err != nil {
		if pe, ok := postgres.AsPgError(err); ok && pe.Code == postgres.UniqueViolationCode {
			return journal.ErrDuplicateEntry
		}
		return err
	}
	return nil
}

func (s *Store) ListByDriver(ctx context.Context, driverID domain.DriverID, limit int) ([]journal.Entry, error) {
	if s.pool == nil {
		return nil, errors.New("nil postgres pool")
	}
	if limit <= 0 {
		limit = journal.DefaultLimit
	}
	rows, err := s.pool.Query(ctx, `
		SELECT id, driver_id, kind, state, load_id, message, at
		FROM activity_journal
		WHERE driver_id = $1
		ORDER BY at DESC, id DESC
		LIMIT $2
	`, string(driverID), limit)
	if err != nil {
		return nil, err
	}
	out, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (journal.Entry, error) {
		var e journal.Entry
		var driver, kind, loadID string
		if err := row.Scan(&e.ID, &driver, &kind, &e.State, &loadID, &e.Message, &e.At); err != nil {
			return journal.Entry{}, err
		}
		e.DriverID = domain.DriverID(driver)
		e.Kind = journal.Kind(kind)
		e.LoadID = domain.LoadID(loadID)
		e.At = e.At.UTC()
		return e, nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}
