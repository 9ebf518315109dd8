// Package pgstore keeps license records in PostgreSQL.
package pgstore

import (
	"context"
	"embed"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/dmitrymomot/licensekit/pkg/license"
	"github.com/dmitrymomot/licensekit/pkg/pg"
)

//go:embed migrations/*.sql
var migrations embed.FS

// Migrations returns the schema of the license_records table.
func Migrations() pg.Migrations {
	return pg.Migrations{FS: migrations, Dir: "migrations"}
}

// DB is satisfied by *pgxpool.Pool and pgx.Tx.
type DB interface {
	Begin(ctx context.Context) (pgx.Tx, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Store implements license.Store.
type Store struct {
	db DB
}

// New panics if db is nil.
func New(db DB) *Store {
	if db == nil {
		panic("pgstore: db is required")
	}
	return &Store{db: db}
}

const columns = `id, user_id, license_type, status, created_at, expires_at,
	analyses_used, setups_saved, vehicles_created, COALESCE(order_id, ''), superseded_by`

func (s *Store) ListByUser(ctx context.Context, userID string) ([]license.Record, error) {
	rows, err := s.db.Query(ctx,
		`SELECT `+columns+` FROM license_records WHERE user_id = $1 ORDER BY created_at DESC, id`, userID)
	if err != nil {
		return nil, errors.Join(license.ErrStoreFailure, err)
	}
	records, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (license.Record, error) {
		return scanRecord(row)
	})
	if err != nil {
		return nil, errors.Join(license.ErrStoreFailure, err)
	}
	return records, nil
}

func (s *Store) Issue(ctx context.Context, rec license.Record) (license.Record, error) {
	if err := license.ValidateRecord(rec); err != nil {
		return license.Record{}, err
	}

	var out license.Record
	err := pgx.BeginFunc(ctx, s.db, func(tx pgx.Tx) error {
		if rec.OrderID != "" {
			existing, err := scanRecord(tx.QueryRow(ctx,
				`SELECT `+columns+` FROM license_records WHERE order_id = $1`, rec.OrderID))
			if err == nil {
				out = existing
				return nil
			}
			if !pg.IsNotFoundError(err) {
				return err
			}
		}

		if _, err := tx.Exec(ctx,
			`INSERT INTO license_records
			 (id, user_id, license_type, status, created_at, expires_at,
			  analyses_used, setups_saved, vehicles_created, order_id)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, NULLIF($10, ''))`,
			rec.ID, rec.UserID, rec.Type, rec.Status, rec.CreatedAt, rec.ExpiresAt,
			rec.AnalysesUsed, rec.SetupsSaved, rec.VehiclesCreated, rec.OrderID,
		); err != nil {
			return err
		}

		if _, err := tx.Exec(ctx,
			`UPDATE license_records SET superseded_by = $1
			 WHERE user_id = $2 AND status = $3 AND superseded_by IS NULL AND id <> $1`,
			rec.ID, rec.UserID, license.StatusActive,
		); err != nil {
			return err
		}
		out = rec.Clone()
		out.SupersededBy = nil
		return nil
	})

	// A concurrent Issue for the same order won the unique index; return its record.
	if pg.IsDuplicateKeyError(err) && rec.OrderID != "" {
		existing, qerr := scanRecord(s.db.QueryRow(ctx,
			`SELECT `+columns+` FROM license_records WHERE order_id = $1`, rec.OrderID))
		if qerr == nil {
			return existing, nil
		}
		err = errors.Join(err, qerr)
	}
	if err != nil {
		return license.Record{}, errors.Join(license.ErrStoreFailure, err)
	}
	return out, nil
}

func (s *Store) HasType(ctx context.Context, userID string, t license.Type) (bool, error) {
	var ok bool
	err := s.db.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM license_records WHERE user_id = $1 AND license_type = $2)`,
		userID, t,
	).Scan(&ok)
	if err != nil {
		return false, errors.Join(license.ErrStoreFailure, err)
	}
	return ok, nil
}

func (s *Store) IncrementUsage(ctx context.Context, licenseID uuid.UUID, action license.Action, delta, limit int64) (int64, error) {
	if err := license.ValidateIncrement(action, delta); err != nil {
		return 0, err
	}
	col := usageColumns[action]

	var n int64
	err := s.db.QueryRow(ctx,
		fmt.Sprintf(`UPDATE license_records SET %[1]s = %[1]s + $2
			WHERE id = $1 AND ($3 < 0 OR %[1]s + $2 <= $3)
			RETURNING %[1]s`, col),
		licenseID, delta, limit,
	).Scan(&n)
	if pg.IsNotFoundError(err) {
		return s.refusedIncrement(ctx, licenseID, col)
	}
	if err != nil {
		return 0, errors.Join(license.ErrStoreFailure, err)
	}
	return n, nil
}

// refusedIncrement tells a missing record from a full counter after the
// conditional update matched no row.
func (s *Store) refusedIncrement(ctx context.Context, licenseID uuid.UUID, col string) (int64, error) {
	var n int64
	err := s.db.QueryRow(ctx,
		fmt.Sprintf(`SELECT %s FROM license_records WHERE id = $1`, col),
		licenseID,
	).Scan(&n)
	if pg.IsNotFoundError(err) {
		return 0, license.ErrRecordNotFound
	}
	if err != nil {
		return 0, errors.Join(license.ErrStoreFailure, err)
	}
	return n, license.ErrLimitReached
}

var usageColumns = map[license.Action]string{
	license.ActionVehicle:  "vehicles_created",
	license.ActionAnalysis: "analyses_used",
	license.ActionSetup:    "setups_saved",
}

func scanRecord(row pgx.Row) (license.Record, error) {
	var rec license.Record
	err := row.Scan(
		&rec.ID, &rec.UserID, &rec.Type, &rec.Status, &rec.CreatedAt, &rec.ExpiresAt,
		&rec.AnalysesUsed, &rec.SetupsSaved, &rec.VehiclesCreated, &rec.OrderID, &rec.SupersededBy,
	)
	if err != nil {
		return license.Record{}, err
	}
	rec.CreatedAt = rec.CreatedAt.UTC()
	if rec.ExpiresAt != nil {
		t := rec.ExpiresAt.UTC()
		rec.ExpiresAt = &t
	}
	return rec, nil
}
