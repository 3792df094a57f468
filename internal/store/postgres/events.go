package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"lifeplan/internal/model"
	"lifeplan/internal/store"
)

const uniqueViolation = "23505"

// Store is the PostgreSQL store.Store.
type Store struct {
	db *sql.DB
}

func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

var _ store.Store = (*Store)(nil)

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == uniqueViolation
}

func encodeMeta(m model.Meta) (string, error) {
	if m == nil {
		return "{}", nil
	}
	b, err := json.Marshal(m)
	return string(b), err
}

func decodeMeta(raw []byte) (model.Meta, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	var m model.Meta
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, fmt.Errorf("error decoding event meta: %w", err)
	}
	return m, nil
}

const eventColumns = `id, user_id, series_id, date::text, activity, location, type, time_range,
       is_priority, is_goal, end_date, meta, completed, created_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEvent(row rowScanner) (model.EventRecord, error) {
	var (
		r    model.EventRecord
		meta []byte
	)
	err := row.Scan(&r.ID, &r.UserID, &r.SeriesID, &r.Date, &r.Activity, &r.Location, &r.Type, &r.TimeRange,
		&r.IsPriority, &r.IsGoal, &r.EndDate, &meta, &r.Completed, &r.CreatedAt)
	if err != nil {
		return r, err
	}
	r.Meta, err = decodeMeta(meta)
	return r, err
}

// InsertEvents writes all records in one transaction; either every record is
// stored or none is.
func (s *Store) InsertEvents(ctx context.Context, recs []model.EventRecord) error {
	if len(recs) == 0 {
		return nil
	}

	txn, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction for event insert: %w", err)
	}
	defer txn.Rollback()

	stmt, err := txn.PrepareContext(ctx, `INSERT INTO events
        (id, user_id, series_id, date, activity, location, type, time_range, is_priority, is_goal, end_date, meta, completed)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`)
	if err != nil {
		return fmt.Errorf("failed to prepare event insert: %w", err)
	}
	defer stmt.Close()

	for _, r := range recs {
		meta, err := encodeMeta(r.Meta)
		if err != nil {
			return err
		}
		_, err = stmt.ExecContext(ctx, r.ID, r.UserID, r.SeriesID, r.Date, r.Activity, r.Location, r.Type, r.TimeRange,
			r.IsPriority, r.IsGoal, r.EndDate, meta, r.Completed)
		if err != nil {
			if isUniqueViolation(err) {
				return fmt.Errorf("event %s: %w", r.ID, store.ErrConflict)
			}
			return fmt.Errorf("error inserting event %s on %s: %w", r.ID, r.Date, err)
		}
	}

	return txn.Commit()
}

func (s *Store) ListEvents(ctx context.Context, userID uuid.UUID, from, to string) ([]model.EventRecord, error) {
	query := `SELECT ` + eventColumns + `
               FROM events
               WHERE user_id = $1 AND date BETWEEN $2 AND $3
               ORDER BY date, created_at, id`
	rows, err := s.db.QueryContext(ctx, query, userID, from, to)
	if err != nil {
		return nil, fmt.Errorf("error listing events: %w", err)
	}
	defer rows.Close()

	out := make([]model.EventRecord, 0)
	for rows.Next() {
		r, err := scanEvent(rows)
		if err != nil {
			return nil, fmt.Errorf("error scanning event: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *Store) GetEvent(ctx context.Context, userID, id uuid.UUID) (model.EventRecord, error) {
	query := `SELECT ` + eventColumns + ` FROM events WHERE id = $1 AND user_id = $2`
	r, err := scanEvent(s.db.QueryRowContext(ctx, query, id, userID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.EventRecord{}, store.ErrNotFound
		}
		return model.EventRecord{}, fmt.Errorf("error getting event: %w", err)
	}
	return r, nil
}

const templateSet = `activity = $1, location = $2, type = $3, time_range = $4,
                   is_priority = $5, is_goal = $6, end_date = $7, meta = $8`

func templateArgs(tpl model.EventTemplate) ([]any, error) {
	meta, err := encodeMeta(tpl.Meta)
	if err != nil {
		return nil, err
	}
	return []any{tpl.Activity, tpl.Location, tpl.Type, tpl.TimeRange, tpl.IsPriority, tpl.IsGoal, tpl.EndDate, meta}, nil
}

func (s *Store) UpdateEvent(ctx context.Context, userID, id uuid.UUID, tpl model.EventTemplate) error {
	args, err := templateArgs(tpl)
	if err != nil {
		return err
	}
	query := `UPDATE events SET ` + templateSet + ` WHERE id = $9 AND user_id = $10`
	res, err := s.db.ExecContext(ctx, query, append(args, id, userID)...)
	if err != nil {
		return fmt.Errorf("error updating event: %w", err)
	}
	return requireRow(res)
}

func (s *Store) UpdateSeriesFrom(ctx context.Context, userID, seriesID uuid.UUID, fromDate string, tpl model.EventTemplate) (int, error) {
	args, err := templateArgs(tpl)
	if err != nil {
		return 0, err
	}
	query := `UPDATE events SET ` + templateSet + `
               WHERE series_id = $9 AND user_id = $10 AND date >= $11`
	res, err := s.db.ExecContext(ctx, query, append(args, seriesID, userID, fromDate)...)
	if err != nil {
		return 0, fmt.Errorf("error updating event series: %w", err)
	}
	n, err := res.RowsAffected()
	return int(n), err
}

func (s *Store) DeleteEvent(ctx context.Context, userID, id uuid.UUID) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM events WHERE id = $1 AND user_id = $2`, id, userID)
	if err != nil {
		return fmt.Errorf("error deleting event: %w", err)
	}
	return requireRow(res)
}

func (s *Store) DeleteSeriesFrom(ctx context.Context, userID, seriesID uuid.UUID, fromDate string) (int, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM events WHERE series_id = $1 AND user_id = $2 AND date >= $3`,
		seriesID, userID, fromDate)
	if err != nil {
		return 0, fmt.Errorf("error deleting event series: %w", err)
	}
	n, err := res.RowsAffected()
	return int(n), err
}

func (s *Store) SetEventCompleted(ctx context.Context, userID, id uuid.UUID, completed bool) (bool, error) {
	res, err := s.db.ExecContext(ctx, `UPDATE events SET completed = $1 WHERE id = $2 AND user_id = $3 AND completed <> $1`,
		completed, id, userID)
	if err != nil {
		return false, fmt.Errorf("error completing event: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	if n > 0 {
		return true, nil
	}

	var exists bool
	err = s.db.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM events WHERE id = $1 AND user_id = $2)`,
		id, userID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("error checking event: %w", err)
	}
	if !exists {
		return false, store.ErrNotFound
	}
	return false, nil
}

func requireRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return store.ErrNotFound
	}
	return nil
}
