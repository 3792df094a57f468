package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"lifeplan/internal/model"
	"lifeplan/internal/store"
)

// --- UserStats / wallet ---

func (s *Store) GetOrCreateStats(ctx context.Context, defaults model.UserStats) (model.UserStats, error) {
	insert := `INSERT INTO user_stats (user_id, wallet_balance, wallet_salary, wealth_uni_fund, active_uni_plan)
               VALUES ($1, $2, $3, $4, $5)
               ON CONFLICT (user_id) DO NOTHING`
	_, err := s.db.ExecContext(ctx, insert, defaults.UserID, defaults.WalletBalance, defaults.WalletSalary,
		defaults.UniFund, defaults.ActivePlan)
	if err != nil {
		return model.UserStats{}, fmt.Errorf("error creating user stats: %w", err)
	}

	query := `SELECT user_id, wallet_balance, wallet_salary, wealth_uni_fund, active_uni_plan, updated_at
               FROM user_stats WHERE user_id = $1`
	var st model.UserStats
	err = s.db.QueryRowContext(ctx, query, defaults.UserID).Scan(
		&st.UserID, &st.WalletBalance, &st.WalletSalary, &st.UniFund, &st.ActivePlan, &st.UpdatedAt)
	if err != nil {
		return model.UserStats{}, fmt.Errorf("error getting user stats: %w", err)
	}
	return st, nil
}

// ApplyWalletChange updates the stats row and appends history in one
// transaction.
func (s *Store) ApplyWalletChange(ctx context.Context, stats model.UserStats, entries ...model.WalletEntry) error {
	txn, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction for wallet change: %w", err)
	}
	defer txn.Rollback()

	update := `UPDATE user_stats
               SET wallet_balance = $1, wallet_salary = $2, wealth_uni_fund = $3, active_uni_plan = $4, updated_at = NOW()
               WHERE user_id = $5`
	res, err := txn.ExecContext(ctx, update, stats.WalletBalance, stats.WalletSalary, stats.UniFund, stats.ActivePlan, stats.UserID)
	if err != nil {
		return fmt.Errorf("error updating user stats: %w", err)
	}
	if err := requireRow(res); err != nil {
		return err
	}

	if len(entries) > 0 {
		stmt, err := txn.PrepareContext(ctx, `INSERT INTO wallet_history (id, user_id, date, amount, description, type)
                                             VALUES ($1, $2, $3, $4, $5, $6)`)
		if err != nil {
			return fmt.Errorf("failed to prepare wallet history insert: %w", err)
		}
		defer stmt.Close()

		for _, e := range entries {
			if _, err := stmt.ExecContext(ctx, e.ID, e.UserID, e.Date, e.Amount, e.Description, e.Type); err != nil {
				if isUniqueViolation(err) {
					return fmt.Errorf("wallet entry %s: %w", e.ID, store.ErrConflict)
				}
				return fmt.Errorf("error inserting wallet history: %w", err)
			}
		}
	}

	return txn.Commit()
}

func (s *Store) ListWalletEntries(ctx context.Context, userID uuid.UUID, limit int) ([]model.WalletEntry, error) {
	query := `SELECT id, user_id, date::text, amount, description, type
               FROM wallet_history WHERE user_id = $1
               ORDER BY seq DESC`
	args := []any{userID}
	if limit > 0 {
		query += ` LIMIT $2`
		args = append(args, limit)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("error listing wallet history: %w", err)
	}
	defer rows.Close()

	out := make([]model.WalletEntry, 0)
	for rows.Next() {
		var e model.WalletEntry
		if err := rows.Scan(&e.ID, &e.UserID, &e.Date, &e.Amount, &e.Description, &e.Type); err != nil {
			return nil, fmt.Errorf("error scanning wallet history: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// --- Coaching ---

func (s *Store) AddCoachingSession(ctx context.Context, cs model.CoachingSession) error {
	query := `INSERT INTO coaching_sessions (id, user_id, date, client_name, amount, location, paid)
               VALUES ($1, $2, $3, $4, $5, $6, $7)`
	_, err := s.db.ExecContext(ctx, query, cs.ID, cs.UserID, cs.Date, cs.ClientName, cs.Amount, cs.Location, cs.Paid)
	if err != nil {
		if isUniqueViolation(err) {
			return store.ErrConflict
		}
		return fmt.Errorf("error creating coaching session: %w", err)
	}
	return nil
}

func (s *Store) ListCoachingSessions(ctx context.Context, userID uuid.UUID, since string) ([]model.CoachingSession, error) {
	query := `SELECT id, user_id, date::text, client_name, amount, location, paid
               FROM coaching_sessions
               WHERE user_id = $1`
	args := []any{userID}
	if since != "" {
		query += ` AND date >= $2`
		args = append(args, since)
	}
	query += ` ORDER BY date DESC`
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("error listing coaching sessions: %w", err)
	}
	defer rows.Close()

	out := make([]model.CoachingSession, 0)
	for rows.Next() {
		var cs model.CoachingSession
		if err := rows.Scan(&cs.ID, &cs.UserID, &cs.Date, &cs.ClientName, &cs.Amount, &cs.Location, &cs.Paid); err != nil {
			return nil, fmt.Errorf("error scanning coaching session: %w", err)
		}
		out = append(out, cs)
	}
	return out, rows.Err()
}

// --- Expenses ---

func (s *Store) AddPriorityExpense(ctx context.Context, p model.PriorityExpense) error {
	query := `INSERT INTO priority_expenses (id, user_id, title, amount, target_date, is_fulfilled)
               VALUES ($1, $2, $3, $4, $5, $6)`
	if _, err := s.db.ExecContext(ctx, query, p.ID, p.UserID, p.Title, p.Amount, p.TargetDate, p.IsFulfilled); err != nil {
		return fmt.Errorf("error creating priority expense: %w", err)
	}
	return nil
}

func (s *Store) ListOpenPriorityExpenses(ctx context.Context, userID uuid.UUID) ([]model.PriorityExpense, error) {
	query := `SELECT id, user_id, title, amount, target_date::text, is_fulfilled
               FROM priority_expenses
               WHERE user_id = $1 AND NOT is_fulfilled
               ORDER BY target_date`
	rows, err := s.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("error listing priority expenses: %w", err)
	}
	defer rows.Close()

	out := make([]model.PriorityExpense, 0)
	for rows.Next() {
		var p model.PriorityExpense
		if err := rows.Scan(&p.ID, &p.UserID, &p.Title, &p.Amount, &p.TargetDate, &p.IsFulfilled); err != nil {
			return nil, fmt.Errorf("error scanning priority expense: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (s *Store) AddRecurringExpense(ctx context.Context, e model.RecurringExpense) error {
	query := `INSERT INTO recurring_expenses (id, user_id, title, amount, period_months)
               VALUES ($1, $2, $3, $4, $5)`
	if _, err := s.db.ExecContext(ctx, query, e.ID, e.UserID, e.Title, e.Amount, e.PeriodMonths); err != nil {
		return fmt.Errorf("error creating recurring expense: %w", err)
	}
	return nil
}

func (s *Store) ListRecurringExpenses(ctx context.Context, userID uuid.UUID) ([]model.RecurringExpense, error) {
	query := `SELECT id, user_id, title, amount, period_months FROM recurring_expenses WHERE user_id = $1 ORDER BY title`
	rows, err := s.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("error listing recurring expenses: %w", err)
	}
	defer rows.Close()

	out := make([]model.RecurringExpense, 0)
	for rows.Next() {
		var e model.RecurringExpense
		if err := rows.Scan(&e.ID, &e.UserID, &e.Title, &e.Amount, &e.PeriodMonths); err != nil {
			return nil, fmt.Errorf("error scanning recurring expense: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// --- Fitness ---

func (s *Store) ListFitnessLogs(ctx context.Context, userID uuid.UUID) ([]model.FitnessLog, error) {
	query := `SELECT id, user_id, phase, date::text, description, distance_cmd, completed
               FROM fitness_logs WHERE user_id = $1 ORDER BY date`
	rows, err := s.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("error listing fitness logs: %w", err)
	}
	defer rows.Close()

	out := make([]model.FitnessLog, 0)
	for rows.Next() {
		var l model.FitnessLog
		if err := rows.Scan(&l.ID, &l.UserID, &l.Phase, &l.Date, &l.Description, &l.DistanceCmd, &l.Completed); err != nil {
			return nil, fmt.Errorf("error scanning fitness log: %w", err)
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

func (s *Store) InsertFitnessLogs(ctx context.Context, logs []model.FitnessLog) error {
	if len(logs) == 0 {
		return nil
	}

	txn, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction for fitness logs: %w", err)
	}
	defer txn.Rollback()

	stmt, err := txn.PrepareContext(ctx, `INSERT INTO fitness_logs (id, user_id, phase, date, description, distance_cmd, completed)
                                         VALUES ($1, $2, $3, $4, $5, $6, $7)`)
	if err != nil {
		return fmt.Errorf("failed to prepare fitness log insert: %w", err)
	}
	defer stmt.Close()

	for _, l := range logs {
		if _, err := stmt.ExecContext(ctx, l.ID, l.UserID, l.Phase, l.Date, l.Description, l.DistanceCmd, l.Completed); err != nil {
			return fmt.Errorf("error inserting fitness log for %s: %w", l.Date, err)
		}
	}
	return txn.Commit()
}

func (s *Store) CompleteFitnessOn(ctx context.Context, userID uuid.UUID, date string) (int, error) {
	res, err := s.db.ExecContext(ctx, `UPDATE fitness_logs SET completed = TRUE WHERE user_id = $1 AND date = $2`, userID, date)
	if err != nil {
		return 0, fmt.Errorf("error completing fitness log: %w", err)
	}
	n, err := res.RowsAffected()
	return int(n), err
}

func (s *Store) ToggleFitnessLog(ctx context.Context, userID, id uuid.UUID) (model.FitnessLog, error) {
	query := `UPDATE fitness_logs SET completed = NOT completed
               WHERE id = $1 AND user_id = $2
               RETURNING id, user_id, phase, date::text, description, distance_cmd, completed`
	var l model.FitnessLog
	err := s.db.QueryRowContext(ctx, query, id, userID).
		Scan(&l.ID, &l.UserID, &l.Phase, &l.Date, &l.Description, &l.DistanceCmd, &l.Completed)
	if errors.Is(err, sql.ErrNoRows) {
		return model.FitnessLog{}, store.ErrNotFound
	}
	if err != nil {
		return model.FitnessLog{}, fmt.Errorf("error toggling fitness log: %w", err)
	}
	return l, nil
}

// Close releases the pool.
func (s *Store) Close() error {
	return s.db.Close()
}
