// Package store defines the persistence collaborator and an in-memory
// implementation. The PostgreSQL implementation lives in store/postgres.
package store

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"lifeplan/internal/model"
)

// ErrNotFound is returned when a row does not exist or belongs to another user.
var ErrNotFound = errors.New("store: not found")

// ErrConflict is returned when an insert collides with an existing id.
var ErrConflict = errors.New("store: conflict")

// Store is the persistence collaborator used by the app services. Every
// method is scoped to a single user. Dates are YYYY-MM-DD strings and ranges
// are inclusive.
type Store interface {
	InsertEvents(ctx context.Context, recs []model.EventRecord) error
	ListEvents(ctx context.Context, userID uuid.UUID, from, to string) ([]model.EventRecord, error)
	GetEvent(ctx context.Context, userID, id uuid.UUID) (model.EventRecord, error)
	// UpdateEvent replaces the template of one record.
	UpdateEvent(ctx context.Context, userID, id uuid.UUID, tpl model.EventTemplate) error
	// UpdateSeriesFrom replaces the template of every record in the series
	// dated on or after fromDate and returns how many changed.
	UpdateSeriesFrom(ctx context.Context, userID, seriesID uuid.UUID, fromDate string, tpl model.EventTemplate) (int, error)
	DeleteEvent(ctx context.Context, userID, id uuid.UUID) error
	DeleteSeriesFrom(ctx context.Context, userID, seriesID uuid.UUID, fromDate string) (int, error)
	// SetEventCompleted sets the completed flag and reports whether it
	// changed. Only one of several concurrent callers setting the same value
	// sees true.
	SetEventCompleted(ctx context.Context, userID, id uuid.UUID, completed bool) (bool, error)

	// GetOrCreateStats returns the user's stats, inserting defaults on first use.
	GetOrCreateStats(ctx context.Context, defaults model.UserStats) (model.UserStats, error)
	// ApplyWalletChange stores stats and appends history entries atomically.
	ApplyWalletChange(ctx context.Context, stats model.UserStats, entries ...model.WalletEntry) error
	ListWalletEntries(ctx context.Context, userID uuid.UUID, limit int) ([]model.WalletEntry, error)

	// AddCoachingSession returns ErrConflict when the id is already booked.
	AddCoachingSession(ctx context.Context, s model.CoachingSession) error
	// ListCoachingSessions returns sessions dated on or after since (empty
	// means all), newest first.
	ListCoachingSessions(ctx context.Context, userID uuid.UUID, since string) ([]model.CoachingSession, error)

	AddPriorityExpense(ctx context.Context, p model.PriorityExpense) error
	ListOpenPriorityExpenses(ctx context.Context, userID uuid.UUID) ([]model.PriorityExpense, error)

	AddRecurringExpense(ctx context.Context, e model.RecurringExpense) error
	ListRecurringExpenses(ctx context.Context, userID uuid.UUID) ([]model.RecurringExpense, error)

	ListFitnessLogs(ctx context.Context, userID uuid.UUID) ([]model.FitnessLog, error)
	InsertFitnessLogs(ctx context.Context, logs []model.FitnessLog) error
	// CompleteFitnessOn marks every run on date completed and returns the count.
	CompleteFitnessOn(ctx context.Context, userID uuid.UUID, date string) (int, error)
	// ToggleFitnessLog flips the completed flag of one run.
	ToggleFitnessLog(ctx context.Context, userID, id uuid.UUID) (model.FitnessLog, error)
}
