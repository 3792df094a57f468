package app

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	appLog "lifeplan/internal/log"
	"lifeplan/internal/model"
	"lifeplan/internal/store"
)

// FitnessService tracks the training plan.
type FitnessService struct {
	store    store.Store
	settings Settings
	clock    clock

	mu sync.Mutex
}

func NewFitnessService(s store.Store, settings Settings) *FitnessService {
	return &FitnessService{
		store:    s,
		settings: settings,
		clock:    clock{now: time.Now, loc: settings.location()},
	}
}

type FitnessProgress struct {
	Runs      []model.FitnessLog `json:"runs"`
	Next      *model.FitnessLog  `json:"next"`
	Completed int                `json:"completed"`
	Total     int                `json:"total"`
}

// Runs returns the user's training log, seeding it from the configured
// training plan the first time. Next is the earliest incomplete run dated
// today or later; missed runs are never next.
func (f *FitnessService) Runs(ctx context.Context, userID uuid.UUID) (FitnessProgress, error) {
	runs, err := f.seed(ctx, userID)
	if err != nil {
		return FitnessProgress{}, err
	}

	today := f.clock.Today()
	p := FitnessProgress{Runs: runs, Total: len(runs)}
	for i := range runs {
		if runs[i].Completed {
			p.Completed++
			continue
		}
		if p.Next == nil && runs[i].Date >= today {
			next := runs[i]
			p.Next = &next
		}
	}
	return p, nil
}

// Toggle flips one run between done and not done.
func (f *FitnessService) Toggle(ctx context.Context, userID, id uuid.UUID) (model.FitnessLog, error) {
	l, err := f.store.ToggleFitnessLog(ctx, userID, id)
	if err != nil {
		return model.FitnessLog{}, err
	}
	appLog.Debug("training run toggled", "user", userID, "date", l.Date, "completed", l.Completed)
	return l, nil
}

func (f *FitnessService) seed(ctx context.Context, userID uuid.UUID) ([]model.FitnessLog, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	runs, err := f.store.ListFitnessLogs(ctx, userID)
	if err != nil || len(runs) > 0 || len(f.settings.TrainingPlan) == 0 {
		return runs, err
	}

	seeded := make([]model.FitnessLog, 0, len(f.settings.TrainingPlan))
	for _, r := range f.settings.TrainingPlan {
		r.ID = uuid.New()
		r.UserID = userID
		r.Completed = false
		seeded = append(seeded, r)
	}
	if err := f.store.InsertFitnessLogs(ctx, seeded); err != nil {
		return nil, err
	}
	appLog.Info("training plan seeded", "user", userID, "runs", len(seeded))
	return f.store.ListFitnessLogs(ctx, userID)
}
