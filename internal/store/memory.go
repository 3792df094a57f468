package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"lifeplan/internal/model"
)

type memoryStore struct {
	mu sync.RWMutex

	events    map[uuid.UUID]model.EventRecord
	stats     map[uuid.UUID]model.UserStats
	wallet    map[uuid.UUID][]model.WalletEntry
	coaching  map[uuid.UUID][]model.CoachingSession
	priority  map[uuid.UUID][]model.PriorityExpense
	recurring map[uuid.UUID][]model.RecurringExpense
	fitness   map[uuid.UUID][]model.FitnessLog
}

// NewMemory returns a Store kept entirely in RAM. Data is lost on restart.
func NewMemory() Store {
	return &memoryStore{
		events:    make(map[uuid.UUID]model.EventRecord),
		stats:     make(map[uuid.UUID]model.UserStats),
		wallet:    make(map[uuid.UUID][]model.WalletEntry),
		coaching:  make(map[uuid.UUID][]model.CoachingSession),
		priority:  make(map[uuid.UUID][]model.PriorityExpense),
		recurring: make(map[uuid.UUID][]model.RecurringExpense),
		fitness:   make(map[uuid.UUID][]model.FitnessLog),
	}
}

func copyMeta(m model.Meta) model.Meta {
	if m == nil {
		return nil
	}
	out := make(model.Meta, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func withTemplate(rec model.EventRecord, tpl model.EventTemplate) model.EventRecord {
	tpl.Meta = copyMeta(tpl.Meta)
	rec.EventTemplate = tpl
	return rec
}

func (s *memoryStore) InsertEvents(ctx context.Context, recs []model.EventRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now().UTC()
	for _, r := range recs {
		r.Meta = copyMeta(r.Meta)
		if r.CreatedAt.IsZero() {
			r.CreatedAt = now
		}
		s.events[r.ID] = r
	}
	return nil
}

func (s *memoryStore) ListEvents(ctx context.Context, userID uuid.UUID, from, to string) ([]model.EventRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]model.EventRecord, 0)
	for _, r := range s.events {
		if r.UserID != userID || r.Date < from || r.Date > to {
			continue
		}
		r.Meta = copyMeta(r.Meta)
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Date != out[j].Date {
			return out[i].Date < out[j].Date
		}
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID.String() < out[j].ID.String()
	})
	return out, nil
}

func (s *memoryStore) GetEvent(ctx context.Context, userID, id uuid.UUID) (model.EventRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.events[id]
	if !ok || r.UserID != userID {
		return model.EventRecord{}, ErrNotFound
	}
	r.Meta = copyMeta(r.Meta)
	return r, nil
}

func (s *memoryStore) UpdateEvent(ctx context.Context, userID, id uuid.UUID, tpl model.EventTemplate) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.events[id]
	if !ok || r.UserID != userID {
		return ErrNotFound
	}
	s.events[id] = withTemplate(r, tpl)
	return nil
}

func (s *memoryStore) UpdateSeriesFrom(ctx context.Context, userID, seriesID uuid.UUID, fromDate string, tpl model.EventTemplate) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for id, r := range s.events {
		if r.UserID == userID && r.SeriesID.Valid && r.SeriesID.UUID == seriesID && r.Date >= fromDate {
			s.events[id] = withTemplate(r, tpl)
			n++
		}
	}
	return n, nil
}

func (s *memoryStore) DeleteEvent(ctx context.Context, userID, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.events[id]
	if !ok || r.UserID != userID {
		return ErrNotFound
	}
	delete(s.events, id)
	return nil
}

func (s *memoryStore) DeleteSeriesFrom(ctx context.Context, userID, seriesID uuid.UUID, fromDate string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for id, r := range s.events {
		if r.UserID == userID && r.SeriesID.Valid && r.SeriesID.UUID == seriesID && r.Date >= fromDate {
			delete(s.events, id)
			n++
		}
	}
	return n, nil
}

func (s *memoryStore) SetEventCompleted(ctx context.Context, userID, id uuid.UUID, completed bool) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.events[id]
	if !ok || r.UserID != userID {
		return false, ErrNotFound
	}
	if r.Completed == completed {
		return false, nil
	}
	r.Completed = completed
	s.events[id] = r
	return true, nil
}

func (s *memoryStore) GetOrCreateStats(ctx context.Context, defaults model.UserStats) (model.UserStats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if st, ok := s.stats[defaults.UserID]; ok {
		return st, nil
	}
	defaults.UpdatedAt = time.Now().UTC()
	s.stats[defaults.UserID] = defaults
	return defaults, nil
}

func (s *memoryStore) ApplyWalletChange(ctx context.Context, stats model.UserStats, entries ...model.WalletEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.stats[stats.UserID]; !ok {
		return ErrNotFound
	}
	stats.UpdatedAt = time.Now().UTC()
	s.stats[stats.UserID] = stats
	s.wallet[stats.UserID] = append(s.wallet[stats.UserID], entries...)
	return nil
}

// ListWalletEntries returns newest first. limit <= 0 returns everything.
func (s *memoryStore) ListWalletEntries(ctx context.Context, userID uuid.UUID, limit int) ([]model.WalletEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	all := s.wallet[userID]
	out := make([]model.WalletEntry, 0, len(all))
	for i := len(all) - 1; i >= 0; i-- {
		out = append(out, all[i])
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

func (s *memoryStore) AddCoachingSession(ctx context.Context, cs model.CoachingSession) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.coaching[cs.UserID] {
		if existing.ID == cs.ID {
			return ErrConflict
		}
	}
	s.coaching[cs.UserID] = append(s.coaching[cs.UserID], cs)
	return nil
}

// ListCoachingSessions returns sessions on or after since, newest first.
func (s *memoryStore) ListCoachingSessions(ctx context.Context, userID uuid.UUID, since string) ([]model.CoachingSession, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]model.CoachingSession, 0)
	for _, cs := range s.coaching[userID] {
		if cs.Date >= since {
			out = append(out, cs)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Date > out[j].Date })
	return out, nil
}

func (s *memoryStore) AddPriorityExpense(ctx context.Context, p model.PriorityExpense) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.priority[p.UserID] = append(s.priority[p.UserID], p)
	return nil
}

// ListOpenPriorityExpenses returns unfulfilled expenses by target date.
func (s *memoryStore) ListOpenPriorityExpenses(ctx context.Context, userID uuid.UUID) ([]model.PriorityExpense, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]model.PriorityExpense, 0)
	for _, p := range s.priority[userID] {
		if !p.IsFulfilled {
			out = append(out, p)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].TargetDate < out[j].TargetDate })
	return out, nil
}

func (s *memoryStore) AddRecurringExpense(ctx context.Context, e model.RecurringExpense) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.recurring[e.UserID] = append(s.recurring[e.UserID], e)
	return nil
}

func (s *memoryStore) ListRecurringExpenses(ctx context.Context, userID uuid.UUID) ([]model.RecurringExpense, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]model.RecurringExpense(nil), s.recurring[userID]...), nil
}

// ListFitnessLogs returns runs by date.
func (s *memoryStore) ListFitnessLogs(ctx context.Context, userID uuid.UUID) ([]model.FitnessLog, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := append([]model.FitnessLog(nil), s.fitness[userID]...)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Date < out[j].Date })
	return out, nil
}

func (s *memoryStore) InsertFitnessLogs(ctx context.Context, logs []model.FitnessLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, l := range logs {
		s.fitness[l.UserID] = append(s.fitness[l.UserID], l)
	}
	return nil
}

func (s *memoryStore) CompleteFitnessOn(ctx context.Context, userID uuid.UUID, date string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	logs := s.fitness[userID]
	for i := range logs {
		if logs[i].Date == date {
			logs[i].Completed = true
			n++
		}
	}
	return n, nil
}

func (s *memoryStore) ToggleFitnessLog(ctx context.Context, userID, id uuid.UUID) (model.FitnessLog, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	logs := s.fitness[userID]
	for i := range logs {
		if logs[i].ID == id {
			logs[i].Completed = !logs[i].Completed
			return logs[i], nil
		}
	}
	return model.FitnessLog{}, ErrNotFound
}
