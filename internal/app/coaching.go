package app

import (
	"context"
	"sort"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"lifeplan/internal/model"
	"lifeplan/internal/store"
)

// CoachingService reports coaching income.
type CoachingService struct {
	store store.Store
}

func NewCoachingService(s store.Store) *CoachingService {
	return &CoachingService{store: s}
}

// MonthGroup is the sessions of one calendar month.
type MonthGroup struct {
	Month    string                  `json:"month"`
	Total    decimal.Decimal         `json:"total"`
	Sessions []model.CoachingSession `json:"sessions"`
}

type CoachingSummary struct {
	Total  decimal.Decimal `json:"total"`
	Count  int             `json:"count"`
	Months []MonthGroup    `json:"months"`
}

// Summary totals every session and groups them by YYYY-MM, newest month first.
func (c *CoachingService) Summary(ctx context.Context, userID uuid.UUID) (CoachingSummary, error) {
	sessions, err := c.store.ListCoachingSessions(ctx, userID, "")
	if err != nil {
		return CoachingSummary{}, err
	}

	sum := CoachingSummary{Total: decimal.Zero, Count: len(sessions), Months: []MonthGroup{}}
	index := make(map[string]int)
	for _, s := range sessions {
		sum.Total = sum.Total.Add(s.Amount)

		month := s.Date
		if len(month) >= 7 {
			month = month[:7]
		}
		i, ok := index[month]
		if !ok {
			i = len(sum.Months)
			index[month] = i
			sum.Months = append(sum.Months, MonthGroup{Month: month, Total: decimal.Zero})
		}
		sum.Months[i].Total = sum.Months[i].Total.Add(s.Amount)
		sum.Months[i].Sessions = append(sum.Months[i].Sessions, s)
	}
	sort.SliceStable(sum.Months, func(i, j int) bool { return sum.Months[i].Month > sum.Months[j].Month })
	return sum, nil
}
