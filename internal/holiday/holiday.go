// Package holiday loads public holidays per calendar year from remote feeds
// and merges them into schedule views.
package holiday

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"lifeplan/internal/feed"
	"lifeplan/internal/ics"
	appLog "lifeplan/internal/log"
	"lifeplan/internal/model"
)

// Feed formats.
const (
	FormatJSON = "json"
	FormatICS  = "ics"
)

// Source is one holiday feed. URL may contain "{year}".
type Source struct {
	ID     string
	URL    string
	Format string
}

// Fetcher is the subset of feed.Fetcher the service needs.
type Fetcher interface {
	Fetch(ctx context.Context, src feed.Source) (feed.Result, error)
}

// Service caches holidays per year. Concurrent requests for the same year
// share a single fetch.
type Service struct {
	fetcher Fetcher
	sources []Source

	group singleflight.Group

	mu    sync.RWMutex
	years map[int][]model.Holiday
}

func NewService(f Fetcher, sources []Source) *Service {
	return &Service{
		fetcher: f,
		sources: sources,
		years:   make(map[int][]model.Holiday),
	}
}

// YearsFor returns the years whose holidays may appear in the month view of
// date: the year itself, plus the next year in December and the previous
// year in January.
func YearsFor(date time.Time) []int {
	y := date.Year()
	switch date.Month() {
	case time.December:
		return []int{y, y + 1}
	case time.January:
		return []int{y, y - 1}
	default:
		return []int{y}
	}
}

// ForMonth returns the holidays of every year in YearsFor(date), sorted by
// start date.
func (s *Service) ForMonth(ctx context.Context, date time.Time) ([]model.Holiday, error) {
	years := YearsFor(date)
	results := make([][]model.Holiday, len(years))

	g, ctx := errgroup.WithContext(ctx)
	for i, y := range years {
		i, y := i, y
		g.Go(func() error {
			hs, err := s.Year(ctx, y)
			if err != nil {
				return err
			}
			results[i] = hs
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var out []model.Holiday
	for _, hs := range results {
		out = append(out, hs...)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Start < out[j].Start })
	return out, nil
}

// Year returns the holidays of one year, fetching on first use. A source
// answering 404 contributes no holidays.
func (s *Service) Year(ctx context.Context, year int) ([]model.Holiday, error) {
	s.mu.RLock()
	hs, ok := s.years[year]
	s.mu.RUnlock()
	if ok {
		return hs, nil
	}

	v, err, _ := s.group.Do(strconv.Itoa(year), func() (any, error) {
		return s.load(ctx, year)
	})
	if err != nil {
		return nil, err
	}
	return v.([]model.Holiday), nil
}

// Refresh drops cached years for date and loads them again.
func (s *Service) Refresh(ctx context.Context, date time.Time) error {
	years := YearsFor(date)
	s.mu.Lock()
	for _, y := range years {
		delete(s.years, y)
	}
	s.mu.Unlock()
	_, err := s.ForMonth(ctx, date)
	return err
}

func (s *Service) load(ctx context.Context, year int) ([]model.Holiday, error) {
	out := make([]model.Holiday, 0)
	for _, src := range s.sources {
		fs := feed.Source{
			ID:  fmt.Sprintf("%s-%d", src.ID, year),
			URL: strings.ReplaceAll(src.URL, "{year}", strconv.Itoa(year)),
		}
		res, err := s.fetcher.Fetch(ctx, fs)
		if errors.Is(err, feed.ErrNotFound) {
			appLog.Info("no holidays published for year", "source", src.ID, "year", year)
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("holiday %s: %w", fs.ID, err)
		}

		hs, err := decode(src, res.Body)
		if err != nil {
			return nil, fmt.Errorf("holiday %s: %w", fs.ID, err)
		}
		out = append(out, hs...)
	}

	s.mu.Lock()
	s.years[year] = out
	s.mu.Unlock()
	return out, nil
}

func decode(src Source, body []byte) ([]model.Holiday, error) {
	switch src.Format {
	case FormatICS:
		events, err := ics.ParseICS(src.ID, body)
		if err != nil {
			return nil, err
		}
		out := make([]model.Holiday, 0, len(events))
		for _, ev := range events {
			out = append(out, model.Holiday{
				UID:        ev.UID,
				Summary:    ev.Summary,
				Categories: ev.Categories,
				Start:      model.FormatDate(ev.Start),
				End:        model.FormatDate(ev.End),
			})
		}
		return out, nil
	case FormatJSON, "":
		var out []model.Holiday
		if err := json.Unmarshal(body, &out); err != nil {
			return nil, err
		}
		return out, nil
	default:
		return nil, fmt.Errorf("unknown format %q", src.Format)
	}
}

// IsPriority reports whether a holiday closes businesses (Mercantile) or is a
// Poya day.
func IsPriority(h model.Holiday) bool {
	for _, c := range h.Categories {
		if c == "Mercantile" || c == "Poya" {
			return true
		}
	}
	return false
}

// Merge returns holiday blocks followed by events. When dateFilter is set
// only holidays starting on that date are included; events are passed
// through unfiltered.
func Merge(events []model.ScheduleBlock, holidays []model.Holiday, dateFilter string) []model.ScheduleBlock {
	out := make([]model.ScheduleBlock, 0, len(holidays)+len(events))
	for _, h := range holidays {
		if dateFilter != "" && h.Start != dateFilter {
			continue
		}
		out = append(out, model.ScheduleBlock{
			ID:   h.UID,
			Date: h.Start,
			EventTemplate: model.EventTemplate{
				Activity:   h.Summary,
				Type:       model.TypeHoliday,
				TimeRange:  model.Anytime,
				IsPriority: IsPriority(h),
				Meta:       model.Meta{"holiday": true, "categories": h.Categories},
			},
			Holiday: true,
		})
	}
	return append(out, events...)
}
