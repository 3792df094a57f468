// Package fx provides the GBP->LKR conversion rate used by the waterfall
// calculator. A configured fallback rate is returned whenever the live feed is
// unavailable, so callers always receive a usable positive rate.
package fx

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/singleflight"

	"lifeplan/internal/feed"
	appLog "lifeplan/internal/log"
)

// Quote origins.
const (
	SourceLive     = "live"
	SourceCached   = "cached"
	SourceFallback = "fallback"
)

// Quote is a conversion rate with its provenance.
type Quote struct {
	Rate      decimal.Decimal `json:"rate"`
	Source    string          `json:"source"`
	FetchedAt time.Time       `json:"fetched_at"`
}

// Fetcher is the subset of feed.Fetcher the provider needs.
type Fetcher interface {
	Fetch(ctx context.Context, src feed.Source) (feed.Result, error)
}

// Provider caches the latest live rate for ttl.
type Provider struct {
	fetcher  Fetcher
	src      feed.Source
	quote    string
	fallback decimal.Decimal
	ttl      time.Duration
	now      func() time.Time

	group singleflight.Group

	mu      sync.RWMutex
	current *Quote
}

// NewProvider creates a provider reading rates[quoteCurrency] from url.
func NewProvider(f Fetcher, url, quoteCurrency string, fallback decimal.Decimal, ttl time.Duration) *Provider {
	return &Provider{
		fetcher:  f,
		src:      feed.Source{ID: "fx", URL: url},
		quote:    quoteCurrency,
		fallback: fallback,
		ttl:      ttl,
		now:      time.Now,
	}
}

// Rate returns the cached quote while fresh, otherwise refreshes. It never
// fails: on refresh errors the last live quote (marked cached) or the
// fallback constant is returned.
func (p *Provider) Rate(ctx context.Context) (Quote, error) {
	p.mu.RLock()
	cur := p.current
	p.mu.RUnlock()
	if cur != nil && p.now().Sub(cur.FetchedAt) < p.ttl {
		return *cur, nil
	}

	q, err := p.Refresh(ctx)
	if err == nil {
		return q, nil
	}
	if cur != nil {
		stale := *cur
		stale.Source = SourceCached
		return stale, nil
	}
	return p.Fallback(), nil
}

// Fallback returns the configured constant rate.
func (p *Provider) Fallback() Quote {
	return Quote{Rate: p.fallback, Source: SourceFallback, FetchedAt: p.now().UTC()}
}

// Refresh fetches a new quote and stores it. Concurrent callers share one
// request.
func (p *Provider) Refresh(ctx context.Context) (Quote, error) {
	v, err, _ := p.group.Do("rate", func() (any, error) {
		res, err := p.fetcher.Fetch(ctx, p.src)
		if err != nil {
			return nil, err
		}
		rate, err := parseRate(res.Body, p.quote)
		if err != nil {
			return nil, err
		}

		q := Quote{Rate: rate, Source: SourceLive, FetchedAt: p.now().UTC()}
		if res.Stale {
			q.Source = SourceCached
			if !res.FetchedAt.IsZero() {
				q.FetchedAt = res.FetchedAt
			}
		}
		p.mu.Lock()
		p.current = &q
		p.mu.Unlock()
		return q, nil
	})
	if err != nil {
		appLog.Error("fx refresh failed", err, "url", feed.RedactURL(p.src.URL))
		return Quote{}, err
	}
	return v.(Quote), nil
}

type ratesResponse struct {
	Result string                     `json:"result"`
	Rates  map[string]decimal.Decimal `json:"rates"`
}

func parseRate(body []byte, quote string) (decimal.Decimal, error) {
	var r ratesResponse
	if err := json.Unmarshal(body, &r); err != nil {
		return decimal.Zero, fmt.Errorf("fx: decode: %w", err)
	}
	if r.Result != "" && r.Result != "success" {
		return decimal.Zero, fmt.Errorf("fx: provider result %q", r.Result)
	}
	rate, ok := r.Rates[quote]
	if !ok {
		return decimal.Zero, fmt.Errorf("fx: no %s rate in response", quote)
	}
	if !rate.IsPositive() {
		return decimal.Zero, errors.New("fx: non-positive rate")
	}
	return rate, nil
}
