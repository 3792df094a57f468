package fx

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"lifeplan/internal/feed"
)

type stubFetcher struct {
	body  string
	err   error
	calls atomic.Int32
}

func (s *stubFetcher) Fetch(ctx context.Context, src feed.Source) (feed.Result, error) {
	s.calls.Add(1)
	if s.err != nil {
		return feed.Result{}, s.err
	}
	return feed.Result{Source: src, Body: []byte(s.body)}, nil
}

func newTestProvider(f Fetcher) *Provider {
	return NewProvider(f, "https://fx.test/v6/latest/GBP", "LKR", decimal.NewFromInt(385), time.Hour)
}

func TestRateLiveAndCached(t *testing.T) {
	f := &stubFetcher{body: `{"result":"success","rates":{"LKR":391.25,"USD":1.27}}`}
	p := newTestProvider(f)

	q, err := p.Rate(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if q.Source != SourceLive || !q.Rate.Equal(decimal.RequireFromString("391.25")) {
		t.Fatalf("got %+v", q)
	}

	if _, err := p.Rate(context.Background()); err != nil {
		t.Fatal(err)
	}
	if f.calls.Load() != 1 {
		t.Errorf("fresh quote refetched: calls=%d", f.calls.Load())
	}
}

func TestRateFallback(t *testing.T) {
	tests := map[string]*stubFetcher{
		"network":   {err: errors.New("dial tcp: refused")},
		"bad json":  {body: `<html>`},
		"missing":   {body: `{"result":"success","rates":{"USD":1.27}}`},
		"zero rate": {body: `{"result":"success","rates":{"LKR":0}}`},
		"error":     {body: `{"result":"error","error-type":"invalid-key"}`},
	}
	for name, f := range tests {
		t.Run(name, func(t *testing.T) {
			q, err := newTestProvider(f).Rate(context.Background())
			if err != nil {
				t.Fatal(err)
			}
			if q.Source != SourceFallback || !q.Rate.Equal(decimal.NewFromInt(385)) {
				t.Errorf("got %+v", q)
			}
		})
	}
}

func TestRateExpiredKeepsLastLiveQuote(t *testing.T) {
	f := &stubFetcher{body: `{"result":"success","rates":{"LKR":400}}`}
	p := newTestProvider(f)
	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	p.now = func() time.Time { return now }

	if _, err := p.Rate(context.Background()); err != nil {
		t.Fatal(err)
	}

	now = now.Add(2 * time.Hour)
	f.err = errors.New("timeout")
	q, err := p.Rate(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if q.Source != SourceCached || !q.Rate.Equal(decimal.NewFromInt(400)) {
		t.Errorf("got %+v", q)
	}
}

func TestProviderWithFeedFetcher(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"result":"success","base_code":"GBP","rates":{"LKR":388.5}}`))
	}))
	defer srv.Close()

	p := NewProvider(feed.NewFetcher("", time.Second), srv.URL, "LKR", decimal.NewFromInt(385), time.Minute)
	q, err := p.Refresh(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if !q.Rate.Equal(decimal.RequireFromString("388.5")) {
		t.Errorf("got %s", q.Rate)
	}
}
