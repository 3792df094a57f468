// Package feed fetches remote documents (holiday lists, calendars, FX quotes)
// with conditional HTTP requests and a disk-backed last-good copy.
package feed

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"time"

	appLog "lifeplan/internal/log"
)

// ErrNotFound is returned when the origin answers 404. A cached copy is never
// substituted for a missing document.
var ErrNotFound = errors.New("feed: not found")

// Source is one remote document.
type Source struct {
	// ID is a stable identifier used in logs (e.g. "lk-2026").
	ID  string
	URL string
}

// Result is the body of a fetched document.
type Result struct {
	Source Source
	Body   []byte
	// Stale is true when Body came from disk because the origin answered 304
	// or could not be reached.
	Stale     bool
	FetchedAt time.Time
}

type cacheMeta struct {
	URL          string    `json:"url"`
	ETag         string    `json:"etag,omitempty"`
	LastModified string    `json:"last_modified,omitempty"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Fetcher performs conditional GETs and keeps the last good body per URL
// under cacheDir. An empty cacheDir disables the disk cache.
type Fetcher struct {
	client   *http.Client
	cacheDir string
}

// NewFetcher creates a Fetcher. A zero timeout means 15 seconds.
func NewFetcher(cacheDir string, timeout time.Duration) *Fetcher {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Fetcher{
		client:   &http.Client{Timeout: timeout},
		cacheDir: cacheDir,
	}
}

// WithClient replaces the HTTP client, e.g. for tests.
func (f *Fetcher) WithClient(c *http.Client) *Fetcher {
	f.client = c
	return f
}

// Fetch downloads src, honoring ETag and Last-Modified. On network errors and
// non-404 failures the cached body is returned when available.
func (f *Fetcher) Fetch(ctx context.Context, src Source) (Result, error) {
	if src.URL == "" {
		return Result{}, errors.New("feed: source URL is empty")
	}

	dir := f.cachePath(src.URL)
	var (
		meta   cacheMeta
		cached []byte
	)
	if dir != "" {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return Result{}, err
		}
		meta, _ = loadMeta(dir)
		cached, _ = os.ReadFile(filepath.Join(dir, "body"))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, src.URL, nil)
	if err != nil {
		return Result{}, err
	}
	if len(cached) > 0 {
		if meta.ETag != "" {
			req.Header.Set("If-None-Match", meta.ETag)
		}
		if meta.LastModified != "" {
			req.Header.Set("If-Modified-Since", meta.LastModified)
		}
	}

	appLog.Debug("feed fetch start", "id", src.ID, "url", RedactURL(src.URL))

	resp, err := f.client.Do(req)
	if err != nil {
		if len(cached) > 0 {
			appLog.Error("feed fetch network error, using cached body", err, "id", src.ID, "url", RedactURL(src.URL))
			return Result{Source: src, Body: cached, Stale: true, FetchedAt: meta.UpdatedAt}, nil
		}
		return Result{}, err
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return Result{}, err
		}
		now := time.Now().UTC()
		if dir != "" {
			m := cacheMeta{
				URL:          src.URL,
				ETag:         resp.Header.Get("ETag"),
				LastModified: resp.Header.Get("Last-Modified"),
				UpdatedAt:    now,
			}
			if err := saveCache(dir, m, body); err != nil {
				appLog.Error("feed cache save failed", err, "id", src.ID)
			}
		}
		appLog.Info("feed fetch success", "id", src.ID, "url", RedactURL(src.URL), "bytes", len(body))
		return Result{Source: src, Body: body, FetchedAt: now}, nil

	case http.StatusNotModified:
		if len(cached) == 0 {
			return Result{}, errors.New("feed: 304 Not Modified without cached body")
		}
		appLog.Debug("feed not modified", "id", src.ID)
		return Result{Source: src, Body: cached, Stale: true, FetchedAt: meta.UpdatedAt}, nil

	case http.StatusNotFound:
		return Result{}, fmt.Errorf("%w: %s", ErrNotFound, RedactURL(src.URL))

	default:
		if len(cached) > 0 {
			appLog.Error("feed fetch non-OK, using cached body", errors.New(resp.Status), "id", src.ID, "status", resp.StatusCode)
			return Result{Source: src, Body: cached, Stale: true, FetchedAt: meta.UpdatedAt}, nil
		}
		return Result{}, fmt.Errorf("feed: %s: %s", RedactURL(src.URL), resp.Status)
	}
}

func (f *Fetcher) cachePath(u string) string {
	if f.cacheDir == "" {
		return ""
	}
	sum := sha256.Sum256([]byte(u))
	return filepath.Join(f.cacheDir, hex.EncodeToString(sum[:8]))
}

func loadMeta(dir string) (cacheMeta, error) {
	var m cacheMeta
	data, err := os.ReadFile(filepath.Join(dir, "meta.json"))
	if err != nil {
		return m, err
	}
	if err := json.Unmarshal(data, &m); err != nil {
		return cacheMeta{}, err
	}
	return m, nil
}

func saveCache(dir string, m cacheMeta, body []byte) error {
	// Body first so meta never points at a missing body.
	if err := os.WriteFile(filepath.Join(dir, "body"), body, 0o600); err != nil {
		return err
	}
	data, err := json.MarshalIndent(&m, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(dir, "meta.json"), data, 0o600)
}

// RedactURL keeps only scheme and host so tokens in paths or queries are not
// logged.
func RedactURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return "feed://...(redacted)"
	}
	return u.Scheme + "://" + u.Host + "/...(redacted)"
}
