package fetcher

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/rs/zerolog"

	"github.com/alorle/iptv-hub/cache"
	"github.com/alorle/iptv-hub/circuitbreaker"
	"github.com/alorle/iptv-hub/logging"
)

// ErrUnavailable is returned when the source cannot be fetched and nothing is cached.
var ErrUnavailable = errors.New("upstream fetch failed and no cache available")

const defaultMaxBytes = 64 << 20

// Options configure a Fetcher.
type Options struct {
	Timeout   time.Duration
	CacheTTL  time.Duration // fresh cache entries younger than this are served without a request
	UserAgent string
	MaxBytes  int64
}

// Result describes where fetched content came from.
type Result struct {
	Content   []byte
	FromCache bool
	Stale     bool
}

// Fetcher retrieves remote source documents with a cache fallback. Requests
// to each upstream host go through that host's circuit breaker.
type Fetcher struct {
	client   *http.Client
	storage  cache.Storage
	breakers *circuitbreaker.Registry
	opts     Options
	logger   zerolog.Logger
}

// New creates a Fetcher. breakers may be nil to disable circuit breaking.
func New(storage cache.Storage, breakers *circuitbreaker.Registry, opts Options, logger zerolog.Logger) *Fetcher {
	if opts.MaxBytes <= 0 {
		opts.MaxBytes = defaultMaxBytes
	}
	return &Fetcher{
		client:   &http.Client{Timeout: opts.Timeout},
		storage:  storage,
		breakers: breakers,
		opts:     opts,
		logger:   logger,
	}
}

// Fetch returns the document at rawURL, preferring a fresh cache entry.
func (f *Fetcher) Fetch(ctx context.Context, rawURL string) ([]byte, error) {
	res, err := f.FetchWithCache(ctx, rawURL)
	if err != nil {
		return nil, err
	}
	return res.Content, nil
}

// FetchWithCache serves a fresh cache entry when one exists, otherwise fetches
// from the source and refreshes the cache. When the fetch fails, a stale cache
// entry is served instead.
func (f *Fetcher) FetchWithCache(ctx context.Context, rawURL string) (Result, error) {
	key := cache.DeriveKeyFromURL(rawURL)
	log := f.logger.With().Str("url", rawURL).Logger()

	entry, cacheErr := f.storage.Get(key)
	if cacheErr == nil && f.opts.CacheTTL > 0 && entry.Age() <= f.opts.CacheTTL {
		log.Debug().Dur("age", entry.Age()).Msg("serving fresh cache")
		return Result{Content: entry.Content, FromCache: true}, nil
	}
	if cacheErr != nil && !errors.Is(cacheErr, cache.ErrNotFound) {
		log.Warn().Err(cacheErr).Msg("cache read failed")
	}

	content, fetchErr := f.fetchThroughBreaker(ctx, rawURL)
	if fetchErr == nil {
		if err := f.storage.Set(key, content); err != nil {
			log.Warn().Err(err).Msg("failed to update cache")
		}
		log.Debug().Int("bytes", len(content)).Msg("fetched source")
		return Result{Content: content}, nil
	}

	if cacheErr != nil {
		return Result{}, fmt.Errorf("%w: %w", ErrUnavailable, fetchErr)
	}

	logging.LogCacheFallback(f.logger, rawURL, entry.Age(), fetchErr)
	return Result{Content: entry.Content, FromCache: true, Stale: true}, nil
}

func (f *Fetcher) fetchThroughBreaker(ctx context.Context, rawURL string) ([]byte, error) {
	if f.breakers == nil {
		return f.fetchFromURL(ctx, rawURL)
	}

	host := rawURL
	if u, err := url.Parse(rawURL); err == nil && u.Host != "" {
		host = u.Host
	}

	var content []byte
	err := f.breakers.Get(host).Execute(func() error {
		var err error
		content, err = f.fetchFromURL(ctx, rawURL)
		return err
	})
	return content, err
}

// fetchFromURL performs the actual HTTP fetch
func (f *Fetcher) fetchFromURL(ctx context.Context, rawURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	if f.opts.UserAgent != "" {
		req.Header.Set("User-Agent", f.opts.UserAgent)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("HTTP request failed: %w", err)
	}
	defer func() {
		if closeErr := resp.Body.Close(); closeErr != nil {
			f.logger.Debug().Err(closeErr).Msg("failed to close response body")
		}
	}()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("HTTP request returned status %d: %s", resp.StatusCode, resp.Status)
	}

	content, err := io.ReadAll(io.LimitReader(resp.Body, f.opts.MaxBytes+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}
	if int64(len(content)) > f.opts.MaxBytes {
		return nil, fmt.Errorf("response body exceeds %d bytes", f.opts.MaxBytes)
	}

	return content, nil
}
