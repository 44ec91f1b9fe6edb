package application

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/alorle/iptv-hub/internal/catalog"
	"github.com/alorle/iptv-hub/internal/channel"
	"github.com/alorle/iptv-hub/internal/port/driven"
	"github.com/alorle/iptv-hub/metrics"
)

const maxConcurrentSources = 4

// ErrAllSourcesFailed is returned by Refresh when every configured source failed.
// The previously published directory stays in place.
var ErrAllSourcesFailed = errors.New("every catalog source failed")

// SourceReport describes the outcome of one source during a refresh.
type SourceReport struct {
	Name     string `json:"name"`
	Channels int    `json:"channels"`
	Error    string `json:"error,omitempty"`
}

// RefreshReport summarizes a directory refresh.
type RefreshReport struct {
	Channels  int            `json:"channels"`
	Verified  int            `json:"verified"`
	Rejected  int            `json:"rejected"`
	Sources   []SourceReport `json:"sources"`
	Duration  time.Duration  `json:"duration"`
	Refreshed time.Time      `json:"refreshed"`
}

// DirectoryService builds the merged channel directory from the configured
// sources, persists it and serves reads from an atomically published snapshot.
type DirectoryService struct {
	repo     driven.DirectoryRepository
	sources  []CatalogSource
	verified *VerifiedSource
	logger   zerolog.Logger

	current atomic.Pointer[catalog.Directory]
	last    atomic.Pointer[RefreshReport]
	flight  singleflight.Group

	closing context.Context
	close   context.CancelFunc
}

// NewDirectoryService creates a DirectoryService. verified may be nil.
func NewDirectoryService(repo driven.DirectoryRepository, sources []CatalogSource, verified *VerifiedSource, logger zerolog.Logger) *DirectoryService {
	s := &DirectoryService{
		repo:     repo,
		sources:  sources,
		verified: verified,
		logger:   logger,
	}
	s.closing, s.close = context.WithCancel(context.Background())
	s.current.Store(catalog.NewDirectory())
	return s
}

// Close cancels the in-flight refresh and any later one.
func (s *DirectoryService) Close() {
	s.close()
}

// Directory returns the currently published directory. It is never nil and
// must not be modified.
func (s *DirectoryService) Directory() *catalog.Directory {
	return s.current.Load()
}

// LastRefresh returns the report of the last completed refresh, if any.
func (s *DirectoryService) LastRefresh() (RefreshReport, bool) {
	r := s.last.Load()
	if r == nil {
		return RefreshReport{}, false
	}
	return *r, true
}

// Load publishes the directory persisted by the last successful refresh.
func (s *DirectoryService) Load(ctx context.Context) error {
	channels, verifiedIDs, err := s.repo.LoadDirectory(ctx)
	if err != nil {
		return fmt.Errorf("load directory: %w", err)
	}
	dir := catalog.Restore(channels, verifiedIDs)
	s.current.Store(dir)
	metrics.SetDirectory(dir.Len(), len(verifiedIDs))

	s.logger.Info().
		Int("channels", dir.Len()).
		Int("verified", len(verifiedIDs)).
		Msg("Directory restored")
	return nil
}

// Refresh rebuilds the directory. Concurrent callers share a single run.
// Failing sources are skipped; the refresh only fails when all of them do.
func (s *DirectoryService) Refresh(ctx context.Context) (RefreshReport, error) {
	v, err, shared := s.flight.Do("refresh", func() (any, error) {
		// joined callers share this run, so it only stops on Close
		runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
		defer cancel()
		stop := context.AfterFunc(s.closing, cancel)
		defer stop()
		return s.refresh(runCtx)
	})
	if shared {
		s.logger.Debug().Msg("Joined in-flight directory refresh")
	}
	report, _ := v.(RefreshReport)
	return report, err
}

func (s *DirectoryService) refresh(ctx context.Context) (RefreshReport, error) {
	start := time.Now()
	report := RefreshReport{Sources: make([]SourceReport, len(s.sources))}
	results := make([]catalog.Source, len(s.sources))

	var verified catalog.VerifiedList
	var verifiedErr error

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxConcurrentSources)

	for i, src := range s.sources {
		g.Go(func() error {
			chans, err := src.Channels(gctx)
			report.Sources[i] = SourceReport{Name: src.Name(), Channels: len(chans)}
			if err != nil {
				report.Sources[i].Error = err.Error()
				metrics.RecordSourceFetchError(src.Name())
				s.logger.Warn().Err(err).Str("source", src.Name()).Msg("Catalog source failed, skipping")
				return nil
			}
			results[i] = catalog.Source{Label: src.Name(), Channels: chans}
			return nil
		})
	}
	if s.verified != nil {
		g.Go(func() error {
			verified, verifiedErr = s.verified.Load(gctx)
			return nil
		})
	}
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		metrics.RecordRefresh("cancelled")
		return report, err
	}

	failed := 0
	for _, r := range report.Sources {
		if r.Error != "" {
			failed++
		}
	}
	if len(s.sources) > 0 && failed == len(s.sources) {
		metrics.RecordRefresh("failed")
		s.logger.Error().Int("sources", failed).Msg("Directory refresh failed, keeping previous directory")
		return report, ErrAllSourcesFailed
	}

	if verifiedErr != nil {
		metrics.RecordSourceFetchError("verified")
		s.logger.Warn().Err(verifiedErr).Msg("Verified list unavailable, merging without overrides")
	}
	if verified.Rejected > 0 {
		s.logger.Warn().Int("rejected", verified.Rejected).Msg("Verified list contained invalid entries")
	}

	dir := catalog.Merge(results, verified.Channels)
	verifiedIDs := dir.VerifiedIDs()

	report.Channels = dir.Len()
	report.Verified = len(verifiedIDs)
	report.Rejected = verified.Rejected
	report.Duration = time.Since(start)
	report.Refreshed = time.Now()

	// the published directory must always be what a restart would restore
	if err := s.repo.SaveDirectory(ctx, dir.Channels(), verifiedIDs); err != nil {
		metrics.RecordRefresh("persist_error")
		return report, fmt.Errorf("persist directory: %w", err)
	}

	s.current.Store(dir)
	s.last.Store(&report)
	metrics.SetDirectory(report.Channels, report.Verified)

	result := "ok"
	if failed > 0 || verifiedErr != nil {
		result = "partial"
	}
	metrics.RecordRefresh(result)

	s.logger.Info().
		Int("channels", report.Channels).
		Int("verified", report.Verified).
		Int("failed_sources", failed).
		Dur("duration", report.Duration).
		Msg("Directory refreshed")
	return report, nil
}

// Run refreshes immediately and then every interval until ctx is cancelled.
// A zero interval refreshes once.
func (s *DirectoryService) Run(ctx context.Context, interval time.Duration) {
	if _, err := s.Refresh(ctx); err != nil && ctx.Err() == nil {
		s.logger.Error().Err(err).Msg("Initial directory refresh failed")
	}
	if interval <= 0 {
		return
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := s.Refresh(ctx); err != nil && ctx.Err() == nil {
				s.logger.Error().Err(err).Msg("Periodic directory refresh failed")
			}
		}
	}
}

// ListChannels returns channels matching query and group. See catalog.Directory.Search.
func (s *DirectoryService) ListChannels(query, group string) []channel.Channel {
	return s.Directory().Search(query, group)
}

// GetChannel returns the channel with the given id.
// Returns channel.ErrChannelNotFound if it does not exist.
func (s *DirectoryService) GetChannel(id string) (channel.Channel, error) {
	ch, ok := s.Directory().Lookup(id)
	if !ok {
		return channel.Channel{}, channel.ErrChannelNotFound
	}
	return ch, nil
}

// IsVerified reports whether id came from the verified list.
func (s *DirectoryService) IsVerified(id string) bool {
	return s.Directory().IsVerified(id)
}

// Categories groups the directory by category.
func (s *DirectoryService) Categories() []catalog.Category {
	return catalog.ByCategory(s.Directory())
}

// Alternatives returns candidates to try after the channel with the given id
// failed. Returns channel.ErrChannelNotFound for an unknown id.
func (s *DirectoryService) Alternatives(id string) ([]channel.Channel, error) {
	dir := s.Directory()
	if _, ok := dir.Lookup(id); !ok {
		return nil, channel.ErrChannelNotFound
	}
	return dir.Alternatives(id), nil
}
