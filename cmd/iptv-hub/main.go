package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"go.etcd.io/bbolt"

	"github.com/alorle/iptv-hub/cache"
	"github.com/alorle/iptv-hub/circuitbreaker"
	"github.com/alorle/iptv-hub/config"
	"github.com/alorle/iptv-hub/fetcher"
	"github.com/alorle/iptv-hub/internal/adapter/driven"
	"github.com/alorle/iptv-hub/internal/adapter/driver"
	"github.com/alorle/iptv-hub/internal/application"
	"github.com/alorle/iptv-hub/internal/playback"
	port "github.com/alorle/iptv-hub/internal/port/driven"
	"github.com/alorle/iptv-hub/internal/xtream"
	"github.com/alorle/iptv-hub/logging"
	"github.com/alorle/iptv-hub/metrics"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logger := logging.New(logging.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
	})
	cfg.LogSummary(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error().Err(err).Msg("iptv-hub stopped with error")
		stop()
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, logger zerolog.Logger) error {
	if err := os.MkdirAll(filepath.Dir(cfg.DB.Path), 0o755); err != nil {
		return fmt.Errorf("create database directory: %w", err)
	}
	db, err := bbolt.Open(cfg.DB.Path, 0o600, &bbolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer func() {
		if err := db.Close(); err != nil {
			logger.Warn().Err(err).Msg("error closing database")
		}
	}()

	repo, err := driven.NewDirectoryBoltDBRepository(db)
	if err != nil {
		return fmt.Errorf("create directory repository: %w", err)
	}

	storage, err := cache.NewFileStorage(cfg.Cache.Dir)
	if err != nil {
		return fmt.Errorf("create cache: %w", err)
	}

	breakerLogger := logging.Component(logger, "circuitbreaker")
	breakers := circuitbreaker.NewRegistry(circuitbreaker.Config{
		FailureThreshold: cfg.Resilience.CBFailureThreshold,
		Timeout:          cfg.Resilience.CBTimeout,
		HalfOpenRequests: cfg.Resilience.CBHalfOpenRequests,
		Logger:           &breakerLogger,
		OnStateChange: func(name string, from, to circuitbreaker.State) {
			metrics.SetCircuitBreakerState(name, to.String())
			if to == circuitbreaker.StateOpen {
				metrics.RecordCircuitBreakerTrip(name)
			}
		},
	})

	fetch := fetcher.New(storage, breakers, fetcher.Options{
		Timeout:   cfg.Fetch.Timeout,
		CacheTTL:  cfg.Cache.TTL,
		UserAgent: cfg.Fetch.UserAgent,
		MaxBytes:  int64(cfg.Fetch.MaxBytes),
	}, logging.Component(logger, "fetcher"))

	sources := make([]application.CatalogSource, 0, len(cfg.Sources))
	for _, src := range cfg.Sources {
		switch src.Type {
		case config.SourceXtream:
			client := xtream.NewClient(xtream.Options{
				BaseURL:           src.URL,
				Username:          src.Username,
				Password:          src.Password,
				Output:            src.Output,
				RequestsPerSecond: cfg.Xtream.RequestsPerSecond,
				Burst:             cfg.Xtream.Burst,
				UserAgent:         cfg.Fetch.UserAgent,
				HTTPClient:        &http.Client{Timeout: cfg.Fetch.Timeout},
				MaxBytes:          int64(cfg.Fetch.MaxBytes),
			})
			sources = append(sources, application.NewXtreamSource(src.Name, client))
		default:
			sources = append(sources, application.NewM3USource(src.Name, src.URL, fetch))
		}
	}
	verified := application.NewVerifiedSource(cfg.Verified.URL, cfg.Verified.Path, fetch)

	segments := driven.NewHLSEngine(driven.HLSConfig{
		PollInterval: cfg.HLS.PollInterval,
		UserAgent:    cfg.Fetch.UserAgent,
	}, logging.Component(logger, "hls"))

	var swarms port.SwarmEngine = driven.DisabledSwarmEngine{}
	var swarmFiles port.SwarmFileOpener
	if cfg.Swarm.Enabled {
		torrents, err := driven.NewTorrentSwarmEngine(driven.TorrentConfig{
			DataDir:   cfg.Swarm.DataDir,
			PublicURL: cfg.BaseURL(),
		}, logging.Component(logger, "swarm"))
		if err != nil {
			return fmt.Errorf("start swarm engine: %w", err)
		}
		defer func() {
			if err := torrents.Close(); err != nil {
				logger.Warn().Err(err).Msg("error closing swarm engine")
			}
		}()
		swarms = torrents
		swarmFiles = torrents
	}

	sink := driven.NewHeadlessSink(cfg.Playback.Autoplay)
	manager := playback.NewManager(segments, swarms, sink, playback.Options{
		OpenTimeout: cfg.Playback.OpenTimeout,
	}, logging.Component(logger, "playback"))
	defer manager.Close()

	directoryService := application.NewDirectoryService(repo, sources, verified, logging.Component(logger, "directory"))
	playbackService := application.NewPlaybackService(directoryService, manager, logging.Component(logger, "playback"))
	playlistService := application.NewPlaylistService(directoryService, cfg.Playlist.GuideURLs)
	healthService := application.NewHealthService(repo, directoryService, swarms, breakers, logging.Component(logger, "health"))

	handler, err := driver.NewRouter(driver.RouterConfig{
		Directory:  directoryService,
		Playback:   playbackService,
		Playlist:   playlistService,
		Health:     healthService,
		SwarmFiles: swarmFiles,
		Logger:     logging.Component(logger, "http"),
	})
	if err != nil {
		return fmt.Errorf("build router: %w", err)
	}

	if err := directoryService.Load(ctx); err != nil {
		logger.Warn().Err(err).Msg("no persisted directory, starting empty")
	}

	watchCtx, stopWatch := context.WithCancel(context.Background())
	playbackService.Watch(watchCtx)

	refreshCtx, stopRefresh := context.WithCancel(ctx)
	refreshDone := make(chan struct{})
	go func() {
		defer close(refreshDone)
		directoryService.Run(refreshCtx, cfg.Refresh.Interval)
	}()

	server := driver.NewServer(cfg.Addr(), handler)

	serveErr := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", server.Addr).Msg("http server listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	var runErr error
	select {
	case <-ctx.Done():
		logger.Info().Msg("shutdown signal received, shutting down gracefully")
	case err := <-serveErr:
		runErr = fmt.Errorf("http server: %w", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("server shutdown error")
	}

	stopRefresh()
	directoryService.Close()
	<-refreshDone

	manager.Close()
	stopWatch()
	playbackService.Wait()

	logger.Info().Msg("server stopped")
	return runErr
}
