package driven

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/bluenviron/gohlslib/v2/pkg/playlist"
	"github.com/rs/zerolog"

	"github.com/alorle/iptv-hub/circuitbreaker"
	port "github.com/alorle/iptv-hub/internal/port/driven"
)

// ErrEmptyPlaylist is reported when a manifest has no variants or segments.
var ErrEmptyPlaylist = errors.New("playlist has no playable entries")

const maxManifestBytes = 4 << 20

// HLSConfig configures the HLS engine.
type HLSConfig struct {
	// PollInterval overrides the reload period of live media playlists.
	// Zero uses the playlist target duration.
	PollInterval time.Duration
	// FailureThreshold is the number of consecutive reload failures that make a
	// stream fatal.
	FailureThreshold int
	UserAgent        string
	HTTPClient       *http.Client
}

// HLSEngine implements the SegmentEngine port. It loads the manifest, resolves
// a multivariant playlist to its highest bandwidth variant and keeps reloading
// live media playlists until the stream is destroyed.
type HLSEngine struct {
	cfg    HLSConfig
	http   *http.Client
	logger zerolog.Logger
}

// NewHLSEngine creates an HLS engine.
func NewHLSEngine(cfg HLSConfig, logger zerolog.Logger) *HLSEngine {
	hc := cfg.HTTPClient
	if hc == nil {
		hc = &http.Client{Timeout: 15 * time.Second}
	}
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = 3
	}
	return &HLSEngine{cfg: cfg, http: hc, logger: logger}
}

// LoadSource starts loading url in the background.
func (e *HLSEngine) LoadSource(ctx context.Context, rawURL string, emit func(port.EngineEvent)) (port.SegmentStream, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("parse manifest url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("unsupported manifest scheme %q", u.Scheme)
	}

	ctx, cancel := context.WithCancel(ctx)
	s := &hlsStream{
		engine: e,
		url:    u,
		emit:   emit,
		cancel: cancel,
		done:   make(chan struct{}),
		logger: e.logger.With().Str("manifest", rawURL).Logger(),
	}
	s.breaker = circuitbreaker.New(circuitbreaker.Config{
		FailureThreshold: e.cfg.FailureThreshold,
		Timeout:          time.Hour,
		Name:             u.Host,
		Logger:           &s.logger,
	})

	go s.run(ctx)
	return s, nil
}

type hlsStream struct {
	engine  *HLSEngine
	url     *url.URL
	emit    func(port.EngineEvent)
	breaker circuitbreaker.CircuitBreaker
	logger  zerolog.Logger

	cancel context.CancelFunc
	done   chan struct{}
	once   sync.Once

	mu   sync.Mutex
	sink port.MediaSink
}

// AttachTarget points sink at the manifest.
func (s *hlsStream) AttachTarget(sink port.MediaSink) error {
	s.mu.Lock()
	s.sink = sink
	s.mu.Unlock()
	return sink.SetSource(s.url.String())
}

// Destroy stops the reload loop and waits for it to exit.
func (s *hlsStream) Destroy() {
	s.once.Do(func() {
		s.cancel()
		<-s.done
		s.mu.Lock()
		s.sink = nil
		s.mu.Unlock()
	})
}

func (s *hlsStream) report(ctx context.Context, ev port.EngineEvent) {
	if ctx.Err() != nil {
		return
	}
	s.emit(ev)
}

func (s *hlsStream) run(ctx context.Context) {
	defer close(s.done)

	media, mediaURL, err := s.open(ctx)
	if err != nil {
		if ctx.Err() == nil {
			s.logger.Warn().Err(err).Msg("HLS manifest load failed")
		}
		s.report(ctx, port.EngineEvent{Kind: port.EngineFatalError, Err: err})
		return
	}
	s.report(ctx, port.EngineEvent{Kind: port.EngineManifestParsed})

	if media.Endlist {
		return
	}
	s.poll(ctx, media, mediaURL)
}

// open loads the manifest and, for a multivariant playlist, its best variant.
func (s *hlsStream) open(ctx context.Context) (*playlist.Media, *url.URL, error) {
	pl, err := s.load(ctx, s.url)
	if err != nil {
		return nil, nil, err
	}

	switch pl := pl.(type) {
	case *playlist.Media:
		if len(pl.Segments) == 0 {
			return nil, nil, ErrEmptyPlaylist
		}
		return pl, s.url, nil

	case *playlist.Multivariant:
		variant := bestVariant(pl)
		if variant == nil {
			return nil, nil, ErrEmptyPlaylist
		}
		ref, err := url.Parse(variant.URI)
		if err != nil {
			return nil, nil, fmt.Errorf("parse variant uri: %w", err)
		}
		mediaURL := s.url.ResolveReference(ref)

		sub, err := s.load(ctx, mediaURL)
		if err != nil {
			return nil, nil, fmt.Errorf("variant: %w", err)
		}
		media, ok := sub.(*playlist.Media)
		if !ok || len(media.Segments) == 0 {
			return nil, nil, ErrEmptyPlaylist
		}
		return media, mediaURL, nil

	default:
		return nil, nil, fmt.Errorf("unsupported playlist type %T", pl)
	}
}

func bestVariant(pl *playlist.Multivariant) *playlist.MultivariantVariant {
	var best *playlist.MultivariantVariant
	for _, v := range pl.Variants {
		if best == nil || v.Bandwidth > best.Bandwidth {
			best = v
		}
	}
	return best
}

// poll reloads a live media playlist. Failures go through the breaker; once it
// opens the stream is reported as fatal.
func (s *hlsStream) poll(ctx context.Context, media *playlist.Media, mediaURL *url.URL) {
	interval := s.engine.cfg.PollInterval
	if interval <= 0 {
		interval = time.Duration(media.TargetDuration) * time.Second
	}
	if interval <= 0 {
		interval = 2 * time.Second
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	lastSeq := media.MediaSequence
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		err := s.breaker.Execute(func() error {
			pl, err := s.load(ctx, mediaURL)
			if err != nil {
				return err
			}
			m, ok := pl.(*playlist.Media)
			if !ok {
				return fmt.Errorf("expected media playlist, got %T", pl)
			}
			media = m
			return nil
		})
		switch {
		case ctx.Err() != nil:
			return
		case errors.Is(err, circuitbreaker.ErrCircuitOpen):
			s.report(ctx, port.EngineEvent{Kind: port.EngineFatalError, Err: fmt.Errorf("playlist reload: %w", err)})
			return
		case err != nil:
			s.logger.Debug().Err(err).Msg("HLS playlist reload failed")
			continue
		}

		if media.MediaSequence != lastSeq {
			s.logger.Trace().Int("sequence", media.MediaSequence).Msg("HLS playlist advanced")
			lastSeq = media.MediaSequence
		}
		if media.Endlist {
			return
		}
	}
}

func (s *hlsStream) load(ctx context.Context, u *url.URL) (playlist.Playlist, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	if ua := s.engine.cfg.UserAgent; ua != "" {
		req.Header.Set("User-Agent", ua)
	}

	resp, err := s.engine.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch playlist: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch playlist: HTTP status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxManifestBytes))
	if err != nil {
		return nil, fmt.Errorf("read playlist: %w", err)
	}

	pl, err := playlist.Unmarshal(body)
	if err != nil {
		return nil, fmt.Errorf("decode playlist: %w", err)
	}
	return pl, nil
}
