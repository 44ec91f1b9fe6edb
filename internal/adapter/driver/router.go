package driver

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/alorle/iptv-hub/internal/application"
	"github.com/alorle/iptv-hub/internal/port/driven"
)

// RouterConfig lists the services exposed over HTTP.
type RouterConfig struct {
	Directory *application.DirectoryService
	Playback  *application.PlaybackService
	Playlist  *application.PlaylistService
	Health    *application.HealthService
	// SwarmFiles serves peer-swarm blobs. Nil disables /swarm.
	SwarmFiles driven.SwarmFileOpener
	Logger     zerolog.Logger
}

// NewRouter builds the HTTP handler: the JSON API under /api (validated
// against the embedded OpenAPI document), the M3U export, Prometheus metrics
// and swarm blobs.
func NewRouter(cfg RouterConfig) (http.Handler, error) {
	doc, err := LoadOpenAPI()
	if err != nil {
		return nil, err
	}

	logger := cfg.Logger
	channels := NewChannelHTTPHandler(cfg.Directory, logger)
	playback := NewPlaybackHTTPHandler(cfg.Playback, cfg.Directory, logger)

	r := chi.NewRouter()
	r.Use(requestID)
	r.Use(recoverer(logger))
	r.Use(accessLog(logger))

	r.Route("/api", func(r chi.Router) {
		r.Use(requestValidator(doc, logger))

		r.Get("/channels", channels.List)
		r.Get("/channels/{id}", channels.Get)
		r.Get("/channels/{id}/alternatives", channels.Alternatives)
		r.Get("/categories", channels.Categories)
		r.Get("/directory", channels.Directory)
		r.Post("/directory/refresh", channels.Refresh)

		r.Get("/playback", playback.Status)
		r.Post("/playback/select", playback.Select)
		r.Post("/playback/stop", playback.Stop)
		r.Post("/playback/toggle", playback.Toggle)
		r.Get("/playback/events", playback.Events)

		r.Method(http.MethodGet, "/health", NewHealthHTTPHandler(cfg.Health, logger))
		r.Get("/openapi.json", openAPIHandler(doc, logger))
	})

	r.Method(http.MethodGet, "/playlist.m3u", NewPlaylistHTTPHandler(cfg.Playlist, logger))
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	if cfg.SwarmFiles != nil {
		swarm := NewSwarmHTTPHandler(cfg.SwarmFiles, logger)
		r.Method(http.MethodGet, "/swarm/{infohash}/{index}", swarm)
		r.Method(http.MethodHead, "/swarm/{infohash}/{index}", swarm)
	}

	return r, nil
}
