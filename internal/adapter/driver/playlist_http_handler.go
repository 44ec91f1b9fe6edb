package driver

import (
	"bytes"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/alorle/iptv-hub/internal/application"
	"github.com/alorle/iptv-hub/logging"
)

// PlaylistHTTPHandler handles HTTP requests for playlist generation.
type PlaylistHTTPHandler struct {
	service *application.PlaylistService
	logger  zerolog.Logger
}

// NewPlaylistHTTPHandler creates a new HTTP handler for playlists.
func NewPlaylistHTTPHandler(service *application.PlaylistService, logger zerolog.Logger) *PlaylistHTTPHandler {
	return &PlaylistHTTPHandler{service: service, logger: logger}
}

// ServeHTTP handles GET /playlist.m3u
func (h *PlaylistHTTPHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var buf bytes.Buffer
	if err := h.service.WriteM3U(&buf, r.URL.Query().Get("group")); err != nil {
		logging.WriteJSONError(w, logging.FromContext(r.Context(), h.logger), "internal server error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "audio/mpegurl")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(buf.Bytes())
}
