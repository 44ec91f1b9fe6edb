package driver

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/alorle/iptv-hub/internal/port/driven"
	"github.com/alorle/iptv-hub/logging"
)

// SwarmHTTPHandler serves swarm file bytes at /swarm/{infohash}/{index}. These
// are the blob locators handed to the media sink for peer-swarm playback.
type SwarmHTTPHandler struct {
	files  driven.SwarmFileOpener
	logger zerolog.Logger
}

// NewSwarmHTTPHandler creates a new HTTP handler for swarm files.
func NewSwarmHTTPHandler(files driven.SwarmFileOpener, logger zerolog.Logger) *SwarmHTTPHandler {
	return &SwarmHTTPHandler{files: files, logger: logger}
}

// ServeHTTP handles GET and HEAD /swarm/{infohash}/{index}, including range requests.
func (h *SwarmHTTPHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	l := logging.FromContext(r.Context(), h.logger)

	index, err := strconv.Atoi(chi.URLParam(r, "index"))
	if err != nil || index < 0 {
		logging.WriteJSONError(w, l, "invalid file index", http.StatusBadRequest)
		return
	}

	name, content, err := h.files.OpenFile(chi.URLParam(r, "infohash"), index)
	switch {
	case errors.Is(err, driven.ErrSwarmNotFound), errors.Is(err, driven.ErrSwarmFileNotFound):
		logging.WriteJSONError(w, l, err.Error(), http.StatusNotFound)
		return
	case errors.Is(err, driven.ErrSwarmNoMetadata):
		logging.WriteJSONError(w, l, err.Error(), http.StatusServiceUnavailable)
		return
	case err != nil:
		logging.WriteJSONError(w, l, "internal server error", http.StatusInternalServerError)
		return
	}
	defer func() { _ = content.Close() }()

	// pieces may take a while to arrive
	_ = http.NewResponseController(w).SetWriteDeadline(time.Time{})
	http.ServeContent(w, r, name, time.Time{}, content)
}
