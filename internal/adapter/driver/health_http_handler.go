package driver

import (
	"net/http"

	"github.com/rs/zerolog"

	"github.com/alorle/iptv-hub/internal/application"
	"github.com/alorle/iptv-hub/logging"
)

// HealthHTTPHandler handles HTTP requests for health checks.
type HealthHTTPHandler struct {
	service *application.HealthService
	logger  zerolog.Logger
}

// NewHealthHTTPHandler creates a new HTTP handler for health checks.
func NewHealthHTTPHandler(service *application.HealthService, logger zerolog.Logger) *HealthHTTPHandler {
	return &HealthHTTPHandler{service: service, logger: logger}
}

// ServeHTTP handles GET /api/health
func (h *HealthHTTPHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	status := h.service.Check(r.Context())

	httpStatus := http.StatusOK
	if status.Status != "ok" {
		httpStatus = http.StatusServiceUnavailable
	}

	logging.WriteJSON(w, h.logger, httpStatus, status)
}
