package driver

import (
	"errors"
	"net/http"
	"net/url"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/alorle/iptv-hub/internal/application"
	"github.com/alorle/iptv-hub/internal/channel"
	"github.com/alorle/iptv-hub/internal/playback"
	"github.com/alorle/iptv-hub/logging"
)

// ChannelHTTPHandler handles HTTP requests for the channel directory.
type ChannelHTTPHandler struct {
	service *application.DirectoryService
	logger  zerolog.Logger
}

// NewChannelHTTPHandler creates a new HTTP handler for the directory.
func NewChannelHTTPHandler(service *application.DirectoryService, logger zerolog.Logger) *ChannelHTTPHandler {
	return &ChannelHTTPHandler{service: service, logger: logger}
}

// channelResponse represents a channel in JSON format.
type channelResponse struct {
	ID       string                 `json:"id"`
	Name     string                 `json:"name"`
	URL      string                 `json:"url,omitempty"`
	Logo     string                 `json:"logo,omitempty"`
	Group    string                 `json:"group,omitempty"`
	Country  string                 `json:"country,omitempty"`
	Language string                 `json:"language,omitempty"`
	Kind     playback.TransportKind `json:"kind"`
	Verified bool                   `json:"verified"`
}

type categoryResponse struct {
	Name     string            `json:"name"`
	Channels []channelResponse `json:"channels"`
}

type directoryResponse struct {
	Channels    int                        `json:"channels"`
	Verified    int                        `json:"verified"`
	LastRefresh *application.RefreshReport `json:"last_refresh,omitempty"`
}

// toChannelResponse converts a channel to its API representation.
func toChannelResponse(ch channel.Channel, verified bool) channelResponse {
	return channelResponse{
		ID:       ch.ID,
		Name:     ch.Name,
		URL:      ch.URL,
		Logo:     ch.Logo,
		Group:    ch.Group,
		Country:  ch.Country,
		Language: ch.Language,
		Kind:     playback.Classify(ch),
		Verified: verified,
	}
}

func (h *ChannelHTTPHandler) toResponses(chans []channel.Channel) []channelResponse {
	out := make([]channelResponse, 0, len(chans))
	for _, ch := range chans {
		out = append(out, toChannelResponse(ch, h.service.IsVerified(ch.ID)))
	}
	return out
}

// channelID reads the {id} path parameter.
func channelID(r *http.Request) string {
	raw := chi.URLParam(r, "id")
	if id, err := url.PathUnescape(raw); err == nil {
		return id
	}
	return raw
}

// List handles GET /api/channels
func (h *ChannelHTTPHandler) List(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	chans := h.service.ListChannels(q.Get("q"), q.Get("group"))
	logging.WriteJSON(w, h.logger, http.StatusOK, h.toResponses(chans))
}

// Get handles GET /api/channels/{id}
func (h *ChannelHTTPHandler) Get(w http.ResponseWriter, r *http.Request) {
	id := channelID(r)
	ch, err := h.service.GetChannel(id)
	if err != nil {
		h.writeLookupError(w, r, err)
		return
	}
	logging.WriteJSON(w, h.logger, http.StatusOK, toChannelResponse(ch, h.service.IsVerified(id)))
}

// Alternatives handles GET /api/channels/{id}/alternatives
func (h *ChannelHTTPHandler) Alternatives(w http.ResponseWriter, r *http.Request) {
	alts, err := h.service.Alternatives(channelID(r))
	if err != nil {
		h.writeLookupError(w, r, err)
		return
	}
	logging.WriteJSON(w, h.logger, http.StatusOK, h.toResponses(alts))
}

// Categories handles GET /api/categories
func (h *ChannelHTTPHandler) Categories(w http.ResponseWriter, r *http.Request) {
	cats := h.service.Categories()
	out := make([]categoryResponse, 0, len(cats))
	for _, c := range cats {
		out = append(out, categoryResponse{Name: c.Name, Channels: h.toResponses(c.Channels)})
	}
	logging.WriteJSON(w, h.logger, http.StatusOK, out)
}

// Directory handles GET /api/directory
func (h *ChannelHTTPHandler) Directory(w http.ResponseWriter, r *http.Request) {
	dir := h.service.Directory()
	resp := directoryResponse{
		Channels: dir.Len(),
		Verified: len(dir.VerifiedIDs()),
	}
	if report, ok := h.service.LastRefresh(); ok {
		resp.LastRefresh = &report
	}
	logging.WriteJSON(w, h.logger, http.StatusOK, resp)
}

// Refresh handles POST /api/directory/refresh
func (h *ChannelHTTPHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	l := logging.FromContext(r.Context(), h.logger)
	report, err := h.service.Refresh(r.Context())
	if err != nil {
		logging.WriteJSONError(w, l, err.Error(), http.StatusBadGateway)
		return
	}
	logging.WriteJSON(w, l, http.StatusOK, report)
}

func (h *ChannelHTTPHandler) writeLookupError(w http.ResponseWriter, r *http.Request, err error) {
	l := logging.FromContext(r.Context(), h.logger)
	if errors.Is(err, channel.ErrChannelNotFound) {
		logging.WriteJSONError(w, l, "channel not found", http.StatusNotFound)
		return
	}
	logging.WriteJSONError(w, l, "internal server error", http.StatusInternalServerError)
}
