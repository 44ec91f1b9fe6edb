package driver

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/alorle/iptv-hub/internal/application"
	"github.com/alorle/iptv-hub/internal/channel"
	"github.com/alorle/iptv-hub/internal/playback"
	"github.com/alorle/iptv-hub/logging"
)

const sseHeartbeat = 15 * time.Second

// PlaybackHTTPHandler handles HTTP requests for playback control.
type PlaybackHTTPHandler struct {
	service   *application.PlaybackService
	directory *application.DirectoryService
	logger    zerolog.Logger
}

// NewPlaybackHTTPHandler creates a new HTTP handler for playback.
func NewPlaybackHTTPHandler(service *application.PlaybackService, directory *application.DirectoryService, logger zerolog.Logger) *PlaybackHTTPHandler {
	return &PlaybackHTTPHandler{service: service, directory: directory, logger: logger}
}

type selectRequest struct {
	ID string `json:"id"`
}

// playbackResponse represents the playback status in JSON format.
type playbackResponse struct {
	State        playback.State    `json:"state"`
	Channel      *channelResponse  `json:"channel,omitempty"`
	Handle       *playback.Handle  `json:"handle,omitempty"`
	Error        string            `json:"error,omitempty"`
	Reason       string            `json:"reason,omitempty"`
	Alternatives []channelResponse `json:"alternatives,omitempty"`
}

// eventResponse is the payload of one Server-Sent Event.
type eventResponse struct {
	State      playback.State         `json:"state"`
	Channel    *channelResponse       `json:"channel,omitempty"`
	HandleID   string                 `json:"handle_id,omitempty"`
	Generation uint64                 `json:"generation"`
	Kind       playback.TransportKind `json:"kind"`
	Error      string                 `json:"error,omitempty"`
	Reason     string                 `json:"reason,omitempty"`
}

func (h *PlaybackHTTPHandler) channelRef(ch *channel.Channel) *channelResponse {
	if ch == nil {
		return nil
	}
	resp := toChannelResponse(*ch, h.directory.IsVerified(ch.ID))
	return &resp
}

func (h *PlaybackHTTPHandler) status() playbackResponse {
	st := h.service.Status()
	resp := playbackResponse{
		State:   st.State,
		Channel: h.channelRef(st.Channel),
		Handle:  st.Handle,
	}
	if st.Err != nil {
		resp.Error = st.Err.Error()
		resp.Reason = playback.Reason(st.Err)
	}
	for _, alt := range st.Alternatives {
		resp.Alternatives = append(resp.Alternatives, toChannelResponse(alt, h.directory.IsVerified(alt.ID)))
	}
	return resp
}

// Status handles GET /api/playback
func (h *PlaybackHTTPHandler) Status(w http.ResponseWriter, r *http.Request) {
	logging.WriteJSON(w, h.logger, http.StatusOK, h.status())
}

// Select handles POST /api/playback/select
func (h *PlaybackHTTPHandler) Select(w http.ResponseWriter, r *http.Request) {
	l := logging.FromContext(r.Context(), h.logger)

	var req selectRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		logging.WriteJSONError(w, l, "invalid request body", http.StatusBadRequest)
		return
	}

	if err := h.service.Select(r.Context(), req.ID); err != nil {
		switch {
		case errors.Is(err, channel.ErrChannelNotFound):
			logging.WriteJSONError(w, l, "channel not found", http.StatusNotFound)
		case errors.Is(err, playback.ErrNoPlayableSource):
			logging.WriteJSONError(w, l, err.Error(), http.StatusUnprocessableEntity)
		case errors.Is(err, playback.ErrManagerClosed):
			logging.WriteJSONError(w, l, err.Error(), http.StatusServiceUnavailable)
		default:
			logging.WriteJSONError(w, l, err.Error(), http.StatusBadGateway)
		}
		return
	}
	logging.WriteJSON(w, l, http.StatusOK, h.status())
}

// Stop handles POST /api/playback/stop
func (h *PlaybackHTTPHandler) Stop(w http.ResponseWriter, r *http.Request) {
	h.service.Stop()
	logging.WriteJSON(w, h.logger, http.StatusOK, h.status())
}

// Toggle handles POST /api/playback/toggle
func (h *PlaybackHTTPHandler) Toggle(w http.ResponseWriter, r *http.Request) {
	l := logging.FromContext(r.Context(), h.logger)
	if err := h.service.TogglePause(); err != nil {
		if errors.Is(err, playback.ErrNotPlaying) {
			logging.WriteJSONError(w, l, err.Error(), http.StatusConflict)
			return
		}
		logging.WriteJSONError(w, l, err.Error(), http.StatusBadGateway)
		return
	}
	logging.WriteJSON(w, l, http.StatusOK, h.status())
}

// Events handles GET /api/playback/events as a Server-Sent Events stream.
// The current status is sent first, then one event per state change.
func (h *PlaybackHTTPHandler) Events(w http.ResponseWriter, r *http.Request) {
	l := logging.FromContext(r.Context(), h.logger)
	rc := http.NewResponseController(w)

	events, cancel := h.service.Events()
	defer cancel()

	// the stream outlives the server write timeout
	_ = rc.SetWriteDeadline(time.Time{})

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	st := h.status()
	if err := h.writeEvent(w, rc, "status", st); err != nil {
		return
	}

	heartbeat := time.NewTicker(sseHeartbeat)
	defer heartbeat.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-heartbeat.C:
			if _, err := fmt.Fprint(w, ": keep-alive\n\n"); err != nil {
				return
			}
			if err := rc.Flush(); err != nil {
				return
			}
		case ev, ok := <-events:
			if !ok {
				l.Debug().Msg("playback event stream closed")
				return
			}
			payload := eventResponse{
				State:      ev.State,
				Channel:    h.channelRef(ev.Channel),
				HandleID:   ev.HandleID,
				Generation: ev.Generation,
				Kind:       ev.Kind,
			}
			if ev.Err != nil {
				payload.Error = ev.Err.Error()
				payload.Reason = playback.Reason(ev.Err)
			}
			if err := h.writeEvent(w, rc, "state", payload); err != nil {
				return
			}
		}
	}
}

func (h *PlaybackHTTPHandler) writeEvent(w http.ResponseWriter, rc *http.ResponseController, name string, data any) error {
	body, err := json.Marshal(data)
	if err != nil {
		return err
	}
	if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", name, body); err != nil {
		return err
	}
	return rc.Flush()
}
