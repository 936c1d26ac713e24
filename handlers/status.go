package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/savid/iptv-udp-buffer/internal/data"
	"github.com/savid/iptv-udp-buffer/internal/relay"
)

// StatusResponse is the body of GET /status.
type StatusResponse struct {
	Sessions []relay.SessionInfo `json:"sessions"`
	Playlist *PlaylistStatus     `json:"playlist,omitempty"`
}

// PlaylistStatus describes the loaded playlist.
type PlaylistStatus struct {
	Channels  int       `json:"channels"`
	Relayed   int       `json:"relayed"`
	UpdatedAt time.Time `json:"updated_at,omitzero"`
	LastError string    `json:"last_error,omitempty"`
}

// StatusHandler reports active relay sessions and the playlist state as JSON.
type StatusHandler struct {
	registry *relay.Registry
	store    *data.Store
	logger   logrus.FieldLogger
}

// NewStatusHandler creates a status handler. store may be nil when no playlist is configured.
func NewStatusHandler(registry *relay.Registry, store *data.Store, logger logrus.FieldLogger) *StatusHandler {
	return &StatusHandler{
		registry: registry,
		store:    store,
		logger:   logger,
	}
}

func (h *StatusHandler) ServeHTTP(w http.ResponseWriter, _ *http.Request) {
	resp := StatusResponse{Sessions: h.registry.Snapshot()}

	if h.store != nil {
		ps := &PlaylistStatus{}
		if p, ok := h.store.Playlist(); ok {
			ps.Channels = len(p.Channels)
			ps.Relayed = p.Relayed
			ps.UpdatedAt = p.UpdatedAt
		}
		if err := h.store.LastError(); err != nil {
			ps.LastError = err.Error()
		}
		resp.Playlist = ps
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		h.logger.WithError(err).Error("Failed to encode status")
	}
}
