package handlers

import (
	"net/http"
	"strconv"

	"github.com/sirupsen/logrus"

	"github.com/savid/iptv-udp-buffer/internal/data"
)

// PlaylistHandler serves the rewritten M3U playlist.
type PlaylistHandler struct {
	store  *data.Store
	logger logrus.FieldLogger
}

// NewPlaylistHandler creates a playlist handler.
func NewPlaylistHandler(store *data.Store, logger logrus.FieldLogger) *PlaylistHandler {
	return &PlaylistHandler{
		store:  store,
		logger: logger,
	}
}

func (h *PlaylistHandler) ServeHTTP(w http.ResponseWriter, _ *http.Request) {
	p, ok := h.store.Playlist()
	if !ok {
		h.logger.Error("Playlist not available")
		http.Error(w, "Playlist not available", http.StatusServiceUnavailable)
		return
	}

	w.Header().Set("Content-Type", "application/vnd.apple.mpegurl")
	w.Header().Set("Content-Length", strconv.Itoa(len(p.Raw)))
	_, _ = w.Write(p.Raw)
}
