// Package handlers contains HTTP request handlers.
package handlers

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/savid/iptv-udp-buffer/config"
	"github.com/savid/iptv-udp-buffer/internal/alloc"
	"github.com/savid/iptv-udp-buffer/internal/ingest"
	"github.com/savid/iptv-udp-buffer/internal/policy"
	"github.com/savid/iptv-udp-buffer/internal/relay"
	"github.com/savid/iptv-udp-buffer/pkg/types"
)

// Session end reasons reported to the Recorder.
const (
	EndClosed      = "closed"
	EndStalled     = "stalled"
	EndSourceError = "source_error"
	EndError       = "error"
)

// Recorder observes stream sources and finished relay sessions.
type Recorder interface {
	ingest.Listener
	RecordSessionEnd(reason string, source types.SourceStats, buffer types.BufferStats, seconds float64)
}

// StreamHandler relays a UDP or RTP endpoint named in the request path, e.g.
// /udp/239.0.0.1:1234, to the client as an MPEG-TS stream.
type StreamHandler struct {
	scheme   string
	cfg      *config.Config
	registry *relay.Registry
	recorder Recorder
	logger   logrus.FieldLogger
}

// NewStreamHandler creates a handler for endpoints of the given scheme. recorder may be nil.
func NewStreamHandler(scheme string, cfg *config.Config, registry *relay.Registry, recorder Recorder, logger logrus.FieldLogger) *StreamHandler {
	return &StreamHandler{
		scheme:   scheme,
		cfg:      cfg,
		registry: registry,
		recorder: recorder,
		logger:   logger,
	}
}

// Prefix returns the route this handler serves.
func (h *StreamHandler) Prefix() string {
	return "/" + h.scheme + "/"
}

func (h *StreamHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", http.MethodGet)
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	hostport := strings.TrimPrefix(r.URL.Path, h.Prefix())
	if hostport == "" {
		http.Error(w, "Missing stream address", http.StatusBadRequest)
		return
	}

	ep, err := ingest.EndpointFromHostPort(h.scheme, hostport)
	if err != nil || ep.Port == 0 {
		http.Error(w, "Invalid stream address", http.StatusBadRequest)
		return
	}

	logger := h.logger.WithFields(logrus.Fields{
		"endpoint": ep.String(),
		"remote":   r.RemoteAddr,
	})

	opts := append(h.cfg.SourceOptions(), ingest.WithLogger(logger))
	if h.recorder != nil {
		opts = append(opts, ingest.WithListener(h.recorder))
	}
	src := ingest.New(opts...)

	if _, err := src.Open(r.Context(), ep); err != nil {
		logger.WithError(err).Error("Failed to open stream source")
		var connectErr *ingest.ConnectError
		if errors.As(err, &connectErr) {
			http.Error(w, "Failed to open stream source", http.StatusBadGateway)
			return
		}
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	defer func() {
		if err := src.Close(); err != nil {
			logger.WithError(err).Debug("Error closing stream source")
		}
	}()

	// Tracks were validated with the configuration.
	tracks, _ := h.cfg.TrackSelection()
	a := alloc.New(h.cfg.SegmentSize)
	pol := policy.New(a, h.cfg.PolicyConfig())
	rl := relay.New(src, pol, a, relay.Config{
		Tracks:        tracks,
		Bitrate:       h.cfg.Bitrate,
		StallTimeout:  h.cfg.StallTimeout,
		RebufferDelay: h.cfg.RebufferDelay,
	}, logger)
	defer pol.OnReleased()

	session := h.registry.Add(src.Endpoint().String(), r.RemoteAddr, rl, src)
	defer h.registry.Remove(session.ID)

	w.Header().Set("Content-Type", "video/mp2t")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("X-Session-ID", session.ID)
	w.WriteHeader(http.StatusOK)
	if f, ok := w.(http.Flusher); ok {
		f.Flush()
	}

	logger.WithField("session", session.ID).Info("Relay session started")

	start := time.Now()
	err = rl.Run(r.Context(), w)
	elapsed := time.Since(start)
	reason := endReason(err)

	if h.recorder != nil {
		h.recorder.RecordSessionEnd(reason, src.Stats(), rl.Stats(), elapsed.Seconds())
	}

	entry := logger.WithFields(logrus.Fields{
		"session":  session.ID,
		"reason":   reason,
		"duration": elapsed.String(),
		"bytes":    rl.Stats().BytesWritten,
	})
	if reason == EndClosed {
		entry.Info("Relay session ended")
		return
	}
	// Headers are already sent, so the error can only be logged.
	entry.WithError(err).Warn("Relay session ended")
}

func endReason(err error) string {
	var transferErr *ingest.TransferError
	switch {
	case err == nil, errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return EndClosed
	case errors.Is(err, relay.ErrStalled):
		return EndStalled
	case errors.As(err, &transferErr):
		return EndSourceError
	default:
		return EndError
	}
}
