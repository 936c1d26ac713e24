package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/savid/iptv-udp-buffer/config"
	"github.com/savid/iptv-udp-buffer/internal/data"
	"github.com/savid/iptv-udp-buffer/internal/ingest"
	"github.com/savid/iptv-udp-buffer/internal/relay"
	"github.com/savid/iptv-udp-buffer/pkg/types"
)

type fakeRecorder struct {
	ingest.NopListener

	mu      sync.Mutex
	reasons []string
	source  types.SourceStats
}

func (r *fakeRecorder) RecordSessionEnd(reason string, source types.SourceStats, _ types.BufferStats, _ float64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.reasons = append(r.reasons, reason)
	r.source = source
}

func (r *fakeRecorder) ends() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.reasons...)
}

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

func testConfig() *config.Config {
	return &config.Config{
		Port:           8080,
		BaseURL:        "http://localhost:8080",
		LogLevel:       "info",
		MaxPacketSize:  2000,
		SocketTimeout:  20 * time.Millisecond,
		QueueCapacity:  128,
		OverflowPolicy: "drop-oldest",
		SegmentSize:    1024,
		Bitrate:        8_000_000,
		StallTimeout:   5 * time.Second,
		Tracks:         "video,audio",
	}
}

// freeUDPPort returns a loopback port that was free a moment ago.
func freeUDPPort(t *testing.T) int {
	t.Helper()
	conn, err := net.ListenUDP("udp4", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)})
	require.NoError(t, err)
	port := conn.LocalAddr().(*net.UDPAddr).Port
	require.NoError(t, conn.Close())
	return port
}

func TestStreamHandlerRelaysDatagrams(t *testing.T) {
	registry := relay.NewRegistry()
	recorder := &fakeRecorder{}
	h := NewStreamHandler(types.SchemeUDP, testConfig(), registry, recorder, quietLogger())

	mux := http.NewServeMux()
	mux.Handle(h.Prefix(), LoggingMiddleware(quietLogger())(h))
	srv := httptest.NewServer(mux)
	defer srv.Close()

	port := freeUDPPort(t)
	resp, err := http.Get(srv.URL + "/udp/127.0.0.1:" + strconv.Itoa(port))
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "video/mp2t", resp.Header.Get("Content-Type"))
	assert.NotEmpty(t, resp.Header.Get(RequestIDHeader))
	assert.NotEmpty(t, resp.Header.Get("X-Session-ID"))
	require.Equal(t, 1, registry.Len())

	sender, err := net.DialUDP("udp4", nil, &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1), Port: port})
	require.NoError(t, err)
	defer sender.Close()

	want := []byte("first-datagram|second-datagram|third")
	for _, d := range [][]byte{want[:15], want[15:31], want[31:]} {
		_, err := sender.Write(d)
		require.NoError(t, err)
	}

	got := make([]byte, len(want))
	_, err = io.ReadFull(resp.Body, got)
	require.NoError(t, err)
	assert.Equal(t, want, got)

	snapshot := registry.Snapshot()
	require.Len(t, snapshot, 1)
	assert.Equal(t, "udp://127.0.0.1:"+strconv.Itoa(port), snapshot[0].Endpoint)

	require.NoError(t, resp.Body.Close())
	require.Eventually(t, func() bool { return registry.Len() == 0 }, 2*time.Second, 10*time.Millisecond)
	require.Eventually(t, func() bool { return len(recorder.ends()) == 1 }, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, []string{EndClosed}, recorder.ends())
	assert.Equal(t, uint64(3), recorder.source.PacketsReceived)
}

func TestStreamHandlerStall(t *testing.T) {
	cfg := testConfig()
	cfg.StallTimeout = 50 * time.Millisecond
	recorder := &fakeRecorder{}
	h := NewStreamHandler(types.SchemeUDP, cfg, relay.NewRegistry(), recorder, quietLogger())

	req := httptest.NewRequest(http.MethodGet, "/udp/127.0.0.1:"+strconv.Itoa(freeUDPPort(t)), nil)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Zero(t, w.Body.Len())
	assert.Equal(t, []string{EndStalled}, recorder.ends())
}

func TestStreamHandlerRejectsBadRequests(t *testing.T) {
	h := NewStreamHandler(types.SchemeRTP, testConfig(), relay.NewRegistry(), nil, quietLogger())

	tests := []struct {
		name   string
		method string
		path   string
		status int
	}{
		{"missing address", http.MethodGet, "/rtp/", http.StatusBadRequest},
		{"missing port", http.MethodGet, "/rtp/239.0.0.1", http.StatusBadRequest},
		{"bad port", http.MethodGet, "/rtp/239.0.0.1:99999", http.StatusBadRequest},
		{"zero port", http.MethodGet, "/rtp/239.0.0.1:0", http.StatusBadRequest},
		{"post", http.MethodPost, "/rtp/239.0.0.1:5004", http.StatusMethodNotAllowed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			h.ServeHTTP(w, httptest.NewRequest(tt.method, tt.path, nil))
			assert.Equal(t, tt.status, w.Code)
		})
	}
}

func TestStreamHandlerBindFailure(t *testing.T) {
	taken, err := net.ListenUDP("udp4", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)})
	require.NoError(t, err)
	defer taken.Close()

	registry := relay.NewRegistry()
	h := NewStreamHandler(types.SchemeUDP, testConfig(), registry, nil, quietLogger())

	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/udp/"+taken.LocalAddr().String(), nil))

	assert.Equal(t, http.StatusBadGateway, w.Code)
	assert.Zero(t, registry.Len())
}

func TestEndReason(t *testing.T) {
	assert.Equal(t, EndClosed, endReason(nil))
	assert.Equal(t, EndStalled, endReason(relay.ErrStalled))
	assert.Equal(t, EndSourceError, endReason(&ingest.TransferError{Err: errors.New("x")}))
	assert.Equal(t, EndError, endReason(errors.New("write client: broken pipe")))
}

func TestPlaylistHandler(t *testing.T) {
	store := data.NewStore()
	h := NewPlaylistHandler(store, quietLogger())

	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/playlist.m3u", nil))
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)

	store.SetPlaylist(&data.Playlist{Raw: []byte("#EXTM3U\n")})
	w = httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/playlist.m3u", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/vnd.apple.mpegurl", w.Header().Get("Content-Type"))
	assert.Equal(t, "#EXTM3U\n", w.Body.String())
}

func TestStatusHandler(t *testing.T) {
	registry := relay.NewRegistry()
	registry.Add("udp://239.0.0.1:1234", "10.0.0.9:5555", nil, nil)

	store := data.NewStore()
	store.SetError(errors.New("upstream down"))

	w := httptest.NewRecorder()
	NewStatusHandler(registry, store, quietLogger()).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/status", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))

	var resp StatusResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Len(t, resp.Sessions, 1)
	assert.Equal(t, "udp://239.0.0.1:1234", resp.Sessions[0].Endpoint)
	require.NotNil(t, resp.Playlist)
	assert.Equal(t, "upstream down", resp.Playlist.LastError)

	w = httptest.NewRecorder()
	NewStatusHandler(registry, nil, quietLogger()).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/status", nil))
	assert.NotContains(t, w.Body.String(), `"playlist"`)
}

func TestLoggingMiddlewareKeepsRequestID(t *testing.T) {
	h := LoggingMiddleware(quietLogger())(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTeapot)
		w.(http.Flusher).Flush()
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(RequestIDHeader, "abc-123")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	assert.Equal(t, http.StatusTeapot, w.Code)
	assert.Equal(t, "abc-123", w.Header().Get(RequestIDHeader))
	assert.True(t, w.Flushed)
}
