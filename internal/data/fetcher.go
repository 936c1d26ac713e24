package data

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/savid/iptv-udp-buffer/internal/m3u"
)

var (
	// ErrUnexpectedStatus is returned when the HTTP response has an unexpected status code.
	ErrUnexpectedStatus = errors.New("unexpected status code")
	// ErrNoSource is returned when the fetcher has no playlist location.
	ErrNoSource = errors.New("no playlist source configured")
)

// maxPlaylistSize bounds the playlist body read into memory.
const maxPlaylistSize = 32 << 20

// Fetcher loads the source playlist from an http(s) URL or a local file and rewrites it.
type Fetcher struct {
	source  string
	baseURL string
	client  *http.Client
	logger  logrus.FieldLogger
}

// NewFetcher creates a fetcher for source whose entries are rewritten under baseURL.
func NewFetcher(source, baseURL string, logger logrus.FieldLogger) *Fetcher {
	return &Fetcher{
		source:  source,
		baseURL: baseURL,
		client:  &http.Client{Timeout: 30 * time.Second},
		logger:  logger,
	}
}

// Fetch loads, parses and rewrites the playlist.
func (f *Fetcher) Fetch(ctx context.Context) (*Playlist, error) {
	if f.source == "" {
		return nil, ErrNoSource
	}

	f.logger.WithField("source", f.source).Info("Fetching playlist")

	body, err := f.read(ctx)
	if err != nil {
		return nil, err
	}

	channels, err := m3u.Parse(body)
	if err != nil {
		return nil, fmt.Errorf("failed to parse playlist: %w", err)
	}

	p := &Playlist{
		Raw:      m3u.Rewrite(channels, f.baseURL),
		Channels: channels,
		Relayed:  m3u.CountRelayed(channels),
	}

	f.logger.WithFields(logrus.Fields{
		"channels": len(channels),
		"relayed":  p.Relayed,
	}).Info("Successfully fetched and rewrote playlist")
	return p, nil
}

func (f *Fetcher) read(ctx context.Context) ([]byte, error) {
	if !isRemote(f.source) {
		body, err := os.ReadFile(strings.TrimPrefix(f.source, "file://"))
		if err != nil {
			return nil, fmt.Errorf("failed to read playlist file: %w", err)
		}
		return body, nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.source, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build playlist request: %w", err)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch playlist: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: %d", ErrUnexpectedStatus, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxPlaylistSize))
	if err != nil {
		return nil, fmt.Errorf("failed to read playlist body: %w", err)
	}
	return body, nil
}

func isRemote(source string) bool {
	lower := strings.ToLower(source)
	return strings.HasPrefix(lower, "http://") || strings.HasPrefix(lower, "https://")
}
