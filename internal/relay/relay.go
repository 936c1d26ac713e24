// Package relay drains a live stream source into an HTTP response through the buffer policy.
package relay

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/savid/iptv-udp-buffer/internal/alloc"
	"github.com/savid/iptv-udp-buffer/internal/policy"
	"github.com/savid/iptv-udp-buffer/pkg/types"
)

// ErrStalled is returned when the source delivers nothing for longer than the stall timeout.
var ErrStalled = errors.New("stream stalled")

// Source is a non-blocking byte stream that returns 0, nil while no data is available.
type Source interface {
	Read(p []byte) (int, error)
}

// Config tunes a relay.
type Config struct {
	Tracks          []policy.Track
	Bitrate         int64         // Nominal stream bitrate in bits per second, used to estimate buffered duration.
	StallTimeout    time.Duration // Zero disables the watchdog.
	RebufferDelay   time.Duration // Empty-buffer time during playback that counts as an underrun.
	PollInterval    time.Duration
	MaxPollInterval time.Duration
}

// DefaultConfig returns the relay defaults for an MPEG-TS feed.
func DefaultConfig() Config {
	return Config{
		Tracks:          policy.SelectedTracks(policy.TrackVideo, policy.TrackAudio),
		Bitrate:         8_000_000,
		StallTimeout:    10 * time.Second,
		RebufferDelay:   500 * time.Millisecond,
		PollInterval:    2 * time.Millisecond,
		MaxPollInterval: 100 * time.Millisecond,
	}
}

// Relay moves bytes from a Source to a writer, buffering them in allocator segments
// until the policy lets playback start.
type Relay struct {
	source    Source
	policy    *policy.Policy
	allocator *alloc.Allocator
	config    Config
	logger    logrus.FieldLogger

	// Owned by the Run goroutine.
	segments [][]byte
	pending  []byte

	mu    sync.RWMutex
	stats types.BufferStats
}

// New creates a relay. The allocator must be the one the policy configures.
func New(src Source, pol *policy.Policy, a *alloc.Allocator, cfg Config, logger logrus.FieldLogger) *Relay {
	defaults := DefaultConfig()
	if cfg.Bitrate <= 0 {
		cfg.Bitrate = defaults.Bitrate
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = defaults.PollInterval
	}
	if cfg.RebufferDelay <= 0 {
		cfg.RebufferDelay = defaults.RebufferDelay
	}
	if cfg.MaxPollInterval < cfg.PollInterval {
		cfg.MaxPollInterval = cfg.PollInterval
	}
	return &Relay{
		source:    src,
		policy:    pol,
		allocator: a,
		config:    cfg,
		logger:    logger,
	}
}

// Run relays until ctx is done, the source fails, the writer fails or the stream stalls.
func (r *Relay) Run(ctx context.Context, w io.Writer) error {
	r.policy.OnPrepared()
	r.policy.OnTracksSelected(r.config.Tracks)
	defer r.stop()

	r.logger.WithFields(logrus.Fields{
		"target_bytes": r.policy.TargetBufferSize(),
		"tracks":       len(r.config.Tracks),
	}).Debug("Relay started")

	backoff := NewBackoff(r.config.PollInterval, r.config.MaxPollInterval, 1.5)
	lastByte := time.Now()
	playing, rebuffering := false, false

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		loaded, full, err := r.load()
		if err != nil {
			return fmt.Errorf("read source: %w", err)
		}
		if loaded > 0 {
			lastByte = time.Now()
			backoff.Reset()
		}

		if !playing && r.bufferedBytes() > 0 {
			buffered := r.bufferedDuration()
			if full || r.policy.ShouldStartPlayback(buffered, 1.0, rebuffering) {
				playing = true
				rebuffering = false
				r.logger.WithField("buffered", buffered).Debug("Playback started")
			}
		}

		if playing {
			switch {
			case r.bufferedBytes() > 0:
				if err := r.flush(w); err != nil {
					return fmt.Errorf("write client: %w", err)
				}
			case loaded == 0 && !full && time.Since(lastByte) > r.config.RebufferDelay:
				r.updateStats(func(s *types.BufferStats) { s.Underruns++ })
				playing = false
				rebuffering = true
			}
		}
		r.updateStats(func(s *types.BufferStats) { s.Playing = playing })

		if loaded == 0 && !full {
			if r.config.StallTimeout > 0 && time.Since(lastByte) > r.config.StallTimeout {
				return ErrStalled
			}
			if err := backoff.Wait(ctx); err != nil {
				return err
			}
		}
	}
}

// load reads everything the source has queued into allocator segments. It reports
// the bytes loaded and whether the allocator ceiling stopped it.
func (r *Relay) load() (int, bool, error) {
	total := 0
	for r.policy.ShouldContinueLoading(r.bufferedDuration(), 1.0) {
		if r.pending == nil || len(r.pending) == cap(r.pending) {
			if r.pending != nil {
				r.segments = append(r.segments, r.pending)
				r.pending = nil
			}
			seg, err := r.allocator.Allocate()
			if errors.Is(err, alloc.ErrTargetReached) {
				r.updateStats(func(s *types.BufferStats) { s.AllocatorBlocks++ })
				return total, true, nil
			}
			if err != nil {
				return total, false, err
			}
			r.pending = seg
		}

		n, err := r.source.Read(r.pending[len(r.pending):cap(r.pending)])
		r.pending = r.pending[:len(r.pending)+n]
		total += n
		if n > 0 {
			r.updateStats(func(s *types.BufferStats) {
				s.BytesBuffered += int64(n)
				s.LastByteAt = time.Now()
			})
		}
		if err != nil {
			return total, false, err
		}
		if n == 0 {
			break
		}
	}
	return total, false, nil
}

// flush writes every buffered byte in arrival order and returns segments to the allocator.
func (r *Relay) flush(w io.Writer) error {
	for len(r.segments) > 0 {
		seg := r.segments[0]
		if err := r.write(w, seg); err != nil {
			return err
		}
		r.segments[0] = nil
		r.segments = r.segments[1:]
		r.allocator.Release(seg)
	}

	if len(r.pending) > 0 {
		if err := r.write(w, r.pending); err != nil {
			return err
		}
		r.pending = r.pending[:0]
	}

	if f, ok := w.(http.Flusher); ok {
		f.Flush()
	}
	return nil
}

func (r *Relay) write(w io.Writer, b []byte) error {
	n, err := w.Write(b)
	r.updateStats(func(s *types.BufferStats) {
		s.BytesWritten += int64(n)
		s.BytesBuffered -= int64(n)
	})
	if err != nil {
		return err
	}
	if n < len(b) {
		return io.ErrShortWrite
	}
	return nil
}

func (r *Relay) stop() {
	for _, seg := range r.segments {
		r.allocator.Release(seg)
	}
	r.segments = nil
	if r.pending != nil {
		r.allocator.Release(r.pending)
		r.pending = nil
	}
	r.policy.OnStopped()
	r.updateStats(func(s *types.BufferStats) {
		s.BytesBuffered = 0
		s.Playing = false
	})
}

func (r *Relay) bufferedBytes() int64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.stats.BytesBuffered
}

// bufferedDuration estimates playback time of the buffered bytes from the nominal bitrate.
func (r *Relay) bufferedDuration() time.Duration {
	return playbackDuration(r.bufferedBytes(), r.config.Bitrate)
}

// playbackDuration converts a byte count to media time at bitrate bits per second.
func playbackDuration(bytes, bitrate int64) time.Duration {
	return time.Duration(float64(bytes) * 8 / float64(bitrate) * float64(time.Second))
}

func (r *Relay) updateStats(fn func(*types.BufferStats)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	fn(&r.stats)
}

// Stats returns a snapshot of the relay buffer.
func (r *Relay) Stats() types.BufferStats {
	r.mu.RLock()
	stats := r.stats
	r.mu.RUnlock()

	stats.TargetBytes = r.policy.TargetBufferSize()
	stats.BufferedFor = playbackDuration(stats.BytesBuffered, r.config.Bitrate)
	if stats.TargetBytes > 0 {
		stats.BufferLevel = float64(stats.BytesBuffered) / float64(stats.TargetBytes)
	}
	return stats
}
