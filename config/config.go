// Package config provides configuration management for the UDP ingest relay.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/savid/iptv-udp-buffer/internal/ingest"
	"github.com/savid/iptv-udp-buffer/internal/policy"
)

// EnvPrefix is prepended to environment variable names, e.g. IPTVUDP_BASE_URL.
const EnvPrefix = "IPTVUDP"

var (
	// ErrBaseURLRequired is returned when base URL is not provided.
	ErrBaseURLRequired = errors.New("base URL is required")
	// ErrInvalidPort is returned when port number is invalid.
	ErrInvalidPort = errors.New("invalid port number")
	// ErrRefreshIntervalPositive is returned when refresh interval is not positive.
	ErrRefreshIntervalPositive = errors.New("refresh interval must be positive")
	// ErrInvalidLogLevel is returned when log level is invalid.
	ErrInvalidLogLevel = errors.New("invalid log level")
	// ErrInvalidPacketSize is returned when the maximum datagram size is out of range.
	ErrInvalidPacketSize = errors.New("max packet size must be between 1 and 65535")
	// ErrNegativeDuration is returned when a timeout or buffer duration is negative.
	ErrNegativeDuration = errors.New("duration must not be negative")
	// ErrInvalidBitrate is returned when the nominal bitrate is not positive.
	ErrInvalidBitrate = errors.New("bitrate must be positive")
	// ErrInvalidSegmentSize is returned when the allocator segment size is not positive.
	ErrInvalidSegmentSize = errors.New("segment size must be positive")
)

// Config holds the application configuration.
type Config struct {
	Port            int
	BaseURL         string
	LogLevel        string
	Playlist        string
	RefreshInterval time.Duration

	MaxPacketSize      int
	SocketTimeout      time.Duration
	QueueCapacity      int
	OverflowPolicy     string
	MulticastInterface string

	TargetBufferBytes int
	MinBuffer         time.Duration
	SegmentSize       int
	Bitrate           int64
	StallTimeout      time.Duration
	RebufferDelay     time.Duration
	Tracks            string
}

// BindFlags registers every setting on fs and binds it, plus its environment variable, into v.
func BindFlags(fs *pflag.FlagSet, v *viper.Viper) error {
	fs.Int("port", 8080, "Port to listen on")
	fs.String("base-url", "", "Base URL for rewritten playlist entries (e.g., http://localhost:8080) (required)")
	fs.String("log-level", "info", "Log level (debug, info, warn, error)")
	fs.String("playlist", "", "URL or file path of an M3U playlist with udp:// or rtp:// entries")
	fs.Duration("refresh-interval", 30*time.Minute, "Interval between playlist refreshes")

	fs.Int("max-packet-size", ingest.DefaultMaxPacketSize, "Maximum datagram size in bytes")
	fs.Duration("socket-timeout", ingest.DefaultSocketTimeout, "Socket receive timeout (0 waits forever)")
	fs.Int("queue-capacity", ingest.DefaultQueueCapacity, "Packets buffered per source before the overflow policy applies (0 = unbounded)")
	fs.String("overflow-policy", ingest.DropOldest.String(), "Full queue behavior (drop-oldest, block)")
	fs.String("multicast-interface", "", "Network interface used to join multicast groups")

	fs.Int("target-buffer-bytes", 0, "Explicit relay buffer target in bytes (0 = computed from tracks)")
	fs.Duration("min-buffer", 0, "Buffered duration required before playback starts")
	fs.Int("segment-size", policy.BufferSegmentSize, "Allocator segment size in bytes")
	fs.Int64("bitrate", 8_000_000, "Nominal stream bitrate in bits per second")
	fs.Duration("stall-timeout", 10*time.Second, "End a relay after this long without data (0 disables)")
	fs.Duration("rebuffer-delay", 500*time.Millisecond, "Gap without data during playback that counts as an underrun")
	fs.String("tracks", "video,audio", "Comma separated track types carried by streams")

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	if err := v.BindPFlags(fs); err != nil {
		return fmt.Errorf("error binding flags: %w", err)
	}
	return nil
}

// Load reads the configuration from v and validates it.
func Load(v *viper.Viper) (*Config, error) {
	cfg := &Config{
		Port:            v.GetInt("port"),
		BaseURL:         v.GetString("base-url"),
		LogLevel:        v.GetString("log-level"),
		Playlist:        v.GetString("playlist"),
		RefreshInterval: v.GetDuration("refresh-interval"),

		MaxPacketSize:      v.GetInt("max-packet-size"),
		SocketTimeout:      v.GetDuration("socket-timeout"),
		QueueCapacity:      v.GetInt("queue-capacity"),
		OverflowPolicy:     v.GetString("overflow-policy"),
		MulticastInterface: v.GetString("multicast-interface"),

		TargetBufferBytes: v.GetInt("target-buffer-bytes"),
		MinBuffer:         v.GetDuration("min-buffer"),
		SegmentSize:       v.GetInt("segment-size"),
		Bitrate:           v.GetInt64("bitrate"),
		StallTimeout:      v.GetDuration("stall-timeout"),
		RebufferDelay:     v.GetDuration("rebuffer-delay"),
		Tracks:            v.GetString("tracks"),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if c.BaseURL == "" {
		return ErrBaseURLRequired
	}

	if _, err := url.Parse(c.BaseURL); err != nil {
		return fmt.Errorf("invalid base URL: %w", err)
	}

	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("%w: %d", ErrInvalidPort, c.Port)
	}

	if c.Playlist != "" && c.RefreshInterval <= 0 {
		return ErrRefreshIntervalPositive
	}

	validLogLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}
	if !validLogLevels[c.LogLevel] {
		return fmt.Errorf("%w: %s (must be debug, info, warn, or error)", ErrInvalidLogLevel, c.LogLevel)
	}

	if c.MaxPacketSize < 1 || c.MaxPacketSize > 65535 {
		return fmt.Errorf("%w: %d", ErrInvalidPacketSize, c.MaxPacketSize)
	}

	for name, d := range map[string]time.Duration{
		"socket-timeout": c.SocketTimeout,
		"min-buffer":     c.MinBuffer,
		"stall-timeout":  c.StallTimeout,
		"rebuffer-delay": c.RebufferDelay,
	} {
		if d < 0 {
			return fmt.Errorf("%w: %s=%s", ErrNegativeDuration, name, d)
		}
	}

	if c.Bitrate <= 0 {
		return fmt.Errorf("%w: %d", ErrInvalidBitrate, c.Bitrate)
	}

	if c.SegmentSize <= 0 {
		return fmt.Errorf("%w: %d", ErrInvalidSegmentSize, c.SegmentSize)
	}

	if _, err := ingest.ParseOverflowPolicy(c.OverflowPolicy); err != nil {
		return err
	}

	if _, err := c.TrackSelection(); err != nil {
		return err
	}

	return nil
}

// Overflow returns the parsed queue overflow policy.
func (c *Config) Overflow() ingest.OverflowPolicy {
	p, _ := ingest.ParseOverflowPolicy(c.OverflowPolicy)
	return p
}

// TrackSelection returns the configured tracks as selected policy tracks.
func (c *Config) TrackSelection() ([]policy.Track, error) {
	var kinds []policy.TrackType
	for _, name := range strings.Split(c.Tracks, ",") {
		if strings.TrimSpace(name) == "" {
			continue
		}
		t, err := policy.ParseTrackType(name)
		if err != nil {
			return nil, err
		}
		kinds = append(kinds, t)
	}
	return policy.SelectedTracks(kinds...), nil
}

// PolicyConfig returns the buffer policy settings.
func (c *Config) PolicyConfig() policy.Config {
	return policy.Config{
		TargetBufferBytes:        c.TargetBufferBytes,
		MinBufferToStartPlayback: c.MinBuffer,
	}
}

// SourceOptions returns the stream source options.
func (c *Config) SourceOptions() []ingest.Option {
	return []ingest.Option{
		ingest.WithMaxPacketSize(c.MaxPacketSize),
		ingest.WithSocketTimeout(c.SocketTimeout),
		ingest.WithQueueCapacity(c.QueueCapacity),
		ingest.WithOverflowPolicy(c.Overflow()),
		ingest.WithInterface(c.MulticastInterface),
	}
}
