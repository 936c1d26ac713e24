// Package main implements the UDP multicast relay server.
package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/sync/errgroup"

	"github.com/savid/iptv-udp-buffer/config"
	"github.com/savid/iptv-udp-buffer/handlers"
	"github.com/savid/iptv-udp-buffer/internal/data"
	"github.com/savid/iptv-udp-buffer/internal/metrics"
	"github.com/savid/iptv-udp-buffer/internal/relay"
	"github.com/savid/iptv-udp-buffer/pkg/types"
)

const shutdownTimeout = 30 * time.Second

func main() {
	logrus.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: "2006-01-02 15:04:05",
	})

	if err := newRootCommand().Execute(); err != nil {
		logrus.WithError(err).Fatal("Server failed")
	}
}

func newRootCommand() *cobra.Command {
	v := viper.New()

	cmd := &cobra.Command{
		Use:   "iptv-udp-buffer",
		Short: "Relay UDP and RTP multicast streams over HTTP",
		Long: "Joins UDP or RTP multicast groups on demand, buffers the datagrams and " +
			"serves them to HTTP clients as continuous MPEG-TS streams.",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(v)
			if err != nil {
				return fmt.Errorf("failed to load configuration: %w", err)
			}

			level, err := logrus.ParseLevel(cfg.LogLevel)
			if err != nil {
				return fmt.Errorf("failed to parse log level: %w", err)
			}
			logrus.SetLevel(level)

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			return run(ctx, cfg, logrus.StandardLogger())
		},
	}

	if err := config.BindFlags(cmd.Flags(), v); err != nil {
		logrus.WithError(err).Fatal("Failed to set up flags")
	}
	return cmd
}

func run(ctx context.Context, cfg *config.Config, logger *logrus.Logger) error {
	promRegistry := prometheus.NewRegistry()
	promRegistry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	ingestMetrics, err := metrics.NewIngestMetrics(promRegistry)
	if err != nil {
		return fmt.Errorf("failed to register metrics: %w", err)
	}

	sessions := relay.NewRegistry()
	if err := promRegistry.Register(metrics.NewSessionCollector(sessions)); err != nil {
		return fmt.Errorf("failed to register session metrics: %w", err)
	}

	g, ctx := errgroup.WithContext(ctx)

	var store *data.Store
	if cfg.Playlist != "" {
		store = data.NewStore()
		fetcher := data.NewFetcher(cfg.Playlist, cfg.BaseURL, logger)
		refresher := data.NewRefresher(store, fetcher, cfg.RefreshInterval, logger)

		// Relaying works without a playlist, so a failed first load is not fatal.
		logger.Info("Fetching initial playlist...")
		if err := refresher.Refresh(ctx); err != nil {
			logger.WithError(err).Warn("Initial playlist fetch failed, will retry")
		}

		g.Go(func() error {
			refresher.Start(ctx)
			return nil
		})
	}

	mux := http.NewServeMux()
	setupRoutes(mux, cfg, sessions, store, ingestMetrics, promRegistry, logger)

	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           handlers.LoggingMiddleware(logger)(mux),
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
		// Streams run until the client leaves, so there is no write timeout.
		// Request contexts derive from ctx, which ends every relay on shutdown.
		BaseContext: func(net.Listener) context.Context { return ctx },
	}

	g.Go(func() error {
		logger.WithField("port", cfg.Port).Info("Starting UDP relay server")
		logger.WithField("endpoint", cfg.BaseURL+"/udp/{group}:{port}").Info("Stream endpoint")
		if store != nil {
			logger.WithField("endpoint", cfg.BaseURL+"/playlist.m3u").Info("Playlist endpoint")
		}

		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("failed to start server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-ctx.Done()
		logger.Info("Shutting down server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("failed to gracefully shutdown: %w", err)
		}
		return nil
	})

	err = g.Wait()
	logger.Info("Server stopped")
	return err
}

func setupRoutes(
	mux *http.ServeMux,
	cfg *config.Config,
	sessions *relay.Registry,
	store *data.Store,
	recorder handlers.Recorder,
	gatherer prometheus.Gatherer,
	logger *logrus.Logger,
) {
	for _, scheme := range []string{types.SchemeUDP, types.SchemeRTP} {
		h := handlers.NewStreamHandler(scheme, cfg, sessions, recorder, logger)
		mux.Handle(h.Prefix(), h)
	}

	if store != nil {
		mux.Handle("/playlist.m3u", handlers.NewPlaylistHandler(store, logger))
	}
	mux.Handle("/status", handlers.NewStatusHandler(sessions, store, logger))
	mux.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))

	mux.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})
}
