package data

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"
)

// maxRetryInterval caps the delay before retrying a failed refresh.
const maxRetryInterval = 5 * time.Minute

// Loader produces a fresh playlist.
type Loader interface {
	Fetch(ctx context.Context) (*Playlist, error)
}

// Refresher reloads the playlist into a store on a fixed interval.
type Refresher struct {
	store    *Store
	loader   Loader
	interval time.Duration
	logger   logrus.FieldLogger
}

// NewRefresher creates a refresher.
func NewRefresher(store *Store, loader Loader, interval time.Duration, logger logrus.FieldLogger) *Refresher {
	return &Refresher{
		store:    store,
		loader:   loader,
		interval: interval,
		logger:   logger,
	}
}

// Refresh loads the playlist once and stores the result.
func (r *Refresher) Refresh(ctx context.Context) error {
	p, err := r.loader.Fetch(ctx)
	if err != nil {
		r.store.SetError(err)
		return err
	}
	r.store.SetPlaylist(p)
	return nil
}

// Start reloads the playlist until ctx is cancelled. A failed refresh is retried
// sooner than the regular interval.
func (r *Refresher) Start(ctx context.Context) {
	timer := time.NewTimer(r.interval)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			r.logger.Info("Playlist refresher shutting down")
			return
		case <-timer.C:
			err := r.Refresh(ctx)
			if err != nil && ctx.Err() == nil {
				r.logger.WithError(err).Error("Failed to refresh playlist")
			}
			timer.Reset(r.nextInterval(err))
		}
	}
}

func (r *Refresher) nextInterval(lastErr error) time.Duration {
	if lastErr == nil {
		return r.interval
	}

	retry := min(r.interval/2, maxRetryInterval)
	r.logger.WithField("interval", retry).Warn("Retrying playlist refresh early after error")
	return retry
}
