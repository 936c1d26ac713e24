// Package data loads the source playlist and keeps its rewritten form in memory.
package data

import (
	"sync"
	"time"

	"github.com/savid/iptv-udp-buffer/internal/m3u"
)

// Playlist is a rewritten playlist and the channels it was built from.
type Playlist struct {
	Raw       []byte
	Channels  []m3u.Channel
	Relayed   int
	UpdatedAt time.Time
}

// Store provides thread-safe storage for the current playlist.
type Store struct {
	mu       sync.RWMutex
	playlist *Playlist
	lastErr  error
	lastTry  time.Time
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{}
}

// SetPlaylist replaces the stored playlist and clears any recorded failure.
func (s *Store) SetPlaylist(p *Playlist) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if p.UpdatedAt.IsZero() {
		p.UpdatedAt = time.Now()
	}
	s.playlist = p
	s.lastErr = nil
	s.lastTry = p.UpdatedAt
}

// SetError records a failed refresh. The previous playlist stays available.
func (s *Store) SetError(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.lastErr = err
	s.lastTry = time.Now()
}

// Playlist returns the stored playlist, or false if none has been loaded.
func (s *Store) Playlist() (*Playlist, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.playlist, s.playlist != nil
}

// LastError returns the error of the most recent refresh, nil after a success.
func (s *Store) LastError() error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.lastErr
}

// LastAttempt returns when the playlist was last loaded or failed to load.
func (s *Store) LastAttempt() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.lastTry
}
