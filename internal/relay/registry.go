package relay

import (
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/savid/iptv-udp-buffer/pkg/types"
)

// StatsSource reports ingest counters for a session.
type StatsSource interface {
	Stats() types.SourceStats
}

// Session is one client relaying one endpoint.
type Session struct {
	ID        string
	Endpoint  string
	Remote    string
	StartedAt time.Time

	relay  *Relay
	source StatsSource
}

// SessionInfo is the exported view of a session.
type SessionInfo struct {
	ID        string            `json:"id"`
	Endpoint  string            `json:"endpoint"`
	Remote    string            `json:"remote"`
	StartedAt time.Time         `json:"started_at"`
	Source    types.SourceStats `json:"source"`
	Buffer    types.BufferStats `json:"buffer"`
}

// Registry tracks active relay sessions.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]*Session
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{sessions: make(map[string]*Session)}
}

// Add registers a running relay and returns its session.
func (reg *Registry) Add(endpoint, remote string, r *Relay, src StatsSource) *Session {
	s := &Session{
		ID:        uuid.NewString(),
		Endpoint:  endpoint,
		Remote:    remote,
		StartedAt: time.Now(),
		relay:     r,
		source:    src,
	}

	reg.mu.Lock()
	defer reg.mu.Unlock()
	reg.sessions[s.ID] = s
	return s
}

// Remove forgets a session.
func (reg *Registry) Remove(id string) {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	delete(reg.sessions, id)
}

// Len returns the number of active sessions.
func (reg *Registry) Len() int {
	reg.mu.RLock()
	defer reg.mu.RUnlock()
	return len(reg.sessions)
}

// Snapshot returns every session ordered by start time.
func (reg *Registry) Snapshot() []SessionInfo {
	reg.mu.RLock()
	sessions := make([]*Session, 0, len(reg.sessions))
	for _, s := range reg.sessions {
		sessions = append(sessions, s)
	}
	reg.mu.RUnlock()

	sort.Slice(sessions, func(i, j int) bool {
		return sessions[i].StartedAt.Before(sessions[j].StartedAt)
	})

	infos := make([]SessionInfo, 0, len(sessions))
	for _, s := range sessions {
		info := SessionInfo{
			ID:        s.ID,
			Endpoint:  s.Endpoint,
			Remote:    s.Remote,
			StartedAt: s.StartedAt,
		}
		if s.source != nil {
			info.Source = s.source.Stats()
		}
		if s.relay != nil {
			info.Buffer = s.relay.Stats()
		}
		infos = append(infos, info)
	}
	return infos
}
