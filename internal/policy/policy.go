// Package policy decides how much media to buffer and when playback may start.
//
// The policy is greedy: it never asks the pipeline to stop loading, leaving the
// allocator's target as the only ceiling, and it keeps no back buffer so played
// data is released immediately.
package policy

import (
	"sync"
	"time"
)

// Allocator is the buffer pool the policy configures.
type Allocator interface {
	SetTargetBufferSize(bytes int)
	Reset()
}

// Config holds the tunables of a Policy.
type Config struct {
	// TargetBufferBytes overrides the computed target when positive.
	TargetBufferBytes int
	// MinBufferToStartPlayback is the buffered duration required before playback starts.
	MinBufferToStartPlayback time.Duration
	// DefaultBufferSize returns the per-track-type buffer size. Nil uses DefaultBufferSize.
	DefaultBufferSize func(TrackType) int
}

// Policy reacts to pipeline lifecycle events. Callbacks are expected on the
// pipeline's control goroutine; accessors may be called from anywhere.
type Policy struct {
	allocator         Allocator
	targetOverride    int
	minBufferToStart  time.Duration
	defaultBufferSize func(TrackType) int

	mu               sync.Mutex
	targetBufferSize int
}

// New creates a policy driving alloc.
func New(alloc Allocator, cfg Config) *Policy {
	sizer := cfg.DefaultBufferSize
	if sizer == nil {
		sizer = DefaultBufferSize
	}
	return &Policy{
		allocator:         alloc,
		targetOverride:    cfg.TargetBufferBytes,
		minBufferToStart:  cfg.MinBufferToStartPlayback,
		defaultBufferSize: sizer,
	}
}

// OnPrepared starts a fresh session.
func (p *Policy) OnPrepared() {
	p.reset(false)
}

// OnTracksSelected recomputes the target buffer size and hands it to the allocator.
func (p *Policy) OnTracksSelected(tracks []Track) {
	target := p.targetOverride
	if target <= 0 {
		target = p.calculateTargetBufferSize(tracks)
	}

	p.mu.Lock()
	p.targetBufferSize = target
	p.mu.Unlock()

	p.allocator.SetTargetBufferSize(target)
}

// OnStopped clears the target and releases pooled memory.
func (p *Policy) OnStopped() {
	p.reset(true)
}

// OnReleased clears the target and releases pooled memory.
func (p *Policy) OnReleased() {
	p.reset(true)
}

// Allocator returns the allocator this policy configures.
func (p *Policy) Allocator() Allocator {
	return p.allocator
}

// TargetBufferSize returns the current target in bytes.
func (p *Policy) TargetBufferSize() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.targetBufferSize
}

// BackBufferDuration is always zero: played data is discarded.
func (p *Policy) BackBufferDuration() time.Duration {
	return 0
}

// RetainBackBufferFromKeyframe is always false.
func (p *Policy) RetainBackBufferFromKeyframe() bool {
	return false
}

// ShouldContinueLoading always returns true.
func (p *Policy) ShouldContinueLoading(_ time.Duration, _ float64) bool {
	return true
}

// ShouldStartPlayback reports whether playback may start or resume. After a rebuffer
// it always resumes; otherwise it waits for the minimum buffered duration.
func (p *Policy) ShouldStartPlayback(buffered time.Duration, _ float64, rebuffering bool) bool {
	return rebuffering || buffered >= p.minBufferToStart
}

func (p *Policy) calculateTargetBufferSize(tracks []Track) int {
	size := 0
	for _, t := range tracks {
		if t.Selected {
			size += p.defaultBufferSize(t.Type)
		}
	}
	return size
}

func (p *Policy) reset(resetAllocator bool) {
	p.mu.Lock()
	p.targetBufferSize = 0
	p.mu.Unlock()

	if resetAllocator {
		p.allocator.Reset()
	}
}
