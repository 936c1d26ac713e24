// Package alloc provides a pooled segment allocator with an adjustable target size.
package alloc

import (
	"errors"
	"sync"
)

// DefaultSegmentSize is the size of one allocation.
const DefaultSegmentSize = 64 * 1024

// ErrTargetReached is returned when an allocation would exceed the target buffer size.
var ErrTargetReached = errors.New("allocator target buffer size reached")

// Allocator hands out fixed-size byte segments and keeps released ones for reuse.
// A target of zero means no ceiling.
type Allocator struct {
	mu          sync.Mutex
	segmentSize int
	target      int
	allocated   int
	free        [][]byte
}

// New creates an allocator of segmentSize-byte segments.
func New(segmentSize int) *Allocator {
	if segmentSize <= 0 {
		segmentSize = DefaultSegmentSize
	}
	return &Allocator{segmentSize: segmentSize}
}

// Allocate returns a zero-length segment with SegmentSize capacity. One segment is
// always granted when nothing is outstanding, even if the target is smaller.
func (a *Allocator) Allocate() ([]byte, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.target > 0 && a.allocated > 0 && a.allocated+a.segmentSize > a.target {
		return nil, ErrTargetReached
	}
	a.allocated += a.segmentSize

	if n := len(a.free); n > 0 {
		seg := a.free[n-1]
		a.free[n-1] = nil
		a.free = a.free[:n-1]
		return seg[:0], nil
	}
	return make([]byte, 0, a.segmentSize), nil
}

// Release returns a segment obtained from Allocate.
func (a *Allocator) Release(seg []byte) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if cap(seg) != a.segmentSize {
		return
	}
	a.allocated -= a.segmentSize
	if a.allocated < 0 {
		a.allocated = 0
	}
	a.free = append(a.free, seg[:0])
	a.trim()
}

// SetTargetBufferSize sets the ceiling and trims pooled segments above it.
func (a *Allocator) SetTargetBufferSize(bytes int) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.target = bytes
	a.trim()
}

// Reset drops the pool and clears the target.
func (a *Allocator) Reset() {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.target = 0
	a.free = nil
}

// TotalBytesAllocated returns the bytes in segments currently handed out.
func (a *Allocator) TotalBytesAllocated() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.allocated
}

// Target returns the current target buffer size.
func (a *Allocator) Target() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.target
}

// SegmentSize returns the size of one segment.
func (a *Allocator) SegmentSize() int {
	return a.segmentSize
}

// trim keeps allocated plus pooled memory within the target. Callers hold mu.
func (a *Allocator) trim() {
	if a.target <= 0 {
		return
	}
	keep := (a.target - a.allocated) / a.segmentSize
	if keep < 0 {
		keep = 0
	}
	if len(a.free) > keep {
		for i := keep; i < len(a.free); i++ {
			a.free[i] = nil
		}
		a.free = a.free[:keep]
	}
}

// pooled returns the number of free segments. Used by tests.
func (a *Allocator) pooled() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.free)
}
