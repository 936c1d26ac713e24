// Package types contains shared type definitions for the UDP ingest and relay system.
package types

import "time"

// BufferStats tracks the current state of a relay's pipeline buffer.
type BufferStats struct {
	BytesBuffered   int64         `json:"bytes_buffered"`   // Bytes read from the source but not yet written out.
	BytesWritten    int64         `json:"bytes_written"`    // Total bytes written to the client.
	BufferedFor     time.Duration `json:"buffered_for"`     // Estimated playback duration of BytesBuffered.
	TargetBytes     int           `json:"target_bytes"`     // Current allocator ceiling set by the buffer policy.
	BufferLevel     float64       `json:"buffer_level"`     // BytesBuffered relative to TargetBytes (0.0-1.0), 0 when unset.
	Underruns       int           `json:"underruns"`        // Number of times playback drained the buffer.
	AllocatorBlocks int           `json:"allocator_blocks"` // Number of times the allocator ceiling paused loading.
	Playing         bool          `json:"playing"`          // Whether output is currently flowing.
	LastByteAt      time.Time     `json:"last_byte_at"`     // Time the last byte arrived from the source.
}
