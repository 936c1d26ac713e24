package policy

import (
	"fmt"
	"strings"
)

// TrackType classifies an elementary stream within the media pipeline.
type TrackType int

const (
	TrackUnknown TrackType = iota
	// TrackDefault is a muxed stream carrying audio, video and text together.
	TrackDefault
	TrackAudio
	TrackVideo
	TrackText
	TrackMetadata
)

// BufferSegmentSize is the allocation unit the default buffer sizes are expressed in.
const BufferSegmentSize = 64 * 1024

const (
	defaultAudioBufferSize    = 54 * BufferSegmentSize
	defaultVideoBufferSize    = 200 * BufferSegmentSize
	defaultTextBufferSize     = 2 * BufferSegmentSize
	defaultMetadataBufferSize = 2 * BufferSegmentSize
	defaultMuxedBufferSize    = defaultVideoBufferSize + defaultAudioBufferSize + defaultTextBufferSize
)

// DefaultBufferSize returns the default buffer size in bytes for a track type.
func DefaultBufferSize(t TrackType) int {
	switch t {
	case TrackDefault:
		return defaultMuxedBufferSize
	case TrackAudio:
		return defaultAudioBufferSize
	case TrackVideo:
		return defaultVideoBufferSize
	case TrackText:
		return defaultTextBufferSize
	case TrackMetadata:
		return defaultMetadataBufferSize
	default:
		return 0
	}
}

func (t TrackType) String() string {
	switch t {
	case TrackDefault:
		return "default"
	case TrackAudio:
		return "audio"
	case TrackVideo:
		return "video"
	case TrackText:
		return "text"
	case TrackMetadata:
		return "metadata"
	default:
		return "unknown"
	}
}

// ParseTrackType maps a name such as "video" to its TrackType.
func ParseTrackType(s string) (TrackType, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "default", "muxed":
		return TrackDefault, nil
	case "audio":
		return TrackAudio, nil
	case "video":
		return TrackVideo, nil
	case "text", "subtitle":
		return TrackText, nil
	case "metadata":
		return TrackMetadata, nil
	default:
		return TrackUnknown, fmt.Errorf("unknown track type %q", s)
	}
}

// Track is one renderer slot and whether a track is currently selected for it.
type Track struct {
	Type     TrackType
	Selected bool
}

// SelectedTracks returns a selected Track for each type.
func SelectedTracks(types ...TrackType) []Track {
	tracks := make([]Track, len(types))
	for i, t := range types {
		tracks[i] = Track{Type: t, Selected: true}
	}
	return tracks
}
