package policy

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

type fakeAllocator struct {
	targets []int
	resets  int
}

func (f *fakeAllocator) SetTargetBufferSize(n int) { f.targets = append(f.targets, n) }
func (f *fakeAllocator) Reset()                    { f.resets++ }

func fixedSizes(t TrackType) int {
	switch t {
	case TrackAudio:
		return 64
	case TrackVideo:
		return 192
	default:
		return 0
	}
}

func TestShouldStartPlayback(t *testing.T) {
	minBuffer := 2 * time.Second
	p := New(&fakeAllocator{}, Config{MinBufferToStartPlayback: minBuffer})

	assert.True(t, p.ShouldStartPlayback(0, 1.0, true), "rebuffering always resumes")
	assert.False(t, p.ShouldStartPlayback(minBuffer-time.Microsecond, 1.0, false))
	assert.True(t, p.ShouldStartPlayback(minBuffer, 1.0, false))
	assert.True(t, p.ShouldStartPlayback(minBuffer+time.Second, 2.0, false))
}

func TestShouldStartPlaybackZeroMinimum(t *testing.T) {
	p := New(&fakeAllocator{}, Config{})
	assert.True(t, p.ShouldStartPlayback(0, 1.0, false))
}

func TestTargetBufferSizeFromTracks(t *testing.T) {
	alloc := &fakeAllocator{}
	p := New(alloc, Config{DefaultBufferSize: fixedSizes})

	p.OnPrepared()
	p.OnTracksSelected([]Track{
		{Type: TrackAudio, Selected: true},
		{Type: TrackVideo, Selected: true},
		{Type: TrackText, Selected: false},
	})

	assert.Equal(t, 256, p.TargetBufferSize())
	assert.Equal(t, []int{256}, alloc.targets)
	assert.Zero(t, alloc.resets, "prepare does not reset the allocator")
}

func TestTargetBufferSizeSkipsUnselectedTracks(t *testing.T) {
	alloc := &fakeAllocator{}
	p := New(alloc, Config{DefaultBufferSize: fixedSizes})

	p.OnTracksSelected([]Track{
		{Type: TrackAudio, Selected: false},
		{Type: TrackVideo, Selected: true},
	})
	assert.Equal(t, 192, p.TargetBufferSize())
}

func TestTargetBufferSizeOverride(t *testing.T) {
	alloc := &fakeAllocator{}
	p := New(alloc, Config{TargetBufferBytes: 1000, DefaultBufferSize: fixedSizes})

	p.OnTracksSelected(SelectedTracks(TrackAudio, TrackVideo))
	assert.Equal(t, 1000, p.TargetBufferSize())

	p.OnTracksSelected(nil)
	assert.Equal(t, 1000, p.TargetBufferSize())
	assert.Equal(t, []int{1000, 1000}, alloc.targets)
}

func TestStopAndReleaseResetAllocator(t *testing.T) {
	alloc := &fakeAllocator{}
	p := New(alloc, Config{DefaultBufferSize: fixedSizes})

	p.OnTracksSelected(SelectedTracks(TrackAudio))
	p.OnStopped()
	assert.Zero(t, p.TargetBufferSize())
	assert.Equal(t, 1, alloc.resets)

	p.OnTracksSelected(SelectedTracks(TrackVideo))
	p.OnReleased()
	assert.Zero(t, p.TargetBufferSize())
	assert.Equal(t, 2, alloc.resets)

	p.OnPrepared()
	assert.Equal(t, 2, alloc.resets)
}

func TestGreedyLoadingAndNoBackBuffer(t *testing.T) {
	p := New(&fakeAllocator{}, Config{})
	assert.True(t, p.ShouldContinueLoading(time.Hour, 1.0))
	assert.Zero(t, p.BackBufferDuration())
	assert.False(t, p.RetainBackBufferFromKeyframe())
}

func TestDefaultBufferSizes(t *testing.T) {
	assert.Equal(t, 54*BufferSegmentSize, DefaultBufferSize(TrackAudio))
	assert.Equal(t, 200*BufferSegmentSize, DefaultBufferSize(TrackVideo))
	assert.Equal(t, 256*BufferSegmentSize, DefaultBufferSize(TrackDefault))
	assert.Zero(t, DefaultBufferSize(TrackUnknown))

	tt, err := ParseTrackType("Video")
	assert.NoError(t, err)
	assert.Equal(t, TrackVideo, tt)
	_, err = ParseTrackType("hologram")
	assert.Error(t, err)
}
