package ingest

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func packetOf(b ...byte) *Packet {
	return NewPacket(b)
}

func TestPacketQueueFIFO(t *testing.T) {
	q := NewPacketQueue(0, DropOldest)
	for i := 0; i < 200; i++ {
		_, err := q.Push(packetOf(byte(i)))
		require.NoError(t, err)
	}
	assert.Equal(t, 200, q.Len())

	for i := 0; i < 200; i++ {
		p, ok := q.TryPop()
		require.True(t, ok)
		assert.Equal(t, []byte{byte(i)}, p.Unread())
	}

	_, ok := q.TryPop()
	assert.False(t, ok)
}

func TestPacketQueueDropOldest(t *testing.T) {
	q := NewPacketQueue(3, DropOldest)
	evictions := 0
	for i := 0; i < 5; i++ {
		evicted, err := q.Push(packetOf(byte(i)))
		require.NoError(t, err)
		assert.Equal(t, i >= 3, evicted, "push %d", i)
		if evicted {
			evictions++
		}
	}

	assert.Equal(t, 3, q.Len())
	assert.Equal(t, 2, evictions)

	for _, want := range []byte{2, 3, 4} {
		p, ok := q.TryPop()
		require.True(t, ok)
		assert.Equal(t, []byte{want}, p.Unread())
	}
}

func TestPacketQueueBlockProducerWaitsForSpace(t *testing.T) {
	q := NewPacketQueue(1, BlockProducer)
	_, err := q.Push(packetOf(1))
	require.NoError(t, err)

	pushed := make(chan error, 1)
	go func() {
		_, err := q.Push(packetOf(2))
		pushed <- err
	}()

	select {
	case <-pushed:
		t.Fatal("push should block while the queue is full")
	case <-time.After(50 * time.Millisecond):
	}

	p, ok := q.TryPop()
	require.True(t, ok)
	assert.Equal(t, []byte{1}, p.Unread())

	select {
	case err := <-pushed:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("push did not resume after a pop")
	}
	assert.Equal(t, 1, q.Len())
}

func TestPacketQueueCloseWakesBlockedProducer(t *testing.T) {
	q := NewPacketQueue(1, BlockProducer)
	_, err := q.Push(packetOf(1))
	require.NoError(t, err)

	pushed := make(chan error, 1)
	go func() {
		_, err := q.Push(packetOf(2))
		pushed <- err
	}()

	time.Sleep(20 * time.Millisecond)
	q.Close()

	select {
	case err := <-pushed:
		assert.ErrorIs(t, err, ErrQueueClosed)
	case <-time.After(time.Second):
		t.Fatal("close did not wake the producer")
	}

	// Packets queued before close remain readable.
	p, ok := q.TryPop()
	require.True(t, ok)
	assert.Equal(t, []byte{1}, p.Unread())
}

func TestPacketQueueClear(t *testing.T) {
	q := NewPacketQueue(4, DropOldest)
	for i := 0; i < 3; i++ {
		_, err := q.Push(packetOf(byte(i)))
		require.NoError(t, err)
	}

	q.Clear()
	assert.Zero(t, q.Len())
	_, ok := q.TryPop()
	assert.False(t, ok)

	_, err := q.Push(packetOf(9))
	require.NoError(t, err)
	p, ok := q.TryPop()
	require.True(t, ok)
	assert.Equal(t, []byte{9}, p.Unread())
}

func TestPacketQueueWrapAround(t *testing.T) {
	q := NewPacketQueue(3, DropOldest)
	next := byte(0)
	for round := 0; round < 10; round++ {
		for i := 0; i < 2; i++ {
			_, err := q.Push(packetOf(next + byte(i)))
			require.NoError(t, err)
		}
		for i := 0; i < 2; i++ {
			p, ok := q.TryPop()
			require.True(t, ok)
			assert.Equal(t, []byte{next + byte(i)}, p.Unread())
		}
		next += 2
	}
}

func TestParseOverflowPolicy(t *testing.T) {
	tests := []struct {
		in      string
		want    OverflowPolicy
		wantErr bool
	}{
		{"drop-oldest", DropOldest, false},
		{"DROP", DropOldest, false},
		{"block", BlockProducer, false},
		{"block-producer", BlockProducer, false},
		{"newest", DropOldest, true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseOverflowPolicy(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
