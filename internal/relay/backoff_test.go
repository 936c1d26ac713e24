package relay

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestBackoffGrowsAndCaps(t *testing.T) {
	b := NewBackoff(10*time.Millisecond, 35*time.Millisecond, 2)

	assert.Equal(t, 10*time.Millisecond, b.Next())
	assert.Equal(t, 20*time.Millisecond, b.Next())
	assert.Equal(t, 35*time.Millisecond, b.Next())
	assert.Equal(t, 35*time.Millisecond, b.Next())

	b.Reset()
	assert.Equal(t, 10*time.Millisecond, b.Next())
}

func TestBackoffWaitHonorsContext(t *testing.T) {
	b := NewBackoff(time.Hour, 4*time.Hour, 2)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	assert.ErrorIs(t, b.Wait(ctx), context.Canceled)
	assert.Equal(t, 2*time.Hour, b.Next(), "a cancelled wait still advances the schedule")
}
