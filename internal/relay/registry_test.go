package relay

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/savid/iptv-udp-buffer/internal/policy"
	"github.com/savid/iptv-udp-buffer/pkg/types"
)

type staticStats types.SourceStats

func (s staticStats) Stats() types.SourceStats { return types.SourceStats(s) }

func TestRegistryLifecycle(t *testing.T) {
	reg := NewRegistry()
	r, _ := newTestRelay(&chunkSource{}, 64, policy.Config{}, Config{})

	first := reg.Add("udp://239.0.0.1:1234", "10.0.0.2:5555", r, staticStats{PacketsReceived: 3})
	second := reg.Add("udp://239.0.0.2:1234", "10.0.0.3:5555", nil, nil)
	require.NotEqual(t, first.ID, second.ID)
	assert.Equal(t, 2, reg.Len())

	snap := reg.Snapshot()
	require.Len(t, snap, 2)
	assert.Equal(t, first.ID, snap[0].ID)
	assert.Equal(t, uint64(3), snap[0].Source.PacketsReceived)

	reg.Remove(first.ID)
	assert.Equal(t, 1, reg.Len())
	assert.Equal(t, second.ID, reg.Snapshot()[0].ID)
}
