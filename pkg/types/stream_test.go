package types

import (
	"encoding/json"
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEndpointString(t *testing.T) {
	ep := Endpoint{Scheme: SchemeRTP, Host: "239.1.2.3", Port: 5004, IP: net.ParseIP("239.1.2.3")}
	assert.Equal(t, "rtp://239.1.2.3:5004", ep.String())
	assert.Equal(t, 5004, ep.Addr().Port)

	v6 := Endpoint{Scheme: SchemeUDP, Host: "ff15::1", Port: 1234}
	assert.Equal(t, "[ff15::1]:1234", v6.HostPort())
}

func TestSessionStateText(t *testing.T) {
	raw, err := json.Marshal(SourceStats{State: StateClosing})
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"state":"closing"`)

	var stats SourceStats
	require.NoError(t, json.Unmarshal(raw, &stats))
	assert.Equal(t, StateClosing, stats.State)

	var st SessionState
	assert.Error(t, st.UnmarshalText([]byte("bogus")))
	assert.Equal(t, "unknown", SessionState(42).String())
}
