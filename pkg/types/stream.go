package types

import (
	"fmt"
	"net"
	"strconv"
	"time"
)

// Endpoint schemes accepted by the ingest layer.
const (
	SchemeUDP = "udp"
	SchemeRTP = "rtp"
)

// Endpoint is a resolved datagram source. It is fixed once a session is open.
type Endpoint struct {
	Scheme    string
	Host      string
	Port      int
	IP        net.IP
	Multicast bool
}

// Addr returns the UDP address of the endpoint.
func (e Endpoint) Addr() *net.UDPAddr {
	return &net.UDPAddr{IP: e.IP, Port: e.Port}
}

// HostPort returns host:port using the unresolved host name.
func (e Endpoint) HostPort() string {
	return net.JoinHostPort(e.Host, strconv.Itoa(e.Port))
}

func (e Endpoint) String() string {
	scheme := e.Scheme
	if scheme == "" {
		scheme = SchemeUDP
	}
	return scheme + "://" + e.HostPort()
}

// SessionState is the lifecycle state of a stream source.
type SessionState int32

const (
	// StateIdle means no socket is held.
	StateIdle SessionState = iota
	// StateOpen means the socket is bound and the receiver is running.
	StateOpen
	// StateClosing means close was requested and the receiver is being stopped.
	StateClosing
	// StateClosed means the receiver has exited and resources are released.
	StateClosed
)

func (s SessionState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateOpen:
		return "open"
	case StateClosing:
		return "closing"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// MarshalText renders the state by name in JSON output.
func (s SessionState) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText parses a state name written by MarshalText.
func (s *SessionState) UnmarshalText(text []byte) error {
	for st := StateIdle; st <= StateClosed; st++ {
		if st.String() == string(text) {
			*s = st
			return nil
		}
	}
	return fmt.Errorf("unknown session state %q", text)
}

// SourceStats is a snapshot of a stream source's counters.
type SourceStats struct {
	State            SessionState `json:"state"`
	Endpoint         string       `json:"endpoint,omitempty"`
	PacketsReceived  uint64       `json:"packets_received"`
	BytesReceived    uint64       `json:"bytes_received"`
	PacketsDropped   uint64       `json:"packets_dropped"`
	PacketsMalformed uint64       `json:"packets_malformed"`
	ReceiveErrors    uint64       `json:"receive_errors"`
	Timeouts         uint64       `json:"timeouts"`
	QueueDepth       int          `json:"queue_depth"`
	BytesRead        uint64       `json:"bytes_read"`
	EmptyReads       uint64       `json:"empty_reads"`
	LastPacketAt     time.Time    `json:"last_packet_at"`
}
