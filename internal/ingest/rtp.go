package ingest

import (
	"fmt"

	"github.com/pion/rtp"
)

// Decapsulator turns a raw datagram into the payload that is queued for the consumer.
type Decapsulator func(datagram []byte) ([]byte, error)

// StripRTP removes the RTP header, CSRC list, extensions and padding from datagram.
// Sequence numbers are not inspected; reordering and loss pass through untouched.
func StripRTP(datagram []byte) ([]byte, error) {
	var pkt rtp.Packet
	if err := pkt.Unmarshal(datagram); err != nil {
		return nil, fmt.Errorf("rtp: %w", err)
	}
	return pkt.Payload, nil
}
