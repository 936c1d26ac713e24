package ingest

// Packet holds one received datagram payload and tracks how much of it is unread.
type Packet struct {
	data      []byte
	remaining int
}

// NewPacket copies payload into a packet owned by the caller.
func NewPacket(payload []byte) *Packet {
	data := make([]byte, len(payload))
	copy(data, payload)
	return newOwnedPacket(data)
}

// newOwnedPacket takes ownership of data without copying.
func newOwnedPacket(data []byte) *Packet {
	return &Packet{data: data, remaining: len(data)}
}

// Unread returns the unconsumed tail of the packet.
func (p *Packet) Unread() []byte {
	return p.data[len(p.data)-p.remaining:]
}

// consume copies up to len(dst) unread bytes into dst and advances the cursor.
func (p *Packet) consume(dst []byte) int {
	n := copy(dst, p.Unread())
	p.remaining -= n
	return n
}

// Done reports whether every byte of the packet has been consumed.
func (p *Packet) Done() bool {
	return p.remaining == 0
}
