// Package ingest receives live UDP datagrams into a packet queue and serves them as a byte stream.
package ingest

import (
	"fmt"
	"strings"
	"sync"
)

// OverflowPolicy decides what a bounded queue does when a packet arrives while it is full.
type OverflowPolicy int

const (
	// DropOldest evicts the head packet so the receiver never waits.
	DropOldest OverflowPolicy = iota
	// BlockProducer makes Push wait until the consumer frees a slot or the queue closes.
	BlockProducer
)

func (p OverflowPolicy) String() string {
	switch p {
	case DropOldest:
		return "drop-oldest"
	case BlockProducer:
		return "block"
	default:
		return fmt.Sprintf("OverflowPolicy(%d)", int(p))
	}
}

// ParseOverflowPolicy maps a configuration value to an OverflowPolicy.
func ParseOverflowPolicy(s string) (OverflowPolicy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "drop-oldest", "drop":
		return DropOldest, nil
	case "block", "block-producer":
		return BlockProducer, nil
	default:
		return DropOldest, fmt.Errorf("unknown overflow policy %q", s)
	}
}

// PacketQueue is a thread-safe FIFO of packets backed by a ring.
// A capacity of zero or less makes the queue unbounded.
type PacketQueue struct {
	mu       sync.Mutex
	cond     *sync.Cond
	ring     []*Packet
	head     int
	count    int
	capacity int
	policy   OverflowPolicy
	closed   bool
}

const unboundedInitialSize = 64

// NewPacketQueue creates a queue holding at most capacity packets.
func NewPacketQueue(capacity int, policy OverflowPolicy) *PacketQueue {
	size := capacity
	if size <= 0 {
		size = unboundedInitialSize
	}
	q := &PacketQueue{
		ring:     make([]*Packet, size),
		capacity: capacity,
		policy:   policy,
	}
	q.cond = sync.NewCond(&q.mu)
	return q
}

// Push appends p. It reports whether an older packet was evicted to make room.
func (q *PacketQueue) Push(p *Packet) (bool, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return false, ErrQueueClosed
	}

	evicted := false
	if q.bounded() && q.count == q.capacity {
		switch q.policy {
		case BlockProducer:
			for q.count == q.capacity && !q.closed {
				q.cond.Wait()
			}
			if q.closed {
				return false, ErrQueueClosed
			}
		default:
			q.ring[q.head] = nil
			q.head = (q.head + 1) % len(q.ring)
			q.count--
			evicted = true
		}
	}

	if !q.bounded() && q.count == len(q.ring) {
		q.grow()
	}

	q.ring[(q.head+q.count)%len(q.ring)] = p
	q.count++
	q.cond.Broadcast()
	return evicted, nil
}

// TryPop removes the head packet without waiting.
func (q *PacketQueue) TryPop() (*Packet, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.count == 0 {
		return nil, false
	}

	p := q.ring[q.head]
	q.ring[q.head] = nil
	q.head = (q.head + 1) % len(q.ring)
	q.count--

	// Wake a producer waiting for space.
	q.cond.Broadcast()
	return p, true
}

// Len returns the number of queued packets.
func (q *PacketQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.count
}

// Clear discards every queued packet.
func (q *PacketQueue) Clear() {
	q.mu.Lock()
	defer q.mu.Unlock()

	for i := range q.ring {
		q.ring[i] = nil
	}
	q.head = 0
	q.count = 0
	q.cond.Broadcast()
}

// Close rejects further pushes and wakes any blocked producer.
// Queued packets stay available to TryPop.
func (q *PacketQueue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.closed = true
	q.cond.Broadcast()
}

func (q *PacketQueue) bounded() bool {
	return q.capacity > 0
}

// grow doubles the ring, unrolling it so the head lands at index zero.
func (q *PacketQueue) grow() {
	next := make([]*Packet, len(q.ring)*2)
	for i := 0; i < q.count; i++ {
		next[i] = q.ring[(q.head+i)%len(q.ring)]
	}
	q.ring = next
	q.head = 0
}
