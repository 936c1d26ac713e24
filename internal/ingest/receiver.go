package ingest

import (
	"context"
	"errors"
	"net"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
)

// counters are shared between the receiver goroutine and the consumer.
type counters struct {
	packetsReceived  atomic.Uint64
	bytesReceived    atomic.Uint64
	packetsDropped   atomic.Uint64
	packetsMalformed atomic.Uint64
	receiveErrors    atomic.Uint64
	timeouts         atomic.Uint64
	bytesRead        atomic.Uint64
	emptyReads       atomic.Uint64
	lastPacketAt     atomic.Int64
}

// maxErrorPause caps the pause between receives after repeated transient errors.
const maxErrorPause = 100 * time.Millisecond

// receiver pulls datagrams off a connection and queues them until its context ends.
type receiver struct {
	conn          net.PacketConn
	queue         *PacketQueue
	maxPacketSize int
	timeout       time.Duration
	decap         Decapsulator
	stats         *counters
	logger        logrus.FieldLogger
}

// run loops until ctx is cancelled, the socket is closed or the queue rejects pushes.
// It returns nil on a requested stop and ErrReceiverStopped wrapping the cause otherwise.
func (r *receiver) run(ctx context.Context) error {
	buf := make([]byte, r.maxPacketSize)
	errStreak := 0

	for {
		if ctx.Err() != nil {
			return nil
		}

		n, err := r.readDatagram(buf)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			if errors.Is(err, net.ErrClosed) {
				return errors.Join(ErrReceiverStopped, err)
			}
			if !r.handleReadError(err, errStreak) {
				errStreak = 0
				continue
			}
			errStreak++
			if err := pause(ctx, errorPause(errStreak)); err != nil {
				return nil
			}
			continue
		}
		errStreak = 0

		if err := r.enqueue(buf[:n]); err != nil {
			if errors.Is(err, ErrQueueClosed) {
				return nil
			}
			r.stats.packetsMalformed.Add(1)
			r.logger.WithError(err).Debug("Dropping malformed datagram")
		}
	}
}

func (r *receiver) readDatagram(buf []byte) (int, error) {
	if r.timeout > 0 {
		_ = r.conn.SetReadDeadline(time.Now().Add(r.timeout))
	}

	n, _, err := r.conn.ReadFrom(buf)
	return n, err
}

// handleReadError classifies a non-fatal receive error. It reports false for timeouts
// and true for errors that should slow the loop down. Only the first error of a
// streak is logged as a warning.
func (r *receiver) handleReadError(err error, streak int) bool {
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		r.stats.timeouts.Add(1)
		r.logger.Debug("Socket receive timed out, waiting again")
		return false
	}

	r.stats.receiveErrors.Add(1)
	entry := r.logger.WithError(err).WithField("consecutive", streak+1)
	if streak == 0 {
		entry.Warn("Transient receive error")
	} else {
		entry.Debug("Transient receive error")
	}
	return true
}

// errorPause doubles from one millisecond per consecutive error up to maxErrorPause.
func errorPause(streak int) time.Duration {
	if streak > 8 {
		return maxErrorPause
	}
	return min(time.Millisecond<<(streak-1), maxErrorPause)
}

func pause(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// enqueue builds a packet owned by the queue from the datagram.
func (r *receiver) enqueue(datagram []byte) error {
	payload := datagram
	if r.decap != nil {
		var err error
		payload, err = r.decap(datagram)
		if err != nil {
			return err
		}
	}

	r.stats.packetsReceived.Add(1)
	r.stats.bytesReceived.Add(uint64(len(payload)))
	r.stats.lastPacketAt.Store(time.Now().UnixNano())

	if len(payload) == 0 {
		return nil
	}

	evicted, err := r.queue.Push(NewPacket(payload))
	if err != nil {
		return err
	}
	if evicted {
		r.stats.packetsDropped.Add(1)
	}
	return nil
}
