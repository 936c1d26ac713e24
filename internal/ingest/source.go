package ingest

import (
	"context"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/savid/iptv-udp-buffer/pkg/types"
)

const (
	// DefaultMaxPacketSize is the default maximum datagram size, in bytes.
	DefaultMaxPacketSize = 2000
	// DefaultSocketTimeout is the default receive timeout. Zero waits forever.
	DefaultSocketTimeout = 8 * time.Second
	// DefaultQueueCapacity is the default number of packets held before the overflow policy applies.
	DefaultQueueCapacity = 4096
	// LengthUnknown is returned by Open: a live feed has no determinable length.
	LengthUnknown int64 = -1
)

// Option configures a Source.
type Option func(*Source)

// WithMaxPacketSize sets the receive buffer size for one datagram.
func WithMaxPacketSize(n int) Option {
	return func(s *Source) {
		if n > 0 {
			s.maxPacketSize = n
		}
	}
}

// WithSocketTimeout sets how long one receive call may block. Zero means no deadline.
func WithSocketTimeout(d time.Duration) Option {
	return func(s *Source) {
		if d >= 0 {
			s.socketTimeout = d
		}
	}
}

// WithQueueCapacity bounds the packet queue. Zero or less keeps it unbounded.
func WithQueueCapacity(n int) Option {
	return func(s *Source) { s.queueCapacity = n }
}

// WithOverflowPolicy selects what happens when a bounded queue is full.
func WithOverflowPolicy(p OverflowPolicy) Option {
	return func(s *Source) { s.overflow = p }
}

// WithInterface joins multicast groups on the named interface instead of the system default.
func WithInterface(name string) Option {
	return func(s *Source) { s.iface = name }
}

// WithListener registers a transfer observer.
func WithListener(l Listener) Option {
	return func(s *Source) {
		if l != nil {
			s.listener = l
		}
	}
}

// WithLogger sets the logger used by the source and its receiver.
func WithLogger(logger logrus.FieldLogger) Option {
	return func(s *Source) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// Source is a live datagram stream exposed as a non-blocking byte stream.
// Read and Close are meant to be called from one consumer goroutine; Stats, State
// and Err are safe from any goroutine.
type Source struct {
	maxPacketSize int
	socketTimeout time.Duration
	queueCapacity int
	overflow      OverflowPolicy
	iface         string
	listener      Listener
	logger        logrus.FieldLogger

	mu       sync.Mutex
	state    atomic.Int32
	endpoint types.Endpoint
	sock     *socket
	queue    *PacketQueue
	current  *Packet
	cancel   context.CancelFunc
	wg       sync.WaitGroup
	opened   bool
	stats    *counters
	recvErr  atomic.Pointer[error]
}

// New creates an idle source.
func New(opts ...Option) *Source {
	s := &Source{
		maxPacketSize: DefaultMaxPacketSize,
		socketTimeout: DefaultSocketTimeout,
		queueCapacity: DefaultQueueCapacity,
		overflow:      DropOldest,
		listener:      NopListener{},
		logger:        logrus.StandardLogger(),
		stats:         &counters{},
	}
	for _, opt := range opts {
		opt(s)
	}
	s.queue = NewPacketQueue(s.queueCapacity, s.overflow)
	return s
}

// Open binds the endpoint and starts receiving. It returns LengthUnknown on success.
func (s *Source) Open(ctx context.Context, ep types.Endpoint) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.opened {
		return 0, ErrAlreadyOpen
	}

	resolved, err := resolve(ctx, ep)
	if err != nil {
		return 0, &ConnectError{Op: "resolve", Endpoint: ep, Err: err}
	}

	sock, err := listen(resolved, s.iface)
	if err != nil {
		return 0, err
	}

	s.endpoint = resolved
	s.sock = sock
	s.queue = NewPacketQueue(s.queueCapacity, s.overflow)
	s.current = nil
	s.stats = &counters{}
	s.recvErr.Store(nil)
	s.opened = true
	s.state.Store(int32(types.StateOpen))

	logger := s.logger.WithFields(logrus.Fields{
		"endpoint":  resolved.String(),
		"multicast": resolved.Multicast,
	})
	logger.Info("Opened stream source")

	s.listener.OnTransferStart(resolved)

	var decap Decapsulator
	if resolved.Scheme == types.SchemeRTP {
		decap = StripRTP
	}

	r := &receiver{
		conn:          sock.conn,
		queue:         s.queue,
		maxPacketSize: s.maxPacketSize,
		timeout:       s.socketTimeout,
		decap:         decap,
		stats:         s.stats,
		logger:        logger,
	}

	recvCtx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		if err := r.run(recvCtx); err != nil {
			s.recvErr.Store(&err)
			logger.WithError(err).Error("Receiver stopped")
		}
	}()

	return LengthUnknown, nil
}

// Read copies unread bytes of the current datagram into p. It never blocks and never
// copies bytes from two datagrams in one call. It returns 0, nil when no data is queued
// yet; that is not end of stream. Once the receiver has failed and the queue is drained
// it returns a *TransferError.
func (s *Source) Read(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.opened {
		return 0, nil
	}

	if s.current == nil || s.current.Done() {
		pkt, ok := s.queue.TryPop()
		if !ok {
			s.current = nil
			s.stats.emptyReads.Add(1)
			if errp := s.recvErr.Load(); errp != nil {
				return 0, &TransferError{Endpoint: s.endpoint, Err: *errp}
			}
			return 0, nil
		}
		s.current = pkt
	}

	n := s.current.consume(p)
	s.stats.bytesRead.Add(uint64(n))
	s.listener.OnBytesTransferred(n)
	return n, nil
}

// Close stops the receiver, releases the socket and clears buffered packets.
// It is safe to call repeatedly; the transfer-end event fires once per Open.
func (s *Source) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.opened {
		return nil
	}

	s.state.Store(int32(types.StateClosing))
	s.cancel()
	s.queue.Close()

	// Closing the socket unblocks a pending receive right away.
	err := s.sock.close()
	s.wg.Wait()

	s.state.Store(int32(types.StateClosed))
	s.queue.Clear()
	s.current = nil
	s.sock = nil
	s.cancel = nil
	s.opened = false

	s.listener.OnTransferEnd()
	s.logger.WithField("endpoint", s.endpoint.String()).Info("Closed stream source")

	s.state.Store(int32(types.StateIdle))
	return err
}

// State returns the lifecycle state.
func (s *Source) State() types.SessionState {
	return types.SessionState(s.state.Load())
}

// Endpoint returns the resolved endpoint of the current or last session.
func (s *Source) Endpoint() types.Endpoint {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.endpoint
}

// LocalAddr returns the bound address, or nil when the source is not open.
func (s *Source) LocalAddr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sock == nil {
		return nil
	}
	return s.sock.conn.LocalAddr()
}

// Err returns the receiver's terminal error, if it stopped on its own.
func (s *Source) Err() error {
	if errp := s.recvErr.Load(); errp != nil {
		return *errp
	}
	return nil
}

// Stats returns a snapshot of the session counters.
func (s *Source) Stats() types.SourceStats {
	s.mu.Lock()
	stats := s.stats
	queue := s.queue
	ep := s.endpoint
	s.mu.Unlock()

	st := types.SourceStats{
		State:            s.State(),
		PacketsReceived:  stats.packetsReceived.Load(),
		BytesReceived:    stats.bytesReceived.Load(),
		PacketsDropped:   stats.packetsDropped.Load(),
		PacketsMalformed: stats.packetsMalformed.Load(),
		ReceiveErrors:    stats.receiveErrors.Load(),
		Timeouts:         stats.timeouts.Load(),
		QueueDepth:       queue.Len(),
		BytesRead:        stats.bytesRead.Load(),
		EmptyReads:       stats.emptyReads.Load(),
	}
	if ep.IP != nil {
		st.Endpoint = ep.String()
	}
	if ts := stats.lastPacketAt.Load(); ts > 0 {
		st.LastPacketAt = time.Unix(0, ts)
	}
	return st
}
