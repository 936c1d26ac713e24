package ingest

import (
	"errors"
	"fmt"

	"github.com/savid/iptv-udp-buffer/pkg/types"
)

var (
	// ErrAlreadyOpen is returned when Open is called on a source that holds a session.
	ErrAlreadyOpen = errors.New("source is already open")
	// ErrQueueClosed is returned when pushing to a closed packet queue.
	ErrQueueClosed = errors.New("packet queue is closed")
	// ErrInvalidEndpoint is returned when an endpoint URI cannot be parsed.
	ErrInvalidEndpoint = errors.New("invalid endpoint")
	// ErrReceiverStopped is the terminal condition reported when the socket fails under an open session.
	ErrReceiverStopped = errors.New("receiver stopped")
)

// ConnectError reports a failure to establish a session: resolution, bind or group join.
type ConnectError struct {
	Op       string
	Endpoint types.Endpoint
	Err      error
}

func (e *ConnectError) Error() string {
	return fmt.Sprintf("connect %s %s: %v", e.Op, e.Endpoint, e.Err)
}

func (e *ConnectError) Unwrap() error {
	return e.Err
}

// TransferError reports an I/O failure after the session was opened.
type TransferError struct {
	Endpoint types.Endpoint
	Err      error
}

func (e *TransferError) Error() string {
	return fmt.Sprintf("transfer %s: %v", e.Endpoint, e.Err)
}

func (e *TransferError) Unwrap() error {
	return e.Err
}
