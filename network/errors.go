// (c) 2023, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package network

import (
	"errors"
	"fmt"
	"io"
	"syscall"
)

var (
	// ErrRemoteStreamClosed means the peer ended the stream, or there is no
	// stream to read from. It is expected and the exchange may be retried.
	ErrRemoteStreamClosed = errors.New("remote stream closed")
	// ErrMessageTooLarge is returned for frames above MaxMessageSize. The
	// stream cannot be resynchronized afterwards, so it is dropped.
	ErrMessageTooLarge = errors.New("message exceeds maximum size")
	// ErrServerClosed is returned by Server.Read once Close was called.
	ErrServerClosed = errors.New("server closed")
)

// IsRemoteStreamClosed reports whether [err] is the transient stream-closed
// condition.
func IsRemoteStreamClosed(err error) bool {
	return errors.Is(err, ErrRemoteStreamClosed)
}

// classify wraps [err] in ErrRemoteStreamClosed when it signals that the peer
// ended the connection. Every other error is returned unchanged.
func classify(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, ErrRemoteStreamClosed):
		return err
	case errors.Is(err, io.EOF),
		errors.Is(err, io.ErrUnexpectedEOF),
		errors.Is(err, syscall.ECONNRESET),
		errors.Is(err, syscall.ECONNABORTED),
		errors.Is(err, syscall.EPIPE):
		return fmt.Errorf("%w: %v", ErrRemoteStreamClosed, err)
	default:
		return err
	}
}
