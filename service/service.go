// (c) 2023, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package service runs the privileged side of the execution protocol: a
// single-threaded loop that answers one framed request at a time and survives
// every per-message failure.
package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	log "github.com/inconshreveable/log15"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/ava-labs/execvm/network"
)

var (
	errHandlerPanic = errors.New("handler panicked")
	errNoErrorReply = errors.New("handler cannot encode errors")
)

// Transport is the server end of the framed stream.
type Transport interface {
	Read() ([]byte, error)
	Write(msg []byte) error
	// DropConn closes the connection the last message was read from.
	DropConn()
}

// Handler turns one encoded request into one encoded response.
type Handler interface {
	HandleMessage(ctx context.Context, msg []byte) ([]byte, error)
}

// ErrorReplier is implemented by handlers that can encode a failure of
// HandleMessage as a response. Every request gets exactly one reply: when the
// handler cannot produce one, the connection is dropped instead so the client
// never waits on a response that will not come.
type ErrorReplier interface {
	ErrorReply(err error) ([]byte, error)
}

// Loop answers requests read from a Transport with a Handler.
type Loop struct {
	transport Transport
	handler   Handler
	log       log.Logger
	metrics   *metrics
}

// NewLoop returns a loop over [transport]. [registerer] may be nil to skip
// metrics registration.
func NewLoop(
	transport Transport,
	handler Handler,
	logger log.Logger,
	registerer prometheus.Registerer,
) (*Loop, error) {
	if logger == nil {
		logger = log.Root()
	}
	m, err := newMetrics(registerer)
	if err != nil {
		return nil, fmt.Errorf("failed to register service metrics: %w", err)
	}
	return &Loop{
		transport: transport,
		handler:   handler,
		log:       logger.New("module", "service"),
		metrics:   m,
	}, nil
}

// ProcessOneMessage reads one request, handles it, and writes the response.
// The returned error describes why this message was not answered; the loop
// can always continue with the next one.
func (l *Loop) ProcessOneMessage(ctx context.Context) error {
	msg, err := l.transport.Read()
	if err != nil {
		l.metrics.failures.WithLabelValues(stageRead).Inc()
		return fmt.Errorf("failed to read request: %w", err)
	}

	start := time.Now()
	resp, err := l.handle(ctx, msg)
	l.metrics.duration.Observe(time.Since(start).Seconds())
	if err != nil {
		l.metrics.failures.WithLabelValues(stageHandle).Inc()
		err = fmt.Errorf("failed to handle request: %w", err)
		if replyErr := l.replyError(err); replyErr != nil {
			l.transport.DropConn()
			return errors.Join(err, replyErr)
		}
		return err
	}

	if err := l.transport.Write(resp); err != nil {
		l.metrics.failures.WithLabelValues(stageWrite).Inc()
		return fmt.Errorf("failed to write response: %w", err)
	}
	l.metrics.processed.Inc()
	return nil
}

// handle contains a panicking handler to the message that caused it.
func (l *Loop) handle(ctx context.Context, msg []byte) (resp []byte, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", errHandlerPanic, r)
		}
	}()
	return l.handler.HandleMessage(ctx, msg)
}

// replyError answers the current request with an encoding of [cause].
func (l *Loop) replyError(cause error) error {
	replier, ok := l.handler.(ErrorReplier)
	if !ok {
		return errNoErrorReply
	}
	reply, err := l.errorReply(replier, cause)
	if err != nil {
		return fmt.Errorf("failed to encode error reply: %w", err)
	}
	if err := l.transport.Write(reply); err != nil {
		l.metrics.failures.WithLabelValues(stageWrite).Inc()
		return fmt.Errorf("failed to write error reply: %w", err)
	}
	return nil
}

func (l *Loop) errorReply(replier ErrorReplier, cause error) (reply []byte, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", errHandlerPanic, r)
		}
	}()
	return replier.ErrorReply(cause)
}

// Serve processes messages until [ctx] is done or the transport reports
// network.ErrServerClosed. Per-message failures are logged and skipped.
func (l *Loop) Serve(ctx context.Context) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		err := l.ProcessOneMessage(ctx)
		switch {
		case err == nil:
		case errors.Is(err, network.ErrServerClosed):
			l.log.Info("transport closed, stopping")
			return nil
		case network.IsRemoteStreamClosed(err):
			l.log.Debug("client disconnected", "err", err)
		default:
			l.log.Warn("failed to process message", "err", err)
		}
	}
}
