// (c) 2023, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package serializer

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
	_ Requester = (*RemoteClient)(nil)

	errWriteAttempts = errors.New("gave up writing request")
)

// Transport is the client end of the framed stream.
type Transport interface {
	Write(ctx context.Context, msg []byte) error
	Read(ctx context.Context) ([]byte, error)
}

type RemoteConfig struct {
	// InitialBackoff and MaxBackoff bound the delay between write attempts.
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	// MaxWriteAttempts limits write attempts per request; zero retries
	// until the context is done.
	MaxWriteAttempts int
}

var DefaultRemoteConfig = RemoteConfig{
	InitialBackoff: network.DefaultInitialBackoff,
	MaxBackoff:     network.DefaultMaxBackoff,
}

// RemoteClient sends requests over a Transport. A write is retried with
// backoff until it succeeds. When the stream closes before the response
// arrives the request is sent again, so the service may see it more than once.
//
// A RemoteClient is not safe for concurrent use.
type RemoteClient struct {
	transport Transport
	config    RemoteConfig
	log       log.Logger

	writeRetries prometheus.Counter
	resends      prometheus.Counter
}

// NewRemoteClient wraps [transport]. [registerer] may be nil to skip metrics
// registration.
func NewRemoteClient(
	transport Transport,
	config RemoteConfig,
	logger log.Logger,
	registerer prometheus.Registerer,
) (*RemoteClient, error) {
	if logger == nil {
		logger = log.Root()
	}
	if config.InitialBackoff <= 0 {
		config.InitialBackoff = network.DefaultInitialBackoff
	}
	if config.MaxBackoff < config.InitialBackoff {
		config.MaxBackoff = config.InitialBackoff
	}
	c := &RemoteClient{
		transport: transport,
		config:    config,
		log:       logger.New("module", "remote-client"),
		writeRetries: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "execvm",
			Name:      "client_write_retries_total",
			Help:      "Number of failed request writes that were retried",
		}),
		resends: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "execvm",
			Name:      "client_resends_total",
			Help:      "Number of requests resent after the stream closed",
		}),
	}
	if registerer != nil {
		for _, m := range []prometheus.Collector{c.writeRetries, c.resends} {
			if err := registerer.Register(m); err != nil {
				return nil, err
			}
		}
	}
	return c, nil
}

func (c *RemoteClient) Request(ctx context.Context, msg []byte) ([]byte, error) {
	for {
		if err := c.write(ctx, msg); err != nil {
			return nil, err
		}

		resp, err := c.transport.Read(ctx)
		switch {
		case err == nil:
			return resp, nil
		case ctx.Err() != nil:
			return nil, ctx.Err()
		case network.IsRemoteStreamClosed(err):
			c.log.Warn("stream closed before response, resending request", "err", err)
			c.resends.Inc()
		default:
			return nil, fmt.Errorf("failed to read response: %w", err)
		}
	}
}

func (c *RemoteClient) write(ctx context.Context, msg []byte) error {
	backoff := &network.Backoff{
		Initial: c.config.InitialBackoff,
		Max:     c.config.MaxBackoff,
	}
	for attempt := 1; ; attempt++ {
		err := c.transport.Write(ctx, msg)
		if err == nil {
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if c.config.MaxWriteAttempts > 0 && attempt >= c.config.MaxWriteAttempts {
			return fmt.Errorf("%w after %d attempts: %w", errWriteAttempts, attempt, err)
		}

		c.log.Debug("failed to write request, retrying", "attempt", attempt, "err", err)
		c.writeRetries.Inc()
		if err := backoff.Wait(ctx); err != nil {
			return err
		}
	}
}
