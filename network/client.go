// (c) 2023, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package network

import (
	"context"
	"fmt"
	"net"
	"time"

	log "github.com/inconshreveable/log15"
)

// aLongTimeAgo is a deadline in the past, used to unblock pending I/O.
var aLongTimeAgo = time.Unix(1, 0)

// Client is the dialing end of the transport. It connects on the first Write
// and after any failure, so a server that drops and re-accepts connections is
// transparently reconnected to.
//
// A Client is not safe for concurrent use.
type Client struct {
	addr   string
	dialer net.Dialer
	log    log.Logger

	conn net.Conn
}

// NewClient returns a client for the server at [addr]. No connection is made
// until the first Write.
func NewClient(addr string, dialTimeout time.Duration, logger log.Logger) *Client {
	if logger == nil {
		logger = log.Root()
	}
	return &Client{
		addr:   addr,
		dialer: net.Dialer{Timeout: dialTimeout},
		log:    logger.New("module", "network-client", "server", addr),
	}
}

// Write sends [msg], connecting first if needed.
// Blocking I/O is interrupted when [ctx] is done.
func (c *Client) Write(ctx context.Context, msg []byte) error {
	if c.conn == nil {
		conn, err := c.dialer.DialContext(ctx, "tcp", c.addr)
		if err != nil {
			return fmt.Errorf("failed to connect: %w", err)
		}
		c.log.Debug("connected")
		c.conn = conn
	}

	conn := c.conn
	stop := watch(ctx, conn)
	defer stop()

	if err := writeMessage(conn, msg); err != nil {
		c.drop()
		return classify(err)
	}
	return nil
}

// Read blocks until a complete message is received on the current
// connection. Without a connection it returns ErrRemoteStreamClosed.
func (c *Client) Read(ctx context.Context) ([]byte, error) {
	if c.conn == nil {
		return nil, fmt.Errorf("%w: not connected", ErrRemoteStreamClosed)
	}

	conn := c.conn
	stop := watch(ctx, conn)
	defer stop()

	msg, err := readMessage(conn)
	if err != nil {
		c.drop()
		return nil, classify(err)
	}
	return msg, nil
}

// Close closes the current connection, if any.
func (c *Client) Close() error {
	if c.conn == nil {
		return nil
	}
	err := c.conn.Close()
	c.conn = nil
	return err
}

func (c *Client) drop() {
	if c.conn != nil {
		_ = c.conn.Close()
		c.conn = nil
	}
}

// watch applies [ctx]'s deadline to [conn] and aborts pending I/O on [conn]
// once [ctx] is done.
func watch(ctx context.Context, conn net.Conn) func() bool {
	deadline, _ := ctx.Deadline()
	_ = conn.SetDeadline(deadline)
	return context.AfterFunc(ctx, func() {
		_ = conn.SetDeadline(aLongTimeAgo)
	})
}
