// (c) 2023, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package network

import (
	"errors"
	"fmt"
	"net"
	"sync"

	log "github.com/inconshreveable/log15"
)

// Server is the listening end of the transport. It serves a single
// connection at a time: Read accepts a connection when none is active and any
// failure on the active connection drops it.
//
// Read and Write must be called from a single goroutine. Close may be called
// from any goroutine.
type Server struct {
	listener net.Listener
	log      log.Logger

	lock   sync.Mutex
	conn   net.Conn
	closed bool
}

// NewServer binds [addr]. A bind failure is the only unrecoverable transport
// error and is reported here, once.
func NewServer(addr string, logger log.Logger) (*Server, error) {
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("failed to listen on %s: %w", addr, err)
	}
	if logger == nil {
		logger = log.Root()
	}
	return &Server{
		listener: listener,
		log:      logger.New("module", "network-server"),
	}, nil
}

// Addr returns the bound address.
func (s *Server) Addr() net.Addr {
	return s.listener.Addr()
}

// Read blocks until one complete message has been received.
func (s *Server) Read() ([]byte, error) {
	conn, err := s.activeConn()
	if err != nil {
		return nil, err
	}

	msg, err := readMessage(conn)
	if err != nil {
		s.dropConn(conn)
		return nil, classify(err)
	}
	return msg, nil
}

// Write sends [msg] on the connection the last message was read from.
func (s *Server) Write(msg []byte) error {
	s.lock.Lock()
	conn := s.conn
	s.lock.Unlock()
	if conn == nil {
		return fmt.Errorf("%w: no active connection", ErrRemoteStreamClosed)
	}

	if err := writeMessage(conn, msg); err != nil {
		s.dropConn(conn)
		return classify(err)
	}
	return nil
}

// DropConn closes the active connection, if any, so that its peer sees
// ErrRemoteStreamClosed. The next Read accepts a new connection.
func (s *Server) DropConn() {
	s.lock.Lock()
	conn := s.conn
	s.lock.Unlock()
	if conn != nil {
		s.log.Debug("dropping connection", "remote", conn.RemoteAddr())
		s.dropConn(conn)
	}
}

// Close stops accepting connections and closes the active one.
func (s *Server) Close() error {
	s.lock.Lock()
	defer s.lock.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true
	if s.conn != nil {
		_ = s.conn.Close()
		s.conn = nil
	}
	return s.listener.Close()
}

func (s *Server) activeConn() (net.Conn, error) {
	s.lock.Lock()
	conn, closed := s.conn, s.closed
	s.lock.Unlock()
	if closed {
		return nil, ErrServerClosed
	}
	if conn != nil {
		return conn, nil
	}

	conn, err := s.listener.Accept()
	if err != nil {
		if errors.Is(err, net.ErrClosed) {
			return nil, ErrServerClosed
		}
		return nil, fmt.Errorf("failed to accept connection: %w", err)
	}

	s.lock.Lock()
	defer s.lock.Unlock()
	if s.closed {
		_ = conn.Close()
		return nil, ErrServerClosed
	}
	s.log.Debug("accepted connection", "remote", conn.RemoteAddr())
	s.conn = conn
	return conn, nil
}

func (s *Server) dropConn(conn net.Conn) {
	_ = conn.Close()

	s.lock.Lock()
	defer s.lock.Unlock()
	if s.conn == conn {
		s.conn = nil
	}
}
