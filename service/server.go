// (c) 2023, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package service

import (
	"context"
	"fmt"
	"net"
	"sync/atomic"
	"time"

	"github.com/ava-labs/avalanchego/database"
	"github.com/ava-labs/avalanchego/ids"
	log "github.com/inconshreveable/log15"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/ava-labs/execvm/executor"
	"github.com/ava-labs/execvm/network"
	"github.com/ava-labs/execvm/serializer"
	"github.com/ava-labs/execvm/signer"
)

type Config struct {
	// ListenAddress is bound once at startup; failing to bind is fatal.
	ListenAddress string
	Executor      executor.Config
	// Signer may be nil, in which case execution results are not signed.
	Signer *signer.Signer
	// Registerer may be nil to skip metrics registration.
	Registerer prometheus.Registerer
}

// Status is a snapshot of the service, safe to read from any goroutine.
type Status struct {
	CommittedBlockID ids.ID
	Processed        uint64
	PublicKey        []byte
	StartedAt        time.Time
}

// Server owns the executor and the transport it is reached through.
type Server struct {
	executor  *executor.Executor
	transport *network.Server
	loop      *Loop
	signer    *signer.Signer
	log       log.Logger

	started   time.Time
	processed atomic.Uint64
	committed atomic.Value // ids.ID
}

// New opens the executor on [db] and binds the listen address.
func New(db database.Database, config Config, logger log.Logger) (*Server, error) {
	if logger == nil {
		logger = log.Root()
	}
	exec, err := executor.New(db, config.Executor, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to open executor: %w", err)
	}
	handler, err := serializer.NewService(exec, config.Signer, logger, config.Registerer)
	if err != nil {
		_ = exec.Close()
		return nil, fmt.Errorf("failed to create serializer service: %w", err)
	}
	transport, err := network.NewServer(config.ListenAddress, logger)
	if err != nil {
		_ = exec.Close()
		return nil, err
	}

	s := &Server{
		executor:  exec,
		transport: transport,
		signer:    config.Signer,
		log:       logger.New("module", "service-server"),
		started:   time.Now(),
	}
	s.loop, err = NewLoop(transport, &statusHandler{server: s, handler: handler}, logger, config.Registerer)
	if err != nil {
		_ = transport.Close()
		_ = exec.Close()
		return nil, err
	}
	s.refreshCommitted(context.Background())
	return s, nil
}

// Addr returns the bound transport address.
func (s *Server) Addr() net.Addr {
	return s.transport.Addr()
}

// Serve answers requests until [ctx] is done. The executor is closed on
// return.
func (s *Server) Serve(ctx context.Context) error {
	stop := context.AfterFunc(ctx, func() {
		_ = s.transport.Close()
	})
	defer stop()

	s.log.Info("serving", "address", s.Addr(), "signing", s.signer != nil)
	err := s.loop.Serve(ctx)
	_ = s.transport.Close()
	if closeErr := s.executor.Close(); closeErr != nil {
		s.log.Warn("failed to close executor", "err", closeErr)
	}
	if ctx.Err() != nil {
		return nil
	}
	return err
}

// Status returns the latest snapshot.
func (s *Server) Status() Status {
	status := Status{
		Processed: s.processed.Load(),
		StartedAt: s.started,
	}
	if committed, ok := s.committed.Load().(ids.ID); ok {
		status.CommittedBlockID = committed
	}
	if s.signer != nil {
		status.PublicKey = s.signer.PublicKey()
	}
	return status
}

func (s *Server) refreshCommitted(ctx context.Context) {
	committed, err := s.executor.CommittedBlockID(ctx)
	if err != nil {
		s.log.Warn("failed to read committed block", "err", err)
		return
	}
	s.committed.Store(committed)
}

// statusHandler refreshes the status snapshot on the loop's goroutine after
// every message.
type statusHandler struct {
	server  *Server
	handler *serializer.Service
}

func (h *statusHandler) HandleMessage(ctx context.Context, msg []byte) ([]byte, error) {
	defer func() {
		h.server.processed.Add(1)
		h.server.refreshCommitted(ctx)
	}()
	return h.handler.HandleMessage(ctx, msg)
}

func (h *statusHandler) ErrorReply(err error) ([]byte, error) {
	return h.handler.ErrorReply(err)
}
