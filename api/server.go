// (c) 2023, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package api serves a read-only JSON-RPC status endpoint and prometheus
// metrics for a running execution service.
package api

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/rpc/v2"
	log "github.com/inconshreveable/log15"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	cjson "github.com/ava-labs/avalanchego/utils/json"
)

const (
	RPCPath     = "/ext/status"
	MetricsPath = "/metrics"

	readHeaderTimeout = 5 * time.Second
	shutdownTimeout   = 5 * time.Second
)

// NewHandler returns the HTTP handler exposing [reporter] over JSON-RPC and
// [gatherer] in the prometheus text format.
func NewHandler(reporter StatusReporter, gatherer prometheus.Gatherer) (http.Handler, error) {
	server := rpc.NewServer()
	codec := cjson.NewCodec()
	server.RegisterCodec(codec, "application/json")
	server.RegisterCodec(codec, "application/json;charset=UTF-8")
	if err := server.RegisterService(&Service{reporter: reporter}, Name); err != nil {
		return nil, fmt.Errorf("failed to register status service: %w", err)
	}

	mux := http.NewServeMux()
	mux.Handle(RPCPath, server)
	mux.Handle(MetricsPath, promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	return mux, nil
}

// Server serves the API on its own listener.
type Server struct {
	listener net.Listener
	http     *http.Server
	log      log.Logger
}

func NewServer(addr string, handler http.Handler, logger log.Logger) (*Server, error) {
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("failed to listen on %s: %w", addr, err)
	}
	if logger == nil {
		logger = log.Root()
	}
	return &Server{
		listener: listener,
		http: &http.Server{
			Handler:           handler,
			ReadHeaderTimeout: readHeaderTimeout,
		},
		log: logger.New("module", "api"),
	}, nil
}

func (s *Server) Addr() net.Addr {
	return s.listener.Addr()
}

// Serve blocks until [ctx] is done.
func (s *Server) Serve(ctx context.Context) error {
	stop := context.AfterFunc(ctx, func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := s.http.Shutdown(shutdownCtx); err != nil {
			s.log.Warn("failed to shut down api server", "err", err)
		}
	})
	defer stop()

	s.log.Info("serving api", "address", s.Addr())
	err := s.http.Serve(s.listener)
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}
