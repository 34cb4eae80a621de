// (c) 2023, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package manager hands out the execution capability in one of several
// isolation modes, from a direct in-process call to a separate process
// reached over TCP.
package manager

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ava-labs/avalanchego/database"
	"github.com/ava-labs/avalanchego/ids"
	log "github.com/inconshreveable/log15"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/ava-labs/execvm/executor"
	"github.com/ava-labs/execvm/network"
	"github.com/ava-labs/execvm/serializer"
	"github.com/ava-labs/execvm/service"
	"github.com/ava-labs/execvm/signer"
)

type Mode string

const (
	// Local calls the executor directly.
	Local Mode = "local"
	// Serializer runs every call through the wire codec in process.
	Serializer Mode = "serializer"
	// Thread serves the executor on a loopback listener from a goroutine.
	Thread Mode = "thread"
	// Process connects to a service running elsewhere.
	Process Mode = "process"
)

var (
	errUnknownMode = errors.New("unknown execution mode")
	errNoRemote    = errors.New("process mode requires a remote address")
	errNoDatabase  = errors.New("mode requires a database")
)

type Config struct {
	Mode Mode
	// RemoteAddress is the service address in Process mode.
	RemoteAddress string
	DialTimeout   time.Duration
	Remote        serializer.RemoteConfig
	Executor      executor.Config
	// Signer is used by every mode except Process, where the remote service
	// holds its own key. May be nil.
	Signer *signer.Signer
	// Registerer may be nil to skip metrics registration.
	Registerer prometheus.Registerer
}

// PublicKeyer is implemented by clients that can report the key results are
// signed with.
type PublicKeyer interface {
	PublicKey(ctx context.Context) ([]byte, error)
}

type Client interface {
	executor.BlockExecutor
	PublicKeyer
}

// Manager owns whatever the selected mode needs to run and exposes a
// Client for it.
type Manager struct {
	mode   Mode
	client Client
	log    log.Logger

	closers []func() error
}

// New starts the capability in [config.Mode]. [db] is ignored in Process
// mode.
func New(db database.Database, config Config, logger log.Logger) (*Manager, error) {
	if logger == nil {
		logger = log.Root()
	}
	m := &Manager{
		mode: config.Mode,
		log:  logger.New("module", "manager", "mode", config.Mode),
	}

	var err error
	switch config.Mode {
	case Local:
		err = m.startLocal(db, config, logger)
	case Serializer:
		err = m.startSerializer(db, config, logger)
	case Thread:
		err = m.startThread(db, config, logger)
	case Process:
		err = m.startProcess(config.RemoteAddress, config, logger)
	default:
		err = fmt.Errorf("%w: %q", errUnknownMode, config.Mode)
	}
	if err != nil {
		_ = m.Close()
		return nil, err
	}
	m.log.Info("execution capability ready")
	return m, nil
}

func (m *Manager) Mode() Mode { return m.mode }

// Client returns the capability client. It is not safe for concurrent use.
func (m *Manager) Client() Client { return m.client }

// Close releases everything the mode started, last started first.
func (m *Manager) Close() error {
	var errs []error
	for i := len(m.closers) - 1; i >= 0; i-- {
		if err := m.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	m.closers = nil
	return errors.Join(errs...)
}

func (m *Manager) startLocal(db database.Database, config Config, logger log.Logger) error {
	if db == nil {
		return errNoDatabase
	}
	exec, err := executor.New(db, config.Executor, logger)
	if err != nil {
		return err
	}
	m.closers = append(m.closers, exec.Close)
	m.client = &signingExecutor{
		BlockExecutor: exec,
		signer:        config.Signer,
	}
	return nil
}

func (m *Manager) startSerializer(db database.Database, config Config, logger log.Logger) error {
	if db == nil {
		return errNoDatabase
	}
	exec, err := executor.New(db, config.Executor, logger)
	if err != nil {
		return err
	}
	m.closers = append(m.closers, exec.Close)

	svc, err := serializer.NewService(exec, config.Signer, logger, config.Registerer)
	if err != nil {
		return err
	}
	m.client = serializer.NewClient(serializer.NewLocalClient(svc))
	return nil
}

func (m *Manager) startThread(db database.Database, config Config, logger log.Logger) error {
	if db == nil {
		return errNoDatabase
	}
	server, err := service.New(db, service.Config{
		ListenAddress: "127.0.0.1:0",
		Executor:      config.Executor,
		Signer:        config.Signer,
		Registerer:    config.Registerer,
	}, logger)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- server.Serve(ctx)
	}()
	m.closers = append(m.closers, func() error {
		cancel()
		return <-done
	})

	// Registration already happened on the service side.
	config.Registerer = nil
	return m.startProcess(server.Addr().String(), config, logger)
}

func (m *Manager) startProcess(addr string, config Config, logger log.Logger) error {
	if addr == "" {
		return errNoRemote
	}
	conn := network.NewClient(addr, config.DialTimeout, logger)
	m.closers = append(m.closers, conn.Close)

	remote, err := serializer.NewRemoteClient(conn, config.Remote, logger, config.Registerer)
	if err != nil {
		return err
	}
	m.client = serializer.NewClient(remote)
	return nil
}

// signingExecutor signs execution results the way the service does, so that
// Local mode is observably equivalent to the others.
type signingExecutor struct {
	executor.BlockExecutor
	signer *signer.Signer
}

func (s *signingExecutor) ExecuteBlock(ctx context.Context, block executor.Block, parentID ids.ID) (executor.StateComputeResult, error) {
	res, err := s.BlockExecutor.ExecuteBlock(ctx, block, parentID)
	if err != nil || s.signer == nil {
		return res, err
	}
	signBytes, err := res.SignBytes()
	if err != nil {
		return executor.StateComputeResult{}, err
	}
	res.Signature = s.signer.Sign(signBytes)
	return res, nil
}

func (s *signingExecutor) PublicKey(context.Context) ([]byte, error) {
	if s.signer == nil {
		return nil, nil
	}
	return s.signer.PublicKey(), nil
}
