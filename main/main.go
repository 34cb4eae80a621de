// Copyright (C) 2019-2023, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/signal"
	"syscall"

	"github.com/ava-labs/avalanchego/database/memdb"
	log "github.com/inconshreveable/log15"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/ava-labs/execvm/api"
	"github.com/ava-labs/execvm/service"
	"github.com/ava-labs/execvm/signer"
)

func main() {
	c, err := getConfig(os.Args[1:])
	if err != nil {
		fmt.Printf("couldn't get config: %s\n", err)
		os.Exit(1)
	}
	// Print version and exit
	if c.version {
		fmt.Printf("%s@%s\n", api.Name, api.Version)
		os.Exit(0)
	}

	logger, err := newLogger(c.logLevel, c.logFormat)
	if err != nil {
		fmt.Printf("couldn't configure logging: %s\n", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, c, logger); err != nil {
		logger.Crit("execution service failed", "err", err)
		os.Exit(1)
	}
}

func newLogger(level, format string) (log.Logger, error) {
	lvl, err := log.LvlFromString(level)
	if err != nil {
		return nil, err
	}
	var fmtr log.Format
	switch format {
	case "json":
		fmtr = log.JsonFormat()
	case "terminal":
		fmtr = log.TerminalFormat()
	case "logfmt":
		fmtr = log.LogfmtFormat()
	default:
		return nil, fmt.Errorf("unknown log format %q", format)
	}
	logger := log.New()
	logger.SetHandler(log.LvlFilterHandler(lvl, log.StreamHandler(os.Stderr, fmtr)))
	return logger, nil
}

func loadSigner(c config, logger log.Logger) (*signer.Signer, error) {
	if c.privateKeyFile == "" {
		logger.Warn("no private key file, execution results will not be signed")
		return nil, nil
	}
	s, err := signer.LoadFile(c.privateKeyFile)
	if errors.Is(err, fs.ErrNotExist) && c.generateKey {
		logger.Info("generating key file", "path", c.privateKeyFile)
		return signer.GenerateFile(c.privateKeyFile)
	}
	return s, err
}

func run(ctx context.Context, c config, logger log.Logger) error {
	s, err := loadSigner(c, logger)
	if err != nil {
		return err
	}

	registry := prometheus.NewRegistry()
	if err := registry.Register(collectors.NewGoCollector()); err != nil {
		return err
	}
	if err := registry.Register(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{})); err != nil {
		return err
	}

	server, err := service.New(memdb.New(), service.Config{
		ListenAddress: c.listenAddress,
		Executor:      c.executor,
		Signer:        s,
		Registerer:    registry,
	}, logger)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	apiDone := make(chan error, 1)
	if c.statusAddress == "" {
		apiDone <- nil
	} else {
		handler, err := api.NewHandler(server, registry)
		if err != nil {
			return err
		}
		apiServer, err := api.NewServer(c.statusAddress, handler, logger)
		if err != nil {
			return err
		}
		go func() {
			err := apiServer.Serve(ctx)
			if err != nil {
				logger.Error("status api stopped", "err", err)
			}
			apiDone <- err
		}()
	}

	err = server.Serve(ctx)
	cancel()
	return errors.Join(err, <-apiDone)
}
