// (c) 2019-2020, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package main

import (
	"errors"
	"flag"
	"fmt"
	"strings"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/ava-labs/execvm/executor"
)

const (
	envPrefix = "execvm"

	versionKey            = "version"
	configFileKey         = "config-file"
	listenAddressKey      = "listen-address"
	storageKey            = "storage"
	privateKeyFileKey     = "private-key-file"
	generateKeyKey        = "generate-key"
	statusAddressKey      = "status-address"
	logLevelKey           = "log-level"
	logFormatKey          = "log-format"
	maxGasKey             = "max-gas-per-transaction"
	committedCacheSizeKey = "committed-cache-size"

	memoryStorage = "memory"
)

var (
	errUnknownStorage = errors.New("unknown storage")
	errNeedKeyFile    = errors.New("--generate-key requires --private-key-file")
)

type config struct {
	version        bool
	listenAddress  string
	storage        string
	privateKeyFile string
	generateKey    bool
	statusAddress  string
	logLevel       string
	logFormat      string
	executor       executor.Config
}

func buildFlagSet() *flag.FlagSet {
	fs := flag.NewFlagSet("execvm", flag.ContinueOnError)

	fs.Bool(versionKey, false, "If true, prints version and quit")
	fs.String(configFileKey, "", "Config file to read, in any format viper understands")
	fs.String(listenAddressKey, "127.0.0.1:6191", "Address the execution service listens on")
	fs.String(storageKey, memoryStorage, "Storage backend for executed state")
	fs.String(privateKeyFileKey, "", "Key file used to sign execution results; results are unsigned if empty")
	fs.Bool(generateKeyKey, false, "If true, creates the key file when it does not exist")
	fs.String(statusAddressKey, "", "Address of the status API; disabled if empty")
	fs.String(logLevelKey, "info", "Log level: crit, error, warn, info, debug")
	fs.String(logFormatKey, "logfmt", "Log format: logfmt, json, terminal")
	fs.Uint64(maxGasKey, executor.DefaultConfig.MaxGasPerTransaction, "Gas limit of a single transaction")
	fs.Int(committedCacheSizeKey, executor.DefaultConfig.CommittedCacheSize, "Number of committed results kept to answer resent requests")

	return fs
}

// getViper returns the viper environment for the service binary
func getViper(args []string) (*viper.Viper, error) {
	v := viper.New()
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	fs := pflag.NewFlagSet("execvm", pflag.ContinueOnError)
	fs.AddGoFlagSet(buildFlagSet())
	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	if err := v.BindPFlags(fs); err != nil {
		return nil, err
	}

	if configFile := v.GetString(configFileKey); configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", configFile, err)
		}
	}
	return v, nil
}

func getConfig(args []string) (config, error) {
	v, err := getViper(args)
	if err != nil {
		return config{}, err
	}

	c := config{
		version:        v.GetBool(versionKey),
		listenAddress:  v.GetString(listenAddressKey),
		storage:        v.GetString(storageKey),
		privateKeyFile: v.GetString(privateKeyFileKey),
		generateKey:    v.GetBool(generateKeyKey),
		statusAddress:  v.GetString(statusAddressKey),
		logLevel:       v.GetString(logLevelKey),
		logFormat:      v.GetString(logFormatKey),
		executor:       executor.DefaultConfig,
	}
	c.executor.MaxGasPerTransaction = v.GetUint64(maxGasKey)
	c.executor.CommittedCacheSize = v.GetInt(committedCacheSizeKey)

	switch {
	case c.storage != memoryStorage:
		return config{}, fmt.Errorf("%w: %q", errUnknownStorage, c.storage)
	case c.generateKey && c.privateKeyFile == "":
		return config{}, errNeedKeyFile
	}
	return c, nil
}
