// Copyright (C) 2019-2023, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package executor

import (
	"encoding/binary"
	"errors"

	"github.com/ava-labs/avalanchego/database"
	"github.com/ava-labs/avalanchego/database/prefixdb"
	"github.com/ava-labs/avalanchego/database/versiondb"
	"github.com/ava-labs/avalanchego/utils/wrappers"
)

var (
	// These are prefixes for db keys.
	// It's important to set different prefixes for each separate database objects.
	singletonStatePrefix = []byte("singleton")
	accountStatePrefix   = []byte("account")
	dataStatePrefix      = []byte("data")

	errSequenceNumberFormat = errors.New("malformed sequence number")

	_ State = &state{}
)

// State is the committed state: the singleton records plus the base layer
// that speculative block layers are stacked on.
// State also exposes a few methods needed for managing database commits and close.
type State interface {
	SingletonState

	// Base is the layer that blocks executed on top of the committed block
	// write into.
	Base() database.Database

	Commit() error
	Abort()
	Close() error
}

type state struct {
	SingletonState

	baseDB *versiondb.Database
}

func NewState(db database.Database) State {
	// create a new baseDB
	baseDB := versiondb.New(db)

	// create a prefixed "singletonDB" from baseDB
	singletonDB := prefixdb.New(singletonStatePrefix, baseDB)

	// return state with created sub state components
	return &state{
		SingletonState: NewSingletonState(singletonDB),
		baseDB:         baseDB,
	}
}

func (s *state) Base() database.Database { return s.baseDB }

// Commit commits pending operations to the underlying database
func (s *state) Commit() error {
	return s.baseDB.Commit()
}

// Abort drops pending operations
func (s *state) Abort() {
	s.baseDB.Abort()
}

// Close closes the underlying base database
func (s *state) Close() error {
	return s.baseDB.Close()
}

// accountState reads and writes accounts in one layer of state.
type accountState struct {
	accountDB database.Database
	dataDB    database.Database
}

func newAccountState(layer database.Database) *accountState {
	return &accountState{
		accountDB: prefixdb.New(accountStatePrefix, layer),
		dataDB:    prefixdb.New(dataStatePrefix, layer),
	}
}

// SequenceNumber returns the next sequence number [sender] must use.
func (a *accountState) SequenceNumber(sender []byte) (uint64, error) {
	bytes, err := a.accountDB.Get(sender)
	if err == database.ErrNotFound {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	if len(bytes) != wrappers.LongLen {
		return 0, errSequenceNumberFormat
	}
	return binary.BigEndian.Uint64(bytes), nil
}

func (a *accountState) SetSequenceNumber(sender []byte, seq uint64) error {
	bytes := make([]byte, wrappers.LongLen)
	binary.BigEndian.PutUint64(bytes, seq)
	return a.accountDB.Put(sender, bytes)
}

// Get returns the value [sender] stored under [key].
func (a *accountState) Get(sender, key []byte) ([]byte, error) {
	return a.dataDB.Get(dataKey(sender, key))
}

func (a *accountState) Put(sender, key, value []byte) error {
	return a.dataDB.Put(dataKey(sender, key), value)
}

// dataKey is unambiguous because senders have a fixed length by the time
// anything is written for them.
func dataKey(sender, key []byte) []byte {
	k := make([]byte, 0, len(sender)+len(key))
	k = append(k, sender...)
	return append(k, key...)
}
