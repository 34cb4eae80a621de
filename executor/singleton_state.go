// Copyright (C) 2019-2023, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package executor

import (
	"errors"

	"github.com/ava-labs/avalanchego/database"
)

const (
	IsInitializedKey byte = iota
	CommittedKey
)

var (
	isInitializedKey = []byte{IsInitializedKey}
	committedKey     = []byte{CommittedKey}

	errWrongVersion = errors.New("wrong version")

	_ SingletonState = (*singletonState)(nil)
)

// SingletonState is a thin wrapper around a database to provide
// serialization and de-serialization of the initialization status and of
// the last committed ledger info.
type SingletonState interface {
	IsInitialized() (bool, error)
	SetInitialized() error

	GetCommitted() (LedgerInfo, error)
	SetCommitted(LedgerInfo) error
}

type singletonState struct {
	singletonDB database.Database
}

func NewSingletonState(db database.Database) SingletonState {
	return &singletonState{
		singletonDB: db,
	}
}

func (s *singletonState) IsInitialized() (bool, error) {
	return s.singletonDB.Has(isInitializedKey)
}

func (s *singletonState) SetInitialized() error {
	return s.singletonDB.Put(isInitializedKey, nil)
}

func (s *singletonState) GetCommitted() (LedgerInfo, error) {
	var li LedgerInfo
	bytes, err := s.singletonDB.Get(committedKey)
	if err != nil {
		return li, err
	}
	parsedVersion, err := Codec.Unmarshal(bytes, &li)
	if err != nil {
		return li, err
	}
	if parsedVersion != CodecVersion {
		return li, errWrongVersion
	}
	return li, nil
}

func (s *singletonState) SetCommitted(li LedgerInfo) error {
	bytes, err := Codec.Marshal(CodecVersion, &li)
	if err != nil {
		return err
	}
	return s.singletonDB.Put(committedKey, bytes)
}
