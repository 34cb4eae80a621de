// (c) 2023, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package executor

import (
	"bytes"
	"testing"

	"github.com/ava-labs/avalanchego/database"
	"github.com/ava-labs/avalanchego/database/memdb"
	log "github.com/inconshreveable/log15"
	"github.com/stretchr/testify/require"

	"github.com/ava-labs/execvm/signer"
)

func testLogger() log.Logger {
	logger := log.New()
	logger.SetHandler(log.DiscardHandler())
	return logger
}

func newTestExecutor(t *testing.T, db database.Database, config Config) *Executor {
	t.Helper()
	if db == nil {
		db = memdb.New()
	}
	e, err := New(db, config, testLogger())
	require.NoError(t, err)
	return e
}

func testSigner(t *testing.T, b byte) *signer.Signer {
	t.Helper()
	s, err := signer.FromSeed(bytes.Repeat([]byte{b}, 32))
	require.NoError(t, err)
	return s
}

func signedTx(t *testing.T, s *signer.Signer, seq uint64, key, value string) Transaction {
	t.Helper()
	tx := Transaction{
		Sender:         s.PublicKey(),
		SequenceNumber: seq,
		Key:            []byte(key),
		Value:          []byte(value),
	}
	signBytes, err := tx.SignBytes()
	require.NoError(t, err)
	tx.Signature = s.Sign(signBytes)
	return tx
}
