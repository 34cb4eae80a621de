// (c) 2023, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package serializer

import (
	"bytes"
	"testing"

	"github.com/ava-labs/avalanchego/database/memdb"
	"github.com/ava-labs/avalanchego/ids"
	log "github.com/inconshreveable/log15"
	"github.com/stretchr/testify/require"

	"github.com/ava-labs/execvm/executor"
	"github.com/ava-labs/execvm/signer"
)

var testSeed = bytes.Repeat([]byte{0x42}, 32)

func testLogger() log.Logger {
	logger := log.New()
	logger.SetHandler(log.DiscardHandler())
	return logger
}

func newTestExecutor(t *testing.T) *executor.Executor {
	t.Helper()
	e, err := executor.New(memdb.New(), executor.DefaultConfig, testLogger())
	require.NoError(t, err)
	return e
}

func newTestService(t *testing.T, s *signer.Signer) *Service {
	t.Helper()
	service, err := NewService(newTestExecutor(t), s, testLogger(), nil)
	require.NoError(t, err)
	return service
}

func testBlock(t *testing.T, id byte, seq uint64) executor.Block {
	t.Helper()
	s, err := signer.FromSeed(bytes.Repeat([]byte{0x01}, 32))
	require.NoError(t, err)

	tx := executor.Transaction{
		Sender:         s.PublicKey(),
		SequenceNumber: seq,
		Key:            []byte("key"),
		Value:          []byte{id},
	}
	signBytes, err := tx.SignBytes()
	require.NoError(t, err)
	tx.Signature = s.Sign(signBytes)

	return executor.Block{
		ID:           ids.ID{id},
		Transactions: []executor.Transaction{tx},
	}
}

func ledgerInfoOf(res executor.StateComputeResult) executor.LedgerInfo {
	return executor.LedgerInfo{
		BlockID:  res.BlockID,
		Version:  res.Version,
		RootHash: res.RootHash,
	}
}
