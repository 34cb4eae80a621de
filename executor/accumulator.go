// (c) 2023, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package executor

import (
	"github.com/ava-labs/avalanchego/ids"
	"golang.org/x/crypto/sha3"
)

// accumulator folds kept transactions into a running root hash:
//
//	root' = SHA3-256(root || SHA3-256(tx || status))
type accumulator struct {
	root    ids.ID
	version uint64
}

func newAccumulator(root ids.ID, version uint64) *accumulator {
	return &accumulator{
		root:    root,
		version: version,
	}
}

func (a *accumulator) append(tx *Transaction, status TransactionStatus) error {
	txBytes, err := tx.Bytes()
	if err != nil {
		return err
	}
	statusBytes, err := Codec.Marshal(CodecVersion, &status)
	if err != nil {
		return err
	}

	leafHasher := sha3.New256()
	leafHasher.Write(txBytes)
	leafHasher.Write(statusBytes)
	leaf := leafHasher.Sum(nil)

	rootHasher := sha3.New256()
	rootHasher.Write(a.root[:])
	rootHasher.Write(leaf)
	copy(a.root[:], rootHasher.Sum(nil))
	a.version++
	return nil
}
