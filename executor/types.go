// (c) 2023, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package executor

import (
	"fmt"

	"github.com/ava-labs/avalanchego/ids"
	"github.com/ava-labs/avalanchego/utils/hashing"
)

// Transaction writes [Value] under [Key] in the account of [Sender].
// [Sender] is the ed25519 public key that produced [Signature].
type Transaction struct {
	Sender         []byte `serialize:"true" json:"sender"`
	SequenceNumber uint64 `serialize:"true" json:"sequenceNumber"`
	Key            []byte `serialize:"true" json:"key"`
	Value          []byte `serialize:"true" json:"value"`
	Signature      []byte `serialize:"true" json:"signature"`
}

type unsignedTransaction struct {
	Sender         []byte `serialize:"true"`
	SequenceNumber uint64 `serialize:"true"`
	Key            []byte `serialize:"true"`
	Value          []byte `serialize:"true"`
}

// SignBytes returns the bytes the sender signs.
func (tx *Transaction) SignBytes() ([]byte, error) {
	return Codec.Marshal(CodecVersion, &unsignedTransaction{
		Sender:         tx.Sender,
		SequenceNumber: tx.SequenceNumber,
		Key:            tx.Key,
		Value:          tx.Value,
	})
}

// Bytes returns the canonical encoding of the signed transaction.
func (tx *Transaction) Bytes() ([]byte, error) {
	return Codec.Marshal(CodecVersion, tx)
}

// ID is the hash of the canonical encoding.
func (tx *Transaction) ID() (ids.ID, error) {
	bytes, err := tx.Bytes()
	if err != nil {
		return ids.Empty, err
	}
	return hashing.ComputeHash256Array(bytes), nil
}

// Block is an ordered list of transactions proposed by consensus.
// Its ID is assigned by the proposer.
type Block struct {
	ID           ids.ID        `serialize:"true" json:"id"`
	Transactions []Transaction `serialize:"true" json:"transactions"`
}

// StatusCode is the outcome of executing one transaction.
type StatusCode uint32

const (
	Executed StatusCode = iota
	OutOfGas
	SequenceNumberTooOld
	SequenceNumberTooNew
	InvalidSignature
	MalformedSignature
)

// Kept reports whether a transaction with this status is included in the
// ledger (and the accumulator). Discarded transactions leave no trace.
func (c StatusCode) Kept() bool {
	return c == Executed || c == OutOfGas
}

func (c StatusCode) String() string {
	switch c {
	case Executed:
		return "Executed"
	case OutOfGas:
		return "OutOfGas"
	case SequenceNumberTooOld:
		return "SequenceNumberTooOld"
	case SequenceNumberTooNew:
		return "SequenceNumberTooNew"
	case InvalidSignature:
		return "InvalidSignature"
	case MalformedSignature:
		return "MalformedSignature"
	default:
		return fmt.Sprintf("StatusCode(%d)", uint32(c))
	}
}

type TransactionStatus struct {
	Code    StatusCode `serialize:"true" json:"code"`
	GasUsed uint64     `serialize:"true" json:"gasUsed"`
}

// StateComputeResult is the outcome of executing a block on top of its parent.
// When the service holds a private key, [Signature] is its signature over
// SignBytes.
type StateComputeResult struct {
	BlockID   ids.ID              `serialize:"true" json:"blockID"`
	ParentID  ids.ID              `serialize:"true" json:"parentID"`
	RootHash  ids.ID              `serialize:"true" json:"rootHash"`
	Version   uint64              `serialize:"true" json:"version"`
	Statuses  []TransactionStatus `serialize:"true" json:"statuses"`
	Signature []byte              `serialize:"true" json:"signature"`
}

// SignBytes is the canonical encoding of the result without its signature.
func (r *StateComputeResult) SignBytes() ([]byte, error) {
	unsigned := *r
	unsigned.Signature = nil
	return Codec.Marshal(CodecVersion, &unsigned)
}

// LedgerInfo identifies the state that consensus agreed to commit.
type LedgerInfo struct {
	BlockID  ids.ID `serialize:"true" json:"blockID"`
	Version  uint64 `serialize:"true" json:"version"`
	RootHash ids.ID `serialize:"true" json:"rootHash"`
}

// Event is emitted for every executed write.
type Event struct {
	Sender         []byte `serialize:"true" json:"sender"`
	SequenceNumber uint64 `serialize:"true" json:"sequenceNumber"`
	Key            []byte `serialize:"true" json:"key"`
}

// CommitResult lists the kept transactions of the committed blocks, in order,
// and the events they emitted.
type CommitResult struct {
	Transactions []Transaction `serialize:"true" json:"transactions"`
	Events       []Event       `serialize:"true" json:"events"`
}
