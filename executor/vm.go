// (c) 2023, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package executor

import (
	"fmt"

	"github.com/ava-labs/avalanchego/database"

	"github.com/ava-labs/execvm/natives"
)

const (
	// intrinsicGas is charged for every transaction before anything else.
	intrinsicGas = 100
	// storageGasPerByte is charged for every byte of key and value written.
	storageGasPerByte = 10
)

// vm executes transactions against one layer of state.
type vm struct {
	costs  natives.CostTable
	maxGas uint64
}

func newVM(costs natives.CostTable, maxGas uint64) *vm {
	return &vm{
		costs:  costs,
		maxGas: maxGas,
	}
}

// execute applies [tx] to [layer]. A non-nil error means the state could not
// be read or written, not that the transaction failed.
func (v *vm) execute(layer database.Database, tx *Transaction) (TransactionStatus, *Event, error) {
	gas := uint64(intrinsicGas)

	signBytes, err := tx.SignBytes()
	if err != nil {
		return TransactionStatus{}, nil, fmt.Errorf("failed to compute sign bytes: %w", err)
	}
	res := natives.VerifySignature(v.costs, tx.Signature, tx.Sender, signBytes)
	gas += res.Cost
	switch {
	case res.Err != nil:
		return TransactionStatus{Code: MalformedSignature, GasUsed: v.cap(gas)}, nil, nil
	case !res.Value:
		return TransactionStatus{Code: InvalidSignature, GasUsed: v.cap(gas)}, nil, nil
	}

	accounts := newAccountState(layer)
	seq, err := accounts.SequenceNumber(tx.Sender)
	if err != nil {
		return TransactionStatus{}, nil, err
	}
	switch {
	case tx.SequenceNumber < seq:
		return TransactionStatus{Code: SequenceNumberTooOld, GasUsed: v.cap(gas)}, nil, nil
	case tx.SequenceNumber > seq:
		return TransactionStatus{Code: SequenceNumberTooNew, GasUsed: v.cap(gas)}, nil, nil
	}

	// From here on the transaction is kept and consumes its sequence number.
	if err := accounts.SetSequenceNumber(tx.Sender, seq+1); err != nil {
		return TransactionStatus{}, nil, err
	}

	gas += storageGasPerByte * uint64(len(tx.Key)+len(tx.Value))
	if gas > v.maxGas {
		return TransactionStatus{Code: OutOfGas, GasUsed: v.maxGas}, nil, nil
	}
	if err := accounts.Put(tx.Sender, tx.Key, tx.Value); err != nil {
		return TransactionStatus{}, nil, err
	}

	event := &Event{
		Sender:         tx.Sender,
		SequenceNumber: tx.SequenceNumber,
		Key:            tx.Key,
	}
	return TransactionStatus{Code: Executed, GasUsed: gas}, event, nil
}

func (v *vm) cap(gas uint64) uint64 {
	if gas > v.maxGas {
		return v.maxGas
	}
	return gas
}
