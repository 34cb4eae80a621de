// (c) 2023, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package executor

import (
	"context"
	"errors"
	"fmt"

	log "github.com/inconshreveable/log15"

	"github.com/ava-labs/avalanchego/database"
	"github.com/ava-labs/avalanchego/ids"
	"github.com/ava-labs/avalanchego/utils/hashing"

	"github.com/ava-labs/execvm/natives"
)

var (
	// GenesisBlockID is the committed block of a fresh database.
	GenesisBlockID = ids.ID(hashing.ComputeHash256Array([]byte("genesis")))

	errNoBlocksToCommit  = errors.New("no blocks to commit")
	errNotAChain         = errors.New("blocks do not extend the committed block")
	errDifferentParent   = errors.New("block was already executed on a different parent")
	errEmptyBlockID      = errors.New("block ID is empty")
	errAlreadyCommitted  = errors.New("block is already committed")
	errLedgerInfoBlockID = errors.New("ledger info does not name the last block")
	errLedgerInfoRoot    = errors.New("ledger info root hash does not match execution")

	_ BlockExecutor = (*Executor)(nil)
)

// BlockExecutor is the privileged execution capability.
type BlockExecutor interface {
	// CommittedBlockID returns the ID of the last committed block.
	CommittedBlockID(ctx context.Context) (ids.ID, error)
	// Reset drops all executed but uncommitted blocks.
	Reset(ctx context.Context) error
	// ExecuteBlock executes [block] on top of [parentID], which is either the
	// committed block or a previously executed block.
	ExecuteBlock(ctx context.Context, block Block, parentID ids.ID) (StateComputeResult, error)
	// CommitBlocks commits a chain of executed blocks extending the committed
	// block. The last block must match [ledgerInfo].
	CommitBlocks(ctx context.Context, blockIDs []ids.ID, ledgerInfo LedgerInfo) (CommitResult, error)
}

type Config struct {
	// MaxGasPerTransaction bounds the gas a single transaction may use.
	MaxGasPerTransaction uint64
	// CommittedCacheSize is the number of committed results remembered for
	// answering resent requests.
	CommittedCacheSize int
	Costs              natives.CostTable
}

var DefaultConfig = Config{
	MaxGasPerTransaction: 1_000_000,
	CommittedCacheSize:   256,
	Costs:                natives.DefaultCostTable,
}

// Executor executes blocks of transactions on an avalanchego database.
// It is not safe for concurrent use; the service loop is its only caller.
type Executor struct {
	state     State
	blocks    *blockState
	vm        *vm
	committed LedgerInfo
	log       log.Logger
}

// New opens the executor on [db], writing the genesis state if [db] is empty.
func New(db database.Database, config Config, logger log.Logger) (*Executor, error) {
	if logger == nil {
		logger = log.Root()
	}
	e := &Executor{
		state:  NewState(db),
		blocks: newBlockState(config.CommittedCacheSize),
		vm:     newVM(config.Costs, config.MaxGasPerTransaction),
		log:    logger.New("module", "executor"),
	}

	initialized, err := e.state.IsInitialized()
	if err != nil {
		return nil, fmt.Errorf("failed to read initialization status: %w", err)
	}
	if !initialized {
		if err := e.initGenesis(); err != nil {
			return nil, err
		}
	}

	e.committed, err = e.state.GetCommitted()
	if err != nil {
		return nil, fmt.Errorf("failed to read committed ledger info: %w", err)
	}
	e.log.Info("executor initialized",
		"committedBlock", e.committed.BlockID,
		"version", e.committed.Version,
	)
	return e, nil
}

func (e *Executor) initGenesis() error {
	genesis := LedgerInfo{
		BlockID:  GenesisBlockID,
		Version:  0,
		RootHash: ids.Empty,
	}
	if err := e.state.SetCommitted(genesis); err != nil {
		return fmt.Errorf("failed to write genesis ledger info: %w", err)
	}
	if err := e.state.SetInitialized(); err != nil {
		return fmt.Errorf("error while setting db to initialized: %w", err)
	}
	if err := e.state.Commit(); err != nil {
		return fmt.Errorf("error while committing db: %w", err)
	}
	return nil
}

func (e *Executor) CommittedBlockID(context.Context) (ids.ID, error) {
	return e.committed.BlockID, nil
}

func (e *Executor) Reset(context.Context) error {
	e.blocks.clear()
	e.state.Abort()

	committed, err := e.state.GetCommitted()
	if err != nil {
		return internalError(ids.Empty, err)
	}
	e.committed = committed
	e.log.Debug("reset executed blocks", "committedBlock", committed.BlockID)
	return nil
}

func (e *Executor) ExecuteBlock(_ context.Context, block Block, parentID ids.ID) (StateComputeResult, error) {
	if block.ID == ids.Empty {
		return StateComputeResult{}, NewError(InternalError, ids.Empty, errEmptyBlockID.Error())
	}

	// Executing the same block twice yields the same result.
	if blk, ok := e.blocks.getExecuted(block.ID); ok {
		if blk.parentID != parentID {
			return StateComputeResult{}, NewError(InternalError, block.ID, errDifferentParent.Error())
		}
		return blk.result, nil
	}
	if res, ok := e.blocks.getCommittedResult(block.ID); ok && res.ParentID == parentID {
		return res, nil
	}
	if block.ID == e.committed.BlockID {
		return StateComputeResult{}, NewError(InternalError, block.ID, errAlreadyCommitted.Error())
	}

	var (
		parentLayer *layer
		acc         *accumulator
	)
	switch parent, ok := e.blocks.getExecuted(parentID); {
	case ok:
		parentLayer = parent.layer
		acc = newAccumulator(parent.result.RootHash, parent.result.Version)
	case parentID == e.committed.BlockID:
		acc = newAccumulator(e.committed.RootHash, e.committed.Version)
	default:
		return StateComputeResult{}, blockNotFound(parentID)
	}

	blk := &executedBlock{
		block:    block,
		parentID: parentID,
		layer:    newLayer(e.state.Base(), parentLayer),
	}
	statuses := make([]TransactionStatus, len(block.Transactions))
	for i := range block.Transactions {
		tx := &block.Transactions[i]
		status, event, err := e.vm.execute(blk.layer.db, tx)
		if err != nil {
			return StateComputeResult{}, internalError(block.ID, err)
		}
		statuses[i] = status
		if !status.Code.Kept() {
			continue
		}
		if err := acc.append(tx, status); err != nil {
			return StateComputeResult{}, internalError(block.ID, err)
		}
		blk.kept = append(blk.kept, *tx)
		if event != nil {
			blk.events = append(blk.events, *event)
		}
	}

	blk.result = StateComputeResult{
		BlockID:  block.ID,
		ParentID: parentID,
		RootHash: acc.root,
		Version:  acc.version,
		Statuses: statuses,
	}
	e.blocks.putExecuted(blk)

	e.log.Debug("executed block",
		"block", block.ID,
		"parent", parentID,
		"txs", len(block.Transactions),
		"version", acc.version,
	)
	return blk.result, nil
}

func (e *Executor) CommitBlocks(_ context.Context, blockIDs []ids.ID, ledgerInfo LedgerInfo) (CommitResult, error) {
	if len(blockIDs) == 0 {
		return CommitResult{}, NewError(InternalError, ids.Empty, errNoBlocksToCommit.Error())
	}

	// A resent commit of the current ledger is answered from the cache.
	if ledgerInfo == e.committed {
		if res, ok := e.blocks.getCommitResult(ledgerInfo.BlockID); ok {
			return res, nil
		}
	}

	blocks := make([]*executedBlock, len(blockIDs))
	expectedParent := e.committed.BlockID
	for i, blkID := range blockIDs {
		blk, ok := e.blocks.getExecuted(blkID)
		if !ok {
			return CommitResult{}, blockNotFound(blkID)
		}
		if blk.parentID != expectedParent {
			return CommitResult{}, NewError(InternalError, blkID, errNotAChain.Error())
		}
		blocks[i] = blk
		expectedParent = blkID
	}

	last := blocks[len(blocks)-1]
	switch {
	case ledgerInfo.BlockID != last.block.ID:
		return CommitResult{}, NewError(MismatchedLedgerInfo, ledgerInfo.BlockID, errLedgerInfoBlockID.Error())
	case ledgerInfo.Version != last.result.Version:
		return CommitResult{}, NewError(BadNumTxnsToCommit, last.block.ID,
			fmt.Sprintf("ledger info version %d, executed version %d", ledgerInfo.Version, last.result.Version))
	case ledgerInfo.RootHash != last.result.RootHash:
		return CommitResult{}, NewError(MismatchedLedgerInfo, last.block.ID, errLedgerInfoRoot.Error())
	}

	if err := e.persist(last, ledgerInfo); err != nil {
		// The speculative layers were partially flushed and can no longer be
		// trusted.
		e.blocks.clear()
		e.state.Abort()
		return CommitResult{}, internalError(last.block.ID, err)
	}
	e.committed = ledgerInfo

	var res CommitResult
	for _, blk := range blocks {
		res.Transactions = append(res.Transactions, blk.kept...)
		res.Events = append(res.Events, blk.events...)
	}
	e.blocks.markCommitted(blocks, res)

	e.log.Info("committed blocks",
		"blocks", len(blocks),
		"committedBlock", ledgerInfo.BlockID,
		"version", ledgerInfo.Version,
	)
	return res, nil
}

func (e *Executor) persist(last *executedBlock, ledgerInfo LedgerInfo) error {
	if err := last.layer.flush(); err != nil {
		return err
	}
	if err := e.state.SetCommitted(ledgerInfo); err != nil {
		return err
	}
	return e.state.Commit()
}

// Get returns the committed value [sender] stored under [key].
func (e *Executor) Get(sender, key []byte) ([]byte, error) {
	return newAccountState(e.state.Base()).Get(sender, key)
}

// Close closes the underlying database.
func (e *Executor) Close() error {
	return e.state.Close()
}
