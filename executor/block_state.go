// (c) 2021, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package executor

import (
	"github.com/ava-labs/avalanchego/cache"
	"github.com/ava-labs/avalanchego/database"
	"github.com/ava-labs/avalanchego/database/versiondb"
	"github.com/ava-labs/avalanchego/ids"
)

// layer is one speculative write set stacked on its parent's. A nil parent
// means the layer sits directly on the committed base.
type layer struct {
	db     *versiondb.Database
	parent *layer
}

func newLayer(base database.Database, parent *layer) *layer {
	under := base
	if parent != nil {
		under = parent.db
	}
	return &layer{
		db:     versiondb.New(under),
		parent: parent,
	}
}

// flush pushes the layer and every ancestor layer down into the committed
// base, child first so that newer writes win.
func (l *layer) flush() error {
	for ; l != nil; l = l.parent {
		if err := l.db.Commit(); err != nil {
			return err
		}
	}
	return nil
}

// executedBlock is a block that has been executed but not committed.
type executedBlock struct {
	block    Block
	parentID ids.ID
	result   StateComputeResult
	layer    *layer

	kept   []Transaction
	events []Event
}

// blockState tracks the speculative block tree and remembers the outcome of
// recent commits so that a resent request is answered identically.
type blockState struct {
	executed map[ids.ID]*executedBlock

	// committedResults: block ID --> StateComputeResult
	committedResults cache.Cacher
	// committedLedgers: ledger block ID --> CommitResult
	committedLedgers cache.Cacher
}

func newBlockState(cacheSize int) *blockState {
	return &blockState{
		executed:         make(map[ids.ID]*executedBlock),
		committedResults: &cache.LRU{Size: cacheSize},
		committedLedgers: &cache.LRU{Size: cacheSize},
	}
}

func (s *blockState) getExecuted(blkID ids.ID) (*executedBlock, bool) {
	blk, ok := s.executed[blkID]
	return blk, ok
}

func (s *blockState) putExecuted(blk *executedBlock) {
	s.executed[blk.block.ID] = blk
}

func (s *blockState) getCommittedResult(blkID ids.ID) (StateComputeResult, bool) {
	res, ok := s.committedResults.Get(blkID)
	if !ok {
		return StateComputeResult{}, false
	}
	return res.(StateComputeResult), true
}

func (s *blockState) getCommitResult(blkID ids.ID) (CommitResult, bool) {
	res, ok := s.committedLedgers.Get(blkID)
	if !ok {
		return CommitResult{}, false
	}
	return res.(CommitResult), true
}

// markCommitted records [blocks] as committed and drops every executed block
// that does not descend from the last of them.
func (s *blockState) markCommitted(blocks []*executedBlock, res CommitResult) {
	for _, blk := range blocks {
		s.committedResults.Put(blk.block.ID, blk.result)
		delete(s.executed, blk.block.ID)
	}
	last := blocks[len(blocks)-1].block.ID
	s.committedLedgers.Put(last, res)
	s.prune(last)
}

func (s *blockState) prune(root ids.ID) {
	keep := make(map[ids.ID]bool, len(s.executed))
	var descends func(blkID ids.ID) bool
	descends = func(blkID ids.ID) bool {
		if blkID == root {
			return true
		}
		if k, ok := keep[blkID]; ok {
			return k
		}
		blk, ok := s.executed[blkID]
		if !ok {
			return false
		}
		keep[blkID] = false
		k := descends(blk.parentID)
		keep[blkID] = k
		return k
	}
	for blkID := range s.executed {
		if !descends(blkID) {
			delete(s.executed, blkID)
		}
	}
}

// clear drops every executed block. Committed caches are kept; they describe
// durable state.
func (s *blockState) clear() {
	s.executed = make(map[ids.ID]*executedBlock)
}
