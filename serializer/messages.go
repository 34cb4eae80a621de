// (c) 2023, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package serializer

import (
	"github.com/ava-labs/avalanchego/ids"

	"github.com/ava-labs/execvm/executor"
)

// Request is one call on the execution capability.
type Request interface {
	// Name identifies the request in logs and metrics.
	Name() string
}

// Response is the answer to exactly one Request.
type Response interface {
	isResponse()
}

type CommittedBlockIDRequest struct{}

type ResetRequest struct{}

type ExecuteBlockRequest struct {
	Block    executor.Block `serialize:"true"`
	ParentID ids.ID         `serialize:"true"`
}

type CommitBlocksRequest struct {
	BlockIDs   []ids.ID            `serialize:"true"`
	LedgerInfo executor.LedgerInfo `serialize:"true"`
}

type PublicKeyRequest struct{}

func (*CommittedBlockIDRequest) Name() string { return "committed_block_id" }
func (*ResetRequest) Name() string            { return "reset" }
func (*ExecuteBlockRequest) Name() string     { return "execute_block" }
func (*CommitBlocksRequest) Name() string     { return "commit_blocks" }
func (*PublicKeyRequest) Name() string        { return "public_key" }

type CommittedBlockIDResponse struct {
	BlockID ids.ID `serialize:"true"`
}

type ResetResponse struct{}

type ExecuteBlockResponse struct {
	Result executor.StateComputeResult `serialize:"true"`
}

type CommitBlocksResponse struct {
	Result executor.CommitResult `serialize:"true"`
}

type PublicKeyResponse struct {
	PublicKey []byte `serialize:"true"`
}

// ErrorResponse carries a capability error, or a serialization error when
// the request could not be decoded.
type ErrorResponse struct {
	Error executor.Error `serialize:"true"`
}

func (*CommittedBlockIDResponse) isResponse() {}
func (*ResetResponse) isResponse()            {}
func (*ExecuteBlockResponse) isResponse()     {}
func (*CommitBlocksResponse) isResponse()     {}
func (*PublicKeyResponse) isResponse()        {}
func (*ErrorResponse) isResponse()            {}
