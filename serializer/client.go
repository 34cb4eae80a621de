// (c) 2023, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package serializer

import (
	"context"
	"fmt"

	"github.com/ava-labs/avalanchego/ids"

	"github.com/ava-labs/execvm/executor"
)

var _ executor.BlockExecutor = (*Client)(nil)

// Requester delivers one encoded request and returns the encoded response.
type Requester interface {
	Request(ctx context.Context, msg []byte) ([]byte, error)
}

// Client is the untrusted side of the protocol. It exposes the executor
// interface and turns every call into one request/response exchange.
type Client struct {
	requester Requester
}

func NewClient(requester Requester) *Client {
	return &Client{requester: requester}
}

func (c *Client) CommittedBlockID(ctx context.Context) (ids.ID, error) {
	resp := &CommittedBlockIDResponse{}
	if err := c.call(ctx, &CommittedBlockIDRequest{}, resp); err != nil {
		return ids.Empty, err
	}
	return resp.BlockID, nil
}

func (c *Client) Reset(ctx context.Context) error {
	return c.call(ctx, &ResetRequest{}, &ResetResponse{})
}

func (c *Client) ExecuteBlock(ctx context.Context, block executor.Block, parentID ids.ID) (executor.StateComputeResult, error) {
	resp := &ExecuteBlockResponse{}
	err := c.call(ctx, &ExecuteBlockRequest{
		Block:    block,
		ParentID: parentID,
	}, resp)
	return resp.Result, err
}

func (c *Client) CommitBlocks(ctx context.Context, blockIDs []ids.ID, ledgerInfo executor.LedgerInfo) (executor.CommitResult, error) {
	resp := &CommitBlocksResponse{}
	err := c.call(ctx, &CommitBlocksRequest{
		BlockIDs:   blockIDs,
		LedgerInfo: ledgerInfo,
	}, resp)
	return resp.Result, err
}

// PublicKey returns the key execution results are signed with, or nothing
// when the service holds no key.
func (c *Client) PublicKey(ctx context.Context) ([]byte, error) {
	resp := &PublicKeyResponse{}
	if err := c.call(ctx, &PublicKeyRequest{}, resp); err != nil {
		return nil, err
	}
	return resp.PublicKey, nil
}

// call sends [req] and decodes the answer into [reply], which must be a
// pointer to the response type expected for [req].
func (c *Client) call(ctx context.Context, req Request, reply Response) error {
	msg, err := EncodeRequest(req)
	if err != nil {
		return fmt.Errorf("failed to encode %s request: %w", req.Name(), err)
	}
	raw, err := c.requester.Request(ctx, msg)
	if err != nil {
		return fmt.Errorf("%w: %s request: %w", executor.ErrInternal, req.Name(), err)
	}
	resp, err := DecodeResponse(raw)
	if err != nil {
		return err
	}

	switch resp := resp.(type) {
	case *ErrorResponse:
		execErr := resp.Error
		return &execErr
	case *CommittedBlockIDResponse:
		if r, ok := reply.(*CommittedBlockIDResponse); ok {
			*r = *resp
			return nil
		}
	case *ResetResponse:
		if _, ok := reply.(*ResetResponse); ok {
			return nil
		}
	case *ExecuteBlockResponse:
		if r, ok := reply.(*ExecuteBlockResponse); ok {
			*r = *resp
			return nil
		}
	case *CommitBlocksResponse:
		if r, ok := reply.(*CommitBlocksResponse); ok {
			*r = *resp
			return nil
		}
	case *PublicKeyResponse:
		if r, ok := reply.(*PublicKeyResponse); ok {
			*r = *resp
			return nil
		}
	}
	return serializationError(fmt.Errorf("%w %T to %s request", errWrongResponse, resp, req.Name()))
}
