// (c) 2023, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package serializer

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/ava-labs/avalanchego/ids"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"github.com/ava-labs/execvm/executor"
	"github.com/ava-labs/execvm/network"
	"github.com/ava-labs/execvm/signer"
)

func TestLocalClientFlow(t *testing.T) {
	require := require.New(t)
	ctx := context.Background()

	s, err := signer.FromSeed(testSeed)
	require.NoError(err)
	client := NewClient(NewLocalClient(newTestService(t, s)))

	committed, err := client.CommittedBlockID(ctx)
	require.NoError(err)
	require.Equal(executor.GenesisBlockID, committed)

	block := testBlock(t, 1, 0)
	res, err := client.ExecuteBlock(ctx, block, executor.GenesisBlockID)
	require.NoError(err)
	require.Equal(uint64(1), res.Version)
	require.Equal(executor.Executed, res.Statuses[0].Code)

	publicKey, err := client.PublicKey(ctx)
	require.NoError(err)
	require.Equal(s.PublicKey(), publicKey)

	signBytes, err := res.SignBytes()
	require.NoError(err)
	require.True(signer.Verify(publicKey, signBytes, res.Signature))

	commit, err := client.CommitBlocks(ctx, []ids.ID{block.ID}, ledgerInfoOf(res))
	require.NoError(err)
	require.Len(commit.Transactions, 1)

	committed, err = client.CommittedBlockID(ctx)
	require.NoError(err)
	require.Equal(block.ID, committed)

	require.NoError(client.Reset(ctx))
}

func TestServiceWithoutKey(t *testing.T) {
	require := require.New(t)
	ctx := context.Background()
	client := NewClient(NewLocalClient(newTestService(t, nil)))

	res, err := client.ExecuteBlock(ctx, testBlock(t, 1, 0), executor.GenesisBlockID)
	require.NoError(err)
	require.Empty(res.Signature)

	publicKey, err := client.PublicKey(ctx)
	require.NoError(err)
	require.Empty(publicKey)
}

func TestCapabilityErrorsCrossTheWire(t *testing.T) {
	require := require.New(t)
	ctx := context.Background()
	client := NewClient(NewLocalClient(newTestService(t, nil)))

	missing := ids.ID{7}
	_, err := client.ExecuteBlock(ctx, testBlock(t, 1, 0), missing)
	require.ErrorIs(err, executor.ErrBlockNotFound)

	var execErr *executor.Error
	require.True(errors.As(err, &execErr))
	require.Equal(missing, execErr.BlockID)

	res, err := client.ExecuteBlock(ctx, testBlock(t, 1, 0), executor.GenesisBlockID)
	require.NoError(err)
	li := ledgerInfoOf(res)
	li.Version++
	_, err = client.CommitBlocks(ctx, []ids.ID{res.BlockID}, li)
	require.ErrorIs(err, executor.ErrBadNumTxnsToCommit)
}

func TestMalformedRequestIsAnswered(t *testing.T) {
	require := require.New(t)

	registry := prometheus.NewRegistry()
	service, err := NewService(newTestExecutor(t), nil, testLogger(), registry)
	require.NoError(err)

	for _, msg := range [][]byte{nil, {0, 0}, {0, 0, 0, 0, 0, 200}} {
		raw, err := service.HandleMessage(context.Background(), msg)
		require.NoError(err)

		resp, err := DecodeResponse(raw)
		require.NoError(err)
		errResp, ok := resp.(*ErrorResponse)
		require.True(ok)
		require.Equal(executor.SerializationError, errResp.Error.Code)
	}
	require.Equal(3.0, testutil.ToFloat64(service.metrics.requests.WithLabelValues("malformed")))
	require.Equal(3.0, testutil.ToFloat64(service.metrics.errors.WithLabelValues(executor.SerializationError.String())))
}

// oversizedExecutor commits results that cannot be framed.
type oversizedExecutor struct {
	*executor.Executor
}

func (oversizedExecutor) CommitBlocks(context.Context, []ids.ID, executor.LedgerInfo) (executor.CommitResult, error) {
	return executor.CommitResult{
		Events: []executor.Event{{Key: make([]byte, network.MaxMessageSize+1)}},
	}, nil
}

func TestUnencodableResponseIsAnswered(t *testing.T) {
	require := require.New(t)

	service, err := NewService(oversizedExecutor{newTestExecutor(t)}, nil, testLogger(), nil)
	require.NoError(err)
	msg, err := EncodeRequest(&CommitBlocksRequest{BlockIDs: []ids.ID{{1}}})
	require.NoError(err)

	raw, err := service.HandleMessage(context.Background(), msg)
	require.NoError(err)
	require.LessOrEqual(len(raw), network.MaxMessageSize)

	resp, err := DecodeResponse(raw)
	require.NoError(err)
	errResp, ok := resp.(*ErrorResponse)
	require.True(ok)
	require.Equal(executor.InternalError, errResp.Error.Code)
	require.Contains(errResp.Error.Message, "commit")
}

func TestErrorReplyIsBounded(t *testing.T) {
	require := require.New(t)

	service := newTestService(t, nil)
	raw, err := service.ErrorReply(errors.New(string(bytes.Repeat([]byte{'x'}, 1<<20))))
	require.NoError(err)

	resp, err := DecodeResponse(raw)
	require.NoError(err)
	errResp, ok := resp.(*ErrorResponse)
	require.True(ok)
	require.Equal(executor.InternalError, errResp.Error.Code)
	require.Len(errResp.Error.Message, 1024)
}

func TestResponsesNeverContainKey(t *testing.T) {
	require := require.New(t)
	ctx := context.Background()

	s, err := signer.FromSeed(testSeed)
	require.NoError(err)
	service := newTestService(t, s)

	block := testBlock(t, 1, 0)
	reqs := []Request{
		&PublicKeyRequest{},
		&CommittedBlockIDRequest{},
		&ExecuteBlockRequest{Block: block, ParentID: executor.GenesisBlockID},
		&ExecuteBlockRequest{Block: block, ParentID: ids.ID{5}},
		&CommitBlocksRequest{BlockIDs: []ids.ID{{9}}},
	}
	for _, req := range reqs {
		msg, err := EncodeRequest(req)
		require.NoError(err)
		raw, err := service.HandleMessage(ctx, msg)
		require.NoError(err)
		require.False(bytes.Contains(raw, testSeed), "%s response leaks the key", req.Name())
	}
}

type requesterFunc func(ctx context.Context, msg []byte) ([]byte, error)

func (f requesterFunc) Request(ctx context.Context, msg []byte) ([]byte, error) {
	return f(ctx, msg)
}

func TestClientRejectsMismatchedResponse(t *testing.T) {
	require := require.New(t)

	client := NewClient(requesterFunc(func(context.Context, []byte) ([]byte, error) {
		return EncodeResponse(&ResetResponse{})
	}))
	_, err := client.CommittedBlockID(context.Background())
	require.ErrorIs(err, ErrSerialization)

	client = NewClient(requesterFunc(func(context.Context, []byte) ([]byte, error) {
		return []byte{1, 2, 3}, nil
	}))
	err = client.Reset(context.Background())
	require.ErrorIs(err, ErrSerialization)
}

func TestClientWrapsTransportErrors(t *testing.T) {
	require := require.New(t)

	errBroken := errors.New("broken")
	client := NewClient(requesterFunc(func(context.Context, []byte) ([]byte, error) {
		return nil, errBroken
	}))
	_, err := client.CommittedBlockID(context.Background())
	require.ErrorIs(err, executor.ErrInternal)
	require.ErrorIs(err, errBroken)
}
