// (c) 2023, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package service

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/binary"
	"encoding/hex"
	"io"
	"net"
	"testing"
	"time"

	"github.com/ava-labs/avalanchego/database/memdb"
	"github.com/ava-labs/avalanchego/ids"
	log "github.com/inconshreveable/log15"
	"github.com/stretchr/testify/require"

	"github.com/ava-labs/execvm/executor"
	"github.com/ava-labs/execvm/network"
	"github.com/ava-labs/execvm/serializer"
	"github.com/ava-labs/execvm/signer"
)

func startServer(t *testing.T, config Config, logger log.Logger) (*Server, func()) {
	t.Helper()
	if config.ListenAddress == "" {
		config.ListenAddress = "127.0.0.1:0"
	}
	if config.Executor.Costs == nil {
		config.Executor = executor.DefaultConfig
	}
	server, err := New(memdb.New(), config, logger)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- server.Serve(ctx) }()

	return server, func() {
		cancel()
		require.NoError(t, <-done)
	}
}

func newRemote(t *testing.T, addr net.Addr) (*serializer.Client, func()) {
	t.Helper()
	conn := network.NewClient(addr.String(), time.Second, testLogger())
	remote, err := serializer.NewRemoteClient(conn, serializer.DefaultRemoteConfig, testLogger(), nil)
	require.NoError(t, err)
	return serializer.NewClient(remote), func() { _ = conn.Close() }
}

func signedBlock(t *testing.T, id byte) executor.Block {
	t.Helper()
	s, err := signer.FromSeed(bytes.Repeat([]byte{0x01}, 32))
	require.NoError(t, err)
	tx := executor.Transaction{
		Sender: s.PublicKey(),
		Key:    []byte("key"),
		Value:  []byte("value"),
	}
	signBytes, err := tx.SignBytes()
	require.NoError(t, err)
	tx.Signature = s.Sign(signBytes)
	return executor.Block{ID: ids.ID{id}, Transactions: []executor.Transaction{tx}}
}

func TestServerEndToEnd(t *testing.T) {
	require := require.New(t)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	seed := bytes.Repeat([]byte{0x55}, 32)
	s, err := signer.FromSeed(seed)
	require.NoError(err)

	var logs bytes.Buffer
	logger := log.New()
	logger.SetHandler(log.StreamHandler(&logs, log.LogfmtFormat()))

	server, stop := startServer(t, Config{Signer: s}, logger)
	client, closeClient := newRemote(t, server.Addr())
	defer closeClient()

	block := signedBlock(t, 1)
	res, err := client.ExecuteBlock(ctx, block, executor.GenesisBlockID)
	require.NoError(err)
	signBytes, err := res.SignBytes()
	require.NoError(err)
	require.True(signer.Verify(s.PublicKey(), signBytes, res.Signature))

	_, err = client.CommitBlocks(ctx, []ids.ID{block.ID}, executor.LedgerInfo{
		BlockID:  res.BlockID,
		Version:  res.Version,
		RootHash: res.RootHash,
	})
	require.NoError(err)

	_, err = client.ExecuteBlock(ctx, signedBlock(t, 2), ids.ID{0xaa})
	require.ErrorIs(err, executor.ErrBlockNotFound)

	status := server.Status()
	require.Equal(block.ID, status.CommittedBlockID)
	require.Equal(uint64(3), status.Processed)
	require.Equal(s.PublicKey(), status.PublicKey)

	stop()
	for _, encoded := range []string{
		string(seed),
		hex.EncodeToString(seed),
		base64.StdEncoding.EncodeToString(seed),
	} {
		require.NotContains(logs.String(), encoded)
	}
}

func exchangeFrame(t *testing.T, conn net.Conn, msg []byte) serializer.Response {
	t.Helper()
	require := require.New(t)

	frame := make([]byte, 4+len(msg))
	binary.BigEndian.PutUint32(frame, uint32(len(msg)))
	copy(frame[4:], msg)
	_, err := conn.Write(frame)
	require.NoError(err)

	var header [4]byte
	_, err = io.ReadFull(conn, header[:])
	require.NoError(err)
	raw := make([]byte, binary.BigEndian.Uint32(header[:]))
	_, err = io.ReadFull(conn, raw)
	require.NoError(err)

	resp, err := serializer.DecodeResponse(raw)
	require.NoError(err)
	return resp
}

func TestServerAnswersGarbage(t *testing.T) {
	require := require.New(t)

	server, stop := startServer(t, Config{}, testLogger())
	defer stop()

	conn, err := net.Dial("tcp", server.Addr().String())
	require.NoError(err)
	defer conn.Close()
	require.NoError(conn.SetDeadline(time.Now().Add(10 * time.Second)))

	for _, garbage := range [][]byte{{1, 2, 3}, {}, {0, 0, 0xff, 0xff, 0xff, 0xff}} {
		resp := exchangeFrame(t, conn, garbage)
		errResp, ok := resp.(*serializer.ErrorResponse)
		require.True(ok)
		require.Equal(executor.SerializationError, errResp.Error.Code)
	}

	// A well formed request on the same stream is still served.
	msg, err := serializer.EncodeRequest(&serializer.CommittedBlockIDRequest{})
	require.NoError(err)
	resp := exchangeFrame(t, conn, msg)
	committed, ok := resp.(*serializer.CommittedBlockIDResponse)
	require.True(ok)
	require.Equal(executor.GenesisBlockID, committed.BlockID)
}

func TestServerSurvivesClientRestart(t *testing.T) {
	require := require.New(t)
	ctx := context.Background()

	server, stop := startServer(t, Config{}, testLogger())
	defer stop()

	for i := 0; i < 3; i++ {
		client, closeClient := newRemote(t, server.Addr())
		committed, err := client.CommittedBlockID(ctx)
		require.NoError(err)
		require.Equal(executor.GenesisBlockID, committed)
		closeClient()
	}
}

func TestServerBindFailure(t *testing.T) {
	require := require.New(t)

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(err)
	defer listener.Close()

	_, err = New(memdb.New(), Config{
		ListenAddress: listener.Addr().String(),
		Executor:      executor.DefaultConfig,
	}, testLogger())
	require.Error(err)
}

// faultyExecutor panics on Reset and produces a commit result too large to
// fit in a frame.
type faultyExecutor struct{}

func (faultyExecutor) CommittedBlockID(context.Context) (ids.ID, error) {
	return executor.GenesisBlockID, nil
}

func (faultyExecutor) Reset(context.Context) error {
	panic("reset failed")
}

func (faultyExecutor) ExecuteBlock(context.Context, executor.Block, ids.ID) (executor.StateComputeResult, error) {
	return executor.StateComputeResult{}, executor.ErrInternal
}

func (faultyExecutor) CommitBlocks(context.Context, []ids.ID, executor.LedgerInfo) (executor.CommitResult, error) {
	return executor.CommitResult{
		Events: []executor.Event{{Key: make([]byte, network.MaxMessageSize+1)}},
	}, nil
}

func serveLoop(t *testing.T, handler Handler) *network.Server {
	t.Helper()
	transport, err := network.NewServer("127.0.0.1:0", testLogger())
	require.NoError(t, err)
	loop, err := NewLoop(transport, handler, testLogger(), nil)
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() { done <- loop.Serve(context.Background()) }()
	t.Cleanup(func() {
		_ = transport.Close()
		require.NoError(t, <-done)
	})
	return transport
}

func TestServerRepliesToHandlerFailures(t *testing.T) {
	require := require.New(t)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	handler, err := serializer.NewService(faultyExecutor{}, nil, testLogger(), nil)
	require.NoError(err)
	transport := serveLoop(t, handler)
	client, closeClient := newRemote(t, transport.Addr())
	defer closeClient()

	// a panicking executor is answered with an internal error
	err = client.Reset(ctx)
	require.ErrorIs(err, executor.ErrInternal)
	require.ErrorContains(err, "reset failed")

	// so is a response that cannot be framed
	_, err = client.CommitBlocks(ctx, []ids.ID{{1}}, executor.LedgerInfo{})
	require.ErrorIs(err, executor.ErrInternal)

	// and the stream stays usable
	committed, err := client.CommittedBlockID(ctx)
	require.NoError(err)
	require.Equal(executor.GenesisBlockID, committed)
}

func TestServerDropsUnrepliedFailures(t *testing.T) {
	require := require.New(t)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	transport := serveLoop(t, echoHandler{})
	conn := network.NewClient(transport.Addr().String(), time.Second, testLogger())
	defer conn.Close()

	require.NoError(conn.Write(ctx, []byte("panic")))
	_, err := conn.Read(ctx)
	require.True(network.IsRemoteStreamClosed(err))

	require.NoError(conn.Write(ctx, []byte("hello")))
	msg, err := conn.Read(ctx)
	require.NoError(err)
	require.Equal("hello", string(msg))
}
