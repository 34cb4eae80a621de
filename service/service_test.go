// (c) 2023, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package service

import (
	"context"
	"errors"
	"fmt"
	"testing"

	log "github.com/inconshreveable/log15"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"github.com/ava-labs/execvm/network"
)

func testLogger() log.Logger {
	logger := log.New()
	logger.SetHandler(log.DiscardHandler())
	return logger
}

type readResult struct {
	msg []byte
	err error
}

// fakeTransport replays [reads] and reports ErrServerClosed afterwards.
type fakeTransport struct {
	reads    []readResult
	writeErr error
	written  [][]byte
	drops    int
}

func (f *fakeTransport) Read() ([]byte, error) {
	if len(f.reads) == 0 {
		return nil, network.ErrServerClosed
	}
	r := f.reads[0]
	f.reads = f.reads[1:]
	return r.msg, r.err
}

func (f *fakeTransport) Write(msg []byte) error {
	if f.writeErr != nil {
		return f.writeErr
	}
	f.written = append(f.written, msg)
	return nil
}

func (f *fakeTransport) DropConn() {
	f.drops++
}

// echoHandler answers with the request, panics on "panic" and fails on
// "fail".
type echoHandler struct{}

func (echoHandler) HandleMessage(_ context.Context, msg []byte) ([]byte, error) {
	switch string(msg) {
	case "panic":
		panic("boom")
	case "fail":
		return nil, errors.New("failed")
	default:
		return msg, nil
	}
}

// replyingHandler is an echoHandler that encodes failures as "error: <err>",
// or fails to when [replyErr] is set.
type replyingHandler struct {
	echoHandler
	replyErr error
}

func (h replyingHandler) ErrorReply(err error) ([]byte, error) {
	if h.replyErr != nil {
		return nil, h.replyErr
	}
	return []byte("error: " + err.Error()), nil
}

func newTestLoop(t *testing.T, transport Transport, registerer prometheus.Registerer) *Loop {
	t.Helper()
	loop, err := NewLoop(transport, echoHandler{}, testLogger(), registerer)
	require.NoError(t, err)
	return loop
}

func TestProcessOneMessage(t *testing.T) {
	require := require.New(t)

	transport := &fakeTransport{reads: []readResult{{msg: []byte("hello")}}}
	loop := newTestLoop(t, transport, nil)

	require.NoError(loop.ProcessOneMessage(context.Background()))
	require.Equal([][]byte{[]byte("hello")}, transport.written)
}

func TestProcessOneMessageContainsPanics(t *testing.T) {
	require := require.New(t)

	transport := &fakeTransport{reads: []readResult{{msg: []byte("panic")}}}
	loop := newTestLoop(t, transport, nil)

	err := loop.ProcessOneMessage(context.Background())
	require.ErrorIs(err, errHandlerPanic)
	require.ErrorIs(err, errNoErrorReply)
	require.Empty(transport.written)
	// the client must not be left waiting for a reply
	require.Equal(1, transport.drops)
}

func TestProcessOneMessageRepliesToFailures(t *testing.T) {
	require := require.New(t)

	transport := &fakeTransport{reads: []readResult{{msg: []byte("panic")}, {msg: []byte("fail")}}}
	loop, err := NewLoop(transport, replyingHandler{}, testLogger(), nil)
	require.NoError(err)

	err = loop.ProcessOneMessage(context.Background())
	require.ErrorIs(err, errHandlerPanic)
	err = loop.ProcessOneMessage(context.Background())
	require.ErrorContains(err, "failed")

	require.Len(transport.written, 2)
	require.Contains(string(transport.written[0]), "error: ")
	require.Contains(string(transport.written[0]), "boom")
	require.Contains(string(transport.written[1]), "failed")
	require.Zero(transport.drops)
	require.Equal(2.0, testutil.ToFloat64(loop.metrics.failures.WithLabelValues(stageHandle)))
	require.Zero(testutil.ToFloat64(loop.metrics.processed))
}

func TestProcessOneMessageDropsUnrepliedFailures(t *testing.T) {
	tests := []struct {
		name      string
		handler   Handler
		writeErr  error
		writeFail float64
	}{
		{
			name:    "no error reply",
			handler: echoHandler{},
		},
		{
			name:    "error reply fails",
			handler: replyingHandler{replyErr: errors.New("too large")},
		},
		{
			name:      "error reply write fails",
			handler:   replyingHandler{},
			writeErr:  fmt.Errorf("%w: broken pipe", network.ErrRemoteStreamClosed),
			writeFail: 1,
		},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			require := require.New(t)

			transport := &fakeTransport{
				reads:    []readResult{{msg: []byte("fail")}, {msg: []byte("next")}},
				writeErr: test.writeErr,
			}
			loop, err := NewLoop(transport, test.handler, testLogger(), nil)
			require.NoError(err)

			err = loop.ProcessOneMessage(context.Background())
			require.ErrorContains(err, "failed to handle request")
			require.Equal(1, transport.drops)
			require.Empty(transport.written)
			require.Equal(test.writeFail, testutil.ToFloat64(loop.metrics.failures.WithLabelValues(stageWrite)))
		})
	}
}

func TestServeSurvivesFailures(t *testing.T) {
	require := require.New(t)

	registry := prometheus.NewRegistry()
	transport := &fakeTransport{reads: []readResult{
		{msg: []byte("one")},
		{err: fmt.Errorf("%w: EOF", network.ErrRemoteStreamClosed)},
		{msg: []byte("panic")},
		{err: network.ErrMessageTooLarge},
		{msg: []byte("fail")},
		{msg: []byte("two")},
	}}
	loop := newTestLoop(t, transport, registry)

	require.NoError(loop.Serve(context.Background()))
	require.Equal([][]byte{[]byte("one"), []byte("two")}, transport.written)

	require.Equal(2.0, testutil.ToFloat64(loop.metrics.processed))
	// Two failed reads plus the final one reporting the closed transport.
	require.Equal(3.0, testutil.ToFloat64(loop.metrics.failures.WithLabelValues(stageRead)))
	require.Equal(2.0, testutil.ToFloat64(loop.metrics.failures.WithLabelValues(stageHandle)))
	require.Equal(2, transport.drops)
}

func TestServeSurvivesWriteFailures(t *testing.T) {
	require := require.New(t)

	transport := &fakeTransport{
		reads:    []readResult{{msg: []byte("one")}, {msg: []byte("two")}},
		writeErr: fmt.Errorf("%w: broken pipe", network.ErrRemoteStreamClosed),
	}
	loop := newTestLoop(t, transport, nil)

	require.NoError(loop.Serve(context.Background()))
	require.Empty(transport.reads)
	require.Equal(2.0, testutil.ToFloat64(loop.metrics.failures.WithLabelValues(stageWrite)))
}

func TestServeStopsOnCancel(t *testing.T) {
	require := require.New(t)

	transport := &fakeTransport{reads: []readResult{{msg: []byte("one")}}}
	loop := newTestLoop(t, transport, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.ErrorIs(loop.Serve(ctx), context.Canceled)
	require.Empty(transport.written)
}

func TestDuplicateMetricsRegistration(t *testing.T) {
	registry := prometheus.NewRegistry()
	newTestLoop(t, &fakeTransport{}, registry)

	_, err := NewLoop(&fakeTransport{}, echoHandler{}, testLogger(), registry)
	require.Error(t, err)
}
