// (c) 2023, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package serializer

import (
	"context"
	"errors"
	"fmt"

	"github.com/ava-labs/avalanchego/ids"
	log "github.com/inconshreveable/log15"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/ava-labs/execvm/executor"
	"github.com/ava-labs/execvm/signer"
)

// Service is the trusted side of the protocol. It decodes one request,
// dispatches it to the executor, and encodes the response.
type Service struct {
	executor executor.BlockExecutor
	// signer is nil when the service holds no key.
	signer  *signer.Signer
	log     log.Logger
	metrics *serviceMetrics
}

// NewService wraps [exec]. [s] may be nil. [registerer] may be nil to skip
// metrics registration.
func NewService(
	exec executor.BlockExecutor,
	s *signer.Signer,
	logger log.Logger,
	registerer prometheus.Registerer,
) (*Service, error) {
	if logger == nil {
		logger = log.Root()
	}
	metrics, err := newServiceMetrics(registerer)
	if err != nil {
		return nil, err
	}
	return &Service{
		executor: exec,
		signer:   s,
		log:      logger.New("module", "serializer-service"),
		metrics:  metrics,
	}, nil
}

// HandleMessage answers the encoded request [msg]. Undecodable input is
// answered with a SerializationError response so the caller is never left
// waiting. An error is returned only when no response could be encoded.
func (s *Service) HandleMessage(ctx context.Context, msg []byte) ([]byte, error) {
	req, err := DecodeRequest(msg)
	if err != nil {
		s.log.Warn("failed to decode request", "size", len(msg), "err", err)
		s.metrics.requests.WithLabelValues("malformed").Inc()
		return s.encodeError(err)
	}
	s.metrics.requests.WithLabelValues(req.Name()).Inc()

	resp, err := s.dispatch(ctx, req)
	if err != nil {
		s.log.Debug("request failed", "request", req.Name(), "err", err)
		return s.encodeError(err)
	}
	out, err := EncodeResponse(resp)
	if err != nil {
		s.log.Warn("failed to encode response", "request", req.Name(), "err", err)
		return s.ErrorReply(fmt.Errorf("failed to encode %s response: %w", req.Name(), err))
	}
	return out, nil
}

// ErrorReply encodes [err] as an InternalError response. The message is
// truncated so the reply always fits in a frame.
func (s *Service) ErrorReply(err error) ([]byte, error) {
	return s.encodeError(executor.NewError(executor.InternalError, ids.Empty, err.Error()))
}

func (s *Service) dispatch(ctx context.Context, req Request) (Response, error) {
	switch req := req.(type) {
	case *CommittedBlockIDRequest:
		blkID, err := s.executor.CommittedBlockID(ctx)
		if err != nil {
			return nil, err
		}
		return &CommittedBlockIDResponse{BlockID: blkID}, nil
	case *ResetRequest:
		if err := s.executor.Reset(ctx); err != nil {
			return nil, err
		}
		return &ResetResponse{}, nil
	case *ExecuteBlockRequest:
		res, err := s.executor.ExecuteBlock(ctx, req.Block, req.ParentID)
		if err != nil {
			return nil, err
		}
		if err := s.sign(&res); err != nil {
			return nil, err
		}
		return &ExecuteBlockResponse{Result: res}, nil
	case *CommitBlocksRequest:
		res, err := s.executor.CommitBlocks(ctx, req.BlockIDs, req.LedgerInfo)
		if err != nil {
			return nil, err
		}
		return &CommitBlocksResponse{Result: res}, nil
	case *PublicKeyRequest:
		resp := &PublicKeyResponse{}
		if s.signer != nil {
			resp.PublicKey = s.signer.PublicKey()
		}
		return resp, nil
	default:
		return nil, fmt.Errorf("unhandled request %T", req)
	}
}

// sign attaches the service's signature to [res]. Without a key the
// signature stays empty.
func (s *Service) sign(res *executor.StateComputeResult) error {
	if s.signer == nil {
		res.Signature = nil
		return nil
	}
	signBytes, err := res.SignBytes()
	if err != nil {
		return fmt.Errorf("failed to compute result sign bytes: %w", err)
	}
	res.Signature = s.signer.Sign(signBytes)
	return nil
}

func (s *Service) encodeError(err error) ([]byte, error) {
	var execErr *executor.Error
	if !errors.As(err, &execErr) {
		execErr = executor.NewError(executor.InternalError, ids.Empty, err.Error())
	}
	s.metrics.errors.WithLabelValues(execErr.Code.String()).Inc()
	return EncodeResponse(&ErrorResponse{Error: *execErr})
}

type serviceMetrics struct {
	requests *prometheus.CounterVec
	errors   *prometheus.CounterVec
}

func newServiceMetrics(registerer prometheus.Registerer) (*serviceMetrics, error) {
	m := &serviceMetrics{
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "execvm",
			Name:      "requests_total",
			Help:      "Number of requests received, by request type",
		}, []string{"request"}),
		errors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "execvm",
			Name:      "error_responses_total",
			Help:      "Number of error responses sent, by error code",
		}, []string{"code"}),
	}
	if registerer == nil {
		return m, nil
	}
	for _, c := range []prometheus.Collector{m.requests, m.errors} {
		if err := registerer.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}
