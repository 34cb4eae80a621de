// (c) 2023, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package serializer

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/ava-labs/avalanchego/codec"
	"github.com/ava-labs/avalanchego/codec/linearcodec"
	"github.com/ava-labs/avalanchego/ids"
	"github.com/ava-labs/avalanchego/utils/wrappers"

	"github.com/ava-labs/execvm/executor"
	"github.com/ava-labs/execvm/network"
)

// CodecVersion is the only wire version understood.
const CodecVersion uint16 = 0

var (
	// Codec encodes requests and responses. Type IDs follow registration
	// order and must never be reordered.
	Codec codec.Manager

	// ErrSerialization matches every decoding failure.
	ErrSerialization = executor.ErrSerialization

	errNilMessage    = errors.New("nil message")
	errNonCanonical  = errors.New("non-canonical encoding")
	errWrongVersion  = errors.New("unknown codec version")
	errWrongResponse = errors.New("unexpected response type")
)

func init() {
	c := linearcodec.NewDefault()
	Codec = codec.NewManager(network.MaxMessageSize)

	errs := wrappers.Errs{}
	errs.Add(
		c.RegisterType(&CommittedBlockIDRequest{}),
		c.RegisterType(&ResetRequest{}),
		c.RegisterType(&ExecuteBlockRequest{}),
		c.RegisterType(&CommitBlocksRequest{}),
		c.RegisterType(&PublicKeyRequest{}),

		c.RegisterType(&CommittedBlockIDResponse{}),
		c.RegisterType(&ResetResponse{}),
		c.RegisterType(&ExecuteBlockResponse{}),
		c.RegisterType(&CommitBlocksResponse{}),
		c.RegisterType(&PublicKeyResponse{}),
		c.RegisterType(&ErrorResponse{}),

		Codec.RegisterCodec(CodecVersion, c),
	)
	if errs.Errored() {
		panic(errs.Err)
	}
}

func EncodeRequest(req Request) ([]byte, error) {
	if req == nil {
		return nil, errNilMessage
	}
	return Codec.Marshal(CodecVersion, &req)
}

func EncodeResponse(resp Response) ([]byte, error) {
	if resp == nil {
		return nil, errNilMessage
	}
	return Codec.Marshal(CodecVersion, &resp)
}

// DecodeRequest parses [b], which must be the canonical encoding of a
// request. Any other input yields a SerializationError.
func DecodeRequest(b []byte) (Request, error) {
	var req Request
	if err := decode(b, &req); err != nil {
		return nil, err
	}
	if req == nil {
		return nil, serializationError(errNilMessage)
	}
	return req, nil
}

// DecodeResponse parses [b], which must be the canonical encoding of a
// response.
func DecodeResponse(b []byte) (Response, error) {
	var resp Response
	if err := decode(b, &resp); err != nil {
		return nil, err
	}
	if resp == nil {
		return nil, serializationError(errNilMessage)
	}
	return resp, nil
}

// decode unmarshals [b] into [dest] and rejects any input that does not
// re-encode to exactly [b], such as trailing bytes.
func decode(b []byte, dest interface{}) error {
	version, err := Codec.Unmarshal(b, dest)
	if err != nil {
		return serializationError(err)
	}
	if version != CodecVersion {
		return serializationError(fmt.Errorf("%w: %d", errWrongVersion, version))
	}
	canonical, err := Codec.Marshal(CodecVersion, dest)
	if err != nil {
		return serializationError(err)
	}
	if !bytes.Equal(canonical, b) {
		return serializationError(errNonCanonical)
	}
	return nil
}

func serializationError(err error) error {
	return executor.NewError(executor.SerializationError, ids.Empty, err.Error())
}
