// (c) 2023, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package executor

import (
	"github.com/ava-labs/avalanchego/codec"
	"github.com/ava-labs/avalanchego/codec/linearcodec"
)

// CodecVersion prefixes every encoding produced by Codec.
const CodecVersion uint16 = 0

// Codec serializes transactions, statuses and results. Its output is what the
// accumulator hashes and what execution signatures cover, so it must never
// change for an existing CodecVersion.
var Codec = newCodec()

func newCodec() codec.Manager {
	m := codec.NewDefaultManager()
	if err := m.RegisterCodec(CodecVersion, linearcodec.NewDefault()); err != nil {
		panic(err)
	}
	return m
}
