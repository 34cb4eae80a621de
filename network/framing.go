// (c) 2023, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package network

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/ava-labs/avalanchego/utils/units"
	"github.com/ava-labs/avalanchego/utils/wrappers"
)

const (
	headerLen = wrappers.IntLen

	// MaxMessageSize is the largest payload a frame may carry.
	MaxMessageSize = 64 * units.MiB
)

// writeMessage writes [msg] as a single frame: [4 byte big endian length][msg].
func writeMessage(w io.Writer, msg []byte) error {
	if len(msg) > MaxMessageSize {
		return fmt.Errorf("%w: %d > %d", ErrMessageTooLarge, len(msg), MaxMessageSize)
	}
	buf := make([]byte, headerLen+len(msg))
	binary.BigEndian.PutUint32(buf, uint32(len(msg)))
	copy(buf[headerLen:], msg)
	_, err := w.Write(buf)
	return err
}

// readMessage reads exactly one frame from [r].
func readMessage(r io.Reader) ([]byte, error) {
	header := make([]byte, headerLen)
	if _, err := io.ReadFull(r, header); err != nil {
		return nil, err
	}

	msgLen := binary.BigEndian.Uint32(header)
	if msgLen > MaxMessageSize {
		return nil, fmt.Errorf("%w: %d > %d", ErrMessageTooLarge, msgLen, MaxMessageSize)
	}

	msg := make([]byte, msgLen)
	if _, err := io.ReadFull(r, msg); err != nil {
		// A short body is the peer hanging up mid-frame.
		if err == io.EOF {
			err = io.ErrUnexpectedEOF
		}
		return nil, err
	}
	return msg, nil
}
