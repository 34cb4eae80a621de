// (c) 2023, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package executor

import (
	"fmt"

	"github.com/ava-labs/avalanchego/ids"
)

// maxMessageLen keeps error messages within the codec's string limit.
const maxMessageLen = 1024

// ErrorCode classifies capability errors.
type ErrorCode uint32

const (
	InternalError ErrorCode = iota
	BlockNotFound
	SerializationError
	BadNumTxnsToCommit
	MismatchedLedgerInfo
)

func (c ErrorCode) String() string {
	switch c {
	case InternalError:
		return "internal error"
	case BlockNotFound:
		return "block not found"
	case SerializationError:
		return "serialization error"
	case BadNumTxnsToCommit:
		return "bad number of transactions to commit"
	case MismatchedLedgerInfo:
		return "mismatched ledger info"
	default:
		return fmt.Sprintf("ErrorCode(%d)", uint32(c))
	}
}

// Error is a capability-level failure. It is a legitimate response value and
// travels over the wire like any result.
type Error struct {
	Code    ErrorCode `serialize:"true" json:"code"`
	BlockID ids.ID    `serialize:"true" json:"blockID"`
	Message string    `serialize:"true" json:"message"`
}

// Sentinels for errors.Is; only the code is compared.
var (
	ErrInternal             = &Error{Code: InternalError}
	ErrBlockNotFound        = &Error{Code: BlockNotFound}
	ErrSerialization        = &Error{Code: SerializationError}
	ErrBadNumTxnsToCommit   = &Error{Code: BadNumTxnsToCommit}
	ErrMismatchedLedgerInfo = &Error{Code: MismatchedLedgerInfo}
)

// NewError returns an error whose message fits on the wire.
func NewError(code ErrorCode, blockID ids.ID, msg string) *Error {
	if len(msg) > maxMessageLen {
		msg = msg[:maxMessageLen]
	}
	return &Error{
		Code:    code,
		BlockID: blockID,
		Message: msg,
	}
}

func (e *Error) Error() string {
	switch {
	case e.BlockID != ids.Empty && e.Message != "":
		return fmt.Sprintf("%s: block %s: %s", e.Code, e.BlockID, e.Message)
	case e.BlockID != ids.Empty:
		return fmt.Sprintf("%s: block %s", e.Code, e.BlockID)
	case e.Message != "":
		return fmt.Sprintf("%s: %s", e.Code, e.Message)
	default:
		return e.Code.String()
	}
}

func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Code == e.Code
}

func blockNotFound(blkID ids.ID) *Error {
	return NewError(BlockNotFound, blkID, "")
}

func internalError(blkID ids.ID, err error) *Error {
	return NewError(InternalError, blkID, err.Error())
}
