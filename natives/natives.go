// (c) 2023, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package natives implements the ed25519 native functions available to the
// transaction VM. Every native charges gas before doing any work and reports
// malformed input as a NativeError rather than failing the enclosing VM.
package natives

import (
	"errors"
	"fmt"

	"filippo.io/edwards25519"
	"github.com/cloudflare/circl/sign/ed25519"
)

// DefaultErrorCode is the sub-status attached to every ed25519 native failure.
const DefaultErrorCode uint64 = 0x0ED2_5519

var (
	// ErrNativeFunction is wrapped by every NativeError.
	ErrNativeFunction = errors.New("native function error")

	errPublicKeyLength = errors.New("invalid public key length")
	errSmallOrderPoint = errors.New("public key is of small order")
	errSignatureLength = errors.New("invalid signature length")
)

// NativeError is returned (never raised) when a native function receives input
// it cannot decode. The VM still charges the cost of the call.
type NativeError struct {
	SubStatus uint64
}

func (e *NativeError) Error() string {
	return fmt.Sprintf("%s (sub-status %#x)", ErrNativeFunction, e.SubStatus)
}

func (e *NativeError) Unwrap() error { return ErrNativeFunction }

// Result is the outcome of a native call.
// If [Err] is non-nil, [Value] is meaningless.
type Result struct {
	Cost  uint64
	Value bool
	Err   *NativeError
}

func errResult(cost uint64) Result {
	return Result{
		Cost: cost,
		Err:  &NativeError{SubStatus: DefaultErrorCode},
	}
}

// ValidatePublicKey returns true iff [key] is the encoding of a point on the
// curve that is not in the small subgroup.
func ValidatePublicKey(costs CostTable, key []byte) Result {
	cost := costs.NativeGas(ED25519ValidateKey, len(key))
	_, err := parsePublicKey(key)
	return Result{
		Cost:  cost,
		Value: err == nil,
	}
}

// VerifySignature verifies [signature] over [msg] under [publicKey].
// A malformed signature or key yields a NativeError; a well formed signature
// that does not verify yields false.
func VerifySignature(costs CostTable, signature, publicKey, msg []byte) Result {
	cost := costs.NativeGas(ED25519Verify, len(msg))

	if err := checkSignature(signature); err != nil {
		return errResult(cost)
	}
	if _, err := parsePublicKey(publicKey); err != nil {
		return errResult(cost)
	}

	return Result{
		Cost:  cost,
		Value: ed25519.Verify(ed25519.PublicKey(publicKey), msg, signature),
	}
}

// parsePublicKey performs the point-on-curve and small subgroup checks.
func parsePublicKey(key []byte) (*edwards25519.Point, error) {
	if len(key) != ed25519.PublicKeySize {
		return nil, errPublicKeyLength
	}
	point, err := new(edwards25519.Point).SetBytes(key)
	if err != nil {
		return nil, err
	}
	if new(edwards25519.Point).MultByCofactor(point).Equal(edwards25519.NewIdentityPoint()) == 1 {
		return nil, errSmallOrderPoint
	}
	return point, nil
}

// checkSignature rejects signatures of the wrong length and signatures whose
// S component is not reduced, which would otherwise be malleable.
func checkSignature(signature []byte) error {
	if len(signature) != ed25519.SignatureSize {
		return errSignatureLength
	}
	_, err := new(edwards25519.Scalar).SetCanonicalBytes(signature[32:])
	return err
}
