// (c) 2023, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package signer holds the consensus private key used to sign execution
// results. The key never leaves a Signer: it is not serializable and every
// printing verb renders only the public key.
package signer

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"

	"github.com/cloudflare/circl/sign/ed25519"
)

var errSeedLength = fmt.Errorf("private key seed must be %d bytes", ed25519.SeedSize)

// Signer signs messages with an ed25519 private key.
type Signer struct {
	privateKey ed25519.PrivateKey
	publicKey  ed25519.PublicKey
}

// Generate returns a signer with a freshly generated key.
func Generate() (*Signer, error) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("failed to generate key: %w", err)
	}
	return &Signer{privateKey: priv, publicKey: pub}, nil
}

// FromSeed derives the signer from a 32 byte seed.
func FromSeed(seed []byte) (*Signer, error) {
	if len(seed) != ed25519.SeedSize {
		return nil, errSeedLength
	}
	priv := ed25519.NewKeyFromSeed(seed)
	pub, ok := priv.Public().(ed25519.PublicKey)
	if !ok {
		return nil, errors.New("unexpected public key type")
	}
	return &Signer{privateKey: priv, publicKey: pub}, nil
}

// PublicKey returns a copy of the public key.
func (s *Signer) PublicKey() []byte {
	return append([]byte(nil), s.publicKey...)
}

// Sign returns the signature of [msg].
func (s *Signer) Sign(msg []byte) []byte {
	return ed25519.Sign(s.privateKey, msg)
}

func (s *Signer) seed() []byte {
	return s.privateKey.Seed()
}

func (s *Signer) String() string {
	return fmt.Sprintf("Signer{PublicKey: %s}", hex.EncodeToString(s.publicKey))
}

func (s *Signer) GoString() string { return s.String() }

// Format renders the redacted form for every verb so that %x, %v and %#v
// cannot reach the private key.
func (s *Signer) Format(f fmt.State, _ rune) {
	_, _ = f.Write([]byte(s.String()))
}

// Verify reports whether [sig] is a valid signature of [msg] by [publicKey].
func Verify(publicKey, msg, sig []byte) bool {
	if len(publicKey) != ed25519.PublicKeySize {
		return false
	}
	return ed25519.Verify(ed25519.PublicKey(publicKey), msg, sig)
}
