// (c) 2023, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package signer

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
)

const keyFilePerm = 0o600

var (
	errKeyFileExists     = errors.New("key file already exists")
	errPublicKeyMismatch = errors.New("public key does not match private key")
)

// keyFile is the on-disk representation of a signer.
type keyFile struct {
	PublicKey []byte `json:"public_key"`
	Seed      []byte `json:"private_key_seed"`
}

// LoadFile reads a signer from [path].
// Errors never contain key material.
func LoadFile(path string) (*Signer, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read key file: %w", err)
	}

	var key keyFile
	if err := json.Unmarshal(data, &key); err != nil {
		return nil, errors.New("failed to parse key file")
	}

	s, err := FromSeed(key.Seed)
	if err != nil {
		return nil, err
	}
	if len(key.PublicKey) != 0 && !bytes.Equal(key.PublicKey, s.publicKey) {
		return nil, errPublicKeyMismatch
	}
	return s, nil
}

// GenerateFile creates a new signer and writes it to [path] with owner-only
// permissions. An existing file is never overwritten.
func GenerateFile(path string) (*Signer, error) {
	s, err := Generate()
	if err != nil {
		return nil, err
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("failed to create key directory: %w", err)
	}
	data, err := json.MarshalIndent(keyFile{
		PublicKey: s.publicKey,
		Seed:      s.seed(),
	}, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal key: %w", err)
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, keyFilePerm)
	if errors.Is(err, fs.ErrExist) {
		return nil, fmt.Errorf("%w: %s", errKeyFileExists, path)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create key file: %w", err)
	}
	if _, err := f.Write(data); err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("failed to write key file: %w", err)
	}
	if err := f.Close(); err != nil {
		return nil, fmt.Errorf("failed to write key file: %w", err)
	}
	return s, nil
}
