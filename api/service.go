// (c) 2023, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package api

import (
	"encoding/hex"
	"net/http"
	"time"

	"github.com/ava-labs/avalanchego/ids"

	"github.com/ava-labs/execvm/service"
)

const (
	Name    = "execvm"
	Version = "v0.1.0"
)

// StatusReporter provides the service snapshot served by the API.
type StatusReporter interface {
	Status() service.Status
}

// Service is the read-only JSON-RPC API of a running execution service.
type Service struct {
	reporter StatusReporter
}

type VersionReply struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

// Version returns the name and version of this service
func (s *Service) Version(_ *http.Request, _ *struct{}, reply *VersionReply) error {
	reply.Name = Name
	reply.Version = Version
	return nil
}

type HealthReply struct {
	Healthy bool   `json:"healthy"`
	Uptime  string `json:"uptime"`
}

// Health reports that the service loop is running.
func (s *Service) Health(_ *http.Request, _ *struct{}, reply *HealthReply) error {
	status := s.reporter.Status()
	reply.Healthy = true
	reply.Uptime = time.Since(status.StartedAt).Round(time.Second).String()
	return nil
}

type StatusReply struct {
	CommittedBlockID ids.ID `json:"committedBlockID"`
	Processed        uint64 `json:"processed"`
	// PublicKey is hex encoded and empty when results are not signed.
	PublicKey string `json:"publicKey"`
}

// GetStatus returns the last committed block and message counters.
func (s *Service) GetStatus(_ *http.Request, _ *struct{}, reply *StatusReply) error {
	status := s.reporter.Status()
	reply.CommittedBlockID = status.CommittedBlockID
	reply.Processed = status.Processed
	reply.PublicKey = hex.EncodeToString(status.PublicKey)
	return nil
}
