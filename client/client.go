// (c) 2023, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package client

import (
	"context"
	"encoding/hex"
	"fmt"

	"github.com/ava-labs/avalanchego/ids"
	"github.com/ava-labs/avalanchego/utils/rpc"

	"github.com/ava-labs/execvm/api"
)

// Client defines execvm status API operations.
type Client interface {
	// Version returns the service name and version
	Version(ctx context.Context) (string, string, error)

	// Health reports whether the service loop is running
	Health(ctx context.Context) (bool, error)

	// Status returns the committed block, the number of processed messages,
	// and the key results are signed with
	Status(ctx context.Context) (ids.ID, uint64, []byte, error)
}

// New creates a new client object for the API served at [uri].
func New(uri string) Client {
	req := rpc.NewEndpointRequester(uri, api.RPCPath, api.Name)
	return &client{req: req}
}

type client struct {
	req rpc.EndpointRequester
}

func (cli *client) Version(ctx context.Context) (string, string, error) {
	resp := new(api.VersionReply)
	if err := cli.req.SendRequest(ctx, "version", struct{}{}, resp); err != nil {
		return "", "", err
	}
	return resp.Name, resp.Version, nil
}

func (cli *client) Health(ctx context.Context) (bool, error) {
	resp := new(api.HealthReply)
	if err := cli.req.SendRequest(ctx, "health", struct{}{}, resp); err != nil {
		return false, err
	}
	return resp.Healthy, nil
}

func (cli *client) Status(ctx context.Context) (ids.ID, uint64, []byte, error) {
	resp := new(api.StatusReply)
	if err := cli.req.SendRequest(ctx, "getStatus", struct{}{}, resp); err != nil {
		return ids.Empty, 0, nil, err
	}
	publicKey, err := hex.DecodeString(resp.PublicKey)
	if err != nil {
		return ids.Empty, 0, nil, fmt.Errorf("failed to decode public key: %w", err)
	}
	return resp.CommittedBlockID, resp.Processed, publicKey, nil
}
