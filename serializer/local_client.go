// (c) 2023, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package serializer

import "context"

var _ Requester = (*LocalClient)(nil)

// LocalClient hands requests straight to an in-process Service. Every call
// still goes through the codec.
type LocalClient struct {
	service *Service
}

func NewLocalClient(service *Service) *LocalClient {
	return &LocalClient{service: service}
}

func (c *LocalClient) Request(ctx context.Context, msg []byte) ([]byte, error) {
	return c.service.HandleMessage(ctx, msg)
}
