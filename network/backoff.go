// (c) 2023, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package network

import (
	"context"
	"time"
)

const (
	DefaultInitialBackoff = 5 * time.Millisecond
	DefaultMaxBackoff     = 500 * time.Millisecond
)

// Backoff is a capped exponential delay between retries.
type Backoff struct {
	Initial time.Duration
	Max     time.Duration

	next time.Duration
}

// NewBackoff returns a backoff using the default bounds.
func NewBackoff() *Backoff {
	return &Backoff{
		Initial: DefaultInitialBackoff,
		Max:     DefaultMaxBackoff,
	}
}

// Next returns the delay before the next retry and doubles the following one.
// A zero Initial or Max falls back to the defaults.
func (b *Backoff) Next() time.Duration {
	if b.Initial <= 0 {
		b.Initial = DefaultInitialBackoff
	}
	if b.Max <= 0 {
		b.Max = DefaultMaxBackoff
	}
	if b.next == 0 {
		b.next = b.Initial
	}
	delay := b.next
	b.next *= 2
	if b.next > b.Max {
		b.next = b.Max
	}
	if delay > b.Max {
		delay = b.Max
	}
	return delay
}

// Reset restarts the sequence at Initial.
func (b *Backoff) Reset() {
	b.next = 0
}

// Wait sleeps for Next() or until [ctx] is done.
func (b *Backoff) Wait(ctx context.Context) error {
	timer := time.NewTimer(b.Next())
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
