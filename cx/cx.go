// Package cx provides the cancellation token and four-valued outcome
// type threaded through every blocking operation in this module. Cx
// wraps a context.Context rather than reinventing cancellation
// plumbing.
package cx

import (
	"context"
	"errors"
)

// Cx is a cancellation token. The zero value is not usable; construct
// one with Background or From.
type Cx struct {
	ctx context.Context
}

// Background returns a Cx with no deadline and no cancellation,
// equivalent to context.Background().
func Background() Cx { return Cx{ctx: context.Background()} }

// From wraps an existing context.Context as a Cx, for callers that
// already have one (e.g. an incoming request context).
func From(ctx context.Context) Cx {
	if ctx == nil {
		ctx = context.Background()
	}
	return Cx{ctx: ctx}
}

// WithCancel returns a derived Cx and a function that trips it.
func WithCancel(parent Cx) (Cx, func()) {
	ctx, cancel := context.WithCancel(parent.ctx)
	return Cx{ctx: ctx}, cancel
}

// Context exposes the underlying context.Context, for driver code that
// needs to pass it to something stdlib-shaped (e.g. net.Dialer).
func (c Cx) Context() context.Context { return c.ctx }

// Cancelled reports whether the token has been tripped.
func (c Cx) Cancelled() bool {
	select {
	case <-c.ctx.Done():
		return true
	default:
		return false
	}
}

// Err returns the cancellation reason, or nil if the token is still
// live.
func (c Cx) Err() error { return c.ctx.Err() }

// Done returns the channel closed when the token trips, for select
// statements at I/O suspension points, where cancellation is
// observed.
func (c Cx) Done() <-chan struct{} { return c.ctx.Done() }

// ErrCancelled is the sentinel reason reported when a caller hasn't
// supplied a more specific one.
var ErrCancelled = errors.New("cx: operation cancelled")
