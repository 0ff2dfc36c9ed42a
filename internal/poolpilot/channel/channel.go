// Package channel delivers composed alert bodies to phone and email
// destinations.
package channel

import (
	"context"
	"errors"
)

// ErrNoRoute is returned when no configured transport can carry a
// destination.
var ErrNoRoute = errors.New("no channel for destination")

// Channel delivers one message to one destination.  Implementations must
// be safe for concurrent use and must honor ctx cancellation.
type Channel interface {
	// Name identifies the transport in logs and metrics (e.g. "sms", "email").
	Name() string

	Send(ctx context.Context, destination, body string) error
}

// Routable is implemented by channels that can tell up front whether a
// destination is deliverable.
type Routable interface {
	CanRoute(destination string) bool
}

// CanRoute reports whether ch accepts destination.  Channels that do not
// implement Routable are assumed to accept everything.
func CanRoute(ch Channel, destination string) bool {
	if ch == nil {
		return false
	}
	if r, ok := ch.(Routable); ok {
		return r.CanRoute(destination)
	}
	return true
}
