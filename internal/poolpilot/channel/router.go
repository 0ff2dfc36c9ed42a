package channel

import (
	"context"

	"github.com/poolpilot/alerts/internal/poolpilot/types"
)

// Router picks a transport by destination kind.  Either side may be nil,
// in which case destinations of that kind have no route.
type Router struct {
	Phone Channel
	Email Channel
}

func (r Router) Name() string { return "router" }

func (r Router) pick(destination string) Channel {
	if types.KindOf(destination) == types.ContactEmail {
		return r.Email
	}
	return r.Phone
}

func (r Router) CanRoute(destination string) bool {
	return CanRoute(r.pick(destination), destination)
}

func (r Router) Send(ctx context.Context, destination, body string) error {
	ch := r.pick(destination)
	if ch == nil {
		return ErrNoRoute
	}
	return ch.Send(ctx, destination, body)
}

// ChannelFor returns the transport name that would carry destination, or
// "" when there is none.
func (r Router) ChannelFor(destination string) string {
	if ch := r.pick(destination); ch != nil {
		return ch.Name()
	}
	return ""
}
