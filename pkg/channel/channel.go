package channel

import (
	"context"

	"flowbridge/pkg/bus"
)

// Replier sends one outbound message back into the conversation an inbound
// message arrived on. Calls for one turn are made sequentially.
type Replier interface {
	Reply(context.Context, bus.OutboundMessage) error
}

// ReplyFunc adapts a plain function to Replier.
type ReplyFunc func(context.Context, bus.OutboundMessage) error

func (f ReplyFunc) Reply(ctx context.Context, msg bus.OutboundMessage) error {
	return f(ctx, msg)
}

// Handler processes one inbound channel message, replying through r. A non-nil
// error means the turn failed in a way the channel should surface to its caller.
type Handler func(ctx context.Context, inbound bus.InboundMessage, r Replier) error

// Adapter bridges one external transport (for example Telegram) into the bridge.
type Adapter interface {
	Name() string
	Run(context.Context, Handler) error
}
