// Package render turns normalized messages into channel send operations and
// delivers them in order.
package render

import (
	"context"
	"errors"
	"fmt"

	"flowbridge/pkg/bus"
	"flowbridge/pkg/channel"
	"flowbridge/pkg/message"
)

// ErrChannelSend matches any failure returned by Deliver.
var ErrChannelSend = errors.New("channel send failed")

// SendError reports which operation of a batch could not be sent.
type SendError struct {
	Index int
	Kind  bus.OutboundKind
	Err   error
}

func (e *SendError) Error() string {
	return fmt.Sprintf("send %s #%d: %v", e.Kind, e.Index, e.Err)
}

func (e *SendError) Unwrap() error { return e.Err }

func (e *SendError) Is(target error) bool { return target == ErrChannelSend }

// Render maps each message to exactly one outbound operation, keeping order.
// Text goes out verbatim; images and button sets become untitled cards.
func Render(messages []message.Message) []bus.OutboundMessage {
	ops := make([]bus.OutboundMessage, 0, len(messages))
	for _, msg := range messages {
		switch m := msg.(type) {
		case message.Text:
			ops = append(ops, Text(m.Value))
		case message.Image:
			ops = append(ops, bus.OutboundMessage{
				Kind: bus.OutboundCard,
				Card: &bus.Card{Images: []string{m.URL}},
			})
		case message.ButtonSet:
			ops = append(ops, bus.OutboundMessage{
				Kind: bus.OutboundCard,
				Card: &bus.Card{Buttons: m.Labels()},
			})
		}
	}
	return ops
}

// Text builds a plain text operation.
func Text(content string) bus.OutboundMessage {
	return bus.OutboundMessage{Kind: bus.OutboundText, Content: content}
}

// Deliver sends ops one at a time, waiting for each send to finish before the
// next. It stops at the first failure and reports how many were sent; earlier
// sends are not retracted.
func Deliver(ctx context.Context, r channel.Replier, ops []bus.OutboundMessage) (int, error) {
	for i, op := range ops {
		if err := ctx.Err(); err != nil {
			return i, &SendError{Index: i, Kind: op.Kind, Err: err}
		}
		if err := r.Reply(ctx, op); err != nil {
			return i, &SendError{Index: i, Kind: op.Kind, Err: err}
		}
	}
	return len(ops), nil
}
