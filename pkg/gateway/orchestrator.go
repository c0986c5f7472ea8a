package gateway

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"flowbridge/pkg/bus"
	"flowbridge/pkg/channel"
	"flowbridge/pkg/dialog"
	"flowbridge/pkg/message"
	"flowbridge/pkg/metrics"
	"flowbridge/pkg/render"

	"github.com/google/uuid"
)

// User-facing notices sent when a turn fails.
const (
	NoticeUpstreamUnavailable = "Failed to communicate with the dialogue service."
	NoticeChannelSend         = "There was an issue processing your message."
	NoticeTurnError           = "The bot encountered an error or bug."
	NoticeTurnErrorHint       = "Please check the bot source code for errors."
)

// Trace attached to unhandled turn errors.
const (
	TurnErrorTraceName      = "OnTurnError Trace"
	TurnErrorTraceLabel     = "TurnError"
	TurnErrorTraceValueType = "https://www.botframework.com/schemas/error"
)

// Failure classes recorded on failed turns.
const (
	FailureUpstream  = "upstream_unavailable"
	FailureSend      = "channel_send"
	FailureUnhandled = "unhandled"
)

type TurnState string

const (
	TurnProcessing TurnState = "processing"
	TurnDone       TurnState = "done"
	TurnFailed     TurnState = "failed"
)

// Turn is one inbound-handling cycle. It owns the raw batch and the messages
// derived from it and is discarded when the turn ends.
type Turn struct {
	ID        string
	Channel   string
	ChatID    string
	UserID    string
	State     TurnState
	StartedAt time.Time

	Items    []dialog.RawItem
	Messages []message.Message
	Sent     int
	Err      error
}

// Orchestrator runs turns: runtime call, normalization, rendering and ordered
// delivery, with failures contained to the turn that caused them.
type Orchestrator struct {
	client  dialog.Client
	events  *bus.EventBus
	metrics *metrics.Metrics
	log     *slog.Logger
	lanes   *userLanes
}

// NewOrchestrator builds an orchestrator. events and m may be nil.
func NewOrchestrator(client dialog.Client, events *bus.EventBus, m *metrics.Metrics, log *slog.Logger) *Orchestrator {
	if log == nil {
		log = slog.Default()
	}

	return &Orchestrator{
		client:  client,
		events:  events,
		metrics: m,
		log:     log.With("component", "gateway.orchestrator"),
		lanes:   newUserLanes(),
	}
}

// HandleInbound is a channel.Handler. It returns nil for handled failures
// (the user has been notified) and the turn error for anything unexpected.
func (o *Orchestrator) HandleInbound(ctx context.Context, inbound bus.InboundMessage, r channel.Replier) error {
	if inbound.Kind != bus.KindMessage {
		o.log.Debug("Inbound activity ignored", "channel", inbound.Channel, "kind", inbound.Kind)
		o.publish(ctx, bus.Event{
			Type:    bus.EventTurnIgnored,
			Channel: inbound.Channel,
			ChatID:  inbound.ChatID,
			UserID:  inbound.SenderID,
			Payload: map[string]string{"kind": inbound.Kind},
		})
		return nil
	}

	turn := &Turn{
		ID:        uuid.NewString(),
		Channel:   inbound.Channel,
		ChatID:    inbound.ChatID,
		UserID:    inbound.SenderID,
		State:     TurnProcessing,
		StartedAt: time.Now(),
	}
	log := o.log.With("turn_id", turn.ID, "channel", turn.Channel, "user_id", turn.UserID)
	log.Debug("Turn received", "content_length", len(inbound.Content))
	o.publish(ctx, bus.Event{
		Type:    bus.EventTurnReceived,
		Channel: turn.Channel,
		ChatID:  turn.ChatID,
		UserID:  turn.UserID,
		TurnID:  turn.ID,
		Payload: map[string]string{"content_length": strconv.Itoa(len(inbound.Content))},
	})

	release, err := o.lanes.acquire(ctx, inbound.SenderID)
	if err != nil {
		err = fmt.Errorf("wait for user lane: %w", err)
		o.finish(ctx, log, turn, FailureUnhandled, err)
		return err
	}
	defer release()

	if o.metrics != nil {
		o.metrics.ActiveTurns.Inc()
		defer o.metrics.ActiveTurns.Dec()
	}

	replier := &meteredReplier{next: r, channel: inbound.Channel, chatID: inbound.ChatID, metrics: o.metrics}

	err = o.run(ctx, turn, inbound.Content, replier)
	switch {
	case err == nil:
		o.finish(ctx, log, turn, "", nil)
		return nil

	case errors.Is(err, dialog.ErrUpstreamUnavailable):
		o.recordUpstreamFailure(err)
		o.notify(ctx, log, replier, render.Text(NoticeUpstreamUnavailable))
		o.finish(ctx, log, turn, FailureUpstream, err)
		return nil

	case errors.Is(err, render.ErrChannelSend):
		o.notify(ctx, log, replier, render.Text(NoticeChannelSend))
		o.finish(ctx, log, turn, FailureSend, err)
		return nil

	default:
		o.notify(ctx, log, replier,
			bus.OutboundMessage{
				Kind: bus.OutboundTrace,
				Trace: &bus.Trace{
					Name:      TurnErrorTraceName,
					Label:     TurnErrorTraceLabel,
					ValueType: TurnErrorTraceValueType,
					Value:     err.Error(),
				},
			},
			render.Text(NoticeTurnError),
			render.Text(NoticeTurnErrorHint),
		)
		o.finish(ctx, log, turn, FailureUnhandled, err)
		return err
	}
}

// run performs the turn body. Panics are converted to errors so one broken
// turn never takes the process down.
func (o *Orchestrator) run(ctx context.Context, turn *Turn, utterance string, r channel.Replier) (err error) {
	defer func() {
		if recovered := recover(); recovered != nil {
			err = fmt.Errorf("turn panicked: %v", recovered)
		}
	}()

	items, err := o.client.Interact(ctx, turn.UserID, utterance)
	if err != nil {
		return err
	}
	turn.Items = items

	turn.Messages = message.Normalize(items)
	if o.metrics != nil {
		for _, msg := range turn.Messages {
			o.metrics.MessagesNormalizedTotal.WithLabelValues(string(msg.Kind())).Inc()
		}
	}

	ops := render.Render(turn.Messages)
	if len(ops) == 0 {
		return nil
	}

	turn.Sent, err = render.Deliver(ctx, r, ops)
	return err
}

// notify sends failure notices in order. A failing notice is logged and the
// remaining ones are skipped.
func (o *Orchestrator) notify(ctx context.Context, log *slog.Logger, r channel.Replier, notices ...bus.OutboundMessage) {
	for _, notice := range notices {
		if err := safeReply(ctx, r, notice); err != nil {
			log.Error("Failed to send failure notice", "kind", notice.Kind, "error", err)
			return
		}
	}
}

func safeReply(ctx context.Context, r channel.Replier, msg bus.OutboundMessage) (err error) {
	defer func() {
		if recovered := recover(); recovered != nil {
			err = fmt.Errorf("reply panicked: %v", recovered)
		}
	}()
	return r.Reply(ctx, msg)
}

func (o *Orchestrator) finish(ctx context.Context, log *slog.Logger, turn *Turn, failure string, err error) {
	duration := time.Since(turn.StartedAt)
	event := bus.Event{
		Channel: turn.Channel,
		ChatID:  turn.ChatID,
		UserID:  turn.UserID,
		TurnID:  turn.ID,
		Payload: map[string]string{
			"items":    strconv.Itoa(len(turn.Items)),
			"messages": strconv.Itoa(len(turn.Messages)),
			"sent":     strconv.Itoa(turn.Sent),
		},
	}

	if err == nil {
		turn.State = TurnDone
		event.Type = bus.EventTurnCompleted
		log.Info("Turn completed",
			"duration_ms", duration.Milliseconds(),
			"messages", len(turn.Messages),
			"sent", turn.Sent,
		)
	} else {
		turn.State = TurnFailed
		turn.Err = err
		event.Type = bus.EventTurnFailed
		event.Failure = failure
		event.Error = err.Error()
		level := slog.LevelWarn
		if failure == FailureUnhandled {
			level = slog.LevelError
		}
		log.Log(ctx, level, "Turn failed",
			"duration_ms", duration.Milliseconds(),
			"failure", failure,
			"sent", turn.Sent,
			"error", err,
		)
	}

	if o.metrics != nil {
		o.metrics.TurnsTotal.WithLabelValues(turn.Channel, string(turn.State)).Inc()
		o.metrics.TurnDuration.WithLabelValues(turn.Channel).Observe(duration.Seconds())
	}
	o.publish(ctx, event)
}

func (o *Orchestrator) recordUpstreamFailure(err error) {
	if o.metrics == nil {
		return
	}
	step := "unknown"
	var upstream *dialog.UpstreamError
	if errors.As(err, &upstream) {
		step = upstream.Step
	}
	o.metrics.UpstreamFailuresTotal.WithLabelValues(step).Inc()
}

func (o *Orchestrator) publish(ctx context.Context, event bus.Event) {
	if o.events == nil {
		return
	}
	// Events are published even when the turn context is already done.
	o.events.Publish(context.WithoutCancel(ctx), event)
}

// meteredReplier addresses every send to the inbound conversation and counts it.
type meteredReplier struct {
	next    channel.Replier
	channel string
	chatID  string
	metrics *metrics.Metrics
}

func (r *meteredReplier) Reply(ctx context.Context, msg bus.OutboundMessage) error {
	if msg.Channel == "" {
		msg.Channel = r.channel
	}
	if msg.ChatID == "" {
		msg.ChatID = r.chatID
	}

	err := r.next.Reply(ctx, msg)
	if r.metrics != nil {
		status := "ok"
		if err != nil {
			status = "error"
		}
		r.metrics.ChannelSendsTotal.WithLabelValues(r.channel, string(msg.Kind), status).Inc()
	}
	return err
}
