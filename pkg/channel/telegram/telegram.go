package telegram

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"flowbridge/pkg/bus"
	"flowbridge/pkg/channel"
	"flowbridge/pkg/config"

	"github.com/mymmrac/telego"
	tu "github.com/mymmrac/telego/telegoutil"
)

const channelName = "telegram"
const messagePreviewLimit = 240
const typingRefreshInterval = 4 * time.Second

// buttonPrompt is the message text carrying a reply keyboard when the card
// has no title. Telegram rejects keyboards without text.
const buttonPrompt = "Choose an option:"

// botAPI is the part of telego.Bot the adapter calls.
type botAPI interface {
	SendMessage(ctx context.Context, params *telego.SendMessageParams) (*telego.Message, error)
	SendPhoto(ctx context.Context, params *telego.SendPhotoParams) (*telego.Message, error)
	SendChatAction(ctx context.Context, params *telego.SendChatActionParams) error
}

// Adapter bridges Telegram long polling into dialogue turns.
type Adapter struct {
	cfg       config.TelegramConfig
	allowFrom map[string]struct{}
	log       *slog.Logger
}

// NewAdapter validates Telegram configuration and constructs an adapter instance.
func NewAdapter(cfg config.TelegramConfig, log *slog.Logger) (*Adapter, error) {
	token := strings.TrimSpace(cfg.Token)
	if token == "" {
		return nil, errors.New("channels.telegram.token is required")
	}

	if log == nil {
		log = slog.Default()
	}

	return &Adapter{
		cfg:       cfg,
		allowFrom: allowFromSet(cfg.AllowFrom),
		log:       log.With("component", "channel.telegram"),
	}, nil
}

// Name returns the channel identifier used in bus metadata and logs.
func (a *Adapter) Name() string {
	return channelName
}

// Run starts Telegram long polling. Updates from one sender are handled in
// arrival order; different senders are handled concurrently.
func (a *Adapter) Run(ctx context.Context, handler channel.Handler) error {
	if handler == nil {
		return errors.New("handler is required")
	}

	bot, err := telego.NewBot(strings.TrimSpace(a.cfg.Token))
	if err != nil {
		return fmt.Errorf("initialize telegram bot: %w", err)
	}

	updates, err := bot.UpdatesViaLongPolling(ctx, nil)
	if err != nil {
		return fmt.Errorf("start long polling: %w", err)
	}

	a.log.Info("Telegram channel started")

	queues := newSenderQueues()
	for {
		select {
		case <-ctx.Done():
			return nil
		case update, ok := <-updates:
			if !ok {
				if err := ctx.Err(); err != nil {
					return nil
				}
				return errors.New("telegram updates channel closed")
			}

			inbound, chatID, ok := a.toInbound(update)
			if !ok {
				continue
			}

			queued := queues.dispatch(ctx, inbound.SenderID, func() {
				a.process(ctx, bot, handler, inbound, chatID)
			})
			if !queued {
				a.log.Warn("Dropping message, sender queue is full", "sender_id", inbound.SenderID, "message_id", inbound.MessageID)
			}
		}
	}
}

// toInbound filters an update down to an allowed, non-empty text message.
func (a *Adapter) toInbound(update telego.Update) (bus.InboundMessage, int64, bool) {
	message := update.Message
	if message == nil {
		return bus.InboundMessage{}, 0, false
	}

	content := message.Text
	if strings.TrimSpace(content) == "" {
		// Only text reaches the dialogue runtime.
		return bus.InboundMessage{}, 0, false
	}
	if message.From == nil {
		a.log.Debug("Ignoring message without sender")
		return bus.InboundMessage{}, 0, false
	}

	senderID := strconv.FormatInt(message.From.ID, 10)
	if !a.senderAllowed(senderID) {
		a.log.Debug("Ignoring message from unauthorized sender", "sender_id", senderID)
		return bus.InboundMessage{}, 0, false
	}

	chatID := strconv.FormatInt(message.Chat.ID, 10)
	return bus.InboundMessage{
		Channel:   channelName,
		Kind:      bus.KindMessage,
		SenderID:  senderID,
		ChatID:    chatID,
		MessageID: strconv.Itoa(message.MessageID),
		Content:   content,
		Metadata: map[string]string{
			"update_id": strconv.Itoa(update.UpdateID),
		},
	}, message.Chat.ID, true
}

func (a *Adapter) process(ctx context.Context, bot botAPI, handler channel.Handler, inbound bus.InboundMessage, chatID int64) {
	a.log.Info("Received message", "chat_id", inbound.ChatID, "sender_id", inbound.SenderID, "content", previewText(inbound.Content))

	stopTyping := a.startTypingIndicator(ctx, bot, chatID)
	defer stopTyping()

	replier := &chatReplier{bot: bot, chatID: chatID, log: a.log}
	if err := handler(ctx, inbound, replier); err != nil {
		a.log.Error("Failed to process inbound message", "chat_id", inbound.ChatID, "error", err)
	}
}

// chatReplier sends outbound messages into one Telegram chat.
type chatReplier struct {
	bot    botAPI
	chatID int64
	log    *slog.Logger
}

// Reply maps one outbound message to Telegram calls. Content Telegram would
// reject (empty text, cards without images or buttons) is skipped.
func (r *chatReplier) Reply(ctx context.Context, msg bus.OutboundMessage) error {
	chat := tu.ID(r.chatID)

	switch msg.Kind {
	case bus.OutboundText:
		if strings.TrimSpace(msg.Content) == "" {
			r.log.Debug("Skipping empty text message", "chat_id", r.chatID)
			return nil
		}
		r.log.Info("Sending message", "chat_id", r.chatID, "content", previewText(msg.Content))
		if _, err := r.bot.SendMessage(ctx, tu.Message(chat, msg.Content)); err != nil {
			return fmt.Errorf("send telegram message: %w", err)
		}

	case bus.OutboundCard:
		if msg.Card == nil {
			return nil
		}
		for _, url := range msg.Card.Images {
			if strings.TrimSpace(url) == "" {
				r.log.Debug("Skipping image without url", "chat_id", r.chatID)
				continue
			}
			photo := tu.Photo(chat, tu.FileFromURL(url))
			if msg.Card.Title != "" {
				photo = photo.WithCaption(msg.Card.Title)
			}
			if _, err := r.bot.SendPhoto(ctx, photo); err != nil {
				return fmt.Errorf("send telegram photo: %w", err)
			}
		}
		if len(msg.Card.Buttons) == 0 {
			return nil
		}

		text := msg.Card.Title
		if text == "" {
			text = buttonPrompt
		}
		params := tu.Message(chat, text).WithReplyMarkup(replyKeyboard(msg.Card.Buttons))
		if _, err := r.bot.SendMessage(ctx, params); err != nil {
			return fmt.Errorf("send telegram keyboard: %w", err)
		}

	case bus.OutboundTrace:
		if msg.Trace != nil {
			r.log.Debug("Trace activity", "chat_id", r.chatID, "name", msg.Trace.Name, "value", msg.Trace.Value)
		}

	default:
		return fmt.Errorf("unsupported outbound kind %q", msg.Kind)
	}

	return nil
}

// replyKeyboard lays out one button per row. Pressing a button sends its
// label back as a regular message.
func replyKeyboard(labels []string) *telego.ReplyKeyboardMarkup {
	rows := make([][]telego.KeyboardButton, 0, len(labels))
	for _, label := range labels {
		rows = append(rows, tu.KeyboardRow(tu.KeyboardButton(label)))
	}
	return tu.Keyboard(rows...).WithOneTimeKeyboard().WithResizeKeyboard()
}

// senderAllowed checks whether a sender is permitted by allow_from config.
//
// When no allow list is configured, all senders are accepted.
func (a *Adapter) senderAllowed(senderID string) bool {
	if len(a.allowFrom) == 0 {
		return true
	}

	_, ok := a.allowFrom[strings.TrimSpace(senderID)]
	return ok
}

// allowFromSet normalizes allow_from values into a lookup set.
func allowFromSet(allowFrom []string) map[string]struct{} {
	if len(allowFrom) == 0 {
		return nil
	}

	allowed := make(map[string]struct{}, len(allowFrom))
	for _, value := range allowFrom {
		trimmed := strings.TrimSpace(value)
		if trimmed == "" {
			continue
		}
		allowed[trimmed] = struct{}{}
	}

	if len(allowed) == 0 {
		return nil
	}

	return allowed
}

// previewText returns a bounded log-safe preview of message text.
func previewText(text string) string {
	trimmed := strings.TrimSpace(text)
	if len(trimmed) <= messagePreviewLimit {
		return trimmed
	}

	return trimmed[:messagePreviewLimit] + "..."
}

// startTypingIndicator sends an initial typing action and refreshes it periodically
// until the returned cancel function is called.
func (a *Adapter) startTypingIndicator(ctx context.Context, bot botAPI, chatID int64) context.CancelFunc {
	typingCtx, cancel := context.WithCancel(ctx)

	sendTyping := func() {
		if err := bot.SendChatAction(typingCtx, tu.ChatAction(tu.ID(chatID), telego.ChatActionTyping)); err != nil && typingCtx.Err() == nil {
			a.log.Debug("Failed to send typing indicator", "chat_id", chatID, "error", err)
		}
	}

	sendTyping()

	go func() {
		ticker := time.NewTicker(typingRefreshInterval)
		defer ticker.Stop()

		for {
			select {
			case <-typingCtx.Done():
				return
			case <-ticker.C:
				sendTyping()
			}
		}
	}()

	return cancel
}
