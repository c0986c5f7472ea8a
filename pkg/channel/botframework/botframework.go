// Package botframework serves the Bot Framework messaging endpoint and replies
// through the connector service.
package botframework

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"flowbridge/pkg/bus"
	"flowbridge/pkg/channel"
	"flowbridge/pkg/config"
)

const (
	channelName  = "botframework"
	messagesPath = "/api/messages"

	maxActivityBytes = 1 << 20
)

// replySender posts reply activities. Connector satisfies it.
type replySender interface {
	ReplyToActivity(ctx context.Context, serviceURL string, conversationID string, activityID string, reply Activity) error
}

type Adapter struct {
	cfg       config.BotFrameworkConfig
	connector replySender
	trusted   serviceHosts
	log       *slog.Logger
}

func New(cfg config.BotFrameworkConfig, log *slog.Logger) *Adapter {
	if log == nil {
		log = slog.Default()
	}

	return &Adapter{
		cfg:       cfg,
		connector: NewConnector(cfg),
		trusted:   newServiceHosts(cfg.TrustedServiceHosts),
		log:       log.With("component", "channel.botframework"),
	}
}

func (a *Adapter) Name() string {
	return channelName
}

// Addr is the listen address for the messaging endpoint.
func (a *Adapter) Addr() string {
	host := strings.TrimSpace(a.cfg.Host)
	if host == "" {
		host = config.DefaultBotFrameworkHost
	}
	port := a.cfg.Port
	if port <= 0 {
		port = config.DefaultBotFrameworkPort
	}
	return host + ":" + strconv.Itoa(port)
}

// Endpoint is the public messaging URL, or empty when no public URL is configured.
func (a *Adapter) Endpoint() string {
	publicURL := strings.TrimRight(strings.TrimSpace(a.cfg.PublicURL), "/")
	if publicURL == "" {
		return ""
	}
	return publicURL + messagesPath
}

func (a *Adapter) Run(ctx context.Context, handler channel.Handler) error {
	if handler == nil {
		return errors.New("handler is required")
	}

	server := &http.Server{
		Addr:              a.Addr(),
		Handler:           a.Handler(handler),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()

	a.log.Info("Bot Framework endpoint started", "address", server.Addr, "path", messagesPath, "emulator", strings.TrimSpace(a.cfg.AppID) == "")
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("start bot framework endpoint: %w", err)
	}
	return ctx.Err()
}

// Handler returns the HTTP surface: GET / for liveness and POST /api/messages
// for inbound activities.
func (a *Adapter) Handler(handler channel.Handler) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /{$}", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		_, _ = io.WriteString(w, "Bot is running!")
	})
	mux.HandleFunc("POST "+messagesPath, func(w http.ResponseWriter, r *http.Request) {
		a.handleMessages(w, r, handler)
	})
	return mux
}

func (a *Adapter) handleMessages(w http.ResponseWriter, r *http.Request, handler channel.Handler) {
	var activity Activity
	decoder := json.NewDecoder(io.LimitReader(r.Body, maxActivityBytes))
	if err := decoder.Decode(&activity); err != nil {
		a.log.Warn("Rejected malformed activity", "error", err)
		http.Error(w, "malformed activity", http.StatusBadRequest)
		return
	}
	if activity.Type == "" {
		http.Error(w, "activity type is required", http.StatusBadRequest)
		return
	}
	// Inbound tokens are not validated, so with app credentials only known
	// connector hosts may be answered.
	if a.credentialed() && !a.trusted.allows(activity.ServiceURL) {
		a.log.Warn("Rejected activity from untrusted serviceUrl", "activity_id", activity.ID, "service_url", activity.ServiceURL)
		http.Error(w, "untrusted serviceUrl", http.StatusForbidden)
		return
	}

	inbound := toInbound(activity)
	replier := &activityReplier{connector: a.connector, inbound: activity, log: a.log}

	if err := handler(r.Context(), inbound, replier); err != nil {
		a.log.Error("Activity handler failed", "activity_id", activity.ID, "channel_id", activity.ChannelID, "error", err)
		http.Error(w, "turn failed", http.StatusInternalServerError)
		return
	}

	w.WriteHeader(http.StatusOK)
}

func (a *Adapter) credentialed() bool {
	return strings.TrimSpace(a.cfg.AppID) != ""
}

func toInbound(activity Activity) bus.InboundMessage {
	inbound := bus.InboundMessage{
		Channel:   channelName,
		Kind:      activity.Type,
		MessageID: activity.ID,
		Content:   activity.Text,
		Metadata: map[string]string{
			"channel_id":  activity.ChannelID,
			"service_url": activity.ServiceURL,
		},
	}
	if activity.From != nil {
		inbound.SenderID = activity.From.ID
	}
	if activity.Conversation != nil {
		inbound.ChatID = activity.Conversation.ID
	}
	return inbound
}

// activityReplier answers one inbound activity through the connector.
type activityReplier struct {
	connector replySender
	inbound   Activity
	log       *slog.Logger
}

func (r *activityReplier) Reply(ctx context.Context, msg bus.OutboundMessage) error {
	reply, ok := r.toActivity(msg)
	if !ok {
		return nil
	}

	conversationID := ""
	if r.inbound.Conversation != nil {
		conversationID = r.inbound.Conversation.ID
	}

	startedAt := time.Now()
	if err := r.connector.ReplyToActivity(ctx, r.inbound.ServiceURL, conversationID, r.inbound.ID, reply); err != nil {
		r.log.Debug("connector request failed", "duration_ms", time.Since(startedAt).Milliseconds(), "type", reply.Type, "error", err)
		return err
	}
	r.log.Debug("connector request completed", "duration_ms", time.Since(startedAt).Milliseconds(), "type", reply.Type)
	return nil
}

// toActivity maps an outbound message to a reply activity. Traces are only
// rendered by the emulator and are dropped elsewhere.
func (r *activityReplier) toActivity(msg bus.OutboundMessage) (Activity, bool) {
	reply := Activity{
		Type:         ActivityMessage,
		ChannelID:    r.inbound.ChannelID,
		ServiceURL:   r.inbound.ServiceURL,
		From:         r.inbound.Recipient,
		Recipient:    r.inbound.From,
		Conversation: r.inbound.Conversation,
		ReplyToID:    r.inbound.ID,
		Locale:       r.inbound.Locale,
	}

	switch msg.Kind {
	case bus.OutboundText:
		reply.Text = msg.Content
	case bus.OutboundCard:
		card := bus.Card{}
		if msg.Card != nil {
			card = *msg.Card
		}
		reply.Attachments = []Attachment{heroCard(card.Title, card.Images, card.Buttons)}
	case bus.OutboundTrace:
		if r.inbound.ChannelID != emulatorChannelID || msg.Trace == nil {
			r.log.Debug("Trace activity dropped", "channel_id", r.inbound.ChannelID)
			return Activity{}, false
		}
		reply.Type = ActivityTrace
		reply.Name = msg.Trace.Name
		reply.Label = msg.Trace.Label
		reply.ValueType = msg.Trace.ValueType
		reply.Value = msg.Trace.Value
	default:
		r.log.Warn("Unsupported outbound kind", "kind", msg.Kind)
		return Activity{}, false
	}

	return reply, true
}
