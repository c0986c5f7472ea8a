package botframework

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"flowbridge/pkg/bus"
	"flowbridge/pkg/channel"
	"flowbridge/pkg/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeConnector is the Bot Framework connector service: it issues tokens and
// records reply activities.
type fakeConnector struct {
	t *testing.T

	mu          sync.Mutex
	tokenCalls  int
	replies     []Activity
	replyPaths  []string
	authHeaders []string
	replyStatus int
}

func (f *fakeConnector) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch {
	case r.URL.Path == "/token":
		require.NoError(f.t, r.ParseForm())
		f.mu.Lock()
		f.tokenCalls++
		f.mu.Unlock()
		assert.Equal(f.t, "client_credentials", r.PostForm.Get("grant_type"))
		assert.Equal(f.t, tokenScope, r.PostForm.Get("scope"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"access_token":"connector-token","token_type":"Bearer","expires_in":3600}`)

	case strings.HasPrefix(r.URL.Path, "/v3/conversations/"):
		var activity Activity
		require.NoError(f.t, json.NewDecoder(r.Body).Decode(&activity))
		f.mu.Lock()
		f.replies = append(f.replies, activity)
		f.replyPaths = append(f.replyPaths, r.URL.EscapedPath())
		f.authHeaders = append(f.authHeaders, r.Header.Get("Authorization"))
		status := f.replyStatus
		f.mu.Unlock()
		if status != 0 {
			w.WriteHeader(status)
			return
		}
		_, _ = io.WriteString(w, `{"id":"reply-1"}`)

	default:
		http.NotFound(w, r)
	}
}

func (f *fakeConnector) snapshot() ([]Activity, []string, []string, int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Activity(nil), f.replies...), append([]string(nil), f.replyPaths...), append([]string(nil), f.authHeaders...), f.tokenCalls
}

func newTestAdapter(t *testing.T, connector *fakeConnector, cfg config.BotFrameworkConfig) (*Adapter, *httptest.Server) {
	t.Helper()

	server := httptest.NewServer(connector)
	t.Cleanup(server.Close)

	adapter := New(cfg, nil)
	adapter.connector = newConnector(cfg, server.URL+"/token")
	return adapter, server
}

func postActivity(t *testing.T, handler http.Handler, body string) *httptest.ResponseRecorder {
	t.Helper()
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest(http.MethodPost, messagesPath, strings.NewReader(body)))
	return w
}

func inboundActivity(serviceURL string, channelID string) string {
	raw, _ := json.Marshal(Activity{
		Type:         ActivityMessage,
		ID:           "activity/1",
		ChannelID:    channelID,
		ServiceURL:   serviceURL,
		From:         &ChannelAccount{ID: "user-1", Name: "User"},
		Recipient:    &ChannelAccount{ID: "bot-1", Name: "Bot"},
		Conversation: &ConversationAccount{ID: "conv-1"},
		Text:         "hello",
	})
	return string(raw)
}

func TestRootReportsRunning(t *testing.T) {
	adapter := New(config.BotFrameworkConfig{}, nil)
	handler := adapter.Handler(func(context.Context, bus.InboundMessage, channel.Replier) error { return nil })

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "Bot is running!", w.Body.String())
}

func TestMessagesRepliesThroughConnector(t *testing.T) {
	connector := &fakeConnector{t: t}
	adapter, server := newTestAdapter(t, connector, config.BotFrameworkConfig{
		AppID:               "app-id",
		AppPassword:         "secret",
		TrustedServiceHosts: []string{"127.0.0.1"},
	})

	var got bus.InboundMessage
	handler := adapter.Handler(func(ctx context.Context, inbound bus.InboundMessage, r channel.Replier) error {
		got = inbound
		if err := r.Reply(ctx, bus.OutboundMessage{Kind: bus.OutboundText, Content: "Hi there"}); err != nil {
			return err
		}
		if err := r.Reply(ctx, bus.OutboundMessage{Kind: bus.OutboundCard, Card: &bus.Card{Images: []string{"http://x/y.png"}}}); err != nil {
			return err
		}
		return r.Reply(ctx, bus.OutboundMessage{Kind: bus.OutboundCard, Card: &bus.Card{Buttons: []string{"Yes", "No"}}})
	})

	w := postActivity(t, handler, inboundActivity(server.URL, "msteams"))
	require.Equal(t, http.StatusOK, w.Code)

	assert.Equal(t, bus.InboundMessage{
		Channel:   channelName,
		Kind:      bus.KindMessage,
		SenderID:  "user-1",
		ChatID:    "conv-1",
		MessageID: "activity/1",
		Content:   "hello",
		Metadata:  map[string]string{"channel_id": "msteams", "service_url": server.URL},
	}, got)

	replies, paths, auth, tokenCalls := connector.snapshot()
	require.Len(t, replies, 3)
	assert.Equal(t, 1, tokenCalls)
	for i := range replies {
		assert.Equal(t, "/v3/conversations/conv-1/activities/activity%2F1", paths[i])
		assert.Equal(t, "Bearer connector-token", auth[i])
		assert.Equal(t, "bot-1", replies[i].From.ID)
		assert.Equal(t, "user-1", replies[i].Recipient.ID)
		assert.Equal(t, "activity/1", replies[i].ReplyToID)
	}

	assert.Equal(t, ActivityMessage, replies[0].Type)
	assert.Equal(t, "Hi there", replies[0].Text)
	assert.Empty(t, replies[0].Attachments)

	require.Len(t, replies[1].Attachments, 1)
	assert.Equal(t, heroCardContentType, replies[1].Attachments[0].ContentType)
	imageCard, err := json.Marshal(replies[1].Attachments[0].Content)
	require.NoError(t, err)
	assert.JSONEq(t, `{"title":"","images":[{"url":"http://x/y.png"}],"buttons":[]}`, string(imageCard))

	buttonCard, err := json.Marshal(replies[2].Attachments[0].Content)
	require.NoError(t, err)
	assert.JSONEq(t, `{"title":"","images":[],"buttons":[
		{"type":"imBack","title":"Yes","value":"Yes"},
		{"type":"imBack","title":"No","value":"No"}
	]}`, string(buttonCard))
}

func TestUntrustedServiceURLIsRejectedWithCredentials(t *testing.T) {
	trusted := &fakeConnector{t: t}
	adapter, _ := newTestAdapter(t, trusted, config.BotFrameworkConfig{AppID: "app-id", AppPassword: "secret"})

	var attackerAuth []string
	attacker := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attackerAuth = append(attackerAuth, r.Header.Get("Authorization"))
	}))
	t.Cleanup(attacker.Close)

	called := false
	handler := adapter.Handler(func(ctx context.Context, _ bus.InboundMessage, r channel.Replier) error {
		called = true
		return r.Reply(ctx, bus.OutboundMessage{Kind: bus.OutboundText, Content: "hi"})
	})

	w := postActivity(t, handler, inboundActivity(attacker.URL, "webchat"))
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.False(t, called)
	assert.Empty(t, attackerAuth)

	_, _, _, tokenCalls := trusted.snapshot()
	assert.Zero(t, tokenCalls)
}

func TestConnectorWithholdsTokenFromUntrustedHost(t *testing.T) {
	connector := &fakeConnector{t: t}
	server := httptest.NewServer(connector)
	t.Cleanup(server.Close)

	c := newConnector(config.BotFrameworkConfig{AppID: "app-id", AppPassword: "secret"}, server.URL+"/token")
	err := c.ReplyToActivity(context.Background(), server.URL, "conv-1", "activity-1", Activity{Type: ActivityMessage})
	require.ErrorIs(t, err, errUntrustedServiceURL)

	replies, _, _, tokenCalls := connector.snapshot()
	assert.Empty(t, replies)
	assert.Zero(t, tokenCalls)
}

func TestServiceHostsAllows(t *testing.T) {
	defaults := newServiceHosts(nil)
	custom := newServiceHosts([]string{" LOCALHOST ", "*.example.test"})

	tests := []struct {
		name  string
		hosts serviceHosts
		url   string
		want  bool
	}{
		{name: "smba connector", hosts: defaults, url: "https://smba.trafficmanager.net/amer/", want: true},
		{name: "webchat connector", hosts: defaults, url: "https://webchat.botframework.com/", want: true},
		{name: "government cloud", hosts: defaults, url: "https://directline.botframework.azure.us", want: true},
		{name: "plain http wildcard", hosts: defaults, url: "http://webchat.botframework.com/", want: false},
		{name: "lookalike suffix", hosts: defaults, url: "https://evilbotframework.com/", want: false},
		{name: "bare apex", hosts: defaults, url: "https://botframework.com/", want: false},
		{name: "foreign host", hosts: defaults, url: "https://attacker.example/", want: false},
		{name: "empty", hosts: defaults, url: "", want: false},
		{name: "exact host over http", hosts: custom, url: "http://localhost:3979", want: true},
		{name: "custom wildcard", hosts: custom, url: "https://a.b.example.test", want: true},
		{name: "defaults replaced", hosts: custom, url: "https://webchat.botframework.com/", want: false},
		{name: "unsupported scheme", hosts: custom, url: "ftp://localhost/", want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.hosts.allows(tt.url))
		})
	}
}

func TestEmulatorRepliesWithoutToken(t *testing.T) {
	connector := &fakeConnector{t: t}
	adapter, server := newTestAdapter(t, connector, config.BotFrameworkConfig{})

	handler := adapter.Handler(func(ctx context.Context, _ bus.InboundMessage, r channel.Replier) error {
		return r.Reply(ctx, bus.OutboundMessage{Kind: bus.OutboundText, Content: ""})
	})

	w := postActivity(t, handler, inboundActivity(server.URL, emulatorChannelID))
	require.Equal(t, http.StatusOK, w.Code)

	replies, _, auth, tokenCalls := connector.snapshot()
	require.Len(t, replies, 1)
	assert.Equal(t, 0, tokenCalls)
	assert.Empty(t, auth[0])
	assert.Equal(t, "", replies[0].Text)
}

func TestTracesOnlyReachTheEmulator(t *testing.T) {
	trace := bus.OutboundMessage{Kind: bus.OutboundTrace, Trace: &bus.Trace{
		Name:      "OnTurnError Trace",
		Label:     "TurnError",
		ValueType: "https://www.botframework.com/schemas/error",
		Value:     "boom",
	}}

	tests := []struct {
		channelID   string
		wantReplies int
	}{
		{channelID: emulatorChannelID, wantReplies: 1},
		{channelID: "webchat", wantReplies: 0},
	}

	for _, tt := range tests {
		t.Run(tt.channelID, func(t *testing.T) {
			connector := &fakeConnector{t: t}
			adapter, server := newTestAdapter(t, connector, config.BotFrameworkConfig{})
			handler := adapter.Handler(func(ctx context.Context, _ bus.InboundMessage, r channel.Replier) error {
				return r.Reply(ctx, trace)
			})

			w := postActivity(t, handler, inboundActivity(server.URL, tt.channelID))
			require.Equal(t, http.StatusOK, w.Code)

			replies, _, _, _ := connector.snapshot()
			require.Len(t, replies, tt.wantReplies)
			if tt.wantReplies == 1 {
				assert.Equal(t, ActivityTrace, replies[0].Type)
				assert.Equal(t, "OnTurnError Trace", replies[0].Name)
				assert.Equal(t, "TurnError", replies[0].Label)
				assert.Equal(t, "https://www.botframework.com/schemas/error", replies[0].ValueType)
				assert.Equal(t, "boom", replies[0].Value)
			}
		})
	}
}

func TestMessagesStatusCodes(t *testing.T) {
	adapter := New(config.BotFrameworkConfig{}, nil)

	failing := adapter.Handler(func(context.Context, bus.InboundMessage, channel.Replier) error {
		return errors.New("unhandled")
	})
	assert.Equal(t, http.StatusInternalServerError, postActivity(t, failing, inboundActivity("http://unused", "webchat")).Code)

	ok := adapter.Handler(func(context.Context, bus.InboundMessage, channel.Replier) error { return nil })
	assert.Equal(t, http.StatusBadRequest, postActivity(t, ok, `{"type":`).Code)
	assert.Equal(t, http.StatusBadRequest, postActivity(t, ok, `{"text":"no type"}`).Code)
	assert.Equal(t, http.StatusOK, postActivity(t, ok, `{"type":"conversationUpdate"}`).Code)
}

func TestReplyFailureIsReturned(t *testing.T) {
	connector := &fakeConnector{t: t, replyStatus: http.StatusBadGateway}
	adapter, server := newTestAdapter(t, connector, config.BotFrameworkConfig{})

	var replyErr error
	handler := adapter.Handler(func(ctx context.Context, _ bus.InboundMessage, r channel.Replier) error {
		replyErr = r.Reply(ctx, bus.OutboundMessage{Kind: bus.OutboundText, Content: "hi"})
		return nil
	})

	postActivity(t, handler, inboundActivity(server.URL, "webchat"))
	require.Error(t, replyErr)
	assert.Contains(t, replyErr.Error(), "status 502")
}

func TestEndpoint(t *testing.T) {
	assert.Equal(t, "", New(config.BotFrameworkConfig{}, nil).Endpoint())
	assert.Equal(t, "https://bot.example.test/api/messages", New(config.BotFrameworkConfig{PublicURL: "https://bot.example.test/"}, nil).Endpoint())
	assert.Equal(t, "0.0.0.0:3978", New(config.BotFrameworkConfig{}, nil).Addr())
	assert.Equal(t, "127.0.0.1:8080", New(config.BotFrameworkConfig{Host: "127.0.0.1", Port: 8080}, nil).Addr())
}
