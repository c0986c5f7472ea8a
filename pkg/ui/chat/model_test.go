package chat

import (
	"context"
	"errors"
	"strings"
	"testing"

	"flowbridge/pkg/bus"

	tea "github.com/charmbracelet/bubbletea"
)

func TestApplyTurnResultRendersReplies(t *testing.T) {
	t.Parallel()

	m := newModel(context.Background(), nil, modeInteractive, "", RuntimeInfo{})
	m.isLoading = true
	m.applyTurnResult(turnResultMsg{replies: []bus.OutboundMessage{
		{Kind: bus.OutboundText, Content: "Hi there"},
		{Kind: bus.OutboundCard, Card: &bus.Card{Images: []string{"http://x/y.png"}}},
		{Kind: bus.OutboundCard, Card: &bus.Card{Buttons: []string{"Yes", "No"}}},
	}})

	if m.isLoading {
		t.Fatal("expected loading to stop")
	}
	if len(m.messages) != 3 {
		t.Fatalf("messages = %d, want 3", len(m.messages))
	}
	if m.messages[0].role != roleBot || m.messages[0].content != "Hi there" {
		t.Fatalf("first message = %+v", m.messages[0])
	}
	if m.messages[1].role != roleCard || m.messages[1].images[0] != "http://x/y.png" {
		t.Fatalf("second message = %+v", m.messages[1])
	}
	if got := strings.Join(m.pendingButtons, ","); got != "Yes,No" {
		t.Fatalf("pendingButtons = %q", got)
	}
}

func TestApplyTurnResultRecordsError(t *testing.T) {
	t.Parallel()

	m := newModel(context.Background(), nil, modeInteractive, "", RuntimeInfo{})
	m.pendingButtons = []string{"stale"}
	m.applyTurnResult(turnResultMsg{
		replies: []bus.OutboundMessage{{Kind: bus.OutboundTrace, Trace: &bus.Trace{Name: "OnTurnError Trace", Value: "boom"}}},
		err:     errors.New("boom"),
	})

	if m.lastErr != "boom" {
		t.Fatalf("lastErr = %q", m.lastErr)
	}
	if len(m.pendingButtons) != 0 {
		t.Fatal("expected stale buttons to be cleared")
	}
	if len(m.messages) != 2 || m.messages[0].role != roleError || m.messages[1].role != roleError {
		t.Fatalf("messages = %+v", m.messages)
	}
}

func TestResolveButton(t *testing.T) {
	t.Parallel()

	m := newModel(context.Background(), nil, modeInteractive, "", RuntimeInfo{})
	m.pendingButtons = []string{"Order pizza", "Cancel"}

	tests := []struct {
		input string
		want  string
	}{
		{input: "1", want: "Order pizza"},
		{input: "2", want: "Cancel"},
		{input: "3", want: "3"},
		{input: "0", want: "0"},
		{input: "hello", want: "hello"},
	}

	for _, tt := range tests {
		if got := m.resolveButton(tt.input); got != tt.want {
			t.Fatalf("resolveButton(%q) = %q, want %q", tt.input, got, tt.want)
		}
	}
}

func TestEnterSendsPickedButtonLabel(t *testing.T) {
	t.Parallel()

	var got string
	turnFn := func(_ context.Context, utterance string) ([]bus.OutboundMessage, error) {
		got = utterance
		return []bus.OutboundMessage{{Kind: bus.OutboundText, Content: "ok"}}, nil
	}

	m := newModel(context.Background(), turnFn, modeInteractive, "", RuntimeInfo{})
	m.booting = false
	m.pendingButtons = []string{"Yes", "No"}
	m.input.SetValue("2")

	_, cmd := m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	if cmd == nil {
		t.Fatal("expected a command for the turn")
	}
	if !m.isLoading {
		t.Fatal("expected loading state")
	}
	if m.messages[len(m.messages)-1].content != "No" {
		t.Fatalf("user message = %q, want button label", m.messages[len(m.messages)-1].content)
	}

	msg := sendTurnCmd(context.Background(), turnFn, "No")()
	if got != "No" {
		t.Fatalf("turn utterance = %q, want No", got)
	}
	m.Update(msg)
	if m.isLoading {
		t.Fatal("expected loading to stop after result")
	}
}

func TestCardBody(t *testing.T) {
	t.Parallel()

	body := cardBody(chatMessage{images: []string{"http://x/y.png"}, buttons: []string{"Yes", "No"}})
	want := "image: http://x/y.png\n[1] Yes\n[2] No"
	if body != want {
		t.Fatalf("cardBody = %q, want %q", body, want)
	}
	if got := cardBody(chatMessage{}); got != "(empty card)" {
		t.Fatalf("cardBody empty = %q", got)
	}
}

func TestIsExitCommand(t *testing.T) {
	t.Parallel()

	for input, want := range map[string]bool{"exit": true, " /exit ": true, "QUIT": true, ":q": true, "hello": false} {
		if got := isExitCommand(input); got != want {
			t.Fatalf("isExitCommand(%q) = %v, want %v", input, got, want)
		}
	}
}

func TestHandleViewportMouse(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name          string
		button        tea.MouseButton
		startAtBottom bool
		wantHandled   bool
		wantFollow    bool
	}{
		{name: "wheel up leaves bottom", button: tea.MouseButtonWheelUp, startAtBottom: true, wantHandled: true, wantFollow: false},
		{name: "wheel down reaching bottom follows", button: tea.MouseButtonWheelDown, wantHandled: true, wantFollow: true},
		{name: "left click ignored", button: tea.MouseButtonLeft, startAtBottom: true, wantHandled: false, wantFollow: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			m := newModel(context.Background(), nil, modeInteractive, "", RuntimeInfo{})
			m.viewport.Width = 40
			m.viewport.Height = 5
			m.viewport.SetContent(strings.Repeat("reply\n", 30))
			m.viewport.GotoBottom()
			m.followLog = tt.startAtBottom
			if !tt.startAtBottom {
				m.viewport.SetYOffset(max(0, m.viewport.YOffset-1))
			}

			handled := m.handleViewportMouse(tea.MouseMsg{Action: tea.MouseActionPress, Button: tt.button})
			if handled != tt.wantHandled {
				t.Fatalf("handled = %v, want %v", handled, tt.wantHandled)
			}
			if m.followLog != tt.wantFollow {
				t.Fatalf("followLog = %v, want %v", m.followLog, tt.wantFollow)
			}
		})
	}
}

func TestThemeBubbleFallsBackToError(t *testing.T) {
	t.Parallel()

	th := defaultTheme()
	if got := th.bubbleFor(roleCard).label; got != "[ card ]" {
		t.Fatalf("card label = %q", got)
	}
	if got := th.bubbleFor("unknown").label; got != "[ ERROR ]" {
		t.Fatalf("fallback label = %q", got)
	}
}
