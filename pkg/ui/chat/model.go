package chat

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"flowbridge/pkg/bus"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

type mode int

const (
	modeInteractive mode = iota
	modeOneShot
)

const (
	roleUser  = "user"
	roleBot   = "bot"
	roleCard  = "card"
	roleError = "error"
)

// chatMessage is one rendered entry in the transcript.
type chatMessage struct {
	role    string
	content string
	images  []string
	buttons []string
}

type turnResultMsg struct {
	replies []bus.OutboundMessage
	err     error
}

type bootTickMsg struct{}

type model struct {
	ctx            context.Context
	turnFn         TurnFunc
	mode           mode
	oneShotInput   string
	pendingButtons []string

	theme     theme
	spinner   spinner.Model
	input     textinput.Model
	viewport  viewport.Model
	messages  []chatMessage
	width     int
	height    int
	isReady   bool
	isLoading bool
	lastErr   string
	booting   bool
	bootStep  int
	followLog bool
	runtime   RuntimeInfo
	turns     int
}

func newModel(ctx context.Context, turnFn TurnFunc, runMode mode, utterance string, info RuntimeInfo) *model {
	spin := spinner.New()
	spin.Spinner = spinner.Points
	spin.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("45"))

	in := textinput.New()
	in.Prompt = ""
	in.Placeholder = "Say something, or pick a button by number..."
	in.Focus()
	in.CharLimit = 0

	vp := viewport.New(80, 12)

	return &model{
		ctx:          ctx,
		turnFn:       turnFn,
		mode:         runMode,
		oneShotInput: strings.TrimSpace(utterance),
		theme:        defaultTheme(),
		spinner:      spin,
		input:        in,
		viewport:     vp,
		width:        100,
		height:       28,
		booting:      runMode == modeInteractive,
		followLog:    true,
		runtime:      info,
	}
}

func (m *model) Init() tea.Cmd {
	if m.mode == modeOneShot && m.oneShotInput != "" {
		return m.startTurn(m.oneShotInput)
	}

	return bootTickCmd()
}

func (m *model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd

	switch typed := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = typed.Width
		m.height = typed.Height
		m.resizeComponents()
		m.refreshViewport(false)
		m.isReady = true
		return m, nil
	case bootTickMsg:
		if !m.booting {
			return m, nil
		}

		m.bootStep++
		if m.bootStep < len(bootScriptLines())+1 {
			return m, bootTickCmd()
		}

		m.booting = false
		return m, textinput.Blink
	case tea.MouseMsg:
		if m.mode == modeInteractive && !m.booting && m.handleViewportMouse(typed) {
			return m, nil
		}
	case tea.KeyMsg:
		switch typed.String() {
		case "ctrl+c", "esc":
			return m, tea.Quit
		}

		if m.booting {
			return m, nil
		}

		if m.mode == modeInteractive {
			if handled := m.handleViewportKey(typed); handled {
				return m, nil
			}
		}

		if m.mode == modeOneShot {
			return m, nil
		}

		if typed.String() == "enter" {
			if m.isLoading {
				return m, nil
			}

			utterance := strings.TrimSpace(m.input.Value())
			if utterance == "" {
				return m, nil
			}
			if isExitCommand(utterance) {
				return m, tea.Quit
			}

			m.input.SetValue("")
			m.followLog = true
			return m, m.startTurn(m.resolveButton(utterance))
		}
	}

	if m.mode == modeInteractive {
		m.input, cmd = m.input.Update(msg)
	}

	switch typed := msg.(type) {
	case spinner.TickMsg:
		if !m.isLoading {
			return m, nil
		}
		m.spinner, cmd = m.spinner.Update(typed)
		return m, cmd
	case turnResultMsg:
		m.applyTurnResult(typed)
		if m.mode == modeOneShot {
			return m, tea.Quit
		}
	}

	return m, cmd
}

// startTurn records the utterance and dispatches it.
func (m *model) startTurn(utterance string) tea.Cmd {
	m.lastErr = ""
	m.turns++
	m.messages = append(m.messages, chatMessage{role: roleUser, content: utterance})
	m.isLoading = true
	m.refreshViewport(true)
	return tea.Batch(m.spinner.Tick, sendTurnCmd(m.ctx, m.turnFn, utterance))
}

// resolveButton maps a 1-based number to the label of the most recent button
// card. Anything else is sent as typed.
func (m *model) resolveButton(input string) string {
	index, err := strconv.Atoi(input)
	if err != nil || index < 1 || index > len(m.pendingButtons) {
		return input
	}
	return m.pendingButtons[index-1]
}

func (m *model) applyTurnResult(result turnResultMsg) {
	m.isLoading = false
	m.pendingButtons = nil

	for _, reply := range result.replies {
		switch reply.Kind {
		case bus.OutboundText:
			m.messages = append(m.messages, chatMessage{role: roleBot, content: reply.Content})
		case bus.OutboundCard:
			if reply.Card == nil {
				continue
			}
			m.messages = append(m.messages, chatMessage{role: roleCard, images: reply.Card.Images, buttons: reply.Card.Buttons})
			if len(reply.Card.Buttons) > 0 {
				m.pendingButtons = reply.Card.Buttons
			}
		case bus.OutboundTrace:
			if reply.Trace != nil {
				m.messages = append(m.messages, chatMessage{role: roleError, content: reply.Trace.Name + ": " + reply.Trace.Value})
			}
		}
	}

	if result.err != nil {
		m.lastErr = result.err.Error()
		m.messages = append(m.messages, chatMessage{role: roleError, content: result.err.Error()})
	}

	m.refreshViewport(false)
}

func (m *model) View() string {
	if !m.isReady {
		m.resizeComponents()
		m.refreshViewport(false)
	}
	if m.mode == modeOneShot {
		return m.oneShotView()
	}
	if m.booting {
		return m.bootView()
	}

	header := m.theme.header.Width(m.width - 2).Render("FlowBridge Console")
	meta := m.theme.headerMeta.Render(fmt.Sprintf(
		"provider:%s · version:%s · user:%s · turns:%d",
		displayOrNA(m.runtime.Provider),
		displayOrNA(m.runtime.VersionID),
		displayOrNA(m.runtime.UserID),
		m.turns,
	))
	line := m.theme.divider.Width(m.width - 2).Render(strings.Repeat("═", max(8, m.width-2)))

	status := m.theme.status.Render("Enter send  ·  1-9 pick button  ·  PgUp/PgDn scroll  ·  End jump latest  ·  Ctrl+C/Esc quit")
	if m.isLoading {
		status = m.theme.statusBusy.Render(fmt.Sprintf("%s waiting for the dialogue runtime...", m.spinner.View()))
	}
	if m.lastErr != "" {
		status = m.theme.statusErr.Render("last turn failed - try again")
	}

	parts := []string{header, meta, line, m.theme.viewport.Width(m.width - 2).Render(m.viewport.View()), status}

	if m.mode == modeInteractive {
		parts = append(parts,
			m.theme.inputLabel.Render("You")+" "+m.theme.hint.Render("(type /exit, quit, or :q)"),
			m.theme.input.Width(m.width-2).Render(m.input.View()),
		)
	}

	return lipgloss.JoinVertical(lipgloss.Left, parts...)
}

func (m *model) resizeComponents() {
	w := m.width - 6
	if w < 50 {
		w = 50
	}
	h := m.height - 10
	if m.mode == modeOneShot {
		h = m.height - 6
	}
	if h < 8 {
		h = 8
	}

	m.viewport.Width = w
	m.viewport.Height = h
	m.input.Width = w - 2
}

func (m *model) refreshViewport(forceBottom bool) {
	previousOffset := m.viewport.YOffset
	sections := make([]string, 0, len(m.messages))
	for _, item := range m.messages {
		sections = append(sections, m.renderMessage(item, m.viewport.Width))
	}

	m.viewport.SetContent(strings.Join(sections, "\n\n"))
	if m.followLog || forceBottom {
		m.viewport.GotoBottom()
		m.followLog = true
		return
	}

	maxOffset := m.viewport.TotalLineCount() - m.viewport.Height
	if maxOffset < 0 {
		maxOffset = 0
	}
	if previousOffset > maxOffset {
		previousOffset = maxOffset
	}
	m.viewport.SetYOffset(previousOffset)
}

func (m *model) renderMessage(item chatMessage, width int) string {
	b := m.theme.bubbleFor(item.role)

	body := strings.TrimSpace(item.content)
	switch item.role {
	case roleBot:
		body = item.content
	case roleCard:
		body = cardBody(item)
	}

	return m.renderCard(b.title.Render(b.label), b.box.Width(width).Render(body))
}

// cardBody lists image URLs and numbers buttons so they can be picked by index.
func cardBody(item chatMessage) string {
	lines := make([]string, 0, len(item.images)+len(item.buttons))
	for _, url := range item.images {
		lines = append(lines, "image: "+url)
	}
	for i, label := range item.buttons {
		lines = append(lines, fmt.Sprintf("[%d] %s", i+1, label))
	}
	if len(lines) == 0 {
		return "(empty card)"
	}
	return strings.Join(lines, "\n")
}

func (m *model) renderCard(title string, body string) string {
	return lipgloss.JoinVertical(lipgloss.Left, title, body)
}

func (m *model) oneShotView() string {
	contentWidth := max(40, m.width-6)
	parts := []string{m.renderCard(
		m.theme.bubbleFor(roleUser).title.Render("[ sent ]"),
		m.theme.bubbleFor(roleUser).box.Width(contentWidth).Render(strings.TrimSpace(m.oneShotInput)),
	)}

	if m.isLoading {
		parts = append(parts, m.theme.statusBusy.Render(fmt.Sprintf("%s sending utterance and waiting for replies...", m.spinner.View())))
		return lipgloss.JoinVertical(lipgloss.Left, parts...) + "\n"
	}

	for _, item := range m.messages {
		if item.role == roleUser {
			continue
		}
		parts = append(parts, m.renderMessage(item, contentWidth))
	}

	return lipgloss.JoinVertical(lipgloss.Left, parts...) + "\n\n"
}

func (m *model) bootView() string {
	header := m.theme.header.Width(m.width - 2).Render("FlowBridge Console")
	meta := m.theme.headerMeta.Render("connecting")
	line := m.theme.divider.Width(m.width - 2).Render(strings.Repeat("═", max(8, m.width-2)))

	script := bootScriptLines()
	count := min(m.bootStep, len(script))
	visible := make([]string, 0, count+1)
	for i := 0; i < count; i++ {
		visible = append(visible, m.theme.bootLine.Render(script[i]))
	}
	if m.bootStep > len(script) {
		visible = append(visible, m.theme.bootDone.Render("console ready"))
	}

	body := m.theme.viewport.Width(m.width - 2).Render(strings.Join(visible, "\n"))
	return lipgloss.JoinVertical(lipgloss.Left, header, meta, line, body)
}

func bootTickCmd() tea.Cmd {
	return tea.Tick(80*time.Millisecond, func(_ time.Time) tea.Msg {
		return bootTickMsg{}
	})
}

func (m *model) handleViewportKey(msg tea.KeyMsg) bool {
	switch msg.String() {
	case "pgup", "ctrl+b", "alt+up", "ctrl+up":
		m.viewport.PageUp()
		m.followLog = false
		return true
	case "pgdown", "ctrl+f", "alt+down", "ctrl+down":
		m.viewport.PageDown()
		if m.viewport.AtBottom() {
			m.followLog = true
		}
		return true
	case "home":
		m.viewport.GotoTop()
		m.followLog = false
		return true
	case "end":
		m.viewport.GotoBottom()
		m.followLog = true
		return true
	default:
		return false
	}
}

// handleViewportMouse scrolls on wheel events and reports whether it did.
func (m *model) handleViewportMouse(msg tea.MouseMsg) bool {
	if msg.Action != tea.MouseActionPress {
		return false
	}

	switch msg.Button {
	case tea.MouseButtonWheelUp:
		m.viewport.ScrollUp(3)
		m.followLog = false
		return true
	case tea.MouseButtonWheelDown:
		m.viewport.ScrollDown(3)
		if m.viewport.AtBottom() {
			m.followLog = true
		}
		return true
	default:
		return false
	}
}

func bootScriptLines() []string {
	return []string{
		"[BOOT] loading configuration",
		"[BOOT] resolving dialogue runtime",
		"[BOOT] opening console channel",
	}
}

func sendTurnCmd(ctx context.Context, turnFn TurnFunc, utterance string) tea.Cmd {
	return func() tea.Msg {
		replies, err := turnFn(ctx, utterance)
		return turnResultMsg{replies: replies, err: err}
	}
}

func displayOrNA(value string) string {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return "n/a"
	}

	return trimmed
}

func isExitCommand(input string) bool {
	switch strings.ToLower(strings.TrimSpace(input)) {
	case "exit", "/exit", "quit", ":q":
		return true
	default:
		return false
	}
}
