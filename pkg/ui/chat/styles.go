package chat

import "github.com/charmbracelet/lipgloss"

// bubble is the title tag and body box for one transcript role.
type bubble struct {
	label string
	title lipgloss.Style
	box   lipgloss.Style
}

type theme struct {
	header     lipgloss.Style
	headerMeta lipgloss.Style
	divider    lipgloss.Style
	bootLine   lipgloss.Style
	bootDone   lipgloss.Style
	bubbles    map[string]bubble
	status     lipgloss.Style
	statusBusy lipgloss.Style
	statusErr  lipgloss.Style
	hint       lipgloss.Style
	inputLabel lipgloss.Style
	input      lipgloss.Style
	viewport   lipgloss.Style
}

func newBubble(label string, accent string, background string, border lipgloss.Border) bubble {
	return bubble{
		label: label,
		title: lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("16")).
			Background(lipgloss.Color(accent)).
			Padding(0, 1),
		box: lipgloss.NewStyle().
			Border(border).
			BorderForeground(lipgloss.Color(accent)).
			Background(lipgloss.Color(background)).
			Padding(0, 1),
	}
}

// bubbleFor falls back to the error bubble for unknown roles.
func (t theme) bubbleFor(role string) bubble {
	if b, ok := t.bubbles[role]; ok {
		return b
	}
	return t.bubbles[roleError]
}

// defaultTheme is a dark palette with one accent per transcript role.
func defaultTheme() theme {
	errorBubble := newBubble("[ ERROR ]", "160", "52", lipgloss.DoubleBorder())
	errorBubble.box = errorBubble.box.Foreground(lipgloss.Color("203"))

	return theme{
		header: lipgloss.NewStyle().
			Bold(true).
			Padding(0, 1).
			Foreground(lipgloss.Color("230")).
			Background(lipgloss.Color("24")),
		headerMeta: lipgloss.NewStyle().Foreground(lipgloss.Color("152")),
		divider:    lipgloss.NewStyle().Foreground(lipgloss.Color("31")),
		bootLine:   lipgloss.NewStyle().Foreground(lipgloss.Color("110")),
		bootDone:   lipgloss.NewStyle().Foreground(lipgloss.Color("114")).Bold(true),
		bubbles: map[string]bubble{
			roleUser:  newBubble("[ you ]", "214", "235", lipgloss.NormalBorder()),
			roleBot:   newBubble("[ bot ]", "44", "234", lipgloss.NormalBorder()),
			roleCard:  newBubble("[ card ]", "109", "236", lipgloss.RoundedBorder()),
			roleError: errorBubble,
		},
		status:     lipgloss.NewStyle().Foreground(lipgloss.Color("250")).Bold(true),
		statusBusy: lipgloss.NewStyle().Foreground(lipgloss.Color("222")).Bold(true),
		statusErr:  lipgloss.NewStyle().Foreground(lipgloss.Color("203")).Bold(true),
		hint:       lipgloss.NewStyle().Foreground(lipgloss.Color("244")),
		inputLabel: lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("229")),
		input: lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("31")).
			Background(lipgloss.Color("236")).
			Padding(0, 1),
		viewport: lipgloss.NewStyle().
			Border(lipgloss.ThickBorder()).
			BorderForeground(lipgloss.Color("24")).
			Background(lipgloss.Color("233")).
			Padding(0, 1),
	}
}
