package message

import (
	"strings"

	"flowbridge/pkg/dialog"

	"github.com/tidwall/gjson"
)

// Runtime item discriminants the normalizer understands.
const (
	itemText   = "text"
	itemVisual = "visual"
	itemChoice = "choice"
)

// Normalize maps a runtime response batch to messages, keeping order. Every
// item yields at most one message; unknown item types are skipped. Missing
// payload fields read as empty values, so Normalize never fails.
func Normalize(items []dialog.RawItem) []Message {
	messages := make([]Message, 0, len(items))
	for _, item := range items {
		switch item.Type {
		case itemText:
			messages = append(messages, Text{Value: slateText(item.Payload)})
		case itemVisual:
			messages = append(messages, Image{URL: gjson.GetBytes(item.Payload, "image").String()})
		case itemChoice:
			messages = append(messages, ButtonSet{Buttons: choiceButtons(item.Payload)})
		}
	}
	return messages
}

// slateText flattens a slate document: spans concatenate within a block,
// blocks join with newlines.
func slateText(payload []byte) string {
	blocks := gjson.GetBytes(payload, "slate.content").Array()
	lines := make([]string, 0, len(blocks))
	for _, block := range blocks {
		var line strings.Builder
		for _, span := range block.Get("children").Array() {
			line.WriteString(span.Get("text").String())
		}
		lines = append(lines, line.String())
	}
	return strings.Join(lines, "\n")
}

func choiceButtons(payload []byte) []Button {
	raw := gjson.GetBytes(payload, "buttons").Array()
	buttons := make([]Button, 0, len(raw))
	for _, button := range raw {
		buttons = append(buttons, Button{Label: button.Get("request.payload.label").String()})
	}
	return buttons
}
