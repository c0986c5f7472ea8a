package message

import (
	"encoding/json"
	"fmt"
	"math/rand"
	"reflect"
	"testing"

	"flowbridge/pkg/dialog"
)

func item(itemType string, payload string) dialog.RawItem {
	return dialog.RawItem{Type: itemType, Payload: json.RawMessage(payload)}
}

func slatePayload(blocks ...[]string) string {
	content := make([]map[string]any, 0, len(blocks))
	for _, block := range blocks {
		children := make([]map[string]any, 0, len(block))
		for _, text := range block {
			children = append(children, map[string]any{"text": text})
		}
		content = append(content, map[string]any{"children": children})
	}
	raw, _ := json.Marshal(map[string]any{"slate": map[string]any{"id": "x", "content": content}})
	return string(raw)
}

func choicePayload(labels ...string) string {
	buttons := make([]map[string]any, 0, len(labels))
	for _, label := range labels {
		buttons = append(buttons, map[string]any{
			"name":    label,
			"request": map[string]any{"type": "path-" + label, "payload": map[string]any{"label": label}},
		})
	}
	raw, _ := json.Marshal(map[string]any{"buttons": buttons})
	return string(raw)
}

func TestNormalize(t *testing.T) {
	tests := []struct {
		name  string
		items []dialog.RawItem
		want  []Message
	}{
		{
			name:  "text blocks join with newline",
			items: []dialog.RawItem{item("text", slatePayload([]string{"a", "b"}, []string{"c"}))},
			want:  []Message{Text{Value: "ab\nc"}},
		},
		{
			name:  "choice keeps button order",
			items: []dialog.RawItem{item("choice", choicePayload("Yes", "No"))},
			want:  []Message{ButtonSet{Buttons: []Button{{Label: "Yes"}, {Label: "No"}}}},
		},
		{
			name:  "unknown type is skipped",
			items: []dialog.RawItem{item("unknown", `{"anything":true}`)},
			want:  []Message{},
		},
		{
			name:  "visual becomes image",
			items: []dialog.RawItem{item("visual", `{"image":"http://x/y.png","visualType":"image"}`)},
			want:  []Message{Image{URL: "http://x/y.png"}},
		},
		{
			name:  "visual without image still emits",
			items: []dialog.RawItem{item("visual", `{}`)},
			want:  []Message{Image{URL: ""}},
		},
		{
			name:  "empty slate emits empty text",
			items: []dialog.RawItem{item("text", slatePayload())},
			want:  []Message{Text{Value: ""}},
		},
		{
			name:  "text without slate emits empty text",
			items: []dialog.RawItem{item("text", `{"message":"ignored"}`)},
			want:  []Message{Text{Value: ""}},
		},
		{
			name: "spans without text read as empty",
			items: []dialog.RawItem{item("text", `{"slate":{"content":[
				{"children":[{"text":"see "},{"type":"link","url":"http://x","children":[{"text":"here"}]},{"text":"!"}]},
				{"children":[{"text":null}]}
			]}}`)},
			want: []Message{Text{Value: "see !\n"}},
		},
		{
			name:  "choice without buttons emits empty set",
			items: []dialog.RawItem{item("choice", `{"buttons":[]}`)},
			want:  []Message{ButtonSet{Buttons: []Button{}}},
		},
		{
			name:  "button without label reads as empty",
			items: []dialog.RawItem{item("choice", `{"buttons":[{"name":"n","request":{"type":"intent"}}]}`)},
			want:  []Message{ButtonSet{Buttons: []Button{{Label: ""}}}},
		},
		{
			name:  "nil payload",
			items: []dialog.RawItem{{Type: "text"}},
			want:  []Message{Text{Value: ""}},
		},
		{
			name: "mixed batch keeps relative order",
			items: []dialog.RawItem{
				item("speak", `{}`),
				item("text", slatePayload([]string{"Hi there"})),
				item("path", `{"path":"choice:1"}`),
				item("visual", `{"image":"http://x/a.png"}`),
				item("choice", choicePayload("Order")),
				item("end", `{}`),
			},
			want: []Message{
				Text{Value: "Hi there"},
				Image{URL: "http://x/a.png"},
				ButtonSet{Buttons: []Button{{Label: "Order"}}},
			},
		},
		{
			name:  "empty batch",
			items: nil,
			want:  []Message{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Normalize(tt.items)
			if !reflect.DeepEqual(got, tt.want) {
				t.Fatalf("Normalize() = %#v, want %#v", got, tt.want)
			}
		})
	}
}

// TestNormalizePreservesOrder checks on random batches that the output is never
// longer than the input and that emitted messages follow their source order.
func TestNormalizePreservesOrder(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	types := []string{"text", "visual", "choice", "speak", "path", "end", ""}

	for round := 0; round < 200; round++ {
		n := rng.Intn(12)
		items := make([]dialog.RawItem, 0, n)
		var want []string
		for i := 0; i < n; i++ {
			tag := fmt.Sprintf("m%d", i)
			switch itemType := types[rng.Intn(len(types))]; itemType {
			case "text":
				items = append(items, item("text", slatePayload([]string{tag})))
				want = append(want, tag)
			case "visual":
				items = append(items, item("visual", fmt.Sprintf(`{"image":%q}`, tag)))
				want = append(want, tag)
			case "choice":
				items = append(items, item("choice", choicePayload(tag)))
				want = append(want, tag)
			default:
				items = append(items, item(itemType, `{}`))
			}
		}

		got := Normalize(items)
		if len(got) > len(items) {
			t.Fatalf("round %d: output length %d exceeds input %d", round, len(got), len(items))
		}

		tags := make([]string, 0, len(got))
		for _, msg := range got {
			switch typed := msg.(type) {
			case Text:
				tags = append(tags, typed.Value)
			case Image:
				tags = append(tags, typed.URL)
			case ButtonSet:
				tags = append(tags, typed.Buttons[0].Label)
			}
		}
		if !reflect.DeepEqual(tags, append([]string{}, want...)) {
			t.Fatalf("round %d: order = %v, want %v", round, tags, want)
		}
	}
}

func TestButtonSetLabels(t *testing.T) {
	set := ButtonSet{Buttons: []Button{{Label: "Yes"}, {Label: "No"}}}
	if got := set.Labels(); !reflect.DeepEqual(got, []string{"Yes", "No"}) {
		t.Fatalf("Labels() = %v", got)
	}
	if got := (ButtonSet{}).Labels(); len(got) != 0 {
		t.Fatalf("Labels() on empty set = %v", got)
	}
}
