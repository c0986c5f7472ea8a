// Package message holds the canonical outbound content model and the
// normalizer that builds it from dialogue runtime responses.
package message

// Kind names a Message variant.
type Kind string

const (
	KindText    Kind = "text"
	KindImage   Kind = "image"
	KindButtons Kind = "buttons"
)

// Message is one unit of outbound content. The variant set is closed:
// Text, Image and ButtonSet.
type Message interface {
	Kind() Kind
	isMessage()
}

// Text is a plain text message, sent verbatim even when empty.
type Text struct {
	Value string
}

// Image references one picture by URL.
type Image struct {
	URL string
}

// Button is one selectable option. Its label doubles as the utterance sent
// back when the user picks it.
type Button struct {
	Label string
}

// ButtonSet is an ordered group of buttons. It may be empty.
type ButtonSet struct {
	Buttons []Button
}

func (Text) Kind() Kind      { return KindText }
func (Image) Kind() Kind     { return KindImage }
func (ButtonSet) Kind() Kind { return KindButtons }

func (Text) isMessage()      {}
func (Image) isMessage()     {}
func (ButtonSet) isMessage() {}

// Labels returns the button labels in order.
func (s ButtonSet) Labels() []string {
	labels := make([]string, 0, len(s.Buttons))
	for _, button := range s.Buttons {
		labels = append(labels, button.Label)
	}
	return labels
}
