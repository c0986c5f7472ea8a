package botframework

// Activity types the adapter reads or writes.
const (
	ActivityMessage = "message"
	ActivityTrace   = "trace"
)

const (
	heroCardContentType = "application/vnd.microsoft.card.hero"
	actionIMBack        = "imBack"
	emulatorChannelID   = "emulator"
)

// Activity is the subset of the Bot Framework activity schema the bridge uses.
type Activity struct {
	Type         string               `json:"type"`
	ID           string               `json:"id,omitempty"`
	Timestamp    string               `json:"timestamp,omitempty"`
	ChannelID    string               `json:"channelId,omitempty"`
	ServiceURL   string               `json:"serviceUrl,omitempty"`
	From         *ChannelAccount      `json:"from,omitempty"`
	Recipient    *ChannelAccount      `json:"recipient,omitempty"`
	Conversation *ConversationAccount `json:"conversation,omitempty"`
	ReplyToID    string               `json:"replyToId,omitempty"`
	Text         string               `json:"text"`
	Locale       string               `json:"locale,omitempty"`
	Attachments  []Attachment         `json:"attachments,omitempty"`

	// Trace fields
	Name      string `json:"name,omitempty"`
	Label     string `json:"label,omitempty"`
	ValueType string `json:"valueType,omitempty"`
	Value     any    `json:"value,omitempty"`
}

type ChannelAccount struct {
	ID   string `json:"id"`
	Name string `json:"name,omitempty"`
	Role string `json:"role,omitempty"`
}

type ConversationAccount struct {
	ID      string `json:"id"`
	Name    string `json:"name,omitempty"`
	IsGroup bool   `json:"isGroup,omitempty"`
}

type Attachment struct {
	ContentType string `json:"contentType"`
	Content     any    `json:"content"`
}

type HeroCard struct {
	Title   string       `json:"title"`
	Images  []CardImage  `json:"images"`
	Buttons []CardAction `json:"buttons"`
}

type CardImage struct {
	URL string `json:"url"`
}

type CardAction struct {
	Type  string `json:"type"`
	Title string `json:"title"`
	Value string `json:"value"`
}

// heroCard builds a hero card whose buttons post their label back as the
// next user message.
func heroCard(title string, images []string, buttons []string) Attachment {
	card := HeroCard{
		Title:   title,
		Images:  make([]CardImage, 0, len(images)),
		Buttons: make([]CardAction, 0, len(buttons)),
	}
	for _, url := range images {
		card.Images = append(card.Images, CardImage{URL: url})
	}
	for _, label := range buttons {
		card.Buttons = append(card.Buttons, CardAction{Type: actionIMBack, Title: label, Value: label})
	}
	return Attachment{ContentType: heroCardContentType, Content: card}
}
