package llm

// Role identifies the author of a history message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Part is one piece of a message's content. The set is closed: plain text or
// an object carrying a text field.
type Part interface{ isPart() }

// TextPart is a plain string content part.
type TextPart string

func (TextPart) isPart() {}

// ObjectPart is a structured content part with a text field.
type ObjectPart struct {
	Text string
}

func (ObjectPart) isPart() {}

// Message is one entry in a conversation history.
type Message struct {
	Role  Role
	Parts []Part
}

// UserText returns a user message with a single text part.
func UserText(text string) Message {
	return Message{Role: RoleUser, Parts: []Part{TextPart(text)}}
}

// AssistantText returns an assistant message with a single text part.
func AssistantText(text string) Message {
	return Message{Role: RoleAssistant, Parts: []Part{TextPart(text)}}
}

// History is the ordered conversation context handed to Chat.
type History struct {
	Messages []Message
}

// Append adds a message and returns the history for chaining.
func (h *History) Append(msg Message) *History {
	h.Messages = append(h.Messages, msg)
	return h
}

// LatestUserText extracts the text of the most recent user message, scanning
// from the end backwards. Within a message the first text-bearing part wins.
// Messages whose extracted text is empty are skipped in favor of earlier ones.
// Returns "" when nothing is found; never a placeholder.
func LatestUserText(h History) string {
	for i := len(h.Messages) - 1; i >= 0; i-- {
		msg := h.Messages[i]
		if msg.Role != RoleUser {
			continue
		}
		if text := firstPartText(msg.Parts); text != "" {
			return text
		}
	}
	return ""
}

func firstPartText(parts []Part) string {
	for _, part := range parts {
		switch p := part.(type) {
		case TextPart:
			return string(p)
		case ObjectPart:
			return p.Text
		}
	}
	return ""
}
