package webapi

// MessageType is the severity of a MessageItem.
type MessageType string

// Message severities.
const (
	MessageInfo    MessageType = "info"
	MessageWarning MessageType = "warning"
	MessageError   MessageType = "error"
)

// MessageItem is a single message, optionally bound to a property.
type MessageItem struct {
	Type     MessageType `json:"type"`
	Text     string      `json:"text"`
	Property string      `json:"property,omitempty"`
}

// MessageItems is the list carried in the x-messages header.
type MessageItems []MessageItem

// Add appends a message.
func (m *MessageItems) Add(t MessageType, property, text string) {
	*m = append(*m, MessageItem{Type: t, Text: text, Property: property})
}

// HasErrors reports whether any item has MessageError severity.
func (m MessageItems) HasErrors() bool {
	for _, item := range m {
		if item.Type == MessageError {
			return true
		}
	}
	return false
}

// ByProperty groups the message texts by property. Messages without a
// property are grouped under "".
func (m MessageItems) ByProperty() map[string][]string {
	if len(m) == 0 {
		return nil
	}
	out := make(map[string][]string)
	for _, item := range m {
		out[item.Property] = append(out[item.Property], item.Text)
	}
	return out
}
