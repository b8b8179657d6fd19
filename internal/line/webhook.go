package line

import (
	"encoding/json"
	"fmt"
	"time"
)

// Webhook is the body of a webhook delivery. One delivery can batch several
// events; only text-message events matter to the relay.
type Webhook struct {
	Destination string  `json:"destination"`
	Events      []Event `json:"events"`
}

// Event is a single webhook event.
type Event struct {
	Type       string   `json:"type"`
	Timestamp  int64    `json:"timestamp"` // unix milliseconds
	ReplyToken string   `json:"replyToken"`
	Source     *Source  `json:"source"`
	Message    *Message `json:"message"`
}

// Source identifies the event originator.
type Source struct {
	Type    string `json:"type"`
	UserID  string `json:"userId"`
	GroupID string `json:"groupId"`
}

// Message is the message payload of a message event.
type Message struct {
	ID   string `json:"id"`
	Type string `json:"type"`
	Text string `json:"text"`
}

// IsTextMessage reports whether the event is a text message the relay should
// look at. Stickers, images, follows and the rest are ignored.
func (e Event) IsTextMessage() bool {
	return e.Type == "message" && e.Message != nil && e.Message.Type == "text"
}

// When returns the event timestamp as a time.Time.
func (e Event) When() time.Time {
	return time.UnixMilli(e.Timestamp)
}

// ParseWebhook decodes a webhook body.
func ParseWebhook(body []byte) (*Webhook, error) {
	var w Webhook
	if err := json.Unmarshal(body, &w); err != nil {
		return nil, fmt.Errorf("failed to parse webhook body: %w", err)
	}
	return &w, nil
}
