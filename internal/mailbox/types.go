package mailbox

import "time"

// Message is one line of a recipient's inbox.
type Message struct {
	ID        string         `json:"id"`
	From      string         `json:"from"`
	To        string         `json:"to"`
	Type      string         `json:"type"`
	Body      string         `json:"body"`
	Timestamp time.Time      `json:"timestamp"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

// IsShutdown reports whether the message is a peer's shutdown notice.
func (m Message) IsShutdown() bool {
	return m.Type == shutdownType
}
