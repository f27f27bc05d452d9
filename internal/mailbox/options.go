package mailbox

import (
	"time"

	"github.com/Iron-Ham/windowbus/internal/logging"
)

// Option configures a Messenger.
type Option func(*Messenger)

// WithPollInterval sets how often the inbox is re-read when no filesystem
// notification arrives. Zero or negative values are ignored.
func WithPollInterval(d time.Duration) Option {
	return func(m *Messenger) {
		if d > 0 {
			m.pollInterval = d
		}
	}
}

// WithLogger sets the logger for watcher and delivery diagnostics.
func WithLogger(l *logging.Logger) Option {
	return func(m *Messenger) {
		if l != nil {
			m.logger = l
		}
	}
}
