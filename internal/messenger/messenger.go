// Package messenger defines the channel abstraction the global bus relays
// events through, plus the pieces every transport shares.
//
// A [Messenger] represents one channel to one other execution context: the far
// end of an in-process [Pipe], a websocket peer, a mailbox directory shared
// with another process, or a Redis channel. Transports embed [Base] for
// handler registration and the shutdown lifecycle, and frame their traffic as
// JSON [Envelope] values.
package messenger

import (
	"sync"

	"github.com/google/uuid"

	"github.com/Iron-Ham/windowbus/internal/logging"
)

// ShutdownMessageType is the control message a transport sends to tell its
// peer that the channel is going away.
const ShutdownMessageType = "window_messenger_shutdown"

// Handler receives the body of an inbound message of a registered type.
type Handler func(body string)

// Messenger is a channel to one other execution context.
type Messenger interface {
	// ID identifies this channel locally. It must be non-empty and stable.
	ID() string
	// SendMessage delivers body to the far end under msgType. Delivery is
	// fire-and-forget; a nil error does not imply the peer handled it.
	SendMessage(msgType, body string) error
	// AddMessageHandler registers h for inbound messages of msgType.
	AddMessageHandler(msgType string, h Handler)
	// AddOnShutdown registers fn to run once when the channel shuts down.
	AddOnShutdown(fn func())
}

// NewID returns a unique messenger id with the given prefix.
func NewID(prefix string) string {
	return prefix + "-" + uuid.NewString()
}

// Base implements the handler registry and shutdown lifecycle of a Messenger.
// Transports embed it and supply SendMessage.
type Base struct {
	id     string
	logger *logging.Logger

	mu         sync.Mutex
	handlers   map[string][]Handler
	onShutdown []func()
	closed     bool
}

// NewBase creates a Base with the given id. A nil logger discards output.
func NewBase(id string, logger *logging.Logger) *Base {
	if logger == nil {
		logger = logging.NopLogger()
	}
	return &Base{
		id:       id,
		logger:   logger.WithMessenger(id),
		handlers: make(map[string][]Handler),
	}
}

// ID returns the messenger id.
func (b *Base) ID() string {
	return b.id
}

// Logger returns the messenger-scoped logger.
func (b *Base) Logger() *logging.Logger {
	return b.logger
}

// AddMessageHandler registers h for msgType. Handlers run in registration order.
func (b *Base) AddMessageHandler(msgType string, h Handler) {
	if h == nil {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers[msgType] = append(b.handlers[msgType], h)
}

// AddOnShutdown registers fn to run when Shutdown is called. If the
// messenger has already shut down, fn runs immediately.
func (b *Base) AddOnShutdown(fn func()) {
	if fn == nil {
		return
	}
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		fn()
		return
	}
	b.onShutdown = append(b.onShutdown, fn)
	b.mu.Unlock()
}

// Deliver dispatches an inbound message to the handlers for msgType and
// returns how many ran. Messages arriving after shutdown are dropped.
// A panicking handler is logged and does not stop the others.
func (b *Base) Deliver(msgType, body string) int {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return 0
	}
	handlers := make([]Handler, len(b.handlers[msgType]))
	copy(handlers, b.handlers[msgType])
	b.mu.Unlock()

	if len(handlers) == 0 {
		b.logger.Debug("no handler for message type", "type", msgType)
	}
	for _, h := range handlers {
		b.safeCall(msgType, h, body)
	}
	return len(handlers)
}

func (b *Base) safeCall(msgType string, h Handler, body string) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("message handler panicked", "type", msgType, "panic", r)
		}
	}()
	h(body)
}

// Shutdown marks the messenger closed and runs shutdown hooks in
// registration order. Only the first call has any effect; it returns true.
func (b *Base) Shutdown() bool {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return false
	}
	b.closed = true
	hooks := b.onShutdown
	b.onShutdown = nil
	b.handlers = make(map[string][]Handler)
	b.mu.Unlock()

	for _, fn := range hooks {
		fn()
	}
	b.logger.Debug("messenger shut down")
	return true
}

// Closed reports whether Shutdown has run.
func (b *Base) Closed() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.closed
}
