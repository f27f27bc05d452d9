// Package globalbus implements the process-wide event bus shared by every
// component of a node, and the relay that carries its events to other
// execution contexts.
//
// A Bus is an explicit context object: build one at startup with [New] and
// hand it to whatever needs it. Dispatch runs local listeners synchronously,
// in registration order, then forwards the event to every connected
// messenger. An event that arrives through a messenger is dispatched locally
// and forwarded to every other messenger, never back to the one it came from,
// so two nodes connected to each other cannot ping-pong an event.
//
//	bus := globalbus.New(globalbus.WithLogger(logger))
//	bus.AddListener("cart.updated", globalbus.NewListener(func(p string) {
//		fmt.Println("cart:", p)
//	}))
//	if err := bus.Connect(conn); err != nil {
//		return err
//	}
//	bus.Dispatch("cart.updated", "3")
package globalbus

import (
	"fmt"

	"github.com/Iron-Ham/windowbus/internal/emitter"
	"github.com/Iron-Ham/windowbus/internal/logging"
	"github.com/Iron-Ham/windowbus/internal/messenger"
)

// InvalidPayloadMessage is logged when Dispatch receives a non-string payload.
const InvalidPayloadMessage = "[globalEventBus]: dispatchGlobalEvent API supports only string datatype for payload param."

// Logger is the logging capability the bus needs. *logging.Logger satisfies it.
type Logger interface {
	Debug(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// Listener is a bus subscription handle. Removal matches by handle, not by
// function value.
type Listener = emitter.Listener[string]

// NewListener wraps fn in a Listener handle.
func NewListener(fn func(payload string)) *Listener {
	return emitter.NewListener(fn)
}

// AnyListener observes every event the bus dispatches locally.
type AnyListener = emitter.AnyListener[string]

// NewAnyListener wraps fn in an AnyListener handle.
func NewAnyListener(fn func(eventName, payload string)) *AnyListener {
	return emitter.NewAnyListener(fn)
}

// Option configures a Bus.
type Option func(*Bus)

// WithLogger sets the logger used for invalid payloads, relay failures and
// listener panics.
func WithLogger(l Logger) Option {
	return func(b *Bus) {
		if l != nil {
			b.logger = l
		}
	}
}

// Bus is the global event bus. It is safe for concurrent use.
type Bus struct {
	emitter *emitter.Emitter[string]
	relay   *Relay
	logger  Logger
}

// New creates a Bus with no listeners and no connected messengers.
func New(opts ...Option) *Bus {
	b := &Bus{
		emitter: emitter.New[string](),
		logger:  logging.NopLogger(),
	}
	for _, opt := range opts {
		opt(b)
	}

	b.relay = newRelay(b.dispatchFromRelay, b.logger)
	b.emitter.SetPanicHandler(func(eventName string, recovered any, stack []byte) {
		b.logger.Error("event listener panicked",
			"event", eventName,
			"panic", fmt.Sprint(recovered),
			"stack", string(stack))
	})
	return b
}

// AddListener registers l for eventName. Each registration fires
// independently, so adding the same handle twice delivers twice.
func (b *Bus) AddListener(eventName string, l *Listener) {
	b.emitter.On(eventName, l)
}

// RemoveListener removes one registration of l for eventName. Removing a
// listener that is not registered is a no-op.
func (b *Bus) RemoveListener(eventName string, l *Listener) {
	b.emitter.RemoveListener(eventName, l)
}

// AddAnyListener registers an observer for every locally dispatched event,
// including events that arrived through a messenger.
func (b *Bus) AddAnyListener(l *AnyListener) {
	b.emitter.OnAny(l)
}

// RemoveAnyListener removes one registration of l.
func (b *Bus) RemoveAnyListener(l *AnyListener) {
	b.emitter.RemoveAnyListener(l)
}

// Dispatch delivers payload to the listeners of eventName and forwards it to
// every connected messenger. Only string payloads are accepted; anything else
// is logged and dropped without side effects.
func (b *Bus) Dispatch(eventName string, payload any) {
	s, ok := payload.(string)
	if !ok {
		b.logger.Error(InvalidPayloadMessage)
		return
	}
	b.dispatch(eventName, s, "")
}

// dispatchFromRelay re-dispatches an event received from the messenger
// originID. The payload was validated by the sender.
func (b *Bus) dispatchFromRelay(eventName, payload, originID string) {
	b.dispatch(eventName, payload, originID)
}

func (b *Bus) dispatch(eventName, payload, originID string) {
	b.emitter.Emit(eventName, payload)
	b.relay.Forward(eventName, payload, originID)
}

// Connect attaches m to the bus so local dispatches reach it and events it
// delivers are dispatched locally. Connecting the same messenger twice is a
// no-op. The messenger is detached automatically when it shuts down.
func (b *Bus) Connect(m messenger.Messenger) error {
	return b.relay.Connect(m)
}

// Messengers returns the connected messengers in connect order.
func (b *Bus) Messengers() []messenger.Messenger {
	return b.relay.Messengers()
}

// ListenerCount returns the number of registrations for eventName.
func (b *Bus) ListenerCount(eventName string) int {
	return b.emitter.ListenerCount(eventName)
}

// EventNames returns the sorted event names that currently have listeners.
func (b *Bus) EventNames() []string {
	return b.emitter.EventNames()
}
