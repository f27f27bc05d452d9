// Package busclient gives a component scoped access to the global bus.
//
// A component holds a [Client] instead of talking to the bus directly. Every
// listener it subscribes is recorded, and [Client.UnsubscribeAll] removes all
// of them when the component is torn down, so a component cannot leak
// subscriptions past its own lifetime.
//
//	var td lifecycle.Teardown
//	c := busclient.Attach(&td, bus)
//	_ = c.Subscribe("cart.updated", globalbus.NewListener(render))
//	...
//	_ = td.Run() // removes every listener c subscribed
package busclient

import (
	"sync"

	"github.com/Iron-Ham/windowbus/internal/errors"
	"github.com/Iron-Ham/windowbus/internal/globalbus"
	"github.com/Iron-Ham/windowbus/internal/lifecycle"
)

// Bus is the subset of the global bus a Client uses. *globalbus.Bus satisfies it.
type Bus interface {
	Dispatch(eventName string, payload any)
	AddListener(eventName string, l *globalbus.Listener)
	RemoveListener(eventName string, l *globalbus.Listener)
}

type subscription struct {
	name     string
	listener *globalbus.Listener
}

// Client dispatches and subscribes on behalf of one component.
// It is safe for concurrent use.
type Client struct {
	bus Bus

	mu      sync.Mutex
	history []subscription
	closed  bool
}

// New creates a Client bound to bus.
func New(bus Bus) *Client {
	return &Client{bus: bus}
}

// Attach creates a Client and registers its cleanup on td, so td.Run
// unsubscribes everything the client subscribed.
func Attach(td *lifecycle.Teardown, bus Bus) *Client {
	c := New(bus)
	td.Defer(c.UnsubscribeAll)
	return c
}

// Dispatch forwards to the bus. Dispatching stays allowed after teardown.
func (c *Client) Dispatch(eventName string, payload any) {
	c.bus.Dispatch(eventName, payload)
}

// Subscribe registers l on the bus and records it for cleanup.
// It returns ErrClientClosed once the client has been torn down.
func (c *Client) Subscribe(eventName string, l *globalbus.Listener) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return errors.ErrClientClosed
	}
	c.bus.AddListener(eventName, l)
	c.history = append(c.history, subscription{name: eventName, listener: l})
	return nil
}

// Unsubscribe removes one registration of l from the bus. The cleanup
// history is left alone; removing an already removed listener at teardown
// is a no-op.
func (c *Client) Unsubscribe(eventName string, l *globalbus.Listener) {
	c.bus.RemoveListener(eventName, l)
}

// UnsubscribeAll removes every recorded subscription, most recent first,
// and closes the client. Later calls do nothing.
func (c *Client) UnsubscribeAll() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	history := c.history
	c.history = nil
	c.mu.Unlock()

	for i := len(history) - 1; i >= 0; i-- {
		c.Unsubscribe(history[i].name, history[i].listener)
	}
}

// Active reports whether the client has not been torn down yet.
func (c *Client) Active() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return !c.closed
}

// HistoryLen returns the number of subscriptions awaiting cleanup.
func (c *Client) HistoryLen() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.history)
}
