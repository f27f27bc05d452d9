// Package emitter provides a synchronous named-event emitter.
//
// Listeners are registered under an event name and invoked, in registration
// order, every time that name is emitted. Listener identity is the pointer
// returned by [NewListener], so the same callback can be registered several
// times and each registration is removed independently.
//
//	em := emitter.New[string]()
//	l := emitter.NewListener(func(p string) { fmt.Println(p) })
//	em.On("cart.updated", l)
//	em.Emit("cart.updated", "3 items")
//	em.RemoveListener("cart.updated", l)
//
// Emit copies the listener list under a read lock and runs the copy without
// holding any lock, so listeners may emit, subscribe or unsubscribe freely.
// A panicking listener is recovered and reported through the panic handler;
// the remaining listeners still run.
package emitter

import (
	"runtime/debug"
	"sort"
	"sync"
)

// Listener is a registered callback for a single event name.
type Listener[T any] struct {
	fn func(T)
}

// NewListener wraps fn in a Listener handle.
func NewListener[T any](fn func(T)) *Listener[T] {
	return &Listener[T]{fn: fn}
}

// AnyListener is a callback invoked for every emitted event.
type AnyListener[T any] struct {
	fn func(name string, v T)
}

// NewAnyListener wraps fn in an AnyListener handle.
func NewAnyListener[T any](fn func(name string, v T)) *AnyListener[T] {
	return &AnyListener[T]{fn: fn}
}

// PanicHandler receives panics recovered from listeners.
type PanicHandler func(eventName string, recovered any, stack []byte)

// Emitter is a synchronous pub-sub emitter keyed by event name.
// It is safe for concurrent use.
type Emitter[T any] struct {
	mu        sync.RWMutex
	listeners map[string][]*Listener[T]
	wildcard  []*AnyListener[T]
	onPanic   PanicHandler
}

// New creates an empty Emitter.
func New[T any]() *Emitter[T] {
	return &Emitter[T]{
		listeners: make(map[string][]*Listener[T]),
	}
}

// SetPanicHandler installs the callback used to report listener panics.
// A nil handler silently swallows them.
func (e *Emitter[T]) SetPanicHandler(h PanicHandler) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.onPanic = h
}

// On registers l for name. Registering the same listener twice makes it fire twice.
func (e *Emitter[T]) On(name string, l *Listener[T]) {
	if l == nil {
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.listeners[name] = append(e.listeners[name], l)
}

// RemoveListener removes the most recent registration of l under name.
// Returns false if l was not registered for name.
func (e *Emitter[T]) RemoveListener(name string, l *Listener[T]) bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	subs := e.listeners[name]
	for i := len(subs) - 1; i >= 0; i-- {
		if subs[i] != l {
			continue
		}
		next := make([]*Listener[T], 0, len(subs)-1)
		next = append(next, subs[:i]...)
		next = append(next, subs[i+1:]...)
		if len(next) == 0 {
			delete(e.listeners, name)
		} else {
			e.listeners[name] = next
		}
		return true
	}
	return false
}

// OnAny registers l for every event name.
func (e *Emitter[T]) OnAny(l *AnyListener[T]) {
	if l == nil {
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.wildcard = append(e.wildcard, l)
}

// RemoveAnyListener removes the most recent wildcard registration of l.
func (e *Emitter[T]) RemoveAnyListener(l *AnyListener[T]) bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	for i := len(e.wildcard) - 1; i >= 0; i-- {
		if e.wildcard[i] != l {
			continue
		}
		next := make([]*AnyListener[T], 0, len(e.wildcard)-1)
		next = append(next, e.wildcard[:i]...)
		e.wildcard = append(next, e.wildcard[i+1:]...)
		return true
	}
	return false
}

// Emit invokes every listener registered for name, followed by wildcard
// listeners, and returns the number of listeners invoked.
func (e *Emitter[T]) Emit(name string, v T) int {
	e.mu.RLock()
	specific := make([]*Listener[T], len(e.listeners[name]))
	copy(specific, e.listeners[name])
	wildcard := make([]*AnyListener[T], len(e.wildcard))
	copy(wildcard, e.wildcard)
	onPanic := e.onPanic
	e.mu.RUnlock()

	for _, l := range specific {
		safeCall(name, onPanic, func() { l.fn(v) })
	}
	for _, l := range wildcard {
		safeCall(name, onPanic, func() { l.fn(name, v) })
	}
	return len(specific) + len(wildcard)
}

func safeCall(name string, onPanic PanicHandler, fn func()) {
	defer func() {
		if r := recover(); r != nil && onPanic != nil {
			onPanic(name, r, debug.Stack())
		}
	}()
	fn()
}

// ListenerCount returns the number of registrations for name.
func (e *Emitter[T]) ListenerCount(name string) int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.listeners[name])
}

// EventNames returns the sorted names that currently have listeners.
func (e *Emitter[T]) EventNames() []string {
	e.mu.RLock()
	defer e.mu.RUnlock()

	names := make([]string, 0, len(e.listeners))
	for name := range e.listeners {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// SubscriptionCount returns the total number of registrations, wildcard included.
func (e *Emitter[T]) SubscriptionCount() int {
	e.mu.RLock()
	defer e.mu.RUnlock()

	count := len(e.wildcard)
	for _, subs := range e.listeners {
		count += len(subs)
	}
	return count
}

// Clear removes all registrations.
func (e *Emitter[T]) Clear() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.listeners = make(map[string][]*Listener[T])
	e.wildcard = nil
}
