// Package monitor provides a live terminal view of the events passing through
// a global bus.
package monitor

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/Iron-Ham/windowbus/internal/globalbus"
)

// feedBuffer is the number of events held between the bus and the view.
const feedBuffer = 256

// Entry is one observed event.
type Entry struct {
	Name    string
	Payload string
	Time    time.Time
}

// Feed observes every event dispatched on a bus and queues it for a reader.
// When the queue is full new events are counted as dropped instead of
// blocking the dispatcher.
type Feed struct {
	bus      *globalbus.Bus
	listener *globalbus.AnyListener
	filter   map[string]bool
	events   chan Entry
	dropped  atomic.Uint64
	now      func() time.Time

	closeOnce sync.Once
	mu        sync.RWMutex
	closed    bool
}

// NewFeed starts observing bus. With names set, only those events are queued.
func NewFeed(bus *globalbus.Bus, names ...string) *Feed {
	f := &Feed{
		bus:    bus,
		events: make(chan Entry, feedBuffer),
		now:    time.Now,
	}
	if len(names) > 0 {
		f.filter = make(map[string]bool, len(names))
		for _, n := range names {
			f.filter[n] = true
		}
	}
	f.listener = globalbus.NewAnyListener(f.observe)
	bus.AddAnyListener(f.listener)
	return f
}

func (f *Feed) observe(name, payload string) {
	if f.filter != nil && !f.filter[name] {
		return
	}

	f.mu.RLock()
	defer f.mu.RUnlock()
	if f.closed {
		return
	}
	select {
	case f.events <- Entry{Name: name, Payload: payload, Time: f.now()}:
	default:
		f.dropped.Add(1)
	}
}

// Events returns the queue of observed events. It is closed by Close.
func (f *Feed) Events() <-chan Entry {
	return f.events
}

// Dropped returns how many events were discarded because the queue was full.
func (f *Feed) Dropped() uint64 {
	return f.dropped.Load()
}

// Close stops observing the bus and closes the Events channel.
func (f *Feed) Close() {
	f.closeOnce.Do(func() {
		f.bus.RemoveAnyListener(f.listener)
		f.mu.Lock()
		f.closed = true
		close(f.events)
		f.mu.Unlock()
	})
}
