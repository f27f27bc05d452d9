// Package lifecycle provides a cleanup stack for components that acquire
// resources during setup and must release them, in reverse order, when torn
// down.
package lifecycle

import (
	"fmt"
	"runtime/debug"
	"sync"

	"github.com/Iron-Ham/windowbus/internal/errors"
)

// Teardown is a LIFO stack of cleanup functions that runs exactly once.
// The zero value is ready to use.
type Teardown struct {
	mu    sync.Mutex
	stack []func()
	done  bool
}

// Defer pushes fn onto the stack. If Run has already happened, fn runs
// immediately so late registrations are never leaked.
func (t *Teardown) Defer(fn func()) {
	if fn == nil {
		return
	}
	t.mu.Lock()
	if t.done {
		t.mu.Unlock()
		fn()
		return
	}
	t.stack = append(t.stack, fn)
	t.mu.Unlock()
}

// Run pops and invokes every registered function, most recent first.
// A panicking cleanup does not prevent the rest from running; recovered
// panics are returned joined. Calls after the first return nil.
func (t *Teardown) Run() error {
	t.mu.Lock()
	if t.done {
		t.mu.Unlock()
		return nil
	}
	t.done = true
	stack := t.stack
	t.stack = nil
	t.mu.Unlock()

	var errs []error
	for i := len(stack) - 1; i >= 0; i-- {
		if err := call(stack[i]); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Done reports whether Run has been called.
func (t *Teardown) Done() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.done
}

// Len returns the number of pending cleanups.
func (t *Teardown) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.stack)
}

func call(fn func()) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("cleanup panicked: %v\n%s", r, debug.Stack())
		}
	}()
	fn()
	return nil
}
