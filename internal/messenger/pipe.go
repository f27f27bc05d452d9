package messenger

import (
	"sync"

	"github.com/Iron-Ham/windowbus/internal/errors"
	"github.com/Iron-Ham/windowbus/internal/logging"
)

// pipeBuffer is the number of in-flight messages each direction can hold
// before SendMessage fails with ErrSendQueueFull.
const pipeBuffer = 256

// PipeEnd is one side of an in-process channel created by Pipe.
// Messages are delivered asynchronously on a dedicated goroutine, in the
// order they were sent.
type PipeEnd struct {
	*Base
	peer  *PipeEnd
	inbox chan Envelope
	done  chan struct{}
	once  *sync.Once
}

// Pipe creates two connected messengers. Closing either end shuts both down.
func Pipe(logger *logging.Logger) (*PipeEnd, *PipeEnd) {
	done := make(chan struct{})
	once := &sync.Once{}

	a := &PipeEnd{
		Base:  NewBase(NewID("pipe"), logger),
		inbox: make(chan Envelope, pipeBuffer),
		done:  done,
		once:  once,
	}
	b := &PipeEnd{
		Base:  NewBase(NewID("pipe"), logger),
		inbox: make(chan Envelope, pipeBuffer),
		done:  done,
		once:  once,
	}
	a.peer, b.peer = b, a

	go a.pump()
	go b.pump()
	return a, b
}

func (p *PipeEnd) pump() {
	for {
		select {
		case env := <-p.inbox:
			p.Deliver(env.Type, env.Body)
		case <-p.done:
			return
		}
	}
}

// SendMessage queues body for the other end. It never blocks: a full
// queue fails with ErrSendQueueFull.
func (p *PipeEnd) SendMessage(msgType, body string) error {
	select {
	case <-p.done:
		return errors.ErrMessengerClosed
	default:
	}

	select {
	case p.peer.inbox <- Envelope{Type: msgType, Body: body}:
		return nil
	default:
		return errors.ErrSendQueueFull
	}
}

// Close shuts down both ends. Messages still queued are dropped.
// It is safe to call from a message handler and more than once.
func (p *PipeEnd) Close() error {
	p.once.Do(func() {
		close(p.done)
		p.Shutdown()
		p.peer.Shutdown()
	})
	return nil
}
