package mailbox

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/Iron-Ham/windowbus/internal/errors"
	"github.com/Iron-Ham/windowbus/internal/logging"
	"github.com/Iron-Ham/windowbus/internal/messenger"
)

const (
	// defaultPollInterval is the fallback re-read interval when no
	// filesystem notification arrives.
	defaultPollInterval = 500 * time.Millisecond

	// maxWatchErrors is the number of consecutive read errors before the
	// watcher logs at error level.
	maxWatchErrors = 5

	shutdownType = messenger.ShutdownMessageType
)

// Messenger is a messenger.Messenger between two processes that share a
// directory. It writes to the peer's inbox and watches its own, delivering
// only messages the peer sent after Open.
type Messenger struct {
	*messenger.Base

	store        *Store
	self         string
	peer         string
	pollInterval time.Duration
	logger       *logging.Logger

	watcher *fsnotify.Watcher
	offset  int64

	stopCh    chan struct{}
	stopOnce  sync.Once
	closeOnce sync.Once
	wg        sync.WaitGroup
}

// Open starts a messenger for self talking to peer through the inboxes under
// dir. Messages already in self's inbox are skipped.
func Open(dir, self, peer string, opts ...Option) (*Messenger, error) {
	if self == "" || peer == "" {
		return nil, fmt.Errorf("mailbox: self and peer names are required")
	}
	if self == peer {
		return nil, fmt.Errorf("mailbox: self and peer must differ, both are %q", self)
	}

	m := &Messenger{
		store:        NewStore(dir),
		self:         self,
		peer:         peer,
		pollInterval: defaultPollInterval,
		logger:       logging.NopLogger(),
		stopCh:       make(chan struct{}),
	}
	for _, opt := range opts {
		opt(m)
	}
	m.Base = messenger.NewBase(messenger.NewID("mailbox-"+peer), m.logger)

	inbox := m.store.InboxDir(self)
	if err := os.MkdirAll(inbox, 0o755); err != nil {
		return nil, fmt.Errorf("mailbox: create inbox: %w", err)
	}

	_, offset, err := m.store.ReadFrom(self, 0)
	if err != nil {
		return nil, err
	}
	m.offset = offset

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		m.Logger().Warn("file watcher unavailable, falling back to polling", "error", err)
	} else if err := watcher.Add(inbox); err != nil {
		_ = watcher.Close()
		m.Logger().Warn("failed to watch inbox, falling back to polling", "dir", inbox, "error", err)
	} else {
		m.watcher = watcher
	}

	m.wg.Add(1)
	go m.watchLoop()

	m.Logger().Debug("mailbox opened", "self", self, "peer", peer, "dir", dir)
	return m, nil
}

// Self returns the local inbox name.
func (m *Messenger) Self() string {
	return m.self
}

// Peer returns the name of the process on the other end.
func (m *Messenger) Peer() string {
	return m.peer
}

// SendMessage appends a message to the peer's inbox.
func (m *Messenger) SendMessage(msgType, body string) error {
	if m.Closed() {
		return errors.ErrMessengerClosed
	}
	return m.store.Send(Message{
		From: m.self,
		To:   m.peer,
		Type: msgType,
		Body: body,
	})
}

// Close tells the peer this side is going away, stops watching and runs
// shutdown hooks. It must not be called from a message handler.
func (m *Messenger) Close() error {
	var err error
	m.closeOnce.Do(func() {
		if !m.Closed() {
			if sendErr := m.store.Send(Message{From: m.self, To: m.peer, Type: shutdownType}); sendErr != nil {
				err = fmt.Errorf("mailbox: send shutdown notice: %w", sendErr)
			}
		}
		m.stop()
		m.wg.Wait()
		m.Shutdown()
	})
	return err
}

func (m *Messenger) stop() {
	m.stopOnce.Do(func() {
		close(m.stopCh)
		if m.watcher != nil {
			_ = m.watcher.Close()
		}
	})
}

// watchLoop re-reads the inbox on every filesystem notification for the
// index file and on every poll tick.
func (m *Messenger) watchLoop() {
	defer m.wg.Done()

	ticker := time.NewTicker(m.pollInterval)
	defer ticker.Stop()

	var events <-chan fsnotify.Event
	var watchErrs <-chan error
	if m.watcher != nil {
		events = m.watcher.Events
		watchErrs = m.watcher.Errors
	}

	consecutiveErrors := 0
	for {
		select {
		case <-m.stopCh:
			return

		case event, ok := <-events:
			if !ok {
				events = nil
				continue
			}
			if filepath.Base(event.Name) != indexFile {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			if !m.poll(&consecutiveErrors) {
				return
			}

		case <-ticker.C:
			if !m.poll(&consecutiveErrors) {
				return
			}

		case err, ok := <-watchErrs:
			if !ok {
				watchErrs = nil
				continue
			}
			m.Logger().Warn("inbox watcher error", "error", err)
		}
	}
}

// poll delivers new messages from the peer. It returns false once the peer
// has shut down.
func (m *Messenger) poll(consecutiveErrors *int) bool {
	messages, offset, err := m.store.ReadFrom(m.self, m.offset)
	m.offset = offset
	if err != nil {
		*consecutiveErrors++
		if *consecutiveErrors >= maxWatchErrors {
			m.Logger().Error("inbox read keeps failing", "inbox", m.self, "error", err)
			*consecutiveErrors = 0
		}
		return true
	}
	*consecutiveErrors = 0

	for _, msg := range messages {
		if msg.From != m.peer {
			continue
		}
		if msg.IsShutdown() {
			m.Logger().Debug("peer shut down", "peer", m.peer)
			m.stop()
			m.Shutdown()
			return false
		}
		m.Deliver(msg.Type, msg.Body)
	}
	return true
}
