package mailbox

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"
)

const (
	// mailboxDir is the directory name within the shared directory that holds inboxes.
	mailboxDir = "mailbox"

	// indexFile is the append-only JSONL file within each inbox directory.
	indexFile = "index.jsonl"
)

// Store provides file-based inbox storage with atomic appends.
// Messages are persisted as JSONL (one JSON object per line) in an append-only log.
type Store struct {
	dir string
	mu  sync.Mutex
}

// NewStore creates a Store rooted at dir.
// The directory structure is created lazily on first write.
func NewStore(dir string) *Store {
	return &Store{dir: dir}
}

// Send appends msg to the recipient's inbox.
// If msg.ID is empty, a unique ID is generated. If msg.Timestamp is zero, the
// current time is used. Writes are serialized via a mutex and use O_APPEND.
func (s *Store) Send(msg Message) error {
	if msg.From == "" {
		return fmt.Errorf("mailbox: message From field is required")
	}
	if msg.To == "" {
		return fmt.Errorf("mailbox: message To field is required")
	}
	if msg.Type == "" {
		return fmt.Errorf("mailbox: message Type field is required")
	}

	if msg.ID == "" {
		msg.ID = generateID()
	}
	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now()
	}

	dir := s.inboxDir(msg.To)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("mailbox: create directory: %w", err)
	}

	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("mailbox: marshal message: %w", err)
	}
	data = append(data, '\n')

	return s.atomicAppend(filepath.Join(dir, indexFile), data)
}

// ReadAll returns every message in the recipient's inbox.
func (s *Store) ReadAll(recipient string) ([]Message, error) {
	messages, _, err := s.ReadFrom(recipient, 0)
	return messages, err
}

// ReadFrom returns the messages appended to the recipient's inbox after byte
// offset, plus the offset to resume from. Only complete lines are consumed,
// so a line being written concurrently is picked up by the next call.
// Malformed lines are skipped. A missing inbox yields no messages and offset 0.
// If the inbox is shorter than offset it was truncated, and reading restarts
// from the beginning.
func (s *Store) ReadFrom(recipient string, offset int64) ([]Message, int64, error) {
	if recipient == "" {
		return nil, offset, fmt.Errorf("mailbox: recipient is required")
	}

	f, err := os.Open(filepath.Join(s.inboxDir(recipient), indexFile))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, 0, nil
		}
		return nil, offset, fmt.Errorf("mailbox: open index: %w", err)
	}
	defer func() { _ = f.Close() }()

	info, err := f.Stat()
	if err != nil {
		return nil, offset, fmt.Errorf("mailbox: stat index: %w", err)
	}
	if info.Size() < offset {
		offset = 0
	}
	if _, err := f.Seek(offset, io.SeekStart); err != nil {
		return nil, offset, fmt.Errorf("mailbox: seek index: %w", err)
	}

	var messages []Message
	reader := bufio.NewReader(f)
	for {
		line, err := reader.ReadBytes('\n')
		if err == io.EOF {
			// Partial trailing line; leave it for the next read.
			break
		}
		if err != nil {
			return messages, offset, fmt.Errorf("mailbox: read index: %w", err)
		}
		offset += int64(len(line))

		line = bytes.TrimSpace(line)
		if len(line) == 0 {
			continue
		}
		var msg Message
		if err := json.Unmarshal(line, &msg); err != nil {
			// Skip malformed lines rather than failing entirely
			continue
		}
		messages = append(messages, msg)
	}

	return messages, offset, nil
}

// InboxDir returns the directory holding the recipient's inbox.
func (s *Store) InboxDir(recipient string) string {
	return s.inboxDir(recipient)
}

func (s *Store) inboxDir(recipient string) string {
	return filepath.Join(s.dir, mailboxDir, recipient)
}

// atomicAppend appends data to a file under a mutex to serialize writes.
// Each JSONL line is small enough that O_APPEND provides atomicity guarantees
// on POSIX systems (writes under PIPE_BUF are atomic).
func (s *Store) atomicAppend(path string, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("mailbox: open index for append: %w", err)
	}

	if _, err := f.Write(data); err != nil {
		_ = f.Close()
		return fmt.Errorf("mailbox: append to index: %w", err)
	}

	return f.Close()
}

// idCounter provides per-process uniqueness for message IDs.
var idCounter atomic.Uint64

// generateID produces a unique message ID using timestamp, PID, and atomic counter.
func generateID() string {
	return fmt.Sprintf("msg-%d-%d-%d", time.Now().UnixNano(), os.Getpid(), idCounter.Add(1))
}
