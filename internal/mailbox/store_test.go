package mailbox

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"
)

func TestStore_Send(t *testing.T) {
	dir := t.TempDir()
	store := NewStore(dir)

	msg := Message{
		From: "editor",
		To:   "preview",
		Type: "dispatch_global_bus_event_message",
		Body: `{"eventName":"x","payload":"1"}`,
	}

	if err := store.Send(msg); err != nil {
		t.Fatalf("Send() error = %v", err)
	}

	// Verify the file was created
	indexPath := filepath.Join(dir, mailboxDir, "preview", indexFile)
	if _, err := os.Stat(indexPath); err != nil {
		t.Fatalf("index file not created: %v", err)
	}
}

func TestStore_Send_AutoPopulatesFields(t *testing.T) {
	dir := t.TempDir()
	store := NewStore(dir)

	if err := store.Send(Message{From: "a", To: "b", Type: "t", Body: "x"}); err != nil {
		t.Fatalf("Send() error = %v", err)
	}

	messages, err := store.ReadAll("b")
	if err != nil {
		t.Fatalf("ReadAll() error = %v", err)
	}
	if len(messages) != 1 {
		t.Fatalf("expected 1 message, got %d", len(messages))
	}
	if messages[0].ID == "" {
		t.Error("expected auto-generated ID, got empty string")
	}
	if messages[0].Timestamp.IsZero() {
		t.Error("expected auto-generated Timestamp, got zero")
	}
}

func TestStore_Send_PreservesExistingIDAndTimestamp(t *testing.T) {
	dir := t.TempDir()
	store := NewStore(dir)

	now := time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)
	msg := Message{
		ID:        "custom-id",
		From:      "a",
		To:        "b",
		Type:      "t",
		Body:      "update",
		Timestamp: now,
	}
	if err := store.Send(msg); err != nil {
		t.Fatalf("Send() error = %v", err)
	}

	messages, err := store.ReadAll("b")
	if err != nil {
		t.Fatalf("ReadAll() error = %v", err)
	}
	if messages[0].ID != "custom-id" {
		t.Errorf("ID = %q, want %q", messages[0].ID, "custom-id")
	}
	if !messages[0].Timestamp.Equal(now) {
		t.Errorf("Timestamp = %v, want %v", messages[0].Timestamp, now)
	}
}

func TestStore_Send_ValidationErrors(t *testing.T) {
	dir := t.TempDir()
	store := NewStore(dir)

	tests := []struct {
		name string
		msg  Message
	}{
		{"empty from", Message{To: "b", Type: "t", Body: "hi"}},
		{"empty to", Message{From: "a", Type: "t", Body: "hi"}},
		{"empty type", Message{From: "a", To: "b", Body: "hi"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := store.Send(tt.msg); err == nil {
				t.Error("expected error for invalid message, got nil")
			}
		})
	}
}

func TestStore_ReadFrom_Incremental(t *testing.T) {
	dir := t.TempDir()
	store := NewStore(dir)

	send := func(body string) {
		t.Helper()
		if err := store.Send(Message{From: "a", To: "b", Type: "t", Body: body}); err != nil {
			t.Fatalf("Send() error = %v", err)
		}
	}

	send("1")
	send("2")

	messages, offset, err := store.ReadFrom("b", 0)
	if err != nil {
		t.Fatalf("ReadFrom() error = %v", err)
	}
	if len(messages) != 2 || offset == 0 {
		t.Fatalf("ReadFrom(0) = %d messages at offset %d", len(messages), offset)
	}

	messages, next, err := store.ReadFrom("b", offset)
	if err != nil {
		t.Fatalf("ReadFrom() error = %v", err)
	}
	if len(messages) != 0 || next != offset {
		t.Errorf("ReadFrom(end) = %d messages, offset %d, want 0 at %d", len(messages), next, offset)
	}

	send("3")
	messages, next, err = store.ReadFrom("b", offset)
	if err != nil {
		t.Fatalf("ReadFrom() error = %v", err)
	}
	if len(messages) != 1 || messages[0].Body != "3" {
		t.Errorf("ReadFrom(offset) = %+v, want only message 3", messages)
	}
	if next <= offset {
		t.Errorf("offset did not advance: %d -> %d", offset, next)
	}
}

func TestStore_ReadFrom_PartialLineNotConsumed(t *testing.T) {
	dir := t.TempDir()
	store := NewStore(dir)

	if err := store.Send(Message{From: "a", To: "b", Type: "t", Body: "whole"}); err != nil {
		t.Fatalf("Send() error = %v", err)
	}

	path := filepath.Join(dir, mailboxDir, "b", indexFile)
	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		t.Fatalf("open index: %v", err)
	}
	if _, err := f.WriteString(`{"from":"a","to":"b","type":"t","body":"hal`); err != nil {
		t.Fatalf("write partial: %v", err)
	}

	messages, offset, err := store.ReadFrom("b", 0)
	if err != nil {
		t.Fatalf("ReadFrom() error = %v", err)
	}
	if len(messages) != 1 {
		t.Fatalf("expected 1 complete message, got %d", len(messages))
	}

	if _, err := f.WriteString(`f"}` + "\n"); err != nil {
		t.Fatalf("finish line: %v", err)
	}
	_ = f.Close()

	messages, _, err = store.ReadFrom("b", offset)
	if err != nil {
		t.Fatalf("ReadFrom() error = %v", err)
	}
	if len(messages) != 1 || messages[0].Body != "half" {
		t.Errorf("ReadFrom(offset) = %+v, want the completed line", messages)
	}
}

func TestStore_ReadFrom_SkipsMalformedLines(t *testing.T) {
	dir := t.TempDir()
	store := NewStore(dir)

	inbox := filepath.Join(dir, mailboxDir, "b")
	if err := os.MkdirAll(inbox, 0o755); err != nil {
		t.Fatal(err)
	}
	content := "not json\n\n" + `{"from":"a","to":"b","type":"t","body":"ok"}` + "\n"
	if err := os.WriteFile(filepath.Join(inbox, indexFile), []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	messages, offset, err := store.ReadFrom("b", 0)
	if err != nil {
		t.Fatalf("ReadFrom() error = %v", err)
	}
	if len(messages) != 1 || messages[0].Body != "ok" {
		t.Errorf("messages = %+v, want only the valid line", messages)
	}
	if offset != int64(len(content)) {
		t.Errorf("offset = %d, want %d", offset, len(content))
	}
}

func TestStore_ReadFrom_MissingInbox(t *testing.T) {
	store := NewStore(t.TempDir())

	messages, offset, err := store.ReadFrom("nobody", 42)
	if err != nil {
		t.Fatalf("ReadFrom() error = %v", err)
	}
	if messages != nil || offset != 0 {
		t.Errorf("ReadFrom() = %v, %d, want nil, 0", messages, offset)
	}
}

func TestStore_ReadFrom_TruncatedInboxRestarts(t *testing.T) {
	dir := t.TempDir()
	store := NewStore(dir)

	if err := store.Send(Message{From: "a", To: "b", Type: "t", Body: "fresh"}); err != nil {
		t.Fatalf("Send() error = %v", err)
	}

	messages, _, err := store.ReadFrom("b", 1<<20)
	if err != nil {
		t.Fatalf("ReadFrom() error = %v", err)
	}
	if len(messages) != 1 || messages[0].Body != "fresh" {
		t.Errorf("messages = %+v, want restart from the beginning", messages)
	}
}

func TestStore_ReadFrom_EmptyRecipient(t *testing.T) {
	store := NewStore(t.TempDir())
	if _, _, err := store.ReadFrom("", 0); err == nil {
		t.Error("expected error for empty recipient")
	}
}

func TestStore_ConcurrentSend(t *testing.T) {
	dir := t.TempDir()
	store := NewStore(dir)

	const n = 50
	var wg sync.WaitGroup
	for i := range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			msg := Message{From: fmt.Sprintf("sender-%d", i), To: "b", Type: "t", Body: "concurrent"}
			if err := store.Send(msg); err != nil {
				t.Errorf("Send() error = %v", err)
			}
		}()
	}
	wg.Wait()

	messages, err := store.ReadAll("b")
	if err != nil {
		t.Fatalf("ReadAll() error = %v", err)
	}
	if len(messages) != n {
		t.Errorf("expected %d messages, got %d", n, len(messages))
	}

	ids := make(map[string]bool, n)
	for _, msg := range messages {
		if ids[msg.ID] {
			t.Errorf("duplicate message ID %s", msg.ID)
		}
		ids[msg.ID] = true
	}
}

func TestStore_MetadataRoundTrip(t *testing.T) {
	dir := t.TempDir()
	store := NewStore(dir)

	msg := Message{
		From:     "a",
		To:       "b",
		Type:     "t",
		Body:     "x",
		Metadata: map[string]any{"node": "n-1", "attempt": float64(2)},
	}
	if err := store.Send(msg); err != nil {
		t.Fatalf("Send() error = %v", err)
	}

	messages, err := store.ReadAll("b")
	if err != nil {
		t.Fatalf("ReadAll() error = %v", err)
	}
	if got := messages[0].Metadata["node"]; got != "n-1" {
		t.Errorf("Metadata[node] = %v, want n-1", got)
	}
	if got := messages[0].Metadata["attempt"]; got != float64(2) {
		t.Errorf("Metadata[attempt] = %v, want 2", got)
	}
}

func TestMessage_IsShutdown(t *testing.T) {
	if !(Message{Type: "window_messenger_shutdown"}).IsShutdown() {
		t.Error("shutdown notice not recognized")
	}
	if (Message{Type: "dispatch_global_bus_event_message"}).IsShutdown() {
		t.Error("relay message reported as shutdown")
	}
}
