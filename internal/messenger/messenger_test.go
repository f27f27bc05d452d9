package messenger

import (
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/Iron-Ham/windowbus/internal/errors"
)

func TestNewID(t *testing.T) {
	a, b := NewID("ws"), NewID("ws")
	if a == b {
		t.Errorf("NewID returned duplicate ids: %s", a)
	}
	if !strings.HasPrefix(a, "ws-") {
		t.Errorf("NewID() = %q, want ws- prefix", a)
	}
}

func TestBase_DeliverToHandlersInOrder(t *testing.T) {
	b := NewBase("m", nil)

	var got []string
	b.AddMessageHandler("t", func(body string) { got = append(got, "1:"+body) })
	b.AddMessageHandler("t", func(body string) { got = append(got, "2:"+body) })
	b.AddMessageHandler("other", func(body string) { got = append(got, "other") })
	b.AddMessageHandler("t", nil)

	if n := b.Deliver("t", "x"); n != 2 {
		t.Errorf("Deliver() = %d, want 2", n)
	}
	if fmt.Sprint(got) != "[1:x 2:x]" {
		t.Errorf("got %v", got)
	}
	if n := b.Deliver("unknown", "x"); n != 0 {
		t.Errorf("Deliver(unknown) = %d, want 0", n)
	}
}

func TestBase_HandlerPanicIsolated(t *testing.T) {
	b := NewBase("m", nil)

	ran := false
	b.AddMessageHandler("t", func(string) { panic("boom") })
	b.AddMessageHandler("t", func(string) { ran = true })

	b.Deliver("t", "x")
	if !ran {
		t.Error("handler after the panicking one did not run")
	}
}

func TestBase_ShutdownRunsHooksOnce(t *testing.T) {
	b := NewBase("m", nil)

	var order []int
	b.AddOnShutdown(func() { order = append(order, 1) })
	b.AddOnShutdown(func() { order = append(order, 2) })

	if !b.Shutdown() {
		t.Fatal("first Shutdown() = false")
	}
	if b.Shutdown() {
		t.Error("second Shutdown() = true")
	}
	if fmt.Sprint(order) != "[1 2]" {
		t.Errorf("hook order = %v, want [1 2]", order)
	}
	if !b.Closed() {
		t.Error("Closed() = false after Shutdown")
	}

	late := false
	b.AddOnShutdown(func() { late = true })
	if !late {
		t.Error("hook registered after shutdown did not run immediately")
	}
}

func TestBase_DeliverAfterShutdownDropped(t *testing.T) {
	b := NewBase("m", nil)
	ran := false
	b.AddMessageHandler("t", func(string) { ran = true })
	b.Shutdown()

	if n := b.Deliver("t", "x"); n != 0 || ran {
		t.Errorf("Deliver after shutdown ran %d handlers", n)
	}
}

func TestEnvelope_RoundTrip(t *testing.T) {
	env := Envelope{Type: "t", Body: `{"eventName":"x"}`, From: "node-1"}
	data, err := env.Encode()
	if err != nil {
		t.Fatalf("Encode() error = %v", err)
	}
	got, err := DecodeEnvelope(data)
	if err != nil {
		t.Fatalf("DecodeEnvelope() error = %v", err)
	}
	if got != env {
		t.Errorf("DecodeEnvelope() = %+v, want %+v", got, env)
	}
}

func TestDecodeEnvelope_Errors(t *testing.T) {
	tests := []struct {
		name string
		data string
	}{
		{"not json", "nope"},
		{"missing type", `{"body":"x"}`},
		{"wrong body type", `{"type":"t","body":1}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := DecodeEnvelope([]byte(tt.data)); err == nil {
				t.Error("DecodeEnvelope() error = nil")
			}
		})
	}
}

func TestPipe_DeliversInOrder(t *testing.T) {
	a, b := Pipe(nil)
	defer a.Close()

	if a.ID() == b.ID() {
		t.Fatal("pipe ends share an id")
	}

	const n = 100
	var mu sync.Mutex
	var got []string
	done := make(chan struct{})
	b.AddMessageHandler("t", func(body string) {
		mu.Lock()
		got = append(got, body)
		if len(got) == n {
			close(done)
		}
		mu.Unlock()
	})

	for i := 0; i < n; i++ {
		if err := a.SendMessage("t", fmt.Sprint(i)); err != nil {
			t.Fatalf("SendMessage() error = %v", err)
		}
	}

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for deliveries")
	}

	mu.Lock()
	defer mu.Unlock()
	for i, body := range got {
		if body != fmt.Sprint(i) {
			t.Fatalf("message %d = %s, out of order", i, body)
		}
	}
}

func TestPipe_Bidirectional(t *testing.T) {
	a, b := Pipe(nil)
	defer b.Close()

	fromA := make(chan string, 1)
	fromB := make(chan string, 1)
	b.AddMessageHandler("t", func(body string) { fromA <- body })
	a.AddMessageHandler("t", func(body string) { fromB <- body })

	_ = a.SendMessage("t", "ping")
	_ = b.SendMessage("t", "pong")

	for _, tc := range []struct {
		ch   chan string
		want string
	}{{fromA, "ping"}, {fromB, "pong"}} {
		select {
		case got := <-tc.ch:
			if got != tc.want {
				t.Errorf("got %q, want %q", got, tc.want)
			}
		case <-time.After(2 * time.Second):
			t.Fatalf("timed out waiting for %q", tc.want)
		}
	}
}

func TestPipe_CloseShutsDownBothEnds(t *testing.T) {
	a, b := Pipe(nil)

	var aDown, bDown bool
	a.AddOnShutdown(func() { aDown = true })
	b.AddOnShutdown(func() { bDown = true })

	if err := a.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if err := b.Close(); err != nil {
		t.Fatalf("second Close() error = %v", err)
	}

	if !aDown || !bDown {
		t.Errorf("shutdown hooks: a=%v b=%v, want both", aDown, bDown)
	}
	if err := a.SendMessage("t", "x"); !errors.Is(err, errors.ErrMessengerClosed) {
		t.Errorf("SendMessage after close error = %v, want ErrMessengerClosed", err)
	}
	if err := b.SendMessage("t", "x"); !errors.Is(err, errors.ErrMessengerClosed) {
		t.Errorf("SendMessage after close error = %v, want ErrMessengerClosed", err)
	}
}

func TestPipe_FullQueueFailsFast(t *testing.T) {
	a, b := Pipe(nil)
	defer a.Close()

	release := make(chan struct{})
	b.AddMessageHandler("t", func(string) { <-release })
	defer close(release)

	var err error
	sent := 0
	for i := 0; i < pipeBuffer+2; i++ {
		if err = a.SendMessage("t", "x"); err != nil {
			break
		}
		sent++
	}

	if !errors.Is(err, errors.ErrSendQueueFull) {
		t.Fatalf("SendMessage on a full queue error = %v, want ErrSendQueueFull", err)
	}
	if sent < pipeBuffer || sent > pipeBuffer+1 {
		t.Errorf("sent %d messages before the queue filled, want %d or %d", sent, pipeBuffer, pipeBuffer+1)
	}
}

func TestPipe_SatisfiesMessenger(t *testing.T) {
	a, b := Pipe(nil)
	defer a.Close()
	var _ Messenger = a
	var _ Messenger = b
}
