package node

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/Iron-Ham/windowbus/internal/config"
	"github.com/Iron-Ham/windowbus/internal/globalbus"
	"github.com/Iron-Ham/windowbus/internal/transport/websocket"
)

func testConfig(id string) *config.Config {
	cfg := config.Default()
	cfg.Node.ID = id
	cfg.WebSocket.Listen = "127.0.0.1:0"
	cfg.WebSocket.ReconnectIntervalMs = 100
	cfg.Mailbox.PollIntervalMs = 20
	return cfg
}

// startNode runs n until the test ends and waits for it to be ready.
func startNode(t *testing.T, n *Node) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- n.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		select {
		case <-done:
		case <-time.After(10 * time.Second):
			t.Error("node did not stop")
		}
	})

	select {
	case <-n.Ready():
	case err := <-done:
		t.Fatalf("Run() returned early: %v", err)
	case <-time.After(5 * time.Second):
		t.Fatal("node not ready")
	}
}

func wsURL(n *Node) string {
	return "ws://" + n.Addr().String() + "/ws"
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func receive(t *testing.T, ch <-chan string) string {
	t.Helper()
	select {
	case v := <-ch:
		return v
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for event")
		return ""
	}
}

func TestNew_GeneratesID(t *testing.T) {
	cfg := config.Default()
	n := New(cfg, nil)
	if n.ID() == "" {
		t.Fatal("ID() is empty")
	}
	if n.Bus() == nil {
		t.Fatal("Bus() is nil")
	}

	cfg.Node.ID = "alpha"
	if got := New(cfg, nil).ID(); got != "alpha" {
		t.Errorf("ID() = %q, want alpha", got)
	}
}

func TestRouter_Healthz(t *testing.T) {
	n := New(testConfig("alpha"), nil)

	rec := httptest.NewRecorder()
	n.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if rec.Header().Get("X-Request-Id") == "" {
		t.Error("missing X-Request-Id header")
	}
	var body map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if body["status"] != "success" {
		t.Errorf("status field = %v", body["status"])
	}
}

func TestRouter_RequestIDPropagated(t *testing.T) {
	n := New(testConfig("alpha"), nil)

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set("X-Request-Id", "req-1")
	rec := httptest.NewRecorder()
	n.Router().ServeHTTP(rec, req)

	if got := rec.Header().Get("X-Request-Id"); got != "req-1" {
		t.Errorf("X-Request-Id = %q, want req-1", got)
	}
}

func TestRouter_Stats(t *testing.T) {
	n := New(testConfig("alpha"), nil)
	n.Bus().AddListener("cart.updated", globalbus.NewListener(func(string) {}))
	n.Bus().Dispatch("cart.updated", "1")
	n.Bus().Dispatch("cart.updated", "2")

	rec := httptest.NewRecorder()
	n.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/stats", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var stats Stats
	if err := json.Unmarshal(rec.Body.Bytes(), &stats); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if stats.NodeID != "alpha" {
		t.Errorf("node_id = %q, want alpha", stats.NodeID)
	}
	if stats.EventsDispatched != 2 {
		t.Errorf("events_dispatched = %d, want 2", stats.EventsDispatched)
	}
	if len(stats.Messengers) != 0 {
		t.Errorf("messengers = %v, want none", stats.Messengers)
	}
	if len(stats.ListenedEvents) != 1 || stats.ListenedEvents[0] != "cart.updated" {
		t.Errorf("listened_events = %v, want [cart.updated]", stats.ListenedEvents)
	}
}

func TestRouter_UnknownRoute(t *testing.T) {
	n := New(testConfig("alpha"), nil)

	rec := httptest.NewRecorder()
	n.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/nope", nil))

	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rec.Code)
	}
}

func TestRun_StopsOnCancel(t *testing.T) {
	n := New(testConfig("alpha"), nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- n.Run(ctx) }()

	<-n.Ready()
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Run() error = %v, want nil", err)
		}
	case <-time.After(10 * time.Second):
		t.Fatal("Run() did not return after cancel")
	}
}

func TestRun_ListenFailure(t *testing.T) {
	cfg := testConfig("alpha")
	cfg.WebSocket.Listen = "256.0.0.1:bad"

	if err := New(cfg, nil).Run(context.Background()); err == nil {
		t.Fatal("Run() error = nil, want listen failure")
	}
}

func TestRun_AcceptsWebSocketClients(t *testing.T) {
	n := New(testConfig("alpha"), nil)
	startNode(t, n)

	got := make(chan string, 1)
	n.Bus().AddListener("cart.updated", globalbus.NewListener(func(p string) { got <- p }))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	conn, err := websocket.Dial(ctx, wsURL(n), nil)
	if err != nil {
		t.Fatalf("Dial() error = %v", err)
	}
	defer func() { _ = conn.Close() }()

	client := globalbus.New()
	if err := client.Connect(conn); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	client.Dispatch("cart.updated", `{"count":3}`)

	if p := receive(t, got); p != `{"count":3}` {
		t.Errorf("payload = %s", p)
	}
	waitFor(t, "messenger registered", func() bool { return len(n.Stats().Messengers) == 1 })

	_ = conn.Close()
	waitFor(t, "messenger removed", func() bool { return len(n.Stats().Messengers) == 0 })
}

func TestRun_RelaysBetweenWebSocketPeers(t *testing.T) {
	hub := New(testConfig("hub"), nil)
	startNode(t, hub)

	cfg := testConfig("edge")
	cfg.WebSocket.Listen = ""
	cfg.WebSocket.Peers = []string{wsURL(hub)}
	edge := New(cfg, nil)
	startNode(t, edge)

	waitFor(t, "peer connected", func() bool {
		return len(hub.Bus().Messengers()) == 1 && len(edge.Bus().Messengers()) == 1
	})

	atHub := make(chan string, 1)
	hub.Bus().AddListener("theme.changed", globalbus.NewListener(func(p string) { atHub <- p }))
	atEdge := make(chan string, 1)
	edge.Bus().AddListener("theme.changed", globalbus.NewListener(func(p string) { atEdge <- p }))

	edge.Bus().Dispatch("theme.changed", "dark")
	if p := receive(t, atHub); p != "dark" {
		t.Errorf("hub payload = %s, want dark", p)
	}
	if p := receive(t, atEdge); p != "dark" {
		t.Errorf("edge payload = %s, want dark", p)
	}

	hub.Bus().Dispatch("theme.changed", "light")
	if p := receive(t, atEdge); p != "light" {
		t.Errorf("edge payload = %s, want light", p)
	}
	if p := receive(t, atHub); p != "light" {
		t.Errorf("hub payload = %s, want light", p)
	}
}

func TestRun_RelaysThroughMailbox(t *testing.T) {
	dir := t.TempDir()

	newMailboxNode := func(name, peer string) *Node {
		cfg := testConfig(name)
		cfg.WebSocket.Listen = ""
		cfg.Mailbox.Dir = dir
		cfg.Mailbox.Name = name
		cfg.Mailbox.Peers = []string{peer}
		return New(cfg, nil)
	}

	left := newMailboxNode("left", "right")
	startNode(t, left)
	right := newMailboxNode("right", "left")
	startNode(t, right)

	got := make(chan string, 1)
	right.Bus().AddListener("session.expired", globalbus.NewListener(func(p string) { got <- p }))

	left.Bus().Dispatch("session.expired", "user-42")
	if p := receive(t, got); p != "user-42" {
		t.Errorf("payload = %s, want user-42", p)
	}
}

func TestRun_ReattachesRestartedMailboxPeer(t *testing.T) {
	dir := t.TempDir()

	newMailboxNode := func(name, peer string) *Node {
		cfg := testConfig(name)
		cfg.WebSocket.Listen = ""
		cfg.Mailbox.Dir = dir
		cfg.Mailbox.Name = name
		cfg.Mailbox.Peers = []string{peer}
		return New(cfg, nil)
	}

	left := newMailboxNode("left", "right")
	startNode(t, left)

	// The first "right" process runs for a while and exits.
	first := newMailboxNode("right", "left")
	ctx, cancel := context.WithCancel(context.Background())
	stopped := make(chan error, 1)
	go func() { stopped <- first.Run(ctx) }()
	select {
	case <-first.Ready():
	case <-time.After(5 * time.Second):
		t.Fatal("first right node not ready")
	}
	cancel()
	select {
	case <-stopped:
	case <-time.After(10 * time.Second):
		t.Fatal("first right node did not stop")
	}

	second := newMailboxNode("right", "left")
	startNode(t, second)

	got := make(chan string, 1)
	second.Bus().AddListener("e", globalbus.NewListener(func(p string) {
		select {
		case got <- p:
		default:
		}
	}))

	// Left drops the departed peer and reopens the mailbox on its own
	// schedule, and the restarted peer skips messages older than itself,
	// so keep dispatching until one lands.
	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()
	timeout := time.After(5 * time.Second)
	for {
		left.Bus().Dispatch("e", "after-restart")
		select {
		case p := <-got:
			if p != "after-restart" {
				t.Errorf("payload = %s, want after-restart", p)
			}
			return
		case <-ticker.C:
		case <-timeout:
			t.Fatalf("left never relayed to the restarted peer; left messengers = %d", len(left.Bus().Messengers()))
		}
	}
}
