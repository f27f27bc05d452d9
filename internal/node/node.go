// Package node assembles a running windowbus process: one global bus plus
// every transport named in the configuration.
//
// A Node is the application context. It owns the bus, opens the websocket
// listener, keeps outbound websocket peers connected, opens mailbox and Redis
// messengers, and closes all of them when Run's context is cancelled.
package node

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sourcegraph/conc/pool"

	"github.com/Iron-Ham/windowbus/internal/config"
	"github.com/Iron-Ham/windowbus/internal/errors"
	"github.com/Iron-Ham/windowbus/internal/globalbus"
	"github.com/Iron-Ham/windowbus/internal/logging"
	"github.com/Iron-Ham/windowbus/internal/mailbox"
	"github.com/Iron-Ham/windowbus/internal/messenger"
	"github.com/Iron-Ham/windowbus/internal/transport/redis"
	"github.com/Iron-Ham/windowbus/internal/transport/websocket"
)

// shutdownTimeout bounds the HTTP server's graceful shutdown.
const shutdownTimeout = 5 * time.Second

var errNodeStopped = errors.New("node is stopped")

// Node is a configured windowbus process.
type Node struct {
	cfg     *config.Config
	id      string
	bus     *globalbus.Bus
	logger  *logging.Logger
	started time.Time

	dispatched atomic.Uint64

	mu     sync.Mutex
	open   map[io.Closer]messenger.Messenger
	addr   net.Addr
	ready  chan struct{}
	closed bool
}

// New creates a Node from cfg. A nil logger discards output.
func New(cfg *config.Config, logger *logging.Logger) *Node {
	if logger == nil {
		logger = logging.NopLogger()
	}
	id := cfg.Node.ID
	if id == "" {
		id = messenger.NewID("node")
	}
	logger = logger.WithNode(id)

	n := &Node{
		cfg:     cfg,
		id:      id,
		bus:     globalbus.New(globalbus.WithLogger(logger)),
		logger:  logger,
		started: time.Now(),
		open:    make(map[io.Closer]messenger.Messenger),
		ready:   make(chan struct{}),
	}
	n.bus.AddAnyListener(globalbus.NewAnyListener(func(eventName, payload string) {
		n.dispatched.Add(1)
		n.logger.Debug("event dispatched", "event", eventName, "payload_bytes", len(payload))
	}))
	return n
}

// ID returns the node id.
func (n *Node) ID() string {
	return n.id
}

// Bus returns the node's global bus.
func (n *Node) Bus() *globalbus.Bus {
	return n.bus
}

// Ready is closed once Run has opened every configured transport.
func (n *Node) Ready() <-chan struct{} {
	return n.ready
}

// Addr returns the websocket listener's address, or nil when the listener
// is disabled or not yet open.
func (n *Node) Addr() net.Addr {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.addr
}

// Stats reports the node's current state.
func (n *Node) Stats() Stats {
	ids := make([]string, 0)
	for _, m := range n.bus.Messengers() {
		ids = append(ids, m.ID())
	}
	sort.Strings(ids)
	return Stats{
		NodeID:           n.id,
		UptimeSeconds:    int64(time.Since(n.started).Seconds()),
		Messengers:       ids,
		EventsDispatched: n.dispatched.Load(),
		ListenedEvents:   n.bus.EventNames(),
	}
}

// Run opens every configured transport and blocks until ctx is cancelled or
// the HTTP server fails. On return every messenger has been closed.
func (n *Node) Run(ctx context.Context) error {
	p := pool.New().WithContext(ctx).WithCancelOnError()

	if n.cfg.WebSocket.Listen != "" {
		srv, ln, err := n.listen()
		if err != nil {
			n.closeAll()
			return err
		}
		p.Go(func(ctx context.Context) error {
			return serve(ctx, srv, ln)
		})
	}

	if mb := n.cfg.Mailbox; mb.Enabled() {
		for _, peer := range mb.Peers {
			down, err := n.openMailbox(peer)
			if err != nil {
				n.closeAll()
				return err
			}
			p.Go(func(ctx context.Context) error {
				n.maintainMailboxPeer(ctx, peer, down)
				return nil
			})
		}
	}

	if n.cfg.Redis.URL != "" {
		client, err := n.openRedis(ctx)
		if err != nil {
			n.closeAll()
			return err
		}
		defer func() { _ = client.Close() }()
	}

	for _, peer := range n.cfg.WebSocket.Peers {
		p.Go(func(ctx context.Context) error {
			n.maintainPeer(ctx, peer)
			return nil
		})
	}

	// Keeps Run blocked when no transport runs a goroutine of its own.
	p.Go(func(ctx context.Context) error {
		<-ctx.Done()
		return nil
	})

	close(n.ready)
	n.logger.Info("node running",
		"listen", n.cfg.WebSocket.Listen,
		"peers", len(n.cfg.WebSocket.Peers),
		"mailbox_peers", len(n.cfg.Mailbox.Peers),
		"redis", n.cfg.Redis.URL != "")

	err := p.Wait()
	n.closeAll()
	n.logger.Info("node stopped")
	return err
}

func (n *Node) listen() (*http.Server, net.Listener, error) {
	ln, err := net.Listen("tcp", n.cfg.WebSocket.Listen)
	if err != nil {
		return nil, nil, errors.NewTransportError("websocket", "listen", err).
			WithAddr(n.cfg.WebSocket.Listen).
			WithRetryable(false)
	}
	n.mu.Lock()
	n.addr = ln.Addr()
	n.mu.Unlock()

	srv := &http.Server{
		Handler:           n.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	n.logger.Info("websocket listener open", "addr", ln.Addr().String())
	return srv, ln, nil
}

func serve(ctx context.Context, srv *http.Server, ln net.Listener) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Serve(ln)
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("http server: %w", err)
	}
}

// openMailbox opens and attaches the mailbox shared with peer. The returned
// channel is closed once that messenger shuts down.
func (n *Node) openMailbox(peer string) (<-chan struct{}, error) {
	mb := n.cfg.Mailbox
	dir := mb.ResolveDir(".")
	m, err := mailbox.Open(dir, mb.Name, peer,
		mailbox.WithPollInterval(mb.PollInterval()),
		mailbox.WithLogger(n.logger))
	if err != nil {
		return nil, fmt.Errorf("open mailbox for peer %s: %w", peer, err)
	}

	down := make(chan struct{})
	m.AddOnShutdown(func() { close(down) })
	if err := n.attach(m, m); err != nil {
		_ = m.Close()
		return nil, err
	}
	n.logger.Info("mailbox peer attached", "dir", dir, "peer", peer, "messenger_id", m.ID())
	return down, nil
}

// maintainMailboxPeer reopens the mailbox shared with peer whenever it shuts
// down, one poll interval later, until ctx is done. A peer process that
// restarts is picked up by the reopened mailbox.
func (n *Node) maintainMailboxPeer(ctx context.Context, peer string, down <-chan struct{}) {
	interval := n.cfg.Mailbox.PollInterval()
	log := n.logger.With("mailbox_peer", peer)

	for {
		select {
		case <-down:
			log.Warn("mailbox peer shut down")
		case <-ctx.Done():
			return
		}

		for {
			select {
			case <-time.After(interval):
			case <-ctx.Done():
				return
			}
			next, err := n.openMailbox(peer)
			if err == nil {
				down = next
				break
			}
			if errors.Is(err, errNodeStopped) {
				return
			}
			log.Warn("mailbox reopen failed", "error", err)
		}
	}
}

// openRedis subscribes to the configured channel. The returned client must be
// closed after the messenger.
func (n *Node) openRedis(ctx context.Context) (io.Closer, error) {
	client, err := redis.Connect(ctx, n.cfg.Redis.URL)
	if err != nil {
		return nil, err
	}
	m, err := redis.Open(ctx, client, n.cfg.Redis.Channel, n.id, n.logger)
	if err != nil {
		_ = client.Close()
		return nil, err
	}
	if err := n.attach(m, m); err != nil {
		_ = m.Close()
		_ = client.Close()
		return nil, err
	}
	n.logger.Info("redis channel attached", "channel", n.cfg.Redis.Channel)
	return client, nil
}

// maintainPeer keeps one outbound websocket connected until ctx is done.
func (n *Node) maintainPeer(ctx context.Context, url string) {
	interval := n.cfg.WebSocket.ReconnectInterval()
	log := n.logger.With("peer", url)

	for {
		conn, err := websocket.Dial(ctx, url, n.logger)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			log.Warn("peer dial failed",
				"error", err,
				"severity", errors.GetSeverity(err).String(),
				"retryable", errors.IsRetryable(err))
		} else if err := n.attach(conn, conn); err != nil {
			_ = conn.Close()
			log.Error("failed to attach peer", "error", err)
		} else {
			log.Info("peer connected", "messenger_id", conn.ID())
			select {
			case <-conn.Done():
				log.Warn("peer connection lost")
			case <-ctx.Done():
				_ = conn.Close()
				return
			}
		}

		select {
		case <-time.After(interval):
		case <-ctx.Done():
			return
		}
	}
}

// attach connects m to the bus and tracks closer until m shuts down.
// Messengers arriving after shutdown are closed at once.
func (n *Node) attach(m messenger.Messenger, closer io.Closer) error {
	n.mu.Lock()
	if n.closed {
		n.mu.Unlock()
		_ = closer.Close()
		return errNodeStopped
	}
	n.open[closer] = m
	n.mu.Unlock()

	m.AddOnShutdown(func() {
		n.mu.Lock()
		delete(n.open, closer)
		n.mu.Unlock()
	})
	return n.bus.Connect(m)
}

func (n *Node) closeAll() {
	n.mu.Lock()
	n.closed = true
	closers := make([]io.Closer, 0, len(n.open))
	for c := range n.open {
		closers = append(closers, c)
	}
	n.mu.Unlock()

	for _, c := range closers {
		if err := c.Close(); err != nil {
			n.logger.Warn("failed to close messenger", "error", err)
		}
	}
}
