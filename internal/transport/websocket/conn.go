// Package websocket carries messenger traffic over websocket connections.
//
// Every text frame holds one JSON messenger.Envelope. Either side may dial;
// once connected the two ends are symmetric. A Conn sends a shutdown
// envelope before closing so the peer can detach it from its bus at once
// instead of waiting for a read error.
package websocket

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/Iron-Ham/windowbus/internal/errors"
	"github.com/Iron-Ham/windowbus/internal/logging"
	"github.com/Iron-Ham/windowbus/internal/messenger"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 512 * 1024 // 512KB
	sendQueueSize  = 256
)

// Conn is a messenger.Messenger over one websocket connection.
type Conn struct {
	*messenger.Base

	ws     *websocket.Conn
	remote string
	send   chan []byte
	done   chan struct{}
	closed chan struct{}

	stopOnce sync.Once
}

func newConn(ws *websocket.Conn, remote string, logger *logging.Logger) *Conn {
	c := &Conn{
		Base:   messenger.NewBase(messenger.NewID("ws"), logger),
		ws:     ws,
		remote: remote,
		send:   make(chan []byte, sendQueueSize),
		done:   make(chan struct{}),
		closed: make(chan struct{}),
	}
	go c.writePump()
	return c
}

// Dial connects to a websocket endpoint such as ws://localhost:7420/ws.
func Dial(ctx context.Context, url string, logger *logging.Logger) (*Conn, error) {
	ws, resp, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		return nil, errors.NewTransportError("websocket", "dial", err).WithAddr(url)
	}
	c := newConn(ws, url, logger)
	go c.readPump()
	c.Logger().Debug("websocket connected", "remote", url)
	return c, nil
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// Handler upgrades requests to websocket connections and passes each new
// Conn to onConnect. Inbound frames are not read until onConnect returns.
func Handler(logger *logging.Logger, onConnect func(*Conn)) http.Handler {
	if logger == nil {
		logger = logging.NopLogger()
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ws, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			logger.Warn("failed to upgrade connection", "remote", r.RemoteAddr, "error", err)
			return
		}
		c := newConn(ws, r.RemoteAddr, logger)
		c.Logger().Debug("websocket accepted", "remote", r.RemoteAddr)
		if onConnect != nil {
			onConnect(c)
		}
		go c.readPump()
	})
}

// RemoteAddr returns the dialed URL or the accepted peer's address.
func (c *Conn) RemoteAddr() string {
	return c.remote
}

// SendMessage queues a frame for the peer. It fails with ErrSendQueueFull
// rather than blocking when the peer is not keeping up.
func (c *Conn) SendMessage(msgType, body string) error {
	select {
	case <-c.done:
		return errors.ErrMessengerClosed
	default:
	}

	data, err := messenger.Envelope{Type: msgType, Body: body}.Encode()
	if err != nil {
		return err
	}

	select {
	case c.send <- data:
		return nil
	case <-c.done:
		return errors.ErrMessengerClosed
	default:
		return errors.NewTransportError("websocket", "send", errors.ErrSendQueueFull).WithAddr(c.remote)
	}
}

// Close flushes queued frames, notifies the peer and runs shutdown hooks.
func (c *Conn) Close() error {
	c.stop()
	select {
	case <-c.closed:
	case <-time.After(writeWait):
	}
	c.Shutdown()
	return nil
}

// Done is closed once the connection has stopped.
func (c *Conn) Done() <-chan struct{} {
	return c.done
}

func (c *Conn) stop() {
	c.stopOnce.Do(func() {
		close(c.done)
	})
}

// readPump delivers inbound frames until the connection fails or the peer
// announces shutdown.
func (c *Conn) readPump() {
	defer func() {
		c.stop()
		_ = c.ws.Close()
		c.Shutdown()
	}()

	c.ws.SetReadLimit(maxMessageSize)
	_ = c.ws.SetReadDeadline(time.Now().Add(pongWait))
	c.ws.SetPongHandler(func(string) error {
		return c.ws.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				c.Logger().Warn("websocket read error", "remote", c.remote, "error", err)
			}
			return
		}

		env, err := messenger.DecodeEnvelope(data)
		if err != nil {
			c.Logger().Warn("invalid frame", "remote", c.remote, "error", err)
			continue
		}
		if env.Type == messenger.ShutdownMessageType {
			c.Logger().Debug("peer shut down", "remote", c.remote)
			return
		}
		c.Deliver(env.Type, env.Body)
	}
}

// writePump is the only goroutine that writes to the connection.
func (c *Conn) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.ws.Close()
		close(c.closed)
	}()

	for {
		select {
		case data := <-c.send:
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.TextMessage, data); err != nil {
				c.Logger().Warn("websocket write error", "remote", c.remote, "error", err)
				c.stop()
				return
			}

		case <-ticker.C:
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.stop()
				return
			}

		case <-c.done:
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			c.flush()
			if notice, err := (messenger.Envelope{Type: messenger.ShutdownMessageType}).Encode(); err == nil {
				_ = c.ws.WriteMessage(websocket.TextMessage, notice)
			}
			_ = c.ws.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		}
	}
}

// flush writes whatever is still queued, stopping at the first error.
func (c *Conn) flush() {
	for {
		select {
		case data := <-c.send:
			if err := c.ws.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		default:
			return
		}
	}
}
