// Package redis carries messenger traffic over a Redis pub/sub channel
// shared by any number of nodes.
//
// Every node that opens the same channel sees every other node's
// publications, so a single Messenger stands in for the whole group. Each
// envelope carries the publishing node's id and a node drops its own
// publications when they come back.
package redis

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/Iron-Ham/windowbus/internal/errors"
	"github.com/Iron-Ham/windowbus/internal/logging"
	"github.com/Iron-Ham/windowbus/internal/messenger"
)

// publishTimeout bounds a single PUBLISH.
const publishTimeout = 5 * time.Second

// Connect initializes a Redis client from URL or host:port input.
func Connect(_ context.Context, redisURL string) (*redis.Client, error) {
	if strings.HasPrefix(redisURL, "redis://") || strings.HasPrefix(redisURL, "rediss://") {
		opt, parseErr := redis.ParseURL(redisURL)
		if parseErr != nil {
			return nil, fmt.Errorf("parse redis url: %w", parseErr)
		}
		return redis.NewClient(opt), nil
	}
	return redis.NewClient(&redis.Options{Addr: redisURL}), nil
}

// Messenger is a messenger.Messenger over a Redis channel.
type Messenger struct {
	*messenger.Base

	client  *redis.Client
	pubsub  *redis.PubSub
	channel string
	nodeID  string

	closeOnce sync.Once
	wg        sync.WaitGroup
}

// Open subscribes to channel and returns a Messenger publishing as nodeID.
// The subscription is confirmed before Open returns.
func Open(ctx context.Context, client *redis.Client, channel, nodeID string, logger *logging.Logger) (*Messenger, error) {
	if channel == "" {
		return nil, fmt.Errorf("redis: channel is required")
	}
	if nodeID == "" {
		return nil, fmt.Errorf("redis: node id is required")
	}

	pubsub := client.Subscribe(ctx, channel)
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, errors.NewTransportError("redis", "subscribe", err).
			WithAddr(client.Options().Addr).
			WithRetryable(true)
	}

	m := &Messenger{
		Base:    messenger.NewBase(messenger.NewID("redis"), logger),
		client:  client,
		pubsub:  pubsub,
		channel: channel,
		nodeID:  nodeID,
	}

	m.wg.Add(1)
	go m.receiveLoop(pubsub.Channel())

	m.Logger().Debug("redis channel opened", "channel", channel, "node_id", nodeID)
	return m, nil
}

// Channel returns the Redis channel name.
func (m *Messenger) Channel() string {
	return m.channel
}

// SendMessage publishes an envelope on the channel.
func (m *Messenger) SendMessage(msgType, body string) error {
	if m.Closed() {
		return errors.ErrMessengerClosed
	}

	data, err := messenger.Envelope{Type: msgType, Body: body, From: m.nodeID}.Encode()
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
	defer cancel()
	if err := m.client.Publish(ctx, m.channel, data).Err(); err != nil {
		return errors.NewTransportError("redis", "publish", err).WithAddr(m.client.Options().Addr)
	}
	return nil
}

// Close unsubscribes and runs shutdown hooks. The shared channel stays up
// for the other nodes. The client is owned by the caller.
func (m *Messenger) Close() error {
	var err error
	m.closeOnce.Do(func() {
		err = m.pubsub.Close()
		m.wg.Wait()
		m.Shutdown()
	})
	return err
}

func (m *Messenger) receiveLoop(ch <-chan *redis.Message) {
	defer m.wg.Done()

	for msg := range ch {
		env, err := messenger.DecodeEnvelope([]byte(msg.Payload))
		if err != nil {
			m.Logger().Warn("invalid envelope on channel", "channel", m.channel, "error", err)
			continue
		}
		if env.From == m.nodeID {
			continue
		}
		// One node leaving does not end the channel for the rest.
		if env.Type == messenger.ShutdownMessageType {
			continue
		}
		m.Deliver(env.Type, env.Body)
	}
}
