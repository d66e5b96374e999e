package services

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

const pushChannelPrefix = "notify:user:"

// PushConn is the part of a websocket connection the hub writes to.
type PushConn interface {
	WriteJSON(v interface{}) error
	Close() error
}

// Hub tracks this instance's websocket connections per user.
type Hub struct {
	mu     sync.RWMutex
	conns  map[string]map[PushConn]struct{}
	logger *slog.Logger
}

func NewHub(logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{conns: make(map[string]map[PushConn]struct{}), logger: logger}
}

// Register adds a connection for userID. A user may have several.
func (h *Hub) Register(userID string, conn PushConn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	set, ok := h.conns[userID]
	if !ok {
		set = make(map[PushConn]struct{})
		h.conns[userID] = set
	}
	set[conn] = struct{}{}
}

func (h *Hub) Unregister(userID string, conn PushConn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	set := h.conns[userID]
	delete(set, conn)
	if len(set) == 0 {
		delete(h.conns, userID)
	}
}

// Connections reports how many connections userID has here.
func (h *Hub) Connections(userID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.conns[userID])
}

// FanOut writes n to every local connection of its user. A connection that
// fails to take the write is closed and dropped.
func (h *Hub) FanOut(n Notification) {
	h.mu.RLock()
	targets := make([]PushConn, 0, len(h.conns[n.UserID]))
	for c := range h.conns[n.UserID] {
		targets = append(targets, c)
	}
	h.mu.RUnlock()

	for _, c := range targets {
		if err := c.WriteJSON(n); err != nil {
			h.logger.Warn("push write failed; dropping connection", "user_id", n.UserID, "error", err)
			c.Close()
			h.Unregister(n.UserID, c)
		}
	}
}

// LocalPush delivers straight to the hub. Used when Redis is not
// configured and there is a single instance.
type LocalPush struct {
	Hub *Hub
}

func (p LocalPush) Publish(_ context.Context, n Notification) error {
	p.Hub.FanOut(n)
	return nil
}

// RedisPush publishes notifications on a per-user Redis channel so every
// instance can deliver to its own connections.
type RedisPush struct {
	client *redis.Client
	hub    *Hub
	logger *slog.Logger
	once   sync.Once
}

func NewRedisPush(client *redis.Client, hub *Hub, logger *slog.Logger) *RedisPush {
	if logger == nil {
		logger = slog.Default()
	}
	return &RedisPush{client: client, hub: hub, logger: logger}
}

func (p *RedisPush) Publish(ctx context.Context, n Notification) error {
	if n.CreatedAt.IsZero() {
		n.CreatedAt = time.Now().UTC()
	}
	data, err := json.Marshal(n)
	if err != nil {
		return err
	}
	return p.client.Publish(ctx, pushChannelPrefix+n.UserID, data).Err()
}

// Start runs one shared subscriber for this instance until ctx ends.
func (p *RedisPush) Start(ctx context.Context) {
	p.once.Do(func() {
		go p.subscribe(ctx)
	})
}

func (p *RedisPush) subscribe(ctx context.Context) {
	backoff := time.Second
	for ctx.Err() == nil {
		pubsub := p.client.PSubscribe(ctx, pushChannelPrefix+"*")
		p.logger.Info("push subscriber started", "pattern", pushChannelPrefix+"*")

		for {
			msg, err := pubsub.ReceiveMessage(ctx)
			if err != nil {
				if ctx.Err() == nil {
					p.logger.Warn("push subscriber error", "error", err, "retry_in", backoff)
				}
				break
			}
			backoff = time.Second

			var n Notification
			if err := json.Unmarshal([]byte(msg.Payload), &n); err != nil {
				p.logger.Warn("malformed push payload", "error", err)
				continue
			}
			if n.UserID == "" {
				n.UserID = strings.TrimPrefix(msg.Channel, pushChannelPrefix)
			}
			p.hub.FanOut(n)
		}
		pubsub.Close()

		select {
		case <-ctx.Done():
			return
		case <-time.After(backoff):
		}
		backoff *= 2
		if backoff > 30*time.Second {
			backoff = 30 * time.Second
		}
	}
}
