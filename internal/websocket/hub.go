package websocket

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/satriahrh/formcoach/domain/entities"
	"github.com/satriahrh/formcoach/domain/repositories"
	"github.com/satriahrh/formcoach/usecase"
)

// FramePipeline is the part of the feedback pipeline the hub drives
type FramePipeline interface {
	Process(ctx context.Context, clientID string, raw usecase.RawFrame) usecase.Result
	SynthesizeFeedback(ctx context.Context, clientID string, record entities.FeedbackRecord) ([]byte, error)
	RecordAudioEmission(clientID string, at time.Time) error
}

// Config tunes connection handling
type Config struct {
	// FrameQueueSize bounds the frames waiting for a client's worker
	FrameQueueSize int
	// SendQueueSize bounds the outbound messages waiting for a client's writer
	SendQueueSize      int
	MaxMessageSize     int64
	AckControlMessages bool
	// ProcessTimeout bounds the backend work for one frame
	ProcessTimeout time.Duration
	SweepInterval  time.Duration
	IdleTimeout    time.Duration
	AllowedOrigins []string
}

// DefaultConfig returns the configuration used when none is given
func DefaultConfig() Config {
	return Config{
		FrameQueueSize:     8,
		SendQueueSize:      256,
		MaxMessageSize:     8 << 20,
		AckControlMessages: true,
		ProcessTimeout:     45 * time.Second,
		SweepInterval:      time.Minute,
		IdleTimeout:        30 * time.Minute,
	}
}

// Hub maintains the set of active clients, one per client identity.
type Hub struct {
	// Registered clients.
	clients map[string]*Client

	// Drain signal of the newest worker per identity, kept until that worker
	// returns so a reconnect never overlaps an in-flight frame.
	workers map[string]chan struct{}

	// Mutex for thread-safe access to clients map
	mu sync.RWMutex

	store    repositories.SessionStore
	pipeline FramePipeline
	upgrader websocket.Upgrader
	config   Config

	logger *zap.Logger
}

// NewHub creates a new WebSocket hub
func NewHub(
	store repositories.SessionStore,
	pipeline FramePipeline,
	config Config,
	logger *zap.Logger,
) *Hub {
	defaults := DefaultConfig()
	if config.FrameQueueSize <= 0 {
		config.FrameQueueSize = defaults.FrameQueueSize
	}
	if config.SendQueueSize <= 0 {
		config.SendQueueSize = defaults.SendQueueSize
	}
	if config.MaxMessageSize <= 0 {
		config.MaxMessageSize = defaults.MaxMessageSize
	}
	if config.ProcessTimeout <= 0 {
		config.ProcessTimeout = defaults.ProcessTimeout
	}
	if config.SweepInterval <= 0 {
		config.SweepInterval = defaults.SweepInterval
	}
	if config.IdleTimeout <= 0 {
		config.IdleTimeout = defaults.IdleTimeout
	}

	return &Hub{
		clients:  make(map[string]*Client),
		workers:  make(map[string]chan struct{}),
		store:    store,
		pipeline: pipeline,
		upgrader: newUpgrader(config.AllowedOrigins),
		config:   config,
		logger:   logger,
	}
}

// Register makes c the live handle for its identity and prepares its session.
// An older handle for the same identity is closed.
func (h *Hub) Register(c *Client) {
	h.mu.Lock()
	_, created := h.store.GetOrCreate(c.clientID)
	if c.configure != nil {
		if _, err := h.store.Update(c.clientID, func(s *entities.Session) error {
			c.configure(s)
			return nil
		}); err != nil {
			h.logger.Error("Failed to configure session", zap.String("clientID", c.clientID), zap.Error(err))
		}
	}
	previous := h.clients[c.clientID]
	h.clients[c.clientID] = c
	if drained, ok := h.workers[c.clientID]; ok && drained != c.drained {
		c.predecessor = drained
	}
	h.workers[c.clientID] = c.drained
	total := len(h.clients)
	h.mu.Unlock()

	if previous != nil && previous != c {
		h.logger.Info("Replacing existing connection", zap.String("clientID", c.clientID))
		previous.closeWith(CloseReplaced, "replaced by a newer connection")
	}

	h.logger.Info("Client registered",
		zap.String("clientID", c.clientID),
		zap.Bool("newSession", created),
		zap.Int("activeClients", total))
}

// Unregister closes c and, when c is still the live handle for its identity,
// removes the mapping and the session.
func (h *Hub) Unregister(c *Client) {
	h.mu.Lock()
	current := h.clients[c.clientID] == c
	if current {
		delete(h.clients, c.clientID)
		h.store.Remove(c.clientID)
	}
	h.mu.Unlock()

	c.closeWith(websocket.CloseNormalClosure, "")

	if current {
		h.logger.Info("Client unregistered", zap.String("clientID", c.clientID))
	} else {
		h.logger.Debug("Stale connection closed", zap.String("clientID", c.clientID))
	}
}

// workerDone forgets c's drain signal unless a newer handle has taken over.
func (h *Hub) workerDone(c *Client) {
	h.mu.Lock()
	if h.workers[c.clientID] == c.drained {
		delete(h.workers, c.clientID)
	}
	h.mu.Unlock()
}

func (h *Hub) client(clientID string) *Client {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.clients[clientID]
}

// SendText queues a text message. Sending to an identity without a live
// handle is a no-op.
func (h *Hub) SendText(clientID string, payload []byte) error {
	c := h.client(clientID)
	if c == nil {
		return nil
	}
	return c.enqueue(WriteData{Type: websocket.TextMessage, Payload: payload})
}

// SendBytes queues a binary message
func (h *Hub) SendBytes(clientID string, payload []byte) error {
	c := h.client(clientID)
	if c == nil {
		return nil
	}
	return c.enqueue(WriteData{Type: websocket.BinaryMessage, Payload: payload})
}

// SendJSON marshals v and queues it as a text message
func (h *Hub) SendJSON(clientID string, v interface{}) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}
	return h.SendText(clientID, payload)
}

// ActiveClients returns the identities with a live handle
func (h *Hub) ActiveClients() []string {
	h.mu.RLock()
	ids := make([]string, 0, len(h.clients))
	for id := range h.clients {
		ids = append(ids, id)
	}
	h.mu.RUnlock()

	sort.Strings(ids)
	return ids
}

// Count returns the number of live handles
func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Run sweeps orphaned sessions and idle connections until ctx is done
func (h *Hub) Run(ctx context.Context) {
	ticker := time.NewTicker(h.config.SweepInterval)
	defer ticker.Stop()

	h.logger.Info("Connection janitor started",
		zap.Duration("interval", h.config.SweepInterval),
		zap.Duration("idleTimeout", h.config.IdleTimeout))

	for {
		select {
		case <-ctx.Done():
			h.logger.Info("Connection janitor stopped")
			return
		case now := <-ticker.C:
			h.sweep(now)
		}
	}
}

func (h *Hub) sweep(now time.Time) {
	var idle []*Client

	h.mu.Lock()
	for _, session := range h.store.List() {
		if _, ok := h.clients[session.ClientID]; !ok {
			h.store.Remove(session.ClientID)
			h.logger.Warn("Removed orphaned session", zap.String("clientID", session.ClientID))
		}
	}
	for _, c := range h.clients {
		if now.Sub(c.lastSeen()) > h.config.IdleTimeout {
			idle = append(idle, c)
		}
	}
	h.mu.Unlock()

	for _, c := range idle {
		h.logger.Info("Closing idle connection",
			zap.String("clientID", c.clientID),
			zap.Time("lastSeen", c.lastSeen()))
		c.closeWith(websocket.CloseGoingAway, "idle timeout")
	}
}

// Shutdown closes every live connection
func (h *Hub) Shutdown() {
	h.mu.RLock()
	clients := make([]*Client, 0, len(h.clients))
	for _, c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.RUnlock()

	for _, c := range clients {
		c.closeWith(websocket.CloseGoingAway, "server shutting down")
	}
	h.logger.Info("Closed all connections", zap.Int("count", len(clients)))
}
