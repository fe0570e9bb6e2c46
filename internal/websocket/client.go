package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/satriahrh/formcoach/domain"
	"github.com/satriahrh/formcoach/domain/entities"
	"github.com/satriahrh/formcoach/usecase"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// CloseReplaced is sent to a connection superseded by a newer one for the same identity.
	CloseReplaced = 4000
)

func newUpgrader(allowedOrigins []string) websocket.Upgrader {
	return websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			if origin == "" || len(allowedOrigins) == 0 {
				return true
			}
			u, err := url.Parse(origin)
			if err != nil {
				return false
			}
			for _, allowed := range allowedOrigins {
				if allowed == "*" || strings.EqualFold(allowed, origin) || strings.EqualFold(allowed, u.Host) {
					return true
				}
			}
			return false
		},
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
	}
}

type WriteData struct {
	// MessageType is the type of the websocket message.
	// Expect websocket.TextMessage or websocket.BinaryMessage
	Type    int
	Payload []byte
}

// ConnectOptions describe a connection request
type ConnectOptions struct {
	// ClientID is the identity to bind; a new one is assigned when empty
	ClientID     string
	ExerciseType *string
	AudioEnabled *bool
	// FrameInterval drops frames arriving sooner than this after the last accepted one
	FrameInterval time.Duration
}

// Client is a middleman between the websocket connection and the hub.
type Client struct {
	hub *Hub

	// The websocket connection.
	conn *websocket.Conn

	// Buffered channel of outbound messages. Never closed; done signals shutdown.
	send chan WriteData

	// Frames waiting for the worker.
	frames chan usecase.RawFrame

	done      chan struct{}
	closeOnce sync.Once

	// drained is closed once the worker has returned. The worker of the next
	// handle for the same identity waits on it through predecessor.
	drained     chan struct{}
	predecessor <-chan struct{}

	clientID  string
	configure func(*entities.Session)

	frameInterval time.Duration
	lastFrameAt   time.Time // only touched by readPump
	lastSeenNano  atomic.Int64

	logger *zap.Logger
}

// HandleWebSocket upgrades the request and starts serving the client.
func HandleWebSocket(hub *Hub, c echo.Context, opts ConnectOptions) error {
	conn, err := hub.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		hub.logger.Error("WebSocket upgrade failed", zap.Error(err))
		return err
	}

	clientID := opts.ClientID
	assigned := false
	if clientID == "" {
		clientID = uuid.NewString()
		assigned = true
	}

	client := newClient(hub, conn, clientID, opts)
	hub.Register(client)

	if assigned {
		if err := client.sendJSON(CreateConnectedMessage(clientID)); err != nil {
			client.logger.Warn("Failed to announce client ID", zap.Error(err))
		}
	}

	// Allow collection of memory referenced by the caller by doing all work in
	// new goroutines.
	go client.writePump()
	go client.runWorker()
	go client.readPump()

	return nil
}

func newClient(hub *Hub, conn *websocket.Conn, clientID string, opts ConnectOptions) *Client {
	c := &Client{
		hub:           hub,
		conn:          conn,
		send:          make(chan WriteData, hub.config.SendQueueSize),
		frames:        make(chan usecase.RawFrame, hub.config.FrameQueueSize),
		done:          make(chan struct{}),
		drained:       make(chan struct{}),
		clientID:      clientID,
		frameInterval: opts.FrameInterval,
		logger:        hub.logger.With(zap.String("clientID", clientID)),
	}
	if opts.ExerciseType != nil || opts.AudioEnabled != nil {
		exerciseType, audioEnabled := opts.ExerciseType, opts.AudioEnabled
		c.configure = func(s *entities.Session) {
			if exerciseType != nil {
				s.ExerciseType = *exerciseType
			}
			if audioEnabled != nil {
				s.AudioEnabled = *audioEnabled
			}
		}
	}
	c.touch()
	return c
}

// ClientID returns the identity bound to this connection
func (c *Client) ClientID() string {
	return c.clientID
}

func (c *Client) touch() {
	c.lastSeenNano.Store(time.Now().UnixNano())
}

func (c *Client) lastSeen() time.Time {
	return time.Unix(0, c.lastSeenNano.Load())
}

// closeWith sends a close frame with the given code and tears the connection down.
// Safe to call more than once and from any goroutine.
func (c *Client) closeWith(code int, reason string) {
	c.closeOnce.Do(func() {
		close(c.done)
		deadline := time.Now().Add(writeWait)
		_ = c.conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(code, reason), deadline)
		c.conn.Close()
	})
}

// enqueue hands a message to the writer. It never blocks: a client too slow
// to drain its queue is disconnected.
func (c *Client) enqueue(msg WriteData) error {
	select {
	case <-c.done:
		return domain.ErrTransportClosed
	default:
	}

	select {
	case c.send <- msg:
		return nil
	case <-c.done:
		return domain.ErrTransportClosed
	default:
		c.logger.Warn("Send queue full, closing connection", zap.Int("queued", len(c.send)))
		c.closeWith(websocket.CloseTryAgainLater, "send queue full")
		return domain.ErrTransportClosed
	}
}

func (c *Client) sendJSON(v interface{}) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return c.enqueue(WriteData{Type: websocket.TextMessage, Payload: payload})
}

// readPump pumps messages from the websocket connection to the worker.
// It owns the teardown of the client.
func (c *Client) readPump() {
	defer c.hub.Unregister(c)

	c.conn.SetReadLimit(c.hub.config.MaxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	// Pongs keep the read deadline alive but do not count as activity for
	// the idle sweep.
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		messageType, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseNoStatusReceived) {
				c.logger.Warn("WebSocket closed unexpectedly", zap.Error(err))
			}
			return
		}
		c.touch()
		c.conn.SetReadDeadline(time.Now().Add(pongWait))

		inbound := Classify(messageType, message)
		switch inbound.Kind {
		case InboundControl:
			c.handleControl(inbound.Type)
		case InboundFrame:
			c.submitFrame(inbound.Frame)
		}
	}
}

// writePump pumps messages from the send queue to the websocket connection.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case message := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(message.Type, message.Payload); err != nil {
				c.logger.Warn("Failed to write message", zap.Error(err))
				c.closeWith(websocket.CloseAbnormalClosure, "")
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.closeWith(websocket.CloseAbnormalClosure, "")
				return
			}

		case <-c.done:
			return
		}
	}
}

// handleControl applies a control message inline so it takes effect even
// while the worker is busy with a frame.
func (c *Client) handleControl(msgType MessageType) {
	if msgType == MessageTypePing {
		if err := c.sendJSON(CreatePongMessage()); err != nil {
			c.logger.Debug("Failed to send pong", zap.Error(err))
		}
		return
	}

	activate, ack, ok := sessionTransition(msgType)
	if !ok {
		c.logger.Debug("Ignoring unknown control message", zap.String("type", string(msgType)))
		return
	}

	_, err := c.hub.store.Update(c.clientID, func(s *entities.Session) error {
		if activate {
			s.Activate()
		} else {
			s.Deactivate()
		}
		return nil
	})
	if err != nil {
		c.logger.Error("Failed to update session state", zap.String("type", string(msgType)), zap.Error(err))
		return
	}
	c.logger.Info("Session state changed", zap.String("type", string(msgType)))

	if c.hub.config.AckControlMessages {
		if err := c.sendJSON(CreateAckMessage(ack)); err != nil {
			c.logger.Debug("Failed to send acknowledgment", zap.Error(err))
		}
	}
}

func (c *Client) submitFrame(frame usecase.RawFrame) {
	if c.frameInterval > 0 {
		now := time.Now()
		if !c.lastFrameAt.IsZero() && now.Sub(c.lastFrameAt) < c.frameInterval {
			return
		}
		c.lastFrameAt = now
	}

	// Controls are applied inline on this goroutine, so the state read here
	// is the state the frame arrived in.
	if session, err := c.hub.store.Get(c.clientID); err == nil && !session.IsActive() {
		frame.Paused = true
	}

	select {
	case c.frames <- frame:
	default:
		c.logger.Warn("Frame queue full, dropping frame", zap.Int("size", len(frame.Data)))
	}
}

// runWorker processes frames one at a time in arrival order. It starts only
// after the previous handle's worker for the same identity has finished.
func (c *Client) runWorker() {
	defer c.hub.workerDone(c)
	defer close(c.drained)

	if c.predecessor != nil {
		<-c.predecessor
	}

	for {
		select {
		case <-c.done:
			return
		case frame := <-c.frames:
			select {
			case <-c.done:
				return
			default:
			}
			c.handleFrame(frame)
		}
	}
}

func (c *Client) handleFrame(frame usecase.RawFrame) {
	// detached from the connection so in-flight backend calls finish after a disconnect
	ctx, cancel := context.WithTimeout(context.Background(), c.hub.config.ProcessTimeout)
	defer cancel()

	result := c.hub.pipeline.Process(ctx, c.clientID, frame)
	switch result.Outcome {
	case usecase.OutcomeSuppressed:
		return

	case usecase.OutcomeFailed:
		c.handleFailure(result.Err)

	case usecase.OutcomeDelivered:
		c.deliver(ctx, result.Record)
	}
}

func (c *Client) handleFailure(err error) {
	var text string
	switch {
	case errors.Is(err, domain.ErrMalformedInput):
		text = ErrorTextInvalidImage
	case errors.Is(err, domain.ErrAnalysisFailed):
		text = ErrorTextAnalysisFailed
	case errors.Is(err, domain.ErrSessionNotFound):
		c.logger.Error("Session vanished while connected", zap.Error(err))
		c.closeWith(websocket.CloseInternalServerErr, "session not found")
		return
	default:
		c.logger.Error("Frame processing failed", zap.Error(err))
		return
	}

	if err := c.sendJSON(CreateErrorMessage(text)); err != nil {
		c.logger.Debug("Dropped error message", zap.Error(err))
	}
}

// deliver sends the text feedback, then the audio when the record allows it.
func (c *Client) deliver(ctx context.Context, record entities.FeedbackRecord) {
	if err := c.sendJSON(CreateFeedbackMessage(record)); err != nil {
		c.logger.Debug("Dropped feedback", zap.Error(err))
		return
	}

	if !record.AudioAvailable {
		return
	}

	audio, err := c.hub.pipeline.SynthesizeFeedback(ctx, c.clientID, record)
	if err != nil {
		if !errors.Is(err, domain.ErrSuppressed) {
			c.logger.Warn("Audio feedback skipped", zap.Error(err))
		}
		return
	}

	if err := c.enqueue(WriteData{Type: websocket.BinaryMessage, Payload: audio}); err != nil {
		c.logger.Debug("Dropped audio", zap.Error(err))
		return
	}
	if err := c.hub.pipeline.RecordAudioEmission(c.clientID, time.Now()); err != nil {
		c.logger.Warn("Failed to record audio emission", zap.Error(err))
	}
	c.logger.Debug("Audio feedback queued", zap.Int("bytes", len(audio)))
}
