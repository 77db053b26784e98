package wsconn

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/rapidaai/mesh/internal/commons"
	"github.com/rapidaai/mesh/internal/envelope"
)

const (
	// DefaultMaxQueue is §4.7's default outgoing queue capacity.
	DefaultMaxQueue = 100
	// maxDrops is the session-lifetime queue-full budget before a
	// forced close, per §4.7's "Queue policy".
	maxDrops = 3
	// sendPollInterval is the Sender task's liveness re-check cadence.
	sendPollInterval = 1 * time.Second
	// CloseCodeBackpressure is the close code used when a connection
	// is force-closed for exceeding the drop budget.
	CloseCodeBackpressure = websocket.CloseInternalServerErr // 1011
)

// Handlers are the per-kind dispatch callbacks the Receiver task invokes
// for inbound client messages. Any handler may be nil, in which case
// that kind is logged and ignored.
type Handlers struct {
	AudioChunk     func(envelope.AudioChunkMessage) error
	EditComponent  func(envelope.EditComponentMessage) error
	ControlSession func(envelope.ControlSessionMessage) error
	PingCustom     func() error
}

// Connection is one C7 Client Connection: a WebSocket, a bounded
// outgoing queue, and three cooperating tasks (sender, receiver,
// heartbeat). Not safe to Start twice.
type Connection struct {
	conn      *websocket.Conn
	sessionID string
	logger    commons.Logger
	handlers  Handlers

	queue             chan []byte
	heartbeatInterval time.Duration
	receiveTimeout    time.Duration

	writeMu   sync.Mutex
	closeOnce sync.Once
	closed    chan struct{}
	wg        sync.WaitGroup

	drops int32 // atomic

	// onClose is invoked once, under Close, to release any upstream
	// proxy connection (e.g. the paired STT-side WebSocket).
	onClose func()
}

// NewConnection builds a Connection. maxQueue defaults to
// DefaultMaxQueue when <= 0.
func NewConnection(conn *websocket.Conn, sessionID string, maxQueue int, heartbeatInterval time.Duration, handlers Handlers, onClose func(), logger commons.Logger) *Connection {
	if maxQueue <= 0 {
		maxQueue = DefaultMaxQueue
	}
	return &Connection{
		conn:              conn,
		sessionID:         sessionID,
		logger:            logger,
		handlers:          handlers,
		queue:             make(chan []byte, maxQueue),
		heartbeatInterval: heartbeatInterval,
		receiveTimeout:    heartbeatInterval + 5*time.Second,
		closed:            make(chan struct{}),
		onClose:           onClose,
	}
}

// SessionID returns this connection's session identifier.
func (c *Connection) SessionID() string { return c.sessionID }

// Enqueue never blocks: on a full queue it drops the message and
// increments the session-lifetime drop counter, force-closing the
// connection once that counter exceeds maxDrops.
func (c *Connection) Enqueue(payload []byte) error {
	select {
	case <-c.closed:
		return fmt.Errorf("wsconn: connection %s is closed", c.sessionID)
	default:
	}

	select {
	case c.queue <- payload:
		return nil
	default:
		n := atomic.AddInt32(&c.drops, 1)
		c.logger.Warnf("wsconn: queue full for %s, dropped message (drops=%d)", c.sessionID, n)
		if n > maxDrops {
			go func() {
				_ = c.Close(CloseCodeBackpressure, "backpressure")
			}()
			return nil
		}
		c.tryNotifyDegraded(n)
		return nil
	}
}

// tryNotifyDegraded makes a single best-effort, non-blocking attempt to
// warn the client that its queue is dropping messages, per SPEC_FULL.md
// §6's degraded-status decision for drops within the maxDrops budget. It
// never recurses into Enqueue (which would double-count the drop) and
// silently gives up if the queue is still full.
func (c *Connection) tryNotifyDegraded(drops int32) {
	msg := fmt.Sprintf("outgoing queue full, drops=%d", drops)
	payload, err := json.Marshal(envelope.ServiceStatusEnvelope{
		Kind:        envelope.KindServiceStatus,
		ServiceName: "wsconn",
		Status:      envelope.StatusDegraded,
		Message:     &msg,
	})
	if err != nil {
		c.logger.Warnf("wsconn: marshal degraded status for %s: %v", c.sessionID, err)
		return
	}
	select {
	case c.queue <- payload:
	default:
	}
}

// Start launches the sender, receiver, and heartbeat tasks. It returns
// immediately; callers typically block on a completion signal from the
// receiver (e.g. by waiting on ctx.Done() or a caller-owned channel).
func (c *Connection) Start(ctx context.Context) {
	c.wg.Add(3)
	go c.runSender(ctx)
	go c.runReceiver(ctx)
	go c.runHeartbeat(ctx)
}

// Wait blocks until all three tasks have terminated.
func (c *Connection) Wait() {
	c.wg.Wait()
}

func (c *Connection) runSender(ctx context.Context) {
	defer c.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case <-c.closed:
			return
		case payload := <-c.queue:
			if err := c.writeText(payload); err != nil {
				c.logger.Warnf("wsconn: write error for %s: %v", c.sessionID, err)
				go func() { _ = c.Close(websocket.CloseNormalClosure, "write error") }()
				return
			}
		case <-time.After(sendPollInterval):
			// Re-check liveness; loop.
		}
	}
}

func (c *Connection) writeText(payload []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.conn.WriteMessage(websocket.TextMessage, payload)
}

func (c *Connection) runReceiver(ctx context.Context) {
	defer c.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case <-c.closed:
			return
		default:
		}

		_ = c.conn.SetReadDeadline(time.Now().Add(c.receiveTimeout))
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				c.logger.Debugf("wsconn: read error for %s: %v", c.sessionID, err)
			}
			go func() { _ = c.Close(websocket.CloseNormalClosure, "read terminated") }()
			return
		}

		c.dispatch(message)
	}
}

func (c *Connection) dispatch(message []byte) {
	var inbound envelope.InboundEnvelope
	if err := json.Unmarshal(message, &inbound); err != nil {
		c.logger.Warnf("wsconn: malformed message from %s: %v", c.sessionID, err)
		return
	}

	switch inbound.Kind {
	case envelope.KindAudioChunk:
		if c.handlers.AudioChunk == nil {
			return
		}
		var msg envelope.AudioChunkMessage
		if err := json.Unmarshal(message, &msg); err != nil {
			c.logger.Warnf("wsconn: malformed audio_chunk from %s: %v", c.sessionID, err)
			return
		}
		if err := c.handlers.AudioChunk(msg); err != nil {
			c.logger.Warnf("wsconn: audio_chunk handler error for %s: %v", c.sessionID, err)
		}

	case envelope.KindEditComponent:
		if c.handlers.EditComponent == nil {
			return
		}
		var msg envelope.EditComponentMessage
		if err := json.Unmarshal(message, &msg); err != nil {
			c.logger.Warnf("wsconn: malformed edit_component from %s: %v", c.sessionID, err)
			return
		}
		if err := c.handlers.EditComponent(msg); err != nil {
			c.logger.Warnf("wsconn: edit_component handler error for %s: %v", c.sessionID, err)
		}

	case envelope.KindControlSession:
		if c.handlers.ControlSession == nil {
			return
		}
		var msg envelope.ControlSessionMessage
		if err := json.Unmarshal(message, &msg); err != nil {
			c.logger.Warnf("wsconn: malformed control_session from %s: %v", c.sessionID, err)
			return
		}
		if err := c.handlers.ControlSession(msg); err != nil {
			c.logger.Warnf("wsconn: control_session handler error for %s: %v", c.sessionID, err)
		}

	case envelope.KindPingCustom:
		if c.handlers.PingCustom == nil {
			return
		}
		if err := c.handlers.PingCustom(); err != nil {
			c.logger.Warnf("wsconn: ping_custom handler error for %s: %v", c.sessionID, err)
		}

	default:
		c.logger.Warnf("wsconn: unknown kind %q from %s", inbound.Kind, c.sessionID)
	}
}

func (c *Connection) runHeartbeat(ctx context.Context) {
	defer c.wg.Done()
	ticker := time.NewTicker(c.heartbeatInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-c.closed:
			return
		case <-ticker.C:
			c.writeMu.Lock()
			err := c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(5*time.Second))
			c.writeMu.Unlock()
			if err != nil {
				c.logger.Debugf("wsconn: ping failed for %s: %v", c.sessionID, err)
			}
		}
	}
}

// Close idempotently tears down all three tasks, closes the socket
// with the given close code/reason (best-effort), and releases any
// upstream proxy connection.
func (c *Connection) Close(code int, reason string) error {
	var closeErr error
	c.closeOnce.Do(func() {
		close(c.closed)

		c.writeMu.Lock()
		closeErr = c.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(code, reason), time.Now().Add(time.Second))
		c.writeMu.Unlock()

		_ = c.conn.Close()

		if c.onClose != nil {
			c.onClose()
		}
	})
	return closeErr
}
