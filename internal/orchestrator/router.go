// Package orchestrator implements the Mesh's C8 Orchestrator Router:
// WebSocket admission, the bus-to-client fan-out handler, and the REST
// session surface, grounded on the teacher's gin route-group wiring
// (router/assistant.go, router/healthcheck.go) and its WebSocket
// upgrader usage (api/talk/webrtc.go).
package orchestrator

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/google/uuid"

	"github.com/rapidaai/mesh/internal/bus"
	"github.com/rapidaai/mesh/internal/commons"
	"github.com/rapidaai/mesh/internal/envelope"
	"github.com/rapidaai/mesh/internal/mappings"
	"github.com/rapidaai/mesh/internal/sessionstore"
	"github.com/rapidaai/mesh/internal/token"
	"github.com/rapidaai/mesh/internal/wsconn"
)

// Mapper is the subset of the C9 Trigger/Mapper service the `/v1/map`
// design-mapper collaborator REST endpoint calls directly.
type Mapper interface {
	Map(styles, brandRefs []string, component string) (tokens map[string]string, classes, usedBrands, usedStyles []string)
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// fanOutChannels is the full list of bus channels the orchestrator
// subscribes to on behalf of connected clients, per §6's "Bus
// channels" list (service_status excluded here since it's produced by
// the orchestrator itself, not consumed from the bus).
var fanOutChannels = []string{
	string(envelope.ChannelTranscripts),
	string(envelope.ChannelIntents),
	string(envelope.ChannelDesignSpecs),
	string(envelope.ChannelComponents),
	string(envelope.ChannelInsights),
}

// STTForwarder relays decoded audio bytes from an admitted client
// connection to that session's STT WebSocket. Left nil in
// deployments where the STT process is reached some other way.
type STTForwarder func(sessionID string, pcm []byte) error

// Router wires together admission, fan-out, and the REST surface.
type Router struct {
	manager      *wsconn.Manager
	tokens       token.Service
	sessions     sessionstore.Store
	busClient    bus.Client
	forwardAudio STTForwarder
	maxQueue     int
	heartbeat    time.Duration
	logger       commons.Logger

	mapper         Mapper
	mappingsLoader *mappings.Loader
}

// WithMapper attaches the design-mapper collaborator's `/v1/map` and
// `/v1/reload` dependencies. Left unset, those two routes are not
// registered.
func (r *Router) WithMapper(mapper Mapper, mappingsLoader *mappings.Loader) *Router {
	r.mapper = mapper
	r.mappingsLoader = mappingsLoader
	return r
}

// New builds a Router.
func New(manager *wsconn.Manager, tokens token.Service, sessions sessionstore.Store, busClient bus.Client, forwardAudio STTForwarder, maxQueue int, heartbeat time.Duration, logger commons.Logger) *Router {
	return &Router{
		manager:      manager,
		tokens:       tokens,
		sessions:     sessions,
		busClient:    busClient,
		forwardAudio: forwardAudio,
		maxQueue:     maxQueue,
		heartbeat:    heartbeat,
		logger:       logger,
	}
}

// RunFanOut subscribes to the bus channels clients care about and
// broadcasts every message to all registered connections, wrapped with
// the kind tag corresponding to its source channel. Blocks until ctx is
// cancelled.
func (r *Router) RunFanOut(ctx context.Context) {
	r.busClient.Subscribe(ctx, fanOutChannels, r.handleBusMessage)
}

func (r *Router) handleBusMessage(channel string, payload []byte) {
	kind, ok := envelope.KindForChannel(envelope.BusChannel(channel))
	if !ok {
		r.logger.Warnf("orchestrator: dropping message from unknown channel %q", channel)
		return
	}

	var fields map[string]interface{}
	if err := json.Unmarshal(payload, &fields); err != nil {
		r.logger.Warnf("orchestrator: malformed payload on channel %q: %v", channel, err)
		return
	}
	fields["kind"] = string(kind)

	if envelope.BusChannel(channel) == envelope.ChannelTranscripts {
		r.recordUtteranceIfFinal(fields)
	}

	wrapped, err := json.Marshal(fields)
	if err != nil {
		r.logger.Warnf("orchestrator: re-marshal failed for channel %q: %v", channel, err)
		return
	}
	r.manager.Broadcast(wrapped)
}

// recordUtteranceIfFinal increments the session's utterance counter for
// a transcripts-channel payload. The pipeline only publishes finalized
// utterances to that channel (partials stay WS-only), so every message
// here represents one completed utterance, backing the
// `/v1/sessions/{id}/summary` utterance_count field.
func (r *Router) recordUtteranceIfFinal(fields map[string]interface{}) {
	sessionID, _ := fields["session_id"].(string)
	if sessionID == "" {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := r.sessions.IncrementUtteranceCount(ctx, sessionID); err != nil {
		r.logger.Warnf("orchestrator: increment utterance count for %s: %v", sessionID, err)
	}
}

// HandleWS is the gin handler for `/v1/ws/{session_id}`. The handshake
// is always completed so the rejection itself is a normal WS close
// frame: the connection is admitted only if the presented token's
// subject equals session_id, closing with 1008 (policy violation)
// otherwise, per §8 scenario 3.
func (r *Router) HandleWS(c *gin.Context) {
	sessionID := c.Param("session_id")
	tok := c.Query("token")

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		r.logger.Warnf("orchestrator: upgrade failed for %s: %v", sessionID, err)
		return
	}

	claims, err := r.tokens.Verify(tok)
	if err != nil || claims.Subject != sessionID {
		r.closeWithPolicyViolation(conn, "invalid session token")
		return
	}

	if _, err := r.sessions.Claim(c.Request.Context(), sessionID); err != nil {
		r.logger.Warnf("orchestrator: claim failed for %s: %v", sessionID, err)
		r.closeWithPolicyViolation(conn, "session already claimed")
		return
	}

	// client is forward-declared so the handler closures below can
	// acknowledge via client.Enqueue even though the Connection that
	// owns it isn't constructed until after the handlers it dispatches
	// to. The closures only fire once Start is called below, by which
	// point client is assigned.
	var client *wsconn.Connection

	handlers := wsconn.Handlers{
		AudioChunk: func(msg envelope.AudioChunkMessage) error {
			if r.forwardAudio == nil {
				return nil
			}
			pcm, err := base64.StdEncoding.DecodeString(msg.DataB64)
			if err != nil {
				return fmt.Errorf("orchestrator: decode audio_chunk data_b64: %w", err)
			}
			return r.forwardAudio(sessionID, pcm)
		},
		EditComponent: func(msg envelope.EditComponentMessage) error {
			return r.acknowledge(client, "edit_component", fmt.Sprintf("edit accepted for spec %s", msg.SpecID))
		},
		ControlSession: func(msg envelope.ControlSessionMessage) error {
			return r.acknowledge(client, "control_session", fmt.Sprintf("action %q acknowledged", msg.Action))
		},
		PingCustom: func() error {
			return r.acknowledge(client, "ping_custom", "pong")
		},
	}

	client = wsconn.NewConnection(conn, sessionID, r.maxQueue, r.heartbeat, handlers, func() {
		r.manager.Deregister(sessionID)
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := r.sessions.Complete(ctx, sessionID); err != nil {
			r.logger.Warnf("orchestrator: complete session %s: %v", sessionID, err)
		}
	}, r.logger)

	r.manager.Register(client)
	client.Start(c.Request.Context())
	client.Wait()
}

// acknowledge enqueues a `service_status` reply for the inbound message
// kinds spec.md §4.7 says to acknowledge (edit_component, control_session)
// or reply to (ping_custom).
func (r *Router) acknowledge(client *wsconn.Connection, serviceName, message string) error {
	payload, err := json.Marshal(envelope.ServiceStatusEnvelope{
		Kind:        envelope.KindServiceStatus,
		ServiceName: serviceName,
		Status:      envelope.StatusUp,
		Message:     &message,
	})
	if err != nil {
		return fmt.Errorf("orchestrator: marshal ack for %s: %w", serviceName, err)
	}
	return client.Enqueue(payload)
}

func (r *Router) closeWithPolicyViolation(conn *websocket.Conn, reason string) {
	_ = conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.ClosePolicyViolation, reason),
		time.Now().Add(time.Second))
	_ = conn.Close()
}

// generateSessionID mints a new session UUID for POST /v1/sessions.
func generateSessionID() string {
	return uuid.NewString()
}
