package sttpipeline

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/rapidaai/mesh/internal/bus"
	"github.com/rapidaai/mesh/internal/commons"
	"github.com/rapidaai/mesh/internal/envelope"
	"github.com/rapidaai/mesh/internal/transcription"
	"github.com/rapidaai/mesh/internal/vad"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// DetectorFactory builds a fresh speech detector per connection, since
// the teacher's Cartesia STT transformer likewise opens a dedicated
// upstream connection per session rather than sharing one across
// clients.
type DetectorFactory func() (vad.SpeechDetector, error)

// Server accepts `/v1/stream/{session_id}` connections: each gets its
// own Segmenter and Pipeline, reading binary PCM frames and writing back
// partial/final transcript envelopes as JSON text frames, grounded on
// cartesiaSpeechToText's read-loop-plus-write idiom re-expressed as a
// server rather than an upstream client.
type Server struct {
	newDetector     DetectorFactory
	pool            *transcription.Pool
	busClient       bus.Client
	sampleRate      int
	windowSamples   int
	minSilenceMs    int
	language        string
	partialInterval time.Duration
	logger          commons.Logger
}

func NewServer(newDetector DetectorFactory, pool *transcription.Pool, busClient bus.Client, sampleRate, windowSamples, minSilenceMs int, language string, partialInterval time.Duration, logger commons.Logger) *Server {
	return &Server{
		newDetector:     newDetector,
		pool:            pool,
		busClient:       busClient,
		sampleRate:      sampleRate,
		windowSamples:   windowSamples,
		minSilenceMs:    minSilenceMs,
		language:        language,
		partialInterval: partialInterval,
		logger:          logger,
	}
}

// HandleStream is the gin handler for `/v1/stream/{session_id}`.
func (s *Server) HandleStream(c *gin.Context) {
	sessionID := c.Param("session_id")

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		s.logger.Warnf("sttpipeline: upgrade failed for %s: %v", sessionID, err)
		return
	}
	defer conn.Close()

	detector, err := s.newDetector()
	if err != nil {
		s.logger.Errorf("sttpipeline: build detector for %s: %v", sessionID, err)
		return
	}
	segmenter := vad.NewSegmenter(detector, s.sampleRate, s.windowSamples, s.minSilenceMs, s.logger)

	emit := func(v interface{}) error {
		payload, err := json.Marshal(v)
		if err != nil {
			return fmt.Errorf("sttpipeline: marshal emit: %w", err)
		}
		return conn.WriteMessage(websocket.TextMessage, payload)
	}

	pipeline := New(segmenter, s.pool, s.busClient, emit, sessionID, s.sampleRate, s.language, s.partialInterval, s.logger)

	ctx := c.Request.Context()
	for {
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			break
		}
		if msgType != websocket.BinaryMessage {
			continue
		}
		if err := pipeline.IngestAudio(ctx, data); err != nil {
			s.logger.Warnf("sttpipeline: ingest for %s: %v", sessionID, err)
			s.closeWithError(conn, emit, sessionID, err)
			return
		}
	}

	if err := pipeline.Close(ctx); err != nil {
		s.logger.Warnf("sttpipeline: flush on close for %s: %v", sessionID, err)
	}
}

// closeWithError delivers a fatal `error` envelope to the client and
// closes with 1011, per §7's "unhandled exception in pipeline → send
// error envelope, close 1011".
func (s *Server) closeWithError(conn *websocket.Conn, emit func(interface{}) error, sessionID string, cause error) {
	message := cause.Error()
	if err := emit(envelope.ErrorEnvelope{
		Kind:    envelope.KindError,
		Message: "stream processing failed",
		Detail:  &message,
	}); err != nil {
		s.logger.Warnf("sttpipeline: emit error envelope for %s: %v", sessionID, err)
	}
	_ = conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseInternalServerErr, "pipeline error"),
		time.Now().Add(time.Second))
}
