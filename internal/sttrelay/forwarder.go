// Package sttrelay implements the orchestrator side of the audio_chunk
// relay: a real orchestrator.STTForwarder that dials the C5 STT
// process's per-session stream socket and writes binary PCM frames to
// it, grounded on cartesiaSpeechToText's lazy-dial-then-WriteMessage
// client idiom (internal/transformer/cartesia/stt.go) re-pointed at an
// in-fleet peer instead of an upstream vendor.
package sttrelay

import (
	"fmt"
	"net/url"
	"strings"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/rapidaai/mesh/internal/commons"
)

// Forwarder relays decoded audio bytes to each session's STT stream
// socket, dialing lazily on first use and caching the connection until
// a write to it fails or the Forwarder is closed. Nothing releases a
// session's cached connection when that client session ends. Safe for
// concurrent use across sessions; a
// single session's calls are expected to arrive serially off that
// session's own Receiver task.
type Forwarder struct {
	baseURL string
	logger  commons.Logger

	mu    sync.Mutex
	conns map[string]*websocket.Conn
}

// New builds a Forwarder dialing against baseURL (e.g.
// "ws://stt:8081"), appending `/v1/stream/{session_id}` per session.
func New(baseURL string, logger commons.Logger) *Forwarder {
	return &Forwarder{
		baseURL: strings.TrimRight(baseURL, "/"),
		logger:  logger,
		conns:   make(map[string]*websocket.Conn),
	}
}

// Forward implements orchestrator.STTForwarder.
func (f *Forwarder) Forward(sessionID string, pcm []byte) error {
	conn, err := f.connFor(sessionID)
	if err != nil {
		return err
	}
	if err := conn.WriteMessage(websocket.BinaryMessage, pcm); err != nil {
		f.drop(sessionID)
		return fmt.Errorf("sttrelay: write to %s: %w", sessionID, err)
	}
	return nil
}

func (f *Forwarder) connFor(sessionID string) (*websocket.Conn, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if conn, ok := f.conns[sessionID]; ok {
		return conn, nil
	}

	target := fmt.Sprintf("%s/v1/stream/%s", f.baseURL, url.PathEscape(sessionID))
	conn, _, err := websocket.DefaultDialer.Dial(target, nil)
	if err != nil {
		return nil, fmt.Errorf("sttrelay: dial %s: %w", target, err)
	}
	f.conns[sessionID] = conn
	return conn, nil
}

func (f *Forwarder) drop(sessionID string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if conn, ok := f.conns[sessionID]; ok {
		_ = conn.Close()
		delete(f.conns, sessionID)
	}
}

// Close releases every cached session connection, for use at process
// shutdown.
func (f *Forwarder) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for sessionID, conn := range f.conns {
		_ = conn.Close()
		delete(f.conns, sessionID)
	}
	return nil
}
