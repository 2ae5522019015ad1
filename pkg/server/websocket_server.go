// Package server exposes the speech segmentation pipeline over WebSocket.
// Each connection gets its own stream.Session: binary messages carry raw
// 16-bit little-endian PCM, text messages carry JSON control events, and
// every pipeline result is pushed back to the client as a JSON event.
package server

import (
	"context"
	"errors"
	"log"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/cascade-audio/cascade/pkg/stream"
	"github.com/cascade-audio/cascade/pkg/trace"
)

// Config holds the configuration for the WebSocket server.
type Config struct {
	// Addr is the address to listen on (e.g., ":8080").
	Addr string

	// Path is the WebSocket endpoint path (e.g., "/v1/stream").
	Path string

	// AuthToken is the bearer token for authentication.
	// If empty, authentication is disabled.
	AuthToken string

	// MaxSessionsPerIP limits sessions per IP address.
	// 0 means no limit.
	MaxSessionsPerIP int

	// SessionTimeout is the maximum session duration.
	// 0 means no timeout.
	SessionTimeout time.Duration

	// Session is the per-connection pipeline configuration.
	Session stream.Config

	// ReadBufferSize is the WebSocket read buffer size.
	ReadBufferSize int

	// WriteBufferSize is the WebSocket write buffer size.
	WriteBufferSize int
}

// DefaultConfig returns the default server configuration.
func DefaultConfig() *Config {
	return &Config{
		Addr:             ":8080",
		Path:             "/v1/stream",
		MaxSessionsPerIP: 10,
		SessionTimeout:   30 * time.Minute,
		Session:          stream.DefaultConfig(),
		ReadBufferSize:   4096,
		WriteBufferSize:  4096,
	}
}

// WebSocketServer accepts audio streams over WebSocket and runs one
// segmentation session per connection.
type WebSocketServer struct {
	config  *Config
	factory stream.ClassifierFactory

	// Session management
	sessions   map[string]*stream.Session
	sessionsMu sync.RWMutex

	// IP-based session counting
	ipSessions   map[string]int
	ipSessionsMu sync.RWMutex

	// HTTP server
	httpServer *http.Server
	mux        *http.ServeMux

	// WebSocket upgrader
	upgrader websocket.Upgrader

	// Context for shutdown
	ctx    context.Context
	cancel context.CancelFunc
}

// NewWebSocketServer creates a server. factory builds the verdict oracle
// for each new connection.
func NewWebSocketServer(config *Config, factory stream.ClassifierFactory) *WebSocketServer {
	if config == nil {
		config = DefaultConfig()
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &WebSocketServer{
		config:     config,
		factory:    factory,
		sessions:   make(map[string]*stream.Session),
		ipSessions: make(map[string]int),
		mux:        http.NewServeMux(),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  config.ReadBufferSize,
			WriteBufferSize: config.WriteBufferSize,
			CheckOrigin: func(r *http.Request) bool {
				return true // Allow all origins; customize for production
			},
		},
		ctx:    ctx,
		cancel: cancel,
	}
}

// RegisterHandler registers an HTTP handler on the server's mux.
// Must be called before Start().
func (s *WebSocketServer) RegisterHandler(pattern string, handler http.HandlerFunc) {
	s.mux.HandleFunc(pattern, handler)
}

// Start starts the server.
func (s *WebSocketServer) Start(ctx context.Context) error {
	s.mux.HandleFunc(s.config.Path, s.handleWebSocket)

	s.httpServer = &http.Server{
		Addr:    s.config.Addr,
		Handler: s.mux,
	}

	log.Printf("[WebSocketServer] starting on %s%s", s.config.Addr, s.config.Path)

	errCh := make(chan error, 1)
	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-time.After(100 * time.Millisecond):
		// Server started successfully
		return nil
	}
}

// Stop stops the server gracefully.
func (s *WebSocketServer) Stop(ctx context.Context) error {
	s.cancel()

	// Close all sessions
	s.sessionsMu.Lock()
	for _, session := range s.sessions {
		if err := session.Close(ctx); err != nil {
			log.Printf("[WebSocketServer] [session %s] close: %v", session.ID(), err)
		}
	}
	s.sessions = make(map[string]*stream.Session)
	s.sessionsMu.Unlock()

	// Shutdown HTTP server
	if s.httpServer != nil {
		return s.httpServer.Shutdown(ctx)
	}
	return nil
}

// handleWebSocket handles WebSocket connections.
func (s *WebSocketServer) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	// Authentication
	if s.config.AuthToken != "" {
		authHeader := r.Header.Get("Authorization")
		if !strings.HasPrefix(authHeader, "Bearer ") {
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		token := strings.TrimPrefix(authHeader, "Bearer ")
		if token != s.config.AuthToken {
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
	}

	// Check IP session limit
	clientIP := getClientIP(r)
	if s.config.MaxSessionsPerIP > 0 {
		s.ipSessionsMu.RLock()
		count := s.ipSessions[clientIP]
		s.ipSessionsMu.RUnlock()

		if count >= s.config.MaxSessionsPerIP {
			http.Error(w, "Too many sessions from this IP", http.StatusTooManyRequests)
			return
		}
	}

	// Upgrade to WebSocket
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("[WebSocketServer] WebSocket upgrade failed: %v", err)
		return
	}

	ctx := s.ctx
	var cancel context.CancelFunc
	if s.config.SessionTimeout > 0 {
		ctx, cancel = context.WithTimeout(ctx, s.config.SessionTimeout)
	} else {
		ctx, cancel = context.WithCancel(ctx)
	}
	defer cancel()

	session, err := stream.NewSession(s.config.Session, s.factory)
	if err != nil {
		log.Printf("[WebSocketServer] failed to create session: %v", err)
		conn.Close()
		return
	}
	if err := session.Initialize(ctx); err != nil {
		log.Printf("[WebSocketServer] [session %s] initialize: %v", session.ID(), err)
		conn.Close()
		return
	}

	s.registerSession(session, clientIP)
	defer s.unregisterSession(session, clientIP)
	defer func() {
		if err := session.Close(context.Background()); err != nil {
			log.Printf("[WebSocketServer] [session %s] close: %v", session.ID(), err)
		}
	}()

	// One span per connection lifetime.
	ctx, span := trace.StartSpan(ctx, "server.Connection")
	defer span.End()
	span.SetAttributes(trace.ConnectionAttrs(session.ID(), "websocket", "open")...)

	writer := newConnWriter(conn)
	writer.send(&ServerEvent{Type: EventTypeSessionCreated, SessionID: session.ID()})

	s.handleSession(ctx, session, conn, writer)
}

// handleSession reads messages for one connection until it closes.
func (s *WebSocketServer) handleSession(ctx context.Context, session *stream.Session, conn *websocket.Conn, writer *connWriter) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		msgType, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Printf("[WebSocketServer] [session %s] WebSocket read error: %v", session.ID(), err)
			}
			return
		}

		switch msgType {
		case websocket.BinaryMessage:
			s.handleAudio(ctx, session, writer, data)
		case websocket.TextMessage:
			s.handleControl(session, writer, data)
		}
	}
}

// handleAudio runs one PCM chunk through the session and pushes the
// results back. Validation errors are reported to the client but do not
// end the connection.
func (s *WebSocketServer) handleAudio(ctx context.Context, session *stream.Session, writer *connWriter, data []byte) {
	results, err := session.ProcessChunk(ctx, data)

	for _, res := range results {
		writer.send(NewResultEvent(session.ID(), res))
	}

	if err != nil {
		code := "processing_failed"
		switch {
		case errors.Is(err, stream.ErrOddChunk):
			code = "odd_chunk"
		case errors.Is(err, stream.ErrChunkTooLarge):
			code = "chunk_too_large"
		}
		log.Printf("[WebSocketServer] [session %s] chunk rejected: %v", session.ID(), err)
		writer.send(NewErrorEvent(session.ID(), code, err.Error()))
	}
}

// handleControl applies a JSON control message.
func (s *WebSocketServer) handleControl(session *stream.Session, writer *connWriter, data []byte) {
	event, err := ParseClientEvent(data)
	if err != nil {
		writer.send(NewErrorEvent(session.ID(), "invalid_event", err.Error()))
		return
	}

	switch event.Type {
	case ClientEventSetState:
		state, err := ParseSystemState(event.State)
		if err != nil {
			writer.send(NewErrorEvent(session.ID(), "invalid_state", err.Error()))
			return
		}
		session.SetSystemState(state)
		writer.send(&ServerEvent{
			Type:      EventTypeStateUpdated,
			SessionID: session.ID(),
			State:     session.GetSystemState().String(),
		})

	case ClientEventGetStats:
		writer.send(&ServerEvent{
			Type:      EventTypeStats,
			SessionID: session.ID(),
			Stats: &StatsPayload{
				Session:   session.GetStats(),
				Interrupt: session.GetInterruptStats(),
			},
		})

	case ClientEventReset:
		if err := session.Reset(); err != nil {
			writer.send(NewErrorEvent(session.ID(), "reset_failed", err.Error()))
			return
		}
		writer.send(&ServerEvent{
			Type:      EventTypeStateUpdated,
			SessionID: session.ID(),
			State:     session.GetSystemState().String(),
		})

	case ClientEventResetStats:
		session.ResetStats()
		writer.send(&ServerEvent{
			Type:      EventTypeStats,
			SessionID: session.ID(),
			Stats: &StatsPayload{
				Session:   session.GetStats(),
				Interrupt: session.GetInterruptStats(),
			},
		})

	default:
		writer.send(NewErrorEvent(session.ID(), "unknown_event", "unknown event type: "+event.Type))
	}
}

// registerSession adds a session to the server.
func (s *WebSocketServer) registerSession(session *stream.Session, clientIP string) {
	s.sessionsMu.Lock()
	s.sessions[session.ID()] = session
	s.sessionsMu.Unlock()

	s.ipSessionsMu.Lock()
	s.ipSessions[clientIP]++
	s.ipSessionsMu.Unlock()

	log.Printf("[WebSocketServer] [session %s] registered from %s", session.ID(), clientIP)
}

// unregisterSession removes a session from the server.
func (s *WebSocketServer) unregisterSession(session *stream.Session, clientIP string) {
	s.sessionsMu.Lock()
	delete(s.sessions, session.ID())
	s.sessionsMu.Unlock()

	s.ipSessionsMu.Lock()
	s.ipSessions[clientIP]--
	if s.ipSessions[clientIP] <= 0 {
		delete(s.ipSessions, clientIP)
	}
	s.ipSessionsMu.Unlock()

	log.Printf("[WebSocketServer] [session %s] unregistered", session.ID())
}

// GetSession returns a session by ID.
func (s *WebSocketServer) GetSession(sessionID string) *stream.Session {
	s.sessionsMu.RLock()
	defer s.sessionsMu.RUnlock()
	return s.sessions[sessionID]
}

// SessionCount returns the number of active sessions.
func (s *WebSocketServer) SessionCount() int {
	s.sessionsMu.RLock()
	defer s.sessionsMu.RUnlock()
	return len(s.sessions)
}

// connWriter serializes JSON writes to one WebSocket connection. Gorilla
// connections support one concurrent writer only.
type connWriter struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

func newConnWriter(conn *websocket.Conn) *connWriter {
	return &connWriter{conn: conn}
}

func (w *connWriter) send(event *ServerEvent) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.conn.WriteJSON(event); err != nil {
		log.Printf("[WebSocketServer] write event: %v", err)
	}
}

func getClientIP(r *http.Request) string {
	// Check X-Forwarded-For header
	xff := r.Header.Get("X-Forwarded-For")
	if xff != "" {
		parts := strings.Split(xff, ",")
		return strings.TrimSpace(parts[0])
	}

	// Check X-Real-IP header
	xri := r.Header.Get("X-Real-IP")
	if xri != "" {
		return xri
	}

	// Fall back to RemoteAddr
	return strings.Split(r.RemoteAddr, ":")[0]
}
