// Package server accepts print requests over WebSocket and answers each one
// with the pipeline's result.
package server

import (
	"context"
	"encoding/json"
	"net/http"
	"slices"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/adcondev/print-servicio/internal/printing"
	"github.com/adcondev/print-servicio/internal/spooler"
)

// PrintService is the pipeline surface the server drives.
type PrintService interface {
	ListPrinters(ctx context.Context) ([]spooler.Printer, error)
	Submit(ctx context.Context, req printing.PrintJobRequest) printing.PrintResult
}

// TokenChecker validates API tokens presented in print messages.
type TokenChecker interface {
	Check(ip, token string) bool
}

// Config holds server configuration
type Config struct {
	// JobsPerMinute limits print messages per client address.
	JobsPerMinute int
	// MaxMessageBytes bounds one incoming message.
	MaxMessageBytes int64
	// AllowedOrigins lists accepted Origin patterns; empty enforces same origin.
	AllowedOrigins []string
}

// Message represents incoming WebSocket message
type Message struct {
	Type  string          `json:"type"`
	ID    string          `json:"id,omitempty"`
	Token string          `json:"token,omitempty"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// PrintPayload is the data of a "print" message. Document is base64 in JSON.
type PrintPayload struct {
	PrinterID    string `json:"printer_id"`
	DocumentType string `json:"document_type"`
	PaperFormat  string `json:"paper_format,omitempty"`
	Copies       int    `json:"copies,omitempty"`
	Document     []byte `json:"document"`
}

// Response represents outgoing WebSocket message
type Response struct {
	Type     string            `json:"type"`
	ID       string            `json:"id,omitempty"`
	Status   string            `json:"status,omitempty"`
	Message  string            `json:"message,omitempty"`
	Success  *bool             `json:"success,omitempty"`
	JobID    string            `json:"job_id,omitempty"`
	Printers []spooler.Printer `json:"printers,omitempty"`
}

// Server manages WebSocket connections
type Server struct {
	cfg          Config
	clients      *ClientRegistry
	limiter      *JobRateLimiter
	service      PrintService
	tokens       TokenChecker
	shutdownOnce sync.Once
	shutdownChan chan struct{}
}

// NewServer creates a new WebSocket server. tokens may be nil when
// authentication is disabled.
func NewServer(cfg Config, service PrintService, tokens TokenChecker) *Server {
	if cfg.JobsPerMinute <= 0 {
		cfg.JobsPerMinute = 60
	}
	if cfg.MaxMessageBytes <= 0 {
		// 32 MiB document after base64 expansion, plus envelope.
		cfg.MaxMessageBytes = 48 << 20
	}

	return &Server{
		cfg:          cfg,
		clients:      NewClientRegistry(),
		limiter:      NewJobRateLimiter(cfg.JobsPerMinute),
		service:      service,
		tokens:       tokens,
		shutdownChan: make(chan struct{}),
	}
}

// Clients returns the number of connected clients.
func (s *Server) Clients() int {
	return s.clients.Count()
}

func (s *Server) acceptOptions() *websocket.AcceptOptions {
	opts := &websocket.AcceptOptions{}
	if slices.Contains(s.cfg.AllowedOrigins, "*") {
		opts.InsecureSkipVerify = true
		return opts
	}
	opts.OriginPatterns = s.cfg.AllowedOrigins
	return opts
}

// HandleWebSocket handles WebSocket connections
func (s *Server) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, s.acceptOptions())
	if err != nil {
		log.Warn().Err(err).Str("remote", r.RemoteAddr).Msg("[WS] ❌ Error accepting client")
		return
	}
	conn.SetReadLimit(s.cfg.MaxMessageBytes)

	s.clients.Add(conn, r.RemoteAddr)
	log.Info().Int("total", s.clients.Count()).Str("remote", r.RemoteAddr).Msg("[WS] ➕ Client connected")

	ctx := r.Context()
	welcome := Response{
		Type:    "info",
		Status:  "connected",
		Message: "✅ Print Servicio ready",
	}
	_ = wsjson.Write(ctx, conn, welcome)

	s.handleMessages(ctx, conn, remoteHost(r.RemoteAddr))

	s.clients.Remove(conn)
	s.limiter.Prune()
	_ = conn.Close(websocket.StatusNormalClosure, "disconnected")
	log.Info().Int("remaining", s.clients.Count()).Msg("[WS] ➖ Client disconnected")
}

// handleMessages processes incoming messages from a client
func (s *Server) handleMessages(ctx context.Context, conn *websocket.Conn, client string) {
	for {
		select {
		case <-s.shutdownChan:
			return
		default:
		}

		var msg Message
		err := wsjson.Read(ctx, conn, &msg)
		if err != nil {
			if websocket.CloseStatus(err) == websocket.StatusNormalClosure ||
				ctx.Err() != nil {
				return
			}
			log.Warn().Err(err).Str("client", client).Msg("[WS] ⚠️ Error reading message")
			return
		}

		s.routeMessage(ctx, conn, client, &msg)
	}
}

// routeMessage routes message to appropriate handler
func (s *Server) routeMessage(ctx context.Context, conn *websocket.Conn, client string, msg *Message) {
	switch msg.Type {
	case "print":
		s.handlePrint(ctx, conn, client, msg)
	case "ping":
		s.handlePing(ctx, conn, msg)
	case "get_printers":
		s.handleGetPrinters(ctx, conn, msg)
	default:
		log.Warn().Str("type", msg.Type).Msg("[WS] ⚠️ Unknown message type")
		s.sendError(ctx, conn, msg.ID, "Unknown message type: "+msg.Type)
	}
}

// handlePrint runs one print request on the connection's goroutine and
// replies with its result.
func (s *Server) handlePrint(ctx context.Context, conn *websocket.Conn, client string, msg *Message) {
	reqID := msg.ID
	if reqID == "" {
		reqID = uuid.New().String()
	}

	if s.tokens != nil && !s.tokens.Check(client, msg.Token) {
		log.Warn().Str("client", client).Str("id", reqID).Msg("[AUDIT] Print rejected: invalid token")
		s.sendError(ctx, conn, reqID, "AUTH: Invalid or missing token")
		return
	}

	if !s.limiter.Allow(client) {
		log.Warn().Str("client", client).Str("id", reqID).Msg("[WS] 🚫 Rate limit exceeded")
		s.sendError(ctx, conn, reqID, "Too many print requests, please retry in a few seconds")
		return
	}

	if len(msg.Data) == 0 {
		s.sendError(ctx, conn, reqID, "Field 'data' is required for type 'print'")
		return
	}
	var payload PrintPayload
	if err := json.Unmarshal(msg.Data, &payload); err != nil {
		s.sendError(ctx, conn, reqID, "Invalid 'data': "+err.Error())
		return
	}

	req, err := payload.Request()
	if err != nil {
		s.sendResult(ctx, conn, reqID, printing.PrintResult{Message: printing.FriendlyMessage(err)})
		return
	}

	log.Info().Str("id", reqID).Str("printer", req.PrinterID).Str("type", string(req.Type)).
		Int("bytes", len(req.Document)).Msg("[WS] 📥 Print request received")

	result := s.service.Submit(ctx, req)
	s.sendResult(ctx, conn, reqID, result)
}

// Request converts the payload into a pipeline request.
func (p PrintPayload) Request() (printing.PrintJobRequest, error) {
	return printing.NewRequest(p.PrinterID, p.DocumentType, p.PaperFormat, p.Copies, p.Document)
}

func (s *Server) sendResult(ctx context.Context, conn *websocket.Conn, id string, result printing.PrintResult) {
	success := result.Success
	status := "error"
	if success {
		status = "ok"
	}
	response := Response{
		Type:    "result",
		ID:      id,
		Status:  status,
		Success: &success,
		JobID:   result.JobID,
		Message: result.Message,
	}
	if err := s.write(ctx, conn, response); err != nil {
		log.Warn().Err(err).Str("id", id).Msg("[WS] ⚠️ Failed to deliver result")
	}
}

// handlePing responds to ping
func (s *Server) handlePing(ctx context.Context, conn *websocket.Conn, msg *Message) {
	response := Response{
		Type:   "pong",
		ID:     msg.ID,
		Status: "ok",
	}
	_ = s.write(ctx, conn, response)
}

// handleGetPrinters handles printer enumeration requests
func (s *Server) handleGetPrinters(ctx context.Context, conn *websocket.Conn, msg *Message) {
	printers, err := s.service.ListPrinters(ctx)
	if err != nil {
		s.sendError(ctx, conn, msg.ID, "Failed to enumerate printers: "+err.Error())
		return
	}
	if printers == nil {
		printers = []spooler.Printer{}
	}

	response := Response{
		Type:     "printers",
		ID:       msg.ID,
		Status:   "ok",
		Printers: printers,
	}
	_ = s.write(ctx, conn, response)
}

// sendError sends error response to client
func (s *Server) sendError(ctx context.Context, conn *websocket.Conn, id, message string) {
	response := Response{
		Type:    "error",
		ID:      id,
		Status:  "error",
		Message: message,
	}
	_ = s.write(ctx, conn, response)
}

func (s *Server) write(ctx context.Context, conn *websocket.Conn, response Response) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return wsjson.Write(ctx, conn, response)
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown() {
	s.shutdownOnce.Do(func() {
		close(s.shutdownChan)

		log.Info().Int("clients", s.clients.Count()).Msg("[WS] 🛑 Shutting down, disconnecting clients")

		s.clients.ForEach(func(conn *websocket.Conn) {
			_ = conn.Close(websocket.StatusGoingAway, "Server shutting down")
		})
	})
}
