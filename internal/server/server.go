package server

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/ironsheep/docscan-mcp/internal/config"
	"github.com/ironsheep/docscan-mcp/internal/detection"
	"github.com/ironsheep/docscan-mcp/internal/geometry"
	"github.com/ironsheep/docscan-mcp/internal/imaging"
	"github.com/ironsheep/docscan-mcp/internal/rectify"
	"github.com/ironsheep/docscan-mcp/internal/scanner"
	"github.com/ironsheep/docscan-mcp/internal/transform"
)

// Version is reported in the initialize handshake.
var Version = "0.1.0"

// Server handles MCP protocol communication
type Server struct {
	cfg       *config.Config
	log       logrus.FieldLogger
	validate  *validator.Validate
	sessionID string

	cache     *imaging.ImageCache
	detector  *detection.Detector
	rectifier *rectify.Rectifier
	session   *scanner.Session

	// out is guarded by outMu because stable-quad notifications are
	// written from the scanner's consumer goroutine.
	outMu sync.Mutex
	out   *json.Encoder
}

// MCPRequest represents an incoming JSON-RPC request
type MCPRequest struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      interface{}     `json:"id"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

// MCPResponse represents an outgoing JSON-RPC response
type MCPResponse struct {
	JSONRPC string      `json:"jsonrpc"`
	ID      interface{} `json:"id"`
	Result  interface{} `json:"result,omitempty"`
	Error   *MCPError   `json:"error,omitempty"`
}

// MCPError represents a JSON-RPC error
type MCPError struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

// MCPNotification represents an outgoing notification (no ID)
type MCPNotification struct {
	JSONRPC string      `json:"jsonrpc"`
	Method  string      `json:"method"`
	Params  interface{} `json:"params,omitempty"`
}

// New creates a server from cfg. A nil cfg selects the defaults and a nil
// log the standard logger.
func New(cfg *config.Config, log logrus.FieldLogger) (*Server, error) {
	if cfg == nil {
		d := config.Default()
		cfg = &d
	}
	if log == nil {
		log = logrus.StandardLogger()
	}

	id := uuid.New().String()
	log = log.WithField("session", id)

	kernels := imaging.DefaultKernels()
	det, err := detection.NewDetector(kernels, cfg.DetectionOptions(), log)
	if err != nil {
		return nil, fmt.Errorf("detector: %w", err)
	}
	rect := rectify.New(kernels, log)

	opts, err := cfg.ScannerOptions()
	if err != nil {
		return nil, fmt.Errorf("scanner: %w", err)
	}

	s := &Server{
		cfg:       cfg,
		log:       log,
		validate:  config.NewValidator(),
		sessionID: id,
		cache:     imaging.NewImageCache(),
		detector:  det,
		rectifier: rect,
		session:   scanner.New(det, rect, opts, log),
	}
	s.session.OnStableQuadChanged(s.notifyStableQuad)
	return s, nil
}

// SessionID identifies this server's scanning session.
func (s *Server) SessionID() string {
	return s.sessionID
}

// Run starts the MCP server, reading from stdin and writing to stdout
func (s *Server) Run(ctx context.Context) error {
	return s.Serve(ctx, os.Stdin, os.Stdout)
}

// Serve reads one JSON-RPC request per line from r and writes responses
// to w until r is exhausted or ctx is done.
func (s *Server) Serve(ctx context.Context, r io.Reader, w io.Writer) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	s.outMu.Lock()
	s.out = json.NewEncoder(w)
	s.outMu.Unlock()

	s.session.Start(ctx)
	s.log.WithField("backend", imaging.Backend).Info("server started")

	lines := bufio.NewScanner(r)
	// Increase buffer size for large requests
	buf := make([]byte, 0, 64*1024)
	lines.Buffer(buf, 16*1024*1024)

	for lines.Scan() {
		if ctx.Err() != nil {
			break
		}
		line := lines.Bytes()
		if len(line) == 0 {
			continue
		}

		var req MCPRequest
		if err := json.Unmarshal(line, &req); err != nil {
			s.log.WithError(err).Warn("failed to parse request")
			continue
		}

		resp := s.handleRequest(ctx, &req)
		if resp != nil {
			s.write(resp)
		}
	}

	if err := lines.Err(); err != nil {
		return fmt.Errorf("read error: %w", err)
	}

	return nil
}

func (s *Server) write(v interface{}) {
	s.outMu.Lock()
	defer s.outMu.Unlock()
	if s.out == nil {
		return
	}
	if err := s.out.Encode(v); err != nil {
		s.log.WithError(err).Warn("failed to encode response")
	}
}

// notifyStableQuad forwards stable quad changes to the client as MCP log
// messages.
func (s *Server) notifyStableQuad(q *geometry.Quad, space transform.PixelSpace) {
	data := map[string]interface{}{
		"session_id": s.sessionID,
		"quad":       q,
		"space":      space,
	}
	s.write(&MCPNotification{
		JSONRPC: "2.0",
		Method:  "notifications/message",
		Params: map[string]interface{}{
			"level":  "info",
			"logger": "stable_quad",
			"data":   data,
		},
	})
}

// handleRequest routes requests to appropriate handlers
func (s *Server) handleRequest(ctx context.Context, req *MCPRequest) *MCPResponse {
	switch req.Method {
	case "initialize":
		return s.handleInitialize(req)
	case "notifications/initialized":
		// Client acknowledgment, no response needed
		return nil
	case "tools/list":
		return s.handleToolsList(req)
	case "tools/call":
		return s.handleToolsCall(ctx, req)
	case "ping":
		return &MCPResponse{
			JSONRPC: "2.0",
			ID:      req.ID,
			Result:  map[string]interface{}{},
		}
	default:
		return &MCPResponse{
			JSONRPC: "2.0",
			ID:      req.ID,
			Error: &MCPError{
				Code:    -32601,
				Message: fmt.Sprintf("Method not found: %s", req.Method),
			},
		}
	}
}

// handleInitialize responds to the initialize request
func (s *Server) handleInitialize(req *MCPRequest) *MCPResponse {
	return &MCPResponse{
		JSONRPC: "2.0",
		ID:      req.ID,
		Result: map[string]interface{}{
			"protocolVersion": "2024-11-05",
			"capabilities": map[string]interface{}{
				"tools":   map[string]interface{}{},
				"logging": map[string]interface{}{},
			},
			"serverInfo": map[string]interface{}{
				"name":    "docscan-mcp",
				"version": Version,
			},
		},
	}
}
