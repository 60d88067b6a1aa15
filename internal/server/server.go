package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strings"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/devpilot-ai/devpilot/internal/app"
)

// ErrServerClosed is returned when the server is closed.
var ErrServerClosed = http.ErrServerClosed

// DefaultHost is the address the server listens on unless told otherwise.
const DefaultHost = "tcp://127.0.0.1:7420"

// ParseHostURL parses a host URL into a [url.URL]. Supported schemes are
// tcp and unix.
func ParseHostURL(host string) (*url.URL, error) {
	proto, addr, ok := strings.Cut(host, "://")
	if !ok {
		return nil, fmt.Errorf("invalid host format: %s", host)
	}

	var basePath string
	switch proto {
	case "tcp":
		parsed, err := url.Parse("tcp://" + addr)
		if err != nil {
			return nil, fmt.Errorf("invalid tcp address: %v", err)
		}
		addr = parsed.Host
		basePath = parsed.Path
	case "unix":
	default:
		return nil, fmt.Errorf("unsupported host scheme: %s", proto)
	}
	return &url.URL{
		Scheme: proto,
		Host:   addr,
		Path:   basePath,
	}, nil
}

// Server exposes an [app.App] over HTTP.
type Server struct {
	// Addr can be a TCP address or a Unix socket path.
	Addr    string
	network string

	h   *http.Server
	ln  net.Listener
	app *app.App

	logger *slog.Logger
}

// SetLogger sets the logger for the server.
func (s *Server) SetLogger(logger *slog.Logger) {
	s.logger = logger
}

// NewServer creates a [Server] for a on the given address.
func NewServer(a *app.App, network, address string) *Server {
	s := new(Server)
	s.Addr = address
	s.network = network
	s.app = a

	var p http.Protocols
	p.SetHTTP1(true)
	p.SetUnencryptedHTTP2(true)
	s.h = &http.Server{
		Protocols: &p,
		Handler:   s.Handler(),
	}
	if network == "tcp" {
		s.h.Addr = address
	}
	return s
}

// Handler returns the routed handler with logging and metrics.
func (s *Server) Handler() http.Handler {
	c := &controllerV1{Server: s}
	mux := http.NewServeMux()
	mux.HandleFunc("GET /v1/health", c.handleGetHealth)
	mux.HandleFunc("GET /v1/version", c.handleGetVersion)
	mux.HandleFunc("GET /v1/engines", c.handleGetEngines)
	mux.HandleFunc("POST /v1/engines/{engine}/sessions", c.handlePostEngineSessions)
	mux.HandleFunc("GET /v1/sessions", c.handleGetSessions)
	mux.HandleFunc("GET /v1/sessions/{sid}", c.handleGetSession)
	mux.HandleFunc("GET /v1/sessions/{sid}/logs", c.handleGetSessionLogs)
	mux.HandleFunc("GET /v1/sessions/{sid}/events", c.handleGetSessionEvents)
	mux.HandleFunc("POST /v1/sessions/{sid}/terminate", c.handlePostSessionTerminate)
	mux.HandleFunc("GET /v1/projects/{project}/history", c.handleGetProjectHistory)
	mux.HandleFunc("DELETE /v1/projects/{project}/history", c.handleDeleteProjectHistory)
	mux.HandleFunc("GET /v1/projects/{project}/history/{id}", c.handleGetProjectHistoryRecord)
	mux.HandleFunc("GET /v1/projects/{project}/sessions", c.handleGetProjectSessions)
	mux.HandleFunc("GET /v1/conversations/{cid}", c.handleGetConversation)
	mux.Handle("GET /metrics", promhttp.Handler())
	return s.loggingHandler(mux)
}

// Serve accepts incoming connections on the listener.
func (s *Server) Serve(ln net.Listener) error {
	return s.h.Serve(ln)
}

// ListenAndServe starts the server and begins accepting connections.
func (s *Server) ListenAndServe() error {
	if s.ln != nil {
		return errors.New("server already started")
	}
	ln, err := net.Listen(s.network, s.Addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.Addr, err)
	}
	return s.Serve(ln)
}

func (s *Server) closeListener() {
	if s.ln != nil {
		s.ln.Close()
		s.ln = nil
	}
}

// Close force close all listeners and connections.
func (s *Server) Close() error {
	defer func() { s.closeListener() }()
	return s.h.Close()
}

// Shutdown gracefully shuts down the server without interrupting active
// connections. Event streams end when the application shuts down.
func (s *Server) Shutdown(ctx context.Context) error {
	defer func() { s.closeListener() }()
	return s.h.Shutdown(ctx)
}

func (s *Server) logDebug(r *http.Request, msg string, args ...any) {
	if s.logger != nil {
		s.logger.With(
			slog.String("method", r.Method),
			slog.String("url", r.URL.String()),
			slog.String("remote_addr", r.RemoteAddr),
		).Debug(msg, args...)
	}
}

func (s *Server) logError(r *http.Request, msg string, args ...any) {
	if s.logger != nil {
		s.logger.With(
			slog.String("method", r.Method),
			slog.String("url", r.URL.String()),
			slog.String("remote_addr", r.RemoteAddr),
		).Error(msg, args...)
	}
}
