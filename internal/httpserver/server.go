// Package httpserver exposes the worker's HTTP surface: health and status
// probes plus the tool callback routes the generation workflow invokes while
// a call is in progress.
package httpserver

import (
	"context"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog/log"

	"github.com/Fr3nn3r/VoiceAgentBuilder/internal/scheduling"
)

// Server bundles the router and per-worker state.
type Server struct {
	echo      *echo.Echo
	authToken string
	agentName string
	startedAt time.Time

	mu          sync.Mutex
	activeCalls int
	tools       map[string]scheduling.Handler
}

// New constructs the HTTP server. authToken guards the tool routes; empty
// disables the check.
func New(authToken, agentName string) *Server {
	e := echo.New()
	e.HideBanner = true
	e.Use(middleware.Recover())

	s := &Server{
		echo:      e,
		authToken: authToken,
		agentName: agentName,
		startedAt: time.Now(),
		tools:     make(map[string]scheduling.Handler),
	}

	e.GET("/healthz", s.handleHealthz)
	e.GET("/status", s.handleStatus)
	e.GET("/tools", s.handleToolSchemas)
	e.POST("/tools/:name", s.handleTool)

	return s
}

// RegisterTool wires a named tool handler into POST /tools/:name.
func (s *Server) RegisterTool(name string, h scheduling.Handler) {
	s.mu.Lock()
	s.tools[name] = h
	s.mu.Unlock()
}

// CallStarted increments the active call gauge.
func (s *Server) CallStarted() {
	s.mu.Lock()
	s.activeCalls++
	s.mu.Unlock()
}

// CallEnded decrements the active call gauge.
func (s *Server) CallEnded() {
	s.mu.Lock()
	if s.activeCalls > 0 {
		s.activeCalls--
	}
	s.mu.Unlock()
}

// Router exposes the handler for tests.
func (s *Server) Router() http.Handler { return s.echo }

// Start blocks serving HTTP until Shutdown is called.
func (s *Server) Start(address string) error {
	err := s.echo.Start(address)
	if err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown stops the server gracefully.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.echo.Shutdown(ctx)
}

func (s *Server) handleHealthz(c echo.Context) error {
	return c.String(http.StatusOK, "ok")
}

func (s *Server) handleStatus(c echo.Context) error {
	s.mu.Lock()
	active := s.activeCalls
	s.mu.Unlock()
	return c.JSON(http.StatusOK, map[string]any{
		"agent":          s.agentName,
		"active_calls":   active,
		"uptime_seconds": int(time.Since(s.startedAt).Seconds()),
	})
}

// handleToolSchemas serves the tool definitions the workflow advertises to
// the model.
func (s *Server) handleToolSchemas(c echo.Context) error {
	return c.JSON(http.StatusOK, scheduling.Schemas())
}

func (s *Server) handleTool(c echo.Context) error {
	if !authOK(c.Request(), s.authToken) {
		return c.JSON(http.StatusUnauthorized, map[string]any{"error": "unauthorized"})
	}

	name := c.Param("name")
	s.mu.Lock()
	handler, ok := s.tools[name]
	s.mu.Unlock()
	if !ok {
		return c.JSON(http.StatusNotFound, map[string]any{"error": "unknown tool: " + name})
	}

	var args map[string]any
	if err := c.Bind(&args); err != nil {
		log.Warn().Err(err).Str("tool", name).Msg("invalid tool arguments")
		return c.JSON(http.StatusBadRequest, map[string]any{"error": "invalid JSON body"})
	}

	// Tool handlers assume the single-threaded call loop; serialize them.
	s.mu.Lock()
	result := handler(c.Request().Context(), args)
	s.mu.Unlock()
	return c.JSON(http.StatusOK, result)
}

// authOK accepts the expected token via ?password=, X-Auth-Token, or an
// Authorization bearer header. Empty expected disables the check.
func authOK(r *http.Request, expected string) bool {
	if expected == "" {
		return true
	}
	if r == nil {
		return false
	}
	if r.URL.Query().Get("password") == expected {
		return true
	}
	if r.Header.Get("X-Auth-Token") == expected {
		return true
	}
	auth := r.Header.Get("Authorization")
	if len(auth) > 7 && strings.EqualFold(auth[:7], "Bearer ") && auth[7:] == expected {
		return true
	}
	return false
}
