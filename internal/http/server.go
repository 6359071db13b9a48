// Package http provides the HTTP API for wortschatzd.
package http

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/wortschatz/internal/app"
	"github.com/fyrsmithlabs/wortschatz/internal/notebook"
	"github.com/fyrsmithlabs/wortschatz/internal/tutor"
)

// Server exposes the view controller over HTTP.
type Server struct {
	echo       *echo.Echo
	controller *app.Controller
	logger     *zap.Logger
	config     *Config
	metrics    *Metrics
}

// Config holds HTTP server configuration.
type Config struct {
	Host string
	Port int
}

// NewServer creates a new HTTP server.
func NewServer(controller *app.Controller, logger *zap.Logger, cfg *Config) (*Server, error) {
	if controller == nil {
		return nil, fmt.Errorf("controller cannot be nil")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required for request tracking and debugging")
	}
	if cfg == nil {
		cfg = &Config{
			Host: "localhost",
			Port: 8787,
		}
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	metrics := NewMetrics(logger)

	// Middleware
	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())
	e.Use(metrics.Middleware())
	e.Use(func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)
			duration := time.Since(start)

			logger.Info("http request",
				zap.String("method", c.Request().Method),
				zap.String("uri", c.Request().RequestURI),
				zap.Int("status", c.Response().Status),
				zap.Duration("duration", duration),
				zap.String("request_id", c.Response().Header().Get(echo.HeaderXRequestID)),
			)

			return err
		}
	})

	s := &Server{
		echo:       e,
		controller: controller,
		logger:     logger,
		config:     cfg,
		metrics:    metrics,
	}

	s.registerRoutes()

	return s, nil
}

// registerRoutes sets up the HTTP endpoints.
func (s *Server) registerRoutes() {
	s.echo.GET("/health", s.handleHealth)
	s.echo.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	v1 := s.echo.Group("/api/v1")
	v1.GET("/state", s.handleState)
	v1.PUT("/view", s.handleSetView)
	v1.GET("/suggestions", s.handleSuggestions)

	v1.POST("/search", s.handleSearch)
	v1.GET("/search/result", s.handleSearchResult)

	v1.GET("/notebook", s.handleNotebookList)
	v1.POST("/notebook", s.handleNotebookSave)
	v1.DELETE("/notebook/:id", s.handleNotebookDelete)
	v1.POST("/notebook/:id/open", s.handleNotebookOpen)

	v1.POST("/check", s.handleCheck)

	v1.GET("/chat", s.handleChatList)
	v1.POST("/chat", s.handleChatSend)
	v1.POST("/chat/reset", s.handleChatReset)

	v1.POST("/speech", s.handleSpeech)
}

// HealthResponse is the response body for GET /health.
type HealthResponse struct {
	Status string `json:"status"`
}

// ViewRequest is the request body for PUT /api/v1/view.
type ViewRequest struct {
	View string `json:"view"`
}

// SearchRequest is the request body for POST /api/v1/search.
type SearchRequest struct {
	Term string `json:"term"`
}

// CheckRequest is the request body for POST /api/v1/check.
type CheckRequest struct {
	Text string `json:"text"`
}

// ChatRequest is the request body for POST /api/v1/chat.
type ChatRequest struct {
	Text string `json:"text"`
}

// SpeechRequest is the request body for POST /api/v1/speech.
type SpeechRequest struct {
	Text string `json:"text"`
}

// SuggestionsResponse is the response body for GET /api/v1/suggestions.
type SuggestionsResponse struct {
	Terms []string `json:"terms"`
}

func (s *Server) handleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, HealthResponse{Status: "ok"})
}

func (s *Server) handleState(c echo.Context) error {
	return c.JSON(http.StatusOK, s.controller.State())
}

func (s *Server) handleSetView(c echo.Context) error {
	var req ViewRequest
	if err := c.Bind(&req); err != nil {
		s.logger.Warn("invalid view request", zap.Error(err))
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if err := s.controller.SetView(app.View(req.View)); err != nil {
		return apiError(err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (s *Server) handleSuggestions(c echo.Context) error {
	return c.JSON(http.StatusOK, SuggestionsResponse{Terms: s.controller.Suggestions()})
}

func (s *Server) handleSearch(c echo.Context) error {
	var req SearchRequest
	if err := c.Bind(&req); err != nil {
		s.logger.Warn("invalid search request", zap.Error(err))
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if req.Term == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "term field is required")
	}

	entry, err := s.controller.Search(c.Request().Context(), req.Term)
	if err != nil {
		s.metrics.ObserveLookup(false)
		return apiError(err)
	}
	s.metrics.ObserveLookup(true)
	return c.JSON(http.StatusOK, entry)
}

// handleSearchResult reports the search view's current state. The
// illustration arrives asynchronously; clients poll this endpoint until
// the image field is populated or they give up.
func (s *Server) handleSearchResult(c echo.Context) error {
	return c.JSON(http.StatusOK, s.controller.SearchState())
}

func (s *Server) handleNotebookList(c echo.Context) error {
	words := s.controller.SavedWords()
	if words == nil {
		words = []notebook.SavedWord{}
	}
	return c.JSON(http.StatusOK, words)
}

func (s *Server) handleNotebookSave(c echo.Context) error {
	saved, err := s.controller.SaveCurrent()
	if err != nil {
		return apiError(err)
	}
	return c.JSON(http.StatusCreated, saved)
}

func (s *Server) handleNotebookDelete(c echo.Context) error {
	if err := s.controller.DeleteSaved(c.Param("id")); err != nil {
		return apiError(err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (s *Server) handleNotebookOpen(c echo.Context) error {
	saved, err := s.controller.OpenSaved(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusNotFound, "saved word not found")
	}
	return c.JSON(http.StatusOK, saved)
}

func (s *Server) handleCheck(c echo.Context) error {
	var req CheckRequest
	if err := c.Bind(&req); err != nil {
		s.logger.Warn("invalid check request", zap.Error(err))
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if req.Text == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "text field is required")
	}

	analysis, err := s.controller.Check(c.Request().Context(), req.Text)
	if err != nil {
		s.metrics.ObserveCheck(false)
		return apiError(err)
	}
	s.metrics.ObserveCheck(true)
	return c.JSON(http.StatusOK, analysis)
}

func (s *Server) handleChatList(c echo.Context) error {
	return c.JSON(http.StatusOK, s.controller.ChatMessages())
}

func (s *Server) handleChatSend(c echo.Context) error {
	var req ChatRequest
	if err := c.Bind(&req); err != nil {
		s.logger.Warn("invalid chat request", zap.Error(err))
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if req.Text == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "text field is required")
	}

	msg, err := s.controller.SendChat(c.Request().Context(), req.Text)
	if err != nil {
		s.metrics.ObserveChat(false)
		return apiError(err)
	}
	s.metrics.ObserveChat(true)
	return c.JSON(http.StatusOK, msg)
}

func (s *Server) handleChatReset(c echo.Context) error {
	s.controller.ResetChat()
	return c.NoContent(http.StatusNoContent)
}

// handleSpeech synthesizes pronunciation audio. Synthesis is best-effort:
// when no audio is produced the endpoint answers 204, never an error.
func (s *Server) handleSpeech(c echo.Context) error {
	var req SpeechRequest
	if err := c.Bind(&req); err != nil {
		s.logger.Warn("invalid speech request", zap.Error(err))
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if req.Text == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "text field is required")
	}

	audio := s.controller.Speak(c.Request().Context(), req.Text)
	if audio == nil {
		return c.NoContent(http.StatusNoContent)
	}
	return c.Blob(http.StatusOK, audio.MIME, audio.Data)
}

// apiError maps domain errors onto HTTP status codes. Remote tutor
// failures surface as 502 so clients can tell them apart from local
// validation problems.
func apiError(err error) *echo.HTTPError {
	switch {
	case errors.Is(err, app.ErrBusy):
		return echo.NewHTTPError(http.StatusConflict, "a request is already in flight for this view")
	case errors.Is(err, app.ErrUnknownView):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	case errors.Is(err, app.ErrNoResult):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	case errors.Is(err, notebook.ErrDuplicateWord):
		return echo.NewHTTPError(http.StatusConflict, "word is already saved")
	case errors.Is(err, tutor.ErrLookup), errors.Is(err, tutor.ErrCheck), errors.Is(err, tutor.ErrChat):
		return echo.NewHTTPError(http.StatusBadGateway, err.Error())
	default:
		return echo.NewHTTPError(http.StatusInternalServerError, "internal error")
	}
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
	s.logger.Info("starting http server", zap.String("addr", addr))
	return s.echo.Start(addr)
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down http server")
	return s.echo.Shutdown(ctx)
}
