// Package api exposes the notebook over HTTP.
package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/apexneural-ramya/notebook-lm-clone/internal/answer"
	"github.com/apexneural-ramya/notebook-lm-clone/internal/ingest"
	"github.com/apexneural-ramya/notebook-lm-clone/internal/memory"
	"github.com/apexneural-ramya/notebook-lm-clone/internal/source"
	"github.com/apexneural-ramya/notebook-lm-clone/internal/vectorstore"
)

// ownerHeader identifies the requesting owner. Every data route requires
// it; requests without it are rejected, never served unscoped.
const ownerHeader = "X-Owner-ID"

// ownerKey is the echo context key the owner middleware stores under.
const ownerKey = "owner"

// Historian reads session transcripts.
type Historian interface {
	History(ctx context.Context, owner, sessionID string) ([]memory.Turn, error)
}

// Server provides the HTTP API.
type Server struct {
	echo         *echo.Echo
	pipeline     *ingest.Pipeline
	registry     *source.Registry
	orchestrator *answer.Orchestrator
	historian    Historian
	logger       *zap.Logger
	host         string
	port         int
}

// NewServer creates the HTTP server and registers all routes.
func NewServer(
	pipeline *ingest.Pipeline,
	registry *source.Registry,
	orchestrator *answer.Orchestrator,
	historian Historian,
	logger *zap.Logger,
	host string,
	port int,
) (*Server, error) {
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())
	e.Use(func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)
			logger.Info("http request",
				zap.String("method", c.Request().Method),
				zap.String("uri", c.Request().RequestURI),
				zap.Int("status", c.Response().Status),
				zap.Duration("duration", time.Since(start)),
				zap.String("request_id", c.Response().Header().Get(echo.HeaderXRequestID)),
			)
			return err
		}
	})

	s := &Server{
		echo:         e,
		pipeline:     pipeline,
		registry:     registry,
		orchestrator: orchestrator,
		historian:    historian,
		logger:       logger,
		host:         host,
		port:         port,
	}
	s.registerRoutes()
	return s, nil
}

func (s *Server) registerRoutes() {
	s.echo.GET("/health", s.handleHealth)
	s.echo.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	v1 := s.echo.Group("/api/v1", requireOwner)
	v1.POST("/query", s.handleQuery)
	v1.GET("/sources", s.handleListSources)
	v1.DELETE("/sources/:name", s.handleDeleteSource)
	v1.POST("/sources", s.handleIngestSource)
	v1.POST("/sources/text", s.handleIngestText)
	v1.GET("/sessions/:id/history", s.handleHistory)
}

// requireOwner rejects requests without an owner header.
func requireOwner(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		owner := strings.TrimSpace(c.Request().Header.Get(ownerHeader))
		if owner == "" {
			return echo.NewHTTPError(http.StatusBadRequest, ownerHeader+" header is required")
		}
		c.Set(ownerKey, owner)
		return next(c)
	}
}

func ownerOf(c echo.Context) string {
	owner, _ := c.Get(ownerKey).(string)
	return owner
}

func (s *Server) handleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, HealthResponse{Status: "ok"})
}

func (s *Server) handleQuery(c echo.Context) error {
	var req QueryRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if strings.TrimSpace(req.Query) == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "query field is required")
	}

	result, err := s.orchestrator.Answer(c.Request().Context(), ownerOf(c), req.SessionID, req.Query, req.K)
	if err != nil {
		s.logger.Error("query failed",
			zap.String("session", result.SessionID),
			zap.Error(err),
		)
		switch {
		case errors.Is(err, vectorstore.ErrUnavailable):
			return echo.NewHTTPError(http.StatusServiceUnavailable, "vector index unavailable")
		case errors.Is(err, answer.ErrGeneration):
			return echo.NewHTTPError(http.StatusBadGateway, "answer generation failed")
		default:
			return echo.NewHTTPError(http.StatusInternalServerError, "query failed")
		}
	}

	return c.JSON(http.StatusOK, QueryResponse{
		Answer:    result.Answer,
		Citations: result.Citations,
		SessionID: result.SessionID,
	})
}

func (s *Server) handleListSources(c echo.Context) error {
	sources := s.registry.List(ownerOf(c))
	out := make([]SourceResponse, len(sources))
	for i, src := range sources {
		out[i] = toSourceResponse(src)
	}
	return c.JSON(http.StatusOK, ListSourcesResponse{Sources: out})
}

func (s *Server) handleDeleteSource(c echo.Context) error {
	name := c.Param("name")
	owner := ownerOf(c)

	deleted, err := s.registry.Delete(c.Request().Context(), owner, name)
	if err != nil {
		if errors.Is(err, source.ErrSourceNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, fmt.Sprintf("source %q not found", name))
		}
		s.logger.Error("source deletion failed",
			zap.String("source", name),
			zap.Error(err),
		)
		return echo.NewHTTPError(http.StatusInternalServerError, "source deletion failed")
	}

	return c.JSON(http.StatusOK, DeleteSourceResponse{Name: name, ChunksDeleted: deleted})
}

func (s *Server) handleIngestText(c echo.Context) error {
	var req IngestTextRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if strings.TrimSpace(req.Text) == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "text field is required")
	}

	title := strings.TrimSpace(req.Title)
	if title == "" {
		title = ingest.DefaultTextTitle(time.Now())
	}

	src, err := s.pipeline.Ingest(c.Request().Context(), ownerOf(c), ingest.RawInput{
		Name: title,
		Type: source.TypeText,
		Text: req.Text,
	})
	if err != nil {
		switch {
		case errors.Is(err, source.ErrSourceExists):
			return echo.NewHTTPError(http.StatusConflict, fmt.Sprintf("source %q already exists", title))
		case errors.Is(err, ingest.ErrNoUsableContent):
			return echo.NewHTTPError(http.StatusUnprocessableEntity, "no usable content")
		default:
			s.logger.Error("text ingestion failed",
				zap.String("source", title),
				zap.Error(err),
			)
			return echo.NewHTTPError(http.StatusInternalServerError, "ingestion failed")
		}
	}

	return c.JSON(http.StatusCreated, toSourceResponse(src))
}

// handleIngestSource accepts a source of any type with its text already
// extracted, so documents keep page citations and transcripts keep
// timestamps without the server doing format-specific extraction.
func (s *Server) handleIngestSource(c echo.Context) error {
	var req IngestSourceRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if strings.TrimSpace(req.Name) == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "name field is required")
	}
	typ := source.Type(req.Type)
	if !typ.Valid() {
		return echo.NewHTTPError(http.StatusBadRequest, fmt.Sprintf("unknown source type %q", req.Type))
	}
	if strings.TrimSpace(req.Text) == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "text field is required")
	}

	src, err := s.pipeline.Ingest(c.Request().Context(), ownerOf(c), ingest.RawInput{
		Name:        req.Name,
		Type:        typ,
		Text:        req.Text,
		PageOffsets: req.PageOffsets,
		TimeMarks:   toTimeMarks(req.TimeMarks),
	})
	if err != nil {
		switch {
		case errors.Is(err, source.ErrSourceExists):
			return echo.NewHTTPError(http.StatusConflict, fmt.Sprintf("source %q already exists", req.Name))
		case errors.Is(err, ingest.ErrNoUsableContent):
			return echo.NewHTTPError(http.StatusUnprocessableEntity, "no usable content")
		default:
			s.logger.Error("source ingestion failed",
				zap.String("source", req.Name),
				zap.String("type", req.Type),
				zap.Error(err),
			)
			return echo.NewHTTPError(http.StatusInternalServerError, "ingestion failed")
		}
	}

	return c.JSON(http.StatusCreated, toSourceResponse(src))
}

func (s *Server) handleHistory(c echo.Context) error {
	sessionID := c.Param("id")

	turns, err := s.historian.History(c.Request().Context(), ownerOf(c), sessionID)
	if err != nil {
		s.logger.Error("history lookup failed",
			zap.String("session", sessionID),
			zap.Error(err),
		)
		return echo.NewHTTPError(http.StatusInternalServerError, "history lookup failed")
	}

	return c.JSON(http.StatusOK, HistoryResponse{
		SessionID: sessionID,
		Turns:     toTurnResponses(turns),
	})
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.host, s.port)
	s.logger.Info("starting http server", zap.String("addr", addr))
	return s.echo.Start(addr)
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down http server")
	return s.echo.Shutdown(ctx)
}
