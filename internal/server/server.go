// Package server exposes game logs, turn summaries and the live event feed
// over HTTP.
package server

import (
	"context"
	"errors"
	"io"
	"log"
	"net/http"
	"time"

	"monopolylog/internal/model"
	"monopolylog/internal/store"

	"github.com/gin-gonic/gin"
)

// DefaultLogName is served when a request names no log.
const DefaultLogName = "game_logs.json"

// LogStore is the subset of the log store used by the handlers.
type LogStore interface {
	model.EntryReader
	List(opts store.ListOptions) (store.ListResult, error)
	Read(name string) ([]byte, error)
	Upload(filename string, r io.Reader) (store.UploadResult, error)
	Export(source string) (model.ExportResult, error)
	MaxUpload() int64
}

// Feed publishes and fans out real-time events.
type Feed interface {
	Publish(name string, data any) error
	Subscribe() (<-chan model.FeedEvent, func())
	Subscribers() int
	Dropped() int64
}

// StatusSource reports the state of monitored services.
type StatusSource interface {
	Snapshot() []model.ServiceStatus
}

// Server holds the gin engine and its dependencies.
type Server struct {
	engine *gin.Engine
	store  LogStore
	feed   Feed
	status StatusSource
	addr   string
}

// New creates the HTTP server. status may be nil when no services are monitored.
func New(s LogStore, feed Feed, status StatusSource, addr string) *Server {
	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Logger(), gin.Recovery())

	engine.RedirectTrailingSlash = false
	engine.RedirectFixedPath = false
	engine.HandleMethodNotAllowed = true
	engine.NoMethod(func(c *gin.Context) {
		c.JSON(http.StatusMethodNotAllowed, gin.H{"error": "method not allowed"})
	})
	engine.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
	})

	srv := &Server{
		engine: engine,
		store:  s,
		feed:   feed,
		status: status,
		addr:   addr,
	}
	srv.setupRoutes()
	return srv
}

// Handler returns the underlying http.Handler.
func (s *Server) Handler() http.Handler { return s.engine }

func (s *Server) setupRoutes() {
	s.engine.GET("/healthz", s.handleHealth)

	api := s.engine.Group("/api")
	api.GET("/list-logs", s.handleListLogs)
	api.GET("/game-logs", s.handleGameLog)
	api.GET("/turns", s.handleTurns)
	api.POST("/upload-log", s.handleUpload)
	api.POST("/export-decisions", s.handleExport)
	api.GET("/status", s.handleStatus)
	api.POST("/events", s.handleEvent)

	s.engine.GET("/ws", s.handleWebSocket)
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	httpSrv := &http.Server{
		Addr:              s.addr,
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Printf("server: listening on %s", s.addr)
		errCh <- httpSrv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	return nil
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":      "ok",
		"subscribers": s.feed.Subscribers(),
		"dropped":     s.feed.Dropped(),
	})
}

func (s *Server) handleStatus(c *gin.Context) {
	services := []model.ServiceStatus{}
	if s.status != nil {
		services = s.status.Snapshot()
	}
	c.JSON(http.StatusOK, gin.H{"services": services})
}
