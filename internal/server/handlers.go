package server

import (
	"bytes"
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"monopolylog/internal/aggregate"
	"monopolylog/internal/gamelog"
	"monopolylog/internal/model"
	"monopolylog/internal/store"

	"github.com/gin-gonic/gin"
)

// multipartOverhead leaves room for form boundaries and headers on top of
// the stored file size limit.
const multipartOverhead = 1 << 20

func (s *Server) handleListLogs(c *gin.Context) {
	res, err := s.store.List(store.ListOptions{Pattern: c.Query("pattern")})
	if err != nil {
		writeError(c, err)
		return
	}
	for _, w := range res.Warnings {
		log.Printf("server: list logs: %v", w)
	}
	c.JSON(http.StatusOK, gin.H{"files": res.Files})
}

func (s *Server) handleGameLog(c *gin.Context) {
	name := c.DefaultQuery("file", DefaultLogName)

	data, err := s.store.Read(name)
	if err != nil {
		writeError(c, err)
		return
	}
	if json.Valid(data) {
		c.Data(http.StatusOK, "application/json; charset=utf-8", data)
		return
	}

	// Line-delimited logs are served as a single array.
	entries, err := gamelog.Decode(bytes.NewReader(data))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, entries)
}

func (s *Server) handleTurns(c *gin.Context) {
	name := c.DefaultQuery("file", DefaultLogName)

	entries, err := s.store.Entries(name)
	if err != nil {
		writeError(c, err)
		return
	}
	records, err := aggregate.Aggregate(entries, aggregate.Options{
		SortByTimestamp: c.Query("sort") == "timestamp",
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, records)
}

func (s *Server) handleUpload(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, s.store.MaxUpload()+multipartOverhead)

	header, err := c.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(c, store.ErrTooLarge)
			return
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": "No file uploaded"})
		return
	}

	f, err := header.Open()
	if err != nil {
		writeError(c, err)
		return
	}
	defer f.Close() //nolint:errcheck

	res, err := s.store.Upload(header.Filename, f)
	if err != nil {
		writeError(c, err)
		return
	}
	s.publish(model.EventLogUpdated, gin.H{"name": res.Filename})

	body := gin.H{
		"message":  "File uploaded successfully",
		"filename": res.Filename,
	}
	if res.OriginalName != "" {
		body["originalName"] = res.OriginalName
	}
	c.JSON(http.StatusOK, body)
}

type exportRequest struct {
	SourceFile string `json:"sourceFile"`
}

func (s *Server) handleExport(c *gin.Context) {
	var req exportRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	if req.SourceFile == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "sourceFile is required"})
		return
	}

	res, err := s.store.Export(req.SourceFile)
	if err != nil {
		writeError(c, err)
		return
	}
	s.publish(model.EventExportComplete, res)

	c.JSON(http.StatusOK, gin.H{
		"message":    "Export completed",
		"filename":   res.Filename,
		"path":       res.Path,
		"totalTurns": res.TotalTurns,
	})
}

type eventRequest struct {
	Name string          `json:"name" binding:"required"`
	Data json.RawMessage `json:"data"`
}

func (s *Server) handleEvent(c *gin.Context) {
	var req eventRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "event name is required"})
		return
	}
	if err := s.feed.Publish(req.Name, req.Data); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"status": "queued"})
}

func (s *Server) publish(name string, data any) {
	if err := s.feed.Publish(name, data); err != nil {
		log.Printf("server: publish %s: %v", name, err)
	}
}

// writeError maps domain errors to status codes. Unexpected errors are
// logged and reported generically.
func writeError(c *gin.Context, err error) {
	status := statusFor(err)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		log.Printf("server: %s %s: %v", c.Request.Method, c.Request.URL.Path, err)
		msg = "internal server error"
	}
	c.JSON(status, gin.H{"error": msg})
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, store.ErrTooLarge):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, store.ErrInvalidName),
		errors.Is(err, store.ErrInvalidUpload),
		errors.Is(err, gamelog.ErrMalformedInput):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}
