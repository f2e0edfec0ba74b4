package model

import (
	"encoding/json"
	"time"
)

// LogFile is a listing entry for a stored log.
type LogFile struct {
	Name     string    `json:"name"`
	Size     int64     `json:"size"`
	Modified time.Time `json:"modified"`
}

// ExportResult describes a written export file.
type ExportResult struct {
	Filename   string `json:"filename"`
	Path       string `json:"path"`
	TotalTurns int    `json:"totalTurns"`
}

// FeedEvent is a named real-time event relayed to dashboard clients.
// Data is forwarded untouched.
type FeedEvent struct {
	ID   string          `json:"id"`
	Name string          `json:"name"`
	Time time.Time       `json:"time"`
	Data json.RawMessage `json:"data,omitempty"`
}

// Feed event names produced by this module. Externally produced names
// (popup.detected, ai.decision_made, ...) pass through as-is.
const (
	EventLogUpdated     = "log.updated"
	EventLogRemoved     = "log.removed"
	EventServiceStatus  = "service.status"
	EventExportComplete = "export.completed"
)

// ServiceStatus is the last observed state of an externally managed subsystem.
type ServiceStatus struct {
	Name      string    `json:"name"`
	URL       string    `json:"url"`
	Running   bool      `json:"running"`
	Error     string    `json:"error,omitempty"`
	CheckedAt time.Time `json:"checked_at"`
}

// EntryReader provides the raw entries of a named log.
type EntryReader interface {
	Entries(name string) ([]RawLogEntry, error)
}
