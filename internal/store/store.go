// Package store provides enumeration, reading, upload and export of game logs
// kept in a single directory.
package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"monopolylog/internal/aggregate"
	"monopolylog/internal/gamelog"
	"monopolylog/internal/model"

	"github.com/bmatcuk/doublestar/v4"
)

var (
	// ErrNotFound is returned when a named log does not exist.
	ErrNotFound = errors.New("log not found")
	// ErrInvalidName is returned for names that are not plain .json file names.
	ErrInvalidName = errors.New("invalid log name")
	// ErrInvalidUpload is returned when an upload is not a JSON file.
	ErrInvalidUpload = errors.New("invalid upload")
	// ErrTooLarge is returned when an upload exceeds the size limit.
	ErrTooLarge = errors.New("upload too large")
)

const (
	// DefaultExportDir is the subdirectory that receives decision exports.
	DefaultExportDir = "export_decision"
	// DefaultMaxUpload bounds the size of an uploaded log.
	DefaultMaxUpload int64 = 50 * 1024 * 1024
)

// Store is a directory of JSON game logs.
type Store struct {
	root      string
	exportDir string
	maxUpload int64
	now       func() time.Time

	mu sync.Mutex // serializes naming and renaming of uploads
}

// Option configures a Store.
type Option func(*Store)

// WithExportDir overrides the export subdirectory name.
func WithExportDir(dir string) Option {
	return func(s *Store) {
		if dir != "" {
			s.exportDir = dir
		}
	}
}

// WithMaxUpload overrides the upload size limit in bytes.
func WithMaxUpload(n int64) Option {
	return func(s *Store) {
		if n > 0 {
			s.maxUpload = n
		}
	}
}

// WithClock overrides the clock used for generated file names.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// New returns a Store rooted at root.
func New(root string, opts ...Option) *Store {
	s := &Store{
		root:      root,
		exportDir: DefaultExportDir,
		maxUpload: DefaultMaxUpload,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Root returns the log directory.
func (s *Store) Root() string { return s.root }

// MaxUpload returns the upload size limit in bytes.
func (s *Store) MaxUpload() int64 { return s.maxUpload }

// ListOptions controls how logs are enumerated.
type ListOptions struct {
	// Pattern is an optional doublestar glob matched against the file name.
	Pattern string
	Limit   int
}

// ListResult contains log files and non-fatal warnings.
type ListResult struct {
	Files    []model.LogFile
	Warnings []error
}

// List enumerates the .json logs directly under the root, most recently
// modified first. A missing root yields an empty list.
func (s *Store) List(opts ListOptions) (ListResult, error) {
	if s.root == "" {
		return ListResult{}, errors.New("logs directory is required")
	}
	if opts.Pattern != "" && !doublestar.ValidatePattern(opts.Pattern) {
		return ListResult{}, fmt.Errorf("%w: bad pattern %q", ErrInvalidName, opts.Pattern)
	}

	result := ListResult{Files: []model.LogFile{}}

	dirEntries, err := os.ReadDir(s.root)
	if errors.Is(err, fs.ErrNotExist) {
		return result, nil
	}
	if err != nil {
		return result, fmt.Errorf("read logs directory: %w", err)
	}

	for _, d := range dirEntries {
		if d.IsDir() || !strings.HasSuffix(d.Name(), ".json") {
			continue
		}
		if opts.Pattern != "" {
			matched, err := doublestar.Match(opts.Pattern, d.Name())
			if err != nil || !matched {
				continue
			}
		}

		info, err := d.Info()
		if err != nil {
			result.Warnings = append(result.Warnings, fmt.Errorf("stat %s: %w", d.Name(), err))
			continue
		}
		result.Files = append(result.Files, model.LogFile{
			Name:     d.Name(),
			Size:     info.Size(),
			Modified: info.ModTime(),
		})
	}

	sort.SliceStable(result.Files, func(i, j int) bool {
		return result.Files[i].Modified.After(result.Files[j].Modified)
	})

	if opts.Limit > 0 && len(result.Files) > opts.Limit {
		result.Files = result.Files[:opts.Limit]
	}
	return result, nil
}

// Path resolves a log name to its path under the root.
func (s *Store) Path(name string) (string, error) {
	if err := ValidateName(name); err != nil {
		return "", err
	}
	return filepath.Join(s.root, name), nil
}

// Read returns the raw bytes of the named log.
func (s *Store) Read(name string) ([]byte, error) {
	p, err := s.Path(name)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(p)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	if err != nil {
		return nil, fmt.Errorf("read log %s: %w", name, err)
	}
	return data, nil
}

// Entries decodes the named log.
func (s *Store) Entries(name string) ([]model.RawLogEntry, error) {
	p, err := s.Path(name)
	if err != nil {
		return nil, err
	}
	entries, err := gamelog.ReadFile(p)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", name, err)
	}
	return entries, nil
}

// ValidateName rejects names that could escape the logs directory or are not .json files.
func ValidateName(name string) error {
	switch {
	case name == "":
		return fmt.Errorf("%w: empty name", ErrInvalidName)
	case strings.Contains(name, ".."), strings.ContainsAny(name, `/\`):
		return fmt.Errorf("%w: %q", ErrInvalidName, name)
	case !strings.HasSuffix(name, ".json"):
		return fmt.Errorf("%w: %q is not a .json file", ErrInvalidName, name)
	}
	return nil
}

// UploadResult describes a stored upload.
type UploadResult struct {
	Filename     string `json:"filename"`
	OriginalName string `json:"originalName,omitempty"`
}

// Upload stores r under filename. The content must parse as JSON and stay
// within the size limit; on any failure no file is left behind. When the name
// is taken, a millisecond timestamp is appended to the stem, followed by a
// counter if that name is taken too.
func (s *Store) Upload(filename string, r io.Reader) (UploadResult, error) {
	filename = filepath.Base(filename)
	if !strings.HasSuffix(filename, ".json") {
		return UploadResult{}, fmt.Errorf("%w: only JSON files are allowed", ErrInvalidUpload)
	}
	if err := ValidateName(filename); err != nil {
		return UploadResult{}, fmt.Errorf("%w: %v", ErrInvalidUpload, err)
	}

	if err := os.MkdirAll(s.root, 0o755); err != nil {
		return UploadResult{}, fmt.Errorf("create logs directory: %w", err)
	}

	tmp, err := os.CreateTemp(s.root, ".upload-*.tmp")
	if err != nil {
		return UploadResult{}, fmt.Errorf("create upload file: %w", err)
	}
	tmpPath := tmp.Name()
	// The stored copy is a hard link, so the temp name always goes.
	defer os.Remove(tmpPath) //nolint:errcheck

	n, err := io.Copy(tmp, io.LimitReader(r, s.maxUpload+1))
	if closeErr := tmp.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		return UploadResult{}, fmt.Errorf("write upload: %w", err)
	}
	if n > s.maxUpload {
		return UploadResult{}, fmt.Errorf("%w: limit is %d bytes", ErrTooLarge, s.maxUpload)
	}

	if err := checkJSON(tmpPath); err != nil {
		return UploadResult{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	target, err := s.claim(tmpPath, filename)
	if err != nil {
		return UploadResult{}, err
	}

	result := UploadResult{Filename: target}
	if target != filename {
		result.OriginalName = filename
	}
	return result, nil
}

// claim links tmpPath under the first free candidate name. os.Link fails
// when the name exists, so no stored upload is ever replaced.
func (s *Store) claim(tmpPath, filename string) (string, error) {
	stem := strings.TrimSuffix(filename, ".json")
	millis := s.now().UnixMilli()

	for n := 0; ; n++ {
		var target string
		switch n {
		case 0:
			target = filename
		case 1:
			target = fmt.Sprintf("%s_%d.json", stem, millis)
		default:
			target = fmt.Sprintf("%s_%d_%d.json", stem, millis, n-1)
		}

		err := os.Link(tmpPath, filepath.Join(s.root, target))
		if errors.Is(err, fs.ErrExist) {
			continue
		}
		if err != nil {
			return "", fmt.Errorf("store upload: %w", err)
		}
		return target, nil
	}
}

func checkJSON(p string) error {
	f, err := os.Open(p)
	if err != nil {
		return fmt.Errorf("reopen upload: %w", err)
	}
	defer f.Close() //nolint:errcheck

	dec := json.NewDecoder(f)
	var v json.RawMessage
	if err := dec.Decode(&v); err != nil {
		return fmt.Errorf("%w: invalid JSON file", ErrInvalidUpload)
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return fmt.Errorf("%w: trailing data after JSON value", ErrInvalidUpload)
	}
	return nil
}

// Export aggregates the named log in timestamp order and writes the decision export.
func (s *Store) Export(source string) (model.ExportResult, error) {
	entries, err := s.Entries(source)
	if err != nil {
		return model.ExportResult{}, err
	}
	records, err := aggregate.Aggregate(entries, aggregate.Options{SortByTimestamp: true})
	if err != nil {
		return model.ExportResult{}, fmt.Errorf("export %s: %w", source, err)
	}
	return s.WriteExport(source, aggregate.Project(records))
}

// WriteExport writes records as indented JSON under the export directory.
func (s *Store) WriteExport(source string, records []aggregate.ExportRecord) (model.ExportResult, error) {
	dir := filepath.Join(s.root, s.exportDir)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return model.ExportResult{}, fmt.Errorf("create export directory: %w", err)
	}

	if records == nil {
		records = []aggregate.ExportRecord{}
	}
	data, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return model.ExportResult{}, fmt.Errorf("encode export: %w", err)
	}

	filename := ExportFilename(source, s.now())
	if err := os.WriteFile(filepath.Join(dir, filename), data, 0o644); err != nil {
		return model.ExportResult{}, fmt.Errorf("write export: %w", err)
	}

	return model.ExportResult{
		Filename:   filename,
		Path:       path.Join("/logs", s.exportDir, filename),
		TotalTurns: len(records),
	}, nil
}

// ExportFilename builds decisions_<stem>_<timestamp>.json with a timestamp
// safe for any filesystem.
func ExportFilename(source string, at time.Time) string {
	stem := strings.TrimSuffix(filepath.Base(source), ".json")
	ts := at.UTC().Format("2006-01-02T15:04:05.000Z")
	ts = strings.NewReplacer(":", "-", ".", "-").Replace(ts)
	return fmt.Sprintf("decisions_%s_%s.json", stem, ts)
}
