// Package gamelog decodes raw game log files written by the match logger.
package gamelog

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"time"
	"unicode"

	"monopolylog/internal/model"
)

// ErrMalformedInput is returned when a log or one of its entries cannot be used.
var ErrMalformedInput = errors.New("malformed input")

// EntryError reports the entry that failed decoding or validation.
type EntryError struct {
	Index  int
	Field  string
	Reason string
}

func (e *EntryError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("entry %d: %s", e.Index, e.Reason)
	}
	return fmt.Sprintf("entry %d: %s: %s", e.Index, e.Field, e.Reason)
}

// Unwrap lets callers match EntryError with errors.Is(err, ErrMalformedInput).
func (e *EntryError) Unwrap() error { return ErrMalformedInput }

// ReadFile decodes the log stored at path.
func ReadFile(path string) ([]model.RawLogEntry, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open log file: %w", err)
	}
	defer file.Close() //nolint:errcheck

	return Decode(file)
}

// Decode reads a log from r. A log is either a JSON array of entries or
// JSONL with one entry per line; the first non-space byte decides.
// An empty stream yields an empty log.
func Decode(r io.Reader) ([]model.RawLogEntry, error) {
	br := bufio.NewReader(r)
	first, err := peekNonSpace(br)
	if errors.Is(err, io.EOF) {
		return []model.RawLogEntry{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read log: %w", err)
	}

	if first == '[' {
		return decodeArray(br)
	}
	return decodeLines(br)
}

func decodeArray(r io.Reader) ([]model.RawLogEntry, error) {
	dec := json.NewDecoder(r)
	var raws []json.RawMessage
	if err := dec.Decode(&raws); err != nil {
		return nil, fmt.Errorf("%w: decode log array: %v", ErrMalformedInput, err)
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("%w: trailing data after log array", ErrMalformedInput)
	}

	entries := make([]model.RawLogEntry, 0, len(raws))
	for idx, raw := range raws {
		entry, err := decodeEntry(idx, raw)
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

func decodeLines(r io.Reader) ([]model.RawLogEntry, error) {
	entries := make([]model.RawLogEntry, 0)

	scanner := newScanner(r)
	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		entry, err := decodeEntry(len(entries), line)
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scan log: %w", err)
	}
	return entries, nil
}

func decodeEntry(idx int, raw []byte) (model.RawLogEntry, error) {
	var entry model.RawLogEntry
	if err := json.Unmarshal(raw, &entry); err != nil {
		var typeErr *json.UnmarshalTypeError
		if errors.As(err, &typeErr) {
			return model.RawLogEntry{}, &EntryError{Index: idx, Field: typeErr.Field, Reason: fmt.Sprintf("expected %s, got %s", typeErr.Type, typeErr.Value)}
		}
		return model.RawLogEntry{}, &EntryError{Index: idx, Reason: err.Error()}
	}
	return entry, nil
}

func newScanner(r io.Reader) *bufio.Scanner {
	scanner := bufio.NewScanner(r)
	// Entries carry full board snapshots and the whole chat history.
	const maxCapacity = 8 * 1024 * 1024
	buf := make([]byte, 1024)
	scanner.Buffer(buf, maxCapacity)
	return scanner
}

func peekNonSpace(br *bufio.Reader) (byte, error) {
	for {
		b, err := br.ReadByte()
		if err != nil {
			return 0, err
		}
		if unicode.IsSpace(rune(b)) {
			continue
		}
		if err := br.UnreadByte(); err != nil {
			return 0, err
		}
		return b, nil
	}
}

// ParseTimestamp parses the ISO-8601 timestamps written by the logger.
// Values without a zone are read as UTC.
func ParseTimestamp(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, errors.New("missing timestamp")
	}

	if ts, err := time.Parse(time.RFC3339Nano, value); err == nil {
		return ts, nil
	}
	if ts, err := time.Parse("2006-01-02T15:04:05.999999999", value); err == nil {
		return ts, nil
	}
	return time.Parse(time.RFC3339, value)
}
