package server

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"monopolylog/internal/hub"
	"monopolylog/internal/model"
	"monopolylog/internal/store"

	"github.com/gorilla/websocket"
)

type fakeStatus []model.ServiceStatus

func (f fakeStatus) Snapshot() []model.ServiceStatus { return f }

func copyFixture(t *testing.T, dir, fixture, name string) {
	t.Helper()
	data, err := os.ReadFile(filepath.Join("..", "..", "testdata", "logs", fixture))
	if err != nil {
		t.Fatalf("read fixture: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, name), data, 0o644); err != nil {
		t.Fatalf("write fixture: %v", err)
	}
}

func newTestServer(t *testing.T, opts ...store.Option) (*Server, *hub.Hub, string) {
	t.Helper()
	dir := t.TempDir()
	h := hub.New()
	st := store.New(dir, opts...)
	status := fakeStatus{{Name: "game", URL: "http://localhost:5000/status", Running: true}}
	return New(st, h, status, ":0"), h, dir
}

func do(t *testing.T, srv *Server, method, target string, body []byte, contentType string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, bytes.NewReader(body))
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, v any) {
	t.Helper()
	if err := json.Unmarshal(rec.Body.Bytes(), v); err != nil {
		t.Fatalf("decode %q: %v", rec.Body.String(), err)
	}
}

func multipartBody(t *testing.T, field, filename, content string) ([]byte, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	if filename != "" {
		fw, err := mw.CreateFormFile(field, filename)
		if err != nil {
			t.Fatal(err)
		}
		fw.Write([]byte(content)) //nolint:errcheck
	}
	if err := mw.Close(); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes(), mw.FormDataContentType()
}

func TestHealth(t *testing.T) {
	srv, _, _ := newTestServer(t)
	rec := do(t, srv, http.MethodGet, "/healthz", nil, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var body map[string]any
	decode(t, rec, &body)
	if body["status"] != "ok" || body["subscribers"] != float64(0) {
		t.Fatalf("unexpected body: %v", body)
	}
}

func TestListLogs(t *testing.T) {
	srv, _, dir := newTestServer(t)
	copyFixture(t, dir, "game_logs.json", "game_logs.json")

	rec := do(t, srv, http.MethodGet, "/api/list-logs", nil, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var body struct {
		Files []model.LogFile `json:"files"`
	}
	decode(t, rec, &body)
	if len(body.Files) != 1 || body.Files[0].Name != "game_logs.json" {
		t.Fatalf("unexpected files: %+v", body.Files)
	}
}

func TestGameLog(t *testing.T) {
	srv, _, dir := newTestServer(t)
	copyFixture(t, dir, "game_logs.json", "game_logs.json")
	copyFixture(t, dir, "game_logs_stream.jsonl", "stream.json")

	rec := do(t, srv, http.MethodGet, "/api/game-logs", nil, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var entries []model.RawLogEntry
	decode(t, rec, &entries)
	if len(entries) != 3 {
		t.Fatalf("expected 3 entries, got %d", len(entries))
	}

	rec = do(t, srv, http.MethodGet, "/api/game-logs?file=stream.json", nil, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 for line-delimited log, got %d", rec.Code)
	}
	decode(t, rec, &entries)
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(entries))
	}

	if err := os.WriteFile(filepath.Join(dir, "broken.json"), []byte("{\"a\":1}\nnot json\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	rec = do(t, srv, http.MethodGet, "/api/game-logs?file=broken.json", nil, "")
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for a broken line-delimited log, got %d", rec.Code)
	}
}

func TestErrorMapping(t *testing.T) {
	srv, _, dir := newTestServer(t)
	copyFixture(t, dir, "bad_turn.json", "bad_turn.json")

	cases := []struct {
		name   string
		method string
		target string
		want   int
	}{
		{"missing log", http.MethodGet, "/api/game-logs?file=nope.json", http.StatusNotFound},
		{"traversal", http.MethodGet, "/api/game-logs?file=../secret.json", http.StatusBadRequest},
		{"malformed turns", http.MethodGet, "/api/turns?file=bad_turn.json", http.StatusBadRequest},
		{"missing turns", http.MethodGet, "/api/turns?file=absent.json", http.StatusNotFound},
		{"wrong method", http.MethodPost, "/api/list-logs", http.StatusMethodNotAllowed},
		{"unknown route", http.MethodGet, "/api/nothing", http.StatusNotFound},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := do(t, srv, tc.method, tc.target, nil, "")
			if rec.Code != tc.want {
				t.Fatalf("expected %d, got %d: %s", tc.want, rec.Code, rec.Body.String())
			}
			var body map[string]string
			decode(t, rec, &body)
			if body["error"] == "" {
				t.Fatalf("expected error payload, got %v", body)
			}
		})
	}
}

func TestTurns(t *testing.T) {
	srv, _, dir := newTestServer(t)
	copyFixture(t, dir, "game_logs.json", "game_logs.json")

	rec := do(t, srv, http.MethodGet, "/api/turns", nil, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var records []model.TurnRecord
	decode(t, rec, &records)
	if len(records) != 2 || records[0].Turn != 1 || records[1].Turn != 2 {
		t.Fatalf("unexpected turns: %+v", records)
	}
	if len(records[0].Decisions) != 1 || records[0].Decisions[0].Decision != "buy" {
		t.Fatalf("unexpected decisions: %+v", records[0].Decisions)
	}
}

func TestUpload(t *testing.T) {
	srv, h, dir := newTestServer(t)
	events, unsubscribe := h.Subscribe()
	defer unsubscribe()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go h.Run(ctx)

	body, ct := multipartBody(t, "file", "match.json", `[]`)
	rec := do(t, srv, http.MethodPost, "/api/upload-log", body, ct)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var res map[string]string
	decode(t, rec, &res)
	if res["filename"] != "match.json" || res["message"] == "" {
		t.Fatalf("unexpected response: %v", res)
	}
	if _, ok := res["originalName"]; ok {
		t.Fatalf("originalName must be omitted without a collision: %v", res)
	}
	if _, err := os.Stat(filepath.Join(dir, "match.json")); err != nil {
		t.Fatalf("upload not stored: %v", err)
	}

	select {
	case ev := <-events:
		if ev.Name != model.EventLogUpdated {
			t.Fatalf("unexpected event: %+v", ev)
		}
	case <-time.After(time.Second):
		t.Fatal("expected log.updated event")
	}

	body, ct = multipartBody(t, "file", "match.json", `{}`)
	rec = do(t, srv, http.MethodPost, "/api/upload-log", body, ct)
	decode(t, rec, &res)
	if res["originalName"] != "match.json" || !strings.HasPrefix(res["filename"], "match_") {
		t.Fatalf("unexpected collision response: %v", res)
	}
}

func TestUploadRejects(t *testing.T) {
	srv, _, _ := newTestServer(t, store.WithMaxUpload(8))

	cases := []struct {
		name     string
		filename string
		content  string
		want     int
	}{
		{"no file", "", "", http.StatusBadRequest},
		{"not json extension", "notes.txt", `[]`, http.StatusBadRequest},
		{"invalid json", "match.json", `{"a":`, http.StatusBadRequest},
		{"too large", "match.json", `["0123456789"]`, http.StatusRequestEntityTooLarge},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			body, ct := multipartBody(t, "file", tc.filename, tc.content)
			rec := do(t, srv, http.MethodPost, "/api/upload-log", body, ct)
			if rec.Code != tc.want {
				t.Fatalf("expected %d, got %d: %s", tc.want, rec.Code, rec.Body.String())
			}
		})
	}
}

func TestExport(t *testing.T) {
	srv, _, dir := newTestServer(t)
	copyFixture(t, dir, "game_logs.json", "game_logs.json")

	rec := do(t, srv, http.MethodPost, "/api/export-decisions",
		[]byte(`{"sourceFile":"game_logs.json"}`), "application/json")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var res struct {
		Message    string `json:"message"`
		Filename   string `json:"filename"`
		Path       string `json:"path"`
		TotalTurns int    `json:"totalTurns"`
	}
	decode(t, rec, &res)
	if res.TotalTurns != 2 || !strings.HasPrefix(res.Filename, "decisions_game_logs_") {
		t.Fatalf("unexpected response: %+v", res)
	}
	if res.Path != "/logs/export_decision/"+res.Filename {
		t.Fatalf("unexpected path: %s", res.Path)
	}

	rec = do(t, srv, http.MethodPost, "/api/export-decisions", []byte(`{}`), "application/json")
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 without sourceFile, got %d", rec.Code)
	}
	rec = do(t, srv, http.MethodPost, "/api/export-decisions",
		[]byte(`{"sourceFile":"missing.json"}`), "application/json")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for missing source, got %d", rec.Code)
	}
}

func TestStatus(t *testing.T) {
	srv, _, _ := newTestServer(t)
	rec := do(t, srv, http.MethodGet, "/api/status", nil, "")
	var body struct {
		Services []model.ServiceStatus `json:"services"`
	}
	decode(t, rec, &body)
	if len(body.Services) != 1 || !body.Services[0].Running {
		t.Fatalf("unexpected status: %+v", body)
	}
}

func TestEventsOverWebSocket(t *testing.T) {
	srv, h, _ := newTestServer(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go h.Run(ctx)

	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(ts.URL, "http")+"/ws", nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close() //nolint:errcheck

	deadline := time.Now().Add(2 * time.Second)
	for h.Subscribers() == 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}

	rec := do(t, srv, http.MethodPost, "/api/events",
		[]byte(`{"name":"ai.decision_made","data":{"decision":"buy"}}`), "application/json")
	if rec.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d: %s", rec.Code, rec.Body.String())
	}

	conn.SetReadDeadline(time.Now().Add(2 * time.Second)) //nolint:errcheck
	var ev model.FeedEvent
	if err := conn.ReadJSON(&ev); err != nil {
		t.Fatalf("read event: %v", err)
	}
	if ev.Name != "ai.decision_made" || ev.ID == "" {
		t.Fatalf("unexpected event: %+v", ev)
	}
	if string(ev.Data) != `{"decision":"buy"}` {
		t.Fatalf("payload not relayed as-is: %s", ev.Data)
	}

	rec = do(t, srv, http.MethodPost, "/api/events", []byte(`{"data":1}`), "application/json")
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 without a name, got %d", rec.Code)
	}
}
