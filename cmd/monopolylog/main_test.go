package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"monopolylog/internal/model"
	"monopolylog/internal/store"
)

func fixtureDir() string {
	return filepath.Join("..", "..", "testdata", "logs")
}

func runCmd(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	t.Setenv("HOME", t.TempDir())

	cmd := newRootCmd()
	var out, errOut bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), errOut.String(), err
}

func TestTurnsCommand(t *testing.T) {
	out, _, err := runCmd(t, "turns", filepath.Join(fixtureDir(), "game_logs.json"), "--format", "plain", "--no-header")
	if err != nil {
		t.Fatalf("turns returned error: %v", err)
	}

	lines := strings.Split(strings.TrimSpace(out), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected 2 turn rows, got %d:\n%s", len(lines), out)
	}
	if !strings.HasPrefix(lines[0], "1\tGPT\t1440\t1\t1640\tGemini\t1400\t1\t1600\t") {
		t.Fatalf("unexpected first row: %q", lines[0])
	}
	if !strings.HasPrefix(lines[1], "2\tGPT\t1290\t2\t1790\t") {
		t.Fatalf("unexpected second row: %q", lines[1])
	}
}

func TestTurnsCommandByName(t *testing.T) {
	out, _, err := runCmd(t, "turns", "game_logs_stream.jsonl", "--logs-dir", fixtureDir(), "--format", "json")
	if err == nil {
		t.Fatalf("expected .jsonl name to be rejected under the logs dir, got output %s", out)
	}
	if !errors.Is(err, store.ErrInvalidName) {
		t.Fatalf("expected ErrInvalidName, got %v", err)
	}

	out, _, err = runCmd(t, "turns", "game_logs.json", "--logs-dir", fixtureDir(), "--format", "json")
	if err != nil {
		t.Fatalf("turns returned error: %v", err)
	}
	var records []model.TurnRecord
	if err := json.Unmarshal([]byte(out), &records); err != nil {
		t.Fatalf("decode output: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("expected 2 records, got %d", len(records))
	}
}

func TestTurnsCommandErrors(t *testing.T) {
	if _, _, err := runCmd(t, "turns", "missing.json", "--logs-dir", t.TempDir()); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if _, _, err := runCmd(t, "turns", filepath.Join(fixtureDir(), "bad_turn.json")); err == nil {
		t.Fatal("expected error for malformed log")
	}
}

func TestListCommand(t *testing.T) {
	out, _, err := runCmd(t, "list", "--logs-dir", fixtureDir(), "--format", "plain", "--no-header")
	if err != nil {
		t.Fatalf("list returned error: %v", err)
	}
	if !strings.Contains(out, "\tgame_logs.json\n") || !strings.Contains(out, "\tbad_turn.json\n") {
		t.Fatalf("expected json logs in output:\n%s", out)
	}
	if strings.Contains(out, ".jsonl") {
		t.Fatalf("only .json files should be listed:\n%s", out)
	}
}

func TestExportCommand(t *testing.T) {
	dir := t.TempDir()
	data, err := os.ReadFile(filepath.Join(fixtureDir(), "game_logs.json"))
	if err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "game_logs.json"), data, 0o644); err != nil {
		t.Fatal(err)
	}

	out, _, err := runCmd(t, "export", "game_logs.json", "--logs-dir", dir, "--format", "json")
	if err != nil {
		t.Fatalf("export returned error: %v", err)
	}
	var res model.ExportResult
	if err := json.Unmarshal([]byte(out), &res); err != nil {
		t.Fatalf("decode output: %v", err)
	}
	if res.TotalTurns != 2 {
		t.Fatalf("expected 2 turns, got %d", res.TotalTurns)
	}
	if _, err := os.Stat(filepath.Join(dir, "export_decision", res.Filename)); err != nil {
		t.Fatalf("export file missing: %v", err)
	}
}

func TestUploadCommand(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(fixtureDir(), "game_logs.json")

	out, _, err := runCmd(t, "upload", src, "--logs-dir", dir, "--name", "match.json")
	if err != nil {
		t.Fatalf("upload returned error: %v", err)
	}
	if strings.TrimSpace(out) != "match.json" {
		t.Fatalf("unexpected output: %q", out)
	}

	_, errOut, err := runCmd(t, "upload", src, "--logs-dir", dir, "--name", "match.json")
	if err != nil {
		t.Fatalf("second upload returned error: %v", err)
	}
	if !strings.Contains(errOut, "already exists") {
		t.Fatalf("expected collision warning, got %q", errOut)
	}
}

func TestViewCommandFlags(t *testing.T) {
	_, _, err := runCmd(t, "view", filepath.Join(fixtureDir(), "game_logs.json"), "--color", "--no-color")
	if err == nil {
		t.Fatal("expected error for conflicting color flags")
	}

	out, _, err := runCmd(t, "view", filepath.Join(fixtureDir(), "game_logs.json"), "--no-color", "--max", "1")
	if err != nil {
		t.Fatalf("view returned error: %v", err)
	}
	if !strings.HasPrefix(out, "Turn 2 |") {
		t.Fatalf("expected the last turn only:\n%s", out)
	}
}

func TestViewCommandTurnZero(t *testing.T) {
	dir := t.TempDir()
	log := `[
  {"timestamp": "2025-06-01T10:00:00Z", "game_context": {"global": {"current_turn": 0}, "players": {"player1": {"name": "GPT", "money": 1500}}}},
  {"timestamp": "2025-06-01T10:00:05Z", "game_context": {"global": {"current_turn": 1}, "players": {"player1": {"name": "GPT", "money": 1400}}}}
]`
	p := filepath.Join(dir, "opening.json")
	if err := os.WriteFile(p, []byte(log), 0o644); err != nil {
		t.Fatal(err)
	}

	out, _, err := runCmd(t, "view", p, "--no-color", "--from", "0", "--to", "0")
	if err != nil {
		t.Fatalf("view returned error: %v", err)
	}
	if !strings.Contains(out, "Turn 0 |") || strings.Contains(out, "Turn 1 |") {
		t.Fatalf("expected only turn 0:\n%s", out)
	}

	out, _, err = runCmd(t, "view", p, "--no-color")
	if err != nil {
		t.Fatalf("view returned error: %v", err)
	}
	if !strings.Contains(out, "Turn 0 |") || !strings.Contains(out, "Turn 1 |") {
		t.Fatalf("expected every turn without bounds:\n%s", out)
	}
}
