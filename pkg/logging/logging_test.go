package logging

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"
)

// readEntries decodes every JSON log line written to path
func readEntries(t *testing.T, path string) []map[string]interface{} {
	t.Helper()
	f, err := os.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()

	var entries []map[string]interface{}
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		entry := map[string]interface{}{}
		if err := json.Unmarshal(scanner.Bytes(), &entry); err != nil {
			t.Fatalf("invalid log line %q: %v", scanner.Text(), err)
		}
		entries = append(entries, entry)
	}
	return entries
}

func TestLoggerLevels(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.log")
	logger, err := NewLogger(Options{Level: LevelInfo, Format: FormatJSON, OutputPath: path})
	if err != nil {
		t.Fatal(err)
	}

	logger.Debug("hidden")
	logger.Info("shown", "key", "value")
	logger.Warn("careful")
	logger.Error(errors.New("boom"), "failed")
	if err := logger.SetLevel(LevelDebug); err != nil {
		t.Fatal(err)
	}
	logger.Debug("now visible")
	_ = logger.Sync()

	entries := readEntries(t, path)
	if len(entries) != 4 {
		t.Fatalf("expected 4 entries, got %d: %v", len(entries), entries)
	}
	tests := []struct {
		msg, level string
	}{
		{"shown", "info"},
		{"careful", "warn"},
		{"failed", "error"},
		{"now visible", "debug"},
	}
	for i, tt := range tests {
		if entries[i]["msg"] != tt.msg || entries[i]["level"] != tt.level {
			t.Errorf("entry %d: expected %s/%s, got %v", i, tt.msg, tt.level, entries[i])
		}
	}
	if entries[0]["key"] != "value" {
		t.Errorf("expected key=value, got %v", entries[0])
	}
	if entries[2]["error"] != "boom" {
		t.Errorf("expected error=boom, got %v", entries[2])
	}
	if logger.GetLevel() != LevelDebug {
		t.Errorf("expected level debug, got %s", logger.GetLevel())
	}
}

func TestNewLoggerErrors(t *testing.T) {
	if _, err := NewLogger(Options{Level: "loud"}); err == nil {
		t.Error("expected error for unknown level")
	}
	if _, err := NewLogger(Options{Format: "xml"}); err == nil {
		t.Error("expected error for unknown format")
	}
	if _, err := NewLogger(Options{OutputPath: filepath.Join(t.TempDir(), "missing", "out.log")}); err == nil {
		t.Error("expected error for unwritable output path")
	}
}

func TestContextLoggers(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.log")
	logger, err := NewLogger(Options{Level: LevelInfo, OutputPath: path})
	if err != nil {
		t.Fatal(err)
	}
	ctx := IntoContext(context.Background(), logger)

	LoggerForNetwork(ctx, "net1").Info("network")
	LoggerForPort(ctx, "p1").Info("port")
	LoggerForSecurityGroup(ctx, "sg1").Info("group")
	LoggerForRouter(ctx, "r1").Info("router")
	LoggerForOVN(ctx, "create_port").Info("ovn")
	_ = logger.Sync()

	entries := readEntries(t, path)
	if len(entries) != 5 {
		t.Fatalf("expected 5 entries, got %d", len(entries))
	}
	checks := []struct {
		key, value string
	}{
		{"network", "net1"},
		{"port", "p1"},
		{"securityGroup", "sg1"},
		{"router", "r1"},
		{"operation", "create_port"},
	}
	for i, c := range checks {
		if entries[i][c.key] != c.value {
			t.Errorf("entry %d: expected %s=%s, got %v", i, c.key, c.value, entries[i])
		}
	}
	if entries[4]["logger"] != "ovn" {
		t.Errorf("expected logger name ovn, got %v", entries[4]["logger"])
	}
}

func TestFromContextFallsBackToGlobal(t *testing.T) {
	nop := NewNopLogger()
	SetGlobalLogger(nop)
	if FromContext(context.Background()) != nop {
		t.Error("expected the global logger")
	}
	if L() != nop {
		t.Error("expected L to return the global logger")
	}
}
