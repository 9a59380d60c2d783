package util

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestNewLoggerWithFileTeesDebug(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "sim_test.log")
	logger, err := NewLoggerWithFile(path)
	if err != nil {
		t.Fatal(err)
	}
	logger.Info("run started")
	logger.Debug("cancel for unknown order")
	_ = logger.Sync()

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	out := string(data)
	if !strings.Contains(out, "run started") {
		t.Errorf("file log missing info line: %q", out)
	}
	// Debug detail lands in the file even though the console drops it.
	if !strings.Contains(out, "cancel for unknown order") {
		t.Errorf("file log missing debug line: %q", out)
	}
}
