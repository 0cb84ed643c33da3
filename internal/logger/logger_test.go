package logger

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestNewLogger_CreatesFiles(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "logs")

	l, err := NewLogger(dir)
	if err != nil {
		t.Fatalf("NewLogger failed: %v", err)
	}
	defer l.Close()

	for _, name := range []string{InfoFile, WarningFile, ErrorFile} {
		if _, err := os.Stat(filepath.Join(dir, name)); err != nil {
			t.Errorf("Expected %s to exist: %v", name, err)
		}
	}
}

func TestLogger_WritesLevelFiles(t *testing.T) {
	dir := t.TempDir()
	l, err := NewLogger(dir)
	if err != nil {
		t.Fatalf("NewLogger failed: %v", err)
	}
	defer l.Close()

	l.Info("captured frame %d", 3)
	l.Error("inference failed: %s", "boom")

	info, _ := os.ReadFile(filepath.Join(dir, InfoFile))
	if !strings.Contains(string(info), "captured frame 3") {
		t.Errorf("info.log missing entry, got %q", string(info))
	}

	errs, _ := os.ReadFile(filepath.Join(dir, ErrorFile))
	if !strings.Contains(string(errs), "inference failed: boom") {
		t.Errorf("error.log missing entry, got %q", string(errs))
	}
	if strings.Contains(string(errs), "captured frame") {
		t.Error("error.log should not contain info entries")
	}
}

func TestLogger_CleanLogs(t *testing.T) {
	dir := t.TempDir()
	l, err := NewLogger(dir)
	if err != nil {
		t.Fatalf("NewLogger failed: %v", err)
	}
	defer l.Close()

	l.Warning("slow capture")

	if err := l.CleanLogs(WarningFile); err != nil {
		t.Fatalf("CleanLogs failed: %v", err)
	}

	stat, err := os.Stat(filepath.Join(dir, WarningFile))
	if err != nil {
		t.Fatalf("Stat failed: %v", err)
	}
	if stat.Size() != 0 {
		t.Errorf("Expected empty warning.log, got %d bytes", stat.Size())
	}
}

func TestLogger_CleanLogs_RejectsUnknownFile(t *testing.T) {
	l := NewDiscard()

	if err := l.CleanLogs("../secret"); err == nil {
		t.Error("Expected error for unknown log file")
	}
}
