package daemon

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rs/zerolog/log"
)

func initTestLogger(t *testing.T, verbose bool) string {
	t.Helper()
	previous := log.Logger
	path := filepath.Join(t.TempDir(), "PrintServicio.log")
	if err := InitLogger(path, verbose); err != nil {
		t.Fatalf("InitLogger() error = %v", err)
	}
	t.Cleanup(func() {
		closeLogFile()
		log.Logger = previous
	})
	return path
}

func readLog(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	return string(data)
}

func TestFilteredLoggerDropsNonCriticalWhenQuiet(t *testing.T) {
	path := initTestLogger(t, false)

	log.Info().Int("total", 1).Msg("[WS] ➕ Client connected")
	log.Info().Msg("[PIPELINE] ✅ Print job submitted")

	content := readLog(t, path)
	if strings.Contains(content, "Client connected") {
		t.Error("non-critical message was written while verbose=false")
	}
	if !strings.Contains(content, "Print job submitted") {
		t.Error("critical message missing from log")
	}
}

func TestSetVerboseAtRuntime(t *testing.T) {
	path := initTestLogger(t, false)

	log.Debug().Msg("[TEST] hidden debug")
	SetVerbose(true)
	if !GetVerbose() {
		t.Fatal("GetVerbose() = false after SetVerbose(true)")
	}
	log.Debug().Msg("[TEST] visible debug")
	log.Info().Msg("[WS] ➕ Client connected")

	content := readLog(t, path)
	if strings.Contains(content, "hidden debug") {
		t.Error("debug entry written before verbosity was raised")
	}
	if !strings.Contains(content, "visible debug") || !strings.Contains(content, "Client connected") {
		t.Errorf("verbose entries missing:\n%s", content)
	}
}

func TestFlushLogFileKeepsTail(t *testing.T) {
	path := initTestLogger(t, true)

	for i := 0; i < keepOnFlush+20; i++ {
		log.Info().Int("n", i).Msg("[TEST] line")
	}
	if err := FlushLogFile(); err != nil {
		t.Fatalf("FlushLogFile() error = %v", err)
	}

	lines := strings.Split(strings.TrimSpace(readLog(t, path)), "\n")
	if len(lines) != keepOnFlush {
		t.Fatalf("kept %d lines; want %d", len(lines), keepOnFlush)
	}
	if !strings.Contains(lines[len(lines)-1], "n=69") {
		t.Errorf("last line = %q; want the newest entry", lines[len(lines)-1])
	}

	// Writes continue after the flush.
	log.Info().Msg("[TEST] after flush")
	if !strings.Contains(readLog(t, path), "after flush") {
		t.Error("logger stopped writing after flush")
	}
	if GetLogFileSize() == 0 {
		t.Error("GetLogFileSize() = 0")
	}
}

func TestRotateLogIfNeeded(t *testing.T) {
	path := filepath.Join(t.TempDir(), "big.log")
	line := strings.Repeat("x", 99) + "\n"
	content := strings.Repeat(line, maxLogSize/len(line)+10)
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}

	if err := rotateLogIfNeeded(path); err != nil {
		t.Fatalf("rotateLogIfNeeded() error = %v", err)
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatal(err)
	}
	if info.Size() >= maxLogSize {
		t.Errorf("size after rotation = %d; want < %d", info.Size(), maxLogSize)
	}
	lines := strings.Split(strings.TrimSpace(readLog(t, path)), "\n")
	// 64KB tail holds fewer than keepOnRotate lines of this width.
	if len(lines) == 0 || len(lines) > keepOnRotate {
		t.Errorf("kept %d lines", len(lines))
	}
	if lines[0] != strings.TrimSpace(line) {
		t.Errorf("first kept line is partial: %q", lines[0])
	}
}

func TestRotateMissingFile(t *testing.T) {
	if err := rotateLogIfNeeded(filepath.Join(t.TempDir(), "none.log")); err != nil {
		t.Errorf("rotateLogIfNeeded(missing) error = %v", err)
	}
}
