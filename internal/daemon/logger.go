// Package daemon hosts the print service: service lifecycle, HTTP routes and
// the rotating log file.
package daemon

import (
	"errors"
	"io"
	stdlog "log"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Log configuration
const (
	maxLogSize     = 5 * 1024 * 1024 // 5MB
	keepOnRotate   = 1000
	keepOnFlush    = 50
	logTimeLayout  = "2006/01/02 15:04:05.000000"
	logFilePerm    = 0600
	logFileOpenFlg = os.O_RDWR | os.O_CREATE | os.O_APPEND
)

// Logger state
var (
	logConfig    = struct{ Verbose bool }{Verbose: true}
	logConfigMux sync.RWMutex
	logFilePath  string
	logFile      *os.File
	logFileMu    sync.Mutex // guards write, flush and rotate
)

// Non-critical messages (filtered when verbose=false)
var nonCriticalPrefixes = []string{
	"[WS] ➕ Client connected",
	"[WS] ➖ Client disconnected",
	"[PIPELINE] 🖨️ Dispatching job",
	"[HTTP] request",
}

// FilteredLogger implements io.Writer with filtering
type FilteredLogger struct{}

// Write filters log lines based on verbosity
func (l *FilteredLogger) Write(p []byte) (n int, err error) {
	if !GetVerbose() {
		msg := string(p)
		for _, prefix := range nonCriticalPrefixes {
			if strings.Contains(msg, prefix) {
				return len(p), nil
			}
		}
	}

	logFileMu.Lock()
	defer logFileMu.Unlock()

	if logFile == nil {
		return 0, errors.New("log file not initialized")
	}
	return logFile.Write(p)
}

// InitLogger opens the log file (rotating it if needed) and points the global
// zerolog logger at it. extra receives a human-readable copy of every entry.
func InitLogger(path string, verbose bool, extra ...io.Writer) error {
	logFileMu.Lock()
	defer logFileMu.Unlock()

	logFilePath = path

	logConfigMux.Lock()
	logConfig.Verbose = verbose
	logConfigMux.Unlock()

	if err := rotateLogIfNeeded(path); err != nil {
		// Logger is not ready yet.
		_, _ = os.Stderr.WriteString("[LOG] ⚠️ Log rotation failed: " + err.Error() + "\n")
	}

	f, err := os.OpenFile(path, logFileOpenFlg, logFilePerm) //nolint:gosec
	if err != nil {
		return err
	}
	if logFile != nil {
		_ = logFile.Close()
	}
	logFile = f

	writers := []io.Writer{zerolog.ConsoleWriter{Out: &FilteredLogger{}, NoColor: true, TimeFormat: logTimeLayout}}
	for _, w := range extra {
		writers = append(writers, zerolog.ConsoleWriter{Out: w, TimeFormat: time.TimeOnly})
	}

	zerolog.TimeFieldFormat = time.RFC3339Nano
	log.Logger = zerolog.New(zerolog.MultiLevelWriter(writers...)).With().Timestamp().Logger()
	applyLevel(verbose)

	// Route stray standard-library logging (net/http) through zerolog.
	stdlog.SetFlags(0)
	stdlog.SetOutput(log.Logger)

	return nil
}

func applyLevel(verbose bool) {
	if verbose {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	} else {
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}
}

// SetVerbose changes the verbosity level at runtime
func SetVerbose(v bool) {
	logConfigMux.Lock()
	logConfig.Verbose = v
	logConfigMux.Unlock()
	applyLevel(v)
	log.Info().Bool("verbose", v).Msg("[LOG] Verbosity changed")
}

// GetVerbose returns current verbosity level
func GetVerbose() bool {
	logConfigMux.RLock()
	defer logConfigMux.RUnlock()
	return logConfig.Verbose
}

// GetLogFileSize returns current log file size
func GetLogFileSize() int64 {
	logFileMu.Lock()
	path := logFilePath
	logFileMu.Unlock()
	if path == "" {
		return 0
	}
	info, err := os.Stat(path)
	if err != nil {
		return 0
	}
	return info.Size()
}

// FlushLogFile keeps the last lines and clears the rest
func FlushLogFile() error {
	logFileMu.Lock()
	defer logFileMu.Unlock()

	if logFilePath == "" {
		return errors.New("log path not configured")
	}

	lines := readLastNLines(logFilePath, keepOnFlush)
	content := ""
	if len(lines) > 0 {
		content = strings.Join(lines, "\n") + "\n"
	}

	if logFile != nil {
		if err := logFile.Close(); err != nil {
			return err
		}
		logFile = nil
	}

	if err := os.WriteFile(logFilePath, []byte(content), logFilePerm); err != nil {
		return err
	}

	f, err := os.OpenFile(logFilePath, logFileOpenFlg, logFilePerm) //nolint:gosec
	if err != nil {
		return err
	}
	logFile = f
	return nil
}

// closeLogFile releases the log file on shutdown.
func closeLogFile() {
	logFileMu.Lock()
	defer logFileMu.Unlock()
	if logFile != nil {
		_ = logFile.Close()
		logFile = nil
	}
}

// rotateLogIfNeeded rotates log if exceeds max size
func rotateLogIfNeeded(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}

	if info.Size() < maxLogSize {
		return nil
	}

	lines := readLastNLines(path, keepOnRotate)
	if len(lines) == 0 {
		return nil
	}

	content := strings.Join(lines, "\n") + "\n"
	return os.WriteFile(path, []byte(content), logFilePerm)
}

// readLastNLines reads last N lines from file
func readLastNLines(path string, n int) []string {
	file, err := os.Open(path) //nolint:gosec
	if err != nil {
		return []string{}
	}
	defer func() { _ = file.Close() }()

	stat, err := file.Stat()
	if err != nil {
		return []string{}
	}

	size := stat.Size()
	if size == 0 {
		return []string{}
	}

	// Read last 64KB max
	bufSize := int64(64 * 1024)
	if size < bufSize {
		bufSize = size
	}

	buf := make([]byte, bufSize)
	if _, err := file.ReadAt(buf, size-bufSize); err != nil && !errors.Is(err, io.EOF) {
		return []string{}
	}

	allLines := strings.Split(string(buf), "\n")

	for len(allLines) > 0 && allLines[len(allLines)-1] == "" {
		allLines = allLines[:len(allLines)-1]
	}

	// Started mid-line: drop the partial first line.
	if size > bufSize && len(allLines) > 0 {
		allLines = allLines[1:]
	}

	if len(allLines) <= n {
		return allLines
	}
	return allLines[len(allLines)-n:]
}
