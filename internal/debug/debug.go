// Package debug provides gated, category-scoped tracing for the drift core.
// Output is silent unless EnableDebug is set at build time or DEBUG=1 is set
// in the environment, so the core never spams stdio during normal scans.
package debug

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// EnableDebug is a build flag that can be overridden at link time:
// go build -ldflags "-X github.com/ruizrica/drift/internal/debug.EnableDebug=true"
var EnableDebug = "false"

var (
	debugOutput io.Writer
	debugFile   *os.File
	debugMutex  sync.Mutex
)

// SetOutput sets a custom writer for debug output. Pass nil to disable it.
func SetOutput(w io.Writer) {
	debugMutex.Lock()
	defer debugMutex.Unlock()
	debugOutput = w
}

// InitLogFile opens a timestamped log file under the OS temp dir and routes
// debug output to it. Returns the path so callers can report it.
func InitLogFile() (string, error) {
	debugMutex.Lock()
	defer debugMutex.Unlock()

	logDir := filepath.Join(os.TempDir(), "drift-debug-logs")
	if err := os.MkdirAll(logDir, 0755); err != nil {
		return "", fmt.Errorf("create debug log directory: %w", err)
	}

	timestamp := time.Now().Format("2006-01-02T150405")
	logPath := filepath.Join(logDir, fmt.Sprintf("debug-%s.log", timestamp))

	file, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return "", fmt.Errorf("create debug log file: %w", err)
	}

	debugFile = file
	debugOutput = file
	return logPath, nil
}

// CloseLogFile closes the debug log file if one is open.
func CloseLogFile() error {
	debugMutex.Lock()
	defer debugMutex.Unlock()

	if debugFile != nil {
		err := debugFile.Close()
		debugFile = nil
		debugOutput = nil
		return err
	}
	return nil
}

// Enabled reports whether debug tracing is currently active.
func Enabled() bool {
	if EnableDebug == "true" {
		return true
	}
	v := os.Getenv("DEBUG")
	return v == "1" || v == "true"
}

func writer() io.Writer {
	debugMutex.Lock()
	defer debugMutex.Unlock()
	return debugOutput
}

// Log emits a structured, category-tagged debug line. It is a no-op unless
// Enabled() and an output writer has been configured.
func Log(category, format string, args ...interface{}) {
	if !Enabled() {
		return
	}
	w := writer()
	if w == nil {
		return
	}
	fmt.Fprintf(w, "[DEBUG:%s] "+format+"\n", append([]interface{}{category}, args...)...)
}

// LogScan traces the parallel scan orchestrator.
func LogScan(format string, args ...interface{}) { Log("SCAN", format, args...) }

// LogWatch traces the watch-mode engine.
func LogWatch(format string, args ...interface{}) { Log("WATCH", format, args...) }

// LogGate traces the quality-gate orchestrator.
func LogGate(format string, args ...interface{}) { Log("GATE", format, args...) }

// LogStore traces PatternStore/ManifestStore persistence.
func LogStore(format string, args ...interface{}) { Log("STORE", format, args...) }
