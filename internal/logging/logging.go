// Package logging writes operational logs to a rotating file under the data
// root. MCP servers own stdout for the protocol, so nothing here ever writes
// to stdout; before Setup, messages fall back to stderr.
package logging

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"

	"gopkg.in/natefinch/lumberjack.v2"
)

var (
	mu     sync.Mutex
	logger = log.New(os.Stderr, "task-mcp: ", log.LstdFlags|log.LUTC)
)

// Setup routes log output to <dataRoot>/logs/task-mcp.log with rotation.
func Setup(dataRoot string) {
	mu.Lock()
	defer mu.Unlock()
	logger = log.New(&lumberjack.Logger{
		Filename:   filepath.Join(dataRoot, "logs", "task-mcp.log"),
		MaxSize:    10, // megabytes
		MaxBackups: 3,
		MaxAge:     28, // days
	}, "", log.LstdFlags|log.LUTC)
}

// Logf logs an informational message.
func Logf(format string, args ...any) {
	mu.Lock()
	defer mu.Unlock()
	logger.Output(2, fmt.Sprintf(format, args...))
}

// Warnf logs a non-fatal warning.
func Warnf(format string, args ...any) {
	mu.Lock()
	defer mu.Unlock()
	logger.Output(2, "warning: "+fmt.Sprintf(format, args...))
}
