package logging

import (
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"
)

// RequestLog represents a single completed-task log entry: one line
// per RequestTask reaching TaskCompleted, whether by success or error.
type RequestLog struct {
	Timestamp     time.Time `json:"timestamp"`
	CorrelationID string    `json:"correlation_id"`
	TraceID       string    `json:"trace_id,omitempty"`
	SpanID        string    `json:"span_id,omitempty"`
	Method        string    `json:"method"`
	URL           string    `json:"url"`
	CallbackID    string    `json:"callback_id"`
	Status        int       `json:"status,omitempty"`
	DurationMs    int64     `json:"duration_ms"`
	Success       bool      `json:"success"`
	Error         string    `json:"error,omitempty"`
	ErrorKind     string    `json:"error_kind,omitempty"`
	RedirectHops  int       `json:"redirect_hops,omitempty"`
	Externalized  bool      `json:"externalized,omitempty"`
}

// Logger handles per-task request logging
type Logger struct {
	mu      sync.Mutex
	enabled bool
	file    *os.File
	console bool
}

var defaultLogger = &Logger{enabled: true, console: true}

// Default returns the default logger
func Default() *Logger {
	return defaultLogger
}

// SetOutput sets the log output file
func (l *Logger) SetOutput(path string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.file != nil {
		l.file.Close()
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return err
	}
	l.file = f
	return nil
}

// SetConsole enables/disables console output
func (l *Logger) SetConsole(enabled bool) {
	l.mu.Lock()
	l.console = enabled
	l.mu.Unlock()
}

// Log writes a request log entry
func (l *Logger) Log(entry *RequestLog) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if !l.enabled {
		return
	}

	entry.Timestamp = time.Now()

	if l.console {
		status := "✓"
		if !entry.Success {
			status = "✗"
		}
		redirects := ""
		if entry.RedirectHops > 0 {
			redirects = fmt.Sprintf(" [redirects:%d]", entry.RedirectHops)
		}
		ext := ""
		if entry.Externalized {
			ext = " [externalized]"
		}
		fmt.Printf("[task] %s %s %s %s %dms%s%s\n",
			status, entry.CorrelationID, entry.Method, entry.URL, entry.DurationMs, redirects, ext)
		if entry.Error != "" {
			fmt.Printf("[task]   error: %s (%s)\n", entry.Error, entry.ErrorKind)
		}
	}

	if l.file != nil {
		data, _ := json.Marshal(entry)
		l.file.Write(append(data, '\n'))
	}
}

// Close closes the log file
func (l *Logger) Close() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.file != nil {
		l.file.Close()
		l.file = nil
	}
}
