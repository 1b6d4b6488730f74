package logging

import (
	"log/slog"
	"os"
)

// InitStructured reconfigures the operational logger from
// config.Config's observability.logging.format/daemon.log_level, once
// at process start.
// format: "text" (default) or "json" (Loki/ELK compatible)
// level: "debug", "info", "warn", "error"
func InitStructured(format, level string) {
	SetLevelFromString(level)

	opts := &slog.HandlerOptions{
		Level: logLevel,
	}

	var handler slog.Handler
	switch format {
	case "json":
		handler = slog.NewJSONHandler(os.Stderr, opts)
	default:
		handler = slog.NewTextHandler(os.Stderr, opts)
	}

	logger := slog.New(handler)
	opLogger.Store(logger)
}

// OpWithTrace returns the operational logger bound with a task's trace
// and span id, so a log line about that task's delivery (externalize
// failure, callback-enqueue failure) can be joined against the
// OpenTelemetry span the Processor opened for it. Called from
// Processor.deliver with the trace/span ids already computed for the
// RequestLog entry, rather than resolving them a second time.
func OpWithTrace(traceID, spanID string) *slog.Logger {
	l := opLogger.Load()
	if traceID == "" {
		return l
	}
	args := []any{"trace_id", traceID}
	if spanID != "" {
		args = append(args, "span_id", spanID)
	}
	return l.With(args...)
}
