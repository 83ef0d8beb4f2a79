package waybind

import "log/slog"

// Logger receives the registry's object lifecycle and dispatch events.
// Lifecycle and per-message events are logged at Debug; a Terminate task
// is logged at Info. *slog.Logger satisfies it.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// defaultLogger tags records with component=waybind.
func defaultLogger() Logger {
	return slog.Default().With("component", "waybind")
}

// messageAttrs are the fields identifying a wire message in a log record.
// name is omitted when the target's interface is unknown.
func messageAttrs(header Header, name string, extra ...any) []any {
	attrs := []any{"object", header.ObjectID, "opcode", header.Opcode}
	if name != "" {
		attrs = append(attrs, "message", name)
	}
	return append(attrs, extra...)
}
