package enip

// Logger is the structured logger accepted by bridge components.
// Satisfied by *logging.Logger. A nil Logger discards everything.
type Logger interface {
	Debug(msg string, keysAndValues ...any)
	Info(msg string, keysAndValues ...any)
	Warn(msg string, keysAndValues ...any)
	Error(msg string, keysAndValues ...any)
}

func logDebug(l Logger, msg string, kv ...any) {
	if l != nil {
		l.Debug(msg, kv...)
	}
}

func logInfo(l Logger, msg string, kv ...any) {
	if l != nil {
		l.Info(msg, kv...)
	}
}

func logWarn(l Logger, msg string, kv ...any) {
	if l != nil {
		l.Warn(msg, kv...)
	}
}

func logError(l Logger, msg string, err error, kv ...any) {
	if l != nil {
		l.Error(msg, append([]any{"error", err}, kv...)...)
	}
}
