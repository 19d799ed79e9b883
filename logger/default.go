package logger

import "sync/atomic"

// defLogger is the process-wide default logger, used by packages whose
// configuration carries no explicit Logger.
var defLogger atomic.Pointer[Logger]

func init() {
	l := NewSlog(InfoLevel, false)
	defLogger.Store(&l)
}

// SetLogger replaces the process-wide default logger. Nil loggers are ignored.
func SetLogger(l Logger) {
	if l == nil {
		return
	}
	defLogger.Store(&l)
}

// GetLogger returns the process-wide default logger.
func GetLogger() Logger {
	return *defLogger.Load()
}

// SetLevel sets the minimum enabled level of the default logger.
func SetLevel(level Level) {
	GetLogger().SetLevel(level)
}

// With creates a child of the default logger with the given structured context.
func With(keyValues ...any) Logger {
	return GetLogger().With(keyValues...)
}

// Debug logs a message at DebugLevel on the default logger.
func Debug(msg string, keysAndValues ...any) {
	GetLogger().Debug(msg, keysAndValues...)
}

// Info logs a message at InfoLevel on the default logger.
func Info(msg string, keysAndValues ...any) {
	GetLogger().Info(msg, keysAndValues...)
}

// Warn logs a message at WarnLevel on the default logger.
func Warn(msg string, keysAndValues ...any) {
	GetLogger().Warn(msg, keysAndValues...)
}

// Error logs a message at ErrorLevel on the default logger.
func Error(msg string, keysAndValues ...any) {
	GetLogger().Error(msg, keysAndValues...)
}

// Fatal logs a message at FatalLevel on the default logger, then exits.
func Fatal(msg string, keysAndValues ...any) {
	GetLogger().Fatal(msg, keysAndValues...)
}
