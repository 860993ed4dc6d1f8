package logger

import (
	"fmt"
	"log/slog"
)

// FormatLogger adapts a slog logger to the printf-style Errorf/Warnf/Debugf
// interface expected by HTTP client libraries.
type FormatLogger struct {
	Logger *slog.Logger
}

func (f FormatLogger) Errorf(format string, v ...interface{}) {
	f.Logger.Error(fmt.Sprintf(format, v...))
}

func (f FormatLogger) Warnf(format string, v ...interface{}) {
	f.Logger.Warn(fmt.Sprintf(format, v...))
}

func (f FormatLogger) Debugf(format string, v ...interface{}) {
	f.Logger.Debug(fmt.Sprintf(format, v...))
}
