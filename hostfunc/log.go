package hostfunc

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/sirupsen/logrus"
)

// NewLogger builds the host logger. format is "text" or "json"; level is
// any level name logrus understands.
func NewLogger(w io.Writer, level, format string) (*logrus.Logger, error) {
	if w == nil {
		w = os.Stderr
	}
	logger := logrus.New()
	logger.SetOutput(w)

	if level == "" {
		level = "info"
	}
	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		return nil, fmt.Errorf("log level: %w", err)
	}
	logger.SetLevel(lvl)

	switch strings.ToLower(format) {
	case "", "text":
		logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	case "json":
		logger.SetFormatter(&logrus.JSONFormatter{})
	default:
		return nil, fmt.Errorf("unknown log format %q", format)
	}
	return logger, nil
}

// LogSink receives module log lines. Emission never fails the caller.
type LogSink struct {
	logger *logrus.Logger
}

// NewLogSink wraps logger; nil uses the logrus standard logger.
func NewLogSink(logger *logrus.Logger) *LogSink {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &LogSink{logger: logger}
}

func (s *LogSink) Logger() *logrus.Logger { return s.logger }

// Emit writes one module log line. Out-of-range levels are clamped.
func (s *LogSink) Emit(caller, invocation string, level Level, message string) {
	s.logger.WithField("caller", caller).
		WithField("invocation", invocation).
		Log(logrusLevel(level), message)
}

func logrusLevel(l Level) logrus.Level {
	switch l.clamp() {
	case LevelError:
		return logrus.ErrorLevel
	case LevelWarn:
		return logrus.WarnLevel
	case LevelInfo:
		return logrus.InfoLevel
	default:
		return logrus.DebugLevel
	}
}
