package stored

import (
	"fmt"
	"log/slog"
	"time"
)

// Logger is the diagnostic sink used by records. Implementations must never
// affect control flow.
type Logger interface {
	// Attr logs a named attribute dump.
	Attr(name string, value any)
	Warning(msg string)
	Info(msg string)
}

// NopLogger discards every message.
type NopLogger struct{}

func (NopLogger) Attr(string, any) {}
func (NopLogger) Warning(string) {}
func (NopLogger) Info(string) {}

// SlogLogger adapts a *slog.Logger to Logger.
type SlogLogger struct {
	L *slog.Logger
}

// NewSlogLogger wraps logger, falling back to slog.Default when nil.
func NewSlogLogger(logger *slog.Logger) SlogLogger {
	if logger == nil {
		logger = slog.Default()
	}
	return SlogLogger{L: logger}
}

func (l SlogLogger) Attr(name string, value any) {
	l.logger().Info(fmt.Sprintf("[%s] %v", name, value), slog.String("attr", name), slog.Any("value", value))
}

func (l SlogLogger) Warning(msg string) {
	l.logger().Warn(msg)
}

func (l SlogLogger) Info(msg string) {
	l.logger().Info(msg)
}

func (l SlogLogger) logger() *slog.Logger {
	if l.L == nil {
		return slog.Default()
	}
	return l.L
}

// EvaluatorLogEvent describes an evaluation attempt for logging.
type EvaluatorLogEvent struct {
	Engine   string
	Expr     string
	Key      string
	Duration time.Duration
	Err      error
}

// EvaluatorLogger records evaluator events.
type EvaluatorLogger interface {
	LogEvaluation(EvaluatorLogEvent)
}

// EvaluatorLoggerFunc adapts a function to EvaluatorLogger.
type EvaluatorLoggerFunc func(EvaluatorLogEvent)

// LogEvaluation implements EvaluatorLogger.
func (f EvaluatorLoggerFunc) LogEvaluation(event EvaluatorLogEvent) {
	if f != nil {
		f(event)
	}
}

type noopEvaluatorLogger struct{}

func (noopEvaluatorLogger) LogEvaluation(EvaluatorLogEvent) {}

// WithLogger sets the diagnostic sink. A nil logger discards output.
func WithLogger(logger Logger) Option {
	return func(cfg *recordConfig) {
		if logger == nil {
			cfg.logger = NopLogger{}
			return
		}
		cfg.logger = logger
	}
}

// WithEvaluatorLogger attaches an evaluator logger to the record.
func WithEvaluatorLogger(logger EvaluatorLogger) Option {
	return func(cfg *recordConfig) {
		if logger == nil {
			cfg.evalLogger = noopEvaluatorLogger{}
			return
		}
		cfg.evalLogger = logger
	}
}
