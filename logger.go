package tarik

import (
	"log"
	"os"

	"go.uber.org/zap"
)

// Logger is the minimal structured logging interface the pipeline emits to.
// The pipeline never logs unless a Logger is configured.
type Logger interface {
	Debug(msg string, keysAndValues ...interface{})
	Info(msg string, keysAndValues ...interface{})
	Warn(msg string, keysAndValues ...interface{})
	Error(msg string, keysAndValues ...interface{})
}

// SimpleLogger writes leveled key/value lines to stderr. Intended for
// examples and debugging, not production.
type SimpleLogger struct {
	l *log.Logger
}

// NewSimpleLogger creates a SimpleLogger writing to stderr.
func NewSimpleLogger() *SimpleLogger {
	return &SimpleLogger{l: log.New(os.Stderr, "tarik ", log.LstdFlags|log.Lmicroseconds)}
}

func (s *SimpleLogger) Debug(msg string, keysAndValues ...interface{}) {
	s.log("DEBUG", msg, keysAndValues...)
}

func (s *SimpleLogger) Info(msg string, keysAndValues ...interface{}) {
	s.log("INFO", msg, keysAndValues...)
}

func (s *SimpleLogger) Warn(msg string, keysAndValues ...interface{}) {
	s.log("WARN", msg, keysAndValues...)
}

func (s *SimpleLogger) Error(msg string, keysAndValues ...interface{}) {
	s.log("ERROR", msg, keysAndValues...)
}

func (s *SimpleLogger) log(level, msg string, keysAndValues ...interface{}) {
	args := make([]interface{}, 0, 2+len(keysAndValues))
	args = append(args, level, msg)
	args = append(args, keysAndValues...)
	s.l.Println(args...)
}

// ZapLogger adapts a *zap.Logger to the pipeline's Logger interface.
type ZapLogger struct {
	s *zap.SugaredLogger
}

// NewZapLogger wraps a zap logger for use with WithLogger.
func NewZapLogger(l *zap.Logger) *ZapLogger {
	return &ZapLogger{s: l.Sugar()}
}

func (z *ZapLogger) Debug(msg string, keysAndValues ...interface{}) {
	z.s.Debugw(msg, keysAndValues...)
}

func (z *ZapLogger) Info(msg string, keysAndValues ...interface{}) {
	z.s.Infow(msg, keysAndValues...)
}

func (z *ZapLogger) Warn(msg string, keysAndValues ...interface{}) {
	z.s.Warnw(msg, keysAndValues...)
}

func (z *ZapLogger) Error(msg string, keysAndValues ...interface{}) {
	z.s.Errorw(msg, keysAndValues...)
}
