// Package log is the structured logger of the server, the worker and the CLI.
//
// Messages are written by zap. Attributes come from Logger.With, from the context (see the ctxattr package)
// and from the component set by Logger.WithComponent.
// An attribute <key> in a message is replaced by the attribute value, for example "Task <task.id> started".
package log

import (
	"context"
	"fmt"
	"strings"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/jleaniz/turbinia/internal/pkg/ctxattr"
)

const (
	DebugLevel = zapcore.DebugLevel
	InfoLevel  = zapcore.InfoLevel
	WarnLevel  = zapcore.WarnLevel
	ErrorLevel = zapcore.ErrorLevel
)

type Logger interface {
	With(attrs ...attribute.KeyValue) Logger
	// WithComponent returns a logger for a sub-component, for example "worker.task".
	WithComponent(component string) Logger

	Debug(ctx context.Context, message string)
	Info(ctx context.Context, message string)
	Warn(ctx context.Context, message string)
	Error(ctx context.Context, message string)
	Debugf(ctx context.Context, template string, args ...any)
	Infof(ctx context.Context, template string, args ...any)
	Warnf(ctx context.Context, template string, args ...any)
	Errorf(ctx context.Context, template string, args ...any)

	// Log writes the message with a level name, unknown names fall back to info.
	Log(ctx context.Context, level string, message string)
	Logf(ctx context.Context, level string, template string, args ...any)

	Sync() error
}

const componentKey = "component"

// zapLogger is the default implementation of the Logger interface.
type zapLogger struct {
	core      *zap.Logger
	component string
	attrs     []attribute.KeyValue
}

func loggerFromZapCore(core zapcore.Core) *zapLogger {
	return &zapLogger{core: zap.New(core)}
}

func (l *zapLogger) With(attrs ...attribute.KeyValue) Logger {
	clone := *l
	clone.attrs = append(append([]attribute.KeyValue{}, l.attrs...), attrs...)
	return &clone
}

// WithComponent appends the component name, nested components are separated by a dot.
func (l *zapLogger) WithComponent(component string) Logger {
	clone := *l
	if clone.component == "" {
		clone.component = component
	} else {
		clone.component += "." + component
	}
	return &clone
}

func (l *zapLogger) Debug(ctx context.Context, message string) {
	l.log(ctx, DebugLevel, message)
}

func (l *zapLogger) Info(ctx context.Context, message string) {
	l.log(ctx, InfoLevel, message)
}

func (l *zapLogger) Warn(ctx context.Context, message string) {
	l.log(ctx, WarnLevel, message)
}

func (l *zapLogger) Error(ctx context.Context, message string) {
	l.log(ctx, ErrorLevel, message)
}

func (l *zapLogger) Log(ctx context.Context, level string, message string) {
	l.log(ctx, parseLevel(level), message)
}

func (l *zapLogger) Debugf(ctx context.Context, template string, args ...any) {
	l.log(ctx, DebugLevel, fmt.Sprintf(template, args...))
}

func (l *zapLogger) Infof(ctx context.Context, template string, args ...any) {
	l.log(ctx, InfoLevel, fmt.Sprintf(template, args...))
}

func (l *zapLogger) Warnf(ctx context.Context, template string, args ...any) {
	l.log(ctx, WarnLevel, fmt.Sprintf(template, args...))
}

func (l *zapLogger) Errorf(ctx context.Context, template string, args ...any) {
	l.log(ctx, ErrorLevel, fmt.Sprintf(template, args...))
}

func (l *zapLogger) Logf(ctx context.Context, level string, template string, args ...any) {
	l.log(ctx, parseLevel(level), fmt.Sprintf(template, args...))
}

func (l *zapLogger) Sync() error {
	return l.core.Sync()
}

func (l *zapLogger) log(ctx context.Context, level zapcore.Level, message string) {
	entry := l.core.Check(level, "")
	if entry == nil {
		return
	}

	// Context attributes first, logger attributes have priority
	set := ctxattr.Attributes(ctx)
	attrs := append(set.ToSlice(), l.attrs...)

	fields := make([]zap.Field, 0, len(attrs)+1)
	if l.component != "" {
		fields = append(fields, zap.String(componentKey, l.component))
	}
	for _, kv := range attrs {
		fields = append(fields, zap.Any(string(kv.Key), kv.Value.AsInterface()))
		message = strings.ReplaceAll(message, "<"+string(kv.Key)+">", kv.Value.Emit())
	}

	entry.Message = message
	entry.Write(fields...)
}

func parseLevel(level string) zapcore.Level {
	l, err := zapcore.ParseLevel(level)
	if err != nil {
		return InfoLevel
	}
	return l
}
