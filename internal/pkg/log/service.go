package log

import (
	"io"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

type ServiceLoggerConfig struct {
	Format LogFormat
	Debug  bool
}

// NewServiceLogger creates a logger for long-running server and worker processes.
func NewServiceLogger(w io.Writer, cfg ServiceLoggerConfig) Logger {
	level := zap.NewAtomicLevelAt(InfoLevel)
	if cfg.Debug {
		level.SetLevel(DebugLevel)
	}
	return loggerFromZapCore(zapcore.NewCore(newEncoder(cfg.Format), zapcore.Lock(zapcore.AddSync(w)), level))
}

func newEncoder(format LogFormat) zapcore.Encoder {
	encoderConfig := zap.NewProductionEncoderConfig()
	encoderConfig.TimeKey = "time"
	encoderConfig.MessageKey = "message"
	encoderConfig.EncodeTime = zapcore.RFC3339NanoTimeEncoder
	encoderConfig.StacktraceKey = ""
	encoderConfig.CallerKey = ""
	if format == LogFormatJSON {
		encoderConfig.EncodeLevel = zapcore.LowercaseLevelEncoder
		return zapcore.NewJSONEncoder(encoderConfig)
	}
	encoderConfig.EncodeLevel = zapcore.CapitalLevelEncoder
	encoderConfig.ConsoleSeparator = "  "
	return zapcore.NewConsoleEncoder(encoderConfig)
}
