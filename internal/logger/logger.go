package logger

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Log is the process logger used by the cobra commands. Components get
// their logger through constructors instead.
var Log = zap.NewNop()

func parseLevel(level string) zapcore.Level {
	switch level {
	case "debug":
		return zap.DebugLevel
	case "info":
		return zap.InfoLevel
	case "warn":
		return zap.WarnLevel
	case "error":
		return zap.ErrorLevel
	default:
		return zap.InfoLevel
	}
}

// New builds a logger for the given level and encoding ("json" | "console").
func New(level, encoding string) (*zap.Logger, error) {
	if encoding != "console" {
		encoding = "json"
	}

	encCfg := zap.NewProductionEncoderConfig()
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder

	cfg := zap.Config{
		Encoding:         encoding,
		Level:            zap.NewAtomicLevelAt(parseLevel(level)),
		OutputPaths:      []string{"stdout"},
		ErrorOutputPaths: []string{"stderr"},
		EncoderConfig:    encCfg,
	}
	return cfg.Build()
}

// Init initializes global logger with level from config
func Init(level, encoding string) *zap.Logger {
	l, err := New(level, encoding)
	if err != nil {
		panic(err)
	}
	Log = l
	return l
}
