// Package logging builds the process-wide structured logger.
package logging

import (
	"log/slog"
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/exp/zapslog"
	"go.uber.org/zap/zapcore"
)

// ShutdownFunc flushes buffered log entries.
type ShutdownFunc func() error

// NewLogger returns a slog.Logger backed by a zap production core with
// ISO8601 timestamps. Debug enables debug level output.
func NewLogger(debug bool) (*slog.Logger, ShutdownFunc, error) {
	logConfig := zap.NewProductionConfig()
	logConfig.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	logConfig.OutputPaths = []string{"stderr"}
	if debug {
		logConfig.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
	}

	zapLog, err := logConfig.Build()
	if err != nil {
		return nil, nil, err
	}
	core := zapLog.Core()
	shutdown := func() error {
		return core.Sync()
	}
	return slog.New(zapslog.NewHandler(core, zapslog.WithCaller(true))), shutdown, nil
}

// FallbackLogger is used when the zap logger cannot be built.
func FallbackLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(os.Stderr, nil))
}
