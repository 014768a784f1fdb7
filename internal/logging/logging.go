// Package logging builds the zap logger shared by every leafnet command.
package logging

import (
	"io"
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// New returns a logger writing info and below to stdout and errors to stderr,
// with caller information and RFC3339 timestamps. format is "console" or "json".
func New(format string) *zap.SugaredLogger {
	return NewWithWriters(format, os.Stdout, os.Stderr)
}

// NewWithWriters is New with explicit sinks.
func NewWithWriters(format string, stdout, stderr io.Writer) *zap.SugaredLogger {
	isErrorLevel := zap.LevelEnablerFunc(func(lvl zapcore.Level) bool {
		return lvl >= zapcore.ErrorLevel
	})
	isInfoLevel := zap.LevelEnablerFunc(func(lvl zapcore.Level) bool {
		return lvl >= zapcore.InfoLevel && lvl < zapcore.ErrorLevel
	})

	config := zap.NewProductionEncoderConfig()
	config.EncodeTime = zapcore.RFC3339TimeEncoder
	var encoder zapcore.Encoder
	if format == "json" {
		encoder = zapcore.NewJSONEncoder(config)
	} else {
		config.EncodeLevel = zapcore.CapitalLevelEncoder
		encoder = zapcore.NewConsoleEncoder(config)
	}

	core := zapcore.NewTee(
		zapcore.NewCore(encoder, zapcore.Lock(zapcore.AddSync(stderr)), isErrorLevel),
		zapcore.NewCore(encoder, zapcore.Lock(zapcore.AddSync(stdout)), isInfoLevel),
	)
	return zap.New(core, zap.AddCaller()).Sugar()
}

// Nop returns a logger that discards everything.
func Nop() *zap.SugaredLogger {
	return zap.NewNop().Sugar()
}
