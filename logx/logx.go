// Copyright 2024 The mxtasking Authors
// This file is part of the mxtasking library.
//
// The mxtasking library is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// The mxtasking library is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with the mxtasking library. If not, see <http://www.gnu.org/licenses/>.

// Package logx is the runtime's ambient structured logger. It mirrors the
// keyword-argument calling convention of go-ethereum's log package
// (Debug/Info/Warn/Error(msg, "key", value, ...)) on top of zap, the way
// the rest of the corpus layers a leveled logger over a real backend.
package logx

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	lumberjack "gopkg.in/natefinch/lumberjack.v2"
)

var root = mustBuild(true)

// Logger is the keyword-argument leveled logger used throughout the runtime.
type Logger struct {
	sugar *zap.SugaredLogger
}

// New returns a console-only logger at the given level ("debug", "info",
// "warn", "error"; defaults to "info" on parse failure).
func New(level string) *Logger {
	return mustBuild(true).setLevel(level)
}

// NewRotating returns a logger writing to path, rotated by lumberjack once
// it exceeds maxSizeMB, keeping maxBackups old files.
func NewRotating(path string, maxSizeMB, maxBackups int) *Logger {
	rotator := &lumberjack.Logger{
		Filename:   path,
		MaxSize:    maxSizeMB,
		MaxBackups: maxBackups,
		Compress:   true,
	}
	enc := zap.NewProductionEncoderConfig()
	enc.TimeKey = "ts"
	core := zapcore.NewCore(zapcore.NewJSONEncoder(enc), zapcore.AddSync(rotator), zapcore.InfoLevel)
	return &Logger{sugar: zap.New(core).Sugar()}
}

func mustBuild(_ bool) *Logger {
	cfg := zap.NewDevelopmentConfig()
	cfg.DisableStacktrace = true
	l, err := cfg.Build()
	if err != nil {
		// Logging setup failing at process start is a programming error,
		// not a runtime condition the caller can recover from.
		panic(err)
	}
	return &Logger{sugar: l.Sugar()}
}

func (l *Logger) setLevel(level string) *Logger {
	var zl zapcore.Level
	if err := zl.UnmarshalText([]byte(level)); err != nil {
		zl = zapcore.InfoLevel
	}
	cfg := zap.NewDevelopmentConfig()
	cfg.Level = zap.NewAtomicLevelAt(zl)
	built, err := cfg.Build()
	if err == nil {
		l.sugar = built.Sugar()
	}
	return l
}

// Debug logs at debug level with alternating key/value context pairs.
func (l *Logger) Debug(msg string, kv ...interface{}) { l.sugar.Debugw(msg, kv...) }

// Info logs at info level with alternating key/value context pairs.
func (l *Logger) Info(msg string, kv ...interface{}) { l.sugar.Infow(msg, kv...) }

// Warn logs at warn level with alternating key/value context pairs.
func (l *Logger) Warn(msg string, kv ...interface{}) { l.sugar.Warnw(msg, kv...) }

// Error logs at error level with alternating key/value context pairs.
func (l *Logger) Error(msg string, kv ...interface{}) { l.sugar.Errorw(msg, kv...) }

// Sync flushes any buffered log entries; call before process exit.
func (l *Logger) Sync() error { return l.sugar.Sync() }

// Root is the process-wide default logger, used by packages that don't
// carry their own injected *Logger.
func Root() *Logger { return root }

// Debug logs through the root logger.
func Debug(msg string, kv ...interface{}) { root.Debug(msg, kv...) }

// Info logs through the root logger.
func Info(msg string, kv ...interface{}) { root.Info(msg, kv...) }

// Warn logs through the root logger.
func Warn(msg string, kv ...interface{}) { root.Warn(msg, kv...) }

// Error logs through the root logger.
func Error(msg string, kv ...interface{}) { root.Error(msg, kv...) }

// SetRoot replaces the process-wide default logger, e.g. to point it at a
// rotating file sink configured from config.Config.
func SetRoot(l *Logger) { root = l }
