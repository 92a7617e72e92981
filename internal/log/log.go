// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//	http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package log provides the global structured logger used across the
// Conductor and its Surfaces. Every subsystem should call With to attach a
// "component" field rather than logging through the package-level helpers
// directly, so log lines stay attributable in a multi-task program.
package log

import (
	"os"

	"go.uber.org/zap"
)

var logger *zap.Logger

func init() {
	logger = newDefault()
}

func newDefault() *zap.Logger {
	if os.Getenv("YOLLAYAH_DEBUG") != "" {
		l, _ := zap.NewDevelopment()
		return l
	}
	l, err := zap.NewProduction()
	if err != nil {
		return zap.NewNop()
	}
	return l
}

// Logger returns the global logger.
func Logger() *zap.Logger {
	return logger
}

// SetLogger replaces the global logger. Used by cmd/ entrypoints once flags
// and configuration have been parsed.
func SetLogger(l *zap.Logger) {
	logger = l
}

// With returns a logger scoped to a component, e.g. log.With(zap.String("component", "conductor")).
func With(fields ...zap.Field) *zap.Logger {
	return logger.With(fields...)
}

// Debug logs a debug message on the global logger.
func Debug(msg string, fields ...zap.Field) { logger.Debug(msg, fields...) }

// Info logs an info message on the global logger.
func Info(msg string, fields ...zap.Field) { logger.Info(msg, fields...) }

// Warn logs a warning message on the global logger.
func Warn(msg string, fields ...zap.Field) { logger.Warn(msg, fields...) }

// Error logs an error message on the global logger.
func Error(msg string, fields ...zap.Field) { logger.Error(msg, fields...) }

// Fatal logs a message on the global logger and exits the process.
func Fatal(msg string, fields ...zap.Field) { logger.Fatal(msg, fields...) }

// Sync flushes any buffered log entries. Call before process exit.
func Sync() error {
	return logger.Sync()
}
