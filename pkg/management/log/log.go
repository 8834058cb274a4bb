/*
Copyright The CloudNativePG Contributors

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

// Package log wraps a zap-backed logr.Logger the way the rest of the
// codebase expects to use it: FromContext, WithName, WithValues and a
// Trace level below Debug.
package log

import (
	"context"

	"github.com/go-logr/logr"
	"github.com/go-logr/zapr"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// TraceLevel is one level more verbose than logr's Debug (V(1)); it is
// wired to V(2) so operators can ask for it without drowning in Debug noise.
const TraceLevel = 2

type ctxKey struct{}

var root = newLogger()

func newLogger() logr.Logger {
	cfg := zap.NewProductionConfig()
	cfg.EncoderConfig.TimeKey = "ts"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	zl, err := cfg.Build(zap.AddCallerSkip(1))
	if err != nil {
		// A logger that fails to build is a programming error, not a
		// runtime condition callers can recover from.
		panic(err)
	}
	return zapr.NewLogger(zl)
}

// Logger is the interface used throughout the control plane; it is a
// thin alias so call sites don't need to import logr directly.
type Logger = logr.Logger

// GetLogger returns the process-wide root logger.
func GetLogger() Logger {
	return root
}

// SetLogger overrides the process-wide root logger, e.g. to inject a
// Ginkgo-backed logger from tests.
func SetLogger(logger Logger) {
	root = logger
}

// IntoContext attaches a logger to a context.
func IntoContext(ctx context.Context, logger Logger) context.Context {
	return context.WithValue(ctx, ctxKey{}, logger)
}

// FromContext returns the logger carried by ctx, or the root logger.
func FromContext(ctx context.Context) Logger {
	if logger, ok := ctx.Value(ctxKey{}).(Logger); ok {
		return logger
	}
	return root
}

// WithName returns a logger with the given name segment appended.
func WithName(name string) Logger {
	return root.WithName(name)
}

// Debug logs at the default verbose level.
func Debug(msg string, keysAndValues ...interface{}) {
	root.V(1).Info(msg, keysAndValues...)
}

// Trace logs at a level more verbose than Debug.
func Trace(msg string, keysAndValues ...interface{}) {
	root.V(TraceLevel).Info(msg, keysAndValues...)
}

// Info logs at the default info level.
func Info(msg string, keysAndValues ...interface{}) {
	root.Info(msg, keysAndValues...)
}

// Error logs err together with msg.
func Error(err error, msg string, keysAndValues ...interface{}) {
	root.Error(err, msg, keysAndValues...)
}
