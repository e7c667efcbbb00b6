/*
Copyright 2022 The Numaproj Authors.

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

package logging

import (
	"context"
	"os"
	"strings"

	zap "go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const (
	// EnvDebug switches to the development encoder when set to "true".
	EnvDebug = "NUMACEP_DEBUG"
	// EnvLevel overrides the log level, e.g. "debug" or "warn".
	EnvLevel = "NUMACEP_LOG_LEVEL"
)

// NewLogger returns a new zap.SugaredLogger
func NewLogger() *zap.SugaredLogger {
	logger, err := newConfig().Build()
	if err != nil {
		panic(err)
	}
	return logger.Named("numacep").Sugar()
}

func newConfig() zap.Config {
	var config zap.Config
	if debugMode, ok := os.LookupEnv(EnvDebug); ok && debugMode == "true" {
		config = zap.NewDevelopmentConfig()
	} else {
		config = zap.NewProductionConfig()
	}
	if lvl, ok := os.LookupEnv(EnvLevel); ok {
		var l zapcore.Level
		if err := l.UnmarshalText([]byte(strings.ToLower(lvl))); err == nil {
			config.Level = zap.NewAtomicLevelAt(l)
		}
	}
	config.OutputPaths = []string{"stdout"}
	return config
}

type loggerKey struct{}

// WithLogger returns a copy of parent context in which the
// value associated with logger key is the supplied logger.
func WithLogger(ctx context.Context, logger *zap.SugaredLogger) context.Context {
	return context.WithValue(ctx, loggerKey{}, logger)
}

// FromContext returns the logger in the context.
func FromContext(ctx context.Context) *zap.SugaredLogger {
	if logger, ok := ctx.Value(loggerKey{}).(*zap.SugaredLogger); ok {
		return logger
	}
	return NewLogger()
}
