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

// Package file implements a source replaying events from a JSON lines file, one encoded event per line.
package file

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"os"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/sigmod2021-index-pattern/index-pattern-sub002/pkg/event"
	"github.com/sigmod2021-index-pattern/index-pattern-sub002/pkg/metrics"
	"github.com/sigmod2021-index-pattern/index-pattern-sub002/pkg/shared/logging"
)

const maxLineSize = 1 << 20

type Config struct {
	Path string `mapstructure:"path"`
}

// Validate checks the configuration.
func (c Config) Validate() error {
	if c.Path == "" {
		return fmt.Errorf("file source requires a path")
	}
	return nil
}

// Reader emits the events of a file in order.
type Reader struct {
	name    string
	path    string
	schema  *event.Schema
	log     *zap.SugaredLogger
	count   prometheus.Counter
	errors  prometheus.Counter
	skipped int
}

type Option func(*Reader) error

func WithLogger(log *zap.SugaredLogger) Option {
	return func(r *Reader) error {
		r.log = log
		return nil
	}
}

// New returns a Reader decoding the lines of the configured file against schema.
func New(name string, schema *event.Schema, cfg Config, opts ...Option) (*Reader, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	r := &Reader{
		name:   name,
		path:   cfg.Path,
		schema: schema,
		count:  metrics.SourceReadCount.WithLabelValues(name),
		errors: metrics.SourceReadErrors.WithLabelValues(name, "decode"),
	}
	for _, o := range opts {
		if err := o(r); err != nil {
			return nil, err
		}
	}
	if r.log == nil {
		r.log = logging.NewLogger()
	}
	r.log = r.log.With("source", name, "path", cfg.Path)
	return r, nil
}

func (r *Reader) Name() string {
	return r.name
}

// Skipped returns the number of lines which could not be decoded.
func (r *Reader) Skipped() int {
	return r.skipped
}

// Run emits every line of the file, skipping blank and malformed lines. It returns when the file is exhausted
// or ctx is done.
func (r *Reader) Run(ctx context.Context, emit func(e *event.Event) error) error {
	f, err := os.Open(r.path)
	if err != nil {
		return fmt.Errorf("failed to open %q, %w", r.path, err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)
	line := 0
	for scanner.Scan() {
		if ctx.Err() != nil {
			return nil
		}
		line++
		data := bytes.TrimSpace(scanner.Bytes())
		if len(data) == 0 {
			continue
		}
		e, err := event.Unmarshal(data, r.schema)
		if err != nil {
			r.skipped++
			r.errors.Inc()
			r.log.Warnw("Skipping malformed line", zap.Int("line", line), zap.Error(err))
			continue
		}
		if err := emit(e); err != nil {
			return err
		}
		r.count.Inc()
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("failed to read %q, %w", r.path, err)
	}
	r.log.Infow("Reached end of file", zap.Int("lines", line), zap.Int("skipped", r.skipped))
	return nil
}

func (r *Reader) Close() error {
	return nil
}
