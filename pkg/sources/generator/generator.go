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

// Package generator implements a source producing random events conforming to a schema, with increasing
// timestamps. It is meant for load tests and demos.
package generator

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/atomic"
	"go.uber.org/zap"

	"github.com/sigmod2021-index-pattern/index-pattern-sub002/pkg/event"
	"github.com/sigmod2021-index-pattern/index-pattern-sub002/pkg/metrics"
	"github.com/sigmod2021-index-pattern/index-pattern-sub002/pkg/shared/logging"
)

// Config tunes the generator.
type Config struct {
	// Rate is the number of events produced per tick
	Rate int `mapstructure:"rate"`
	// Interval between two ticks, 0 produces as fast as possible
	Interval time.Duration `mapstructure:"interval"`
	// Limit stops the generator after that many events, 0 means unbounded
	Limit int64 `mapstructure:"limit"`

	// Start is the timestamp of the first event
	Start int64 `mapstructure:"start"`
	// Step is the distance between the timestamps of two consecutive events, defaults to 1
	Step *int64 `mapstructure:"step"`

	// Keys is the number of distinct values of string attributes
	Keys int `mapstructure:"keys"`
	// Seed seeds the random payloads
	Seed int64 `mapstructure:"seed"`
}

// Validate checks the configuration.
func (c Config) Validate() error {
	if c.Rate < 0 || c.Interval < 0 || c.Limit < 0 || c.Keys < 0 {
		return fmt.Errorf("generator settings must not be negative")
	}
	if c.Step != nil && *c.Step < 0 {
		return fmt.Errorf("generator step must not be negative, got %d", *c.Step)
	}
	if c.Start > event.MaxT1 {
		return fmt.Errorf("generator start must not exceed %d, got %d", event.MaxT1, c.Start)
	}
	if c.Interval == 0 && c.Limit == 0 {
		return fmt.Errorf("an unthrottled generator requires a limit")
	}
	return nil
}

// Generator produces random events.
type Generator struct {
	name     string
	schema   *event.Schema
	rate     int
	interval time.Duration
	limit    int64
	start    int64
	step     int64
	keys     int
	rnd      *rand.Rand
	produced *atomic.Int64
	count    prometheus.Counter
	log      *zap.SugaredLogger
}

type Option func(*Generator) error

// WithLogger sets the logger
func WithLogger(log *zap.SugaredLogger) Option {
	return func(g *Generator) error {
		g.log = log
		return nil
	}
}

// New returns a Generator of events of the given schema.
func New(name string, schema *event.Schema, cfg Config, opts ...Option) (*Generator, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	g := &Generator{
		name:     name,
		schema:   schema,
		rate:     cfg.Rate,
		interval: cfg.Interval,
		limit:    cfg.Limit,
		start:    cfg.Start,
		step:     1,
		keys:     cfg.Keys,
		rnd:      rand.New(rand.NewSource(cfg.Seed)),
		produced: atomic.NewInt64(0),
		count:    metrics.SourceReadCount.WithLabelValues(name),
	}
	if cfg.Step != nil {
		g.step = *cfg.Step
	}
	if g.rate == 0 {
		g.rate = 1
	}
	if g.keys == 0 {
		g.keys = 8
	}
	for _, o := range opts {
		if err := o(g); err != nil {
			return nil, err
		}
	}
	if g.log == nil {
		g.log = logging.NewLogger()
	}
	g.log = g.log.With("source", name)
	return g, nil
}

func (g *Generator) Name() string {
	return g.name
}

// Produced returns the number of events produced so far.
func (g *Generator) Produced() int64 {
	return g.produced.Load()
}

// Run produces events until the limit is reached or ctx is done.
func (g *Generator) Run(ctx context.Context, emit func(e *event.Event) error) error {
	g.log.Infow("Starting generator", zap.Int("rate", g.rate), zap.Duration("interval", g.interval), zap.Int64("limit", g.limit))
	if g.interval == 0 {
		for {
			if ctx.Err() != nil {
				return nil
			}
			if done, err := g.tick(emit); done || err != nil {
				return err
			}
		}
	}
	ticker := time.NewTicker(g.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if done, err := g.tick(emit); done || err != nil {
				return err
			}
		}
	}
}

func (g *Generator) tick(emit func(e *event.Event) error) (bool, error) {
	for i := 0; i < g.rate; i++ {
		if g.limit > 0 && g.produced.Load() >= g.limit {
			g.log.Infow("Generator reached its limit", zap.Int64("produced", g.produced.Load()))
			return true, nil
		}
		e, err := g.next()
		if err != nil {
			return true, err
		}
		if err := emit(e); err != nil {
			return true, err
		}
		g.count.Inc()
	}
	return false, nil
}

func (g *Generator) next() (*event.Event, error) {
	n := g.produced.Load()
	// start <= MaxT1, so the distance fits in a uint64
	if room := uint64(event.MaxT1) - uint64(g.start); g.step > 0 && uint64(n) > room/uint64(g.step) {
		return nil, fmt.Errorf("generator %q ran out of timestamps after %d events", g.name, n)
	}
	g.produced.Inc()
	payload := make([]any, g.schema.Len())
	for i := range payload {
		switch g.schema.At(i).Type {
		case event.Int:
			payload[i] = g.rnd.Int63n(1000)
		case event.Double:
			payload[i] = g.rnd.Float64() * 100
		case event.String:
			payload[i] = fmt.Sprintf("key-%d", g.rnd.Intn(g.keys))
		case event.Bool:
			payload[i] = g.rnd.Intn(2) == 0
		}
	}
	return event.NewChronon(g.start+n*g.step, payload...)
}

func (g *Generator) Close() error {
	return nil
}
