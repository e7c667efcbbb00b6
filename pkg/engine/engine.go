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

// Package engine runs a compiled query, feeding its input streams from concurrent sources.
package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/atomic"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sigmod2021-index-pattern/index-pattern-sub002/pkg/event"
	"github.com/sigmod2021-index-pattern/index-pattern-sub002/pkg/graph"
	"github.com/sigmod2021-index-pattern/index-pattern-sub002/pkg/metrics"
	"github.com/sigmod2021-index-pattern/index-pattern-sub002/pkg/query"
	"github.com/sigmod2021-index-pattern/index-pattern-sub002/pkg/shared/expr"
	"github.com/sigmod2021-index-pattern/index-pattern-sub002/pkg/shared/logging"
	"github.com/sigmod2021-index-pattern/index-pattern-sub002/pkg/sources"
)

var (
	ErrAlreadyStarted = errors.New("engine already started")
	ErrNotRunning     = errors.New("engine is not running")
	ErrStopped        = errors.New("engine is stopped")
	ErrOutOfOrder     = errors.New("event is older than the last event of its stream")
)

// pushSource labels the metrics of events sent with Engine.Push
const pushSource = "push"

// feed is a source bound to the stream it feeds.
type feed struct {
	source  sources.Source
	channel *graph.Channel
	ordered prometheus.Counter
	invalid prometheus.Counter
}

// Engine owns the graph of a query. Pushes from all sources are serialized, the graph itself is single threaded.
type Engine struct {
	runID    string
	name     string
	flush    bool
	graph    *graph.Graph
	query    *query.Query
	feeds    []*feed
	extra    []extraSource
	compiler *expr.Compiler
	log      *zap.SugaredLogger

	// mu guards the graph and last. last is the t1 of the last event accepted by each stream, whichever source
	// sent it.
	mu      sync.Mutex
	last    map[graph.NodeID]int64
	started *atomic.Bool
	running *atomic.Bool
	stopped bool

	outOfOrder prometheus.Counter
}

var _ metrics.HealthChecker = (*Engine)(nil)

type Option func(*Engine) error

func WithLogger(log *zap.SugaredLogger) Option {
	return func(e *Engine) error {
		e.log = log
		return nil
	}
}

type extraSource struct {
	stream string
	source sources.Source
}

// WithSource feeds a stream from a source built outside of the configuration.
func WithSource(stream string, s sources.Source) Option {
	return func(e *Engine) error {
		e.extra = append(e.extra, extraSource{stream: stream, source: s})
		return nil
	}
}

// WithCompiler shares an expression compiler between engines.
func WithCompiler(c *expr.Compiler) Option {
	return func(e *Engine) error {
		e.compiler = c
		return nil
	}
}

// New compiles the query and builds its sources. Nothing runs before Run.
func New(cfg *query.Config, opts ...Option) (*Engine, error) {
	e := &Engine{
		runID:   uuid.New().String(),
		name:    cfg.Name,
		flush:   cfg.Engine.FlushOnStop,
		last:    make(map[graph.NodeID]int64),
		started: atomic.NewBool(false),
		running: atomic.NewBool(false),

		outOfOrder: metrics.SourceReadErrors.WithLabelValues(pushSource, "out_of_order"),
	}
	for _, o := range opts {
		if err := o(e); err != nil {
			return nil, err
		}
	}
	if e.log == nil {
		e.log = logging.NewLogger()
	}
	e.log = e.log.With("query", cfg.Name, "run", e.runID)
	if e.compiler == nil {
		c, err := expr.NewCompiler(expr.WithLogger(e.log))
		if err != nil {
			return nil, err
		}
		e.compiler = c
	}
	e.graph = graph.New(graph.WithLogger(e.log))
	q, err := query.Build(cfg, e.graph, e.compiler, e.log)
	if err != nil {
		return nil, err
	}
	e.query = q

	for _, srcCfg := range cfg.Sources {
		ch, _ := q.Input(srcCfg.Stream)
		src, err := sources.New(srcCfg, ch.Schema(), e.log)
		if err != nil {
			return nil, multierr.Combine(err, e.closeSources(), q.Close(false))
		}
		e.bind(src, ch)
	}
	for _, x := range e.extra {
		ch, ok := q.Input(x.stream)
		if !ok {
			return nil, multierr.Combine(fmt.Errorf("%w: no input stream %q", graph.ErrUnknownNode, x.stream), e.closeSources(), q.Close(false))
		}
		e.bind(x.source, ch)
	}
	return e, nil
}

func (e *Engine) bind(src sources.Source, ch *graph.Channel) {
	e.feeds = append(e.feeds, &feed{
		source:  src,
		channel: ch,
		ordered: metrics.SourceReadErrors.WithLabelValues(src.Name(), "out_of_order"),
		invalid: metrics.SourceReadErrors.WithLabelValues(src.Name(), "schema"),
	})
}

// RunID identifies this run in logs.
func (e *Engine) RunID() string {
	return e.runID
}

// Query returns the compiled query, e.g. to tap its nodes before Run.
func (e *Engine) Query() *query.Query {
	return e.query
}

// Run feeds the query until every source is exhausted or ctx is done, then tears the graph down, flushing the
// operators when configured to. The first source error cancels the other sources and is returned.
func (e *Engine) Run(ctx context.Context) error {
	if !e.started.CompareAndSwap(false, true) {
		return ErrAlreadyStarted
	}
	gauge := metrics.EngineRunning.WithLabelValues(e.name)
	gauge.Set(1)
	e.running.Store(true)
	defer func() {
		e.running.Store(false)
		gauge.Set(0)
	}()
	e.log.Infow("Starting query", zap.Int("sources", len(e.feeds)), zap.Bool("flushOnStop", e.flush))

	eg, gctx := errgroup.WithContext(ctx)
	for _, f := range e.feeds {
		eg.Go(func() error {
			log := e.log.With("source", f.source.Name(), "stream", f.channel.Name())
			log.Info("Source started")
			if err := f.source.Run(gctx, func(ev *event.Event) error {
				return e.push(f, ev, log)
			}); err != nil {
				return fmt.Errorf("source %q failed, %w", f.source.Name(), err)
			}
			log.Info("Source finished")
			return nil
		})
	}
	if len(e.feeds) == 0 {
		// fed by Push only
		<-ctx.Done()
	}
	err := eg.Wait()
	if err != nil {
		e.log.Errorw("Stopping query after a source failure", zap.Error(err))
	}
	return multierr.Append(err, e.stop())
}

func (e *Engine) push(f *feed, ev *event.Event, log *zap.SugaredLogger) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.stopped {
		return ErrStopped
	}
	if err := e.pushOrdered(f.channel, ev); err != nil {
		if errors.Is(err, ErrOutOfOrder) {
			f.ordered.Inc()
		} else {
			f.invalid.Inc()
		}
		log.Warnw("Dropping event", zap.Error(err))
	}
	return nil
}

// pushOrdered pushes ev into a stream unless it is older than the last event the stream accepted. Callers hold
// e.mu.
func (e *Engine) pushOrdered(ch *graph.Channel, ev *event.Event) error {
	if last, ok := e.last[ch.ID()]; ok && ev.T1() < last {
		return fmt.Errorf("%w: stream %q, t1 %d after %d", ErrOutOfOrder, ch.Name(), ev.T1(), last)
	}
	if err := ch.Push(ev); err != nil {
		return err
	}
	e.last[ch.ID()] = ev.T1()
	return nil
}

// Push sends an event into an input stream directly. Pushes are serialized with the sources, and an event older
// than the last one the stream accepted is rejected with ErrOutOfOrder.
func (e *Engine) Push(stream string, ev *event.Event) error {
	ch, ok := e.query.Input(stream)
	if !ok {
		return fmt.Errorf("%w: no input stream %q", graph.ErrUnknownNode, stream)
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.stopped {
		return ErrStopped
	}
	err := e.pushOrdered(ch, ev)
	if errors.Is(err, ErrOutOfOrder) {
		e.outOfOrder.Inc()
	}
	return err
}

// IsHealthy reports an engine which is not running or whose graph has halted nodes.
func (e *Engine) IsHealthy(context.Context) error {
	if !e.running.Load() {
		return ErrNotRunning
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.graph.Halted()
}

// Close releases an engine which was never run. It is a no-op after Run.
func (e *Engine) Close() error {
	if !e.started.CompareAndSwap(false, true) {
		return nil
	}
	return e.stop()
}

func (e *Engine) stop() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.stopped {
		return nil
	}
	e.stopped = true
	if halted := e.graph.Halted(); halted != nil {
		e.log.Warnw("Query has halted nodes", zap.Error(halted))
	}
	err := multierr.Combine(e.closeSources(), e.query.Close(e.flush))
	e.log.Infow("Query stopped", zap.Error(err))
	return err
}

func (e *Engine) closeSources() error {
	var errs error
	for _, f := range e.feeds {
		if err := f.source.Close(); err != nil {
			errs = multierr.Append(errs, fmt.Errorf("failed to close source %q, %w", f.source.Name(), err))
		}
	}
	return errs
}
