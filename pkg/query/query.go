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

package query

import (
	"fmt"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/sigmod2021-index-pattern/index-pattern-sub002/pkg/correlator"
	"github.com/sigmod2021-index-pattern/index-pattern-sub002/pkg/event"
	"github.com/sigmod2021-index-pattern/index-pattern-sub002/pkg/graph"
	"github.com/sigmod2021-index-pattern/index-pattern-sub002/pkg/operator"
	"github.com/sigmod2021-index-pattern/index-pattern-sub002/pkg/shared/expr"
	"github.com/sigmod2021-index-pattern/index-pattern-sub002/pkg/sinks"
	"github.com/sigmod2021-index-pattern/index-pattern-sub002/pkg/window/strategy"
)

// Query is a query compiled into a graph. It holds a reference on every node it uses until it is closed.
type Query struct {
	name   string
	graph  *graph.Graph
	inputs map[string]*graph.Channel
	nodes  map[string]graph.NodeID
	held   []graph.NodeID
	log    *zap.SugaredLogger
	closed bool
}

type builder struct {
	*Query
	compiler *expr.Compiler
}

// Build compiles cfg into g. Input streams already present in g with the same schema are shared, operators are
// named after the query so several queries can live in one graph.
func Build(cfg *Config, g *graph.Graph, compiler *expr.Compiler, log *zap.SugaredLogger) (*Query, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	b := &builder{
		Query: &Query{
			name:   cfg.Name,
			graph:  g,
			inputs: make(map[string]*graph.Channel),
			nodes:  make(map[string]graph.NodeID),
			log:    log.With("query", cfg.Name),
		},
		compiler: compiler,
	}
	if err := b.build(cfg); err != nil {
		if cerr := b.Close(false); cerr != nil {
			b.log.Errorw("Failed to clean up a partially built query", zap.Error(cerr))
		}
		return nil, fmt.Errorf("failed to build query %q, %w", cfg.Name, err)
	}
	b.log.Infow("Query built", zap.Int("streams", len(b.inputs)), zap.Int("operators", len(cfg.Operators)), zap.Int("sinks", len(cfg.Sinks)))
	return b.Query, nil
}

func (b *builder) build(cfg *Config) error {
	for _, s := range cfg.Streams {
		if err := b.addStream(s); err != nil {
			return err
		}
	}
	for _, opCfg := range cfg.Operators {
		inputs := make([]graph.NodeID, len(opCfg.Inputs))
		schemas := make([]*event.Schema, len(opCfg.Inputs))
		for i, in := range opCfg.Inputs {
			inputs[i] = b.nodes[in]
			s, err := b.graph.Schema(inputs[i])
			if err != nil {
				return err
			}
			schemas[i] = s
		}
		op, err := b.operator(opCfg, schemas)
		if err != nil {
			return fmt.Errorf("operator %q, %w", opCfg.Name, err)
		}
		id, err := b.graph.AddOperator(b.nodeName(opCfg.Name), op, inputs...)
		if err != nil {
			return err
		}
		if err := b.hold(opCfg.Name, id); err != nil {
			return err
		}
	}
	for _, sinkCfg := range cfg.Sinks {
		id := b.nodes[sinkCfg.Node]
		schema, err := b.graph.Schema(id)
		if err != nil {
			return err
		}
		s, err := sinks.New(sinkCfg, schema, b.log)
		if err != nil {
			return err
		}
		if err := b.graph.AttachSink(id, s); err != nil {
			return multierr.Append(err, s.Close())
		}
	}
	return nil
}

func (b *builder) addStream(s StreamConfig) error {
	schema, err := s.schema()
	if err != nil {
		return err
	}
	id, ok := b.graph.Lookup(s.Name)
	if ok {
		existing, err := b.graph.Schema(id)
		if err != nil {
			return err
		}
		if !existing.Equal(schema) {
			return fmt.Errorf("%w: stream %q exists with schema %s", event.ErrSchemaMismatch, s.Name, existing)
		}
		b.log.Infow("Sharing existing stream", zap.String("stream", s.Name))
	} else if id, err = b.graph.AddStream(s.Name, schema); err != nil {
		return err
	}
	if err := b.hold(s.Name, id); err != nil {
		return err
	}
	ch, err := b.graph.Channel(id)
	if err != nil {
		return err
	}
	b.inputs[s.Name] = ch
	return nil
}

func (b *builder) operator(cfg OperatorConfig, inputs []*event.Schema) (operator.Operator, error) {
	switch cfg.Type {
	case OperatorTimeWindow, OperatorCountWindow, OperatorPartitionedCountWindow:
		def, err := cfg.definition()
		if err != nil {
			return nil, err
		}
		return strategy.New(def, inputs[0])
	case OperatorJoin:
		predicate := func(event.Tuple) bool { return true }
		if cfg.Predicate != "" {
			p, err := b.compiler.Predicate(cfg.Predicate, inputs[0], inputs[1])
			if err != nil {
				return nil, err
			}
			predicate = p
		}
		return correlator.New(inputs[0], inputs[1], predicate, correlator.WithLogger(b.log))
	case OperatorFilter:
		p, err := b.compiler.Predicate(cfg.Predicate, inputs[0])
		if err != nil {
			return nil, err
		}
		return operator.NewFilter(inputs[0], p)
	case OperatorProjection:
		attrs := make([]AttributeConfig, len(cfg.Projection))
		values := make([]operator.ValueFunc, len(cfg.Projection))
		for i, p := range cfg.Projection {
			attrs[i] = AttributeConfig{Name: p.Name, Type: p.Type}
			typ, err := event.ParseType(p.Type)
			if err != nil {
				return nil, err
			}
			if values[i], err = b.compiler.Value(p.Expression, typ, inputs[0]); err != nil {
				return nil, err
			}
		}
		schema, err := schemaOf(attrs)
		if err != nil {
			return nil, err
		}
		return operator.NewProjection(schema, values)
	default:
		return nil, fmt.Errorf("unsupported operator type %q", cfg.Type)
	}
}

func (q *Query) nodeName(name string) string {
	return q.name + "/" + name
}

func (q *Query) hold(name string, id graph.NodeID) error {
	if err := q.graph.Acquire(id); err != nil {
		return err
	}
	q.nodes[name] = id
	q.held = append(q.held, id)
	return nil
}

func (q *Query) Name() string {
	return q.name
}

// Input returns the channel of an input stream.
func (q *Query) Input(stream string) (*graph.Channel, bool) {
	ch, ok := q.inputs[stream]
	return ch, ok
}

// Node returns the graph node of a stream or an operator of the query.
func (q *Query) Node(name string) (graph.NodeID, bool) {
	id, ok := q.nodes[name]
	return id, ok
}

// Tap calls tap with every event a stream or operator of the query produces.
func (q *Query) Tap(name string, tap graph.Tap) error {
	id, ok := q.nodes[name]
	if !ok {
		return fmt.Errorf("%w: %q", graph.ErrUnknownNode, name)
	}
	return q.graph.Tap(id, tap)
}

// Close releases every node held by the query. Nodes shared with other queries survive.
func (q *Query) Close(flush bool) error {
	if q.closed {
		return nil
	}
	q.closed = true
	err := q.graph.ReleaseAll(flush, q.held...)
	q.held = nil
	q.log.Infow("Query closed", zap.Bool("flush", flush))
	return err
}
