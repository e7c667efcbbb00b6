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

// Package graph implements the push based dataflow graph queries are compiled into.
//
// Nodes live in an arena and are addressed by NodeID. A stream node is an entry point events are pushed into, an
// operator node wraps an operator.Operator fed by up to two upstream nodes. Every event a node produces is handed,
// in this order, to the sinks attached to it, to its taps, and to the operators consuming it, in the order they
// were connected. Everything runs synchronously on the stack of Push, and the graph is not safe for concurrent
// use.
//
// Nodes are reference counted. An operator node holds a reference on each of its inputs, and a query holds one on
// each node it consumes. When the last reference is released the node is torn down, and its inputs are released
// in turn.
package graph

import (
	"errors"
	"fmt"
	"sort"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/sigmod2021-index-pattern/index-pattern-sub002/pkg/event"
	"github.com/sigmod2021-index-pattern/index-pattern-sub002/pkg/metrics"
	"github.com/sigmod2021-index-pattern/index-pattern-sub002/pkg/operator"
	"github.com/sigmod2021-index-pattern/index-pattern-sub002/pkg/shared/logging"
)

var (
	ErrDuplicateName = errors.New("duplicate node name")
	ErrUnknownNode   = errors.New("unknown node")
	ErrNotAStream    = errors.New("node is not a stream")
	ErrNotAcquired   = errors.New("node is not acquired")
)

// NodeID is the handle of a node. Handles are never reused, and a node only consumes nodes with smaller handles.
type NodeID int

// Sink receives every event a node produces.
type Sink interface {
	Name() string
	Write(e *event.Event) error
	Close() error
}

// Tap is a user callback observing the events a node produces.
type Tap func(e *event.Event)

type edge struct {
	to   NodeID
	port operator.Port
}

type node struct {
	id     NodeID
	name   string
	schema *event.Schema

	// op is nil for stream nodes
	op         operator.Operator
	inputs     []NodeID
	successors []edge
	sinks      []Sink
	taps       []Tap
	refs       int
	halted     error
	in         prometheus.Counter
	out        prometheus.Counter
}

func (n *node) kind() string {
	if n.op == nil {
		return "stream"
	}
	return fmt.Sprintf("%T", n.op)
}

type Option func(*Graph)

// WithLogger sets the logger
func WithLogger(log *zap.SugaredLogger) Option {
	return func(g *Graph) {
		g.log = log
	}
}

// Graph is a dataflow graph.
type Graph struct {
	nodes  []*node
	byName map[string]NodeID
	log    *zap.SugaredLogger
}

// New returns an empty graph.
func New(opts ...Option) *Graph {
	g := &Graph{byName: make(map[string]NodeID)}
	for _, o := range opts {
		o(g)
	}
	if g.log == nil {
		g.log = logging.NewLogger()
	}
	return g
}

func (g *Graph) node(id NodeID) (*node, error) {
	if id < 0 || int(id) >= len(g.nodes) || g.nodes[id] == nil {
		return nil, fmt.Errorf("%w: %d", ErrUnknownNode, id)
	}
	return g.nodes[id], nil
}

func (g *Graph) add(name string, schema *event.Schema, op operator.Operator) (*node, error) {
	if _, ok := g.byName[name]; ok {
		return nil, fmt.Errorf("%w: %q", ErrDuplicateName, name)
	}
	n := &node{
		id:     NodeID(len(g.nodes)),
		name:   name,
		schema: schema,
		op:     op,
		in:     metrics.NodeEventsIn.WithLabelValues(name),
		out:    metrics.NodeEventsOut.WithLabelValues(name),
	}
	g.nodes = append(g.nodes, n)
	g.byName[name] = n.id
	metrics.ActiveNodes.Inc()
	return n, nil
}

// AddStream adds an input stream of the given schema.
func (g *Graph) AddStream(name string, schema *event.Schema) (NodeID, error) {
	n, err := g.add(name, schema, nil)
	if err != nil {
		return -1, err
	}
	return n.id, nil
}

// AddOperator adds an operator consuming the given nodes. The i-th input feeds port i of the operator.
func (g *Graph) AddOperator(name string, op operator.Operator, inputs ...NodeID) (NodeID, error) {
	if len(inputs) == 0 || len(inputs) > 2 {
		return -1, fmt.Errorf("operator %q must have one or two inputs, got %d", name, len(inputs))
	}
	upstream := make([]*node, len(inputs))
	for i, id := range inputs {
		in, err := g.node(id)
		if err != nil {
			return -1, err
		}
		if typed, ok := op.(operator.Typed); ok {
			if want := typed.InputSchema(operator.Port(i)); want != nil && !want.Equal(in.schema) {
				return -1, fmt.Errorf("%w: %s input of %q expects %s, %q produces %s",
					event.ErrSchemaMismatch, operator.Port(i), name, want, in.name, in.schema)
			}
		}
		upstream[i] = in
	}
	n, err := g.add(name, op.Schema(), op)
	if err != nil {
		return -1, err
	}
	n.inputs = append(n.inputs, inputs...)
	for i, in := range upstream {
		in.successors = append(in.successors, edge{to: n.id, port: operator.Port(i)})
		in.refs++
	}
	op.SetCallback(func(e *event.Event) {
		g.deliver(n, e)
	})
	return n.id, nil
}

// Lookup returns the node with the given name.
func (g *Graph) Lookup(name string) (NodeID, bool) {
	id, ok := g.byName[name]
	return id, ok
}

// Schema returns the schema of the events a node produces.
func (g *Graph) Schema(id NodeID) (*event.Schema, error) {
	n, err := g.node(id)
	if err != nil {
		return nil, err
	}
	return n.schema, nil
}

// Len returns the number of nodes alive.
func (g *Graph) Len() int {
	return len(g.byName)
}

// Err returns the error that halted a node, or nil.
func (g *Graph) Err(id NodeID) error {
	n, err := g.node(id)
	if err != nil {
		return err
	}
	return n.halted
}

// Halted returns the errors of every halted node.
func (g *Graph) Halted() error {
	var errs error
	for _, n := range g.nodes {
		if n != nil && n.halted != nil {
			errs = multierr.Append(errs, fmt.Errorf("node %q: %w", n.name, n.halted))
		}
	}
	return errs
}

// Channel returns a handle to push events into a stream node.
func (g *Graph) Channel(id NodeID) (*Channel, error) {
	n, err := g.node(id)
	if err != nil {
		return nil, err
	}
	if n.op != nil {
		return nil, fmt.Errorf("%w: %q", ErrNotAStream, n.name)
	}
	return &Channel{g: g, id: id, name: n.name, schema: n.schema}, nil
}

// Push feeds an event into a stream node. It returns once every result it caused went through the graph.
// Operator failures downstream halt the failing node and are not returned.
func (g *Graph) Push(id NodeID, e *event.Event) error {
	n, err := g.node(id)
	if err != nil {
		return err
	}
	if n.op != nil {
		return fmt.Errorf("%w: %q", ErrNotAStream, n.name)
	}
	if err := n.schema.Validate(e.Payload()); err != nil {
		return fmt.Errorf("stream %q: %w", n.name, err)
	}
	n.in.Inc()
	g.deliver(n, e)
	return nil
}

func (g *Graph) deliver(n *node, e *event.Event) {
	n.out.Inc()
	for _, s := range n.sinks {
		if err := s.Write(e); err != nil {
			g.log.Errorw("Failed to write to sink", zap.String("node", n.name), zap.String("sink", s.Name()), zap.Error(err))
		}
	}
	for _, tap := range n.taps {
		tap(e)
	}
	for _, ed := range n.successors {
		succ := g.nodes[ed.to]
		if succ.halted != nil {
			continue
		}
		succ.in.Inc()
		if err := succ.op.Process(ed.port, e); err != nil {
			g.halt(succ, "process", err)
		}
	}
}

func (g *Graph) halt(n *node, stage string, err error) {
	n.halted = err
	metrics.NodeErrors.WithLabelValues(n.name, stage).Inc()
	metrics.HaltedNodes.Inc()
	g.log.Errorw("Operator failed, node halted", zap.String("node", n.name), zap.String("operator", n.kind()), zap.Error(err))
}

// AttachSink attaches a sink to a node. The graph closes it when the node is torn down.
func (g *Graph) AttachSink(id NodeID, s Sink) error {
	n, err := g.node(id)
	if err != nil {
		return err
	}
	n.sinks = append(n.sinks, s)
	return nil
}

// Tap attaches a callback to a node.
func (g *Graph) Tap(id NodeID, tap Tap) error {
	n, err := g.node(id)
	if err != nil {
		return err
	}
	n.taps = append(n.taps, tap)
	return nil
}

// Acquire takes a reference on a node.
func (g *Graph) Acquire(id NodeID) error {
	n, err := g.node(id)
	if err != nil {
		return err
	}
	n.refs++
	return nil
}

// Release drops a reference on a node. A node without references is torn down: when flush is set its operator
// emits what it still buffers, then its sinks are closed and it is detached from its inputs, which are released
// in turn.
func (g *Graph) Release(id NodeID, flush bool) error {
	return g.ReleaseAll(flush, id)
}

// ReleaseAll drops one reference on each of the given nodes and tears down every node left without references
// at once, so buffered results flushed by a node still reach all of its doomed successors.
func (g *Graph) ReleaseAll(flush bool, ids ...NodeID) error {
	held := make(map[NodeID]int, len(ids))
	for _, id := range ids {
		n, err := g.node(id)
		if err != nil {
			return err
		}
		held[id]++
		if n.refs < held[id] {
			return fmt.Errorf("%w: %q", ErrNotAcquired, n.name)
		}
	}
	var doomed []*node
	var release func(n *node)
	release = func(n *node) {
		n.refs--
		if n.refs > 0 {
			return
		}
		doomed = append(doomed, n)
		for _, in := range n.inputs {
			release(g.nodes[in])
		}
	}
	for _, id := range ids {
		release(g.nodes[id])
	}
	return g.teardown(doomed, flush)
}

// Close tears down every node.
func (g *Graph) Close(flush bool) error {
	var all []*node
	for _, n := range g.nodes {
		if n != nil {
			all = append(all, n)
		}
	}
	return g.teardown(all, flush)
}

func (g *Graph) teardown(doomed []*node, flush bool) error {
	// upstream first, so flushed results still reach the nodes being torn down
	sort.Slice(doomed, func(i, j int) bool { return doomed[i].id < doomed[j].id })
	var errs error
	if flush {
		for _, n := range doomed {
			if n.op == nil || n.halted != nil {
				continue
			}
			if err := n.op.FlushState(); err != nil {
				g.halt(n, "flush", err)
				errs = multierr.Append(errs, fmt.Errorf("failed to flush %q, %w", n.name, err))
			}
		}
	}
	for _, n := range doomed {
		for _, s := range n.sinks {
			if err := s.Close(); err != nil {
				errs = multierr.Append(errs, fmt.Errorf("failed to close sink %q of %q, %w", s.Name(), n.name, err))
			}
		}
		for _, in := range n.inputs {
			if up := g.nodes[in]; up != nil {
				up.successors = detach(up.successors, n.id)
			}
		}
		if n.halted != nil {
			metrics.HaltedNodes.Dec()
		}
		g.nodes[n.id] = nil
		delete(g.byName, n.name)
		metrics.ActiveNodes.Dec()
		g.log.Debugw("Node torn down", zap.String("node", n.name))
	}
	return errs
}

func detach(edges []edge, id NodeID) []edge {
	r := edges[:0]
	for _, e := range edges {
		if e.to != id {
			r = append(r, e)
		}
	}
	return r
}

// Channel is a handle to a stream node.
type Channel struct {
	g      *Graph
	id     NodeID
	name   string
	schema *event.Schema
}

func (c *Channel) ID() NodeID {
	return c.id
}

func (c *Channel) Name() string {
	return c.name
}

func (c *Channel) Schema() *event.Schema {
	return c.schema
}

// Push feeds an event into the stream.
func (c *Channel) Push(e *event.Event) error {
	return c.g.Push(c.id, e)
}
