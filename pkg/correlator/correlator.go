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

// Package correlator implements the binary interval join. Two inputs are joined under a predicate, and every
// matching pair of events whose validity intervals overlap produces one output event: the concatenation of both
// payloads, valid during the intersection of both intervals.
//
// Each side keeps a sweep area of the events of that side that may still overlap future arrivals of the other.
// Results are emitted in start time order: a result is held back until both inputs progressed at least to its
// start, after which no later arrival can produce an earlier result.
package correlator

import (
	"fmt"
	"math"

	"go.uber.org/zap"

	"github.com/sigmod2021-index-pattern/index-pattern-sub002/pkg/event"
	"github.com/sigmod2021-index-pattern/index-pattern-sub002/pkg/operator"
	"github.com/sigmod2021-index-pattern/index-pattern-sub002/pkg/shared/eventheap"
	"github.com/sigmod2021-index-pattern/index-pattern-sub002/pkg/shared/logging"
)

type Option func(*Correlator) error

// WithLogger sets the logger
func WithLogger(log *zap.SugaredLogger) Option {
	return func(c *Correlator) error {
		c.log = log
		return nil
	}
}

// Correlator is the binary interval join operator.
type Correlator struct {
	operator.Emitter
	schema    *event.Schema
	inputs    [2]*event.Schema
	predicate operator.Predicate
	areas     [2]*SweepArea
	// minTStart is the latest start time seen on each input.
	minTStart [2]int64
	pending   *eventheap.Heap
	log       *zap.SugaredLogger
}

var _ operator.Operator = (*Correlator)(nil)

// New returns a correlator joining events of the left and right schemas. The output schema is the
// concatenation of both.
func New(left, right *event.Schema, predicate operator.Predicate, opts ...Option) (*Correlator, error) {
	if left == nil || right == nil {
		return nil, fmt.Errorf("%w: correlator requires both input schemas", event.ErrSchemaMismatch)
	}
	if predicate == nil {
		return nil, fmt.Errorf("correlator requires a join predicate")
	}
	c := &Correlator{
		schema:    left.Concat(right),
		inputs:    [2]*event.Schema{left, right},
		predicate: predicate,
		areas:     [2]*SweepArea{NewSweepArea(), NewSweepArea()},
		minTStart: [2]int64{math.MinInt64, math.MinInt64},
		pending:   eventheap.New(),
	}
	for _, o := range opts {
		if err := o(c); err != nil {
			return nil, err
		}
	}
	if c.log == nil {
		c.log = logging.NewLogger()
	}
	return c, nil
}

func (c *Correlator) Schema() *event.Schema {
	return c.schema
}

// InputSchema returns the schema expected on the given port.
func (c *Correlator) InputSchema(port operator.Port) *event.Schema {
	return c.inputs[port]
}

func (c *Correlator) Process(port operator.Port, e *event.Event) error {
	if port != operator.Left && port != operator.Right {
		return fmt.Errorf("%w: correlator has no %s input", operator.ErrInvalidPort, port)
	}
	self, other := port, 1-port

	c.areas[self].Insert(e)
	// the other side can no longer overlap anything arriving from now on
	c.areas[other].Evict(e.T1())

	err := c.areas[other].Query(e.T2(), func(candidate *event.Event) error {
		var comp *event.Compound
		if self == operator.Left {
			comp = event.NewCompound(e, candidate)
		} else {
			comp = event.NewCompound(candidate, e)
		}
		if !c.predicate(comp) {
			return nil
		}
		m, err := comp.Materialize()
		if err != nil {
			return fmt.Errorf("failed to materialize join result of %s and %s, %w", comp.Left(), comp.Right(), err)
		}
		c.pending.Push(m)
		return nil
	})
	if err != nil {
		return err
	}

	if e.T1() >= c.minTStart[self] {
		c.minTStart[self] = e.T1()
		c.pending.PopUntil(c.Watermark(), c.Emit)
	}
	return nil
}

// Watermark returns the start time up to which results are safe to emit.
func (c *Correlator) Watermark() int64 {
	return min(c.minTStart[operator.Left], c.minTStart[operator.Right])
}

// Pending returns the number of results held back.
func (c *Correlator) Pending() int {
	return c.pending.Len()
}

// Retained returns the number of events kept in the sweep area of the given side.
func (c *Correlator) Retained(port operator.Port) int {
	return c.areas[port].Len()
}

// FlushState emits every result held back, regardless of the progress of the inputs.
func (c *Correlator) FlushState() error {
	if n := c.pending.Drain(c.Emit); n > 0 {
		c.log.Debugw("Flushed pending join results", zap.Int("count", n), zap.Int64("watermark", c.Watermark()))
	}
	return nil
}

// Reset drops all state, including results held back.
func (c *Correlator) Reset() {
	c.areas[operator.Left].Clear()
	c.areas[operator.Right].Clear()
	c.minTStart = [2]int64{math.MinInt64, math.MinInt64}
	c.pending = eventheap.New()
}
