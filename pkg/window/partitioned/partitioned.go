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

// Package partitioned implements the partitioned count window: one count window per distinct partition key, merged
// into a single output stream ordered by start time.
//
// Results of every partition are held back in a min-heap and only released once no partition can still produce an
// earlier result, which keeps the output globally ordered even though partitions fill up at different rates.
package partitioned

import (
	"fmt"
	"math"

	"github.com/spaolacci/murmur3"
	"go.uber.org/multierr"

	"github.com/sigmod2021-index-pattern/index-pattern-sub002/pkg/event"
	"github.com/sigmod2021-index-pattern/index-pattern-sub002/pkg/operator"
	"github.com/sigmod2021-index-pattern/index-pattern-sub002/pkg/shared/eventheap"
	"github.com/sigmod2021-index-pattern/index-pattern-sub002/pkg/window"
	"github.com/sigmod2021-index-pattern/index-pattern-sub002/pkg/window/count"
)

// KeyFunc computes the partition key of an event, together with a hash of the key. It must be deterministic.
type KeyFunc func(e *event.Event) (key string, hash uint64)

type Option func(*Window) error

// WithKeyFunc replaces the key function derived from the partition attributes.
func WithKeyFunc(f KeyFunc) Option {
	return func(w *Window) error {
		if f == nil {
			return fmt.Errorf("%w: nil key function", window.ErrInvalidDefinition)
		}
		w.keyFunc = f
		return nil
	}
}

type partition struct {
	key    string
	window *count.Window
}

// Window is a partitioned count window.
type Window struct {
	operator.Emitter
	schema *event.Schema
	size   int64
	jump   int64
	// buckets maps key hashes to the partitions sharing them.
	buckets map[uint64][]*partition
	// partitions lists every partition in creation order.
	partitions []*partition
	keyFunc    KeyFunc
	pending    *eventheap.Heap
}

var _ operator.Operator = (*Window)(nil)

// New returns a partitioned count window. Every partition attribute must be part of the schema.
func New(schema *event.Schema, size, jump int64, partitionBy []string, opts ...Option) (*Window, error) {
	def := window.Definition{Kind: window.PartitionedCountWindow, Size: size, Jump: jump, PartitionBy: partitionBy}
	if err := def.Validate(); err != nil {
		return nil, err
	}
	indexes := make([]int, len(partitionBy))
	for i, name := range partitionBy {
		idx, ok := schema.Index(name)
		if !ok {
			return nil, fmt.Errorf("%w: %q is not in %s", window.ErrUnknownAttribute, name, schema)
		}
		indexes[i] = idx
	}
	w := &Window{
		schema:  schema,
		size:    size,
		jump:    jump,
		buckets: make(map[uint64][]*partition),
		keyFunc: AttributeKey(indexes),
		pending: eventheap.New(),
	}
	for _, o := range opts {
		if err := o(w); err != nil {
			return nil, err
		}
	}
	return w, nil
}

// AttributeKey returns a KeyFunc concatenating the encoded values at the given positions.
func AttributeKey(indexes []int) KeyFunc {
	return func(e *event.Event) (string, uint64) {
		var buf []byte
		for _, i := range indexes {
			buf = event.AppendValue(buf, e.Get(i))
		}
		return string(buf), murmur3.Sum64(buf)
	}
}

func (w *Window) Schema() *event.Schema {
	return w.schema
}

// InputSchema returns the schema of the input, a window does not change the payload.
func (w *Window) InputSchema(operator.Port) *event.Schema {
	return w.schema
}

// Partitions returns the number of partitions seen so far.
func (w *Window) Partitions() int {
	return len(w.partitions)
}

// Pending returns the number of events buffered in partitions or held back for ordering.
func (w *Window) Pending() int {
	n := w.pending.Len()
	for _, p := range w.partitions {
		n += p.window.Pending()
	}
	return n
}

func (w *Window) Process(port operator.Port, e *event.Event) error {
	if port != operator.Left {
		return fmt.Errorf("%w: partitioned count window has no %s input", operator.ErrInvalidPort, port)
	}
	p, err := w.partitionOf(e)
	if err != nil {
		return err
	}
	if err := p.window.Process(port, e); err != nil {
		return fmt.Errorf("partition %q: %w", p.key, err)
	}
	w.pending.PopUntil(w.lowWatermark(), w.Emit)
	return nil
}

func (w *Window) partitionOf(e *event.Event) (*partition, error) {
	key, hash := w.keyFunc(e)
	for _, p := range w.buckets[hash] {
		if p.key == key {
			return p, nil
		}
	}
	cw, err := count.New(w.schema, w.size, w.jump)
	if err != nil {
		return nil, err
	}
	cw.SetCallback(w.pending.Push)
	p := &partition{key: key, window: cw}
	w.buckets[hash] = append(w.buckets[hash], p)
	w.partitions = append(w.partitions, p)
	return p, nil
}

// lowWatermark is the smallest start time any partition may still emit.
func (w *Window) lowWatermark() int64 {
	lwm := int64(math.MaxInt64)
	for _, p := range w.partitions {
		lwm = min(lwm, p.window.LowWatermark())
	}
	return lwm
}

// FlushState flushes every partition, then releases everything held back.
func (w *Window) FlushState() error {
	var errs error
	for _, p := range w.partitions {
		if err := p.window.FlushState(); err != nil {
			errs = multierr.Append(errs, fmt.Errorf("partition %q: %w", p.key, err))
		}
	}
	w.pending.Drain(w.Emit)
	return errs
}
