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

// Package tumbling implements the time window. Every event is re-stamped with the boundaries of the fixed,
// jump-aligned bucket its start time falls into; the payload is untouched and nothing is buffered.
package tumbling

import (
	"fmt"
	"math"

	"github.com/sigmod2021-index-pattern/index-pattern-sub002/pkg/event"
	"github.com/sigmod2021-index-pattern/index-pattern-sub002/pkg/operator"
	"github.com/sigmod2021-index-pattern/index-pattern-sub002/pkg/window"
)

// Window is a tumbling time window.
type Window struct {
	operator.Emitter
	schema *event.Schema
	size   int64
	jump   int64
	// dropped counts the events that fell into a degenerate, empty window.
	dropped int64
}

var _ operator.Operator = (*Window)(nil)

// New returns a time window with the given size and jump.
func New(schema *event.Schema, size, jump int64) (*Window, error) {
	def := window.Definition{Kind: window.TimeWindow, Size: size, Jump: jump}
	if err := def.Validate(); err != nil {
		return nil, err
	}
	return &Window{schema: schema, size: size, jump: jump}, nil
}

func (w *Window) Schema() *event.Schema {
	return w.schema
}

// InputSchema returns the schema of the input, a window does not change the payload.
func (w *Window) InputSchema(operator.Port) *event.Schema {
	return w.schema
}

// Assign returns the window [t1, t2) for an event starting at t. ok is false when the window is empty.
func (w *Window) Assign(t int64) (t1, t2 int64, ok bool) {
	t1 = window.FloorDiv(t, w.jump) * w.jump
	if t > math.MaxInt64-w.size {
		// the window ends past the last representable instant, cut it at the last boundary
		t2 = window.FloorDiv(math.MaxInt64, w.jump) * w.jump
	} else {
		t2 = window.FloorDiv(t+w.size, w.jump) * w.jump
	}
	return t1, t2, t1 < t2
}

func (w *Window) Process(port operator.Port, e *event.Event) error {
	if port != operator.Left {
		return fmt.Errorf("%w: time window has no %s input", operator.ErrInvalidPort, port)
	}
	t1, t2, ok := w.Assign(e.T1())
	if !ok {
		w.dropped++
		return nil
	}
	out, err := e.WithInterval(t1, t2)
	if err != nil {
		return err
	}
	w.Emit(out)
	return nil
}

// FlushState is a no-op, the time window never buffers.
func (w *Window) FlushState() error {
	return nil
}

// Dropped returns the number of events dropped because their window was empty.
func (w *Window) Dropped() int64 {
	return w.dropped
}
