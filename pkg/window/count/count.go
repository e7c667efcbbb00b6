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

// Package count implements the sliding count window. The window covers the last Size events and advances every
// Jump events. Each event is buffered until it leaves the window and is then emitted once, re-stamped with the
// interval during which it was a member of an evaluated window: from the first slide boundary at or after its
// arrival, to the arrival of the event that pushed it out.
//
// Slide boundaries are aligned on multiples of Jump events. When Size is not a multiple of Jump, the first
// complete window is deferred by delay = ceil(Size/Jump)*Jump - Size events.
package count

import (
	"errors"
	"fmt"
	"math"

	"github.com/sigmod2021-index-pattern/index-pattern-sub002/pkg/event"
	"github.com/sigmod2021-index-pattern/index-pattern-sub002/pkg/operator"
	"github.com/sigmod2021-index-pattern/index-pattern-sub002/pkg/window"
)

// ErrInsufficientData is returned when the window needs a buffered event that is not there. It indicates
// the buffer bookkeeping is broken, usually because of an ordering violation upstream.
var ErrInsufficientData = errors.New("insufficient buffered data")

// Window is a sliding count window.
type Window struct {
	operator.Emitter
	schema *event.Schema
	size   int
	jump   int
	delay  int

	// buf holds the received events in arrival order, buf[head:] are live.
	buf  []*event.Event
	head int
	// clock is the largest start time seen.
	clock int64
	// globalCounter counts the events popped while clock kept its current value.
	globalCounter int
	// tstart is the start of the validity assigned to outgoing events.
	tstart int64
	// isDelayed is set once the initial catch-up has completed.
	isDelayed bool
}

var _ operator.Operator = (*Window)(nil)

// New returns a count window over the last size events advancing every jump events.
func New(schema *event.Schema, size, jump int64) (*Window, error) {
	def := window.Definition{Kind: window.CountWindow, Size: size, Jump: jump}
	if err := def.Validate(); err != nil {
		return nil, err
	}
	w := &Window{
		schema: schema,
		size:   int(size),
		jump:   int(jump),
		delay:  int(window.CeilDiv(size, jump)*jump - size),
		buf:    make([]*event.Event, 0, size+jump),
	}
	w.reset()
	return w, nil
}

func (w *Window) reset() {
	w.clock = math.MinInt64
	w.globalCounter = 0
	w.tstart = math.MinInt64
	w.isDelayed = false
}

func (w *Window) Schema() *event.Schema {
	return w.schema
}

// InputSchema returns the schema of the input, a window does not change the payload.
func (w *Window) InputSchema(operator.Port) *event.Schema {
	return w.schema
}

// Delay returns the number of events by which the first complete window is deferred.
func (w *Window) Delay() int {
	return w.delay
}

// Pending returns the number of buffered events.
func (w *Window) Pending() int {
	return len(w.buf) - w.head
}

// TStart returns the start of the validity currently assigned to outgoing events.
func (w *Window) TStart() int64 {
	return w.tstart
}

// LowWatermark returns a lower bound of the start time of every event the window may still emit.
func (w *Window) LowWatermark() int64 {
	if w.isDelayed {
		return w.tstart
	}
	if w.Pending() > 0 {
		return w.buf[w.head].T1()
	}
	return math.MaxInt64
}

func (w *Window) Process(port operator.Port, e *event.Event) error {
	if port != operator.Left {
		return fmt.Errorf("%w: count window has no %s input", operator.ErrInvalidPort, port)
	}
	t := e.T1()
	if t > w.clock {
		w.globalCounter = 0
		w.clock = t
	}
	w.buf = append(w.buf, e)

	switch n := w.Pending(); {
	case !w.isDelayed && n == w.size+w.delay:
		return w.catchUp(t)
	case n == w.size+w.jump:
		return w.slide(t)
	}
	return nil
}

// catchUp opens the first complete window: it evicts the delay events that only ever belonged to the first,
// partial window.
func (w *Window) catchUp(t int64) error {
	first, err := w.at(w.jump - 1)
	if err != nil {
		return err
	}
	w.tstart = first.T1()
	for w.Pending() > w.size {
		w.emit(w.pop(), w.tstart, t)
	}
	w.isDelayed = true
	return nil
}

// slide advances the window by jump events. The popped events share at most two window starts: the first
// jump-delay of them entered at the current boundary, the rest at the next one.
func (w *Window) slide(t int64) error {
	advanceAt := w.jump - w.delay
	for i := 0; i < w.jump; i++ {
		if i == advanceAt {
			if err := w.advance(); err != nil {
				return err
			}
		}
		e := w.pop()
		if w.globalCounter < w.size {
			w.emit(e, w.tstart, t)
		}
		w.globalCounter++
	}
	if advanceAt == w.jump {
		return w.advance()
	}
	return nil
}

func (w *Window) advance() error {
	next, err := w.at(w.jump - 1)
	if err != nil {
		return err
	}
	w.tstart = next.T1()
	return nil
}

// FlushState emits every buffered event exactly once, even though no further slide will complete.
func (w *Window) FlushState() error {
	if w.Pending() == 0 {
		w.reset()
		return nil
	}
	// a start time is at most event.MaxT1, so tend+1 does not overflow
	tend := w.buf[len(w.buf)-1].T1()
	for w.Pending() > w.jump {
		next, err := w.at(w.jump - 1)
		if err != nil {
			return err
		}
		if next.T1() > w.tstart {
			w.tstart = next.T1()
		}
		for i := 0; i < w.jump; i++ {
			e := w.pop()
			if w.tstart < tend {
				w.emit(e, w.tstart, tend)
			} else {
				w.emit(e, tend, tend+1)
			}
		}
	}
	for w.Pending() > 0 {
		w.emit(w.pop(), tend, tend+1)
	}
	w.reset()
	return nil
}

// emit re-stamps e with [t1, t2) and hands it downstream. Empty intervals are skipped.
func (w *Window) emit(e *event.Event, t1, t2 int64) {
	if t1 >= t2 {
		return
	}
	out, err := e.WithInterval(t1, t2)
	if err != nil {
		return
	}
	w.Emit(out)
}

func (w *Window) at(pos int) (*event.Event, error) {
	if pos < 0 || pos >= w.Pending() {
		return nil, fmt.Errorf("%w: position %d of %d buffered events", ErrInsufficientData, pos, w.Pending())
	}
	return w.buf[w.head+pos], nil
}

func (w *Window) pop() *event.Event {
	e := w.buf[w.head]
	w.buf[w.head] = nil
	w.head++
	switch {
	case w.head == len(w.buf):
		w.buf = w.buf[:0]
		w.head = 0
	case w.head >= w.size+w.jump:
		n := copy(w.buf, w.buf[w.head:])
		clear(w.buf[n:])
		w.buf = w.buf[:n]
		w.head = 0
	}
	return e
}
