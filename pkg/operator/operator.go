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

// Package operator defines the contract shared by every native operator of the dataflow graph, and implements
// the stateless ones (Filter and Projection).
//
// An operator receives events through Process, tagged with the input port they arrived on, and hands its results
// to the callback installed with SetCallback. Everything happens synchronously on the caller's stack: Process
// returns only after every result it produced has been handed downstream. FlushState drains buffered state when
// the operator is being torn down.
package operator

import (
	"errors"
	"fmt"

	"github.com/sigmod2021-index-pattern/index-pattern-sub002/pkg/event"
)

// Port identifies the input an event arrived on. Unary operators only have port 0.
type Port int

const (
	Left  Port = 0
	Right Port = 1
)

func (p Port) String() string {
	switch p {
	case Left:
		return "left"
	case Right:
		return "right"
	default:
		return fmt.Sprintf("port-%d", int(p))
	}
}

// ErrInvalidPort is returned when an event arrives on a port the operator does not have.
var ErrInvalidPort = errors.New("invalid input port")

// Callback receives the results of an operator.
type Callback func(e *event.Event)

// Predicate is a compiled boolean expression over a tuple.
type Predicate func(t event.Tuple) bool

// ValueFunc is a compiled value expression over a tuple.
type ValueFunc func(t event.Tuple) (any, error)

// Operator is the unit of computation of the dataflow graph.
type Operator interface {
	// Schema returns the schema of the events the operator produces.
	Schema() *event.Schema
	// Process consumes an event that arrived on the given port.
	Process(port Port, e *event.Event) error
	// SetCallback installs the downstream callback.
	SetCallback(cb Callback)
	// FlushState emits everything the operator still buffers.
	FlushState() error
}

// Typed is implemented by operators that declare the schema they expect on each input.
type Typed interface {
	InputSchema(port Port) *event.Schema
}

// Emitter holds the downstream callback of an operator. Operators embed it.
type Emitter struct {
	callback Callback
}

// SetCallback installs the downstream callback.
func (em *Emitter) SetCallback(cb Callback) {
	em.callback = cb
}

// Emit hands e to the downstream callback, if any.
func (em *Emitter) Emit(e *event.Event) {
	if em.callback != nil {
		em.callback(e)
	}
}
