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

package operator

import (
	"fmt"

	"github.com/sigmod2021-index-pattern/index-pattern-sub002/pkg/event"
)

// Filter forwards the events that satisfy a predicate.
type Filter struct {
	Emitter
	schema    *event.Schema
	predicate Predicate
}

var _ Operator = (*Filter)(nil)

// NewFilter returns a Filter over events of the given schema.
func NewFilter(schema *event.Schema, predicate Predicate) (*Filter, error) {
	if predicate == nil {
		return nil, fmt.Errorf("filter requires a predicate")
	}
	return &Filter{schema: schema, predicate: predicate}, nil
}

func (f *Filter) Schema() *event.Schema {
	return f.schema
}

// InputSchema returns the schema of the filtered events.
func (f *Filter) InputSchema(Port) *event.Schema {
	return f.schema
}

func (f *Filter) Process(port Port, e *event.Event) error {
	if port != Left {
		return fmt.Errorf("%w: filter has no %s input", ErrInvalidPort, port)
	}
	if f.predicate(e) {
		f.Emit(e)
	}
	return nil
}

// FlushState is a no-op, a filter holds no state.
func (f *Filter) FlushState() error {
	return nil
}

// Projection computes a new payload for every event, keeping its validity interval.
type Projection struct {
	Emitter
	schema *event.Schema
	values []ValueFunc
}

var _ Operator = (*Projection)(nil)

// NewProjection returns a Projection producing events of the given schema, one value function per attribute.
func NewProjection(schema *event.Schema, values []ValueFunc) (*Projection, error) {
	if schema.Len() != len(values) {
		return nil, fmt.Errorf("%w: projection declares %d attributes but has %d expressions", event.ErrSchemaMismatch, schema.Len(), len(values))
	}
	return &Projection{schema: schema, values: values}, nil
}

func (p *Projection) Schema() *event.Schema {
	return p.schema
}

func (p *Projection) Process(port Port, e *event.Event) error {
	if port != Left {
		return fmt.Errorf("%w: projection has no %s input", ErrInvalidPort, port)
	}
	payload := make([]any, len(p.values))
	for i, f := range p.values {
		v, err := f(e)
		if err != nil {
			return fmt.Errorf("failed to compute attribute %q, %w", p.schema.At(i).Name, err)
		}
		payload[i] = v
	}
	if err := p.schema.Validate(payload); err != nil {
		return err
	}
	out, err := event.New(e.T1(), e.T2(), payload...)
	if err != nil {
		return err
	}
	p.Emit(out)
	return nil
}

// FlushState is a no-op, a projection holds no state.
func (p *Projection) FlushState() error {
	return nil
}
