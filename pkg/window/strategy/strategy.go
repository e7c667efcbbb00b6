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

// Package strategy resolves a window definition into the concrete window operator implementing it.
package strategy

import (
	"fmt"

	"github.com/sigmod2021-index-pattern/index-pattern-sub002/pkg/event"
	"github.com/sigmod2021-index-pattern/index-pattern-sub002/pkg/operator"
	"github.com/sigmod2021-index-pattern/index-pattern-sub002/pkg/window"
	"github.com/sigmod2021-index-pattern/index-pattern-sub002/pkg/window/count"
	"github.com/sigmod2021-index-pattern/index-pattern-sub002/pkg/window/partitioned"
	"github.com/sigmod2021-index-pattern/index-pattern-sub002/pkg/window/tumbling"
)

// New builds the window operator for def over events of the given schema.
func New(def window.Definition, schema *event.Schema) (operator.Operator, error) {
	if err := def.Validate(); err != nil {
		return nil, err
	}
	var (
		op  operator.Operator
		err error
	)
	switch def.Kind {
	case window.TimeWindow:
		op, err = tumbling.New(schema, def.Size, def.Jump)
	case window.CountWindow:
		op, err = count.New(schema, def.Size, def.Jump)
	case window.PartitionedCountWindow:
		op, err = partitioned.New(schema, def.Size, def.Jump, def.PartitionBy)
	default:
		return nil, fmt.Errorf("%w: unknown window kind %d", window.ErrInvalidDefinition, int(def.Kind))
	}
	if err != nil {
		return nil, fmt.Errorf("failed to build %s, %w", def, err)
	}
	return op, nil
}
