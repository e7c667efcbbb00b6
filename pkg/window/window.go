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

// Package window defines the window operators of the engine. A window operator recomputes the validity interval
// of the events flowing through it, and possibly delays them, so that downstream operators see the set of events
// belonging to the same window as the events whose intervals overlap.
//
// Three kinds of window are supported, and the set is closed:
//   - TimeWindow, a tumbling window on event time, see package tumbling
//   - CountWindow, a sliding window over the last Size events advancing every Jump events, see package count
//   - PartitionedCountWindow, a CountWindow per partition key with a single ordered output, see package partitioned
//
// A Definition is resolved into a concrete operator once, when the dataflow graph is built (see package strategy).
package window

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrInvalidDefinition is returned when a window definition is malformed.
	ErrInvalidDefinition = errors.New("invalid window definition")
	// ErrUnknownAttribute is returned when a partition attribute is not part of the input schema.
	ErrUnknownAttribute = errors.New("unknown partition attribute")
)

// Kind is the kind of window.
type Kind int

const (
	TimeWindow Kind = iota
	CountWindow
	PartitionedCountWindow
)

func (k Kind) String() string {
	switch k {
	case TimeWindow:
		return "timeWindow"
	case CountWindow:
		return "countWindow"
	case PartitionedCountWindow:
		return "partitionedCountWindow"
	default:
		return "unknown"
	}
}

// ParseKind returns the Kind for the given name.
func ParseKind(s string) (Kind, error) {
	switch strings.ToLower(s) {
	case "timewindow", "time", "tumbling":
		return TimeWindow, nil
	case "countwindow", "count", "sliding":
		return CountWindow, nil
	case "partitionedcountwindow", "partitioned":
		return PartitionedCountWindow, nil
	default:
		return 0, fmt.Errorf("%w: unknown window kind %q", ErrInvalidDefinition, s)
	}
}

// Definition describes a window. Size and Jump are fixed for the lifetime of the operator built from it.
type Definition struct {
	Kind Kind
	// Size is the length of the window, in time units for TimeWindow and in events otherwise.
	Size int64
	// Jump is the distance between two window boundaries, in the same unit as Size.
	Jump int64
	// PartitionBy lists the attributes forming the partition key of a PartitionedCountWindow.
	PartitionBy []string
}

// Validate checks the definition is well-formed. It does not look at any schema.
func (d Definition) Validate() error {
	if d.Size <= 0 {
		return fmt.Errorf("%w: size must be positive, got %d", ErrInvalidDefinition, d.Size)
	}
	if d.Jump <= 0 {
		return fmt.Errorf("%w: jump must be positive, got %d", ErrInvalidDefinition, d.Jump)
	}
	switch d.Kind {
	case TimeWindow, CountWindow:
		if len(d.PartitionBy) > 0 {
			return fmt.Errorf("%w: %s does not take partition attributes", ErrInvalidDefinition, d.Kind)
		}
	case PartitionedCountWindow:
		if len(d.PartitionBy) == 0 {
			return fmt.Errorf("%w: %s requires at least one partition attribute", ErrInvalidDefinition, d.Kind)
		}
	default:
		return fmt.Errorf("%w: unknown window kind %d", ErrInvalidDefinition, int(d.Kind))
	}
	return nil
}

func (d Definition) String() string {
	if len(d.PartitionBy) > 0 {
		return fmt.Sprintf("%s(size=%d, jump=%d, partitionBy=%s)", d.Kind, d.Size, d.Jump, strings.Join(d.PartitionBy, ","))
	}
	return fmt.Sprintf("%s(size=%d, jump=%d)", d.Kind, d.Size, d.Jump)
}

// FloorDiv returns floor(a / b) for b > 0, rounding towards negative infinity.
func FloorDiv(a, b int64) int64 {
	q := a / b
	if (a%b != 0) && (a < 0) {
		q--
	}
	return q
}

// CeilDiv returns ceil(a / b) for a >= 0, b > 0.
func CeilDiv(a, b int64) int64 {
	return (a + b - 1) / b
}
