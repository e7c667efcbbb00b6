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

package event

import (
	"encoding/binary"
	"fmt"
	"math"
	"strings"

	"github.com/spaolacci/murmur3"
)

// Tuple is a positional view over attribute values. Both Event and Compound implement it, so predicates can be
// evaluated without materializing a compound.
type Tuple interface {
	// Len returns the number of attributes.
	Len() int
	// Get returns the attribute value at position i.
	Get(i int) any
}

// Event is a temporal event: a payload that is valid during [T1, T2).
type Event struct {
	payload []any
	t1      int64
	t2      int64
}

var _ Tuple = (*Event)(nil)

// New returns an event valid during [t1, t2). The payload slice is copied.
func New(t1, t2 int64, payload ...any) (*Event, error) {
	if t1 >= t2 {
		return nil, fmt.Errorf("%w: [%d, %d)", ErrInvalidInterval, t1, t2)
	}
	p := make([]any, len(payload))
	copy(p, payload)
	return &Event{payload: p, t1: t1, t2: t2}, nil
}

// MaxT1 is the latest start time an event can have, since t2 never exceeds math.MaxInt64.
const MaxT1 = math.MaxInt64 - 1

// NewChronon returns an event valid during [t, t+1). It fails when t is past MaxT1.
func NewChronon(t int64, payload ...any) (*Event, error) {
	if t > MaxT1 {
		return nil, fmt.Errorf("%w: chronon at %d has no end", ErrInvalidInterval, t)
	}
	return New(t, t+1, payload...)
}

// Chronon is like NewChronon for a start time known to be valid, it panics past MaxT1.
func Chronon(t int64, payload ...any) *Event {
	e, err := NewChronon(t, payload...)
	if err != nil {
		panic(err)
	}
	return e
}

// T1 returns the inclusive start of the validity interval.
func (e *Event) T1() int64 {
	return e.t1
}

// T2 returns the exclusive end of the validity interval.
func (e *Event) T2() int64 {
	return e.t2
}

func (e *Event) Len() int {
	return len(e.payload)
}

func (e *Event) Get(i int) any {
	return e.payload[i]
}

// Payload returns a copy of the payload.
func (e *Event) Payload() []any {
	p := make([]any, len(e.payload))
	copy(p, e.payload)
	return p
}

// WithInterval returns an event with the same payload valid during [t1, t2).
// The payload is shared, which is safe since events are never mutated.
func (e *Event) WithInterval(t1, t2 int64) (*Event, error) {
	if t1 >= t2 {
		return nil, fmt.Errorf("%w: [%d, %d)", ErrInvalidInterval, t1, t2)
	}
	return &Event{payload: e.payload, t1: t1, t2: t2}, nil
}

// Overlaps returns true if the validity intervals of e and o intersect.
func (e *Event) Overlaps(o *Event) bool {
	return e.t1 < o.t2 && o.t1 < e.t2
}

// Equal compares payload and both timestamps.
func (e *Event) Equal(o *Event) bool {
	if e == o {
		return true
	}
	if o == nil || e.t1 != o.t1 || e.t2 != o.t2 || len(e.payload) != len(o.payload) {
		return false
	}
	for i := range e.payload {
		if e.payload[i] != o.payload[i] {
			return false
		}
	}
	return true
}

// Hash returns a hash over payload and both timestamps.
func (e *Event) Hash() uint64 {
	h := murmur3.New64()
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], uint64(e.t1))
	_, _ = h.Write(buf[:])
	binary.BigEndian.PutUint64(buf[:], uint64(e.t2))
	_, _ = h.Write(buf[:])
	for _, v := range e.payload {
		_, _ = h.Write(AppendValue(nil, v))
	}
	return h.Sum64()
}

func (e *Event) String() string {
	parts := make([]string, len(e.payload))
	for i, v := range e.payload {
		parts[i] = fmt.Sprintf("%v", v)
	}
	return fmt.Sprintf("[%d,%d) (%s)", e.t1, e.t2, strings.Join(parts, ", "))
}

// AppendValue appends a type-tagged binary encoding of v to dst. Equal values produce equal encodings.
func AppendValue(dst []byte, v any) []byte {
	var buf [8]byte
	switch w := v.(type) {
	case int64:
		binary.BigEndian.PutUint64(buf[:], uint64(w))
		dst = append(dst, 'i')
		dst = append(dst, buf[:]...)
	case float64:
		binary.BigEndian.PutUint64(buf[:], math.Float64bits(w))
		dst = append(dst, 'd')
		dst = append(dst, buf[:]...)
	case string:
		binary.BigEndian.PutUint64(buf[:], uint64(len(w)))
		dst = append(dst, 's')
		dst = append(dst, buf[:]...)
		dst = append(dst, w...)
	case bool:
		if w {
			dst = append(dst, 'b', 1)
		} else {
			dst = append(dst, 'b', 0)
		}
	default:
		s := fmt.Sprintf("%v", w)
		binary.BigEndian.PutUint64(buf[:], uint64(len(s)))
		dst = append(dst, '?')
		dst = append(dst, buf[:]...)
		dst = append(dst, s...)
	}
	return dst
}
