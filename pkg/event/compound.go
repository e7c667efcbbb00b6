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

import "fmt"

// Compound is a lazy combination of two events. Its attributes are the attributes of Left followed by the
// attributes of Right, and its validity is the intersection of both intervals. Nothing is copied until
// Materialize is called.
type Compound struct {
	left  *Event
	right *Event
}

var _ Tuple = (*Compound)(nil)

// NewCompound returns the compound view of left and right.
func NewCompound(left, right *Event) *Compound {
	return &Compound{left: left, right: right}
}

func (c *Compound) Left() *Event {
	return c.left
}

func (c *Compound) Right() *Event {
	return c.right
}

func (c *Compound) Len() int {
	return c.left.Len() + c.right.Len()
}

func (c *Compound) Get(i int) any {
	if i < c.left.Len() {
		return c.left.Get(i)
	}
	return c.right.Get(i - c.left.Len())
}

// T1 returns max(left.T1, right.T1).
func (c *Compound) T1() int64 {
	return max(c.left.t1, c.right.t1)
}

// T2 returns min(left.T2, right.T2).
func (c *Compound) T2() int64 {
	return min(c.left.t2, c.right.t2)
}

// Valid returns true if the intersection of both intervals is non-empty.
func (c *Compound) Valid() bool {
	return c.T1() < c.T2()
}

// Materialize copies both payloads into a single event valid during the intersection of both intervals.
func (c *Compound) Materialize() (*Event, error) {
	t1, t2 := c.T1(), c.T2()
	if t1 >= t2 {
		return nil, fmt.Errorf("%w: [%d, %d)", ErrEmptyInterval, t1, t2)
	}
	p := make([]any, 0, c.Len())
	p = append(p, c.left.payload...)
	p = append(p, c.right.payload...)
	return &Event{payload: p, t1: t1, t2: t2}, nil
}
