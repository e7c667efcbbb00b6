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

// Package eventheap implements a min-heap of events ordered by the start of their validity interval. Operators
// use it to hold results back until a progress bound allows them to be emitted in timestamp order.
package eventheap

import (
	"container/heap"

	"github.com/sigmod2021-index-pattern/index-pattern-sub002/pkg/event"
)

type item struct {
	e   *event.Event
	seq uint64
}

// items implements heap.Interface. Events with equal T1 are ordered by insertion.
type items []item

func (h items) Len() int { return len(h) }
func (h items) Less(i, j int) bool {
	if h[i].e.T1() != h[j].e.T1() {
		return h[i].e.T1() < h[j].e.T1()
	}
	return h[i].seq < h[j].seq
}
func (h items) Swap(i, j int) { h[i], h[j] = h[j], h[i] }
func (h *items) Push(x any)   { *h = append(*h, x.(item)) }
func (h *items) Pop() any {
	old := *h
	n := len(old)
	it := old[n-1]
	old[n-1] = item{}
	*h = old[:n-1]
	return it
}

// Heap is a min-heap of events keyed by T1. It is not thread safe.
type Heap struct {
	items items
	seq   uint64
}

// New returns an empty Heap.
func New() *Heap {
	return &Heap{items: make(items, 0)}
}

// Push adds an event.
func (h *Heap) Push(e *event.Event) {
	h.seq++
	heap.Push(&h.items, item{e: e, seq: h.seq})
}

// Len returns the number of events held.
func (h *Heap) Len() int {
	return h.items.Len()
}

// Peek returns the event with the smallest T1 without removing it.
func (h *Heap) Peek() (*event.Event, bool) {
	if len(h.items) == 0 {
		return nil, false
	}
	return h.items[0].e, true
}

// Pop removes and returns the event with the smallest T1.
func (h *Heap) Pop() (*event.Event, bool) {
	if len(h.items) == 0 {
		return nil, false
	}
	return heap.Pop(&h.items).(item).e, true
}

// PopUntil removes every event with T1 <= bound in ascending order and hands it to fn. It returns the number of
// events removed.
func (h *Heap) PopUntil(bound int64, fn func(e *event.Event)) int {
	n := 0
	for len(h.items) > 0 && h.items[0].e.T1() <= bound {
		fn(heap.Pop(&h.items).(item).e)
		n++
	}
	return n
}

// Drain removes every event in ascending order and hands it to fn.
func (h *Heap) Drain(fn func(e *event.Event)) int {
	n := 0
	for len(h.items) > 0 {
		fn(heap.Pop(&h.items).(item).e)
		n++
	}
	return n
}
