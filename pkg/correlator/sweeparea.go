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

package correlator

import (
	"container/heap"

	"github.com/sigmod2021-index-pattern/index-pattern-sub002/pkg/event"
)

type entry struct {
	e       *event.Event
	evicted bool
}

// endHeap orders entries by the end of their validity interval.
type endHeap []*entry

func (h endHeap) Len() int           { return len(h) }
func (h endHeap) Less(i, j int) bool { return h[i].e.T2() < h[j].e.T2() }
func (h endHeap) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }
func (h *endHeap) Push(x any)        { *h = append(*h, x.(*entry)) }
func (h *endHeap) Pop() any {
	old := *h
	n := len(old)
	it := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return it
}

// SweepArea is the state one side of the correlator keeps about the other. Events are kept in arrival order,
// which is also start time order since every input is sorted on T1, and are dropped once their interval ended
// before anything that can still arrive.
//
// The same immutable events are referenced from two containers: the arrival list used to probe, and a heap on
// T2 used to evict. Evicted entries are only flagged in the arrival list and compacted away lazily.
type SweepArea struct {
	arrivals []*entry

	// head is the position of the first entry of arrivals that may still be live.
	head  int
	byEnd endHeap
	live  int
}

// NewSweepArea returns an empty SweepArea.
func NewSweepArea() *SweepArea {
	return &SweepArea{}
}

// Len returns the number of retained events.
func (s *SweepArea) Len() int {
	return s.live
}

// Insert adds an event.
func (s *SweepArea) Insert(e *event.Event) {
	en := &entry{e: e}
	s.arrivals = append(s.arrivals, en)
	heap.Push(&s.byEnd, en)
	s.live++
}

// Evict removes every event with T2 <= bound and returns how many were removed.
func (s *SweepArea) Evict(bound int64) int {
	n := 0
	for len(s.byEnd) > 0 && s.byEnd[0].e.T2() <= bound {
		en := heap.Pop(&s.byEnd).(*entry)
		en.evicted = true
		n++
	}
	if n == 0 {
		return 0
	}
	s.live -= n
	for s.head < len(s.arrivals) && s.arrivals[s.head].evicted {
		s.arrivals[s.head] = nil
		s.head++
	}
	if dead := len(s.arrivals) - s.live; dead > s.live {
		s.compact()
	}
	return n
}

func (s *SweepArea) compact() {
	kept := make([]*entry, 0, s.live)
	for _, en := range s.arrivals[s.head:] {
		if !en.evicted {
			kept = append(kept, en)
		}
	}
	s.arrivals = kept
	s.head = 0
}

// Query hands fn every retained event with T1 < bound, in arrival order. It stops at the first error.
func (s *SweepArea) Query(bound int64, fn func(e *event.Event) error) error {
	for _, en := range s.arrivals[s.head:] {
		if en.evicted {
			continue
		}
		if en.e.T1() >= bound {
			break
		}
		if err := fn(en.e); err != nil {
			return err
		}
	}
	return nil
}

// Events returns the retained events in arrival order.
func (s *SweepArea) Events() []*event.Event {
	r := make([]*event.Event, 0, s.live)
	for _, en := range s.arrivals[s.head:] {
		if !en.evicted {
			r = append(r, en.e)
		}
	}
	return r
}

// Clear drops every event.
func (s *SweepArea) Clear() {
	s.arrivals = nil
	s.head = 0
	s.byEnd = nil
	s.live = 0
}
