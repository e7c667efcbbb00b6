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

// Package memory implements a sink keeping the most recent events in memory, for tests and inspection.
package memory

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/sigmod2021-index-pattern/index-pattern-sub002/pkg/event"
	"github.com/sigmod2021-index-pattern/index-pattern-sub002/pkg/metrics"
	"github.com/sigmod2021-index-pattern/index-pattern-sub002/pkg/shared/queue"
)

// DefaultCapacity is the number of events kept when no capacity is configured.
const DefaultCapacity = 1024

// Sink keeps the last events written to it. Older events overflow.
type Sink struct {
	name    string
	events  *queue.OverflowQueue[*event.Event]
	count   prometheus.Counter
	dropped prometheus.Counter
}

// New returns a sink keeping at most capacity events.
func New(name string, capacity int) *Sink {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Sink{
		name:    name,
		events:  queue.New[*event.Event](capacity),
		count:   metrics.SinkWriteCount.WithLabelValues(name, "memory"),
		dropped: metrics.SinkDropped.WithLabelValues(name, "memory"),
	}
}

func (s *Sink) Name() string {
	return s.name
}

func (s *Sink) Write(e *event.Event) error {
	s.count.Inc()
	if s.events.Append(e) {
		s.dropped.Inc()
	}
	return nil
}

// Events returns the retained events, oldest first.
func (s *Sink) Events() []*event.Event {
	return s.events.Items()
}

// Latest returns the n most recent events, oldest first.
func (s *Sink) Latest(n int) []*event.Event {
	return s.events.Latest(n)
}

// Dropped returns the number of events that overflowed.
func (s *Sink) Dropped() uint64 {
	return s.events.Dropped()
}

func (s *Sink) Close() error {
	return nil
}
