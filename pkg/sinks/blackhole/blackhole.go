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

package blackhole

import (
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/atomic"

	"github.com/sigmod2021-index-pattern/index-pattern-sub002/pkg/event"
	"github.com/sigmod2021-index-pattern/index-pattern-sub002/pkg/metrics"
)

// Blackhole is a sink to emulate /dev/null
type Blackhole struct {
	name    string
	written *atomic.Int64
	count   prometheus.Counter
}

// NewBlackhole returns a new Blackhole sink.
func NewBlackhole(name string) *Blackhole {
	return &Blackhole{
		name:    name,
		written: atomic.NewInt64(0),
		count:   metrics.SinkWriteCount.WithLabelValues(name, "blackhole"),
	}
}

// Name returns the name.
func (b *Blackhole) Name() string {
	return b.name
}

// Write discards the event.
func (b *Blackhole) Write(*event.Event) error {
	b.written.Inc()
	b.count.Inc()
	return nil
}

// Written returns the number of events discarded so far.
func (b *Blackhole) Written() int64 {
	return b.written.Load()
}

func (b *Blackhole) Close() error {
	return nil
}
