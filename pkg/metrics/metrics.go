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

package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	LabelVersion   = "version"
	LabelPlatform  = "platform"
	LabelComponent = "component"
	LabelQuery     = "query"
	LabelNode      = "node"
	LabelKind      = "kind"
	LabelSink      = "sink"
	LabelSinkType  = "sink_type"
	LabelSource    = "source"
	LabelReason    = "reason"
)

var (
	BuildInfo = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "build_info",
		Help: "A metric with a constant value '1', labeled by binary version and platform",
	}, []string{LabelComponent, LabelVersion, LabelPlatform})
)

// Dataflow graph metrics
var (
	// NodeEventsIn is the number of events delivered to a node
	NodeEventsIn = promauto.NewCounterVec(prometheus.CounterOpts{
		Subsystem: "graph",
		Name:      "node_in_total",
		Help:      "Total number of events delivered to a node",
	}, []string{LabelNode})

	// NodeEventsOut is the number of events a node produced
	NodeEventsOut = promauto.NewCounterVec(prometheus.CounterOpts{
		Subsystem: "graph",
		Name:      "node_out_total",
		Help:      "Total number of events produced by a node",
	}, []string{LabelNode})

	// NodeErrors is the number of runtime errors raised by the operator of a node
	NodeErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Subsystem: "graph",
		Name:      "node_errors_total",
		Help:      "Total number of operator errors",
	}, []string{LabelNode, LabelKind})

	// HaltedNodes is the number of nodes that stopped processing after an operator error
	HaltedNodes = promauto.NewGauge(prometheus.GaugeOpts{
		Subsystem: "graph",
		Name:      "halted_nodes",
		Help:      "Number of halted nodes",
	})

	// ActiveNodes is the number of nodes currently alive in the graph
	ActiveNodes = promauto.NewGauge(prometheus.GaugeOpts{
		Subsystem: "graph",
		Name:      "active_nodes",
		Help:      "Number of nodes in the graph",
	})
)

// ExpressionErrors is the number of expression evaluations that failed at runtime
var ExpressionErrors = promauto.NewCounterVec(prometheus.CounterOpts{
	Subsystem: "expr",
	Name:      "eval_errors_total",
	Help:      "Total number of failed expression evaluations",
}, []string{LabelKind})

// Sink metrics
var (
	SinkWriteCount = promauto.NewCounterVec(prometheus.CounterOpts{
		Subsystem: "sink",
		Name:      "write_total",
		Help:      "Total number of events written to a sink",
	}, []string{LabelSink, LabelSinkType})

	SinkWriteErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Subsystem: "sink",
		Name:      "write_errors_total",
		Help:      "Total number of failed sink writes",
	}, []string{LabelSink, LabelSinkType})

	// SinkDropped is the number of events a bounded sink discarded to make room
	SinkDropped = promauto.NewCounterVec(prometheus.CounterOpts{
		Subsystem: "sink",
		Name:      "dropped_total",
		Help:      "Total number of events dropped by a sink",
	}, []string{LabelSink, LabelSinkType})
)

// Source metrics
var (
	SourceReadCount = promauto.NewCounterVec(prometheus.CounterOpts{
		Subsystem: "source",
		Name:      "read_total",
		Help:      "Total number of events read from a source",
	}, []string{LabelSource})

	SourceReadErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Subsystem: "source",
		Name:      "read_errors_total",
		Help:      "Total number of source read errors",
	}, []string{LabelSource, LabelReason})
)

// EngineRunning is 1 while a query is running
var EngineRunning = promauto.NewGaugeVec(prometheus.GaugeOpts{
	Subsystem: "engine",
	Name:      "running",
	Help:      "A metric with value '1' while the query is running",
}, []string{LabelQuery})
