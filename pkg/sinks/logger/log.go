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

package logger

import (
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/sigmod2021-index-pattern/index-pattern-sub002/pkg/event"
	"github.com/sigmod2021-index-pattern/index-pattern-sub002/pkg/metrics"
	"github.com/sigmod2021-index-pattern/index-pattern-sub002/pkg/shared/logging"
)

// ToLog prints the events to the log.
type ToLog struct {
	name   string
	schema *event.Schema
	logger *zap.SugaredLogger
	count  prometheus.Counter
}

type Option func(*ToLog) error

func WithLogger(log *zap.SugaredLogger) Option {
	return func(t *ToLog) error {
		t.logger = log
		return nil
	}
}

// WithSchema names the attributes of logged events.
func WithSchema(s *event.Schema) Option {
	return func(t *ToLog) error {
		t.schema = s
		return nil
	}
}

// NewToLog returns ToLog type.
func NewToLog(name string, opts ...Option) (*ToLog, error) {
	toLog := &ToLog{name: name}
	for _, o := range opts {
		if err := o(toLog); err != nil {
			return nil, err
		}
	}
	if toLog.logger == nil {
		toLog.logger = logging.NewLogger()
	}
	toLog.logger = toLog.logger.With("sinkType", "log").With("sink", name)
	toLog.count = metrics.SinkWriteCount.WithLabelValues(name, "log")
	return toLog, nil
}

// Name returns the name.
func (t *ToLog) Name() string {
	return t.name
}

// Write writes to the log.
func (t *ToLog) Write(e *event.Event) error {
	t.count.Inc()
	if t.schema == nil {
		t.logger.Infow("Event", zap.Int64("t1", e.T1()), zap.Int64("t2", e.T2()), zap.Any("payload", e.Payload()))
		return nil
	}
	fields := make([]interface{}, 0, 2+2*e.Len())
	fields = append(fields, zap.Int64("t1", e.T1()), zap.Int64("t2", e.T2()))
	for i := 0; i < e.Len() && i < t.schema.Len(); i++ {
		fields = append(fields, zap.Any(t.schema.At(i).Name, e.Get(i)))
	}
	t.logger.Infow("Event", fields...)
	return nil
}

func (t *ToLog) Close() error {
	return nil
}
