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

// Package kafka implements a sink producing events to a kafka topic.
package kafka

import (
	"fmt"

	"github.com/IBM/sarama"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/sigmod2021-index-pattern/index-pattern-sub002/pkg/event"
	"github.com/sigmod2021-index-pattern/index-pattern-sub002/pkg/metrics"
	"github.com/sigmod2021-index-pattern/index-pattern-sub002/pkg/shared/logging"
)

// ToKafka produces the events to a kafka topic.
type ToKafka struct {
	name     string
	topic    string
	schema   *event.Schema
	keyIndex int
	producer sarama.SyncProducer
	log      *zap.SugaredLogger
	count    prometheus.Counter
	errors   prometheus.Counter
}

type Option func(*ToKafka) error

func WithLogger(log *zap.SugaredLogger) Option {
	return func(t *ToKafka) error {
		t.log = log
		return nil
	}
}

// WithSchema writes payloads as objects keyed by attribute name. It is required to key messages.
func WithSchema(s *event.Schema) Option {
	return func(t *ToKafka) error {
		t.schema = s
		return nil
	}
}

// WithProducer replaces the producer built from the configuration.
func WithProducer(p sarama.SyncProducer) Option {
	return func(t *ToKafka) error {
		t.producer = p
		return nil
	}
}

// NewToKafka returns ToKafka type.
func NewToKafka(name string, cfg Config, opts ...Option) (*ToKafka, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	toKafka := &ToKafka{
		name:     name,
		topic:    cfg.Topic,
		keyIndex: -1,
		count:    metrics.SinkWriteCount.WithLabelValues(name, "kafka"),
		errors:   metrics.SinkWriteErrors.WithLabelValues(name, "kafka"),
	}
	for _, o := range opts {
		if err := o(toKafka); err != nil {
			return nil, err
		}
	}
	if toKafka.log == nil {
		toKafka.log = logging.NewLogger()
	}
	toKafka.log = toKafka.log.With("sinkType", "kafka").With("topic", cfg.Topic)
	if cfg.KeyAttribute != "" {
		if toKafka.schema == nil {
			return nil, fmt.Errorf("kafka sink %q keys by %q but has no schema", name, cfg.KeyAttribute)
		}
		idx, ok := toKafka.schema.Index(cfg.KeyAttribute)
		if !ok {
			return nil, fmt.Errorf("%w: kafka sink %q keys by unknown attribute %q", event.ErrSchemaMismatch, name, cfg.KeyAttribute)
		}
		toKafka.keyIndex = idx
	}
	if toKafka.producer == nil {
		config, err := cfg.saramaConfig()
		if err != nil {
			return nil, err
		}
		producer, err := sarama.NewSyncProducer(cfg.Brokers, config)
		if err != nil {
			return nil, fmt.Errorf("failed to create kafka producer. %w", err)
		}
		toKafka.producer = producer
	}
	return toKafka, nil
}

// Name returns the name.
func (tk *ToKafka) Name() string {
	return tk.name
}

// Write produces an event to the kafka topic.
func (tk *ToKafka) Write(e *event.Event) error {
	var (
		data []byte
		err  error
	)
	if tk.schema != nil {
		data, err = event.MarshalNamed(e, tk.schema)
	} else {
		data, err = event.Marshal(e)
	}
	if err != nil {
		tk.errors.Inc()
		return fmt.Errorf("failed to encode %s, %w", e, err)
	}
	message := &sarama.ProducerMessage{
		Topic: tk.topic,
		Value: sarama.ByteEncoder(data),
	}
	if tk.keyIndex >= 0 {
		message.Key = sarama.ByteEncoder(event.AppendValue(nil, e.Get(tk.keyIndex)))
	}
	if _, _, err := tk.producer.SendMessage(message); err != nil {
		tk.errors.Inc()
		tk.log.Errorw("SendMessage failed", zap.Error(err))
		return err
	}
	tk.count.Inc()
	return nil
}

func (tk *ToKafka) Close() error {
	tk.log.Info("Closing kafka producer...")
	return tk.producer.Close()
}
