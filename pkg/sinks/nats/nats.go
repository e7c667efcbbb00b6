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

// Package nats implements a sink publishing events to a NATS subject.
package nats

import (
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/sigmod2021-index-pattern/index-pattern-sub002/pkg/event"
	"github.com/sigmod2021-index-pattern/index-pattern-sub002/pkg/metrics"
	"github.com/sigmod2021-index-pattern/index-pattern-sub002/pkg/shared/logging"
)

// Config locates the server and the subject to publish to.
type Config struct {
	URL     string `mapstructure:"url"`
	Subject string `mapstructure:"subject"`

	// User and Password enable basic authentication
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
}

// Validate checks the configuration.
func (c Config) Validate() error {
	if c.URL == "" {
		return fmt.Errorf("nats sink requires a url")
	}
	if c.Subject == "" {
		return fmt.Errorf("nats sink requires a subject")
	}
	return nil
}

// ToNats publishes the events to a NATS subject.
type ToNats struct {
	name    string
	subject string
	schema  *event.Schema
	conn    *nats.Conn
	log     *zap.SugaredLogger
	count   prometheus.Counter
	errors  prometheus.Counter
}

type Option func(*ToNats) error

func WithLogger(log *zap.SugaredLogger) Option {
	return func(t *ToNats) error {
		t.log = log
		return nil
	}
}

// WithSchema writes payloads as objects keyed by attribute name.
func WithSchema(s *event.Schema) Option {
	return func(t *ToNats) error {
		t.schema = s
		return nil
	}
}

// NewToNats connects to the server and returns a ToNats.
func NewToNats(name string, cfg Config, opts ...Option) (*ToNats, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	tn := &ToNats{
		name:    name,
		subject: cfg.Subject,
		count:   metrics.SinkWriteCount.WithLabelValues(name, "nats"),
		errors:  metrics.SinkWriteErrors.WithLabelValues(name, "nats"),
	}
	for _, o := range opts {
		if err := o(tn); err != nil {
			return nil, err
		}
	}
	if tn.log == nil {
		tn.log = logging.NewLogger()
	}
	tn.log = tn.log.With("sinkType", "nats").With("subject", cfg.Subject)
	natsOpts := []nats.Option{
		nats.Name(name),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			tn.log.Errorw("Nats: disconnected", zap.Error(err))
		}),
		nats.ReconnectHandler(func(nnc *nats.Conn) {
			tn.log.Info("Nats: reconnected to nats server")
		}),
	}
	if cfg.User != "" {
		natsOpts = append(natsOpts, nats.UserInfo(cfg.User, cfg.Password))
	}
	conn, err := nats.Connect(cfg.URL, natsOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to nats server %q, %w", cfg.URL, err)
	}
	tn.conn = conn
	return tn, nil
}

// Name returns the name.
func (tn *ToNats) Name() string {
	return tn.name
}

// Write publishes an event.
func (tn *ToNats) Write(e *event.Event) error {
	var (
		data []byte
		err  error
	)
	if tn.schema != nil {
		data, err = event.MarshalNamed(e, tn.schema)
	} else {
		data, err = event.Marshal(e)
	}
	if err == nil {
		err = tn.conn.Publish(tn.subject, data)
	}
	if err != nil {
		tn.errors.Inc()
		return fmt.Errorf("failed to publish %s, %w", e, err)
	}
	tn.count.Inc()
	return nil
}

// Close flushes pending messages and closes the connection.
func (tn *ToNats) Close() error {
	defer tn.conn.Close()
	if err := tn.conn.Flush(); err != nil {
		return fmt.Errorf("failed to flush nats connection, %w", err)
	}
	return nil
}
