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

// Package nats implements a source decoding events published on a NATS subject.
package nats

import (
	"context"
	"fmt"
	"time"

	natslib "github.com/nats-io/nats.go"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/sigmod2021-index-pattern/index-pattern-sub002/pkg/event"
	"github.com/sigmod2021-index-pattern/index-pattern-sub002/pkg/metrics"
	"github.com/sigmod2021-index-pattern/index-pattern-sub002/pkg/shared/logging"
)

// Config locates the server and the subject to subscribe to.
type Config struct {
	URL     string `mapstructure:"url"`
	Subject string `mapstructure:"subject"`
	// Queue joins a queue group when set
	Queue string `mapstructure:"queue"`

	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
}

// Validate checks the configuration.
func (c Config) Validate() error {
	if c.URL == "" {
		return fmt.Errorf("nats source requires a url")
	}
	if c.Subject == "" {
		return fmt.Errorf("nats source requires a subject")
	}
	return nil
}

// FromNats emits the events published on a NATS subject.
type FromNats struct {
	name       string
	schema     *event.Schema
	logger     *zap.SugaredLogger
	natsConn   *natslib.Conn
	sub        *natslib.Subscription
	bufferSize int
	messages   chan *natslib.Msg
	count      prometheus.Counter
	errors     prometheus.Counter
}

type Option func(*FromNats) error

// WithLogger is used to return logger information
func WithLogger(l *zap.SugaredLogger) Option {
	return func(o *FromNats) error {
		o.logger = l
		return nil
	}
}

// WithBufferSize sets the buffer size for storing the messages from nats
func WithBufferSize(s int) Option {
	return func(o *FromNats) error {
		o.bufferSize = s
		return nil
	}
}

// New connects to the server and subscribes to the subject. Messages are buffered until Run consumes them.
func New(name string, schema *event.Schema, cfg Config, opts ...Option) (*FromNats, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	n := &FromNats{
		name:       name,
		schema:     schema,
		bufferSize: 1000, // default size
		count:      metrics.SourceReadCount.WithLabelValues(name),
		errors:     metrics.SourceReadErrors.WithLabelValues(name, "decode"),
	}
	for _, o := range opts {
		if err := o(n); err != nil {
			return nil, err
		}
	}
	if n.logger == nil {
		n.logger = logging.NewLogger()
	}
	n.logger = n.logger.With("source", name)
	n.messages = make(chan *natslib.Msg, n.bufferSize)

	opt := []natslib.Option{
		natslib.MaxReconnects(-1),
		natslib.ReconnectWait(3 * time.Second),
		natslib.DisconnectErrHandler(func(c *natslib.Conn, err error) {
			n.logger.Errorw("Nats disconnected", zap.Error(err))
		}),
		natslib.ReconnectHandler(func(c *natslib.Conn) {
			n.logger.Info("Nats reconnected")
		}),
	}
	if cfg.User != "" {
		opt = append(opt, natslib.UserInfo(cfg.User, cfg.Password))
	}

	n.logger.Info("Connecting to nats service...")
	if conn, err := natslib.Connect(cfg.URL, opt...); err != nil {
		return nil, fmt.Errorf("failed to connect to nats server, %w", err)
	} else {
		n.natsConn = conn
	}
	handler := func(msg *natslib.Msg) {
		n.messages <- msg
	}
	var err error
	if cfg.Queue != "" {
		n.sub, err = n.natsConn.QueueSubscribe(cfg.Subject, cfg.Queue, handler)
	} else {
		n.sub, err = n.natsConn.Subscribe(cfg.Subject, handler)
	}
	if err != nil {
		n.natsConn.Close()
		return nil, fmt.Errorf("failed to subscribe to nats subject %q, %w", cfg.Subject, err)
	}
	return n, nil
}

func (ns *FromNats) Name() string {
	return ns.name
}

// Run decodes and emits the received messages until ctx is done. Malformed messages are skipped.
func (ns *FromNats) Run(ctx context.Context, emit func(e *event.Event) error) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg := <-ns.messages:
			e, err := event.Unmarshal(msg.Data, ns.schema)
			if err != nil {
				ns.errors.Inc()
				ns.logger.Warnw("Skipping malformed message", zap.String("subject", msg.Subject), zap.Error(err))
				continue
			}
			if err := emit(e); err != nil {
				return err
			}
			ns.count.Inc()
		}
	}
}

func (ns *FromNats) Close() error {
	ns.logger.Info("Shutting down nats source...")
	if err := ns.sub.Unsubscribe(); err != nil {
		ns.logger.Errorw("Failed to unsubscribe nats subscription", zap.Error(err))
	}
	ns.natsConn.Close()
	ns.logger.Info("Nats source shutdown")
	return nil
}
