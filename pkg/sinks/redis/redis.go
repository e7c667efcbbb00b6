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

// Package redis implements a sink appending events to a redis stream.
package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/sigmod2021-index-pattern/index-pattern-sub002/pkg/event"
	"github.com/sigmod2021-index-pattern/index-pattern-sub002/pkg/metrics"
	"github.com/sigmod2021-index-pattern/index-pattern-sub002/pkg/shared/logging"
)

const defaultWriteTimeout = 5 * time.Second

// Config locates the redis deployment and the stream to append to.
type Config struct {
	Addrs []string `mapstructure:"addrs"`

	// MasterName selects sentinel mode
	MasterName string `mapstructure:"masterName"`
	Username   string `mapstructure:"username"`
	Password   string `mapstructure:"password"`
	Stream     string `mapstructure:"stream"`

	// MaxLen caps the stream length approximately, 0 means unbounded
	MaxLen int64 `mapstructure:"maxLen"`

	// WriteTimeout bounds a single append
	WriteTimeout time.Duration `mapstructure:"writeTimeout"`
}

// Validate checks the configuration.
func (c Config) Validate() error {
	if len(c.Addrs) == 0 {
		return fmt.Errorf("redis sink requires at least one address")
	}
	if c.Stream == "" {
		return fmt.Errorf("redis sink requires a stream")
	}
	return nil
}

// StreamClient is the part of the redis client the sink uses.
type StreamClient interface {
	XAdd(ctx context.Context, a *goredis.XAddArgs) *goredis.StringCmd
	Close() error
}

// RedisSink appends every event to a redis stream, with fields t1, t2 and payload.
type RedisSink struct {
	name    string
	stream  string
	maxLen  int64
	timeout time.Duration
	schema  *event.Schema
	client  StreamClient
	logger  *zap.SugaredLogger
	count   prometheus.Counter
	errors  prometheus.Counter
}

type Option func(sink *RedisSink) error

func WithLogger(log *zap.SugaredLogger) Option {
	return func(rs *RedisSink) error {
		rs.logger = log
		return nil
	}
}

// WithSchema writes payloads as objects keyed by attribute name.
func WithSchema(s *event.Schema) Option {
	return func(rs *RedisSink) error {
		rs.schema = s
		return nil
	}
}

// WithClient replaces the client built from the configuration.
func WithClient(c StreamClient) Option {
	return func(rs *RedisSink) error {
		rs.client = c
		return nil
	}
}

// NewRedisSink returns RedisSink type.
func NewRedisSink(name string, cfg Config, opts ...Option) (*RedisSink, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	rs := &RedisSink{
		name:    name,
		stream:  cfg.Stream,
		maxLen:  cfg.MaxLen,
		timeout: cfg.WriteTimeout,
		count:   metrics.SinkWriteCount.WithLabelValues(name, "redis"),
		errors:  metrics.SinkWriteErrors.WithLabelValues(name, "redis"),
	}
	if rs.timeout <= 0 {
		rs.timeout = defaultWriteTimeout
	}
	for _, o := range opts {
		if err := o(rs); err != nil {
			return nil, err
		}
	}
	if rs.logger == nil {
		rs.logger = logging.NewLogger()
	}
	rs.logger = rs.logger.With("sinkType", "redis").With("stream", cfg.Stream)
	if rs.client == nil {
		rs.client = goredis.NewUniversalClient(&goredis.UniversalOptions{
			Addrs:      cfg.Addrs,
			MasterName: cfg.MasterName,
			Username:   cfg.Username,
			Password:   cfg.Password,
		})
	}
	return rs, nil
}

// Name returns the name.
func (rs *RedisSink) Name() string {
	return rs.name
}

// Write appends an event to the stream.
func (rs *RedisSink) Write(e *event.Event) error {
	var (
		data []byte
		err  error
	)
	if rs.schema != nil {
		data, err = event.MarshalNamed(e, rs.schema)
	} else {
		data, err = event.Marshal(e)
	}
	if err != nil {
		rs.errors.Inc()
		return fmt.Errorf("failed to encode %s, %w", e, err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), rs.timeout)
	defer cancel()
	args := &goredis.XAddArgs{
		Stream: rs.stream,
		Values: map[string]interface{}{"t1": e.T1(), "t2": e.T2(), "payload": string(data)},
	}
	if rs.maxLen > 0 {
		args.MaxLen = rs.maxLen
		args.Approx = true
	}
	if err := rs.client.XAdd(ctx, args).Err(); err != nil {
		rs.errors.Inc()
		return fmt.Errorf("failed to append to stream %q, %w", rs.stream, err)
	}
	rs.count.Inc()
	return nil
}

func (rs *RedisSink) Close() error {
	rs.logger.Info("Closing redis client...")
	return rs.client.Close()
}
