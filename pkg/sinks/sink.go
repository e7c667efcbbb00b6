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

// Package sinks builds the sinks attached to the nodes of a query.
package sinks

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/sigmod2021-index-pattern/index-pattern-sub002/pkg/event"
	"github.com/sigmod2021-index-pattern/index-pattern-sub002/pkg/graph"
	"github.com/sigmod2021-index-pattern/index-pattern-sub002/pkg/sinks/blackhole"
	kafkasink "github.com/sigmod2021-index-pattern/index-pattern-sub002/pkg/sinks/kafka"
	logsink "github.com/sigmod2021-index-pattern/index-pattern-sub002/pkg/sinks/logger"
	"github.com/sigmod2021-index-pattern/index-pattern-sub002/pkg/sinks/memory"
	natssink "github.com/sigmod2021-index-pattern/index-pattern-sub002/pkg/sinks/nats"
	redissink "github.com/sigmod2021-index-pattern/index-pattern-sub002/pkg/sinks/redis"
)

type Type string

const (
	TypeLog       Type = "log"
	TypeBlackhole Type = "blackhole"
	TypeMemory    Type = "memory"
	TypeRedis     Type = "redis"
	TypeKafka     Type = "kafka"
	TypeNats      Type = "nats"
)

// Config describes a sink. Exactly the section matching Type is read.
type Config struct {
	Name string `mapstructure:"name"`
	Type Type   `mapstructure:"type"`
	// Node is the name of the node the sink is attached to
	Node string `mapstructure:"node"`

	// Capacity bounds a memory sink
	Capacity int `mapstructure:"capacity"`

	Redis *redissink.Config `mapstructure:"redis"`
	Kafka *kafkasink.Config `mapstructure:"kafka"`
	Nats  *natssink.Config  `mapstructure:"nats"`
}

// Validate checks the configuration without connecting anywhere.
func (c Config) Validate() error {
	if c.Name == "" {
		return fmt.Errorf("sink without a name")
	}
	if c.Node == "" {
		return fmt.Errorf("sink %q is not attached to a node", c.Name)
	}
	switch c.Type {
	case TypeLog, TypeBlackhole, TypeMemory:
		return nil
	case TypeRedis:
		if c.Redis == nil {
			return fmt.Errorf("sink %q: missing redis section", c.Name)
		}
		return c.Redis.Validate()
	case TypeKafka:
		if c.Kafka == nil {
			return fmt.Errorf("sink %q: missing kafka section", c.Name)
		}
		return c.Kafka.Validate()
	case TypeNats:
		if c.Nats == nil {
			return fmt.Errorf("sink %q: missing nats section", c.Name)
		}
		return c.Nats.Validate()
	default:
		return fmt.Errorf("sink %q: unsupported type %q", c.Name, c.Type)
	}
}

// New builds the sink described by cfg for events of the given schema.
func New(cfg Config, schema *event.Schema, log *zap.SugaredLogger) (graph.Sink, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	log = log.With("sink", cfg.Name)
	var (
		s   graph.Sink
		err error
	)
	switch cfg.Type {
	case TypeLog:
		s, err = logsink.NewToLog(cfg.Name, logsink.WithLogger(log), logsink.WithSchema(schema))
	case TypeBlackhole:
		s = blackhole.NewBlackhole(cfg.Name)
	case TypeMemory:
		s = memory.New(cfg.Name, cfg.Capacity)
	case TypeRedis:
		s, err = redissink.NewRedisSink(cfg.Name, *cfg.Redis, redissink.WithLogger(log), redissink.WithSchema(schema))
	case TypeKafka:
		s, err = kafkasink.NewToKafka(cfg.Name, *cfg.Kafka, kafkasink.WithLogger(log), kafkasink.WithSchema(schema))
	case TypeNats:
		s, err = natssink.NewToNats(cfg.Name, *cfg.Nats, natssink.WithLogger(log), natssink.WithSchema(schema))
	}
	if err != nil {
		return nil, fmt.Errorf("failed to build sink %q, %w", cfg.Name, err)
	}
	return s, nil
}
