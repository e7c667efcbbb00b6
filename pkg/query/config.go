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

// Package query declares continuous queries in YAML and compiles them into a dataflow graph.
package query

import (
	"bytes"
	"errors"
	"fmt"
	"strings"

	"github.com/imdario/mergo"
	"github.com/spf13/viper"

	"github.com/sigmod2021-index-pattern/index-pattern-sub002/pkg/event"
	"github.com/sigmod2021-index-pattern/index-pattern-sub002/pkg/metrics"
	"github.com/sigmod2021-index-pattern/index-pattern-sub002/pkg/sinks"
	kafkasink "github.com/sigmod2021-index-pattern/index-pattern-sub002/pkg/sinks/kafka"
	natssink "github.com/sigmod2021-index-pattern/index-pattern-sub002/pkg/sinks/nats"
	redissink "github.com/sigmod2021-index-pattern/index-pattern-sub002/pkg/sinks/redis"
	"github.com/sigmod2021-index-pattern/index-pattern-sub002/pkg/sources"
	"github.com/sigmod2021-index-pattern/index-pattern-sub002/pkg/window"
)

// EnvPrefix prefixes the environment variables overriding configuration keys, e.g. NUMACEP_ENGINE_FLUSHONSTOP.
const EnvPrefix = "NUMACEP"

var ErrInvalidConfig = errors.New("invalid query configuration")

type OperatorType string

const (
	OperatorTimeWindow             OperatorType = "timeWindow"
	OperatorCountWindow            OperatorType = "countWindow"
	OperatorPartitionedCountWindow OperatorType = "partitionedCountWindow"
	OperatorJoin                   OperatorType = "join"
	OperatorFilter                 OperatorType = "filter"
	OperatorProjection             OperatorType = "projection"
)

type AttributeConfig struct {
	Name string `mapstructure:"name"`
	Type string `mapstructure:"type"`
}

// StreamConfig declares an input stream.
type StreamConfig struct {
	Name   string            `mapstructure:"name"`
	Schema []AttributeConfig `mapstructure:"schema"`
}

// ProjectionConfig declares one output attribute of a projection.
type ProjectionConfig struct {
	Name       string `mapstructure:"name"`
	Type       string `mapstructure:"type"`
	Expression string `mapstructure:"expression"`
}

// OperatorConfig declares an operator. Inputs name streams or operators declared before it.
type OperatorConfig struct {
	Name   string       `mapstructure:"name"`
	Type   OperatorType `mapstructure:"type"`
	Inputs []string     `mapstructure:"inputs"`

	// Size, Jump and PartitionBy define windows
	Size        int64    `mapstructure:"size"`
	Jump        int64    `mapstructure:"jump"`
	PartitionBy []string `mapstructure:"partitionBy"`

	// Predicate is the condition of a join or a filter, an empty join predicate matches every pair
	Predicate string `mapstructure:"predicate"`

	Projection []ProjectionConfig `mapstructure:"projection"`
}

// EngineConfig tunes how the query is run.
type EngineConfig struct {
	// FlushOnStop flushes the buffered state of every operator when the query stops
	FlushOnStop bool `mapstructure:"flushOnStop"`
}

// SinkDefaults holds connection settings shared by the sinks of a type. Fields set on a sink take precedence.
type SinkDefaults struct {
	Redis *redissink.Config `mapstructure:"redis"`
	Kafka *kafkasink.Config `mapstructure:"kafka"`
	Nats  *natssink.Config  `mapstructure:"nats"`
}

type MetricsConfig struct {
	Addr  string `mapstructure:"addr"`
	Pprof bool   `mapstructure:"pprof"`
}

// Config is a continuous query with its sources and sinks.
type Config struct {
	Name      string           `mapstructure:"name"`
	Streams   []StreamConfig   `mapstructure:"streams"`
	Operators []OperatorConfig `mapstructure:"operators"`
	Sinks     []sinks.Config   `mapstructure:"sinks"`
	Sources   []sources.Config `mapstructure:"sources"`
	Engine    EngineConfig     `mapstructure:"engine"`
	Metrics   MetricsConfig    `mapstructure:"metrics"`

	SinkDefaults SinkDefaults `mapstructure:"sinkDefaults"`
}

// Load reads a query from a YAML file. Keys can be overridden by environment variables.
func Load(path string) (*Config, error) {
	v := newViper()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to load configuration file %q, %w", path, err)
	}
	return decode(v)
}

// Parse reads a query from YAML data.
func Parse(data []byte) (*Config, error) {
	v := newViper()
	v.SetConfigType("yaml")
	if err := v.ReadConfig(bytes.NewReader(data)); err != nil {
		return nil, fmt.Errorf("failed to parse configuration, %w", err)
	}
	return decode(v)
}

func newViper() *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	v.SetDefault("metrics.addr", metrics.DefaultAddr)
	return v
}

func decode(v *viper.Viper) (*Config, error) {
	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration, %w", err)
	}
	if err := cfg.ApplySinkDefaults(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplySinkDefaults fills the unset fields of every sink section from SinkDefaults.
func (c *Config) ApplySinkDefaults() error {
	d := c.SinkDefaults
	for i := range c.Sinks {
		s := &c.Sinks[i]
		var err error
		switch s.Type {
		case sinks.TypeRedis:
			s.Redis, err = merged(s.Redis, d.Redis)
		case sinks.TypeKafka:
			s.Kafka, err = merged(s.Kafka, d.Kafka)
		case sinks.TypeNats:
			s.Nats, err = merged(s.Nats, d.Nats)
		}
		if err != nil {
			return fmt.Errorf("failed to apply defaults to sink %q, %w", s.Name, err)
		}
	}
	return nil
}

func merged[T any](dst, defaults *T) (*T, error) {
	if defaults == nil {
		return dst, nil
	}
	if dst == nil {
		c := *defaults
		return &c, nil
	}
	if err := mergo.Merge(dst, defaults); err != nil {
		return nil, err
	}
	return dst, nil
}

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidConfig, fmt.Sprintf(format, args...))
}

// Validate checks the query is well-formed. It resolves names and types but compiles no expression.
func (c *Config) Validate() error {
	if c.Name == "" {
		return invalid("query without a name")
	}
	if len(c.Streams) == 0 {
		return invalid("query %q has no input stream", c.Name)
	}
	streams := make(map[string]bool)
	declared := make(map[string]bool)
	for _, s := range c.Streams {
		if s.Name == "" {
			return invalid("stream without a name")
		}
		if declared[s.Name] {
			return invalid("duplicate name %q", s.Name)
		}
		if _, err := s.schema(); err != nil {
			return invalid("stream %q: %v", s.Name, err)
		}
		declared[s.Name] = true
		streams[s.Name] = true
	}
	for _, op := range c.Operators {
		if op.Name == "" {
			return invalid("operator without a name")
		}
		if declared[op.Name] {
			return invalid("duplicate name %q", op.Name)
		}
		for _, in := range op.Inputs {
			if !declared[in] {
				return invalid("operator %q reads %q which is not declared before it", op.Name, in)
			}
		}
		if err := op.validate(); err != nil {
			return invalid("operator %q: %v", op.Name, err)
		}
		declared[op.Name] = true
	}
	names := make(map[string]bool)
	for _, s := range c.Sinks {
		if err := s.Validate(); err != nil {
			return invalid("%v", err)
		}
		if names[s.Name] {
			return invalid("duplicate sink %q", s.Name)
		}
		names[s.Name] = true
		if !declared[s.Node] {
			return invalid("sink %q is attached to unknown node %q", s.Name, s.Node)
		}
	}
	names = make(map[string]bool)
	for _, s := range c.Sources {
		if err := s.Validate(); err != nil {
			return invalid("%v", err)
		}
		if names[s.Name] {
			return invalid("duplicate source %q", s.Name)
		}
		names[s.Name] = true
		if !streams[s.Stream] {
			return invalid("source %q feeds unknown stream %q", s.Name, s.Stream)
		}
	}
	return nil
}

func (s StreamConfig) schema() (*event.Schema, error) {
	return schemaOf(s.Schema)
}

func schemaOf(attrs []AttributeConfig) (*event.Schema, error) {
	if len(attrs) == 0 {
		return nil, fmt.Errorf("empty schema")
	}
	seen := make(map[string]bool, len(attrs))
	out := make([]event.Attribute, len(attrs))
	for i, a := range attrs {
		if a.Name == "" {
			return nil, fmt.Errorf("attribute %d has no name", i)
		}
		if seen[a.Name] {
			return nil, fmt.Errorf("duplicate attribute %q", a.Name)
		}
		seen[a.Name] = true
		t, err := event.ParseType(a.Type)
		if err != nil {
			return nil, fmt.Errorf("attribute %q: %w", a.Name, err)
		}
		out[i] = event.Attribute{Name: a.Name, Type: t}
	}
	return event.NewSchema(out...), nil
}

func (op OperatorConfig) validate() error {
	inputs := 1
	switch op.Type {
	case OperatorTimeWindow, OperatorCountWindow, OperatorPartitionedCountWindow:
		def, err := op.definition()
		if err != nil {
			return err
		}
		if err := def.Validate(); err != nil {
			return err
		}
	case OperatorJoin:
		inputs = 2
	case OperatorFilter:
		if op.Predicate == "" {
			return fmt.Errorf("filter requires a predicate")
		}
	case OperatorProjection:
		attrs := make([]AttributeConfig, len(op.Projection))
		for i, p := range op.Projection {
			if p.Expression == "" {
				return fmt.Errorf("attribute %q has no expression", p.Name)
			}
			attrs[i] = AttributeConfig{Name: p.Name, Type: p.Type}
		}
		if _, err := schemaOf(attrs); err != nil {
			return err
		}
	default:
		return fmt.Errorf("unsupported operator type %q", op.Type)
	}
	if len(op.Inputs) != inputs {
		return fmt.Errorf("%s takes %d input(s), got %d", op.Type, inputs, len(op.Inputs))
	}
	return nil
}

func (op OperatorConfig) definition() (window.Definition, error) {
	kind, err := window.ParseKind(string(op.Type))
	if err != nil {
		return window.Definition{}, err
	}
	return window.Definition{Kind: kind, Size: op.Size, Jump: op.Jump, PartitionBy: op.PartitionBy}, nil
}
