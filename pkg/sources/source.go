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

// Package sources builds the producers feeding the input streams of a query.
package sources

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/sigmod2021-index-pattern/index-pattern-sub002/pkg/event"
	"github.com/sigmod2021-index-pattern/index-pattern-sub002/pkg/sources/file"
	"github.com/sigmod2021-index-pattern/index-pattern-sub002/pkg/sources/generator"
	natssource "github.com/sigmod2021-index-pattern/index-pattern-sub002/pkg/sources/nats"
)

// Source produces the events of one input stream.
type Source interface {
	Name() string
	// Run calls emit for every event, in order, until the source is exhausted or ctx is done. An error
	// returned by emit stops the source and is returned.
	Run(ctx context.Context, emit func(e *event.Event) error) error
	Close() error
}

type Type string

const (
	TypeGenerator Type = "generator"
	TypeFile      Type = "file"
	TypeNats      Type = "nats"
)

// Config describes a source. Exactly the section matching Type is read.
type Config struct {
	Name string `mapstructure:"name"`
	Type Type   `mapstructure:"type"`
	// Stream is the name of the input stream fed by the source
	Stream string `mapstructure:"stream"`

	Generator *generator.Config  `mapstructure:"generator"`
	File      *file.Config       `mapstructure:"file"`
	Nats      *natssource.Config `mapstructure:"nats"`
}

// Validate checks the configuration without connecting anywhere.
func (c Config) Validate() error {
	if c.Name == "" {
		return fmt.Errorf("source without a name")
	}
	if c.Stream == "" {
		return fmt.Errorf("source %q does not feed a stream", c.Name)
	}
	switch c.Type {
	case TypeGenerator:
		if c.Generator == nil {
			return fmt.Errorf("source %q: missing generator section", c.Name)
		}
		return c.Generator.Validate()
	case TypeFile:
		if c.File == nil {
			return fmt.Errorf("source %q: missing file section", c.Name)
		}
		return c.File.Validate()
	case TypeNats:
		if c.Nats == nil {
			return fmt.Errorf("source %q: missing nats section", c.Name)
		}
		return c.Nats.Validate()
	default:
		return fmt.Errorf("source %q: unsupported type %q", c.Name, c.Type)
	}
}

// New builds the source described by cfg producing events of the given schema.
func New(cfg Config, schema *event.Schema, log *zap.SugaredLogger) (Source, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	var (
		s   Source
		err error
	)
	switch cfg.Type {
	case TypeGenerator:
		s, err = generator.New(cfg.Name, schema, *cfg.Generator, generator.WithLogger(log))
	case TypeFile:
		s, err = file.New(cfg.Name, schema, *cfg.File, file.WithLogger(log))
	case TypeNats:
		s, err = natssource.New(cfg.Name, schema, *cfg.Nats, natssource.WithLogger(log))
	}
	if err != nil {
		return nil, fmt.Errorf("failed to build source %q, %w", cfg.Name, err)
	}
	return s, nil
}
