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

// Package expr compiles the textual predicates and value expressions of a query against event schemas.
//
// Attributes are exposed to an expression by name. Expressions over the compound of two inputs can also use the
// qualified names left_<name> and right_<name>; the bare name is only bound when it is not ambiguous. Names are
// checked at compile time against typed zero values, so a typo is a configuration error rather than a runtime one.
package expr

import (
	"fmt"
	"strings"

	"github.com/antonmedv/expr"
	"github.com/antonmedv/expr/vm"
	lru "github.com/hashicorp/golang-lru/v2"
	"go.uber.org/zap"

	"github.com/sigmod2021-index-pattern/index-pattern-sub002/pkg/event"
	"github.com/sigmod2021-index-pattern/index-pattern-sub002/pkg/metrics"
	"github.com/sigmod2021-index-pattern/index-pattern-sub002/pkg/operator"
	"github.com/sigmod2021-index-pattern/index-pattern-sub002/pkg/shared/logging"
)

const (
	// DefaultCacheSize is the number of compiled programs a Compiler keeps.
	DefaultCacheSize = 256

	kindPredicate = "predicate"
	kindValue     = "value"
)

// binding maps a name of the environment to a position of the tuple.
type binding struct {
	name  string
	index int
}

type Option func(*Compiler) error

// WithLogger sets the logger
func WithLogger(log *zap.SugaredLogger) Option {
	return func(c *Compiler) error {
		c.log = log
		return nil
	}
}

// WithCacheSize sets the number of compiled programs to keep
func WithCacheSize(size int) Option {
	return func(c *Compiler) error {
		if size <= 0 {
			return fmt.Errorf("invalid cache size %d", size)
		}
		c.cacheSize = size
		return nil
	}
}

// Compiler compiles expressions into predicates and value functions. Compiled programs are cached by expression
// and input schemas. It is safe for concurrent use.
type Compiler struct {
	cacheSize int
	cache     *lru.Cache[string, *vm.Program]
	log       *zap.SugaredLogger
}

// NewCompiler returns a Compiler.
func NewCompiler(opts ...Option) (*Compiler, error) {
	c := &Compiler{cacheSize: DefaultCacheSize}
	for _, o := range opts {
		if err := o(c); err != nil {
			return nil, err
		}
	}
	if c.log == nil {
		c.log = logging.NewLogger()
	}
	cache, err := lru.New[string, *vm.Program](c.cacheSize)
	if err != nil {
		return nil, err
	}
	c.cache = cache
	return c, nil
}

// Predicate compiles a boolean expression over events of the given schemas. With two schemas the predicate reads
// the compound of a left and a right event. An evaluation that fails at runtime is false.
func (c *Compiler) Predicate(expression string, schemas ...*event.Schema) (operator.Predicate, error) {
	bindings, err := bind(schemas)
	if err != nil {
		return nil, err
	}
	program, err := c.compile(kindPredicate, expression, schemas, bindings, expr.AsBool())
	if err != nil {
		return nil, err
	}
	return func(t event.Tuple) bool {
		out, err := expr.Run(program, envOf(t, bindings))
		if err != nil {
			metrics.ExpressionErrors.WithLabelValues(kindPredicate).Inc()
			c.log.Debugw("Failed to evaluate predicate", zap.String("expression", expression), zap.Error(err))
			return false
		}
		b, _ := out.(bool)
		return b
	}, nil
}

// Value compiles an expression producing a value of type typ over events of the given schemas.
func (c *Compiler) Value(expression string, typ event.Type, schemas ...*event.Schema) (operator.ValueFunc, error) {
	bindings, err := bind(schemas)
	if err != nil {
		return nil, err
	}
	program, err := c.compile(kindValue, expression, schemas, bindings)
	if err != nil {
		return nil, err
	}
	return func(t event.Tuple) (any, error) {
		out, err := expr.Run(program, envOf(t, bindings))
		if err != nil {
			metrics.ExpressionErrors.WithLabelValues(kindValue).Inc()
			return nil, fmt.Errorf("unable to evaluate expression '%s': %w", expression, err)
		}
		v, err := convert(out, typ)
		if err != nil {
			metrics.ExpressionErrors.WithLabelValues(kindValue).Inc()
			return nil, fmt.Errorf("expression '%s': %w", expression, err)
		}
		return v, nil
	}, nil
}

func (c *Compiler) compile(kind, expression string, schemas []*event.Schema, bindings []binding, opts ...expr.Option) (*vm.Program, error) {
	key := cacheKey(kind, expression, schemas)
	if p, ok := c.cache.Get(key); ok {
		return p, nil
	}
	sample := getFuncMap(len(bindings))
	for _, b := range bindings {
		sample[b.name] = attributeAt(schemas, b.index).Type.Zero()
	}
	program, err := expr.Compile(expression, append([]expr.Option{expr.Env(sample)}, opts...)...)
	if err != nil {
		return nil, fmt.Errorf("unable to compile expression '%s': %w", expression, err)
	}
	c.cache.Add(key, program)
	return program, nil
}

// Len returns the number of cached programs.
func (c *Compiler) Len() int {
	return c.cache.Len()
}

func cacheKey(kind, expression string, schemas []*event.Schema) string {
	var sb strings.Builder
	sb.WriteString(kind)
	sb.WriteByte(0)
	sb.WriteString(expression)
	for _, s := range schemas {
		sb.WriteByte(0)
		sb.WriteString(s.String())
	}
	return sb.String()
}

// bind computes the names under which the attributes of schemas are visible.
func bind(schemas []*event.Schema) ([]binding, error) {
	switch len(schemas) {
	case 1:
		s := schemas[0]
		r := make([]binding, 0, s.Len())
		seen := make(map[string]bool, s.Len())
		for i, a := range s.Attributes() {
			if seen[a.Name] {
				continue
			}
			seen[a.Name] = true
			r = append(r, binding{name: a.Name, index: i})
		}
		return r, nil
	case 2:
		left, right := schemas[0], schemas[1]
		r := make([]binding, 0, 2*(left.Len()+right.Len()))
		for i, a := range left.Attributes() {
			if j, _ := left.Index(a.Name); j == i {
				r = append(r, binding{name: "left_" + a.Name, index: i})
			}
		}
		for i, a := range right.Attributes() {
			if j, _ := right.Index(a.Name); j == i {
				r = append(r, binding{name: "right_" + a.Name, index: left.Len() + i})
			}
		}
		for i, a := range left.Attributes() {
			if j, _ := left.Index(a.Name); j != i {
				continue
			}
			if _, clash := right.Index(a.Name); !clash {
				r = append(r, binding{name: a.Name, index: i})
			}
		}
		for i, a := range right.Attributes() {
			if j, _ := right.Index(a.Name); j != i {
				continue
			}
			if _, clash := left.Index(a.Name); !clash {
				r = append(r, binding{name: a.Name, index: left.Len() + i})
			}
		}
		return r, nil
	default:
		return nil, fmt.Errorf("expressions read one or two inputs, got %d", len(schemas))
	}
}

func attributeAt(schemas []*event.Schema, index int) event.Attribute {
	for _, s := range schemas {
		if index < s.Len() {
			return s.At(index)
		}
		index -= s.Len()
	}
	panic(fmt.Sprintf("attribute %d out of range", index))
}

func envOf(t event.Tuple, bindings []binding) map[string]interface{} {
	env := getFuncMap(len(bindings))
	for _, b := range bindings {
		env[b.name] = t.Get(b.index)
	}
	return env
}

// convert normalizes the result of an expression to the representation of typ.
func convert(v any, typ event.Type) (any, error) {
	switch typ {
	case event.Int:
		switch w := v.(type) {
		case int:
			return int64(w), nil
		case int8:
			return int64(w), nil
		case int16:
			return int64(w), nil
		case int32:
			return int64(w), nil
		case int64:
			return w, nil
		case uint:
			return int64(w), nil
		case uint8:
			return int64(w), nil
		case uint16:
			return int64(w), nil
		case uint32:
			return int64(w), nil
		case uint64:
			return int64(w), nil
		}
	case event.Double:
		switch w := v.(type) {
		case float64:
			return w, nil
		case float32:
			return float64(w), nil
		case int:
			return float64(w), nil
		case int64:
			return float64(w), nil
		case int32:
			return float64(w), nil
		}
	case event.String:
		if s, ok := v.(string); ok {
			return s, nil
		}
	case event.Bool:
		if b, ok := v.(bool); ok {
			return b, nil
		}
	}
	return nil, fmt.Errorf("%w: cannot use %v (%T) as %s", event.ErrSchemaMismatch, v, v, typ)
}
