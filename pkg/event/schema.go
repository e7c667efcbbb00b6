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

package event

import (
	"fmt"
	"strings"
)

// Type is the type of an attribute value.
type Type int

const (
	Int Type = iota
	Double
	String
	Bool
)

func (t Type) String() string {
	switch t {
	case Int:
		return "int"
	case Double:
		return "double"
	case String:
		return "string"
	case Bool:
		return "bool"
	default:
		return "unknown"
	}
}

// ParseType returns the Type for the given name.
func ParseType(s string) (Type, error) {
	switch strings.ToLower(s) {
	case "int", "int64", "long":
		return Int, nil
	case "double", "float", "float64":
		return Double, nil
	case "string":
		return String, nil
	case "bool", "boolean":
		return Bool, nil
	default:
		return 0, fmt.Errorf("unknown attribute type %q", s)
	}
}

// Zero returns the zero value of the type.
func (t Type) Zero() any {
	switch t {
	case Int:
		return int64(0)
	case Double:
		return float64(0)
	case String:
		return ""
	case Bool:
		return false
	default:
		return nil
	}
}

// Accepts returns true if v is a value of the type.
func (t Type) Accepts(v any) bool {
	switch v.(type) {
	case int64:
		return t == Int
	case float64:
		return t == Double
	case string:
		return t == String
	case bool:
		return t == Bool
	default:
		return false
	}
}

// Attribute is a named, typed position in a payload.
type Attribute struct {
	Name string
	Type Type
}

// Schema describes the payload of the events flowing through a channel.
type Schema struct {
	attrs []Attribute
}

// NewSchema returns a schema with the given attributes.
func NewSchema(attrs ...Attribute) *Schema {
	s := &Schema{attrs: make([]Attribute, len(attrs))}
	copy(s.attrs, attrs)
	return s
}

// Len returns the number of attributes.
func (s *Schema) Len() int {
	return len(s.attrs)
}

// At returns the attribute at position i.
func (s *Schema) At(i int) Attribute {
	return s.attrs[i]
}

// Attributes returns a copy of the attributes.
func (s *Schema) Attributes() []Attribute {
	r := make([]Attribute, len(s.attrs))
	copy(r, s.attrs)
	return r
}

// Index returns the position of the first attribute with the given name.
func (s *Schema) Index(name string) (int, bool) {
	for i, a := range s.attrs {
		if a.Name == name {
			return i, true
		}
	}
	return -1, false
}

// Concat returns the schema of a compound of events of s and other.
func (s *Schema) Concat(other *Schema) *Schema {
	attrs := make([]Attribute, 0, s.Len()+other.Len())
	attrs = append(attrs, s.attrs...)
	attrs = append(attrs, other.attrs...)
	return &Schema{attrs: attrs}
}

// Validate checks that payload matches the schema.
func (s *Schema) Validate(payload []any) error {
	if len(payload) != len(s.attrs) {
		return fmt.Errorf("%w: expected %d attributes, got %d", ErrSchemaMismatch, len(s.attrs), len(payload))
	}
	for i, v := range payload {
		if !s.attrs[i].Type.Accepts(v) {
			return fmt.Errorf("%w: attribute %q expects %s, got %T", ErrSchemaMismatch, s.attrs[i].Name, s.attrs[i].Type, v)
		}
	}
	return nil
}

// Equal returns true if both schemas have the same attributes in the same order.
func (s *Schema) Equal(other *Schema) bool {
	if s.Len() != other.Len() {
		return false
	}
	for i := range s.attrs {
		if s.attrs[i] != other.attrs[i] {
			return false
		}
	}
	return true
}

func (s *Schema) String() string {
	parts := make([]string, len(s.attrs))
	for i, a := range s.attrs {
		parts[i] = a.Name + ":" + a.Type.String()
	}
	return "(" + strings.Join(parts, ", ") + ")"
}
