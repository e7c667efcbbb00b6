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
	"bytes"
	"fmt"
	"strconv"

	"github.com/goccy/go-json"
)

// wireEvent is the JSON representation of an event.
type wireEvent struct {
	T1      int64  `json:"t1"`
	T2      *int64 `json:"t2,omitempty"`
	Payload []any  `json:"payload"`
}

// Marshal encodes the event as JSON.
func Marshal(e *Event) ([]byte, error) {
	t2 := e.t2
	return json.Marshal(wireEvent{T1: e.t1, T2: &t2, Payload: e.payload})
}

// MarshalNamed encodes the event as JSON with the payload as an object keyed by attribute name.
func MarshalNamed(e *Event, schema *Schema) ([]byte, error) {
	if schema.Len() != e.Len() {
		return nil, fmt.Errorf("%w: expected %d attributes, got %d", ErrSchemaMismatch, schema.Len(), e.Len())
	}
	fields := make(map[string]any, e.Len())
	for i, v := range e.payload {
		fields[schema.At(i).Name] = v
	}
	return json.Marshal(struct {
		T1      int64          `json:"t1"`
		T2      int64          `json:"t2"`
		Payload map[string]any `json:"payload"`
	}{T1: e.t1, T2: e.t2, Payload: fields})
}

// Unmarshal decodes a JSON encoded event and coerces the payload to the types of the schema.
func Unmarshal(data []byte, schema *Schema) (*Event, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var w wireEvent
	if err := dec.Decode(&w); err != nil {
		return nil, fmt.Errorf("failed to decode event, %w", err)
	}
	if len(w.Payload) != schema.Len() {
		return nil, fmt.Errorf("%w: expected %d attributes, got %d", ErrSchemaMismatch, schema.Len(), len(w.Payload))
	}
	payload := make([]any, len(w.Payload))
	for i, raw := range w.Payload {
		v, err := coerce(raw, schema.At(i).Type)
		if err != nil {
			return nil, fmt.Errorf("%w: attribute %q, %v", ErrSchemaMismatch, schema.At(i).Name, err)
		}
		payload[i] = v
	}
	// a missing t2 denotes a chronon
	if w.T2 == nil {
		return NewChronon(w.T1, payload...)
	}
	return New(w.T1, *w.T2, payload...)
}

func coerce(raw any, t Type) (any, error) {
	switch t {
	case Int:
		switch v := raw.(type) {
		case json.Number:
			return strconv.ParseInt(v.String(), 10, 64)
		case string:
			return strconv.ParseInt(v, 10, 64)
		}
	case Double:
		switch v := raw.(type) {
		case json.Number:
			return strconv.ParseFloat(v.String(), 64)
		case string:
			return strconv.ParseFloat(v, 64)
		}
	case String:
		switch v := raw.(type) {
		case string:
			return v, nil
		case json.Number:
			return v.String(), nil
		}
	case Bool:
		switch v := raw.(type) {
		case bool:
			return v, nil
		case string:
			return strconv.ParseBool(v)
		}
	}
	return nil, fmt.Errorf("cannot convert %v (%T) to %s", raw, raw, t)
}
