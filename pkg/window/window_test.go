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

package window

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDefinition_Validate(t *testing.T) {
	tests := []struct {
		name    string
		def     Definition
		wantErr bool
	}{
		{name: "time", def: Definition{Kind: TimeWindow, Size: 10, Jump: 5}},
		{name: "count jump greater than size", def: Definition{Kind: CountWindow, Size: 1, Jump: 3}},
		{name: "partitioned", def: Definition{Kind: PartitionedCountWindow, Size: 3, Jump: 1, PartitionBy: []string{"k"}}},
		{name: "zero size", def: Definition{Kind: TimeWindow, Size: 0, Jump: 5}, wantErr: true},
		{name: "negative jump", def: Definition{Kind: CountWindow, Size: 3, Jump: -1}, wantErr: true},
		{name: "partitioned without attributes", def: Definition{Kind: PartitionedCountWindow, Size: 3, Jump: 1}, wantErr: true},
		{name: "count with attributes", def: Definition{Kind: CountWindow, Size: 3, Jump: 1, PartitionBy: []string{"k"}}, wantErr: true},
		{name: "unknown kind", def: Definition{Kind: Kind(42), Size: 3, Jump: 1}, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.def.Validate()
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidDefinition)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestParseKind(t *testing.T) {
	for s, want := range map[string]Kind{"timeWindow": TimeWindow, "tumbling": TimeWindow, "countWindow": CountWindow, "partitionedCountWindow": PartitionedCountWindow} {
		got, err := ParseKind(s)
		assert.NoError(t, err)
		assert.Equal(t, want, got)
		assert.Equal(t, got, mustParse(t, got.String()))
	}
	_, err := ParseKind("session")
	assert.ErrorIs(t, err, ErrInvalidDefinition)
}

func mustParse(t *testing.T, s string) Kind {
	k, err := ParseKind(s)
	assert.NoError(t, err)
	return k
}

func TestDefinition_String(t *testing.T) {
	assert.Equal(t, "countWindow(size=3, jump=1)", Definition{Kind: CountWindow, Size: 3, Jump: 1}.String())
	assert.Equal(t, "partitionedCountWindow(size=3, jump=1, partitionBy=a,b)",
		Definition{Kind: PartitionedCountWindow, Size: 3, Jump: 1, PartitionBy: []string{"a", "b"}}.String())
}

func TestFloorDiv(t *testing.T) {
	assert.Equal(t, int64(2), FloorDiv(5, 2))
	assert.Equal(t, int64(2), FloorDiv(4, 2))
	assert.Equal(t, int64(-3), FloorDiv(-5, 2))
	assert.Equal(t, int64(-2), FloorDiv(-4, 2))
	assert.Equal(t, int64(0), FloorDiv(0, 7))
	assert.Equal(t, int64(3), CeilDiv(5, 2))
	assert.Equal(t, int64(2), CeilDiv(4, 2))
	assert.Equal(t, int64(1), CeilDiv(1, 3))
}
