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

package strategy

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sigmod2021-index-pattern/index-pattern-sub002/pkg/event"
	"github.com/sigmod2021-index-pattern/index-pattern-sub002/pkg/window"
	"github.com/sigmod2021-index-pattern/index-pattern-sub002/pkg/window/count"
	"github.com/sigmod2021-index-pattern/index-pattern-sub002/pkg/window/partitioned"
	"github.com/sigmod2021-index-pattern/index-pattern-sub002/pkg/window/tumbling"
)

func TestNew(t *testing.T) {
	schema := event.NewSchema(event.Attribute{Name: "k", Type: event.String})

	op, err := New(window.Definition{Kind: window.TimeWindow, Size: 10, Jump: 10}, schema)
	require.NoError(t, err)
	assert.IsType(t, &tumbling.Window{}, op)

	op, err = New(window.Definition{Kind: window.CountWindow, Size: 3, Jump: 1}, schema)
	require.NoError(t, err)
	assert.IsType(t, &count.Window{}, op)

	op, err = New(window.Definition{Kind: window.PartitionedCountWindow, Size: 3, Jump: 1, PartitionBy: []string{"k"}}, schema)
	require.NoError(t, err)
	assert.IsType(t, &partitioned.Window{}, op)
	assert.Same(t, schema, op.Schema())

	_, err = New(window.Definition{Kind: window.PartitionedCountWindow, Size: 3, Jump: 1, PartitionBy: []string{"x"}}, schema)
	assert.ErrorIs(t, err, window.ErrUnknownAttribute)

	_, err = New(window.Definition{Kind: window.Kind(9), Size: 3, Jump: 1}, schema)
	assert.ErrorIs(t, err, window.ErrInvalidDefinition)
}
