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

package query

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/sigmod2021-index-pattern/index-pattern-sub002/pkg/event"
	"github.com/sigmod2021-index-pattern/index-pattern-sub002/pkg/graph"
	"github.com/sigmod2021-index-pattern/index-pattern-sub002/pkg/shared/expr"
)

func newCompiler(t *testing.T) *expr.Compiler {
	t.Helper()
	c, err := expr.NewCompiler(expr.WithLogger(zap.NewNop().Sugar()))
	require.NoError(t, err)
	return c
}

func newGraph() *graph.Graph {
	return graph.New(graph.WithLogger(zap.NewNop().Sugar()))
}

func mustEvent(t *testing.T, t1, t2 int64, payload ...any) *event.Event {
	t.Helper()
	e, err := event.New(t1, t2, payload...)
	require.NoError(t, err)
	return e
}

func TestBuild(t *testing.T) {
	cfg, err := Load("testdata/query.yaml")
	require.NoError(t, err)
	g := newGraph()
	q, err := Build(cfg, g, newCompiler(t), zap.NewNop().Sugar())
	require.NoError(t, err)
	assert.Equal(t, "spreads", q.Name())
	// two streams and five operators
	assert.Equal(t, 7, g.Len())
	_, ok := g.Lookup("spreads/matched")
	assert.True(t, ok)
	_, ok = q.Node("matched")
	assert.True(t, ok)

	var out []*event.Event
	require.NoError(t, q.Tap("spread", func(e *event.Event) {
		out = append(out, e)
	}))
	assert.ErrorIs(t, q.Tap("nope", func(*event.Event) {}), graph.ErrUnknownNode)

	trades, ok := q.Input("trades")
	require.True(t, ok)
	quotes, ok := q.Input("quotes")
	require.True(t, ok)
	_, ok = q.Input("matched")
	assert.False(t, ok)

	require.NoError(t, trades.Push(event.Chronon(1, "A", 10.0, int64(150))))
	// filtered out by volume
	require.NoError(t, trades.Push(event.Chronon(2, "B", 5.0, int64(50))))
	require.NoError(t, quotes.Push(mustEvent(t, 3, 6, "A", 9.5)))
	// different symbol
	require.NoError(t, quotes.Push(mustEvent(t, 4, 5, "B", 1.0)))
	assert.Empty(t, out)
	assert.NoError(t, g.Halted())

	require.NoError(t, q.Close(true))
	require.Len(t, out, 1)
	assert.True(t, out[0].Equal(mustEvent(t, 3, 6, "A", 0.5)), out[0].String())
	assert.Equal(t, 0, g.Len())
	assert.NoError(t, q.Close(true))
}

const shared = `
name: %s
streams:
  - name: ticks
    schema: [{name: v, type: int}]
operators:
  - name: pairs
    type: countWindow
    inputs: [ticks]
    size: 2
    jump: 1
`

func parse(t *testing.T, data string) *Config {
	t.Helper()
	cfg, err := Parse([]byte(data))
	require.NoError(t, err)
	return cfg
}

func TestBuild_SharedStream(t *testing.T) {
	g := newGraph()
	c := newCompiler(t)
	q1, err := Build(parse(t, fmt.Sprintf(shared, "one")), g, c, zap.NewNop().Sugar())
	require.NoError(t, err)
	q2, err := Build(parse(t, fmt.Sprintf(shared, "two")), g, c, zap.NewNop().Sugar())
	require.NoError(t, err)
	assert.Equal(t, 3, g.Len())

	in1, _ := q1.Input("ticks")
	in2, _ := q2.Input("ticks")
	assert.Equal(t, in1.ID(), in2.ID())

	var n1, n2 int
	require.NoError(t, q1.Tap("pairs", func(*event.Event) { n1++ }))
	require.NoError(t, q2.Tap("pairs", func(*event.Event) { n2++ }))
	for i := int64(0); i < 4; i++ {
		require.NoError(t, in1.Push(event.Chronon(i, i)))
	}
	assert.Equal(t, n1, n2)
	assert.Positive(t, n1)

	require.NoError(t, q1.Close(false))
	_, ok := g.Lookup("ticks")
	assert.True(t, ok)
	_, ok = g.Lookup("one/pairs")
	assert.False(t, ok)
	require.NoError(t, q2.Close(false))
	assert.Equal(t, 0, g.Len())
}

func TestBuild_Errors(t *testing.T) {
	g := newGraph()
	c := newCompiler(t)
	q, err := Build(parse(t, fmt.Sprintf(shared, "one")), g, c, zap.NewNop().Sugar())
	require.NoError(t, err)

	// same stream name, other schema
	_, err = Build(parse(t, `
name: clash
streams:
  - name: ticks
    schema: [{name: v, type: string}]
`), g, c, zap.NewNop().Sugar())
	assert.ErrorIs(t, err, event.ErrSchemaMismatch)
	assert.Equal(t, 2, g.Len())

	// the stream is released again when a later operator fails to compile
	_, err = Build(parse(t, `
name: broken
streams:
  - name: other
    schema: [{name: v, type: int}]
operators:
  - name: f
    type: filter
    inputs: [other]
    predicate: v >=
`), g, c, zap.NewNop().Sugar())
	assert.Error(t, err)
	assert.Equal(t, 2, g.Len())
	_, ok := g.Lookup("other")
	assert.False(t, ok)

	// unknown partition attribute
	_, err = Build(parse(t, `
name: partitioned
streams:
  - name: ticks
    schema: [{name: v, type: int}]
operators:
  - name: p
    type: partitionedCountWindow
    inputs: [ticks]
    size: 2
    jump: 1
    partitionBy: [k]
`), g, c, zap.NewNop().Sugar())
	assert.Error(t, err)
	assert.Equal(t, 2, g.Len())

	require.NoError(t, q.Close(false))
	assert.Equal(t, 0, g.Len())
}
