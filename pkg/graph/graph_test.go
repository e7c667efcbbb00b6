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

package graph

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/sigmod2021-index-pattern/index-pattern-sub002/pkg/correlator"
	"github.com/sigmod2021-index-pattern/index-pattern-sub002/pkg/event"
	"github.com/sigmod2021-index-pattern/index-pattern-sub002/pkg/operator"
	"github.com/sigmod2021-index-pattern/index-pattern-sub002/pkg/window/count"
	"github.com/sigmod2021-index-pattern/index-pattern-sub002/pkg/window/tumbling"
)

var schema = event.NewSchema(event.Attribute{Name: "v", Type: event.Int})

type mockSink struct {
	mock.Mock
}

func (m *mockSink) Name() string {
	return "mock"
}

func (m *mockSink) Write(e *event.Event) error {
	return m.Called(e).Error(0)
}

func (m *mockSink) Close() error {
	return m.Called().Error(0)
}

// failing errors out on the n-th event.
type failing struct {
	operator.Emitter
	n, seen int
}

func (f *failing) Schema() *event.Schema { return schema }
func (f *failing) Process(_ operator.Port, e *event.Event) error {
	f.seen++
	if f.seen == f.n {
		return errors.New("boom")
	}
	f.Emit(e)
	return nil
}
func (f *failing) FlushState() error { return nil }

func newGraph() *Graph {
	return New(WithLogger(zap.NewNop().Sugar()))
}

func collect(t *testing.T, g *Graph, id NodeID) *[]*event.Event {
	var out []*event.Event
	require.NoError(t, g.Tap(id, func(e *event.Event) {
		out = append(out, e)
	}))
	return &out
}

func TestGraph_AddErrors(t *testing.T) {
	g := newGraph()
	in, err := g.AddStream("in", schema)
	require.NoError(t, err)
	_, err = g.AddStream("in", schema)
	assert.ErrorIs(t, err, ErrDuplicateName)

	w, err := tumbling.New(schema, 2, 2)
	require.NoError(t, err)
	_, err = g.AddOperator("w", w)
	assert.Error(t, err)
	_, err = g.AddOperator("w", w, NodeID(42))
	assert.ErrorIs(t, err, ErrUnknownNode)

	other, err := g.AddStream("other", event.NewSchema(event.Attribute{Name: "s", Type: event.String}))
	require.NoError(t, err)
	_, err = g.AddOperator("w", w, other)
	assert.ErrorIs(t, err, event.ErrSchemaMismatch)

	id, err := g.AddOperator("w", w, in)
	require.NoError(t, err)
	_, err = g.Channel(id)
	assert.ErrorIs(t, err, ErrNotAStream)
	assert.ErrorIs(t, g.Push(id, event.Chronon(1, int64(1))), ErrNotAStream)
	assert.Equal(t, 3, g.Len())
}

func TestGraph_FanOut(t *testing.T) {
	g := newGraph()
	in, err := g.AddStream("in", schema)
	require.NoError(t, err)
	tw, err := tumbling.New(schema, 4, 2)
	require.NoError(t, err)
	a, err := g.AddOperator("time", tw, in)
	require.NoError(t, err)
	cw, err := count.New(schema, 1, 1)
	require.NoError(t, err)
	b, err := g.AddOperator("count", cw, in)
	require.NoError(t, err)

	var order []string
	require.NoError(t, g.Tap(in, func(*event.Event) { order = append(order, "tap") }))
	require.NoError(t, g.Tap(a, func(*event.Event) { order = append(order, "time") }))
	require.NoError(t, g.Tap(b, func(*event.Event) { order = append(order, "count") }))

	sink := &mockSink{}
	sink.On("Write", mock.Anything).Run(func(mock.Arguments) { order = append(order, "sink") }).Return(nil)
	require.NoError(t, g.AttachSink(in, sink))

	ch, err := g.Channel(in)
	require.NoError(t, err)
	assert.Equal(t, "in", ch.Name())
	assert.Equal(t, schema, ch.Schema())
	require.NoError(t, ch.Push(event.Chronon(3, int64(1))))
	assert.Equal(t, []string{"sink", "tap", "time"}, order)
	require.NoError(t, ch.Push(event.Chronon(4, int64(2))))
	// the count window of size one emits the first event once the second arrives
	assert.Equal(t, []string{"sink", "tap", "time", "sink", "tap", "time", "count"}, order)
	sink.AssertNumberOfCalls(t, "Write", 2)

	assert.ErrorIs(t, ch.Push(event.Chronon(5, "x")), event.ErrSchemaMismatch)
}

func TestGraph_Join(t *testing.T) {
	g := newGraph()
	left, err := g.AddStream("left", schema)
	require.NoError(t, err)
	rs := event.NewSchema(event.Attribute{Name: "s", Type: event.String})
	right, err := g.AddStream("right", rs)
	require.NoError(t, err)
	c, err := correlator.New(schema, rs, func(event.Tuple) bool { return true }, correlator.WithLogger(zap.NewNop().Sugar()))
	require.NoError(t, err)

	_, err = g.AddOperator("join", c, right, left)
	assert.ErrorIs(t, err, event.ErrSchemaMismatch)
	j, err := g.AddOperator("join", c, left, right)
	require.NoError(t, err)
	out := collect(t, g, j)
	require.NoError(t, g.Acquire(j))

	l1, _ := event.New(0, 5, int64(1))
	l2, _ := event.New(5, 10, int64(2))
	r1, _ := event.New(2, 7, "x")
	require.NoError(t, g.Push(left, l1))
	require.NoError(t, g.Push(right, r1))
	require.NoError(t, g.Push(left, l2))
	require.Len(t, *out, 1)

	require.NoError(t, g.Release(j, true))
	require.Len(t, *out, 2)
	assert.Equal(t, int64(5), (*out)[1].T1())
	assert.Equal(t, int64(7), (*out)[1].T2())
	assert.Equal(t, 0, g.Len())
}

func TestGraph_HaltedNode(t *testing.T) {
	g := newGraph()
	in, err := g.AddStream("in", schema)
	require.NoError(t, err)
	bad, err := g.AddOperator("bad", &failing{n: 2}, in)
	require.NoError(t, err)
	good, err := g.AddOperator("good", &failing{n: -1}, in)
	require.NoError(t, err)
	badOut, goodOut := collect(t, g, bad), collect(t, g, good)

	for i := int64(0); i < 4; i++ {
		require.NoError(t, g.Push(in, event.Chronon(i, i)))
	}
	assert.Len(t, *badOut, 1)
	assert.Len(t, *goodOut, 4)
	assert.EqualError(t, g.Err(bad), "boom")
	assert.NoError(t, g.Err(good))
	assert.Error(t, g.Halted())
}

func TestGraph_ReferenceCounting(t *testing.T) {
	g := newGraph()
	in, err := g.AddStream("in", schema)
	require.NoError(t, err)
	require.NoError(t, g.Acquire(in))
	cw, err := count.New(schema, 2, 1)
	require.NoError(t, err)
	w, err := g.AddOperator("w", cw, in)
	require.NoError(t, err)
	out := collect(t, g, w)

	// two queries share the window
	require.NoError(t, g.Acquire(w))
	require.NoError(t, g.Acquire(w))
	sink := &mockSink{}
	sink.On("Write", mock.Anything).Return(nil)
	sink.On("Close").Return(errors.New("closed twice"))
	require.NoError(t, g.AttachSink(w, sink))

	for i := int64(0); i < 3; i++ {
		require.NoError(t, g.Push(in, event.Chronon(i, i)))
	}
	n := len(*out)

	require.NoError(t, g.Release(w, true))
	assert.Equal(t, 2, g.Len())
	assert.Len(t, *out, n)
	sink.AssertNotCalled(t, "Close")

	err = g.Release(w, true)
	assert.ErrorContains(t, err, "closed twice")
	assert.Greater(t, len(*out), n)
	sink.AssertCalled(t, "Close")
	_, ok := g.Lookup("w")
	assert.False(t, ok)
	// the stream is still held by its own reference
	assert.Equal(t, 1, g.Len())
	_, err = g.Schema(w)
	assert.ErrorIs(t, err, ErrUnknownNode)

	require.NoError(t, g.Release(in, false))
	assert.Equal(t, 0, g.Len())
	assert.ErrorIs(t, g.Release(in, false), ErrUnknownNode)
}

func TestGraph_ReleaseNotAcquired(t *testing.T) {
	g := newGraph()
	in, err := g.AddStream("in", schema)
	require.NoError(t, err)
	assert.ErrorIs(t, g.Release(in, false), ErrNotAcquired)
}

func TestGraph_CloseFlushesUpstreamFirst(t *testing.T) {
	g := newGraph()
	in, err := g.AddStream("in", schema)
	require.NoError(t, err)
	first, err := count.New(schema, 2, 1)
	require.NoError(t, err)
	a, err := g.AddOperator("a", first, in)
	require.NoError(t, err)
	second, err := count.New(schema, 1, 1)
	require.NoError(t, err)
	b, err := g.AddOperator("b", second, a)
	require.NoError(t, err)
	out := collect(t, g, b)

	require.NoError(t, g.Push(in, event.Chronon(0, int64(0))))
	assert.Empty(t, *out)
	require.NoError(t, g.Close(true))
	// the event buffered in a is flushed into b before b is flushed
	assert.Len(t, *out, 1)
	assert.Equal(t, 0, g.Len())
}

func TestGraph_ReleaseAll(t *testing.T) {
	g := newGraph()
	in, err := g.AddStream("in", schema)
	require.NoError(t, err)
	require.NoError(t, g.Acquire(in))
	shared, err := count.New(schema, 2, 1)
	require.NoError(t, err)
	u, err := g.AddOperator("shared", shared, in)
	require.NoError(t, err)
	var leaves []NodeID
	var outs []*[]*event.Event
	for _, name := range []string{"a", "b"} {
		cw, err := count.New(schema, 1, 1)
		require.NoError(t, err)
		id, err := g.AddOperator(name, cw, u)
		require.NoError(t, err)
		require.NoError(t, g.Acquire(id))
		leaves = append(leaves, id)
		outs = append(outs, collect(t, g, id))
	}

	require.NoError(t, g.Push(in, event.Chronon(0, int64(0))))
	lone, err := g.AddStream("lone", schema)
	require.NoError(t, err)
	require.NoError(t, g.Acquire(lone))
	assert.ErrorIs(t, g.ReleaseAll(false, lone, lone), ErrNotAcquired)
	assert.Equal(t, 5, g.Len())

	require.NoError(t, g.ReleaseAll(true, leaves[0], leaves[1], in, lone))
	// both leaves see what the shared window flushed
	assert.Len(t, *outs[0], 1)
	assert.Len(t, *outs[1], 1)
	assert.Equal(t, 0, g.Len())
}
