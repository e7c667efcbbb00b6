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

package count

import (
	"fmt"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sigmod2021-index-pattern/index-pattern-sub002/pkg/event"
	"github.com/sigmod2021-index-pattern/index-pattern-sub002/pkg/operator"
	"github.com/sigmod2021-index-pattern/index-pattern-sub002/pkg/window"
)

var schema = event.NewSchema(event.Attribute{Name: "seq", Type: event.Int})

type interval struct {
	seq    int64
	t1, t2 int64
}

func newWindow(t *testing.T, size, jump int64) (*Window, *[]interval) {
	w, err := New(schema, size, jump)
	require.NoError(t, err)
	var out []interval
	w.SetCallback(func(e *event.Event) {
		out = append(out, interval{seq: e.Get(0).(int64), t1: e.T1(), t2: e.T2()})
	})
	return w, &out
}

// feed pushes n events with seq i and start time i*step, for i in 1..n.
func feed(t *testing.T, w *Window, n int, step int64) {
	for i := 1; i <= n; i++ {
		require.NoError(t, w.Process(operator.Left, event.Chronon(int64(i)*step, int64(i))))
	}
}

func TestNew(t *testing.T) {
	tests := []struct {
		size, jump int64
		delay      int
	}{
		{size: 3, jump: 1, delay: 0},
		{size: 4, jump: 2, delay: 0},
		{size: 3, jump: 2, delay: 1},
		{size: 5, jump: 3, delay: 1},
		{size: 1, jump: 3, delay: 2},
		{size: 2, jump: 5, delay: 3},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprintf("size=%d,jump=%d", tt.size, tt.jump), func(t *testing.T) {
			w, err := New(schema, tt.size, tt.jump)
			require.NoError(t, err)
			assert.Equal(t, tt.delay, w.Delay())
			assert.Equal(t, int64(math.MinInt64), w.TStart())
			assert.Same(t, schema, w.Schema())
		})
	}
	_, err := New(schema, 0, 1)
	assert.ErrorIs(t, err, window.ErrInvalidDefinition)
	_, err = New(schema, 3, 0)
	assert.ErrorIs(t, err, window.ErrInvalidDefinition)
}

func TestWindow_Conservation(t *testing.T) {
	w, out := newWindow(t, 3, 1)
	feed(t, w, 10, 1)
	assert.Len(t, *out, 7)
	assert.Equal(t, 3, w.Pending())
	require.NoError(t, w.FlushState())
	assert.Equal(t, 0, w.Pending())
	require.Len(t, *out, 10)

	want := []interval{
		{1, 1, 4}, {2, 2, 5}, {3, 3, 6}, {4, 4, 7}, {5, 5, 8}, {6, 6, 9}, {7, 7, 10},
		{8, 8, 10}, {9, 9, 10}, {10, 10, 11},
	}
	assert.Equal(t, want, *out)
}

func TestWindow_ConservationProperty(t *testing.T) {
	for size := int64(1); size <= 6; size++ {
		for jump := int64(1); jump <= size; jump++ {
			for n := 0; n <= 25; n++ {
				w, out := newWindow(t, size, jump)
				feed(t, w, n, 10)
				require.NoError(t, w.FlushState())

				require.Len(t, *out, n, "size=%d jump=%d n=%d", size, jump, n)
				seen := make(map[int64]bool)
				last := int64(math.MinInt64)
				for _, iv := range *out {
					assert.False(t, seen[iv.seq], "size=%d jump=%d n=%d: %d emitted twice", size, jump, n, iv.seq)
					seen[iv.seq] = true
					assert.Less(t, iv.t1, iv.t2)
					assert.GreaterOrEqual(t, iv.t1, last, "size=%d jump=%d n=%d: output not ordered", size, jump, n)
					last = iv.t1
				}
			}
		}
	}
}

func TestWindow_SizeMultipleOfJump(t *testing.T) {
	w, out := newWindow(t, 4, 2)
	feed(t, w, 8, 10)
	// windows are evaluated at every second event, e1 and e2 first belong to the window closing at e2
	// and leave it when e6 arrives
	want := []interval{{1, 20, 60}, {2, 20, 60}, {3, 40, 80}, {4, 40, 80}}
	assert.Equal(t, want, *out)
}

func TestWindow_Delayed(t *testing.T) {
	w, out := newWindow(t, 3, 2)
	feed(t, w, 8, 10)
	want := []interval{{1, 20, 40}, {2, 20, 60}, {3, 40, 60}, {4, 40, 80}, {5, 60, 80}}
	assert.Equal(t, want, *out)
	assert.Equal(t, int64(60), w.TStart())
}

func TestWindow_DelayNotEqualToFirstGroup(t *testing.T) {
	w, out := newWindow(t, 5, 3)
	feed(t, w, 9, 1)
	// e2 and e3 entered the window evaluated at e3, e4 only the one evaluated at e6
	want := []interval{{1, 3, 6}, {2, 3, 9}, {3, 3, 9}, {4, 6, 9}}
	assert.Equal(t, want, *out)
}

func TestWindow_JumpGreaterThanSize(t *testing.T) {
	w, out := newWindow(t, 1, 3)
	feed(t, w, 12, 1)
	// only every third event is ever part of an evaluated window
	want := []interval{{3, 3, 6}, {6, 6, 9}, {9, 9, 12}}
	assert.Equal(t, want, *out)

	require.NoError(t, w.FlushState())
	assert.Equal(t, interval{12, 12, 13}, (*out)[len(*out)-1])
}

func TestWindow_SharedTimestamps(t *testing.T) {
	w, out := newWindow(t, 2, 2)
	for i := int64(1); i <= 6; i++ {
		require.NoError(t, w.Process(operator.Left, event.Chronon(5, i)))
	}
	// every event shares the same start time, so every window is empty
	assert.Empty(t, *out)
	require.NoError(t, w.FlushState())
	require.Len(t, *out, 2)
	assert.Equal(t, interval{5, 5, 6}, (*out)[0])
}

func TestWindow_FlushBeforeFirstWindow(t *testing.T) {
	w, out := newWindow(t, 5, 1)
	feed(t, w, 2, 10)
	assert.Empty(t, *out)
	assert.Equal(t, int64(10), w.LowWatermark())
	require.NoError(t, w.FlushState())
	assert.Equal(t, []interval{{1, 10, 20}, {2, 20, 21}}, *out)
	assert.Equal(t, int64(math.MaxInt64), w.LowWatermark())
	// flushing an empty window does nothing
	require.NoError(t, w.FlushState())
	assert.Len(t, *out, 2)
}

func TestWindow_LowWatermark(t *testing.T) {
	w, out := newWindow(t, 2, 1)
	feed(t, w, 5, 10)
	require.NotEmpty(t, *out)
	assert.Equal(t, w.TStart(), w.LowWatermark())
	require.NoError(t, w.FlushState())
	for _, iv := range *out {
		assert.GreaterOrEqual(t, iv.t2, iv.t1)
	}
}

func TestWindow_FlushAtEndOfTime(t *testing.T) {
	w, out := newWindow(t, 3, 1)
	for i := int64(1); i <= 4; i++ {
		require.NoError(t, w.Process(operator.Left, event.Chronon(event.MaxT1-4+i, i)))
	}
	require.NoError(t, w.FlushState())
	require.Len(t, *out, 4)
	last := (*out)[3]
	assert.Equal(t, interval{4, event.MaxT1, math.MaxInt64}, last)
	for _, iv := range *out {
		assert.Less(t, iv.t1, iv.t2)
	}
}

func TestWindow_InvalidPort(t *testing.T) {
	w, _ := newWindow(t, 2, 1)
	assert.ErrorIs(t, w.Process(operator.Right, event.Chronon(1, int64(1))), operator.ErrInvalidPort)
}

func TestWindow_InsufficientData(t *testing.T) {
	w, _ := newWindow(t, 2, 1)
	_, err := w.at(0)
	assert.ErrorIs(t, err, ErrInsufficientData)
	feed(t, w, 1, 1)
	_, err = w.at(1)
	assert.ErrorIs(t, err, ErrInsufficientData)
	e, err := w.at(0)
	require.NoError(t, err)
	assert.Equal(t, int64(1), e.T1())
}

func TestWindow_BufferStaysBounded(t *testing.T) {
	w, _ := newWindow(t, 3, 2)
	for i := 1; i <= 1000; i++ {
		require.NoError(t, w.Process(operator.Left, event.Chronon(int64(i), int64(i))))
		assert.LessOrEqual(t, w.Pending(), 5)
		assert.LessOrEqual(t, len(w.buf), 10)
	}
}
