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

package correlator

import (
	"fmt"
	"math"
	"math/rand"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/sigmod2021-index-pattern/index-pattern-sub002/pkg/event"
	"github.com/sigmod2021-index-pattern/index-pattern-sub002/pkg/operator"
)

var (
	leftSchema  = event.NewSchema(event.Attribute{Name: "id", Type: event.Int})
	rightSchema = event.NewSchema(event.Attribute{Name: "name", Type: event.String})
)

func always(event.Tuple) bool { return true }

func newCorrelator(t *testing.T, pred operator.Predicate) (*Correlator, *[]*event.Event) {
	c, err := New(leftSchema, rightSchema, pred, WithLogger(zap.NewNop().Sugar()))
	require.NoError(t, err)
	var out []*event.Event
	c.SetCallback(func(e *event.Event) {
		out = append(out, e)
	})
	return c, &out
}

func mustEvent(t *testing.T, t1, t2 int64, payload ...any) *event.Event {
	e, err := event.New(t1, t2, payload...)
	require.NoError(t, err)
	return e
}

func TestNew(t *testing.T) {
	_, err := New(leftSchema, rightSchema, nil)
	assert.Error(t, err)
	_, err = New(nil, rightSchema, always)
	assert.ErrorIs(t, err, event.ErrSchemaMismatch)

	c, err := New(leftSchema, rightSchema, always)
	require.NoError(t, err)
	assert.Equal(t, "(id:int, name:string)", c.Schema().String())
	assert.Equal(t, leftSchema, c.InputSchema(operator.Left))
	assert.Equal(t, rightSchema, c.InputSchema(operator.Right))
	assert.Equal(t, int64(math.MinInt64), c.Watermark())
}

func TestCorrelator_Completeness(t *testing.T) {
	c, out := newCorrelator(t, always)

	require.NoError(t, c.Process(operator.Left, mustEvent(t, 0, 5, int64(1))))
	require.NoError(t, c.Process(operator.Right, mustEvent(t, 2, 7, "x")))
	// the left input has only progressed to 0, [2,5) is held back
	assert.Empty(t, *out)
	assert.Equal(t, 1, c.Pending())

	require.NoError(t, c.Process(operator.Left, mustEvent(t, 5, 10, int64(2))))
	require.Len(t, *out, 1)
	assert.Equal(t, mustEvent(t, 2, 5, int64(1), "x"), (*out)[0])
	assert.Equal(t, int64(2), c.Watermark())

	require.NoError(t, c.FlushState())
	require.Len(t, *out, 2)
	assert.Equal(t, mustEvent(t, 5, 7, int64(2), "x"), (*out)[1])
	assert.Equal(t, 0, c.Pending())
}

func TestCorrelator_Predicate(t *testing.T) {
	c, out := newCorrelator(t, func(tp event.Tuple) bool {
		return tp.Get(0).(int64)%2 == 0 && tp.Get(1).(string) == "keep"
	})
	require.NoError(t, c.Process(operator.Left, mustEvent(t, 0, 10, int64(1))))
	require.NoError(t, c.Process(operator.Left, mustEvent(t, 0, 10, int64(2))))
	require.NoError(t, c.Process(operator.Right, mustEvent(t, 1, 3, "drop")))
	require.NoError(t, c.Process(operator.Right, mustEvent(t, 1, 3, "keep")))
	require.NoError(t, c.FlushState())
	require.Len(t, *out, 1)
	assert.Equal(t, mustEvent(t, 1, 3, int64(2), "keep"), (*out)[0])
}

func TestCorrelator_NoOverlap(t *testing.T) {
	c, out := newCorrelator(t, always)
	require.NoError(t, c.Process(operator.Left, mustEvent(t, 0, 2, int64(1))))
	require.NoError(t, c.Process(operator.Right, mustEvent(t, 2, 4, "a")))
	// adjacent intervals do not overlap, and [0,2) can never match anything again
	assert.Equal(t, 0, c.Retained(operator.Left))
	assert.Equal(t, 1, c.Retained(operator.Right))
	require.NoError(t, c.FlushState())
	assert.Empty(t, *out)
}

func TestCorrelator_InvalidPort(t *testing.T) {
	c, _ := newCorrelator(t, always)
	err := c.Process(operator.Port(2), event.Chronon(0, int64(1)))
	assert.ErrorIs(t, err, operator.ErrInvalidPort)
}

func TestCorrelator_Reset(t *testing.T) {
	c, out := newCorrelator(t, always)
	require.NoError(t, c.Process(operator.Left, mustEvent(t, 0, 5, int64(1))))
	require.NoError(t, c.Process(operator.Right, mustEvent(t, 2, 7, "x")))
	c.Reset()
	assert.Equal(t, 0, c.Pending())
	assert.Equal(t, 0, c.Retained(operator.Left))
	assert.Equal(t, 0, c.Retained(operator.Right))
	assert.Equal(t, int64(math.MinInt64), c.Watermark())
	require.NoError(t, c.FlushState())
	assert.Empty(t, *out)
}

type arrival struct {
	port operator.Port
	e    *event.Event
}

// randomInputs returns n events per side, sorted on T1 per side, randomly interleaved.
func randomInputs(r *rand.Rand, n int) []arrival {
	side := func(port operator.Port) []arrival {
		var ts int64
		var out []arrival
		for i := 0; i < n; i++ {
			ts += r.Int63n(3)
			e, _ := event.New(ts, ts+1+r.Int63n(6), payloadFor(port, i))
			out = append(out, arrival{port: port, e: e})
		}
		return out
	}
	left, right := side(operator.Left), side(operator.Right)
	var merged []arrival
	for len(left) > 0 || len(right) > 0 {
		if len(right) == 0 || (len(left) > 0 && r.Intn(2) == 0) {
			merged, left = append(merged, left[0]), left[1:]
		} else {
			merged, right = append(merged, right[0]), right[1:]
		}
	}
	return merged
}

func payloadFor(port operator.Port, i int) any {
	if port == operator.Left {
		return int64(i)
	}
	return fmt.Sprintf("r%d", i)
}

func bruteForce(inputs []arrival) []string {
	var r []string
	for _, l := range inputs {
		if l.port != operator.Left {
			continue
		}
		for _, rt := range inputs {
			if rt.port != operator.Right || !l.e.Overlaps(rt.e) {
				continue
			}
			m, err := event.NewCompound(l.e, rt.e).Materialize()
			if err == nil {
				r = append(r, m.String())
			}
		}
	}
	sort.Strings(r)
	return r
}

func TestCorrelator_RandomInputs(t *testing.T) {
	r := rand.New(rand.NewSource(11))
	for round := 0; round < 20; round++ {
		inputs := randomInputs(r, 40)
		c, err := New(leftSchema, rightSchema, always, WithLogger(zap.NewNop().Sugar()))
		require.NoError(t, err)

		var (
			got     []string
			emitted []*event.Event
			flushed bool
		)
		c.SetCallback(func(e *event.Event) {
			if !flushed {
				// nothing is emitted ahead of the progress of both inputs
				require.LessOrEqual(t, e.T1(), c.Watermark())
			}
			emitted = append(emitted, e)
			got = append(got, e.String())
		})
		for _, a := range inputs {
			require.NoError(t, c.Process(a.port, a.e))
		}
		flushed = true
		require.NoError(t, c.FlushState())

		for i := 1; i < len(emitted); i++ {
			require.LessOrEqual(t, emitted[i-1].T1(), emitted[i].T1())
		}
		sort.Strings(got)
		assert.Equal(t, bruteForce(inputs), got, "round %d", round)
	}
}

func TestSweepArea(t *testing.T) {
	s := NewSweepArea()
	s.Insert(mustEvent(t, 0, 3, int64(0)))
	s.Insert(mustEvent(t, 1, 10, int64(1)))
	s.Insert(mustEvent(t, 2, 4, int64(2)))
	s.Insert(mustEvent(t, 6, 8, int64(3)))
	assert.Equal(t, 4, s.Len())

	assert.Equal(t, 2, s.Evict(4))
	assert.Equal(t, 2, s.Len())
	for _, e := range s.Events() {
		assert.Greater(t, e.T2(), int64(4))
	}

	var probed []*event.Event
	require.NoError(t, s.Query(6, func(e *event.Event) error {
		probed = append(probed, e)
		return nil
	}))
	require.Len(t, probed, 1)
	assert.Equal(t, int64(1), probed[0].T1())

	boom := fmt.Errorf("boom")
	assert.Equal(t, boom, s.Query(100, func(*event.Event) error { return boom }))

	assert.Equal(t, 0, s.Evict(4))
	s.Clear()
	assert.Equal(t, 0, s.Len())
	assert.Empty(t, s.Events())
}

func TestSweepArea_Compaction(t *testing.T) {
	s := NewSweepArea()
	for i := int64(0); i < 100; i++ {
		// every other event is long lived, so eviction leaves holes in arrival order
		end := i + 1
		if i%2 == 0 {
			end = 1000
		}
		s.Insert(mustEvent(t, i, end, i))
	}
	assert.Equal(t, 50, s.Evict(100))
	assert.Equal(t, 50, s.Len())
	events := s.Events()
	require.Len(t, events, 50)
	for i, e := range events {
		assert.Equal(t, int64(2*i), e.T1())
	}
	assert.LessOrEqual(t, len(s.arrivals)-s.head, 100)
}
