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

package blackhole

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"

	"github.com/sigmod2021-index-pattern/index-pattern-sub002/pkg/event"
	"github.com/sigmod2021-index-pattern/index-pattern-sub002/pkg/metrics"
)

func TestBlackhole(t *testing.T) {
	b := NewBlackhole("void")
	assert.Equal(t, "void", b.Name())
	for i := int64(0); i < 5; i++ {
		assert.NoError(t, b.Write(event.Chronon(i, i)))
	}
	assert.Equal(t, int64(5), b.Written())
	assert.Equal(t, float64(5), testutil.ToFloat64(metrics.SinkWriteCount.WithLabelValues("void", "blackhole")))
	assert.NoError(t, b.Close())
}
