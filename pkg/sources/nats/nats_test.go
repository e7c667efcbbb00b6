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

package nats

import (
	"context"
	"testing"
	"time"

	"github.com/nats-io/nats-server/v2/server"
	natstestserver "github.com/nats-io/nats-server/v2/test"
	natslib "github.com/nats-io/nats.go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/sigmod2021-index-pattern/index-pattern-sub002/pkg/event"
)

func runNatsServer(t *testing.T) *server.Server {
	t.Helper()
	opts := natstestserver.DefaultTestOptions
	opts.Port = -1 // Random port
	s := natstestserver.RunServer(&opts)
	t.Cleanup(s.Shutdown)
	return s
}

var schema = event.NewSchema(event.Attribute{Name: "id", Type: event.Int})

func TestConfig_Validate(t *testing.T) {
	assert.Error(t, Config{Subject: "s"}.Validate())
	assert.Error(t, Config{URL: "nats://localhost:4222"}.Validate())
	assert.NoError(t, Config{URL: "nats://localhost:4222", Subject: "s"}.Validate())
}

func TestNatsSource_Run(t *testing.T) {
	s := runNatsServer(t)
	src, err := New("in", schema, Config{URL: s.ClientURL(), Subject: "cep.in", Queue: "q"}, WithLogger(zap.NewNop().Sugar()), WithBufferSize(8))
	require.NoError(t, err)
	defer func() { _ = src.Close() }()
	assert.Equal(t, "in", src.Name())

	pub, err := natslib.Connect(s.ClientURL())
	require.NoError(t, err)
	defer pub.Close()
	require.NoError(t, pub.Publish("cep.in", []byte(`{"t1":1,"payload":[10]}`)))
	require.NoError(t, pub.Publish("cep.in", []byte(`garbage`)))
	require.NoError(t, pub.Publish("cep.in", []byte(`{"t1":2,"t2":9,"payload":[20]}`)))
	require.NoError(t, pub.Flush())

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	var out []*event.Event
	require.NoError(t, src.Run(ctx, func(e *event.Event) error {
		out = append(out, e)
		if len(out) == 2 {
			cancel()
		}
		return nil
	}))
	require.Len(t, out, 2)
	assert.True(t, out[0].Equal(event.Chronon(1, int64(10))))
	assert.Equal(t, int64(9), out[1].T2())
}

func TestNew_ConnectFailure(t *testing.T) {
	_, err := New("in", schema, Config{URL: "nats://127.0.0.1:1", Subject: "s"}, WithLogger(zap.NewNop().Sugar()))
	assert.Error(t, err)
}
