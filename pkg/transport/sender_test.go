// Copyright (c) 2026 Tigera, Inc. All rights reserved.

// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package transport_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/projectcalico/breadcrumbs/pkg/transport"
)

func TestMemorySender(t *testing.T) {
	m := transport.NewMemorySender()
	payload := []byte("abc")
	require.NoError(t, m.Send(context.Background(), "k", payload))

	// The sender keeps its own copy.
	payload[0] = 'x'
	require.Equal(t, []transport.Message{{Key: "k", Payload: []byte("abc")}}, m.Messages())

	require.NoError(t, m.Close())
	require.ErrorIs(t, m.Send(context.Background(), "k", nil), transport.ErrClosed)
}

func TestPipe(t *testing.T) {
	p := transport.NewPipe(1)
	ctx := context.Background()

	require.NoError(t, p.Send(ctx, "k", []byte("one")))

	// The buffer is full, so a second send waits for the context.
	shortCtx, cancel := context.WithTimeout(ctx, 10*time.Millisecond)
	defer cancel()
	require.ErrorIs(t, p.Send(shortCtx, "k", []byte("two")), context.DeadlineExceeded)

	m, err := p.Receive(ctx)
	require.NoError(t, err)
	require.Equal(t, "one", string(m.Payload))

	require.NoError(t, p.Close())
	require.NoError(t, p.Close())
	_, err = p.Receive(ctx)
	require.ErrorIs(t, err, transport.ErrClosed)
	require.ErrorIs(t, p.Send(ctx, "k", nil), transport.ErrClosed)
}
