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

package handler_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	. "github.com/onsi/gomega"
	"github.com/stretchr/testify/require"

	"github.com/projectcalico/breadcrumbs/internal/utils"
	"github.com/projectcalico/breadcrumbs/pkg/breadcrumbs"
	"github.com/projectcalico/breadcrumbs/pkg/codec"
	"github.com/projectcalico/breadcrumbs/pkg/handler"
	"github.com/projectcalico/breadcrumbs/pkg/transport"
)

var crumb = breadcrumbs.Breadcrumb{
	Type:        "txn",
	Source:      "src_tx",
	Application: "app",
	BucketStart: time.Unix(1_700_000_040, 0).UTC(),
	BucketEnd:   time.Unix(1_700_000_100, 0).UTC(),
	Count:       3,
}

func setupTest(t *testing.T) func() {
	utils.ConfigureLogging("DEBUG")
	return utils.RedirectLogrusToTestingT(t)
}

type failingSender struct{ err error }

func (f failingSender) Send(context.Context, string, []byte) error { return f.err }
func (f failingSender) Close() error { return nil }

func TestSerializingHandler(t *testing.T) {
	defer setupTest(t)()

	for _, c := range []codec.Codec{codec.JSON(), codec.CBOR()} {
		t.Run(c.Name(), func(t *testing.T) {
			sender := transport.NewMemorySender()
			h := handler.NewSerializing(c, sender, 0)
			require.NoError(t, h.Handle(crumb))

			msgs := sender.Messages()
			require.Len(t, msgs, 1)
			require.Equal(t, "src_tx", msgs[0].Key)

			var out breadcrumbs.Breadcrumb
			require.NoError(t, c.Unmarshal(msgs[0].Payload, &out))
			require.Equal(t, int64(3), out.Count)
			require.Equal(t, "txn", out.Type)
			require.True(t, out.BucketEnd.Equal(crumb.BucketEnd))
		})
	}
}

func TestSerializingHandlerSendFailure(t *testing.T) {
	defer setupTest(t)()

	sendErr := errors.New("endpoint down")
	h := handler.NewSerializing(codec.JSON(), failingSender{err: sendErr}, time.Second)
	require.ErrorIs(t, h.Handle(crumb), sendErr)
}

func TestSerializingHandlerEncodeFailure(t *testing.T) {
	defer setupTest(t)()

	sender := transport.NewMemorySender()
	h := handler.NewSerializing(codec.JSON(), sender, time.Second)
	require.NoError(t, h.Handle(crumb))

	bad := handler.NewSerializing(badCodec{}, sender, time.Second)
	require.Error(t, bad.Handle(crumb))
	require.Len(t, sender.Messages(), 1)
}

type badCodec struct{}

func (badCodec) Name() string                { return "bad" }
func (badCodec) ContentType() string         { return "application/octet-stream" }
func (badCodec) Marshal(any) ([]byte, error) { return nil, errors.New("cannot encode") }
func (badCodec) Unmarshal([]byte, any) error { return errors.New("cannot decode") }

func TestToggle(t *testing.T) {
	defer setupTest(t)()
	g := NewWithT(t)

	dir := t.TempDir()
	path := filepath.Join(dir, "enabled.json")

	sender := transport.NewMemorySender()
	toggle, err := handler.NewToggle(path, handler.NewSerializing(codec.JSON(), sender, time.Second))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		toggle.Run(ctx)
		close(done)
	}()
	defer func() {
		cancel()
		<-done
	}()

	// No file yet, so breadcrumbs are dropped.
	require.False(t, toggle.Enabled())
	require.NoError(t, toggle.Handle(crumb))
	require.Empty(t, sender.Messages())

	require.NoError(t, os.WriteFile(path, []byte(`{"enabled": true}`), 0o644))
	g.Eventually(toggle.Enabled, 5*time.Second, 10*time.Millisecond).Should(BeTrue())
	require.NoError(t, toggle.Handle(crumb))
	require.Len(t, sender.Messages(), 1)

	require.NoError(t, os.WriteFile(path, []byte(`{"enabled": false}`), 0o644))
	g.Eventually(toggle.Enabled, 5*time.Second, 10*time.Millisecond).Should(BeFalse())

	require.NoError(t, os.WriteFile(path, []byte(`{"enabled": true}`), 0o644))
	g.Eventually(toggle.Enabled, 5*time.Second, 10*time.Millisecond).Should(BeTrue())

	require.NoError(t, os.Remove(path))
	g.Eventually(toggle.Enabled, 5*time.Second, 10*time.Millisecond).Should(BeFalse())
	require.NoError(t, toggle.Handle(crumb))
	require.Len(t, sender.Messages(), 1)
}

func TestToggleReadsExistingFile(t *testing.T) {
	defer setupTest(t)()

	path := filepath.Join(t.TempDir(), "enabled.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"enabled": true}`), 0o644))

	toggle, err := handler.NewToggle(path, breadcrumbs.NewNoopHandler())
	require.NoError(t, err)
	require.True(t, toggle.Enabled())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	toggle.Run(ctx)
}

func TestToggleMissingDirectory(t *testing.T) {
	_, err := handler.NewToggle(filepath.Join(t.TempDir(), "missing", "enabled.json"), breadcrumbs.NewNoopHandler())
	require.Error(t, err)
}
