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
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/projectcalico/breadcrumbs/internal/utils"
	"github.com/projectcalico/breadcrumbs/pkg/transport"
)

func setupTest(t *testing.T) func() {
	utils.ConfigureLogging("DEBUG")
	return utils.RedirectLogrusToTestingT(t)
}

func TestHTTPSenderPosts(t *testing.T) {
	defer setupTest(t)()

	var received atomic.Value
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/breadcrumbs" || r.Method != http.MethodPost {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		body, _ := io.ReadAll(r.Body)
		received.Store(r.Header.Get("Content-Type") + " " + r.Header.Get("X-Breadcrumb-Key") + " " + string(body))
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	s, err := transport.NewHTTPSender(server.URL+"/breadcrumbs", transport.WithContentType("application/cbor"))
	require.NoError(t, err)
	defer s.Close()

	require.NoError(t, s.Send(context.Background(), "src", []byte("payload")))
	require.Equal(t, "application/cbor src payload", received.Load())
}

func TestHTTPSenderRetries(t *testing.T) {
	defer setupTest(t)()

	// Fail the first request with a server error, then accept.
	var requests atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if requests.Add(1) == 1 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	s, err := transport.NewHTTPSender(server.URL, transport.WithInitialBackoff(time.Millisecond))
	require.NoError(t, err)

	require.NoError(t, s.Send(context.Background(), "", []byte("{}")))
	require.Equal(t, int32(2), requests.Load())
}

func TestHTTPSenderGivesUp(t *testing.T) {
	defer setupTest(t)()

	var requests atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	s, err := transport.NewHTTPSender(server.URL, transport.WithInitialBackoff(time.Millisecond), transport.WithMaxTries(3))
	require.NoError(t, err)

	require.Error(t, s.Send(context.Background(), "", []byte("{}")))
	require.Equal(t, int32(3), requests.Load())
}

func TestHTTPSenderDoesNotRetryClientErrors(t *testing.T) {
	defer setupTest(t)()

	var requests atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer server.Close()

	s, err := transport.NewHTTPSender(server.URL, transport.WithInitialBackoff(time.Millisecond))
	require.NoError(t, err)

	require.Error(t, s.Send(context.Background(), "", []byte("{}")))
	require.Equal(t, int32(1), requests.Load())
}

func TestHTTPSenderRequiresURL(t *testing.T) {
	_, err := transport.NewHTTPSender("")
	require.Error(t, err)
}
