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

package transport

import (
	"bytes"
	"context"
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/sirupsen/logrus"
)

type HTTPOption func(*HTTPSender)

// WithContentType sets the Content-Type header on every request. Defaults to application/json.
func WithContentType(ct string) HTTPOption {
	return func(h *HTTPSender) {
		h.contentType = ct
	}
}

// WithCACertPath verifies the server against the CA bundle at path.
func WithCACertPath(path string) HTTPOption {
	return func(h *HTTPSender) {
		h.caCert = path
	}
}

func WithServerName(name string) HTTPOption {
	return func(h *HTTPSender) {
		h.serverName = name
	}
}

// WithMaxTries bounds the number of attempts per payload, including the first one.
func WithMaxTries(n uint) HTTPOption {
	return func(h *HTTPSender) {
		h.maxTries = n
	}
}

// WithInitialBackoff sets the delay before the first retry. Later retries back off exponentially
// up to one minute.
func WithInitialBackoff(d time.Duration) HTTPOption {
	return func(h *HTTPSender) {
		h.initialBackoff = d
	}
}

// HTTPSender POSTs each payload to a URL, retrying failed requests with exponential backoff.
// Server errors and connection failures are retried. Client errors are not.
type HTTPSender struct {
	url         string
	contentType string
	caCert      string
	serverName  string

	maxTries       uint
	initialBackoff time.Duration

	client *http.Client
}

func NewHTTPSender(url string, opts ...HTTPOption) (*HTTPSender, error) {
	h := &HTTPSender{
		url:            url,
		contentType:    "application/json",
		maxTries:       5,
		initialBackoff: time.Second,
	}
	for _, opt := range opts {
		opt(h)
	}
	if h.url == "" {
		return nil, fmt.Errorf("no URL configured for HTTP sender")
	}

	client, err := newHTTPClient(h.caCert, h.serverName)
	if err != nil {
		return nil, err
	}
	h.client = client
	return h, nil
}

func newHTTPClient(caCert, serverName string) (*http.Client, error) {
	tlsConfig := &tls.Config{ServerName: serverName}
	if caCert != "" {
		pool := x509.NewCertPool()
		pem, err := os.ReadFile(caCert)
		if err != nil {
			return nil, fmt.Errorf("error reading CA file: %w", err)
		}
		if !pool.AppendCertsFromPEM(pem) {
			return nil, fmt.Errorf("failed to parse root certificate")
		}
		tlsConfig.RootCAs = pool
	}

	// If we can't connect to the server within 10 seconds, something is up. This is separate from
	// the request timeout, which comes from the context passed to Send.
	dialer := &net.Dialer{Timeout: 10 * time.Second}
	return &http.Client{
		Transport: &http.Transport{
			DialContext:     dialer.DialContext,
			TLSClientConfig: tlsConfig,
		},
	}, nil
}

func (h *HTTPSender) Send(ctx context.Context, key string, payload []byte) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = h.initialBackoff
	b.MaxInterval = time.Minute

	attempt := 0
	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		attempt++
		err := h.post(ctx, key, payload)
		if err != nil {
			logrus.WithError(err).WithFields(logrus.Fields{
				"url":     h.url,
				"attempt": attempt,
			}).Warn("Failed to post payload")
		}
		return struct{}{}, err
	}, backoff.WithBackOff(b), backoff.WithMaxTries(h.maxTries))
	return err
}

func (h *HTTPSender) post(ctx context.Context, key string, payload []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.url, bytes.NewReader(payload))
	if err != nil {
		return backoff.Permanent(err)
	}
	req.Header.Set("Content-Type", h.contentType)
	if key != "" {
		req.Header.Set("X-Breadcrumb-Key", key)
	}

	resp, err := h.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		logrus.WithField("url", h.url).Debug("Successfully posted payload")
		return nil
	case resp.StatusCode >= 500, resp.StatusCode == http.StatusTooManyRequests:
		return fmt.Errorf("unexpected status code: %s", resp.Status)
	default:
		return backoff.Permanent(fmt.Errorf("unexpected status code: %s", resp.Status))
	}
}

func (h *HTTPSender) Close() error {
	h.client.CloseIdleConnections()
	return nil
}
