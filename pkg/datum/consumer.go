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

package datum

import (
	"context"
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/projectcalico/breadcrumbs/pkg/auditor"
	"github.com/projectcalico/breadcrumbs/pkg/breadcrumbs"
	"github.com/projectcalico/breadcrumbs/pkg/codec"
	"github.com/projectcalico/breadcrumbs/pkg/transport"
)

// Feed is a source of encoded envelopes. transport.Pipe is one.
type Feed interface {
	Receive(ctx context.Context) (transport.Message, error)
}

type ConsumerConfig[T any] struct {
	DatumType Type[T]
	Codec     codec.Codec
	Feed      Feed

	Breadcrumbs       breadcrumbs.Config
	BreadcrumbHandler breadcrumbs.Handler

	// Buffer is the capacity of the channel returned by Datums.
	Buffer int
}

// Consumer decodes envelopes from a feed, leaves a breadcrumb trail of what it received, and
// streams the decoded datums.
type Consumer[T any] struct {
	datumType Type[T]
	codec     codec.Codec
	feed      Feed
	datums    chan T

	auditor *auditor.DatumAuditor[T]
}

func NewConsumer[T any](cfg ConsumerConfig[T], opts ...auditor.Option) (*Consumer[T], error) {
	if err := cfg.DatumType.validate(); err != nil {
		return nil, err
	}
	if cfg.Codec == nil || cfg.Feed == nil {
		return nil, fmt.Errorf("%w: a consumer needs a codec and a feed", breadcrumbs.ErrInvalidConfig)
	}
	if cfg.BreadcrumbHandler == nil {
		cfg.BreadcrumbHandler = breadcrumbs.NewNoopHandler()
	}

	a, err := auditor.NewFromConfig(cfg.Breadcrumbs, cfg.DatumType.ID, cfg.DatumType.Extract, cfg.BreadcrumbHandler, opts...)
	if err != nil {
		return nil, err
	}

	return &Consumer[T]{
		datumType: cfg.DatumType,
		codec:     cfg.Codec,
		feed:      cfg.Feed,
		datums:    make(chan T, cfg.Buffer),
		auditor:   a,
	}, nil
}

// Datums is closed when Run returns.
func (c *Consumer[T]) Datums() <-chan T {
	return c.datums
}

// Run consumes the feed until it is closed or ctx is done. Envelopes that cannot be decoded, or
// that carry another datum type, are logged and skipped.
func (c *Consumer[T]) Run(ctx context.Context) error {
	defer close(c.datums)

	for {
		msg, err := c.feed.Receive(ctx)
		if errors.Is(err, transport.ErrClosed) {
			logrus.WithField("type", c.datumType.ID).Info("Feed closed, stopping consumer")
			return nil
		} else if err != nil {
			return err
		}

		d, ok := c.decode(msg.Payload)
		if !ok {
			continue
		}
		consumedCounter.WithLabelValues(c.datumType.ID).Inc()
		c.auditor.Report(d)

		select {
		case c.datums <- d:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (c *Consumer[T]) decode(data []byte) (T, bool) {
	var d T
	var env Envelope
	if err := c.codec.Unmarshal(data, &env); err != nil {
		decodeFailuresCounter.WithLabelValues(c.datumType.ID).Inc()
		logrus.WithError(err).WithField("type", c.datumType.ID).Warn("Failed to decode envelope, skipping")
		return d, false
	}
	logCtx := logrus.WithFields(env.Fields())
	if env.DatumTypeID != c.datumType.ID {
		decodeFailuresCounter.WithLabelValues(c.datumType.ID).Inc()
		logCtx.WithField("expected", c.datumType.ID).Warn("Envelope carries an unexpected datum type, skipping")
		return d, false
	}
	if err := c.codec.Unmarshal(env.Payload, &d); err != nil {
		decodeFailuresCounter.WithLabelValues(c.datumType.ID).Inc()
		logCtx.WithError(err).Warn("Failed to decode datum, skipping")
		return d, false
	}
	logCtx.Debug("Consumed datum")
	return d, true
}

// Close stops the breadcrumb flushes.
func (c *Consumer[T]) Close() {
	c.auditor.Stop()
}
