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
	"fmt"
	"os"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/projectcalico/breadcrumbs/pkg/auditor"
	"github.com/projectcalico/breadcrumbs/pkg/breadcrumbs"
	"github.com/projectcalico/breadcrumbs/pkg/codec"
	"github.com/projectcalico/breadcrumbs/pkg/transport"
)

type ProducerConfig[T any] struct {
	DatumType Type[T]

	// Codec encodes both the datum and its envelope. Sender delivers the envelope.
	Codec  codec.Codec
	Sender transport.Sender

	// Filter decides which datums are delivered. Nil delivers everything.
	Filter func(T) bool

	Breadcrumbs       breadcrumbs.Config
	BreadcrumbHandler breadcrumbs.Handler

	// Hostname and Incarnation are stamped on every envelope. Hostname defaults to os.Hostname.
	Hostname    string
	Incarnation int
}

// Producer delivers datums to a data endpoint and leaves a breadcrumb trail of what it delivered.
type Producer[T any] struct {
	datumType   Type[T]
	codec       codec.Codec
	sender      transport.Sender
	filter      func(T) bool
	hostname    string
	incarnation int

	auditor *auditor.DatumAuditor[T]
}

// NewProducer builds a producer and starts its breadcrumb flushes. Options are passed through to
// the auditor.
func NewProducer[T any](cfg ProducerConfig[T], opts ...auditor.Option) (*Producer[T], error) {
	if err := cfg.DatumType.validate(); err != nil {
		return nil, err
	}
	if cfg.Codec == nil || cfg.Sender == nil {
		return nil, fmt.Errorf("%w: a producer needs a codec and a sender", breadcrumbs.ErrInvalidConfig)
	}
	if cfg.BreadcrumbHandler == nil {
		cfg.BreadcrumbHandler = breadcrumbs.NewNoopHandler()
	}
	if cfg.Filter == nil {
		cfg.Filter = func(T) bool { return true }
	}
	if cfg.Hostname == "" {
		host, err := os.Hostname()
		if err != nil {
			logrus.WithError(err).Warn("Failed to determine hostname")
		}
		cfg.Hostname = host
	}

	a, err := auditor.NewFromConfig(cfg.Breadcrumbs, cfg.DatumType.ID, cfg.DatumType.Extract, cfg.BreadcrumbHandler, opts...)
	if err != nil {
		return nil, err
	}

	return &Producer[T]{
		datumType:   cfg.DatumType,
		codec:       cfg.Codec,
		sender:      cfg.Sender,
		filter:      cfg.Filter,
		hostname:    cfg.Hostname,
		incarnation: cfg.Incarnation,
		auditor:     a,
	}, nil
}

// Deliver sends a datum unless the filter rejects it. Only datums that reach the endpoint are
// counted towards the producer's breadcrumbs.
func (p *Producer[T]) Deliver(ctx context.Context, d T) error {
	if !p.filter(d) {
		filteredCounter.WithLabelValues(p.datumType.ID).Inc()
		return nil
	}

	logical, err := p.logicalTime(d)
	if err != nil {
		return err
	}
	payload, err := p.codec.Marshal(d)
	if err != nil {
		return fmt.Errorf("error encoding %s datum: %w", p.datumType.ID, err)
	}
	env := newEnvelope(p.datumType.ID, logical, time.Now(), p.hostname, p.incarnation, payload)
	data, err := p.codec.Marshal(env)
	if err != nil {
		return fmt.Errorf("error encoding envelope: %w", err)
	}

	if err := p.sender.Send(ctx, p.datumType.ID, data); err != nil {
		return fmt.Errorf("error delivering %s datum: %w", p.datumType.ID, err)
	}
	logrus.WithFields(env.Fields()).Debug("Delivered datum")

	deliveredCounter.WithLabelValues(p.datumType.ID).Inc()
	p.auditor.Report(d)
	return nil
}

// logicalTime runs the datum type's extractor, turning a panic into ErrTimestampExtraction so a
// bad datum fails its own delivery instead of the caller.
func (p *Producer[T]) logicalTime(d T) (ts time.Time, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %s datum: %v", ErrTimestampExtraction, p.datumType.ID, r)
		}
	}()
	return p.datumType.Extract(d), nil
}

// Close stops the breadcrumb flushes. Buckets that have not completed yet are not flushed.
func (p *Producer[T]) Close() {
	p.auditor.Stop()
}
