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

package auditor

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"

	"github.com/projectcalico/breadcrumbs/pkg/breadcrumbs"
)

var (
	flushCyclesCounter = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "breadcrumbs_auditor_flush_cycles_total",
		Help: "Total number of periodic flush cycles run by datum auditors.",
	})

	flushFailuresCounter = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "breadcrumbs_auditor_flush_failures_total",
		Help: "Total number of periodic flush cycles that failed.",
	})
)

func init() {
	prometheus.MustRegister(flushCyclesCounter)
	prometheus.MustRegister(flushFailuresCounter)
}

// Config is the full configuration of a DatumAuditor.
type Config[T any] struct {
	BucketDuration       time.Duration
	TimestampExtractor   breadcrumbs.TimestampExtractor[T]
	Baker                breadcrumbs.Baker
	Handler              breadcrumbs.Handler
	FlushInterval        time.Duration
	PreAllocatedInterval time.Duration

	// Name labels the auditor's metrics. Defaults to breadcrumbs.DefaultDispatcherName.
	Name string
}

// DatumAuditor keeps bucketed counts of the datums reported to it and periodically turns completed
// buckets into breadcrumbs.
//
// A single goroutine drives the flushes. Each cycle waits for the flush interval measured from
// the end of the previous flush, so cycles never overlap however long a flush takes. A failing
// cycle is logged and the next one is scheduled as usual. Calls to DispatchBreadcrumbs are
// serialized with the loop, so two passes never drain or hand off buckets at the same time.
type DatumAuditor[T any] struct {
	dispatcher    *breadcrumbs.BucketDispatcher[T]
	flushInterval time.Duration

	// flushMu is held for the whole of every dispatch pass.
	flushMu sync.Mutex

	ctx       context.Context
	afterFunc func(time.Duration) <-chan time.Time

	done     chan struct{}
	stopped  chan struct{}
	stopOnce sync.Once
}

func newSettings(opts []Option) *settings {
	s := &settings{
		ctx:       context.Background(),
		afterFunc: time.After,
		nowFunc:   time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// New builds a DatumAuditor, runs an initial flush and starts the flush loop.
func New[T any](cfg Config[T], opts ...Option) (*DatumAuditor[T], error) {
	return newAuditor(cfg, newSettings(opts))
}

// NewFromConfig builds a DatumAuditor whose breadcrumbs carry the identity in cfg. One day of
// buckets is pre-allocated unless overridden with WithPreAllocatedInterval.
func NewFromConfig[T any](
	cfg breadcrumbs.Config,
	datumType string,
	extract breadcrumbs.TimestampExtractor[T],
	handler breadcrumbs.Handler,
	opts ...Option,
) (*DatumAuditor[T], error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	s := newSettings(opts)
	prealloc := breadcrumbs.DefaultPreAllocatedInterval
	if s.preAllocatedInterval != nil {
		prealloc = *s.preAllocatedInterval
	}

	return newAuditor(Config[T]{
		BucketDuration:       cfg.BucketDuration,
		TimestampExtractor:   extract,
		Baker:                breadcrumbs.NewIdentityBaker(datumType, cfg),
		Handler:              handler,
		FlushInterval:        cfg.FlushInterval,
		PreAllocatedInterval: prealloc,
		Name:                 breadcrumbs.DispatcherName(datumType, cfg.Source),
	}, s)
}

func newAuditor[T any](cfg Config[T], s *settings) (*DatumAuditor[T], error) {
	if cfg.FlushInterval <= 0 {
		return nil, fmt.Errorf("%w: flush interval must be positive, got %s", breadcrumbs.ErrInvalidConfig, cfg.FlushInterval)
	}

	d, err := breadcrumbs.NewBucketDispatcher(breadcrumbs.DispatcherConfig[T]{
		BucketDuration:       cfg.BucketDuration,
		TimestampExtractor:   cfg.TimestampExtractor,
		Baker:                cfg.Baker,
		Handler:              cfg.Handler,
		PreAllocatedInterval: cfg.PreAllocatedInterval,
		Name:                 cfg.Name,
		NowFunc:              s.nowFunc,
	})
	if err != nil {
		return nil, err
	}

	a := &DatumAuditor[T]{
		dispatcher:    d,
		flushInterval: cfg.FlushInterval,
		ctx:           s.ctx,
		afterFunc:     s.afterFunc,
		done:          make(chan struct{}),
		stopped:       make(chan struct{}),
	}

	logrus.WithFields(logrus.Fields{
		"bucketDuration": cfg.BucketDuration,
		"flushInterval":  cfg.FlushInterval,
	}).Info("Starting datum auditor")

	// Flush straight away so that buckets left over from before startup are cleared promptly
	// rather than after a full interval.
	a.flush()

	go a.run()
	return a, nil
}

func (a *DatumAuditor[T]) run() {
	defer close(a.stopped)

	for {
		select {
		case <-a.done:
			return
		case <-a.ctx.Done():
			logrus.Info("Context done, stopping datum auditor")
			return
		case <-a.afterFunc(a.flushInterval):
		}

		a.flush()
	}
}

// flush runs one dispatch cycle. It never panics, so a single bad cycle cannot stop the loop.
func (a *DatumAuditor[T]) flush() {
	defer func() {
		if r := recover(); r != nil {
			flushFailuresCounter.Inc()
			logrus.WithField("panic", r).Error("Periodic flush has failed")
		}
	}()

	a.flushMu.Lock()
	defer a.flushMu.Unlock()

	flushCyclesCounter.Inc()
	a.dispatcher.DispatchBreadcrumbs()
}

func (a *DatumAuditor[T]) Report(element T) {
	a.dispatcher.Report(element)
}

// DispatchBreadcrumbs runs a dispatch pass immediately, outside of the flush schedule. If a
// periodic flush is in progress it waits for that flush to finish first.
func (a *DatumAuditor[T]) DispatchBreadcrumbs() {
	a.flushMu.Lock()
	defer a.flushMu.Unlock()

	a.dispatcher.DispatchBreadcrumbs()
}

// Stop stops scheduling further flush cycles and waits for any in-flight cycle to finish.
func (a *DatumAuditor[T]) Stop() {
	a.stopOnce.Do(func() {
		close(a.done)
	})
	<-a.stopped
}

// Pending returns the number of buckets held by the auditor.
func (a *DatumAuditor[T]) Pending() int {
	return a.dispatcher.Pending()
}
