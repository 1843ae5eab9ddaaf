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

package breadcrumbs

import (
	"cmp"
	"fmt"
	"slices"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"github.com/projectcalico/breadcrumbs/pkg/bucketing"
)

// DefaultPreAllocatedInterval is how far ahead buckets are created when a dispatcher is built
// from a breadcrumbs Config.
const DefaultPreAllocatedInterval = 24 * time.Hour

const DefaultDispatcherName = "default"

// DispatcherName is the metrics label used for a dispatcher counting datumType at source.
func DispatcherName(datumType, source string) string {
	return datumType + "/" + source
}

// TimestampExtractor returns the event time of a domain element. It must be total and fast.
type TimestampExtractor[T any] func(T) time.Time

// Dispatcher is implemented by anything that accepts hit reports and periodically turns them
// into breadcrumbs.
type Dispatcher[T any] interface {
	// Report records a single hit for the given element. It never blocks on dispatch and never
	// fails from the caller's point of view.
	Report(element T)

	// DispatchBreadcrumbs flushes every completed bucket through the baker and handler.
	DispatchBreadcrumbs()
}

// NoopDispatcher ignores reports and never dispatches anything.
type NoopDispatcher[T any] struct{}

func (NoopDispatcher[T]) Report(T)             {}
func (NoopDispatcher[T]) DispatchBreadcrumbs() {}

type DispatcherConfig[T any] struct {
	BucketDuration       time.Duration
	TimestampExtractor   TimestampExtractor[T]
	Baker                Baker
	Handler              Handler
	PreAllocatedInterval time.Duration

	// Name labels this dispatcher's metrics. Defaults to DefaultDispatcherName.
	Name string

	// NowFunc overrides the current time. Defaults to time.Now.
	NowFunc func() time.Time
}

func (c *DispatcherConfig[T]) validate() error {
	if c.BucketDuration <= 0 {
		return fmt.Errorf("%w: bucket duration must be positive, got %s", ErrInvalidConfig, c.BucketDuration)
	}
	if c.PreAllocatedInterval < 0 {
		return fmt.Errorf("%w: pre-allocated interval must not be negative, got %s", ErrInvalidConfig, c.PreAllocatedInterval)
	}
	if c.TimestampExtractor == nil {
		return fmt.Errorf("%w: a timestamp extractor is required", ErrInvalidConfig)
	}
	if c.Baker == nil {
		return fmt.Errorf("%w: a breadcrumb baker is required", ErrInvalidConfig)
	}
	if c.Handler == nil {
		return fmt.Errorf("%w: a breadcrumb handler is required", ErrInvalidConfig)
	}
	return nil
}

// BucketDispatcher counts reports in fixed-duration buckets keyed by event time, and turns each
// bucket into a breadcrumb once its window has elapsed.
type BucketDispatcher[T any] struct {
	bucketDuration time.Duration
	extract        TimestampExtractor[T]
	baker          Baker
	handler        Handler
	registry       *bucketing.Registry
	nowFunc        func() time.Time
	pendingGauge   prometheus.Gauge

	// reportFailureLog limits how often report failures are logged, since a bad extractor fails
	// on every call.
	reportFailureLog rate.Sometimes
}

func NewBucketDispatcher[T any](cfg DispatcherConfig[T]) (*BucketDispatcher[T], error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	if cfg.NowFunc == nil {
		cfg.NowFunc = time.Now
	}
	if cfg.Name == "" {
		cfg.Name = DefaultDispatcherName
	}

	d := &BucketDispatcher[T]{
		bucketDuration:   cfg.BucketDuration,
		extract:          cfg.TimestampExtractor,
		baker:            cfg.Baker,
		handler:          cfg.Handler,
		registry:         bucketing.NewRegistry(bucketing.WithNowFunc(cfg.NowFunc)),
		nowFunc:          cfg.NowFunc,
		pendingGauge:     pendingBucketsGauge.WithLabelValues(cfg.Name),
		reportFailureLog: rate.Sometimes{First: 1, Interval: 10 * time.Second},
	}

	if cfg.PreAllocatedInterval > 0 {
		now := cfg.NowFunc()
		from := bucketing.KeyFor(now, cfg.BucketDuration)
		to := bucketing.KeyFor(now.Add(cfg.PreAllocatedInterval), cfg.BucketDuration)
		created := d.registry.Preallocate(from, to)
		logrus.WithFields(logrus.Fields{
			"bucketDuration": cfg.BucketDuration,
			"interval":       cfg.PreAllocatedInterval,
			"buckets":        created,
		}).Info("Pre-allocated breadcrumb buckets")
	}

	return d, nil
}

// NewDispatcherFromConfig builds a dispatcher that stamps breadcrumbs with the identity in cfg and
// pre-allocates one day of buckets.
func NewDispatcherFromConfig[T any](cfg Config, datumType string, extract TimestampExtractor[T], handler Handler) (*BucketDispatcher[T], error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return NewBucketDispatcher(DispatcherConfig[T]{
		BucketDuration:       cfg.BucketDuration,
		TimestampExtractor:   extract,
		Baker:                NewIdentityBaker(datumType, cfg),
		Handler:              handler,
		PreAllocatedInterval: DefaultPreAllocatedInterval,
		Name:                 DispatcherName(datumType, cfg.Source),
	})
}

func (d *BucketDispatcher[T]) Report(element T) {
	defer func() {
		if r := recover(); r != nil {
			reportFailuresCounter.Inc()
			d.reportFailureLog.Do(func() {
				logrus.WithField("panic", r).Error("Failed to extract timestamp from element, dropping report")
			})
		}
	}()

	ts := d.extract(element)
	d.registry.Increment(bucketing.KeyFor(ts, d.bucketDuration))
	reportsCounter.Inc()
}

func (d *BucketDispatcher[T]) DispatchBreadcrumbs() {
	start := time.Now()
	defer func() {
		dispatchDuration.Observe(float64(time.Since(start).Milliseconds()))
		d.pendingGauge.Set(float64(d.registry.Len()))
	}()

	now := d.nowFunc()
	drained := d.registry.DrainCompleted(now)
	if len(drained) == 0 {
		logrus.Debug("No completed breadcrumb buckets to dispatch")
		return
	}
	drainedBucketsCounter.Add(float64(len(drained)))

	// Deliver oldest first. The registry hands buckets back in no particular order.
	slices.SortFunc(drained, func(a, b bucketing.DrainedBucket) int {
		return cmp.Compare(a.Key.Start, b.Key.Start)
	})

	var dispatched, empty int
	for _, b := range drained {
		if b.Hits == 0 {
			empty++
			continue
		}
		if d.dispatch(b, now) {
			dispatched++
		}
	}
	emptyBucketsCounter.Add(float64(empty))

	logrus.WithFields(logrus.Fields{
		"drained":    len(drained),
		"empty":      empty,
		"dispatched": dispatched,
		"pending":    d.registry.Len(),
	}).Debug("Dispatched breadcrumbs")
}

// dispatch bakes and hands off a single bucket. Any failure, including a panic in the baker or
// handler, is contained to this bucket.
func (d *BucketDispatcher[T]) dispatch(b bucketing.DrainedBucket, now time.Time) (ok bool) {
	logCtx := logrus.WithFields(b.Key.Fields()).WithField("hits", b.Hits)
	defer func() {
		if r := recover(); r != nil {
			handlerFailuresCounter.Inc()
			logCtx.WithField("panic", r).Error("Panic while dispatching breadcrumb, bucket dropped")
			ok = false
		}
	}()

	crumb, err := d.baker.Bake(b.Key, now, b.Hits)
	if err != nil {
		bakeFailuresCounter.Inc()
		logCtx.WithError(err).Error("Failed to bake breadcrumb, bucket dropped")
		return false
	}

	if err := d.handler.Handle(crumb); err != nil {
		handlerFailuresCounter.Inc()
		logCtx.WithError(err).Error("Failed to handle breadcrumb")
		return false
	}

	dispatchedCounter.Inc()
	return true
}

// Pending returns the number of buckets currently held, including pre-allocated ones.
func (d *BucketDispatcher[T]) Pending() int {
	return d.registry.Len()
}

func (d *BucketDispatcher[T]) BucketDuration() time.Duration {
	return d.bucketDuration
}
