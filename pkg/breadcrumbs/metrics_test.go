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
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"github.com/projectcalico/breadcrumbs/internal/utils"
)

func TestPendingBucketsGaugeIsPerDispatcher(t *testing.T) {
	utils.ConfigureLogging("DEBUG")
	defer utils.RedirectLogrusToTestingT(t)()

	now := time.Unix(1_700_000_000, 0)
	nowFunc := func() time.Time { return now }
	extract := func(ts time.Time) time.Time { return ts }

	newDispatcher := func(name string, prealloc time.Duration) *BucketDispatcher[time.Time] {
		d, err := NewBucketDispatcher(DispatcherConfig[time.Time]{
			BucketDuration:       time.Minute,
			TimestampExtractor:   extract,
			Baker:                NewIdentityBaker("datum", Config{BucketDuration: time.Minute}),
			Handler:              NewNoopHandler(),
			PreAllocatedInterval: prealloc,
			Name:                 name,
			NowFunc:              nowFunc,
		})
		require.NoError(t, err)
		return d
	}

	producer := newDispatcher(DispatcherName("datum", "gauge_producer"), time.Hour)
	consumer := newDispatcher(DispatcherName("datum", "gauge_consumer"), 0)

	producer.DispatchBreadcrumbs()
	consumer.Report(now)
	consumer.DispatchBreadcrumbs()

	// Each dispatcher keeps its own series, so the second flush does not overwrite the first.
	require.Equal(t, float64(60), testutil.ToFloat64(pendingBucketsGauge.WithLabelValues("datum/gauge_producer")))
	require.Equal(t, float64(1), testutil.ToFloat64(pendingBucketsGauge.WithLabelValues("datum/gauge_consumer")))
}

func TestDispatcherNameDefault(t *testing.T) {
	d, err := NewBucketDispatcher(DispatcherConfig[time.Time]{
		BucketDuration:     time.Minute,
		TimestampExtractor: func(ts time.Time) time.Time { return ts },
		Baker:              NewIdentityBaker("datum", Config{BucketDuration: time.Minute}),
		Handler:            NewNoopHandler(),
	})
	require.NoError(t, err)
	require.Same(t, pendingBucketsGauge.WithLabelValues(DefaultDispatcherName), d.pendingGauge)
}
