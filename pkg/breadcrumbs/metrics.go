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

import "github.com/prometheus/client_golang/prometheus"

var (
	reportsCounter = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "breadcrumbs_reports_total",
		Help: "Total number of hits reported to breadcrumb dispatchers.",
	})

	reportFailuresCounter = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "breadcrumbs_report_failures_total",
		Help: "Total number of reports dropped because the timestamp could not be extracted.",
	})

	drainedBucketsCounter = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "breadcrumbs_drained_buckets_total",
		Help: "Total number of completed buckets drained from the registry.",
	})

	emptyBucketsCounter = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "breadcrumbs_empty_buckets_total",
		Help: "Total number of drained buckets discarded because they received no hits.",
	})

	dispatchedCounter = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "breadcrumbs_dispatched_total",
		Help: "Total number of breadcrumbs successfully handed to a handler.",
	})

	bakeFailuresCounter = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "breadcrumbs_bake_failures_total",
		Help: "Total number of buckets that could not be baked into a breadcrumb.",
	})

	handlerFailuresCounter = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "breadcrumbs_handler_failures_total",
		Help: "Total number of breadcrumbs the handler failed to deliver.",
	})

	pendingBucketsGauge = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "breadcrumbs_pending_buckets",
		Help: "Number of buckets held by a dispatcher after its last dispatch pass.",
	}, []string{"dispatcher"})

	dispatchDuration = prometheus.NewSummary(prometheus.SummaryOpts{
		Name: "breadcrumbs_dispatch_duration_ms",
		Help: "Duration of a single breadcrumb dispatch pass.",
	})
)

func init() {
	prometheus.MustRegister(reportsCounter)
	prometheus.MustRegister(reportFailuresCounter)
	prometheus.MustRegister(drainedBucketsCounter)
	prometheus.MustRegister(emptyBucketsCounter)
	prometheus.MustRegister(dispatchedCounter)
	prometheus.MustRegister(bakeFailuresCounter)
	prometheus.MustRegister(handlerFailuresCounter)
	prometheus.MustRegister(pendingBucketsGauge)
	prometheus.MustRegister(dispatchDuration)
}
