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

package bucketing

import (
	"fmt"
	"math"
	"time"

	"github.com/sirupsen/logrus"
)

// BucketKey identifies a fixed-length window of time. Start is expressed in nanoseconds since the
// Unix epoch and is always a multiple of Duration. Keys are only ever built by KeyFor, which
// guarantees that normalization, so two keys for the same window are always equal and can be used
// directly as map keys.
type BucketKey struct {
	Start    int64
	Duration time.Duration
}

// KeyFor returns the key of the bucket of the given duration that contains ts.
//
// The window start is floor(ts / d) * d. Integer division in Go truncates towards zero, so
// timestamps before the epoch are adjusted down by one window to keep the partition total.
//
// Window starts and ends are kept in int64 nanoseconds, which covers roughly the years 1678 to
// 2262. Timestamps outside that range, including the zero time.Time, saturate into the first or
// last whole window that fits, so they never wrap around into an unrelated window.
func KeyFor(ts time.Time, d time.Duration) BucketKey {
	w := int64(d)
	first, last := windowBounds(w)
	switch {
	case ts.Before(time.Unix(0, first)):
		return BucketKey{Start: first, Duration: d}
	case !ts.Before(time.Unix(0, last)):
		return BucketKey{Start: last, Duration: d}
	}

	n := ts.UnixNano()
	q := n / w
	if n%w < 0 {
		q--
	}
	return BucketKey{Start: q * w, Duration: d}
}

// windowBounds returns the starts of the first and last windows of width w whose start and end
// both fit in int64 nanoseconds.
func windowBounds(w int64) (first, last int64) {
	// Truncation towards zero keeps both products inside the int64 range.
	first = math.MinInt64 / w * w
	last = (math.MaxInt64 - w) / w * w
	return first, last
}

// end returns the exclusive end of the window in nanoseconds, saturating at math.MaxInt64.
func (k BucketKey) end() int64 {
	if k.Start > math.MaxInt64-int64(k.Duration) {
		return math.MaxInt64
	}
	return k.Start + int64(k.Duration)
}

// StartTime returns the inclusive start of the window.
func (k BucketKey) StartTime() time.Time {
	return time.Unix(0, k.Start).UTC()
}

// EndTime returns the exclusive end of the window.
func (k BucketKey) EndTime() time.Time {
	return time.Unix(0, k.end()).UTC()
}

// Next returns the key of the window immediately following this one.
func (k BucketKey) Next() BucketKey {
	return BucketKey{Start: k.Start + int64(k.Duration), Duration: k.Duration}
}

// Contains returns true if ts falls within this window. Timestamps that KeyFor saturated into
// a boundary window are not contained in it.
func (k BucketKey) Contains(ts time.Time) bool {
	return !ts.Before(time.Unix(0, k.Start)) && ts.Before(time.Unix(0, k.end()))
}

// CompletedBy returns true if the window has fully elapsed as of t.
func (k BucketKey) CompletedBy(t time.Time) bool {
	return !t.Before(time.Unix(0, k.end()))
}

func (k BucketKey) String() string {
	return fmt.Sprintf("[%s, +%s)", k.StartTime().Format(time.RFC3339Nano), k.Duration)
}

func (k BucketKey) Fields() logrus.Fields {
	return logrus.Fields{
		"bucket_start":    k.StartTime(),
		"bucket_duration": k.Duration,
	}
}
