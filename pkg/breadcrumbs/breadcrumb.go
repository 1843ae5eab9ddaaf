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
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
)

// ErrInvalidConfig is returned (wrapped) by constructors when they are given an unusable configuration.
var ErrInvalidConfig = errors.New("invalid breadcrumbs configuration")

// Breadcrumb is an audit record summarizing how many datums of a given type were observed at one
// point in the pipeline during one time bucket.
type Breadcrumb struct {
	Type        string `json:"type" cbor:"type"`
	Source      string `json:"source" cbor:"source"`
	Application string `json:"application" cbor:"application"`
	Tier        string `json:"tier" cbor:"tier"`
	Datacenter  string `json:"datacenter" cbor:"datacenter"`

	// BucketStart and BucketEnd delimit the window the count was aggregated over.
	BucketStart time.Time `json:"bucketStartTime" cbor:"bucketStartTime"`
	BucketEnd   time.Time `json:"bucketEndTime" cbor:"bucketEndTime"`

	// ProcessingTimestamp is when the bucket was flushed.
	ProcessingTimestamp time.Time `json:"processingTimestamp" cbor:"processingTimestamp"`

	Count int64 `json:"count" cbor:"count"`
}

// BucketDuration returns the width of the window this breadcrumb covers.
func (b Breadcrumb) BucketDuration() time.Duration {
	return b.BucketEnd.Sub(b.BucketStart)
}

func (b Breadcrumb) Fields() logrus.Fields {
	return logrus.Fields{
		"type":         b.Type,
		"source":       b.Source,
		"tier":         b.Tier,
		"datacenter":   b.Datacenter,
		"application":  b.Application,
		"bucket_start": b.BucketStart,
		"bucket_end":   b.BucketEnd,
		"count":        b.Count,
	}
}

// Config carries the identity stamped on every breadcrumb produced at one observation point, along
// with the bucketing and flush cadence for that point.
type Config struct {
	BucketDuration time.Duration
	FlushInterval  time.Duration

	Application string
	Source      string
	Tier        string
	Datacenter  string
}

func (c Config) Validate() error {
	if c.BucketDuration <= 0 {
		return fmt.Errorf("%w: bucket duration must be positive, got %s", ErrInvalidConfig, c.BucketDuration)
	}
	if c.FlushInterval <= 0 {
		return fmt.Errorf("%w: flush interval must be positive, got %s", ErrInvalidConfig, c.FlushInterval)
	}
	return nil
}
