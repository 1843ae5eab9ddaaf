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
	"fmt"
	"math"
	"time"

	"github.com/projectcalico/breadcrumbs/pkg/bucketing"
)

// Baker turns the final count of a completed bucket into a Breadcrumb. Bakers run on the flush
// goroutine once per bucket, so they must be fast and must not perform I/O.
type Baker interface {
	Bake(key bucketing.BucketKey, processedAt time.Time, hits uint64) (Breadcrumb, error)
}

// BakerFunc adapts a plain function to the Baker interface.
type BakerFunc func(key bucketing.BucketKey, processedAt time.Time, hits uint64) (Breadcrumb, error)

func (f BakerFunc) Bake(key bucketing.BucketKey, processedAt time.Time, hits uint64) (Breadcrumb, error) {
	return f(key, processedAt, hits)
}

// IdentityBaker stamps every breadcrumb with a fixed identity: the datum type being counted and
// the application, source, tier and datacenter of the observation point.
type IdentityBaker struct {
	datumType   string
	application string
	source      string
	tier        string
	datacenter  string
}

func NewIdentityBaker(datumType string, cfg Config) *IdentityBaker {
	return &IdentityBaker{
		datumType:   datumType,
		application: cfg.Application,
		source:      cfg.Source,
		tier:        cfg.Tier,
		datacenter:  cfg.Datacenter,
	}
}

func (b *IdentityBaker) Bake(key bucketing.BucketKey, processedAt time.Time, hits uint64) (Breadcrumb, error) {
	if hits > math.MaxInt64 {
		return Breadcrumb{}, fmt.Errorf("hit count %d for bucket %s overflows breadcrumb count", hits, key)
	}
	return Breadcrumb{
		Type:                b.datumType,
		Source:              b.source,
		Application:         b.application,
		Tier:                b.tier,
		Datacenter:          b.datacenter,
		BucketStart:         key.StartTime(),
		BucketEnd:           key.EndTime(),
		ProcessingTimestamp: processedAt.UTC(),
		Count:               int64(hits),
	}, nil
}
