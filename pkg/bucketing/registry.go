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
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
)

// sealedBit marks a counter that has been drained. Once set, no further increments land on the
// counter and reporters must move on to a fresh entry for the same key.
const sealedBit = uint64(1) << 63

// counter is a single hit counter cell. The low 63 bits of state hold the hit count and the top
// bit is the sealed flag, so that sealing and reading the final count is a single atomic step.
type counter struct {
	state     atomic.Uint64
	createdAt time.Time
}

// add increments the counter, returning false if the counter has already been sealed.
func (c *counter) add() bool {
	for {
		v := c.state.Load()
		if v&sealedBit != 0 {
			return false
		}
		if c.state.CompareAndSwap(v, v+1) {
			return true
		}
	}
}

// seal marks the counter as drained and returns its final count. The second return value is
// false if the counter had already been sealed by someone else.
func (c *counter) seal() (uint64, bool) {
	old := c.state.Or(sealedBit)
	if old&sealedBit != 0 {
		return 0, false
	}
	return old, true
}

// DrainedBucket is a bucket that has been removed from the registry along with its final count.
type DrainedBucket struct {
	Key       BucketKey
	Hits      uint64
	CreatedAt time.Time
}

type RegistryOption func(*Registry)

// WithNowFunc overrides the clock used to stamp newly created counters.
func WithNowFunc(f func() time.Time) RegistryOption {
	return func(r *Registry) {
		r.nowFunc = f
	}
}

// Registry is a concurrent mapping from BucketKey to hit counter.
//
// Counters live in a sync.Map and are updated with atomic operations, so reporters never contend
// on a lock shared across keys. Increments and drains of the same key are serialized through the
// counter's sealed bit: an increment either lands before the drain seals the counter (and is part
// of the drained count) or it observes the seal and creates a fresh counter under the same key.
type Registry struct {
	counters sync.Map
	size     atomic.Int64
	nowFunc  func() time.Time
}

func NewRegistry(opts ...RegistryOption) *Registry {
	r := &Registry{nowFunc: time.Now}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Increment adds one hit to the counter for key, creating the counter if it does not exist.
func (r *Registry) Increment(key BucketKey) {
	for {
		c := r.getOrCreate(key)
		if c.add() {
			return
		}

		// The counter was drained between lookup and increment. Make sure the stale cell is gone
		// and try again with a new one.
		if r.counters.CompareAndDelete(key, c) {
			r.size.Add(-1)
		}
	}
}

func (r *Registry) getOrCreate(key BucketKey) *counter {
	if v, ok := r.counters.Load(key); ok {
		return v.(*counter)
	}
	v, loaded := r.counters.LoadOrStore(key, &counter{createdAt: r.nowFunc()})
	if !loaded {
		r.size.Add(1)
	}
	return v.(*counter)
}

// Preallocate creates zero-valued counters for every window in [from, to). Windows that already
// have a counter are left untouched. It returns the number of counters created.
func (r *Registry) Preallocate(from, to BucketKey) int {
	if from.Duration <= 0 || from.Duration != to.Duration {
		logrus.WithFields(logrus.Fields{
			"from": from,
			"to":   to,
		}).Warn("Refusing to pre-allocate buckets between keys of different durations")
		return 0
	}

	now := r.nowFunc()
	created := 0
	for k := from; k.Start < to.Start; k = k.Next() {
		if _, loaded := r.counters.LoadOrStore(k, &counter{createdAt: now}); !loaded {
			r.size.Add(1)
			created++
		}
	}
	return created
}

// DrainCompleted removes and returns every bucket whose window has fully elapsed as of asOf.
// The returned counts are final. Order is unspecified.
func (r *Registry) DrainCompleted(asOf time.Time) []DrainedBucket {
	var drained []DrainedBucket
	r.counters.Range(func(k, v any) bool {
		key := k.(BucketKey)
		if !key.CompletedBy(asOf) {
			return true
		}

		c := v.(*counter)
		hits, ok := c.seal()
		if r.counters.CompareAndDelete(key, c) {
			r.size.Add(-1)
		}
		if ok {
			drained = append(drained, DrainedBucket{Key: key, Hits: hits, CreatedAt: c.createdAt})
		}
		return true
	})
	return drained
}

// Len returns the number of live counters in the registry.
func (r *Registry) Len() int {
	return int(r.size.Load())
}
