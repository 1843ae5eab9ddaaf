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
	"time"
)

type settings struct {
	ctx                  context.Context
	afterFunc            func(time.Duration) <-chan time.Time
	nowFunc              func() time.Time
	preAllocatedInterval *time.Duration
}

type Option func(*settings)

// WithContext stops the flush loop when ctx is done, in addition to Stop.
func WithContext(ctx context.Context) Option {
	return func(s *settings) {
		s.ctx = ctx
	}
}

// WithAfterFunc allows manual control over the flush timer, used in tests.
// In production, this is time.After.
func WithAfterFunc(f func(time.Duration) <-chan time.Time) Option {
	return func(s *settings) {
		s.afterFunc = f
	}
}

// WithNowFunc overrides the current time, used in tests.
func WithNowFunc(f func() time.Time) Option {
	return func(s *settings) {
		s.nowFunc = f
	}
}

// WithPreAllocatedInterval overrides how far ahead buckets are created at startup when the
// auditor is built from a breadcrumbs.Config. Zero disables pre-allocation.
func WithPreAllocatedInterval(d time.Duration) Option {
	return func(s *settings) {
		s.preAllocatedInterval = &d
	}
}
