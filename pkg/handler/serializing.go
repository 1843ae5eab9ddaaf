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

package handler

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/projectcalico/breadcrumbs/pkg/breadcrumbs"
	"github.com/projectcalico/breadcrumbs/pkg/codec"
	"github.com/projectcalico/breadcrumbs/pkg/transport"
)

// DefaultSendTimeout bounds how long a single breadcrumb may take to reach its endpoint.
const DefaultSendTimeout = 30 * time.Second

// Serializing encodes each breadcrumb with a codec and delivers it through a sender. Breadcrumbs
// are keyed by source, so an endpoint that partitions keeps each source's breadcrumbs in order.
type Serializing struct {
	codec   codec.Codec
	sender  transport.Sender
	timeout time.Duration
}

func NewSerializing(c codec.Codec, s transport.Sender, timeout time.Duration) *Serializing {
	if timeout <= 0 {
		timeout = DefaultSendTimeout
	}
	return &Serializing{codec: c, sender: s, timeout: timeout}
}

func (s *Serializing) Handle(b breadcrumbs.Breadcrumb) error {
	data, err := s.codec.Marshal(b)
	if err != nil {
		return fmt.Errorf("error encoding breadcrumb as %s: %w", s.codec.Name(), err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()
	if err := s.sender.Send(ctx, b.Source, data); err != nil {
		return fmt.Errorf("error sending breadcrumb: %w", err)
	}
	logrus.WithFields(b.Fields()).Debug("Sent breadcrumb")
	return nil
}
