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

package datum_test

import (
	"context"
	"testing"
	"time"

	. "github.com/onsi/gomega"
	"github.com/stretchr/testify/require"

	"github.com/projectcalico/breadcrumbs/internal/utils"
	"github.com/projectcalico/breadcrumbs/pkg/breadcrumbs"
	"github.com/projectcalico/breadcrumbs/pkg/codec"
	"github.com/projectcalico/breadcrumbs/pkg/datum"
	"github.com/projectcalico/breadcrumbs/pkg/handler"
	"github.com/projectcalico/breadcrumbs/pkg/transport"
)

type click struct {
	ID         string    `json:"id" cbor:"id"`
	At         time.Time `json:"at" cbor:"at"`
	ShouldSend bool      `json:"shouldSend" cbor:"shouldSend"`
}

var clickType = datum.Type[click]{
	ID:      "click",
	Extract: func(c click) time.Time { return c.At },
}

var (
	producerConfig = breadcrumbs.Config{
		BucketDuration: 30 * time.Second,
		FlushInterval:  10 * time.Millisecond,
		Application:    "app_tx",
		Source:         "src_tx",
		Tier:           "tier_tx",
		Datacenter:     "dc_tx",
	}
	consumerConfig = breadcrumbs.Config{
		BucketDuration: 30 * time.Second,
		FlushInterval:  10 * time.Millisecond,
		Application:    "app_rx",
		Source:         "src_rx",
		Tier:           "tier_rx",
		Datacenter:     "dc_rx",
	}
)

func setupTest(t *testing.T) func() {
	utils.ConfigureLogging("DEBUG")
	return utils.RedirectLogrusToTestingT(t)
}

func decodeCrumbs(t *testing.T, endpoint *transport.MemorySender) func() []breadcrumbs.Breadcrumb {
	return func() []breadcrumbs.Breadcrumb {
		var out []breadcrumbs.Breadcrumb
		for _, m := range endpoint.Messages() {
			var b breadcrumbs.Breadcrumb
			require.NoError(t, codec.JSON().Unmarshal(m.Payload, &b))
			out = append(out, b)
		}
		return out
	}
}

func expectIdentity(g *WithT, b breadcrumbs.Breadcrumb, cfg breadcrumbs.Config) {
	g.Expect(b.Type).To(Equal("click"))
	g.Expect(b.Source).To(Equal(cfg.Source))
	g.Expect(b.Application).To(Equal(cfg.Application))
	g.Expect(b.Tier).To(Equal(cfg.Tier))
	g.Expect(b.Datacenter).To(Equal(cfg.Datacenter))
	g.Expect(b.Count).To(Equal(int64(1)))
}

func TestEndToEnd(t *testing.T) {
	for _, c := range []codec.Codec{codec.JSON(), codec.CBOR()} {
		t.Run(c.Name(), func(t *testing.T) {
			defer setupTest(t)()
			g := NewWithT(t)

			// Both datums are from a window that closed long ago, so their buckets are flushed on
			// the first cycle after they are reported.
			at := time.Now().Add(-time.Hour)
			sent := click{ID: "sent", At: at.UTC(), ShouldSend: true}
			filtered := click{ID: "filtered", At: at.UTC(), ShouldSend: false}

			dataEndpoint := transport.NewMemorySender()
			producerCrumbs := transport.NewMemorySender()
			producer, err := datum.NewProducer(datum.ProducerConfig[click]{
				DatumType:         clickType,
				Codec:             c,
				Sender:            dataEndpoint,
				Filter:            func(c click) bool { return c.ShouldSend },
				Breadcrumbs:       producerConfig,
				BreadcrumbHandler: handler.NewSerializing(codec.JSON(), producerCrumbs, time.Second),
				Hostname:          "producer-host-1",
			})
			require.NoError(t, err)
			defer producer.Close()

			require.NoError(t, producer.Deliver(context.Background(), sent))
			require.NoError(t, producer.Deliver(context.Background(), filtered))

			onWire := dataEndpoint.Messages()
			require.Len(t, onWire, 1)

			var env datum.Envelope
			require.NoError(t, c.Unmarshal(onWire[0].Payload, &env))
			require.Equal(t, "click", env.DatumTypeID)
			require.Equal(t, "producer-host-1", env.SourceHost)
			require.NotEmpty(t, env.UniqueID)
			require.True(t, env.LogicalTimestamp.Equal(at))

			feed := transport.NewPipe(len(onWire))
			consumerCrumbs := transport.NewMemorySender()
			consumer, err := datum.NewConsumer(datum.ConsumerConfig[click]{
				DatumType:         clickType,
				Codec:             c,
				Feed:              feed,
				Breadcrumbs:       consumerConfig,
				BreadcrumbHandler: handler.NewSerializing(codec.JSON(), consumerCrumbs, time.Second),
			})
			require.NoError(t, err)
			defer consumer.Close()

			runDone := make(chan error, 1)
			go func() { runDone <- consumer.Run(context.Background()) }()

			for _, m := range onWire {
				require.NoError(t, feed.Send(context.Background(), m.Key, m.Payload))
			}

			var received []click
			select {
			case d := <-consumer.Datums():
				received = append(received, d)
			case <-time.After(500 * time.Millisecond):
				t.Fatal("consumer did not produce a datum")
			}
			require.Len(t, received, 1)
			require.Equal(t, "sent", received[0].ID)
			require.True(t, received[0].At.Equal(at))

			require.NoError(t, feed.Close())
			require.NoError(t, <-runDone)

			// Wait for the breadcrumbs to arrive, and make sure no more follow.
			g.Eventually(decodeCrumbs(t, producerCrumbs), time.Second, 10*time.Millisecond).Should(HaveLen(1))
			g.Eventually(decodeCrumbs(t, consumerCrumbs), time.Second, 10*time.Millisecond).Should(HaveLen(1))
			g.Consistently(decodeCrumbs(t, producerCrumbs), 100*time.Millisecond, 10*time.Millisecond).Should(HaveLen(1))

			expectIdentity(g, decodeCrumbs(t, producerCrumbs)()[0], producerConfig)
			expectIdentity(g, decodeCrumbs(t, consumerCrumbs)()[0], consumerConfig)
		})
	}
}

func TestConsumerSkipsBadEnvelopes(t *testing.T) {
	defer setupTest(t)()

	feed := transport.NewPipe(3)
	consumer, err := datum.NewConsumer(datum.ConsumerConfig[click]{
		DatumType:   clickType,
		Codec:       codec.JSON(),
		Feed:        feed,
		Breadcrumbs: consumerConfig,
		Buffer:      3,
	})
	require.NoError(t, err)
	defer consumer.Close()

	good, err := codec.JSON().Marshal(click{ID: "good", At: time.Now()})
	require.NoError(t, err)
	wrongType, err := codec.JSON().Marshal(datum.Envelope{DatumTypeID: "other", Payload: good})
	require.NoError(t, err)
	ok, err := codec.JSON().Marshal(datum.Envelope{DatumTypeID: "click", Payload: good})
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, feed.Send(ctx, "", []byte("not json")))
	require.NoError(t, feed.Send(ctx, "", wrongType))
	require.NoError(t, feed.Send(ctx, "", ok))

	done := make(chan error, 1)
	go func() { done <- consumer.Run(ctx) }()

	select {
	case d := <-consumer.Datums():
		require.Equal(t, "good", d.ID)
	case <-time.After(5 * time.Second):
		t.Fatal("consumer did not produce a datum")
	}

	require.NoError(t, feed.Close())
	require.NoError(t, <-done)
	_, open := <-consumer.Datums()
	require.False(t, open)
}

func TestConsumerStopsOnContext(t *testing.T) {
	defer setupTest(t)()

	consumer, err := datum.NewConsumer(datum.ConsumerConfig[click]{
		DatumType:   clickType,
		Codec:       codec.JSON(),
		Feed:        transport.NewPipe(0),
		Breadcrumbs: consumerConfig,
	})
	require.NoError(t, err)
	defer consumer.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.ErrorIs(t, consumer.Run(ctx), context.Canceled)
}

func TestInvalidConfig(t *testing.T) {
	defer setupTest(t)()

	_, err := datum.NewProducer(datum.ProducerConfig[click]{
		DatumType:   datum.Type[click]{ID: "click"},
		Codec:       codec.JSON(),
		Sender:      transport.NewMemorySender(),
		Breadcrumbs: producerConfig,
	})
	require.ErrorIs(t, err, breadcrumbs.ErrInvalidConfig)

	_, err = datum.NewProducer(datum.ProducerConfig[click]{
		DatumType:   clickType,
		Codec:       codec.JSON(),
		Breadcrumbs: producerConfig,
	})
	require.ErrorIs(t, err, breadcrumbs.ErrInvalidConfig)

	_, err = datum.NewConsumer(datum.ConsumerConfig[click]{
		DatumType:   clickType,
		Codec:       codec.JSON(),
		Feed:        transport.NewPipe(0),
		Breadcrumbs: breadcrumbs.Config{},
	})
	require.ErrorIs(t, err, breadcrumbs.ErrInvalidConfig)
}

func TestDeliverSurvivesExtractorPanic(t *testing.T) {
	defer setupTest(t)()

	clickPtrType := datum.Type[*click]{
		ID:      "click",
		Extract: func(c *click) time.Time { return c.At },
	}
	dataEndpoint := transport.NewMemorySender()
	producer, err := datum.NewProducer(datum.ProducerConfig[*click]{
		DatumType:   clickPtrType,
		Codec:       codec.JSON(),
		Sender:      dataEndpoint,
		Breadcrumbs: producerConfig,
		Hostname:    "producer-host-1",
	})
	require.NoError(t, err)
	defer producer.Close()

	var deliverErr error
	require.NotPanics(t, func() {
		deliverErr = producer.Deliver(context.Background(), nil)
	})
	require.ErrorIs(t, deliverErr, datum.ErrTimestampExtraction)
	require.Empty(t, dataEndpoint.Messages())

	// The producer keeps working for well-formed datums.
	require.NoError(t, producer.Deliver(context.Background(), &click{ID: "ok", At: time.Now()}))
	require.Len(t, dataEndpoint.Messages(), 1)
}
