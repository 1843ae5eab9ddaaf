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

package daemon

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"github.com/projectcalico/breadcrumbs/pkg/auditor"
	"github.com/projectcalico/breadcrumbs/pkg/breadcrumbs"
	"github.com/projectcalico/breadcrumbs/pkg/codec"
	"github.com/projectcalico/breadcrumbs/pkg/datum"
	"github.com/projectcalico/breadcrumbs/pkg/handler"
	"github.com/projectcalico/breadcrumbs/pkg/transport"
)

// syntheticDatum is the record the daemon generates and audits.
type syntheticDatum struct {
	Seq uint64    `json:"seq" cbor:"seq"`
	At  time.Time `json:"at" cbor:"at"`
}

var syntheticType = datum.Type[syntheticDatum]{
	ID:      "synthetic",
	Extract: func(d syntheticDatum) time.Time { return d.At },
}

// newBreadcrumbHandler builds the handler selected by cfg. The returned sender, if any, must be
// closed once the auditors have stopped.
func newBreadcrumbHandler(cfg Config) (breadcrumbs.Handler, transport.Sender, error) {
	c, err := codec.ByName(cfg.Codec)
	if err != nil {
		return nil, nil, err
	}

	var sender transport.Sender
	switch strings.ToLower(cfg.Handler) {
	case "none", "":
		return breadcrumbs.NewNoopHandler(), nil, nil
	case "log":
		sender = transport.NewLogSender("breadcrumbs")
	case "http":
		sender, err = transport.NewHTTPSender(cfg.PushURL,
			transport.WithContentType(c.ContentType()),
			transport.WithCACertPath(cfg.CACertPath),
			transport.WithServerName(cfg.ServerName),
		)
	case "kafka":
		sender, err = transport.NewKafkaSender(cfg.KafkaBrokers, cfg.KafkaTopic)
	default:
		return nil, nil, fmt.Errorf("%w: unknown breadcrumb handler %q", breadcrumbs.ErrInvalidConfig, cfg.Handler)
	}
	if err != nil {
		return nil, nil, err
	}
	return handler.NewSerializing(c, sender, cfg.SendTimeout), sender, nil
}

// Run starts a producer and a consumer of synthetic datums connected by an in-process pipe, each
// leaving its own breadcrumb trail, and blocks until ctx is done.
func Run(ctx context.Context, cfg Config) error {
	logrus.WithField("cfg", cfg).Info("Loaded configuration")
	defer logrus.Warn("Shutting down")

	if err := cfg.validate(); err != nil {
		return err
	}

	crumbHandler, crumbSender, err := newBreadcrumbHandler(cfg)
	if err != nil {
		return err
	}
	if crumbSender != nil {
		defer crumbSender.Close()
	}

	// Every goroutine started below exits once runCtx is done, and is waited for before returning.
	runCtx, cancel := context.WithCancel(ctx)
	var wg sync.WaitGroup
	defer func() {
		cancel()
		wg.Wait()
	}()

	if cfg.ToggleFilePath != "" {
		toggle, err := handler.NewToggle(cfg.ToggleFilePath, crumbHandler)
		if err != nil {
			return err
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			toggle.Run(runCtx)
		}()
		crumbHandler = toggle
	}

	dataCodec, err := codec.ByName(cfg.Codec)
	if err != nil {
		return err
	}
	pipe := transport.NewPipe(1024)
	opts := []auditor.Option{
		auditor.WithContext(runCtx),
		auditor.WithPreAllocatedInterval(cfg.PreAllocatedInterval),
	}

	producer, err := datum.NewProducer(datum.ProducerConfig[syntheticDatum]{
		DatumType:         syntheticType,
		Codec:             dataCodec,
		Sender:            pipe,
		Breadcrumbs:       cfg.breadcrumbsConfig("_tx"),
		BreadcrumbHandler: crumbHandler,
	}, opts...)
	if err != nil {
		return err
	}
	defer producer.Close()

	consumer, err := datum.NewConsumer(datum.ConsumerConfig[syntheticDatum]{
		DatumType:         syntheticType,
		Codec:             dataCodec,
		Feed:              pipe,
		Breadcrumbs:       cfg.breadcrumbsConfig("_rx"),
		BreadcrumbHandler: crumbHandler,
		Buffer:            1024,
	}, opts...)
	if err != nil {
		return err
	}
	defer consumer.Close()

	wg.Add(3)
	go func() {
		defer wg.Done()
		if err := consumer.Run(runCtx); err != nil && !errors.Is(err, context.Canceled) {
			logrus.WithError(err).Error("Consumer stopped")
		}
	}()
	go func() {
		defer wg.Done()
		var n int
		for range consumer.Datums() {
			n++
		}
		logrus.WithField("datums", n).Info("Consumed synthetic datums")
	}()
	go func() {
		defer wg.Done()
		generate(runCtx, producer, cfg.DatumsPerSecond)
	}()

	if cfg.PrometheusPort != 0 {
		// Serve prometheus metrics.
		logrus.Infof("Starting Prometheus metrics server on port %d", cfg.PrometheusPort)
		srv := &http.Server{Addr: fmt.Sprintf(":%d", cfg.PrometheusPort), Handler: promMux()}
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logrus.WithError(err).Fatal("Failed to serve prometheus metrics")
			}
		}()
		defer srv.Close()
	}

	<-ctx.Done()
	cancel()
	_ = pipe.Close()
	wg.Wait()
	return nil
}

func promMux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	return mux
}

// generate delivers synthetic datums stamped with the current time until ctx is done.
func generate(ctx context.Context, p *datum.Producer[syntheticDatum], perSecond int) {
	ticker := time.NewTicker(time.Second / time.Duration(perSecond))
	defer ticker.Stop()

	var seq uint64
	for {
		select {
		case <-ctx.Done():
			logrus.WithField("datums", seq).Info("Stopped generating synthetic datums")
			return
		case now := <-ticker.C:
			seq++
			if err := p.Deliver(ctx, syntheticDatum{Seq: seq, At: now}); err != nil && ctx.Err() == nil {
				logrus.WithError(err).Warn("Failed to deliver synthetic datum")
			}
		}
	}
}
