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

package datum

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"

	"github.com/projectcalico/breadcrumbs/pkg/breadcrumbs"
)

var (
	deliveredCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "breadcrumbs_datums_delivered_total",
		Help: "Total number of datums handed to a data endpoint by producers.",
	}, []string{"type"})

	filteredCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "breadcrumbs_datums_filtered_total",
		Help: "Total number of datums rejected by a producer's filter.",
	}, []string{"type"})

	consumedCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "breadcrumbs_datums_consumed_total",
		Help: "Total number of datums decoded by consumers.",
	}, []string{"type"})

	decodeFailuresCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "breadcrumbs_datum_decode_failures_total",
		Help: "Total number of envelopes a consumer could not decode.",
	}, []string{"type"})
)

func init() {
	prometheus.MustRegister(deliveredCounter)
	prometheus.MustRegister(filteredCounter)
	prometheus.MustRegister(consumedCounter)
	prometheus.MustRegister(decodeFailuresCounter)
}

// ErrTimestampExtraction is returned (wrapped) when a datum's timestamp cannot be read.
var ErrTimestampExtraction = errors.New("failed to extract datum timestamp")

// Type describes one kind of datum: the identifier carried on its envelopes and breadcrumbs, and
// how to read its logical timestamp.
type Type[T any] struct {
	ID      string
	Extract breadcrumbs.TimestampExtractor[T]
}

func (t Type[T]) validate() error {
	if t.ID == "" {
		return fmt.Errorf("%w: datum type needs an ID", breadcrumbs.ErrInvalidConfig)
	}
	if t.Extract == nil {
		return fmt.Errorf("%w: datum type %s needs a timestamp extractor", breadcrumbs.ErrInvalidConfig, t.ID)
	}
	return nil
}

// Envelope is what travels over a data endpoint: the encoded datum along with the metadata needed
// to audit it.
type Envelope struct {
	DatumTypeID string `json:"datumTypeId" cbor:"datumTypeId"`
	UniqueID    string `json:"datumUniqueId" cbor:"datumUniqueId"`

	// LogicalTimestamp is the datum's own event time. CreationTimestamp is when it was enveloped.
	LogicalTimestamp  time.Time `json:"logicalTimestamp" cbor:"logicalTimestamp"`
	CreationTimestamp time.Time `json:"creationTimestamp" cbor:"creationTimestamp"`

	SourceHost  string `json:"sourceHost" cbor:"sourceHost"`
	Incarnation int    `json:"incarnation" cbor:"incarnation"`

	Payload []byte `json:"payload" cbor:"payload"`
}

func newEnvelope(typeID string, logical, created time.Time, host string, incarnation int, payload []byte) Envelope {
	return Envelope{
		DatumTypeID:       typeID,
		UniqueID:          uuid.NewString(),
		LogicalTimestamp:  logical.UTC(),
		CreationTimestamp: created.UTC(),
		SourceHost:        host,
		Incarnation:       incarnation,
		Payload:           payload,
	}
}

func (e Envelope) Fields() logrus.Fields {
	return logrus.Fields{
		"type":        e.DatumTypeID,
		"id":          e.UniqueID,
		"logicalTime": e.LogicalTimestamp,
		"host":        e.SourceHost,
	}
}
