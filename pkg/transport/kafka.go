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

package transport

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/sirupsen/logrus"
)

// messageWriter is the part of kafka.Writer used by KafkaSender.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaSender produces each payload as one message on a Kafka topic, keyed for partitioning.
type KafkaSender struct {
	topic  string
	writer messageWriter
	closed atomic.Bool
}

func NewKafkaSender(brokers []string, topic string) (*KafkaSender, error) {
	if len(brokers) == 0 {
		return nil, fmt.Errorf("no Kafka brokers configured")
	}
	if topic == "" {
		return nil, fmt.Errorf("no Kafka topic configured")
	}
	logrus.WithFields(logrus.Fields{"brokers": brokers, "topic": topic}).Info("Creating Kafka sender")
	return newKafkaSender(topic, &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		RequiredAcks: kafka.RequireAll,
		Balancer:     &kafka.Hash{},
	}), nil
}

func newKafkaSender(topic string, w messageWriter) *KafkaSender {
	return &KafkaSender{topic: topic, writer: w}
}

func (k *KafkaSender) Send(ctx context.Context, key string, payload []byte) error {
	if k.closed.Load() {
		return ErrClosed
	}
	msg := kafka.Message{
		Value: payload,
		Time:  time.Now(),
	}
	if key != "" {
		msg.Key = []byte(key)
	}
	if err := k.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("error writing to topic %s: %w", k.topic, err)
	}
	return nil
}

func (k *KafkaSender) Close() error {
	if k.closed.Swap(true) {
		return nil
	}
	return k.writer.Close()
}
