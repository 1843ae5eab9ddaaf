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
	"errors"
	"sync"

	"github.com/sirupsen/logrus"
)

// ErrClosed is returned by senders that have been closed.
var ErrClosed = errors.New("sender is closed")

// Sender delivers an encoded payload to a production endpoint. The key is used for partitioning
// by endpoints that support it and may be empty.
type Sender interface {
	Send(ctx context.Context, key string, payload []byte) error
	Close() error
}

// Message is a single payload as seen by an in-process endpoint.
type Message struct {
	Key     string
	Payload []byte
}

// MemorySender keeps every payload it is given. It is safe for concurrent use.
type MemorySender struct {
	sync.Mutex
	messages []Message
	closed   bool
}

func NewMemorySender() *MemorySender {
	return &MemorySender{}
}

func (m *MemorySender) Send(_ context.Context, key string, payload []byte) error {
	m.Lock()
	defer m.Unlock()
	if m.closed {
		return ErrClosed
	}
	m.messages = append(m.messages, Message{Key: key, Payload: append([]byte(nil), payload...)})
	return nil
}

// Messages returns a copy of everything sent so far.
func (m *MemorySender) Messages() []Message {
	m.Lock()
	defer m.Unlock()
	return append([]Message(nil), m.messages...)
}

func (m *MemorySender) Close() error {
	m.Lock()
	defer m.Unlock()
	m.closed = true
	return nil
}

// Pipe is an in-process endpoint that hands sent payloads to a reader over a buffered channel.
// Send blocks while the buffer is full, until the context is done.
type Pipe struct {
	ch        chan Message
	done      chan struct{}
	closeOnce sync.Once
}

func NewPipe(capacity int) *Pipe {
	return &Pipe{
		ch:   make(chan Message, capacity),
		done: make(chan struct{}),
	}
}

func (p *Pipe) Send(ctx context.Context, key string, payload []byte) error {
	select {
	case <-p.done:
		return ErrClosed
	default:
	}

	select {
	case p.ch <- Message{Key: key, Payload: append([]byte(nil), payload...)}:
		return nil
	case <-p.done:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Receive returns the next message. It returns ErrClosed once the pipe is closed.
func (p *Pipe) Receive(ctx context.Context) (Message, error) {
	select {
	case m := <-p.ch:
		return m, nil
	case <-p.done:
		return Message{}, ErrClosed
	case <-ctx.Done():
		return Message{}, ctx.Err()
	}
}

func (p *Pipe) Close() error {
	p.closeOnce.Do(func() { close(p.done) })
	return nil
}

// LogSender writes each payload to the log instead of delivering it anywhere.
type LogSender struct {
	name string
}

func NewLogSender(name string) *LogSender {
	return &LogSender{name: name}
}

func (l *LogSender) Send(_ context.Context, key string, payload []byte) error {
	logrus.WithFields(logrus.Fields{
		"sender": l.name,
		"key":    key,
		"bytes":  len(payload),
	}).Info(string(payload))
	return nil
}

func (l *LogSender) Close() error { return nil }
