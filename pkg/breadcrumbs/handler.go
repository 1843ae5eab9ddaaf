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

// Handler takes ownership of baked breadcrumbs and delivers them somewhere. Delivery is best
// effort: the dispatcher logs a returned error and moves on to the next breadcrumb.
type Handler interface {
	Handle(b Breadcrumb) error
}

// HandlerFunc adapts a plain function to the Handler interface.
type HandlerFunc func(b Breadcrumb) error

func (f HandlerFunc) Handle(b Breadcrumb) error {
	return f(b)
}

// NoopHandler discards every breadcrumb. Configuring it disables auditing without any other
// change to the pipeline.
type NoopHandler struct{}

func NewNoopHandler() *NoopHandler {
	return &NoopHandler{}
}

func (*NoopHandler) Handle(Breadcrumb) error {
	return nil
}
