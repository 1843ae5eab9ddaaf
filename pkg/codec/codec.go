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

package codec

import (
	"fmt"
	"strings"

	"github.com/fxamacker/cbor/v2"
	jsoniter "github.com/json-iterator/go"
)

// Codec turns values into bytes for a transport and back.
type Codec interface {
	Name() string
	ContentType() string
	Marshal(v any) ([]byte, error)
	Unmarshal(data []byte, v any) error
}

// ByName returns the codec registered under name. Names are case-insensitive.
func ByName(name string) (Codec, error) {
	switch strings.ToLower(name) {
	case "", "json":
		return JSON(), nil
	case "cbor":
		return CBOR(), nil
	default:
		return nil, fmt.Errorf("unknown codec %q", name)
	}
}

type jsonCodec struct {
	api jsoniter.API
}

// JSON returns a codec producing the same output as encoding/json.
func JSON() Codec {
	return jsonCodec{api: jsoniter.ConfigCompatibleWithStandardLibrary}
}

func (jsonCodec) Name() string        { return "json" }
func (jsonCodec) ContentType() string { return "application/json" }

func (c jsonCodec) Marshal(v any) ([]byte, error) {
	return c.api.Marshal(v)
}

func (c jsonCodec) Unmarshal(data []byte, v any) error {
	return c.api.Unmarshal(data, v)
}

var (
	cborEnc cbor.EncMode
	cborDec cbor.DecMode
)

func init() {
	// Core deterministic encoding, so the same breadcrumb always produces the same bytes.
	// Timestamps are written as RFC 3339 strings to keep nanoseconds.
	encOpts := cbor.CoreDetEncOptions()
	encOpts.Time = cbor.TimeRFC3339Nano

	var err error
	cborEnc, err = encOpts.EncMode()
	if err != nil {
		panic("codec: CBOR encoder initialization failed: " + err.Error())
	}
	cborDec, err = cbor.DecOptions{}.DecMode()
	if err != nil {
		panic("codec: CBOR decoder initialization failed: " + err.Error())
	}
}

type cborCodec struct{}

// CBOR returns a codec using core deterministic CBOR encoding.
func CBOR() Codec {
	return cborCodec{}
}

func (cborCodec) Name() string        { return "cbor" }
func (cborCodec) ContentType() string { return "application/cbor" }

func (cborCodec) Marshal(v any) ([]byte, error) {
	return cborEnc.Marshal(v)
}

func (cborCodec) Unmarshal(data []byte, v any) error {
	return cborDec.Unmarshal(data, v)
}
