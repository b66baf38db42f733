// Copyright 2025 Tom Barlow
//
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

// Package response turns raw HTTP responses into the canonical Descriptor
// shape that expected responses are written in.
package response

import (
	"net/http"

	"github.com/tombee/apiscenario/pkg/tree"
)

// Descriptor is a canonical response. Expected responses are parsed
// into the same shape so that both sides verify uniformly.
type Descriptor struct {
	ResponseCode    int        `yaml:"responseCode" json:"responseCode"`
	ResponseMessage string     `yaml:"responseMessage,omitempty" json:"responseMessage,omitempty"`
	Headers         tree.Value `yaml:"headers,omitempty" json:"headers,omitempty"`
	Body            tree.Value `yaml:"body,omitempty" json:"body,omitempty"`
}

// HeaderMap returns the headers as a map, creating an empty map when the
// descriptor has none.
func (d *Descriptor) HeaderMap() *tree.Map {
	if m, ok := d.Headers.AsMap(); ok {
		return m
	}
	return tree.NewMap()
}

// Header returns a header value ignoring the case of name.
func (d *Descriptor) Header(name string) (string, bool) {
	_, v, ok := d.HeaderMap().GetFold(name)
	if !ok {
		return "", false
	}
	return v.Text(), true
}

// IsSuccess reports whether the response code is in the 2xx class.
func (d *Descriptor) IsSuccess() bool {
	return d.ResponseCode/100 == 2
}

// ExpectsFile reports whether the expected body asks for binary download
// handling.
func (d *Descriptor) ExpectsFile() bool {
	return d != nil && d.Body.HasMarker(tree.MarkerFileInBody)
}

// Snapshot renders the descriptor as a tree value with the keys
// responseCode, responseMessage, headers and body. Back-reference
// expressions read responses through this shape.
func (d *Descriptor) Snapshot() tree.Value {
	m := tree.NewMap()
	m.Set("responseCode", tree.Int(int64(d.ResponseCode)))
	m.Set("responseMessage", tree.String(d.ResponseMessage))
	m.Set("headers", tree.MapOf(d.HeaderMap()))
	m.Set("body", d.Body)
	return tree.MapOf(m)
}

func reasonPhrase(code int) string {
	return http.StatusText(code)
}
