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

// Package request synthesizes executable HTTP requests from the request
// half of a specification.
package request

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"sort"
	"strings"
)

// Methods is the closed set of accepted HTTP methods.
var Methods = []string{
	http.MethodGet,
	http.MethodHead,
	http.MethodPost,
	http.MethodPut,
	http.MethodPatch,
	http.MethodDelete,
	http.MethodOptions,
	http.MethodTrace,
}

// Part describes one multipart section; the content itself lives in the
// descriptor body.
type Part struct {
	Name     string `json:"name"`
	FileName string `json:"fileName,omitempty"`
	Size     int    `json:"size"`
}

// Descriptor is a synthesized request. It is write-once: build it with a
// Synthesizer and only read it afterwards.
type Descriptor struct {
	Method      string      `json:"method"`
	URL         string      `json:"url"`
	Header      http.Header `json:"headers,omitempty"`
	Body        []byte      `json:"-"`
	ContentType string      `json:"contentType,omitempty"`
	Parts       []Part      `json:"parts,omitempty"`
}

// Build creates an *http.Request for the descriptor. Each call returns a
// new request with its own body reader.
func (d *Descriptor) Build(ctx context.Context) (*http.Request, error) {
	var body *bytes.Reader
	if d.Body != nil {
		body = bytes.NewReader(d.Body)
	}

	var req *http.Request
	var err error
	if body != nil {
		req, err = http.NewRequestWithContext(ctx, d.Method, d.URL, body)
	} else {
		req, err = http.NewRequestWithContext(ctx, d.Method, d.URL, nil)
	}
	if err != nil {
		return nil, fmt.Errorf("building %s %s: %w", d.Method, d.URL, err)
	}
	for name, values := range d.Header {
		req.Header[name] = append([]string(nil), values...)
	}
	return req, nil
}

// Summary renders the "METHOD URL" line used in narration.
func (d *Descriptor) Summary() string {
	return d.Method + " " + d.URL
}

// Curl renders the request as an equivalent curl command line. Header
// values named like credentials are masked.
func (d *Descriptor) Curl() string {
	var b strings.Builder
	fmt.Fprintf(&b, "curl -X %s '%s'", d.Method, d.URL)

	names := make([]string, 0, len(d.Header))
	for name := range d.Header {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		for _, v := range d.Header[name] {
			if isSensitiveHeader(name) {
				v = "[REDACTED]"
			}
			fmt.Fprintf(&b, " -H '%s: %s'", name, v)
		}
	}
	if len(d.Parts) > 0 {
		for _, p := range d.Parts {
			if p.FileName != "" {
				fmt.Fprintf(&b, " -F '%s=@%s'", p.Name, p.FileName)
			} else {
				fmt.Fprintf(&b, " -F '%s=...'", p.Name)
			}
		}
	} else if len(d.Body) > 0 {
		fmt.Fprintf(&b, " -d '%s'", strings.ReplaceAll(string(d.Body), "'", `'\''`))
	}
	return b.String()
}

func isSensitiveHeader(name string) bool {
	lower := strings.ToLower(name)
	return lower == "authorization" || lower == "cookie" || strings.Contains(lower, "token") ||
		strings.Contains(lower, "secret") || strings.Contains(lower, "api-key")
}
