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

package scenario

import (
	"fmt"
	"io"
	"strings"
	"sync"
)

// Sink receives narration: the human-readable account of what a scenario
// did, attached to its report.
type Sink interface {
	Write(text string)
}

// WriterSink writes each narration entry as its own line to W.
type WriterSink struct {
	mu     sync.Mutex
	w      io.Writer
	prefix string
}

// NewWriterSink creates a sink over w. Each line is prefixed with prefix.
func NewWriterSink(w io.Writer, prefix string) *WriterSink {
	return &WriterSink{w: w, prefix: prefix}
}

// Write implements Sink.
func (s *WriterSink) Write(text string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, line := range strings.Split(strings.TrimRight(text, "\n"), "\n") {
		fmt.Fprintf(s.w, "%s%s\n", s.prefix, line)
	}
}

// Recorder keeps narration in memory, for reports and tests.
type Recorder struct {
	mu      sync.Mutex
	entries []string
}

// Write implements Sink.
func (r *Recorder) Write(text string) {
	r.mu.Lock()
	r.entries = append(r.entries, text)
	r.mu.Unlock()
}

// Entries returns a copy of everything written so far.
func (r *Recorder) Entries() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.entries...)
}

// String joins the entries with newlines.
func (r *Recorder) String() string {
	return strings.Join(r.Entries(), "\n")
}

type discardSink struct{}

func (discardSink) Write(string) {}

// multiSink fans out to several sinks.
type multiSink []Sink

func (m multiSink) Write(text string) {
	for _, s := range m {
		s.Write(text)
	}
}

// Tee returns a sink writing to every non-nil sink given.
func Tee(sinks ...Sink) Sink {
	var out multiSink
	for _, s := range sinks {
		if s != nil {
			out = append(out, s)
		}
	}
	switch len(out) {
	case 0:
		return discardSink{}
	case 1:
		return out[0]
	}
	return out
}
