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

package tracing

import "io"

// Config holds observability configuration.
type Config struct {
	// ServiceName identifies this process in spans.
	ServiceName string

	// ServiceVersion is the application version.
	ServiceVersion string

	// TraceFile receives spans. Empty with a nil TraceWriter disables
	// span export; spans are still created for propagation.
	TraceFile string

	// TraceWriter receives spans when TraceFile is empty.
	TraceWriter io.Writer

	// SampleRate is the fraction of root spans kept, in (0, 1].
	// Zero keeps everything.
	SampleRate float64
}
