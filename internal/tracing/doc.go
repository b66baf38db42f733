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

/*
Package tracing exports scenario spans and call metrics.

Spans started by the scenario player go to a trace file through the
OpenTelemetry stdout exporter, one JSON document per span. Metrics are
recorded with OpenTelemetry instruments, read by the Prometheus exporter
into a private registry and written out in the text exposition format.

	p, err := tracing.New(ctx, tracing.Config{
	    ServiceName: "apiscenario",
	    TraceFile:   "trace.json",
	})
	if err != nil {
	    return err
	}
	defer p.Shutdown(ctx)

	player.Tracer = p.Tracer("apiscenario")
	player.Observer = p.Metrics()

	// after the run
	_ = p.WriteMetrics("metrics.prom")
*/
package tracing
