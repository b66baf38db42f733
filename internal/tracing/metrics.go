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

import (
	"context"
	"strconv"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/tombee/apiscenario/pkg/scenario"
)

// Metrics records calls and scenario results.
type Metrics struct {
	calls            metric.Int64Counter
	callDuration     metric.Float64Histogram
	scenarios        metric.Int64Counter
	scenarioDuration metric.Float64Histogram
}

// NewMetrics creates the instruments on a meter from provider.
func NewMetrics(provider metric.MeterProvider) (*Metrics, error) {
	meter := provider.Meter("apiscenario")
	m := &Metrics{}

	var err error
	m.calls, err = meter.Int64Counter(
		"apiscenario_calls",
		metric.WithDescription("API calls submitted to the target"),
		metric.WithUnit("{call}"),
	)
	if err != nil {
		return nil, err
	}

	m.callDuration, err = meter.Float64Histogram(
		"apiscenario_call_duration",
		metric.WithDescription("Time from sending a call to its normalized response"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30),
	)
	if err != nil {
		return nil, err
	}

	m.scenarios, err = meter.Int64Counter(
		"apiscenario_scenarios",
		metric.WithDescription("Scenarios finished, by final state"),
		metric.WithUnit("{scenario}"),
	)
	if err != nil {
		return nil, err
	}

	m.scenarioDuration, err = meter.Float64Histogram(
		"apiscenario_scenario_duration",
		metric.WithDescription("Wall time of a whole scenario"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}
	return m, nil
}

// CallCompleted implements scenario.Observer.
func (m *Metrics) CallCompleted(ctx context.Context, c *scenario.Context, elapsed time.Duration, err error) {
	attrs := []attribute.KeyValue{
		attribute.String("status_class", statusClass(c, err)),
	}
	if c.Spec != nil {
		attrs = append(attrs, attribute.String("spec_id", c.Spec.ID()))
	}
	if c.Request != nil {
		attrs = append(attrs, attribute.String("method", c.Request.Method))
	}
	set := metric.WithAttributes(attrs...)
	m.calls.Add(ctx, 1, set)
	m.callDuration.Record(ctx, elapsed.Seconds(), set)
}

// ScenarioFinished records the final state of a scenario tree.
func (m *Metrics) ScenarioFinished(ctx context.Context, state scenario.State, elapsed time.Duration) {
	set := metric.WithAttributes(attribute.String("state", state.String()))
	m.scenarios.Add(ctx, 1, set)
	m.scenarioDuration.Record(ctx, elapsed.Seconds(), set)
}

// statusClass is "2xx".."5xx" for a response, or "error" when the call
// produced none.
func statusClass(c *scenario.Context, err error) string {
	if err != nil || c.Response == nil {
		return "error"
	}
	return strconv.Itoa(c.Response.ResponseCode/100) + "xx"
}

var _ scenario.Observer = (*Metrics)(nil)
