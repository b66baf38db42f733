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
	"context"
	"errors"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// SkipError reports a scenario not run because a feature toggle is off.
type SkipError struct {
	Flag string
}

func (e *SkipError) Error() string {
	return fmt.Sprintf("skipped: feature toggle %s is off", e.Flag)
}

// IsSkipped reports whether err means the scenario was not run.
func IsSkipped(err error) bool {
	var skip *SkipError
	return errors.As(err, &skip)
}

// Run executes a whole scenario: prerequisite calls, the scenario's users,
// its request, submission to the operation its test data declares, the
// response class check and the detailed verification. Narration for the
// whole tree goes to sink.
func (p *Player) Run(ctx context.Context, sc *Scenario, sink Sink) (*Context, error) {
	c := NewContext(sc.Name)
	c.Tag = sc.Label()
	c.sink = sink

	ctx, span := p.tracer().Start(ctx, "scenario.run", trace.WithAttributes(
		attribute.String("apiscenario.scenario", sc.Name),
		attribute.String("apiscenario.spec_id", sc.SpecID()),
	))
	defer span.End()

	err := p.run(ctx, c, sc)
	switch {
	case err == nil:
		span.SetStatus(codes.Ok, "")
	case c.State == Skipped:
		span.SetAttributes(attribute.Bool("apiscenario.skipped", true))
	default:
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return c, err
}

func (p *Player) run(ctx context.Context, c *Context, sc *Scenario) error {
	if err := p.gate(c, sc.Tags); err != nil {
		return err
	}
	if err := p.InitializeTestData(ctx, c, sc.SpecID()); err != nil {
		return err
	}
	if err := p.gate(c, toggleTags(c.Spec.FeatureToggles)); err != nil {
		return err
	}

	for _, call := range sc.Calls {
		if _, err := p.PerformAndVerifyCall(ctx, c, call.Spec, call.ID); err != nil {
			return err
		}
	}

	if len(sc.Specs.Users) == 0 {
		if err := p.VerifyAllUsers(ctx, c); err != nil {
			return err
		}
	}
	for _, s := range sc.Specs.Users {
		if err := p.VerifyUser(ctx, c, s); err != nil {
			return err
		}
	}

	if err := p.PrepareRequest(ctx, c); err != nil {
		return err
	}
	for _, s := range sc.Specs.Request {
		if err := p.VerifyRequestSpec(c, s); err != nil {
			return err
		}
	}

	if err := p.Submit(ctx, c, c.Spec.OperationName, c.Spec.ProductName); err != nil {
		return err
	}

	switch sc.Outcome {
	case ExpectPositive:
		if err := p.VerifyPositiveResponse(c); err != nil {
			return err
		}
	case ExpectNegative:
		if err := p.VerifyNegativeResponse(c); err != nil {
			return err
		}
	}

	if err := p.VerifyResponseDetails(c); err != nil {
		return err
	}
	for _, s := range sc.Specs.Response {
		if err := p.VerifyResponseSpec(c, s); err != nil {
			return err
		}
	}
	return nil
}

func (p *Player) gate(c *Context, tags []string) error {
	if p.Gate == nil || len(tags) == 0 {
		return nil
	}
	if flag, blocked := p.Gate.Blocked(tags); blocked {
		c.State = Skipped
		p.logger(c).Info("scenario skipped", "flag", flag)
		p.narrate(c, "Scenario skipped: feature toggle %s is off", flag)
		return &SkipError{Flag: flag}
	}
	return nil
}

// toggleTags turns the bare toggle names a specification lists into the
// tag form scenarios use.
func toggleTags(names []string) []string {
	tags := make([]string, 0, len(names))
	for _, name := range names {
		tags = append(tags, "FeatureToggle("+name+")")
	}
	return tags
}
