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
	"log/slog"
	"net/http"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/tombee/apiscenario/internal/auth"
	"github.com/tombee/apiscenario/internal/backref"
	"github.com/tombee/apiscenario/internal/log"
	"github.com/tombee/apiscenario/internal/variables"
	apierrors "github.com/tombee/apiscenario/pkg/errors"
	"github.com/tombee/apiscenario/pkg/httpclient"
	"github.com/tombee/apiscenario/pkg/request"
	"github.com/tombee/apiscenario/pkg/response"
	"github.com/tombee/apiscenario/pkg/secrets"
	"github.com/tombee/apiscenario/pkg/spec"
	"github.com/tombee/apiscenario/pkg/tree"
)

const tracerName = "github.com/tombee/apiscenario/pkg/scenario"

// Doer sends HTTP requests. *http.Client satisfies it.
type Doer interface {
	Do(req *http.Request) (*http.Response, error)
}

// VariableResolver resolves credential placeholders. The boolean is false
// for a placeholder that could not be resolved.
type VariableResolver interface {
	Resolve(ctx context.Context, s string) (string, bool)
}

// Gate decides whether feature toggles named by tags are off.
type Gate interface {
	Blocked(tags []string) (flag string, blocked bool)
}

// Observer is told about every submitted call, after its response has
// been recorded on the context.
type Observer interface {
	CallCompleted(ctx context.Context, c *Context, elapsed time.Duration, err error)
}

// Player executes scenario steps. Its fields are configuration; a Player
// holds no per-scenario state and may run scenarios concurrently when its
// collaborators allow it.
type Player struct {
	Source      spec.Source
	Synthesizer *request.Synthesizer
	Normalizer  *response.Normalizer
	Client      Doer
	Auth        auth.Adapter
	Variables   VariableResolver
	BackRefs    *backref.Resolver
	Checker     *Checker
	Masker      *secrets.Masker

	// Gate, Observer and Tracer are optional.
	Gate     Gate
	Observer Observer
	Tracer   trace.Tracer

	// Sink receives narration for contexts that have none of their own.
	Sink   Sink
	Logger *slog.Logger
}

// NewPlayer creates a player over source with default collaborators:
// plain HTTP, no authentication, environment placeholders and the
// JustWarn header policy.
func NewPlayer(source spec.Source, baseURL string, logger *slog.Logger) *Player {
	if logger == nil {
		logger = slog.Default()
	}
	return &Player{
		Source:      source,
		Synthesizer: &request.Synthesizer{BaseURL: baseURL, Logger: logger},
		Normalizer:  response.NewNormalizer("", logger),
		Client:      http.DefaultClient,
		Auth:        auth.NoopAdapter{},
		Variables:   variables.NewResolver(variables.WithLogger(logger)),
		BackRefs:    backref.NewResolver(0),
		Checker:     NewChecker(JustWarn, nil, logger),
		Masker:      secrets.NewMasker(),
		Logger:      logger,
	}
}

func (p *Player) logger(c *Context) *slog.Logger {
	l := p.Logger
	if l == nil {
		l = slog.Default()
	}
	specID := ""
	if c.Spec != nil {
		specID = c.Spec.ID()
	}
	return log.WithContext(l, c.ID, specID)
}

func (p *Player) tracer() trace.Tracer {
	if p.Tracer != nil {
		return p.Tracer
	}
	return otel.Tracer(tracerName)
}

var defaultBackRefs = backref.NewResolver(0)

func (p *Player) masker() *secrets.Masker {
	if p.Masker == nil {
		return secrets.NewMasker()
	}
	return p.Masker
}

func (p *Player) narrate(c *Context, format string, args ...any) {
	sink := c.sink
	if sink == nil {
		sink = p.Sink
	}
	if sink == nil {
		return
	}
	sink.Write(p.masker().Mask(fmt.Sprintf(format, args...)))
}

func (p *Player) pretty(v tree.Value) string {
	return tree.Pretty(p.masker().MaskValue(v))
}

// InitializeTestData loads the specification named specID into c.
func (p *Player) InitializeTestData(_ context.Context, c *Context, specID string) error {
	s, err := p.Source.Load(specID)
	if err != nil {
		p.logger(c).Info(c.Tag + ": Test data was not found")
		return c.fail(err)
	}
	c.Spec = s
	p.logger(c).Info(c.Tag + ": Test data was loaded successfully")
	p.narrate(c, "Test data [%s] loaded", specID)
	return nil
}

// VerifyUser checks that the test data meets specification and
// authenticates the next declared user. A step naming more users than
// the test data declares is logged and otherwise ignored.
func (p *Player) VerifyUser(ctx context.Context, c *Context, specification string) error {
	if c.Spec == nil {
		return c.fail(transitionError(c, "no test data loaded"))
	}
	index := c.NextUserIndex()
	if !c.Spec.MeetsSpec(specification) {
		return c.fail(&apierrors.UnconfirmedDataSpecError{Spec: specification})
	}
	if index >= len(c.Spec.Users) {
		p.logger(c).Info(fmt.Sprintf(
			"The user [%s] will not be verified with authentication as it is not listed in test data.",
			specification))
		return nil
	}
	return p.verifyUserAt(ctx, c, index)
}

// VerifyAllUsers authenticates every remaining declared user in order.
func (p *Player) VerifyAllUsers(ctx context.Context, c *Context) error {
	if c.Spec == nil {
		return c.fail(transitionError(c, "no test data loaded"))
	}
	for c.UserCount() < len(c.Spec.Users) {
		if err := p.verifyUserAt(ctx, c, c.NextUserIndex()); err != nil {
			return err
		}
	}
	return nil
}

// UserPrefix names the user at index in log lines and errors.
func UserPrefix(index int) string {
	if index == 0 {
		return "users.invokingUser"
	}
	return fmt.Sprintf("users[%d]", index)
}

func (p *Player) verifyUserAt(ctx context.Context, c *Context, index int) error {
	prefix := UserPrefix(index)
	user := c.Spec.Users[index].User
	logger := p.logger(c).With(log.UserIndexKey, index)

	if err := resolveUserRefs(ctx, p.backRefs(), c.Table(), user); err != nil {
		return c.fail(injectError(c, prefix, err))
	}
	p.resolveUser(ctx, c, logger, prefix, user)

	p.narrate(c, "User being specified: %s", user.Username)

	adapter := p.Auth
	if adapter == nil {
		adapter = auth.NoopAdapter{}
	}
	session, err := adapter.Authenticate(ctx, user)
	if err != nil {
		return c.fail(&apierrors.AuthenticationError{
			Username: user.Username,
			Prefix:   fmt.Sprintf("%s: %s", c.Tag, prefix),
			Cause:    err,
		})
	}
	if session != nil {
		p.masker().AddSecret(session.AccessToken)
	}
	logger.Info(fmt.Sprintf("%s: %s [%s] authenticated.", c.Tag, prefix, user.Username))

	if index == 0 {
		c.InvokingUser = user
		c.Session = session
	}
	return nil
}

// resolveUser replaces credential placeholders in place. A value that
// stays as written is allowed but reported, since higher environments
// expect credentials to come from the environment.
func (p *Player) resolveUser(ctx context.Context, c *Context, logger *slog.Logger, prefix string, user *spec.User) {
	resolver := p.Variables
	if resolver == nil {
		resolver = variables.NewResolver()
	}

	username, _ := resolver.Resolve(ctx, user.Username)
	if username == user.Username {
		logger.Warn(fmt.Sprintf("%s: Expected environment variable declaration for %s.username but found '%s', which may cause issues in higher environments",
			c.Tag, prefix, username))
	}

	password, _ := resolver.Resolve(ctx, user.Password)
	if password == user.Password {
		logger.Warn(fmt.Sprintf("%s: Expected environment variable declaration for %s.password but found a literal value, which may cause issues in higher environments",
			c.Tag, prefix))
	}

	user.Username = username
	user.Password = password
	p.masker().AddSecret(password)
}

// PrepareRequest resolves back-references and synthesizes the request.
func (p *Player) PrepareRequest(ctx context.Context, c *Context) error {
	if err := c.InjectBefore(ctx, p.backRefs()); err != nil {
		return c.fail(err)
	}
	d, err := p.Synthesizer.Synthesize(c.Spec)
	if err != nil {
		return c.fail(err)
	}
	if err := c.SetRequest(d); err != nil {
		return c.fail(err)
	}
	p.narrate(c, "Request prepared with the following variables: %s", p.pretty(c.Spec.Snapshot()))
	p.logger(c).Debug("request prepared", "curl", p.masker().Mask(d.Curl()))
	return nil
}

// VerifyRequestSpec checks that the test data meets specification.
func (p *Player) VerifyRequestSpec(c *Context, specification string) error {
	return p.meetsSpec(c, specification)
}

// VerifyResponseSpec checks that the test data meets specification.
func (p *Player) VerifyResponseSpec(c *Context, specification string) error {
	return p.meetsSpec(c, specification)
}

func (p *Player) meetsSpec(c *Context, specification string) error {
	if c.Spec == nil {
		return c.fail(transitionError(c, "no test data loaded"))
	}
	if !c.Spec.MeetsSpec(specification) {
		return c.fail(&apierrors.UnconfirmedDataSpecError{Spec: specification})
	}
	return nil
}

// Submit sends the prepared request after confirming the test data calls
// operation of product, then normalizes and records the response.
func (p *Player) Submit(ctx context.Context, c *Context, operation, product string) error {
	if c.Spec == nil {
		return c.fail(transitionError(c, "no test data loaded"))
	}
	if !c.Spec.MeetsOperationOfProduct(product, operation) {
		return c.fail(&apierrors.UnconfirmedAPICallError{Product: product, Operation: operation})
	}
	if c.Request == nil {
		return c.fail(transitionError(c, "request has not been prepared"))
	}

	ctx, span := p.tracer().Start(ctx, "scenario.submit", trace.WithAttributes(
		attribute.String("apiscenario.spec_id", c.Spec.ID()),
		attribute.String("http.request.method", c.Request.Method),
		attribute.String("url.full", httpclient.SanitizeURLString(c.Request.URL)),
	))
	defer span.End()

	start := time.Now()
	resp, err := p.send(ctx, c)
	elapsed := time.Since(start)
	if err == nil {
		err = c.SetResponse(resp)
	}
	if p.Observer != nil {
		p.Observer.CallCompleted(ctx, c, elapsed, err)
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return c.fail(err)
	}
	span.SetAttributes(attribute.Int("http.response.status_code", resp.ResponseCode))
	p.logger(c).Info("call completed",
		log.MethodKey, c.Request.Method,
		log.URLKey, httpclient.SanitizeURLString(c.Request.URL),
		log.StatusKey, resp.ResponseCode,
		log.DurationKey, elapsed.Milliseconds())

	p.narrate(c, "Called: %s %s", c.Request.Method, httpclient.SanitizeURLString(c.Request.URL))
	p.narrate(c, "Response:\n%s", p.pretty(resp.Snapshot()))

	if err := c.InjectAfter(ctx, p.backRefs()); err != nil {
		return c.fail(err)
	}
	return nil
}

func (p *Player) send(ctx context.Context, c *Context) (*response.Descriptor, error) {
	req, err := c.Request.Build(ctx)
	if err != nil {
		return nil, &apierrors.StageError{
			Type: apierrors.TypeRequestSynthesis, Context: c.label(),
			Message: "failed to build request", Cause: err,
		}
	}
	if authz := c.Session.Authorization(); authz != "" && req.Header.Get("Authorization") == "" {
		req.Header.Set("Authorization", authz)
	}

	client := p.Client
	if client == nil {
		client = http.DefaultClient
	}
	raw, err := client.Do(req)
	if err != nil {
		return nil, &apierrors.StageError{
			Type: apierrors.TypeResponseCapture, Context: c.label(),
			Message: "failed to call " + c.Request.Method + " " + httpclient.SanitizeURLString(c.Request.URL),
			Cause:   err,
		}
	}

	normalizer := p.Normalizer
	if normalizer == nil {
		normalizer = response.NewNormalizer("", p.Logger)
	}
	resp, err := normalizer.Normalize(raw, &c.Spec.Expected)
	if err != nil {
		var decodeErr *apierrors.BodyDecodeError
		if errors.As(err, &decodeErr) {
			p.narrate(c, "Can't convert the body to JSON: \n%s", decodeErr.Raw)
		}
		return nil, err
	}
	return resp, nil
}

func (p *Player) backRefs() *backref.Resolver {
	if p.BackRefs == nil {
		return defaultBackRefs
	}
	return p.BackRefs
}

// VerifyPositiveResponse checks that the response code is 2xx.
func (p *Player) VerifyPositiveResponse(c *Context) error {
	return p.verifyResponseClass(c, true)
}

// VerifyNegativeResponse checks that the response code is not 2xx.
func (p *Player) VerifyNegativeResponse(c *Context) error {
	return p.verifyResponseClass(c, false)
}

func (p *Player) verifyResponseClass(c *Context, positive bool) error {
	if c.Response == nil {
		return c.fail(transitionError(c, "no response received"))
	}
	code := c.Response.ResponseCode
	p.narrate(c, "Response code: %d", code)
	switch {
	case positive && !c.Response.IsSuccess():
		return c.fail(&apierrors.VerificationFailure{
			Message: fmt.Sprintf("Response code '%d' is not a success code.", code),
		})
	case !positive && c.Response.IsSuccess():
		return c.fail(&apierrors.VerificationFailure{
			Message: fmt.Sprintf("Response code '%d' is unexpectedly a success code.", code),
		})
	}
	return nil
}

// VerifyResponseDetails compares the actual response with the expected
// one and marks c verified when it matches.
func (p *Player) VerifyResponseDetails(c *Context) error {
	if c.Response == nil {
		return c.fail(transitionError(c, "no response received"))
	}
	checker := p.Checker
	if checker == nil {
		checker = NewChecker(JustWarn, nil, p.Logger)
	}
	o := checker.Check(&c.Spec.Expected, c.Response)
	c.Outcome = o
	if o.Failed() {
		p.narrate(c, "%s", o.Message)
		return c.fail(o.Err())
	}
	if len(o.Warnings) > 0 {
		p.narrate(c, "%s", o.Message)
	}
	c.State = Verified
	return nil
}

// PerformAndVerifyCall runs a dependent call of parent to completion: it
// loads specID, authenticates all of its users, prepares the request,
// confirms specName, submits to the operation the test data declares and
// verifies the response. Any failure also fails parent.
func (p *Player) PerformAndVerifyCall(ctx context.Context, parent *Context, specName, specID string) (*Context, error) {
	ctx, span := p.tracer().Start(ctx, "scenario.call", trace.WithAttributes(
		attribute.String("apiscenario.call", specName),
		attribute.String("apiscenario.spec_id", specID),
	))
	defer span.End()

	child := NewContext(specName)
	child.Tag = parent.Tag
	child.sink = parent.sink

	err := p.InitializeTestData(ctx, child, specID)
	if err == nil {
		parent.AddChild(child)
		err = p.runCall(ctx, child, specName)
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return child, parent.fail(fmt.Errorf("call [%s] as in [%s]: %w", specName, specID, err))
	}
	return child, nil
}

func (p *Player) runCall(ctx context.Context, c *Context, specName string) error {
	if err := p.VerifyAllUsers(ctx, c); err != nil {
		return err
	}
	if err := p.PrepareRequest(ctx, c); err != nil {
		return err
	}
	if err := p.VerifyRequestSpec(c, specName); err != nil {
		return err
	}
	if err := p.Submit(ctx, c, c.Spec.OperationName, c.Spec.ProductName); err != nil {
		return err
	}
	return p.VerifyResponseDetails(c)
}
