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

// Package scenario runs test specifications against a live API.
//
// A Context holds one call: its specification, the synthesized request
// and the normalized response. Contexts form a tree; a dependent call is
// a child that runs to completion before its parent's own request is
// built. Values flow from completed calls into later ones through
// back-reference expressions evaluated against an immutable
// backref.Table, so a child never holds a pointer to its parent.
//
// The Player drives contexts through the steps of a scenario: load the
// specification, authenticate users, prepare the request, submit it, and
// verify the response.
package scenario

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/tombee/apiscenario/internal/auth"
	"github.com/tombee/apiscenario/internal/backref"
	apierrors "github.com/tombee/apiscenario/pkg/errors"
	"github.com/tombee/apiscenario/pkg/request"
	"github.com/tombee/apiscenario/pkg/response"
	"github.com/tombee/apiscenario/pkg/spec"
	"github.com/tombee/apiscenario/pkg/tree"
)

// State is the lifecycle position of a Context.
type State int

const (
	Pending State = iota
	Verified
	Failed
	Skipped
)

func (s State) String() string {
	switch s {
	case Pending:
		return "pending"
	case Verified:
		return "verified"
	case Failed:
		return "failed"
	case Skipped:
		return "skipped"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// Context is one node of the scenario tree.
type Context struct {
	// ID is unique per context and appears in logs and history.
	ID string

	// Name is the key a parent's back-references use for this call,
	// normally the step text the call was declared with.
	Name string

	// Tag labels log lines and narration, and is shared by the whole tree.
	Tag string

	Spec         *spec.Specification
	Request      *request.Descriptor
	Response     *response.Descriptor
	InvokingUser *spec.User
	Session      *auth.Session

	State   State
	Err     error
	Outcome *Outcome

	sink      Sink
	children  []*Context
	userCount int
	view      backref.Table
	published bool
}

// NewContext creates an empty context.
func NewContext(name string) *Context {
	return &Context{
		ID:   uuid.NewString(),
		Name: name,
		view: backref.Empty(),
	}
}

// AddChild appends a dependent call. The child sees this context as its
// parent and this context's completed children as its siblings.
func (c *Context) AddChild(child *Context) {
	child.view = c.Table().ForChild()
	if child.Tag == "" {
		child.Tag = c.Tag
	}
	if child.sink == nil {
		child.sink = c.sink
	}
	c.children = append(c.children, child)
}

// Children returns the dependent calls in declaration order.
func (c *Context) Children() []*Context {
	return append([]*Context(nil), c.children...)
}

// NextUserIndex returns the position of the next declared user to verify
// and advances the counter.
func (c *Context) NextUserIndex() int {
	i := c.userCount
	c.userCount++
	return i
}

// UserCount returns how many users have been verified or skipped so far.
func (c *Context) UserCount() int {
	return c.userCount
}

// SetRequest records the synthesized request. It fails if a request was
// already set or a child has not completed successfully.
func (c *Context) SetRequest(d *request.Descriptor) error {
	if c.Request != nil {
		return transitionError(c, "request already set")
	}
	for _, child := range c.children {
		if child.State != Verified {
			return transitionError(c, fmt.Sprintf("dependent call %q is %s", child.Name, child.State))
		}
	}
	c.Request = d
	return nil
}

// SetResponse records the normalized response. It can be set once.
func (c *Context) SetResponse(d *response.Descriptor) error {
	if c.Response != nil {
		return transitionError(c, "response already set")
	}
	c.Response = d
	return nil
}

// Snapshot renders the context for back-reference lookups.
func (c *Context) Snapshot() tree.Value {
	m := tree.NewMap()
	m.Set("id", tree.String(c.ID))
	m.Set("name", tree.String(c.Name))
	if c.Spec != nil {
		m.Set("specId", tree.String(c.Spec.ID()))
		m.Set("request", c.Spec.Snapshot())
	}
	if c.Response != nil {
		m.Set("response", c.Response.Snapshot())
	}
	return tree.MapOf(m)
}

// Table returns what back-references in this context can see: its own
// snapshot, its parent, its siblings at the time it was added, and its
// own children that have published their results.
func (c *Context) Table() backref.Table {
	t := c.view.WithSelf(c.Snapshot())
	for _, child := range c.children {
		if child.published {
			t = t.WithChild(child.Name, child.Snapshot())
		}
	}
	return t
}

// InjectBefore resolves back-references in the request half of the
// specification: uri, headers, path variables, query params, body and
// user credentials.
func (c *Context) InjectBefore(ctx context.Context, r *backref.Resolver) error {
	if c.Spec == nil {
		return transitionError(c, "no test data loaded")
	}
	t := c.Table()
	s := c.Spec.Clone()

	uri, err := r.ResolveString(ctx, s.URI, t)
	if err != nil {
		return injectError(c, "uri", err)
	}
	s.URI = uri.Text()

	fields := []struct {
		name string
		v    *tree.Value
	}{
		{"request.headers", &s.Request.Headers},
		{"request.pathVariables", &s.Request.PathVariables},
		{"request.queryParams", &s.Request.QueryParams},
		{"request.body", &s.Request.Body},
	}
	for _, f := range fields {
		if !backref.ContainsAny(*f.v) {
			continue
		}
		resolved, err := r.ResolveValue(ctx, *f.v, t)
		if err != nil {
			return injectError(c, f.name, err)
		}
		*f.v = resolved
	}

	for i, entry := range s.Users {
		if err := resolveUserRefs(ctx, r, t, entry.User); err != nil {
			return injectError(c, fmt.Sprintf("users[%d]", i), err)
		}
	}

	c.Spec = s
	return nil
}

// InjectAfter resolves back-references in the expected response, which
// may now refer to this call's own response, and publishes the context
// to later siblings.
func (c *Context) InjectAfter(ctx context.Context, r *backref.Resolver) error {
	if c.Response == nil {
		return transitionError(c, "no response to publish")
	}
	t := c.Table()
	s := c.Spec.Clone()
	for _, f := range []struct {
		name string
		v    *tree.Value
	}{
		{"expectedResponse.headers", &s.Expected.Headers},
		{"expectedResponse.body", &s.Expected.Body},
	} {
		if !backref.ContainsAny(*f.v) {
			continue
		}
		resolved, err := r.ResolveValue(ctx, *f.v, t)
		if err != nil {
			return injectError(c, f.name, err)
		}
		*f.v = resolved
	}
	c.Spec = s
	c.published = true
	return nil
}

func resolveUserRefs(ctx context.Context, r *backref.Resolver, t backref.Table, u *spec.User) error {
	for _, field := range []*string{&u.Username, &u.Password} {
		if !backref.Contains(*field) {
			continue
		}
		v, err := r.ResolveString(ctx, *field, t)
		if err != nil {
			return err
		}
		*field = v.Text()
	}
	return nil
}

func (c *Context) fail(err error) error {
	c.State = Failed
	if c.Err == nil {
		c.Err = err
	}
	return err
}

func transitionError(c *Context, msg string) error {
	return &apierrors.StageError{
		Type:    apierrors.TypeContextTransition,
		Context: c.label(),
		Message: msg,
	}
}

func injectError(c *Context, field string, err error) error {
	return &apierrors.StageError{
		Type:    apierrors.TypeContextTransition,
		Context: c.label(),
		Message: "failed to resolve " + field,
		Cause:   err,
	}
}

func (c *Context) label() string {
	if c.Spec != nil && c.Spec.ID() != "" {
		return c.Spec.ID()
	}
	if c.Name != "" {
		return c.Name
	}
	return c.ID
}
