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

// Package variables resolves credential placeholders in specification
// values.
//
// Recognised forms, always spanning the whole value:
//
//	${VAR}                 environment variable
//	[[$VAR]]               environment variable
//	env:VAR                environment variable
//	keyring:service/key    system keychain entry
//	file:/path/to/secret   file contents, trimmed
//
// Anything else is a literal. A placeholder that cannot be resolved is
// returned unchanged so that environments using literal test credentials
// keep working; callers decide whether to warn.
package variables

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/tombee/apiscenario/internal/secrets"
)

// Reference is a parsed placeholder.
type Reference struct {
	// Scheme is the backend name ("env", "keyring", "file").
	Scheme string

	// Key is the backend-specific lookup key.
	Key string
}

// Parse reports whether s is a placeholder and returns its reference.
func Parse(s string) (Reference, bool) {
	v := strings.TrimSpace(s)
	switch {
	case strings.HasPrefix(v, "${") && strings.HasSuffix(v, "}") && !strings.HasPrefix(v, "${{"):
		return envRef(v[2 : len(v)-1])
	case strings.HasPrefix(v, "[[$") && strings.HasSuffix(v, "]]"):
		return envRef(v[3 : len(v)-2])
	}

	scheme, key, ok := strings.Cut(v, ":")
	if !ok || key == "" {
		return Reference{}, false
	}
	switch scheme {
	case "env", "keyring", "file":
		return Reference{Scheme: scheme, Key: key}, true
	}
	return Reference{}, false
}

func envRef(name string) (Reference, bool) {
	name = strings.TrimSpace(name)
	if name == "" {
		return Reference{}, false
	}
	return Reference{Scheme: "env", Key: name}, true
}

// Resolver looks placeholders up in a set of secret backends keyed by
// scheme.
type Resolver struct {
	backends map[string]secrets.Backend
	logger   *slog.Logger
}

// Option configures a Resolver.
type Option func(*Resolver)

// WithBackend registers or replaces the backend for its scheme.
func WithBackend(b secrets.Backend) Option {
	return func(r *Resolver) {
		r.backends[b.Name()] = b
	}
}

// WithLogger sets the logger used for backend failures.
func WithLogger(l *slog.Logger) Option {
	return func(r *Resolver) {
		r.logger = l
	}
}

// NewResolver creates a resolver over the process environment, the
// system keychain and the filesystem.
func NewResolver(opts ...Option) *Resolver {
	r := &Resolver{
		backends: make(map[string]secrets.Backend),
		logger:   slog.Default(),
	}
	for _, b := range []secrets.Backend{
		secrets.NewEnvBackend(),
		secrets.NewKeychainBackend(),
		secrets.NewFileBackend(),
	} {
		r.backends[b.Name()] = b
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Resolve returns the value s stands for. The boolean is false when s is
// a placeholder that could not be resolved, in which case s is returned
// unchanged. Literals resolve to themselves.
func (r *Resolver) Resolve(ctx context.Context, s string) (string, bool) {
	ref, ok := Parse(s)
	if !ok {
		return s, true
	}
	backend, ok := r.backends[ref.Scheme]
	if !ok {
		return s, false
	}
	value, err := backend.Get(ctx, ref.Key)
	if err != nil {
		if !errors.Is(err, secrets.ErrSecretNotFound) {
			r.logger.Debug("placeholder lookup failed",
				slog.String("scheme", ref.Scheme),
				slog.String("error", err.Error()))
		}
		return s, false
	}
	return value, true
}

// IsPlaceholder reports whether s would be looked up rather than used
// literally.
func IsPlaceholder(s string) bool {
	_, ok := Parse(s)
	return ok
}
