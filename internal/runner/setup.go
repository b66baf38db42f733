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

package runner

import (
	"context"
	"fmt"
	"log/slog"

	"go.opentelemetry.io/otel/trace"

	"github.com/tombee/apiscenario/internal/auth"
	"github.com/tombee/apiscenario/internal/backref"
	"github.com/tombee/apiscenario/internal/config"
	"github.com/tombee/apiscenario/internal/featureflags"
	"github.com/tombee/apiscenario/internal/secrets"
	"github.com/tombee/apiscenario/internal/variables"
	pkgerrors "github.com/tombee/apiscenario/pkg/errors"
	"github.com/tombee/apiscenario/pkg/httpclient"
	"github.com/tombee/apiscenario/pkg/request"
	"github.com/tombee/apiscenario/pkg/response"
	"github.com/tombee/apiscenario/pkg/scenario"
	pkgsecrets "github.com/tombee/apiscenario/pkg/secrets"
	"github.com/tombee/apiscenario/pkg/spec"
	"github.com/tombee/apiscenario/pkg/verify"
)

// Options supplies collaborators NewPlayer does not build from config.
type Options struct {
	// Source overrides the directory loader built from cfg.Data.Dirs.
	Source spec.Source

	// Backends are registered with the variable resolver after the
	// defaults, replacing any with the same scheme.
	Backends []secrets.Backend

	Flags    *featureflags.Flags
	Tracer   trace.Tracer
	Observer scenario.Observer
}

// NewPlayer wires a scenario player from configuration.
func NewPlayer(ctx context.Context, cfg *config.Config, logger *slog.Logger, opts Options) (*scenario.Player, error) {
	if logger == nil {
		logger = slog.Default()
	}

	resolverOpts := []variables.Option{variables.WithLogger(logger)}
	for _, b := range opts.Backends {
		resolverOpts = append(resolverOpts, variables.WithBackend(b))
	}
	vars := variables.NewResolver(resolverOpts...)
	masker := pkgsecrets.NewMasker()

	authCfg := cfg.AuthAdapterConfig()
	for _, field := range []struct {
		key string
		val *string
	}{
		{"auth.client_secret", &authCfg.ClientSecret},
		{"auth.jwt_secret", &authCfg.JWTSecret},
	} {
		if *field.val == "" {
			continue
		}
		resolved, ok := vars.Resolve(ctx, *field.val)
		if !ok {
			return nil, &pkgerrors.ConfigError{Key: field.key, Reason: fmt.Sprintf("cannot resolve %s", *field.val)}
		}
		*field.val = resolved
		masker.AddSecret(resolved)
	}

	httpCfg := cfg.HTTPClientConfig(logger)
	client, err := httpclient.New(httpCfg)
	if err != nil {
		return nil, &pkgerrors.ConfigError{Key: "http", Reason: "invalid http client settings", Cause: err}
	}

	adapter, err := auth.New(authCfg, client)
	if err != nil {
		return nil, &pkgerrors.ConfigError{Key: "auth", Reason: "cannot build authentication adapter", Cause: err}
	}

	source := opts.Source
	if source == nil {
		loader, err := spec.NewLoader(logger, cfg.Data.Dirs...)
		if err != nil {
			return nil, &pkgerrors.ConfigError{Key: "data.dirs", Reason: "cannot index test data", Cause: err}
		}
		source = loader
	}

	policy, err := scenario.ParseHeaderPolicy(cfg.Target.HeaderPolicy)
	if err != nil {
		return nil, &pkgerrors.ConfigError{Key: "target.header_policy", Reason: err.Error()}
	}

	flags := opts.Flags
	if flags == nil {
		flags = featureflags.New(cfg.Flags)
	}

	return &scenario.Player{
		Source: source,
		Synthesizer: &request.Synthesizer{
			BaseURL:     cfg.Target.BaseURL,
			ResourceDir: cfg.Data.ResourceDir,
			TempDir:     cfg.Data.TempDir,
			Logger:      logger,
		},
		Normalizer: response.NewNormalizer(cfg.Data.TempDir, logger),
		Client:     client,
		Auth:       adapter,
		Variables:  vars,
		BackRefs:   backref.NewResolver(0),
		Checker:    scenario.NewChecker(policy, verify.NewEvaluator(), logger),
		Masker:     masker,
		Gate:       flags,
		Observer:   opts.Observer,
		Tracer:     opts.Tracer,
		Logger:     logger,
	}, nil
}

var _ scenario.Gate = (*featureflags.Flags)(nil)
