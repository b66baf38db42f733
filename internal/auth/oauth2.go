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

package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"golang.org/x/oauth2"

	"github.com/tombee/apiscenario/pkg/spec"
)

// OAuth2PasswordAdapter uses the resource owner password credentials
// grant against a token endpoint.
type OAuth2PasswordAdapter struct {
	config *oauth2.Config
	client *http.Client
}

// NewOAuth2PasswordAdapter validates cfg and creates the adapter.
func NewOAuth2PasswordAdapter(cfg Config, client *http.Client) (*OAuth2PasswordAdapter, error) {
	if cfg.TokenURL == "" {
		return nil, errors.New("oauth2 password adapter requires a token URL")
	}
	if client == nil {
		client = http.DefaultClient
	}
	return &OAuth2PasswordAdapter{
		config: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			Scopes:       cfg.Scopes,
			Endpoint: oauth2.Endpoint{
				TokenURL:  cfg.TokenURL,
				AuthStyle: oauth2.AuthStyleInParams,
			},
		},
		client: client,
	}, nil
}

// Authenticate implements Adapter.
func (a *OAuth2PasswordAdapter) Authenticate(ctx context.Context, user *spec.User) (*Session, error) {
	ctx = context.WithValue(ctx, oauth2.HTTPClient, a.client)
	token, err := a.config.PasswordCredentialsToken(ctx, user.Username, user.Password)
	if err != nil {
		var re *oauth2.RetrieveError
		if errors.As(err, &re) && re.Response != nil {
			return nil, fmt.Errorf("token endpoint returned %d: %w", re.Response.StatusCode, err)
		}
		return nil, err
	}
	return &Session{
		Username:    user.Username,
		AccessToken: token.AccessToken,
		TokenType:   token.Type(),
		Expiry:      token.Expiry,
	}, nil
}
