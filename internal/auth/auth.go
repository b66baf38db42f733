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

// Package auth logs scenario users in against the system under test.
//
// An Adapter turns a resolved user into a Session whose token is attached
// to the invoking user's call. Implementations cover OAuth2 password
// grants, locally minted JWTs for stub servers, and a no-op for open
// endpoints.
package auth

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/tombee/apiscenario/pkg/spec"
)

// Session is an authenticated user.
type Session struct {
	Username    string
	AccessToken string
	TokenType   string

	// Expiry is zero for sessions that never expire.
	Expiry time.Time
}

// Authorization returns the Authorization header value, or "" when the
// session carries no token.
func (s *Session) Authorization() string {
	if s == nil || s.AccessToken == "" {
		return ""
	}
	typ := s.TokenType
	if typ == "" {
		typ = "Bearer"
	}
	return typ + " " + s.AccessToken
}

// Valid reports whether the session is usable at now. A small leeway
// avoids handing out a token that expires in flight.
func (s *Session) Valid(now time.Time) bool {
	if s == nil {
		return false
	}
	return s.Expiry.IsZero() || now.Add(10*time.Second).Before(s.Expiry)
}

// Adapter authenticates users.
type Adapter interface {
	Authenticate(ctx context.Context, user *spec.User) (*Session, error)
}

// Type selects an Adapter implementation.
type Type string

const (
	TypeNone           Type = "none"
	TypeOAuth2Password Type = "oauth2_password"
	TypeJWT            Type = "jwt"
)

// Config holds the settings for every adapter type; only the fields of
// the selected Type are read.
type Config struct {
	Type Type

	TokenURL     string
	ClientID     string
	ClientSecret string
	Scopes       []string

	JWTSecret string
	JWTTTL    time.Duration
	JWTIssuer string
}

// New builds the adapter cfg selects, wrapped in a CachingAdapter. The
// HTTP client is used for token requests; nil uses http.DefaultClient.
func New(cfg Config, client *http.Client) (Adapter, error) {
	var inner Adapter
	switch cfg.Type {
	case "", TypeNone:
		return NoopAdapter{}, nil
	case TypeOAuth2Password:
		a, err := NewOAuth2PasswordAdapter(cfg, client)
		if err != nil {
			return nil, err
		}
		inner = a
	case TypeJWT:
		a, err := NewJWTAdapter([]byte(cfg.JWTSecret), cfg.JWTIssuer, cfg.JWTTTL)
		if err != nil {
			return nil, err
		}
		inner = a
	default:
		return nil, fmt.Errorf("unknown auth type %q", cfg.Type)
	}
	return NewCachingAdapter(inner), nil
}

// NoopAdapter accepts every user and returns a session without a token.
type NoopAdapter struct{}

// Authenticate implements Adapter.
func (NoopAdapter) Authenticate(_ context.Context, user *spec.User) (*Session, error) {
	return &Session{Username: user.Username}, nil
}
