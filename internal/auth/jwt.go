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
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/tombee/apiscenario/pkg/spec"
)

// DefaultJWTTTL is the lifetime of minted tokens when none is configured.
const DefaultJWTTTL = time.Hour

// Claims are the claims minted into scenario tokens.
type Claims struct {
	Roles []string `json:"roles,omitempty"`
	jwt.RegisteredClaims
}

// JWTAdapter mints HS256 tokens locally. It is meant for stub servers
// that share the secret; it verifies nothing about the password.
type JWTAdapter struct {
	secret []byte
	issuer string
	ttl    time.Duration
	now    func() time.Time
}

// NewJWTAdapter creates a minting adapter.
func NewJWTAdapter(secret []byte, issuer string, ttl time.Duration) (*JWTAdapter, error) {
	if len(secret) == 0 {
		return nil, errors.New("jwt adapter requires a secret")
	}
	if ttl <= 0 {
		ttl = DefaultJWTTTL
	}
	return &JWTAdapter{secret: secret, issuer: issuer, ttl: ttl, now: time.Now}, nil
}

// Authenticate implements Adapter.
func (a *JWTAdapter) Authenticate(_ context.Context, user *spec.User) (*Session, error) {
	if user.Username == "" {
		return nil, errors.New("username is empty")
	}
	now := a.now()
	expiry := now.Add(a.ttl)
	claims := Claims{
		Roles: user.Roles,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   user.Username,
			Issuer:    a.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiry),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.secret)
	if err != nil {
		return nil, fmt.Errorf("signing token: %w", err)
	}
	return &Session{
		Username:    user.Username,
		AccessToken: signed,
		TokenType:   "Bearer",
		Expiry:      expiry,
	}, nil
}

// Verify parses a token minted with the same secret. Stub servers use it
// to check the Authorization header they receive.
func (a *JWTAdapter) Verify(token string) (*Claims, error) {
	claims := &Claims{}
	_, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (interface{}, error) {
		return a.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithTimeFunc(a.now))
	if err != nil {
		return nil, err
	}
	return claims, nil
}
