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
	"crypto/sha256"
	"encoding/hex"
	"sync"
	"time"

	"github.com/tombee/apiscenario/pkg/spec"
)

// CachingAdapter reuses a session per username while it stays valid.
// It is safe for concurrent use.
type CachingAdapter struct {
	inner Adapter
	now   func() time.Time

	mu       sync.Mutex
	sessions map[string]*Session
}

// NewCachingAdapter wraps inner.
func NewCachingAdapter(inner Adapter) *CachingAdapter {
	return &CachingAdapter{
		inner:    inner,
		now:      time.Now,
		sessions: make(map[string]*Session),
	}
}

// Authenticate implements Adapter. Sessions are keyed by username and a
// digest of the password, so different credentials for one username are
// authenticated separately.
func (c *CachingAdapter) Authenticate(ctx context.Context, user *spec.User) (*Session, error) {
	key := cacheKey(user)
	c.mu.Lock()
	s, ok := c.sessions[key]
	c.mu.Unlock()
	if ok && s.Valid(c.now()) {
		return s, nil
	}

	s, err := c.inner.Authenticate(ctx, user)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	c.sessions[key] = s
	c.mu.Unlock()
	return s, nil
}

func cacheKey(user *spec.User) string {
	sum := sha256.Sum256([]byte(user.Password))
	return user.Username + "\x00" + hex.EncodeToString(sum[:])
}

// Forget drops every cached session.
func (c *CachingAdapter) Forget() {
	c.mu.Lock()
	clear(c.sessions)
	c.mu.Unlock()
}
