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

package secrets

import (
	"context"
	"fmt"
	"os"
	"strings"
)

// FileBackend reads a secret from the file named by the key, trimming
// surrounding whitespace. Container secret mounts use this shape.
type FileBackend struct{}

// NewFileBackend creates a new file backend.
func NewFileBackend() *FileBackend {
	return &FileBackend{}
}

// Name returns the backend identifier.
func (f *FileBackend) Name() string {
	return "file"
}

// Get reads the file at key.
func (f *FileBackend) Get(_ context.Context, key string) (string, error) {
	data, err := os.ReadFile(key)
	if err != nil {
		if os.IsNotExist(err) {
			return "", fmt.Errorf("%w: %s", ErrSecretNotFound, key)
		}
		return "", fmt.Errorf("reading secret file: %w", err)
	}
	return strings.TrimSpace(string(data)), nil
}
