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

package spec

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/bmatcuk/doublestar/v4"
	"gopkg.in/yaml.v3"

	apierrors "github.com/tombee/apiscenario/pkg/errors"
)

// FilePattern matches specification files below a data directory.
const FilePattern = "**/*.td.{yaml,yml,json}"

// Source resolves specifications by identifier. Implementations return a
// fresh copy on every call; callers may modify it.
type Source interface {
	Load(id string) (*Specification, error)
}

// Loader finds specification files under a set of data directories.
// The identifier of a file is its name without the .td.* suffix. When
// several directories define the same identifier, the first one wins.
type Loader struct {
	dirs   []string
	logger *slog.Logger

	once  sync.Once
	index map[string]string
	err   error
}

// NewLoader creates a loader over dirs. Every directory must exist.
func NewLoader(logger *slog.Logger, dirs ...string) (*Loader, error) {
	if logger == nil {
		logger = slog.Default()
	}
	for _, dir := range dirs {
		if _, err := os.Stat(dir); err != nil {
			return nil, fmt.Errorf("data directory not found: %w", err)
		}
	}
	return &Loader{dirs: dirs, logger: logger}, nil
}

// Load reads the specification named id. Unknown identifiers yield a
// DataNotFoundError.
func (l *Loader) Load(id string) (*Specification, error) {
	l.once.Do(l.buildIndex)
	if l.err != nil {
		return nil, l.err
	}

	path, ok := l.index[id]
	if !ok {
		return nil, &apierrors.DataNotFoundError{ID: id}
	}

	s, err := ReadFile(path)
	if err != nil {
		return nil, err
	}
	if s.GUID != "" && s.GUID != id {
		l.logger.Warn("specification _guid_ does not match its file name",
			"spec_id", id, "guid", s.GUID, "source", path)
	}
	s.GUID = id
	l.logger.Debug("loaded specification", "spec_id", id, "source", path)
	return s, nil
}

// IDs returns every identifier known to the loader, sorted.
func (l *Loader) IDs() ([]string, error) {
	l.once.Do(l.buildIndex)
	if l.err != nil {
		return nil, l.err
	}
	ids := make([]string, 0, len(l.index))
	for id := range l.index {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

func (l *Loader) buildIndex() {
	l.index = make(map[string]string)
	for _, dir := range l.dirs {
		matches, err := doublestar.FilepathGlob(filepath.Join(dir, FilePattern))
		if err != nil {
			l.err = fmt.Errorf("scanning %s: %w", dir, err)
			return
		}
		sort.Strings(matches)
		for _, path := range matches {
			id := IDFromPath(path)
			if existing, dup := l.index[id]; dup {
				l.logger.Warn("duplicate specification identifier ignored",
					"spec_id", id, "kept", existing, "ignored", path)
				continue
			}
			l.index[id] = path
		}
	}
}

// IDFromPath derives a specification identifier from a file name.
func IDFromPath(path string) string {
	base := filepath.Base(path)
	for _, suffix := range []string{".td.yaml", ".td.yml", ".td.json"} {
		if strings.HasSuffix(base, suffix) {
			return strings.TrimSuffix(base, suffix)
		}
	}
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// ReadFile parses one specification file, trying YAML first and JSON
// second.
func ReadFile(path string) (*Specification, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	s, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	s.Source = path
	return s, nil
}

// Parse decodes a specification document.
func Parse(data []byte) (*Specification, error) {
	var s Specification
	if err := yaml.Unmarshal(data, &s); err != nil {
		s = Specification{}
		if jsonErr := json.Unmarshal(data, &s); jsonErr != nil {
			return nil, fmt.Errorf("failed to parse specification as YAML or JSON: yaml=%v, json=%v", err, jsonErr)
		}
	}
	return &s, nil
}

// MemorySource serves specifications from memory, keyed by identifier.
type MemorySource map[string]*Specification

// Load implements Source.
func (m MemorySource) Load(id string) (*Specification, error) {
	s, ok := m[id]
	if !ok {
		return nil, &apierrors.DataNotFoundError{ID: id}
	}
	out := s.Clone()
	out.GUID = id
	return out, nil
}

var (
	_ Source = (*Loader)(nil)
	_ Source = MemorySource(nil)
)
