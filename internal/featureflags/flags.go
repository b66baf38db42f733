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

// Package featureflags decides whether scenarios gated on feature toggles
// may run.
//
// A scenario opts in with a tag naming the toggle:
//
//	FeatureToggle(ccd.get-case)
//	LaunchDarklyFlag(ccd.get-case)
//
// The toggle is looked up in the environment as APISCENARIO_FLAG_<NAME>,
// with the name upper-cased and every other character than a letter or
// digit replaced by an underscore, and then in the configured defaults.
// A toggle that is off or unknown blocks the scenario.
package featureflags

import (
	"os"
	"strconv"
	"strings"
	"sync"
)

// EnvPrefix starts every environment override.
const EnvPrefix = "APISCENARIO_FLAG_"

var tagPrefixes = []string{"FeatureToggle(", "LaunchDarklyFlag("}

// Flags holds toggle values with thread-safe access.
type Flags struct {
	mu       sync.RWMutex
	defaults map[string]bool

	lookupEnv func(string) (string, bool)
}

// New creates a flag set over the configured defaults.
func New(defaults map[string]bool) *Flags {
	f := &Flags{defaults: make(map[string]bool, len(defaults)), lookupEnv: os.LookupEnv}
	for name, on := range defaults {
		f.defaults[name] = on
	}
	return f
}

// Enabled reports whether the toggle is on.
func (f *Flags) Enabled(name string) bool {
	if val, ok := f.lookupEnv(EnvName(name)); ok && strings.TrimSpace(val) != "" {
		return parseBool(val)
	}
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.defaults[name]
}

// Set overrides a toggle, for tests and the --flag option.
func (f *Flags) Set(name string, enabled bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.defaults[name] = enabled
}

// Blocked returns the first toggle named by tags that is off.
func (f *Flags) Blocked(tags []string) (string, bool) {
	for _, name := range FromTags(tags) {
		if !f.Enabled(name) {
			return name, true
		}
	}
	return "", false
}

// FromTags extracts toggle names from scenario tags, in order.
func FromTags(tags []string) []string {
	var names []string
	for _, tag := range tags {
		tag = strings.TrimPrefix(strings.TrimSpace(tag), "@")
		for _, prefix := range tagPrefixes {
			if strings.HasPrefix(tag, prefix) && strings.HasSuffix(tag, ")") {
				if name := strings.TrimSpace(tag[len(prefix) : len(tag)-1]); name != "" {
					names = append(names, name)
				}
				break
			}
		}
	}
	return names
}

// EnvName returns the environment variable overriding a toggle.
func EnvName(name string) string {
	var b strings.Builder
	b.WriteString(EnvPrefix)
	for _, r := range strings.ToUpper(name) {
		if (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		} else {
			b.WriteByte('_')
		}
	}
	return b.String()
}

// parseBool converts a string to a boolean value.
// Accepts: "1", "t", "T", "true", "TRUE", "True"
func parseBool(val string) bool {
	val = strings.TrimSpace(val)
	if b, err := strconv.ParseBool(val); err == nil {
		return b
	}
	return false
}
