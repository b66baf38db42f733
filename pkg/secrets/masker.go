// Package secrets masks credentials and other sensitive values before
// they reach narration, logs or reports.
package secrets

import (
	"sort"
	"strings"
	"sync"

	"github.com/tombee/apiscenario/pkg/tree"
)

// Mask is the replacement text for a masked value.
const Mask = "***"

// MinSecretLength is the shortest value AddSecret accepts. Shorter values
// would mask unrelated text.
const MinSecretLength = 4

// Masker replaces registered secret values and the values of sensitive
// header or field names. It is safe for concurrent use.
type Masker struct {
	mu sync.RWMutex

	// patterns are name fragments that mark a field as sensitive
	patterns []string

	// secrets is the set of known secret values
	secrets map[string]struct{}
}

// NewMasker creates a masker with default name patterns.
func NewMasker() *Masker {
	return &Masker{
		patterns: []string{
			"authorization",
			"serviceauthorization",
			"cookie",
			"token",
			"secret",
			"password",
			"api-key",
			"apikey",
		},
		secrets: make(map[string]struct{}),
	}
}

// AddSecret registers a value to be masked wherever it appears.
func (m *Masker) AddSecret(value string) {
	if len(value) < MinSecretLength {
		return
	}
	m.mu.Lock()
	m.secrets[value] = struct{}{}
	m.mu.Unlock()
}

// IsSensitiveName reports whether a header or field name should always
// have its value hidden.
func (m *Masker) IsSensitiveName(name string) bool {
	lower := strings.ToLower(name)
	for _, p := range m.patterns {
		if strings.Contains(lower, p) {
			return true
		}
	}
	return false
}

// Mask replaces all known secrets in s. Longer secrets are replaced first
// so that a secret containing another is hidden completely.
func (m *Masker) Mask(s string) string {
	m.mu.RLock()
	known := make([]string, 0, len(m.secrets))
	for secret := range m.secrets {
		known = append(known, secret)
	}
	m.mu.RUnlock()
	sort.Slice(known, func(i, j int) bool { return len(known[i]) > len(known[j]) })

	for _, secret := range known {
		if strings.Contains(s, secret) {
			s = strings.ReplaceAll(s, secret, Mask)
		}
	}
	return s
}

// MaskValue returns a copy of v with secrets masked in every string and
// values under sensitive keys replaced entirely.
func (m *Masker) MaskValue(v tree.Value) tree.Value {
	switch v.Kind() {
	case tree.KindString:
		s, _ := v.AsString()
		return tree.String(m.Mask(s))
	case tree.KindMap:
		src, _ := v.AsMap()
		out := tree.NewMap()
		src.Range(func(k string, child tree.Value) bool {
			if child.Kind() == tree.KindString && m.IsSensitiveName(k) {
				out.Set(k, tree.String(Mask))
			} else {
				out.Set(k, m.MaskValue(child))
			}
			return true
		})
		return tree.MapOf(out)
	case tree.KindSequence:
		items, _ := v.AsSequence()
		out := make([]tree.Value, len(items))
		for i, item := range items {
			out[i] = m.MaskValue(item)
		}
		return tree.Sequence(out...)
	default:
		return v
	}
}
