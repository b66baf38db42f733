package backref

import (
	"context"
	"fmt"
	"os"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/itchyny/gojq"

	"github.com/tombee/apiscenario/pkg/tree"
)

// DefaultTimeout bounds the execution of a single expression.
const DefaultTimeout = time.Second

// expressionPattern matches ${{ expr }} and {{ .path }}.
var expressionPattern = regexp.MustCompile(`(\$?)\{\{\s*(.+?)\s*\}\}`)

// Resolver evaluates back-reference expressions. Compiled queries are
// cached, so a Resolver is meant to be shared. It is safe for concurrent
// use.
type Resolver struct {
	timeout time.Duration
	lookup  func(string) (string, bool)

	mu    sync.RWMutex
	cache map[string]*gojq.Code
}

// NewResolver creates a resolver. A zero timeout selects DefaultTimeout.
func NewResolver(timeout time.Duration) *Resolver {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Resolver{
		timeout: timeout,
		lookup:  os.LookupEnv,
		cache:   make(map[string]*gojq.Code),
	}
}

// Contains reports whether s holds at least one back-reference.
func Contains(s string) bool {
	for _, m := range expressionPattern.FindAllStringSubmatch(s, -1) {
		if m[1] == "$" || strings.HasPrefix(m[2], ".") {
			return true
		}
	}
	return false
}

// ContainsAny reports whether any string leaf of v holds a back-reference.
func ContainsAny(v tree.Value) bool {
	found := false
	_, _ = tree.ReplaceStrings(v, func(s string) (tree.Value, error) {
		if Contains(s) {
			found = true
		}
		return tree.String(s), nil
	})
	return found
}

// ResolveString evaluates the back-references in s. A string that is
// exactly one expression yields the expression's value with its own kind;
// otherwise each expression's text is substituted in place.
func (r *Resolver) ResolveString(ctx context.Context, s string, t Table) (tree.Value, error) {
	matches := expressionPattern.FindAllStringSubmatchIndex(s, -1)
	if len(matches) == 0 {
		return tree.String(s), nil
	}

	var doc any
	var b strings.Builder
	last := 0
	for _, m := range matches {
		dollar := s[m[2]:m[3]] == "$"
		expr := s[m[4]:m[5]]
		if !dollar && !strings.HasPrefix(expr, ".") {
			continue
		}
		if doc == nil {
			doc = t.Document().ToNative()
		}
		v, err := r.Evaluate(ctx, expr, doc)
		if err != nil {
			return tree.Null(), err
		}
		if m[0] == 0 && m[1] == len(s) {
			return v, nil
		}
		b.WriteString(s[last:m[0]])
		b.WriteString(v.Text())
		last = m[1]
	}
	b.WriteString(s[last:])
	return tree.String(b.String()), nil
}

// ResolveValue resolves every string leaf of v.
func (r *Resolver) ResolveValue(ctx context.Context, v tree.Value, t Table) (tree.Value, error) {
	return tree.ReplaceStrings(v, func(s string) (tree.Value, error) {
		return r.ResolveString(ctx, s, t)
	})
}

// Evaluate runs one jq expression against input, which must be plain
// gojq-compatible data. No result yields Null; several results yield a
// sequence.
func (r *Resolver) Evaluate(ctx context.Context, expression string, input any) (tree.Value, error) {
	code, err := r.compile(expression)
	if err != nil {
		return tree.Null(), err
	}

	execCtx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	iter := code.RunWithContext(execCtx, input)
	var results []any
	for {
		v, ok := iter.Next()
		if !ok {
			break
		}
		if err, isErr := v.(error); isErr {
			if execCtx.Err() != nil {
				return tree.Null(), fmt.Errorf("back-reference %q: execution timeout after %v", expression, r.timeout)
			}
			return tree.Null(), fmt.Errorf("back-reference %q: %w", expression, err)
		}
		results = append(results, v)
	}

	switch len(results) {
	case 0:
		return tree.Null(), nil
	case 1:
		return tree.FromAny(results[0]), nil
	default:
		return tree.FromAny(results), nil
	}
}

// Validate reports whether every back-reference in s compiles.
func (r *Resolver) Validate(s string) error {
	for _, m := range expressionPattern.FindAllStringSubmatch(s, -1) {
		if m[1] != "$" && !strings.HasPrefix(m[2], ".") {
			continue
		}
		if _, err := r.compile(m[2]); err != nil {
			return err
		}
	}
	return nil
}

func (r *Resolver) compile(expression string) (*gojq.Code, error) {
	r.mu.RLock()
	code, ok := r.cache[expression]
	r.mu.RUnlock()
	if ok {
		return code, nil
	}

	query, err := gojq.Parse(expression)
	if err != nil {
		return nil, fmt.Errorf("invalid back-reference %q: %w", expression, err)
	}
	code, err = gojq.Compile(query,
		gojq.WithFunction("uuid", 0, 0, func(any, []any) any {
			return uuid.NewString()
		}),
		gojq.WithFunction("env", 1, 1, func(_ any, args []any) any {
			name, ok := args[0].(string)
			if !ok {
				return fmt.Errorf("env: name must be a string, got %T", args[0])
			}
			if v, ok := r.lookup(name); ok {
				return v
			}
			return nil
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("back-reference %q failed to compile: %w", expression, err)
	}

	r.mu.Lock()
	r.cache[expression] = code
	r.mu.Unlock()
	return code, nil
}
