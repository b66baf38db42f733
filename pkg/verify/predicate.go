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

package verify

import (
	"fmt"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
	"github.com/google/uuid"

	"github.com/tombee/apiscenario/pkg/tree"
)

const (
	predicatePrefix = "[[EXPR:"
	predicateSuffix = "]]"
)

var defaultEvaluator = NewEvaluator()

// predicateOf extracts the expression from an expected "[[EXPR: ...]]"
// string.
func predicateOf(v tree.Value) (string, bool) {
	s, ok := v.AsString()
	if !ok || !strings.HasPrefix(s, predicatePrefix) || !strings.HasSuffix(s, predicateSuffix) {
		return "", false
	}
	return strings.TrimSpace(s[len(predicatePrefix) : len(s)-len(predicateSuffix)]), true
}

// Evaluator runs boolean expr-lang expressions with the compared value
// bound to "actual". Compiled programs are cached per expression.
type Evaluator struct {
	cache map[string]*vm.Program
	mu    sync.RWMutex
}

// NewEvaluator creates an evaluator with an empty cache.
func NewEvaluator() *Evaluator {
	return &Evaluator{cache: make(map[string]*vm.Program)}
}

// PredicateResult is the outcome of one evaluation.
type PredicateResult struct {
	Passed     bool
	Expression string
	Error      error
}

// Evaluate runs expression against actual.
func (e *Evaluator) Evaluate(expression string, actual tree.Value) PredicateResult {
	program, err := e.compile(expression)
	if err != nil {
		return PredicateResult{Expression: expression, Error: fmt.Errorf("failed to compile expression: %w", err)}
	}

	env := predicateFunctions()
	env["actual"] = actual.ToNative()

	out, err := expr.Run(program, env)
	if err != nil {
		return PredicateResult{Expression: expression, Error: fmt.Errorf("expression evaluation failed: %w", err)}
	}
	passed, ok := out.(bool)
	if !ok {
		return PredicateResult{Expression: expression, Error: fmt.Errorf("expression must return boolean, got %T", out)}
	}
	return PredicateResult{Passed: passed, Expression: expression}
}

func (e *Evaluator) compile(expression string) (*vm.Program, error) {
	e.mu.RLock()
	if prog, ok := e.cache[expression]; ok {
		e.mu.RUnlock()
		return prog, nil
	}
	e.mu.RUnlock()

	// actual stays undeclared so it type-checks as a dynamic value.
	prog, err := expr.Compile(expression,
		expr.Env(predicateFunctions()),
		expr.AllowUndefinedVariables(),
		expr.AsBool(),
	)
	if err != nil {
		return nil, err
	}

	e.mu.Lock()
	e.cache[expression] = prog
	e.mu.Unlock()
	return prog, nil
}

// CacheSize returns the number of compiled expressions.
func (e *Evaluator) CacheSize() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.cache)
}

// predicateFunctions are the helpers available to [[EXPR: ...]]
// expressions in addition to the expr-lang builtins.
func predicateFunctions() map[string]any {
	return map[string]any{
		"isUUID": func(v any) bool {
			s, ok := v.(string)
			if !ok {
				return false
			}
			_, err := uuid.Parse(s)
			return err == nil
		},
		"isTimestamp": func(v any) bool {
			s, ok := v.(string)
			if !ok {
				return false
			}
			for _, layout := range []string{time.RFC3339Nano, "2006-01-02T15:04:05.999999999", "2006-01-02"} {
				if _, err := time.Parse(layout, s); err == nil {
					return true
				}
			}
			return false
		},
		"match": func(v any, pattern string) (bool, error) {
			s, ok := v.(string)
			if !ok {
				return false, nil
			}
			re, err := regexp.Compile(pattern)
			if err != nil {
				return false, fmt.Errorf("match: invalid regex pattern: %w", err)
			}
			return re.MatchString(s), nil
		},
	}
}
