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

package shared

import (
	"errors"
	"fmt"
	"io"
	"os"

	pkgerrors "github.com/tombee/apiscenario/pkg/errors"
)

// Exit codes
const (
	ExitSuccess        = 0
	ExitScenarioFailed = 1
	ExitUsage          = 2
	ExitInterrupted    = 130
)

// ExitError is an error that carries an exit code
type ExitError struct {
	Code    int
	Message string
	Cause   error
}

func (e *ExitError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *ExitError) Unwrap() error {
	return e.Cause
}

// NewScenarioFailedError reports that at least one scenario failed.
func NewScenarioFailedError(msg string) *ExitError {
	return &ExitError{Code: ExitScenarioFailed, Message: msg}
}

// NewUsageError reports bad configuration, flags or scenario files.
func NewUsageError(msg string, cause error) *ExitError {
	return &ExitError{Code: ExitUsage, Message: msg, Cause: cause}
}

// ExitCode maps err to a process exit code. Configuration and validation
// errors anywhere in the chain are usage errors.
func ExitCode(err error) int {
	if err == nil {
		return ExitSuccess
	}
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}
	if pkgerrors.IsUsageError(err) {
		return ExitUsage
	}
	return ExitScenarioFailed
}

// HandleExitError prints err with any suggestion it carries and exits
// with its code.
func HandleExitError(err error) {
	if err == nil {
		return
	}
	PrintError(os.Stderr, err)
	os.Exit(ExitCode(err))
}

// PrintError writes "Error: <msg>" and the suggestion, if any.
func PrintError(w io.Writer, err error) {
	if msg := err.Error(); msg != "" {
		fmt.Fprintln(w, "Error:", msg)
	}
	if s := Suggestion(err); s != "" {
		fmt.Fprintf(w, "\nSuggestion: %s\n", s)
	}
}

// Suggestion returns the actionable hint of the first validation error
// in err's chain.
func Suggestion(err error) string {
	var valErr *pkgerrors.ValidationError
	if errors.As(err, &valErr) {
		return valErr.Suggestion
	}
	var cfgErr *pkgerrors.ConfigError
	if errors.As(err, &cfgErr) {
		return "check " + configHint(cfgErr.Key)
	}
	return ""
}

func configHint(key string) string {
	if key == "" || key == "config_file" {
		return "the config file passed with --config"
	}
	return fmt.Sprintf("the %s setting in the config file or its environment override", key)
}
