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

package errors

import (
	"errors"
	"fmt"
)

// Wrap annotates err with message. A nil err yields nil.
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}

// Wrapf annotates err with a formatted message. A nil err yields nil.
//
// Usage:
//
//	if err := loader.Load(id); err != nil {
//	    return errors.Wrapf(err, "loading specification %s", id)
//	}
func Wrapf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), err)
}

// Is wraps errors.Is from the standard library.
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As wraps errors.As from the standard library.
func As(err error, target interface{}) bool {
	return errors.As(err, target)
}

// New wraps errors.New from the standard library.
func New(message string) error {
	return errors.New(message)
}

// TypeOf walks err's chain and returns the ErrorType of the first
// ErrorClassifier found, or "" when none is present.
func TypeOf(err error) string {
	var classified ErrorClassifier
	if errors.As(err, &classified) {
		return classified.ErrorType()
	}
	return ""
}

// IsUsageError reports whether err stems from bad configuration or user
// input rather than from a scenario failing.
func IsUsageError(err error) bool {
	var cfgErr *ConfigError
	var valErr *ValidationError
	return errors.As(err, &cfgErr) || errors.As(err, &valErr)
}
