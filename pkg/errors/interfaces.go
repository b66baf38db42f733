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

// ErrorClassifier defines methods for programmatic error handling.
// Every scenario failure type implements it so reporters and the run
// history can group failures by category.
type ErrorClassifier interface {
	error

	// ErrorType returns a string identifying the error category,
	// one of the Type* constants.
	ErrorType() string

	// IsRetryable reports whether repeating the operation could succeed.
	// Scenario failures never are: the engine has no retry.
	IsRetryable() bool
}
