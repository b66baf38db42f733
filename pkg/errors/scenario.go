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
	"fmt"
	"strings"
)

// Error type identifiers returned by ErrorType.
const (
	TypeDataNotFound      = "data_not_found"
	TypeUnconfirmedSpec   = "unconfirmed_data_spec"
	TypeUnconfirmedCall   = "unconfirmed_api_call"
	TypeInvalidMethod     = "invalid_method"
	TypeBodyDecode        = "body_decode"
	TypeDepthExceeded     = "depth_exceeded"
	TypeVerification      = "verification"
	TypeAuthentication    = "authentication"
	TypeRequestSynthesis  = "request_synthesis"
	TypeResponseCapture   = "response_capture"
	TypeContextTransition = "context_transition"
)

// DataNotFoundError is returned when a specification identifier cannot be
// resolved by any configured data source.
type DataNotFoundError struct {
	ID string
}

func (e *DataNotFoundError) Error() string {
	return fmt.Sprintf("test data not found: %s", e.ID)
}

func (e *DataNotFoundError) ErrorType() string { return TypeDataNotFound }
func (e *DataNotFoundError) IsRetryable() bool { return false }

// UnconfirmedDataSpecError is returned when a loaded specification does not
// carry a tag a step asserted about it.
type UnconfirmedDataSpecError struct {
	Spec string
}

func (e *UnconfirmedDataSpecError) Error() string {
	return fmt.Sprintf("test data does not confirm it meets the spec: %s", e.Spec)
}

func (e *UnconfirmedDataSpecError) ErrorType() string { return TypeUnconfirmedSpec }
func (e *UnconfirmedDataSpecError) IsRetryable() bool { return false }

// UnconfirmedAPICallError is returned when a specification targets a
// different product or operation from the one a step expected to call.
type UnconfirmedAPICallError struct {
	Product   string
	Operation string
}

func (e *UnconfirmedAPICallError) Error() string {
	return fmt.Sprintf("test data does not confirm it calls the following operation of a product: %s -> %s",
		e.Operation, e.Product)
}

func (e *UnconfirmedAPICallError) ErrorType() string { return TypeUnconfirmedCall }
func (e *UnconfirmedAPICallError) IsRetryable() bool { return false }

// InvalidMethodError is returned for an HTTP method token outside the
// supported set.
type InvalidMethodError struct {
	Method string
}

func (e *InvalidMethodError) Error() string {
	return fmt.Sprintf("method '%s' in test data file not recognised", e.Method)
}

func (e *InvalidMethodError) ErrorType() string { return TypeInvalidMethod }
func (e *InvalidMethodError) IsRetryable() bool { return false }

// BodyDecodeError is returned when a response body cannot be parsed for
// its declared content type. Raw holds the text that failed to decode.
type BodyDecodeError struct {
	ContentType string
	Raw         string
	Cause       error
}

func (e *BodyDecodeError) Error() string {
	msg := "can't convert the body to JSON"
	if e.ContentType != "" {
		msg = fmt.Sprintf("%s (content type %s)", msg, e.ContentType)
	}
	if e.Cause != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Cause)
	}
	return msg
}

func (e *BodyDecodeError) Unwrap() error    { return e.Cause }
func (e *BodyDecodeError) ErrorType() string { return TypeBodyDecode }
func (e *BodyDecodeError) IsRetryable() bool { return false }

// DepthExceededError reports that structural comparison reached its
// recursion limit at Path.
type DepthExceededError struct {
	Path     string
	MaxDepth int
}

func (e *DepthExceededError) Error() string {
	return fmt.Sprintf("%s: maximum comparison depth %d exceeded", e.Path, e.MaxDepth)
}

func (e *DepthExceededError) ErrorType() string { return TypeDepthExceeded }
func (e *DepthExceededError) IsRetryable() bool { return false }

// VerificationFailure aggregates every issue found while verifying an
// actual response against the expected one. Message is the complete
// user-facing report; Issues holds the individual lines in report order.
type VerificationFailure struct {
	Message string
	Issues  []string
}

func (e *VerificationFailure) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return "verification failed:\n" + strings.Join(e.Issues, "\n")
}

func (e *VerificationFailure) ErrorType() string { return TypeVerification }
func (e *VerificationFailure) IsRetryable() bool { return false }

// AuthenticationError is returned when the authentication adapter rejects
// or fails to log in a user.
type AuthenticationError struct {
	Username string
	Prefix   string
	Cause    error
}

func (e *AuthenticationError) Error() string {
	who := e.Username
	if e.Prefix != "" {
		who = fmt.Sprintf("%s [%s]", e.Prefix, e.Username)
	}
	if e.Cause != nil {
		return fmt.Sprintf("%s could not authenticate: %v", who, e.Cause)
	}
	return fmt.Sprintf("%s could not authenticate", who)
}

func (e *AuthenticationError) Unwrap() error    { return e.Cause }
func (e *AuthenticationError) ErrorType() string { return TypeAuthentication }
func (e *AuthenticationError) IsRetryable() bool { return false }

// StageError wraps a failure of one pipeline stage (request synthesis,
// submission, context transitions) with the context it happened in.
type StageError struct {
	Type    string
	Context string
	Message string
	Cause   error
}

func (e *StageError) Error() string {
	msg := e.Message
	if e.Context != "" {
		msg = fmt.Sprintf("%s: %s", e.Context, msg)
	}
	if e.Cause != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Cause)
	}
	return msg
}

func (e *StageError) Unwrap() error    { return e.Cause }
func (e *StageError) ErrorType() string { return e.Type }
func (e *StageError) IsRetryable() bool { return false }

var (
	_ ErrorClassifier = (*DataNotFoundError)(nil)
	_ ErrorClassifier = (*UnconfirmedDataSpecError)(nil)
	_ ErrorClassifier = (*UnconfirmedAPICallError)(nil)
	_ ErrorClassifier = (*InvalidMethodError)(nil)
	_ ErrorClassifier = (*BodyDecodeError)(nil)
	_ ErrorClassifier = (*DepthExceededError)(nil)
	_ ErrorClassifier = (*VerificationFailure)(nil)
	_ ErrorClassifier = (*AuthenticationError)(nil)
	_ ErrorClassifier = (*StageError)(nil)
)
