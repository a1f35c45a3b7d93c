// Copyright 2025 Blink Labs Software
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

package bolt

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrVersionNotSupported means the server accepted none of the
	// proposed protocol versions
	ErrVersionNotSupported = errors.New("no common protocol version")
	// ErrDefunct means the connection can no longer be used and must be
	// discarded
	ErrDefunct = errors.New("connection is defunct")
	// ErrIgnored means the server ignored a request because the
	// connection is in the failed state and needs a RESET
	ErrIgnored = errors.New("request ignored by server")
)

// IllegalStateError is returned when an operation is attempted in a
// connection state that does not permit it
type IllegalStateError struct {
	State State
	Op    string
}

func (e IllegalStateError) Error() string {
	return fmt.Sprintf("cannot %s in connection state %s", e.Op, e.State)
}

// ServerError is a query-level failure reported by the server
type ServerError struct {
	Code    string
	Message string
}

func (e *ServerError) Error() string {
	return fmt.Sprintf("server error %s: %s", e.Code, e.Message)
}

// IsFatal reports whether the failure class makes the enclosing session
// unusable for this statement regardless of retries
func (e *ServerError) IsFatal() bool {
	return strings.HasPrefix(e.Code, "Neo.ClientError.Security.") ||
		strings.HasPrefix(e.Code, "Neo.ClientError.Statement.")
}

// IsRetryable reports whether the failure is transient and the statement
// may be retried as-is
func (e *ServerError) IsRetryable() bool {
	return strings.HasPrefix(e.Code, "Neo.TransientError.")
}

// AuthError means the server rejected the supplied credentials during
// authentication. The connection is closed and never pooled.
type AuthError struct {
	Server ServerError
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("authentication failed: %s", e.Server.Error())
}

func (e *AuthError) Unwrap() error {
	return &e.Server
}
