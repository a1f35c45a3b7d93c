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

package gobolt

import (
	"fmt"

	"github.com/blinklabs-io/gobolt/bolt"
	"github.com/blinklabs-io/gobolt/internal/pool"
	"github.com/blinklabs-io/gobolt/packstream"
	"github.com/blinklabs-io/gobolt/routing"
)

// Error kinds from the lower layers, re-exported so callers only need
// this package for error handling

// ServerError is a query-level failure reported by the server. Its code
// classifies the failure as fatal, retryable, or neither.
type ServerError = bolt.ServerError

// AuthError means the server rejected the configured credentials
type AuthError = bolt.AuthError

// IntegerOutOfBoundsError is a conversion failure: a decoded integer does
// not fit the requested Go type
type IntegerOutOfBoundsError = packstream.IntegerOutOfBoundsError

var (
	// ErrDefunct marks a connection that failed at the transport or
	// protocol level and was discarded
	ErrDefunct = bolt.ErrDefunct
	// ErrIgnored means the server ignored a request because a prior
	// failure has not been cleared with a reset
	ErrIgnored = bolt.ErrIgnored
	// ErrNoServer means the routing table offers no server for the
	// requested role
	ErrNoServer = routing.ErrNoServer
	// ErrPoolExhausted means no connection became available within the
	// caller's budget
	ErrPoolExhausted = pool.ErrExhausted
)

// ConversionError is a value-mapping failure when binding a record to a
// user type
type ConversionError struct {
	Field string
	Err   error
}

func (e *ConversionError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("conversion failed: %s", e.Err)
	}
	return fmt.Sprintf("conversion of %q failed: %s", e.Field, e.Err)
}

func (e *ConversionError) Unwrap() error {
	return e.Err
}
