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
	"maps"
	"slices"
	"time"
)

// AccessMode hints whether a query reads or writes, steering routed
// connections to the matching server role
type AccessMode int

const (
	AccessModeWrite AccessMode = iota
	AccessModeRead
)

// Query is an immutable Cypher statement with parameter bindings and
// execution extras. The builder methods return modified copies, so a
// Query may be shared and reused freely.
type Query struct {
	text      string
	params    map[string]any
	db        string
	mode      AccessMode
	bookmarks []string
	timeout   time.Duration
	metadata  map[string]any
}

// NewQuery creates a query from Cypher text
func NewQuery(text string) *Query {
	return &Query{text: text}
}

// Text returns the Cypher text
func (q *Query) Text() string {
	return q.text
}

// Params returns the parameter bindings
func (q *Query) Params() map[string]any {
	return q.params
}

func (q *Query) clone() *Query {
	out := *q
	out.params = maps.Clone(q.params)
	out.bookmarks = slices.Clone(q.bookmarks)
	out.metadata = maps.Clone(q.metadata)
	return &out
}

// WithParam returns a copy of the query with one parameter bound
func (q *Query) WithParam(key string, value any) *Query {
	out := q.clone()
	if out.params == nil {
		out.params = map[string]any{}
	}
	out.params[key] = value
	return out
}

// WithParams returns a copy of the query with all given parameters bound
func (q *Query) WithParams(params map[string]any) *Query {
	out := q.clone()
	if out.params == nil {
		out.params = map[string]any{}
	}
	maps.Copy(out.params, params)
	return out
}

// WithDatabase returns a copy of the query targeting the named database
func (q *Query) WithDatabase(db string) *Query {
	out := q.clone()
	out.db = db
	return out
}

// WithMode returns a copy of the query with an explicit access mode
func (q *Query) WithMode(mode AccessMode) *Query {
	out := q.clone()
	out.mode = mode
	return out
}

// Read returns a copy of the query marked as read-only
func (q *Query) Read() *Query {
	return q.WithMode(AccessModeRead)
}

// WithBookmarks returns a copy of the query carrying extra causal
// consistency tokens on top of the session's own
func (q *Query) WithBookmarks(bookmarks ...string) *Query {
	out := q.clone()
	out.bookmarks = append(out.bookmarks, bookmarks...)
	return out
}

// WithTimeout returns a copy of the query with a server-side transaction
// timeout
func (q *Query) WithTimeout(timeout time.Duration) *Query {
	out := q.clone()
	out.timeout = timeout
	return out
}

// WithMetadata returns a copy of the query with transaction metadata
// attached
func (q *Query) WithMetadata(metadata map[string]any) *Query {
	out := q.clone()
	out.metadata = maps.Clone(metadata)
	return out
}

// extra builds the RUN extras map for an auto-commit execution, merging
// the session's bookmarks with the query's own
func (q *Query) extra(defaultDB string, bookmarks []string) map[string]any {
	out := map[string]any{}
	db := q.db
	if db == "" {
		db = defaultDB
	}
	if db != "" {
		out["db"] = db
	}
	if q.mode == AccessModeRead {
		out["mode"] = "r"
	}
	merged := append(slices.Clone(bookmarks), q.bookmarks...)
	if len(merged) > 0 {
		list := make([]any, len(merged))
		for i, b := range merged {
			list[i] = b
		}
		out["bookmarks"] = list
	}
	if q.timeout > 0 {
		out["tx_timeout"] = q.timeout.Milliseconds()
	}
	if len(q.metadata) > 0 {
		out["tx_metadata"] = q.metadata
	}
	return out
}

// database resolves the effective database for this query
func (q *Query) database(defaultDB string) string {
	if q.db != "" {
		return q.db
	}
	return defaultDB
}
