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
	"context"
	"errors"

	"github.com/blinklabs-io/gobolt/bolt"
)

// RowStream is a lazy cursor over the records of one statement. Records
// are fetched from the server in batches of the configured fetch size as
// the caller advances.
type RowStream struct {
	conn    *bolt.Conn
	release func(*bolt.Conn)

	fields    []string
	qid       int64
	fetchSize int64
	runMeta   map[string]any

	buffer        [][]any
	serverHasMore bool
	pulled        bool
	finished      bool
	summary       *ResultSummary
	err           error

	// onComplete runs once when the stream finishes with a summary
	onComplete func(*ResultSummary)
}

func newRowStream(
	conn *bolt.Conn,
	release func(*bolt.Conn),
	runSuccess bolt.Success,
	fetchSize int64,
) *RowStream {
	qid, ok := runSuccess.Int("qid")
	if !ok {
		qid = bolt.LastQuery
	}
	if fetchSize == 0 {
		fetchSize = DefaultFetchSize
	}
	return &RowStream{
		conn:      conn,
		release:   release,
		fields:    runSuccess.Strings("fields"),
		qid:       qid,
		fetchSize: fetchSize,
		runMeta:   runSuccess.Metadata,
	}
}

// Fields returns the column names of the stream
func (s *RowStream) Fields() []string {
	return s.fields
}

// Next returns the next record, or nil when the stream is exhausted.
// After exhaustion the summary is available.
func (s *RowStream) Next(ctx context.Context) (*Row, error) {
	for {
		if len(s.buffer) > 0 {
			values := s.buffer[0]
			s.buffer = s.buffer[1:]
			return &Row{fields: s.fields, values: values}, nil
		}
		if s.finished {
			return nil, s.err
		}
		if s.pulled && !s.serverHasMore {
			// Exhausted on the server side
			s.finish(nil)
			return nil, s.err
		}
		batch, err := s.conn.Pull(ctx, s.qid, s.fetchSize)
		if err != nil {
			s.fail(ctx, err)
			return nil, err
		}
		s.pulled = true
		s.serverHasMore = batch.HasMore
		s.buffer = batch.Records
		if !batch.HasMore {
			s.summary = newSummary(s.runMeta, batch.Summary)
		}
		if len(s.buffer) == 0 {
			s.finish(nil)
			return nil, s.err
		}
	}
}

// Collect drains the stream and returns all remaining rows
func (s *RowStream) Collect(ctx context.Context) ([]*Row, error) {
	var out []*Row
	for {
		row, err := s.Next(ctx)
		if err != nil {
			return out, err
		}
		if row == nil {
			return out, nil
		}
		out = append(out, row)
	}
}

// Summary returns the statement summary. It is available once the stream
// is exhausted or closed.
func (s *RowStream) Summary() *ResultSummary {
	return s.summary
}

// Close discards any remaining records and returns the connection. It is
// safe to call multiple times.
func (s *RowStream) Close(ctx context.Context) error {
	if s.finished {
		return nil
	}
	s.buffer = nil
	if s.pulled && !s.serverHasMore {
		s.finish(nil)
		return nil
	}
	batch, err := s.conn.Discard(ctx, s.qid, bolt.All)
	if err != nil {
		s.fail(ctx, err)
		return err
	}
	if !batch.HasMore {
		s.summary = newSummary(s.runMeta, batch.Summary)
	}
	s.finish(nil)
	return nil
}

// finish releases the connection back to its owner exactly once
func (s *RowStream) finish(err error) {
	if s.finished {
		return
	}
	s.finished = true
	s.err = err
	if s.onComplete != nil && err == nil {
		s.onComplete(s.summary)
	}
	if s.release != nil {
		s.release(s.conn)
	}
}

// fail terminates the stream after an error. Query-level failures leave
// the connection in the failed state, so a reset is issued before the
// connection goes back to the pool.
func (s *RowStream) fail(ctx context.Context, err error) {
	var serverErr *ServerError
	if errors.As(err, &serverErr) && s.conn.IsAlive() {
		_ = s.conn.Reset(ctx)
	}
	s.finish(err)
}
