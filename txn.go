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
	"fmt"

	"github.com/blinklabs-io/gobolt/bolt"
)

// ErrTransactionClosed is returned by operations on a committed or
// rolled-back transaction
var ErrTransactionClosed = errors.New("transaction is closed")

// Transaction is an explicit transaction pinned to a single connection
// for its whole lifetime. Closing without an explicit commit rolls back.
type Transaction struct {
	graph   *Graph
	conn    *bolt.Conn
	release func(*bolt.Conn)
	done    bool
}

// Run executes a statement inside the transaction and discards its
// records, returning the summary
func (tx *Transaction) Run(ctx context.Context, query *Query) (*ResultSummary, error) {
	stream, err := tx.Execute(ctx, query)
	if err != nil {
		return nil, err
	}
	if err := stream.Close(ctx); err != nil {
		return nil, err
	}
	return stream.Summary(), nil
}

// Execute runs a statement inside the transaction and returns its record
// stream. The stream borrows the transaction's connection: it must be
// exhausted or closed before the next statement, commit, or rollback.
func (tx *Transaction) Execute(ctx context.Context, query *Query) (*RowStream, error) {
	if tx.done {
		return nil, ErrTransactionClosed
	}
	// Inside a transaction the extras travelled with BEGIN; RUN carries
	// none
	success, err := tx.conn.Run(ctx, query.Text(), query.Params(), nil)
	if err != nil {
		return nil, err
	}
	// The stream does not release the pinned connection; the
	// transaction owns it until commit or rollback
	return newRowStream(tx.conn, nil, success, tx.graph.cfg.FetchSize), nil
}

// Commit commits the transaction and releases its connection
func (tx *Transaction) Commit(ctx context.Context) error {
	if tx.done {
		return ErrTransactionClosed
	}
	success, err := tx.conn.Commit(ctx)
	if err != nil {
		tx.close()
		return err
	}
	if bookmark, ok := success.String("bookmark"); ok {
		tx.graph.updateBookmark(bookmark)
	}
	tx.close()
	return nil
}

// Rollback aborts the transaction and releases its connection
func (tx *Transaction) Rollback(ctx context.Context) error {
	if tx.done {
		return ErrTransactionClosed
	}
	err := tx.conn.Rollback(ctx)
	tx.close()
	return err
}

// Close rolls the transaction back unless it was committed. Deferring
// Close right after Begin gives rollback-on-error semantics.
func (tx *Transaction) Close(ctx context.Context) error {
	if tx.done {
		return nil
	}
	err := tx.Rollback(ctx)
	if err != nil && !errors.Is(err, ErrTransactionClosed) {
		return fmt.Errorf("rollback on close: %w", err)
	}
	return nil
}

func (tx *Transaction) close() {
	if tx.done {
		return
	}
	tx.done = true
	if tx.release != nil {
		tx.release(tx.conn)
	}
}
