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

// Package pool manages a bounded set of Bolt connections to a single
// endpoint. Connections are leased to exactly one owner at a time and
// validated when returned: anything not in the ready state is discarded.
package pool

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/blinklabs-io/gobolt/bolt"
)

var (
	// ErrClosed is returned by Acquire after the pool has shut down
	ErrClosed = errors.New("pool is closed")
	// ErrExhausted means no connection became available within the
	// caller's budget
	ErrExhausted = errors.New("pool exhausted")
)

// DialFunc establishes a new authenticated connection to the pool's
// endpoint
type DialFunc func(ctx context.Context) (*bolt.Conn, error)

// DefaultMaxConnections bounds the pool when no explicit limit is set
const DefaultMaxConnections = 16

// Config tunes a pool
type Config struct {
	MaxConnections int
	ConnectTimeout time.Duration
	Logger         *slog.Logger
}

// Pool is a bounded multiset of connections to one endpoint
type Pool struct {
	address string
	dial    DialFunc
	logger  *slog.Logger

	// idle holds returned, healthy connections; sem holds one token per
	// live connection and bounds the total
	idle chan *bolt.Conn
	sem  chan struct{}

	connectTimeout time.Duration

	mu     sync.Mutex
	closed bool
}

// New creates a pool for the given endpoint address
func New(address string, dial DialFunc, cfg Config) *Pool {
	maxConns := cfg.MaxConnections
	if maxConns <= 0 {
		maxConns = DefaultMaxConnections
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	connectTimeout := cfg.ConnectTimeout
	if connectTimeout == 0 {
		connectTimeout = bolt.DefaultConnectTimeout
	}
	return &Pool{
		address:        address,
		dial:           dial,
		logger:         logger,
		idle:           make(chan *bolt.Conn, maxConns),
		sem:            make(chan struct{}, maxConns),
		connectTimeout: connectTimeout,
	}
}

// Address returns the endpoint this pool connects to
func (p *Pool) Address() string {
	return p.address
}

// Acquire leases a connection, waiting until one is idle or the pool may
// create one. The caller owns the connection until Release.
func (p *Pool) Acquire(ctx context.Context) (*bolt.Conn, error) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil, ErrClosed
	}
	p.mu.Unlock()
	for {
		// Prefer an idle connection when one is available
		select {
		case conn := <-p.idle:
			if conn.IsReady() {
				return conn, nil
			}
			p.destroy(conn)
			continue
		default:
		}
		select {
		case conn := <-p.idle:
			if conn.IsReady() {
				return conn, nil
			}
			p.destroy(conn)
		case p.sem <- struct{}{}:
			conn, err := p.dialWithRetry(ctx)
			if err != nil {
				<-p.sem
				return nil, err
			}
			return conn, nil
		case <-ctx.Done():
			return nil, fmt.Errorf("%w: %w", ErrExhausted, ctx.Err())
		}
	}
}

// Release returns a leased connection. Connections that are not ready are
// closed and their slot freed.
func (p *Pool) Release(conn *bolt.Conn) {
	if conn == nil {
		return
	}
	p.mu.Lock()
	closed := p.closed
	p.mu.Unlock()
	if closed || !conn.IsReady() {
		p.destroy(conn)
		return
	}
	select {
	case p.idle <- conn:
	default:
		// Should not happen: sem bounds the number of live connections
		p.destroy(conn)
	}
}

// destroy closes a connection and frees its slot
func (p *Pool) destroy(conn *bolt.Conn) {
	_ = conn.Close()
	select {
	case <-p.sem:
	default:
	}
}

// dialWithRetry dials the endpoint with exponential backoff inside the
// connect budget. Authentication rejections are not retried.
func (p *Pool) dialWithRetry(ctx context.Context) (*bolt.Conn, error) {
	ctx, cancel := context.WithTimeout(ctx, p.connectTimeout)
	defer cancel()
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = 50 * time.Millisecond
	bo.MaxInterval = 2 * time.Second
	var conn *bolt.Conn
	operation := func() error {
		c, err := p.dial(ctx)
		if err != nil {
			var authErr *bolt.AuthError
			if errors.As(err, &authErr) {
				return backoff.Permanent(err)
			}
			p.logger.Debug(
				"connection attempt failed",
				"address", p.address,
				"error", err,
			)
			return err
		}
		conn = c
		return nil
	}
	if err := backoff.Retry(
		operation,
		backoff.WithContext(backoff.WithMaxRetries(bo, 2), ctx),
	); err != nil {
		return nil, err
	}
	return conn, nil
}

// Close shuts the pool down and closes all idle connections. Leased
// connections are closed as they are released.
func (p *Pool) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	p.mu.Unlock()
	for {
		select {
		case conn := <-p.idle:
			p.destroy(conn)
		default:
			return
		}
	}
}
