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

// Package gobolt is a client for graph databases speaking the Bolt
// protocol. A Graph handle owns pooled connections to one server or, with
// a neo4j routing URL, to a whole cluster, and executes Cypher statements
// against them.
package gobolt

import (
	"context"
	"crypto/tls"
	"errors"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/blinklabs-io/gobolt/bolt"
	"github.com/blinklabs-io/gobolt/internal/pool"
	"github.com/blinklabs-io/gobolt/routing"
)

// Graph is the top-level handle for running statements. It is safe for
// concurrent use.
type Graph struct {
	cfg    *Config
	logger *slog.Logger

	// Exactly one of direct and registry is set, depending on the URL
	// scheme
	direct   *pool.Pool
	registry *routing.Registry

	mu        sync.Mutex
	bookmarks []string
}

// Option adjusts the configuration before the Graph is built
type Option func(*Config)

// WithAuth sets basic-auth credentials, overriding any user info in the
// URL
func WithAuth(username string, password string) Option {
	return func(cfg *Config) {
		cfg.Auth = bolt.BasicAuth(username, password)
	}
}

// WithUserAgent sets the user agent announced in HELLO
func WithUserAgent(userAgent string) Option {
	return func(cfg *Config) {
		cfg.UserAgent = userAgent
	}
}

// WithTLSConfig replaces the TLS configuration derived from the URL
// scheme
func WithTLSConfig(tlsConfig *tls.Config) Option {
	return func(cfg *Config) {
		cfg.TLS = tlsConfig
	}
}

// WithDatabase sets the default database for statements that name none
func WithDatabase(db string) Option {
	return func(cfg *Config) {
		cfg.Database = db
	}
}

// WithMaxConnections bounds each endpoint's connection pool
func WithMaxConnections(n int) Option {
	return func(cfg *Config) {
		cfg.MaxConnections = n
	}
}

// WithFetchSize sets how many records each PULL requests
func WithFetchSize(n int64) Option {
	return func(cfg *Config) {
		cfg.FetchSize = n
	}
}

// WithConnectTimeout bounds dialing, handshake, and authentication per
// connection attempt
func WithConnectTimeout(timeout time.Duration) Option {
	return func(cfg *Config) {
		cfg.ConnectTimeout = timeout
	}
}

// WithNotificationFilters asks the server (5.2+) to suppress
// notifications below the severity or within the categories
func WithNotificationFilters(minSeverity string, disabledCategories ...string) Option {
	return func(cfg *Config) {
		cfg.NotificationsMinSeverity = minSeverity
		cfg.NotificationsDisabledCategories = disabledCategories
	}
}

// WithDialer overrides how raw streams to servers are opened
func WithDialer(dialer func(ctx context.Context, address string) (net.Conn, error)) Option {
	return func(cfg *Config) {
		cfg.Dialer = dialer
	}
}

// WithLogger directs library logging; the default is slog.Default()
func WithLogger(logger *slog.Logger) Option {
	return func(cfg *Config) {
		cfg.Logger = logger
	}
}

// New builds a Graph from a connection URL. No connection is made until
// the first statement runs.
func New(uri string, opts ...Option) (*Graph, error) {
	cfg, err := ParseURL(uri)
	if err != nil {
		return nil, err
	}
	for _, opt := range opts {
		opt(cfg)
	}
	return NewWithConfig(cfg)
}

// NewWithConfig builds a Graph from an explicit configuration
func NewWithConfig(cfg *Config) (*Graph, error) {
	if cfg.FetchSize == 0 {
		cfg.FetchSize = DefaultFetchSize
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	g := &Graph{cfg: cfg, logger: logger}
	if cfg.Routing {
		connect := func(ctx context.Context, address string) (*bolt.Conn, error) {
			return g.dialAddress(ctx, address, true)
		}
		provider := routing.NewRouteProvider(
			connect,
			cfg.RoutingContext,
			"",
			logger,
		)
		newPool := func(address string) *pool.Pool {
			return g.newPool(address, true)
		}
		g.registry = routing.NewRegistry(
			provider,
			newPool,
			nil,
			[]string{cfg.Address},
			logger,
		)
	} else {
		g.direct = g.newPool(cfg.Address, false)
	}
	return g, nil
}

func (g *Graph) connectConfig(address string, routed bool) bolt.ConnectConfig {
	cc := bolt.ConnectConfig{
		Address:                         address,
		TLS:                             g.cfg.TLS,
		Auth:                            g.cfg.Auth,
		UserAgent:                       g.cfg.UserAgent,
		NotificationsMinSeverity:        g.cfg.NotificationsMinSeverity,
		NotificationsDisabledCategories: g.cfg.NotificationsDisabledCategories,
		ConnectTimeout:                  g.cfg.ConnectTimeout,
		Logger:                          g.logger,
	}
	if routed {
		cc.RoutingContext = g.cfg.RoutingContext
	}
	return cc
}

// dialAddress opens an authenticated connection to one server
func (g *Graph) dialAddress(ctx context.Context, address string, routed bool) (*bolt.Conn, error) {
	cc := g.connectConfig(address, routed)
	if g.cfg.Dialer != nil {
		netConn, err := g.cfg.Dialer(ctx, address)
		if err != nil {
			return nil, err
		}
		return bolt.Establish(ctx, netConn, cc)
	}
	return bolt.Connect(ctx, cc)
}

func (g *Graph) newPool(address string, routed bool) *pool.Pool {
	dial := func(ctx context.Context) (*bolt.Conn, error) {
		return g.dialAddress(ctx, address, routed)
	}
	return pool.New(address, dial, pool.Config{
		MaxConnections: g.cfg.MaxConnections,
		ConnectTimeout: g.cfg.ConnectTimeout,
		Logger:         g.logger,
	})
}

// maxRoutedAttempts bounds how many servers are tried for one statement
// before the routing failure is surfaced
const maxRoutedAttempts = 3

// acquire leases a connection appropriate for the query's database and
// access mode, together with the release function returning it
func (g *Graph) acquire(
	ctx context.Context,
	db string,
	mode AccessMode,
) (*bolt.Conn, func(*bolt.Conn), error) {
	if g.direct != nil {
		conn, err := g.direct.Acquire(ctx)
		if err != nil {
			return nil, nil, err
		}
		return conn, g.direct.Release, nil
	}
	role := routing.RoleWrite
	if mode == AccessModeRead {
		role = routing.RoleRead
	}
	bookmarks := g.currentBookmarks()
	var lastErr error
	for attempt := 0; attempt < maxRoutedAttempts; attempt++ {
		p, err := g.registry.Acquire(ctx, db, role, bookmarks)
		if err != nil {
			return nil, nil, err
		}
		conn, err := p.Acquire(ctx)
		if err != nil {
			if !retryOnAnotherServer(err) {
				return nil, nil, err
			}
			// Connection-level failure: evict the server and try the
			// next candidate
			g.registry.MarkUnavailable(db, p.Address())
			lastErr = err
			continue
		}
		return conn, p.Release, nil
	}
	return nil, nil, lastErr
}

// retryOnAnotherServer reports whether an acquire failure is
// connection-level, making another server worth trying
func retryOnAnotherServer(err error) bool {
	var authErr *AuthError
	if errors.As(err, &authErr) {
		return false
	}
	if errors.Is(err, ErrPoolExhausted) || errors.Is(err, context.Canceled) ||
		errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	return true
}

// Execute runs a statement and returns a lazy stream over its records.
// The stream holds a pooled connection until exhausted or closed.
func (g *Graph) Execute(ctx context.Context, query *Query) (*RowStream, error) {
	db := query.database(g.cfg.Database)
	conn, release, err := g.acquire(ctx, db, query.mode)
	if err != nil {
		return nil, err
	}
	bookmarks := g.currentBookmarks()
	success, err := conn.Run(ctx, query.Text(), query.Params(), query.extra(g.cfg.Database, bookmarks))
	if err != nil {
		g.cleanupAfterError(ctx, conn, release, err)
		return nil, err
	}
	stream := newRowStream(conn, release, success, g.cfg.FetchSize)
	stream.onComplete = func(summary *ResultSummary) {
		if summary != nil && summary.Bookmark != "" {
			g.updateBookmark(summary.Bookmark)
		}
	}
	return stream, nil
}

// Run executes a statement, discards its records, and returns the
// summary
func (g *Graph) Run(ctx context.Context, query *Query) (*ResultSummary, error) {
	stream, err := g.Execute(ctx, query)
	if err != nil {
		return nil, err
	}
	if err := stream.Close(ctx); err != nil {
		return nil, err
	}
	summary := stream.Summary()
	if summary != nil && summary.Bookmark != "" {
		g.updateBookmark(summary.Bookmark)
	}
	return summary, nil
}

// Begin opens an explicit transaction. The returned transaction holds
// one connection until Commit, Rollback, or Close.
func (g *Graph) Begin(ctx context.Context, query ...*Query) (*Transaction, error) {
	// An optional template query supplies database, timeout, and
	// metadata extras for BEGIN
	template := NewQuery("")
	if len(query) > 0 {
		template = query[0]
	}
	db := template.database(g.cfg.Database)
	conn, release, err := g.acquire(ctx, db, template.mode)
	if err != nil {
		return nil, err
	}
	extra := template.extra(g.cfg.Database, g.currentBookmarks())
	if err := conn.Begin(ctx, extra); err != nil {
		g.cleanupAfterError(ctx, conn, release, err)
		return nil, err
	}
	return &Transaction{graph: g, conn: conn, release: release}, nil
}

// cleanupAfterError resets a connection left in the failed state so the
// pool gets it back usable, then releases it
func (g *Graph) cleanupAfterError(
	ctx context.Context,
	conn *bolt.Conn,
	release func(*bolt.Conn),
	err error,
) {
	var serverErr *ServerError
	if errors.As(err, &serverErr) && conn.IsAlive() {
		_ = conn.Reset(ctx)
	}
	release(conn)
}

func (g *Graph) currentBookmarks() []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.bookmarks
}

func (g *Graph) updateBookmark(bookmark string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.bookmarks = []string{bookmark}
}

// Bookmarks returns the causal-consistency tokens collected from
// completed statements
func (g *Graph) Bookmarks() []string {
	return g.currentBookmarks()
}

// Close shuts down all pools. In-flight statements fail as their
// connections close.
func (g *Graph) Close() {
	if g.direct != nil {
		g.direct.Close()
	}
	if g.registry != nil {
		g.registry.Close()
	}
}
