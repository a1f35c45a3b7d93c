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

package routing

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/blinklabs-io/gobolt/internal/pool"
)

// PoolFactory creates a connection pool for a server address
type PoolFactory func(address string) *pool.Pool

// Registry tracks one routing table per database and one connection pool
// per server address. Tables are refreshed when expired; the pool set is
// diffed against each fresh table so surviving addresses keep their pools.
type Registry struct {
	provider TableProvider
	newPool  PoolFactory
	strategy Strategy
	// seedRouters are the initially configured router addresses, used
	// until a table teaches us better ones
	seedRouters []string
	logger      *slog.Logger
	now         func() time.Time

	mu         sync.RWMutex
	tables     map[string]*Table
	pools      map[string]*pool.Pool
	refreshing map[string]chan struct{}
}

// NewRegistry creates a registry seeded with the initial router addresses
func NewRegistry(
	provider TableProvider,
	newPool PoolFactory,
	strategy Strategy,
	seedRouters []string,
	logger *slog.Logger,
) *Registry {
	if strategy == nil {
		strategy = NewRoundRobin()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		provider:    provider,
		newPool:     newPool,
		strategy:    strategy,
		seedRouters: seedRouters,
		logger:      logger,
		now:         time.Now,
		tables:      make(map[string]*Table),
		pools:       make(map[string]*pool.Pool),
		refreshing:  make(map[string]chan struct{}),
	}
}

// Acquire returns the pool of a server holding the requested role for the
// database, chosen by the strategy. It does not connect; callers report
// servers that fail to connect with MarkUnavailable.
func (r *Registry) Acquire(
	ctx context.Context,
	db string,
	role Role,
	bookmarks []string,
) (*pool.Pool, error) {
	table, err := r.freshTable(ctx, db, bookmarks)
	if err != nil {
		return nil, err
	}
	candidates := table.Addresses(role)
	if len(candidates) == 0 {
		// Force one refresh before giving up on the role
		table, err = r.refresh(ctx, db, bookmarks)
		if err != nil {
			return nil, err
		}
		candidates = table.Addresses(role)
		if len(candidates) == 0 {
			return nil, fmt.Errorf("%w %s in database %q", ErrNoServer, role, db)
		}
	}
	address, ok := r.strategy.Select(role, candidates)
	if !ok {
		return nil, fmt.Errorf("%w %s in database %q", ErrNoServer, role, db)
	}
	return r.poolFor(address), nil
}

// MarkUnavailable evicts a server address after a connection-level
// failure. The database's table entry is dropped so the next request
// triggers a refresh.
func (r *Registry) MarkUnavailable(db string, address string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.tables, db)
	if p, ok := r.pools[address]; ok {
		p.Close()
		delete(r.pools, address)
	}
	r.logger.Debug("marked server unavailable", "address", address, "db", db)
}

// freshTable returns the cached table when valid, refreshing it
// otherwise. When another caller already refreshes and a stale table
// exists, the stale one is served without blocking.
func (r *Registry) freshTable(
	ctx context.Context,
	db string,
	bookmarks []string,
) (*Table, error) {
	r.mu.RLock()
	table, haveTable := r.tables[db]
	_, inFlight := r.refreshing[db]
	r.mu.RUnlock()
	if haveTable && !table.IsExpired(r.now()) {
		return table, nil
	}
	if haveTable && inFlight {
		// Stale but a refresh is under way; serve the stale table
		// rather than blocking
		return table, nil
	}
	return r.refresh(ctx, db, bookmarks)
}

// refresh fetches a new table, diffs the pool set, and stores it. A
// single refresh per database runs at a time; latecomers with no table at
// all wait for the winner.
func (r *Registry) refresh(
	ctx context.Context,
	db string,
	bookmarks []string,
) (*Table, error) {
	r.mu.Lock()
	if waitChan, ok := r.refreshing[db]; ok {
		r.mu.Unlock()
		select {
		case <-waitChan:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
		r.mu.RLock()
		table, ok := r.tables[db]
		r.mu.RUnlock()
		if !ok {
			return nil, fmt.Errorf("routing table refresh for %q failed", db)
		}
		return table, nil
	}
	doneChan := make(chan struct{})
	r.refreshing[db] = doneChan
	routers := r.routersLocked(db)
	r.mu.Unlock()
	defer func() {
		r.mu.Lock()
		delete(r.refreshing, db)
		r.mu.Unlock()
		close(doneChan)
	}()
	table, err := r.provider.FetchTable(ctx, db, bookmarks, routers)
	if err != nil {
		return nil, err
	}
	r.install(db, table)
	return table, nil
}

// routersLocked returns the routers to ask for a fresh table: the current
// table's ROUTE servers when known, the seed addresses otherwise. Callers
// must hold at least a read lock.
func (r *Registry) routersLocked(db string) []string {
	if table, ok := r.tables[db]; ok {
		if routers := table.Addresses(RoleRoute); len(routers) > 0 {
			return routers
		}
	}
	return r.seedRouters
}

// install stores a fresh table and reconciles pools: addresses that
// disappeared lose their pools, surviving addresses keep them
func (r *Registry) install(db string, table *Table) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tables[db] = table
	// Addresses still referenced by any database's table
	inUse := make(map[string]struct{})
	for _, t := range r.tables {
		for addr := range t.AllAddresses() {
			inUse[addr] = struct{}{}
		}
	}
	for addr, p := range r.pools {
		if _, ok := inUse[addr]; !ok {
			r.logger.Debug("dropping pool for removed server", "address", addr)
			p.Close()
			delete(r.pools, addr)
		}
	}
}

// poolFor returns the pool for an address, creating it on first use
func (r *Registry) poolFor(address string) *pool.Pool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if p, ok := r.pools[address]; ok {
		return p
	}
	p := r.newPool(address)
	r.pools[address] = p
	return p
}

// Table returns the cached routing table for a database, if any
func (r *Registry) Table(db string) (*Table, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	table, ok := r.tables[db]
	return table, ok
}

// Close shuts down every pool
func (r *Registry) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for addr, p := range r.pools {
		p.Close()
		delete(r.pools, addr)
	}
}
