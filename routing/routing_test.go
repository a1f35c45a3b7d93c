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
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/blinklabs-io/gobolt/bolt"
	"github.com/blinklabs-io/gobolt/internal/pool"
)

func TestParseTable(t *testing.T) {
	rt := map[string]any{
		"ttl": int64(300),
		"db":  "neo4j",
		"servers": []any{
			map[string]any{
				"addresses": []any{"reader1:7687", "reader2:7687"},
				"role":      "READ",
			},
			map[string]any{
				"addresses": []any{"writer1:7687"},
				"role":      "WRITE",
			},
			map[string]any{
				"addresses": []any{"router1:7687"},
				"role":      "ROUTE",
			},
		},
	}
	table, err := ParseTable(rt, time.Now())
	if err != nil {
		t.Fatalf("unexpected error: %s", err)
	}
	if table.DB != "neo4j" || table.TTL != 300*time.Second {
		t.Errorf("unexpected table header: %#v", table)
	}
	if got := table.Addresses(RoleRead); len(got) != 2 {
		t.Errorf("unexpected readers: %v", got)
	}
	if got := table.Addresses(RoleWrite); len(got) != 1 || got[0] != "writer1:7687" {
		t.Errorf("unexpected writers: %v", got)
	}
	if got := table.Addresses(RoleRoute); len(got) != 1 {
		t.Errorf("unexpected routers: %v", got)
	}
}

func TestParseTableErrors(t *testing.T) {
	testCases := []struct {
		name string
		rt   map[string]any
	}{
		{"missing ttl", map[string]any{"servers": []any{}}},
		{"missing servers", map[string]any{"ttl": int64(60)}},
		{
			"bad role",
			map[string]any{
				"ttl": int64(60),
				"servers": []any{
					map[string]any{"addresses": []any{"a:1"}, "role": "PRIMARY"},
				},
			},
		},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := ParseTable(tc.rt, time.Now()); err == nil {
				t.Error("expected error, got nil")
			}
		})
	}
}

func TestTableExpiry(t *testing.T) {
	t0 := time.Now()
	table := &Table{TTL: 60 * time.Second, CreatedAt: t0}
	if table.IsExpired(t0.Add(59 * time.Second)) {
		t.Error("table expired before its TTL")
	}
	if !table.IsExpired(t0.Add(61 * time.Second)) {
		t.Error("table not expired after its TTL")
	}
}

func TestRoundRobin(t *testing.T) {
	rr := NewRoundRobin()
	candidates := []string{"a:7687", "b:7687", "c:7687"}
	var got []string
	for i := 0; i < 4; i++ {
		addr, ok := rr.Select(RoleWrite, candidates)
		if !ok {
			t.Fatal("unexpected empty selection")
		}
		got = append(got, addr)
	}
	want := []string{"a:7687", "b:7687", "c:7687", "a:7687"}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("expected %v, got %v", want, got)
		}
	}
	// Roles keep independent counters
	addr, _ := rr.Select(RoleRead, candidates)
	if addr != "a:7687" {
		t.Errorf("expected read counter to start fresh, got %s", addr)
	}
	if _, ok := rr.Select(RoleWrite, nil); ok {
		t.Error("expected no selection from empty candidates")
	}
}

// stubProvider serves canned tables and counts fetches
type stubProvider struct {
	tables  []*Table
	fetches int
	err     error
}

func (p *stubProvider) FetchTable(
	ctx context.Context,
	db string,
	bookmarks []string,
	routers []string,
) (*Table, error) {
	if p.err != nil {
		return nil, p.err
	}
	table := p.tables[0]
	if len(p.tables) > 1 {
		p.tables = p.tables[1:]
	}
	p.fetches++
	copied := *table
	copied.CreatedAt = time.Now()
	return &copied, nil
}

func testPoolFactory() PoolFactory {
	return func(address string) *pool.Pool {
		dial := func(ctx context.Context) (*bolt.Conn, error) {
			return nil, fmt.Errorf("dial not expected in this test")
		}
		return pool.New(address, dial, pool.Config{MaxConnections: 1})
	}
}

func serverSet(addrs []string, role Role) Server {
	return Server{Addresses: addrs, Role: role}
}

// TestRegistryTTLRefresh checks that a cached table is served inside its
// TTL and refreshed after, with pools diffed across the refresh
func TestRegistryTTLRefresh(t *testing.T) {
	provider := &stubProvider{
		tables: []*Table{
			{
				TTL: 60 * time.Second,
				Servers: []Server{
					serverSet([]string{"a:7687", "b:7687"}, RoleWrite),
					serverSet([]string{"r:7687"}, RoleRoute),
				},
			},
			{
				TTL: 60 * time.Second,
				Servers: []Server{
					serverSet([]string{"b:7687", "c:7687"}, RoleWrite),
					serverSet([]string{"r:7687"}, RoleRoute),
				},
			},
		},
	}
	registry := NewRegistry(provider, testPoolFactory(), nil, []string{"seed:7687"}, nil)
	defer registry.Close()
	now := time.Now()
	registry.now = func() time.Time { return now }
	ctx := context.Background()
	if _, err := registry.Acquire(ctx, "neo4j", RoleWrite, nil); err != nil {
		t.Fatalf("unexpected error: %s", err)
	}
	if provider.fetches != 1 {
		t.Fatalf("expected 1 fetch, got %d", provider.fetches)
	}
	// Materialize pools for both writers
	poolA := registry.poolFor("a:7687")
	poolB := registry.poolFor("b:7687")
	// Within the TTL the cached table is used
	now = now.Add(59 * time.Second)
	if _, err := registry.Acquire(ctx, "neo4j", RoleWrite, nil); err != nil {
		t.Fatalf("unexpected error: %s", err)
	}
	if provider.fetches != 1 {
		t.Fatalf("expected cached table inside TTL, got %d fetches", provider.fetches)
	}
	// Past the TTL a refresh happens before the query proceeds
	now = now.Add(2 * time.Second)
	if _, err := registry.Acquire(ctx, "neo4j", RoleWrite, nil); err != nil {
		t.Fatalf("unexpected error: %s", err)
	}
	if provider.fetches != 2 {
		t.Fatalf("expected refresh after TTL, got %d fetches", provider.fetches)
	}
	// Pool for the removed address is dropped; the retained address
	// keeps its pool instance
	if retained := registry.poolFor("b:7687"); retained != poolB {
		t.Error("pool for retained address was recreated")
	}
	registry.mu.RLock()
	_, stillThere := registry.pools["a:7687"]
	registry.mu.RUnlock()
	if stillThere {
		t.Error("pool for removed address was not dropped")
	}
	_ = poolA
}

func TestRegistryEviction(t *testing.T) {
	provider := &stubProvider{
		tables: []*Table{
			{
				TTL: 300 * time.Second,
				Servers: []Server{
					serverSet([]string{"a:7687", "b:7687"}, RoleWrite),
				},
			},
		},
	}
	registry := NewRegistry(provider, testPoolFactory(), nil, []string{"seed:7687"}, nil)
	defer registry.Close()
	ctx := context.Background()
	p, err := registry.Acquire(ctx, "neo4j", RoleWrite, nil)
	if err != nil {
		t.Fatalf("unexpected error: %s", err)
	}
	first := p.Address()
	registry.MarkUnavailable("neo4j", first)
	// The next selection must avoid the evicted address
	p, err = registry.Acquire(ctx, "neo4j", RoleWrite, nil)
	if err != nil {
		t.Fatalf("unexpected error: %s", err)
	}
	if p.Address() == first {
		t.Errorf("evicted address %s was selected again", first)
	}
}

func TestRegistryNoServerForRole(t *testing.T) {
	provider := &stubProvider{
		tables: []*Table{
			{
				TTL:     300 * time.Second,
				Servers: []Server{serverSet([]string{"a:7687"}, RoleRead)},
			},
		},
	}
	registry := NewRegistry(provider, testPoolFactory(), nil, []string{"seed:7687"}, nil)
	defer registry.Close()
	_, err := registry.Acquire(context.Background(), "neo4j", RoleWrite, nil)
	if !errors.Is(err, ErrNoServer) {
		t.Fatalf("expected ErrNoServer, got %v", err)
	}
}

func TestRegistryFetchFailure(t *testing.T) {
	provider := &stubProvider{err: errors.New("cluster unreachable")}
	registry := NewRegistry(provider, testPoolFactory(), nil, []string{"seed:7687"}, nil)
	defer registry.Close()
	if _, err := registry.Acquire(context.Background(), "neo4j", RoleRead, nil); err == nil {
		t.Fatal("expected error, got nil")
	}
}
