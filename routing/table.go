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

// Package routing maintains per-database routing tables and directs each
// query to a server that can handle it. Tables are fetched over the ROUTE
// message, cached until their TTL expires, and refreshed on demand.
package routing

import (
	"fmt"
	"time"
)

// Role describes what a server can do for a database
type Role int

const (
	RoleRead Role = iota
	RoleWrite
	RoleRoute
)

func (r Role) String() string {
	switch r {
	case RoleRead:
		return "READ"
	case RoleWrite:
		return "WRITE"
	case RoleRoute:
		return "ROUTE"
	}
	return "UNKNOWN"
}

// ParseRole maps the wire role names to Role values
func ParseRole(s string) (Role, error) {
	switch s {
	case "READ":
		return RoleRead, nil
	case "WRITE":
		return RoleWrite, nil
	case "ROUTE":
		return RoleRoute, nil
	}
	return 0, fmt.Errorf("unknown server role %q", s)
}

// Server is one entry of a routing table: a set of addresses sharing a
// role. Servers are compared by address; the role is metadata.
type Server struct {
	Addresses []string
	Role      Role
}

// Table is the routing table for one database
type Table struct {
	DB        string
	TTL       time.Duration
	Servers   []Server
	CreatedAt time.Time
}

// IsExpired reports whether the table has outlived its TTL at the given
// instant
func (t *Table) IsExpired(now time.Time) bool {
	return now.Sub(t.CreatedAt) >= t.TTL
}

// Addresses returns all addresses holding the given role
func (t *Table) Addresses(role Role) []string {
	var out []string
	for _, server := range t.Servers {
		if server.Role != role {
			continue
		}
		out = append(out, server.Addresses...)
	}
	return out
}

// AllAddresses returns the deduplicated set of addresses in the table,
// regardless of role
func (t *Table) AllAddresses() map[string]struct{} {
	out := make(map[string]struct{})
	for _, server := range t.Servers {
		for _, addr := range server.Addresses {
			out[addr] = struct{}{}
		}
	}
	return out
}

// RemoveAddress drops an address from every role, reporting whether
// anything changed
func (t *Table) RemoveAddress(address string) bool {
	changed := false
	for i := range t.Servers {
		kept := t.Servers[i].Addresses[:0]
		for _, addr := range t.Servers[i].Addresses {
			if addr == address {
				changed = true
				continue
			}
			kept = append(kept, addr)
		}
		t.Servers[i].Addresses = kept
	}
	return changed
}

// ParseTable builds a Table from the rt metadata map of a ROUTE response
func ParseTable(rt map[string]any, createdAt time.Time) (*Table, error) {
	ttl, ok := rt["ttl"].(int64)
	if !ok {
		return nil, fmt.Errorf("routing table has no ttl: %v", rt["ttl"])
	}
	table := &Table{
		TTL:       time.Duration(ttl) * time.Second,
		CreatedAt: createdAt,
	}
	if db, ok := rt["db"].(string); ok {
		table.DB = db
	}
	rawServers, ok := rt["servers"].([]any)
	if !ok {
		return nil, fmt.Errorf("routing table has no servers list")
	}
	for _, rawServer := range rawServers {
		entry, ok := rawServer.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("routing table server is not a map: %T", rawServer)
		}
		roleName, _ := entry["role"].(string)
		role, err := ParseRole(roleName)
		if err != nil {
			return nil, err
		}
		rawAddresses, _ := entry["addresses"].([]any)
		server := Server{Role: role}
		for _, rawAddr := range rawAddresses {
			addr, ok := rawAddr.(string)
			if !ok {
				return nil, fmt.Errorf("routing table address is not a string: %T", rawAddr)
			}
			server.Addresses = append(server.Addresses, addr)
		}
		table.Servers = append(table.Servers, server)
	}
	return table, nil
}
