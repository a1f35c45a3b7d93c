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
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/blinklabs-io/gobolt/bolt"
)

// ErrNoServer means no server currently holds the requested role. The
// caller may retry after a refresh.
var ErrNoServer = errors.New("no server available for role")

// TableProvider fetches a fresh routing table for a database
type TableProvider interface {
	FetchTable(
		ctx context.Context,
		db string,
		bookmarks []string,
		routers []string,
	) (*Table, error)
}

// ConnFactory opens an authenticated connection to an arbitrary server
// address
type ConnFactory func(ctx context.Context, address string) (*bolt.Conn, error)

// RouteProvider fetches routing tables by sending ROUTE over a router
// connection
type RouteProvider struct {
	connect ConnFactory
	// context is the routing context from the connection URL's query
	// string, echoed back to the cluster
	context map[string]any
	impUser string
	logger  *slog.Logger
}

func NewRouteProvider(
	connect ConnFactory,
	routingContext map[string]any,
	impUser string,
	logger *slog.Logger,
) *RouteProvider {
	if logger == nil {
		logger = slog.Default()
	}
	return &RouteProvider{
		connect: connect,
		context: routingContext,
		impUser: impUser,
		logger:  logger,
	}
}

// FetchTable tries each router in turn, with a bounded backoff across
// full passes, until one returns a table
func (p *RouteProvider) FetchTable(
	ctx context.Context,
	db string,
	bookmarks []string,
	routers []string,
) (*Table, error) {
	if len(routers) == 0 {
		return nil, fmt.Errorf("%w: no routers known", ErrNoServer)
	}
	var table *Table
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = 100 * time.Millisecond
	operation := func() error {
		var lastErr error
		for _, router := range routers {
			t, err := p.fetchFrom(ctx, router, db, bookmarks)
			if err != nil {
				p.logger.Debug(
					"routing table fetch failed",
					"router", router,
					"db", db,
					"error", err,
				)
				lastErr = err
				continue
			}
			table = t
			return nil
		}
		return lastErr
	}
	err := backoff.Retry(
		operation,
		backoff.WithContext(backoff.WithMaxRetries(bo, 2), ctx),
	)
	if err != nil {
		return nil, fmt.Errorf("routing table fetch for %q failed: %w", db, err)
	}
	return table, nil
}

func (p *RouteProvider) fetchFrom(
	ctx context.Context,
	router string,
	db string,
	bookmarks []string,
) (*Table, error) {
	conn, err := p.connect(ctx, router)
	if err != nil {
		return nil, err
	}
	defer conn.Close()
	rt, err := conn.Route(ctx, p.context, bookmarks, db, p.impUser)
	if err != nil {
		return nil, err
	}
	return ParseTable(rt, time.Now())
}
