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
	"crypto/tls"
	"fmt"
	"log/slog"
	"net"
	"net/url"
	"strings"
	"time"

	"github.com/blinklabs-io/gobolt/bolt"
)

// DefaultPort is used when the connection URL names no port
const DefaultPort = "7687"

// DefaultFetchSize is the number of records requested per PULL when not
// overridden
const DefaultFetchSize int64 = 1000

// Config is the resolved connection configuration
type Config struct {
	// Address is the initial host:port
	Address string
	// Routing selects the routed (neo4j) or direct (bolt) mode
	Routing bool
	// TLS is nil for plaintext connections
	TLS *tls.Config
	// RoutingContext carries URL query parameters to the cluster
	RoutingContext map[string]any

	Auth      bolt.Auth
	Database  string
	UserAgent string

	// Notification filtering, honored by servers speaking 5.2+
	NotificationsMinSeverity        string
	NotificationsDisabledCategories []string

	MaxConnections int
	FetchSize      int64
	ConnectTimeout time.Duration

	// Dialer overrides how the raw stream to a server is opened, for
	// tunnelled or in-memory transports. TLS from the URL scheme is not
	// applied on top of a custom dialer.
	Dialer func(ctx context.Context, address string) (net.Conn, error)

	Logger *slog.Logger
}

// ParseURL resolves a connection URL of the form
// scheme://[user[:password]@]host[:port][/database][?key=value] into a
// Config. Supported schemes are bolt, neo4j, and their +s / +ssc
// variants.
func ParseURL(raw string) (*Config, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("parse url: %w", err)
	}
	cfg := &Config{
		FetchSize: DefaultFetchSize,
	}
	scheme, secured, found := strings.Cut(u.Scheme, "+")
	switch scheme {
	case "bolt":
		cfg.Routing = false
	case "neo4j":
		cfg.Routing = true
	default:
		return nil, fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
	if found {
		switch secured {
		case "s":
			cfg.TLS = &tls.Config{}
		case "ssc":
			// Self-signed certificates: encrypted but unverified
			cfg.TLS = &tls.Config{InsecureSkipVerify: true}
		default:
			return nil, fmt.Errorf("unsupported scheme %q", u.Scheme)
		}
	}
	host := u.Hostname()
	if host == "" {
		return nil, fmt.Errorf("url %q has no host", raw)
	}
	port := u.Port()
	if port == "" {
		port = DefaultPort
	}
	cfg.Address = net.JoinHostPort(host, port)
	if cfg.TLS != nil {
		cfg.TLS.ServerName = host
	}
	if u.User != nil {
		password, _ := u.User.Password()
		cfg.Auth = bolt.BasicAuth(u.User.Username(), password)
	} else {
		cfg.Auth = bolt.NoAuth()
	}
	if db := strings.TrimPrefix(u.Path, "/"); db != "" {
		if strings.Contains(db, "/") {
			return nil, fmt.Errorf("url path %q is not a database name", u.Path)
		}
		cfg.Database = db
	}
	if cfg.Routing {
		cfg.RoutingContext = map[string]any{"address": cfg.Address}
		for key, values := range u.Query() {
			if len(values) > 0 {
				cfg.RoutingContext[key] = values[len(values)-1]
			}
		}
	} else if len(u.Query()) > 0 {
		return nil, fmt.Errorf("routing context requires a neo4j scheme")
	}
	return cfg, nil
}
