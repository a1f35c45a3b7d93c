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

package bolt

import (
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"log/slog"
	"net"
	"time"

	"github.com/blinklabs-io/gobolt/packstream"
)

// State is the connection's position in the protocol state machine
type State int

const (
	StateNegotiating State = iota
	StateAuthenticating
	StateReady
	StateStreaming
	StateTxReady
	StateTxStreaming
	StateFailed
	StateDefunct
)

func (s State) String() string {
	switch s {
	case StateNegotiating:
		return "negotiating"
	case StateAuthenticating:
		return "authenticating"
	case StateReady:
		return "ready"
	case StateStreaming:
		return "streaming"
	case StateTxReady:
		return "tx-ready"
	case StateTxStreaming:
		return "tx-streaming"
	case StateFailed:
		return "failed"
	case StateDefunct:
		return "defunct"
	}
	return "unknown"
}

// Auth holds the credentials sent during authentication
type Auth struct {
	Scheme      string
	Principal   string
	Credentials string
}

// BasicAuth returns a username/password auth token
func BasicAuth(username string, password string) Auth {
	return Auth{Scheme: "basic", Principal: username, Credentials: password}
}

// NoAuth returns an auth token for servers with authentication disabled
func NoAuth() Auth {
	return Auth{Scheme: "none"}
}

func (a Auth) token() map[string]any {
	token := map[string]any{"scheme": a.Scheme}
	if a.Principal != "" {
		token["principal"] = a.Principal
	}
	if a.Credentials != "" {
		token["credentials"] = a.Credentials
	}
	return token
}

// ConnectConfig carries everything needed to establish and authenticate a
// connection
type ConnectConfig struct {
	Address   string
	TLS       *tls.Config
	Auth      Auth
	UserAgent string
	// RoutingContext is included in HELLO when connecting through a
	// routing scheme; nil omits the routing entry entirely
	RoutingContext map[string]any
	// Notification filtering (5.2+); ignored on older servers
	NotificationsMinSeverity        string
	NotificationsDisabledCategories []string
	ConnectTimeout                  time.Duration
	Logger                          *slog.Logger
}

// DefaultUserAgent identifies this library when no explicit agent is set
const DefaultUserAgent = "gobolt/1.0"

// DefaultConnectTimeout bounds dialing plus handshake plus authentication
const DefaultConnectTimeout = 30 * time.Second

// Conn is a single Bolt connection. It is a single-owner resource: exactly
// one request-response exchange may be in flight, enforced by ownership
// rather than locking.
type Conn struct {
	conn         net.Conn
	cr           *ChunkReader
	cw           *ChunkWriter
	version      Version
	state        State
	server       string
	connectionID string
	logger       *slog.Logger
}

// Connect dials the address, negotiates a protocol version, and
// authenticates
func Connect(ctx context.Context, cfg ConnectConfig) (*Conn, error) {
	timeout := cfg.ConnectTimeout
	if timeout == 0 {
		timeout = DefaultConnectTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	dialer := net.Dialer{}
	netConn, err := dialer.DialContext(ctx, "tcp", cfg.Address)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", cfg.Address, err)
	}
	if cfg.TLS != nil {
		tlsConn := tls.Client(netConn, cfg.TLS)
		if err := tlsConn.HandshakeContext(ctx); err != nil {
			netConn.Close()
			return nil, fmt.Errorf("tls handshake with %s: %w", cfg.Address, err)
		}
		netConn = tlsConn
	}
	return Establish(ctx, netConn, cfg)
}

// Establish performs the Bolt handshake and authentication over an
// already-connected stream
func Establish(ctx context.Context, netConn net.Conn, cfg ConnectConfig) (*Conn, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	c := &Conn{
		conn:   netConn,
		cr:     NewChunkReader(netConn),
		cw:     NewChunkWriter(netConn),
		state:  StateNegotiating,
		logger: logger,
	}
	if err := c.handshake(ctx); err != nil {
		c.close()
		return nil, err
	}
	c.state = StateAuthenticating
	if err := c.authenticate(ctx, cfg); err != nil {
		c.close()
		return nil, err
	}
	c.state = StateReady
	return c, nil
}

// Version returns the negotiated protocol version
func (c *Conn) Version() Version {
	return c.version
}

// State returns the current protocol state
func (c *Conn) State() State {
	return c.state
}

// ServerAgent returns the server identification from the HELLO response
func (c *Conn) ServerAgent() string {
	return c.server
}

// IsAlive reports whether the connection may still serve requests,
// possibly after a RESET
func (c *Conn) IsAlive() bool {
	return c.state != StateDefunct
}

// IsReady reports whether the connection is idle and usable as-is
func (c *Conn) IsReady() bool {
	return c.state == StateReady
}

func (c *Conn) handshake(ctx context.Context) error {
	defer c.interruptOnCancel(ctx)()
	if _, err := c.conn.Write(handshakeBytes()); err != nil {
		return c.ioError(ctx, fmt.Errorf("handshake write: %w", err))
	}
	var reply [4]byte
	if _, err := io.ReadFull(c.conn, reply[:]); err != nil {
		return c.ioError(ctx, fmt.Errorf("handshake read: %w", err))
	}
	version, err := parseVersion(reply)
	if err != nil {
		c.state = StateDefunct
		return err
	}
	c.version = version
	c.logger.Debug(
		"negotiated protocol version",
		"version", version.String(),
		"remote", c.conn.RemoteAddr(),
	)
	return nil
}

func (c *Conn) authenticate(ctx context.Context, cfg ConnectConfig) error {
	userAgent := cfg.UserAgent
	if userAgent == "" {
		userAgent = DefaultUserAgent
	}
	extra := map[string]any{"user_agent": userAgent}
	if cfg.RoutingContext != nil {
		extra["routing"] = cfg.RoutingContext
	}
	if c.version.AtLeast(Version5_2) {
		if cfg.NotificationsMinSeverity != "" {
			extra["notifications_minimum_severity"] = cfg.NotificationsMinSeverity
		}
		if len(cfg.NotificationsDisabledCategories) > 0 {
			extra["notifications_disabled_categories"] = cfg.NotificationsDisabledCategories
		}
	}
	if !c.version.SplitAuth() {
		for k, v := range cfg.Auth.token() {
			extra[k] = v
		}
	}
	success, err := c.authExchange(ctx, NewHelloMessage(extra))
	if err != nil {
		return err
	}
	c.server, _ = success.String("server")
	c.connectionID, _ = success.String("connection_id")
	if c.version.SplitAuth() {
		if _, err := c.authExchange(ctx, NewLogonMessage(cfg.Auth.token())); err != nil {
			return err
		}
	}
	return nil
}

// authExchange sends one authentication-phase request. Any failure closes
// the connection: there is no recovery from a rejected HELLO or LOGON.
func (c *Conn) authExchange(ctx context.Context, msg packstream.Structure) (Success, error) {
	if err := c.send(ctx, msg); err != nil {
		return Success{}, err
	}
	resp, err := c.receive(ctx)
	if err != nil {
		return Success{}, err
	}
	switch resp := resp.(type) {
	case Success:
		return resp, nil
	case Failure:
		c.state = StateDefunct
		return Success{}, &AuthError{
			Server: ServerError{Code: resp.Code, Message: resp.Message},
		}
	}
	c.state = StateDefunct
	return Success{}, fmt.Errorf("unexpected response %T during authentication", resp)
}

// Run submits a query for execution. In Ready it starts an auto-commit
// statement; in TxReady or TxStreaming it adds a statement to the open
// transaction.
func (c *Conn) Run(
	ctx context.Context,
	query string,
	params map[string]any,
	extra map[string]any,
) (Success, error) {
	var next State
	switch c.state {
	case StateReady:
		next = StateStreaming
	case StateTxReady, StateTxStreaming:
		next = StateTxStreaming
	case StateFailed:
		return Success{}, ErrIgnored
	default:
		return Success{}, IllegalStateError{State: c.state, Op: "run"}
	}
	wireParams, err := normalizeParams(params, c.version)
	if err != nil {
		return Success{}, err
	}
	wireExtra, err := normalizeParams(extra, c.version)
	if err != nil {
		return Success{}, err
	}
	resp, err := c.request(ctx, NewRunMessage(query, wireParams, wireExtra))
	if err != nil {
		return Success{}, err
	}
	success, err := c.expectSuccess(resp, "run")
	if err != nil {
		return Success{}, err
	}
	c.state = next
	return success, nil
}

// StreamBatch is one PULL round-trip's worth of records
type StreamBatch struct {
	Records [][]any
	HasMore bool
	// Summary is the final SUCCESS metadata; set only when HasMore is
	// false
	Summary map[string]any
}

// Pull drains up to n records from the query identified by qid
func (c *Conn) Pull(ctx context.Context, qid int64, n int64) (*StreamBatch, error) {
	if c.state == StateFailed {
		return nil, ErrIgnored
	}
	if c.state != StateStreaming && c.state != StateTxStreaming {
		return nil, IllegalStateError{State: c.state, Op: "pull"}
	}
	if err := c.send(ctx, NewPullMessage(n, qid)); err != nil {
		return nil, err
	}
	batch := &StreamBatch{}
	for {
		resp, err := c.receive(ctx)
		if err != nil {
			return nil, err
		}
		switch resp := resp.(type) {
		case Record:
			batch.Records = append(batch.Records, resp.Values)
		case Success:
			hasMore, _ := resp.Bool("has_more")
			if hasMore {
				batch.HasMore = true
			} else {
				batch.Summary = resp.Metadata
				c.finishStreaming()
			}
			return batch, nil
		case Failure:
			c.state = StateFailed
			return nil, &ServerError{Code: resp.Code, Message: resp.Message}
		case Ignored:
			c.state = StateFailed
			return nil, ErrIgnored
		default:
			return nil, c.protocolViolation(fmt.Errorf("unexpected response %T to PULL", resp))
		}
	}
}

// Discard throws away up to n records from the query identified by qid
func (c *Conn) Discard(ctx context.Context, qid int64, n int64) (*StreamBatch, error) {
	if c.state == StateFailed {
		return nil, ErrIgnored
	}
	if c.state != StateStreaming && c.state != StateTxStreaming {
		return nil, IllegalStateError{State: c.state, Op: "discard"}
	}
	resp, err := c.request(ctx, NewDiscardMessage(n, qid))
	if err != nil {
		return nil, err
	}
	success, err := c.expectSuccess(resp, "discard")
	if err != nil {
		return nil, err
	}
	batch := &StreamBatch{}
	if hasMore, _ := success.Bool("has_more"); hasMore {
		batch.HasMore = true
	} else {
		batch.Summary = success.Metadata
		c.finishStreaming()
	}
	return batch, nil
}

func (c *Conn) finishStreaming() {
	if c.state == StateTxStreaming {
		c.state = StateTxReady
	} else {
		c.state = StateReady
	}
}

// Begin opens an explicit transaction
func (c *Conn) Begin(ctx context.Context, extra map[string]any) error {
	if c.state == StateFailed {
		return ErrIgnored
	}
	if c.state != StateReady {
		return IllegalStateError{State: c.state, Op: "begin"}
	}
	wireExtra, err := normalizeParams(extra, c.version)
	if err != nil {
		return err
	}
	resp, err := c.request(ctx, NewBeginMessage(wireExtra))
	if err != nil {
		return err
	}
	if _, err := c.expectSuccess(resp, "begin"); err != nil {
		return err
	}
	c.state = StateTxReady
	return nil
}

// Commit commits the open transaction and returns the SUCCESS metadata,
// which carries the new bookmark
func (c *Conn) Commit(ctx context.Context) (Success, error) {
	if c.state == StateFailed {
		return Success{}, ErrIgnored
	}
	if c.state != StateTxReady {
		return Success{}, IllegalStateError{State: c.state, Op: "commit"}
	}
	resp, err := c.request(ctx, NewCommitMessage())
	if err != nil {
		return Success{}, err
	}
	success, err := c.expectSuccess(resp, "commit")
	if err != nil {
		return Success{}, err
	}
	c.state = StateReady
	return success, nil
}

// Rollback aborts the open transaction
func (c *Conn) Rollback(ctx context.Context) error {
	if c.state == StateFailed {
		return ErrIgnored
	}
	if c.state != StateTxReady {
		return IllegalStateError{State: c.state, Op: "rollback"}
	}
	resp, err := c.request(ctx, NewRollbackMessage())
	if err != nil {
		return err
	}
	if _, err := c.expectSuccess(resp, "rollback"); err != nil {
		return err
	}
	c.state = StateReady
	return nil
}

// Reset returns the connection to Ready, recovering from the failed state
// and interrupting any unfinished result stream
func (c *Conn) Reset(ctx context.Context) error {
	if c.state == StateDefunct {
		return ErrDefunct
	}
	resp, err := c.request(ctx, NewResetMessage())
	if err != nil {
		return err
	}
	switch resp := resp.(type) {
	case Success:
		c.state = StateReady
		return nil
	case Failure:
		c.state = StateDefunct
		return &ServerError{Code: resp.Code, Message: resp.Message}
	}
	return c.protocolViolation(fmt.Errorf("unexpected response %T to RESET", resp))
}

// Route fetches the routing table metadata for a database
func (c *Conn) Route(
	ctx context.Context,
	routing map[string]any,
	bookmarks []string,
	db string,
	impUser string,
) (map[string]any, error) {
	if c.state == StateFailed {
		return nil, ErrIgnored
	}
	if c.state != StateReady {
		return nil, IllegalStateError{State: c.state, Op: "route"}
	}
	msg := NewRouteMessage(routing, bookmarks, db, impUser, c.version)
	resp, err := c.request(ctx, msg)
	if err != nil {
		return nil, err
	}
	success, err := c.expectSuccess(resp, "route")
	if err != nil {
		return nil, err
	}
	rt, ok := success.Metadata["rt"].(map[string]any)
	if !ok {
		return nil, c.protocolViolation(fmt.Errorf("ROUTE success carries no rt map"))
	}
	return rt, nil
}

// Close sends GOODBYE when the connection is idle and closes the socket
func (c *Conn) Close() error {
	if c.state == StateReady {
		// Best effort; the server hangs up without replying
		ctx, cancel := context.WithTimeout(context.Background(), 250*time.Millisecond)
		defer cancel()
		_ = c.send(ctx, NewGoodbyeMessage())
	}
	return c.close()
}

func (c *Conn) close() error {
	c.state = StateDefunct
	return c.conn.Close()
}

// expectSuccess maps the common response outcomes: SUCCESS passes
// through, FAILURE moves to Failed, IGNORED reports the reset discipline
func (c *Conn) expectSuccess(resp Response, op string) (Success, error) {
	switch resp := resp.(type) {
	case Success:
		return resp, nil
	case Failure:
		c.state = StateFailed
		return Success{}, &ServerError{Code: resp.Code, Message: resp.Message}
	case Ignored:
		c.state = StateFailed
		return Success{}, ErrIgnored
	}
	return Success{}, c.protocolViolation(
		fmt.Errorf("unexpected response %T to %s", resp, op),
	)
}

func (c *Conn) request(ctx context.Context, msg packstream.Structure) (Response, error) {
	if err := c.send(ctx, msg); err != nil {
		return nil, err
	}
	return c.receive(ctx)
}

func (c *Conn) send(ctx context.Context, msg packstream.Structure) error {
	if c.state == StateDefunct {
		return ErrDefunct
	}
	body, err := packstream.Marshal(msg)
	if err != nil {
		return c.protocolViolation(fmt.Errorf("encode message 0x%02X: %w", msg.Tag, err))
	}
	defer c.interruptOnCancel(ctx)()
	if err := c.cw.WriteMessage(body); err != nil {
		return c.ioError(ctx, fmt.Errorf("write message 0x%02X: %w", msg.Tag, err))
	}
	c.logger.Debug("sent message", "tag", fmt.Sprintf("0x%02X", msg.Tag), "bytes", len(body))
	return nil
}

func (c *Conn) receive(ctx context.Context) (Response, error) {
	if c.state == StateDefunct {
		return nil, ErrDefunct
	}
	defer c.interruptOnCancel(ctx)()
	body, err := c.cr.ReadMessage()
	if err != nil {
		return nil, c.ioError(ctx, fmt.Errorf("read message: %w", err))
	}
	resp, err := parseResponse(body, c.version)
	if err != nil {
		return nil, c.protocolViolation(fmt.Errorf("decode response: %w", err))
	}
	c.logger.Debug("received message", "type", fmt.Sprintf("%T", resp), "bytes", len(body))
	return resp, nil
}

// interruptOnCancel arranges for a blocked read or write to fail promptly
// when the context is cancelled. Abandoning an exchange midway would
// corrupt framing, so the interrupted connection becomes defunct.
func (c *Conn) interruptOnCancel(ctx context.Context) func() {
	if dl, ok := ctx.Deadline(); ok {
		_ = c.conn.SetDeadline(dl)
	} else {
		_ = c.conn.SetDeadline(time.Time{})
	}
	stop := context.AfterFunc(ctx, func() {
		_ = c.conn.SetDeadline(time.Unix(0, 1))
	})
	return func() {
		stop()
	}
}

// ioError marks the connection defunct, preferring the context error when
// the failure was a cancellation
func (c *Conn) ioError(ctx context.Context, err error) error {
	c.state = StateDefunct
	if ctxErr := ctx.Err(); ctxErr != nil {
		return fmt.Errorf("%w: %w", ErrDefunct, ctxErr)
	}
	return fmt.Errorf("%w: %w", ErrDefunct, err)
}

func (c *Conn) protocolViolation(err error) error {
	c.state = StateDefunct
	_ = c.conn.Close()
	return fmt.Errorf("protocol violation: %w", err)
}
