// Package netadapt bridges the I/O-free websocket.Session engine to
// real TCP (and TLS) connections, and tags each one with a short,
// log-friendly ID.
package netadapt

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"time"

	"github.com/lithammer/shortuuid/v4"

	"github.com/tzrikka/wsecho/pkg/websocket"
)

// Conn pairs a websocket.Session with the net.Conn carrying it.
type Conn struct {
	// ID is a short, unique, log-friendly identifier for this
	// connection (not part of the WebSocket protocol itself).
	ID      string
	Session *websocket.Session

	netConn net.Conn
}

// Close sends no WebSocket close frame of its own; callers that want a
// clean shutdown should call Session.Close first. Close always
// releases the Session's buffers and closes the underlying net.Conn.
func (c *Conn) Close() error {
	c.Session.Reset()
	return c.netConn.Close()
}

func connRecv(c net.Conn) websocket.RecvFunc {
	return func(p []byte) (int, error) { return c.Read(p) }
}

func connSend(c net.Conn) websocket.SendFunc {
	return func(p []byte) (int, error) { return c.Write(p) }
}

// DialOption configures DialAndHandshake.
type DialOption func(*dialConfig)

type dialConfig struct {
	extraHeaders string
	dialTimeout  time.Duration
	tlsConfig    *tls.Config
	sessionOpts  []websocket.SessionOption
}

// WithBearerToken attaches an Authorization: Bearer header to the
// outgoing handshake request. token is expected to already be an
// encoded value (e.g. a JWT the caller has already signed); this function
// does no encoding of its own.
func WithBearerToken(token string) DialOption {
	return func(c *dialConfig) {
		c.extraHeaders += fmt.Sprintf("Authorization: Bearer %s\r\n", token)
	}
}

// WithExtraHeader appends one literal "Name: Value" header line to the
// outgoing handshake request.
func WithExtraHeader(name, value string) DialOption {
	return func(c *dialConfig) {
		c.extraHeaders += fmt.Sprintf("%s: %s\r\n", name, value)
	}
}

// WithDialTimeout bounds the TCP (or TLS) connect step. The default is
// 10 seconds.
func WithDialTimeout(d time.Duration) DialOption {
	return func(c *dialConfig) { c.dialTimeout = d }
}

// WithTLS dials over TLS using cfg instead of plain TCP.
func WithTLS(cfg *tls.Config) DialOption {
	return func(c *dialConfig) { c.tlsConfig = cfg }
}

// WithSessionOptions forwards options to the underlying
// websocket.NewSession call (buffer size, max payload, and so on).
func WithSessionOptions(opts ...websocket.SessionOption) DialOption {
	return func(c *dialConfig) { c.sessionOpts = append(c.sessionOpts, opts...) }
}

// DialAndHandshake connects to addr (host:port) and performs the
// WebSocket client handshake against host/uri, blocking until it
// completes or fails.
func DialAndHandshake(ctx context.Context, addr, host, uri string, opts ...DialOption) (*Conn, error) {
	cfg := &dialConfig{dialTimeout: 10 * time.Second}
	for _, opt := range opts {
		opt(cfg)
	}

	d := net.Dialer{Timeout: cfg.dialTimeout}
	var nc net.Conn
	var err error
	if cfg.tlsConfig != nil {
		nc, err = tls.DialWithDialer(&d, "tcp", addr, cfg.tlsConfig)
	} else {
		nc, err = d.DialContext(ctx, "tcp", addr)
	}
	if err != nil {
		return nil, fmt.Errorf("netadapt: dial %s: %w", addr, err)
	}

	sess := websocket.NewSession(websocket.RoleClient, connRecv(nc), connSend(nc), cfg.sessionOpts...)
	if err := sess.Handshake(host, uri, cfg.extraHeaders); err != nil {
		nc.Close()
		return nil, fmt.Errorf("netadapt: handshake with %s: %w", addr, err)
	}

	return &Conn{ID: shortuuid.New(), Session: sess, netConn: nc}, nil
}

// AcceptOption configures Accept.
type AcceptOption func(*acceptConfig)

type acceptConfig struct {
	extraHeaders string
	sessionOpts  []websocket.SessionOption
}

// WithResponseHeader appends one literal "Name: Value" header line to
// the outgoing 101 response.
func WithResponseHeader(name, value string) AcceptOption {
	return func(c *acceptConfig) {
		c.extraHeaders += fmt.Sprintf("%s: %s\r\n", name, value)
	}
}

// WithAcceptSessionOptions forwards options to the underlying
// websocket.NewSession call.
func WithAcceptSessionOptions(opts ...websocket.SessionOption) AcceptOption {
	return func(c *acceptConfig) { c.sessionOpts = append(c.sessionOpts, opts...) }
}

// Accept performs the WebSocket server handshake over an already-
// accepted net.Conn (e.g. one hijacked out of a net/http handler),
// validating the request against host/uri. Any required authorization
// check (a bearer token, an Origin allow-list) belongs upstream of
// this call, while the connection is still a plain net/http request:
// the engine's handshake parser only understands the fields RFC 6455
// requires and does not expose arbitrary request headers.
func Accept(nc net.Conn, host, uri string, opts ...AcceptOption) (*Conn, error) {
	cfg := &acceptConfig{}
	for _, opt := range opts {
		opt(cfg)
	}

	sess := websocket.NewSession(websocket.RoleServer, connRecv(nc), connSend(nc), cfg.sessionOpts...)
	if err := sess.Handshake(host, uri, cfg.extraHeaders); err != nil {
		nc.Close()
		return nil, fmt.Errorf("netadapt: accepting handshake: %w", err)
	}

	return &Conn{ID: shortuuid.New(), Session: sess, netConn: nc}, nil
}
