package broker

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/rs/zerolog"

	"github.com/openvista/vistalink/internal/protocol"
)

const handshakeAccept = "accept"

// Connection is one session to one site. Callers drive it strictly through
// the lifecycle: Connect, Login, SetContext, then Execute until teardown.
type Connection struct {
	site string
	addr string
	cfg  Config
	log  zerolog.Logger

	conn       net.Conn
	br         *bufio.Reader
	state      State
	scope      string
	lastActive time.Time
}

func New(site, addr string, cfg Config, log zerolog.Logger) *Connection {
	return &Connection{
		site:  site,
		addr:  addr,
		cfg:   cfg,
		log:   log.With().Str("site", site).Logger(),
		state: StateDisconnected,
	}
}

func (c *Connection) Site() string { return c.site }

func (c *Connection) State() State { return c.state }

// Scope is the authorization context set on this session, if any.
func (c *Connection) Scope() string { return c.scope }

// Healthy reports whether the connection may accept an execute.
func (c *Connection) Healthy() bool { return c.state == StateReady }

func (c *Connection) LastActive() time.Time { return c.lastActive }

// Connect dials the site and performs the network-level handshake.
func (c *Connection) Connect(ctx context.Context) error {
	if c.state != StateDisconnected {
		return fmt.Errorf("%w: connect from %s", ErrBadTransition, c.state)
	}
	c.setState(StateConnecting)

	dialer := net.Dialer{Timeout: c.cfg.ConnectTimeout}
	conn, err := dialer.DialContext(ctx, "tcp", c.addr)
	if err != nil {
		c.setState(StateDisconnected)
		return fmt.Errorf("%w: dial %s: %v", ErrNetwork, c.addr, err)
	}
	c.conn = conn
	c.br = bufio.NewReader(conn)

	resp, err := c.roundTrip(protocol.NewRequest(protocol.OpHandshake, c.addr), c.cfg.HandshakeTimeout)
	if err != nil {
		c.teardown()
		return err
	}
	if resp.Kind != protocol.KindScalar || resp.Scalar != handshakeAccept {
		c.teardown()
		return fmt.Errorf("%w: handshake refused", ErrNetwork)
	}
	c.lastActive = time.Now()
	c.setState(StateHandshakeSent)
	return nil
}

// Login authenticates with an access/verify credential pair. A connection
// that fails login is torn down and must never be pooled.
func (c *Connection) Login(access, verify string) error {
	if c.state != StateHandshakeSent {
		return fmt.Errorf("%w: login from %s", ErrBadTransition, c.state)
	}
	resp, err := c.roundTrip(protocol.NewRequest(protocol.OpLogin, access+";"+verify), c.cfg.HandshakeTimeout)
	if err != nil {
		c.teardown()
		return err
	}
	if resp.Kind == protocol.KindError || firstPiece(resp.Scalar) != "1" {
		c.teardown()
		c.log.Warn().Msg("login rejected")
		return fmt.Errorf("%w: site %s", ErrAuth, c.site)
	}
	c.lastActive = time.Now()
	c.setState(StateAuthenticated)
	return nil
}

// SetContext requests the named authorization scope for this session. A
// denial leaves the session authenticated so another scope may be tried.
func (c *Connection) SetContext(scope string) error {
	if c.state != StateAuthenticated {
		return fmt.Errorf("%w: set context from %s", ErrBadTransition, c.state)
	}
	resp, err := c.roundTrip(protocol.NewRequest(protocol.OpSetContext, scope), c.cfg.HandshakeTimeout)
	if err != nil {
		c.teardown()
		return err
	}
	if resp.Kind == protocol.KindError || firstPiece(resp.Scalar) != "1" {
		return fmt.Errorf("%w: scope %q at site %s", ErrContextDenied, scope, c.site)
	}
	c.scope = scope
	c.lastActive = time.Now()
	c.setState(StateReady)
	return nil
}

// Execute runs one procedure call. Only a Ready connection performs I/O;
// any other state returns ErrNotReady without touching the socket. A timed
// out call tears the connection down: the socket may hold unread reply
// bytes, so reuse would corrupt the next call's framing.
func (c *Connection) Execute(ctx context.Context, name string, params []string, timeout time.Duration) (protocol.Response, error) {
	if c.state != StateReady {
		return protocol.Response{}, fmt.Errorf("%w: execute from %s", ErrNotReady, c.state)
	}
	if timeout <= 0 {
		timeout = c.cfg.CallTimeout
	}
	c.setState(StateExecuting)

	stop := context.AfterFunc(ctx, func() {
		_ = c.conn.SetDeadline(time.Now())
	})
	defer stop()

	resp, err := c.roundTrip(protocol.NewRequest(name, params...), timeout)
	if err != nil {
		c.teardown()
		return protocol.Response{}, c.classify(ctx, err)
	}
	c.lastActive = time.Now()
	c.setState(StateReady)
	if resp.Kind == protocol.KindError {
		return resp, &RemoteError{Code: resp.ErrCode, Message: resp.ErrText}
	}
	return resp, nil
}

// Disconnect sends the goodbye operation best-effort and closes the socket.
func (c *Connection) Disconnect() {
	if c.conn != nil && c.state != StateDisconnected && c.state != StateConnecting {
		_, _ = c.roundTrip(protocol.NewRequest(protocol.OpDisconnect), c.cfg.WriteTimeout)
	}
	c.teardown()
}

// Close tears the connection down without the goodbye exchange.
func (c *Connection) Close() error {
	c.teardown()
	return nil
}

func (c *Connection) roundTrip(req protocol.Request, timeout time.Duration) (protocol.Response, error) {
	var buf bytes.Buffer
	if err := protocol.EncodeRequest(&buf, req); err != nil {
		return protocol.Response{}, fmt.Errorf("%w: %v", ErrProtocol, err)
	}
	if err := c.conn.SetDeadline(time.Now().Add(timeout)); err != nil {
		return protocol.Response{}, fmt.Errorf("%w: %v", ErrNetwork, err)
	}
	if _, err := c.conn.Write(buf.Bytes()); err != nil {
		return protocol.Response{}, c.transportErr(err)
	}
	resp, err := protocol.DecodeResponse(c.br)
	if err != nil {
		if protocol.IsFrameError(err) {
			return protocol.Response{}, fmt.Errorf("%w: %v", ErrProtocol, err)
		}
		return protocol.Response{}, c.transportErr(err)
	}
	return resp, nil
}

func (c *Connection) transportErr(err error) error {
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return fmt.Errorf("%w: site %s", ErrTimeout, c.site)
	}
	return fmt.Errorf("%w: %v", ErrNetwork, err)
}

// classify folds a caller-supplied deadline or cancellation into the error
// raised by the unblocked read.
func (c *Connection) classify(ctx context.Context, err error) error {
	switch {
	case errors.Is(ctx.Err(), context.DeadlineExceeded):
		return fmt.Errorf("%w: site %s", ErrTimeout, c.site)
	case errors.Is(ctx.Err(), context.Canceled):
		return ctx.Err()
	default:
		return err
	}
}

func (c *Connection) teardown() {
	if c.conn != nil {
		_ = c.conn.Close()
		c.conn = nil
		c.br = nil
	}
	if c.state != StateDisconnected {
		c.setState(StateDisconnected)
	}
}

func (c *Connection) setState(next State) {
	c.log.Debug().
		Str("from", c.state.String()).
		Str("to", next.String()).
		Msg("connection state")
	c.state = next
}

func firstPiece(s string) string {
	for i := 0; i < len(s); i++ {
		if s[i] == '^' {
			return s[:i]
		}
	}
	return s
}
