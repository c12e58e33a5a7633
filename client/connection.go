package client

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Mmx233/Kosmonaut/protocol"
	"github.com/rs/zerolog"
)

// ConnState represents the state of a backend connection
type ConnState int32

const (
	ConnClosed ConnState = iota
	ConnConnecting
	ConnOpen
)

// String returns a string representation of the connection state
func (s ConnState) String() string {
	switch s {
	case ConnClosed:
		return "closed"
	case ConnConnecting:
		return "connecting"
	case ConnOpen:
		return "open"
	default:
		return "unknown"
	}
}

// Conn is one TCP stream to a broker endpoint. Reads are buffered for the
// frame decoder; writes go straight to the socket, one frame per Write.
type Conn struct {
	addr   string
	conn   net.Conn
	reader *bufio.Reader

	state       atomic.Int32
	interrupted atomic.Bool
	closeOnce   sync.Once

	logger zerolog.Logger
}

// Dial opens a TCP connection to addr, bounded by timeout and ctx.
func Dial(ctx context.Context, addr string, timeout time.Duration, logger zerolog.Logger) (*Conn, error) {
	c := &Conn{
		addr:   addr,
		logger: logger.With().Str("addr", addr).Logger(),
	}
	c.state.Store(int32(ConnConnecting))

	dialer := net.Dialer{Timeout: timeout}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		c.state.Store(int32(ConnClosed))
		return nil, fmt.Errorf("%w: dial %s: %w", ErrConnect, addr, err)
	}

	c.conn = conn
	c.reader = bufio.NewReader(conn)
	c.state.Store(int32(ConnOpen))
	c.logger.Debug().Msg("connected")
	return c, nil
}

// Addr returns the dialed address.
func (c *Conn) Addr() string {
	return c.addr
}

// State returns the current connection state.
func (c *Conn) State() ConnState {
	return ConnState(c.state.Load())
}

// Write writes p in full.
func (c *Conn) Write(p []byte) error {
	if c.State() != ConnOpen {
		return fmt.Errorf("%w: %w", ErrWrite, ErrConnectionClosed)
	}
	if _, err := c.conn.Write(p); err != nil {
		return fmt.Errorf("%w: %w", ErrWrite, err)
	}
	return nil
}

// WriteFrame encodes f with the identity prepended and writes it.
func (c *Conn) WriteFrame(identity string, f protocol.Frame) error {
	data, err := protocol.EncodeWithIdentity(identity, f)
	if err != nil {
		return err
	}
	return c.writeEncoded(data, f)
}

// Send writes f without identity.
func (c *Conn) Send(f protocol.Frame) error {
	data, err := protocol.Encode(f)
	if err != nil {
		return err
	}
	return c.writeEncoded(data, f)
}

func (c *Conn) writeEncoded(data []byte, f protocol.Frame) error {
	if err := c.Write(data); err != nil {
		return err
	}
	c.logger.Debug().Strs("frame", f).Msg("frame sent")
	return nil
}

// ReadFrame reads one frame, waiting at most timeout. A zero timeout waits
// forever.
func (c *Conn) ReadFrame(timeout time.Duration) (protocol.Frame, error) {
	if c.State() != ConnOpen {
		return nil, ErrConnectionClosed
	}

	var deadline time.Time
	if timeout > 0 {
		deadline = time.Now().Add(timeout)
	}
	if err := c.conn.SetReadDeadline(deadline); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConnectionClosed, err)
	}
	// An interrupt that landed before the deadline was set must still win
	if c.interrupted.Load() {
		c.interruptRead()
	}

	f, err := protocol.ReadFrame(c.reader)
	if err != nil {
		return nil, classifyReadError(err)
	}
	c.logger.Debug().Strs("frame", f).Msg("frame received")
	return f, nil
}

// interruptRead makes a pending or later ReadFrame return with
// ErrReadTimeout.
func (c *Conn) interruptRead() {
	c.interrupted.Store(true)
	_ = c.conn.SetReadDeadline(time.Unix(1, 0))
}

// classifyReadError tags a decoder failure with the transport condition that
// caused it, if any.
func classifyReadError(err error) error {
	var netErr net.Error
	switch {
	case errors.Is(err, os.ErrDeadlineExceeded),
		errors.As(err, &netErr) && netErr.Timeout():
		return fmt.Errorf("%w: %w", ErrReadTimeout, err)
	case errors.Is(err, io.EOF),
		errors.Is(err, io.ErrUnexpectedEOF),
		errors.Is(err, net.ErrClosed):
		return fmt.Errorf("%w: %w", ErrConnectionClosed, err)
	default:
		return err
	}
}

// Close closes the connection. It is safe to call more than once.
func (c *Conn) Close() {
	c.closeOnce.Do(func() {
		c.state.Store(int32(ConnClosed))
		if c.conn != nil {
			_ = c.conn.Close()
		}
		c.logger.Debug().Msg("connection closed")
	})
}
