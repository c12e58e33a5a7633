package client

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"testing"
	"time"

	"github.com/Mmx233/Kosmonaut/protocol"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConnState_String(t *testing.T) {
	tests := []struct {
		state    ConnState
		expected string
	}{
		{ConnClosed, "closed"},
		{ConnConnecting, "connecting"},
		{ConnOpen, "open"},
		{ConnState(99), "unknown"},
	}

	for _, tt := range tests {
		t.Run(tt.expected, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.state.String())
		})
	}
}

func TestConn_Lifecycle(t *testing.T) {
	packets := make(chan protocol.Packet, 4)
	b := startBackend(t, func(_ int, conn net.Conn, r *bufio.Reader) {
		p, err := protocol.Decode(r)
		if err != nil {
			return
		}
		packets <- p
		_ = send(conn, protocol.CmdOK)
		_, _ = r.ReadByte()
	})

	conn, err := Dial(context.Background(), b.endpoint().Address(), time.Second, zerolog.Nop())
	require.NoError(t, err)
	assert.Equal(t, ConnOpen, conn.State())
	assert.Equal(t, b.endpoint().Address(), conn.Addr())

	require.NoError(t, conn.WriteFrame("req:/test::id", protocol.NewFrame(protocol.CmdOpenChannel, "room")))
	p := <-packets
	assert.Equal(t, "req:/test::id", p.Identity)

	f, err := conn.ReadFrame(time.Second)
	require.NoError(t, err)
	assert.Equal(t, protocol.Frame{"OK"}, f)

	conn.Close()
	assert.Equal(t, ConnClosed, conn.State())
	conn.Close()

	_, err = conn.ReadFrame(time.Second)
	assert.ErrorIs(t, err, ErrConnectionClosed)
	assert.ErrorIs(t, conn.Write([]byte("x")), ErrWrite)
}

func TestConn_InterruptRead(t *testing.T) {
	b := startBackend(t, func(_ int, _ net.Conn, r *bufio.Reader) {
		_, _ = r.ReadByte()
	})

	conn, err := Dial(context.Background(), b.endpoint().Address(), time.Second, zerolog.Nop())
	require.NoError(t, err)
	defer conn.Close()

	time.AfterFunc(20*time.Millisecond, conn.interruptRead)
	_, err = conn.ReadFrame(0)
	assert.ErrorIs(t, err, ErrReadTimeout)
}

func TestConn_InterruptBeforeRead(t *testing.T) {
	b := startBackend(t, func(_ int, _ net.Conn, r *bufio.Reader) {
		_, _ = r.ReadByte()
	})

	conn, err := Dial(context.Background(), b.endpoint().Address(), time.Second, zerolog.Nop())
	require.NoError(t, err)
	defer conn.Close()

	// The read deadline set by ReadFrame must not undo the interrupt
	conn.interruptRead()
	started := time.Now()
	_, err = conn.ReadFrame(5 * time.Second)
	assert.ErrorIs(t, err, ErrReadTimeout)
	assert.Less(t, time.Since(started), time.Second)
}

func TestConn_SendWithoutIdentity(t *testing.T) {
	packets := make(chan protocol.Packet, 2)
	b := startBackend(t, func(_ int, _ net.Conn, r *bufio.Reader) {
		recordFrames(r, packets)
	})

	conn, err := Dial(context.Background(), b.endpoint().Address(), time.Second, zerolog.Nop())
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, conn.WriteFrame("req:/test:secret:id", protocol.NewFrame(protocol.CmdReady)))
	require.NoError(t, conn.Send(protocol.NewFrame(protocol.CmdHeartbeat)))

	ready := nextCommand(t, packets, protocol.CmdReady)
	assert.True(t, ready.HasIdentity)
	assert.Equal(t, "req:/test:secret:id", ready.Identity)

	hb := nextCommand(t, packets, protocol.CmdHeartbeat)
	assert.False(t, hb.HasIdentity)

	assert.ErrorIs(t, conn.Send(protocol.NewFrame("BC", "room", "a\nb")), protocol.ErrEncoding)
}

func TestDial_Refused(t *testing.T) {
	_, err := Dial(context.Background(), unusedEndpoint(t).Address(), time.Second, zerolog.Nop())
	assert.ErrorIs(t, err, ErrConnect)
}

func TestClassifyReadError(t *testing.T) {
	wrap := func(err error) error {
		return fmt.Errorf("%w: terminator not found: %w", protocol.ErrProtocol, err)
	}

	assert.ErrorIs(t, classifyReadError(wrap(os.ErrDeadlineExceeded)), ErrReadTimeout)
	assert.ErrorIs(t, classifyReadError(wrap(io.EOF)), ErrConnectionClosed)
	assert.ErrorIs(t, classifyReadError(wrap(net.ErrClosed)), ErrConnectionClosed)

	plain := fmt.Errorf("%w: unexpected field marker", protocol.ErrProtocol)
	got := classifyReadError(plain)
	assert.ErrorIs(t, got, protocol.ErrProtocol)
	assert.False(t, errors.Is(got, ErrReadTimeout) || errors.Is(got, ErrConnectionClosed))
}
