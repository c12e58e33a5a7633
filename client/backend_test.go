package client

import (
	"bufio"
	"net"
	"sync"
	"testing"

	"github.com/Mmx233/Kosmonaut/config"
	"github.com/Mmx233/Kosmonaut/protocol"
)

// fakeBackend is a scripted TCP peer speaking the frame codec.
type fakeBackend struct {
	ln net.Listener

	mu    sync.Mutex
	conns []net.Conn
	wg    sync.WaitGroup
}

// startBackend runs serve for every accepted connection; n counts
// connections from zero. Everything is torn down on test cleanup.
func startBackend(t *testing.T, serve func(n int, conn net.Conn, r *bufio.Reader)) *fakeBackend {
	t.Helper()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	b := &fakeBackend{ln: ln}

	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		for n := 0; ; n++ {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			b.mu.Lock()
			b.conns = append(b.conns, conn)
			b.mu.Unlock()

			b.wg.Add(1)
			go func(n int) {
				defer b.wg.Done()
				defer conn.Close()
				serve(n, conn, bufio.NewReader(conn))
			}(n)
		}
	}()

	t.Cleanup(func() {
		_ = ln.Close()
		b.mu.Lock()
		for _, c := range b.conns {
			_ = c.Close()
		}
		b.mu.Unlock()
		b.wg.Wait()
	})
	return b
}

func (b *fakeBackend) endpoint() config.Endpoint {
	addr := b.ln.Addr().(*net.TCPAddr)
	return config.Endpoint{
		Scheme: config.Scheme,
		Token:  "secret",
		Host:   "127.0.0.1",
		Port:   addr.Port,
		Vhost:  "/test",
	}
}

// accepted returns the number of connections accepted so far.
func (b *fakeBackend) accepted() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.conns)
}

func (b *fakeBackend) uri() string {
	return b.endpoint().URI()
}

func send(conn net.Conn, cmd string, args ...string) error {
	return protocol.WriteFrame(conn, protocol.NewFrame(cmd, args...))
}

// unusedEndpoint returns an endpoint nothing listens on.
func unusedEndpoint(t *testing.T) config.Endpoint {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	port := ln.Addr().(*net.TCPAddr).Port
	_ = ln.Close()
	return config.Endpoint{Scheme: config.Scheme, Host: "127.0.0.1", Port: port, Vhost: "/test"}
}
