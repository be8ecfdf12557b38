// Package fibertest provides in-process transport pairs for tests: two
// demuxes handshaked over a loopback connection, no peer process
// required.
package fibertest

import (
	"io"
	"net"
	"testing"

	"github.com/funnelhq/funnel/share/cio"
	"github.com/funnelhq/funnel/share/fiber"
)

// TCPPipe returns both ends of an established loopback TCP connection.
// The transport handshake writes its version string before reading the
// peer's, so the link must buffer; net.Pipe cannot.
func TCPPipe(t *testing.T) (net.Conn, net.Conn) {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("loopback listen: %v", err)
	}
	defer ln.Close()
	type res struct {
		conn net.Conn
		err  error
	}
	acc := make(chan res, 1)
	go func() {
		conn, err := ln.Accept()
		acc <- res{conn, err}
	}()
	dialed, err := net.Dial("tcp", ln.Addr().String())
	if err != nil {
		t.Fatalf("loopback dial: %v", err)
	}
	accepted := <-acc
	if accepted.err != nil {
		t.Fatalf("loopback accept: %v", accepted.err)
	}
	t.Cleanup(func() {
		dialed.Close()
		accepted.conn.Close()
	})
	return dialed, accepted.conn
}

// Pair returns two connected demuxes. Channels opened on one side are
// delivered to listeners bound on the other. Both are torn down when the
// test ends.
func Pair(t *testing.T) (client, server fiber.Demux) {
	t.Helper()
	cConn, sConn := TCPPipe(t)
	logger := cio.NewLogger("test")
	type res struct {
		d   fiber.Demux
		err error
	}
	srv := make(chan res, 1)
	go func() {
		d, err := fiber.Serve(sConn, logger, fiber.ServerConfig{KeySeed: "fibertest"})
		srv <- res{d, err}
	}()
	cli, err := fiber.Client(cConn, logger, fiber.ClientConfig{})
	if err != nil {
		t.Fatalf("client handshake: %v", err)
	}
	s := <-srv
	if s.err != nil {
		t.Fatalf("server handshake: %v", s.err)
	}
	t.Cleanup(func() {
		cli.Close()
		s.d.Close()
	})
	return cli, s.d
}

// Echo accepts channels on port and echoes every byte back until the
// opener half-closes, then half-closes in return. It stops when the
// listener dies.
func Echo(t *testing.T, d fiber.Demux, port uint32) {
	t.Helper()
	ln, err := d.Listen(port)
	if err != nil {
		t.Fatalf("bind echo port %d: %v", port, err)
	}
	go func() {
		for {
			ch, err := ln.Accept()
			if err != nil {
				return
			}
			go func(ch fiber.Channel) {
				defer ch.Close()
				io.Copy(ch, ch)
				ch.CloseWrite()
			}(ch)
		}
	}()
}
