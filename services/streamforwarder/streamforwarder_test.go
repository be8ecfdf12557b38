package streamforwarder

import (
	"bytes"
	"context"
	"crypto/rand"
	"io"
	"net"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/funnelhq/funnel/share/cio"
	"github.com/funnelhq/funnel/share/fiber/fibertest"
	"github.com/funnelhq/funnel/share/service"
	"github.com/funnelhq/funnel/share/settings"
	"github.com/funnelhq/funnel/services/streamlistener"
)

const testPort uint32 = 2100

func testLogger() *cio.Logger {
	return cio.NewLogger("test")
}

// echoServer starts a local TCP echo server and returns its host and
// port.
func echoServer(t *testing.T) (string, uint16) {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { ln.Close() })
	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			go func(c net.Conn) {
				defer c.Close()
				io.Copy(c, c)
				if tc, ok := c.(*net.TCPConn); ok {
					tc.CloseWrite()
				}
			}(conn)
		}
	}()
	addr := ln.Addr().(*net.TCPAddr)
	return "127.0.0.1", uint16(addr.Port)
}

func forwarderParams(host string, port uint16) settings.Parameters {
	return settings.Parameters{
		"local_addr":  host,
		"local_port":  strconv.Itoa(int(port)),
		"remote_port": strconv.FormatUint(uint64(testPort), 10),
	}
}

func TestNewValidation(t *testing.T) {
	client, _ := fibertest.Pair(t)
	cases := []struct {
		name   string
		params settings.Parameters
	}{
		{"missing keys", settings.Parameters{"local_port": "80"}},
		{"non-numeric port", settings.Parameters{"local_addr": "", "local_port": "x", "remote_port": "2100"}},
		{"port out of range", settings.Parameters{"local_addr": "", "local_port": "100000", "remote_port": "2100"}},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			f, err := New(testLogger(), client, c.params)
			require.Error(t, err)
			assert.Nil(t, f)
		})
	}
}

func TestForwarderEchoesChannel(t *testing.T) {
	client, server := fibertest.Pair(t)
	host, port := echoServer(t)

	f, err := New(testLogger(), server, forwarderParams(host, port))
	require.NoError(t, err)
	require.NoError(t, f.Start())
	defer f.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	ch, err := client.OpenChannel(ctx, testPort)
	require.NoError(t, err)

	payload := make([]byte, 512*1024)
	_, err = rand.Read(payload)
	require.NoError(t, err)
	go func() {
		ch.Write(payload)
		ch.CloseWrite()
	}()
	echoed, err := io.ReadAll(ch)
	require.NoError(t, err)
	assert.True(t, bytes.Equal(payload, echoed))
}

func TestForwarderDialFailureClosesChannel(t *testing.T) {
	client, server := fibertest.Pair(t)
	// a port nothing listens on
	dead, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := uint16(dead.Addr().(*net.TCPAddr).Port)
	dead.Close()

	f, err := New(testLogger(), server, forwarderParams("127.0.0.1", port))
	require.NoError(t, err)
	require.NoError(t, f.Start())
	defer f.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	ch, err := client.OpenChannel(ctx, testPort)
	require.NoError(t, err)
	buf := make([]byte, 1)
	_, err = ch.Read(buf)
	require.Error(t, err, "channel must be closed when the dial fails")
	assert.Equal(t, 0, f.ActiveSessions())
}

// TestListenerToForwarderEndToEnd wires both microservices across one
// transport: a TCP client of the listener node reaches a TCP echo server
// on the forwarder node.
func TestListenerToForwarderEndToEnd(t *testing.T) {
	near, far := fibertest.Pair(t)
	host, port := echoServer(t)

	f, err := New(testLogger(), far, forwarderParams(host, port))
	require.NoError(t, err)
	require.NoError(t, f.Start())
	defer f.Stop()

	l, err := streamlistener.New(testLogger(), near, settings.Parameters{
		"local_addr":  "",
		"local_port":  "0",
		"remote_port": strconv.FormatUint(uint64(testPort), 10),
	}, false)
	require.NoError(t, err)
	require.NoError(t, l.Start())
	defer l.Stop()

	conn, err := net.Dial("tcp", l.Addr().String())
	require.NoError(t, err)
	defer conn.Close()

	payload := make([]byte, 1<<20)
	_, err = rand.Read(payload)
	require.NoError(t, err)
	go func() {
		conn.Write(payload)
		conn.(*net.TCPConn).CloseWrite()
	}()
	echoed, err := io.ReadAll(conn)
	require.NoError(t, err)
	assert.True(t, bytes.Equal(payload, echoed))

	require.Eventually(t, func() bool {
		return l.ActiveSessions() == 0 && f.ActiveSessions() == 0
	}, 5*time.Second, 10*time.Millisecond)
}

func TestRegisterToFactory(t *testing.T) {
	_, server := fibertest.Pair(t)
	host, port := echoServer(t)

	fa := service.NewFactory(testLogger())
	require.NoError(t, RegisterToFactory(fa, settings.ServiceConfig{Enabled: true}, testLogger()))

	req := CreateRequest(host, port, testPort)
	svc, err := fa.Create(server, req)
	require.NoError(t, err)
	assert.Equal(t, service.TypeStreamForwarder, svc.ServiceTypeID())
}
