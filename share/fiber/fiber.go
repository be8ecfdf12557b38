// Package fiber is the boundary to the multiplexed secure transport. One
// Demux wraps one established transport connection and carries any number
// of virtual channels, each addressed by a 32-bit port number. Services
// consume it opaquely: open a channel toward a port, or listen for
// channels opened by the peer.
package fiber

import (
	"context"
	"io"
)

// ProtocolVersion is the websocket subprotocol spoken on the physical
// link underneath the transport.
const ProtocolVersion = "funnel-v1"

// ChannelType is the transport channel type used for all virtual
// channels.
const ChannelType = "funnel"

// Channel is one virtual byte stream. It behaves like a socket: duplex,
// closable, and with an independently closable send direction so a peer
// can observe end-of-stream while counter-traffic drains.
type Channel interface {
	io.ReadWriteCloser
	CloseWrite() error
}

// Demux multiplexes virtual channels over one transport connection.
// Implementations must be safe for concurrent use.
type Demux interface {
	// ID identifies this transport connection in logs.
	ID() string
	// OpenChannel opens a virtual channel toward port on the peer. It
	// blocks until the peer accepts or rejects, or ctx is done.
	OpenChannel(ctx context.Context, port uint32) (Channel, error)
	// Listen binds port on this side; channels the peer opens toward it
	// are delivered to the returned listener. A port can be bound once.
	Listen(port uint32) (*Listener, error)
	// Close tears down the transport and every channel and listener on
	// it. Safe to call more than once.
	Close() error
}
