package cnet

import (
	"net"
	"time"

	"github.com/gorilla/websocket"
)

// wsConn adapts a websocket connection to net.Conn so the secure
// transport can handshake over it. Websocket frames the stream; reads
// may return part of a frame and buffer the rest.
type wsConn struct {
	*websocket.Conn
	buff []byte
}

// NewWebSocketConn converts a websocket.Conn into a net.Conn.
func NewWebSocketConn(websocketConn *websocket.Conn) net.Conn {
	return &wsConn{Conn: websocketConn}
}

func (c *wsConn) Read(dst []byte) (int, error) {
	var src []byte
	if len(c.buff) > 0 {
		src = c.buff
		c.buff = nil
	} else if _, msg, err := c.Conn.ReadMessage(); err == nil {
		src = msg
	} else {
		return 0, err
	}
	n := copy(dst, src)
	if n < len(src) {
		c.buff = src[n:]
	}
	return n, nil
}

func (c *wsConn) Write(b []byte) (int, error) {
	if err := c.Conn.WriteMessage(websocket.BinaryMessage, b); err != nil {
		return 0, err
	}
	return len(b), nil
}

func (c *wsConn) SetDeadline(t time.Time) error {
	if err := c.Conn.SetReadDeadline(t); err != nil {
		return err
	}
	return c.Conn.SetWriteDeadline(t)
}
