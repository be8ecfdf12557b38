package cio

// WriteHalfCloser is a bidirectional stream whose send direction can be
// shut down independently of its receive direction, like
// net.TCPConn.CloseWrite. Closing the write half signals end-of-stream
// to the peer while letting in-flight data in the other direction drain.
type WriteHalfCloser interface {
	CloseWrite() error
}
