// Package relay pairs two byte-stream endpoints and drives a full-duplex
// relay between them. It is shared by every service that bridges a
// socket with a virtual channel.
package relay

import (
	"io"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"github.com/funnelhq/funnel/share/cio"
)

// State is the lifecycle state of a Session.
type State int32

const (
	Connecting State = iota
	Relaying
	Closing
	Closed
)

func (s State) String() string {
	switch s {
	case Connecting:
		return "connecting"
	case Relaying:
		return "relaying"
	case Closing:
		return "closing"
	case Closed:
		return "closed"
	}
	return "unknown"
}

// Session owns one accepted socket and one virtual channel and copies
// bytes between them in both directions until either side ends or an
// external stop arrives. Both endpoints are closed exactly once, when
// the relay winds down.
type Session struct {
	*cio.Logger
	id  int32
	src io.ReadWriteCloser // socket side
	dst io.ReadWriteCloser // channel side

	state     atomic.Int32
	closeOnce sync.Once
	done      chan struct{}

	sent     int64 // src -> dst bytes, written before done closes
	received int64 // dst -> src bytes, written before done closes
}

// NewSession creates a Session in the Connecting state. It takes
// exclusive ownership of both endpoints.
func NewSession(logger *cio.Logger, id int32, src, dst io.ReadWriteCloser) *Session {
	return &Session{
		Logger: logger.Fork("conn#%d", id),
		id:     id,
		src:    src,
		dst:    dst,
		done:   make(chan struct{}),
	}
}

// ID returns the session's registry identifier.
func (s *Session) ID() int32 {
	return s.id
}

// State returns the current lifecycle state.
func (s *Session) State() State {
	return State(s.state.Load())
}

// Done is closed once the session reaches Closed.
func (s *Session) Done() <-chan struct{} {
	return s.done
}

// Counts reports bytes relayed in each direction. Stable once Done is
// closed.
func (s *Session) Counts() (sent, received int64) {
	return atomic.LoadInt64(&s.sent), atomic.LoadInt64(&s.received)
}

// Relay runs both directional copies and blocks until the session is
// Closed, returning the byte counts. A direction that hits end-of-stream
// half-closes its destination and lets the other direction drain; an I/O
// error or a Stop tears both endpoints down immediately.
func (s *Session) Relay() (sent, received int64) {
	s.state.Store(int32(Relaying))
	s.Debugf("open")
	var eg errgroup.Group
	eg.Go(func() error {
		return s.copyDirection(s.dst, s.src, &s.sent)
	})
	eg.Go(func() error {
		return s.copyDirection(s.src, s.dst, &s.received)
	})
	if err := eg.Wait(); err != nil {
		s.Debugf("relay error: %s", err)
	}
	s.release()
	s.state.Store(int32(Closed))
	close(s.done)
	return s.sent, s.received
}

// Stop requests termination. In-flight reads and writes complete with a
// closed-connection error rather than hanging. Safe to call at any time,
// any number of times.
func (s *Session) Stop() {
	s.state.CompareAndSwap(int32(Relaying), int32(Closing))
	s.release()
}

func (s *Session) copyDirection(dst, src io.ReadWriteCloser, counter *int64) error {
	n, err := io.Copy(dst, src)
	atomic.AddInt64(counter, n)
	s.state.CompareAndSwap(int32(Relaying), int32(Closing))
	if err != nil {
		// terminal for the whole session; unblock the other direction
		s.release()
		return err
	}
	// clean end-of-stream: propagate it without dropping counter-traffic
	if whc, ok := dst.(cio.WriteHalfCloser); ok {
		if werr := whc.CloseWrite(); werr == nil {
			return nil
		}
	}
	s.release()
	return nil
}

// release closes both endpoints exactly once.
func (s *Session) release() {
	s.closeOnce.Do(func() {
		s.src.Close()
		s.dst.Close()
	})
}
