package fiber

import (
	"net"
	"sync"

	"github.com/funnelhq/funnel/share/settings"
)

// Listener receives virtual channels the peer opens toward one port.
type Listener struct {
	port    uint32
	pending chan Channel
	done    chan struct{}
	once    sync.Once
	onClose func()
}

func newListener(port uint32, onClose func()) *Listener {
	return &Listener{
		port:    port,
		pending: make(chan Channel, settings.EnvInt("CHANNEL_BACKLOG", 8)),
		done:    make(chan struct{}),
		onClose: onClose,
	}
}

// Port returns the bound channel port.
func (l *Listener) Port() uint32 {
	return l.port
}

// Accept blocks until the peer opens a channel toward the bound port, or
// the listener is closed.
func (l *Listener) Accept() (Channel, error) {
	select {
	case ch := <-l.pending:
		return ch, nil
	case <-l.done:
		return nil, net.ErrClosed
	}
}

// Close unbinds the port and closes any queued channels not yet
// accepted, so their openers see end-of-stream instead of a silent
// stall.
func (l *Listener) Close() error {
	l.once.Do(func() {
		close(l.done)
		if l.onClose != nil {
			l.onClose()
		}
		l.drain()
	})
	return nil
}

// deliver hands an accepted channel to the listener. It reports false if
// the listener closed first, in which case the caller owns the channel.
func (l *Listener) deliver(ch Channel) bool {
	select {
	case l.pending <- ch:
	case <-l.done:
		return false
	}
	// Close may have finished its drain between the enqueue and now;
	// reclaim anything it missed.
	select {
	case <-l.done:
		l.drain()
		return false
	default:
		return true
	}
}

func (l *Listener) drain() {
	for {
		select {
		case ch := <-l.pending:
			ch.Close()
		default:
			return
		}
	}
}
