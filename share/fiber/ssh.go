package fiber

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/ssh"

	"github.com/funnelhq/funnel/share/cio"
)

// channelOpenMsg is the payload of a transport channel-open request,
// carrying the virtual port the opener wants on the far side.
type channelOpenMsg struct {
	Port uint32
}

// sshDemux implements Demux on top of one ssh.Conn. Both ends of a
// transport connection hold one; channel opens travel in either
// direction.
type sshDemux struct {
	*cio.Logger
	id   string
	conn ssh.Conn

	mu    sync.Mutex
	ports map[uint32]*Listener

	done      chan struct{}
	closeOnce sync.Once
}

func newSSHDemux(logger *cio.Logger, conn ssh.Conn, chans <-chan ssh.NewChannel, reqs <-chan *ssh.Request, keepAlive time.Duration) *sshDemux {
	id := uuid.NewString()
	d := &sshDemux{
		Logger: logger.Fork("demux#%s", id[:8]),
		id:     id,
		conn:   conn,
		ports:  make(map[uint32]*Listener),
		done:   make(chan struct{}),
	}
	go ssh.DiscardRequests(reqs)
	go d.route(chans)
	if keepAlive > 0 {
		go d.keepAliveLoop(keepAlive)
	}
	return d
}

func (d *sshDemux) ID() string {
	return d.id
}

func (d *sshDemux) OpenChannel(ctx context.Context, port uint32) (Channel, error) {
	type opened struct {
		ch   ssh.Channel
		reqs <-chan *ssh.Request
		err  error
	}
	res := make(chan opened, 1)
	go func() {
		ch, reqs, err := d.conn.OpenChannel(ChannelType, ssh.Marshal(channelOpenMsg{Port: port}))
		res <- opened{ch, reqs, err}
	}()
	select {
	case o := <-res:
		if o.err != nil {
			return nil, fmt.Errorf("open channel to port %d: %w", port, o.err)
		}
		go ssh.DiscardRequests(o.reqs)
		return o.ch, nil
	case <-ctx.Done():
		// the open may still succeed after cancellation; reap it
		go func() {
			if o := <-res; o.err == nil {
				o.ch.Close()
			}
		}()
		return nil, ctx.Err()
	}
}

func (d *sshDemux) Listen(port uint32) (*Listener, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	select {
	case <-d.done:
		return nil, fmt.Errorf("transport closed")
	default:
	}
	if _, ok := d.ports[port]; ok {
		return nil, fmt.Errorf("channel port %d already bound", port)
	}
	l := newListener(port, func() { d.unbind(port) })
	d.ports[port] = l
	return l, nil
}

func (d *sshDemux) unbind(port uint32) {
	d.mu.Lock()
	delete(d.ports, port)
	d.mu.Unlock()
}

func (d *sshDemux) Close() error {
	var err error
	d.closeOnce.Do(func() {
		close(d.done)
		err = d.conn.Close()
		d.mu.Lock()
		listeners := make([]*Listener, 0, len(d.ports))
		for _, l := range d.ports {
			listeners = append(listeners, l)
		}
		d.mu.Unlock()
		for _, l := range listeners {
			l.Close()
		}
		d.Debugf("closed")
	})
	return err
}

// route dispatches inbound channel opens to bound listeners until the
// transport dies.
func (d *sshDemux) route(chans <-chan ssh.NewChannel) {
	for nc := range chans {
		if nc.ChannelType() != ChannelType {
			nc.Reject(ssh.UnknownChannelType, "unsupported channel type")
			continue
		}
		var msg channelOpenMsg
		if err := ssh.Unmarshal(nc.ExtraData(), &msg); err != nil {
			nc.Reject(ssh.ConnectionFailed, "malformed channel open payload")
			continue
		}
		d.mu.Lock()
		l := d.ports[msg.Port]
		d.mu.Unlock()
		if l == nil {
			d.Debugf("rejecting channel for unbound port %d", msg.Port)
			nc.Reject(ssh.Prohibited, fmt.Sprintf("channel port %d not bound", msg.Port))
			continue
		}
		go d.acceptInbound(nc, l)
	}
	d.Close()
}

func (d *sshDemux) acceptInbound(nc ssh.NewChannel, l *Listener) {
	ch, reqs, err := nc.Accept()
	if err != nil {
		d.Debugf("accept channel for port %d: %s", l.Port(), err)
		return
	}
	go ssh.DiscardRequests(reqs)
	if !l.deliver(ch) {
		ch.Close()
	}
}

func (d *sshDemux) keepAliveLoop(interval time.Duration) {
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-d.done:
			return
		case <-t.C:
			if _, _, err := d.conn.SendRequest("ping", true, nil); err != nil {
				d.Debugf("keepalive failed: %s", err)
				d.Close()
				return
			}
		}
	}
}
