// Package streamlistener implements the stream_listener microservice:
// it listens on a TCP endpoint and, for every accepted connection, opens
// a virtual channel toward a configured port on the far side of the
// transport, then relays bytes both ways for the life of the connection.
package streamlistener

import (
	"context"
	"errors"
	"net"
	"strconv"
	"sync"
	"sync/atomic"

	"github.com/jpillora/sizestr"

	"github.com/funnelhq/funnel/share/cio"
	"github.com/funnelhq/funnel/share/fiber"
	"github.com/funnelhq/funnel/share/relay"
	"github.com/funnelhq/funnel/share/service"
	"github.com/funnelhq/funnel/share/settings"
)

// StreamListener is one provisioned listener instance. Create it with
// New, then Start it once; Stop is safe even after a failed Start.
type StreamListener struct {
	*cio.Logger
	demux      fiber.Demux
	localAddr  string
	localPort  uint16
	remotePort uint32

	registry *relay.Registry
	count    int32

	ctx    context.Context
	cancel context.CancelFunc

	mu      sync.Mutex
	tcp     *net.TCPListener
	stopped bool
}

// New validates a provisioning parameter bag and constructs a
// StreamListener. Required keys: local_addr, local_port, remote_port.
// An empty local_addr binds loopback; unless gatewayPorts is set, any
// other value is ignored with a warning so a listener is never exposed
// beyond loopback without explicit operator consent. With gatewayPorts,
// "*" binds all interfaces.
func New(logger *cio.Logger, demux fiber.Demux, params settings.Parameters, gatewayPorts bool) (*StreamListener, error) {
	log := logger.Fork("stream_listener")
	if !params.Has("local_addr", "local_port", "remote_port") {
		return nil, log.Errorf("missing required parameter (need local_addr, local_port, remote_port)")
	}
	localPort, err := params.GetUint32("local_port")
	if err != nil {
		return nil, log.Errorf("cannot extract port parameters: %s", err)
	}
	remotePort, err := params.GetUint32("remote_port")
	if err != nil {
		return nil, log.Errorf("cannot extract port parameters: %s", err)
	}
	if localPort > 65535 {
		return nil, log.Errorf("local port %d out of range", localPort)
	}
	localAddr := resolveLocalAddr(log, params.Get("local_addr"), gatewayPorts)
	ctx, cancel := context.WithCancel(context.Background())
	return &StreamListener{
		Logger:     log.Fork("%s:%d->%d", localAddr, localPort, remotePort),
		demux:      demux,
		localAddr:  localAddr,
		localPort:  uint16(localPort),
		remotePort: remotePort,
		registry:   relay.NewRegistry(),
		ctx:        ctx,
		cancel:     cancel,
	}, nil
}

// resolveLocalAddr applies the gateway-ports policy to the local_addr
// parameter.
func resolveLocalAddr(log *cio.Logger, addr string, gatewayPorts bool) string {
	if addr == "" {
		return "127.0.0.1"
	}
	if !gatewayPorts {
		log.Warnf("cannot listen on interface <%s> without gateway ports option", addr)
		return "127.0.0.1"
	}
	if addr == "*" {
		return "0.0.0.0"
	}
	return addr
}

// ServiceTypeID returns the fixed factory identifier of this service
// type.
func (l *StreamListener) ServiceTypeID() uint32 {
	return service.TypeStreamListener
}

// Start binds the listening socket and arms the accept loop. On bind or
// listen failure the service stays unstarted and Stop remains safe.
func (l *StreamListener) Start() error {
	addr, err := net.ResolveTCPAddr("tcp", net.JoinHostPort(l.localAddr, strconv.Itoa(int(l.localPort))))
	if err != nil {
		return l.Errorf("resolve: %s", err)
	}
	tcp, err := net.ListenTCP("tcp", addr)
	if err != nil {
		return l.Errorf("listen: %s", err)
	}
	l.mu.Lock()
	l.tcp = tcp
	l.mu.Unlock()
	l.Infof("listening on %s", tcp.Addr())
	go l.acceptLoop(tcp)
	return nil
}

// Stop closes the listening socket and requests closure of every live
// session. It does not wait for sessions to finish; each relay observes
// its closed endpoints and winds down on its own.
func (l *StreamListener) Stop() error {
	l.mu.Lock()
	if l.stopped {
		l.mu.Unlock()
		return nil
	}
	l.stopped = true
	tcp := l.tcp
	l.mu.Unlock()
	l.cancel()
	var err error
	if tcp != nil {
		err = tcp.Close()
	}
	l.registry.StopAll()
	l.Infof("stopped")
	return err
}

// StopSession requests termination of a single session. Unknown or
// already-removed ids are a no-op, so an explicit stop can race the
// session's natural completion.
func (l *StreamListener) StopSession(id int32) error {
	if sess, ok := l.registry.Get(id); ok {
		sess.Stop()
	}
	return nil
}

// ActiveSessions returns the number of live bridges.
func (l *StreamListener) ActiveSessions() int {
	return l.registry.Len()
}

// Addr returns the bound listening address, or nil before Start.
func (l *StreamListener) Addr() net.Addr {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.tcp == nil {
		return nil
	}
	return l.tcp.Addr()
}

// acceptLoop keeps exactly one accept pending until the service stops.
// Each accepted socket is handed off immediately so a slow channel open
// never blocks the next accept.
func (l *StreamListener) acceptLoop(tcp *net.TCPListener) {
	for {
		conn, err := tcp.Accept()
		if err != nil {
			select {
			case <-l.ctx.Done():
				return
			default:
			}
			if errors.Is(err, net.ErrClosed) {
				return
			}
			l.Infof("accept error: %s", err)
			continue
		}
		go l.bridge(conn)
	}
}

// bridge opens the paired channel for one accepted socket and runs the
// relay. Failures here are contained to this connection.
func (l *StreamListener) bridge(conn net.Conn) {
	id := atomic.AddInt32(&l.count, 1)
	ch, err := l.demux.OpenChannel(l.ctx, l.remotePort)
	if err != nil {
		l.Infof("conn#%d: stream error: %s", id, err)
		conn.Close()
		return
	}
	sess := relay.NewSession(l.Logger, id, conn, ch)
	l.registry.Put(sess)
	defer l.registry.Remove(id)
	sent, received := sess.Relay()
	sess.Debugf("close (sent %s received %s)", sizestr.ToString(sent), sizestr.ToString(received))
}

// RegisterToFactory registers this service type's creator with the
// dynamic service factory. Disabled services register nothing. The
// gateway-ports flag is captured here so provisioning requests cannot
// override node policy.
func RegisterToFactory(f *service.Factory, cfg settings.ServiceConfig, logger *cio.Logger) error {
	if !cfg.Enabled {
		return nil
	}
	gatewayPorts := cfg.GatewayPorts
	return f.RegisterCreator(service.TypeStreamListener, func(demux fiber.Demux, params settings.Parameters) (service.Service, error) {
		return New(logger, demux, params, gatewayPorts)
	})
}

// CreateRequest builds the provisioning request a peer sends to ask a
// node to start a stream listener.
func CreateRequest(localAddr string, localPort uint16, remotePort uint32) *service.CreateServiceRequest {
	return service.NewCreateServiceRequest(service.TypeStreamListener).
		AddParameter("local_addr", localAddr).
		AddParameter("local_port", strconv.FormatUint(uint64(localPort), 10)).
		AddParameter("remote_port", strconv.FormatUint(uint64(remotePort), 10))
}
