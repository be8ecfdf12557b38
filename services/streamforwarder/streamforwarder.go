// Package streamforwarder implements the stream_forwarder microservice,
// the far-end counterpart of stream_listener: it accepts virtual
// channels opened toward a channel port and forwards each one to a TCP
// endpoint, relaying bytes both ways.
package streamforwarder

import (
	"context"
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

// StreamForwarder is one provisioned forwarder instance.
type StreamForwarder struct {
	*cio.Logger
	demux      fiber.Demux
	remotePort uint32
	localAddr  string
	localPort  uint16

	registry *relay.Registry
	dialer   net.Dialer
	count    int32

	ctx    context.Context
	cancel context.CancelFunc

	mu      sync.Mutex
	ln      *fiber.Listener
	stopped bool
}

// New validates a provisioning parameter bag and constructs a
// StreamForwarder. Required keys: local_addr and local_port (the TCP
// endpoint to dial per channel) and remote_port (the channel port to
// accept on).
func New(logger *cio.Logger, demux fiber.Demux, params settings.Parameters) (*StreamForwarder, error) {
	log := logger.Fork("stream_forwarder")
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
	localAddr := params.Get("local_addr")
	if localAddr == "" {
		localAddr = "127.0.0.1"
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &StreamForwarder{
		Logger:     log.Fork("%d->%s:%d", remotePort, localAddr, localPort),
		demux:      demux,
		remotePort: remotePort,
		localAddr:  localAddr,
		localPort:  uint16(localPort),
		registry:   relay.NewRegistry(),
		ctx:        ctx,
		cancel:     cancel,
	}, nil
}

// ServiceTypeID returns the fixed factory identifier of this service
// type.
func (f *StreamForwarder) ServiceTypeID() uint32 {
	return service.TypeStreamForwarder
}

// Start binds the channel port on the demux and arms the accept loop.
func (f *StreamForwarder) Start() error {
	ln, err := f.demux.Listen(f.remotePort)
	if err != nil {
		return f.Errorf("bind channel port: %s", err)
	}
	f.mu.Lock()
	f.ln = ln
	f.mu.Unlock()
	f.Infof("accepting channels on port %d", f.remotePort)
	go f.acceptLoop(ln)
	return nil
}

// Stop unbinds the channel port and requests closure of every live
// session without waiting for them.
func (f *StreamForwarder) Stop() error {
	f.mu.Lock()
	if f.stopped {
		f.mu.Unlock()
		return nil
	}
	f.stopped = true
	ln := f.ln
	f.mu.Unlock()
	f.cancel()
	var err error
	if ln != nil {
		err = ln.Close()
	}
	f.registry.StopAll()
	f.Infof("stopped")
	return err
}

// StopSession requests termination of a single session; unknown ids are
// a no-op.
func (f *StreamForwarder) StopSession(id int32) error {
	if sess, ok := f.registry.Get(id); ok {
		sess.Stop()
	}
	return nil
}

// ActiveSessions returns the number of live bridges.
func (f *StreamForwarder) ActiveSessions() int {
	return f.registry.Len()
}

func (f *StreamForwarder) acceptLoop(ln *fiber.Listener) {
	for {
		ch, err := ln.Accept()
		if err != nil {
			return
		}
		go f.bridge(ch)
	}
}

// bridge dials the TCP target for one inbound channel and runs the
// relay. Failures here are contained to this channel.
func (f *StreamForwarder) bridge(ch fiber.Channel) {
	id := atomic.AddInt32(&f.count, 1)
	addr := net.JoinHostPort(f.localAddr, strconv.Itoa(int(f.localPort)))
	conn, err := f.dialer.DialContext(f.ctx, "tcp", addr)
	if err != nil {
		f.Infof("conn#%d: dial %s: %s", id, addr, err)
		ch.Close()
		return
	}
	sess := relay.NewSession(f.Logger, id, conn, ch)
	f.registry.Put(sess)
	defer f.registry.Remove(id)
	sent, received := sess.Relay()
	sess.Debugf("close (sent %s received %s)", sizestr.ToString(sent), sizestr.ToString(received))
}

// RegisterToFactory registers this service type's creator with the
// dynamic service factory. Disabled services register nothing.
func RegisterToFactory(fa *service.Factory, cfg settings.ServiceConfig, logger *cio.Logger) error {
	if !cfg.Enabled {
		return nil
	}
	return fa.RegisterCreator(service.TypeStreamForwarder, func(demux fiber.Demux, params settings.Parameters) (service.Service, error) {
		return New(logger, demux, params)
	})
}

// CreateRequest builds the provisioning request a peer sends to ask a
// node to start a stream forwarder.
func CreateRequest(localAddr string, localPort uint16, remotePort uint32) *service.CreateServiceRequest {
	return service.NewCreateServiceRequest(service.TypeStreamForwarder).
		AddParameter("local_addr", localAddr).
		AddParameter("local_port", strconv.FormatUint(uint64(localPort), 10)).
		AddParameter("remote_port", strconv.FormatUint(uint64(remotePort), 10))
}
