package fiber

import (
	"context"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/jpillora/backoff"
	"golang.org/x/crypto/ssh"

	"github.com/funnelhq/funnel/share/ccrypto"
	"github.com/funnelhq/funnel/share/cio"
	"github.com/funnelhq/funnel/share/cnet"
	"github.com/funnelhq/funnel/share/settings"
)

// ClientConfig configures the client side of a transport handshake.
type ClientConfig struct {
	// Fingerprint, when set, pins the peer host key. Prefix match, so a
	// truncated fingerprint is accepted.
	Fingerprint string
	// KeepAlive > 0 pings the peer at this interval and tears the
	// transport down when a ping fails.
	KeepAlive time.Duration
}

// ServerConfig configures the server side of a transport handshake.
type ServerConfig struct {
	// KeySeed deterministically derives the host key; empty means a
	// fresh random key.
	KeySeed   string
	KeepAlive time.Duration
}

// DialConfig configures Dial.
type DialConfig struct {
	// URL of the peer's websocket endpoint (ws:// or wss://).
	URL     string
	Headers http.Header
	ClientConfig
	// MaxRetryCount bounds reconnect attempts; negative means unlimited.
	MaxRetryCount int
	// MaxRetryInterval caps the backoff between attempts. Unset falls
	// back to FUNNEL_MAX_RETRY_INTERVAL, then 5m.
	MaxRetryInterval time.Duration
}

// Client performs the secure-transport handshake over an established
// physical connection and returns its demux.
func Client(conn net.Conn, logger *cio.Logger, cfg ClientConfig) (Demux, error) {
	sshCfg := &ssh.ClientConfig{
		User:            "funnel",
		ClientVersion:   "SSH-2.0-funnel",
		Timeout:         30 * time.Second,
		HostKeyCallback: fingerprintCallback(logger, cfg.Fingerprint),
	}
	sshConn, chans, reqs, err := ssh.NewClientConn(conn, "", sshCfg)
	if err != nil {
		return nil, err
	}
	return newSSHDemux(logger, sshConn, chans, reqs, cfg.KeepAlive), nil
}

// Serve performs the server side of the handshake over an established
// physical connection and returns its demux.
func Serve(conn net.Conn, logger *cio.Logger, cfg ServerConfig) (Demux, error) {
	signer, err := ccrypto.Seed2Signer(cfg.KeySeed)
	if err != nil {
		return nil, err
	}
	sshCfg := &ssh.ServerConfig{
		ServerVersion: "SSH-2.0-funnel",
		NoClientAuth:  true,
	}
	sshCfg.AddHostKey(signer)
	sshConn, chans, reqs, err := ssh.NewServerConn(conn, sshCfg)
	if err != nil {
		return nil, err
	}
	return newSSHDemux(logger, sshConn, chans, reqs, cfg.KeepAlive), nil
}

// Dial connects to a peer's websocket endpoint, retrying with backoff,
// and hands the connection to Client.
func Dial(ctx context.Context, logger *cio.Logger, cfg DialConfig) (Demux, error) {
	if cfg.MaxRetryInterval <= 0 {
		cfg.MaxRetryInterval = settings.EnvDuration("MAX_RETRY_INTERVAL", 5*time.Minute)
	}
	b := &backoff.Backoff{Max: cfg.MaxRetryInterval}
	for {
		demux, err := dialOnce(ctx, logger, cfg)
		if err == nil {
			return demux, nil
		}
		attempt := int(b.Attempt())
		if cfg.MaxRetryCount >= 0 && attempt >= cfg.MaxRetryCount {
			return nil, err
		}
		d := b.Duration()
		logger.Infof("connection error: %s (attempt %d), retrying in %s", err, attempt+1, d)
		select {
		case <-time.After(d):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

func dialOnce(ctx context.Context, logger *cio.Logger, cfg DialConfig) (Demux, error) {
	d := websocket.Dialer{
		HandshakeTimeout: settings.EnvDuration("WS_TIMEOUT", 45*time.Second),
		Subprotocols:     []string{ProtocolVersion},
	}
	wsConn, _, err := d.DialContext(ctx, cfg.URL, cfg.Headers)
	if err != nil {
		return nil, err
	}
	conn := cnet.NewWebSocketConn(wsConn)
	demux, err := Client(conn, logger, cfg.ClientConfig)
	if err != nil {
		conn.Close()
		return nil, err
	}
	return demux, nil
}

func fingerprintCallback(logger *cio.Logger, expect string) ssh.HostKeyCallback {
	if expect == "" {
		logger.Infof("no peer fingerprint configured, skipping verification")
		return ssh.InsecureIgnoreHostKey()
	}
	return func(hostname string, remote net.Addr, key ssh.PublicKey) error {
		got := ccrypto.FingerprintKey(key)
		if strings.HasPrefix(got, expect) {
			return nil
		}
		return logger.Errorf("invalid peer fingerprint %s (expected %s)", got, expect)
	}
}
