package dialer

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/die-net/socks5d/internal/socks5"
)

// SOCKS5ProxyDialer dials outbound TCP connections through another SOCKS5
// proxy.
type SOCKS5ProxyDialer struct {
	cfg       Config
	proxyAddr string
	auth      socks5.Auth
	direct    Dialer
}

// NewSOCKS5ProxyDialer constructs a dialer for the SOCKS5 proxy at
// proxyAddr. A non-empty username offers username/password authentication.
func NewSOCKS5ProxyDialer(cfg Config, proxyAddr, username, password string) (Dialer, error) {
	if host, _, err := net.SplitHostPort(proxyAddr); err != nil || host == "" {
		return nil, errors.New("socks5 proxy dialer: invalid proxy host")
	}

	direct, err := NewDirectDialer(cfg)
	if err != nil {
		return nil, err
	}

	return &SOCKS5ProxyDialer{
		cfg:       cfg,
		proxyAddr: proxyAddr,
		auth:      socks5.Auth{Username: username, Password: password},
		direct:    direct,
	}, nil
}

// ProxyAddr returns the proxy host:port.
func (f *SOCKS5ProxyDialer) ProxyAddr() string {
	return f.proxyAddr
}

// DialContext asks the proxy to CONNECT to address. Canceling ctx aborts
// the negotiation. The returned conn's LocalAddr is the bound address from
// the proxy's reply when it sent an IP address.
func (f *SOCKS5ProxyDialer) DialContext(ctx context.Context, network, address string) (net.Conn, error) {
	if !strings.HasPrefix(network, "tcp") {
		return nil, fmt.Errorf("socks5 proxy dial %s %s: unsupported network", network, address)
	}

	c, err := f.direct.DialContext(ctx, "tcp", f.proxyAddr)
	if err != nil {
		return nil, fmt.Errorf("socks5 proxy: %w", err)
	}

	if f.cfg.NegotiationTimeout > 0 {
		_ = c.SetDeadline(time.Now().Add(f.cfg.NegotiationTimeout))
	}
	stop := context.AfterFunc(ctx, func() { _ = c.Close() })

	bound, err := socks5.ClientDial(c, f.auth, address)
	if !stop() {
		_ = c.Close()
		return nil, fmt.Errorf("socks5 proxy dial %s: %w", address, ctx.Err())
	}
	if err != nil {
		_ = c.Close()
		return nil, fmt.Errorf("socks5 proxy dial %s: %w", address, err)
	}

	if f.cfg.NegotiationTimeout > 0 {
		_ = c.SetDeadline(time.Time{})
	}
	if bound != nil {
		return &boundConn{Conn: c, bound: bound}, nil
	}
	return c, nil
}

// boundConn reports the address the upstream proxy bound for the
// connection as its local address.
type boundConn struct {
	net.Conn
	bound net.Addr
}

func (c *boundConn) LocalAddr() net.Addr {
	return c.bound
}
