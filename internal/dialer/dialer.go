package dialer

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/url"
	"strings"
)

// Dialer opens the outbound leg of a session.
//
// The session calls DialContext once per resolved candidate, passing the
// candidate's network ("tcp4" or "tcp6") and its literal IP:port. The
// direct dialer honors that network. Proxying dialers reach their proxy
// with plain "tcp" and forward the candidate address unchanged, so the
// proxy connects to exactly the address the resolver chose.
type Dialer interface {
	DialContext(ctx context.Context, network, address string) (net.Conn, error)
}

// Upstream is a parsed --upstream URL.
type Upstream struct {
	Scheme   string
	Host     string // host:port with the scheme's default port applied
	Username string
	Password string
}

var defaultPorts = map[string]string{
	"http":   "80",
	"https":  "443",
	"socks5": "1080",
}

// ParseUpstream accepts:
//   - direct://
//   - http://[user:pass@]host[:port]
//   - https://[user:pass@]host[:port]
//   - socks5://[user:pass@]host[:port]
//
// The scheme is case-insensitive and a path is not allowed.
func ParseUpstream(s string) (Upstream, error) {
	u, err := url.Parse(s)
	if err != nil {
		return Upstream{}, fmt.Errorf("invalid upstream: %w", err)
	}
	if u.Scheme == "" {
		return Upstream{}, errors.New("invalid upstream: missing scheme")
	}
	if u.Path != "" && u.Path != "/" {
		return Upstream{}, errors.New("invalid upstream: path should be empty")
	}

	up := Upstream{Scheme: strings.ToLower(u.Scheme), Host: u.Host}
	if up.Scheme == "direct" {
		return up, nil
	}

	port, ok := defaultPorts[up.Scheme]
	if !ok {
		return Upstream{}, fmt.Errorf("invalid upstream scheme: %q", u.Scheme)
	}
	if host := u.Hostname(); host != "" && u.Port() == "" {
		up.Host = net.JoinHostPort(host, port)
	}
	if u.User != nil {
		up.Username = u.User.Username()
		up.Password, _ = u.User.Password()
	}
	return up, nil
}

// New parses upstream and constructs the matching Dialer.
func New(cfg Config, upstream string) (Dialer, error) {
	up, err := ParseUpstream(upstream)
	if err != nil {
		return nil, err
	}

	switch up.Scheme {
	case "direct":
		return NewDirectDialer(cfg)
	case "http", "https":
		u := &url.URL{Scheme: up.Scheme, Host: up.Host}
		return NewHTTPProxyDialer(cfg, u, up.Username, up.Password)
	default:
		return NewSOCKS5ProxyDialer(cfg, up.Host, up.Username, up.Password)
	}
}
