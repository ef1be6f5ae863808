// Package resolver turns a requested target into the ordered list of
// endpoints the proxy will try to connect to.
package resolver

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/netip"

	"github.com/die-net/socks5d/internal/socks5"
)

var (
	// ErrNoSuchHost means the name does not exist or has no addresses.
	ErrNoSuchHost = errors.New("no such host")

	// ErrFamilyUnsupported means the target, or every address it resolved
	// to, is of an address family the proxy is configured not to use.
	ErrFamilyUnsupported = errors.New("address family not supported")
)

// Candidate is one connectable TCP endpoint.
type Candidate struct {
	// Network is "tcp4" or "tcp6".
	Network string
	Addr    netip.AddrPort
}

func (c Candidate) String() string {
	return c.Network + " " + c.Addr.String()
}

// Backend looks up the addresses of a host name. *net.Resolver satisfies it.
//
// A name that does not exist should be reported as a *net.DNSError with
// IsNotFound set.
type Backend interface {
	LookupNetIP(ctx context.Context, network, host string) ([]netip.Addr, error)
}

// SystemBackend returns the platform resolver.
func SystemBackend() Backend {
	return net.DefaultResolver
}

type Resolver struct {
	backend Backend
	family  Family
}

func New(backend Backend, family Family) *Resolver {
	return &Resolver{backend: backend, family: family}
}

// Resolve returns the candidates for t in the order they should be tried.
//
// Literal addresses yield exactly one candidate without a lookup; an
// IPv4-mapped IPv6 literal is dialed as IPv4. Names are
// looked up with the family left unspecified and the answers are kept in
// the backend's order.
func (r *Resolver) Resolve(ctx context.Context, t socks5.Target) ([]Candidate, error) {
	switch t.Type {
	case socks5.AddrIPv4, socks5.AddrIPv6:
		if !r.family.allows(t.IP) {
			return nil, fmt.Errorf("%s: %w", t, ErrFamilyUnsupported)
		}
		ip := t.IP.Unmap()
		network := "tcp6"
		if ip.Is4() {
			network = "tcp4"
		}
		return []Candidate{{Network: network, Addr: netip.AddrPortFrom(ip, t.Port)}}, nil

	case socks5.AddrDomain:
		return r.lookup(ctx, t)

	default:
		return nil, fmt.Errorf("%s: %w", t.Type, ErrFamilyUnsupported)
	}
}

func (r *Resolver) lookup(ctx context.Context, t socks5.Target) ([]Candidate, error) {
	addrs, err := r.backend.LookupNetIP(ctx, "ip", t.Name)
	if err != nil {
		var dnsErr *net.DNSError
		if errors.As(err, &dnsErr) && dnsErr.IsNotFound {
			return nil, fmt.Errorf("%w: %w", ErrNoSuchHost, err)
		}
		return nil, fmt.Errorf("lookup %s: %w", t, err)
	}

	candidates := make([]Candidate, 0, len(addrs))
	for _, a := range addrs {
		a = a.Unmap()
		if !r.family.allows(a) {
			continue
		}
		network := "tcp6"
		if a.Is4() {
			network = "tcp4"
		}
		candidates = append(candidates, Candidate{Network: network, Addr: netip.AddrPortFrom(a, t.Port)})
	}

	if len(candidates) == 0 {
		if len(addrs) > 0 {
			return nil, fmt.Errorf("%s resolved only to %s-excluded addresses: %w", t, r.family, ErrFamilyUnsupported)
		}
		return nil, fmt.Errorf("%s: %w", t, ErrNoSuchHost)
	}
	return candidates, nil
}
