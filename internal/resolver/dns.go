package resolver

import (
	"context"
	"net"
	"net/netip"
	"time"

	"github.com/miekg/dns"
	"golang.org/x/sync/errgroup"
)

// DNSBackend resolves names by querying one DNS server directly, bypassing
// the system resolver configuration.
type DNSBackend struct {
	server string
	client *dns.Client
}

// NewDNSBackend queries server over UDP. A server without a port uses 53.
// timeout bounds each query; zero uses the library default.
func NewDNSBackend(server string, timeout time.Duration) *DNSBackend {
	if _, _, err := net.SplitHostPort(server); err != nil {
		server = net.JoinHostPort(server, "53")
	}
	return &DNSBackend{
		server: server,
		client: &dns.Client{Net: "udp", Timeout: timeout},
	}
}

// LookupNetIP asks for A and AAAA records in parallel and returns the IPv4
// answers followed by the IPv6 answers. network "ip4" or "ip6" asks for
// only one of them. A failed query only fails the lookup when no other
// query produced addresses.
func (b *DNSBackend) LookupNetIP(ctx context.Context, network, host string) ([]netip.Addr, error) {
	var qtypes []uint16
	switch network {
	case "ip4":
		qtypes = []uint16{dns.TypeA}
	case "ip6":
		qtypes = []uint16{dns.TypeAAAA}
	default:
		qtypes = []uint16{dns.TypeA, dns.TypeAAAA}
	}

	answers := make([][]netip.Addr, len(qtypes))
	errs := make([]error, len(qtypes))
	var g errgroup.Group
	for i, qtype := range qtypes {
		g.Go(func() error {
			answers[i], errs[i] = b.query(ctx, host, qtype)
			return nil
		})
	}
	_ = g.Wait()

	var addrs []netip.Addr
	for _, a := range answers {
		addrs = append(addrs, a...)
	}
	if len(addrs) > 0 {
		return addrs, nil
	}
	for _, err := range errs {
		if err != nil {
			return nil, err
		}
	}
	if len(addrs) == 0 {
		return nil, &net.DNSError{Err: "no such host", Name: host, Server: b.server, IsNotFound: true}
	}
	return addrs, nil
}

// query returns no addresses and no error for NXDOMAIN and for empty
// answers, so that one missing record type does not fail the other.
func (b *DNSBackend) query(ctx context.Context, host string, qtype uint16) ([]netip.Addr, error) {
	m := new(dns.Msg)
	m.SetQuestion(dns.Fqdn(host), qtype)
	m.RecursionDesired = true

	in, _, err := b.client.ExchangeContext(ctx, m, b.server)
	if err != nil {
		dnsErr := &net.DNSError{Err: err.Error(), Name: host, Server: b.server}
		if ne, ok := err.(net.Error); ok && ne.Timeout() {
			dnsErr.IsTimeout = true
		}
		return nil, dnsErr
	}

	switch in.Rcode {
	case dns.RcodeSuccess:
	case dns.RcodeNameError:
		return nil, nil
	default:
		return nil, &net.DNSError{
			Err:         "server answered " + dns.RcodeToString[in.Rcode],
			Name:        host,
			Server:      b.server,
			IsTemporary: in.Rcode == dns.RcodeServerFailure,
		}
	}

	var addrs []netip.Addr
	for _, rr := range in.Answer {
		var ip net.IP
		switch rr := rr.(type) {
		case *dns.A:
			ip = rr.A
		case *dns.AAAA:
			ip = rr.AAAA
		default:
			continue
		}
		if a, ok := netip.AddrFromSlice(ip); ok {
			addrs = append(addrs, a.Unmap())
		}
	}
	return addrs, nil
}
