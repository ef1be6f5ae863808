package socks5

import (
	"fmt"
	"net"
	"net/netip"
	"strconv"

	txsocks5 "github.com/txthinking/socks5"
)

// Version is the only protocol version accepted.
const Version = txsocks5.Ver

// AuthMethod identifies an authentication method offered in the greeting.
type AuthMethod byte

const (
	MethodNoAuth       = AuthMethod(txsocks5.MethodNone)
	MethodNoAcceptable = AuthMethod(txsocks5.MethodUnsupportAll)
)

// Command is the CMD field of a request.
type Command byte

const (
	CmdConnect      = Command(txsocks5.CmdConnect)
	CmdBind         = Command(txsocks5.CmdBind)
	CmdUDPAssociate = Command(txsocks5.CmdUDP)
)

func (c Command) String() string {
	switch c {
	case CmdConnect:
		return "CONNECT"
	case CmdBind:
		return "BIND"
	case CmdUDPAssociate:
		return "UDP ASSOCIATE"
	default:
		return fmt.Sprintf("command(0x%02x)", byte(c))
	}
}

// AddrType is the ATYP field of a request or reply.
type AddrType byte

const (
	AddrIPv4   = AddrType(txsocks5.ATYPIPv4)
	AddrDomain = AddrType(txsocks5.ATYPDomain)
	AddrIPv6   = AddrType(txsocks5.ATYPIPv6)
)

// Valid reports whether t is one of the three address encodings.
func (t AddrType) Valid() bool {
	return t == AddrIPv4 || t == AddrDomain || t == AddrIPv6
}

func (t AddrType) String() string {
	switch t {
	case AddrIPv4:
		return "ipv4"
	case AddrDomain:
		return "domain"
	case AddrIPv6:
		return "ipv6"
	default:
		return fmt.Sprintf("atyp(0x%02x)", byte(t))
	}
}

// Target is the destination requested by a client.
//
// For AddrIPv4 and AddrIPv6 IP is set; for AddrDomain Name holds the raw
// name bytes exactly as sent. The name is not validated and may contain
// any byte value.
type Target struct {
	Type AddrType
	IP   netip.Addr
	Name string
	Port uint16
}

// Host returns the literal address or the domain name.
func (t Target) Host() string {
	if t.Type == AddrDomain {
		return t.Name
	}
	return t.IP.String()
}

// String returns host:port, quoting names that are not printable.
func (t Target) String() string {
	host := t.Host()
	if t.Type == AddrDomain && !printable(host) {
		host = strconv.Quote(host)
	}
	return net.JoinHostPort(host, strconv.Itoa(int(t.Port)))
}

func printable(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] <= ' ' || s[i] > '~' {
			return false
		}
	}
	return true
}

// Request is a parsed client request.
type Request struct {
	Command Command
	Target  Target
}
