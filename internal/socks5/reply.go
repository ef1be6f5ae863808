package socks5

import (
	"encoding/binary"
	"fmt"
	"io"
	"net"
	"net/netip"

	txsocks5 "github.com/txthinking/socks5"
)

// ReplyCode is the REP field of a reply.
type ReplyCode byte

const (
	RepSucceeded               = ReplyCode(txsocks5.RepSuccess)
	RepGeneralFailure          = ReplyCode(txsocks5.RepServerFailure)
	RepConnectionNotAllowed    = ReplyCode(txsocks5.RepNotAllowed)
	RepNetworkUnreachable      = ReplyCode(txsocks5.RepNetworkUnreachable)
	RepHostUnreachable         = ReplyCode(txsocks5.RepHostUnreachable)
	RepConnectionRefused       = ReplyCode(txsocks5.RepConnectionRefused)
	RepTTLExpired              = ReplyCode(txsocks5.RepTTLExpired)
	RepCommandNotSupported     = ReplyCode(txsocks5.RepCommandNotSupported)
	RepAddressTypeNotSupported = ReplyCode(txsocks5.RepAddressNotSupported)
)

// ReplyLen is the size of every reply this server sends.
const ReplyLen = 10

var replyNames = [...]string{
	RepSucceeded:               "succeeded",
	RepGeneralFailure:          "general failure",
	RepConnectionNotAllowed:    "connection not allowed",
	RepNetworkUnreachable:      "network unreachable",
	RepHostUnreachable:         "host unreachable",
	RepConnectionRefused:       "connection refused",
	RepTTLExpired:              "ttl expired",
	RepCommandNotSupported:     "command not supported",
	RepAddressTypeNotSupported: "address type not supported",
}

// Valid reports whether c is one of the codes defined by RFC 1928.
func (c ReplyCode) Valid() bool {
	return int(c) < len(replyNames)
}

func (c ReplyCode) String() string {
	if !c.Valid() {
		return fmt.Sprintf("reply(0x%02x)", byte(c))
	}
	return replyNames[c]
}

// AppendReply appends a reply to b.
//
// The address type is always IPv4. bound supplies BND.ADDR and BND.PORT;
// a nil bound gives 0.0.0.0:0 and a non-IPv4 bound address is sent as
// 0.0.0.0 with its real port. Codes outside the defined set are sent as
// RepGeneralFailure.
func AppendReply(b []byte, code ReplyCode, bound net.Addr) []byte {
	if !code.Valid() {
		code = RepGeneralFailure
	}
	ip, port := boundIPv4(bound)
	a4 := ip.As4()

	b = append(b, Version, byte(code), 0x00, byte(AddrIPv4))
	b = append(b, a4[:]...)
	return binary.BigEndian.AppendUint16(b, port)
}

// WriteReply sends a reply in a single write.
func WriteReply(w io.Writer, code ReplyCode, bound net.Addr) error {
	var buf [ReplyLen]byte
	if _, err := w.Write(AppendReply(buf[:0], code, bound)); err != nil {
		return transportError("write reply", err)
	}
	return nil
}

func boundIPv4(a net.Addr) (netip.Addr, uint16) {
	var ap netip.AddrPort
	switch v := a.(type) {
	case nil:
	case *net.TCPAddr:
		ap = v.AddrPort()
	default:
		ap, _ = netip.ParseAddrPort(a.String())
	}

	ip := ap.Addr().Unmap()
	if !ip.Is4() {
		ip = netip.IPv4Unspecified()
	}
	return ip, ap.Port()
}
