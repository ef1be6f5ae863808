package socks5

import (
	"encoding/binary"
	"errors"
	"fmt"
	"net"

	txsocks5 "github.com/txthinking/socks5"
)

// Auth configures optional username/password authentication when dialing
// through an upstream SOCKS5 proxy.
type Auth struct {
	Username string
	Password string
}

// ReplyError is returned by ClientConnect when the proxy answers with
// anything other than RepSucceeded.
type ReplyError struct {
	Code ReplyCode
}

func (e *ReplyError) Error() string {
	return "socks5 connect: " + e.Code.String()
}

// ClientDial negotiates with the proxy on conn and asks it to CONNECT to
// address. conn is left open on error; the caller owns it.
func ClientDial(conn net.Conn, auth Auth, address string) (net.Addr, error) {
	if err := ClientNegotiate(conn, auth); err != nil {
		return nil, err
	}
	return ClientConnect(conn, address)
}

func ClientNegotiate(conn net.Conn, auth Auth) error {
	methods := []byte{txsocks5.MethodNone}
	if auth.Username != "" {
		methods = append(methods, txsocks5.MethodUsernamePassword)
	}

	if _, err := txsocks5.NewNegotiationRequest(methods).WriteTo(conn); err != nil {
		return fmt.Errorf("write negotiation: %w", err)
	}

	neg, err := txsocks5.NewNegotiationReplyFrom(conn)
	if err != nil {
		return fmt.Errorf("read negotiation: %w", err)
	}

	switch neg.Method {
	case txsocks5.MethodNone:
		return nil
	case txsocks5.MethodUsernamePassword:
		if auth.Username == "" {
			return errors.New("server requires username/password")
		}

		if _, err := txsocks5.NewUserPassNegotiationRequest([]byte(auth.Username), []byte(auth.Password)).WriteTo(conn); err != nil {
			return fmt.Errorf("write userpass: %w", err)
		}
		rep, err := txsocks5.NewUserPassNegotiationReplyFrom(conn)
		if err != nil {
			return fmt.Errorf("read userpass: %w", err)
		}
		if rep.Status != txsocks5.UserPassStatusSuccess {
			return errors.New("auth failed")
		}
		return nil
	default:
		return fmt.Errorf("unsupported negotiation method: %d", neg.Method)
	}
}

// ClientConnect sends a CONNECT request for address and returns the bound
// address reported by the proxy.
func ClientConnect(conn net.Conn, address string) (net.Addr, error) {
	atyp, dstAddr, dstPort, err := txsocks5.ParseAddress(address)
	if err != nil {
		return nil, fmt.Errorf("parse address: %w", err)
	}
	if atyp == txsocks5.ATYPDomain {
		dstAddr = dstAddr[1:]
	}

	if _, err := txsocks5.NewRequest(txsocks5.CmdConnect, atyp, dstAddr, dstPort).WriteTo(conn); err != nil {
		return nil, fmt.Errorf("write request: %w", err)
	}

	rep, err := txsocks5.NewReplyFrom(conn)
	if err != nil {
		return nil, fmt.Errorf("read reply: %w", err)
	}
	if rep.Rep != txsocks5.RepSuccess {
		return nil, &ReplyError{Code: ReplyCode(rep.Rep)}
	}

	return replyAddr(rep), nil
}

// replyAddr returns the bound address of rep, or nil when it is a domain
// name or malformed.
func replyAddr(rep *txsocks5.Reply) net.Addr {
	if len(rep.BndPort) != 2 {
		return nil
	}
	port := int(binary.BigEndian.Uint16(rep.BndPort))
	switch {
	case rep.Atyp == txsocks5.ATYPIPv4 && len(rep.BndAddr) == net.IPv4len,
		rep.Atyp == txsocks5.ATYPIPv6 && len(rep.BndAddr) == net.IPv6len:
		return &net.TCPAddr{IP: net.IP(rep.BndAddr), Port: port}
	default:
		return nil
	}
}
