package socks5

import (
	"encoding/binary"
	"fmt"
	"io"
	"net/netip"
	"slices"
)

// maxAddrLen is the longest address field: a length byte, 255 name bytes
// and the port.
const maxAddrLen = 1 + 255 + 2

// Negotiate reads the client greeting and answers it.
//
// The greeting is accepted iff it offers MethodNoAuth, wherever it appears
// in the list. Otherwise Negotiate replies MethodNoAcceptable, reads and
// discards everything the client sends until it closes or errors, and
// returns ErrNoAcceptableMethods.
//
// A version other than 5 returns ErrVersion without writing anything.
func Negotiate(rw io.ReadWriter) error {
	var hdr [2]byte
	if _, err := io.ReadFull(rw, hdr[:]); err != nil {
		return transportError("read greeting", err)
	}
	if hdr[0] != Version {
		return fmt.Errorf("%w: %d", ErrVersion, hdr[0])
	}

	methods := make([]byte, int(hdr[1]))
	if _, err := io.ReadFull(rw, methods); err != nil {
		return transportError("read methods", err)
	}

	if !slices.Contains(methods, byte(MethodNoAuth)) {
		if _, err := rw.Write([]byte{Version, byte(MethodNoAcceptable)}); err != nil {
			return transportError("write method", err)
		}
		_, _ = io.Copy(io.Discard, rw)
		return fmt.Errorf("%w: offered %x", ErrNoAcceptableMethods, methods)
	}

	if _, err := rw.Write([]byte{Version, byte(MethodNoAuth)}); err != nil {
		return transportError("write method", err)
	}
	return nil
}

// ReadRequest reads a request following a successful negotiation.
//
// The version byte is not checked again. Commands other than CONNECT are
// answered with RepCommandNotSupported and unknown address types with
// RepAddressTypeNotSupported; in both cases nothing more is read and the
// matching Err*NotSupported error is returned. Short reads return
// ErrTransport and no reply is written.
func ReadRequest(rw io.ReadWriter) (*Request, error) {
	var hdr [4]byte
	if _, err := io.ReadFull(rw, hdr[:]); err != nil {
		return nil, transportError("read request", err)
	}
	cmd, atyp := Command(hdr[1]), AddrType(hdr[3])

	if cmd != CmdConnect {
		if err := WriteReply(rw, RepCommandNotSupported, nil); err != nil {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %s", ErrCommandNotSupported, cmd)
	}
	if !atyp.Valid() {
		if err := WriteReply(rw, RepAddressTypeNotSupported, nil); err != nil {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %s", ErrAddressTypeNotSupported, atyp)
	}

	target, err := readTarget(rw, atyp)
	if err != nil {
		return nil, err
	}
	return &Request{Command: cmd, Target: target}, nil
}

func readTarget(r io.Reader, atyp AddrType) (Target, error) {
	var buf [maxAddrLen]byte

	switch atyp {
	case AddrIPv4:
		b := buf[:4+2]
		if _, err := io.ReadFull(r, b); err != nil {
			return Target{}, transportError("read ipv4 address", err)
		}
		return Target{
			Type: atyp,
			IP:   netip.AddrFrom4([4]byte(b[:4])),
			Port: binary.BigEndian.Uint16(b[4:]),
		}, nil

	case AddrIPv6:
		b := buf[:16+2]
		if _, err := io.ReadFull(r, b); err != nil {
			return Target{}, transportError("read ipv6 address", err)
		}
		return Target{
			Type: atyp,
			IP:   netip.AddrFrom16([16]byte(b[:16])),
			Port: binary.BigEndian.Uint16(b[16:]),
		}, nil

	default:
		if _, err := io.ReadFull(r, buf[:1]); err != nil {
			return Target{}, transportError("read domain length", err)
		}
		n := int(buf[0])
		b := buf[1 : 1+n+2]
		if _, err := io.ReadFull(r, b); err != nil {
			return Target{}, transportError("read domain", err)
		}
		return Target{
			Type: atyp,
			Name: string(b[:n]),
			Port: binary.BigEndian.Uint16(b[n:]),
		}, nil
	}
}
