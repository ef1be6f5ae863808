package socks5

import (
	"errors"
	"fmt"
)

var (
	// ErrProtocol is wrapped by every protocol violation.
	ErrProtocol = errors.New("socks5 protocol violation")

	// ErrTransport is wrapped by short reads and failed writes. No reply is
	// attempted once it is returned.
	ErrTransport = errors.New("socks5 transport error")

	ErrVersion                 = fmt.Errorf("%w: unsupported version", ErrProtocol)
	ErrNoAcceptableMethods     = fmt.Errorf("%w: no acceptable authentication method", ErrProtocol)
	ErrCommandNotSupported     = fmt.Errorf("%w: command not supported", ErrProtocol)
	ErrAddressTypeNotSupported = fmt.Errorf("%w: address type not supported", ErrProtocol)
)

func transportError(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrTransport, op, err)
}
