package dialer

import (
	"net"
	"time"
)

type Config struct {
	// DialTimeout bounds each TCP connect, including the connect to an
	// upstream proxy.
	DialTimeout time.Duration

	// NegotiationTimeout bounds the handshake with an upstream proxy.
	NegotiationTimeout time.Duration

	KeepAlive net.KeepAliveConfig
}
