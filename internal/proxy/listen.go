package proxy

import (
	"fmt"
	"net"
)

// ListenTCP listens on the given network/address with the given accept
// backlog and returns a net.Listener that applies keepAliveConfig to
// accepted TCP connections. A backlog of zero or less uses the system
// default; platforms without raw socket support always do.
func ListenTCP(network, addr string, backlog int, keepAliveConfig net.KeepAliveConfig) (net.Listener, error) {
	ln, err := listen(network, addr, backlog)
	if err != nil {
		return nil, fmt.Errorf("listen %s %s: %w", network, addr, err)
	}

	return &KeepAliveListener{Listener: ln, KeepAliveConfig: keepAliveConfig}, nil
}

// KeepAliveListener wraps a net.Listener and applies KeepAliveConfig to any
// accepted *net.TCPConn.
type KeepAliveListener struct {
	net.Listener
	net.KeepAliveConfig
}

// Accept accepts the next connection and applies KeepAliveConfig if the
// connection is a *net.TCPConn.
func (l *KeepAliveListener) Accept() (net.Conn, error) {
	conn, err := l.Listener.Accept()
	if err != nil {
		return nil, err
	}

	tc, ok := conn.(*net.TCPConn)
	if ok {
		_ = tc.SetKeepAliveConfig(l.KeepAliveConfig)
	}

	return conn, nil
}
