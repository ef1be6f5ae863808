//go:build !unix

package proxy

import (
	"context"
	"net"
)

func listen(network, addr string, _ int) (net.Listener, error) {
	lc := net.ListenConfig{}
	return lc.Listen(context.Background(), network, addr)
}
