package dialer

import (
	"context"
	"fmt"
	"net"
)

type directDialer struct {
	dialer net.Dialer
}

func NewDirectDialer(cfg Config) (Dialer, error) {
	return &directDialer{
		dialer: net.Dialer{
			Timeout:         cfg.DialTimeout,
			KeepAliveConfig: cfg.KeepAlive,
		},
	}, nil
}

func (f *directDialer) DialContext(ctx context.Context, network, address string) (net.Conn, error) {
	conn, err := f.dialer.DialContext(ctx, network, address)
	if err != nil {
		return nil, fmt.Errorf("dial %s %s: %w", network, address, err)
	}
	return conn, nil
}
