//go:build unix

package proxy

import (
	"context"
	"fmt"
	"net"
	"os"

	"golang.org/x/sys/unix"
)

// listen creates the socket by hand so that the backlog passed to
// listen(2) is the one configured rather than the system maximum.
func listen(network, addr string, backlog int) (net.Listener, error) {
	if backlog <= 0 {
		lc := net.ListenConfig{}
		return lc.Listen(context.Background(), network, addr)
	}

	tcpAddr, err := net.ResolveTCPAddr(network, addr)
	if err != nil {
		return nil, err
	}

	fd, err := bindSocket(network, tcpAddr)
	if err != nil {
		return nil, err
	}

	if err := unix.Listen(fd, backlog); err != nil {
		_ = unix.Close(fd)
		return nil, fmt.Errorf("listen: %w", err)
	}

	// FileListener dups the descriptor.
	f := os.NewFile(uintptr(fd), "socks5d-listener")
	defer f.Close()
	return net.FileListener(f)
}

// bindSocket returns a bound stream socket. An unspecified address on
// "tcp" binds both families when IPv6 is available, as net.Listen does.
func bindSocket(network string, a *net.TCPAddr) (int, error) {
	ip4 := a.IP.To4()
	unspecified := a.IP == nil || a.IP.IsUnspecified()

	switch {
	case network == "tcp4" || (ip4 != nil && !unspecified):
		return bindFamily(unix.AF_INET, &unix.SockaddrInet4{Addr: [4]byte(ip4OrZero(ip4)), Port: a.Port}, false)

	case network == "tcp6":
		return bindFamily(unix.AF_INET6, sockaddr6(a), true)

	case unspecified:
		fd, err := bindFamily(unix.AF_INET6, &unix.SockaddrInet6{Port: a.Port}, false)
		if err == nil {
			return fd, nil
		}
		return bindFamily(unix.AF_INET, &unix.SockaddrInet4{Port: a.Port}, false)

	default:
		return bindFamily(unix.AF_INET6, sockaddr6(a), false)
	}
}

func bindFamily(domain int, sa unix.Sockaddr, v6only bool) (int, error) {
	fd, err := unix.Socket(domain, unix.SOCK_STREAM, 0)
	if err != nil {
		return -1, fmt.Errorf("socket: %w", err)
	}
	unix.CloseOnExec(fd)

	if err := unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_REUSEADDR, 1); err != nil {
		_ = unix.Close(fd)
		return -1, fmt.Errorf("setsockopt SO_REUSEADDR: %w", err)
	}
	if domain == unix.AF_INET6 {
		v := 0
		if v6only {
			v = 1
		}
		if err := unix.SetsockoptInt(fd, unix.IPPROTO_IPV6, unix.IPV6_V6ONLY, v); err != nil {
			_ = unix.Close(fd)
			return -1, fmt.Errorf("setsockopt IPV6_V6ONLY: %w", err)
		}
	}

	if err := unix.Bind(fd, sa); err != nil {
		_ = unix.Close(fd)
		return -1, fmt.Errorf("bind: %w", err)
	}
	return fd, nil
}

func ip4OrZero(ip net.IP) net.IP {
	if ip == nil {
		return net.IPv4zero.To4()
	}
	return ip
}

func sockaddr6(a *net.TCPAddr) *unix.SockaddrInet6 {
	sa := &unix.SockaddrInet6{Port: a.Port}
	if a.IP != nil {
		copy(sa.Addr[:], a.IP.To16())
	}
	if a.Zone != "" {
		if ifi, err := net.InterfaceByName(a.Zone); err == nil {
			sa.ZoneId = uint32(ifi.Index)
		}
	}
	return sa
}
