package socks5

import (
	"net"
	"testing"

	"golang.org/x/sync/errgroup"
)

func TestClientDialToServer(t *testing.T) {
	tests := []struct {
		name string
		auth Auth
	}{
		{name: "no_auth"},
		// The client also offers username/password; the server still picks no-auth.
		{name: "user_pass_offered", auth: Auth{Username: "user", Password: "pass"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clientConn, serverConn := net.Pipe()
			defer clientConn.Close()
			defer serverConn.Close()

			bound := &net.TCPAddr{IP: net.IPv4(127, 0, 0, 1), Port: 12345}

			g := errgroup.Group{}
			g.Go(func() error {
				if err := Negotiate(serverConn); err != nil {
					return err
				}
				req, err := ReadRequest(serverConn)
				if err != nil {
					return err
				}
				if req.Command != CmdConnect {
					t.Errorf("unexpected command: %s", req.Command)
				}
				if got := req.Target.String(); got != "127.0.0.1:80" {
					t.Errorf("target = %q", got)
				}
				return WriteReply(serverConn, RepSucceeded, bound)
			})

			got, err := ClientDial(clientConn, tt.auth, "127.0.0.1:80")
			if err != nil {
				t.Fatal(err)
			}
			if err := g.Wait(); err != nil {
				t.Fatal(err)
			}
			if got == nil || got.String() != bound.String() {
				t.Fatalf("bound = %v, want %v", got, bound)
			}
		})
	}
}

func TestClientConnectReplyError(t *testing.T) {
	clientConn, serverConn := net.Pipe()
	defer clientConn.Close()
	defer serverConn.Close()

	g := errgroup.Group{}
	g.Go(func() error {
		if _, err := ReadRequest(serverConn); err != nil {
			return err
		}
		return WriteReply(serverConn, RepHostUnreachable, nil)
	})

	_, err := ClientConnect(clientConn, "example.com:443")
	replyErr, ok := err.(*ReplyError)
	if !ok {
		t.Fatalf("expected *ReplyError, got %v", err)
	}
	if replyErr.Code != RepHostUnreachable {
		t.Fatalf("code = %s", replyErr.Code)
	}
	if err := g.Wait(); err != nil {
		t.Fatal(err)
	}
}

func TestWireValues(t *testing.T) {
	tests := []struct {
		name string
		got  byte
		want byte
	}{
		{"version", Version, 0x05},
		{"no auth", byte(MethodNoAuth), 0x00},
		{"no acceptable", byte(MethodNoAcceptable), 0xFF},
		{"connect", byte(CmdConnect), 0x01},
		{"bind", byte(CmdBind), 0x02},
		{"udp associate", byte(CmdUDPAssociate), 0x03},
		{"ipv4", byte(AddrIPv4), 0x01},
		{"domain", byte(AddrDomain), 0x03},
		{"ipv6", byte(AddrIPv6), 0x04},
		{"succeeded", byte(RepSucceeded), 0x00},
		{"general failure", byte(RepGeneralFailure), 0x01},
		{"host unreachable", byte(RepHostUnreachable), 0x04},
		{"connection refused", byte(RepConnectionRefused), 0x05},
		{"command not supported", byte(RepCommandNotSupported), 0x07},
		{"address type not supported", byte(RepAddressTypeNotSupported), 0x08},
	}

	for _, tt := range tests {
		if tt.got != tt.want {
			t.Errorf("%s = 0x%02x, want 0x%02x", tt.name, tt.got, tt.want)
		}
	}
}
