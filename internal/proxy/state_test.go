package proxy

import (
	"errors"
	"fmt"
	"testing"

	"github.com/die-net/socks5d/internal/dialer"
	"github.com/die-net/socks5d/internal/metrics"
	"github.com/die-net/socks5d/internal/resolver"
	"github.com/die-net/socks5d/internal/socks5"
)

func TestStateTerminal(t *testing.T) {
	for s := StateGreeting; s <= StateFailed; s++ {
		want := s == StateClosed || s == StateRejected || s == StateFailed
		if s.Terminal() != want {
			t.Errorf("%s.Terminal() = %v", s, s.Terminal())
		}
	}
	if got := State(42).String(); got != "state(42)" {
		t.Errorf("String = %q", got)
	}
}

func TestClassify(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{err: fmt.Errorf("x: %w", socks5.ErrNoAcceptableMethods), want: metrics.ReasonRejected},
		{err: socks5.ErrCommandNotSupported, want: metrics.ReasonProtocol},
		{err: socks5.ErrVersion, want: metrics.ReasonProtocol},
		{err: fmt.Errorf("%w: eof", socks5.ErrTransport), want: metrics.ReasonTransport},
		{err: fmt.Errorf("%w: %w", errResolve, resolver.ErrNoSuchHost), want: metrics.ReasonResolve},
		{err: fmt.Errorf("%w: refused", dialer.ErrAllCandidatesFailed), want: metrics.ReasonConnect},
		{err: errors.New("something else"), want: metrics.ReasonTransport},
	}
	for _, tt := range tests {
		if got := classify(tt.err); got != tt.want {
			t.Errorf("classify(%v) = %q, want %q", tt.err, got, tt.want)
		}
	}
}

func TestResolveReply(t *testing.T) {
	tests := []struct {
		err  error
		want socks5.ReplyCode
	}{
		{err: fmt.Errorf("a.test: %w", resolver.ErrNoSuchHost), want: socks5.RepHostUnreachable},
		{err: fmt.Errorf("a.test: %w", resolver.ErrFamilyUnsupported), want: socks5.RepAddressTypeNotSupported},
		{err: errors.New("i/o timeout"), want: socks5.RepGeneralFailure},
	}
	for _, tt := range tests {
		if got := resolveReply(tt.err); got != tt.want {
			t.Errorf("resolveReply(%v) = %s, want %s", tt.err, got, tt.want)
		}
	}
}
