package proxy

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/die-net/socks5d/internal/dialer"
	"github.com/die-net/socks5d/internal/resolver"
	"github.com/die-net/socks5d/internal/socks5"
)

// Resolver turns a requested target into connect candidates.
// *resolver.Resolver satisfies it.
type Resolver interface {
	Resolve(ctx context.Context, t socks5.Target) ([]resolver.Candidate, error)
}

type Config struct {
	// NegotiationTimeout bounds the greeting and the request, the drain
	// after a rejected greeting, and each reply write. Zero disables it.
	NegotiationTimeout time.Duration

	// ResolveTimeout bounds the lookup of a domain target. Connect attempts
	// are bounded by the dialer.
	ResolveTimeout time.Duration

	// IdleTimeout closes a relay that moved no bytes in either direction
	// for this long. Zero disables it.
	IdleTimeout time.Duration

	// MaxSessions limits concurrently served sessions. Zero is unlimited.
	MaxSessions int64

	Resolver Resolver
	Dialer   dialer.Dialer

	// Log defaults to the logrus standard logger.
	Log logrus.FieldLogger
}
