package proxy

import (
	"errors"
	"net"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/die-net/socks5d/internal/dialer"
	"github.com/die-net/socks5d/internal/metrics"
	"github.com/die-net/socks5d/internal/resolver"
	"github.com/die-net/socks5d/internal/socks5"
)

var errResolve = errors.New("resolve failed")

// session is the per-connection state of one client.
type session struct {
	id    string
	conn  net.Conn
	log   logrus.FieldLogger
	state State
}

func newSession(conn net.Conn, log logrus.FieldLogger) *session {
	id := uuid.NewString()
	return &session{
		id:   id,
		conn: conn,
		log: log.WithFields(logrus.Fields{
			"session": id,
			"client":  conn.RemoteAddr().String(),
		}),
		state: StateGreeting,
	}
}

func (s *session) setState(next State) {
	if s.state.Terminal() {
		return
	}
	s.log.WithFields(logrus.Fields{"from": s.state, "to": next}).Debug("state")
	s.state = next
}

// classify returns the metrics reason for an error that ended a session.
func classify(err error) string {
	switch {
	case errors.Is(err, socks5.ErrNoAcceptableMethods):
		return metrics.ReasonRejected
	case errors.Is(err, socks5.ErrProtocol):
		return metrics.ReasonProtocol
	case errors.Is(err, errResolve):
		return metrics.ReasonResolve
	case errors.Is(err, dialer.ErrAllCandidatesFailed):
		return metrics.ReasonConnect
	default:
		return metrics.ReasonTransport
	}
}

// resolveReply maps a resolution failure to the reply sent to the client.
func resolveReply(err error) socks5.ReplyCode {
	switch {
	case errors.Is(err, resolver.ErrFamilyUnsupported):
		return socks5.RepAddressTypeNotSupported
	case errors.Is(err, resolver.ErrNoSuchHost):
		return socks5.RepHostUnreachable
	default:
		return socks5.RepGeneralFailure
	}
}
