package dialer

import (
	"context"
	"errors"
	"fmt"
	"net"

	"github.com/sirupsen/logrus"

	"github.com/die-net/socks5d/internal/resolver"
)

// ErrAllCandidatesFailed is returned by ConnectFirst when no candidate
// could be connected.
var ErrAllCandidatesFailed = errors.New("all candidates failed")

// ConnectFirst dials candidates in order through d and returns the first
// connection that succeeds. Later candidates are not tried once one
// succeeds.
//
// When every attempt fails the error wraps ErrAllCandidatesFailed and each
// attempt's error. Attempts stop early if ctx is done.
func ConnectFirst(ctx context.Context, d Dialer, candidates []resolver.Candidate, log logrus.FieldLogger) (net.Conn, error) {
	if len(candidates) == 0 {
		return nil, fmt.Errorf("%w: no candidates", ErrAllCandidatesFailed)
	}

	errs := make([]error, 0, len(candidates))
	for i, c := range candidates {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}

		clog := log.WithFields(logrus.Fields{
			"candidate": c.Addr.String(),
			"attempt":   i + 1,
		})
		clog.Debug("connecting")

		conn, err := d.DialContext(ctx, c.Network, c.Addr.String())
		if err != nil {
			clog.WithError(err).Debug("connect failed")
			errs = append(errs, err)
			continue
		}

		clog.WithField("bound", conn.LocalAddr().String()).Debug("connected")
		return conn, nil
	}

	return nil, fmt.Errorf("%w: %w", ErrAllCandidatesFailed, errors.Join(errs...))
}
