package proxy

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/semaphore"

	"github.com/die-net/socks5d/internal/dialer"
	"github.com/die-net/socks5d/internal/metrics"
	"github.com/die-net/socks5d/internal/resolver"
	"github.com/die-net/socks5d/internal/socks5"
)

// SOCKS5Server serves SOCKS5 CONNECT requests, one goroutine per client.
type SOCKS5Server struct {
	ctx context.Context
	cfg Config
	log logrus.FieldLogger
	sem *semaphore.Weighted
	wg  sync.WaitGroup
}

// NewSOCKS5Server returns a server whose sessions live until ctx is done.
// Canceling ctx closes every client connection still open.
func NewSOCKS5Server(ctx context.Context, cfg Config) *SOCKS5Server {
	if ctx == nil {
		ctx = context.Background()
	}
	s := &SOCKS5Server{ctx: ctx, cfg: cfg, log: cfg.Log}
	if s.log == nil {
		s.log = logrus.StandardLogger()
	}
	if cfg.MaxSessions > 0 {
		s.sem = semaphore.NewWeighted(cfg.MaxSessions)
	}
	return s
}

// Serve accepts connections on ln until ln is closed. It returns nil if
// the server's context is done, after every session has finished.
//
// Accept errors other than a closed listener are logged and retried with
// backoff.
func (s *SOCKS5Server) Serve(ln net.Listener) error {
	defer s.wg.Wait()

	var delay time.Duration
	for {
		if s.sem != nil {
			if err := s.sem.Acquire(s.ctx, 1); err != nil {
				return nil
			}
		}

		c, err := ln.Accept()
		if err != nil {
			s.release()
			if s.ctx.Err() != nil {
				return nil
			}
			if errors.Is(err, net.ErrClosed) {
				return fmt.Errorf("accept: %w", err)
			}

			delay = min(max(2*delay, 5*time.Millisecond), time.Second)
			s.log.WithError(err).WithField("retry", delay).Warn("accept failed")
			select {
			case <-time.After(delay):
			case <-s.ctx.Done():
				return nil
			}
			continue
		}
		delay = 0

		s.wg.Go(func() {
			defer s.release()
			s.handleConn(c)
		})
	}
}

func (s *SOCKS5Server) release() {
	if s.sem != nil {
		s.sem.Release(1)
	}
}

func (s *SOCKS5Server) handleConn(conn net.Conn) {
	defer conn.Close()

	ctx, cancel := context.WithCancel(s.ctx)
	defer cancel()
	context.AfterFunc(ctx, func() { _ = conn.Close() })

	metrics.SessionsTotal.Inc()
	metrics.SessionsActive.Inc()
	defer metrics.SessionsActive.Dec()

	sess := newSession(conn, s.log)
	sess.log.Debug("accepted")

	err := s.serveSession(ctx, sess)
	s.finish(sess, err)
}

// serveSession runs the handshake and the relay. It returns an error only
// if the session failed before relaying.
func (s *SOCKS5Server) serveSession(ctx context.Context, sess *session) error {
	conn := sess.conn

	if s.cfg.NegotiationTimeout > 0 {
		_ = conn.SetDeadline(time.Now().Add(s.cfg.NegotiationTimeout))
	}

	if err := socks5.Negotiate(conn); err != nil {
		return err
	}
	sess.setState(StateMethodChosen)

	req, err := socks5.ReadRequest(conn)
	if err != nil {
		switch {
		case errors.Is(err, socks5.ErrCommandNotSupported):
			countReply(socks5.RepCommandNotSupported)
		case errors.Is(err, socks5.ErrAddressTypeNotSupported):
			countReply(socks5.RepAddressTypeNotSupported)
		}
		return err
	}
	_ = conn.SetDeadline(time.Time{})
	sess.log = sess.log.WithField("target", req.Target.String())
	sess.setState(StateRequestRead)

	candidates, err := s.resolve(ctx, req.Target)
	if err != nil {
		_ = s.reply(sess, resolveReply(err), nil)
		return err
	}
	sess.log.WithField("candidates", len(candidates)).Debug("resolved")
	sess.setState(StateResolved)

	up, err := dialer.ConnectFirst(ctx, s.cfg.Dialer, candidates, sess.log)
	if err != nil {
		_ = s.reply(sess, socks5.RepConnectionRefused, nil)
		return err
	}
	defer up.Close()
	sess.log = sess.log.WithFields(logrus.Fields{
		"upstream": up.RemoteAddr().String(),
		"bound":    up.LocalAddr().String(),
	})
	sess.setState(StateConnected)

	if err := s.reply(sess, socks5.RepSucceeded, up.LocalAddr()); err != nil {
		return err
	}
	sess.setState(StateRelaying)
	sess.log.Info("relaying")

	start := time.Now()
	stats, err := CopyBidirectional(ctx, conn, up, s.cfg.IdleTimeout)
	metrics.RelayBytes.WithLabelValues(metrics.DirectionUpstream).Add(float64(stats.Upstream))
	metrics.RelayBytes.WithLabelValues(metrics.DirectionDownstream).Add(float64(stats.Downstream))

	entry := sess.log.WithFields(logrus.Fields{
		"sent":     stats.Upstream,
		"received": stats.Downstream,
		"duration": time.Since(start).Round(time.Millisecond),
	})
	if err != nil {
		entry = entry.WithError(err)
	}
	entry.Info("relay closed")
	return nil
}

func (s *SOCKS5Server) resolve(ctx context.Context, t socks5.Target) ([]resolver.Candidate, error) {
	if s.cfg.ResolveTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.ResolveTimeout)
		defer cancel()
	}

	candidates, err := s.cfg.Resolver.Resolve(ctx, t)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", errResolve, err)
	}
	return candidates, nil
}

// reply writes one reply under a fresh negotiation deadline.
func (s *SOCKS5Server) reply(sess *session, code socks5.ReplyCode, bound net.Addr) error {
	if s.cfg.NegotiationTimeout > 0 {
		_ = sess.conn.SetWriteDeadline(time.Now().Add(s.cfg.NegotiationTimeout))
		defer func() { _ = sess.conn.SetWriteDeadline(time.Time{}) }()
	}

	if err := socks5.WriteReply(sess.conn, code, bound); err != nil {
		return err
	}
	countReply(code)
	sess.log.WithField("reply", code).Debug("replied")
	return nil
}

func countReply(code socks5.ReplyCode) {
	metrics.Replies.WithLabelValues(code.String()).Inc()
}

// finish moves the session to its terminal state and records why it ended.
func (s *SOCKS5Server) finish(sess *session, err error) {
	switch {
	case err == nil:
		sess.setState(StateClosed)
		return
	case errors.Is(err, socks5.ErrNoAcceptableMethods):
		sess.setState(StateRejected)
	default:
		sess.setState(StateFailed)
	}

	reason := classify(err)
	metrics.SessionFailures.WithLabelValues(reason).Inc()

	entry := sess.log.WithError(err).WithField("reason", reason)
	if reason == metrics.ReasonTransport {
		entry.Debug("session failed")
		return
	}
	entry.Info("session failed")
}
