package proxy

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"
)

// ErrIdleTimeout is returned by CopyBidirectional when neither direction
// moved any bytes for the idle timeout.
var ErrIdleTimeout = errors.New("relay idle timeout")

// RelayStats counts the payload bytes a relay delivered.
type RelayStats struct {
	// Upstream is client to target.
	Upstream int64
	// Downstream is target to client.
	Downstream int64
}

// CopyBidirectional relays bytes between client and upstream until either
// side reaches EOF or fails, or ctx is done. Any of those closes both
// connections; there is no half-close. It returns once both directions
// have stopped.
//
// If idleTimeout is positive, the relay ends with ErrIdleTimeout after
// that long without traffic in either direction.
func CopyBidirectional(ctx context.Context, client, upstream net.Conn, idleTimeout time.Duration) (RelayStats, error) {
	var closeOnce sync.Once
	closeBoth := func() {
		closeOnce.Do(func() {
			_ = client.Close()
			_ = upstream.Close()
		})
	}
	defer closeBoth()

	stop := context.AfterFunc(ctx, closeBoth)
	defer stop()

	var idle *idleTracker
	if idleTimeout > 0 {
		idle = newIdleTracker(idleTimeout)
	}

	var stats RelayStats
	var g errgroup.Group
	g.Go(func() error {
		defer closeBoth()
		n, err := copyChunks(upstream, client, idle)
		stats.Upstream = n
		return err
	})
	g.Go(func() error {
		defer closeBoth()
		n, err := copyChunks(client, upstream, idle)
		stats.Downstream = n
		return err
	})

	return stats, g.Wait()
}

// copyChunks reads into a pooled buffer and writes each chunk in full
// before the next read. EOF, a zero-byte read, and reads cut short by the
// other direction closing both connections end it without error.
func copyChunks(dst, src net.Conn, idle *idleTracker) (int64, error) {
	bufp := relayBuffers.Get()
	defer relayBuffers.Put(bufp)
	buf := *bufp

	var written int64
	for {
		if idle != nil {
			idle.arm(src, dst)
		}

		nr, rerr := src.Read(buf)
		if nr > 0 {
			if idle != nil {
				idle.touch()
			}
			nw, werr := dst.Write(buf[:nr])
			written += int64(nw)
			if werr != nil {
				return written, relayError("write", werr)
			}
		}

		switch {
		case rerr == nil && nr == 0:
			return written, nil
		case rerr == nil:
			continue
		case idle != nil && isTimeout(rerr) && idle.active():
			// The other direction is moving bytes.
			continue
		case idle != nil && isTimeout(rerr):
			return written, fmt.Errorf("%w: %w", ErrIdleTimeout, rerr)
		case errors.Is(rerr, io.EOF):
			return written, nil
		default:
			return written, relayError("read", rerr)
		}
	}
}

func relayError(op string, err error) error {
	if errors.Is(err, net.ErrClosed) || errors.Is(err, io.ErrClosedPipe) {
		return nil
	}
	return fmt.Errorf("relay %s: %w", op, err)
}

func isTimeout(err error) bool {
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}

// idleTracker records the last time either direction of a relay moved
// bytes.
type idleTracker struct {
	timeout time.Duration
	last    atomic.Int64
}

func newIdleTracker(timeout time.Duration) *idleTracker {
	t := &idleTracker{timeout: timeout}
	t.touch()
	return t
}

func (t *idleTracker) touch() {
	t.last.Store(time.Now().UnixNano())
}

func (t *idleTracker) active() bool {
	return time.Since(time.Unix(0, t.last.Load())) < t.timeout
}

// arm bounds the next read from src and the write to dst that follows it.
func (t *idleTracker) arm(src, dst net.Conn) {
	dl := time.Now().Add(t.timeout)
	_ = src.SetReadDeadline(dl)
	_ = dst.SetWriteDeadline(dl)
}
