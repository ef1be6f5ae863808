package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	_ "net/http/pprof" //nolint:gosec // Intentionally exposed on debug port.
	"net/url"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	nested "github.com/antonfisher/nested-logrus-formatter"
	"github.com/sirupsen/logrus"
	"github.com/spf13/pflag"
	"golang.org/x/sync/errgroup"

	"github.com/die-net/socks5d/internal/dialer"
	"github.com/die-net/socks5d/internal/metrics"
	"github.com/die-net/socks5d/internal/proxy"
	"github.com/die-net/socks5d/internal/resolver"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	var (
		listen  = pflag.String("listen", ":1080", "SOCKS5 listen address")
		backlog = pflag.Int("backlog", 5, "Listen backlog; 0 uses the system default")

		upstream = pflag.String("upstream", defaultUpstream(), "Upstream forwarding target URL: direct:// | http://[user:pass@]host:port | https://[user:pass@]host:port | socks5://[user:pass@]host:port")

		dialTimeout        = pflag.Duration("dial-timeout", 10*time.Second, "Timeout for outbound DNS lookup and for each TCP connect attempt")
		negotiationTimeout = pflag.Duration("negotiation-timeout", 10*time.Second, "Timeout for protocol negotiation to set up connection")
		idleTimeout        = pflag.Duration("idle-timeout", 0, "Close relays idle in both directions for this long; 0 disables")
		ipFamily           = pflag.String("ip-family", "any", "Outbound address family: any|4|6")
		dnsServer          = pflag.String("dns-server", "", "DNS server (host[:port]) to query directly instead of the system resolver")
		dnsCacheTTL        = pflag.Duration("dns-cache-ttl", 30*time.Second, "How long to cache DNS answers; 0 disables")
		maxSessions        = pflag.Int64("max-sessions", 0, "Maximum concurrent sessions; 0 is unlimited")
		tcpKeepAlive       = pflag.String("tcp-keepalive", "45:45:3", "TCP keepalive: on|off|keepidle:keepintvl:keepcnt")

		debugListen = pflag.String("debug-listen", "", "Debug HTTP listen address exposing /debug/pprof and /metrics (e.g. 127.0.0.1:6060). Empty disables.")
		logLevel    = pflag.String("log-level", "info", "Log level: trace|debug|info|warn|error")
		logFormat   = pflag.String("log-format", "nested", "Log format: nested|text|json")
	)

	pflag.CommandLine.SortFlags = false
	pflag.Parse()

	log, err := newLogger(*logLevel, *logFormat)
	if err != nil {
		return err
	}

	ka, err := parseTCPKeepAlive(*tcpKeepAlive)
	if err != nil {
		return fmt.Errorf("invalid --tcp-keepalive: %w", err)
	}

	family, err := resolver.ParseFamily(*ipFamily)
	if err != nil {
		return fmt.Errorf("invalid --ip-family: %w", err)
	}

	if *maxSessions < 0 {
		return errors.New("invalid --max-sessions: must be >= 0")
	}

	dialCfg := dialer.Config{
		DialTimeout:        *dialTimeout,
		NegotiationTimeout: *negotiationTimeout,
		KeepAlive:          ka,
	}

	d, err := dialer.New(dialCfg, *upstream)
	if err != nil {
		return fmt.Errorf("invalid --upstream: %w", err)
	}

	cfg := proxy.Config{
		NegotiationTimeout: *negotiationTimeout,
		ResolveTimeout:     *dialTimeout,
		IdleTimeout:        *idleTimeout,
		MaxSessions:        *maxSessions,
		Resolver:           resolver.New(newResolverBackend(*dnsServer, *dnsCacheTTL, *dialTimeout), family),
		Dialer:             d,
		Log:                log,
	}

	g, ctx := errgroup.WithContext(context.Background())

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	if *debugListen != "" {
		metrics.Register(http.DefaultServeMux)

		debugSrv := &http.Server{Handler: http.DefaultServeMux} //nolint:gosec // Not concerned about timeouts on debug port.
		lc := net.ListenConfig{KeepAliveConfig: ka}
		debugLn, err := lc.Listen(ctx, "tcp", *debugListen)
		if err != nil {
			return fmt.Errorf("debug listen: %w", err)
		}
		context.AfterFunc(ctx, func() {
			_ = debugSrv.Close()
			_ = debugLn.Close()
		})

		g.Go(func() error {
			if err := debugSrv.Serve(debugLn); err != nil {
				return fmt.Errorf("debug serve: %w", err)
			}
			return nil
		})
		log.WithField("addr", debugLn.Addr().String()).Info("debug listening")
	}

	ln, err := proxy.ListenTCP("tcp", *listen, *backlog, ka)
	if err != nil {
		return fmt.Errorf("socks5 listen: %w", err)
	}
	s5 := proxy.NewSOCKS5Server(ctx, cfg)
	context.AfterFunc(ctx, func() {
		_ = ln.Close()
	})

	g.Go(func() error {
		if err := s5.Serve(ln); err != nil {
			return fmt.Errorf("socks5 serve: %w", err)
		}
		return nil
	})

	log.WithFields(logrus.Fields{
		"addr":     ln.Addr().String(),
		"upstream": redactUpstream(*upstream),
		"family":   family,
	}).Info("socks5 proxy listening")

	err = g.Wait()
	if errors.Is(err, http.ErrServerClosed) {
		err = nil
	}

	log.Info("shutting down")
	return err
}

func newLogger(level, format string) (*logrus.Logger, error) {
	log := logrus.New()
	log.SetOutput(os.Stderr)

	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		return nil, fmt.Errorf("invalid --log-level: %w", err)
	}
	log.SetLevel(lvl)

	switch strings.ToLower(format) {
	case "nested":
		log.SetFormatter(&nested.Formatter{
			TimestampFormat: time.RFC3339,
			FieldsOrder:     []string{"session", "client", "target"},
		})
	case "text":
		log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	case "json":
		log.SetFormatter(&logrus.JSONFormatter{})
	default:
		return nil, fmt.Errorf("invalid --log-format: %q (want nested|text|json)", format)
	}
	return log, nil
}

// newResolverBackend picks the system resolver or a directly queried DNS
// server, cached unless ttl is zero.
func newResolverBackend(server string, ttl, timeout time.Duration) resolver.Backend {
	var b resolver.Backend = resolver.SystemBackend()
	if server != "" {
		b = resolver.NewDNSBackend(server, timeout)
	}
	if ttl > 0 {
		b = resolver.NewCachedBackend(b, ttl)
	}
	return b
}

// redactUpstream hides any password in an upstream URL for logging.
func redactUpstream(s string) string {
	u, err := url.Parse(s)
	if err != nil {
		return s
	}
	return u.Redacted()
}

func parseTCPKeepAlive(s string) (net.KeepAliveConfig, error) {
	s = strings.TrimSpace(strings.ToLower(s))
	if s == "" {
		return net.KeepAliveConfig{}, errors.New("empty")
	}
	if s == "on" {
		return net.KeepAliveConfig{Enable: true}, nil
	}
	if s == "off" {
		return net.KeepAliveConfig{Enable: false}, nil
	}

	parts := strings.Split(s, ":")
	if len(parts) != 3 {
		return net.KeepAliveConfig{}, errors.New("expected on|off|keepidle:keepintvl:keepcnt")
	}
	keepIdle, err := parsePositiveSeconds(parts[0])
	if err != nil {
		return net.KeepAliveConfig{}, fmt.Errorf("keepidle: %w", err)
	}
	keepIntvl, err := parsePositiveSeconds(parts[1])
	if err != nil {
		return net.KeepAliveConfig{}, fmt.Errorf("keepintvl: %w", err)
	}
	keepCnt, err := parsePositiveInt(parts[2])
	if err != nil {
		return net.KeepAliveConfig{}, fmt.Errorf("keepcnt: %w", err)
	}

	return net.KeepAliveConfig{
		Enable:   true,
		Idle:     keepIdle,
		Interval: keepIntvl,
		Count:    keepCnt,
	}, nil
}

func parsePositiveSeconds(s string) (time.Duration, error) {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return 0, err
	}
	if n <= 0 {
		return 0, errors.New("must be > 0")
	}
	return time.Duration(n) * time.Second, nil
}

func parsePositiveInt(s string) (int, error) {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return 0, err
	}
	if n <= 0 {
		return 0, errors.New("must be > 0")
	}
	return n, nil
}

func defaultUpstream() string {
	if p := os.Getenv("ALL_PROXY"); p != "" {
		return p
	}

	if p := os.Getenv("all_proxy"); p != "" {
		return p
	}

	return "direct://"
}
