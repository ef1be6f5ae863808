package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestRegister(t *testing.T) {
	RelayBytes.WithLabelValues(DirectionUpstream).Add(3)
	SessionFailures.WithLabelValues(ReasonRejected).Inc()

	mux := http.NewServeMux()
	Register(mux)

	srv := httptest.NewServer(mux)
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/metrics")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatal(err)
	}

	for _, want := range []string{
		`socks5d_relay_bytes_total{direction="upstream"}`,
		`socks5d_session_failures_total{reason="rejected"}`,
		"socks5d_sessions_active",
		"socks5d_sessions_total",
	} {
		if !strings.Contains(string(body), want) {
			t.Errorf("/metrics missing %s", want)
		}
	}
}

func TestCollectorsLint(t *testing.T) {
	Replies.WithLabelValues("succeeded").Inc()

	for _, c := range []prometheus.Collector{SessionsActive, SessionsTotal, Replies, SessionFailures, RelayBytes} {
		problems, err := testutil.CollectAndLint(c)
		if err != nil {
			t.Fatal(err)
		}
		for _, p := range problems {
			t.Errorf("%s: %s", p.Metric, p.Text)
		}
	}
}
