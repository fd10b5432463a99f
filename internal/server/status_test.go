package server

import (
	"context"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"celebrator/internal/observability"
	jsonx "celebrator/internal/shared/json"
	"celebrator/internal/supervisor"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
)

type staticSource struct {
	status supervisor.Status
}

func (s staticSource) Status() supervisor.Status { return s.status }

func newTestServer(t *testing.T, state supervisor.State) (*StatusServer, *prometheus.Registry) {
	t.Helper()
	reg := prometheus.NewRegistry()
	metrics, err := observability.NewMetrics(reg)
	require.NoError(t, err)
	metrics.SetEpoch(3)
	src := staticSource{status: supervisor.Status{State: state.String(), Epoch: 3, Restarts: 1}}
	return NewStatusServer(Config{}, src, reg, nil), reg
}

func get(t *testing.T, h http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec
}

func TestHealthz(t *testing.T) {
	s, _ := newTestServer(t, supervisor.StateStreaming)
	rec := get(t, s.Handler(), "/healthz")
	require.Equal(t, http.StatusOK, rec.Code)
	require.JSONEq(t, `{"status":"ok"}`, rec.Body.String())

	s, _ = newTestServer(t, supervisor.StateTerminated)
	rec = get(t, s.Handler(), "/healthz")
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestStatusReportsSupervisor(t *testing.T) {
	s, _ := newTestServer(t, supervisor.StateCoolingDown)
	rec := get(t, s.Handler(), "/status")
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Supervisor supervisor.Status `json:"supervisor"`
	}
	require.NoError(t, jsonx.Unmarshal(rec.Body.Bytes(), &body))
	require.Equal(t, "cooling_down", body.Supervisor.State)
	require.EqualValues(t, 3, body.Supervisor.Epoch)
	require.EqualValues(t, 1, body.Supervisor.Restarts)
}

func TestMetricsEndpoint(t *testing.T) {
	s, _ := newTestServer(t, supervisor.StateStreaming)
	rec := get(t, s.Handler(), "/metrics")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "celebrator_supervisor_epoch 3")
}

func TestServeStopsOnCancel(t *testing.T) {
	s, _ := newTestServer(t, supervisor.StateStreaming)
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Serve(ctx, ln) }()

	require.Eventually(t, func() bool {
		resp, err := http.Get("http://" + ln.Addr().String() + "/healthz")
		if err != nil {
			return false
		}
		_ = resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("server did not stop")
	}
}
