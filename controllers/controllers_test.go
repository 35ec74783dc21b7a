package controllers

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"flowkeeper/internal/config"
	"flowkeeper/internal/models"
	"flowkeeper/internal/registry"
	"flowkeeper/internal/workflow"
)

func newTestRegistry() *registry.Registry {
	specs := []workflow.DeviceSpec{
		{ID: "sampler", Kind: workflow.Source},
		{ID: "sink", Kind: workflow.Processor},
	}
	reg := registry.New(specs, registry.DeviceControl{}, 10)
	reg.Device(0).ObserveHeartbeat(4242)
	reg.Device(0).ApplyLabel("RUNNING")
	reg.Device(1).SetReadyToQuit(true)
	reg.Metrics(0).Append("events", models.MetricSample{Type: models.MetricInt, Value: "3", Timestamp: 1000})
	reg.Metrics(0).Append("rate", models.MetricSample{Type: models.MetricFloat, Value: "2.5", Timestamp: 1001})
	reg.Metrics(0).Append("events", models.MetricSample{Type: models.MetricInt, Value: "4", Timestamp: 1002})
	return reg
}

func serve(t *testing.T, router *gin.Engine, path string) *httptest.ResponseRecorder {
	t.Helper()
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	router.ServeHTTP(w, req)
	return w
}

func init() {
	gin.SetMode(gin.TestMode)
}

func TestListDevices(t *testing.T) {
	router := NewRouter(newTestRegistry(), "1.0.0", "s1")
	w := serve(t, router, "/flowkeeper/api/v1/devices")
	require.Equal(t, http.StatusOK, w.Code)

	var devices []map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &devices))
	require.Len(t, devices, 2)
	assert.Equal(t, "sampler", devices[0]["id"])
	assert.Equal(t, "Running", devices[0]["state"])
	assert.EqualValues(t, 4242, devices[0]["pid"])
	assert.Equal(t, true, devices[1]["readyToQuit"])
}

func TestGetDevice(t *testing.T) {
	reg := newTestRegistry()
	reg.Device(1).WithLock(func() { reg.Device(1).AppendHistoryUnsafe("hello") })
	router := NewRouter(reg, "1.0.0", "s1")

	w := serve(t, router, "/flowkeeper/api/v1/devices/sink")
	require.Equal(t, http.StatusOK, w.Code)
	var detail map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &detail))
	assert.Equal(t, "sink", detail["id"])
	assert.Equal(t, []any{"hello"}, detail["history"])

	w = serve(t, router, "/flowkeeper/api/v1/devices/nope")
	assert.Equal(t, http.StatusNotFound, w.Code)
	var errResp models.ErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &errResp))
	assert.Equal(t, "device.notexist", errResp.Code)
}

func TestGetMetricsKeepsKeyOrder(t *testing.T) {
	router := NewRouter(newTestRegistry(), "1.0.0", "s1")
	w := serve(t, router, "/flowkeeper/api/v1/devices/sampler/metrics")
	require.Equal(t, http.StatusOK, w.Code)

	body := w.Body.String()
	assert.Less(t, strings.Index(body, `"events"`), strings.Index(body, `"rate"`))

	var metrics map[string][]models.MetricSample
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &metrics))
	require.Len(t, metrics["events"], 2)
	assert.Equal(t, "4", metrics["events"][1].Value)

	w = serve(t, router, "/flowkeeper/api/v1/devices/sink/metrics")
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{}`, w.Body.String())

	assert.Equal(t, http.StatusNotFound, serve(t, router, "/flowkeeper/api/v1/devices/nope/metrics").Code)
}

func TestHealthz(t *testing.T) {
	router := NewRouter(newTestRegistry(), "1.0.0", "s1")
	w := serve(t, router, "/healthz")
	require.Equal(t, http.StatusOK, w.Code)

	var health models.HealthResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &health))
	assert.Equal(t, "UP", health.Status)
	assert.Equal(t, "1.0.0", health.Version)
	assert.Equal(t, "s1", health.Session)
	assert.Equal(t, 2, health.Metrics.Devices)
	assert.Equal(t, 2, health.Metrics.ActiveDevices)
	assert.Equal(t, 1, health.Metrics.ReadyToQuit)
}

func TestMetricsEndpoint(t *testing.T) {
	router := NewRouter(newTestRegistry(), "1.0.0", "s1")
	serve(t, router, "/flowkeeper/api/v1/devices")
	serve(t, router, "/flowkeeper/api/v1/devices/nope")

	w := serve(t, router, "/metrics")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `flowkeeper_api_requests_total{route="/flowkeeper/api/v1/devices"}`)
	assert.Contains(t, w.Body.String(), `flowkeeper_api_errors_total{route="/flowkeeper/api/v1/devices/:id"}`)
}

func TestStatusServer(t *testing.T) {
	srv := NewStatusServer(config.ServerConfig{Address: "127.0.0.1:0", Mode: gin.TestMode}, "1.0.0", "s1")
	require.NoError(t, srv.Start(newTestRegistry()))
	require.NoError(t, srv.Stop(context.Background()))

	bad := NewStatusServer(config.ServerConfig{Address: "256.0.0.1:bad"}, "", "")
	assert.Error(t, bad.Start(newTestRegistry()))
	assert.NoError(t, bad.Stop(context.Background()))
}

func TestStatusServerUnixSocket(t *testing.T) {
	sock := filepath.Join(t.TempDir(), "status.sock")
	require.NoError(t, os.WriteFile(sock, nil, 0o600))

	srv := NewStatusServer(config.ServerConfig{Address: sock, Mode: gin.TestMode}, "1.0.0", "s2")
	require.NoError(t, srv.Start(newTestRegistry()))
	defer srv.Stop(context.Background())

	client := &http.Client{Transport: &http.Transport{
		DialContext: func(ctx context.Context, _, _ string) (net.Conn, error) {
			var d net.Dialer
			return d.DialContext(ctx, "unix", sock)
		},
	}}
	resp, err := client.Get("http://status/healthz")
	require.NoError(t, err)
	defer resp.Body.Close()

	var health models.HealthResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&health))
	assert.Equal(t, "s2", health.Session)
}
