package rpc

import (
	"context"
	"net"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"flowkeeper/controllers"
	"flowkeeper/internal/models"
	"flowkeeper/internal/registry"
	"flowkeeper/internal/workflow"
)

func newRegistry() *registry.Registry {
	reg := registry.New([]workflow.DeviceSpec{
		{ID: "sampler", Kind: workflow.Source},
		{ID: "sink", Kind: workflow.Processor},
	}, registry.DeviceControl{}, 4)
	reg.Device(1).ObserveHeartbeat(77)
	reg.Device(1).ApplyLabel("READY")
	reg.Device(1).WithLock(func() { reg.Device(1).AppendHistoryUnsafe("line one") })
	reg.Metrics(1).Append("collected", models.MetricSample{Type: models.MetricInt, Value: "5", Timestamp: 10})
	return reg
}

func newServer(t *testing.T) *httptest.Server {
	gin.SetMode(gin.TestMode)
	srv := httptest.NewServer(controllers.NewRouter(newRegistry(), "0.1.0", "rpc-session"))
	t.Cleanup(srv.Close)
	return srv
}

func TestDefaultHTTPConfig(t *testing.T) {
	c := DefaultHTTPConfig("")
	assert.Equal(t, "127.0.0.1:8080", c.Address)
	assert.Equal(t, "tcp", c.Network)

	assert.Equal(t, "127.0.0.1:9000", DefaultHTTPConfig(":9000").Address)
	assert.Equal(t, "unix", DefaultHTTPConfig("/run/flowkeeper.sock").Network)
}

func TestBuildURL(t *testing.T) {
	u, err := buildURL("http://localhost", "/healthz", nil)
	require.NoError(t, err)
	assert.Equal(t, "http://localhost/healthz", u)

	u, err = buildURL("http://localhost/base/", "/devices", map[string]string{"history": "true"})
	require.NoError(t, err)
	assert.Equal(t, "http://localhost/base/devices?history=true", u)

	_, err = buildURL("://bad", "/x", nil)
	assert.Error(t, err)
}

func TestStatusClient(t *testing.T) {
	srv := newServer(t)
	client := NewStatusClient(DefaultHTTPConfig(strings.TrimPrefix(srv.URL, "http://")))
	ctx := context.Background()

	devices, err := client.Devices(ctx)
	require.NoError(t, err)
	require.Len(t, devices, 2)
	assert.Equal(t, "sink", devices[1].ID)
	assert.Equal(t, models.Ready, devices[1].State)
	assert.Equal(t, 77, devices[1].Pid)

	device, err := client.Device(ctx, "sink")
	require.NoError(t, err)
	assert.Equal(t, []string{"line one"}, device.History)

	metrics, err := client.Metrics(ctx, "sink")
	require.NoError(t, err)
	assert.Equal(t, []string{"collected"}, metrics.Keys())

	health, err := client.Healthz(ctx)
	require.NoError(t, err)
	assert.Equal(t, "rpc-session", health.Session)
	assert.Equal(t, 2, health.Metrics.Devices)
}

func TestStatusClientNotFound(t *testing.T) {
	srv := newServer(t)
	client := NewStatusClient(DefaultHTTPConfig(strings.TrimPrefix(srv.URL, "http://")))

	_, err := client.Device(context.Background(), "nope")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "device [nope] isn't exist")

	resp, err := client.Get(context.Background(), "/no/route", nil)
	require.NoError(t, err)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.NotEmpty(t, resp.Error)
}

func TestStatusClientUnixSocket(t *testing.T) {
	sock := filepath.Join(t.TempDir(), "status.sock")
	ln, err := net.Listen("unix", sock)
	require.NoError(t, err)
	gin.SetMode(gin.TestMode)
	srv := &http.Server{Handler: controllers.NewRouter(newRegistry(), "0.1.0", "unix-session")}
	go srv.Serve(ln)
	t.Cleanup(func() { srv.Close() })

	client := NewStatusClient(DefaultHTTPConfig(sock))
	health, err := client.Healthz(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "unix-session", health.Session)
}

func TestStatusClientUnreachable(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	ln.Close()

	_, err = NewStatusClient(DefaultHTTPConfig(addr)).Devices(context.Background())
	assert.Error(t, err)
}
