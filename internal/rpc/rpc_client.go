package rpc

import (
	"context"
	"fmt"
	"net"
	"net/http"

	"flowkeeper/internal/logger"
	"flowkeeper/internal/models"

	"github.com/iancoleman/orderedmap"
)

const apiPrefix = "/flowkeeper/api/v1"

// StatusClient queries the status API of a running orchestrator.
type StatusClient struct {
	config *HTTPConfig
	client *http.Client
}

/**
 * Create a status API client
 * @param {*HTTPConfig} config - Client configuration, nil uses DefaultHTTPConfig("")
 * @returns {*StatusClient} Client dialing config.Address over config.Network
 * @description
 * - Every request is sent to config.Address whatever host BaseURL names
 */
func NewStatusClient(config *HTTPConfig) *StatusClient {
	if config == nil {
		config = DefaultHTTPConfig("")
	}
	dialer := &net.Dialer{Timeout: config.Timeout}
	transport := &http.Transport{
		DialContext: func(ctx context.Context, _, _ string) (net.Conn, error) {
			return dialer.DialContext(ctx, config.Network, config.Address)
		},
	}
	return &StatusClient{
		config: config,
		client: &http.Client{Transport: transport, Timeout: config.Timeout},
	}
}

/**
 * Send GET request to the status API
 * @param {context.Context} ctx - Request context
 * @param {string} path - API endpoint path
 * @param {map[string]string} params - Query parameters
 * @returns {*HTTPResponse} Response, with Error set for non-2xx status codes
 * @returns {error} Error if the request can't be sent
 */
func (c *StatusClient) Get(ctx context.Context, path string, params map[string]string) (*HTTPResponse, error) {
	u, err := buildURL(c.config.BaseURL, path, params)
	if err != nil {
		return nil, fmt.Errorf("failed to build URL: %w", err)
	}
	logger.Debugf("Sending GET request to %s via %s", u, c.config.Address)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	return readResponse(resp)
}

func (c *StatusClient) get(ctx context.Context, path string, v any) error {
	resp, err := c.Get(ctx, path, nil)
	if err != nil {
		return err
	}
	return resp.Decode(v)
}

// Devices lists every device of the run.
func (c *StatusClient) Devices(ctx context.Context) ([]models.DeviceDetail, error) {
	var devices []models.DeviceDetail
	err := c.get(ctx, apiPrefix+"/devices", &devices)
	return devices, err
}

// Device returns one device including its output history.
func (c *StatusClient) Device(ctx context.Context, id string) (*models.DeviceDetail, error) {
	var device models.DeviceDetail
	if err := c.get(ctx, apiPrefix+"/devices/"+id, &device); err != nil {
		return nil, err
	}
	return &device, nil
}

// Metrics returns the metric series of one device, keys in first-reported order.
func (c *StatusClient) Metrics(ctx context.Context, id string) (*orderedmap.OrderedMap, error) {
	metrics := orderedmap.New()
	if err := c.get(ctx, apiPrefix+"/devices/"+id+"/metrics", metrics); err != nil {
		return nil, err
	}
	return metrics, nil
}

func (c *StatusClient) Healthz(ctx context.Context) (*models.HealthResponse, error) {
	var health models.HealthResponse
	if err := c.get(ctx, "/healthz", &health); err != nil {
		return nil, err
	}
	return &health, nil
}
