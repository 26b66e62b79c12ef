// Package shelly provides the HTTP client for the status API of Shelly
// devices. A device exposes parsed JSON on /shelly, /status and /settings;
// any transport failure, timeout or non-JSON body is reported as a probe
// failure.
package shelly

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/dmaes/prometheus-shelly-exporter/internal/errors"
)

// Options configures a device client.
type Options struct {
	// Username and Password enable HTTP basic auth when both are set.
	Username string
	Password string
	// Timeout bounds every request against the device.
	Timeout time.Duration
}

// Client talks to a single Shelly device over plain HTTP.
type Client struct {
	target     string
	username   string
	password   string
	httpClient *http.Client
	deviceType string
}

// NewClient creates a client for the device at target (hostname, IP, or
// host:port). The client performs no I/O until Get or DeviceType is called.
func NewClient(target string, opts Options) *Client {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Client{
		target:   target,
		username: opts.Username,
		password: opts.Password,
		httpClient: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				MaxIdleConns:        2,
				IdleConnTimeout:     timeout,
				MaxIdleConnsPerHost: 2,
			},
		},
	}
}

// Target returns the device identity this client probes.
func (c *Client) Target() string {
	return c.target
}

// Get performs a GET against http://<target>/<path> and decodes the JSON
// response body. Failures are wrapped as ProbeError.
func (c *Client) Get(ctx context.Context, path string) (Document, error) {
	url := fmt.Sprintf("http://%s/%s", c.target, strings.TrimPrefix(path, "/"))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, errors.NewProbeError(c.target, path, err)
	}
	if c.username != "" && c.password != "" {
		req.SetBasicAuth(c.username, c.password)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, errors.NewProbeError(c.target, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, errors.NewProbeError(c.target, path,
			fmt.Errorf("unexpected status %d", resp.StatusCode))
	}

	var doc Document
	if err := json.NewDecoder(resp.Body).Decode(&doc); err != nil {
		return nil, errors.NewProbeError(c.target, path,
			fmt.Errorf("decoding response: %w", err))
	}
	return doc, nil
}

// DeviceType returns the device's reported type string from the /shelly
// endpoint. The result is memoized for the lifetime of the client.
func (c *Client) DeviceType(ctx context.Context) (string, error) {
	if c.deviceType != "" {
		return c.deviceType, nil
	}

	doc, err := c.Get(ctx, "/shelly")
	if err != nil {
		return "", err
	}
	typ, err := doc.String("type")
	if err != nil {
		return "", errors.NewProbeError(c.target, "/shelly", err)
	}

	c.deviceType = typ
	return typ, nil
}

// SetDeviceType primes the memoized device type, typically from a cache, so
// DeviceType does not hit the /shelly endpoint.
func (c *Client) SetDeviceType(deviceType string) {
	c.deviceType = deviceType
}
