// FilePath: internal/devicectl/devicectl.go
package devicectl

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"time"

	nuts "github.com/vaudience/go-nuts"
)

const DefaultTimeout = 5 * time.Second

var (
	// ErrDeviceTimeout is returned when the device does not answer in time.
	ErrDeviceTimeout = errors.New("device did not respond in time")
	// ErrDeviceRefused is returned when the device cannot be reached or
	// answers with an error status.
	ErrDeviceRefused = errors.New("device refused the request")
)

// AddressResolver yields the current device address.
type AddressResolver interface {
	FindDeviceAddress() (string, error)
}

// Status is the device's reply to a status query. Unknown fields are kept
// in Raw.
type Status struct {
	Sampling bool           `json:"sampling"`
	Raw      map[string]any `json:"-"`
}

// DashboardTarget tells the device where to reach the hub.
type DashboardTarget struct {
	Host string `json:"host"`
	Port int    `json:"port"`
}

// Client issues control requests to the device's HTTP endpoint.
type Client struct {
	resolver AddressResolver
	port     int
	timeout  time.Duration
	http     *http.Client
}

// New creates a Client. A zero timeout uses DefaultTimeout; a zero port
// uses the scheme default.
func New(resolver AddressResolver, port int, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Client{
		resolver: resolver,
		port:     port,
		timeout:  timeout,
		http:     &http.Client{},
	}
}

func (c *Client) StartSampling(ctx context.Context) error {
	_, err := c.do(ctx, http.MethodPost, "/api/start", nil)
	return err
}

func (c *Client) StopSampling(ctx context.Context) error {
	_, err := c.do(ctx, http.MethodPost, "/api/stop", nil)
	return err
}

func (c *Client) Status(ctx context.Context) (*Status, error) {
	body, err := c.do(ctx, http.MethodGet, "/api/status", nil)
	if err != nil {
		return nil, err
	}
	status := &Status{Raw: map[string]any{}}
	if len(bytes.TrimSpace(body)) == 0 {
		return status, nil
	}
	if err := json.Unmarshal(body, &status.Raw); err != nil {
		return nil, fmt.Errorf("decode device status: %w", err)
	}
	if v, ok := status.Raw["sampling"].(bool); ok {
		status.Sampling = v
	}
	return status, nil
}

// ConfigureDashboard forwards the hub's host and port to the device.
func (c *Client) ConfigureDashboard(ctx context.Context, target DashboardTarget) error {
	payload, err := json.Marshal(target)
	if err != nil {
		return err
	}
	_, err = c.do(ctx, http.MethodPost, "/api/config/dashboard", payload)
	return err
}

// BaseURL returns the device URL, or the resolver's error when no device
// address is known.
func (c *Client) BaseURL() (string, error) {
	addr, err := c.resolver.FindDeviceAddress()
	if err != nil {
		return "", err
	}
	host := addr
	if c.port > 0 {
		if h, _, splitErr := net.SplitHostPort(addr); splitErr == nil {
			host = h
		}
		host = net.JoinHostPort(host, strconv.Itoa(c.port))
	}
	return "http://" + host, nil
}

func (c *Client) do(ctx context.Context, method, path string, payload []byte) ([]byte, error) {
	base, err := c.BaseURL()
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var body io.Reader
	if payload != nil {
		body = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, base+path, body)
	if err != nil {
		return nil, err
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			nuts.L.Warnf("[DeviceCtl] %s %s timed out after %s", method, path, c.timeout)
			return nil, fmt.Errorf("%s %s: %w", method, path, ErrDeviceTimeout)
		}
		nuts.L.Warnf("[DeviceCtl] %s %s failed: %v", method, path, err)
		return nil, fmt.Errorf("%s %s: %w: %v", method, path, ErrDeviceRefused, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("%s %s: read response: %w", method, path, err)
	}
	if resp.StatusCode >= 300 {
		nuts.L.Warnf("[DeviceCtl] %s %s answered %d", method, path, resp.StatusCode)
		return nil, fmt.Errorf("%s %s: status %d: %w", method, path, resp.StatusCode, ErrDeviceRefused)
	}
	nuts.L.Infof("[DeviceCtl] %s %s ok", method, path)
	return data, nil
}
