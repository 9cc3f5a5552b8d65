package simulator

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/okian/ghostrelay/internal/domain/types"
)

// APIError is a non-2xx relay response.
type APIError struct {
	Status  int
	Code    string
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("relay returned %d %s: %s", e.Status, e.Code, e.Message)
}

// Client talks to the relay HTTP API.
type Client struct {
	baseURL string
	http    *http.Client
}

// NewClient returns a client for baseURL with a per-request timeout.
func NewClient(baseURL string, timeout time.Duration) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: timeout},
	}
}

// Register binds the device key.
func (c *Client) Register(ctx context.Context, deviceAddress, publicKeyPEM string) (types.RegisterDeviceResponse, error) {
	var out types.RegisterDeviceResponse
	err := c.post(ctx, "/register-device", types.RegisterDeviceRequest{
		DeviceAddress: deviceAddress,
		PublicKey:     publicKeyPEM,
	}, &out)
	return out, err
}

// Submit posts a signed reading.
func (c *Client) Submit(ctx context.Context, req types.ReadingRequest) (types.ReadingResponse, error) { //nolint:gocritic // hugeParam: request is encoded once
	var out types.ReadingResponse
	err := c.post(ctx, "/reading", req, &out)
	return out, err
}

// Ghost fetches the device's ghost.
func (c *Client) Ghost(ctx context.Context, deviceAddress string) (types.GhostResponse, error) {
	var out types.GhostResponse
	err := c.do(ctx, http.MethodGet, "/ghost/"+url.PathEscape(deviceAddress), nil, &out)
	return out, err
}

func (c *Client) post(ctx context.Context, path string, body, out any) error {
	data, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}
	return c.do(ctx, http.MethodPost, path, bytes.NewReader(data), out)
}

func (c *Client) do(ctx context.Context, method, path string, body io.Reader, out any) error {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer func() { _ = resp.Body.Close() }()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode >= http.StatusBadRequest {
		var e types.ErrorResponse
		_ = json.Unmarshal(raw, &e)
		return &APIError{Status: resp.StatusCode, Code: e.Code, Message: e.Error}
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
