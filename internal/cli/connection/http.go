package connection

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/sudheendrakatikar/exsim/internal/infra/buildinfo"
	"github.com/sudheendrakatikar/exsim/internal/server/localserver"
	"github.com/sudheendrakatikar/exsim/internal/server/management"
)

// HTTPClient talks to the management HTTP API.
type HTTPClient struct {
	baseURL string
	client  *http.Client
}

// NewHTTPClient creates a client for server, e.g. "127.0.0.1:9090".
func NewHTTPClient(server string) *HTTPClient {
	baseURL := strings.TrimRight(server, "/")
	if !strings.HasPrefix(baseURL, "http://") && !strings.HasPrefix(baseURL, "https://") {
		baseURL = "http://" + baseURL
	}
	return &HTTPClient{
		baseURL: baseURL,
		client:  &http.Client{Timeout: DefaultTimeout},
	}
}

// BaseURL returns the base URL of the client.
func (c *HTTPClient) BaseURL() string {
	return c.baseURL
}

func (c *HTTPClient) get(ctx context.Context, path string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", "exsim-ctl/"+buildinfo.Version)
	return c.client.Do(req)
}

func (c *HTTPClient) getJSON(ctx context.Context, path string, target any) error {
	resp, err := c.get(ctx, path)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	return ParseResponse(resp, target)
}

func (c *HTTPClient) List(ctx context.Context) ([]management.ObjectInfo, error) {
	var objects []management.ObjectInfo
	if err := c.getJSON(ctx, "/v1/objects", &objects); err != nil {
		return nil, err
	}
	return objects, nil
}

func (c *HTTPClient) Get(ctx context.Context, name string) (*management.ObjectInfo, error) {
	var info management.ObjectInfo
	if err := c.getJSON(ctx, "/v1/objects/"+url.PathEscape(name), &info); err != nil {
		return nil, err
	}
	return &info, nil
}

func (c *HTTPClient) Status(ctx context.Context) (*localserver.Status, error) {
	var st localserver.Status
	if err := c.getJSON(ctx, "/v1/status", &st); err != nil {
		return nil, err
	}
	return &st, nil
}

// Close releases idle connections.
func (c *HTTPClient) Close() error {
	c.client.CloseIdleConnections()
	return nil
}

// ParseResponse decodes a JSON response body into target. Error replies
// carry {"code", "message"}.
func ParseResponse(resp *http.Response, target any) error {
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		var errResp struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&errResp); err == nil && errResp.Message != "" {
			return fmt.Errorf("[%s] %s", errResp.Code, errResp.Message)
		}
		return fmt.Errorf("request failed with status %d", resp.StatusCode)
	}

	if target != nil {
		if err := json.NewDecoder(resp.Body).Decode(target); err != nil {
			return fmt.Errorf("parse response: %w", err)
		}
	}
	return nil
}
