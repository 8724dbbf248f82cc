package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/kalambet/fyydbot/internal/api"
)

// statusClient queries the status server of a running bot.
type statusClient struct {
	baseURL    string
	httpClient *http.Client
}

var newStatusClient = func(port int) *statusClient {
	return &statusClient{
		baseURL:    fmt.Sprintf("http://127.0.0.1:%d", port),
		httpClient: &http.Client{Timeout: 2 * time.Second},
	}
}

func (c *statusClient) get(ctx context.Context, path string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("server not reachable, is fyydbot running? (%w)", err)
	}
	return resp, nil
}

func (c *statusClient) health(ctx context.Context) error {
	resp, err := c.get(ctx, "/health")
	if err != nil {
		return err
	}
	var body map[string]string
	if err := decodeJSON(resp, &body); err != nil {
		return err
	}
	if body["status"] != "ok" {
		return fmt.Errorf("unexpected health status %q", body["status"])
	}
	return nil
}

func (c *statusClient) status(ctx context.Context) (api.StatusReport, error) {
	var report api.StatusReport
	resp, err := c.get(ctx, "/status")
	if err != nil {
		return report, err
	}
	err = decodeJSON(resp, &report)
	return report, err
}

func decodeJSON(resp *http.Response, v any) error {
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return fmt.Errorf("server returned %d (failed to read body: %w)", resp.StatusCode, err)
		}
		return fmt.Errorf("server returned %d: %s", resp.StatusCode, string(body))
	}
	return json.NewDecoder(resp.Body).Decode(v)
}
