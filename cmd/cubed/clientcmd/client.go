// Package clientcmd implements the "cubed client" subcommand tree: thin
// convenience verbs wrapping the compute server's HTTP API, built as a
// plain net/http client behind a small set of cobra subcommands.
package clientcmd

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// Client is a thin HTTP client bound to one compute server instance.
type Client struct {
	BaseURL string
	HTTP    *http.Client
}

// NewClient builds a Client whose requests target baseURL (e.g.
// "http://localhost:1111/gdalcubes/api").
func NewClient(baseURL string) *Client {
	return &Client{
		BaseURL: strings.TrimRight(baseURL, "/"),
		HTTP:    &http.Client{Timeout: 30 * time.Second},
	}
}

// PutCube submits a cube descriptor and returns its assigned id.
func (c *Client) PutCube(ctx context.Context, descriptor json.RawMessage) (int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+"/cube", bytes.NewReader(descriptor))
	if err != nil {
		return 0, err
	}
	req.Header.Set("Content-Type", "application/json")

	body, err := c.do(req)
	if err != nil {
		return 0, err
	}
	id, err := strconv.Atoi(strings.TrimSpace(string(body)))
	if err != nil {
		return 0, fmt.Errorf("clientcmd: unexpected cube id response %q: %w", body, err)
	}
	return id, nil
}

// GetCube fetches a cube's description as raw JSON.
func (c *Client) GetCube(ctx context.Context, cubeID int) (json.RawMessage, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fmt.Sprintf("%s/cube/%d", c.BaseURL, cubeID), nil)
	if err != nil {
		return nil, err
	}
	return c.do(req)
}

// Start requests that chunkID begin computing.
func (c *Client) Start(ctx context.Context, cubeID, chunkID int) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, fmt.Sprintf("%s/cube/%d/%d/start", c.BaseURL, cubeID, chunkID), nil)
	if err != nil {
		return err
	}
	_, err = c.do(req)
	return err
}

// Status returns the chunk's current state-machine status string.
func (c *Client) Status(ctx context.Context, cubeID, chunkID int) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fmt.Sprintf("%s/cube/%d/%d/status", c.BaseURL, cubeID, chunkID), nil)
	if err != nil {
		return "", err
	}
	body, err := c.do(req)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(body)), nil
}

// Download blocks until the chunk is finished, then returns its wire
// payload (16-byte header + raw float64 body).
func (c *Client) Download(ctx context.Context, cubeID, chunkID int) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fmt.Sprintf("%s/cube/%d/%d/download", c.BaseURL, cubeID, chunkID), nil)
	if err != nil {
		return nil, err
	}
	return c.do(req)
}

func (c *Client) do(req *http.Request) ([]byte, error) {
	resp, err := c.HTTP.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("clientcmd: %s %s: %s: %s", req.Method, req.URL, resp.Status, bytes.TrimSpace(body))
	}
	return body, nil
}
