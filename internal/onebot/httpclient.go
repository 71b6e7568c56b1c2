package onebot

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	werrors "github.com/p-blackswan/welcome-agent/internal/errors"
)

// HTTPConfig configures the OneBot HTTP API client.
type HTTPConfig struct {
	// BaseURL is the HTTP API root, e.g. "http://127.0.0.1:5700".
	BaseURL     string
	AccessToken string
	Timeout     time.Duration
}

// HTTPClient calls OneBot actions as POST <BaseURL>/<action>.
type HTTPClient struct {
	baseURL string
	token   string
	client  *http.Client
}

// NewHTTPClient creates an HTTP API client.
func NewHTTPClient(cfg HTTPConfig) *HTTPClient {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 10 * time.Second
	}
	return &HTTPClient{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		token:   cfg.AccessToken,
		client:  &http.Client{Timeout: timeout},
	}
}

func (c *HTTPClient) Call(ctx context.Context, action string, params any) (json.RawMessage, error) {
	body, err := json.Marshal(params)
	if err != nil {
		return nil, fmt.Errorf("marshaling %s: %w", action, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/"+action, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("%s: %w: %w", action, werrors.ErrUnavailable, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("reading %s response: %w", action, err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, werrors.NewHTTPError(action, resp.StatusCode, strings.TrimSpace(string(raw)))
	}

	var ar actionResponse
	if err := json.Unmarshal(raw, &ar); err != nil {
		return nil, fmt.Errorf("decoding %s response: %w", action, err)
	}
	return ar.result(action)
}
