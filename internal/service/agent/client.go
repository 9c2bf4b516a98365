package agent

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"
)

// DefaultTimeout bounds a single agent call.
const DefaultTimeout = 10 * time.Second

const maxResponseBytes = 4 << 20

// Options configures a Client.
type Options struct {
	Endpoint   string
	APIKey     string
	Timeout    time.Duration
	Strategy   Strategy
	Fallback   Fallback
	Logger     *slog.Logger
	HTTPClient *http.Client
}

// Client posts chat input to a Langflow run endpoint. It holds no per-user state
// and is safe to share.
type Client struct {
	endpoint  string
	apiKey    string
	client    *http.Client
	extractor Extractor
	logger    *slog.Logger
}

type request struct {
	OutputType string `json:"output_type"`
	InputType  string `json:"input_type"`
	InputValue string `json:"input_value"`
}

// NewClient builds a Client from opts.
func NewClient(opts Options) *Client {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: timeout}
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Client{
		endpoint:  opts.Endpoint,
		apiKey:    opts.APIKey,
		client:    httpClient,
		extractor: Extractor{Strategy: opts.Strategy, Fallback: opts.Fallback},
		logger:    logger,
	}
}

// Send posts userText to the agent and extracts the reply text. Every failure is
// returned as a *RequestError or *ResponseFormatError.
func (c *Client) Send(ctx context.Context, userText string) (Reply, error) {
	body, err := json.Marshal(request{
		OutputType: "chat",
		InputType:  "chat",
		InputValue: userText,
	})
	if err != nil {
		return Reply{}, &RequestError{Op: "marshal request", Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return Reply{}, &RequestError{Op: "create request", Err: err}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-api-key", c.apiKey)

	start := time.Now()
	resp, err := c.client.Do(req)
	if err != nil {
		return Reply{}, &RequestError{Op: "agent call", Err: err}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return Reply{}, &RequestError{Op: "read response", Err: err}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return Reply{}, &RequestError{
			Op:         "agent call",
			StatusCode: resp.StatusCode,
			Err:        fmt.Errorf("status %d: %s", resp.StatusCode, truncate(respBody)),
		}
	}

	reply, err := c.extractor.Extract(respBody)
	if err != nil {
		return Reply{}, err
	}

	if reply.Shape == ShapeFallback {
		c.logger.Warn("agent response matched no known shape, using whole body",
			"strategy", c.extractor.Strategy, "length", len(reply.Text))
	}
	c.logger.Debug("agent reply received",
		"shape", reply.Shape, "field", reply.Field, "elapsed", time.Since(start))
	return reply, nil
}
