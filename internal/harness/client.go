// Package harness drives a running quantserve over HTTP to measure speed and
// eyeball output quality.
package harness

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/avast/retry-go/v4"
	"github.com/goccy/go-json"

	"github.com/samcharles93/quantserve/internal/evaluation"
	"github.com/samcharles93/quantserve/internal/inference"
	"github.com/samcharles93/quantserve/internal/logger"
)

var ErrUnhealthy = errors.New("server returned unexpected health response")

type Client struct {
	BaseURL string
	HTTP    *http.Client
}

func NewClient(url string, timeout time.Duration) *Client {
	return &Client{
		BaseURL: strings.TrimRight(url, "/"),
		HTTP:    &http.Client{Timeout: timeout},
	}
}

// Metadata mirrors the /metadata response.
type Metadata struct {
	Quantized    *inference.Metadata             `json:"quantized"`
	Baseline     *inference.Metadata             `json:"baseline"`
	Quantization *evaluation.QuantizationSummary `json:"quantization"`
}

// GenerationResult holds either a response or the error that replaced it.
type GenerationResult struct {
	*inference.GenerationResponse
	Error string `json:"error,omitempty"`
}

func (r GenerationResult) OK() bool { return r.Error == "" && r.GenerationResponse != nil }

type generateBody struct {
	Prompt       string `json:"prompt"`
	MaxNewTokens int    `json:"max_new_tokens"`
}

func (c *Client) Health(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.BaseURL+"/health", nil)
	if err != nil {
		return err
	}
	resp, err := c.HTTP.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if resp.StatusCode != http.StatusOK || strings.TrimSpace(string(body)) != "ok" {
		return fmt.Errorf("%w: HTTP %d %q", ErrUnhealthy, resp.StatusCode, string(body))
	}
	return nil
}

// WaitHealthy polls /health with exponential back-off.
func (c *Client) WaitHealthy(ctx context.Context, attempts uint, delay time.Duration) error {
	log := logger.FromContext(ctx)
	return retry.Do(
		func() error { return c.Health(ctx) },
		retry.Context(ctx),
		retry.Attempts(attempts),
		retry.Delay(delay),
		retry.DelayType(retry.BackOffDelay),
		retry.LastErrorOnly(true),
		retry.OnRetry(func(n uint, err error) {
			log.Debug("server not healthy yet", "attempt", n+1, "error", err)
		}),
	)
}

func (c *Client) Metadata(ctx context.Context) (*Metadata, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.BaseURL+"/metadata", nil)
	if err != nil {
		return nil, err
	}
	var out Metadata
	if err := c.do(req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Generate never returns an error; failures are folded into the result.
func (c *Client) Generate(ctx context.Context, prompt string, maxTokens int) GenerationResult {
	resp, err := c.generate(ctx, prompt, maxTokens)
	if err != nil {
		return GenerationResult{Error: err.Error()}
	}
	return GenerationResult{GenerationResponse: resp}
}

func (c *Client) generate(ctx context.Context, prompt string, maxTokens int) (*inference.GenerationResponse, error) {
	payload, err := json.Marshal(generateBody{Prompt: prompt, MaxNewTokens: maxTokens})
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+"/generate", bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	var out inference.GenerationResponse
	if err := c.do(req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) do(req *http.Request, out any) error {
	resp, err := c.HTTP.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		var apiErr struct {
			Error string `json:"error"`
		}
		if json.Unmarshal(body, &apiErr) == nil && apiErr.Error != "" {
			return fmt.Errorf("HTTP %d: %s", resp.StatusCode, apiErr.Error)
		}
		return fmt.Errorf("HTTP %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
