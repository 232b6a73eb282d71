package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/local/docverify/internal/apperr"
	"github.com/local/docverify/internal/config"
	"github.com/local/docverify/internal/metrics"
	"github.com/local/docverify/internal/retry"
)

const maxResponseBytes = 8 << 20

// Client sends prompts to the completion gateway. The gateway speaks a
// single-shot protocol: one prompt in, one completion envelope out.
type Client struct {
	http        *http.Client
	baseURL     string
	model       string
	temperature float64
	maxTokens   int
	retryPolicy retry.Policy
}

type completionReq struct {
	Model       string  `json:"Model"`
	Content     string  `json:"Content"`
	Temperature float64 `json:"Temperature"`
	MaxTokens   int     `json:"MaxTokens"`
}

func NewClient(cfg config.LLMConfig) *Client {
	attempts := cfg.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}
	return &Client{
		http:        &http.Client{Timeout: cfg.RequestTimeout},
		baseURL:     cfg.BaseURL,
		model:       cfg.Model,
		temperature: cfg.Temperature,
		maxTokens:   cfg.MaxTokens,
		retryPolicy: retry.Policy{
			MaxAttempts:  attempts,
			InitialDelay: 500 * time.Millisecond,
			Multiplier:   2,
			MaxDelay:     5 * time.Second,
		},
	}
}

// Complete sends the prompt and returns the raw completion payload. The
// caller unwraps the envelope with ExtractJSON.
func (c *Client) Complete(ctx context.Context, prompt string) ([]byte, error) {
	start := time.Now()

	var body []byte
	err := retry.Do(ctx, c.retryPolicy, apperr.IsRetryable, func() error {
		var attemptErr error
		body, attemptErr = c.complete(ctx, prompt)
		return attemptErr
	})
	if err != nil {
		result := "error"
		if e, ok := apperr.As(err); ok && e.Code == apperr.CodeLLMTimeout {
			result = "timeout"
		}
		metrics.ObserveProvider("llm", result, time.Since(start))
		return nil, err
	}

	metrics.ObserveProvider("llm", "ok", time.Since(start))
	log.Debug().Str("model", c.model).Int("bytes", len(body)).Msg("LLM completion")
	return body, nil
}

func (c *Client) complete(ctx context.Context, prompt string) ([]byte, error) {
	payload, err := json.Marshal(completionReq{
		Model:       c.model,
		Content:     prompt,
		Temperature: c.temperature,
		MaxTokens:   c.maxTokens,
	})
	if err != nil {
		return nil, apperr.Wrap(apperr.CodeLLMFailed, "marshal completion request", false, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL, bytes.NewReader(payload))
	if err != nil {
		return nil, apperr.Wrap(apperr.CodeLLMFailed, "build completion request", false, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		if isTimeout(err) {
			return nil, apperr.Wrap(apperr.CodeLLMTimeout, "completion request timed out", true, err)
		}
		return nil, apperr.Wrap(apperr.CodeLLMFailed, "completion request", true, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return nil, apperr.Server(apperr.CodeLLMFailed, "LLM rate limited", true)
	case resp.StatusCode >= 500:
		return nil, apperr.Server(apperr.CodeLLMFailed, fmt.Sprintf("LLM status %d", resp.StatusCode), true)
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		return nil, apperr.Server(apperr.CodeLLMFailed, fmt.Sprintf("LLM status %d", resp.StatusCode), false)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, apperr.Wrap(apperr.CodeLLMFailed, "read completion response", true, err)
	}
	if len(bytes.TrimSpace(body)) == 0 {
		return nil, apperr.Server(apperr.CodeLLMFailed, "empty completion response", true)
	}
	return body, nil
}

// HealthCheck reports the gateway reachable when any HTTP response arrives.
func (c *Client) HealthCheck(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL, nil)
	if err != nil {
		return err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("LLM unreachable: %w", err)
	}
	resp.Body.Close()
	return nil
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}
