// Package provider talks to an OpenAI-compatible chat completions API and
// builds the summarize, paraphrase and image-to-text calls on top of it.
package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/toolnest/toolnest/internal/metrics"
)

// Config controls the HTTP client used for provider calls.
type Config struct {
	BaseURL    string
	APIKey     string
	Timeout    time.Duration
	MaxRetries int
	RetryDelay time.Duration
}

// Client sends chat completion requests with a bounded timeout and a small
// retry budget for rate limiting, server errors and transport failures.
type Client struct {
	cfg        Config
	httpClient *http.Client
	logger     *slog.Logger
}

// NewClient creates a provider client.
func NewClient(cfg Config, logger *slog.Logger) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = 500 * time.Millisecond
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	return &Client{
		cfg: cfg,
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
			Transport: &http.Transport{
				Proxy:               http.ProxyFromEnvironment,
				MaxIdleConns:        20,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		logger: logger,
	}
}

// ContentPart is one element of a multi-part message.
type ContentPart struct {
	Type     string    `json:"type"`
	Text     string    `json:"text,omitempty"`
	ImageURL *ImageURL `json:"image_url,omitempty"`
}

type ImageURL struct {
	URL string `json:"url"`
}

// Message is a chat message. Content is either a string or []ContentPart.
type Message struct {
	Role    string      `json:"role"`
	Content interface{} `json:"content"`
}

type ResponseFormat struct {
	Type string `json:"type"`
}

// ChatRequest is the body of POST /chat/completions.
type ChatRequest struct {
	Model          string          `json:"model"`
	Messages       []Message       `json:"messages"`
	Temperature    float64         `json:"temperature"`
	ResponseFormat *ResponseFormat `json:"response_format,omitempty"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

type apiError struct {
	Error struct {
		Message string `json:"message"`
	} `json:"error"`
}

// Completer returns the content of the first choice of a chat completion.
type Completer interface {
	Complete(ctx context.Context, op string, req ChatRequest) (string, error)
}

// Complete sends req and returns the first choice's content. op names the
// calling operation for metrics and errors.
func (c *Client) Complete(ctx context.Context, op string, req ChatRequest) (string, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return "", fmt.Errorf("encode %s request: %w", op, err)
	}

	start := time.Now()
	content, err := c.completeWithRetry(ctx, op, body)
	metrics.UpstreamDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())

	result := "success"
	if err != nil {
		result = "failure"
		var perr *Error
		if errors.As(err, &perr) && perr.Timeout {
			result = "timeout"
		}
	}
	metrics.UpstreamRequestsTotal.WithLabelValues(op, result).Inc()
	return content, err
}

func (c *Client) completeWithRetry(ctx context.Context, op string, body []byte) (string, error) {
	var lastErr *Error
	for attempt := 0; attempt <= c.cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			delay := c.cfg.RetryDelay * time.Duration(1<<uint(attempt-1))
			c.logger.Debug("retrying provider call", "op", op, "attempt", attempt, "delay", delay, "error", lastErr)
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return "", &Error{Op: op, Timeout: errors.Is(ctx.Err(), context.DeadlineExceeded), Err: ctx.Err()}
			}
		}

		content, err := c.do(ctx, op, body)
		if err == nil {
			return content, nil
		}
		lastErr = err
		if !err.retryable() || ctx.Err() != nil {
			break
		}
	}
	c.logger.Warn("provider call failed", "op", op, "status", lastErr.StatusCode, "error", lastErr.Err)
	return "", lastErr
}

func (c *Client) do(ctx context.Context, op string, body []byte) (string, *Error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return "", &Error{Op: op, Err: err}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if c.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", &Error{Op: op, Timeout: isTimeout(err), Err: err, transport: true}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return "", &Error{Op: op, StatusCode: resp.StatusCode, Timeout: isTimeout(err), Err: fmt.Errorf("read response: %w", err), transport: true}
	}

	if resp.StatusCode != http.StatusOK {
		var ae apiError
		msg := strings.TrimSpace(string(data))
		if json.Unmarshal(data, &ae) == nil && ae.Error.Message != "" {
			msg = ae.Error.Message
		}
		if len(msg) > 200 {
			msg = msg[:200]
		}
		return "", &Error{Op: op, StatusCode: resp.StatusCode, Err: fmt.Errorf("provider returned %d: %s", resp.StatusCode, msg)}
	}

	var cr chatResponse
	if err := json.Unmarshal(data, &cr); err != nil {
		return "", &Error{Op: op, StatusCode: resp.StatusCode, Err: fmt.Errorf("decode response: %w", err)}
	}
	if len(cr.Choices) == 0 {
		return "", &Error{Op: op, StatusCode: resp.StatusCode, Err: errors.New("response has no choices")}
	}
	return cr.Choices[0].Message.Content, nil
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}
