package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// DefaultHTTPTimeout sets the maximum duration of a single request.
// AI completions are slow compared to regular REST calls.
const DefaultHTTPTimeout = 90 * time.Second

// Client is a thin wrapper over an OpenAI-compatible chat-completions API.
// It handles: auth header, base URL, rate limiting and JSON decoding.
// No retries here and no concurrency bounding — the request gate wraps calls
// at the service layer. All public methods are safe for concurrent use.
//
// Example:
//
//	cli := ai.New(apiKey, model,
//	    ai.WithRateLimit(3, 6),
//	    ai.WithLogger(log),
//	)
//	res, err := cli.Chat(ctx, messages)
type Client struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
	model      string
	limiter    *rate.Limiter
	log        *zap.SugaredLogger
}

// Option mutates the client during construction.
// Use functional options to avoid breaking callers when adding new fields.
type Option func(*Client)

// WithBaseURL overrides the default API endpoint.
func WithBaseURL(raw string) Option {
	return func(c *Client) {
		if raw != "" {
			c.baseURL = strings.TrimRight(raw, "/")
		}
	}
}

// WithRateLimit sets the per-second rate and burst size.
// If rps <= 0, limiter is disabled.
func WithRateLimit(rps, burst int) Option {
	return func(c *Client) {
		if rps > 0 {
			c.limiter = rate.NewLimiter(rate.Limit(rps), burst)
		}
	}
}

// WithLogger allows injecting custom zap logger. If nil, a no-op logger will be used.
func WithLogger(l *zap.SugaredLogger) Option {
	return func(c *Client) {
		if l != nil {
			c.log = l
		}
	}
}

// WithHTTPTimeout overrides the per-request timeout.
func WithHTTPTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.httpClient.Timeout = d
		}
	}
}

// New constructs Client with mandatory key and model, plus optional modifiers.
func New(apiKey, model string, opts ...Option) *Client {
	c := &Client{
		httpClient: &http.Client{Timeout: DefaultHTTPTimeout},
		baseURL:    "https://api.openai.com",
		apiKey:     apiKey,
		model:      model,
		limiter:    rate.NewLimiter(rate.Inf, 0), // disabled limiter by default
		log:        zap.NewNop().Sugar(),
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Chat sends the message list to the provider and returns the first choice.
// The context bounds the whole call including rate-limiter waiting.
func (c *Client) Chat(ctx context.Context, messages []Message) (Result, error) {
	if err := c.wait(ctx); err != nil {
		return Result{}, err
	}

	reqID := uuid.NewString()
	start := time.Now()

	body := chatCompletionRequest{
		Model:       c.model,
		Messages:    messages,
		Temperature: 0.7,
	}
	buf := &bytes.Buffer{}
	if err := json.NewEncoder(buf).Encode(body); err != nil {
		return Result{}, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/chat/completions", buf)
	if err != nil {
		return Result{}, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return Result{}, err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return Result{}, err
	}

	var out chatCompletionResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return Result{}, fmt.Errorf("ai api: decode response (http %d): %w", resp.StatusCode, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		if out.Error != nil {
			return Result{}, fmt.Errorf("ai api http %d: %s", resp.StatusCode, out.Error.Message)
		}
		return Result{}, fmt.Errorf("ai api http %d: %s", resp.StatusCode, truncate(string(raw), 256))
	}
	if len(out.Choices) == 0 {
		return Result{}, fmt.Errorf("ai api: empty choices in response")
	}

	res := Result{
		Text: out.Choices[0].Message.Content,
		Usage: Usage{
			InputTokens:  out.Usage.PromptTokens,
			OutputTokens: out.Usage.CompletionTokens,
			TotalTokens:  out.Usage.TotalTokens,
		},
		Duration: time.Since(start),
	}

	c.log.Debugw("ai chat completed",
		"request_id", reqID,
		"model", c.model,
		"duration", res.Duration.String(),
		"total_tokens", res.Usage.TotalTokens)

	return res, nil
}

// --- internal helpers ---

func (c *Client) wait(ctx context.Context) error {
	if c.limiter == nil || c.limiter.Limit() == rate.Inf {
		return nil
	}
	return c.limiter.Wait(ctx)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
