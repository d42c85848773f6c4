package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// Message is one chat message in a model conversation.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Request is a single chat-completion request.
type Request struct {
	Model       string    `json:"model"`
	Messages    []Message `json:"messages"`
	Temperature float64   `json:"temperature,omitempty"`
	MaxTokens   int       `json:"max_tokens,omitempty"`
}

// Usage reports token consumption for one request.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// Response is the outcome of a successful model call, spend included.
type Response struct {
	Content  string
	Model    string
	Usage    Usage
	UsdCost  float64
	Duration time.Duration
}

// Client is the single primitive all model traffic goes through. Genetic
// operators and workflow nodes never talk to a provider directly.
type Client interface {
	SendAI(ctx context.Context, req Request) (*Response, error)
}

// ModelPrice is the per-million-token price of a model.
type ModelPrice struct {
	InputPerMTok  float64
	OutputPerMTok float64
}

// DefaultPricing covers the models the default configuration refers to.
// Unknown models fall back to Options.FallbackPrice.
var DefaultPricing = map[string]ModelPrice{
	"gpt-4.1":      {InputPerMTok: 2.00, OutputPerMTok: 8.00},
	"gpt-4.1-mini": {InputPerMTok: 0.40, OutputPerMTok: 1.60},
	"gpt-4.1-nano": {InputPerMTok: 0.10, OutputPerMTok: 0.40},
}

// Options configures an HTTPClient.
type Options struct {
	APIKey string
	// MaxConcurrentAIRequests bounds in-flight requests across all callers
	// sharing this client. Zero or negative means unbounded.
	MaxConcurrentAIRequests int
	RequestTimeout          time.Duration
	Pricing                 map[string]ModelPrice
	FallbackPrice           ModelPrice
}

// HTTPClient talks to an OpenAI-compatible chat-completions endpoint.
type HTTPClient struct {
	baseURL  string
	apiKey   string
	httpc    *http.Client
	sem      chan struct{}
	pricing  map[string]ModelPrice
	fallback ModelPrice
}

// NewHTTPClient creates a client for the given base URL (e.g.
// "https://api.openai.com/v1").
func NewHTTPClient(baseURL string, opts Options) *HTTPClient {
	timeout := opts.RequestTimeout
	if timeout == 0 {
		timeout = 120 * time.Second
	}
	pricing := opts.Pricing
	if pricing == nil {
		pricing = DefaultPricing
	}
	var sem chan struct{}
	if opts.MaxConcurrentAIRequests > 0 {
		sem = make(chan struct{}, opts.MaxConcurrentAIRequests)
	}
	return &HTTPClient{
		baseURL:  baseURL,
		apiKey:   opts.APIKey,
		httpc:    &http.Client{Timeout: timeout},
		sem:      sem,
		pricing:  pricing,
		fallback: opts.FallbackPrice,
	}
}

type chatCompletionResponse struct {
	Model   string `json:"model"`
	Choices []struct {
		Message Message `json:"message"`
	} `json:"choices"`
	Usage Usage `json:"usage"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error"`
}

// SendAI issues one chat-completion request. It blocks while the client's
// concurrency limit is saturated; cancelling the context releases the wait.
func (c *HTTPClient) SendAI(ctx context.Context, req Request) (*Response, error) {
	if err := c.acquire(ctx); err != nil {
		return nil, err
	}
	defer c.release()

	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewBuffer(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	start := time.Now()
	httpResp, err := c.httpc.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("model call failed: %w", err)
	}
	defer httpResp.Body.Close()

	var parsed chatCompletionResponse
	if err := json.NewDecoder(httpResp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("decode response (status %d): %w", httpResp.StatusCode, err)
	}
	if parsed.Error != nil {
		return nil, fmt.Errorf("model call failed: %s (%s)", parsed.Error.Message, parsed.Error.Type)
	}
	if httpResp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("model call failed: status %d", httpResp.StatusCode)
	}
	if len(parsed.Choices) == 0 {
		return nil, fmt.Errorf("model returned no choices")
	}

	model := parsed.Model
	if model == "" {
		model = req.Model
	}
	return &Response{
		Content:  parsed.Choices[0].Message.Content,
		Model:    model,
		Usage:    parsed.Usage,
		UsdCost:  c.cost(model, parsed.Usage),
		Duration: time.Since(start),
	}, nil
}

func (c *HTTPClient) cost(model string, usage Usage) float64 {
	price, ok := c.pricing[model]
	if !ok {
		price = c.fallback
	}
	return float64(usage.PromptTokens)*price.InputPerMTok/1e6 +
		float64(usage.CompletionTokens)*price.OutputPerMTok/1e6
}

func (c *HTTPClient) acquire(ctx context.Context) error {
	if c.sem == nil {
		return nil
	}
	select {
	case c.sem <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *HTTPClient) release() {
	if c.sem != nil {
		<-c.sem
	}
}
