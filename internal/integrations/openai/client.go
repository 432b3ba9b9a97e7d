package openai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"

	goopenai "github.com/sashabaranov/go-openai"

	"footcare-triage/internal/domain"
)

const (
	DefaultModel       = "gpt-4-turbo-preview"
	DefaultTemperature = 0.7
	DefaultMaxTokens   = 500
)

// tokenPayload is the expected JSON shape stored in SSM for the API token.
type tokenPayload struct {
	Token string `json:"token"`
}

// Getter reads a named parameter. *paramstore.Client satisfies it.
type Getter interface {
	GetParameter(ctx context.Context, name string) (string, error)
}

// chatCompleter is the part of *goopenai.Client used here.
type chatCompleter interface {
	CreateChatCompletion(ctx context.Context, req goopenai.ChatCompletionRequest) (goopenai.ChatCompletionResponse, error)
}

// Client sends chat histories to an OpenAI-compatible completion endpoint.
type Client struct {
	apiKey      string
	getter      Getter
	keyParam    string
	baseURL     string
	httpClient  *http.Client
	model       string
	temperature float32
	maxTokens   int

	once      sync.Once
	completer chatCompleter
	initErr   error
}

type Option func(*Client)

// WithAPIKey sets a static credential.
func WithAPIKey(key string) Option {
	return func(c *Client) {
		c.apiKey = strings.TrimSpace(key)
	}
}

// WithKeyParameter makes the client read its credential from the named
// parameter on first use.
func WithKeyParameter(g Getter, name string) Option {
	return func(c *Client) {
		c.getter = g
		c.keyParam = strings.TrimSpace(name)
	}
}

func WithBaseURL(baseURL string) Option {
	return func(c *Client) {
		c.baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	}
}

func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

func WithModel(model string) Option {
	return func(c *Client) {
		if m := strings.TrimSpace(model); m != "" {
			c.model = m
		}
	}
}

func WithTemperature(t float32) Option {
	return func(c *Client) {
		c.temperature = t
	}
}

func WithMaxTokens(n int) Option {
	return func(c *Client) {
		if n > 0 {
			c.maxTokens = n
		}
	}
}

// NewClient requires either a static key or a key parameter.
func NewClient(opts ...Option) (*Client, error) {
	c := &Client{
		model:       DefaultModel,
		temperature: DefaultTemperature,
		maxTokens:   DefaultMaxTokens,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.apiKey == "" {
		if c.getter == nil {
			return nil, errors.New("openai: api key or key parameter getter is required")
		}
		if c.keyParam == "" {
			return nil, errors.New("openai: key parameter name must not be empty")
		}
	}
	return c, nil
}

// resolveCompleter builds the SDK client on the first call, fetching the key
// from the parameter store when no static key was given. The outcome, error
// included, is reused for the lifetime of the process.
func (c *Client) resolveCompleter(ctx context.Context) (chatCompleter, error) {
	c.once.Do(func() {
		if c.completer != nil {
			return
		}
		key := c.apiKey
		if key == "" {
			key, c.initErr = fetchAPIKeyFromParamStore(ctx, c.getter, c.keyParam)
			if c.initErr != nil {
				return
			}
		}
		cfg := goopenai.DefaultConfig(key)
		if c.baseURL != "" {
			cfg.BaseURL = c.baseURL
		}
		if c.httpClient != nil {
			cfg.HTTPClient = c.httpClient
		}
		c.completer = goopenai.NewClientWithConfig(cfg)
	})
	return c.completer, c.initErr
}

// Chat returns the content of the first choice, or "" when the response has
// none.
func (c *Client) Chat(ctx context.Context, messages []domain.ChatMessage) (string, error) {
	completer, err := c.resolveCompleter(ctx)
	if err != nil {
		return "", err
	}

	oaMsgs := make([]goopenai.ChatCompletionMessage, 0, len(messages))
	for _, m := range messages {
		oaMsgs = append(oaMsgs, goopenai.ChatCompletionMessage{Role: string(m.Role), Content: m.Content})
	}

	resp, err := completer.CreateChatCompletion(ctx, goopenai.ChatCompletionRequest{
		Model:       c.model,
		Messages:    oaMsgs,
		Temperature: c.temperature,
		MaxTokens:   c.maxTokens,
	})
	if err != nil {
		err = fmt.Errorf("openai: chat completion: %w", err)
		if status := statusCode(err); status != 0 {
			return "", &StatusError{Status: status, Err: err}
		}
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", nil
	}
	return resp.Choices[0].Message.Content, nil
}

// StatusError is returned by Chat when the server answered with an error
// status.
type StatusError struct {
	Status int
	Err    error
}

func (e *StatusError) Error() string { return e.Err.Error() }

func (e *StatusError) Unwrap() error { return e.Err }

func (e *StatusError) HTTPStatusCode() int { return e.Status }

// statusCode extracts the upstream HTTP status from a go-openai error, or 0
// when the failure never reached the server.
func statusCode(err error) int {
	var apiErr *goopenai.APIError
	if errors.As(err, &apiErr) {
		return apiErr.HTTPStatusCode
	}
	var reqErr *goopenai.RequestError
	if errors.As(err, &reqErr) {
		return reqErr.HTTPStatusCode
	}
	return 0
}

// fetchAPIKeyFromParamStore accepts either {"token": "..."} or a bare key.
func fetchAPIKeyFromParamStore(ctx context.Context, getter Getter, name string) (string, error) {
	if getter == nil {
		return "", errors.New("openai: paramstore getter is nil")
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return "", errors.New("openai: token parameter name is empty")
	}

	raw, err := getter.GetParameter(ctx, name)
	if err != nil {
		return "", fmt.Errorf("openai: fetch token from paramstore: %w", err)
	}
	raw = strings.TrimSpace(raw)
	if !strings.HasPrefix(raw, "{") {
		if raw == "" {
			return "", errors.New("openai: API token is empty")
		}
		return raw, nil
	}
	var tp tokenPayload
	if err := json.Unmarshal([]byte(raw), &tp); err != nil {
		return "", fmt.Errorf("openai: unmarshal paramstore token value as JSON: %w", err)
	}
	if tp.Token == "" {
		return "", errors.New("openai: API token is empty")
	}
	return tp.Token, nil
}
