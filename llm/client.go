// Package llm talks to an OpenAI compatible chat completions endpoint.
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gosom/maps-recommender/metrics"
)

const (
	DefaultBaseURL = "https://api.openai.com/v1"
	DefaultModel   = "gpt-3.5-turbo"

	// DefaultSystemPrompt is the system message sent by CompleteWithSystem
	// callers that do not bring their own.
	DefaultSystemPrompt = "You are a helpful assistant."
)

var ErrNoChoices = errors.New("completion returned no choices")

type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model    string    `json:"model"`
	Messages []Message `json:"messages"`
}

type chatResponse struct {
	Choices []struct {
		Message Message `json:"message"`
	} `json:"choices"`
}

type ClientOptions func(*Client)

// Client sends single-turn chat completion requests. It holds no
// conversation state.
type Client struct {
	apiKey     string
	baseURL    string
	model      string
	httpClient *http.Client
	log        *slog.Logger
}

func New(apiKey string, opts ...ClientOptions) *Client {
	c := Client{
		apiKey:     apiKey,
		baseURL:    DefaultBaseURL,
		model:      DefaultModel,
		httpClient: &http.Client{Timeout: 60 * time.Second},
		log:        slog.Default(),
	}

	for _, opt := range opts {
		opt(&c)
	}

	return &c
}

func WithBaseURL(u string) ClientOptions {
	return func(c *Client) {
		if u != "" {
			c.baseURL = strings.TrimSuffix(u, "/")
		}
	}
}

func WithModel(m string) ClientOptions {
	return func(c *Client) {
		if m != "" {
			c.model = m
		}
	}
}

func WithHTTPClient(hc *http.Client) ClientOptions {
	return func(c *Client) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

func WithLogger(l *slog.Logger) ClientOptions {
	return func(c *Client) {
		if l != nil {
			c.log = l
		}
	}
}

func (c *Client) Model() string {
	return c.model
}

// Complete sends prompt as the only user message and returns the content of
// the first choice as is.
func (c *Client) Complete(ctx context.Context, prompt string) (string, error) {
	return c.chat(ctx, []Message{{Role: "user", Content: prompt}})
}

// CompleteWithSystem is Complete preceded by a system message.
func (c *Client) CompleteWithSystem(ctx context.Context, system, prompt string) (string, error) {
	return c.chat(ctx, []Message{
		{Role: "system", Content: system},
		{Role: "user", Content: prompt},
	})
}

func (c *Client) chat(ctx context.Context, messages []Message) (string, error) {
	content, err := c.invoke(ctx, messages)

	switch {
	case errors.Is(err, ErrNoChoices):
		metrics.CompletionRequests.WithLabelValues(metrics.OutcomeEmpty).Inc()
	case err != nil:
		metrics.CompletionRequests.WithLabelValues(metrics.OutcomeError).Inc()
	default:
		metrics.CompletionRequests.WithLabelValues(metrics.OutcomeOK).Inc()
	}

	return content, err
}

func (c *Client) invoke(ctx context.Context, messages []Message) (string, error) {
	body, err := json.Marshal(chatRequest{Model: c.model, Messages: messages})
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	c.log.Debug("sending completion request", "model", c.model, "messages", len(messages), "bytes", len(body))

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to make request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))

		return "", fmt.Errorf("completion request failed: %s: %s", resp.Status, strings.TrimSpace(string(msg)))
	}

	var chatResp chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&chatResp); err != nil {
		return "", fmt.Errorf("failed to decode response: %w", err)
	}

	if len(chatResp.Choices) == 0 {
		return "", ErrNoChoices
	}

	return chatResp.Choices[0].Message.Content, nil
}
