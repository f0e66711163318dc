package llm

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/B-A-M-N/NERVA/internal/jsonx"
	"github.com/B-A-M-N/NERVA/internal/logging"
	"github.com/B-A-M-N/NERVA/internal/nerrors"
	"github.com/B-A-M-N/NERVA/internal/observability"
)

// OllamaClient talks to the Ollama /api/chat endpoint, either directly on a
// node or through the gateway. It implements both TextClient and
// VisionClient; vision requests attach the image to the user message.
type OllamaClient struct {
	router     *NodeRouter
	httpClient *http.Client
	model      string
	apiKey     string
	logger     logging.Logger
}

// OllamaOption configures an OllamaClient.
type OllamaOption func(*OllamaClient)

// WithAPIKey sets a bearer token for gateway deployments that require one.
func WithAPIKey(key string) OllamaOption {
	return func(c *OllamaClient) { c.apiKey = key }
}

// WithHTTPClient overrides the transport, mainly for tests.
func WithHTTPClient(hc *http.Client) OllamaOption {
	return func(c *OllamaClient) { c.httpClient = hc }
}

// NewOllamaClient creates a client bound to a default model.
func NewOllamaClient(router *NodeRouter, model string, logger logging.Logger, opts ...OllamaOption) *OllamaClient {
	c := &OllamaClient{
		router:     router,
		httpClient: &http.Client{Timeout: 120 * time.Second},
		model:      model,
		logger:     logging.OrNop(logger),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Model returns the default model name.
func (c *OllamaClient) Model() string { return c.model }

type chatMessage struct {
	Role    string   `json:"role"`
	Content string   `json:"content"`
	Images  []string `json:"images,omitempty"`
}

type chatRequest struct {
	Model    string         `json:"model"`
	Messages []chatMessage  `json:"messages"`
	Stream   bool           `json:"stream"`
	Options  map[string]any `json:"options,omitempty"`
}

type chatResponse struct {
	Message struct {
		Role    string `json:"role"`
		Content string `json:"content"`
	} `json:"message"`
	Error string `json:"error,omitempty"`
}

// Chat sends a chat completion request and returns the assistant content.
func (c *OllamaClient) Chat(ctx context.Context, messages []Message, opts *Options) (string, error) {
	wire := make([]chatMessage, len(messages))
	for i, m := range messages {
		wire[i] = chatMessage{Role: m.Role, Content: m.Content}
	}
	return c.complete(ctx, wire, opts)
}

// Analyze sends one image plus a prompt to the vision model.
func (c *OllamaClient) Analyze(ctx context.Context, image []byte, prompt string, opts *Options) (string, error) {
	wire := []chatMessage{{
		Role:    "user",
		Content: prompt,
		Images:  []string{base64.StdEncoding.EncodeToString(image)},
	}}
	return c.complete(ctx, wire, opts)
}

func (c *OllamaClient) complete(ctx context.Context, messages []chatMessage, opts *Options) (string, error) {
	model := c.model
	reqOpts := map[string]any{}
	if opts != nil {
		if opts.Model != "" {
			model = opts.Model
		}
		if opts.Temperature > 0 {
			reqOpts["temperature"] = opts.Temperature
		}
		if opts.MaxTokens > 0 {
			reqOpts["num_predict"] = opts.MaxTokens
		}
	}
	if len(reqOpts) == 0 {
		reqOpts = nil
	}

	body, err := jsonx.Marshal(chatRequest{Model: model, Messages: messages, Stream: false, Options: reqOpts})
	if err != nil {
		return "", nerrors.Wrap(nerrors.KindInternal, "llm.marshal", err)
	}

	base := c.router.Pick()
	if base == "" {
		return "", nerrors.Unavailable("llm.chat", fmt.Errorf("no LLM nodes configured"))
	}

	data, err := c.doPost(ctx, base+"/api/chat", body)
	if err != nil {
		if nerrors.Is(err, nerrors.KindUnavailable) || nerrors.Is(err, nerrors.KindTimeout) {
			c.router.MarkFailed(base)
		}
		observability.LLMRequestTotal.WithLabelValues(string(nerrors.KindOf(err))).Inc()
		return "", err
	}

	var resp chatResponse
	if err := jsonx.Unmarshal(data, &resp); err != nil {
		observability.LLMRequestTotal.WithLabelValues(string(nerrors.KindBadResponse)).Inc()
		return "", nerrors.Wrap(nerrors.KindBadResponse, "llm.decode", err)
	}
	if resp.Error != "" {
		observability.LLMRequestTotal.WithLabelValues(string(nerrors.KindBadResponse)).Inc()
		return "", nerrors.BadResponse("llm.chat", resp.Error)
	}
	observability.LLMRequestTotal.WithLabelValues("ok").Inc()
	return resp.Message.Content, nil
}

func (c *OllamaClient) doPost(ctx context.Context, url string, body []byte) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, nerrors.Wrap(nerrors.KindInternal, "llm.request", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
	c.logger.Debug("POST %s model request (%d bytes, auth=%s)", url, len(body), maskKey(c.apiKey))

	started := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, nerrors.FromContext("llm.post", ctx.Err())
		}
		return nil, nerrors.Unavailable("llm.post", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, nerrors.Unavailable("llm.read", err)
	}
	c.logger.Debug("POST %s -> %d in %s (%d bytes)", url, resp.StatusCode, time.Since(started).Round(time.Millisecond), len(data))

	switch {
	case resp.StatusCode == http.StatusOK:
		return data, nil
	case resp.StatusCode == http.StatusRequestTimeout || resp.StatusCode == http.StatusGatewayTimeout:
		return nil, nerrors.Timeout("llm.post", fmt.Sprintf("status %d", resp.StatusCode))
	case resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests:
		return nil, nerrors.Unavailable("llm.post", errStatus(resp.StatusCode, data))
	default:
		return nil, nerrors.BadResponse("llm.post", fmt.Sprintf("status %d: %s", resp.StatusCode, truncate(string(data), 200)))
	}
}

func errStatus(code int, body []byte) error {
	return fmt.Errorf("status %d: %s", code, truncate(string(body), 200))
}

func maskKey(key string) string {
	if key == "" {
		return "none"
	}
	if len(key) <= 8 {
		return "***"
	}
	return key[:4] + "***" + key[len(key)-4:]
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
