// Package llm provides the text and vision model clients plus node routing
// over a local Ollama fleet or an external gateway.
package llm

import "context"

// Message is one chat turn.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Options tunes a single request. A nil Options uses the client defaults.
type Options struct {
	Model       string
	Temperature float64
	MaxTokens   int
}

// TextClient is the synchronous chat contract.
type TextClient interface {
	Chat(ctx context.Context, messages []Message, opts *Options) (string, error)
	Model() string
}

// VisionClient analyzes one image against a prompt.
type VisionClient interface {
	Analyze(ctx context.Context, image []byte, prompt string, opts *Options) (string, error)
	Model() string
}

// System and User build single-turn message slices.
func System(content string) Message { return Message{Role: "system", Content: content} }
func User(content string) Message   { return Message{Role: "user", Content: content} }
