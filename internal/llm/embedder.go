package llm

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"time"

	"github.com/B-A-M-N/NERVA/internal/jsonx"
	"github.com/B-A-M-N/NERVA/internal/nerrors"
)

// OllamaEmbedder produces embeddings via /api/embeddings. It satisfies the
// memory store's Embedder contract.
type OllamaEmbedder struct {
	router     *NodeRouter
	httpClient *http.Client
	model      string
}

// NewOllamaEmbedder creates an embedder bound to a model.
func NewOllamaEmbedder(router *NodeRouter, model string) *OllamaEmbedder {
	return &OllamaEmbedder{
		router:     router,
		httpClient: &http.Client{Timeout: 60 * time.Second},
		model:      model,
	}
}

type embedRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
}

type embedResponse struct {
	Embedding []float32 `json:"embedding"`
}

// Embed returns the embedding vector for text.
func (e *OllamaEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	body, err := jsonx.Marshal(embedRequest{Model: e.model, Prompt: text})
	if err != nil {
		return nil, nerrors.Wrap(nerrors.KindInternal, "llm.embed", err)
	}
	base := e.router.Pick()
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, base+"/api/embeddings", bytes.NewReader(body))
	if err != nil {
		return nil, nerrors.Wrap(nerrors.KindInternal, "llm.embed", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, nerrors.FromContext("llm.embed", ctx.Err())
		}
		e.router.MarkFailed(base)
		return nil, nerrors.Unavailable("llm.embed", err)
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, nerrors.Unavailable("llm.embed", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, nerrors.Unavailable("llm.embed", errStatus(resp.StatusCode, data))
	}
	var out embedResponse
	if err := jsonx.Unmarshal(data, &out); err != nil {
		return nil, nerrors.Wrap(nerrors.KindBadResponse, "llm.embed", err)
	}
	return out.Embedding, nil
}
