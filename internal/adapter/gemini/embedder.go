package gemini

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"
)

type Embedder struct {
	client *genai.Client
	model  string
	dim    int
}

// NewEmbedder wraps the Gemini embedding model. dim is the expected vector
// length; vectors of any other length are rejected, since mixing dimensions
// in one vector class breaks nearVector search. dim <= 0 disables the check.
func NewEmbedder(ctx context.Context, apiKey, model string, dim int, opts ...option.ClientOption) (*Embedder, error) {
	opts = append(opts, option.WithAPIKey(apiKey))
	client, err := genai.NewClient(ctx, opts...)
	if err != nil {
		return nil, err
	}
	return &Embedder{client: client, model: model, dim: dim}, nil
}

func (e *Embedder) Embed(ctx context.Context, text string) ([]float32, error) {
	slog.DebugContext(ctx, "embedding content", "model", e.model, "length", len(text))
	em := e.client.EmbeddingModel(e.model)
	res, err := em.EmbedContent(ctx, genai.Text(text))
	if err != nil {
		slog.ErrorContext(ctx, "embedding failed", "error", err)
		return nil, err
	}
	if res.Embedding == nil {
		return nil, nil
	}
	if err := checkDimension(res.Embedding.Values, e.dim); err != nil {
		slog.ErrorContext(ctx, "rejecting embedding", "model", e.model, "error", err)
		return nil, err
	}
	return res.Embedding.Values, nil
}

func checkDimension(values []float32, dim int) error {
	if dim > 0 && len(values) != dim {
		return fmt.Errorf("embedding dimension mismatch: got %d, want %d", len(values), dim)
	}
	return nil
}

func (e *Embedder) Close() error {
	return e.client.Close()
}
