// Package embed turns text into fixed-length vectors, either through a
// hosted OpenAI-compatible embedding service or a local hashing embedder.
package embed

import (
	"context"

	"github.com/rotisserie/eris"
	"github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/llms/openai"
)

// Embedder generates vector embeddings. Implementations are safe for
// concurrent use.
type Embedder interface {
	// EmbedTexts returns one vector per input, in input order.
	EmbedTexts(ctx context.Context, texts []string) ([][]float32, error)
	// EmbedQuery embeds a search query.
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
}

// Config configures the hosted embedder.
type Config struct {
	BaseURL   string
	Key       string
	Model     string
	BatchSize int
}

// OpenAI embeds through an OpenAI-compatible endpoint.
type OpenAI struct {
	embedder embeddings.Embedder
}

// NewOpenAI creates a hosted embedder. An empty key is sent as "none" for
// local OpenAI-compatible services that do not authenticate.
func NewOpenAI(cfg Config) (*OpenAI, error) {
	if cfg.Model == "" {
		return nil, eris.New("embed: model is required")
	}
	token := cfg.Key
	if token == "" {
		token = "none"
	}
	opts := []openai.Option{
		openai.WithToken(token),
		openai.WithEmbeddingModel(cfg.Model),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, openai.WithBaseURL(cfg.BaseURL))
	}
	client, err := openai.New(opts...)
	if err != nil {
		return nil, eris.Wrap(err, "embed: create openai client")
	}

	embOpts := []embeddings.Option{embeddings.WithStripNewLines(true)}
	if cfg.BatchSize > 0 {
		embOpts = append(embOpts, embeddings.WithBatchSize(cfg.BatchSize))
	}
	e, err := embeddings.NewEmbedder(client, embOpts...)
	if err != nil {
		return nil, eris.Wrap(err, "embed: create embedder")
	}
	return &OpenAI{embedder: e}, nil
}

func (o *OpenAI) EmbedTexts(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	vecs, err := o.embedder.EmbedDocuments(ctx, texts)
	if err != nil {
		return nil, eris.Wrapf(err, "embed: embed %d texts", len(texts))
	}
	if len(vecs) != len(texts) {
		return nil, eris.Errorf("embed: expected %d vectors, received %d", len(texts), len(vecs))
	}
	return vecs, nil
}

func (o *OpenAI) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	vec, err := o.embedder.EmbedQuery(ctx, text)
	if err != nil {
		return nil, eris.Wrap(err, "embed: embed query")
	}
	return vec, nil
}
