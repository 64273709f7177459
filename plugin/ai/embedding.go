package ai

import (
	"context"
	"math"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/sashabaranov/go-openai"
)

// ErrUnavailable marks embedding failures that should degrade retrieval to
// lexical-only instead of failing the whole operation.
var ErrUnavailable = errors.New("embedding service unavailable")

// EmbeddingService is the vector embedding service interface.
type EmbeddingService interface {
	// Embed generates a vector for a single text.
	Embed(ctx context.Context, text string) ([]float32, error)

	// EmbedBatch generates vectors for multiple texts.
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)

	// Dimensions returns the vector dimension.
	Dimensions() int

	// Model returns the model identifier vectors are produced with.
	Model() string
}

const (
	embedMaxRetries = 3
)

type embeddingService struct {
	client     *openai.Client
	model      string
	dimensions int
}

// NewEmbeddingService creates a new EmbeddingService.
func NewEmbeddingService(cfg *EmbeddingConfig) (EmbeddingService, error) {
	switch cfg.Provider {
	case "mock":
		return NewHashEmbedder(cfg.Dimensions), nil

	case "openai":
		// Covers any OpenAI-compatible server via BaseURL.
		clientConfig := openai.DefaultConfig(cfg.APIKey)
		if cfg.BaseURL != "" {
			clientConfig.BaseURL = cfg.BaseURL
		}
		return &embeddingService{
			client:     openai.NewClientWithConfig(clientConfig),
			model:      cfg.Model,
			dimensions: cfg.Dimensions,
		}, nil

	default:
		return nil, errors.Errorf("unsupported embedding provider: %s", cfg.Provider)
	}
}

func (s *embeddingService) Embed(ctx context.Context, text string) ([]float32, error) {
	vectors, err := s.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	if len(vectors) == 0 {
		return nil, errors.Wrap(ErrUnavailable, "empty embedding result")
	}
	return vectors[0], nil
}

func (s *embeddingService) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, errors.New("no texts provided for embedding")
	}

	req := openai.EmbeddingRequest{
		Input:      texts,
		Model:      openai.EmbeddingModel(s.model),
		Dimensions: s.dimensions,
	}

	var resp openai.EmbeddingResponse
	var err error
	for attempt := 0; attempt < embedMaxRetries; attempt++ {
		if attempt > 0 {
			backoff := time.Duration(math.Pow(2, float64(attempt))) * time.Second
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(backoff):
			}
		}
		resp, err = s.client.CreateEmbeddings(ctx, req)
		if err == nil {
			break
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
	}
	if err != nil {
		return nil, errors.Wrapf(ErrUnavailable, "create embeddings failed: %v", err)
	}

	if len(resp.Data) == 0 {
		return nil, errors.Wrap(ErrUnavailable, "empty embedding response")
	}

	vectors := make([][]float32, len(resp.Data))
	for i, data := range resp.Data {
		vectors[i] = data.Embedding
	}

	return vectors, nil
}

func (s *embeddingService) Dimensions() int {
	return s.dimensions
}

func (s *embeddingService) Model() string {
	return s.model
}

// CombineForEmbedding builds the canonical text a memory is embedded from.
// The same function runs at write time and at query time, so stored and
// query vectors always compare like with like.
func CombineForEmbedding(title, content string, facts, concepts []string) string {
	parts := make([]string, 0, 3+len(facts))
	if title != "" {
		parts = append(parts, title)
	}
	if content != "" {
		parts = append(parts, content)
	}
	parts = append(parts, facts...)
	if len(concepts) > 0 {
		parts = append(parts, "Concepts: "+strings.Join(concepts, ", "))
	}
	return strings.Join(parts, "\n")
}
