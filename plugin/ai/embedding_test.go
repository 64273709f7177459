package ai

import (
	"context"
	"math"
	"testing"
)

// TestNewEmbeddingService tests service creation.
func TestNewEmbeddingService(t *testing.T) {
	tests := []struct {
		name        string
		cfg         *EmbeddingConfig
		expectError bool
	}{
		{
			name: "OpenAI config",
			cfg: &EmbeddingConfig{
				Provider:   "openai",
				Model:      "text-embedding-3-small",
				Dimensions: 768,
				APIKey:     "test-key",
				BaseURL:    "https://api.openai.com/v1",
			},
			expectError: false,
		},
		{
			name: "OpenAI-compatible local server",
			cfg: &EmbeddingConfig{
				Provider:   "openai",
				Model:      "nomic-embed-text",
				Dimensions: 768,
				BaseURL:    "http://localhost:11434/v1",
			},
			expectError: false,
		},
		{
			name: "Mock config",
			cfg: &EmbeddingConfig{
				Provider:   "mock",
				Dimensions: 8,
			},
			expectError: false,
		},
		{
			name: "Unsupported provider",
			cfg: &EmbeddingConfig{
				Provider: "unsupported",
			},
			expectError: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewEmbeddingService(tt.cfg)
			if (err != nil) != tt.expectError {
				t.Errorf("NewEmbeddingService() error = %v, expectError %v", err, tt.expectError)
			}
		})
	}
}

// TestEmbeddingService_Dimensions tests Dimensions method.
func TestEmbeddingService_Dimensions(t *testing.T) {
	cfg := &EmbeddingConfig{
		Provider:   "openai",
		Model:      "text-embedding-3-small",
		Dimensions: 768,
		APIKey:     "test-key",
	}

	service, err := NewEmbeddingService(cfg)
	if err != nil {
		t.Fatalf("NewEmbeddingService() error = %v", err)
	}

	if service.Dimensions() != 768 {
		t.Errorf("Dimensions() = %d, want 768", service.Dimensions())
	}
	if service.Model() != "text-embedding-3-small" {
		t.Errorf("Model() = %q, want text-embedding-3-small", service.Model())
	}
}

// TestHashEmbedder_Deterministic verifies identical input yields identical vectors.
func TestHashEmbedder_Deterministic(t *testing.T) {
	embedder := NewHashEmbedder(16)
	ctx := context.Background()

	first, err := embedder.Embed(ctx, "memory subsystem retrieval")
	if err != nil {
		t.Fatalf("Embed() failed: %v", err)
	}
	second, err := embedder.Embed(ctx, "memory subsystem retrieval")
	if err != nil {
		t.Fatalf("Embed() failed: %v", err)
	}

	if len(first) != 16 {
		t.Fatalf("Embed() returned vector of length %d, want 16", len(first))
	}
	for i := range first {
		if first[i] != second[i] {
			t.Fatalf("vectors differ at %d: %v vs %v", i, first[i], second[i])
		}
	}
}

// TestHashEmbedder_UnitNorm verifies vectors are L2-normalized.
func TestHashEmbedder_UnitNorm(t *testing.T) {
	embedder := NewHashEmbedder(32)

	for _, text := range []string{"one word", "a longer sentence about databases", ""} {
		vector, err := embedder.Embed(context.Background(), text)
		if err != nil {
			t.Fatalf("Embed(%q) failed: %v", text, err)
		}
		var norm float64
		for _, v := range vector {
			norm += float64(v) * float64(v)
		}
		if math.Abs(norm-1) > 1e-5 {
			t.Errorf("Embed(%q) norm = %v, want 1", text, norm)
		}
	}
}

// TestHashEmbedder_SimilarityOrdering verifies shared vocabulary produces
// higher similarity than disjoint vocabulary.
func TestHashEmbedder_SimilarityOrdering(t *testing.T) {
	embedder := NewHashEmbedder(64)
	ctx := context.Background()

	query, _ := embedder.Embed(ctx, "sqlite database migration")
	related, _ := embedder.Embed(ctx, "database migration applied to sqlite schema")
	unrelated, _ := embedder.Embed(ctx, "weekend jogging plan in the park")

	dot := func(a, b []float32) float64 {
		var sum float64
		for i := range a {
			sum += float64(a[i]) * float64(b[i])
		}
		return sum
	}

	if dot(query, related) <= dot(query, unrelated) {
		t.Errorf("related similarity %v should exceed unrelated %v",
			dot(query, related), dot(query, unrelated))
	}
}

// TestHashEmbedder_EmbedBatch tests batch embedding.
func TestHashEmbedder_EmbedBatch(t *testing.T) {
	embedder := NewHashEmbedder(8)

	vectors, err := embedder.EmbedBatch(context.Background(), []string{"first", "second", "third"})
	if err != nil {
		t.Fatalf("EmbedBatch() failed: %v", err)
	}
	if len(vectors) != 3 {
		t.Fatalf("EmbedBatch() returned %d vectors, want 3", len(vectors))
	}
	for i, vector := range vectors {
		if len(vector) != 8 {
			t.Errorf("vector %d has length %d, want 8", i, len(vector))
		}
	}
}

// TestCombineForEmbedding tests the embedding input composition.
func TestCombineForEmbedding(t *testing.T) {
	combined := CombineForEmbedding("Title", "Body text", []string{"fact one", "fact two"}, []string{"database", "search"})
	want := "Title\nBody text\nfact one\nfact two\nConcepts: database, search"
	if combined != want {
		t.Errorf("CombineForEmbedding() = %q, want %q", combined, want)
	}

	// Empty title is skipped, not serialized as a blank line.
	combined = CombineForEmbedding("", "Body only", nil, nil)
	if combined != "Body only" {
		t.Errorf("CombineForEmbedding() = %q, want %q", combined, "Body only")
	}

	// Deterministic for identical input.
	again := CombineForEmbedding("Title", "Body text", []string{"fact one", "fact two"}, []string{"database", "search"})
	if again != want {
		t.Errorf("CombineForEmbedding() is not deterministic: %q", again)
	}
}
