// Package rag provides retrieval result fusion.
package rag

import (
	"sort"
)

// RRF (Reciprocal Rank Fusion) constants
const (
	// RRFDampingFactor is k in 1/(k + rank). k = 60 is a common default.
	RRFDampingFactor = 60

	// DefaultLexicalWeight and DefaultVectorWeight weight the two legs.
	// Vector similarity carries more signal than term overlap when both
	// legs surface the same memory.
	DefaultLexicalWeight = 0.4
	DefaultVectorWeight  = 0.6
)

// Match types record which legs surfaced a fused result.
const (
	MatchFTS    = "fts"
	MatchVector = "vector"
	MatchHybrid = "hybrid"
)

// Candidate is one entry of a ranked result list, best first.
type Candidate struct {
	ID    int64
	Score float64
}

// FusionConfig contains configuration for RRF fusion.
type FusionConfig struct {
	DampingFactor int
	LexicalWeight float64
	VectorWeight  float64
}

// DefaultFusionConfig returns the default fusion configuration.
func DefaultFusionConfig() FusionConfig {
	return FusionConfig{
		DampingFactor: RRFDampingFactor,
		LexicalWeight: DefaultLexicalWeight,
		VectorWeight:  DefaultVectorWeight,
	}
}

// FusedResult is a candidate after rank fusion.
type FusedResult struct {
	ID        int64
	Score     float64
	MatchType string
}

// FuseRanks fuses lexical and vector result lists using Reciprocal Rank
// Fusion: score(d) = Σ weight_i / (k + rank_i(d) + 1), ranks 0-indexed.
// Raw leg scores only determine rank; they never enter the fused score, so
// BM25 and cosine scales need no calibration against each other.
// Results are ordered by fused score descending with ties broken by
// ascending id, which keeps output stable across runs.
func FuseRanks(lexical, vector []Candidate, config FusionConfig) []FusedResult {
	k := config.DampingFactor

	scoreMap := make(map[int64]float64)
	inLexical := make(map[int64]bool)
	inVector := make(map[int64]bool)

	for rank, candidate := range lexical {
		scoreMap[candidate.ID] += config.LexicalWeight / float64(k+rank+1)
		inLexical[candidate.ID] = true
	}
	for rank, candidate := range vector {
		scoreMap[candidate.ID] += config.VectorWeight / float64(k+rank+1)
		inVector[candidate.ID] = true
	}

	results := make([]FusedResult, 0, len(scoreMap))
	for id, score := range scoreMap {
		matchType := MatchHybrid
		switch {
		case inLexical[id] && !inVector[id]:
			matchType = MatchFTS
		case inVector[id] && !inLexical[id]:
			matchType = MatchVector
		}
		results = append(results, FusedResult{
			ID:        id,
			Score:     score,
			MatchType: matchType,
		})
	}

	sort.Slice(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].ID < results[j].ID
	})

	return results
}
