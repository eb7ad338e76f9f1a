// Package fts implements the cascade's third query layer: a BM25 full-text
// search against the Store's sections_fts index, with scores normalized
// into [0,1] for blending in the hybrid reranker.
package fts

import (
	"context"

	"github.com/cascadedocs/cascade/internal/store"
)

// DefaultCandidateCap is N_FTS, the default number of candidates returned
// per query (spec default: 20).
const DefaultCandidateCap = 20

// HitThreshold is the normalized-score floor above which this layer
// declares a hit, separating real BM25 matches from near-zero incidental
// hits.
const HitThreshold = 0.15

// Candidate is one normalized full-text search result.
type Candidate struct {
	SectionID int64
	Score     float64 // raw BM25 score, sign-corrected (higher = better)
	NormScore float64 // 1/(1+rank), in (0,1]
	Priority  int
}

// Searcher implements the full-text layer over a Store.
type Searcher struct {
	store        store.Store
	candidateCap int
}

// New builds an fts Searcher. candidateCap bounds how many candidates are
// requested from the Store per query (spec default: DefaultCandidateCap).
func New(s store.Store, candidateCap int) *Searcher {
	if candidateCap <= 0 {
		candidateCap = DefaultCandidateCap
	}
	return &Searcher{store: s, candidateCap: candidateCap}
}

// Result is the outcome of an fts search.
type Result struct {
	Candidates []Candidate
	Hit        bool
}

// Search runs query against the Store's full-text index, optionally
// scoped to docName, and declares a hit iff any candidate's normalized
// score clears HitThreshold.
func (s *Searcher) Search(ctx context.Context, query string, docName string) (Result, error) {
	raw, err := s.store.SearchFTS(ctx, query, docName, s.candidateCap)
	if err != nil {
		return Result{}, err
	}

	candidates := make([]Candidate, len(raw))
	hit := false
	for rank, c := range raw {
		norm := 1.0 / float64(1+rank)
		candidates[rank] = Candidate{
			SectionID: c.SectionID,
			Score:     c.Score,
			NormScore: norm,
			Priority:  c.Priority,
		}
		if norm >= HitThreshold {
			hit = true
		}
	}

	return Result{Candidates: candidates, Hit: hit}, nil
}
