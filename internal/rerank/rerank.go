// Package rerank implements the cascade's fourth and final query layer:
// it blends each full-text candidate's normalized BM25 score with its
// cosine similarity against the query embedding, in the spirit of the
// weighted-fusion combiners common in hybrid search engines, generalized
// here with a hard similarity floor rather than a pure rank blend.
package rerank

import (
	"context"
	"sort"

	"github.com/cascadedocs/cascade/internal/fts"
	"github.com/cascadedocs/cascade/internal/vectorindex"
)

// DefaultAlpha weights the similarity term against the full-text term in
// score_hybrid = alpha*sim + (1-alpha)*score_fts_norm.
const DefaultAlpha = 0.7

// DefaultThreshold (tau) is the minimum cosine similarity a candidate must
// clear to survive, unless its full-text score is itself strong.
const DefaultThreshold = 0.5

// Result is one reranked candidate with both contributing scores exposed,
// matching the cascade's transparency requirement.
type Result struct {
	SectionID int64
	Score     float64
	Sim       float64
	FtsNorm   float64
	Priority  int
}

// Reranker blends fts.Candidate results with vector similarity.
type Reranker struct {
	index      *vectorindex.Index
	alpha      float64
	threshold  float64
	maxResults int
}

// New builds a Reranker. alpha and threshold default to DefaultAlpha and
// DefaultThreshold when zero; maxResults defaults to 5.
func New(index *vectorindex.Index, alpha, threshold float64, maxResults int) *Reranker {
	if alpha == 0 {
		alpha = DefaultAlpha
	}
	if threshold == 0 {
		threshold = DefaultThreshold
	}
	if maxResults <= 0 {
		maxResults = 5
	}
	return &Reranker{index: index, alpha: alpha, threshold: threshold, maxResults: maxResults}
}

// Outcome is the result of a rerank pass: the ranked, threshold-filtered
// result list, and whether the layer declares a miss (only possible when
// the input candidate list was empty).
type Outcome struct {
	Results []Result
	Miss    bool
}

// Rerank blends candidates against queryVector and returns up to
// maxResults, sorted by score_hybrid desc, dropping any candidate whose
// similarity is below threshold unless its full-text score is itself
// strong (score_fts_norm >= threshold).
//
// Sections absent from the VectorIndex receive sim = 0 rather than being
// dropped outright, so a strong BM25 match can still surface without an
// embedding.
func (r *Reranker) Rerank(ctx context.Context, queryVector []float32, candidates []fts.Candidate) (Outcome, error) {
	if len(candidates) == 0 {
		return Outcome{Miss: true}, nil
	}

	ids := make([]int64, len(candidates))
	for i, c := range candidates {
		ids[i] = c.SectionID
	}

	var sims []vectorindex.Match
	if queryVector != nil {
		var err error
		sims, err = r.index.Similarity(queryVector, ids)
		if err != nil {
			return Outcome{}, err
		}
	}
	simByID := make(map[int64]float64, len(sims))
	for _, m := range sims {
		simByID[m.SectionID] = float64(m.Score)
	}

	results := make([]Result, 0, len(candidates))
	for _, c := range candidates {
		sim := simByID[c.SectionID] // 0 when the query had no embedder or the section has none
		if sim < r.threshold && c.NormScore < r.threshold {
			continue
		}
		results = append(results, Result{
			SectionID: c.SectionID,
			Score:     r.alpha*sim + (1-r.alpha)*c.NormScore,
			Sim:       sim,
			FtsNorm:   c.NormScore,
			Priority:  c.Priority,
		})
	}

	sort.SliceStable(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		if results[i].Priority != results[j].Priority {
			return results[i].Priority > results[j].Priority
		}
		return results[i].SectionID < results[j].SectionID
	})

	if len(results) > r.maxResults {
		results = results[:r.maxResults]
	}

	return Outcome{Results: results}, nil
}
