package rerank

import (
	"context"
	"testing"

	"github.com/cascadedocs/cascade/internal/fts"
	"github.com/cascadedocs/cascade/internal/vectorindex"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRerank_EmptyCandidatesIsMiss(t *testing.T) {
	idx := vectorindex.New(3, "static-v1")
	r := New(idx, 0, 0, 0)

	outcome, err := r.Rerank(context.Background(), []float32{1, 0, 0}, nil)
	require.NoError(t, err)
	assert.True(t, outcome.Miss)
}

func TestRerank_BlendsSimilarityAndFtsScore(t *testing.T) {
	idx := vectorindex.New(3, "static-v1")
	require.NoError(t, idx.Add(1, []float32{1, 0, 0}))

	r := New(idx, 0.7, 0.5, 5)
	candidates := []fts.Candidate{{SectionID: 1, NormScore: 1.0, Priority: 5}}

	outcome, err := r.Rerank(context.Background(), []float32{1, 0, 0}, candidates)
	require.NoError(t, err)
	require.Len(t, outcome.Results, 1)
	assert.InDelta(t, 1.0, outcome.Results[0].Sim, 1e-6)
	assert.InDelta(t, 0.7*1.0+0.3*1.0, outcome.Results[0].Score, 1e-6)
}

func TestRerank_DropsLowSimilarityWhenFtsAlsoWeak(t *testing.T) {
	idx := vectorindex.New(3, "static-v1")
	require.NoError(t, idx.Add(1, []float32{0, 1, 0})) // orthogonal to query

	r := New(idx, 0.7, 0.5, 5)
	candidates := []fts.Candidate{{SectionID: 1, NormScore: 0.2, Priority: 5}}

	outcome, err := r.Rerank(context.Background(), []float32{1, 0, 0}, candidates)
	require.NoError(t, err)
	assert.Empty(t, outcome.Results)
}

func TestRerank_SurvivesLowSimilarityWhenFtsStrong(t *testing.T) {
	idx := vectorindex.New(3, "static-v1")
	require.NoError(t, idx.Add(1, []float32{0, 1, 0})) // orthogonal to query

	r := New(idx, 0.7, 0.5, 5)
	candidates := []fts.Candidate{{SectionID: 1, NormScore: 0.9, Priority: 5}}

	outcome, err := r.Rerank(context.Background(), []float32{1, 0, 0}, candidates)
	require.NoError(t, err)
	require.Len(t, outcome.Results, 1, "a strong BM25 match should survive a weak similarity score")
}

func TestRerank_SectionMissingFromIndexGetsNeutralSimilarity(t *testing.T) {
	idx := vectorindex.New(3, "static-v1")
	r := New(idx, 0.7, 0.5, 5)
	candidates := []fts.Candidate{{SectionID: 99, NormScore: 0.9, Priority: 5}}

	outcome, err := r.Rerank(context.Background(), []float32{1, 0, 0}, candidates)
	require.NoError(t, err)
	require.Len(t, outcome.Results, 1)
	assert.Equal(t, float64(0), outcome.Results[0].Sim)
}

func TestRerank_CapsAtMaxResults(t *testing.T) {
	idx := vectorindex.New(3, "static-v1")
	require.NoError(t, idx.Add(1, []float32{1, 0, 0}))
	require.NoError(t, idx.Add(2, []float32{1, 0, 0}))
	require.NoError(t, idx.Add(3, []float32{1, 0, 0}))

	r := New(idx, 0.7, 0.5, 2)
	candidates := []fts.Candidate{
		{SectionID: 1, NormScore: 1.0, Priority: 5},
		{SectionID: 2, NormScore: 1.0, Priority: 5},
		{SectionID: 3, NormScore: 1.0, Priority: 5},
	}

	outcome, err := r.Rerank(context.Background(), []float32{1, 0, 0}, candidates)
	require.NoError(t, err)
	assert.Len(t, outcome.Results, 2)
}
