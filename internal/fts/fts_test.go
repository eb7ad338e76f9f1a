package fts

import (
	"context"
	"testing"

	"github.com/cascadedocs/cascade/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seedStore(t *testing.T) store.Store {
	t.Helper()
	s, err := store.NewSQLiteStore("", 0)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	_, err = s.UpsertDocument(context.Background(), store.Document{Name: "react", DisplayName: "React"}, []store.Section{
		{Title: "useEffect", Path: "hooks/use-effect", Content: "useEffect lets you synchronize a component with an external system."},
		{Title: "useState", Path: "hooks/use-state", Content: "useState is a hook that lets you add a state variable."},
	})
	require.NoError(t, err)
	return s
}

func TestSearch_MatchDeclaresHit(t *testing.T) {
	s := seedStore(t)
	searcher := New(s, DefaultCandidateCap)

	result, err := searcher.Search(context.Background(), "synchronize external system", "")
	require.NoError(t, err)
	require.NotEmpty(t, result.Candidates)
	assert.True(t, result.Hit)
	assert.InDelta(t, 1.0, result.Candidates[0].NormScore, 1e-9)
}

func TestSearch_NoMatchesIsNotHit(t *testing.T) {
	s := seedStore(t)
	searcher := New(s, DefaultCandidateCap)

	result, err := searcher.Search(context.Background(), "quantum entanglement particle physics", "")
	require.NoError(t, err)
	assert.Empty(t, result.Candidates)
	assert.False(t, result.Hit)
}

func TestSearch_NormScoresDecreaseByRank(t *testing.T) {
	s := seedStore(t)
	searcher := New(s, DefaultCandidateCap)

	result, err := searcher.Search(context.Background(), "lets you", "")
	require.NoError(t, err)
	require.Len(t, result.Candidates, 2)
	assert.Greater(t, result.Candidates[0].NormScore, result.Candidates[1].NormScore)
}

func TestNew_DefaultsCandidateCapWhenNonPositive(t *testing.T) {
	s := seedStore(t)
	searcher := New(s, 0)
	assert.Equal(t, DefaultCandidateCap, searcher.candidateCap)
}
