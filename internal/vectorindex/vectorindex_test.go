package vectorindex

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func unit(v []float32) []float32 {
	out := make([]float32, len(v))
	copy(out, v)
	normalize(out)
	return out
}

func TestAdd_RejectsDimensionMismatch(t *testing.T) {
	idx := New(4, "static-v1")
	err := idx.Add(1, []float32{1, 2, 3})
	require.Error(t, err)
	assert.IsType(t, ErrDimensionMismatch{}, err)
}

func TestAdd_RejectsDuplicateSection(t *testing.T) {
	idx := New(3, "static-v1")
	require.NoError(t, idx.Add(1, []float32{1, 0, 0}))

	err := idx.Add(1, []float32{0, 1, 0})
	require.Error(t, err)
	assert.IsType(t, ErrDuplicateSection{}, err)
}

func TestSimilarity_IdenticalVectorScoresOne(t *testing.T) {
	idx := New(3, "static-v1")
	require.NoError(t, idx.Add(1, []float32{1, 0, 0}))

	matches, err := idx.Similarity([]float32{1, 0, 0}, []int64{1})
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.InDelta(t, 1.0, matches[0].Score, 1e-6)
}

func TestSimilarity_UnknownCandidateGetsNeutralZero(t *testing.T) {
	idx := New(3, "static-v1")
	require.NoError(t, idx.Add(1, []float32{1, 0, 0}))

	matches, err := idx.Similarity([]float32{1, 0, 0}, []int64{1, 99})
	require.NoError(t, err)
	require.Len(t, matches, 2)
	assert.Equal(t, int64(99), matches[1].SectionID)
	assert.Equal(t, float32(0), matches[1].Score)
}

func TestRemoveMany_TombstonesAndExcludesFromSimilarity(t *testing.T) {
	idx := New(3, "static-v1")
	require.NoError(t, idx.Add(1, []float32{1, 0, 0}))
	require.NoError(t, idx.Add(2, []float32{0, 1, 0}))

	idx.RemoveMany([]int64{1})
	assert.Equal(t, 1, idx.Len())

	matches, err := idx.Similarity([]float32{1, 0, 0}, []int64{1, 2})
	require.NoError(t, err)
	assert.Equal(t, float32(0), matches[0].Score, "removed section should read as absent, not stale")
}

func TestCompact_ReclaimsTombstonedRows(t *testing.T) {
	idx := New(3, "static-v1")
	require.NoError(t, idx.Add(1, []float32{1, 0, 0}))
	require.NoError(t, idx.Add(2, []float32{0, 1, 0}))
	idx.RemoveMany([]int64{1})

	assert.InDelta(t, 0.5, idx.TombstoneFraction(), 1e-9)

	idx.Compact()
	assert.Equal(t, float64(0), idx.TombstoneFraction())
	assert.Equal(t, 1, idx.Len())

	matches, err := idx.Similarity([]float32{0, 1, 0}, []int64{2})
	require.NoError(t, err)
	assert.InDelta(t, 1.0, matches[0].Score, 1e-6)
}

func TestPersistAndLoad_RoundTrips(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "vectors")

	idx := New(3, "static-v1")
	require.NoError(t, idx.Add(10, []float32{1, 1, 0}))
	require.NoError(t, idx.Add(20, []float32{0, 1, 1}))

	require.NoError(t, idx.Persist(path))

	loaded, err := Load(path, 3, "static-v1")
	require.NoError(t, err)
	assert.Equal(t, 2, loaded.Len())

	matches, err := loaded.Similarity(unit([]float32{1, 1, 0}), []int64{10, 20})
	require.NoError(t, err)
	assert.InDelta(t, 1.0, matches[0].Score, 1e-5)
}

func TestLoad_RejectsMismatchedEmbedderModel(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "vectors")

	idx := New(3, "static-v1")
	require.NoError(t, idx.Add(1, []float32{1, 0, 0}))
	require.NoError(t, idx.Persist(path))

	_, err := Load(path, 3, "static-v2")
	require.Error(t, err)
}

func TestLoad_RejectsMismatchedDimension(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "vectors")

	idx := New(3, "static-v1")
	require.NoError(t, idx.Add(1, []float32{1, 0, 0}))
	require.NoError(t, idx.Persist(path))

	_, err := Load(path, 4, "static-v1")
	require.Error(t, err)
}
