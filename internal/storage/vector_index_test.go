package storage

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVectorIndexUpsertAndQuerySimilarity(t *testing.T) {
	h := NewTestHandle(t, 4)

	rows := []Embedding{
		{ID: 1, Embedding: []float32{1, 0, 0, 0}},
		{ID: 2, Embedding: []float32{0, 1, 0, 0}},
		{ID: 3, Embedding: []float32{0.9, 0.1, 0, 0}},
	}

	tx, err := h.DB.Begin()
	require.NoError(t, err)
	require.NoError(t, UpsertVectorIndex(tx, 4, rows))
	require.NoError(t, tx.Commit())

	results, err := QueryVectorSimilarity(h.DB, []float32{1, 0, 0, 0}, 2)
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, int64(1), results[0].DataID)
	assert.Equal(t, int64(3), results[1].DataID)

	stats, err := GetVectorIndexStats(h.DB, 4)
	require.NoError(t, err)
	assert.Equal(t, 3, stats.TotalVectors)
}

func TestUpsertVectorIndexSkipsMismatchedDimensions(t *testing.T) {
	h := NewTestHandle(t, 4)

	tx, err := h.DB.Begin()
	require.NoError(t, err)
	require.NoError(t, UpsertVectorIndex(tx, 4, []Embedding{
		{ID: 1, Embedding: []float32{1, 2, 3}},
	}))
	require.NoError(t, tx.Commit())

	stats, err := GetVectorIndexStats(h.DB, 4)
	require.NoError(t, err)
	assert.Equal(t, 0, stats.TotalVectors)
}

func TestDeleteVectorsByDataIDs(t *testing.T) {
	h := NewTestHandle(t, 4)

	tx, err := h.DB.Begin()
	require.NoError(t, err)
	require.NoError(t, UpsertVectorIndex(tx, 4, []Embedding{
		{ID: 1, Embedding: []float32{1, 0, 0, 0}},
		{ID: 2, Embedding: []float32{0, 1, 0, 0}},
	}))
	require.NoError(t, DeleteVectorsByDataIDs(tx, []int64{1}))
	require.NoError(t, tx.Commit())

	stats, err := GetVectorIndexStats(h.DB, 4)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.TotalVectors)
}
