package extraction

import (
	"context"
	"testing"

	"github.com/panoptikon-go/panoptikon/internal/extractors"
	"github.com/panoptikon-go/panoptikon/internal/inference"
	"github.com/panoptikon-go/panoptikon/internal/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRegistry(t *testing.T, h *storage.Handle) *extractors.Registry {
	t.Helper()
	meta := &inference.Metadata{
		Groups: map[string]inference.GroupMetadata{
			"wd-tags": {
				InferenceIDs: map[string]inference.InferenceIDMetadata{
					"wd-swinv2-tagger-v3": {Name: "WD Tagger", DataType: "tags", DefaultBatchSize: 8},
				},
			},
		},
	}
	registry, err := extractors.NewRegistry(inference.NewMock(meta, nil), storage.NewReader(h.DB))
	require.NoError(t, err)
	require.NoError(t, registry.Refresh(context.Background()))
	return registry
}

func TestDeleteSetterDataRemovesItemDataAndOrphanTags(t *testing.T) {
	h := storage.NewTestHandle(t, 0)
	registry := newTestRegistry(t, h)
	w := storage.NewWriter(h.DB)

	tx, err := h.DB.Begin()
	require.NoError(t, err)
	itemID, err := w.EnsureItem(tx, storage.Item{SHA256: "del1", Type: "image/png"})
	require.NoError(t, err)
	setterID, err := w.EnsureSetter(tx, "tags", "wd-swinv2-tagger-v3")
	require.NoError(t, err)
	require.NoError(t, w.WriteTags(tx, itemID, setterID, map[storage.TagRef]float64{
		{Namespace: "wd:general", Name: "cat"}: 0.9,
	}))
	require.NoError(t, tx.Commit())

	err = DeleteSetterData(h.DB, storage.NewReader(h.DB), registry, "wd-tags", "wd-swinv2-tagger-v3")
	require.NoError(t, err)

	var tagItemCount, tagCount int
	require.NoError(t, h.DB.QueryRow("SELECT COUNT(*) FROM tags_items").Scan(&tagItemCount))
	require.NoError(t, h.DB.QueryRow("SELECT COUNT(*) FROM tags").Scan(&tagCount))
	assert.Equal(t, 0, tagItemCount)
	assert.Equal(t, 0, tagCount)
}

func TestDeleteSetterDataUnknownInferenceIDErrors(t *testing.T) {
	h := storage.NewTestHandle(t, 0)
	registry := newTestRegistry(t, h)

	err := DeleteSetterData(h.DB, storage.NewReader(h.DB), registry, "wd-tags", "nonexistent")
	assert.Error(t, err)
}

func TestDeleteSetterDataMissingSetterErrors(t *testing.T) {
	h := storage.NewTestHandle(t, 0)
	registry := newTestRegistry(t, h)

	// Setter never written by an extraction run, so GetSetterByName misses.
	err := DeleteSetterData(h.DB, storage.NewReader(h.DB), registry, "wd-tags", "wd-swinv2-tagger-v3")
	assert.Error(t, err)
}
