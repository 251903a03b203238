package storage

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEnsureItemIsIdempotentBySHA256(t *testing.T) {
	h := NewTestHandle(t, 0)
	w := NewWriter(h.DB)

	tx, err := h.DB.Begin()
	require.NoError(t, err)
	defer tx.Rollback()

	id1, err := w.EnsureItem(tx, Item{SHA256: "deadbeef", Type: "image/png", Size: 10})
	require.NoError(t, err)

	id2, err := w.EnsureItem(tx, Item{SHA256: "deadbeef", Type: "image/png", Size: 10})
	require.NoError(t, err)

	assert.Equal(t, id1, id2)
}

func TestEnsureFileUpsertsByPath(t *testing.T) {
	h := NewTestHandle(t, 0)
	w := NewWriter(h.DB)

	tx, err := h.DB.Begin()
	require.NoError(t, err)
	defer tx.Rollback()

	itemID, err := w.EnsureItem(tx, Item{SHA256: "abc123", Type: "text/plain"})
	require.NoError(t, err)

	_, err = w.EnsureFile(tx, File{ItemID: itemID, Path: "/media/a.txt", Filename: "a.txt", LastModified: "2026-01-01T00:00:00Z"})
	require.NoError(t, err)

	_, err = w.EnsureFile(tx, File{ItemID: itemID, Path: "/media/a.txt", Filename: "a.txt", LastModified: "2026-02-01T00:00:00Z"})
	require.NoError(t, err)

	require.NoError(t, tx.Commit())

	reader := NewReader(h.DB)
	files, err := reader.ListFilesForItem(itemID)
	require.NoError(t, err)
	require.Len(t, files, 1)
	assert.Equal(t, "2026-02-01T00:00:00Z", files[0].LastModified)
}

func TestWriteTagsCreatesTagsAndLinks(t *testing.T) {
	h := NewTestHandle(t, 0)
	w := NewWriter(h.DB)

	tx, err := h.DB.Begin()
	require.NoError(t, err)

	itemID, err := w.EnsureItem(tx, Item{SHA256: "tagitem", Type: "image/jpeg"})
	require.NoError(t, err)
	setterID, err := w.EnsureSetter(tx, "tags", "wd14")
	require.NoError(t, err)

	err = w.WriteTags(tx, itemID, setterID, map[TagRef]float64{
		{Namespace: "danbooru", Name: "cat"}: 0.9,
		{Namespace: "danbooru", Name: "dog"}: 0.4,
	})
	require.NoError(t, err)
	require.NoError(t, tx.Commit())

	var tagCount int
	require.NoError(t, h.DB.QueryRow("SELECT COUNT(*) FROM tags").Scan(&tagCount))
	assert.Equal(t, 2, tagCount)

	var linkCount int
	require.NoError(t, h.DB.QueryRow("SELECT COUNT(*) FROM tags_items WHERE item_id = ?", itemID).Scan(&linkCount))
	assert.Equal(t, 2, linkCount)
}

func TestDeleteSetterDataCollectsOrphanTags(t *testing.T) {
	h := NewTestHandle(t, 0)
	w := NewWriter(h.DB)

	tx, err := h.DB.Begin()
	require.NoError(t, err)

	itemID, err := w.EnsureItem(tx, Item{SHA256: "orphan", Type: "image/jpeg"})
	require.NoError(t, err)
	setterID, err := w.EnsureSetter(tx, "tags", "wd14")
	require.NoError(t, err)

	require.NoError(t, w.WriteTags(tx, itemID, setterID, map[TagRef]float64{
		{Namespace: "danbooru", Name: "onlytag"}: 1.0,
	}))
	require.NoError(t, tx.Commit())

	tx, err = h.DB.Begin()
	require.NoError(t, err)
	require.NoError(t, w.DeleteSetterData(tx, setterID))
	require.NoError(t, tx.Commit())

	var tagCount int
	require.NoError(t, h.DB.QueryRow("SELECT COUNT(*) FROM tags").Scan(&tagCount))
	assert.Equal(t, 0, tagCount)
}

func TestJobLogLifecycle(t *testing.T) {
	h := NewTestHandle(t, 0)
	w := NewWriter(h.DB)

	tx, err := h.DB.Begin()
	require.NoError(t, err)
	setterID, err := w.EnsureSetter(tx, "tags", "wd14")
	require.NoError(t, err)

	jobID, err := w.StartJobLog(tx, setterID, 5)
	require.NoError(t, err)
	require.NoError(t, w.FinalizeJobLog(tx, jobID, 4, 1, "completed"))
	require.NoError(t, tx.Commit())

	var status string
	var processed, failed int
	require.NoError(t, h.DB.QueryRow(
		"SELECT status, processed_items, failed_items FROM extraction_log WHERE id = ?", jobID,
	).Scan(&status, &processed, &failed))
	assert.Equal(t, "completed", status)
	assert.Equal(t, 4, processed)
	assert.Equal(t, 1, failed)
}

func TestGroupSettingsRoundTrip(t *testing.T) {
	h := NewTestHandle(t, 0)
	w := NewWriter(h.DB)
	reader := NewReader(h.DB)

	batchSize := 32
	threshold := 0.5

	tx, err := h.DB.Begin()
	require.NoError(t, err)
	require.NoError(t, w.SetGroupSettings(tx, GroupSettings{GroupName: "clip", BatchSize: &batchSize, Threshold: &threshold}))
	require.NoError(t, tx.Commit())

	gs, err := reader.GetGroupSettings("clip")
	require.NoError(t, err)
	require.NotNil(t, gs.BatchSize)
	assert.Equal(t, 32, *gs.BatchSize)
	require.NotNil(t, gs.Threshold)
	assert.Equal(t, 0.5, *gs.Threshold)
}

func TestGetGroupSettingsReturnsEmptyForUnknownGroup(t *testing.T) {
	h := NewTestHandle(t, 0)
	reader := NewReader(h.DB)

	gs, err := reader.GetGroupSettings("nonexistent")
	require.NoError(t, err)
	assert.Nil(t, gs.BatchSize)
	assert.Nil(t, gs.Threshold)
}
