package pql

import (
	"context"
	"testing"

	"github.com/panoptikon-go/panoptikon/internal/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// These tests actually execute the compiled SQL against a real schema,
// unlike compiler_test.go's SQL-text assertions - the item-data join shape
// (contextFrom/dataIDSelect) only fails at execution time, not at compile
// time, since squirrel never validates column existence.

func seedFTSItem(t *testing.T, h *storage.Handle, sha256, mime, path, text string) int64 {
	t.Helper()
	w := storage.NewWriter(h.DB)
	tx, err := h.DB.Begin()
	require.NoError(t, err)
	itemID, err := w.EnsureItem(tx, storage.Item{SHA256: sha256, Type: mime})
	require.NoError(t, err)
	_, err = w.EnsureFile(tx, storage.File{ItemID: itemID, Path: path, Filename: path})
	require.NoError(t, err)
	setterID, err := w.EnsureSetter(tx, "text", "captioner")
	require.NoError(t, err)
	dataID, err := w.InsertItemData(tx, storage.ItemData{ItemID: itemID, SetterID: setterID, DataType: "text"})
	require.NoError(t, err)
	require.NoError(t, w.WriteExtractedText(tx, storage.ExtractedText{ID: dataID, Text: text, TextLength: len(text)}))
	require.NoError(t, tx.Commit())
	return itemID
}

func TestExecuteFTSFilterFindsMatchingText(t *testing.T) {
	h := storage.NewTestHandle(t, 0)
	itemID := seedFTSItem(t, h, "fts1", "image/png", "/media/beach.png", "a sunset over the bay")

	c := NewCompiler(h.DB)
	result, err := c.Execute(context.Background(), SearchQuery{
		Query: &FTSFilter{Text: "sunset"},
	})
	require.NoError(t, err)
	require.Len(t, result.Results, 1)
	assert.Equal(t, itemID, result.Results[0].ItemID)
}

func TestExecuteFTSFilterExcludesNonMatchingText(t *testing.T) {
	h := storage.NewTestHandle(t, 0)
	seedFTSItem(t, h, "fts2", "image/png", "/media/forest.png", "a quiet forest trail")

	c := NewCompiler(h.DB)
	result, err := c.Execute(context.Background(), SearchQuery{
		Query: &FTSFilter{Text: "sunset"},
	})
	require.NoError(t, err)
	assert.Empty(t, result.Results)
}

// TestExecuteAndMimeThenFTSFiltersEntersItemDataOnFirstFilter guards the
// And(MimeFilter, FTSFilter) regression named in the item-data join review:
// MimeFilter compiles first and projects only (file_id, item_id); FTSFilter
// must still be able to enter item-data territory from that CTE.
func TestExecuteAndMimeThenFTSFiltersEntersItemDataOnFirstFilter(t *testing.T) {
	h := storage.NewTestHandle(t, 0)
	itemID := seedFTSItem(t, h, "fts3", "image/png", "/media/sunset2.png", "a golden sunset")

	c := NewCompiler(h.DB)
	result, err := c.Execute(context.Background(), SearchQuery{
		Query: &And{Children: []Node{
			&MimeFilter{Prefixes: []string{"image/"}},
			&FTSFilter{Text: "sunset"},
		}},
	})
	require.NoError(t, err)
	require.Len(t, result.Results, 1)
	assert.Equal(t, itemID, result.Results[0].ItemID)
}

func TestExecutePathFTSFilterMatchesFilename(t *testing.T) {
	h := storage.NewTestHandle(t, 0)
	w := storage.NewWriter(h.DB)
	tx, err := h.DB.Begin()
	require.NoError(t, err)
	itemID, err := w.EnsureItem(tx, storage.Item{SHA256: "pathfts1", Type: "image/png"})
	require.NoError(t, err)
	_, err = w.EnsureFile(tx, storage.File{ItemID: itemID, Path: "/media/vacation.png", Filename: "vacation.png"})
	require.NoError(t, err)
	require.NoError(t, tx.Commit())

	c := NewCompiler(h.DB)
	result, err := c.Execute(context.Background(), SearchQuery{
		Query: &PathFTSFilter{Query: "vacation", OnlyFilename: true},
	})
	require.NoError(t, err)
	require.Len(t, result.Results, 1)
	assert.Equal(t, itemID, result.Results[0].ItemID)
}

func TestExecuteFTSCountQuerySkipsRankButCounts(t *testing.T) {
	h := storage.NewTestHandle(t, 0)
	seedFTSItem(t, h, "fts4", "image/png", "/media/sunset3.png", "another sunset shot")

	c := NewCompiler(h.DB)
	result, err := c.Execute(context.Background(), SearchQuery{
		Query: &FTSFilter{Text: "sunset"},
		Count: true,
	})
	require.NoError(t, err)
	assert.Equal(t, 1, result.Count)
	assert.Empty(t, result.Results)
}
