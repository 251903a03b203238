package rules

import (
	"testing"

	"github.com/panoptikon-go/panoptikon/internal/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seedItem(t *testing.T, h *storage.Handle, sha, mime string, width int) int64 {
	t.Helper()
	w := storage.NewWriter(h.DB)
	tx, err := h.DB.Begin()
	require.NoError(t, err)
	defer tx.Rollback()
	id, err := w.EnsureItem(tx, storage.Item{SHA256: sha, Type: mime, Width: &width})
	require.NoError(t, err)
	require.NoError(t, tx.Commit())
	return id
}

func TestEngineCandidatesEmptyWithNoRule(t *testing.T) {
	h := storage.NewTestHandle(t, 0)
	engine := NewEngine(h.DB)

	ids, err := engine.Candidates("tags", "wd14")
	require.NoError(t, err)
	assert.Empty(t, ids)
}

func TestEngineCandidatesMatchesPositiveMimeFilter(t *testing.T) {
	h := storage.NewTestHandle(t, 0)
	engine := NewEngine(h.DB)

	imgID := seedItem(t, h, "img1", "image/png", 200)
	seedItem(t, h, "vid1", "video/mp4", 200)

	_, err := engine.AddRule(
		[]storage.SetterRef{{Type: "tags", Name: "wd14"}},
		RuleItemFilters{Positive: []Filter{MimeFilter{Prefixes: []string{"image/"}}}},
	)
	require.NoError(t, err)

	ids, err := engine.Candidates("tags", "wd14")
	require.NoError(t, err)
	assert.Equal(t, []int64{imgID}, ids)
}

func TestEngineCandidatesExcludesNegativeProcessedItems(t *testing.T) {
	h := storage.NewTestHandle(t, 0)
	engine := NewEngine(h.DB)
	w := storage.NewWriter(h.DB)

	itemA := seedItem(t, h, "a", "image/png", 10)
	itemB := seedItem(t, h, "b", "image/png", 10)

	tx, err := h.DB.Begin()
	require.NoError(t, err)
	setterID, err := w.EnsureSetter(tx, "tags", "wd14")
	require.NoError(t, err)
	_, err = w.InsertItemData(tx, storage.ItemData{ItemID: itemA, SetterID: setterID, DataType: "tags", JobID: 1})
	require.NoError(t, err)
	require.NoError(t, tx.Commit())

	_, err = engine.AddRule(
		[]storage.SetterRef{{Type: "tags", Name: "wd14"}},
		RuleItemFilters{
			Positive: []Filter{MimeFilter{Prefixes: []string{"image/"}}},
			Negative: []Filter{ProcessedItemsFilter{Setter: storage.SetterRef{Type: "tags", Name: "wd14"}}},
		},
	)
	require.NoError(t, err)

	ids, err := engine.Candidates("tags", "wd14")
	require.NoError(t, err)
	assert.Equal(t, []int64{itemB}, ids)
}

func TestEngineCandidatesMinMaxWithoutUpperBound(t *testing.T) {
	h := storage.NewTestHandle(t, 0)
	engine := NewEngine(h.DB)

	small := seedItem(t, h, "small", "image/png", 50)
	big := seedItem(t, h, "big", "image/png", 500)
	_ = small

	_, err := engine.AddRule(
		[]storage.SetterRef{{Type: "tags", Name: "wd14"}},
		RuleItemFilters{Positive: []Filter{MinMaxFilter{Column: ColumnWidth, Min: 100}}},
	)
	require.NoError(t, err)

	ids, err := engine.Candidates("tags", "wd14")
	require.NoError(t, err)
	assert.Equal(t, []int64{big}, ids)
}

func TestEngineDisabledRuleExcludedFromCandidates(t *testing.T) {
	h := storage.NewTestHandle(t, 0)
	engine := NewEngine(h.DB)
	seedItem(t, h, "x", "image/png", 10)

	id, err := engine.AddRule(
		[]storage.SetterRef{{Type: "tags", Name: "wd14"}},
		RuleItemFilters{Positive: []Filter{MimeFilter{Prefixes: []string{"image/"}}}},
	)
	require.NoError(t, err)
	require.NoError(t, engine.DisableRule(id))

	ids, err := engine.Candidates("tags", "wd14")
	require.NoError(t, err)
	assert.Empty(t, ids)
}
