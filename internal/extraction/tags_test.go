package extraction

import (
	"testing"

	"github.com/panoptikon-go/panoptikon/internal/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCombineNamespaceKeepsMaxScorePerTag(t *testing.T) {
	out := CombineNamespace([]map[string]float64{
		{"cat": 0.5, "dog": 0.2},
		{"cat": 0.9, "bird": 0.1},
	})
	byTag := make(map[string]float64, len(out))
	for _, t := range out {
		byTag[t.Tag] = t.Confidence
	}
	assert.Equal(t, 0.9, byTag["cat"])
	assert.Equal(t, 0.2, byTag["dog"])
	assert.Equal(t, 0.1, byTag["bird"])
	// sorted descending by confidence
	assert.Equal(t, "cat", out[0].Tag)
}

func TestPickRatingPrefersHigherSeverityOverHigherScore(t *testing.T) {
	severity := []string{"general", "sensitive", "questionable", "explicit"}
	samples := []map[string]float64{
		{"general": 0.95},
		{"explicit": 0.2},
	}
	rating, _ := PickRating(samples, severity)
	assert.Equal(t, "explicit", rating)
}

func TestPickRatingTieBreaksOnScore(t *testing.T) {
	severity := []string{"general", "sensitive"}
	samples := []map[string]float64{
		{"general": 0.4},
		{"general": 0.9},
	}
	rating, score := PickRating(samples, severity)
	assert.Equal(t, "general", rating)
	assert.Equal(t, 0.9, score)
}

func TestAggregateTagsHandlesRatingAndGeneralNamespaces(t *testing.T) {
	samples := []TagSample{
		{
			MainNamespace:  "wd",
			RatingSeverity: []string{"general", "explicit"},
			Tags: []NamespaceTags{
				{Namespace: "rating", Scores: map[string]float64{"general": 0.9}},
				{Namespace: "general", Scores: map[string]float64{"cat": 0.8, "outdoors": 0.3}},
			},
		},
	}
	agg := AggregateTags(samples)
	require.NotEmpty(t, agg)

	var sawRating bool
	for _, t := range agg {
		if t.Namespace == "rating" {
			sawRating = true
			assert.Equal(t, "rating:general", t.Tag)
		}
	}
	assert.True(t, sawRating)
}

func TestWriteTagResultWritesDualTextRows(t *testing.T) {
	h := storage.NewTestHandle(t, 0)
	w := storage.NewWriter(h.DB)

	tx, err := h.DB.Begin()
	require.NoError(t, err)
	itemID, err := w.EnsureItem(tx, storage.Item{SHA256: "tagtest", Type: "image/png"})
	require.NoError(t, err)
	setterID, err := w.EnsureSetter(tx, "tags", "wd14")
	require.NoError(t, err)
	jobID, err := w.StartJobLog(tx, setterID, 1)
	require.NoError(t, err)

	samples := []TagSample{
		{
			MainNamespace: "wd",
			Tags: []NamespaceTags{
				{Namespace: "general", Scores: map[string]float64{"cat": 0.9, "indoors": 0.2}},
			},
		},
	}
	require.NoError(t, WriteTagResult(tx, w, itemID, setterID, jobID, "wd", samples))
	require.NoError(t, tx.Commit())

	var textRowCount int
	require.NoError(t, h.DB.QueryRow(
		"SELECT COUNT(*) FROM item_data WHERE item_id = ? AND data_type = 'text'", itemID,
	).Scan(&textRowCount))
	assert.Equal(t, 2, textRowCount)

	var mcutLanguage string
	require.NoError(t, h.DB.QueryRow(`
		SELECT et.language FROM extracted_text et
		JOIN item_data d ON d.id = et.id
		WHERE d.item_id = ? AND d.data_index = 1
	`, itemID).Scan(&mcutLanguage))
	assert.Equal(t, "wd-mcut", mcutLanguage)
}

func TestWriteTagResultNoopOnEmptyAggregate(t *testing.T) {
	h := storage.NewTestHandle(t, 0)
	w := storage.NewWriter(h.DB)

	tx, err := h.DB.Begin()
	require.NoError(t, err)
	itemID, err := w.EnsureItem(tx, storage.Item{SHA256: "empty", Type: "image/png"})
	require.NoError(t, err)
	setterID, err := w.EnsureSetter(tx, "tags", "wd14")
	require.NoError(t, err)
	jobID, err := w.StartJobLog(tx, setterID, 1)
	require.NoError(t, err)

	require.NoError(t, WriteTagResult(tx, w, itemID, setterID, jobID, "wd", nil))
	require.NoError(t, tx.Commit())

	var count int
	require.NoError(t, h.DB.QueryRow("SELECT COUNT(*) FROM item_data WHERE item_id = ?", itemID).Scan(&count))
	assert.Equal(t, 0, count)
}
