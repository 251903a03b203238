package extraction

import (
	"context"
	"encoding/binary"
	"math"
	"testing"

	"github.com/panoptikon-go/panoptikon/internal/extractors"
	"github.com/panoptikon-go/panoptikon/internal/inference"
	"github.com/panoptikon-go/panoptikon/internal/rules"
	"github.com/panoptikon-go/panoptikon/internal/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func encodeFloat32LE(vec []float32) []byte {
	b := make([]byte, len(vec)*4)
	for i, v := range vec {
		binary.LittleEndian.PutUint32(b[i*4:i*4+4], math.Float32bits(v))
	}
	return b
}

func TestRunnerRunProcessesCandidatesAndWritesTags(t *testing.T) {
	h := storage.NewTestHandle(t, 0)
	registry := newTestRegistry(t, h)
	engine := rules.NewEngine(h.DB)

	w := storage.NewWriter(h.DB)
	tx, err := h.DB.Begin()
	require.NoError(t, err)
	_, err = w.EnsureItem(tx, storage.Item{SHA256: "run1", Type: "image/png"})
	require.NoError(t, err)
	require.NoError(t, tx.Commit())

	_, err = engine.AddRule(
		[]storage.SetterRef{{Type: "tags", Name: "wd-swinv2-tagger-v3"}},
		rules.RuleItemFilters{Positive: []rules.Filter{rules.MimeFilter{Prefixes: []string{"image/"}}}},
	)
	require.NoError(t, err)

	mockClient := inference.NewMock(nil, []inference.Output{
		{Structured: map[string]any{
			"main_namespace": "wd",
			"samples": []any{
				map[string]any{"general": map[string]any{"cat": 0.9}},
			},
		}},
	})

	runner := NewRunner(h.DB, engine, registry, mockClient)

	var events []ProgressEvent
	jobLog, err := runner.Run(context.Background(), "wd-tags", "wd-swinv2-tagger-v3", progressCollector(&events))
	require.NoError(t, err)

	assert.Equal(t, "completed", jobLog.Status)
	assert.Equal(t, 1, jobLog.ProcessedItems)
	assert.Equal(t, 0, jobLog.FailedItems)
	assert.NotEmpty(t, events)

	var tagCount int
	require.NoError(t, h.DB.QueryRow("SELECT COUNT(*) FROM tags").Scan(&tagCount))
	assert.Equal(t, 1, tagCount)
}

func TestRunnerRunUnknownInferenceIDErrors(t *testing.T) {
	h := storage.NewTestHandle(t, 0)
	registry := newTestRegistry(t, h)
	engine := rules.NewEngine(h.DB)
	runner := NewRunner(h.DB, engine, registry, inference.NewMock(nil, nil))

	_, err := runner.Run(context.Background(), "wd-tags", "nonexistent", nil)
	assert.Error(t, err)
}

func TestRunnerRunWithNoCandidatesCompletesEmpty(t *testing.T) {
	h := storage.NewTestHandle(t, 0)
	registry := newTestRegistry(t, h)
	engine := rules.NewEngine(h.DB)
	runner := NewRunner(h.DB, engine, registry, inference.NewMock(nil, nil))

	jobLog, err := runner.Run(context.Background(), "wd-tags", "wd-swinv2-tagger-v3", nil)
	require.NoError(t, err)
	assert.Equal(t, 0, jobLog.ProcessedItems)
	assert.Equal(t, "completed", jobLog.Status)
}

// registryWithEmbeddingGroups builds a registry exposing a clip setter and a
// text-embedding setter, the latter wired to pull its input from a
// "captioner" text setter's stored output (derived_text).
func registryWithEmbeddingGroups(t *testing.T, h *storage.Handle) *extractors.Registry {
	t.Helper()
	meta := &inference.Metadata{
		Groups: map[string]inference.GroupMetadata{
			"clip": {
				InferenceIDs: map[string]inference.InferenceIDMetadata{
					"clip-vit-b32": {Name: "CLIP", DataType: "clip", DefaultBatchSize: 8},
				},
			},
			"text-embed": {
				InferenceIDs: map[string]inference.InferenceIDMetadata{
					"text-embedder": {
						Name: "Text Embedder", DataType: "text-embedding", DefaultBatchSize: 8,
						InputHandler: "derived_text", InputSourceSetter: "captioner",
					},
				},
			},
		},
	}
	registry, err := extractors.NewRegistry(inference.NewMock(meta, nil), storage.NewReader(h.DB))
	require.NoError(t, err)
	require.NoError(t, registry.Refresh(context.Background()))
	return registry
}

// TestRunnerRunEmbeddingSetterPersistsActualDataType guards against
// writeEmbeddingOutput collapsing every embedding setter's data_type to
// "clip": a text-embedding setter's rows must be distinguishable from a
// CLIP setter's so similarity.go's cross-modal gating
// (`data_type != 'text-embedding'`) has something to gate on.
func TestRunnerRunEmbeddingSetterPersistsActualDataType(t *testing.T) {
	h := storage.NewTestHandle(t, 4)
	registry := registryWithEmbeddingGroups(t, h)
	engine := rules.NewEngine(h.DB)

	w := storage.NewWriter(h.DB)
	tx, err := h.DB.Begin()
	require.NoError(t, err)
	_, err = w.EnsureItem(tx, storage.Item{SHA256: "embed1", Type: "image/png"})
	require.NoError(t, err)
	require.NoError(t, tx.Commit())

	_, err = engine.AddRule(
		[]storage.SetterRef{{Type: "clip", Name: "clip-vit-b32"}},
		rules.RuleItemFilters{Positive: []rules.Filter{rules.MimeFilter{Prefixes: []string{"image/"}}}},
	)
	require.NoError(t, err)
	_, err = engine.AddRule(
		[]storage.SetterRef{{Type: "text-embedding", Name: "text-embedder"}},
		rules.RuleItemFilters{Positive: []rules.Filter{rules.MimeFilter{Prefixes: []string{"image/"}}}},
	)
	require.NoError(t, err)

	tx, err = h.DB.Begin()
	require.NoError(t, err)
	captionerID, err := w.EnsureSetter(tx, "text", "captioner")
	require.NoError(t, err)
	itemID, err := w.EnsureItem(tx, storage.Item{SHA256: "embed1", Type: "image/png"})
	require.NoError(t, err)
	dataID, err := w.InsertItemData(tx, storage.ItemData{ItemID: itemID, SetterID: captionerID, DataType: "text"})
	require.NoError(t, err)
	require.NoError(t, w.WriteExtractedText(tx, storage.ExtractedText{ID: dataID, Text: "a happy dog", TextLength: 11}))
	require.NoError(t, tx.Commit())

	vec := encodeFloat32LE([]float32{0.1, 0.2, 0.3, 0.4})
	mockClient := inference.NewMock(nil, []inference.Output{{Bytes: vec}})
	runner := NewRunner(h.DB, engine, registry, mockClient)

	_, err = runner.Run(context.Background(), "clip", "clip-vit-b32", nil)
	require.NoError(t, err)
	_, err = runner.Run(context.Background(), "text-embed", "text-embedder", nil)
	require.NoError(t, err)

	rows, err := h.DB.Query(`
		SELECT setters.name, item_data.data_type FROM item_data
		JOIN setters ON setters.id = item_data.setter_id
		WHERE setters.name IN ('clip-vit-b32', 'text-embedder')
	`)
	require.NoError(t, err)
	defer rows.Close()
	got := map[string]string{}
	for rows.Next() {
		var name, dataType string
		require.NoError(t, rows.Scan(&name, &dataType))
		got[name] = dataType
	}
	require.NoError(t, rows.Err())

	assert.Equal(t, "clip", got["clip-vit-b32"])
	assert.Equal(t, "text-embedding", got["text-embedder"])
}

// TestRunnerRunDerivedTextHandlerFeedsSourceSetterText guards the
// derived_text input handler: a text-embedding setter configured with
// input_source_setter "captioner" must receive that setter's stored text,
// not an empty input.
func TestRunnerRunDerivedTextHandlerFeedsSourceSetterText(t *testing.T) {
	h := storage.NewTestHandle(t, 4)
	registry := registryWithEmbeddingGroups(t, h)
	engine := rules.NewEngine(h.DB)

	w := storage.NewWriter(h.DB)
	tx, err := h.DB.Begin()
	require.NoError(t, err)
	itemID, err := w.EnsureItem(tx, storage.Item{SHA256: "embed2", Type: "image/png"})
	require.NoError(t, err)
	captionerID, err := w.EnsureSetter(tx, "text", "captioner")
	require.NoError(t, err)
	dataID, err := w.InsertItemData(tx, storage.ItemData{ItemID: itemID, SetterID: captionerID, DataType: "text"})
	require.NoError(t, err)
	require.NoError(t, w.WriteExtractedText(tx, storage.ExtractedText{ID: dataID, Text: "a sunset over the bay", Language: "en", TextLength: 21}))
	require.NoError(t, tx.Commit())

	_, err = engine.AddRule(
		[]storage.SetterRef{{Type: "text-embedding", Name: "text-embedder"}},
		rules.RuleItemFilters{Positive: []rules.Filter{rules.MimeFilter{Prefixes: []string{"image/"}}}},
	)
	require.NoError(t, err)

	vec := encodeFloat32LE([]float32{1, 2, 3, 4})
	mockClient := inference.NewMock(nil, []inference.Output{{Bytes: vec}})
	runner := NewRunner(h.DB, engine, registry, mockClient)

	jobLog, err := runner.Run(context.Background(), "text-embed", "text-embedder", nil)
	require.NoError(t, err)
	assert.Equal(t, "completed", jobLog.Status)

	require.Len(t, mockClient.LastInputs, 1)
	structured, ok := mockClient.LastInputs[0].Structured.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "a sunset over the bay", structured["text"])
	assert.Equal(t, "en", structured["language"])
}

type collectingReporter struct {
	events *[]ProgressEvent
}

func (c collectingReporter) OnProgress(ev ProgressEvent) {
	*c.events = append(*c.events, ev)
}

func progressCollector(events *[]ProgressEvent) ProgressReporter {
	return collectingReporter{events: events}
}
