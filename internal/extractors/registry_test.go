package extractors

import (
	"context"
	"testing"

	"github.com/panoptikon-go/panoptikon/internal/inference"
	"github.com/panoptikon-go/panoptikon/internal/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func defaultThreshold(v float64) *float64 { return &v }

func testMetadata() *inference.Metadata {
	return &inference.Metadata{
		Groups: map[string]inference.GroupMetadata{
			"wd-tags": {
				InferenceIDs: map[string]inference.InferenceIDMetadata{
					"wd-swinv2-tagger-v3": {
						Name:                  "WD Tagger v3",
						DataType:              "tags",
						TargetEntities:        []string{"items"},
						SupportedMimePrefixes: []string{"image/"},
						DefaultBatchSize:      16,
						DefaultThreshold:      defaultThreshold(0.35),
						InputHandler:          "file_bytes",
					},
				},
			},
		},
	}
}

func TestRegistryRefreshPopulatesGroups(t *testing.T) {
	h := storage.NewTestHandle(t, 0)
	client := inference.NewMock(testMetadata(), nil)
	registry, err := NewRegistry(client, storage.NewReader(h.DB))
	require.NoError(t, err)

	require.NoError(t, registry.Refresh(context.Background()))

	assert.Equal(t, []string{"wd-tags"}, registry.Groups())

	ii, ok := registry.Get("wd-tags", "wd-swinv2-tagger-v3")
	require.True(t, ok)
	assert.Equal(t, DataTypeTags, ii.DataType)
	assert.Equal(t, "wd-tags", ii.Group)
}

func TestRegistryGetUnknownReturnsFalse(t *testing.T) {
	h := storage.NewTestHandle(t, 0)
	registry, err := NewRegistry(inference.NewMock(testMetadata(), nil), storage.NewReader(h.DB))
	require.NoError(t, err)
	require.NoError(t, registry.Refresh(context.Background()))

	_, ok := registry.Get("wd-tags", "nonexistent")
	assert.False(t, ok)
	_, ok = registry.Get("nonexistent-group", "x")
	assert.False(t, ok)
}

func TestEffectiveSettingsFallsBackToDefaults(t *testing.T) {
	h := storage.NewTestHandle(t, 0)
	registry, err := NewRegistry(inference.NewMock(testMetadata(), nil), storage.NewReader(h.DB))
	require.NoError(t, err)
	require.NoError(t, registry.Refresh(context.Background()))

	settings, err := registry.EffectiveSettings("wd-tags", "wd-swinv2-tagger-v3")
	require.NoError(t, err)
	assert.Equal(t, 16, settings.BatchSize)
	require.NotNil(t, settings.Threshold)
	assert.Equal(t, 0.35, *settings.Threshold)
}

func TestEffectiveSettingsAppliesGroupOverride(t *testing.T) {
	h := storage.NewTestHandle(t, 0)
	registry, err := NewRegistry(inference.NewMock(testMetadata(), nil), storage.NewReader(h.DB))
	require.NoError(t, err)
	require.NoError(t, registry.Refresh(context.Background()))

	w := storage.NewWriter(h.DB)
	tx, err := h.DB.Begin()
	require.NoError(t, err)
	batchSize := 4
	threshold := 0.8
	require.NoError(t, w.SetGroupSettings(tx, storage.GroupSettings{
		GroupName: "wd-tags", BatchSize: &batchSize, Threshold: &threshold,
	}))
	require.NoError(t, tx.Commit())

	settings, err := registry.EffectiveSettings("wd-tags", "wd-swinv2-tagger-v3")
	require.NoError(t, err)
	assert.Equal(t, 4, settings.BatchSize)
	require.NotNil(t, settings.Threshold)
	assert.Equal(t, 0.8, *settings.Threshold)
}

func TestEffectiveSettingsUnknownInferenceIDErrors(t *testing.T) {
	h := storage.NewTestHandle(t, 0)
	registry, err := NewRegistry(inference.NewMock(testMetadata(), nil), storage.NewReader(h.DB))
	require.NoError(t, err)
	require.NoError(t, registry.Refresh(context.Background()))

	_, err = registry.EffectiveSettings("wd-tags", "nonexistent")
	assert.Error(t, err)
}
