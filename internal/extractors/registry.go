package extractors

import (
	"context"
	"fmt"
	"sync"

	"github.com/maypok86/otter"
	"github.com/panoptikon-go/panoptikon/internal/inference"
	"github.com/panoptikon-go/panoptikon/internal/storage"
)

// Registry enumerates available extractor groups/inference-ids (C4). It is
// populated by calling the inference service's get_metadata() endpoint on
// startup; failure leaves the registry empty but recoverable on Refresh
// (spec.md §4.3).
//
// The get_metadata() response is cached with otter so repeated registry
// reads don't re-hit the inference RPC between Refresh calls - an
// otter.MustBuilder weight-based cache, used here as a single-slot
// metadata cache rather than a per-key LRU.
type Registry struct {
	client inference.Client
	reader *storage.Reader

	mu           sync.RWMutex
	groups       map[string]GroupMetadata
	metadataCache otter.Cache[string, *inference.Metadata]
}

const metadataCacheKey = "get_metadata"

func NewRegistry(client inference.Client, reader *storage.Reader) (*Registry, error) {
	cache, err := otter.MustBuilder[string, *inference.Metadata](1).
		CollectStats().
		Build()
	if err != nil {
		return nil, fmt.Errorf("failed to build metadata cache: %w", err)
	}
	return &Registry{
		client:        client,
		reader:        reader,
		groups:        make(map[string]GroupMetadata),
		metadataCache: cache,
	}, nil
}

// Refresh re-populates the registry from the inference service. On error,
// the previous registry contents are left untouched (spec.md: "failure
// leaves the registry empty but recoverable on refresh").
func (r *Registry) Refresh(ctx context.Context) error {
	meta, err := r.client.GetMetadata(ctx)
	if err != nil {
		return fmt.Errorf("failed to refresh extractor registry: %w", err)
	}
	r.metadataCache.Set(metadataCacheKey, meta)

	groups := make(map[string]GroupMetadata, len(meta.Groups))
	for groupName, g := range meta.Groups {
		ids := make(map[string]InferenceID, len(g.InferenceIDs))
		for id, m := range g.InferenceIDs {
			entities := make([]TargetEntity, len(m.TargetEntities))
			for i, e := range m.TargetEntities {
				entities[i] = TargetEntity(e)
			}
			inputSpec := InputSpec{Handler: m.InputHandler}
			if m.InputHandler == "derived_text" && m.InputSourceSetter != "" {
				inputSpec.Opts = map[string]any{"source_setter": m.InputSourceSetter}
			}
			ids[id] = InferenceID{
				ID:                    id,
				Group:                 groupName,
				Name:                  m.Name,
				Description:           m.Description,
				DataType:              DataType(m.DataType),
				TargetEntities:        entities,
				SupportedMimePrefixes: m.SupportedMimePrefixes,
				DefaultBatchSize:      m.DefaultBatchSize,
				DefaultThreshold:      m.DefaultThreshold,
				InputSpec:             inputSpec,
			}
		}
		groups[groupName] = GroupMetadata{
			Group:        groupName,
			Metadata:     g.GroupMetadata,
			InferenceIDs: ids,
		}
	}

	r.mu.Lock()
	r.groups = groups
	r.mu.Unlock()
	return nil
}

// Groups lists every known group name.
func (r *Registry) Groups() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.groups))
	for name := range r.groups {
		names = append(names, name)
	}
	return names
}

// Get resolves one inference-id by (group, id).
func (r *Registry) Get(group, id string) (*InferenceID, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	g, ok := r.groups[group]
	if !ok {
		return nil, false
	}
	ii, ok := g.InferenceIDs[id]
	if !ok {
		return nil, false
	}
	return &ii, true
}

// EffectiveSettings resolves batch_size/threshold for one inference-id,
// overriding the inference-id's defaults with the group's persisted
// settings when present (SUPPLEMENTED FEATURE C.3, original_source's
// get_group_batch_size/get_group_threshold).
func (r *Registry) EffectiveSettings(group, id string) (EffectiveSettings, error) {
	ii, ok := r.Get(group, id)
	if !ok {
		return EffectiveSettings{}, fmt.Errorf("unknown inference-id %s/%s", group, id)
	}

	settings := EffectiveSettings{
		BatchSize: ii.DefaultBatchSize,
		Threshold: ii.DefaultThreshold,
	}
	if settings.BatchSize == 0 {
		settings.BatchSize = 64 // matches original_source ModelOpts.default_batch_size
	}

	gs, err := r.reader.GetGroupSettings(group)
	if err != nil {
		return EffectiveSettings{}, fmt.Errorf("failed to read group settings for %s: %w", group, err)
	}
	if gs.BatchSize != nil {
		settings.BatchSize = *gs.BatchSize
	}
	if gs.Threshold != nil {
		settings.Threshold = gs.Threshold
	}
	return settings, nil
}
