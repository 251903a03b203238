// Package extractors implements the Extractor Registry (C4): enumerating
// available extractor groups/inference-ids and their per-group settings.
package extractors

import "github.com/panoptikon-go/panoptikon/internal/storage"

// TargetEntity is the subset of {items, text, tags} an extractor consumes,
// mirroring spec.md §4.3's target_entities.
type TargetEntity string

const (
	TargetItems TargetEntity = "items"
	TargetText  TargetEntity = "text"
	TargetTags  TargetEntity = "tags"
)

// DataType is the output data_type an extractor produces.
type DataType string

const (
	DataTypeTags          DataType = "tags"
	DataTypeText          DataType = "text"
	DataTypeCLIP          DataType = "clip"
	DataTypeTextEmbedding DataType = "text-embedding"
)

// InputSpec names the handler that materializes inference inputs for an
// extractor (spec.md §4.4 step 3: "file-bytes, thumbnail, sampled frames,
// audio chunks, or derived text/tags pulled from the store") plus any
// handler-specific options.
type InputSpec struct {
	Handler string         `json:"handler"`
	Opts    map[string]any `json:"opts,omitempty"`
}

// InferenceID identifies one model/configuration within a Group (e.g.
// group "wd-tags", inference-id "wd-swinv2-tagger-v3"), lowering
// original_source's ModelOpts class hierarchy to a single tagged struct per
// spec.md §9 ("group/inference-id hierarchy lowered to a data-driven
// registry instead of a class hierarchy").
type InferenceID struct {
	ID                     string         `json:"id"`
	Group                  string         `json:"group"`
	Name                   string         `json:"name"`
	Description            string         `json:"description"`
	DataType               DataType       `json:"data_type"`
	TargetEntities         []TargetEntity `json:"target_entities"`
	SupportedMimePrefixes  []string       `json:"supported_mime_prefixes,omitempty"`
	DefaultBatchSize       int            `json:"default_batch_size"`
	DefaultThreshold       *float64       `json:"default_threshold,omitempty"`
	InputSpec              InputSpec      `json:"input_spec"`
}

// SetterRef is the (type, name) pair this inference-id writes ItemData
// under; data_type doubles as setter type (spec.md §3 Setter.type).
func (i InferenceID) SetterRef() storage.SetterRef {
	return storage.SetterRef{Type: string(i.DataType), Name: i.ID}
}

// GroupMetadata is the group-level portion of the inference service's
// get_metadata() response (spec.md §6).
type GroupMetadata struct {
	Group       string                 `json:"group"`
	Metadata    map[string]any         `json:"group_metadata,omitempty"`
	InferenceIDs map[string]InferenceID `json:"inference_ids"`
}

// EffectiveSettings resolves batch_size/threshold for one inference-id,
// applying the group-level persisted override over its default
// (SUPPLEMENTED FEATURE C.3, original_source's get_group_batch_size/
// get_group_threshold).
type EffectiveSettings struct {
	BatchSize int
	Threshold *float64
}
