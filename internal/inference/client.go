// Package inference is the external inference client (§6): an opaque
// predict/load/unload/get_metadata RPC surface over whatever ML runtime
// implements each extractor. Deliberately out of scope per spec.md §1 -
// only the contract the core consumes is implemented here.
package inference

import "context"

// Metadata mirrors get_metadata()'s wire shape: group -> group_metadata +
// inference_ids -> {id -> metadata}.
type Metadata struct {
	Groups map[string]GroupMetadata `json:"groups"`
}

type GroupMetadata struct {
	GroupMetadata map[string]any                  `json:"group_metadata"`
	InferenceIDs  map[string]InferenceIDMetadata   `json:"inference_ids"`
}

// InferenceIDMetadata is the opaque per-model metadata blob the registry
// uses to populate extractors.InferenceID.
type InferenceIDMetadata struct {
	Name                  string   `json:"name"`
	Description           string   `json:"description"`
	DataType              string   `json:"data_type"`
	TargetEntities        []string `json:"target_entities"`
	SupportedMimePrefixes []string `json:"supported_mime_prefixes,omitempty"`
	DefaultBatchSize      int      `json:"default_batch_size"`
	DefaultThreshold      *float64 `json:"default_threshold,omitempty"`
	InputHandler          string   `json:"input_handler"`
	// InputSourceSetter names the setter whose stored extracted_text the
	// derived_text input handler pulls from (e.g. a text-embedding setter
	// deriving from a captioning setter's output). Empty for every other
	// handler.
	InputSourceSetter string `json:"input_source_setter,omitempty"`
}

// Input is one unit of inference input: either opaque bytes (file/thumbnail/
// frame/audio-chunk) or a structured payload (derived text/tags pulled from
// the store), never both.
type Input struct {
	Bytes     []byte `json:"-"`
	Structured any   `json:"structured,omitempty"`
}

// Output is one opaque inference result: raw bytes for embeddings, or a
// structured dict for tag/text outputs (spec.md §4.4 step 3).
type Output struct {
	Bytes      []byte         `json:"bytes,omitempty"`
	Structured map[string]any `json:"structured,omitempty"`
}

// Client is the four-endpoint contract spec.md §6 names.
type Client interface {
	GetMetadata(ctx context.Context) (*Metadata, error)
	LoadModel(ctx context.Context, setterName, cacheKey string, lruSize int, ttlSeconds int) error
	UnloadModel(ctx context.Context, setterName, cacheKey string) error
	Predict(ctx context.Context, setterName, cacheKey string, lruSize, ttlSeconds int, inputs []Input) ([]Output, error)
}
