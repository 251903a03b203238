// Package rules implements the Rule Engine (C3): per-extractor eligibility
// rules and the candidate item set they gate.
package rules

import (
	"encoding/json"
	"fmt"

	"github.com/panoptikon-go/panoptikon/internal/storage"
)

// Filter is a tagged-union eligibility predicate over Items/Files (spec.md
// §3/§4.2). Each variant carries a Kind() discriminator so new filter kinds
// can be added without breaking deserialization of already-stored rules.
type Filter interface {
	Kind() string
}

// ProcessedItemsFilter matches items that already have ItemData from
// Setter. Used negated (inside RuleItemFilters.Negative) to select
// "not yet processed by this setter".
type ProcessedItemsFilter struct {
	Setter storage.SetterRef `json:"setter"`
}

func (ProcessedItemsFilter) Kind() string { return "processed_items" }

// ProcessedExtractedDataFilter matches items that have ItemData of one of
// DataTypes from Setter - for extractors that consume text/tags produced
// by another setter.
type ProcessedExtractedDataFilter struct {
	Setter    storage.SetterRef `json:"setter"`
	DataTypes []string          `json:"data_types"`
}

func (ProcessedExtractedDataFilter) Kind() string { return "processed_extracted_data" }

// MimeFilter matches items whose type starts with any of Prefixes.
type MimeFilter struct {
	Prefixes []string `json:"prefixes"`
}

func (MimeFilter) Kind() string { return "mime" }

// PathFilter matches items with at least one File whose path starts with
// any of Prefixes.
type PathFilter struct {
	Prefixes []string `json:"prefixes"`
}

func (PathFilter) Kind() string { return "path" }

// MinMaxColumn whitelists the numeric item columns MinMaxFilter may range
// over.
type MinMaxColumn string

const (
	ColumnSize           MinMaxColumn = "size"
	ColumnWidth          MinMaxColumn = "width"
	ColumnHeight         MinMaxColumn = "height"
	ColumnDuration       MinMaxColumn = "duration"
	ColumnAudioTracks    MinMaxColumn = "audio_tracks"
	ColumnVideoTracks    MinMaxColumn = "video_tracks"
	ColumnSubtitleTracks MinMaxColumn = "subtitle_tracks"
)

// MinMaxFilter is an inclusive range filter. If Min != 0 and Max == 0, it is
// treated as ">= Min with no upper bound" (spec.md §4.2).
type MinMaxFilter struct {
	Column MinMaxColumn `json:"column"`
	Min    float64      `json:"min"`
	Max    float64      `json:"max"`
}

func (MinMaxFilter) Kind() string { return "min_max" }

// RuleItemFilters is the positive/negative filter sets of one rule (spec.md
// §3): candidate = matches_all(Positive) AND NOT matches_any(Negative).
type RuleItemFilters struct {
	Positive []Filter `json:"-"`
	Negative []Filter `json:"-"`
}

// MarshalJSON serializes each Filter with its Kind() discriminator so the
// variant can be recovered on load - mirrors the storage layer's RawFilter
// envelope but keeps the typed Filter interface at this layer.
func (f RuleItemFilters) MarshalJSON() ([]byte, error) {
	pos, err := marshalFilters(f.Positive)
	if err != nil {
		return nil, err
	}
	neg, err := marshalFilters(f.Negative)
	if err != nil {
		return nil, err
	}
	return json.Marshal(struct {
		Positive []rawFilter `json:"positive"`
		Negative []rawFilter `json:"negative"`
	}{pos, neg})
}

func (f *RuleItemFilters) UnmarshalJSON(data []byte) error {
	var wire struct {
		Positive []rawFilter `json:"positive"`
		Negative []rawFilter `json:"negative"`
	}
	if err := json.Unmarshal(data, &wire); err != nil {
		return err
	}
	pos, err := unmarshalFilters(wire.Positive)
	if err != nil {
		return err
	}
	neg, err := unmarshalFilters(wire.Negative)
	if err != nil {
		return err
	}
	f.Positive = pos
	f.Negative = neg
	return nil
}

type rawFilter struct {
	Kind string          `json:"kind"`
	Data json.RawMessage `json:"data"`
}

func marshalFilters(filters []Filter) ([]rawFilter, error) {
	out := make([]rawFilter, 0, len(filters))
	for _, f := range filters {
		data, err := json.Marshal(f)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal %s filter: %w", f.Kind(), err)
		}
		out = append(out, rawFilter{Kind: f.Kind(), Data: data})
	}
	return out, nil
}

func unmarshalFilters(raws []rawFilter) ([]Filter, error) {
	out := make([]Filter, 0, len(raws))
	for _, r := range raws {
		f, ok, err := decodeFilter(r.Kind, r.Data)
		if err != nil {
			return nil, err
		}
		if !ok {
			// Forward-compatible: an unknown kind is dropped rather than
			// failing the whole rule, so older binaries can still load
			// rules written by newer ones that added a filter kind.
			continue
		}
		out = append(out, f)
	}
	return out, nil
}

func decodeFilter(kind string, data json.RawMessage) (Filter, bool, error) {
	switch kind {
	case "processed_items":
		var f ProcessedItemsFilter
		return f, true, json.Unmarshal(data, &f)
	case "processed_extracted_data":
		var f ProcessedExtractedDataFilter
		return f, true, json.Unmarshal(data, &f)
	case "mime":
		var f MimeFilter
		return f, true, json.Unmarshal(data, &f)
	case "path":
		var f PathFilter
		return f, true, json.Unmarshal(data, &f)
	case "min_max":
		var f MinMaxFilter
		return f, true, json.Unmarshal(data, &f)
	default:
		return nil, false, nil
	}
}

// Rule is the in-memory view of a stored ExtractionRule.
type Rule struct {
	ID      int64
	Enabled bool
	Filters RuleItemFilters
	Setters []storage.SetterRef
}
