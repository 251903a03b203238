package extraction

import (
	"database/sql"
	"fmt"
	"sort"
	"strings"

	"github.com/panoptikon-go/panoptikon/internal/storage"
)

// NamespaceTags is one inference sample's tags within a single namespace:
// tag name -> confidence score.
type NamespaceTags struct {
	Namespace string
	Scores    map[string]float64
}

// TagSample is one raw inference output for the tags data_type - one
// sample per batched prediction (spec.md §4.4 step 3 "combine multi-sample
// results").
type TagSample struct {
	MainNamespace  string // top-level namespace prefix, e.g. model family name
	RatingSeverity []string
	Tags           []NamespaceTags
}

// AggregatedTag is one resolved (namespace, tag, confidence) triple after
// cross-sample aggregation.
type AggregatedTag struct {
	Namespace  string
	Tag        string
	Confidence float64
}

// CombineNamespace merges same-namespace tag dicts across samples by
// keeping the max score per tag (spec.md §4.4 step 3: "combine multi-sample
// results by taking the max score per tag"), sorted by descending score.
// Grounded on original_source's tags.py:combine_ns.
func CombineNamespace(samples []map[string]float64) []AggregatedTag {
	combined := make(map[string]float64)
	for _, s := range samples {
		for tag, score := range s {
			if cur, ok := combined[tag]; !ok || score > cur {
				combined[tag] = score
			}
		}
	}
	out := make([]AggregatedTag, 0, len(combined))
	for tag, score := range combined {
		out = append(out, AggregatedTag{Tag: tag, Confidence: score})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Confidence > out[j].Confidence })
	return out
}

// PickRating resolves the "rating" namespace across samples by a
// *configured severity order*, tie-broken by score (SUPPLEMENTED FEATURE
// C.1). Grounded on original_source's tags.py:get_rating.
func PickRating(samples []map[string]float64, severityOrder []string) (string, float64) {
	severity := make(map[string]int, len(severityOrder))
	for i, label := range severityOrder {
		severity[label] = i
	}

	var finalRating string
	var finalScore float64
	first := true

	for _, sample := range samples {
		var rating string
		var score float64
		for r, s := range sample {
			if rating == "" || s > score {
				rating, score = r, s
			}
		}
		if first || severity[rating] > severity[finalRating] ||
			(severity[rating] == severity[finalRating] && score > finalScore) {
			finalRating, finalScore = rating, score
			first = false
		}
	}
	return finalRating, finalScore
}

// AggregateTags groups every sample's namespace tags, resolving "rating"
// via PickRating and everything else via CombineNamespace. Grounded on
// original_source's tags.py:aggregate_tags.
func AggregateTags(samples []TagSample) []AggregatedTag {
	var severityOrder []string
	if len(samples) > 0 {
		severityOrder = samples[0].RatingSeverity
	}

	byNamespace := make(map[string][]map[string]float64)
	var order []string
	for _, sample := range samples {
		for _, nt := range sample.Tags {
			if _, seen := byNamespace[nt.Namespace]; !seen {
				order = append(order, nt.Namespace)
			}
			byNamespace[nt.Namespace] = append(byNamespace[nt.Namespace], nt.Scores)
		}
	}

	var result []AggregatedTag
	for _, ns := range order {
		scoreDicts := byNamespace[ns]
		if ns == "rating" {
			rating, score := PickRating(scoreDicts, severityOrder)
			result = append(result, AggregatedTag{Namespace: ns, Tag: "rating:" + rating, Confidence: score})
			continue
		}
		for _, t := range CombineNamespace(scoreDicts) {
			result = append(result, AggregatedTag{Namespace: ns, Tag: t.Tag, Confidence: t.Confidence})
		}
	}
	return result
}

// WriteTagResult writes the aggregated tags for one item under setterID:
// TagItem rows namespaced as "<mainNamespace>:<ns>", plus the dual tag-text
// ExtractedText rows (SUPPLEMENTED FEATURE C.2, data_index 0 unthresholded,
// data_index 1 MCut-thresholded over the "general" namespace). Grounded on
// original_source's tags.py:handle_tag_result.
func WriteTagResult(tx *sql.Tx, w *storage.Writer, itemID, setterID, jobID int64, mainNamespace string, samples []TagSample) error {
	aggregated := AggregateTags(samples)
	if len(aggregated) == 0 {
		return nil
	}

	tagMap := make(map[storage.TagRef]float64, len(aggregated))
	minConfidence := aggregated[0].Confidence
	var allTags []string
	for _, t := range aggregated {
		ns := fmt.Sprintf("%s:%s", mainNamespace, t.Namespace)
		tagMap[storage.TagRef{Namespace: ns, Name: t.Tag}] = t.Confidence
		allTags = append(allTags, t.Tag)
		if t.Confidence < minConfidence {
			minConfidence = t.Confidence
		}
	}
	if err := w.WriteTags(tx, itemID, setterID, tagMap); err != nil {
		return err
	}

	unthresholdedID, err := w.InsertItemData(tx, storage.ItemData{
		ItemID: itemID, SetterID: setterID, DataType: "text", DataIndex: 0, JobID: jobID,
	})
	if err != nil {
		return fmt.Errorf("failed to insert unthresholded tag-text item_data: %w", err)
	}
	if err := w.WriteExtractedText(tx, storage.ExtractedText{
		ID: unthresholdedID, Text: strings.Join(allTags, ", "), Language: mainNamespace,
		LanguageConfidence: 1.0, Confidence: minConfidence, TextLength: len(strings.Join(allTags, ", ")),
	}); err != nil {
		return err
	}

	var general []float64
	for _, t := range aggregated {
		if t.Namespace == "general" {
			general = append(general, t.Confidence)
		}
	}
	if len(general) == 0 {
		return nil
	}
	threshold := MCutThreshold(general)

	var mcutTags []string
	for _, t := range aggregated {
		if t.Namespace != "general" || t.Confidence >= threshold {
			mcutTags = append(mcutTags, t.Tag)
		}
	}
	mcutID, err := w.InsertItemData(tx, storage.ItemData{
		ItemID: itemID, SetterID: setterID, DataType: "text", DataIndex: 1, JobID: jobID,
	})
	if err != nil {
		return fmt.Errorf("failed to insert mcut tag-text item_data: %w", err)
	}
	mcutText := strings.Join(mcutTags, ", ")
	return w.WriteExtractedText(tx, storage.ExtractedText{
		ID: mcutID, Text: mcutText, Language: mainNamespace + "-mcut",
		LanguageConfidence: 1.0, Confidence: threshold, TextLength: len(mcutText),
	})
}
