package extraction

import (
	"context"
	"database/sql"
	"encoding/binary"
	"fmt"
	"log"
	"math"
	"time"

	"github.com/panoptikon-go/panoptikon/internal/extractors"
	"github.com/panoptikon-go/panoptikon/internal/inference"
	"github.com/panoptikon-go/panoptikon/internal/rules"
	"github.com/panoptikon-go/panoptikon/internal/storage"
)

// ProgressEvent is one batch's progress report (spec.md §4.4 step 4).
type ProgressEvent struct {
	Processed    int
	Total        int
	ETA          time.Duration
	LastItemPath string
}

// ProgressReporter receives ProgressEvents as an extraction job advances.
type ProgressReporter interface {
	OnProgress(ProgressEvent)
}

type NoOpProgressReporter struct{}

func (NoOpProgressReporter) OnProgress(ProgressEvent) {}

// Runner is the Extraction Job Runner (C5): candidate streaming, batched
// inference calls, transactional writes, progress events. Grounded on
// spec.md §4.4 end to end, logging each phase with an "[extraction]"-prefixed
// log.Printf.
type Runner struct {
	db       *sql.DB
	engine   *rules.Engine
	registry *extractors.Registry
	client   inference.Client
	writer   *storage.Writer
	reader   *storage.Reader
}

func NewRunner(db *sql.DB, engine *rules.Engine, registry *extractors.Registry, client inference.Client) *Runner {
	return &Runner{
		db:       db,
		engine:   engine,
		registry: registry,
		client:   client,
		writer:   storage.NewWriter(db),
		reader:   storage.NewReader(db),
	}
}

// Run executes one extraction job end to end against group/id (spec.md
// §4.4 steps 1-6).
func (r *Runner) Run(ctx context.Context, group, id string, reporter ProgressReporter) (*storage.JobLog, error) {
	if reporter == nil {
		reporter = NoOpProgressReporter{}
	}

	ii, ok := r.registry.Get(group, id)
	if !ok {
		return nil, fmt.Errorf("unknown inference-id %s/%s", group, id)
	}
	settings, err := r.registry.EffectiveSettings(group, id)
	if err != nil {
		return nil, err
	}

	setterID, err := r.ensureSetter(string(ii.DataType), id)
	if err != nil {
		return nil, err
	}

	candidates, err := r.engine.Candidates(string(ii.DataType), id)
	if err != nil {
		return nil, fmt.Errorf("failed to compute candidates: %w", err)
	}
	total := len(candidates)
	log.Printf("[extraction] %s/%s: %d candidate items", group, id, total)

	jobLogID, err := r.startJobLog(setterID, total)
	if err != nil {
		return nil, err
	}
	reporter.OnProgress(ProgressEvent{Processed: 0, Total: total})

	processed, failed := 0, 0
	batchSize := settings.BatchSize
	if batchSize <= 0 {
		batchSize = 64
	}

	start := time.Now()
	for i := 0; i < len(candidates); i += batchSize {
		end := i + batchSize
		if end > len(candidates) {
			end = len(candidates)
		}
		batch := candidates[i:end]

		lastPath, err := r.runBatch(ctx, ii, setterID, jobLogID, settings, batch)
		if err != nil {
			log.Printf("[extraction] batch %d-%d failed: %v", i, end, err)
			failed += len(batch)
		} else {
			processed += len(batch)
		}

		elapsed := time.Since(start)
		var eta time.Duration
		if processed > 0 {
			perItem := elapsed / time.Duration(processed)
			eta = perItem * time.Duration(total-processed-failed)
		}
		reporter.OnProgress(ProgressEvent{Processed: processed + failed, Total: total, ETA: eta, LastItemPath: lastPath})

		if err := ctx.Err(); err != nil {
			return r.finalizeJobLog(jobLogID, setterID, processed, failed, "failed")
		}
	}

	status := "completed"
	if failed > 0 && processed == 0 {
		status = "failed"
	}
	return r.finalizeJobLog(jobLogID, setterID, processed, failed, status)
}

func (r *Runner) ensureSetter(dataType, name string) (int64, error) {
	tx, err := r.db.Begin()
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()
	id, err := r.writer.EnsureSetter(tx, dataType, name)
	if err != nil {
		return 0, err
	}
	return id, tx.Commit()
}

func (r *Runner) startJobLog(setterID int64, total int) (int64, error) {
	tx, err := r.db.Begin()
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()
	id, err := r.writer.StartJobLog(tx, setterID, total)
	if err != nil {
		return 0, err
	}
	return id, tx.Commit()
}

func (r *Runner) finalizeJobLog(jobLogID, setterID int64, processed, failed int, status string) (*storage.JobLog, error) {
	tx, err := r.db.Begin()
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()
	if err := r.writer.FinalizeJobLog(tx, jobLogID, processed, failed, status); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return &storage.JobLog{ID: jobLogID, SetterID: setterID, ProcessedItems: processed, FailedItems: failed, Status: status}, nil
}

// runBatch materializes inputs, calls Predict once, dispatches on data_type,
// and commits the batch's writes in a single transaction (spec.md §4.4 step
// 3, "Per-batch commits are permitted and recommended for long jobs").
func (r *Runner) runBatch(ctx context.Context, ii *extractors.InferenceID, setterID, jobLogID int64, settings extractors.EffectiveSettings, itemIDs []int64) (string, error) {
	inputs := make([]inference.Input, len(itemIDs))
	for i, itemID := range itemIDs {
		in, err := r.materializeInput(ii, itemID)
		if err != nil {
			return "", fmt.Errorf("failed to materialize input for item %d: %w", itemID, err)
		}
		inputs[i] = in
	}

	cacheKey := fmt.Sprintf("%s/%s", ii.Group, ii.ID)
	outputs, err := r.client.Predict(ctx, ii.ID, cacheKey, 1, 300, inputs)
	if err != nil {
		return "", fmt.Errorf("predict failed: %w", err)
	}
	if len(outputs) != len(itemIDs) {
		return "", fmt.Errorf("predict returned %d outputs for %d inputs", len(outputs), len(itemIDs))
	}

	tx, err := r.db.Begin()
	if err != nil {
		return "", err
	}
	defer tx.Rollback()

	var lastPath string
	for i, itemID := range itemIDs {
		if err := r.writeOutput(tx, ii, setterID, jobLogID, itemID, outputs[i]); err != nil {
			return "", fmt.Errorf("failed to write output for item %d: %w", itemID, err)
		}
		if files, err := r.reader.ListFilesForItem(itemID); err == nil && len(files) > 0 {
			lastPath = files[0].Path
		}
	}

	return lastPath, tx.Commit()
}

// materializeInput resolves inputs via the input_spec handler named in the
// registry (spec.md §4.4 step 3). The concrete handlers (file-bytes,
// thumbnail, sampled frames, audio chunks) are the out-of-scope filesystem
// layer's concern (spec.md §1); this only resolves the "derived text/tags
// pulled from the store" handler, which is in-scope for C5: a
// text-embedding setter deriving from another setter's already-extracted
// text (e.g. captions or OCR output) rather than from raw file bytes.
func (r *Runner) materializeInput(ii *extractors.InferenceID, itemID int64) (inference.Input, error) {
	if ii.InputSpec.Handler != "derived_text" {
		return inference.Input{Structured: map[string]any{"item_id": itemID}}, nil
	}

	sourceSetter, _ := ii.InputSpec.Opts["source_setter"].(string)
	if sourceSetter == "" {
		return inference.Input{}, fmt.Errorf("%s/%s: derived_text handler has no source_setter configured", ii.Group, ii.ID)
	}
	text, err := r.reader.GetExtractedTextForItem(itemID, sourceSetter)
	if err != nil {
		return inference.Input{}, fmt.Errorf("derived_text lookup for item %d from %s: %w", itemID, sourceSetter, err)
	}
	return inference.Input{Structured: map[string]any{
		"text":     text.Text,
		"language": text.Language,
	}}, nil
}

func (r *Runner) writeOutput(tx *sql.Tx, ii *extractors.InferenceID, setterID, jobLogID, itemID int64, out inference.Output) error {
	switch ii.DataType {
	case extractors.DataTypeTags:
		return r.writeTagsOutput(tx, setterID, jobLogID, itemID, out)
	case extractors.DataTypeText:
		return r.writeTextOutput(tx, setterID, jobLogID, itemID, out)
	case extractors.DataTypeCLIP, extractors.DataTypeTextEmbedding:
		return r.writeEmbeddingOutput(tx, setterID, jobLogID, itemID, out, ii.DataType)
	default:
		return fmt.Errorf("unsupported data_type %s", ii.DataType)
	}
}

func (r *Runner) writeTagsOutput(tx *sql.Tx, setterID, jobLogID, itemID int64, out inference.Output) error {
	samples, mainNamespace, err := decodeTagSamples(out.Structured)
	if err != nil {
		return err
	}
	return WriteTagResult(tx, r.writer, itemID, setterID, jobLogID, mainNamespace, samples)
}

func (r *Runner) writeTextOutput(tx *sql.Tx, setterID, jobLogID, itemID int64, out inference.Output) error {
	text, _ := out.Structured["text"].(string)
	language, _ := out.Structured["language"].(string)
	langConf, _ := out.Structured["language_confidence"].(float64)
	conf, _ := out.Structured["confidence"].(float64)

	dataID, err := r.writer.InsertItemData(tx, storage.ItemData{
		ItemID: itemID, SetterID: setterID, DataType: "text", JobID: jobLogID,
	})
	if err != nil {
		return err
	}
	return r.writer.WriteExtractedText(tx, storage.ExtractedText{
		ID: dataID, Text: text, Language: language, LanguageConfidence: langConf,
		Confidence: conf, TextLength: len(text),
	})
}

func (r *Runner) writeEmbeddingOutput(tx *sql.Tx, setterID, jobLogID, itemID int64, out inference.Output, dataType extractors.DataType) error {
	vec, err := decodeFloat32LE(out.Bytes)
	if err != nil {
		return fmt.Errorf("failed to decode embedding bytes: %w", err)
	}

	var sourceID *int64
	if sid, ok := out.Structured["source_id"].(float64); ok {
		id := int64(sid)
		sourceID = &id
	}

	dataID, err := r.writer.InsertItemData(tx, storage.ItemData{
		ItemID: itemID, SetterID: setterID, DataType: string(dataType), SourceID: sourceID, JobID: jobLogID,
	})
	if err != nil {
		return err
	}
	return r.writer.WriteEmbedding(tx, storage.Embedding{ID: dataID, Embedding: vec})
}

func decodeFloat32LE(b []byte) ([]float32, error) {
	if len(b)%4 != 0 {
		return nil, fmt.Errorf("embedding byte length %d is not a multiple of 4", len(b))
	}
	out := make([]float32, len(b)/4)
	for i := range out {
		bits := binary.LittleEndian.Uint32(b[i*4 : i*4+4])
		out[i] = math.Float32frombits(bits)
	}
	return out, nil
}

// decodeTagSamples parses the inference service's structured tags payload
// into TagSamples. Expected shape: {"main_namespace": str,
// "rating_severity": [str], "samples": [{namespace: {tag: score}}]}.
func decodeTagSamples(structured map[string]any) ([]TagSample, string, error) {
	mainNamespace, _ := structured["main_namespace"].(string)

	var severity []string
	if raw, ok := structured["rating_severity"].([]any); ok {
		for _, v := range raw {
			if s, ok := v.(string); ok {
				severity = append(severity, s)
			}
		}
	}

	rawSamples, ok := structured["samples"].([]any)
	if !ok {
		return nil, mainNamespace, fmt.Errorf("tags output missing samples array")
	}

	samples := make([]TagSample, 0, len(rawSamples))
	for _, rs := range rawSamples {
		nsMap, ok := rs.(map[string]any)
		if !ok {
			continue
		}
		var nts []NamespaceTags
		for ns, scoresRaw := range nsMap {
			scoreMap, ok := scoresRaw.(map[string]any)
			if !ok {
				continue
			}
			scores := make(map[string]float64, len(scoreMap))
			for tag, v := range scoreMap {
				if f, ok := v.(float64); ok {
					scores[tag] = f
				}
			}
			nts = append(nts, NamespaceTags{Namespace: ns, Scores: scores})
		}
		samples = append(samples, TagSample{MainNamespace: mainNamespace, RatingSeverity: severity, Tags: nts})
	}
	return samples, mainNamespace, nil
}
