package storage

import (
	"database/sql"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
)

// Writer is the transactional write path for the index database: items,
// files, setters, item_data and its derived rows (tags, extracted_text,
// embeddings), and job logs. Mirrors spec.md §3 invariants 1-4 and the
// Extraction Job Runner's "single transaction per batch" discipline (§4.4).
//
// Built on squirrel + RunWith(tx) OR REPLACE upserts, generalized from a
// single files table to the full item/item_data graph.
type Writer struct {
	db *sql.DB
}

func NewWriter(db *sql.DB) *Writer {
	return &Writer{db: db}
}

// EnsureItem inserts the Item if its sha256 is new, otherwise returns the
// existing row's id. Item identity is by sha256 (invariant 5).
func (w *Writer) EnsureItem(tx *sql.Tx, item Item) (int64, error) {
	var id int64
	err := tx.QueryRow("SELECT id FROM items WHERE sha256 = ?", item.SHA256).Scan(&id)
	if err == nil {
		return id, nil
	}
	if err != sql.ErrNoRows {
		return 0, fmt.Errorf("failed to look up item by sha256: %w", err)
	}

	if item.TimeAdded == "" {
		item.TimeAdded = time.Now().UTC().Format(time.RFC3339)
	}
	res, err := sq.Insert("items").
		Columns("sha256", "md5", "type", "size", "width", "height", "duration",
			"audio_tracks", "video_tracks", "subtitle_tracks", "time_added").
		Values(item.SHA256, item.MD5, item.Type, item.Size, item.Width, item.Height,
			item.Duration, item.AudioTracks, item.VideoTracks, item.SubtitleTracks, item.TimeAdded).
		RunWith(tx).
		Exec()
	if err != nil {
		return 0, fmt.Errorf("failed to insert item %s: %w", item.SHA256, err)
	}
	return res.LastInsertId()
}

// EnsureFile inserts or updates the File row for a path (unique by path,
// invariant 5). item_id must reference an already-committed Item.
func (w *Writer) EnsureFile(tx *sql.Tx, file File) (int64, error) {
	res, err := sq.Insert("files").
		Columns("item_id", "path", "filename", "last_modified").
		Values(file.ItemID, file.Path, file.Filename, file.LastModified).
		Options("OR REPLACE").
		RunWith(tx).
		Exec()
	if err != nil {
		return 0, fmt.Errorf("failed to upsert file %s: %w", file.Path, err)
	}
	return res.LastInsertId()
}

// EnsureSetter inserts the Setter if (type, name) is new, otherwise returns
// the existing id.
func (w *Writer) EnsureSetter(tx *sql.Tx, setterType, setterName string) (int64, error) {
	var id int64
	err := tx.QueryRow("SELECT id FROM setters WHERE type = ? AND name = ?", setterType, setterName).Scan(&id)
	if err == nil {
		return id, nil
	}
	if err != sql.ErrNoRows {
		return 0, fmt.Errorf("failed to look up setter %s/%s: %w", setterType, setterName, err)
	}

	res, err := sq.Insert("setters").
		Columns("type", "name").
		Values(setterType, setterName).
		RunWith(tx).
		Exec()
	if err != nil {
		return 0, fmt.Errorf("failed to insert setter %s/%s: %w", setterType, setterName, err)
	}
	return res.LastInsertId()
}

// InsertItemData inserts one ItemData row and returns its id. Does not
// write any derived row (extracted_text/embeddings/tags_items) - callers
// do that via WriteExtractedText/WriteEmbedding/WriteTags, enforcing
// invariant 2 (embedding exists iff data_type is clip/text-embedding).
func (w *Writer) InsertItemData(tx *sql.Tx, d ItemData) (int64, error) {
	res, err := sq.Insert("item_data").
		Columns("item_id", "setter_id", "data_type", "source_id", "data_index", "job_id").
		Values(d.ItemID, d.SetterID, d.DataType, d.SourceID, d.DataIndex, d.JobID).
		RunWith(tx).
		Exec()
	if err != nil {
		return 0, fmt.Errorf("failed to insert item_data: %w", err)
	}
	return res.LastInsertId()
}

// WriteExtractedText inserts the ExtractedText row for an already-inserted
// ItemData of data_type "text" or "tags" (the tag-text rows from §4.4 step
// 3, data_index 0 and 1 - see SUPPLEMENTED FEATURE C.2).
func (w *Writer) WriteExtractedText(tx *sql.Tx, t ExtractedText) error {
	_, err := sq.Insert("extracted_text").
		Columns("id", "text", "language", "language_confidence", "confidence", "text_length").
		Values(t.ID, t.Text, t.Language, t.LanguageConfidence, t.Confidence, t.TextLength).
		RunWith(tx).
		Exec()
	if err != nil {
		return fmt.Errorf("failed to write extracted_text for item_data %d: %w", t.ID, err)
	}
	return nil
}

// WriteEmbedding inserts the Embedding row for an ItemData of data_type
// "clip" or "text-embedding" (invariant 2), packing the vector as a
// little-endian float32 blob via sqlite-vec's serializer.
func (w *Writer) WriteEmbedding(tx *sql.Tx, e Embedding) error {
	blob, err := SerializeEmbedding(e.Embedding)
	if err != nil {
		return fmt.Errorf("failed to serialize embedding for item_data %d: %w", e.ID, err)
	}
	_, err = sq.Insert("embeddings").
		Columns("id", "embedding").
		Values(e.ID, blob).
		RunWith(tx).
		Exec()
	if err != nil {
		return fmt.Errorf("failed to write embedding for item_data %d: %w", e.ID, err)
	}
	return nil
}

// WriteTags inserts TagItem rows for a batch of (namespace, name) tags
// produced by setterID against itemID, creating Tag rows as needed.
// Confidence is the per-tag score from the aggregated extractor output
// (spec.md §4.4 step 3 "combine multi-sample results by taking the max
// score per tag").
func (w *Writer) WriteTags(tx *sql.Tx, itemID, setterID int64, tags map[TagRef]float64) error {
	for ref, confidence := range tags {
		tagID, err := w.ensureTag(tx, ref.Namespace, ref.Name)
		if err != nil {
			return err
		}
		_, err = sq.Insert("tags_items").
			Columns("item_id", "tag_id", "setter_id", "confidence").
			Values(itemID, tagID, setterID, confidence).
			Options("OR REPLACE").
			RunWith(tx).
			Exec()
		if err != nil {
			return fmt.Errorf("failed to write tag %s:%s for item %d: %w", ref.Namespace, ref.Name, itemID, err)
		}
	}
	return nil
}

// TagRef identifies a Tag by its (namespace, name) pair.
type TagRef struct {
	Namespace string
	Name      string
}

func (w *Writer) ensureTag(tx *sql.Tx, namespace, name string) (int64, error) {
	var id int64
	err := tx.QueryRow("SELECT id FROM tags WHERE namespace = ? AND name = ?", namespace, name).Scan(&id)
	if err == nil {
		return id, nil
	}
	if err != sql.ErrNoRows {
		return 0, fmt.Errorf("failed to look up tag %s:%s: %w", namespace, name, err)
	}
	res, err := sq.Insert("tags").
		Columns("namespace", "name").
		Values(namespace, name).
		RunWith(tx).
		Exec()
	if err != nil {
		return 0, fmt.Errorf("failed to insert tag %s:%s: %w", namespace, name, err)
	}
	return res.LastInsertId()
}

// StartJobLog inserts a running JobLog row (§4.4 step 1) and returns its id.
func (w *Writer) StartJobLog(tx *sql.Tx, setterID int64, totalItems int) (int64, error) {
	res, err := sq.Insert("extraction_log").
		Columns("setter_id", "start_time", "total_items", "status").
		Values(setterID, time.Now().UTC().Format(time.RFC3339), totalItems, "running").
		RunWith(tx).
		Exec()
	if err != nil {
		return 0, fmt.Errorf("failed to start job log: %w", err)
	}
	return res.LastInsertId()
}

// FinalizeJobLog closes out a JobLog row with final counts and status
// (§4.4 step 6: "finalize JobLog (end_time, counts, status)").
func (w *Writer) FinalizeJobLog(tx *sql.Tx, jobLogID int64, processed, failed int, status string) error {
	_, err := sq.Update("extraction_log").
		Set("end_time", time.Now().UTC().Format(time.RFC3339)).
		Set("processed_items", processed).
		Set("failed_items", failed).
		Set("status", status).
		Where(sq.Eq{"id": jobLogID}).
		RunWith(tx).
		Exec()
	if err != nil {
		return fmt.Errorf("failed to finalize job log %d: %w", jobLogID, err)
	}
	return nil
}

// SetGroupSettings persists a batch_size/threshold override for an
// extractor group (SUPPLEMENTED FEATURE C.3).
func (w *Writer) SetGroupSettings(tx *sql.Tx, gs GroupSettings) error {
	_, err := sq.Insert("group_settings").
		Columns("group_name", "batch_size", "threshold").
		Values(gs.GroupName, gs.BatchSize, gs.Threshold).
		Options("OR REPLACE").
		RunWith(tx).
		Exec()
	if err != nil {
		return fmt.Errorf("failed to set group settings for %s: %w", gs.GroupName, err)
	}
	return nil
}

// DeleteSetterData cascades deletion of a Setter's item_data (and, via FK
// ON DELETE CASCADE, its extracted_text/embeddings/tags_items rows), then
// collects orphan Tag rows left with no TagItem reference (invariant 4,
// SUPPLEMENTED FEATURE C.5, grounded on models.py's delete_orphan_tags).
func (w *Writer) DeleteSetterData(tx *sql.Tx, setterID int64) error {
	if _, err := tx.Exec("DELETE FROM item_data WHERE setter_id = ?", setterID); err != nil {
		return fmt.Errorf("failed to delete item_data for setter %d: %w", setterID, err)
	}
	if _, err := tx.Exec("DELETE FROM tags_items WHERE setter_id = ?", setterID); err != nil {
		return fmt.Errorf("failed to delete tags_items for setter %d: %w", setterID, err)
	}
	return w.CollectOrphanTags(tx)
}

// CollectOrphanTags removes Tag rows with no remaining TagItem reference.
func (w *Writer) CollectOrphanTags(tx *sql.Tx) error {
	_, err := tx.Exec(`
		DELETE FROM tags
		WHERE id NOT IN (SELECT DISTINCT tag_id FROM tags_items)
	`)
	if err != nil {
		return fmt.Errorf("failed to collect orphan tags: %w", err)
	}
	return nil
}
