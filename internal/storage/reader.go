package storage

import (
	"database/sql"
	"fmt"
)

// Reader holds the simple point lookups shared by the extraction runner,
// setter-data deletion, and the extractor registry - the read-side counterpart to
// Writer. Bulk/dynamic read queries (candidate sets, search rows) are built
// ad hoc with squirrel by their own packages; this file only covers lookups
// reused verbatim across them.
type Reader struct {
	db DBTX
}

// DBTX is satisfied by both *sql.DB and *sql.Tx, so Reader works inside or
// outside a transaction.
type DBTX interface {
	QueryRow(query string, args ...any) *sql.Row
	Query(query string, args ...any) (*sql.Rows, error)
}

func NewReader(db DBTX) *Reader {
	return &Reader{db: db}
}

// GetItemBySHA256 looks up an item by its content hash.
func (r *Reader) GetItemBySHA256(sha256 string) (*Item, error) {
	var item Item
	err := r.db.QueryRow(`
		SELECT id, sha256, md5, type, size, width, height, duration,
		       audio_tracks, video_tracks, subtitle_tracks, time_added
		FROM items WHERE sha256 = ?
	`, sha256).Scan(&item.ID, &item.SHA256, &item.MD5, &item.Type, &item.Size,
		&item.Width, &item.Height, &item.Duration, &item.AudioTracks,
		&item.VideoTracks, &item.SubtitleTracks, &item.TimeAdded)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("no item found with sha256 %s", sha256)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get item %s: %w", sha256, err)
	}
	return &item, nil
}

// GetSetterByID resolves a setter_id to its (type, name) pair.
func (r *Reader) GetSetterByID(id int64) (*Setter, error) {
	var s Setter
	err := r.db.QueryRow("SELECT id, type, name FROM setters WHERE id = ?", id).
		Scan(&s.ID, &s.Type, &s.Name)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("no setter found with id %d", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get setter %d: %w", id, err)
	}
	return &s, nil
}

// GetSetterByName resolves a (type, name) pair to its id, returning
// sql.ErrNoRows unmodified so callers can distinguish "not yet run" from a
// real failure (e.g. extraction.DeleteSetterData for a setter that never ran).
func (r *Reader) GetSetterByName(setterType, setterName string) (*Setter, error) {
	var s Setter
	err := r.db.QueryRow("SELECT id, type, name FROM setters WHERE type = ? AND name = ?",
		setterType, setterName).Scan(&s.ID, &s.Type, &s.Name)
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// ListFilesForItem returns every File row for an item_id, used by the
// extraction runner to report the last processed item's path.
func (r *Reader) ListFilesForItem(itemID int64) ([]File, error) {
	rows, err := r.db.Query(`
		SELECT id, item_id, path, filename, last_modified
		FROM files WHERE item_id = ?
	`, itemID)
	if err != nil {
		return nil, fmt.Errorf("failed to list files for item %d: %w", itemID, err)
	}
	defer rows.Close()

	var files []File
	for rows.Next() {
		var f File
		if err := rows.Scan(&f.ID, &f.ItemID, &f.Path, &f.Filename, &f.LastModified); err != nil {
			return nil, err
		}
		files = append(files, f)
	}
	return files, rows.Err()
}

// GetExtractedText fetches the ExtractedText row for an item_data id.
func (r *Reader) GetExtractedText(itemDataID int64) (*ExtractedText, error) {
	var t ExtractedText
	t.ID = itemDataID
	err := r.db.QueryRow(`
		SELECT text, language, language_confidence, confidence, text_length
		FROM extracted_text WHERE id = ?
	`, itemDataID).Scan(&t.Text, &t.Language, &t.LanguageConfidence, &t.Confidence, &t.TextLength)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("no extracted_text found for item_data %d", itemDataID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get extracted_text for item_data %d: %w", itemDataID, err)
	}
	return &t, nil
}

// GetExtractedTextForItem resolves the most recent extracted_text row an
// item has from a named source setter, used by the extraction runner's
// derived_text input handler to feed one extractor's stored output (OCR,
// captioning, transcription) into another, e.g. a text-embedding setter
// deriving from a caption setter's text.
func (r *Reader) GetExtractedTextForItem(itemID int64, setterName string) (*ExtractedText, error) {
	var t ExtractedText
	err := r.db.QueryRow(`
		SELECT extracted_text.id, extracted_text.text, extracted_text.language,
		       extracted_text.language_confidence, extracted_text.confidence, extracted_text.text_length
		FROM extracted_text
		JOIN item_data ON item_data.id = extracted_text.id
		JOIN setters ON setters.id = item_data.setter_id
		WHERE item_data.item_id = ? AND setters.name = ?
		ORDER BY item_data.id DESC LIMIT 1
	`, itemID, setterName).Scan(&t.ID, &t.Text, &t.Language, &t.LanguageConfidence, &t.Confidence, &t.TextLength)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("no extracted_text found for item %d from setter %s", itemID, setterName)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get extracted_text for item %d setter %s: %w", itemID, setterName, err)
	}
	return &t, nil
}

// GetGroupSettings reads persisted batch_size/threshold overrides for an
// extractor group (SUPPLEMENTED FEATURE C.3, models.py
// get_group_batch_size/get_group_threshold).
func (r *Reader) GetGroupSettings(groupName string) (*GroupSettings, error) {
	gs := &GroupSettings{GroupName: groupName}
	err := r.db.QueryRow(
		"SELECT batch_size, threshold FROM group_settings WHERE group_name = ?", groupName).
		Scan(&gs.BatchSize, &gs.Threshold)
	if err == sql.ErrNoRows {
		return gs, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get group settings for %s: %w", groupName, err)
	}
	return gs, nil
}
