package storage

import (
	"database/sql"
	"fmt"
)

// CreateIndexSchema creates all tables, indexes, and virtual tables for the
// index database (items, files, setters, item_data, extracted_text,
// embeddings, tags, tags_items, extraction_log, group_settings).
//
// Uses a transaction for atomicity - all schema creation succeeds or fails
// together. The FTS5 and vec0 virtual tables must be created outside the
// transaction (SQLite restriction on virtual table DDL).
//
// Must be called with PRAGMA foreign_keys = ON and the vector extension
// already loaded (InitVectorExtension).
func CreateIndexSchema(db *sql.DB, embeddingDimensions int) error {
	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin schema transaction: %w", err)
	}
	defer tx.Rollback() // Safe to call even after commit

	if _, err := tx.Exec("PRAGMA foreign_keys = ON"); err != nil {
		return fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	tables := []struct {
		name string
		ddl  string
	}{
		{"items", createItemsTable},
		{"files", createFilesTable},
		{"setters", createSettersTable},
		{"item_data", createItemDataTable},
		{"extracted_text", createExtractedTextTable},
		{"embeddings", createEmbeddingsTable},
		{"tags", createTagsTable},
		{"tags_items", createTagsItemsTable},
		{"extraction_log", createExtractionLogTable},
		{"group_settings", createGroupSettingsTable},
	}

	for _, table := range tables {
		if _, err := tx.Exec(table.ddl); err != nil {
			return fmt.Errorf("failed to create %s table: %w", table.name, err)
		}
	}

	for i, idx := range getAllIndexes() {
		if _, err := tx.Exec(idx); err != nil {
			return fmt.Errorf("failed to create index %d: %w", i+1, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit schema transaction: %w", err)
	}

	if embeddingDimensions > 0 {
		if err := CreateVectorIndex(db, embeddingDimensions); err != nil {
			return fmt.Errorf("failed to create vector index: %w", err)
		}
	}

	if err := createExtractedTextFTS(db); err != nil {
		return fmt.Errorf("failed to create extracted_text FTS: %w", err)
	}

	if err := createPathFTS(db); err != nil {
		return fmt.Errorf("failed to create path FTS: %w", err)
	}

	return nil
}

// CreateUserDataSchema creates the bookmarks and extraction_rules tables
// in the user_data schema. db must already have user_data ATTACHed
// (OpenWrite does this).
func CreateUserDataSchema(db *sql.DB) error {
	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin schema transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec("PRAGMA foreign_keys = ON"); err != nil {
		return fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	tables := []struct {
		name string
		ddl  string
	}{
		{"bookmarks", createBookmarksTable},
		{"extraction_rules", createExtractionRulesTable},
		{"extraction_rules_setters", createExtractionRulesSettersTable},
	}
	for _, table := range tables {
		if _, err := tx.Exec(table.ddl); err != nil {
			return fmt.Errorf("failed to create %s table: %w", table.name, err)
		}
	}

	if _, err := tx.Exec("CREATE INDEX user_data.idx_bookmarks_sha256 ON bookmarks(sha256)"); err != nil {
		return fmt.Errorf("failed to create bookmarks index: %w", err)
	}
	if _, err := tx.Exec("CREATE INDEX user_data.idx_rules_setters_rule ON extraction_rules_setters(rule_id)"); err != nil {
		return fmt.Errorf("failed to create rule setters index: %w", err)
	}

	return tx.Commit()
}

// --- index DB tables ---

const createItemsTable = `
CREATE TABLE items (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    sha256 TEXT NOT NULL UNIQUE,
    md5 TEXT NOT NULL DEFAULT '',
    type TEXT NOT NULL,                 -- MIME type
    size INTEGER NOT NULL DEFAULT 0,
    width INTEGER,
    height INTEGER,
    duration REAL,
    audio_tracks INTEGER NOT NULL DEFAULT 0,
    video_tracks INTEGER NOT NULL DEFAULT 0,
    subtitle_tracks INTEGER NOT NULL DEFAULT 0,
    time_added TEXT NOT NULL
)
`

const createFilesTable = `
CREATE TABLE files (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    item_id INTEGER NOT NULL,
    path TEXT NOT NULL UNIQUE,
    filename TEXT NOT NULL,
    last_modified TEXT NOT NULL,
    FOREIGN KEY (item_id) REFERENCES items(id) ON DELETE CASCADE
)
`

const createSettersTable = `
CREATE TABLE setters (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    type TEXT NOT NULL,   -- output data type: tags|text|clip|text-embedding|...
    name TEXT NOT NULL,
    UNIQUE(type, name)
)
`

const createItemDataTable = `
CREATE TABLE item_data (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    item_id INTEGER NOT NULL,
    setter_id INTEGER NOT NULL,
    data_type TEXT NOT NULL,
    source_id INTEGER,        -- FK to another item_data, for derived outputs
    data_index INTEGER NOT NULL DEFAULT 0,
    job_id INTEGER NOT NULL,
    FOREIGN KEY (item_id) REFERENCES items(id) ON DELETE CASCADE,
    FOREIGN KEY (setter_id) REFERENCES setters(id) ON DELETE CASCADE,
    FOREIGN KEY (source_id) REFERENCES item_data(id) ON DELETE CASCADE
)
`

const createExtractedTextTable = `
CREATE TABLE extracted_text (
    id INTEGER PRIMARY KEY,   -- = item_data.id
    text TEXT NOT NULL,
    language TEXT NOT NULL DEFAULT '',
    language_confidence REAL NOT NULL DEFAULT 0,
    confidence REAL NOT NULL DEFAULT 0,
    text_length INTEGER NOT NULL DEFAULT 0,
    FOREIGN KEY (id) REFERENCES item_data(id) ON DELETE CASCADE
)
`

const createEmbeddingsTable = `
CREATE TABLE embeddings (
    id INTEGER PRIMARY KEY,   -- = item_data.id
    embedding BLOB NOT NULL,  -- packed little-endian float32
    FOREIGN KEY (id) REFERENCES item_data(id) ON DELETE CASCADE
)
`

const createTagsTable = `
CREATE TABLE tags (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    namespace TEXT NOT NULL,
    name TEXT NOT NULL,
    UNIQUE(namespace, name)
)
`

const createTagsItemsTable = `
CREATE TABLE tags_items (
    item_id INTEGER NOT NULL,
    tag_id INTEGER NOT NULL,
    setter_id INTEGER NOT NULL,
    confidence REAL NOT NULL DEFAULT 1.0,
    PRIMARY KEY (item_id, tag_id, setter_id),
    FOREIGN KEY (item_id) REFERENCES items(id) ON DELETE CASCADE,
    FOREIGN KEY (tag_id) REFERENCES tags(id) ON DELETE CASCADE,
    FOREIGN KEY (setter_id) REFERENCES setters(id) ON DELETE CASCADE
)
`

const createExtractionLogTable = `
CREATE TABLE extraction_log (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    setter_id INTEGER NOT NULL,
    start_time TEXT NOT NULL,
    end_time TEXT,
    total_items INTEGER NOT NULL DEFAULT 0,
    processed_items INTEGER NOT NULL DEFAULT 0,
    failed_items INTEGER NOT NULL DEFAULT 0,
    status TEXT NOT NULL DEFAULT 'running',
    FOREIGN KEY (setter_id) REFERENCES setters(id) ON DELETE CASCADE
)
`

const createGroupSettingsTable = `
CREATE TABLE group_settings (
    group_name TEXT PRIMARY KEY,
    batch_size INTEGER,
    threshold REAL
)
`

// --- user_data DB tables ---

const createBookmarksTable = `
CREATE TABLE user_data.bookmarks (
    namespace TEXT NOT NULL,
    sha256 TEXT NOT NULL,
    user TEXT NOT NULL,
    time_added TEXT NOT NULL,
    metadata TEXT,
    PRIMARY KEY (namespace, sha256, user)
)
`

const createExtractionRulesTable = `
CREATE TABLE user_data.extraction_rules (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    enabled INTEGER NOT NULL DEFAULT 1,
    rule TEXT NOT NULL   -- serialized RuleItemFilters JSON
)
`

const createExtractionRulesSettersTable = `
CREATE TABLE user_data.extraction_rules_setters (
    rule_id INTEGER NOT NULL,
    setter_type TEXT NOT NULL,
    setter_name TEXT NOT NULL,
    FOREIGN KEY (rule_id) REFERENCES user_data.extraction_rules(id) ON DELETE CASCADE
)
`

func getAllIndexes() []string {
	return []string{
		"CREATE INDEX idx_items_type ON items(type)",
		"CREATE INDEX idx_files_item_id ON files(item_id)",
		"CREATE INDEX idx_item_data_item_id ON item_data(item_id)",
		"CREATE INDEX idx_item_data_setter_id ON item_data(setter_id)",
		"CREATE INDEX idx_item_data_source_id ON item_data(source_id)",
		"CREATE INDEX idx_item_data_data_type ON item_data(data_type)",
		"CREATE INDEX idx_tags_items_tag_id ON tags_items(tag_id)",
		"CREATE INDEX idx_tags_items_setter_id ON tags_items(setter_id)",
		"CREATE INDEX idx_extraction_log_setter_id ON extraction_log(setter_id)",
	}
}

// createExtractedTextFTS creates the FTS5 table + sync triggers for full-text
// search over extracted_text.text (spec.md FTS filter).
func createExtractedTextFTS(db *sql.DB) error {
	if _, err := db.Exec(`
		CREATE VIRTUAL TABLE extracted_text_fts USING fts5(
			data_id UNINDEXED,
			text,
			tokenize = "unicode61"
		)
	`); err != nil {
		return fmt.Errorf("failed to create extracted_text_fts: %w", err)
	}

	triggers := []string{
		`CREATE TRIGGER extracted_text_fts_insert AFTER INSERT ON extracted_text
		BEGIN
			INSERT INTO extracted_text_fts(data_id, text) VALUES (NEW.id, NEW.text);
		END`,
		`CREATE TRIGGER extracted_text_fts_update AFTER UPDATE OF text ON extracted_text
		BEGIN
			DELETE FROM extracted_text_fts WHERE data_id = OLD.id;
			INSERT INTO extracted_text_fts(data_id, text) VALUES (NEW.id, NEW.text);
		END`,
		`CREATE TRIGGER extracted_text_fts_delete AFTER DELETE ON extracted_text
		BEGIN
			DELETE FROM extracted_text_fts WHERE data_id = OLD.id;
		END`,
	}
	for i, trig := range triggers {
		if _, err := db.Exec(trig); err != nil {
			return fmt.Errorf("failed to create extracted_text trigger %d: %w", i+1, err)
		}
	}
	return nil
}

// createPathFTS creates the FTS5 table + sync triggers for full-text search
// over files.path (spec.md PathFTS filter).
func createPathFTS(db *sql.DB) error {
	if _, err := db.Exec(`
		CREATE VIRTUAL TABLE files_path_fts USING fts5(
			file_id UNINDEXED,
			path,
			filename,
			tokenize = "unicode61 separators '._/-'"
		)
	`); err != nil {
		return fmt.Errorf("failed to create files_path_fts: %w", err)
	}

	triggers := []string{
		`CREATE TRIGGER files_path_fts_insert AFTER INSERT ON files
		BEGIN
			INSERT INTO files_path_fts(file_id, path, filename) VALUES (NEW.id, NEW.path, NEW.filename);
		END`,
		`CREATE TRIGGER files_path_fts_update AFTER UPDATE OF path, filename ON files
		BEGIN
			DELETE FROM files_path_fts WHERE file_id = OLD.id;
			INSERT INTO files_path_fts(file_id, path, filename) VALUES (NEW.id, NEW.path, NEW.filename);
		END`,
		`CREATE TRIGGER files_path_fts_delete AFTER DELETE ON files
		BEGIN
			DELETE FROM files_path_fts WHERE file_id = OLD.id;
		END`,
	}
	for i, trig := range triggers {
		if _, err := db.Exec(trig); err != nil {
			return fmt.Errorf("failed to create files_path_fts trigger %d: %w", i+1, err)
		}
	}
	return nil
}
