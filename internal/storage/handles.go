package storage

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "github.com/mattn/go-sqlite3"
)

// Paths locates the three logical databases the store adapter attaches
// into one connection: index (items/files/item_data/embeddings/tags),
// user_data (bookmarks, rules), and storage (derived blobs). Mirrors
// spec.md §4.1.
type Paths struct {
	IndexDB    string
	UserDataDB string
	StorageDB  string
}

// Handle is one logical store session: a single SQLite connection with
// user_data and storage ATTACHed alongside the main (index) schema, so PQL
// queries can join across all three with plain table-qualified SQL
// (main.items, user_data.bookmarks, storage.*). Grounded byte-for-byte on
// original_source's db/__init__.py:get_database_connection - a single
// sqlite3.Connection with two ATTACH DATABASE statements, not three
// independent handles.
//
// database/sql pools multiple underlying driver connections by default,
// but ATTACH is connection-local in SQLite: a second pooled connection
// would see only the main schema. DB is therefore pinned to exactly one
// open connection (SetMaxOpenConns(1)) so the attachments always apply.
type Handle struct {
	DB       *sql.DB
	readOnly bool
}

// OpenReadOnly attaches all three databases `?mode=ro`, forbidding any
// write. Every handle has foreign keys on; the vector extension is loaded
// process-wide via InitVectorExtension, called once at process start.
func OpenReadOnly(paths Paths) (*Handle, error) {
	for _, p := range []string{paths.IndexDB, paths.UserDataDB, paths.StorageDB} {
		if _, err := os.Stat(p); os.IsNotExist(err) {
			return nil, fmt.Errorf("database not found at %s", p)
		}
	}

	db, err := openMain(paths.IndexDB, true)
	if err != nil {
		return nil, fmt.Errorf("failed to open index db read-only: %w", err)
	}
	if err := attach(db, "storage", paths.StorageDB, true, false); err != nil {
		db.Close()
		return nil, err
	}
	if err := attach(db, "user_data", paths.UserDataDB, true, false); err != nil {
		db.Close()
		return nil, err
	}
	if err := finalizePragmas(db); err != nil {
		db.Close()
		return nil, err
	}

	return &Handle{DB: db, readOnly: true}, nil
}

// OpenWrite opens index and storage writable (WAL journal mode); user_data
// is attached writable too unless userDataReadOnly is set, matching
// spec.md §4.1's "optional user_data_wl". embeddingDimensions, if > 0,
// ensures the index db's vec0 table exists for the configured
// dimensionality.
func OpenWrite(paths Paths, userDataReadOnly bool, embeddingDimensions int) (*Handle, error) {
	for _, p := range []string{paths.IndexDB, paths.StorageDB} {
		if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create directory for %s: %w", p, err)
		}
	}
	if err := os.MkdirAll(filepath.Dir(paths.UserDataDB), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create directory for %s: %w", paths.UserDataDB, err)
	}

	db, err := openMain(paths.IndexDB, false)
	if err != nil {
		return nil, fmt.Errorf("failed to open index db: %w", err)
	}
	if _, err := db.Exec("PRAGMA main.journal_mode = WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable WAL on index: %w", err)
	}
	if err := attach(db, "storage", paths.StorageDB, false, true); err != nil {
		db.Close()
		return nil, err
	}
	if err := attach(db, "user_data", paths.UserDataDB, userDataReadOnly, !userDataReadOnly); err != nil {
		db.Close()
		return nil, err
	}
	if err := finalizePragmas(db); err != nil {
		db.Close()
		return nil, err
	}

	h := &Handle{DB: db, readOnly: false}

	if embeddingDimensions > 0 {
		if err := CreateVectorIndex(db, embeddingDimensions); err != nil {
			h.Close()
			return nil, err
		}
	}

	return h, nil
}

func openMain(path string, readOnly bool) (*sql.DB, error) {
	dsn := path
	if readOnly {
		dsn = fmt.Sprintf("file:%s?mode=ro", path)
	}
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	return db, nil
}

// attach issues ATTACH DATABASE for one of the two secondary schemas
// against the handle's single connection.
func attach(db *sql.DB, schema, path string, readOnly, wal bool) error {
	dsn := path
	if readOnly {
		dsn = fmt.Sprintf("file:%s?mode=ro", path)
	}
	if _, err := db.Exec(fmt.Sprintf("ATTACH DATABASE '%s' AS %s", dsn, schema)); err != nil {
		return fmt.Errorf("failed to attach %s database: %w", schema, err)
	}
	if wal {
		if _, err := db.Exec(fmt.Sprintf("PRAGMA %s.journal_mode = WAL", schema)); err != nil {
			return fmt.Errorf("failed to enable WAL on %s: %w", schema, err)
		}
	}
	return nil
}

func finalizePragmas(db *sql.DB) error {
	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		return fmt.Errorf("failed to enable foreign keys: %w", err)
	}
	return nil
}

// ReadOnly reports whether this handle forbids writes.
func (h *Handle) ReadOnly() bool {
	return h.readOnly
}

// Close releases the connection (and, with it, both attachments).
func (h *Handle) Close() error {
	if h.DB == nil {
		return nil
	}
	return h.DB.Close()
}
