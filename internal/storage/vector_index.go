package storage

import (
	"database/sql"
	"fmt"

	sqlite_vec "github.com/asg017/sqlite-vec-go-bindings/cgo"
	_ "github.com/mattn/go-sqlite3"
)

// InitVectorExtension registers the sqlite-vec extension with all future
// database connections. Must be called once, before opening any handle.
func InitVectorExtension() {
	sqlite_vec.Auto()
}

// SerializeEmbedding packs a float32 vector into the store's native
// little-endian blob format (spec.md §4.9), shared by the writer and the
// search facade's query-vector re-encoding path.
func SerializeEmbedding(v []float32) ([]byte, error) {
	return sqlite_vec.SerializeFloat32(v)
}

// CreateVectorIndex creates a vec0 virtual table keyed by item_data.id for
// KNN lookups against a single query vector (QueryVectorSimilarity). It
// must be called outside a transaction: vec0 DDL is not transactional.
//
// The PQL similarity planner (internal/pql/similarity.go) does NOT query
// this index - it self-joins the embeddings table directly and calls
// vec_distance_cosine/vec_distance_L2 as scalar functions, because it
// compares arbitrary pairs of stored vectors rather than ranking against one
// query vector. This index exists only for single-query KNN. Because vec0
// fixes one dimensionality per table, it only serves setters whose output
// width matches `dimensions`; mixed-width setters fall back to the scalar
// path exclusively.
func CreateVectorIndex(db *sql.DB, dimensions int) error {
	createSQL := fmt.Sprintf(`
		CREATE VIRTUAL TABLE IF NOT EXISTS item_data_vec USING vec0(
			data_id INTEGER PRIMARY KEY,
			embedding float[%d]
		)
	`, dimensions)

	if _, err := db.Exec(createSQL); err != nil {
		return fmt.Errorf("failed to create vector index: %w", err)
	}
	return nil
}

// UpsertVectorIndex inserts or replaces vectors for the given item_data IDs.
// vec0 doesn't support INSERT OR REPLACE, so each row is deleted then
// re-inserted. Vectors whose width doesn't match the index dimensions are
// skipped - they're still queryable through the scalar path.
func UpsertVectorIndex(tx *sql.Tx, dimensions int, rows []Embedding) error {
	if len(rows) == 0 {
		return nil
	}

	deleteStmt, err := tx.Prepare("DELETE FROM item_data_vec WHERE data_id = ?")
	if err != nil {
		return fmt.Errorf("failed to prepare vector delete statement: %w", err)
	}
	defer deleteStmt.Close()

	insertStmt, err := tx.Prepare("INSERT INTO item_data_vec (data_id, embedding) VALUES (?, ?)")
	if err != nil {
		return fmt.Errorf("failed to prepare vector insert statement: %w", err)
	}
	defer insertStmt.Close()

	for _, row := range rows {
		if len(row.Embedding) != dimensions {
			continue
		}
		if _, err := deleteStmt.Exec(row.ID); err != nil {
			return fmt.Errorf("failed to delete vector for data_id %d: %w", row.ID, err)
		}
		embBytes, err := sqlite_vec.SerializeFloat32(row.Embedding)
		if err != nil {
			return fmt.Errorf("failed to serialize embedding for data_id %d: %w", row.ID, err)
		}
		if _, err := insertStmt.Exec(row.ID, embBytes); err != nil {
			return fmt.Errorf("failed to insert vector for data_id %d: %w", row.ID, err)
		}
	}
	return nil
}

// DeleteVectorsByDataIDs removes vec0 rows for item_data rows being deleted.
func DeleteVectorsByDataIDs(tx *sql.Tx, dataIDs []int64) error {
	if len(dataIDs) == 0 {
		return nil
	}
	stmt, err := tx.Prepare("DELETE FROM item_data_vec WHERE data_id = ?")
	if err != nil {
		return fmt.Errorf("failed to prepare delete statement: %w", err)
	}
	defer stmt.Close()

	for _, id := range dataIDs {
		if _, err := stmt.Exec(id); err != nil {
			return fmt.Errorf("failed to delete vector for data_id %d: %w", id, err)
		}
	}
	return nil
}

// VectorSearchResult is one KNN hit: the item_data row and its distance to
// the query vector (lower is more similar, regardless of distance function).
type VectorSearchResult struct {
	DataID   int64
	Distance float64
}

// QueryVectorSimilarity runs a K-nearest-neighbors search over item_data_vec
// using cosine distance, ascending (closest first). Callers join the
// returned DataIDs back to item_data/items for full rows.
func QueryVectorSimilarity(db *sql.DB, queryEmb []float32, limit int) ([]VectorSearchResult, error) {
	queryBytes, err := sqlite_vec.SerializeFloat32(queryEmb)
	if err != nil {
		return nil, fmt.Errorf("failed to serialize query embedding: %w", err)
	}

	rows, err := db.Query(`
		SELECT data_id, vec_distance_cosine(embedding, ?) AS distance
		FROM item_data_vec
		ORDER BY distance
		LIMIT ?
	`, queryBytes, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query vector index: %w", err)
	}
	defer rows.Close()

	var results []VectorSearchResult
	for rows.Next() {
		var r VectorSearchResult
		if err := rows.Scan(&r.DataID, &r.Distance); err != nil {
			return nil, fmt.Errorf("failed to scan vector result: %w", err)
		}
		results = append(results, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating vector results: %w", err)
	}
	return results, nil
}

// VectorIndexStats reports the size of the vec0 index.
type VectorIndexStats struct {
	TotalVectors int
	Dimensions   int
}

func GetVectorIndexStats(db *sql.DB, dimensions int) (*VectorIndexStats, error) {
	stats := &VectorIndexStats{Dimensions: dimensions}
	if err := db.QueryRow("SELECT COUNT(*) FROM item_data_vec").Scan(&stats.TotalVectors); err != nil {
		return nil, fmt.Errorf("failed to query vector count: %w", err)
	}
	return stats, nil
}
