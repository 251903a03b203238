package extraction

import (
	"database/sql"
	"fmt"

	"github.com/panoptikon-go/panoptikon/internal/extractors"
	"github.com/panoptikon-go/panoptikon/internal/storage"
)

// DeleteSetterData runs a data_deletion job (spec.md §4.5): resolve the
// setter backing inference-id "group/id" and remove every row it produced.
// Reuses Run's single-transaction-per-step discipline, scaled down from a
// batch-commit loop to a single DeleteSetterData call.
func DeleteSetterData(db *sql.DB, reader *storage.Reader, registry *extractors.Registry, group, id string) error {
	ii, ok := registry.Get(group, id)
	if !ok {
		return fmt.Errorf("unknown inference-id %s/%s", group, id)
	}

	setter, err := reader.GetSetterByName(string(ii.DataType), id)
	if err != nil {
		return fmt.Errorf("no setter found for %s/%s: %w", group, id, err)
	}

	tx, err := db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	writer := storage.NewWriter(db)
	if err := writer.DeleteSetterData(tx, setter.ID); err != nil {
		return fmt.Errorf("failed to delete data for %s/%s: %w", group, id, err)
	}
	return tx.Commit()
}
