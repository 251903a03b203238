package pql

import (
	"fmt"
	"strings"
)

// compile implements Node for FTSFilter: full-text search over
// extracted_text.text via the extracted_text_fts virtual table (spec.md
// §4.6), entering item-data territory. Reuses the FTS5 virtual tables
// internal/storage/schema.go creates in C2.
func (f *FTSFilter) compile(c *compilation, parent *cte) (*cte, error) {
	if strings.TrimSpace(f.Text) == "" {
		return identity(parent, c), nil
	}
	base := parent
	if base == nil {
		base = c.rootCTE()
	}

	from := contextFrom(base, true) +
		" JOIN extracted_text_fts ON extracted_text_fts.data_id = extracted_text.id"

	var preds []string
	args := []any{f.Text}
	preds = append(preds, "extracted_text_fts MATCH ?")
	if len(f.SourceSetters) > 0 {
		preds = append(preds, inClause("setters.name", len(f.SourceSetters)))
		for _, s := range f.SourceSetters {
			args = append(args, s)
		}
	}
	if len(f.Languages) > 0 {
		preds = append(preds, inClause("extracted_text.language", len(f.Languages)))
		for _, l := range f.Languages {
			args = append(args, l)
		}
	}

	// Count queries never read order_rank, so skip the bm25() computation
	// for them.
	orderBy := !c.isCountQuery
	rankSelect := ""
	if orderBy {
		rankSelect = ", bm25(extracted_text_fts) AS order_rank"
	}
	body := fmt.Sprintf(
		"SELECT %s.file_id, %s.item_id%s%s FROM %s WHERE %s",
		base.name, base.name, dataIDSelect(base, true), rankSelect, from, strings.Join(preds, " AND "),
	)

	c.itemDataQuery = true
	ct := c.addCTE(body, args, true, orderBy)
	if orderBy {
		c.orderFilters = append(c.orderFilters, orderByFilter{cteName: ct.name, direction: OrderAsc, priority: f.Priority, hasDataID: true})
	}
	return ct, nil
}

// compile implements Node for PathFTSFilter: full-text search over
// files.path/files.filename via the files_path_fts virtual table.
func (f *PathFTSFilter) compile(c *compilation, parent *cte) (*cte, error) {
	if strings.TrimSpace(f.Query) == "" {
		return identity(parent, c), nil
	}
	base := parent
	if base == nil {
		base = c.rootCTE()
	}

	column := "path"
	if f.OnlyFilename {
		column = "filename"
	}
	from := fmt.Sprintf("%s JOIN files ON files.id = %s.file_id JOIN files_path_fts ON files_path_fts.file_id = files.id",
		base.name, base.name)

	orderBy := !c.isCountQuery
	rankSelect := ""
	if orderBy {
		rankSelect = ", bm25(files_path_fts) AS order_rank"
	}
	body := fmt.Sprintf(
		"SELECT %s.file_id, %s.item_id%s%s FROM %s WHERE files_path_fts.%s MATCH ?",
		base.name, base.name, dataIDSelect(base, c.itemDataQuery), rankSelect, from, column,
	)

	ct := c.addCTE(body, []any{f.Query}, c.itemDataQuery, orderBy)
	if orderBy {
		c.orderFilters = append(c.orderFilters, orderByFilter{cteName: ct.name, direction: OrderAsc, priority: f.Priority, hasDataID: c.itemDataQuery})
	}
	return ct, nil
}

func inClause(column string, n int) string {
	placeholders := make([]string, n)
	for i := range placeholders {
		placeholders[i] = "?"
	}
	return fmt.Sprintf("%s IN (%s)", column, strings.Join(placeholders, ", "))
}
