package pql

import "fmt"

// cte is one named, materialized step of the CTE chain: a SQL body (no
// leading "WITH", no trailing semicolon) projecting at least
// (file_id, item_id), plus data_id once the query has entered item-data
// territory.
type cte struct {
	name      string
	sql       string
	args      []any
	hasDataID bool
	orderRank bool // true if this CTE also projects an order_rank column
}

func (c *cte) stdColumns() string {
	if c.hasDataID {
		return "file_id, item_id, data_id"
	}
	return "file_id, item_id"
}

// orderByFilter records one sortable leaf's contribution to ORDER BY,
// mirroring original_source's OrderByFilter (types.py): a reference to the
// CTE holding its order_rank column plus the leaf's declared priority and
// direction.
type orderByFilter struct {
	cteName   string
	direction Direction
	priority  int
	hasDataID bool
}

// compilation threads a QueryState (spec.md §4.7) through one Compile call:
// a monotonic CTE name counter, the item_data_query flag that forces all
// later filters to join item_data/extracted_text/setters, an is_count_query
// flag sortable filters check to skip computing their order_rank column
// (assemble's COUNT(DISTINCT file_id) wrapper never reads it), and the list
// of sortable leaves encountered so far.
type compilation struct {
	cteCounter    int
	itemDataQuery bool
	isCountQuery  bool
	ctes          []*cte
	orderFilters  []orderByFilter
}

func (c *compilation) nextName() string {
	name := fmt.Sprintf("f%d", c.cteCounter)
	c.cteCounter++
	return name
}

func (c *compilation) addCTE(body string, args []any, hasDataID, orderRank bool) *cte {
	n := &cte{name: c.nextName(), sql: body, args: args, hasDataID: hasDataID, orderRank: orderRank}
	c.ctes = append(c.ctes, n)
	return n
}

// rootCTE is the implicit base selector joining files to items
// (spec.md §4.7: "the compiler raises if all filters are invalid and there
// is no base selector" - the root always exists, so this can never
// happen).
func (c *compilation) rootCTE() *cte {
	return c.addCTE(
		"SELECT files.id AS file_id, items.id AS item_id FROM files JOIN items ON items.id = files.item_id",
		nil, false, false,
	)
}
