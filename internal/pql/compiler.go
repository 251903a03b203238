package pql

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
)

// Compiler lowers a SearchQuery into SQL and executes it against a
// read-only handle (spec.md §4.7, §4.9).
type Compiler struct {
	db *sql.DB
}

func NewCompiler(db *sql.DB) *Compiler {
	return &Compiler{db: db}
}

// Row is one result row's standard projected columns plus its order_rank
// values, keyed by the order index (o0, o1, ...).
type Row struct {
	ItemID     int64
	FileID     int64
	SHA256     string
	Path       string
	OrderRanks []any
}

// Result is the C10 search facade's return shape (spec.md §4.9).
type Result struct {
	Count   int
	Results []Row
}

// Compile lowers sq into SQL and args; Execute runs it. Kept separate so
// tests can assert on the generated SQL without a live database.
func (c *Compiler) Compile(sq SearchQuery) (string, []any, error) {
	comp := &compilation{isCountQuery: sq.Count}

	root, err := c.compileTree(comp, sq.Query)
	if err != nil {
		return "", nil, err
	}

	return c.assemble(comp, root, sq)
}

// Execute compiles and runs sq against the compiler's handle.
func (c *Compiler) Execute(ctx context.Context, sq SearchQuery) (*Result, error) {
	sqlText, args, err := c.Compile(sq)
	if err != nil {
		return nil, err
	}

	if sq.Count {
		var count int
		if err := c.db.QueryRowContext(ctx, sqlText, args...).Scan(&count); err != nil {
			return nil, fmt.Errorf("pql: count query failed: %w", err)
		}
		return &Result{Count: count}, nil
	}

	rows, err := c.db.QueryContext(ctx, sqlText, args...)
	if err != nil {
		return nil, fmt.Errorf("pql: search query failed: %w", err)
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, err
	}
	numRanks := len(cols) - 4

	var results []Row
	for rows.Next() {
		dest := make([]any, len(cols))
		dest[0], dest[1], dest[2], dest[3] = new(int64), new(int64), new(string), new(string)
		ranks := make([]any, numRanks)
		for i := range ranks {
			ranks[i] = new(any)
			dest[4+i] = ranks[i]
		}
		if err := rows.Scan(dest...); err != nil {
			return nil, err
		}
		row := Row{
			ItemID: *dest[0].(*int64),
			FileID: *dest[1].(*int64),
			SHA256: *dest[2].(*string),
			Path:   *dest[3].(*string),
		}
		for _, r := range ranks {
			row.OrderRanks = append(row.OrderRanks, r)
		}
		results = append(results, row)
	}
	return &Result{Results: results}, rows.Err()
}

// compileTree compiles the query's FilterTree, defaulting to the bare root
// selector when query is nil (an unfiltered listing).
func (c *Compiler) compileTree(comp *compilation, query Node) (*cte, error) {
	if query == nil {
		return comp.rootCTE(), nil
	}
	return query.compile(comp, nil)
}

// compile implements Node for And: filters chain serially, each narrowing
// the previous CTE (spec.md §4.7 "filters are chained serially").
func (n *And) compile(c *compilation, parent *cte) (*cte, error) {
	cur := parent
	if cur == nil {
		cur = c.rootCTE()
	}
	any_applied := false
	for _, child := range n.Children {
		next, err := child.compile(c, cur)
		if err != nil {
			return nil, err
		}
		if next != cur {
			any_applied = true
		}
		cur = next
	}
	if !any_applied && len(n.Children) > 0 {
		// every child was invalid and pruned to identity; the base
		// selector still stands (spec.md: pruning degrades to identity,
		// it never raises unless there is no base selector at all).
	}
	return cur, nil
}

// compile implements Node for Or: children compile against the same
// parent and their CTEs are unioned on the standard columns
// (spec.md §4.7 "unioned on (file_id, item_id[, data_id])").
func (n *Or) compile(c *compilation, parent *cte) (*cte, error) {
	base := parent
	if base == nil {
		base = c.rootCTE()
	}
	if len(n.Children) == 0 {
		return base, nil
	}

	var branches []*cte
	for _, child := range n.Children {
		b, err := child.compile(c, base)
		if err != nil {
			return nil, err
		}
		if b != base {
			branches = append(branches, b)
		}
	}
	if len(branches) == 0 {
		return base, nil
	}

	hasDataID := false
	for _, b := range branches {
		if b.hasDataID {
			hasDataID = true
		}
	}
	cols := "file_id, item_id"
	if hasDataID {
		cols = "file_id, item_id, data_id"
	}

	var parts []string
	for _, b := range branches {
		parts = append(parts, fmt.Sprintf("SELECT %s FROM %s", cols, b.name))
	}
	body := strings.Join(parts, " UNION ")
	// Branches are referenced by name; their own args are already bound at
	// their own position in the WITH chain and must not be repeated here.
	return c.addCTE(body, nil, hasDataID, false), nil
}

// compile implements Node for Not: `parent EXCEPT child`
// (spec.md §4.7 "SELECT ... FROM parent EXCEPT SELECT ... FROM child").
func (n *Not) compile(c *compilation, parent *cte) (*cte, error) {
	base := parent
	if base == nil {
		base = c.rootCTE()
	}
	child, err := n.Child.compile(c, base)
	if err != nil {
		return nil, err
	}
	if child == base {
		// invalid/identity child: NOT of nothing excludes everything.
		return c.addCTE(fmt.Sprintf("SELECT %s FROM %s WHERE 0", base.stdColumns(), base.name), nil, base.hasDataID, false), nil
	}

	cols := base.stdColumns()
	body := fmt.Sprintf("SELECT %s FROM %s EXCEPT SELECT %s FROM %s", cols, base.name, cols, child.name)
	// base and child are referenced by name; their own args are already
	// bound at their own position in the WITH chain.
	return c.addCTE(body, nil, base.hasDataID, false), nil
}

// assemble builds the final SELECT over the last CTE in the chain:
// standard columns, ORDER BY (order_by.go), and pagination or a count
// wrapper (spec.md §4.7 "Result projection").
func (c *Compiler) assemble(comp *compilation, root *cte, sq SearchQuery) (string, []any, error) {
	var b strings.Builder
	b.WriteString("WITH ")
	for i, ct := range comp.ctes {
		if i > 0 {
			b.WriteString(", ")
		}
		fmt.Fprintf(&b, "%s AS (%s)", ct.name, ct.sql)
	}

	var allArgs []any
	for _, ct := range comp.ctes {
		allArgs = append(allArgs, ct.args...)
	}

	if sq.Count {
		fmt.Fprintf(&b, " SELECT COUNT(DISTINCT %s.file_id) FROM %s", root.name, root.name)
		return b.String(), allArgs, nil
	}

	selectCols := fmt.Sprintf(
		"items.id AS item_id, files.id AS file_id, items.sha256 AS sha256, files.path AS path",
	)
	from := fmt.Sprintf(
		"%s JOIN items ON items.id = %s.item_id JOIN files ON files.id = %s.file_id",
		root.name, root.name, root.name,
	)

	orderSelect, orderJoins, orderBy, orderArgs := buildOrderBy(comp, root, sq.OrderArgs)
	selectCols += orderSelect

	fmt.Fprintf(&b, " SELECT %s FROM %s%s", selectCols, from, orderJoins)
	if orderBy != "" {
		fmt.Fprintf(&b, " ORDER BY %s", orderBy)
	}
	allArgs = append(allArgs, orderArgs...)

	pageSize := sq.PageSize
	if pageSize <= 0 {
		pageSize = 100
	}
	page := sq.Page
	if page < 0 {
		page = 0
	}
	fmt.Fprintf(&b, " LIMIT %d OFFSET %d", pageSize, page*pageSize)

	return b.String(), allArgs, nil
}
