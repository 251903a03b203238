package pql

import (
	"fmt"
	"sort"
	"strings"
)

// Grounded on original_source's db/pql/order_by.py: combine_order_lists,
// group_order_list, apply_order_args/apply_order_filter, and
// coalesce_order_filters. Expressed as direct SQL text assembly instead of
// sqlalchemy's Select.column()/join() builder calls.

type orderKind int

const (
	orderKindFilter orderKind = iota
	orderKindArgs
)

type orderEntry struct {
	kind     orderKind
	filter   orderByFilter
	args     OrderArgs
	priority int
	idx      int
}

// combineOrderLists merges sortable-leaf order filters with explicit
// OrderArgs: sorted by descending priority, filters preceding args at
// equal priority (order_by.py's sort key `(-priority, category, index)`).
func combineOrderLists(filters []orderByFilter, args []OrderArgs) []orderEntry {
	entries := make([]orderEntry, 0, len(filters)+len(args))
	for i, f := range filters {
		entries = append(entries, orderEntry{kind: orderKindFilter, filter: f, priority: f.priority, idx: i})
	}
	for i, a := range args {
		entries = append(entries, orderEntry{kind: orderKindArgs, args: a, priority: a.Priority, idx: i})
	}
	sort.SliceStable(entries, func(i, j int) bool {
		if entries[i].priority != entries[j].priority {
			return entries[i].priority > entries[j].priority
		}
		if entries[i].kind != entries[j].kind {
			return entries[i].kind == orderKindFilter
		}
		return entries[i].idx < entries[j].idx
	})
	return entries
}

// groupOrderList groups consecutive equal-priority OrderByFilter entries
// for coalescing (group_order_list).
func groupOrderList(entries []orderEntry) [][]orderEntry {
	var groups [][]orderEntry
	i := 0
	for i < len(entries) {
		j := i + 1
		if entries[i].kind == orderKindFilter {
			for j < len(entries) && entries[j].kind == orderKindFilter && entries[j].priority == entries[i].priority {
				j++
			}
		}
		groups = append(groups, entries[i:j])
		i = j
	}
	return groups
}

func resolveDirection(dir Direction, column string) Direction {
	if dir != OrderDefault {
		return dir
	}
	if column == "last_modified" {
		return OrderDesc
	}
	return OrderAsc
}

func sqlDirection(d Direction) string {
	if d == OrderDesc {
		return "DESC"
	}
	return "ASC"
}

// buildOrderBy assembles the ORDER BY clause, any extra SELECT columns
// needed to expose order_rank values to the caller, and the LEFT JOINs
// pulling in sortable filters' CTEs (spec.md §4.7 "build_order_by").
func buildOrderBy(comp *compilation, root *cte, orderArgs []OrderArgs) (selectCols, joins, orderBy string, args []any) {
	entries := combineOrderLists(comp.orderFilters, orderArgs)
	groups := groupOrderList(entries)

	var orderTerms []string
	var selectParts []string
	var joinParts []string

	for index, group := range groups {
		if len(group) == 1 && group[0].kind == orderKindArgs {
			a := group[0].args
			colName := a.OrderBy
			if colName == "" {
				colName = "last_modified"
			}
			info, err := getColumn(colName)
			if err != nil {
				continue
			}
			dir := resolveDirection(a.Order, colName)
			label := fmt.Sprintf("o%d_%s", index, colName)
			selectParts = append(selectParts, fmt.Sprintf("%s AS %s", info.sql, label))
			orderTerms = append(orderTerms, fmt.Sprintf("%s %s NULLS LAST", label, sqlDirection(dir)))
			continue
		}

		if len(group) == 1 && group[0].kind == orderKindFilter {
			f := group[0].filter
			dir := f.direction
			if dir == OrderDefault {
				dir = OrderAsc
			}
			label := fmt.Sprintf("o%d_%s_rank", index, f.cteName)
			if f.cteName != root.name {
				joinParts = append(joinParts, leftJoinClause(f.cteName, root, f.hasDataID))
			}
			selectParts = append(selectParts, fmt.Sprintf("%s.order_rank AS %s", f.cteName, label))
			orderTerms = append(orderTerms, fmt.Sprintf("%s %s NULLS LAST", label, sqlDirection(dir)))
			continue
		}

		// coalesced group of same-priority OrderByFilters: MIN/MAX over
		// COALESCE(rank, +-infinity) across all ranks in the group
		// (coalesce_order_filters).
		dir := group[0].filter.direction
		if dir == OrderDefault {
			dir = OrderAsc
		}
		fn := "MIN"
		sentinel := "1e308"
		if dir == OrderDesc {
			fn = "MAX"
			sentinel = "-1e308"
		}

		var coalesced []string
		for _, e := range group {
			f := e.filter
			if f.cteName != root.name {
				joinParts = append(joinParts, leftJoinClause(f.cteName, root, f.hasDataID))
			}
			coalesced = append(coalesced, fmt.Sprintf("COALESCE(%s.order_rank, %s)", f.cteName, sentinel))
		}
		expr := fmt.Sprintf("%s(%s)", fn, strings.Join(coalesced, ", "))
		label := fmt.Sprintf("o%d_coalesced", index)
		selectParts = append(selectParts, fmt.Sprintf("%s AS %s", expr, label))
		orderTerms = append(orderTerms, fmt.Sprintf("%s %s NULLS LAST", label, sqlDirection(dir)))
	}

	if len(selectParts) > 0 {
		selectCols = ", " + strings.Join(selectParts, ", ")
	}
	if len(joinParts) > 0 {
		joins = " " + strings.Join(joinParts, " ")
	}
	orderBy = strings.Join(orderTerms, ", ")
	return selectCols, joins, orderBy, args
}

func leftJoinClause(cteName string, root *cte, hasDataID bool) string {
	cond := fmt.Sprintf("%s.file_id = %s.file_id", cteName, root.name)
	if hasDataID && root.hasDataID {
		cond += fmt.Sprintf(" AND %s.data_id = %s.data_id", cteName, root.name)
	}
	return fmt.Sprintf("LEFT JOIN %s ON %s", cteName, cond)
}
