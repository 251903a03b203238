package pql

import (
	"fmt"

	sq "github.com/Masterminds/squirrel"
)

// Grounded on original_source's db/pql/filters/kvfilters.py (MatchValues'
// build_criteria/build_multi_kv_query) and panoptikon_rules.py-adjacent
// prefix filters shared with C3. squirrel builds each leaf's WHERE
// fragment (Eq/Like/Gt/...); the CTE body itself is hand-assembled SQL
// text (see the package doc comment in ast.go for why).

// compile implements Node for MatchValues.
func (f *MatchValues) compile(c *compilation, parent *cte) (*cte, error) {
	if len(f.Conditions) == 0 {
		return identity(parent, c), nil
	}

	var preds []sq.Sqlizer
	needsItemData := c.itemDataQuery
	for _, cond := range f.Conditions {
		info, err := getColumn(cond.Column)
		if err != nil {
			return nil, err
		}
		if info.textColumn {
			needsItemData = true
		}
		p, err := matchPredicate(info.sql, cond)
		if err != nil {
			return nil, err
		}
		preds = append(preds, p)
	}

	rank := ""
	if f.OrderBy && len(f.Conditions) > 0 {
		info, err := getColumn(f.Conditions[0].Column)
		if err != nil {
			return nil, err
		}
		rank = info.sql
	}
	return buildKVQuery(c, parent, sq.And(preds), needsItemData, rank, f.leafMeta)
}

func matchPredicate(col string, cond MatchCondition) (sq.Sqlizer, error) {
	list, isList := cond.Value.([]any)
	switch cond.Op {
	case OpEq:
		if isList {
			return sq.Eq{col: list}, nil
		}
		return sq.Eq{col: cond.Value}, nil
	case OpNeq:
		if isList {
			return sq.NotEq{col: list}, nil
		}
		return sq.NotEq{col: cond.Value}, nil
	case OpIn:
		return sq.Eq{col: list}, nil
	case OpNotIn:
		return sq.NotEq{col: list}, nil
	case OpGt:
		return sq.Gt{col: cond.Value}, nil
	case OpGte:
		return sq.GtOrEq{col: cond.Value}, nil
	case OpLt:
		return sq.Lt{col: cond.Value}, nil
	case OpLte:
		return sq.LtOrEq{col: cond.Value}, nil
	case OpStartsWith:
		return likeOrList(col, cond.Value, isList, "%s%%", false)
	case OpNotStartsWith:
		return likeOrList(col, cond.Value, isList, "%s%%", true)
	case OpEndsWith:
		return likeOrList(col, cond.Value, isList, "%%%s", false)
	case OpNotEndsWith:
		return likeOrList(col, cond.Value, isList, "%%%s", true)
	case OpContains:
		return likeOrList(col, cond.Value, isList, "%%%s%%", false)
	case OpNotContains:
		return likeOrList(col, cond.Value, isList, "%%%s%%", true)
	default:
		return nil, fmt.Errorf("pql: unsupported match operator %q", cond.Op)
	}
}

// likeOrList builds a LIKE/NOT LIKE predicate, OR-ing (LIKE) or AND-ing
// (NOT LIKE) across a list of values - mirroring kvfilters.py's
// or_(...)/and_(not_(...)) list branches.
func likeOrList(col string, value any, isList bool, pattern string, negate bool) (sq.Sqlizer, error) {
	values := []any{value}
	if isList {
		values = value.([]any)
	}

	var preds []sq.Sqlizer
	for _, v := range values {
		s, ok := v.(string)
		if !ok {
			return nil, fmt.Errorf("pql: like-style operator requires a string value, got %T", v)
		}
		like := sq.Like{col: fmt.Sprintf(pattern, s)}
		if negate {
			preds = append(preds, sq.NotLike{col: fmt.Sprintf(pattern, s)})
		} else {
			preds = append(preds, like)
		}
	}
	if negate {
		return sq.And(preds), nil
	}
	return sq.Or(preds), nil
}

// buildKVQuery wraps criteria in a SELECT against parent, joining
// items/files (and item_data/extracted_text/setters once item-data
// territory has been entered), mirroring build_multi_kv_query's two
// branches. When rankColumn is non-empty and meta.OrderBy is set, its value
// is projected as this CTE's order_rank column (MatchValues ranks by its
// first condition's column); a kv filter whose OrderBy the caller left
// unset contributes no order_rank and is never
// registered as a sortable leaf, since order_by.go requires every
// registered leaf's CTE to actually expose that column.
func buildKVQuery(c *compilation, parent *cte, criteria sq.Sqlizer, itemData bool, rankColumn string, meta leafMeta) (*cte, error) {
	base := parent
	if base == nil {
		base = c.rootCTE()
	}
	whereSQL, whereArgs, err := criteria.ToSql()
	if err != nil {
		return nil, err
	}

	from := contextFrom(base, itemData)
	orderBy := meta.OrderBy && rankColumn != "" && !c.isCountQuery
	rankSelect := ""
	if orderBy {
		rankSelect = fmt.Sprintf(", %s AS order_rank", rankColumn)
	}
	body := fmt.Sprintf("SELECT %s.file_id, %s.item_id%s%s FROM %s WHERE %s",
		base.name, base.name, dataIDSelect(base, itemData), rankSelect, from, whereSQL)

	c.itemDataQuery = c.itemDataQuery || itemData
	ct := c.addCTE(body, whereArgs, itemData, orderBy)
	if orderBy {
		c.orderFilters = append(c.orderFilters, orderByFilter{cteName: ct.name, direction: meta.Order, priority: meta.Priority, hasDataID: itemData})
	}
	return ct, nil
}

// dataIDSelect projects the data_id column once a filter enters (or
// continues in) item-data territory. If parent does not yet carry a
// data_id, this is the CTE that establishes it from item_data.id; once a
// parent already has one, it is just carried forward.
func dataIDSelect(parent *cte, itemData bool) string {
	if !itemData {
		return ""
	}
	if parent.hasDataID {
		return fmt.Sprintf(", %s.data_id", parent.name)
	}
	return ", item_data.id AS data_id"
}

// contextFrom builds the FROM/JOIN clause resolving a filter's column
// references against parent's projected columns. When itemData is set and
// parent doesn't carry data_id yet, item_data is joined on item_id (the
// root CTE and plain files/items filters never project data_id); once
// parent already carries it, later filters join on it directly instead of
// rejoining item_data.item_id and losing the specific setter row in scope.
func contextFrom(parent *cte, itemData bool) string {
	from := fmt.Sprintf("%s JOIN items ON items.id = %s.item_id JOIN files ON files.id = %s.file_id",
		parent.name, parent.name, parent.name)
	if !itemData {
		return from
	}
	if parent.hasDataID {
		from += fmt.Sprintf(" JOIN item_data ON item_data.id = %s.data_id", parent.name)
	} else {
		from += fmt.Sprintf(" JOIN item_data ON item_data.item_id = %s.item_id", parent.name)
	}
	from += " JOIN extracted_text ON extracted_text.id = item_data.id JOIN setters ON setters.id = item_data.setter_id"
	return from
}

// identity returns parent unchanged (or the root selector when parent is
// nil), used by invalid/empty leaf filters that the compiler prunes
// without raising (spec.md §4.7 "invalid filters are pruned, effectively
// identity").
func identity(parent *cte, c *compilation) *cte {
	if parent != nil {
		return parent
	}
	return c.rootCTE()
}

func prefixPredicate(column string, prefixes []string) sq.Sqlizer {
	var preds []sq.Sqlizer
	for _, p := range prefixes {
		preds = append(preds, sq.Like{column: p + "%"})
	}
	return sq.Or(preds)
}

// compile implements Node for PathFilter.
func (f *PathFilter) compile(c *compilation, parent *cte) (*cte, error) {
	if len(f.Prefixes) == 0 {
		return identity(parent, c), nil
	}
	return buildKVQuery(c, parent, prefixPredicate("files.path", f.Prefixes), c.itemDataQuery, "files.path", f.leafMeta)
}

// compile implements Node for MimeFilter.
func (f *MimeFilter) compile(c *compilation, parent *cte) (*cte, error) {
	if len(f.Prefixes) == 0 {
		return identity(parent, c), nil
	}
	return buildKVQuery(c, parent, prefixPredicate("items.type", f.Prefixes), c.itemDataQuery, "items.type", f.leafMeta)
}

// compile implements Node for MinMaxFilter. As in C3's rules.MinMaxFilter,
// min!=0 && max==0 means "min unbounded above"; unlike it, max alone
// applies no lower bound, and min==0 && max==0 prunes to identity.
func (f *MinMaxFilter) compile(c *compilation, parent *cte) (*cte, error) {
	colSQL, err := minMaxColumnSQL(f.Column)
	if err != nil {
		return nil, err
	}

	var preds []sq.Sqlizer
	switch {
	case f.Min != 0 && f.Max != 0:
		preds = append(preds, sq.GtOrEq{colSQL: f.Min}, sq.LtOrEq{colSQL: f.Max})
	case f.Min != 0:
		preds = append(preds, sq.GtOrEq{colSQL: f.Min})
	case f.Max != 0:
		preds = append(preds, sq.LtOrEq{colSQL: f.Max})
	default:
		return identity(parent, c), nil
	}
	return buildKVQuery(c, parent, sq.And(preds), c.itemDataQuery, colSQL, f.leafMeta)
}

// compile implements Node for BookmarkFilter, joining the user_data
// schema's bookmarks table (spec.md §4.1's ATTACHed user_data db).
func (f *BookmarkFilter) compile(c *compilation, parent *cte) (*cte, error) {
	base := parent
	if base == nil {
		base = c.rootCTE()
	}

	var preds []sq.Sqlizer
	preds = append(preds, sq.Expr("user_data.bookmarks.sha256 = items.sha256"))
	if f.Namespace != "" {
		preds = append(preds, sq.Eq{"user_data.bookmarks.namespace": f.Namespace})
	}
	if f.User != "" {
		preds = append(preds, sq.Eq{"user_data.bookmarks.user": f.User})
	}
	whereSQL, whereArgs, err := sq.And(preds).ToSql()
	if err != nil {
		return nil, err
	}

	// Bookmarks have no natural numeric rank column, so OrderBy on this
	// filter is ignored (mirrors order_by.go's contract that a registered
	// sortable leaf must actually expose an order_rank column).
	from := contextFrom(base, c.itemDataQuery) + ", user_data.bookmarks"
	body := fmt.Sprintf("SELECT DISTINCT %s.file_id, %s.item_id%s FROM %s WHERE %s",
		base.name, base.name, dataIDSelect(base, c.itemDataQuery), from, whereSQL)

	return c.addCTE(body, whereArgs, c.itemDataQuery, false), nil
}
