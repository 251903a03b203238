package pql

import (
	"fmt"
	"strings"

	sq "github.com/Masterminds/squirrel"
)

// Grounded on spec.md §4.6's TagMatch filter and original_source's
// db/pql/filters/kvfilters.py tag-matching branch (tags/tags_items joined
// against items, namespace/setters/min_confidence narrowing, match_all
// folding to a HAVING COUNT(DISTINCT tag) = len(tags)).

// compile implements Node for TagMatchFilter: items carrying all (MatchAll)
// or any (MatchAll=false) of the named tags, at or above MinConfidence,
// optionally restricted by namespace/setters.
func (f *TagMatchFilter) compile(c *compilation, parent *cte) (*cte, error) {
	if len(f.Tags) == 0 {
		return identity(parent, c), nil
	}
	base := parent
	if base == nil {
		base = c.rootCTE()
	}

	preds := sq.And{sq.Eq{"tags.name": f.Tags}}
	if f.Namespace != "" {
		preds = append(preds, sq.Eq{"tags.namespace": f.Namespace})
	}
	if len(f.Setters) > 0 {
		preds = append(preds, sq.Eq{"setters.name": f.Setters})
	}
	if f.MinConfidence > 0 {
		preds = append(preds, sq.GtOrEq{"tags_items.confidence": f.MinConfidence})
	}
	whereSQL, whereArgs, err := preds.ToSql()
	if err != nil {
		return nil, err
	}

	from := fmt.Sprintf(
		"%s JOIN items ON items.id = %s.item_id JOIN tags_items ON tags_items.item_id = items.id JOIN tags ON tags.id = tags_items.tag_id JOIN setters ON setters.id = tags_items.setter_id",
		base.name, base.name,
	)

	group := fmt.Sprintf("GROUP BY %s.file_id, %s.item_id", base.name, base.name)
	having := ""
	if f.MatchAll {
		having = fmt.Sprintf("HAVING COUNT(DISTINCT tags.name) = %d", len(f.Tags))
	}

	// Count queries never read order_rank (assemble's COUNT wrapper selects
	// only file_id), so skip computing MAX(confidence) for them.
	orderBy := f.OrderBy && !c.isCountQuery
	rankSelect := ""
	if orderBy {
		rankSelect = ", MAX(tags_items.confidence) AS order_rank"
	}
	body := strings.TrimSpace(fmt.Sprintf(
		"SELECT %s.file_id, %s.item_id%s FROM %s WHERE %s %s %s",
		base.name, base.name, rankSelect, from, whereSQL, group, having,
	))

	ct := c.addCTE(body, whereArgs, false, orderBy)
	if orderBy {
		c.orderFilters = append(c.orderFilters, orderByFilter{cteName: ct.name, direction: f.Order, priority: f.Priority, hasDataID: false})
	}
	return ct, nil
}
