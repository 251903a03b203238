package rules

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	sq "github.com/Masterminds/squirrel"
	"github.com/panoptikon-go/panoptikon/internal/storage"
)

// Engine is the Rule Engine (C3): CRUD over ExtractionRule plus the
// candidate-set computation for a given extractor.
//
// Grounded on original_source's db/rules/rules.py for CRUD and
// get_rules_for_setter, and on spec.md §4.2's candidate-set formula
// ("union over all enabled rules... of matches_all(positive) AND NOT
// matches_any(negative)") for Candidates.
type Engine struct {
	store *storage.RulesStore
	db    *sql.DB
}

func NewEngine(db *sql.DB) *Engine {
	return &Engine{store: storage.NewRulesStore(db), db: db}
}

func (e *Engine) AddRule(setters []storage.SetterRef, filters RuleItemFilters) (int64, error) {
	wire, err := toStorageFilters(filters)
	if err != nil {
		return 0, err
	}
	return e.store.AddRule(setters, wire)
}

func (e *Engine) UpdateRule(ruleID int64, setters []storage.SetterRef, filters RuleItemFilters) error {
	wire, err := toStorageFilters(filters)
	if err != nil {
		return err
	}
	return e.store.UpdateRule(ruleID, setters, wire)
}

func (e *Engine) EnableRule(ruleID int64) error  { return e.store.SetEnabled(ruleID, true) }
func (e *Engine) DisableRule(ruleID int64) error { return e.store.SetEnabled(ruleID, false) }
func (e *Engine) DeleteRule(ruleID int64) error  { return e.store.DeleteRule(ruleID) }

func (e *Engine) GetRule(ruleID int64) (*Rule, error) {
	stored, err := e.store.GetRule(ruleID)
	if err != nil {
		return nil, err
	}
	return fromStoredRule(stored)
}

func (e *Engine) GetRules() ([]Rule, error) {
	stored, err := e.store.GetRules()
	if err != nil {
		return nil, err
	}
	out := make([]Rule, 0, len(stored))
	for _, sr := range stored {
		r, err := fromStoredRule(&sr)
		if err != nil {
			return nil, err
		}
		out = append(out, *r)
	}
	return out, nil
}

func (e *Engine) GetRulesForSetter(setterType, setterName string) ([]Rule, error) {
	stored, err := e.store.GetRulesForSetter(setterType, setterName)
	if err != nil {
		return nil, err
	}
	out := make([]Rule, 0, len(stored))
	for _, sr := range stored {
		r, err := fromStoredRule(&sr)
		if err != nil {
			return nil, err
		}
		out = append(out, *r)
	}
	return out, nil
}

// Candidates computes the item_id candidate set for (setterType,
// setterName): the union, across every enabled rule bound to that setter,
// of items matching all positive filters and none of the negative ones.
// If no rule is bound, returns an empty set (spec.md §4.2 Open Question
// resolution: "the extractor produces an empty candidate set").
func (e *Engine) Candidates(setterType, setterName string) ([]int64, error) {
	rules, err := e.GetRulesForSetter(setterType, setterName)
	if err != nil {
		return nil, err
	}
	if len(rules) == 0 {
		return nil, nil
	}

	seen := make(map[int64]struct{})
	var ids []int64
	for _, rule := range rules {
		ruleIDs, err := e.candidatesForRule(rule)
		if err != nil {
			return nil, fmt.Errorf("failed to compute candidates for rule %d: %w", rule.ID, err)
		}
		for _, id := range ruleIDs {
			if _, ok := seen[id]; ok {
				continue
			}
			seen[id] = struct{}{}
			ids = append(ids, id)
		}
	}
	return ids, nil
}

// candidatesForRule builds one SELECT DISTINCT items.id query per rule:
// every Positive filter contributes an INNER JOIN/WHERE clause (AND-within-
// rule), every Negative filter contributes a NOT EXISTS or NOT (...) clause.
func (e *Engine) candidatesForRule(rule Rule) ([]int64, error) {
	qb := sq.Select("DISTINCT items.id").From("items")

	for i, f := range rule.Filters.Positive {
		var err error
		qb, err = applyPositiveFilter(qb, f, i)
		if err != nil {
			return nil, err
		}
	}
	for i, f := range rule.Filters.Negative {
		var err error
		qb, err = applyNegativeFilter(qb, f, i)
		if err != nil {
			return nil, err
		}
	}

	sqlStr, args, err := qb.ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build candidate query: %w", err)
	}

	rows, err := e.db.Query(sqlStr, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to run candidate query: %w", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func applyPositiveFilter(qb sq.SelectBuilder, f Filter, idx int) (sq.SelectBuilder, error) {
	switch v := f.(type) {
	case ProcessedItemsFilter:
		alias := fmt.Sprintf("pi%d", idx)
		qb = qb.Join(fmt.Sprintf(
			"item_data %s ON %s.item_id = items.id AND %s.setter_id = (SELECT id FROM setters WHERE type = ? AND name = ?)",
			alias, alias, alias,
		), v.Setter.Type, v.Setter.Name)
	case ProcessedExtractedDataFilter:
		alias := fmt.Sprintf("ped%d", idx)
		placeholders := strings.TrimSuffix(strings.Repeat("?,", len(v.DataTypes)), ",")
		qb = qb.Join(fmt.Sprintf(
			"item_data %s ON %s.item_id = items.id AND %s.setter_id = (SELECT id FROM setters WHERE type = ? AND name = ?) AND %s.data_type IN (%s)",
			alias, alias, alias, alias, placeholders,
		), append([]any{v.Setter.Type, v.Setter.Name}, toAnySlice(v.DataTypes)...)...)
	case MimeFilter:
		qb = qb.Where(prefixOr("items.type", v.Prefixes))
	case PathFilter:
		qb = qb.Join("files pf ON pf.item_id = items.id").
			Where(prefixOr("pf.path", v.Prefixes))
	case MinMaxFilter:
		qb = applyMinMax(qb, v)
	default:
		return qb, fmt.Errorf("unsupported positive filter %T", f)
	}
	return qb, nil
}

func applyNegativeFilter(qb sq.SelectBuilder, f Filter, idx int) (sq.SelectBuilder, error) {
	switch v := f.(type) {
	case ProcessedItemsFilter:
		qb = qb.Where(sq.Expr(
			"NOT EXISTS (SELECT 1 FROM item_data nd WHERE nd.item_id = items.id AND nd.setter_id = (SELECT id FROM setters WHERE type = ? AND name = ?))",
			v.Setter.Type, v.Setter.Name,
		))
	case ProcessedExtractedDataFilter:
		placeholders := strings.TrimSuffix(strings.Repeat("?,", len(v.DataTypes)), ",")
		args := append([]any{v.Setter.Type, v.Setter.Name}, toAnySlice(v.DataTypes)...)
		qb = qb.Where(sq.Expr(fmt.Sprintf(
			"NOT EXISTS (SELECT 1 FROM item_data nd WHERE nd.item_id = items.id AND nd.setter_id = (SELECT id FROM setters WHERE type = ? AND name = ?) AND nd.data_type IN (%s))",
			placeholders,
		), args...))
	case MimeFilter:
		qb = qb.Where(sq.Expr("NOT (" + prefixOrSQL("items.type", v.Prefixes) + ")"))
	case PathFilter:
		qb = qb.Where(sq.Expr(
			"NOT EXISTS (SELECT 1 FROM files nf WHERE nf.item_id = items.id AND (" +
				prefixOrSQL("nf.path", v.Prefixes) + "))",
		))
	case MinMaxFilter:
		qb = qb.Where(sq.Expr("NOT (" + minMaxSQL(v) + ")"))
	default:
		return qb, fmt.Errorf("unsupported negative filter %T", f)
	}
	return qb, nil
}

// prefixOr builds `(col LIKE 'p1%' OR col LIKE 'p2%' ...)`.
func prefixOr(col string, prefixes []string) sq.Sqlizer {
	or := sq.Or{}
	for _, p := range prefixes {
		or = append(or, sq.Like{col: p + "%"})
	}
	return or
}

func prefixOrSQL(col string, prefixes []string) string {
	parts := make([]string, len(prefixes))
	for i, p := range prefixes {
		parts[i] = fmt.Sprintf("%s LIKE '%s%%'", col, strings.ReplaceAll(p, "'", "''"))
	}
	return strings.Join(parts, " OR ")
}

// applyMinMax implements "If min != 0 and max == 0, treat as >= min with
// no upper bound" (spec.md §4.2).
func applyMinMax(qb sq.SelectBuilder, f MinMaxFilter) sq.SelectBuilder {
	col := "items." + string(f.Column)
	if f.Min != 0 && f.Max == 0 {
		return qb.Where(sq.GtOrEq{col: f.Min})
	}
	return qb.Where(sq.And{sq.GtOrEq{col: f.Min}, sq.LtOrEq{col: f.Max}})
}

func minMaxSQL(f MinMaxFilter) string {
	col := "items." + string(f.Column)
	if f.Min != 0 && f.Max == 0 {
		return fmt.Sprintf("%s >= %v", col, f.Min)
	}
	return fmt.Sprintf("%s >= %v AND %s <= %v", col, f.Min, col, f.Max)
}

func toAnySlice(ss []string) []any {
	out := make([]any, len(ss))
	for i, s := range ss {
		out[i] = s
	}
	return out
}

func toStorageFilters(f RuleItemFilters) (storage.RuleItemFilters, error) {
	pos, err := toRawFilters(f.Positive)
	if err != nil {
		return storage.RuleItemFilters{}, err
	}
	neg, err := toRawFilters(f.Negative)
	if err != nil {
		return storage.RuleItemFilters{}, err
	}
	return storage.RuleItemFilters{Positive: pos, Negative: neg}, nil
}

func toRawFilters(filters []Filter) ([]storage.RawFilter, error) {
	out := make([]storage.RawFilter, 0, len(filters))
	for _, f := range filters {
		data, err := json.Marshal(f)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal %s filter: %w", f.Kind(), err)
		}
		out = append(out, storage.RawFilter{Kind: f.Kind(), Data: data})
	}
	return out, nil
}

func fromStoredRule(sr *storage.ExtractionRule) (*Rule, error) {
	pos, err := fromRawFilters(sr.Filters.Positive)
	if err != nil {
		return nil, err
	}
	neg, err := fromRawFilters(sr.Filters.Negative)
	if err != nil {
		return nil, err
	}
	return &Rule{
		ID:      sr.ID,
		Enabled: sr.Enabled,
		Filters: RuleItemFilters{Positive: pos, Negative: neg},
		Setters: sr.Setters,
	}, nil
}

func fromRawFilters(raws []storage.RawFilter) ([]Filter, error) {
	out := make([]Filter, 0, len(raws))
	for _, r := range raws {
		f, ok, err := decodeFilter(r.Kind, r.Data)
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}
		out = append(out, f)
	}
	return out, nil
}
