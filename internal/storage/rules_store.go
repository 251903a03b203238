package storage

import (
	"database/sql"
	"encoding/json"
	"fmt"

	sq "github.com/Masterminds/squirrel"
)

// RulesStore persists ExtractionRule rows (§4.2/C3). It only knows how to
// serialize/deserialize the RuleItemFilters envelope and the setter
// bindings join table; filter semantics (candidate-set SQL) live in
// internal/rules, which is the only caller.
//
// Grounded directly on original_source's db/rules/rules.py
// (add_rule/get_rule/get_rules/delete_rule/update_rule/get_rules_for_setter).
type RulesStore struct {
	db *sql.DB
}

func NewRulesStore(db *sql.DB) *RulesStore {
	return &RulesStore{db: db}
}

// AddRule serializes filters as a single JSON envelope and inserts the
// setter bindings, mirroring rules.py's two-insert sequence.
func (s *RulesStore) AddRule(setters []SetterRef, filters RuleItemFilters) (int64, error) {
	serialized, err := json.Marshal(filters)
	if err != nil {
		return 0, fmt.Errorf("failed to serialize rule filters: %w", err)
	}

	tx, err := s.db.Begin()
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	res, err := sq.Insert("extraction_rules").
		Columns("enabled", "rule").
		Values(true, string(serialized)).
		RunWith(tx).
		Exec()
	if err != nil {
		return 0, fmt.Errorf("failed to insert rule: %w", err)
	}
	ruleID, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}

	if err := insertRuleSetters(tx, ruleID, setters); err != nil {
		return 0, err
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit rule insert: %w", err)
	}
	return ruleID, nil
}

// UpdateRule replaces the rule's filters and setter bindings, mirroring
// rules.py's update_rule (delete-then-reinsert bindings).
func (s *RulesStore) UpdateRule(ruleID int64, setters []SetterRef, filters RuleItemFilters) error {
	serialized, err := json.Marshal(filters)
	if err != nil {
		return fmt.Errorf("failed to serialize rule filters: %w", err)
	}

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := sq.Update("extraction_rules").
		Set("rule", string(serialized)).
		Where(sq.Eq{"id": ruleID}).
		RunWith(tx).
		Exec(); err != nil {
		return fmt.Errorf("failed to update rule %d: %w", ruleID, err)
	}

	if _, err := tx.Exec("DELETE FROM extraction_rules_setters WHERE rule_id = ?", ruleID); err != nil {
		return fmt.Errorf("failed to clear setter bindings for rule %d: %w", ruleID, err)
	}
	if err := insertRuleSetters(tx, ruleID, setters); err != nil {
		return err
	}

	return tx.Commit()
}

// SetEnabled toggles the rule's enabled flag (enable_rule/disable_rule).
func (s *RulesStore) SetEnabled(ruleID int64, enabled bool) error {
	_, err := sq.Update("extraction_rules").
		Set("enabled", enabled).
		Where(sq.Eq{"id": ruleID}).
		RunWith(s.db).
		Exec()
	if err != nil {
		return fmt.Errorf("failed to set enabled=%v for rule %d: %w", enabled, ruleID, err)
	}
	return nil
}

// DeleteRule removes the rule; setter bindings cascade via ON DELETE CASCADE.
func (s *RulesStore) DeleteRule(ruleID int64) error {
	_, err := s.db.Exec("DELETE FROM extraction_rules WHERE id = ?", ruleID)
	if err != nil {
		return fmt.Errorf("failed to delete rule %d: %w", ruleID, err)
	}
	return nil
}

// GetRule fetches one rule by id.
func (s *RulesStore) GetRule(ruleID int64) (*ExtractionRule, error) {
	var enabled bool
	var raw string
	err := s.db.QueryRow("SELECT enabled, rule FROM extraction_rules WHERE id = ?", ruleID).
		Scan(&enabled, &raw)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("no rule found with id %d", ruleID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get rule %d: %w", ruleID, err)
	}

	setters, err := s.settersForRule(ruleID)
	if err != nil {
		return nil, err
	}

	var filters RuleItemFilters
	if err := json.Unmarshal([]byte(raw), &filters); err != nil {
		return nil, fmt.Errorf("failed to deserialize rule %d filters: %w", ruleID, err)
	}

	return &ExtractionRule{ID: ruleID, Enabled: enabled, Filters: filters, Setters: setters}, nil
}

// GetRules lists every stored rule.
func (s *RulesStore) GetRules() ([]ExtractionRule, error) {
	rows, err := s.db.Query("SELECT id, enabled, rule FROM extraction_rules")
	if err != nil {
		return nil, fmt.Errorf("failed to list rules: %w", err)
	}
	defer rows.Close()

	var ids []int64
	var enableds []bool
	var raws []string
	for rows.Next() {
		var id int64
		var enabled bool
		var raw string
		if err := rows.Scan(&id, &enabled, &raw); err != nil {
			return nil, fmt.Errorf("failed to scan rule row: %w", err)
		}
		ids = append(ids, id)
		enableds = append(enableds, enabled)
		raws = append(raws, raw)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	result := make([]ExtractionRule, 0, len(ids))
	for i, id := range ids {
		setters, err := s.settersForRule(id)
		if err != nil {
			return nil, err
		}
		var filters RuleItemFilters
		if err := json.Unmarshal([]byte(raws[i]), &filters); err != nil {
			return nil, fmt.Errorf("failed to deserialize rule %d filters: %w", id, err)
		}
		result = append(result, ExtractionRule{ID: id, Enabled: enableds[i], Filters: filters, Setters: setters})
	}
	return result, nil
}

// GetRulesForSetter returns every enabled rule bound to (setterType,
// setterName), mirroring rules.py's get_rules_for_setter two-step lookup
// (rule_ids bound to the setter, then fetch+deserialize each).
func (s *RulesStore) GetRulesForSetter(setterType, setterName string) ([]ExtractionRule, error) {
	rows, err := s.db.Query(`
		SELECT DISTINCT rule_id FROM extraction_rules_setters
		WHERE setter_type = ? AND setter_name = ?
	`, setterType, setterName)
	if err != nil {
		return nil, fmt.Errorf("failed to look up rule ids for setter %s/%s: %w", setterType, setterName, err)
	}
	var ruleIDs []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return nil, err
		}
		ruleIDs = append(ruleIDs, id)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	result := make([]ExtractionRule, 0, len(ruleIDs))
	for _, id := range ruleIDs {
		var enabled bool
		if err := s.db.QueryRow("SELECT enabled FROM extraction_rules WHERE id = ?", id).Scan(&enabled); err != nil {
			if err == sql.ErrNoRows {
				continue
			}
			return nil, err
		}
		if !enabled {
			continue
		}
		rule, err := s.GetRule(id)
		if err != nil {
			return nil, err
		}
		result = append(result, *rule)
	}
	return result, nil
}

func (s *RulesStore) settersForRule(ruleID int64) ([]SetterRef, error) {
	rows, err := s.db.Query(
		"SELECT setter_type, setter_name FROM extraction_rules_setters WHERE rule_id = ?", ruleID)
	if err != nil {
		return nil, fmt.Errorf("failed to load setters for rule %d: %w", ruleID, err)
	}
	defer rows.Close()

	var setters []SetterRef
	for rows.Next() {
		var ref SetterRef
		if err := rows.Scan(&ref.Type, &ref.Name); err != nil {
			return nil, err
		}
		setters = append(setters, ref)
	}
	return setters, rows.Err()
}

func insertRuleSetters(tx *sql.Tx, ruleID int64, setters []SetterRef) error {
	stmt, err := tx.Prepare(
		"INSERT INTO extraction_rules_setters (rule_id, setter_type, setter_name) VALUES (?, ?, ?)")
	if err != nil {
		return fmt.Errorf("failed to prepare setter binding insert: %w", err)
	}
	defer stmt.Close()

	for _, ref := range setters {
		if _, err := stmt.Exec(ruleID, ref.Type, ref.Name); err != nil {
			return fmt.Errorf("failed to bind setter %s/%s to rule %d: %w", ref.Type, ref.Name, ruleID, err)
		}
	}
	return nil
}
