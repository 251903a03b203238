package storage

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRulesStoreAddGetUpdateDelete(t *testing.T) {
	h := NewTestHandle(t, 0)
	store := NewRulesStore(h.DB)

	setters := []SetterRef{{Type: "tags", Name: "wd14"}}
	filters := RuleItemFilters{
		Positive: []RawFilter{{Kind: "mime", Data: []byte(`{"prefixes":["image/"]}`)}},
	}

	id, err := store.AddRule(setters, filters)
	require.NoError(t, err)

	rule, err := store.GetRule(id)
	require.NoError(t, err)
	assert.True(t, rule.Enabled)
	assert.Equal(t, setters, rule.Setters)
	assert.Equal(t, filters, rule.Filters)

	require.NoError(t, store.SetEnabled(id, false))
	rule, err = store.GetRule(id)
	require.NoError(t, err)
	assert.False(t, rule.Enabled)

	newSetters := []SetterRef{{Type: "clip", Name: "vit-b32"}}
	newFilters := RuleItemFilters{Negative: []RawFilter{{Kind: "path", Data: []byte(`{"prefixes":["/tmp/"]}`)}}}
	require.NoError(t, store.UpdateRule(id, newSetters, newFilters))

	rule, err = store.GetRule(id)
	require.NoError(t, err)
	assert.Equal(t, newSetters, rule.Setters)
	assert.Equal(t, newFilters, rule.Filters)

	require.NoError(t, store.DeleteRule(id))
	_, err = store.GetRule(id)
	assert.Error(t, err)
}

func TestRulesStoreGetRulesForSetterOnlyReturnsEnabled(t *testing.T) {
	h := NewTestHandle(t, 0)
	store := NewRulesStore(h.DB)

	setters := []SetterRef{{Type: "tags", Name: "wd14"}}

	enabledID, err := store.AddRule(setters, RuleItemFilters{})
	require.NoError(t, err)

	disabledID, err := store.AddRule(setters, RuleItemFilters{})
	require.NoError(t, err)
	require.NoError(t, store.SetEnabled(disabledID, false))

	rules, err := store.GetRulesForSetter("tags", "wd14")
	require.NoError(t, err)
	require.Len(t, rules, 1)
	assert.Equal(t, enabledID, rules[0].ID)
}

func TestRulesStoreGetRulesListsAll(t *testing.T) {
	h := NewTestHandle(t, 0)
	store := NewRulesStore(h.DB)

	_, err := store.AddRule([]SetterRef{{Type: "tags", Name: "a"}}, RuleItemFilters{})
	require.NoError(t, err)
	_, err = store.AddRule([]SetterRef{{Type: "tags", Name: "b"}}, RuleItemFilters{})
	require.NoError(t, err)

	all, err := store.GetRules()
	require.NoError(t, err)
	assert.Len(t, all, 2)
}
