package rules

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRuleItemFiltersRoundTripsThroughJSON(t *testing.T) {
	filters := RuleItemFilters{
		Positive: []Filter{
			MimeFilter{Prefixes: []string{"image/"}},
			MinMaxFilter{Column: ColumnWidth, Min: 100},
		},
		Negative: []Filter{
			PathFilter{Prefixes: []string{"/tmp/"}},
		},
	}

	data, err := json.Marshal(filters)
	require.NoError(t, err)

	var out RuleItemFilters
	require.NoError(t, json.Unmarshal(data, &out))

	require.Len(t, out.Positive, 2)
	assert.Equal(t, MimeFilter{Prefixes: []string{"image/"}}, out.Positive[0])
	assert.Equal(t, MinMaxFilter{Column: ColumnWidth, Min: 100}, out.Positive[1])
	require.Len(t, out.Negative, 1)
	assert.Equal(t, PathFilter{Prefixes: []string{"/tmp/"}}, out.Negative[0])
}

func TestRuleItemFiltersDropsUnknownKindOnLoad(t *testing.T) {
	raw := `{"positive":[{"kind":"some_future_filter","data":{}}],"negative":[]}`

	var out RuleItemFilters
	require.NoError(t, json.Unmarshal([]byte(raw), &out))
	assert.Empty(t, out.Positive)
}
