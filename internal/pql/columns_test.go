package pql

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetColumnKnownAndUnknown(t *testing.T) {
	info, err := getColumn("path")
	require.NoError(t, err)
	assert.Equal(t, "files.path", info.sql)
	assert.False(t, info.textColumn)

	info, err = getColumn("text")
	require.NoError(t, err)
	assert.True(t, info.textColumn)

	_, err = getColumn("nonexistent_field")
	assert.Error(t, err)
}

func TestMinMaxColumnSQL(t *testing.T) {
	sqlCol, err := minMaxColumnSQL("width")
	require.NoError(t, err)
	assert.Equal(t, "items.width", sqlCol)

	_, err = minMaxColumnSQL("path")
	assert.Error(t, err)
}
