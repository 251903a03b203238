package storage

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func init() {
	InitVectorExtension()
}

// NewTestHandle opens a fully-schemaed Handle backed by three temp-file
// databases under t.TempDir(), the on-disk equivalent OpenWrite requires
// (ATTACH needs real paths, not :memory:). Cleanup is automatic.
func NewTestHandle(t testing.TB, embeddingDimensions int) *Handle {
	t.Helper()

	dir := t.TempDir()
	paths := Paths{
		IndexDB:    filepath.Join(dir, "index.sqlite"),
		UserDataDB: filepath.Join(dir, "user_data.sqlite"),
		StorageDB:  filepath.Join(dir, "storage.sqlite"),
	}

	h, err := OpenWrite(paths, false, embeddingDimensions)
	require.NoError(t, err)
	t.Cleanup(func() { h.Close() })

	require.NoError(t, CreateIndexSchema(h.DB, embeddingDimensions))
	require.NoError(t, CreateUserDataSchema(h.DB))

	return h
}
