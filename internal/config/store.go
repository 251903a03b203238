package config

import (
	"path/filepath"

	"github.com/panoptikon-go/panoptikon/internal/storage"
)

// ToStorePaths resolves the three logical database files under
// DataFolder/{index,user_data,storage}/<name>.db (spec.md §6 "Persisted
// state").
func (c *Config) ToStorePaths() storage.Paths {
	return storage.Paths{
		IndexDB:    filepath.Join(c.Store.DataFolder, "index", c.Store.IndexDB),
		UserDataDB: filepath.Join(c.Store.DataFolder, "user_data", c.Store.UserDataDB),
		StorageDB:  filepath.Join(c.Store.DataFolder, "storage", c.Store.StorageDB),
	}
}
