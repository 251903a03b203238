package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/viper"
)

// Loader provides configuration loading capabilities.
type Loader interface {
	// Load loads configuration from file and environment variables.
	// Priority: defaults → config file → environment variables (env wins)
	Load() (*Config, error)
}

type loader struct {
	rootDir string
}

// NewLoader creates a new configuration loader for the given root directory.
func NewLoader(rootDir string) Loader {
	return &loader{
		rootDir: rootDir,
	}
}

// Load loads configuration with the following priority (highest to lowest):
// 1. Environment variables (spec.md §6 names: DATA_FOLDER, INDEX_DB, ...)
// 2. Config file (.panoptikon/config.yml or .panoptikon/config.yaml)
// 3. Default values
func (l *loader) Load() (*Config, error) {
	v := viper.New()

	configDir := filepath.Join(l.rootDir, ".panoptikon")
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(configDir)

	// spec.md §6's env vars carry no common prefix and don't nest under the
	// yaml structure's dotted keys, so each is bound individually rather
	// than relying on viper's AutomaticEnv dot-to-underscore replacement.
	bindEnv(v, map[string]string{
		"store.data_folder":           "DATA_FOLDER",
		"store.index_db":              "INDEX_DB",
		"store.user_data_db":          "USER_DATA_DB",
		"store.storage_db":            "STORAGE_DB",
		"store.readonly":              "READONLY",
		"store.embedding_dimensions":  "EMBEDDING_DIMENSIONS",
		"inference.api_url":           "INFERENCE_API_URL",
		"server.host":                 "HOST",
		"server.port":                 "PORT",
	})

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

func bindEnv(v *viper.Viper, keyToEnv map[string]string) {
	for key, env := range keyToEnv {
		v.BindEnv(key, env)
	}
}

// setDefaults configures viper with default values.
func setDefaults(v *viper.Viper) {
	d := Default()

	v.SetDefault("store.data_folder", d.Store.DataFolder)
	v.SetDefault("store.index_db", d.Store.IndexDB)
	v.SetDefault("store.user_data_db", d.Store.UserDataDB)
	v.SetDefault("store.storage_db", d.Store.StorageDB)
	v.SetDefault("store.readonly", d.Store.ReadOnly)
	v.SetDefault("store.embedding_dimensions", d.Store.EmbeddingDimensions)

	v.SetDefault("server.host", d.Server.Host)
	v.SetDefault("server.port", d.Server.Port)

	v.SetDefault("inference.api_url", d.Inference.APIURL)

	v.SetDefault("pql.confidence_weight_exponent", d.PQL.ConfidenceWeightExponent)
	v.SetDefault("pql.language_confidence_weight_exponent", d.PQL.LanguageConfidenceWeightExponent)

	v.SetDefault("jobs.default_batch_size", d.Jobs.DefaultBatchSize)
}

// LoadConfig is a convenience function that creates a loader and loads config.
// It uses the current working directory as the root.
func LoadConfig() (*Config, error) {
	wd, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("failed to get working directory: %w", err)
	}
	return NewLoader(wd).Load()
}

// LoadConfigFromDir loads configuration from a specific directory.
func LoadConfigFromDir(rootDir string) (*Config, error) {
	return NewLoader(rootDir).Load()
}
