// Package config provides configuration loading for Panoptikon-Go.
//
// Configuration is loaded with the following priority (highest to lowest):
//  1. Environment variables (no prefix — DATA_FOLDER, INDEX_DB, ...;
//     spec.md §6 names these verbatim)
//  2. Config file (.panoptikon/config.yml)
//  3. Built-in defaults
package config

// Config represents the complete Panoptikon-Go configuration (spec.md §6
// "Persisted state"/"Environment variables").
type Config struct {
	Store     StoreConfig     `yaml:"store" mapstructure:"store"`
	Server    ServerConfig    `yaml:"server" mapstructure:"server"`
	Inference InferenceConfig `yaml:"inference" mapstructure:"inference"`
	PQL       PQLConfig       `yaml:"pql" mapstructure:"pql"`
	Jobs      JobsConfig      `yaml:"jobs" mapstructure:"jobs"`
}

// StoreConfig locates the three logical databases C1 attaches into one
// connection (spec.md §4.1, §6).
type StoreConfig struct {
	DataFolder string `yaml:"data_folder" mapstructure:"data_folder"`
	IndexDB    string `yaml:"index_db" mapstructure:"index_db"`
	UserDataDB string `yaml:"user_data_db" mapstructure:"user_data_db"`
	StorageDB  string `yaml:"storage_db" mapstructure:"storage_db"`
	ReadOnly   bool   `yaml:"readonly" mapstructure:"readonly"`
	// EmbeddingDimensions sizes the vec0 index C1 creates on write handles
	// (storage.CreateVectorIndex); 0 skips KNN-index creation, leaving only
	// C9's scalar vec_distance_* path available.
	EmbeddingDimensions int `yaml:"embedding_dimensions" mapstructure:"embedding_dimensions"`
}

// ServerConfig configures the MCP tool surface (internal/mcpserver), the
// thin stand-in for the out-of-scope HTTP API (spec.md §6).
type ServerConfig struct {
	Host string `yaml:"host" mapstructure:"host"`
	Port int    `yaml:"port" mapstructure:"port"`
}

// InferenceConfig locates the external inference service C4/C5 call
// (spec.md §6 "Inference client").
type InferenceConfig struct {
	APIURL string `yaml:"api_url" mapstructure:"api_url"`
}

// PQLConfig carries the default weighting exponents C9's confidence/
// language-confidence weighted aggregation uses when a query doesn't
// override them (spec.md §4.8).
type PQLConfig struct {
	ConfidenceWeightExponent         float64 `yaml:"confidence_weight_exponent" mapstructure:"confidence_weight_exponent"`
	LanguageConfidenceWeightExponent float64 `yaml:"language_confidence_weight_exponent" mapstructure:"language_confidence_weight_exponent"`
}

// JobsConfig carries C5/C6 defaults not overridden per extractor group
// (internal/extractors/registry.go's group settings take priority).
type JobsConfig struct {
	DefaultBatchSize int `yaml:"default_batch_size" mapstructure:"default_batch_size"`
}

// Default returns a configuration with sensible defaults.
func Default() *Config {
	return &Config{
		Store: StoreConfig{
			DataFolder: "./data",
			IndexDB:    "index.db",
			UserDataDB: "user_data.db",
			StorageDB:  "storage.db",
			ReadOnly:   false,
		},
		Server: ServerConfig{
			Host: "127.0.0.1",
			Port: 6342,
		},
		Inference: InferenceConfig{
			APIURL: "http://localhost:7777",
		},
		PQL: PQLConfig{
			ConfidenceWeightExponent:         1.0,
			LanguageConfidenceWeightExponent: 1.0,
		},
		Jobs: JobsConfig{
			DefaultBatchSize: 64,
		},
	}
}
