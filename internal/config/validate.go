package config

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrEmptyDataFolder indicates a missing data folder path.
	ErrEmptyDataFolder = errors.New("empty data folder")

	// ErrEmptyDBName indicates a missing database filename.
	ErrEmptyDBName = errors.New("empty database filename")

	// ErrInvalidPort indicates an out-of-range server port.
	ErrInvalidPort = errors.New("invalid port")

	// ErrEmptyInferenceURL indicates a missing inference API URL.
	ErrEmptyInferenceURL = errors.New("empty inference api url")

	// ErrInvalidWeightExponent indicates a negative PQL weighting exponent.
	ErrInvalidWeightExponent = errors.New("invalid weight exponent")

	// ErrInvalidBatchSize indicates a non-positive default batch size.
	ErrInvalidBatchSize = errors.New("invalid default batch size")
)

// Validate checks that the configuration is valid and complete.
func Validate(cfg *Config) error {
	var errs []error

	if err := validateStore(&cfg.Store); err != nil {
		errs = append(errs, err)
	}
	if err := validateServer(&cfg.Server); err != nil {
		errs = append(errs, err)
	}
	if err := validateInference(&cfg.Inference); err != nil {
		errs = append(errs, err)
	}
	if err := validatePQL(&cfg.PQL); err != nil {
		errs = append(errs, err)
	}
	if err := validateJobs(&cfg.Jobs); err != nil {
		errs = append(errs, err)
	}

	if len(errs) > 0 {
		return joinErrors(errs)
	}
	return nil
}

func validateStore(cfg *StoreConfig) error {
	var errs []error

	if strings.TrimSpace(cfg.DataFolder) == "" {
		errs = append(errs, fmt.Errorf("%w: data_folder is required", ErrEmptyDataFolder))
	}
	if strings.TrimSpace(cfg.IndexDB) == "" {
		errs = append(errs, fmt.Errorf("%w: index_db is required", ErrEmptyDBName))
	}
	if strings.TrimSpace(cfg.UserDataDB) == "" {
		errs = append(errs, fmt.Errorf("%w: user_data_db is required", ErrEmptyDBName))
	}
	if strings.TrimSpace(cfg.StorageDB) == "" {
		errs = append(errs, fmt.Errorf("%w: storage_db is required", ErrEmptyDBName))
	}
	if cfg.EmbeddingDimensions < 0 {
		errs = append(errs, fmt.Errorf("embedding_dimensions cannot be negative, got %d", cfg.EmbeddingDimensions))
	}

	if len(errs) > 0 {
		return joinErrors(errs)
	}
	return nil
}

func validateServer(cfg *ServerConfig) error {
	if cfg.Port <= 0 || cfg.Port > 65535 {
		return fmt.Errorf("%w: port must be in (0, 65535], got %d", ErrInvalidPort, cfg.Port)
	}
	return nil
}

func validateInference(cfg *InferenceConfig) error {
	if strings.TrimSpace(cfg.APIURL) == "" {
		return fmt.Errorf("%w: api_url is required", ErrEmptyInferenceURL)
	}
	return nil
}

func validatePQL(cfg *PQLConfig) error {
	var errs []error
	if cfg.ConfidenceWeightExponent < 0 {
		errs = append(errs, fmt.Errorf("%w: confidence_weight_exponent cannot be negative, got %f", ErrInvalidWeightExponent, cfg.ConfidenceWeightExponent))
	}
	if cfg.LanguageConfidenceWeightExponent < 0 {
		errs = append(errs, fmt.Errorf("%w: language_confidence_weight_exponent cannot be negative, got %f", ErrInvalidWeightExponent, cfg.LanguageConfidenceWeightExponent))
	}
	if len(errs) > 0 {
		return joinErrors(errs)
	}
	return nil
}

func validateJobs(cfg *JobsConfig) error {
	if cfg.DefaultBatchSize <= 0 {
		return fmt.Errorf("%w: default_batch_size must be positive, got %d", ErrInvalidBatchSize, cfg.DefaultBatchSize)
	}
	return nil
}

// joinErrors combines multiple errors into a single error with clear formatting.
func joinErrors(errs []error) error {
	if len(errs) == 0 {
		return nil
	}
	if len(errs) == 1 {
		return errs[0]
	}

	var msgs []string
	for _, err := range errs {
		msgs = append(msgs, err.Error())
	}
	return fmt.Errorf("validation failed:\n  - %s", strings.Join(msgs, "\n  - "))
}
