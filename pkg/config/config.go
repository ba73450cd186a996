// Package config loads docpipe's runtime configuration from environment
// variables, with an optional YAML file providing defaults that env vars
// override — the same override order the teacher's flag/env-driven
// command structs use, generalized to a single settings object a service
// process loads once at startup.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is every knob named in the external interfaces contract (spec
// §6), plus the sibling values the ambient stack needs (bind address,
// bbolt data directory, CORS origins parsed to a slice).
type Config struct {
	// Server
	ListenAddr string `yaml:"listen_addr"`
	DataDir    string `yaml:"data_dir"`

	// Storage
	StorageBasePath string `yaml:"storage_base_path"`
	MaxFileSizeMB   int64  `yaml:"max_file_size_mb"`

	// Quota
	MaxFilesPerUserPerMonth int `yaml:"max_files_per_user_per_month"`

	// Cleanup
	MaxFileAgeHours          int `yaml:"max_file_age_hours"`
	MaxTempFileAgeHours      int `yaml:"max_temp_file_age_hours"`
	TerminalJobRetentionDays int `yaml:"terminal_job_retention_days"`

	// Scheduler
	PDFProcessingTimeoutSeconds int `yaml:"pdf_processing_timeout_seconds"`
	MaxConcurrentJobs           int `yaml:"max_concurrent_jobs"`

	// Auth
	SecretKey                string `yaml:"secret_key"`
	AccessTokenExpireMinutes int    `yaml:"access_token_expire_minutes"`
	RefreshTokenExpireDays   int    `yaml:"refresh_token_expire_days"`

	// CORS / logging
	CORSOrigins []string `yaml:"cors_origins"`
	LogLevel    string   `yaml:"log_level"`
	LogJSON     bool     `yaml:"log_json"`

	// External binaries
	SofficePath        string `yaml:"soffice_path"`
	WkhtmltopdfPath    string `yaml:"wkhtmltopdf_path"`
	DefaultOCRLanguage string `yaml:"default_ocr_language"`
}

// Default returns the configuration the service boots with before any
// YAML file or environment override is applied.
func Default() Config {
	return Config{
		ListenAddr:                  ":8080",
		DataDir:                     "data",
		StorageBasePath:             "storage",
		MaxFileSizeMB:               100,
		MaxFilesPerUserPerMonth:     500,
		MaxFileAgeHours:             24,
		MaxTempFileAgeHours:         1,
		TerminalJobRetentionDays:    30,
		PDFProcessingTimeoutSeconds: 300,
		MaxConcurrentJobs:           10,
		AccessTokenExpireMinutes:    30,
		RefreshTokenExpireDays:      7,
		CORSOrigins:                 []string{"*"},
		LogLevel:                    "info",
		DefaultOCRLanguage:          "eng",
	}
}

// Load builds a Config starting from Default, applying yamlPath if
// non-empty, then applying every recognized environment variable on top.
// A missing SecretKey after all overrides is a fatal misconfiguration the
// caller should refuse to start on (spec §6's exit code contract).
func Load(yamlPath string) (Config, error) {
	cfg := Default()

	if yamlPath != "" {
		data, err := os.ReadFile(yamlPath)
		if err != nil {
			return Config{}, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config file: %w", err)
		}
	}

	applyEnv(&cfg)

	if cfg.SecretKey == "" {
		return Config{}, fmt.Errorf("secret_key is required (set via config file or DOCPIPE_SECRET_KEY)")
	}
	return cfg, nil
}

func applyEnv(cfg *Config) {
	str(&cfg.ListenAddr, "DOCPIPE_LISTEN_ADDR")
	str(&cfg.DataDir, "DOCPIPE_DATA_DIR")
	str(&cfg.StorageBasePath, "DOCPIPE_STORAGE_BASE_PATH")
	int64Var(&cfg.MaxFileSizeMB, "DOCPIPE_MAX_FILE_SIZE_MB")
	intVar(&cfg.MaxFilesPerUserPerMonth, "DOCPIPE_MAX_FILES_PER_USER_PER_MONTH")
	intVar(&cfg.MaxFileAgeHours, "DOCPIPE_MAX_FILE_AGE_HOURS")
	intVar(&cfg.MaxTempFileAgeHours, "DOCPIPE_MAX_TEMP_FILE_AGE_HOURS")
	intVar(&cfg.TerminalJobRetentionDays, "DOCPIPE_TERMINAL_JOB_RETENTION_DAYS")
	intVar(&cfg.PDFProcessingTimeoutSeconds, "DOCPIPE_PDF_PROCESSING_TIMEOUT_SECONDS")
	intVar(&cfg.MaxConcurrentJobs, "DOCPIPE_MAX_CONCURRENT_JOBS")
	str(&cfg.SecretKey, "DOCPIPE_SECRET_KEY")
	intVar(&cfg.AccessTokenExpireMinutes, "DOCPIPE_ACCESS_TOKEN_EXPIRE_MINUTES")
	intVar(&cfg.RefreshTokenExpireDays, "DOCPIPE_REFRESH_TOKEN_EXPIRE_DAYS")
	str(&cfg.LogLevel, "DOCPIPE_LOG_LEVEL")
	boolVar(&cfg.LogJSON, "DOCPIPE_LOG_JSON")
	str(&cfg.SofficePath, "DOCPIPE_SOFFICE_PATH")
	str(&cfg.WkhtmltopdfPath, "DOCPIPE_WKHTMLTOPDF_PATH")
	str(&cfg.DefaultOCRLanguage, "DOCPIPE_DEFAULT_OCR_LANGUAGE")

	if v, ok := os.LookupEnv("DOCPIPE_CORS_ORIGINS"); ok {
		cfg.CORSOrigins = strings.Split(v, ",")
	}
}

func str(dst *string, env string) {
	if v, ok := os.LookupEnv(env); ok {
		*dst = v
	}
}

func intVar(dst *int, env string) {
	if v, ok := os.LookupEnv(env); ok {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func int64Var(dst *int64, env string) {
	if v, ok := os.LookupEnv(env); ok {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			*dst = n
		}
	}
}

func boolVar(dst *bool, env string) {
	if v, ok := os.LookupEnv(env); ok {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

// MaxFileSizeBytes converts the configured MB ceiling to bytes.
func (c Config) MaxFileSizeBytes() int64 {
	return c.MaxFileSizeMB * 1024 * 1024
}

// ProcessingTimeout converts PDFProcessingTimeoutSeconds to a Duration.
func (c Config) ProcessingTimeout() time.Duration {
	return time.Duration(c.PDFProcessingTimeoutSeconds) * time.Second
}

// AccessTokenTTL converts AccessTokenExpireMinutes to a Duration.
func (c Config) AccessTokenTTL() time.Duration {
	return time.Duration(c.AccessTokenExpireMinutes) * time.Minute
}

// RefreshTokenTTL converts RefreshTokenExpireDays to a Duration.
func (c Config) RefreshTokenTTL() time.Duration {
	return time.Duration(c.RefreshTokenExpireDays) * 24 * time.Hour
}

// MaxFileAge converts MaxFileAgeHours to a Duration.
func (c Config) MaxFileAge() time.Duration {
	return time.Duration(c.MaxFileAgeHours) * time.Hour
}

// MaxTempFileAge converts MaxTempFileAgeHours to a Duration.
func (c Config) MaxTempFileAge() time.Duration {
	return time.Duration(c.MaxTempFileAgeHours) * time.Hour
}

// TerminalJobRetention converts TerminalJobRetentionDays to a Duration.
func (c Config) TerminalJobRetention() time.Duration {
	return time.Duration(c.TerminalJobRetentionDays) * 24 * time.Hour
}
