// Package config loads service settings from environment variables and an
// optional YAML config file. Settings are resolved once at startup and passed
// through the program as an immutable value; there is no hot reload.
package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// Defaults.
const (
	DefaultIndexPrefix      = "sift-entities"
	DefaultPort             = 8000
	DefaultQueryConcurrency = 100
	DefaultBulkChunkSize    = 500
)

// Settings is the resolved service configuration.
type Settings struct {
	// IndexPrefix names the index family; the query alias is the bare prefix.
	IndexPrefix string `mapstructure:"index_prefix"`

	// Manifest is the path or URL of the upstream catalog manifest.
	Manifest string `mapstructure:"manifest"`

	// Elasticsearch connection.
	ESURL      string `mapstructure:"es_url"`
	ESCloudID  string `mapstructure:"es_cloud_id"`
	ESUsername string `mapstructure:"es_username"`
	ESPassword string `mapstructure:"es_password"`
	ESCACert   string `mapstructure:"es_ca_cert"`
	ESSniff    bool   `mapstructure:"es_sniff"`

	QueryConcurrency int  `mapstructure:"query_concurrency"`
	BulkChunkSize    int  `mapstructure:"bulk_chunk_size"`
	AutoReindex      bool `mapstructure:"auto_reindex"`

	// UpdateToken gates the reindex trigger endpoint.
	UpdateToken string `mapstructure:"update_token"`

	Port     int    `mapstructure:"port"`
	LogLevel string `mapstructure:"log_level"`
	LogJSON  bool   `mapstructure:"log_json"`
}

// Alias returns the stable alias that queries run against.
func (s *Settings) Alias() string {
	return s.IndexPrefix
}

// Load reads settings from the environment (SIFT_ prefix) and, when
// configFile is non-empty, a YAML config file. Environment variables win
// over file values.
func Load(configFile string) (*Settings, error) {
	v := viper.New()
	// Every key needs a default so environment-only values survive Unmarshal.
	v.SetDefault("index_prefix", DefaultIndexPrefix)
	v.SetDefault("manifest", "")
	v.SetDefault("es_url", "http://localhost:9200")
	v.SetDefault("es_cloud_id", "")
	v.SetDefault("es_username", "")
	v.SetDefault("es_password", "")
	v.SetDefault("es_ca_cert", "")
	v.SetDefault("es_sniff", false)
	v.SetDefault("update_token", "")
	v.SetDefault("query_concurrency", DefaultQueryConcurrency)
	v.SetDefault("bulk_chunk_size", DefaultBulkChunkSize)
	v.SetDefault("auto_reindex", true)
	v.SetDefault("port", DefaultPort)
	v.SetDefault("log_level", "info")
	v.SetDefault("log_json", false)

	v.SetEnvPrefix("SIFT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", configFile, err)
		}
	}

	var settings Settings
	if err := v.Unmarshal(&settings); err != nil {
		return nil, fmt.Errorf("failed to parse configuration: %w", err)
	}
	if err := settings.Validate(); err != nil {
		return nil, err
	}
	return &settings, nil
}

// Validate checks settings for inconsistencies that would surface later as
// confusing runtime errors.
func (s *Settings) Validate() error {
	if s.IndexPrefix == "" {
		return errors.New("index_prefix must not be empty")
	}
	if strings.HasSuffix(s.IndexPrefix, "-") {
		return fmt.Errorf("index_prefix %q must not end with the separator", s.IndexPrefix)
	}
	if s.ESURL == "" && s.ESCloudID == "" {
		return errors.New("one of es_url or es_cloud_id is required")
	}
	if s.QueryConcurrency < 1 {
		return fmt.Errorf("query_concurrency must be positive, got %d", s.QueryConcurrency)
	}
	if s.BulkChunkSize < 1 {
		return fmt.Errorf("bulk_chunk_size must be positive, got %d", s.BulkChunkSize)
	}
	return nil
}
