package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	settings, err := Load("")
	require.NoError(t, err)
	require.Equal(t, DefaultIndexPrefix, settings.IndexPrefix)
	require.Equal(t, DefaultIndexPrefix, settings.Alias())
	require.Equal(t, DefaultQueryConcurrency, settings.QueryConcurrency)
	require.Equal(t, DefaultBulkChunkSize, settings.BulkChunkSize)
	require.True(t, settings.AutoReindex)
	require.Equal(t, DefaultPort, settings.Port)
}

func TestLoadEnvOverride(t *testing.T) {
	t.Setenv("SIFT_INDEX_PREFIX", "testing-entities")
	t.Setenv("SIFT_QUERY_CONCURRENCY", "7")
	settings, err := Load("")
	require.NoError(t, err)
	require.Equal(t, "testing-entities", settings.IndexPrefix)
	require.Equal(t, 7, settings.QueryConcurrency)
}

func TestLoadConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sift.yaml")
	content := "index_prefix: filed-entities\nes_url: http://search:9200\nlog_json: true\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	settings, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "filed-entities", settings.IndexPrefix)
	require.Equal(t, "http://search:9200", settings.ESURL)
	require.True(t, settings.LogJSON)
}

func TestValidate(t *testing.T) {
	base := func() *Settings {
		return &Settings{
			IndexPrefix:      DefaultIndexPrefix,
			ESURL:            "http://localhost:9200",
			QueryConcurrency: DefaultQueryConcurrency,
			BulkChunkSize:    DefaultBulkChunkSize,
		}
	}
	require.NoError(t, base().Validate())

	s := base()
	s.IndexPrefix = ""
	require.Error(t, s.Validate())

	s = base()
	s.IndexPrefix = "trailing-"
	require.Error(t, s.Validate())

	s = base()
	s.ESURL = ""
	s.ESCloudID = ""
	require.Error(t, s.Validate())

	s = base()
	s.QueryConcurrency = 0
	require.Error(t, s.Validate())

	s = base()
	s.BulkChunkSize = -1
	require.Error(t, s.Validate())
}
