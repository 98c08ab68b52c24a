package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"listmerge/pkg/engine"
	"listmerge/pkg/schema"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "ingest", cfg.Paths.IngestDir)
	assert.Equal(t, "output/contacts_consolidated.csv", cfg.Paths.OutputFile)

	d, err := cfg.SettleDelay()
	require.NoError(t, err)
	assert.Equal(t, 500*time.Millisecond, d)

	opts, err := cfg.MergeOptions()
	require.NoError(t, err)
	assert.Equal(t, engine.DefaultMergeOptions(), opts)
}

func TestLoad_FileOverridesDefaults(t *testing.T) {
	path := writeFile(t, "listmerge.toml", `
[paths]
ingest_dir = "/data/in"

[ingest]
settle_delay = "2s"

[merge]
policy = "last_write"
union_fields = ["interests", "WEBSITE"]

[log]
level = "debug"
format = "json"
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "/data/in", cfg.Paths.IngestDir)
	assert.Equal(t, "output/processed_files.db", cfg.Paths.RegistryDB, "unset keys keep defaults")
	assert.Equal(t, 64, cfg.Ingest.QueueSize)
	assert.Equal(t, "json", cfg.Log.Format)

	opts, err := cfg.MergeOptions()
	require.NoError(t, err)
	assert.Equal(t, engine.PolicyLastWrite, opts.Policy)
	assert.Equal(t, []schema.Field{schema.Interests, schema.Website}, opts.UnionFields)
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("LISTMERGE_INGEST_DIR", "/env/in")
	t.Setenv("LISTMERGE_EXTENSIONS", ".csv, .txt")
	t.Setenv("LISTMERGE_QUEUE_SIZE", "8")
	t.Setenv("LISTMERGE_MERGE_POLICY", "last_write")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "/env/in", cfg.Paths.IngestDir)
	assert.Equal(t, []string{".csv", ".txt"}, cfg.Ingest.Extensions)
	assert.Equal(t, 8, cfg.Ingest.QueueSize)
	assert.Equal(t, "last_write", cfg.Merge.Policy)
}

func TestLoad_Errors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.toml"))
	assert.Error(t, err)

	_, err = Load(writeFile(t, "bad.toml", "[paths\n"))
	assert.Error(t, err)

	cases := map[string]string{
		"policy":       "[merge]\npolicy = \"majority\"\n",
		"union field":  "[merge]\nunion_fields = [\"HOBBIES\"]\n",
		"union email":  "[merge]\nunion_fields = [\"EMAIL\"]\n",
		"settle delay": "[ingest]\nsettle_delay = \"soon\"\n",
		"queue size":   "[ingest]\nqueue_size = 0\n",
		"log format":   "[log]\nformat = \"xml\"\n",
	}
	for name, content := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Load(writeFile(t, "c.toml", content))
			assert.Error(t, err)
		})
	}

	t.Setenv("LISTMERGE_QUEUE_SIZE", "many")
	_, err = Load("")
	assert.Error(t, err)
}

func TestLoadEnvFile(t *testing.T) {
	path := writeFile(t, ".env", "LISTMERGE_OUTPUT_FILE=/env/out.csv\n")
	t.Setenv("LISTMERGE_OUTPUT_FILE", "")
	os.Unsetenv("LISTMERGE_OUTPUT_FILE")

	require.NoError(t, LoadEnvFile(path, true))
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "/env/out.csv", cfg.Paths.OutputFile)

	missing := filepath.Join(t.TempDir(), ".env")
	assert.NoError(t, LoadEnvFile(missing, false))
	assert.Error(t, LoadEnvFile(missing, true))
	assert.NoError(t, LoadEnvFile("", true))
}
