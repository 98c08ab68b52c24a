package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/pelletier/go-toml/v2"

	"listmerge/pkg/engine"
	"listmerge/pkg/schema"
)

type PathsConfig struct {
	IngestDir  string `toml:"ingest_dir"`
	OutputFile string `toml:"output_file"`
	RegistryDB string `toml:"registry_db"`
}

type IngestConfig struct {
	Extensions  []string `toml:"extensions"`
	SettleDelay string   `toml:"settle_delay"`
	QueueSize   int      `toml:"queue_size"`
}

type MergeConfig struct {
	Policy      string   `toml:"policy"`
	UnionFields []string `toml:"union_fields"`
}

type LogConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
}

type Config struct {
	Paths  PathsConfig  `toml:"paths"`
	Ingest IngestConfig `toml:"ingest"`
	Merge  MergeConfig  `toml:"merge"`
	Log    LogConfig    `toml:"log"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		Paths: PathsConfig{
			IngestDir:  "ingest",
			OutputFile: "output/contacts_consolidated.csv",
			RegistryDB: "output/processed_files.db",
		},
		Ingest: IngestConfig{
			Extensions:  []string{".csv", ".tsv", ".txt", ".xlsx", ".xlsm", ".xls"},
			SettleDelay: "500ms",
			QueueSize:   64,
		},
		Merge: MergeConfig{
			Policy:      string(engine.PolicyFirstSeen),
			UnionFields: []string{schema.Interests.String()},
		},
		Log: LogConfig{
			Level:  "info",
			Format: "console",
		},
	}
}

// Load reads the TOML file at path over the defaults, applies LISTMERGE_*
// environment overrides and validates the result. An empty path skips the
// file.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file '%s': %w", path, err)
		}
		if err := toml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse TOML: %w", err)
		}
	}

	if err := cfg.ApplyEnv(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadEnvFile loads KEY=VALUE pairs from path into the process environment
// without overriding variables that are already set. A missing file is not
// an error unless required is true.
func LoadEnvFile(path string, required bool) error {
	if path == "" {
		return nil
	}
	err := godotenv.Load(path)
	if err != nil && !required && errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to load env file '%s': %w", path, err)
	}
	return nil
}

// ApplyEnv overrides settings from LISTMERGE_* variables.
func (c *Config) ApplyEnv() error {
	setString := func(key string, dst *string) {
		if v, ok := os.LookupEnv(key); ok && strings.TrimSpace(v) != "" {
			*dst = strings.TrimSpace(v)
		}
	}
	setList := func(key string, dst *[]string) {
		if v, ok := os.LookupEnv(key); ok && strings.TrimSpace(v) != "" {
			*dst = splitList(v)
		}
	}

	setString("LISTMERGE_INGEST_DIR", &c.Paths.IngestDir)
	setString("LISTMERGE_OUTPUT_FILE", &c.Paths.OutputFile)
	setString("LISTMERGE_REGISTRY_DB", &c.Paths.RegistryDB)
	setList("LISTMERGE_EXTENSIONS", &c.Ingest.Extensions)
	setString("LISTMERGE_SETTLE_DELAY", &c.Ingest.SettleDelay)
	setString("LISTMERGE_MERGE_POLICY", &c.Merge.Policy)
	setList("LISTMERGE_UNION_FIELDS", &c.Merge.UnionFields)
	setString("LISTMERGE_LOG_LEVEL", &c.Log.Level)
	setString("LISTMERGE_LOG_FORMAT", &c.Log.Format)

	if v, ok := os.LookupEnv("LISTMERGE_QUEUE_SIZE"); ok && strings.TrimSpace(v) != "" {
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("LISTMERGE_QUEUE_SIZE: %w", err)
		}
		c.Ingest.QueueSize = n
	}
	return nil
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// Validate checks that every setting is usable.
func (c *Config) Validate() error {
	if c.Paths.IngestDir == "" {
		return errors.New("paths.ingest_dir is required")
	}
	if c.Paths.OutputFile == "" {
		return errors.New("paths.output_file is required")
	}
	if c.Paths.RegistryDB == "" {
		return errors.New("paths.registry_db is required")
	}
	if len(c.Ingest.Extensions) == 0 {
		return errors.New("ingest.extensions must not be empty")
	}
	if _, err := c.SettleDelay(); err != nil {
		return err
	}
	if c.Ingest.QueueSize <= 0 {
		return fmt.Errorf("ingest.queue_size must be positive, got %d", c.Ingest.QueueSize)
	}
	if _, err := c.MergeOptions(); err != nil {
		return err
	}
	switch strings.ToLower(c.Log.Format) {
	case "console", "json":
	default:
		return fmt.Errorf("log.format must be console or json, got %q", c.Log.Format)
	}
	return nil
}

// SettleDelay parses ingest.settle_delay.
func (c *Config) SettleDelay() (time.Duration, error) {
	d, err := time.ParseDuration(c.Ingest.SettleDelay)
	if err != nil {
		return 0, fmt.Errorf("ingest.settle_delay: %w", err)
	}
	if d < 0 {
		return 0, fmt.Errorf("ingest.settle_delay must not be negative, got %s", d)
	}
	return d, nil
}

// MergeOptions converts the [merge] section for the contact table.
func (c *Config) MergeOptions() (engine.MergeOptions, error) {
	policy, err := engine.ParsePolicy(c.Merge.Policy)
	if err != nil {
		return engine.MergeOptions{}, fmt.Errorf("merge.policy: %w", err)
	}
	opts := engine.MergeOptions{Policy: policy}
	for _, name := range c.Merge.UnionFields {
		f, ok := schema.ParseField(name)
		if !ok {
			return engine.MergeOptions{}, fmt.Errorf("merge.union_fields: unknown field %q", name)
		}
		if f == schema.Email {
			return engine.MergeOptions{}, errors.New("merge.union_fields: EMAIL is the merge key")
		}
		opts.UnionFields = append(opts.UnionFields, f)
	}
	return opts, nil
}
