package main

import (
	"os"
	"time"

	"github.com/kelseyhightower/envconfig"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"github.com/always-cache/fetchpipe"
	"github.com/always-cache/fetchpipe/cache"
	transformer "github.com/always-cache/fetchpipe/pkg/response-transformer"
	"github.com/always-cache/fetchpipe/transport"
)

// envPrefix is prepended to every environment variable, e.g.
// FETCHPIPE_PORT or FETCHPIPE_TRANSPORT_TIMEOUT.
const envPrefix = "FETCHPIPE"

type Config struct {
	Port int    `yaml:"port"`
	DB   string `yaml:"db"`
	// Blocklists are rule list files or directories of them.
	Blocklists   []string          `yaml:"blocklists"`
	MaxRedirects int               `yaml:"maxRedirects" split_words:"true"`
	Headers      map[string]string `yaml:"headers"`
	Rules        transformer.Rules `yaml:"rules" ignored:"true"`
	Cache        CacheConfig       `yaml:"cache"`
	Transport    transport.Config  `yaml:"transport"`
	Journal      JournalConfig     `yaml:"journal"`
}

type CacheConfig struct {
	MaxMemoryBytes int64 `yaml:"maxMemoryBytes" split_words:"true"`
	MaxEntries     int   `yaml:"maxEntries" split_words:"true"`
}

type JournalConfig struct {
	// Retention is how long entries are kept, 0 keeps everything.
	Retention time.Duration `yaml:"retention"`
	// PruneSchedule is a cron spec.
	PruneSchedule string `yaml:"pruneSchedule" split_words:"true"`
}

func defaultConfig() Config {
	return Config{
		Port:         8080,
		DB:           "journal.db",
		MaxRedirects: fetchpipe.DefaultMaxRedirects,
		Cache: CacheConfig{
			MaxMemoryBytes: cache.DefaultMaxMemoryBytes,
			MaxEntries:     cache.DefaultMaxEntries,
		},
		Transport: transport.DefaultConfig(),
		Journal: JournalConfig{
			Retention:     24 * time.Hour,
			PruneSchedule: "@every 10m",
		},
	}
}

// getConfig layers the config file (if any) and the environment over the
// defaults.
func getConfig(filename string) (Config, error) {
	config := defaultConfig()
	if filename != "" {
		configBytes, err := os.ReadFile(filename)
		if err != nil {
			return config, errors.Wrap(err, "reading config")
		}
		if err := yaml.Unmarshal(configBytes, &config); err != nil {
			return config, errors.Wrap(err, "parsing config")
		}
	}
	if err := envconfig.Process(envPrefix, &config); err != nil {
		return config, errors.Wrap(err, "reading environment")
	}
	return config, nil
}
