// Package config loads dashctl settings from dashboard.yaml and DASH_*
// environment variables.
//
// Precedence, highest first: environment, config file, Default().
// Nested keys map to env names by replacing "." with "_", so
// api.base_url is read from DASH_API_BASE_URL.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"dashboard/internal/logging"

	"github.com/spf13/viper"
)

// EnvPrefix is the prefix of every environment override.
const EnvPrefix = "DASH"

type API struct {
	BaseURL         string
	Token           string
	Timeout         time.Duration
	MaxConnsPerHost int
}

type Listing struct {
	DefaultPerPage int
	PageSizes      []int
}

type Recipes struct {
	// IndexBase is the numbering the backend expects for ingredient
	// references on submit (0 or 1).
	IndexBase int
}

type Aliases struct {
	// Path is an optional YAML file merged over the embedded alias table.
	Path string
}

type Metrics struct {
	Backend    string // "none" or "datadog"
	Tags       string // comma-separated Datadog tags
	FlushEvery time.Duration
}

type Storage struct {
	Kind string // "sqlite", "postgres" or "mssql"
	DSN  string
}

type Export struct {
	Concurrency int
}

type Log struct {
	Level string
	JSON  bool
}

// Config is the full dashctl configuration.
type Config struct {
	API     API
	Listing Listing
	Recipes Recipes
	Aliases Aliases
	Metrics Metrics
	Storage Storage
	Export  Export
	Log     Log
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		API: API{
			BaseURL:         "http://localhost:8000/api",
			Timeout:         30 * time.Second,
			MaxConnsPerHost: 8,
		},
		Listing: Listing{
			DefaultPerPage: 20,
			PageSizes:      []int{10, 20, 50, 100},
		},
		Metrics: Metrics{
			Backend:    "none",
			FlushEvery: 60 * time.Second,
		},
		Storage: Storage{
			Kind: "sqlite",
			DSN:  "file:dashboard.db",
		},
		Export: Export{Concurrency: 4},
		Log:    Log{Level: "info"},
	}
}

func setDefaults(v *viper.Viper, d Config) {
	v.SetDefault("api.base_url", d.API.BaseURL)
	v.SetDefault("api.token", d.API.Token)
	v.SetDefault("api.timeout", d.API.Timeout)
	v.SetDefault("api.max_conns_per_host", d.API.MaxConnsPerHost)
	v.SetDefault("listing.default_per_page", d.Listing.DefaultPerPage)
	v.SetDefault("listing.page_sizes", d.Listing.PageSizes)
	v.SetDefault("recipes.index_base", d.Recipes.IndexBase)
	v.SetDefault("aliases.path", d.Aliases.Path)
	v.SetDefault("metrics.backend", d.Metrics.Backend)
	v.SetDefault("metrics.tags", d.Metrics.Tags)
	v.SetDefault("metrics.flush_every", d.Metrics.FlushEvery)
	v.SetDefault("storage.kind", d.Storage.Kind)
	v.SetDefault("storage.dsn", d.Storage.DSN)
	v.SetDefault("export.concurrency", d.Export.Concurrency)
	v.SetDefault("log.level", d.Log.Level)
	v.SetDefault("log.json", d.Log.JSON)
}

// Load reads configuration from path.
//
// path may be a directory searched for dashboard.yaml, a direct path to a
// .yaml/.yml file, or empty for the working directory.
//
// Edge cases:
//   - A missing dashboard.yaml in a directory is not an error.
//   - A missing explicit file is an error.
//
// Errors:
//   - Unreadable or malformed YAML.
func Load(path string) (Config, error) {
	v := viper.New()
	setDefaults(v, Default())

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	switch ext := strings.ToLower(filepath.Ext(path)); {
	case ext == ".yaml" || ext == ".yml":
		if _, err := os.Stat(path); err != nil {
			return Config{}, fmt.Errorf("config: %w", err)
		}
		v.SetConfigFile(path)
	default:
		if path == "" {
			path = "."
		}
		v.SetConfigName("dashboard")
		v.SetConfigType("yaml")
		v.AddConfigPath(path)
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return Config{}, fmt.Errorf("config: read: %w", err)
		}
	}

	return Config{
		API: API{
			BaseURL:         v.GetString("api.base_url"),
			Token:           v.GetString("api.token"),
			Timeout:         v.GetDuration("api.timeout"),
			MaxConnsPerHost: v.GetInt("api.max_conns_per_host"),
		},
		Listing: Listing{
			DefaultPerPage: v.GetInt("listing.default_per_page"),
			PageSizes:      v.GetIntSlice("listing.page_sizes"),
		},
		Recipes: Recipes{IndexBase: v.GetInt("recipes.index_base")},
		Aliases: Aliases{Path: v.GetString("aliases.path")},
		Metrics: Metrics{
			Backend:    v.GetString("metrics.backend"),
			Tags:       v.GetString("metrics.tags"),
			FlushEvery: v.GetDuration("metrics.flush_every"),
		},
		Storage: Storage{
			Kind: v.GetString("storage.kind"),
			DSN:  v.GetString("storage.dsn"),
		},
		Export: Export{Concurrency: v.GetInt("export.concurrency")},
		Log: Log{
			Level: v.GetString("log.level"),
			JSON:  v.GetBool("log.json"),
		},
	}, nil
}

// Validate returns human-readable problems with c. An empty slice means c
// is usable.
func (c Config) Validate() []string {
	var issues []string

	u, err := url.Parse(c.API.BaseURL)
	if c.API.BaseURL == "" || err != nil || u.Scheme == "" || u.Host == "" {
		issues = append(issues, fmt.Sprintf("api.base_url %q must be an absolute URL", c.API.BaseURL))
	}
	if c.API.Timeout <= 0 {
		issues = append(issues, "api.timeout must be > 0")
	}
	if c.API.MaxConnsPerHost < 1 {
		issues = append(issues, "api.max_conns_per_host must be >= 1")
	}
	if c.Listing.DefaultPerPage < 1 {
		issues = append(issues, "listing.default_per_page must be >= 1")
	}
	for _, n := range c.Listing.PageSizes {
		if n < 1 {
			issues = append(issues, fmt.Sprintf("listing.page_sizes contains %d; sizes must be >= 1", n))
			break
		}
	}
	if c.Recipes.IndexBase != 0 && c.Recipes.IndexBase != 1 {
		issues = append(issues, fmt.Sprintf("recipes.index_base %d must be 0 or 1", c.Recipes.IndexBase))
	}
	switch c.Metrics.Backend {
	case "", "none":
	case "datadog":
		if c.Metrics.FlushEvery <= 0 {
			issues = append(issues, "metrics.flush_every must be > 0 for datadog")
		}
	default:
		issues = append(issues, fmt.Sprintf("metrics.backend %q must be none or datadog", c.Metrics.Backend))
	}
	if c.Storage.Kind != "" && c.Storage.DSN == "" {
		issues = append(issues, fmt.Sprintf("storage.dsn is required for storage.kind %q", c.Storage.Kind))
	}
	if c.Export.Concurrency < 1 {
		issues = append(issues, "export.concurrency must be >= 1")
	}
	if _, err := logging.ParseLevel(c.Log.Level); err != nil {
		issues = append(issues, fmt.Sprintf("log.level: %v", err))
	}
	return issues
}
