package app

import (
	"os"
	"time"

	"github.com/cristalhq/aconfig"
	"github.com/cristalhq/aconfig/aconfigyaml"
	"github.com/go-faster/errors"

	"github.com/xenking/kart-catalog/internal/pagination"
)

const defaultAddr = "0.0.0.0:8080"

// Persistence backends.
const (
	BackendBolt     = "bolt"
	BackendFile     = "file"
	BackendPostgres = "postgres"
	BackendMemory   = "memory"
	BackendNone     = "none"
)

// Config holds the complete application configuration, loadable from
// environment variables (CATALOG_ prefix), flags, or YAML config files.
type Config struct {
	Addr        string `default:"0.0.0.0:8080" usage:"API server listen address"`
	LoadOnStart bool   `default:"true" usage:"Fetch the catalog after hydration when idle" flag:"load-on-start"`
	Source      SourceConfig
	Pagination  PaginationConfig
	Persistence PersistenceConfig
	CORS        CORSConfig
	Graceful    GracefulConfig
}

// SourceConfig controls the remote catalog fetch.
type SourceConfig struct {
	URL       string        `default:"https://dummyjson.com/products?limit=200" usage:"Catalog source URL" flag:"source-url"`
	UserAgent string        `default:"kart-catalog/1.0" usage:"User-Agent sent to the source"`
	Timeout   time.Duration `default:"30s" usage:"Upper bound for one fetch" flag:"fetch-timeout"`
}

// PaginationConfig controls the visible window.
type PaginationConfig struct {
	InitialPageSize   int `default:"20" usage:"Items visible before the first boundary signal"`
	IncrementPageSize int `default:"10" usage:"Items added per boundary signal"`
}

// PersistenceConfig selects and configures the state medium.
type PersistenceConfig struct {
	Backend     string `default:"bolt" usage:"State medium: bolt, file, postgres, memory or none"`
	Key         string `default:"catalog-state" usage:"Key the catalog state is stored under"`
	Path        string `default:"data/catalog.db" usage:"bbolt database path"`
	Dir         string `default:"data/state" usage:"State directory for the file backend"`
	Compress    bool   `default:"false" usage:"Gzip state files (file backend)"`
	DatabaseURL string `usage:"PostgreSQL connection URL (CATALOG_PERSISTENCE_DATABASE_URL or DATABASE_URL)" flag:"database-url"`
}

// CORSConfig controls Cross-Origin Resource Sharing headers for browser
// clients of the catalog API.
type CORSConfig struct {
	Origins          []string `default:"*" usage:"Allowed CORS origins"`
	AllowCredentials bool     `default:"false" usage:"Allow credentials (cookies, auth headers)" flag:"cors-credentials"`
	MaxAge           int      `default:"86400" usage:"Preflight cache lifetime in seconds" flag:"cors-max-age"`
}

// GracefulConfig controls graceful shutdown timing.
type GracefulConfig struct {
	ReadinessDelay  time.Duration `default:"3s"  usage:"Delay after readiness=false before shutdown" flag:"readiness-delay"`
	ShutdownTimeout time.Duration `default:"15s" usage:"Maximum shutdown duration" flag:"shutdown-timeout"`
}

// LoadConfig loads configuration from environment variables, YAML config files,
// and applies platform-specific defaults.
func LoadConfig() (*Config, error) {
	var cfg Config
	loader := aconfig.LoaderFor(&cfg, aconfig.Config{
		EnvPrefix: "CATALOG",
		Files:     []string{"config.yaml", "/etc/catalog/config.yaml"},
		FileDecoders: map[string]aconfig.FileDecoder{
			".yaml": aconfigyaml.New(),
		},
	})
	if err := loader.Load(); err != nil {
		return nil, errors.Wrap(err, "load config")
	}
	cfg.applyPlatformDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, "validate config")
	}
	return &cfg, nil
}

// Validate rejects configurations the server cannot start with.
func (c *Config) Validate() error {
	if err := c.Pagination.config().Validate(); err != nil {
		return err
	}
	if c.Source.URL == "" {
		return errors.New("source URL is required")
	}
	if c.Source.Timeout < 0 {
		return errors.Errorf("negative fetch timeout %s", c.Source.Timeout)
	}
	switch c.Persistence.Backend {
	case BackendBolt:
		if c.Persistence.Path == "" {
			return errors.New("bolt backend requires a path")
		}
	case BackendFile:
		if c.Persistence.Dir == "" {
			return errors.New("file backend requires a directory")
		}
	case BackendPostgres:
		if c.Persistence.DatabaseURL == "" {
			return errors.New("database URL is required: set CATALOG_PERSISTENCE_DATABASE_URL or DATABASE_URL")
		}
	case BackendMemory, BackendNone:
	default:
		return errors.Errorf("unknown persistence backend %q", c.Persistence.Backend)
	}
	if c.Persistence.Backend != BackendNone && c.Persistence.Key == "" {
		return errors.New("persistence key is required")
	}
	return nil
}

func (p PaginationConfig) config() pagination.Config {
	return pagination.Config{
		InitialPageSize:   p.InitialPageSize,
		IncrementPageSize: p.IncrementPageSize,
	}
}

// applyPlatformDefaults maps platform-provided environment variables (Railway,
// Render, etc.) that use standard names like DATABASE_URL and PORT to the
// application's CATALOG_-prefixed configuration.
func (c *Config) applyPlatformDefaults() {
	if c.Persistence.DatabaseURL == "" {
		if v := os.Getenv("DATABASE_URL"); v != "" {
			c.Persistence.DatabaseURL = v
		}
	}
	if port := os.Getenv("PORT"); port != "" && c.Addr == defaultAddr {
		c.Addr = "0.0.0.0:" + port
	}
}
