// Package config loads the notary's YAML-backed configuration into typed
// structs, mirroring the shape the teacher repository uses for its own
// protocol/application configuration: one top-level struct composed of
// per-concern sub-structs, loaded with strict (unknown-field-rejecting)
// YAML decoding.
package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Version is the notary's version, set at build time via -ldflags.
var Version string

// Config is the top-level configuration for a notary process.
type Config struct {
	Logger     Logger       `yaml:"Logger"`
	HTTP       HTTP         `yaml:"HTTP"`
	Store      Store        `yaml:"Store"`
	Cache      Cache        `yaml:"Cache"`
	Admission  Admission    `yaml:"Admission"`
	Scanner    Scanner      `yaml:"Scanner"`
	Keys       Keys         `yaml:"Keys"`
	Prometheus BasicService `yaml:"Prometheus"`
	Pprof      BasicService `yaml:"Pprof"`
}

// HTTP configures NotaryHTTP, the query endpoint.
type HTTP struct {
	Addresses      []string      `yaml:"Addresses"`
	ThreadPoolSize int           `yaml:"ThreadPoolSize"`
	SocketQueue    int           `yaml:"SocketQueueSize"`
	CacheExpiry    time.Duration `yaml:"CacheExpiry"`
}

// Store selects and configures the ObservationStore backend.
type Store struct {
	// Backend is one of "sqlite", "postgres", "memory".
	Backend string `yaml:"Backend"`
	// Path is the SQLite file path, used when Backend == "sqlite".
	Path string `yaml:"Path"`
	// DSN is the Postgres connection string, used when Backend == "postgres".
	DSN string `yaml:"DSN"`
}

// Cache selects and configures the reply cache backend.
type Cache struct {
	// Backend is one of "lru", "memcache", "redis".
	Backend string `yaml:"Backend"`
	// MaxBytes bounds the in-process LRU backend.
	MaxBytes int64 `yaml:"MaxBytes"`
	// Servers lists memcache/redis server addresses.
	Servers []string `yaml:"Servers"`
	// CacheOnly runs the HTTP surface on the in-memory store instead of
	// the configured persistent one (observations last only as long as
	// the process) and turns off the server's scheduled scan loop.
	CacheOnly bool `yaml:"CacheOnly"`
}

// Admission configures the on-demand probe admission gate.
type Admission struct {
	ProbeLimit   int           `yaml:"ProbeLimit"`
	ProbeTimeout time.Duration `yaml:"ProbeTimeout"`
	SNI          bool          `yaml:"SNI"`
}

// Scanner configures the scheduled bulk-scan pool.
type Scanner struct {
	Rate         int           `yaml:"Rate"`
	ProbeTimeout time.Duration `yaml:"ProbeTimeout"`
	SNI          bool          `yaml:"SNI"`
	ServiceList  string        `yaml:"ServiceList"`
	Interval     time.Duration `yaml:"Interval"`
}

// Keys names the PEM files holding the notary's RSA signing key pair.
type Keys struct {
	PublicKeyPath  string `yaml:"PublicKeyPath"`
	PrivateKeyPath string `yaml:"PrivateKeyPath"`
}

// Load reads and strictly decodes the YAML configuration at path,
// applying defaults for anything left unset and overlaying PORT/
// DATABASE_URL/NOTARY_* environment variables per the specification's
// external-interfaces section.
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("unable to read config: %w", err)
	}
	return LoadBytes(data, filepath.Dir(path))
}

// LoadBytes decodes data (in the caller's working directory relativeDir,
// used to resolve relative store/key paths) into a Config with defaults
// applied, then overlays recognized environment variables.
func LoadBytes(data []byte, relativeDir string) (Config, error) {
	cfg := defaultConfig()

	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&cfg); err != nil {
		return Config{}, fmt.Errorf("failed to unmarshal config YAML: %w", err)
	}

	if relativeDir != "" {
		updateRelativePaths(relativeDir, &cfg)
	}
	applyEnv(&cfg)

	if err := cfg.Logger.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func defaultConfig() Config {
	return Config{
		HTTP: HTTP{
			Addresses:      []string{":8080"},
			ThreadPoolSize: 10,
			SocketQueue:    128,
			CacheExpiry:    10 * time.Minute,
		},
		Store: Store{
			Backend: "sqlite",
			Path:    "notary.db",
		},
		Cache: Cache{
			Backend:  "lru",
			MaxBytes: 64 << 20,
		},
		Admission: Admission{
			ProbeLimit:   10,
			ProbeTimeout: 10 * time.Second,
		},
		Scanner: Scanner{
			Rate:         10,
			ProbeTimeout: 10 * time.Second,
			Interval:     24 * time.Hour,
		},
	}
}

// applyEnv overlays the environment variables named in the
// specification's external-interfaces section onto cfg, letting
// container/orchestrator deployments override the YAML file without
// editing it.
func applyEnv(cfg *Config) {
	if v := os.Getenv("PORT"); v != "" {
		cfg.HTTP.Addresses = []string{":" + v}
	}
	if v := os.Getenv("DATABASE_URL"); v != "" {
		cfg.Store.Backend = "postgres"
		cfg.Store.DSN = v
	}
	if v := os.Getenv("NOTARY_PUBLIC_KEY"); v != "" {
		cfg.Keys.PublicKeyPath = v
	}
	if v := os.Getenv("NOTARY_PRIVATE_KEY"); v != "" {
		cfg.Keys.PrivateKeyPath = v
	}
	if v := os.Getenv("NOTARY_MEMCACHE_SERVERS"); v != "" {
		cfg.Cache.Backend = "memcache"
		cfg.Cache.Servers = strings.Split(v, ",")
	}
	if v := os.Getenv("NOTARY_REDIS_SERVERS"); v != "" {
		cfg.Cache.Backend = "redis"
		cfg.Cache.Servers = strings.Split(v, ",")
	}
}

// updateRelativePaths resolves Store.Path, Keys.PublicKeyPath and
// Keys.PrivateKeyPath against relativeDir when they are themselves
// relative, so a config file can be invoked from any working directory.
func updateRelativePaths(relativeDir string, cfg *Config) {
	updatePath := func(p *string) {
		if *p != "" && !filepath.IsAbs(*p) {
			*p = filepath.Join(relativeDir, *p)
		}
	}
	updatePath(&cfg.Store.Path)
	updatePath(&cfg.Keys.PublicKeyPath)
	updatePath(&cfg.Keys.PrivateKeyPath)
	updatePath(&cfg.Scanner.ServiceList)
}
