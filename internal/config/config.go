// Package config loads the pakview configuration.
//
// Configuration comes from one YAML file, named by the --config flag or the
// PAKVIEW_CONFIG environment variable. Flags given on the command line
// override the values of the file. Without a file the defaults apply.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/pflag"
	"gopkg.in/yaml.v3"
)

// EnvConfig names the config file when --config is not given.
const EnvConfig = "PAKVIEW_CONFIG"

// Config is the pakview configuration.
type Config struct {
	// Cache configures the parsed directory cache.
	Cache CacheConfig `yaml:"cache"`

	// Worker configures the background parse worker.
	Worker WorkerConfig `yaml:"worker"`

	// Log configures the stderr logger.
	Log LogConfig `yaml:"log"`

	// Serve configures the HTTP server of "pakview serve".
	Serve ServeConfig `yaml:"serve"`

	// Paks are archive files mounted at startup, lowest priority first.
	Paks []string `yaml:"paks"`

	// ManifestURL, if set, names a pak-manifest.json whose archives are
	// mounted at startup before Paks.
	ManifestURL string `yaml:"manifest_url"`
}

// CacheConfig configures the parsed directory cache.
type CacheConfig struct {
	// Dir is the cache directory. Empty disables the cache.
	Dir string `yaml:"dir"`

	// MaxBytes limits the cache size. Zero uses the library default.
	MaxBytes int64 `yaml:"max_bytes"`
}

// WorkerConfig configures the background parse worker.
type WorkerConfig struct {
	// Timeout bounds the wait for the worker before parsing synchronously.
	// Zero waits indefinitely.
	Timeout time.Duration `yaml:"timeout"`

	// Disabled parses every archive synchronously.
	Disabled bool `yaml:"disabled"`
}

// LogConfig configures logging.
type LogConfig struct {
	// Level is one of debug, info, warn or error.
	Level string `yaml:"level"`
}

// ServeConfig configures the HTTP server.
type ServeConfig struct {
	// Addr is the listen address.
	Addr string `yaml:"addr"`

	// CORSOrigins lists the allowed cross-origin callers.
	CORSOrigins []string `yaml:"cors_origins"`
}

// Default returns the default configuration.
func Default() *Config {
	dir := ""
	if base, err := os.UserCacheDir(); err == nil {
		dir = filepath.Join(base, "pakview")
	}
	return &Config{
		Cache:  CacheConfig{Dir: dir},
		Worker: WorkerConfig{Timeout: 30 * time.Second},
		Log:    LogConfig{Level: "info"},
		Serve:  ServeConfig{Addr: "127.0.0.1:8080"},
	}
}

// LoadFile loads the configuration at path over the defaults.
func LoadFile(path string) (*Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	cfg.expandVariables()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// expandVariables expands ${HOME} and similar variables in paths.
func (c *Config) expandVariables() {
	c.Cache.Dir = os.ExpandEnv(c.Cache.Dir)
	for i, p := range c.Paks {
		c.Paks[i] = os.ExpandEnv(p)
	}
}

// Validate reports the first invalid value.
func (c *Config) Validate() error {
	if _, err := c.Level(); err != nil {
		return err
	}
	if c.Cache.MaxBytes < 0 {
		return errors.New("cache.max_bytes must be non-negative")
	}
	if c.Worker.Timeout < 0 {
		return errors.New("worker.timeout must be non-negative")
	}
	return nil
}

// Level returns the configured log level.
func (c *Config) Level() (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.Log.Level)); err != nil {
		return 0, fmt.Errorf("log.level: %w", err)
	}
	return level, nil
}

// Flags binds the configuration to command-line flags.
type Flags struct {
	fs *pflag.FlagSet

	path        string
	cacheDir    string
	cacheMax    int64
	noCache     bool
	timeout     time.Duration
	noWorker    bool
	logLevel    string
	addr        string
	corsOrigins []string
	paks        []string
	manifestURL string
}

// AddFlags registers the configuration flags on fs.
func AddFlags(fs *pflag.FlagSet) *Flags {
	f := &Flags{fs: fs}
	fs.StringVarP(&f.path, "config", "c", "", "config file (default $"+EnvConfig+")")
	fs.StringVar(&f.cacheDir, "cache-dir", "", "directory cache location")
	fs.Int64Var(&f.cacheMax, "cache-max-bytes", 0, "directory cache size limit")
	fs.BoolVar(&f.noCache, "no-cache", false, "disable the directory cache")
	fs.DurationVar(&f.timeout, "worker-timeout", 0, "parse worker timeout (0 waits indefinitely)")
	fs.BoolVar(&f.noWorker, "no-worker", false, "parse archives synchronously")
	fs.StringVar(&f.logLevel, "log-level", "", "log level (debug, info, warn, error)")
	fs.StringVar(&f.addr, "addr", "", "listen address for serve")
	fs.StringSliceVar(&f.corsOrigins, "cors-origin", nil, "allowed cross-origin caller (repeatable)")
	fs.StringArrayVarP(&f.paks, "pak", "p", nil, "archive to mount, lowest priority first (repeatable)")
	fs.StringVar(&f.manifestURL, "manifest-url", "", "pak-manifest.json to mount before --pak")
	return f
}

// Load loads the config file named by --config or $PAKVIEW_CONFIG and
// applies the flags set on the command line. It must be called after the
// flag set is parsed.
func (f *Flags) Load() (*Config, error) {
	path := f.path
	if path == "" {
		path = os.Getenv(EnvConfig)
	}

	cfg := Default()
	if path != "" {
		var err error
		if cfg, err = LoadFile(path); err != nil {
			return nil, err
		}
	}

	if f.fs.Changed("cache-dir") {
		cfg.Cache.Dir = f.cacheDir
	}
	if f.noCache {
		cfg.Cache.Dir = ""
	}
	if f.fs.Changed("cache-max-bytes") {
		cfg.Cache.MaxBytes = f.cacheMax
	}
	if f.fs.Changed("worker-timeout") {
		cfg.Worker.Timeout = f.timeout
	}
	if f.fs.Changed("no-worker") {
		cfg.Worker.Disabled = f.noWorker
	}
	if f.fs.Changed("log-level") {
		cfg.Log.Level = f.logLevel
	}
	if f.fs.Changed("addr") {
		cfg.Serve.Addr = f.addr
	}
	if f.fs.Changed("cors-origin") {
		cfg.Serve.CORSOrigins = f.corsOrigins
	}
	if f.fs.Changed("pak") {
		cfg.Paks = f.paks
	}
	if f.fs.Changed("manifest-url") {
		cfg.ManifestURL = f.manifestURL
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}
