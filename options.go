package pak

import (
	"errors"
	"log/slog"
	"os"
	"time"

	"github.com/meigma/pak/core/cache"
	"github.com/meigma/pak/core/cache/disk"
	pakhttp "github.com/meigma/pak/core/http"
	"github.com/meigma/pak/dispatch"
	"github.com/meigma/pak/metrics"
)

// Option configures an Explorer.
type Option func(*Explorer) error

// DefaultDirectoryCacheSize is the size limit WithCacheDir applies.
const DefaultDirectoryCacheSize int64 = 64 << 20 // 64 MB

// WithLogger sets the logger shared by every component.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Explorer) error {
		e.logger = logger
		return nil
	}
}

// WithMetrics records load, mount, scan and worker metrics.
func WithMetrics(m *metrics.Metrics) Option {
	return func(e *Explorer) error {
		e.metrics = m
		return nil
	}
}

// WithDispatcher uses d for parsing instead of a dispatcher owned by the
// Explorer. Close does not close d. Dispatcher options passed to the
// Explorer are ignored.
func WithDispatcher(d *dispatch.Dispatcher) Option {
	return func(e *Explorer) error {
		e.dispatcher = d
		return nil
	}
}

// WithCache caches parsed directories in c.
func WithCache(c cache.Cache) Option {
	return func(e *Explorer) error {
		e.cache = c
		return nil
	}
}

// WithCacheDir caches parsed directories on disk under dir, limited to
// DefaultDirectoryCacheSize unless WithCacheMaxBytes says otherwise.
func WithCacheDir(dir string) Option {
	return func(e *Explorer) error {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return err
		}
		maxBytes := DefaultDirectoryCacheSize
		if e.cacheMaxBytes != 0 {
			maxBytes = e.cacheMaxBytes
		}
		c, err := disk.New(dir, disk.WithMaxBytes(maxBytes))
		if err != nil {
			return err
		}
		e.cache = c
		return nil
	}
}

// WithCacheMaxBytes sets the size limit of the directory cache. Negative
// values are not allowed.
//
// This option must be set before [WithCacheDir] to take effect.
func WithCacheMaxBytes(n int64) Option {
	return func(e *Explorer) error {
		if n < 0 {
			return errors.New("pak: cache size limit must be non-negative")
		}
		e.cacheMaxBytes = n
		return nil
	}
}

// WithWorkerTimeout bounds the wait for the parse worker before falling
// back to a synchronous parse. Zero waits indefinitely.
func WithWorkerTimeout(d time.Duration) Option {
	return func(e *Explorer) error {
		e.dispatchOpts = append(e.dispatchOpts, dispatch.WithTimeout(d))
		return nil
	}
}

// WithWorkerDisabled parses every archive synchronously.
func WithWorkerDisabled() Option {
	return func(e *Explorer) error {
		e.dispatchOpts = append(e.dispatchOpts, dispatch.WithWorkerDisabled())
		return nil
	}
}

// WithHTTPOptions configures remote loads (LoadURL, LoadManifest).
func WithHTTPOptions(opts ...pakhttp.Option) Option {
	return func(e *Explorer) error {
		e.httpOpts = append(e.httpOpts, opts...)
		return nil
	}
}

// LoadOption configures one load.
type LoadOption func(*loadConfig)

type loadConfig struct {
	id           string
	displayName  string
	priority     *int
	userProvided *bool
}

// LoadWithID mounts the archive under id. By default the id is derived
// from the archive digest, so loading identical bytes twice fails with
// ErrDuplicateID. Ids should not contain ':' (see VFSPath).
func LoadWithID(id string) LoadOption {
	return func(c *loadConfig) {
		c.id = id
	}
}

// LoadWithDisplayName overrides the name shown for the archive.
func LoadWithDisplayName(name string) LoadOption {
	return func(c *loadConfig) {
		c.displayName = name
	}
}

// LoadWithPriority mounts the archive at priority p. Higher priorities
// override lower ones; among equal priorities the archive loaded last
// wins. By default an archive is mounted mount.PriorityStep above the
// highest mounted priority, so later loads override earlier ones.
func LoadWithPriority(p int) LoadOption {
	return func(c *loadConfig) {
		c.priority = &p
	}
}

// LoadWithUserProvided marks the archive as supplied by the user rather
// than built in.
func LoadWithUserProvided(user bool) LoadOption {
	return func(c *loadConfig) {
		c.userProvided = &user
	}
}
