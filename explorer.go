package pak

import (
	"cmp"
	"context"
	"fmt"
	"image/color"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/opencontainers/go-digest"

	"github.com/meigma/pak/core/cache"
	pakhttp "github.com/meigma/pak/core/http"
	"github.com/meigma/pak/dispatch"
	"github.com/meigma/pak/entity"
	"github.com/meigma/pak/format/pcx"
	"github.com/meigma/pak/internal/extract"
	"github.com/meigma/pak/internal/pathutil"
	"github.com/meigma/pak/metrics"
	"github.com/meigma/pak/mount"
	"github.com/meigma/pak/vfs"
	"github.com/meigma/pak/xref"
)

// Explorer loads archives, mounts them into one merged filesystem and
// answers queries over it. It is safe for concurrent use.
type Explorer struct {
	logger        *slog.Logger
	metrics       *metrics.Metrics
	cache         cache.Cache
	cacheMaxBytes int64
	dispatchOpts  []dispatch.Option
	httpOpts      []pakhttp.Option

	dispatcher     *dispatch.Dispatcher
	ownsDispatcher bool
	mounts         *mount.Manager
	xref           *xref.Scanner
	entities       *entity.Aggregator

	paletteMu sync.Mutex
	paletteFS *vfs.FS
	palette   color.Palette
}

// New creates an Explorer with nothing mounted.
func New(opts ...Option) (*Explorer, error) {
	e := &Explorer{}
	for _, opt := range opts {
		if err := opt(e); err != nil {
			return nil, err
		}
	}

	if e.dispatcher == nil {
		dopts := []dispatch.Option{
			dispatch.WithLogger(e.logger),
			dispatch.WithMetrics(e.metrics),
		}
		if e.cache != nil {
			dopts = append(dopts, dispatch.WithCache(e.cache))
		}
		e.dispatcher = dispatch.New(append(dopts, e.dispatchOpts...)...)
		e.ownsDispatcher = true
	}
	e.mounts = mount.New(mount.WithLogger(e.logger), mount.WithMetrics(e.metrics))
	e.xref = xref.New(e.mounts, xref.WithLogger(e.logger), xref.WithMetrics(e.metrics))
	e.entities = entity.NewAggregator(e.mounts, entity.WithLogger(e.logger), entity.WithMetrics(e.metrics))
	return e, nil
}

// log returns the logger, falling back to a discard logger if nil.
func (e *Explorer) log() *slog.Logger {
	if e.logger == nil {
		return slog.New(slog.DiscardHandler)
	}
	return e.logger
}

// LoadBytes parses data and mounts it as name. The Explorer takes ownership
// of data; callers must not modify it afterwards.
//
// Archives loaded from bytes are built in unless LoadWithUserProvided says
// otherwise.
func (e *Explorer) LoadBytes(ctx context.Context, name string, data []byte, opts ...LoadOption) (mount.Record, error) {
	cfg := loadConfig{}
	for _, opt := range opts {
		opt(&cfg)
	}
	return e.load(ctx, name, data, cfg, false)
}

// LoadFile reads and mounts the archive at path. Archives loaded from files
// are user provided unless LoadWithUserProvided says otherwise.
func (e *Explorer) LoadFile(ctx context.Context, path string, opts ...LoadOption) (mount.Record, error) {
	cfg := loadConfig{}
	for _, opt := range opts {
		opt(&cfg)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return mount.Record{}, err
	}
	return e.load(ctx, filepath.Base(path), data, cfg, true)
}

func (e *Explorer) load(ctx context.Context, name string, data []byte, cfg loadConfig, userDefault bool) (mount.Record, error) {
	key := digest.FromBytes(data)
	a, err := e.dispatcher.LoadDigest(ctx, cmp.Or(cfg.displayName, name), data, key)
	if err != nil {
		return mount.Record{}, fmt.Errorf("loading %s: %w", name, err)
	}
	user := userDefault
	if cfg.userProvided != nil {
		user = *cfg.userProvided
	}
	priority := e.mounts.NextPriority()
	if cfg.priority != nil {
		priority = *cfg.priority
	}
	return e.mounts.Mount(mount.Options{
		ID:           cmp.Or(cfg.id, defaultID(key)),
		DisplayName:  cmp.Or(cfg.displayName, name),
		Archive:      a,
		UserProvided: user,
		Priority:     priority,
	})
}

// defaultID derives a mount id from the archive digest.
func defaultID(key digest.Digest) string {
	return key.Encoded()[:12]
}

// Unload unmounts the archive mounted under id.
func (e *Explorer) Unload(id string) error {
	return e.mounts.Unmount(id)
}

// Reorder reassigns priorities; the first id gets the lowest priority and
// the last the highest. See mount.Manager.Reorder.
func (e *Explorer) Reorder(ids []string) error {
	return e.mounts.Reorder(ids)
}

// Mounted returns the mounted archives in ascending precedence.
func (e *Explorer) Mounted() []mount.Record {
	return e.mounts.Mounted()
}

// IsOverridden reports whether path in archive id is shadowed by an archive
// with strictly higher priority.
func (e *Explorer) IsOverridden(id, path string) bool {
	return e.mounts.IsOverridden(id, path)
}

// Overridden returns the shadowed paths of archive id.
func (e *Explorer) Overridden(id string) []string {
	return e.mounts.Overridden(id)
}

// FS returns the current merged filesystem snapshot.
func (e *Explorer) FS() *vfs.FS {
	return e.mounts.FS()
}

// Mounts returns the mount manager.
func (e *Explorer) Mounts() *mount.Manager {
	return e.mounts
}

// CrossRefs returns the texture and sound usage scanner.
func (e *Explorer) CrossRefs() *xref.Scanner {
	return e.xref
}

// Entities returns the map entity aggregator.
func (e *Explorer) Entities() *entity.Aggregator {
	return e.entities
}

// ReadFile returns the merged copy of path.
func (e *Explorer) ReadFile(path string) ([]byte, error) {
	return e.FS().ReadFile(path)
}

// List returns the immediate children of dir in the merged filesystem.
func (e *Explorer) List(dir string) vfs.Listing {
	return e.FS().List(dir)
}

// Search returns the merged files whose path contains query,
// case-insensitively.
func (e *Explorer) Search(query string) []vfs.File {
	return e.FS().Search(query)
}

// palettePaths are tried in order by Palette.
var palettePaths = []string{"pics/colormap.pcx", "colormap.pcx"}

// Palette returns the game palette from the first readable palette path.
// The result is cached per filesystem snapshot.
func (e *Explorer) Palette() (color.Palette, bool) {
	fsys := e.FS()

	e.paletteMu.Lock()
	defer e.paletteMu.Unlock()
	if e.paletteFS == fsys {
		return e.palette, e.palette != nil
	}

	e.paletteFS, e.palette = fsys, nil
	for _, p := range palettePaths {
		data, err := fsys.ReadFile(p)
		if err != nil {
			continue
		}
		pal, err := pcx.Palette(data)
		if err != nil {
			e.log().Debug("palette candidate rejected", "path", p, "error", err)
			continue
		}
		e.palette = pal
		break
	}
	return e.palette, e.palette != nil
}

// ExtractOption configures Extract and ExtractDir.
type ExtractOption = extract.Option

// ExtractResult counts written and skipped files.
type ExtractResult = extract.Result

// ExtractWithOverwrite allows overwriting existing files.
// By default, existing files are skipped.
func ExtractWithOverwrite(overwrite bool) ExtractOption {
	return extract.WithOverwrite(overwrite)
}

// ExtractWithWorkers sets the number of concurrent writers.
func ExtractWithWorkers(n int) ExtractOption {
	return extract.WithWorkers(n)
}

// Extract writes the merged copies of paths under destDir.
//
// Files are written atomically using temp files and renames. Parent
// directories are created as needed. Paths missing from the merged
// filesystem fail the extraction.
func (e *Explorer) Extract(ctx context.Context, destDir string, paths []string, opts ...ExtractOption) (ExtractResult, error) {
	return extract.Files(ctx, e.FS(), destDir, paths, opts...)
}

// ExtractDir writes every merged file under prefix to destDir. If prefix is
// "" or ".", every file is extracted.
func (e *Explorer) ExtractDir(ctx context.Context, destDir, prefix string, opts ...ExtractOption) (ExtractResult, error) {
	fsys := e.FS()
	dir := pathutil.DirPrefix(pathutil.Normalize(prefix))
	var paths []string
	for _, f := range fsys.Files() {
		if strings.HasPrefix(f.Path, dir) {
			paths = append(paths, f.Path)
		}
	}
	return extract.Files(ctx, fsys, destDir, paths, opts...)
}

// Reset unmounts every archive.
func (e *Explorer) Reset() {
	e.mounts.Reset()
}

// Close unmounts every archive and stops the parse worker if the Explorer
// owns it.
func (e *Explorer) Close() error {
	e.mounts.Reset()
	if e.ownsDispatcher {
		return e.dispatcher.Close()
	}
	return nil
}
