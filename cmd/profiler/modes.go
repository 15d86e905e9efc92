package main

import (
	"context"
	"fmt"
	"math/rand" //nolint:gosec // intentional use for reproducible benchmarks
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	pak "github.com/meigma/pak/core"
	"github.com/meigma/pak/dispatch"
	"github.com/meigma/pak/entity"
	"github.com/meigma/pak/internal/extract"
	"github.com/meigma/pak/mount"
	"github.com/meigma/pak/vfs"
	"github.com/meigma/pak/xref"
)

//nolint:unused // sink variables prevent compiler optimizations in profiling
var (
	sinkBytes   []byte
	sinkFile    vfs.File
	sinkCount   int
	sinkArchive pak.Archive
)

type profileStats struct {
	ops     int
	bytes   int64
	elapsed time.Duration
}

// loop counts operations and decides when a mode has run long enough.
type loop struct {
	cfg   config
	data  []byte
	paths []string
	dir   string
	rng   *rand.Rand

	start time.Time
	ops   int
	bytes int64
}

// next reports whether another operation should run.
func (l *loop) next() bool {
	if l.cfg.iterations > 0 {
		return l.ops < l.cfg.iterations
	}
	return time.Since(l.start) < l.cfg.duration
}

// done records one finished operation that moved n bytes.
func (l *loop) done(n int) {
	l.ops++
	l.bytes += int64(n)
}

// restart excludes setup work from the measured time.
func (l *loop) restart() {
	l.start = time.Now()
}

func (l *loop) pick() string {
	if l.cfg.readRandom {
		return l.paths[l.rng.Intn(len(l.paths))]
	}
	return l.paths[l.ops%len(l.paths)]
}

type modeFunc func(ctx context.Context, l *loop) error

var modes = map[string]modeFunc{
	"load":             profileLoad,
	"readfile":         profileReadFile,
	"lookup":           profileLookup,
	"list":             profileList,
	"mount":            profileMount,
	"xref-texture":     profileXref(textureUsage),
	"xref-sound":       profileXref(soundUsage),
	"entities":         profileEntities,
	"extract":          profileExtract,
	"remote-directory": profileRemoteDirectory,
	"remote-read":      profileRemoteRead,
}

func modeNames() string {
	names := make([]string, 0, len(modes))
	for name := range modes {
		names = append(names, name)
	}
	slices.Sort(names)
	return strings.Join(names, ", ")
}

//nolint:gocritic // hugeParam acceptable for config struct in CLI tool
func runProfile(ctx context.Context, cfg config, data []byte, paths []string, dir string) (profileStats, error) {
	fn, ok := modes[cfg.mode]
	if !ok {
		return profileStats{}, fmt.Errorf("unknown mode: %s", cfg.mode)
	}
	l := &loop{
		cfg:   cfg,
		data:  data,
		paths: paths,
		dir:   dir,
		rng:   rand.New(rand.NewSource(cfg.randomSeed)), //nolint:gosec // intentional for reproducible benchmarks
		start: time.Now(),
	}
	if err := fn(ctx, l); err != nil {
		return profileStats{}, err
	}
	return profileStats{ops: l.ops, bytes: l.bytes, elapsed: time.Since(l.start)}, nil
}

func profileLoad(ctx context.Context, l *loop) error {
	var opts []dispatch.Option
	if l.cfg.noWorker {
		opts = append(opts, dispatch.WithWorkerDisabled())
	}
	if l.cfg.cache != cacheNone {
		c, err := newCache(l.cfg, l.dir)
		if err != nil {
			return err
		}
		opts = append(opts, dispatch.WithCache(c))
	}
	d := dispatch.New(opts...)
	defer d.Close()

	for l.next() {
		a, err := d.Load(ctx, "pak0.pak", l.data)
		if err != nil {
			return err
		}
		sinkArchive = a
		l.done(len(l.data))
	}
	return nil
}

func profileReadFile(_ context.Context, l *loop) error {
	fsys, err := mountedFS(l.data)
	if err != nil {
		return err
	}
	for l.next() {
		content, err := fsys.ReadFile(l.pick())
		if err != nil {
			return err
		}
		sinkBytes = content
		l.done(len(content))
	}
	return nil
}

func profileLookup(_ context.Context, l *loop) error {
	fsys, err := mountedFS(l.data)
	if err != nil {
		return err
	}
	for l.next() {
		p := l.pick()
		f, ok := fsys.Lookup(p)
		if !ok {
			return fmt.Errorf("missing entry for %q", p)
		}
		sinkFile = f
		l.done(0)
	}
	return nil
}

func profileList(_ context.Context, l *loop) error {
	fsys, err := mountedFS(l.data)
	if err != nil {
		return err
	}
	for l.next() {
		listing := fsys.List(l.cfg.prefix)
		n := len(listing.Files) + len(listing.Directories)
		if n == 0 {
			return fmt.Errorf("nothing listed under %q", l.cfg.prefix)
		}
		sinkCount = n
		l.done(0)
	}
	return nil
}

// profileMount mounts cfg.archives copies of the archive and resets the
// manager each operation, so every op rebuilds the merged view once per
// mount.
func profileMount(_ context.Context, l *loop) error {
	a, err := pak.Parse("pak0.pak", l.data)
	if err != nil {
		return err
	}
	m := mount.New()
	for l.next() {
		for i := range l.cfg.archives {
			if _, err := m.Mount(mount.Options{ID: fmt.Sprintf("pak%d", i), Archive: a, Priority: i}); err != nil {
				return err
			}
		}
		sinkCount = m.FS().Len()
		m.Reset()
		l.done(0)
	}
	return nil
}

func textureUsage(ctx context.Context, s *xref.Scanner) ([]xref.Usage, error) {
	return s.FindTextureUsage(ctx, "textures/e1u1/floor1_3.wal")
}

func soundUsage(ctx context.Context, s *xref.Scanner) ([]xref.Usage, error) {
	return s.FindSoundUsage(ctx, "sound/world/amb10.wav")
}

func profileXref(find func(context.Context, *xref.Scanner) ([]xref.Usage, error)) modeFunc {
	return func(ctx context.Context, l *loop) error {
		m, err := mountedManager(l.data)
		if err != nil {
			return err
		}
		s := xref.New(m)
		for l.next() {
			usages, err := find(ctx, s)
			if err != nil {
				return err
			}
			sinkCount = len(usages)
			l.done(0)
		}
		return nil
	}
}

func profileEntities(ctx context.Context, l *loop) error {
	m, err := mountedManager(l.data)
	if err != nil {
		return err
	}
	agg := entity.NewAggregator(m)
	for l.next() {
		records, err := agg.ScanAllMaps(ctx, nil)
		if err != nil {
			return err
		}
		sinkCount = len(records)
		l.done(0)
	}
	return nil
}

func profileExtract(ctx context.Context, l *loop) error {
	fsys, err := mountedFS(l.data)
	if err != nil {
		return err
	}
	opts := []extract.Option{extract.WithOverwrite(true)}
	if l.cfg.workers != 0 {
		opts = append(opts, extract.WithWorkers(l.cfg.workers))
	}
	for l.next() {
		dest := filepath.Join(l.dir, "extract", fmt.Sprintf("iter-%d", l.ops))
		res, err := extract.Files(ctx, fsys, dest, l.paths, opts...)
		if err != nil {
			return err
		}
		if err := os.RemoveAll(dest); err != nil {
			return err
		}
		sinkCount = res.Written
		l.done(len(l.paths) * l.cfg.fileSize)
	}
	return nil
}

func profileRemoteDirectory(ctx context.Context, l *loop) error {
	src, stop, err := newHTTPSource(ctx, l.cfg, l.data)
	if err != nil {
		return err
	}
	defer stop()

	l.restart()
	for l.next() {
		entries, err := src.Directory(ctx)
		if err != nil {
			return err
		}
		sinkCount = len(entries)
		l.done(len(entries) * 64)
	}
	return nil
}

func profileRemoteRead(ctx context.Context, l *loop) error {
	src, stop, err := newHTTPSource(ctx, l.cfg, l.data)
	if err != nil {
		return err
	}
	defer stop()

	entries, err := src.Directory(ctx)
	if err != nil {
		return err
	}
	l.restart()
	for l.next() {
		e := entries[l.ops%len(entries)]
		if l.cfg.readRandom {
			e = entries[l.rng.Intn(len(entries))]
		}
		content, err := src.ReadEntry(ctx, e)
		if err != nil {
			return err
		}
		sinkBytes = content
		l.done(len(content))
	}
	return nil
}
