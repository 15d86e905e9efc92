// Package extract copies files out of a mounted filesystem onto disk.
package extract

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sync/atomic"

	"golang.org/x/sync/errgroup"
)

// ErrUnsafePath is returned for paths that would escape the destination
// directory.
var ErrUnsafePath = errors.New("extract: unsafe path")

// Source provides file contents by path. *vfs.FS implements it.
type Source interface {
	ReadFile(path string) ([]byte, error)
}

// Result counts the outcome of an extraction.
type Result struct {
	Written int
	Skipped int
}

// Option configures Files.
type Option func(*config)

type config struct {
	overwrite bool
	workers   int
}

// WithOverwrite allows overwriting existing files.
// By default, existing files are skipped.
func WithOverwrite(overwrite bool) Option {
	return func(c *config) {
		c.overwrite = overwrite
	}
}

// WithWorkers sets the number of concurrent writers.
// Values <= 0 use GOMAXPROCS.
func WithWorkers(n int) Option {
	return func(c *config) {
		c.workers = n
	}
}

// Files writes each path of src under destDir, keeping the directory
// structure. Extraction stops at the first error or when ctx is done.
func Files(ctx context.Context, src Source, destDir string, paths []string, opts ...Option) (Result, error) {
	cfg := config{}
	for _, opt := range opts {
		opt(&cfg)
	}
	workers := cfg.workers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}

	sink := NewFileSink(destDir, cfg.overwrite)
	var written, skipped atomic.Int64

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for _, p := range paths {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			if !sink.ShouldWrite(p) {
				skipped.Add(1)
				return nil
			}
			data, err := src.ReadFile(p)
			if err != nil {
				return fmt.Errorf("extract: %w", err)
			}
			if err := sink.Write(p, data); err != nil {
				return err
			}
			written.Add(1)
			return nil
		})
	}
	err := g.Wait()
	if err == nil {
		err = ctx.Err()
	}

	return Result{Written: int(written.Load()), Skipped: int(skipped.Load())}, err
}
