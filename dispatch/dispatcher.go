package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/opencontainers/go-digest"
	"golang.org/x/sync/singleflight"

	pak "github.com/meigma/pak/core"
	"github.com/meigma/pak/core/cache"
	"github.com/meigma/pak/metrics"
)

// ErrWorkerFailure marks a failed background parse. Load never returns it;
// it appears only in logs.
var ErrWorkerFailure = errors.New("dispatch: worker failure")

// Worker failure reasons, used as log attributes and metric labels.
const (
	reasonDisabled = "disabled"
	reasonClosed   = "closed"
	reasonError    = "error"
	reasonTimeout  = "timeout"
)

// WorkerFunc parses an archive directory off the calling goroutine.
// The returned result owns data.
type WorkerFunc func(name string, data []byte) (*pak.ParseResult, error)

// Dispatcher parses archives on a background worker with a synchronous
// fallback. It is safe for concurrent use.
type Dispatcher struct {
	timeout  time.Duration
	logger   *slog.Logger
	cache    cache.Cache // nil = no caching
	metrics  *metrics.Metrics
	disabled bool
	work     WorkerFunc

	startOnce sync.Once
	closeOnce sync.Once
	closed    atomic.Bool
	jobs      chan *job
	quit      chan struct{}

	loadGroup singleflight.Group // zero value is valid
}

type job struct {
	name  string
	data  []byte
	reply chan reply // buffered so a late reply never blocks the worker
}

type reply struct {
	res *pak.ParseResult
	err error
}

// New creates a Dispatcher. The worker goroutine is started on the first
// Load.
func New(opts ...Option) *Dispatcher {
	d := &Dispatcher{
		work: pak.ParseEntries,
		jobs: make(chan *job),
		quit: make(chan struct{}),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// log returns the logger, falling back to a discard logger if nil.
func (d *Dispatcher) log() *slog.Logger {
	if d.logger == nil {
		return slog.New(slog.DiscardHandler)
	}
	return d.logger
}

// Load parses data into an archive named name.
//
// The buffer is handed to the worker and comes back inside the parse
// result; the returned archive owns it and callers must not modify data
// after calling Load. Concurrent loads of identical bytes under the same
// name share one parse.
//
// The only errors returned are the synchronous parse error (when both the
// worker and the fallback fail) and ctx.Err().
func (d *Dispatcher) Load(ctx context.Context, name string, data []byte) (pak.Archive, error) {
	return d.LoadDigest(ctx, name, data, digest.FromBytes(data))
}

// LoadDigest is Load for callers that already hold the digest of data.
// key must be digest.FromBytes(data); it keys the directory cache and
// the shared parse.
//
// The shared parse is detached from ctx, so one caller giving up does
// not fail the others waiting on it. Each caller still returns
// ctx.Err() as soon as its own ctx is done.
func (d *Dispatcher) LoadDigest(ctx context.Context, name string, data []byte, key digest.Digest) (pak.Archive, error) {
	if key == "" {
		key = digest.FromBytes(data)
	}
	detached := context.WithoutCancel(ctx)
	ch := d.loadGroup.DoChan(name+"@"+key.String(), func() (any, error) {
		return d.load(detached, name, key, data)
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		if res.Shared {
			d.log().Debug("load shared with concurrent caller", "name", name, "digest", key)
		}
		return res.Val.(pak.Archive), nil //nolint:errcheck,forcetypeassert // always an Archive when Err is nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (d *Dispatcher) load(ctx context.Context, name string, key digest.Digest, data []byte) (pak.Archive, error) {
	start := time.Now()

	if a := d.fromCache(name, key, data); a != nil {
		d.metrics.ObserveLoad(metrics.PathCache, time.Since(start))
		return a, nil
	}

	a, path, err := d.parse(ctx, name, data)
	if err != nil {
		return nil, err
	}
	d.metrics.ObserveLoad(path, time.Since(start))
	d.log().Debug("archive loaded", "name", name, "path", path, "entries", len(a.List()), "duration", time.Since(start))

	d.storeCache(name, key, a)
	return a, nil
}

// parse tries the worker and falls back to a synchronous parse.
func (d *Dispatcher) parse(ctx context.Context, name string, data []byte) (pak.Archive, string, error) {
	res, err := d.submit(ctx, name, data)
	if err == nil {
		a, bindErr := pak.NewWorkerArchive(res)
		if bindErr == nil {
			return a, metrics.PathWorker, nil
		}
		err = fmt.Errorf("%w: %w", ErrWorkerFailure, bindErr)
	}
	if !errors.Is(err, ErrWorkerFailure) {
		return nil, "", err
	}

	d.log().Warn("worker parse failed, parsing synchronously", "name", name, "error", err)
	a, err := pak.Parse(name, data)
	if err != nil {
		return nil, "", err
	}
	return a, metrics.PathFallback, nil
}

// submit sends one job to the worker and waits for its reply.
// Every failure other than ctx cancellation wraps ErrWorkerFailure.
func (d *Dispatcher) submit(ctx context.Context, name string, data []byte) (*pak.ParseResult, error) {
	if d.disabled {
		return nil, d.workerFailure(reasonDisabled, nil)
	}
	if d.closed.Load() {
		return nil, d.workerFailure(reasonClosed, nil)
	}
	d.startOnce.Do(func() {
		go d.run()
	})

	var timeout <-chan time.Time
	if d.timeout > 0 {
		timer := time.NewTimer(d.timeout)
		defer timer.Stop()
		timeout = timer.C
	}

	j := &job{name: name, data: data, reply: make(chan reply, 1)}
	select {
	case d.jobs <- j:
	case <-d.quit:
		return nil, d.workerFailure(reasonClosed, nil)
	case <-timeout:
		return nil, d.workerFailure(reasonTimeout, nil)
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	select {
	case r := <-j.reply:
		if r.err != nil {
			return nil, d.workerFailure(reasonError, r.err)
		}
		return r.res, nil
	case <-d.quit:
		return nil, d.workerFailure(reasonClosed, nil)
	case <-timeout:
		return nil, d.workerFailure(reasonTimeout, nil)
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (d *Dispatcher) workerFailure(reason string, cause error) error {
	d.metrics.WorkerFailure(reason)
	if cause != nil {
		return fmt.Errorf("%w: %s: %w", ErrWorkerFailure, reason, cause)
	}
	return fmt.Errorf("%w: %s", ErrWorkerFailure, reason)
}

// run is the worker loop. Replies to callers that stopped waiting are
// dropped with their job.
func (d *Dispatcher) run() {
	for {
		select {
		case <-d.quit:
			return
		case j := <-d.jobs:
			j.reply <- d.runJob(j)
		}
	}
}

func (d *Dispatcher) runJob(j *job) (r reply) {
	defer func() {
		if p := recover(); p != nil {
			r = reply{err: fmt.Errorf("panic: %v", p)}
		}
	}()
	res, err := d.work(j.name, j.data)
	if err == nil && res == nil {
		err = errors.New("worker returned no result")
	}
	return reply{res: res, err: err}
}

// fromCache binds a cached directory snapshot, or returns nil on a miss.
func (d *Dispatcher) fromCache(name string, key digest.Digest, data []byte) pak.Archive {
	if d.cache == nil {
		return nil
	}
	snap, ok := d.cache.Get(key)
	if !ok {
		d.log().Debug("directory cache miss", "name", name, "digest", key)
		return nil
	}
	a, err := pak.FromSnapshot(name, snap, data)
	if err != nil {
		d.log().Warn("discarding unusable directory snapshot", "name", name, "digest", key, "error", err)
		_ = d.cache.Delete(key) //nolint:errcheck // best-effort cleanup of a bad entry
		return nil
	}
	d.log().Debug("directory cache hit", "name", name, "digest", key)
	return a
}

func (d *Dispatcher) storeCache(name string, key digest.Digest, a pak.Archive) {
	if d.cache == nil {
		return
	}
	snap, err := pak.MarshalDirectory(a)
	if err != nil {
		d.log().Warn("encoding directory snapshot", "name", name, "error", err)
		return
	}
	if err := d.cache.Put(key, snap); err != nil {
		d.log().Warn("caching directory snapshot", "name", name, "error", err)
	}
}

// Close stops the worker. Loads after Close take the synchronous path.
func (d *Dispatcher) Close() error {
	d.closeOnce.Do(func() {
		d.closed.Store(true)
		close(d.quit)
	})
	return nil
}
