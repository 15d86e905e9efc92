package dispatch

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/opencontainers/go-digest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	pak "github.com/meigma/pak/core"
	"github.com/meigma/pak/core/testutil"
)

func fixture() []byte {
	return testutil.BuildPak(
		testutil.PakFile{Name: "pics/colormap.pcx", Data: []byte("palette")},
		testutil.PakFile{Name: "maps/base1.bsp", Data: []byte("base1")},
	)
}

// countingWorker wraps pak.ParseEntries and counts invocations.
func countingWorker(calls *atomic.Int32) WorkerFunc {
	return func(name string, data []byte) (*pak.ParseResult, error) {
		calls.Add(1)
		return pak.ParseEntries(name, data)
	}
}

func requireReadable(t *testing.T, a pak.Archive) {
	t.Helper()
	got, err := a.ReadFile("maps/base1.bsp")
	require.NoError(t, err)
	assert.Equal(t, "base1", string(got))
	assert.Equal(t, []string{"maps/base1.bsp", "pics/colormap.pcx"}, a.List())
}

func TestLoadUsesWorker(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	d := New(WithWorkerFunc(countingWorker(&calls)))
	defer d.Close()

	a, err := d.Load(context.Background(), "pak0.pak", fixture())
	require.NoError(t, err)
	assert.IsType(t, &pak.WorkerArchive{}, a)
	assert.Equal(t, int32(1), calls.Load())
	requireReadable(t, a)

	// The worker is reused for later loads.
	_, err = d.Load(context.Background(), "pak1.pak", fixture())
	require.NoError(t, err)
	assert.Equal(t, int32(2), calls.Load())
}

func TestLoadFallsBack(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		opts []Option
	}{
		{
			name: "worker error",
			opts: []Option{WithWorkerFunc(func(string, []byte) (*pak.ParseResult, error) {
				return nil, errors.New("worker unavailable")
			})},
		},
		{
			name: "worker panic",
			opts: []Option{WithWorkerFunc(func(string, []byte) (*pak.ParseResult, error) {
				panic("boom")
			})},
		},
		{
			name: "nil result",
			opts: []Option{WithWorkerFunc(func(string, []byte) (*pak.ParseResult, error) {
				return nil, nil //nolint:nilnil // exercising a misbehaving worker
			})},
		},
		{
			name: "consumed result",
			opts: []Option{WithWorkerFunc(func(name string, data []byte) (*pak.ParseResult, error) {
				res, err := pak.ParseEntries(name, data)
				if err != nil {
					return nil, err
				}
				if _, err := pak.NewWorkerArchive(res); err != nil {
					return nil, err
				}
				return res, nil
			})},
		},
		{
			name: "worker disabled",
			opts: []Option{WithWorkerDisabled()},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			d := New(tt.opts...)
			defer d.Close()

			a, err := d.Load(context.Background(), "pak0.pak", fixture())
			require.NoError(t, err, "worker failures are never surfaced")
			assert.IsType(t, &pak.PakArchive{}, a)
			requireReadable(t, a)
		})
	}
}

func TestLoadFallbackErrorIsReported(t *testing.T) {
	t.Parallel()

	d := New()
	defer d.Close()

	_, err := d.Load(context.Background(), "bad.pak", []byte("not a pak file"))
	require.Error(t, err)
	assert.ErrorIs(t, err, pak.ErrParse)
	assert.ErrorIs(t, err, pak.ErrBadMagic)
	assert.NotErrorIs(t, err, ErrWorkerFailure)
}

func TestLoadTimeoutFallsBack(t *testing.T) {
	t.Parallel()

	release := make(chan struct{})
	d := New(
		WithTimeout(20*time.Millisecond),
		WithWorkerFunc(func(name string, data []byte) (*pak.ParseResult, error) {
			<-release
			return pak.ParseEntries(name, data)
		}),
	)
	defer d.Close()
	defer close(release)

	a, err := d.Load(context.Background(), "pak0.pak", fixture())
	require.NoError(t, err)
	assert.IsType(t, &pak.PakArchive{}, a)
	requireReadable(t, a)
}

func TestLoadHonoursContext(t *testing.T) {
	t.Parallel()

	release := make(chan struct{})
	d := New(WithWorkerFunc(func(name string, data []byte) (*pak.ParseResult, error) {
		<-release
		return pak.ParseEntries(name, data)
	}))
	defer d.Close()
	defer close(release)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := d.Load(ctx, "pak0.pak", fixture())
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestLoadCancelDoesNotFailSharedCallers(t *testing.T) {
	t.Parallel()

	started := make(chan struct{})
	release := make(chan struct{})
	var calls atomic.Int32
	d := New(WithWorkerFunc(func(name string, data []byte) (*pak.ParseResult, error) {
		if calls.Add(1) == 1 {
			close(started)
		}
		<-release
		return pak.ParseEntries(name, data)
	}))
	defer d.Close()

	ctxA, cancelA := context.WithCancel(context.Background())
	defer cancelA()
	errA := make(chan error, 1)
	go func() {
		_, err := d.Load(ctxA, "pak0.pak", fixture())
		errA <- err
	}()
	<-started

	type result struct {
		a   pak.Archive
		err error
	}
	resB := make(chan result, 1)
	go func() {
		a, err := d.Load(context.Background(), "pak0.pak", fixture())
		resB <- result{a, err}
	}()
	// Let the second caller join the in-flight load.
	time.Sleep(20 * time.Millisecond)

	cancelA()
	require.ErrorIs(t, <-errA, context.Canceled)

	close(release)
	b := <-resB
	require.NoError(t, b.err)
	requireReadable(t, b.a)
}

func TestLoadAfterClose(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	d := New(WithWorkerFunc(countingWorker(&calls)))
	require.NoError(t, d.Close())
	require.NoError(t, d.Close(), "Close is idempotent")

	a, err := d.Load(context.Background(), "pak0.pak", fixture())
	require.NoError(t, err)
	assert.IsType(t, &pak.PakArchive{}, a)
	assert.Zero(t, calls.Load())
}

func TestLoadUsesCache(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	c := testutil.NewMockCache()
	d := New(WithCache(c), WithWorkerFunc(countingWorker(&calls)))
	defer d.Close()

	first, err := d.Load(context.Background(), "pak0.pak", fixture())
	require.NoError(t, err)
	assert.IsType(t, &pak.WorkerArchive{}, first)
	assert.Equal(t, 1, c.Len())

	second, err := d.Load(context.Background(), "pak0-copy.pak", fixture())
	require.NoError(t, err)
	assert.IsType(t, &pak.PakArchive{}, second)
	assert.Equal(t, "pak0-copy.pak", second.Name())
	assert.Equal(t, int32(1), calls.Load(), "cache hit skips the worker")
	requireReadable(t, second)
}

func TestLoadDigestKeysCache(t *testing.T) {
	t.Parallel()

	c := testutil.NewMockCache()
	d := New(WithCache(c))
	defer d.Close()

	data := fixture()
	key := digest.FromBytes(data)
	a, err := d.LoadDigest(context.Background(), "pak0.pak", data, key)
	require.NoError(t, err)
	requireReadable(t, a)
	assert.Equal(t, []digest.Digest{key}, c.Keys())

	// An empty digest is computed from data.
	_, err = d.LoadDigest(context.Background(), "pak0.pak", fixture(), "")
	require.NoError(t, err)
	assert.Equal(t, []digest.Digest{key}, c.Keys())
}

func TestLoadDiscardsBadSnapshot(t *testing.T) {
	t.Parallel()

	c := testutil.NewMockCache()
	d := New(WithCache(c))
	defer d.Close()

	data := fixture()
	_, err := d.Load(context.Background(), "pak0.pak", data)
	require.NoError(t, err)
	require.Equal(t, 1, c.Len())

	// Corrupt every cached snapshot.
	for _, key := range c.Keys() {
		require.NoError(t, c.Put(key, []byte("garbage")))
	}

	a, err := d.Load(context.Background(), "pak0.pak", fixture())
	require.NoError(t, err)
	requireReadable(t, a)
}

func TestConcurrentLoads(t *testing.T) {
	t.Parallel()

	d := New()
	defer d.Close()

	var wg sync.WaitGroup
	errs := make([]error, 8)
	for i := range errs {
		wg.Add(1)
		go func() {
			defer wg.Done()
			a, err := d.Load(context.Background(), "pak0.pak", fixture())
			if err == nil && !a.Has("maps/base1.bsp") {
				err = errors.New("missing entry")
			}
			errs[i] = err
		}()
	}
	wg.Wait()
	for _, err := range errs {
		assert.NoError(t, err)
	}
}
