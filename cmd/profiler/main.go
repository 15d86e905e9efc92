// Command profiler drives one archive operation in a loop under the Go
// profilers, against a generated archive.
package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	_ "net/http/pprof" //nolint:gosec // intentional profiling endpoint
	"os"
	"os/signal"
	"runtime"
	"runtime/pprof"
	"runtime/trace"
	"time"

	"github.com/felixge/fgprof"
	"github.com/spf13/pflag"
)

type config struct {
	mode            string
	files           int
	fileSize        int
	dirCount        int
	maps            int
	models          int
	archives        int
	dataURL         string
	dataHTTPLatency time.Duration
	dataHTTPBPS     int64
	fgProfile       string
	duration        time.Duration
	iterations      int
	pprofAddr       string
	cpuProfile      string
	memProfile      string
	traceFile       string
	cache           string
	cacheDir        string
	noWorker        bool
	prefix          string
	workers         int
	readRandom      bool
	tempDir         string
	keepTemp        bool
	randomSeed      int64
}

func main() {
	cfg, err := parseFlags(os.Args[1:])
	if err != nil {
		log.Fatal(err)
	}
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		log.Fatal(err) //nolint:gocritic // exitAfterDefer is fine, stop only releases the signal
	}
}

//nolint:gocritic // hugeParam acceptable for config struct in CLI tool
func run(ctx context.Context, cfg config) (err error) {
	if cfg.pprofAddr != "" {
		go func() {
			log.Printf("pprof listening on %s", cfg.pprofAddr)
			//nolint:gosec // intentional pprof server without timeouts for profiling
			if err := http.ListenAndServe(cfg.pprofAddr, nil); err != nil {
				log.Printf("pprof server error: %v", err)
			}
		}()
	}

	dir, removeDir, err := workDir(cfg)
	if err != nil {
		return err
	}
	defer func() { err = errors.Join(err, removeDir()) }()

	data, paths := buildArchive(cfg)

	stopProfiles, err := startProfiles(cfg)
	if err != nil {
		return err
	}
	stats, runErr := runProfile(ctx, cfg, data, paths, dir)
	if err := errors.Join(runErr, stopProfiles()); err != nil {
		return err
	}

	if cfg.memProfile != "" {
		if err := writeHeapProfile(cfg.memProfile); err != nil {
			return err
		}
	}

	fmt.Printf("mode=%s ops=%d bytes=%d elapsed=%s throughput=%.2f MB/s\n",
		cfg.mode, stats.ops, stats.bytes, stats.elapsed,
		float64(stats.bytes)/(1<<20)/stats.elapsed.Seconds(),
	)
	return nil
}

func parseFlags(args []string) (config, error) {
	var (
		cfg config
		bps string
	)
	fs := pflag.NewFlagSet("profiler", pflag.ContinueOnError)
	fs.StringVar(&cfg.mode, "mode", "readfile", "mode: "+modeNames())
	fs.IntVar(&cfg.files, "files", 512, "number of plain files")
	fs.IntVar(&cfg.fileSize, "file-size", 16<<10, "file size in bytes")
	fs.IntVar(&cfg.dirCount, "dir-count", 16, "number of directories")
	fs.IntVar(&cfg.maps, "maps", 8, "number of maps")
	fs.IntVar(&cfg.models, "models", 32, "number of models")
	fs.IntVar(&cfg.archives, "archives", 8, "archives mounted per iteration (mount mode)")
	fs.StringVar(&cfg.dataURL, "data-url", "local", "archive URL for remote modes (\"local\" serves generated data)")
	fs.DurationVar(&cfg.dataHTTPLatency, "data-http-latency", 0, "added latency per HTTP request")
	fs.StringVar(&bps, "data-http-bps", "", "HTTP bandwidth cap (e.g. 10MBps)")
	fs.StringVar(&cfg.fgProfile, "fgprofile", "", "write fgprof (wall clock) profile to file")
	fs.DurationVar(&cfg.duration, "duration", 10*time.Second, "duration to run (ignored if iterations > 0)")
	fs.IntVar(&cfg.iterations, "iterations", 0, "number of iterations to run")
	fs.StringVar(&cfg.pprofAddr, "pprof-addr", "", "pprof listen address (e.g. :6060)")
	fs.StringVar(&cfg.cpuProfile, "cpuprofile", "", "write CPU profile to file")
	fs.StringVar(&cfg.memProfile, "memprofile", "", "write heap profile to file")
	fs.StringVar(&cfg.traceFile, "trace", "", "write execution trace to file")
	fs.StringVar(&cfg.cache, "cache", cacheNone, "directory cache for load mode: memory, disk, none")
	fs.StringVar(&cfg.cacheDir, "cache-dir", "", "disk cache directory (default: under the work dir)")
	fs.BoolVar(&cfg.noWorker, "no-worker", false, "parse synchronously in load mode")
	fs.StringVar(&cfg.prefix, "prefix", "dir00", "directory for list mode")
	fs.IntVar(&cfg.workers, "workers", 0, "extract workers: 0 auto, >0 fixed")
	fs.BoolVar(&cfg.readRandom, "read-random", true, "randomize path selection")
	fs.StringVar(&cfg.tempDir, "temp-dir", "", "work directory for extraction and caches")
	fs.BoolVar(&cfg.keepTemp, "keep-temp", false, "keep the generated work dir")
	fs.Int64Var(&cfg.randomSeed, "seed", 1, "random seed")
	if err := fs.Parse(args); err != nil {
		return config{}, err
	}
	if bps != "" {
		n, err := parseBytesPerSecond(bps)
		if err != nil {
			return config{}, fmt.Errorf("data-http-bps: %w", err)
		}
		cfg.dataHTTPBPS = n
	}
	return cfg, nil
}

// startProfiles starts the configured fgprof, CPU and trace profiles. The
// returned func stops them and closes their files.
//
//nolint:gocritic // hugeParam acceptable for config struct in CLI tool
func startProfiles(cfg config) (func() error, error) {
	var stops []func() error
	stopAll := func() error {
		var errs []error
		for i := len(stops) - 1; i >= 0; i-- {
			errs = append(errs, stops[i]())
		}
		return errors.Join(errs...)
	}

	start := func(path string, begin func(*os.File) (func() error, error)) error {
		if path == "" {
			return nil
		}
		f, err := os.Create(path) //nolint:gosec // path comes from a flag
		if err != nil {
			return err
		}
		end, err := begin(f)
		if err != nil {
			return errors.Join(err, f.Close())
		}
		stops = append(stops, func() error { return errors.Join(end(), f.Close()) })
		return nil
	}

	err := errors.Join(
		start(cfg.fgProfile, func(f *os.File) (func() error, error) {
			return fgprof.Start(f, fgprof.FormatPprof), nil
		}),
		start(cfg.cpuProfile, func(f *os.File) (func() error, error) {
			if err := pprof.StartCPUProfile(f); err != nil {
				return nil, err
			}
			return func() error { pprof.StopCPUProfile(); return nil }, nil
		}),
		start(cfg.traceFile, func(f *os.File) (func() error, error) {
			if err := trace.Start(f); err != nil {
				return nil, err
			}
			return func() error { trace.Stop(); return nil }, nil
		}),
	)
	if err != nil {
		return nil, errors.Join(err, stopAll())
	}
	return stopAll, nil
}

func writeHeapProfile(path string) error {
	runtime.GC()
	f, err := os.Create(path) //nolint:gosec // path comes from a flag
	if err != nil {
		return err
	}
	return errors.Join(pprof.WriteHeapProfile(f), f.Close())
}

// workDir returns the directory for extraction and caches, and a func
// that removes it unless it was given or kept.
//
//nolint:gocritic // hugeParam acceptable for config struct in CLI tool
func workDir(cfg config) (string, func() error, error) {
	keep := func() error { return nil }
	if cfg.tempDir != "" {
		return cfg.tempDir, keep, os.MkdirAll(cfg.tempDir, 0o755) //nolint:gosec // 0o755 is intentional for profiler work dirs
	}
	dir, err := os.MkdirTemp("", "pak-profiler-*")
	if err != nil {
		return "", nil, err
	}
	if cfg.keepTemp {
		log.Printf("keeping work dir %s", dir)
		return dir, keep, nil
	}
	return dir, func() error { return os.RemoveAll(dir) }, nil
}
