// pakview mounts Quake II PAK archives and inspects the merged filesystem.
//
// Archives come from the config file, --pak flags and --manifest-url, and
// are mounted in that order, so later archives override earlier ones.
//
// Usage:
//
//	pakview <command> [flags] [args]
//
// Run "pakview help" for the list of commands.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"slices"
	"strings"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/pflag"

	pak "github.com/meigma/pak"
	"github.com/meigma/pak/internal/config"
	"github.com/meigma/pak/metrics"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Args[1:], os.Stdout, os.Stderr); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		stop()
		os.Exit(1) //nolint:gocritic // stop is called explicitly above
	}
}

// errUsage reports a command invoked with the wrong arguments. The usage
// of the command has already been printed.
var errUsage = errors.New("invalid usage")

// app is the state shared by the commands.
type app struct {
	cfg      *config.Config
	logger   *slog.Logger
	registry *prometheus.Registry
	metrics  *metrics.Metrics
	explorer *pak.Explorer
	stdout   io.Writer
}

// command is one pakview subcommand. setup registers the command's flags
// and returns the function that runs it after parsing.
type command struct {
	name    string
	args    string
	summary string
	// offline commands do not mount the configured archives.
	offline bool
	setup   func(fs *pflag.FlagSet) func(ctx context.Context, a *app, args []string) error
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	if len(args) == 0 || slices.Contains([]string{"help", "-h", "--help"}, args[0]) {
		printUsage(stderr)
		return nil
	}

	name := args[0]
	i := slices.IndexFunc(commands, func(c command) bool { return c.name == name })
	if i < 0 {
		printUsage(stderr)
		return fmt.Errorf("unknown command %q", name)
	}
	cmd := commands[i]

	fs := pflag.NewFlagSet("pakview "+cmd.name, pflag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.Usage = func() {
		fmt.Fprintf(stderr, "Usage: pakview %s [flags] %s\n\n%s\n\nFlags:\n", cmd.name, cmd.args, cmd.summary)
		fs.PrintDefaults()
	}
	cf := config.AddFlags(fs)
	runCmd := cmd.setup(fs)

	if err := fs.Parse(args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}

	cfg, err := cf.Load()
	if err != nil {
		return err
	}
	a, err := newApp(ctx, cfg, stdout, stderr, !cmd.offline)
	if err != nil {
		return err
	}
	if a.explorer != nil {
		defer a.explorer.Close()
	}

	err = runCmd(ctx, a, fs.Args())
	if errors.Is(err, errUsage) {
		fs.Usage()
	}
	return err
}

// newApp builds the logger and, unless offline, the explorer with the
// configured archives mounted.
func newApp(ctx context.Context, cfg *config.Config, stdout, stderr io.Writer, mount bool) (*app, error) {
	level, err := cfg.Level()
	if err != nil {
		return nil, err
	}
	logger := slog.New(slog.NewTextHandler(stderr, &slog.HandlerOptions{Level: level}))
	registry := prometheus.NewRegistry()
	a := &app{
		cfg:      cfg,
		logger:   logger,
		registry: registry,
		metrics:  metrics.New(registry),
		stdout:   stdout,
	}
	if !mount {
		return a, nil
	}

	opts := []pak.Option{
		pak.WithLogger(logger),
		pak.WithMetrics(a.metrics),
		pak.WithWorkerTimeout(cfg.Worker.Timeout),
	}
	if cfg.Cache.Dir != "" {
		opts = append(opts, pak.WithCacheMaxBytes(cfg.Cache.MaxBytes), pak.WithCacheDir(cfg.Cache.Dir))
	}
	if cfg.Worker.Disabled {
		opts = append(opts, pak.WithWorkerDisabled())
	}
	e, err := pak.New(opts...)
	if err != nil {
		return nil, err
	}
	a.explorer = e

	if cfg.ManifestURL != "" {
		records, err := e.LoadManifest(ctx, cfg.ManifestURL)
		if err != nil {
			// Archives that did load stay mounted.
			logger.Warn("manifest partially loaded", "url", cfg.ManifestURL, "loaded", len(records), "error", err)
		}
	}
	for _, p := range cfg.Paks {
		if err := mountPath(ctx, e, p); err != nil {
			e.Close()
			return nil, fmt.Errorf("mount %s: %w", p, err)
		}
	}
	return a, nil
}

// mountPath mounts a local file or, for http and https URLs, a remote
// archive.
func mountPath(ctx context.Context, e *pak.Explorer, p string) error {
	if strings.HasPrefix(p, "http://") || strings.HasPrefix(p, "https://") {
		_, err := e.LoadURL(ctx, p)
		return err
	}
	_, err := e.LoadFile(ctx, p)
	return err
}

func printUsage(w io.Writer) {
	fmt.Fprintln(w, "pakview mounts Quake II PAK archives and inspects the merged filesystem.")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Usage: pakview <command> [flags] [args]")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Commands:")
	for _, c := range commands {
		fmt.Fprintf(w, "  %-10s %s\n", c.name, c.summary)
	}
	fmt.Fprintln(w)
	fmt.Fprintln(w, `Run "pakview <command> --help" for the flags of a command.`)
}
