package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/pflag"

	pak "github.com/meigma/pak"
	pakhttp "github.com/meigma/pak/core/http"
	"github.com/meigma/pak/entity"
	"github.com/meigma/pak/server"
	"github.com/meigma/pak/xref"
)

var commands = []command{
	{name: "mounts", summary: "List the mounted archives in load order", setup: setupMounts},
	{name: "list", args: "[dir]", summary: "List a directory of the merged filesystem, or one remote archive with --url", setup: setupList},
	{name: "tree", summary: "Print the file tree", setup: setupTree},
	{name: "search", args: "<query>", summary: "Find files whose path contains query", setup: setupSearch},
	{name: "stat", args: "<path>", summary: "Show the metadata of a file", setup: setupStat},
	{name: "cat", args: "<path>", summary: "Write a file to stdout", setup: setupCat},
	{name: "extract", args: "<dest>", summary: "Copy files of the merged filesystem to disk", setup: setupExtract},
	{name: "mods", summary: "Detect the game and mods of the mounted archives", setup: setupMods},
	{name: "xref", args: "texture|sound <path>", summary: "Find the assets that reference a texture or sound", setup: setupXref},
	{name: "entities", summary: "Scan the entities of every map", setup: setupEntities},
	{name: "serve", summary: "Serve the HTTP browse API", setup: setupServe},
	{name: "manifest", args: "<dir>", summary: "Write a pak-manifest.json for the archives under dir", offline: true, setup: setupManifest},
}

// runFunc runs a command after flag parsing.
type runFunc = func(ctx context.Context, a *app, args []string) error

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func setupMounts(fs *pflag.FlagSet) runFunc {
	asJSON := fs.Bool("json", false, "print JSON")
	return func(_ context.Context, a *app, args []string) error {
		if len(args) != 0 {
			return errUsage
		}
		records := a.explorer.Mounted()
		if *asJSON {
			type mountJSON struct {
				ID           string `json:"id"`
				Name         string `json:"name"`
				Priority     int    `json:"priority"`
				UserProvided bool   `json:"userProvided"`
				Overridden   int    `json:"overridden"`
			}
			out := make([]mountJSON, 0, len(records))
			for _, rec := range records {
				out = append(out, mountJSON{rec.ID, rec.DisplayName, rec.Priority, rec.UserProvided, len(a.explorer.Overridden(rec.ID))})
			}
			return writeJSON(a.stdout, out)
		}
		tw := tabwriter.NewWriter(a.stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "ID\tNAME\tPRIORITY\tFILES\tOVERRIDDEN")
		for _, rec := range records {
			fmt.Fprintf(tw, "%s\t%s\t%d\t%d\t%d\n", rec.ID, rec.DisplayName, rec.Priority, len(rec.Archive.List()), len(a.explorer.Overridden(rec.ID)))
		}
		return tw.Flush()
	}
}

func setupList(fs *pflag.FlagSet) runFunc {
	asJSON := fs.Bool("json", false, "print JSON")
	remote := fs.String("url", "", "list the directory of the archive at this URL instead")
	return func(ctx context.Context, a *app, args []string) error {
		if len(args) > 1 {
			return errUsage
		}
		if *remote != "" {
			entries, err := a.explorer.RemoteDirectory(ctx, *remote)
			if err != nil {
				return err
			}
			if *asJSON {
				return writeJSON(a.stdout, entries)
			}
			tw := tabwriter.NewWriter(a.stdout, 0, 4, 2, ' ', tabwriter.AlignRight)
			for _, e := range entries {
				fmt.Fprintf(tw, "%d\t%d\t %s\n", e.Offset, e.Length, e.Name)
			}
			return tw.Flush()
		}

		dir := ""
		if len(args) == 1 {
			dir = args[0]
		}
		l := a.explorer.List(dir)
		if *asJSON {
			return writeJSON(a.stdout, l)
		}
		tw := tabwriter.NewWriter(a.stdout, 0, 4, 2, ' ', 0)
		for _, d := range l.Directories {
			fmt.Fprintf(tw, "%s/\t\t\n", d)
		}
		for _, f := range l.Files {
			fmt.Fprintf(tw, "%s\t%d\t%s\n", f.Path, f.Size, f.SourceID)
		}
		return tw.Flush()
	}
}

func setupTree(fs *pflag.FlagSet) runFunc {
	mode := fs.String("mode", string(pak.ViewMerged), "view mode: merged or by-pak")
	asJSON := fs.Bool("json", false, "print JSON")
	return func(_ context.Context, a *app, args []string) error {
		if len(args) != 0 {
			return errUsage
		}
		m, err := pak.ParseViewMode(*mode)
		if err != nil {
			return err
		}
		root, err := a.explorer.FileTree(m)
		if err != nil {
			return err
		}
		if *asJSON {
			return writeJSON(a.stdout, root)
		}
		printTree(a.stdout, root, "")
		return nil
	}
}

func printTree(w io.Writer, n *pak.TreeNode, indent string) {
	for _, c := range n.Children {
		switch {
		case c.IsPakRoot:
			fmt.Fprintf(w, "%s[%s]\n", indent, c.Name)
		case c.IsDirectory:
			fmt.Fprintf(w, "%s%s/\n", indent, c.Name)
		case c.Overridden:
			fmt.Fprintf(w, "%s%s (%d, overridden)\n", indent, c.Name, c.Size)
		default:
			fmt.Fprintf(w, "%s%s (%d)\n", indent, c.Name, c.Size)
		}
		if c.IsDirectory {
			printTree(w, c, indent+"  ")
		}
	}
}

func setupSearch(fs *pflag.FlagSet) runFunc {
	limit := fs.Int("limit", 0, "maximum number of results (0 for all)")
	return func(_ context.Context, a *app, args []string) error {
		if len(args) != 1 {
			return errUsage
		}
		files := a.explorer.Search(args[0])
		if *limit > 0 && *limit < len(files) {
			files = files[:*limit]
		}
		for _, f := range files {
			fmt.Fprintln(a.stdout, f.Path)
		}
		return nil
	}
}

func setupStat(_ *pflag.FlagSet) runFunc {
	return func(_ context.Context, a *app, args []string) error {
		if len(args) != 1 {
			return errUsage
		}
		meta, ok := a.explorer.Stat(args[0])
		if !ok {
			return fmt.Errorf("%s: %w", args[0], pak.ErrNotFound)
		}
		return writeJSON(a.stdout, meta)
	}
}

func setupCat(_ *pflag.FlagSet) runFunc {
	return func(_ context.Context, a *app, args []string) error {
		if len(args) != 1 {
			return errUsage
		}
		data, err := a.explorer.ReadFile(args[0])
		if err != nil {
			return err
		}
		_, err = a.stdout.Write(data)
		return err
	}
}

func setupExtract(fs *pflag.FlagSet) runFunc {
	prefix := fs.String("prefix", "", "extract only files under this directory")
	overwrite := fs.Bool("overwrite", false, "replace existing files")
	workers := fs.Int("workers", 0, "parallel writers (0 for GOMAXPROCS)")
	return func(ctx context.Context, a *app, args []string) error {
		if len(args) != 1 {
			return errUsage
		}
		start := time.Now()
		res, err := a.explorer.ExtractDir(ctx, args[0], *prefix,
			pak.ExtractWithOverwrite(*overwrite), pak.ExtractWithWorkers(*workers))
		if err != nil {
			return err
		}
		a.logger.Info("extracted", "dest", args[0], "written", res.Written, "skipped", res.Skipped, "duration", time.Since(start))
		fmt.Fprintf(a.stdout, "%d written, %d skipped\n", res.Written, res.Skipped)
		return nil
	}
}

func setupMods(_ *pflag.FlagSet) runFunc {
	return func(_ context.Context, a *app, args []string) error {
		if len(args) != 0 {
			return errUsage
		}
		mods := a.explorer.DetectMods()
		if mods == nil {
			mods = []pak.ModInfo{}
		}
		return writeJSON(a.stdout, mods)
	}
}

func setupXref(fs *pflag.FlagSet) runFunc {
	asJSON := fs.Bool("json", false, "print JSON")
	return func(ctx context.Context, a *app, args []string) error {
		if len(args) != 2 {
			return errUsage
		}
		refs := a.explorer.CrossRefs()
		var find func(context.Context, string) ([]xref.Usage, error)
		switch args[0] {
		case "texture":
			find = refs.FindTextureUsage
		case "sound":
			find = refs.FindSoundUsage
		default:
			return errUsage
		}
		usages, err := find(ctx, args[1])
		if err != nil {
			return err
		}
		if *asJSON {
			if usages == nil {
				usages = []xref.Usage{}
			}
			return writeJSON(a.stdout, usages)
		}
		tw := tabwriter.NewWriter(a.stdout, 0, 4, 2, ' ', 0)
		for _, u := range usages {
			fmt.Fprintf(tw, "%s\t%s\t%s\n", u.Type, u.Path, u.Detail)
		}
		return tw.Flush()
	}
}

func setupEntities(fs *pflag.FlagSet) runFunc {
	mapName := fs.String("map", "", "only entities of this map")
	classname := fs.String("classname", "", "only entities with this classname")
	ent := fs.Bool("ent", false, "print the entities in .ent format")
	asJSON := fs.Bool("json", false, "print the entities as JSON")
	return func(ctx context.Context, a *app, args []string) error {
		if len(args) != 0 {
			return errUsage
		}
		records, err := a.explorer.Entities().ScanAllMaps(ctx, func(p entity.Progress) {
			a.logger.Debug("scanning", "map", p.Map, "current", p.Current, "total", p.Total)
		})
		if err != nil {
			return err
		}
		filtered := records[:0]
		for _, r := range records {
			if (*mapName == "" || r.MapName == *mapName) && (*classname == "" || r.Classname == *classname) {
				filtered = append(filtered, r)
			}
		}

		switch {
		case *ent:
			_, err := io.WriteString(a.stdout, entity.GenerateEntFile(filtered))
			return err
		case *asJSON:
			if filtered == nil {
				filtered = []entity.Record{}
			}
			return writeJSON(a.stdout, filtered)
		}

		stats := entity.ComputeStats(filtered)
		fmt.Fprintf(a.stdout, "%d entities in %d maps\n\n", stats.TotalEntities, len(stats.PerMap))
		tw := tabwriter.NewWriter(a.stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "CLASSNAME\tCOUNT")
		for _, name := range stats.Classnames() {
			fmt.Fprintf(tw, "%s\t%d\n", name, stats.PerClassname[name])
		}
		return tw.Flush()
	}
}

// shutdownTimeout bounds the graceful shutdown of serve.
const shutdownTimeout = 5 * time.Second

func setupServe(_ *pflag.FlagSet) runFunc {
	return func(ctx context.Context, a *app, args []string) error {
		if len(args) != 0 {
			return errUsage
		}
		router := server.NewRouter(server.Config{
			Explorer:    a.explorer,
			Logger:      a.logger,
			Metrics:     a.metrics,
			Gatherer:    a.registry,
			CORSOrigins: a.cfg.Serve.CORSOrigins,
		})
		srv := &http.Server{
			Addr:              a.cfg.Serve.Addr,
			Handler:           router,
			ReadHeaderTimeout: 10 * time.Second,
			BaseContext:       func(net.Listener) context.Context { return ctx },
		}

		errCh := make(chan error, 1)
		go func() {
			a.logger.Info("listening", "addr", srv.Addr, "archives", len(a.explorer.Mounted()))
			errCh <- srv.ListenAndServe()
		}()

		select {
		case err := <-errCh:
			return err
		case <-ctx.Done():
		}

		a.logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	}
}

func setupManifest(fs *pflag.FlagSet) runFunc {
	output := fs.StringP("output", "o", "", "write to this file instead of stdout")
	inPlace := fs.Bool("in-place", false, "write "+pakhttp.ManifestName+" into dir")
	return func(_ context.Context, a *app, args []string) error {
		if len(args) != 1 {
			return errUsage
		}
		dir := args[0]
		m, err := pakhttp.BuildManifest(os.DirFS(dir))
		if err != nil {
			return err
		}
		data, err := m.Marshal()
		if err != nil {
			return err
		}

		path := *output
		if *inPlace {
			path = filepath.Join(dir, pakhttp.ManifestName)
		}
		if path == "" {
			_, err = a.stdout.Write(append(data, '\n'))
			return err
		}
		if err := os.WriteFile(path, append(data, '\n'), 0o644); err != nil { //nolint:gosec // manifests are public
			return err
		}
		a.logger.Info("wrote manifest", "path", path, "paks", len(m.Paks), "list", strings.Join(m.Paks, ","))
		return nil
	}
}
