package pak

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"path"

	pakcore "github.com/meigma/pak/core"
	pakhttp "github.com/meigma/pak/core/http"
	"github.com/meigma/pak/mount"
)

// LoadURL downloads and mounts the archive at rawURL. Servers with range
// support are read with a range request; others with a plain GET. Remote
// archives are built in unless LoadWithUserProvided says otherwise.
func (e *Explorer) LoadURL(ctx context.Context, rawURL string, opts ...LoadOption) (mount.Record, error) {
	cfg := loadConfig{}
	for _, opt := range opts {
		opt(&cfg)
	}
	data, err := e.download(ctx, rawURL)
	if err != nil {
		return mount.Record{}, err
	}
	return e.load(ctx, urlBase(rawURL), data, cfg, false)
}

func (e *Explorer) download(ctx context.Context, rawURL string) ([]byte, error) {
	src, err := pakhttp.NewSource(ctx, rawURL, e.httpOpts...)
	if err == nil {
		return src.Fetch(ctx)
	}
	if errors.Is(err, pakhttp.ErrTooLarge) || ctx.Err() != nil {
		return nil, err
	}
	e.log().Debug("range source unavailable, using plain download", "url", rawURL, "error", err)
	return pakhttp.Fetch(ctx, rawURL, e.httpOpts...)
}

// RemoteDirectory lists the archive at rawURL with two range requests,
// without downloading its content.
func (e *Explorer) RemoteDirectory(ctx context.Context, rawURL string) ([]pakcore.Entry, error) {
	src, err := pakhttp.NewSource(ctx, rawURL, e.httpOpts...)
	if err != nil {
		return nil, err
	}
	return src.Directory(ctx)
}

// LoadManifest mounts every archive listed by the manifest at manifestURL,
// in manifest order, as built-in archives named by their manifest path.
// Later archives override earlier ones. LoadWithID is ignored.
//
// An archive that fails to load is skipped; the returned error joins every
// such failure. The records of the archives that did load are returned
// either way.
func (e *Explorer) LoadManifest(ctx context.Context, manifestURL string, opts ...LoadOption) ([]mount.Record, error) {
	m, err := pakhttp.FetchManifest(ctx, manifestURL, e.httpOpts...)
	if err != nil {
		return nil, err
	}
	urls, err := m.URLs(manifestURL)
	if err != nil {
		return nil, err
	}

	var (
		records []mount.Record
		errs    []error
	)
	for i, u := range urls {
		if err := ctx.Err(); err != nil {
			return records, err
		}
		data, err := e.download(ctx, u)
		if err != nil {
			e.log().Warn("skipping manifest archive", "url", u, "error", err)
			errs = append(errs, fmt.Errorf("%s: %w", m.Paks[i], err))
			continue
		}
		loadOpts := append([]LoadOption{LoadWithUserProvided(false)}, opts...)
		loadOpts = append(loadOpts, LoadWithDisplayName(m.Paks[i]))
		cfg := loadConfig{}
		for _, opt := range loadOpts {
			opt(&cfg)
		}
		cfg.id = ""
		rec, err := e.load(ctx, m.Paks[i], data, cfg, false)
		if err != nil {
			e.log().Warn("skipping manifest archive", "url", u, "error", err)
			errs = append(errs, err)
			continue
		}
		records = append(records, rec)
	}
	return records, errors.Join(errs...)
}

func urlBase(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil || u.Path == "" {
		return rawURL
	}
	return path.Base(u.Path)
}
