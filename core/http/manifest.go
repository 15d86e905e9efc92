package http //nolint:revive // intentional naming for domain clarity

import (
	"context"
	"encoding/json"
	"fmt"
	"io/fs"
	"net/url"
	"slices"
	"strings"
)

// ManifestName is the conventional file name of a manifest, served next to
// the archives it lists.
const ManifestName = "pak-manifest.json"

// maxManifestSize bounds manifest downloads.
const maxManifestSize = 1 << 20

// Manifest lists archives available from a server, by path relative to
// the manifest.
type Manifest struct {
	Paks []string `json:"paks"`
}

// FetchManifest downloads and decodes the manifest at manifestURL.
func FetchManifest(ctx context.Context, manifestURL string, opts ...Option) (*Manifest, error) {
	data, err := Fetch(ctx, manifestURL, append(slices.Clone(opts), WithMaxSize(maxManifestSize))...)
	if err != nil {
		return nil, err
	}
	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("decoding manifest %s: %w", manifestURL, err)
	}
	return &m, nil
}

// URLs resolves every listed archive against manifestURL.
func (m *Manifest) URLs(manifestURL string) ([]string, error) {
	base, err := url.Parse(manifestURL)
	if err != nil {
		return nil, fmt.Errorf("parsing manifest url: %w", err)
	}
	urls := make([]string, 0, len(m.Paks))
	for _, p := range m.Paks {
		ref, err := url.Parse(strings.TrimPrefix(p, "/"))
		if err != nil {
			return nil, fmt.Errorf("manifest entry %q: %w", p, err)
		}
		urls = append(urls, base.ResolveReference(ref).String())
	}
	return urls, nil
}

// BuildManifest lists every .pak file under fsys, sorted.
func BuildManifest(fsys fs.FS) (*Manifest, error) {
	m := &Manifest{Paks: []string{}}
	err := fs.WalkDir(fsys, ".", func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() && strings.EqualFold(pathExt(p), ".pak") {
			m.Paks = append(m.Paks, p)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	slices.Sort(m.Paks)
	return m, nil
}

// Marshal encodes m as indented JSON.
func (m *Manifest) Marshal() ([]byte, error) {
	return json.MarshalIndent(m, "", "  ")
}

func pathExt(p string) string {
	if i := strings.LastIndexByte(p, '.'); i > strings.LastIndexByte(p, '/') {
		return p[i:]
	}
	return ""
}
