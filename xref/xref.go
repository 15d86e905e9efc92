// Package xref finds the assets that reference a texture or sound.
//
// A scan works on the filesystem snapshot current when it starts, reads the
// files of every registered extension one at a time, and extracts their
// references with the format readers. Files that cannot be read or parsed
// are logged and skipped; a scan only fails when its context is done.
package xref

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/meigma/pak/format/bsp"
	"github.com/meigma/pak/format/md2"
	"github.com/meigma/pak/format/md3"
	"github.com/meigma/pak/internal/pathutil"
	"github.com/meigma/pak/metrics"
	"github.com/meigma/pak/vfs"
)

// Usage types.
const (
	TypeModel = "model"
	TypeMap   = "map"
)

// Usage is one asset referencing the searched path.
type Usage struct {
	// Type is TypeModel, TypeMap or the type of a custom extractor.
	Type string `json:"type"`

	// Path is the referencing asset.
	Path string `json:"path"`

	// MatchedRef is the reference as stored in the asset.
	MatchedRef string `json:"matchedRef"`

	// Detail is a short human readable description of the match.
	Detail string `json:"detail,omitempty"`
}

// Ref is one reference extracted from an asset.
type Ref struct {
	// Value is the referenced path or name, as stored.
	Value string

	// Key and Classname are set for references taken from a BSP entity
	// sound key.
	Key       string
	Classname string
}

// RefFunc extracts the references of one asset.
type RefFunc func(data []byte) ([]Ref, error)

type extractor struct {
	ext  string
	typ  string
	refs RefFunc
}

// Source provides the filesystem snapshot to scan. *mount.Manager
// implements it.
type Source interface {
	FS() *vfs.FS
}

// Scanner searches a filesystem for references. It is safe for concurrent
// use and keeps no state between scans.
type Scanner struct {
	src        Source
	logger     *slog.Logger
	metrics    *metrics.Metrics
	extractors []extractor
}

// Option configures a Scanner.
type Option func(*Scanner)

// WithLogger sets the logger for skipped files.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Scanner) {
		s.logger = logger
	}
}

// WithMetrics records scan durations and skipped files.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Scanner) {
		s.metrics = m
	}
}

// WithExtractor registers fn for files with extension ext, reported with
// usage type typ. It replaces any extractor already registered for ext.
func WithExtractor(ext, typ string, fn RefFunc) Option {
	return func(s *Scanner) {
		s.register(extractor{ext: strings.ToLower(strings.TrimPrefix(ext, ".")), typ: typ, refs: fn})
	}
}

// New creates a Scanner over src with extractors for md2, md3 and bsp.
func New(src Source, opts ...Option) *Scanner {
	s := &Scanner{src: src}
	s.register(extractor{ext: "md2", typ: TypeModel, refs: MD2Refs})
	s.register(extractor{ext: "md3", typ: TypeModel, refs: MD3Refs})
	s.register(extractor{ext: "bsp", typ: TypeMap, refs: BSPRefs})
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Scanner) register(e extractor) {
	if i := slices.IndexFunc(s.extractors, func(x extractor) bool { return x.ext == e.ext }); i >= 0 {
		s.extractors[i] = e
		return
	}
	s.extractors = append(s.extractors, e)
}

func (s *Scanner) log() *slog.Logger {
	if s.logger == nil {
		return slog.New(slog.DiscardHandler)
	}
	return s.logger
}

// FindTextureUsage returns one usage for every asset with a reference to
// texturePath. A reference matches when it equals texturePath or when both
// are equal with their extensions stripped, so "models/skin" finds both
// "models/skin.pcx" and "models/skin.tga". Comparison is case-insensitive.
//
// Results follow extractor registration order, then path order.
func (s *Scanner) FindTextureUsage(ctx context.Context, texturePath string) ([]Usage, error) {
	query := pathutil.Normalize(texturePath)
	queryBase := pathutil.StripExt(query)

	var usages []Usage
	err := s.scan(ctx, "texture", s.extractors, func(e extractor, path string, refs []Ref) {
		for _, ref := range refs {
			norm := pathutil.Normalize(ref.Value)
			if norm == query || pathutil.StripExt(norm) == queryBase {
				usages = append(usages, Usage{Type: e.typ, Path: path, MatchedRef: ref.Value, Detail: "Ref: " + ref.Value})
				return
			}
		}
	})
	if err != nil {
		return nil, err
	}
	return usages, nil
}

// FindSoundUsage returns the maps referencing soundPath. Entity sound keys
// produce one usage per entity naming its classname; otherwise the first
// matching reference produces a single usage for the map. A reference
// matches when it equals soundPath, ends with it, or equals it once the
// implicit "sound/" directory is added.
func (s *Scanner) FindSoundUsage(ctx context.Context, soundPath string) ([]Usage, error) {
	query := pathutil.Normalize(soundPath)
	matches := func(v string) bool {
		norm := pathutil.Normalize(v)
		return norm == query || strings.HasSuffix(norm, query) || "sound/"+norm == query
	}

	maps := slices.DeleteFunc(slices.Clone(s.extractors), func(e extractor) bool { return e.ext != "bsp" })

	var usages []Usage
	err := s.scan(ctx, "sound", maps, func(e extractor, path string, refs []Ref) {
		detailed := false
		for _, ref := range refs {
			if ref.Key != "" && matches(ref.Value) {
				usages = append(usages, Usage{Type: e.typ, Path: path, MatchedRef: ref.Value, Detail: "classname: " + ref.Classname})
				detailed = true
			}
		}
		if detailed {
			return
		}
		for _, ref := range refs {
			if ref.Key == "" && matches(ref.Value) {
				usages = append(usages, Usage{Type: e.typ, Path: path, MatchedRef: ref.Value, Detail: "Used in map"})
				return
			}
		}
	})
	if err != nil {
		return nil, err
	}
	return usages, nil
}

// scan reads every file handled by extractors from one snapshot and passes
// its references to visit.
func (s *Scanner) scan(ctx context.Context, scanner string, extractors []extractor, visit func(extractor, string, []Ref)) error {
	start := time.Now()
	fsys := s.src.FS()

	skipped := 0
	for _, e := range extractors {
		for _, f := range fsys.FindByExtension(e.ext) {
			if err := ctx.Err(); err != nil {
				return err
			}
			refs, err := s.refs(fsys, e, f.Path)
			if err != nil {
				skipped++
				s.log().Warn("skipping asset", "scan", scanner, "path", f.Path, "source", f.SourceID, "error", err)
				continue
			}
			visit(e, f.Path, refs)
		}
	}

	s.metrics.ObserveScan(scanner, time.Since(start), skipped)
	s.log().Debug("scan complete", "scan", scanner, "skipped", skipped, "duration", time.Since(start))
	return nil
}

func (s *Scanner) refs(fsys *vfs.FS, e extractor, path string) (refs []Ref, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("extracting references: panic: %v", r)
		}
	}()
	data, err := fsys.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return e.refs(data)
}

// MD2Refs returns the skins of an MD2 model.
func MD2Refs(data []byte) ([]Ref, error) {
	m, err := md2.Parse(data)
	if err != nil {
		return nil, err
	}
	refs := make([]Ref, 0, len(m.Skins))
	for _, skin := range m.Skins {
		refs = append(refs, Ref{Value: skin})
	}
	return refs, nil
}

// MD3Refs returns the shaders of every surface of an MD3 model.
func MD3Refs(data []byte) ([]Ref, error) {
	m, err := md3.Parse(data)
	if err != nil {
		return nil, err
	}
	shaders := m.Shaders()
	refs := make([]Ref, 0, len(shaders))
	for _, sh := range shaders {
		refs = append(refs, Ref{Value: sh})
	}
	return refs, nil
}

// Entity keys whose values name sounds.
var soundKeys = []string{"noise", "sound", "message"}

// Extensions of entity values treated as asset references.
var assetExts = []string{"wav", "pcx", "tga", "md2"}

// BSPRefs returns the textures of a map as textures/<name>.wal paths,
// entity sound keys, and entity values that name an asset file.
func BSPRefs(data []byte) ([]Ref, error) {
	m, err := bsp.Parse(data)
	if err != nil {
		return nil, err
	}
	refs := make([]Ref, 0, len(m.Textures))
	for _, tex := range m.Textures {
		refs = append(refs, Ref{Value: bsp.TexturePath(tex)})
	}
	for _, ent := range m.Entities {
		for _, key := range ent.Keys {
			value := ent.Get(key)
			switch {
			case value == "":
			case slices.Contains(soundKeys, key):
				refs = append(refs,
					Ref{Value: value},
					Ref{Value: value, Key: key, Classname: ent.Classname()})
			case slices.Contains(assetExts, pathutil.Ext(value)):
				refs = append(refs, Ref{Value: value})
			}
		}
	}
	return refs, nil
}
