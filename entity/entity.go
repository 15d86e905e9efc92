// Package entity extracts entity placements from BSP maps and aggregates
// them across the mounted filesystem.
package entity

import (
	"context"
	"fmt"
	"log/slog"
	"maps"
	"math"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/meigma/pak/format/bsp"
	"github.com/meigma/pak/metrics"
	"github.com/meigma/pak/vfs"
)

// UnknownClassname is used for entities without a classname.
const UnknownClassname = "unknown"

// ProgressComplete is the Map of the final progress report of a scan.
const ProgressComplete = "Complete"

// Vec3 is a parsed origin.
type Vec3 struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

// Record is one entity of one map.
type Record struct {
	// ID is MapName + "_" + Index.
	ID         string `json:"id"`
	MapName    string `json:"mapName"`
	Index      int    `json:"index"`
	Classname  string `json:"classname"`
	Targetname string `json:"targetname,omitempty"`

	// Properties holds every key/value pair of the entity, origin
	// included.
	Properties map[string]string `json:"properties"`

	// Origin is nil unless the origin property is exactly three finite
	// numbers.
	Origin *Vec3 `json:"origin,omitempty"`
}

// ExtractFromMap converts the entities of m into records tagged with
// mapName.
func ExtractFromMap(m *bsp.Map, mapName string) []Record {
	if m == nil {
		return nil
	}
	records := make([]Record, 0, len(m.Entities))
	for i, e := range m.Entities {
		classname := e.Classname()
		if classname == "" {
			classname = UnknownClassname
		}
		records = append(records, Record{
			ID:         mapName + "_" + strconv.Itoa(i),
			MapName:    mapName,
			Index:      i,
			Classname:  classname,
			Targetname: e.Get("targetname"),
			Properties: maps.Clone(e.Properties),
			Origin:     ParseOrigin(e.Get("origin")),
		})
	}
	return records
}

// ParseOrigin parses "x y z". It returns nil unless s holds exactly three
// finite numbers.
func ParseOrigin(s string) *Vec3 {
	fields := strings.Fields(s)
	if len(fields) != 3 {
		return nil
	}
	var v [3]float64
	for i, f := range fields {
		n, err := strconv.ParseFloat(f, 64)
		if err != nil || math.IsInf(n, 0) || math.IsNaN(n) {
			return nil
		}
		v[i] = n
	}
	return &Vec3{X: v[0], Y: v[1], Z: v[2]}
}

// Progress reports the position of a scan. Current is the zero-based index
// of the map about to be read; the final report has Current == Total and
// Map == ProgressComplete.
type Progress struct {
	Current int    `json:"current"`
	Total   int    `json:"total"`
	Map     string `json:"map"`
}

// Source provides the filesystem snapshot to scan. *mount.Manager
// implements it.
type Source interface {
	FS() *vfs.FS
}

// Aggregator scans every map of a filesystem for entities.
type Aggregator struct {
	src     Source
	logger  *slog.Logger
	metrics *metrics.Metrics
}

// Option configures an Aggregator.
type Option func(*Aggregator)

// WithLogger sets the logger for skipped maps.
func WithLogger(logger *slog.Logger) Option {
	return func(a *Aggregator) {
		a.logger = logger
	}
}

// WithMetrics records scan durations and skipped maps.
func WithMetrics(m *metrics.Metrics) Option {
	return func(a *Aggregator) {
		a.metrics = m
	}
}

// NewAggregator creates an Aggregator over src.
func NewAggregator(src Source, opts ...Option) *Aggregator {
	a := &Aggregator{src: src}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

func (a *Aggregator) log() *slog.Logger {
	if a.logger == nil {
		return slog.New(slog.DiscardHandler)
	}
	return a.logger
}

// ScanAllMaps extracts the entities of every .bsp file, one map at a time
// in path order, from the snapshot current when the scan starts. A map
// that cannot be read or parsed is logged and contributes no entities.
//
// onProgress, if non-nil, is called before each map and once more when the
// scan completes. The only error returned is ctx.Err().
func (a *Aggregator) ScanAllMaps(ctx context.Context, onProgress func(Progress)) ([]Record, error) {
	start := time.Now()
	fsys := a.src.FS()
	files := fsys.FindByExtension("bsp")
	report := func(p Progress) {
		if onProgress != nil {
			onProgress(p)
		}
	}

	var records []Record
	skipped := 0
	for i, f := range files {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		report(Progress{Current: i, Total: len(files), Map: f.Path})

		m, err := readMap(fsys, f.Path)
		if err != nil {
			skipped++
			a.log().Warn("skipping map", "path", f.Path, "source", f.SourceID, "error", err)
			continue
		}
		records = append(records, ExtractFromMap(m, f.Path)...)
	}

	report(Progress{Current: len(files), Total: len(files), Map: ProgressComplete})
	a.metrics.ObserveScan("entity", time.Since(start), skipped)
	a.log().Debug("entity scan complete", "maps", len(files), "skipped", skipped, "entities", len(records), "duration", time.Since(start))
	return records, nil
}

func readMap(fsys *vfs.FS, path string) (m *bsp.Map, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("parsing map: panic: %v", r)
		}
	}()
	data, err := fsys.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return bsp.Parse(data)
}

// Stats summarises a set of records.
type Stats struct {
	TotalEntities int            `json:"totalEntities"`
	PerMap        map[string]int `json:"perMap"`
	PerClassname  map[string]int `json:"perClassname"`
}

// ComputeStats counts records in total, per map and per classname.
func ComputeStats(records []Record) Stats {
	s := Stats{
		TotalEntities: len(records),
		PerMap:        make(map[string]int),
		PerClassname:  make(map[string]int),
	}
	for _, r := range records {
		s.PerMap[r.MapName]++
		s.PerClassname[r.Classname]++
	}
	return s
}

// Classnames returns the classnames of s ordered by descending count, then
// name.
func (s Stats) Classnames() []string {
	names := slices.Collect(maps.Keys(s.PerClassname))
	slices.SortFunc(names, func(a, b string) int {
		if c := s.PerClassname[b] - s.PerClassname[a]; c != 0 {
			return c
		}
		return strings.Compare(a, b)
	})
	return names
}
