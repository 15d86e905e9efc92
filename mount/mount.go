// Package mount tracks the ordered set of mounted archives and publishes the
// merged filesystem they form.
//
// Every mutation rebuilds an immutable [vfs.FS] snapshot and swaps it in
// atomically, so readers that captured a snapshot keep a consistent view
// while mounts change underneath them.
package mount

import (
	"cmp"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"sync/atomic"

	pak "github.com/meigma/pak/core"
	"github.com/meigma/pak/metrics"
	"github.com/meigma/pak/vfs"
)

// PriorityStep is the gap between priorities assigned by Reorder.
const PriorityStep = 10

var (
	// ErrDuplicateID is returned when mounting an id that is already mounted.
	ErrDuplicateID = errors.New("mount: duplicate id")

	// ErrNotMounted is returned when an id is not mounted.
	ErrNotMounted = errors.New("mount: not mounted")

	// ErrOrderMismatch is returned when a reorder does not name exactly the
	// mounted ids.
	ErrOrderMismatch = errors.New("mount: order does not match mounted set")

	// ErrInvalidMount is returned for a mount request without an id or archive.
	ErrInvalidMount = errors.New("mount: invalid mount")
)

// Options describes one archive to mount.
type Options struct {
	ID           string
	DisplayName  string
	Archive      pak.Archive
	UserProvided bool
	Priority     int
}

// Record is one mounted archive.
type Record struct {
	ID           string
	DisplayName  string
	Archive      pak.Archive
	UserProvided bool
	Priority     int

	// Seq is the mount sequence; among equal priorities the higher Seq wins.
	Seq uint64
}

// Manager owns the mounted archive set. It is safe for concurrent use.
type Manager struct {
	logger  *slog.Logger
	metrics *metrics.Metrics

	mu      sync.Mutex
	records []Record // ascending precedence
	seq     uint64

	fs atomic.Pointer[vfs.FS]
}

// Option configures a Manager.
type Option func(*Manager)

// WithLogger sets the logger for mount changes.
func WithLogger(logger *slog.Logger) Option {
	return func(m *Manager) {
		m.logger = logger
	}
}

// WithMetrics records the mounted archive count.
func WithMetrics(mt *metrics.Metrics) Option {
	return func(m *Manager) {
		m.metrics = mt
	}
}

// New creates an empty Manager.
func New(opts ...Option) *Manager {
	m := &Manager{}
	for _, opt := range opts {
		opt(m)
	}
	m.fs.Store(vfs.New())
	return m
}

func (m *Manager) log() *slog.Logger {
	if m.logger == nil {
		return slog.New(slog.DiscardHandler)
	}
	return m.logger
}

// FS returns the current merged filesystem snapshot.
func (m *Manager) FS() *vfs.FS {
	return m.fs.Load()
}

// Mount adds an archive at opts.Priority and rebuilds the merged view.
func (m *Manager) Mount(opts Options) (Record, error) {
	if opts.ID == "" {
		return Record{}, fmt.Errorf("%w: empty id", ErrInvalidMount)
	}
	if opts.Archive == nil {
		return Record{}, fmt.Errorf("%w: %s: nil archive", ErrInvalidMount, opts.ID)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.indexOf(opts.ID) >= 0 {
		return Record{}, fmt.Errorf("%w: %s", ErrDuplicateID, opts.ID)
	}

	m.seq++
	rec := Record{
		ID:           opts.ID,
		DisplayName:  cmp.Or(opts.DisplayName, opts.Archive.Name()),
		Archive:      opts.Archive,
		UserProvided: opts.UserProvided,
		Priority:     opts.Priority,
		Seq:          m.seq,
	}
	m.records = append(m.records, rec)
	m.rebuild()

	m.log().Info("archive mounted", "id", rec.ID, "name", rec.DisplayName, "priority", rec.Priority, "entries", len(rec.Archive.List()))
	return rec, nil
}

// Unmount removes the archive mounted under id.
func (m *Manager) Unmount(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	i := m.indexOf(id)
	if i < 0 {
		return fmt.Errorf("%w: %s", ErrNotMounted, id)
	}
	m.records = slices.Delete(m.records, i, i+1)
	m.rebuild()

	m.log().Info("archive unmounted", "id", id)
	return nil
}

// Reorder assigns new priorities from ids. The first id gets the lowest
// priority and the last the highest, PriorityStep apart. Every archive is
// remounted in the new order. ids must name each mounted archive exactly
// once.
func (m *Manager) Reorder(ids []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if len(ids) != len(m.records) {
		return fmt.Errorf("%w: got %d ids, %d mounted", ErrOrderMismatch, len(ids), len(m.records))
	}
	byID := make(map[string]Record, len(m.records))
	for _, r := range m.records {
		byID[r.ID] = r
	}

	next := make([]Record, 0, len(ids))
	for i, id := range ids {
		r, ok := byID[id]
		if !ok {
			return fmt.Errorf("%w: %s", ErrOrderMismatch, id)
		}
		delete(byID, id)
		m.seq++
		r.Priority = i * PriorityStep
		r.Seq = m.seq
		next = append(next, r)
	}

	m.records = next
	m.rebuild()

	m.log().Info("archives reordered", "order", ids)
	return nil
}

// Reset unmounts every archive.
func (m *Manager) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.records = nil
	m.rebuild()
}

// Mounted returns the mounted archives in ascending precedence.
func (m *Manager) Mounted() []Record {
	m.mu.Lock()
	defer m.mu.Unlock()
	return slices.Clone(m.records)
}

// Get returns the record mounted under id.
func (m *Manager) Get(id string) (Record, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	i := m.indexOf(id)
	if i < 0 {
		return Record{}, false
	}
	return m.records[i], true
}

// NextPriority returns a priority above every mounted archive: the
// highest mounted priority plus PriorityStep, or 0 when nothing is
// mounted.
func (m *Manager) NextPriority() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.records) == 0 {
		return 0
	}
	return m.records[len(m.records)-1].Priority + PriorityStep
}

// Len returns the number of mounted archives.
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.records)
}

// IsOverridden reports whether path in the archive mounted under id is
// shadowed by another mounted archive with strictly higher priority. It
// returns false when id is not mounted or does not contain path.
func (m *Manager) IsOverridden(id, path string) bool {
	self, higher, ok := m.above(id)
	if !ok || !self.Archive.Has(path) {
		return false
	}
	for _, r := range higher {
		if r.Archive.Has(path) {
			return true
		}
	}
	return false
}

// Overridden returns every path of the archive mounted under id that is
// shadowed by an archive with strictly higher priority, sorted.
func (m *Manager) Overridden(id string) []string {
	self, higher, ok := m.above(id)
	if !ok || len(higher) == 0 {
		return nil
	}
	var paths []string
	for _, p := range self.Archive.List() {
		for _, r := range higher {
			if r.Archive.Has(p) {
				paths = append(paths, p)
				break
			}
		}
	}
	slices.Sort(paths)
	return paths
}

// above returns the record for id and every record with strictly higher
// priority.
func (m *Manager) above(id string) (Record, []Record, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	i := m.indexOf(id)
	if i < 0 {
		return Record{}, nil, false
	}
	self := m.records[i]
	var higher []Record
	for _, r := range m.records {
		if r.Priority > self.Priority {
			higher = append(higher, r)
		}
	}
	return self, higher, true
}

// indexOf must be called with mu held.
func (m *Manager) indexOf(id string) int {
	return slices.IndexFunc(m.records, func(r Record) bool { return r.ID == id })
}

// rebuild must be called with mu held.
func (m *Manager) rebuild() {
	slices.SortStableFunc(m.records, func(a, b Record) int {
		return cmp.Or(cmp.Compare(a.Priority, b.Priority), cmp.Compare(a.Seq, b.Seq))
	})
	mounts := make([]vfs.Mount, 0, len(m.records))
	for _, r := range m.records {
		mounts = append(mounts, vfs.Mount{ID: r.ID, Archive: r.Archive, Priority: r.Priority, Seq: r.Seq})
	}
	m.fs.Store(vfs.New(mounts...))
	m.metrics.SetMounted(len(m.records))
}
