package server

import (
	"context"
	"encoding/json"
	"errors"
	"io/fs"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	pak "github.com/meigma/pak"
	"github.com/meigma/pak/entity"
	"github.com/meigma/pak/format/pcx"
	"github.com/meigma/pak/vfs"
	"github.com/meigma/pak/xref"
)

// mountInfo is the JSON form of a mounted archive.
type mountInfo struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	Priority     int    `json:"priority"`
	UserProvided bool   `json:"userProvided"`
	Entries      int    `json:"entries"`
	Size         int64  `json:"size"`
	Overridden   int    `json:"overridden"`
}

// entitiesResponse is returned by GET /api/entities.
type entitiesResponse struct {
	Stats    entity.Stats    `json:"stats"`
	Entities []entity.Record `json:"entities"`
}

func (h *handlers) handleMounts(w http.ResponseWriter, _ *http.Request) {
	records := h.explorer.Mounted()
	out := make([]mountInfo, 0, len(records))
	for _, rec := range records {
		out = append(out, mountInfo{
			ID:           rec.ID,
			Name:         rec.DisplayName,
			Priority:     rec.Priority,
			UserProvided: rec.UserProvided,
			Entries:      len(rec.Archive.List()),
			Size:         rec.Archive.Size(),
			Overridden:   len(h.explorer.Overridden(rec.ID)),
		})
	}
	writeJSON(w, out)
}

func (h *handlers) handleOverridden(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if _, ok := h.explorer.Mounts().Get(id); !ok {
		writeError(w, "archive not mounted", http.StatusNotFound)
		return
	}
	paths := h.explorer.Overridden(id)
	if paths == nil {
		paths = []string{}
	}
	writeJSON(w, paths)
}

func (h *handlers) handleMods(w http.ResponseWriter, _ *http.Request) {
	mods := h.explorer.DetectMods()
	if mods == nil {
		mods = []pak.ModInfo{}
	}
	writeJSON(w, mods)
}

func (h *handlers) handleList(w http.ResponseWriter, r *http.Request) {
	l := h.explorer.List(r.URL.Query().Get("dir"))
	if l.Files == nil {
		l.Files = []vfs.File{}
	}
	if l.Directories == nil {
		l.Directories = []string{}
	}
	writeJSON(w, l)
}

func (h *handlers) handleTree(w http.ResponseWriter, r *http.Request) {
	mode, err := pak.ParseViewMode(r.URL.Query().Get("mode"))
	if err != nil {
		writeError(w, err.Error(), http.StatusBadRequest)
		return
	}
	tree, err := h.explorer.FileTree(mode)
	if err != nil {
		writeError(w, err.Error(), http.StatusBadRequest)
		return
	}
	writeJSON(w, tree)
}

func (h *handlers) handleSearch(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query().Get("q")
	if q == "" {
		writeError(w, "missing query parameter q", http.StatusBadRequest)
		return
	}
	files := h.explorer.Search(q)
	if limit, err := strconv.Atoi(r.URL.Query().Get("limit")); err == nil && limit >= 0 && limit < len(files) {
		files = files[:limit]
	}
	if files == nil {
		files = []vfs.File{}
	}
	writeJSON(w, files)
}

// handleStat describes the merged copy of a path, or the copy held by the
// archive named in ?source=.
func (h *handlers) handleStat(w http.ResponseWriter, r *http.Request) {
	path := chi.URLParam(r, "*")
	var (
		meta pak.Metadata
		ok   bool
	)
	if id := r.URL.Query().Get("source"); id != "" {
		meta, ok = h.explorer.StatIn(id, path)
	} else {
		meta, ok = h.explorer.Stat(path)
	}
	if !ok {
		writeError(w, "file not found", http.StatusNotFound)
		return
	}
	writeJSON(w, meta)
}

func (h *handlers) handleFile(w http.ResponseWriter, r *http.Request) {
	path := chi.URLParam(r, "*")
	data, err := h.explorer.ReadFile(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		writeError(w, "file not found", http.StatusNotFound)
		return
	case errors.Is(err, fs.ErrInvalid):
		writeError(w, "invalid path", http.StatusBadRequest)
		return
	case err != nil:
		writeError(w, err.Error(), http.StatusInternalServerError)
		return
	}

	contentType := "application/octet-stream"
	if pak.TypeOf(path) == pak.FileTypeText {
		contentType = "text/plain; charset=utf-8"
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	_, _ = w.Write(data) //nolint:errcheck // client went away
}

func (h *handlers) handlePalette(w http.ResponseWriter, _ *http.Request) {
	pal, ok := h.explorer.Palette()
	if !ok {
		writeError(w, "no palette mounted", http.StatusNotFound)
		return
	}
	w.Header().Set("Content-Type", "application/octet-stream")
	_, _ = w.Write(pcx.RawPalette(pal)) //nolint:errcheck // client went away
}

func (h *handlers) handleTextureUsage(w http.ResponseWriter, r *http.Request) {
	h.handleUsage(w, r, h.explorer.CrossRefs().FindTextureUsage)
}

func (h *handlers) handleSoundUsage(w http.ResponseWriter, r *http.Request) {
	h.handleUsage(w, r, h.explorer.CrossRefs().FindSoundUsage)
}

func (h *handlers) handleUsage(w http.ResponseWriter, r *http.Request, find func(ctx context.Context, path string) ([]xref.Usage, error)) {
	path := r.URL.Query().Get("path")
	if path == "" {
		writeError(w, "missing query parameter path", http.StatusBadRequest)
		return
	}
	usages, err := find(r.Context(), path)
	if err != nil {
		// Only cancellation fails a scan.
		writeError(w, err.Error(), http.StatusServiceUnavailable)
		return
	}
	if usages == nil {
		usages = []xref.Usage{}
	}
	writeJSON(w, usages)
}

func (h *handlers) handleEntities(w http.ResponseWriter, r *http.Request) {
	records, ok := h.scanEntities(w, r)
	if !ok {
		return
	}
	if records == nil {
		records = []entity.Record{}
	}
	writeJSON(w, entitiesResponse{Stats: entity.ComputeStats(records), Entities: records})
}

func (h *handlers) handleEntFile(w http.ResponseWriter, r *http.Request) {
	records, ok := h.scanEntities(w, r)
	if !ok {
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = w.Write([]byte(entity.GenerateEntFile(records))) //nolint:errcheck // client went away
}

// scanEntities scans every map and applies the map and classname filters
// of the query.
func (h *handlers) scanEntities(w http.ResponseWriter, r *http.Request) ([]entity.Record, bool) {
	records, err := h.explorer.Entities().ScanAllMaps(r.Context(), nil)
	if err != nil {
		writeError(w, err.Error(), http.StatusServiceUnavailable)
		return nil, false
	}
	q := r.URL.Query()
	mapName, classname := q.Get("map"), q.Get("classname")
	if mapName == "" && classname == "" {
		return records, true
	}
	filtered := records[:0]
	for _, rec := range records {
		if (mapName == "" || rec.MapName == mapName) && (classname == "" || rec.Classname == classname) {
			filtered = append(filtered, rec)
		}
	}
	return filtered, true
}

// Helper functions

func writeJSON(w http.ResponseWriter, data any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(data) //nolint:errcheck // client went away
}

func writeError(w http.ResponseWriter, message string, code int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": message}) //nolint:errcheck // client went away
}
