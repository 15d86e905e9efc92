package pak

import (
	"encoding/json"
	"strings"

	pakcore "github.com/meigma/pak/core"
	"github.com/meigma/pak/mount"
)

// Mod priorities, used when a mod does not declare its own.
const (
	ModPriorityBase      = 0
	ModPriorityExpansion = 50
	ModPriorityMod       = 100
)

// ModInfoFile is the metadata file a mod archive may carry.
const ModInfoFile = "mod.json"

// ModInfo describes a game, expansion or mod made of one or more archives.
type ModInfo struct {
	ID           string   `json:"id"`
	Name         string   `json:"name"`
	Version      string   `json:"version,omitempty"`
	Author       string   `json:"author,omitempty"`
	Description  string   `json:"description,omitempty"`
	PakFiles     []string `json:"pakFiles"`
	Dependencies []string `json:"dependencies,omitempty"`
	Homepage     string   `json:"homepage,omitempty"`
	Priority     int      `json:"priority"`
}

var (
	modRogue = ModInfo{
		ID:          "rogue",
		Name:        "Ground Zero",
		Description: "Official Expansion Pack: Ground Zero",
		Author:      "Rogue Entertainment",
		Priority:    ModPriorityExpansion,
	}
	modXatrix = ModInfo{
		ID:          "xatrix",
		Name:        "The Reckoning",
		Description: "Official Expansion Pack: The Reckoning",
		Author:      "Xatrix Entertainment",
		Priority:    ModPriorityExpansion,
	}
	modBase = ModInfo{
		ID:          "baseq2",
		Name:        "Base Game",
		Description: "Quake II Base Game",
		Author:      "id Software",
		Priority:    ModPriorityBase,
	}
)

// DetectMods identifies the game content of each mounted archive. Archives
// of the same mod are merged into one ModInfo, in mount order. Archives
// that match nothing are left out.
//
// Detection tries, in order: a mod.json with an id, the expansion names in
// the archive name, expansion marker maps, and the base game palette.
func (e *Explorer) DetectMods() []ModInfo {
	var mods []ModInfo
	index := make(map[string]int)
	for _, rec := range e.mounts.Mounted() {
		info, ok := e.inspect(rec)
		if !ok {
			continue
		}
		if i, ok := index[info.ID]; ok {
			mods[i].PakFiles = append(mods[i].PakFiles, info.PakFiles...)
			continue
		}
		index[info.ID] = len(mods)
		mods = append(mods, info)
	}
	return mods
}

func (e *Explorer) inspect(rec mount.Record) (ModInfo, bool) {
	a := rec.Archive
	if info, ok := e.readModInfo(rec.DisplayName, a); ok {
		return info, true
	}

	var info ModInfo
	name := strings.ToLower(rec.DisplayName)
	switch {
	case strings.Contains(name, "rogue"):
		info = modRogue
	case strings.Contains(name, "xatrix"):
		info = modXatrix
	case a.Has("maps/rogue1.bsp"):
		info = modRogue
	case a.Has("maps/xware1.bsp"):
		info = modXatrix
	case a.Has("pics/colormap.pcx"):
		info = modBase
	default:
		return ModInfo{}, false
	}
	info.PakFiles = []string{rec.DisplayName}
	return info, true
}

func (e *Explorer) readModInfo(name string, a pakcore.Archive) (ModInfo, bool) {
	data, err := a.ReadFile(ModInfoFile)
	if err != nil {
		return ModInfo{}, false
	}
	var raw struct {
		ModInfo
		Priority *int `json:"priority"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		e.log().Warn("ignoring malformed mod info", "archive", name, "error", err)
		return ModInfo{}, false
	}
	if raw.ID == "" {
		return ModInfo{}, false
	}
	info := raw.ModInfo
	info.PakFiles = []string{name}
	info.Priority = ModPriorityMod
	if raw.Priority != nil {
		info.Priority = *raw.Priority
	}
	return info, true
}
