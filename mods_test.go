package pak

import (
	"bytes"
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meigma/pak/core/testutil"
)

func TestDetectMods(t *testing.T) {
	t.Parallel()

	file := func(name, data string) testutil.PakFile {
		return testutil.PakFile{Name: name, Data: []byte(data)}
	}
	palette := file("pics/colormap.pcx", "pcx")

	tests := []struct {
		name  string
		paks  map[string][]testutil.PakFile
		order []string
		want  []ModInfo
	}{
		{
			name:  "base game by palette",
			paks:  map[string][]testutil.PakFile{"baseq2/pak0.pak": {palette}},
			order: []string{"baseq2/pak0.pak"},
			want:  []ModInfo{withPaks(modBase, "baseq2/pak0.pak")},
		},
		{
			name: "expansions by name and marker map",
			paks: map[string][]testutil.PakFile{
				"rogue/pak0.pak": {palette},
				"pak9.pak":       {file("maps/xware1.bsp", "x")},
			},
			order: []string{"rogue/pak0.pak", "pak9.pak"},
			want:  []ModInfo{withPaks(modRogue, "rogue/pak0.pak"), withPaks(modXatrix, "pak9.pak")},
		},
		{
			name: "split mod merged",
			paks: map[string][]testutil.PakFile{
				"xatrix/pak0.pak": {file("a.txt", "a")},
				"pak5.pak":        {file("maps/xware1.bsp", "x")},
			},
			order: []string{"xatrix/pak0.pak", "pak5.pak"},
			want:  []ModInfo{withPaks(modXatrix, "xatrix/pak0.pak", "pak5.pak")},
		},
		{
			name: "mod.json wins over heuristics",
			paks: map[string][]testutil.PakFile{
				"rogue-fix.pak": {file("mod.json", `{"id": "fix", "name": "Fix", "version": "1.2", "dependencies": ["rogue"]}`), palette},
				"ctf.pak":       {file("mod.json", `{"id": "ctf", "name": "CTF", "priority": 7}`)},
			},
			order: []string{"rogue-fix.pak", "ctf.pak"},
			want: []ModInfo{
				{ID: "fix", Name: "Fix", Version: "1.2", Dependencies: []string{"rogue"}, PakFiles: []string{"rogue-fix.pak"}, Priority: ModPriorityMod},
				{ID: "ctf", Name: "CTF", PakFiles: []string{"ctf.pak"}, Priority: 7},
			},
		},
		{
			name: "malformed or anonymous mod.json falls through",
			paks: map[string][]testutil.PakFile{
				"a.pak": {file("mod.json", `{"id": `), palette},
				"b.pak": {file("mod.json", `{"name": "no id"}`)},
			},
			order: []string{"a.pak", "b.pak"},
			want:  []ModInfo{withPaks(modBase, "a.pak")},
		},
		{
			name:  "unrecognised content",
			paks:  map[string][]testutil.PakFile{"misc.pak": {file("readme.txt", "x")}},
			order: []string{"misc.pak"},
			want:  nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			var logs bytes.Buffer
			e := newExplorer(t, WithLogger(slog.New(slog.NewTextHandler(&logs, nil))))
			for _, name := range tt.order {
				_, err := e.LoadBytes(context.Background(), name, testutil.BuildPak(tt.paks[name]...), LoadWithID(name))
				require.NoError(t, err)
			}
			assert.Equal(t, tt.want, e.DetectMods())
		})
	}
}

func withPaks(info ModInfo, paks ...string) ModInfo {
	info.PakFiles = paks
	return info
}
