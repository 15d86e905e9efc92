package main

import (
	"fmt"
	"math/rand" //nolint:gosec // intentional use for reproducible benchmarks
	"os"
	"path/filepath"

	pak "github.com/meigma/pak/core"
	"github.com/meigma/pak/core/cache"
	"github.com/meigma/pak/core/cache/disk"
	"github.com/meigma/pak/core/testutil"
	"github.com/meigma/pak/mount"
	"github.com/meigma/pak/vfs"
)

const cacheNone = "none"

// buildArchive generates a PAK with plain files, models referencing a
// shared skin and maps referencing a texture and a sound. It returns the
// archive and the paths of the plain files.
//
//nolint:gocritic // hugeParam acceptable for config struct in CLI tool
func buildArchive(cfg config) ([]byte, []string) {
	dirCount := max(cfg.dirCount, 1)
	rng := rand.New(rand.NewSource(cfg.randomSeed)) //nolint:gosec // intentional use for reproducible benchmarks

	files := make([]testutil.PakFile, 0, cfg.files+cfg.maps+cfg.models)
	paths := make([]string, 0, cfg.files)
	for i := range cfg.files {
		name := fmt.Sprintf("dir%02d/file%05d.dat", i%dirCount, i)
		content := make([]byte, cfg.fileSize)
		_, _ = rng.Read(content)
		files = append(files, testutil.PakFile{Name: name, Data: content})
		paths = append(paths, name)
	}
	for i := range cfg.models {
		files = append(files, testutil.PakFile{
			Name: fmt.Sprintf("models/monster%03d/tris.md2", i),
			Data: testutil.BuildMD2(fmt.Sprintf("models/monster%03d/skin.pcx", i), "textures/e1u1/floor1_3.wal"),
		})
	}
	for i := range cfg.maps {
		ents := fmt.Sprintf(`{
"classname" "worldspawn"
"message" "map %d"
}
{
"classname" "target_speaker"
"noise" "world/amb10.wav"
"origin" "%d 0 0"
}
{
"classname" "info_player_start"
"origin" "0 %d 0"
}
`, i, i*64, i*64)
		files = append(files, testutil.PakFile{
			Name: fmt.Sprintf("maps/map%03d.bsp", i),
			Data: testutil.BuildBSP(ents, "e1u1/floor1_3", fmt.Sprintf("e1u1/wall%d", i)),
		})
	}
	return testutil.BuildPak(files...), paths
}

func mountedManager(data []byte) (*mount.Manager, error) {
	a, err := pak.Parse("pak0.pak", data)
	if err != nil {
		return nil, err
	}
	m := mount.New()
	if _, err := m.Mount(mount.Options{ID: "pak0", Archive: a}); err != nil {
		return nil, err
	}
	return m, nil
}

func mountedFS(data []byte) (*vfs.FS, error) {
	m, err := mountedManager(data)
	if err != nil {
		return nil, err
	}
	return m.FS(), nil
}

// newCache builds the directory cache named by cfg.cache. A disk cache
// without cfg.cacheDir lives under workDir and goes away with it.
//
//nolint:gocritic // hugeParam acceptable for config struct in CLI tool
func newCache(cfg config, workDir string) (cache.Cache, error) {
	switch cfg.cache {
	case "memory":
		return testutil.NewMockCache(), nil
	case "disk":
		dir := cfg.cacheDir
		if dir == "" {
			dir = filepath.Join(workDir, "cache")
		}
		if err := os.MkdirAll(dir, 0o755); err != nil { //nolint:gosec // 0o755 is intentional for profiler
			return nil, err
		}
		return disk.New(dir)
	default:
		return nil, fmt.Errorf("unknown cache: %s", cfg.cache)
	}
}
