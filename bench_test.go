package pak

import (
	"context"
	"fmt"
	"math/rand"
	"os"
	"runtime"
	"testing"

	"github.com/meigma/pak/core/testutil"
	"github.com/meigma/pak/vfs"
)

var (
	benchSinkBytes []byte
	benchSinkFiles []vfs.File
	benchSinkTree  *TreeNode
	benchSinkInt   int
)

const benchDirCount = 16

func init() {
	if os.Getenv("PAK_PROFILE_BLOCK") == "1" {
		runtime.SetBlockProfileRate(1)
	}
	if os.Getenv("PAK_PROFILE_MUTEX") == "1" {
		runtime.SetMutexProfileFraction(1)
	}
}

// buildBenchPak returns an archive of fileCount files of fileSize bytes
// spread over benchDirCount directories, and their paths.
func buildBenchPak(b *testing.B, fileCount, fileSize int, prefix string) ([]byte, []string) {
	b.Helper()
	rng := rand.New(rand.NewSource(1)) //nolint:gosec // reproducible benchmark data
	files := make([]testutil.PakFile, 0, fileCount)
	paths := make([]string, 0, fileCount)
	for i := range fileCount {
		name := fmt.Sprintf("%sdir%02d/file%05d.dat", prefix, i%benchDirCount, i)
		data := make([]byte, fileSize)
		_, _ = rng.Read(data)
		files = append(files, testutil.PakFile{Name: name, Data: data})
		paths = append(paths, name)
	}
	return testutil.BuildPak(files...), paths
}

func newBenchExplorer(b *testing.B, opts ...Option) *Explorer {
	b.Helper()
	e, err := New(opts...)
	if err != nil {
		b.Fatal(err)
	}
	b.Cleanup(func() { _ = e.Close() })
	return e
}

func BenchmarkExplorerLoad(b *testing.B) {
	cases := []struct {
		name      string
		fileCount int
		opts      func(b *testing.B) []Option
	}{
		{"files=1024/worker", 1024, func(*testing.B) []Option { return nil }},
		{"files=1024/sync", 1024, func(*testing.B) []Option { return []Option{WithWorkerDisabled()} }},
		{"files=1024/disk-cache", 1024, func(b *testing.B) []Option { return []Option{WithCacheDir(b.TempDir())} }},
		{"files=8192/worker", 8192, func(*testing.B) []Option { return nil }},
	}

	for _, bc := range cases {
		b.Run(bc.name, func(b *testing.B) {
			data, _ := buildBenchPak(b, bc.fileCount, 64, "")
			e := newBenchExplorer(b, bc.opts(b)...)
			ctx := context.Background()

			b.SetBytes(int64(len(data)))
			b.ReportAllocs()
			b.ResetTimer()
			for b.Loop() {
				if _, err := e.LoadBytes(ctx, "pak0.pak", data, LoadWithID("bench")); err != nil {
					b.Fatal(err)
				}
				if err := e.Unload("bench"); err != nil {
					b.Fatal(err)
				}
			}
		})
	}
}

func BenchmarkExplorerReadFile(b *testing.B) {
	cases := []struct {
		name      string
		fileCount int
		fileSize  int
		archives  int
	}{
		{"files=1024/size=16k/archives=1", 1024, 16 << 10, 1},
		{"files=1024/size=16k/archives=8", 1024, 16 << 10, 8},
		{"files=8192/size=1k/archives=4", 8192, 1 << 10, 4},
	}

	for _, bc := range cases {
		b.Run(bc.name, func(b *testing.B) {
			e := newBenchExplorer(b)
			ctx := context.Background()
			var paths []string
			for i := range bc.archives {
				data, p := buildBenchPak(b, bc.fileCount, bc.fileSize, "")
				paths = p
				if _, err := e.LoadBytes(ctx, fmt.Sprintf("pak%d.pak", i), data, LoadWithID(fmt.Sprintf("pak%d", i)), LoadWithPriority(i)); err != nil {
					b.Fatal(err)
				}
			}
			rng := rand.New(rand.NewSource(1)) //nolint:gosec // reproducible benchmark data

			b.SetBytes(int64(bc.fileSize))
			b.ReportAllocs()
			b.ResetTimer()
			for b.Loop() {
				data, err := e.ReadFile(paths[rng.Intn(len(paths))])
				if err != nil {
					b.Fatal(err)
				}
				benchSinkBytes = data
			}
		})
	}
}

func BenchmarkExplorerSearch(b *testing.B) {
	e := newBenchExplorer(b)
	data, _ := buildBenchPak(b, 8192, 16, "")
	if _, err := e.LoadBytes(context.Background(), "pak0.pak", data); err != nil {
		b.Fatal(err)
	}

	b.ReportAllocs()
	b.ResetTimer()
	for b.Loop() {
		benchSinkFiles = e.Search("FILE0042")
	}
}

func BenchmarkExplorerFileTree(b *testing.B) {
	for _, mode := range []ViewMode{ViewMerged, ViewByPak} {
		b.Run(string(mode), func(b *testing.B) {
			e := newBenchExplorer(b)
			ctx := context.Background()
			for i := range 4 {
				data, _ := buildBenchPak(b, 2048, 16, fmt.Sprintf("p%d/", i%2))
				if _, err := e.LoadBytes(ctx, fmt.Sprintf("pak%d.pak", i), data, LoadWithID(fmt.Sprintf("pak%d", i))); err != nil {
					b.Fatal(err)
				}
			}

			b.ReportAllocs()
			b.ResetTimer()
			for b.Loop() {
				tree, err := e.FileTree(mode)
				if err != nil {
					b.Fatal(err)
				}
				benchSinkTree = tree
			}
		})
	}
}

func BenchmarkExplorerOverridden(b *testing.B) {
	e := newBenchExplorer(b)
	ctx := context.Background()
	data, _ := buildBenchPak(b, 4096, 16, "")
	for i := range 4 {
		if _, err := e.LoadBytes(ctx, fmt.Sprintf("pak%d.pak", i), data, LoadWithID(fmt.Sprintf("pak%d", i)), LoadWithPriority(i)); err != nil {
			b.Fatal(err)
		}
	}

	b.ReportAllocs()
	b.ResetTimer()
	for b.Loop() {
		benchSinkInt = len(e.Overridden("pak0"))
	}
}
