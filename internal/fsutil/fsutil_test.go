package fsutil

import (
	"io"
	"io/fs"
	"iter"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func pathsSeq(paths map[string]int64, order ...string) iter.Seq2[string, int64] {
	return func(yield func(string, int64) bool) {
		for _, p := range order {
			if !yield(p, paths[p]) {
				return
			}
		}
	}
}

func TestDirIterSynthesizesDirectories(t *testing.T) {
	t.Parallel()

	sizes := map[string]int64{
		"maps/base1.bsp":    10,
		"maps/dm/q2dm1.bsp": 20,
		"maps/dm/q2dm2.bsp": 30,
		"maps/readme.txt":   5,
	}
	seq := pathsSeq(sizes, "maps/base1.bsp", "maps/dm/q2dm1.bsp", "maps/dm/q2dm2.bsp", "maps/readme.txt")

	entries := ReadDirAll(seq, "maps/")
	require.Len(t, entries, 3)

	assert.Equal(t, "base1.bsp", entries[0].Name())
	assert.False(t, entries[0].IsDir())
	info, err := entries[0].Info()
	require.NoError(t, err)
	assert.Equal(t, int64(10), info.Size())

	assert.Equal(t, "dm", entries[1].Name())
	assert.True(t, entries[1].IsDir())
	assert.Equal(t, fs.ModeDir, entries[1].Type())

	assert.Equal(t, "readme.txt", entries[2].Name())
}

func TestDirReadDirPaged(t *testing.T) {
	t.Parallel()

	sizes := map[string]int64{"a": 1, "b": 2, "c": 3}
	d := NewDir(".", func() *DirIter {
		return NewDirIter(pathsSeq(sizes, "a", "b", "c"), "")
	})
	defer d.Close()

	first, err := d.ReadDir(2)
	require.NoError(t, err)
	assert.Len(t, first, 2)

	rest, err := d.ReadDir(2)
	require.NoError(t, err)
	require.Len(t, rest, 1)
	assert.Equal(t, "c", rest[0].Name())

	_, err = d.ReadDir(1)
	assert.ErrorIs(t, err, io.EOF)

	info, err := d.Stat()
	require.NoError(t, err)
	assert.True(t, info.IsDir())

	_, err = d.Read(make([]byte, 1))
	assert.ErrorIs(t, err, fs.ErrInvalid)
}

func TestFile(t *testing.T) {
	t.Parallel()

	f := NewFile("colormap.pcx", []byte("palette"))
	info, err := f.Stat()
	require.NoError(t, err)
	assert.Equal(t, "colormap.pcx", info.Name())
	assert.Equal(t, int64(7), info.Size())
	assert.Equal(t, fs.FileMode(0o444), info.Mode())

	got, err := io.ReadAll(f)
	require.NoError(t, err)
	assert.Equal(t, "palette", string(got))
	assert.NoError(t, f.Close())
}
