package index

import (
	"slices"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meigma/pak/core/internal/paktype"
	"github.com/meigma/pak/core/testutil"
)

// mustParse parses a PAK buffer or fails the test.
func mustParse(tb testing.TB, data []byte) *Index {
	tb.Helper()
	idx, err := Parse(data)
	require.NoError(tb, err, "Parse failed")
	return idx
}

func TestParse(t *testing.T) {
	t.Parallel()

	data := testutil.BuildPak(
		testutil.PakFile{Name: "pics/colormap.pcx", Data: []byte("palette")},
		testutil.PakFile{Name: "Maps\\Base1.bsp", Data: []byte("map data")},
		testutil.PakFile{Name: "empty.txt"},
	)
	idx := mustParse(t, data)
	require.Equal(t, 3, idx.Len())

	entry, ok := idx.Lookup("maps/base1.bsp")
	require.True(t, ok, "names are normalised")
	assert.Equal(t, "map data", string(data[entry.Offset:entry.End()]))

	entry, ok = idx.Lookup("pics/colormap.pcx")
	require.True(t, ok)
	assert.Equal(t, uint32(HeaderSize), entry.Offset)
	assert.Equal(t, uint32(len("palette")), entry.Length)

	entry, ok = idx.Lookup("empty.txt")
	require.True(t, ok)
	assert.Zero(t, entry.Length)

	_, ok = idx.Lookup("missing.txt")
	assert.False(t, ok)
}

func TestParseErrors(t *testing.T) {
	t.Parallel()

	valid := testutil.BuildPak(testutil.PakFile{Name: "a.txt", Data: []byte("a")})

	outOfRange := testutil.BuildPak(testutil.PakFile{Name: "a.txt", Data: []byte("abc")})
	// Point the only record past the end of the buffer.
	recOffset := len(outOfRange) - RecordSize
	outOfRange[recOffset+56] = 0xFF

	tests := []struct {
		name string
		data []byte
		want error
	}{
		{"empty", nil, paktype.ErrParse},
		{"short header", []byte("PAC"), paktype.ErrParse},
		{"bad magic", append(testutil.PakHeader("WAD2", 12, 0), valid[12:]...), paktype.ErrBadMagic},
		{"directory past end", testutil.PakHeader("PACK", 12, 64), paktype.ErrSizeOverflow},
		{"negative directory", testutil.PakHeader("PACK", -1, 0), paktype.ErrSizeOverflow},
		{"ragged directory", testutil.PakHeader("PACK", 12, 10), paktype.ErrParse},
		{"entry out of range", outOfRange, paktype.ErrSizeOverflow},
		{
			"duplicate names",
			testutil.BuildPak(
				testutil.PakFile{Name: "sound/a.wav", Data: []byte("1")},
				testutil.PakFile{Name: "SOUND/A.WAV", Data: []byte("2")},
			),
			paktype.ErrDuplicateEntry,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := Parse(tt.data)
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.want)
			assert.ErrorIs(t, err, paktype.ErrParse, "every parse failure wraps ErrParse")
		})
	}
}

func TestParseEmptyDirectory(t *testing.T) {
	t.Parallel()

	idx := mustParse(t, testutil.PakHeader("PACK", 12, 0))
	assert.Zero(t, idx.Len())
}

func TestEntriesWithPrefix(t *testing.T) {
	t.Parallel()

	idx := mustParse(t, testutil.BuildPak(
		testutil.PakFile{Name: "models/a/tris.md2"},
		testutil.PakFile{Name: "models/b/tris.md2"},
		testutil.PakFile{Name: "modelsx/c.md2"},
		testutil.PakFile{Name: "sound/a.wav"},
	))

	var names []string
	for e := range idx.EntriesWithPrefix("models/") {
		names = append(names, e.Name)
	}
	assert.Equal(t, []string{"models/a/tris.md2", "models/b/tris.md2"}, names)

	var all []string
	for e := range idx.Entries() {
		all = append(all, e.Name)
	}
	assert.True(t, slices.IsSorted(all))
	assert.Len(t, all, 4)

	for range idx.EntriesWithPrefix("none/") {
		t.Fatal("unexpected entry")
	}
}

func TestFromEntries(t *testing.T) {
	t.Parallel()

	idx, err := FromEntries([]paktype.Entry{
		{Name: "dir/file2.txt", Offset: 10, Length: 20},
		{Name: "file1.txt", Offset: 0, Length: 10},
	})
	require.NoError(t, err)
	e, ok := idx.Lookup("file1.txt")
	require.True(t, ok)
	assert.Equal(t, uint32(10), e.Length)

	_, err = FromEntries([]paktype.Entry{{Name: "a"}, {Name: "a"}})
	assert.ErrorIs(t, err, paktype.ErrDuplicateEntry)
}

func TestValidate(t *testing.T) {
	t.Parallel()

	idx, err := FromEntries([]paktype.Entry{
		{Name: "ok.txt", Offset: 12, Length: 8},
		{Name: "past-end.txt", Offset: 90, Length: 20},
		{Name: "header.txt", Offset: 4, Length: 4},
	})
	require.NoError(t, err)

	res := idx.Validate(100)
	assert.False(t, res.IsValid)
	assert.Len(t, res.Errors, 2)

	res = mustParse(t, testutil.BuildPak(testutil.PakFile{Name: "a", Data: []byte("a")})).Validate(1 << 10)
	assert.True(t, res.IsValid)
	assert.Empty(t, res.Errors)
}

func TestSnapshotRoundTrip(t *testing.T) {
	t.Parallel()

	idx := mustParse(t, testutil.BuildPak(
		testutil.PakFile{Name: "pics/colormap.pcx", Data: []byte("pal")},
		testutil.PakFile{Name: "maps/base1.bsp", Data: []byte("bsp")},
	))
	data := Encode("pak0.pak", 4096, idx)

	snap, err := Decode(data)
	require.NoError(t, err)
	assert.Equal(t, "pak0.pak", snap.Name)
	assert.Equal(t, int64(4096), snap.Size)
	assert.Equal(t, slices.Collect(idx.Entries()), slices.Collect(snap.Index.Entries()))
}

func TestDecodeRejectsGarbage(t *testing.T) {
	t.Parallel()

	_, err := Decode(nil)
	require.Error(t, err)

	_, err = Decode([]byte{0xFF, 0xFF, 0xFF, 0x7F, 1, 2})
	require.Error(t, err)
}

func TestParseHeaderAndDirectory(t *testing.T) {
	t.Parallel()

	data := testutil.BuildPak(
		testutil.PakFile{Name: "maps/base1.bsp", Data: []byte("base1")},
		testutil.PakFile{Name: "pics/colormap.pcx", Data: []byte("palette")},
	)
	size := int64(len(data))

	off, length, err := ParseHeader(data[:HeaderSize], size)
	require.NoError(t, err)
	assert.Equal(t, int64(2*RecordSize), length)
	assert.Equal(t, size-length, off)

	idx, err := ParseDirectory(data[off:off+length], size)
	require.NoError(t, err)
	assert.Equal(t, slices.Collect(mustParse(t, data).Entries()), slices.Collect(idx.Entries()))

	_, err = ParseDirectory(data[off:off+length], 20)
	assert.ErrorIs(t, err, paktype.ErrSizeOverflow, "records are checked against the archive size")

	_, _, err = ParseHeader(data[:HeaderSize], off+length-1)
	assert.ErrorIs(t, err, paktype.ErrSizeOverflow)

	_, err = ParseDirectory(data[off:off+length-1], size)
	assert.ErrorIs(t, err, paktype.ErrParse)
}
