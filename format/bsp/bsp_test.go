package bsp

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meigma/pak/core/testutil"
	"github.com/meigma/pak/format"
)

const base1Entities = `{
"classname" "worldspawn"
"message" "Outer Base"
"sounds" "9"
}
{
"classname" "info_player_start"
"origin" "-64 128 24"
"angle" "90"
}
{
"classname" "target_speaker"
"noise" "world/amb10.wav"
"origin" "0 0 0"
}
`

func TestParse(t *testing.T) {
	t.Parallel()

	data := testutil.BuildBSP(base1Entities, "e1u1/floor1_3", "e1u1/wall1_1", "e1u1/floor1_3")
	m, err := Parse(data)
	require.NoError(t, err)

	assert.Equal(t, int32(Version), m.Version)
	assert.Equal(t, []string{"e1u1/floor1_3", "e1u1/wall1_1"}, m.Textures)

	require.Len(t, m.Entities, 3)
	assert.Equal(t, "worldspawn", m.Entities[0].Classname())
	assert.Equal(t, "Outer Base", m.Entities[0].Get("message"))
	assert.Equal(t, []string{"classname", "origin", "angle"}, m.Entities[1].Keys)
	assert.Equal(t, "world/amb10.wav", m.Entities[2].Get("noise"))
	assert.Empty(t, m.Entities[2].Get("missing"))
}

func TestParseErrors(t *testing.T) {
	t.Parallel()

	valid := testutil.BuildBSP(base1Entities, "e1u1/floor1_3")

	badVersion := append([]byte(nil), valid...)
	binary.LittleEndian.PutUint32(badVersion[4:], 46)

	badLump := append([]byte(nil), valid...)
	binary.LittleEndian.PutUint32(badLump[8+LumpTexinfo*8+4:], 1<<20)

	oddTexinfo := testutil.BuildBSP("", "a")
	binary.LittleEndian.PutUint32(oddTexinfo[8+LumpTexinfo*8+4:], TexinfoSize-1)

	tests := []struct {
		name string
		data []byte
		want error
	}{
		{name: "empty", data: nil, want: format.ErrTruncated},
		{name: "wrong magic", data: append([]byte("IDP2"), valid[4:]...), want: format.ErrBadMagic},
		{name: "wrong version", data: badVersion, want: format.ErrUnsupportedVersion},
		{name: "lump out of range", data: badLump, want: format.ErrTruncated},
		{name: "partial texinfo", data: oddTexinfo, want: format.ErrMalformed},
		{name: "unbalanced entities", data: testutil.BuildBSP(`{ "classname" "worldspawn"`), want: format.ErrMalformed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := Parse(tt.data)
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestParseEntities(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		text    string
		want    []map[string]string
		wantErr bool
	}{
		{name: "empty", text: "", want: nil},
		{name: "whitespace only", text: " \n\t ", want: nil},
		{
			name: "comments and bare tokens",
			text: "// header\n{\nclassname light // trailing\n\"light\" 300\n}",
			want: []map[string]string{{"classname": "light", "light": "300"}},
		},
		{
			name: "repeated key keeps last",
			text: `{ "target" "a" "target" "b" }`,
			want: []map[string]string{{"target": "b"}},
		},
		{
			name: "braces inside quotes",
			text: `{ "message" "{weird}" }`,
			want: []map[string]string{{"message": "{weird}"}},
		},
		{name: "missing open brace", text: `"classname" "x"`, wantErr: true},
		{name: "unterminated string", text: `{ "classname" "x }`, wantErr: true},
		{name: "key without value", text: `{ "classname" }`, wantErr: true},
		{name: "nested entity", text: `{ { } }`, wantErr: true},
		{name: "missing close brace", text: `{ "a" "b"`, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, err := ParseEntities(tt.text)
			if tt.wantErr {
				assert.ErrorIs(t, err, format.ErrMalformed)
				return
			}
			require.NoError(t, err)
			var props []map[string]string
			for _, e := range got {
				props = append(props, e.Properties)
			}
			assert.Equal(t, tt.want, props)
		})
	}
}

func TestTexturePath(t *testing.T) {
	t.Parallel()
	assert.Equal(t, "textures/e1u1/floor1_3.wal", TexturePath("e1u1/floor1_3"))
}
