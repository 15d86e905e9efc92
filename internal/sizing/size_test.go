package sizing

import (
	"errors"
	"math"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInRange(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name        string
		off, length int64
		size        int64
		want        bool
	}{
		{"whole", 0, 10, 10, true},
		{"empty at end", 10, 0, 10, true},
		{"past end", 5, 6, 10, false},
		{"negative offset", -1, 2, 10, false},
		{"negative length", 2, -1, 10, false},
		{"negative size", 0, 0, -1, false},
		{"overflow", math.MaxInt64, math.MaxInt64, math.MaxInt64, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, InRange(tt.off, tt.length, tt.size))
		})
	}

	assert.True(t, InRange(uint32(4), uint32(4), 8))
	assert.False(t, InRange(uint32(math.MaxUint32), uint32(1), 8))
}

func TestReadAtMost(t *testing.T) {
	t.Parallel()

	errBig := errors.New("too big")

	data, err := ReadAtMost(strings.NewReader("abcd"), 4, errBig)
	require.NoError(t, err)
	assert.Equal(t, "abcd", string(data))

	_, err = ReadAtMost(strings.NewReader("abcde"), 4, errBig)
	assert.ErrorIs(t, err, errBig)

	_, err = ReadAtMost(strings.NewReader(""), -1, errBig)
	assert.ErrorIs(t, err, errBig)
}
