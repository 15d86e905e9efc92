package main

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig(t *testing.T, mode string) config {
	t.Helper()
	return config{
		mode:       mode,
		files:      16,
		fileSize:   256,
		dirCount:   4,
		maps:       2,
		models:     2,
		archives:   3,
		dataURL:    "local",
		iterations: 2,
		duration:   time.Second,
		cache:      cacheNone,
		prefix:     "dir00",
		readRandom: true,
		randomSeed: 1,
	}
}

func TestRunProfileModes(t *testing.T) {
	t.Parallel()

	modes := []string{
		"load", "readfile", "lookup", "list", "mount",
		"xref-texture", "xref-sound", "entities", "extract",
		"remote-directory", "remote-read",
	}
	for _, mode := range modes {
		t.Run(mode, func(t *testing.T) {
			t.Parallel()
			cfg := testConfig(t, mode)
			data, paths := buildArchive(cfg)
			stats, err := runProfile(context.Background(), cfg, data, paths, t.TempDir())
			require.NoError(t, err)
			assert.Equal(t, 2, stats.ops)
		})
	}
}

func TestRunProfileCaches(t *testing.T) {
	t.Parallel()

	for _, c := range []string{"memory", "disk"} {
		t.Run(c, func(t *testing.T) {
			t.Parallel()
			cfg := testConfig(t, "load")
			cfg.cache = c
			data, paths := buildArchive(cfg)
			stats, err := runProfile(context.Background(), cfg, data, paths, t.TempDir())
			require.NoError(t, err)
			assert.Equal(t, int64(2*len(data)), stats.bytes)
		})
	}
}

func TestRunProfileUnknownMode(t *testing.T) {
	t.Parallel()

	cfg := testConfig(t, "bogus")
	data, paths := buildArchive(cfg)
	_, err := runProfile(context.Background(), cfg, data, paths, t.TempDir())
	assert.ErrorContains(t, err, "unknown mode")
}

func TestParseBytesPerSecond(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in      string
		want    int64
		wantErr bool
	}{
		{"512", 512, false},
		{"64k", 64 << 10, false},
		{"10MBps", 10 << 20, false},
		{"1g/s", 1 << 30, false},
		{"", 0, true},
		{"fast", 0, true},
		{"-5k", 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			t.Parallel()
			got, err := parseBytesPerSecond(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseFlags(t *testing.T) {
	t.Parallel()

	cfg, err := parseFlags([]string{"--mode", "extract", "--iterations", "3", "--data-http-bps", "64k", "--read-random=false"})
	require.NoError(t, err)
	assert.Equal(t, "extract", cfg.mode)
	assert.Equal(t, 3, cfg.iterations)
	assert.Equal(t, int64(64<<10), cfg.dataHTTPBPS)
	assert.False(t, cfg.readRandom)
	assert.Equal(t, cacheNone, cfg.cache)

	_, err = parseFlags([]string{"--data-http-bps", "fast"})
	assert.ErrorContains(t, err, "data-http-bps")
}

func TestRunProfileThrottledRemote(t *testing.T) {
	t.Parallel()

	cfg := testConfig(t, "remote-read")
	cfg.dataHTTPLatency = time.Millisecond
	cfg.dataHTTPBPS = 1 << 20
	data, paths := buildArchive(cfg)
	stats, err := runProfile(context.Background(), cfg, data, paths, t.TempDir())
	require.NoError(t, err)
	assert.Equal(t, 2, stats.ops)
	assert.Positive(t, stats.bytes)
}
