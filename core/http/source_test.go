package http_test

import (
	"bytes"
	"context"
	"errors"
	"io"
	nethttp "net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync/atomic"
	"testing"
	"testing/fstest"
	"time"

	pak "github.com/meigma/pak/core"
	pakhttp "github.com/meigma/pak/core/http"
	"github.com/meigma/pak/core/testutil"
)

func serveBytes(t *testing.T, data []byte) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(nethttp.HandlerFunc(func(w nethttp.ResponseWriter, r *nethttp.Request) {
		nethttp.ServeContent(w, r, "data", time.Time{}, bytes.NewReader(data))
	}))
	t.Cleanup(server.Close)
	return server
}

func TestSource_ReadAt(t *testing.T) {
	t.Parallel()

	data := []byte("hello world")
	server := serveBytes(t, data)

	src, err := pakhttp.NewSource(context.Background(), server.URL, pakhttp.WithConditionalHeaders())
	if err != nil {
		t.Fatalf("NewSource() error = %v", err)
	}
	if src.Size() != int64(len(data)) {
		t.Fatalf("Size() = %d, want %d", src.Size(), len(data))
	}

	tests := []struct {
		name    string
		bufSize int
		offset  int64
		wantN   int
		wantErr error
		want    string
	}{
		{
			name:    "read from middle",
			bufSize: 5,
			offset:  6,
			wantN:   5,
			wantErr: nil,
			want:    "world",
		},
		{
			name:    "read past end returns EOF",
			bufSize: 10,
			offset:  int64(len(data) - 3),
			wantN:   3,
			wantErr: io.EOF,
			want:    "rld",
		},
		{
			name:    "offset beyond size",
			bufSize: 4,
			offset:  int64(len(data)),
			wantN:   0,
			wantErr: io.EOF,
			want:    "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			buf := make([]byte, tt.bufSize)
			n, err := src.ReadAt(buf, tt.offset)
			if err != tt.wantErr {
				t.Fatalf("ReadAt() error = %v, want %v", err, tt.wantErr)
			}
			if n != tt.wantN {
				t.Fatalf("ReadAt() n = %d, want %d", n, tt.wantN)
			}
			if got := string(buf[:n]); got != tt.want {
				t.Fatalf("ReadAt() got %q, want %q", got, tt.want)
			}
		})
	}
}

func TestNewSource_RangeUnsupported(t *testing.T) {
	t.Parallel()

	data := []byte("range unsupported")
	server := httptest.NewServer(nethttp.HandlerFunc(func(w nethttp.ResponseWriter, r *nethttp.Request) {
		if r.Method == nethttp.MethodHead {
			w.Header().Set("Content-Length", strconv.Itoa(len(data)))
			return
		}
		_, _ = w.Write(data)
	}))
	t.Cleanup(server.Close)

	_, err := pakhttp.NewSource(context.Background(), server.URL)
	if !errors.Is(err, pakhttp.ErrRangeUnsupported) {
		t.Fatalf("NewSource() error = %v, want ErrRangeUnsupported", err)
	}
}

func TestNewSource_TooLarge(t *testing.T) {
	t.Parallel()

	server := serveBytes(t, make([]byte, 64))
	_, err := pakhttp.NewSource(context.Background(), server.URL, pakhttp.WithMaxSize(32))
	if !errors.Is(err, pakhttp.ErrTooLarge) {
		t.Fatalf("NewSource() error = %v, want ErrTooLarge", err)
	}
}

func TestSource_ReadAt_RetriesWithoutIfMatchOn412(t *testing.T) {
	t.Parallel()

	data := []byte("hello world")
	etag := `"retry-test"`
	var withIfMatchRange int32
	var withoutIfMatchRange int32

	server := httptest.NewServer(nethttp.HandlerFunc(func(w nethttp.ResponseWriter, r *nethttp.Request) {
		switch r.Method {
		case nethttp.MethodHead:
			w.Header().Set("Content-Length", strconv.Itoa(len(data)))
			w.Header().Set("ETag", etag)
			return
		case nethttp.MethodGet:
			if r.Header.Get("Range") == "bytes=6-10" {
				if r.Header.Get("If-Match") != "" {
					atomic.AddInt32(&withIfMatchRange, 1)
					w.WriteHeader(nethttp.StatusPreconditionFailed)
					return
				}
				atomic.AddInt32(&withoutIfMatchRange, 1)
			}
			w.Header().Set("ETag", etag)
			nethttp.ServeContent(w, r, "data", time.Time{}, bytes.NewReader(data))
			return
		default:
			w.WriteHeader(nethttp.StatusMethodNotAllowed)
		}
	}))
	t.Cleanup(server.Close)

	src, err := pakhttp.NewSource(context.Background(), server.URL, pakhttp.WithConditionalHeaders())
	if err != nil {
		t.Fatalf("NewSource() error = %v", err)
	}
	if !strings.Contains(src.SourceID(), etag) {
		t.Fatalf("SourceID() = %q, want etag %s", src.SourceID(), etag)
	}

	buf := make([]byte, 5)
	n, err := src.ReadAt(buf, 6)
	if err != nil {
		t.Fatalf("ReadAt() error = %v", err)
	}
	if got := string(buf[:n]); got != "world" {
		t.Fatalf("ReadAt() got %q, want %q", got, "world")
	}
	if atomic.LoadInt32(&withIfMatchRange) != 1 {
		t.Fatalf("expected one range request with If-Match, got %d", withIfMatchRange)
	}
	if atomic.LoadInt32(&withoutIfMatchRange) != 1 {
		t.Fatalf("expected one range retry without If-Match, got %d", withoutIfMatchRange)
	}
}

func TestSource_Directory(t *testing.T) {
	t.Parallel()

	data := testutil.BuildPak(
		testutil.PakFile{Name: "pics/colormap.pcx", Data: testutil.BuildPCX(2, 2)},
		testutil.PakFile{Name: "sound/misc/Talk.wav", Data: []byte("RIFF")},
	)
	var requests int32
	server := httptest.NewServer(nethttp.HandlerFunc(func(w nethttp.ResponseWriter, r *nethttp.Request) {
		if r.Method == nethttp.MethodGet && r.Header.Get("Range") == "" {
			t.Errorf("unexpected full GET")
		}
		atomic.AddInt32(&requests, 1)
		nethttp.ServeContent(w, r, "pak0.pak", time.Time{}, bytes.NewReader(data))
	}))
	t.Cleanup(server.Close)

	ctx := context.Background()
	src, err := pakhttp.NewSource(ctx, server.URL)
	if err != nil {
		t.Fatalf("NewSource() error = %v", err)
	}

	entries, err := src.Directory(ctx)
	if err != nil {
		t.Fatalf("Directory() error = %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("Directory() returned %d entries, want 2", len(entries))
	}
	if entries[1].Name != "sound/misc/talk.wav" {
		t.Fatalf("entries[1].Name = %q, want normalised name", entries[1].Name)
	}

	got, err := src.ReadEntry(ctx, entries[1])
	if err != nil {
		t.Fatalf("ReadEntry() error = %v", err)
	}
	if string(got) != "RIFF" {
		t.Fatalf("ReadEntry() = %q, want %q", got, "RIFF")
	}

	_, err = src.ReadEntry(ctx, pak.Entry{Name: "bogus", Offset: uint32(len(data)), Length: 10})
	if !errors.Is(err, pak.ErrSizeOverflow) {
		t.Fatalf("ReadEntry() out of bounds error = %v, want ErrSizeOverflow", err)
	}

	full, err := src.Fetch(ctx)
	if err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}
	if !bytes.Equal(full, data) {
		t.Fatal("Fetch() returned different bytes")
	}
}

func TestSource_DirectoryRejectsNonPak(t *testing.T) {
	t.Parallel()

	server := serveBytes(t, []byte("this is not an archive"))
	ctx := context.Background()
	src, err := pakhttp.NewSource(ctx, server.URL)
	if err != nil {
		t.Fatalf("NewSource() error = %v", err)
	}
	if _, err := src.Directory(ctx); !errors.Is(err, pak.ErrBadMagic) {
		t.Fatalf("Directory() error = %v, want ErrBadMagic", err)
	}
}

func TestFetch(t *testing.T) {
	t.Parallel()

	data := []byte("plain body")
	server := httptest.NewServer(nethttp.HandlerFunc(func(w nethttp.ResponseWriter, r *nethttp.Request) {
		if r.Header.Get("X-Token") != "secret" {
			w.WriteHeader(nethttp.StatusUnauthorized)
			return
		}
		_, _ = w.Write(data)
	}))
	t.Cleanup(server.Close)

	ctx := context.Background()
	got, err := pakhttp.Fetch(ctx, server.URL, pakhttp.WithHeader("X-Token", "secret"))
	if err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}
	if !bytes.Equal(got, data) {
		t.Fatalf("Fetch() = %q, want %q", got, data)
	}

	if _, err := pakhttp.Fetch(ctx, server.URL); err == nil {
		t.Fatal("Fetch() without header: expected error")
	}

	_, err = pakhttp.Fetch(ctx, server.URL, pakhttp.WithHeader("X-Token", "secret"), pakhttp.WithMaxSize(4))
	if !errors.Is(err, pakhttp.ErrTooLarge) {
		t.Fatalf("Fetch() error = %v, want ErrTooLarge", err)
	}
}

func TestFetchManifest(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(nethttp.HandlerFunc(func(w nethttp.ResponseWriter, r *nethttp.Request) {
		switch r.URL.Path {
		case "/data/" + pakhttp.ManifestName:
			_, _ = io.WriteString(w, `{"paks": ["baseq2/pak0.pak", "/rogue/pak0.pak"]}`)
		case "/data/broken.json":
			_, _ = io.WriteString(w, `{"paks": `)
		default:
			nethttp.NotFound(w, r)
		}
	}))
	t.Cleanup(server.Close)

	ctx := context.Background()
	manifestURL := server.URL + "/data/" + pakhttp.ManifestName
	m, err := pakhttp.FetchManifest(ctx, manifestURL)
	if err != nil {
		t.Fatalf("FetchManifest() error = %v", err)
	}
	urls, err := m.URLs(manifestURL)
	if err != nil {
		t.Fatalf("URLs() error = %v", err)
	}
	want := []string{server.URL + "/data/baseq2/pak0.pak", server.URL + "/data/rogue/pak0.pak"}
	if len(urls) != len(want) {
		t.Fatalf("URLs() = %v, want %v", urls, want)
	}
	for i := range want {
		if urls[i] != want[i] {
			t.Fatalf("URLs()[%d] = %q, want %q", i, urls[i], want[i])
		}
	}

	if _, err := pakhttp.FetchManifest(ctx, server.URL+"/data/broken.json"); err == nil {
		t.Fatal("FetchManifest() on truncated JSON: expected error")
	}
	if _, err := pakhttp.FetchManifest(ctx, server.URL+"/missing"); err == nil {
		t.Fatal("FetchManifest() on 404: expected error")
	}
}

func TestBuildManifest(t *testing.T) {
	t.Parallel()

	fsys := fstest.MapFS{
		"baseq2/pak1.pak":   {Data: []byte("x")},
		"baseq2/pak0.pak":   {Data: []byte("x")},
		"rogue/PAK0.PAK":    {Data: []byte("x")},
		"baseq2/config.cfg": {Data: []byte("x")},
	}
	m, err := pakhttp.BuildManifest(fsys)
	if err != nil {
		t.Fatalf("BuildManifest() error = %v", err)
	}
	want := []string{"baseq2/pak0.pak", "baseq2/pak1.pak", "rogue/PAK0.PAK"}
	if strings.Join(m.Paks, ",") != strings.Join(want, ",") {
		t.Fatalf("BuildManifest() = %v, want %v", m.Paks, want)
	}

	out, err := m.Marshal()
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}
	if !strings.Contains(string(out), `"paks"`) {
		t.Fatalf("Marshal() = %s, want paks key", out)
	}
}
