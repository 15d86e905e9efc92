package server

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	pak "github.com/meigma/pak"
	"github.com/meigma/pak/core/testutil"
	"github.com/meigma/pak/entity"
	"github.com/meigma/pak/metrics"
	"github.com/meigma/pak/xref"
)

const testMap = `{
"classname" "worldspawn"
}
{
"classname" "target_speaker"
"noise" "world/amb10.wav"
"origin" "0 0 0"
}
`

func newTestServer(t *testing.T, cfg Config) *httptest.Server {
	t.Helper()

	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	e, err := pak.New(pak.WithMetrics(m))
	require.NoError(t, err)
	t.Cleanup(func() { _ = e.Close() })

	ctx := context.Background()
	_, err = e.LoadBytes(ctx, "pak0.pak", testutil.BuildPak(
		testutil.PakFile{Name: "pics/colormap.pcx", Data: testutil.BuildPCX(2, 2)},
		testutil.PakFile{Name: "maps/base1.bsp", Data: testutil.BuildBSP(testMap, "e1u1/floor1_3")},
		testutil.PakFile{Name: "sound/world/amb10.wav", Data: []byte("RIFF")},
		testutil.PakFile{Name: "readme.txt", Data: []byte("base")},
	), pak.LoadWithID("base"))
	require.NoError(t, err)
	_, err = e.LoadBytes(ctx, "mod.pak", testutil.BuildPak(
		testutil.PakFile{Name: "readme.txt", Data: []byte("mod")},
	), pak.LoadWithID("mod"), pak.LoadWithPriority(10))
	require.NoError(t, err)

	cfg.Explorer = e
	cfg.Metrics = m
	cfg.Gatherer = reg
	ts := httptest.NewServer(NewRouter(cfg))
	t.Cleanup(ts.Close)
	return ts
}

func get(t *testing.T, url string) (*http.Response, []byte) {
	t.Helper()
	resp, err := http.Get(url) //nolint:noctx // test helper
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, body
}

func getJSON(t *testing.T, url string, v any) *http.Response {
	t.Helper()
	resp, body := get(t, url)
	require.NoError(t, json.Unmarshal(body, v), "body: %s", body)
	return resp
}

func TestBrowseEndpoints(t *testing.T) {
	t.Parallel()

	ts := newTestServer(t, Config{})

	var mounts []mountInfo
	getJSON(t, ts.URL+"/api/mounts", &mounts)
	require.Len(t, mounts, 2)
	assert.Equal(t, "base", mounts[0].ID)
	assert.Equal(t, 1, mounts[0].Overridden)
	assert.Equal(t, 10, mounts[1].Priority)

	var overridden []string
	getJSON(t, ts.URL+"/api/mounts/base/overridden", &overridden)
	assert.Equal(t, []string{"readme.txt"}, overridden)
	resp, _ := get(t, ts.URL+"/api/mounts/nope/overridden")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	var listing struct {
		Files       []map[string]any `json:"files"`
		Directories []string         `json:"directories"`
	}
	getJSON(t, ts.URL+"/api/list", &listing)
	assert.Equal(t, []string{"maps", "pics", "sound"}, listing.Directories)
	require.Len(t, listing.Files, 1)
	assert.Equal(t, "mod", listing.Files[0]["sourceId"])

	var meta pak.Metadata
	getJSON(t, ts.URL+"/api/stat/readme.txt", &meta)
	assert.Equal(t, "mod.pak", meta.Source)
	assert.False(t, meta.Overridden)
	getJSON(t, ts.URL+"/api/stat/readme.txt?source=base", &meta)
	assert.Equal(t, "base", meta.SourceID)
	assert.Equal(t, int64(4), meta.Size)
	assert.True(t, meta.Overridden)
	resp, _ = get(t, ts.URL+"/api/stat/readme.txt?source=nope")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp, body := get(t, ts.URL+"/api/file/readme.txt")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "mod", string(body))
	assert.True(t, strings.HasPrefix(resp.Header.Get("Content-Type"), "text/plain"))

	resp, _ = get(t, ts.URL+"/api/file/missing.wav")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp, body = get(t, ts.URL+"/api/palette")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Len(t, body, 768)

	var hits []map[string]any
	getJSON(t, ts.URL+"/api/search?q=AMB", &hits)
	require.Len(t, hits, 1)
	assert.Equal(t, "sound/world/amb10.wav", hits[0]["path"])
	resp, _ = get(t, ts.URL+"/api/search")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	var tree pak.TreeNode
	getJSON(t, ts.URL+"/api/tree?mode=by-pak", &tree)
	assert.Len(t, tree.Children, 2)
	resp, _ = get(t, ts.URL+"/api/tree?mode=sideways")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	var mods []pak.ModInfo
	getJSON(t, ts.URL+"/api/mods", &mods)
	require.Len(t, mods, 1)
	assert.Equal(t, "baseq2", mods[0].ID)

	var health map[string]string
	getJSON(t, ts.URL+"/healthz", &health)
	assert.Equal(t, "ok", health["status"])
}

func TestScanEndpoints(t *testing.T) {
	t.Parallel()

	ts := newTestServer(t, Config{ScanBurst: 16})

	var usages []xref.Usage
	getJSON(t, ts.URL+"/api/xref/texture?path=textures/e1u1/floor1_3.wal", &usages)
	assert.Equal(t, []xref.Usage{{Type: xref.TypeMap, Path: "maps/base1.bsp", MatchedRef: "textures/e1u1/floor1_3.wal", Detail: usages[0].Detail}}, usages)

	getJSON(t, ts.URL+"/api/xref/sound?path=sound/world/amb10.wav", &usages)
	require.NotEmpty(t, usages)
	assert.Equal(t, "maps/base1.bsp", usages[0].Path)

	resp, _ := get(t, ts.URL+"/api/xref/texture")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	var entities entitiesResponse
	getJSON(t, ts.URL+"/api/entities?classname=target_speaker", &entities)
	require.Len(t, entities.Entities, 1)
	assert.Equal(t, "world/amb10.wav", entities.Entities[0].Properties["noise"])
	assert.Equal(t, 1, entities.Stats.TotalEntities)

	resp, body := get(t, ts.URL+"/api/entities.ent?map=maps/base1.bsp")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.True(t, strings.HasPrefix(string(body), "{\n\"classname\" \"worldspawn\"\n}\n"))
}

func TestScanRateLimit(t *testing.T) {
	t.Parallel()

	ts := newTestServer(t, Config{ScanRate: 0.001, ScanBurst: 1})

	resp, _ := get(t, ts.URL+"/api/entities")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	resp, _ = get(t, ts.URL+"/api/entities")
	assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
	assert.Equal(t, "1", resp.Header.Get("Retry-After"))

	resp, _ = get(t, ts.URL+"/api/list")
	assert.Equal(t, http.StatusOK, resp.StatusCode, "browsing is not limited")
}

func TestMetricsEndpoint(t *testing.T) {
	t.Parallel()

	ts := newTestServer(t, Config{})
	get(t, ts.URL+"/api/mounts")

	resp, body := get(t, ts.URL+"/metrics")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), `pak_http_requests_total{endpoint="/api/mounts",method="GET",status="200"} 1`)
	assert.Contains(t, string(body), "pak_mounted_archives 2")
}

func TestEntityScanWebSocket(t *testing.T) {
	t.Parallel()

	ts := newTestServer(t, Config{})
	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws/entities"

	conn, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer resp.Body.Close()
	defer conn.Close()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))

	var events []string
	var progress []entity.Progress
	var complete ScanComplete
	for {
		var raw struct {
			Event string          `json:"event"`
			Data  json.RawMessage `json:"data"`
		}
		require.NoError(t, conn.ReadJSON(&raw))
		events = append(events, raw.Event)
		if raw.Event == EventProgress {
			var p entity.Progress
			require.NoError(t, json.Unmarshal(raw.Data, &p))
			progress = append(progress, p)
			continue
		}
		require.Equal(t, EventComplete, raw.Event)
		require.NoError(t, json.Unmarshal(raw.Data, &complete))
		break
	}

	assert.Equal(t, []string{EventProgress, EventProgress, EventComplete}, events)
	assert.Equal(t, []entity.Progress{
		{Current: 0, Total: 1, Map: "maps/base1.bsp"},
		{Current: 1, Total: 1, Map: entity.ProgressComplete},
	}, progress)
	assert.Equal(t, 2, complete.Stats.TotalEntities)
}

func TestWebSocketRejectsForeignOrigin(t *testing.T) {
	t.Parallel()

	ts := newTestServer(t, Config{})
	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws/entities"

	header := http.Header{"Origin": []string{"https://evil.example"}}
	_, resp, err := websocket.DefaultDialer.Dial(wsURL, header)
	require.Error(t, err)
	require.NotNil(t, resp)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}

func TestWebSocketScanRateLimit(t *testing.T) {
	t.Parallel()

	ts := newTestServer(t, Config{ScanRate: 0.001, ScanBurst: 1})
	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws/entities"

	resp, _ := get(t, ts.URL+"/api/entities")
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	_, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.ErrorIs(t, err, websocket.ErrBadHandshake)
	require.NotNil(t, resp)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
	assert.Equal(t, "1", resp.Header.Get("Retry-After"))
}
