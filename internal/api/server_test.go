package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/charmbracelet/log"

	"github.com/stentech/gerberstack/internal/config"
	"github.com/stentech/gerberstack/pkg/errors"
	"github.com/stentech/gerberstack/pkg/history"
	"github.com/stentech/gerberstack/pkg/layer"
	"github.com/stentech/gerberstack/pkg/pipeline"
	"github.com/stentech/gerberstack/pkg/render"
)

const svgDoc = `<svg xmlns="http://www.w3.org/2000/svg"><g class="stentech-board_sp"/></svg>`

type upload struct {
	name string
	body string
}

type testServer struct {
	*httptest.Server
	handler http.Handler
	calls   atomic.Int32
	store   history.Store
}

func newTestServer(t *testing.T, fail error, mutate ...func(*config.Config)) *testServer {
	t.Helper()
	cfg := config.Default()
	for _, m := range mutate {
		m(&cfg)
	}
	logger := log.New(io.Discard)

	ts := &testServer{store: history.NewMemory(10)}
	r := render.Func(func(ctx context.Context, layers []render.Layer, opts render.Options) (*render.Stackup, error) {
		ts.calls.Add(1)
		if fail != nil {
			return nil, fail
		}
		return &render.Stackup{Top: render.Side{SVG: svgDoc}, Bottom: render.Side{SVG: svgDoc}}, nil
	})
	runner := pipeline.NewRunner(cfg.Aggregator(logger), r, logger)
	runner.History = ts.store

	ts.handler = New(runner, ts.store, cfg, logger).Handler()
	ts.Server = httptest.NewServer(ts.handler)
	t.Cleanup(ts.Close)
	return ts
}

func multipartBody(t *testing.T, files []upload, cfg string) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for _, f := range files {
		w, err := mw.CreateFormFile("files", f.name)
		if err != nil {
			t.Fatal(err)
		}
		io.WriteString(w, f.body)
	}
	if cfg != "" {
		if err := mw.WriteField("config", cfg); err != nil {
			t.Fatal(err)
		}
	}
	if err := mw.Close(); err != nil {
		t.Fatal(err)
	}
	return &buf, mw.FormDataContentType()
}

func post(t *testing.T, url string, files []upload, cfg string) (*http.Response, map[string]any) {
	t.Helper()
	body, ctype := multipartBody(t, files, cfg)
	resp, err := http.Post(url, ctype, body)
	if err != nil {
		t.Fatal(err)
	}
	return resp, decode(t, resp)
}

func decode(t *testing.T, resp *http.Response) map[string]any {
	t.Helper()
	defer resp.Body.Close()
	var out map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return out
}

func boardFiles() []upload {
	return []upload{
		{"top.gtl", "G04 top*\nX0Y0D02*\nM02*\n"},
		{"paste.gtp", "%FSLAX26Y26*%\nX1Y1D03*\nM02*\n"},
	}
}

func TestRenderSuccess(t *testing.T) {
	ts := newTestServer(t, nil)

	resp, out := post(t, ts.URL+"/api/render", boardFiles(), `{"pasteColor":"#ff0000"}`)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, body = %v", resp.StatusCode, out)
	}
	top, _ := out["topSvg"].(string)
	if !strings.Contains(top, ".stentech-board_sp") || !strings.Contains(top, "color: #ff0000 !important") {
		t.Errorf("topSvg not recolored: %s", top)
	}
	info, _ := out["layersInfo"].([]any)
	if len(info) != 2 {
		t.Errorf("layersInfo = %v, want 2 entries", out["layersInfo"])
	}
	if ts.calls.Load() != 1 {
		t.Errorf("renderer calls = %d, want 1", ts.calls.Load())
	}
}

func TestRenderMalformedConfigIgnored(t *testing.T) {
	ts := newTestServer(t, nil)

	resp, out := post(t, ts.URL+"/api/render", boardFiles(), `{"layers": [`)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, body = %v", resp.StatusCode, out)
	}
	if top, _ := out["topSvg"].(string); top != svgDoc {
		t.Errorf("topSvg = %q, want renderer output unchanged", top)
	}
}

func TestRenderErrors(t *testing.T) {
	tests := []struct {
		name       string
		fail       error
		files      []upload
		wantStatus int
		wantCode   errors.Code
		wantLayers int
	}{
		{
			name:       "no files",
			wantStatus: http.StatusBadRequest,
			wantCode:   errors.ErrCodeNoInputFiles,
		},
		{
			name:       "nothing recognized",
			files:      []upload{{"readme.md", "hello"}},
			wantStatus: http.StatusBadRequest,
			wantCode:   errors.ErrCodeEmptyLayerSet,
		},
		{
			name:       "renderer failure",
			fail:       io.ErrUnexpectedEOF,
			files:      boardFiles(),
			wantStatus: http.StatusInternalServerError,
			wantCode:   errors.ErrCodeRenderFailed,
			wantLayers: 2,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts := newTestServer(t, tt.fail)
			resp, out := post(t, ts.URL+"/api/render", tt.files, "")
			if resp.StatusCode != tt.wantStatus {
				t.Errorf("status = %d, want %d", resp.StatusCode, tt.wantStatus)
			}
			if got := errors.Code(out["code"].(string)); got != tt.wantCode {
				t.Errorf("code = %s, want %s", got, tt.wantCode)
			}
			info, ok := out["layersInfo"].([]any)
			if !ok {
				t.Fatalf("layersInfo = %v, want an array", out["layersInfo"])
			}
			if len(info) != tt.wantLayers {
				t.Errorf("len(layersInfo) = %d, want %d", len(info), tt.wantLayers)
			}
		})
	}
}

func TestRenderFailedDetails(t *testing.T) {
	ts := newTestServer(t, io.ErrUnexpectedEOF)

	_, out := post(t, ts.URL+"/api/render", boardFiles(), "")
	if out["error"] != "Render failed" {
		t.Errorf("error = %v, want %q", out["error"], "Render failed")
	}
	if d, _ := out["details"].(string); !strings.Contains(d, "unexpected EOF") {
		t.Errorf("details = %q, want renderer error", d)
	}
	if ts.calls.Load() != 1 {
		t.Errorf("renderer calls = %d, want exactly 1", ts.calls.Load())
	}
}

func TestRenderNotMultipart(t *testing.T) {
	ts := newTestServer(t, nil)

	resp, err := http.Post(ts.URL+"/api/render", "application/json", strings.NewReader(`{}`))
	if err != nil {
		t.Fatal(err)
	}
	out := decode(t, resp)
	if resp.StatusCode != http.StatusBadRequest || out["code"] != string(errors.ErrCodeInvalidInput) {
		t.Errorf("status = %d, body = %v", resp.StatusCode, out)
	}
}

func TestRenderUploadTooLarge(t *testing.T) {
	ts := newTestServer(t, nil, func(c *config.Config) { c.Server.MaxUploadMB = 1 })

	big := strings.Repeat("X0Y0D02*\n", (2<<20)/9)
	body, ctype := multipartBody(t, []upload{{"top.gtl", big}}, "")
	req := httptest.NewRequest(http.MethodPost, "/api/render", body)
	req.Header.Set("Content-Type", ctype)
	rec := httptest.NewRecorder()
	ts.handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, body = %s", rec.Code, rec.Body)
	}
	if ts.calls.Load() != 0 {
		t.Errorf("renderer called for rejected upload")
	}
}

func TestLayersDoesNotRender(t *testing.T) {
	ts := newTestServer(t, nil)

	files := append(boardFiles(), upload{"board.drl", "M48\nM30\n"}, upload{"notes.pdf", "%PDF"})
	resp, out := post(t, ts.URL+"/api/layers", files, "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, body = %v", resp.StatusCode, out)
	}
	info, _ := out["layersInfo"].([]any)
	if len(info) != 3 {
		t.Fatalf("layersInfo = %v, want three recognized layers", info)
	}
	first, _ := info[0].(map[string]any)
	if first["name"] != "top.gtl" || first["type"] != string(layer.TypeTop) {
		t.Errorf("first layer = %v", first)
	}
	if ts.calls.Load() != 0 {
		t.Errorf("renderer calls = %d, want 0", ts.calls.Load())
	}
}

func TestLayersNoFiles(t *testing.T) {
	ts := newTestServer(t, nil)
	resp, out := post(t, ts.URL+"/api/layers", nil, "")
	if resp.StatusCode != http.StatusBadRequest || out["code"] != string(errors.ErrCodeNoInputFiles) {
		t.Errorf("status = %d, body = %v", resp.StatusCode, out)
	}
}

func TestExtensions(t *testing.T) {
	ts := newTestServer(t, nil)

	resp, err := http.Get(ts.URL + "/api/extensions")
	if err != nil {
		t.Fatal(err)
	}
	out := decode(t, resp)
	paste, _ := out["paste"].([]any)
	if len(paste) != len(layer.DefaultPolicy().Paste) {
		t.Errorf("paste = %v", out["paste"])
	}
}

func TestRendersHistory(t *testing.T) {
	ts := newTestServer(t, nil)
	post(t, ts.URL+"/api/render", boardFiles(), "")
	post(t, ts.URL+"/api/render", nil, "")

	resp, err := http.Get(ts.URL + "/api/renders?limit=1")
	if err != nil {
		t.Fatal(err)
	}
	out := decode(t, resp)
	if out["backend"] != history.BackendMemory {
		t.Errorf("backend = %v", out["backend"])
	}
	renders, _ := out["renders"].([]any)
	if len(renders) != 1 {
		t.Fatalf("renders = %v, want 1 with limit=1", renders)
	}
	latest, _ := renders[0].(map[string]any)
	if latest["outcome"] != string(errors.ErrCodeNoInputFiles) {
		t.Errorf("latest outcome = %v, want the failed request", latest["outcome"])
	}

	for _, limit := range []string{"0", "-3", "many"} {
		resp, err := http.Get(ts.URL + "/api/renders?limit=" + limit)
		if err != nil {
			t.Fatal(err)
		}
		resp.Body.Close()
		if resp.StatusCode != http.StatusBadRequest {
			t.Errorf("limit=%s status = %d, want 400", limit, resp.StatusCode)
		}
	}
}

func TestHealth(t *testing.T) {
	ts := newTestServer(t, nil)
	resp, err := http.Get(ts.URL + "/healthz")
	if err != nil {
		t.Fatal(err)
	}
	out := decode(t, resp)
	if resp.StatusCode != http.StatusOK || out["status"] != "ok" {
		t.Errorf("status = %d, body = %v", resp.StatusCode, out)
	}
}

func TestCORS(t *testing.T) {
	ts := newTestServer(t, nil)

	tests := []struct {
		origin string
		want   string
	}{
		{"http://localhost:5173", "http://localhost:5173"},
		{"https://evil.example", ""},
	}
	for _, tt := range tests {
		t.Run(tt.origin, func(t *testing.T) {
			req, _ := http.NewRequest(http.MethodOptions, ts.URL+"/api/render", nil)
			req.Header.Set("Origin", tt.origin)
			req.Header.Set("Access-Control-Request-Method", http.MethodPost)
			resp, err := http.DefaultClient.Do(req)
			if err != nil {
				t.Fatal(err)
			}
			resp.Body.Close()
			if resp.StatusCode/100 != 2 {
				t.Errorf("preflight status = %d, want 2xx", resp.StatusCode)
			}
			if got := resp.Header.Get("Access-Control-Allow-Origin"); got != tt.want {
				t.Errorf("Allow-Origin = %q, want %q", got, tt.want)
			}
		})
	}
}
