// SPDX-License-Identifier: MIT

package api

import (
	"archive/zip"
	"bytes"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/jonas-p/go-shp"

	"github.com/terralab/geoproc/internal/blob"
	"github.com/terralab/geoproc/internal/cache"
	"github.com/terralab/geoproc/internal/config"
	"github.com/terralab/geoproc/internal/health"
	"github.com/terralab/geoproc/internal/jobs"
	"github.com/terralab/geoproc/internal/store"
)

const testToken = "test-token-123"

const squareGeoJSON = `{
	"type": "FeatureCollection",
	"features": [
		{"type": "Feature", "properties": {"name": "plot"},
		 "geometry": {"type": "Polygon", "coordinates": [[[11.0,48.0],[11.01,48.0],[11.01,48.01],[11.0,48.01],[11.0,48.0]]]}}
	]
}`

type testServer struct {
	srv    *httptest.Server
	store  *store.Store
	blobs  *blob.Store
	runner *jobs.Runner
}

func newTestServer(t *testing.T, mutate func(*config.Config)) *testServer {
	t.Helper()

	dir := t.TempDir()

	cfg := config.Defaults()
	cfg.DataDir = dir
	cfg.Auth.Token = testToken
	cfg.RateLimit.Enabled = false
	cfg.Telemetry.Enabled = false
	if mutate != nil {
		mutate(&cfg)
	}

	st, err := store.Open(filepath.Join(dir, "meta.db"), store.DefaultConfig())
	if err != nil {
		t.Fatalf("store.Open() error = %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })

	bl, err := blob.Open(filepath.Join(dir, "blobs"))
	if err != nil {
		t.Fatalf("blob.Open() error = %v", err)
	}
	t.Cleanup(func() { _ = bl.Close() })

	runner := jobs.New(st, bl, jobs.Config{Workers: 2, QueueSize: 8, ResultTTL: time.Hour})
	if err := runner.Start(t.Context()); err != nil {
		t.Fatalf("runner.Start() error = %v", err)
	}
	t.Cleanup(runner.Stop)

	holder := config.NewHolder(cfg, config.NewLoader(""), "")
	hm := health.NewManager("test")
	hm.RegisterChecker(health.NewDirChecker("data_dir", dir))

	server := New(holder, st, bl, cache.NewMemoryCache(0), runner, hm)
	srv := httptest.NewServer(server.Handler())
	t.Cleanup(srv.Close)

	return &testServer{srv: srv, store: st, blobs: bl, runner: runner}
}

// multipartBody builds a multipart form with file fields and values.
func multipartBody(t *testing.T, files map[string][]byte, values map[string]string) (*bytes.Buffer, string) {
	t.Helper()

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for field, data := range files {
		fw, err := mw.CreateFormFile(field, field+".bin")
		if err != nil {
			t.Fatal(err)
		}
		if _, err := fw.Write(data); err != nil {
			t.Fatal(err)
		}
	}
	for field, value := range values {
		if err := mw.WriteField(field, value); err != nil {
			t.Fatal(err)
		}
	}
	if err := mw.Close(); err != nil {
		t.Fatal(err)
	}
	return &buf, mw.FormDataContentType()
}

func (ts *testServer) do(t *testing.T, method, path string, body io.Reader, contentType string) *http.Response {
	t.Helper()

	req, err := http.NewRequest(method, ts.srv.URL+path, body)
	if err != nil {
		t.Fatal(err)
	}
	req.Header.Set("Authorization", "Bearer "+testToken)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	resp, err := ts.srv.Client().Do(req)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

func decodeBody(t *testing.T, resp *http.Response, v any) {
	t.Helper()
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		t.Fatalf("decode response: %v", err)
	}
}

// shapefileZip builds a zipped one-polygon shapefile covering the given
// square in lon/lat.
func shapefileZip(t *testing.T, x0, y0, x1, y1 float64) []byte {
	t.Helper()

	dir := t.TempDir()
	path := filepath.Join(dir, "layer.shp")

	w, err := shp.Create(path, shp.POLYGON)
	if err != nil {
		t.Fatalf("shp.Create() error = %v", err)
	}
	if err := w.SetFields([]shp.Field{shp.StringField("NAME", 16)}); err != nil {
		t.Fatal(err)
	}

	// Clockwise outer ring.
	line := shp.NewPolyLine([][]shp.Point{{
		{X: x0, Y: y0}, {X: x0, Y: y1}, {X: x1, Y: y1}, {X: x1, Y: y0}, {X: x0, Y: y0},
	}})
	poly := shp.Polygon(*line)
	w.Write(&poly)
	if err := w.WriteAttribute(0, 0, "layer"); err != nil {
		t.Fatal(err)
	}
	w.Close()

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for _, e := range entries {
		data, err := os.ReadFile(filepath.Join(dir, e.Name()))
		if err != nil {
			t.Fatal(err)
		}
		f, err := zw.Create(e.Name())
		if err != nil {
			t.Fatal(err)
		}
		if _, err := f.Write(data); err != nil {
			t.Fatal(err)
		}
	}
	if err := zw.Close(); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func TestPublicEndpoints(t *testing.T) {
	ts := newTestServer(t, nil)

	for _, path := range []string{"/", "/healthz", "/readyz", "/metrics"} {
		resp, err := ts.srv.Client().Get(ts.srv.URL + path)
		if err != nil {
			t.Fatal(err)
		}
		_ = resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			t.Errorf("GET %s = %d, want 200", path, resp.StatusCode)
		}
	}
}

func TestAuthRequired(t *testing.T) {
	ts := newTestServer(t, nil)

	resp, err := ts.srv.Client().Get(ts.srv.URL + "/api/v1/datasets/")
	if err != nil {
		t.Fatal(err)
	}
	_ = resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("without token = %d, want 401", resp.StatusCode)
	}

	req, _ := http.NewRequest(http.MethodGet, ts.srv.URL+"/api/v1/datasets/", nil)
	req.Header.Set("Authorization", "Bearer wrong-token")
	resp, err = ts.srv.Client().Do(req)
	if err != nil {
		t.Fatal(err)
	}
	_ = resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("with wrong token = %d, want 401", resp.StatusCode)
	}
}

func TestErrorEnvelope(t *testing.T) {
	ts := newTestServer(t, nil)

	resp, err := ts.srv.Client().Get(ts.srv.URL + "/api/v1/datasets/")
	if err != nil {
		t.Fatal(err)
	}
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", resp.StatusCode)
	}

	var body map[string]string
	decodeBody(t, resp, &body)
	_ = resp.Body.Close()
	if body["error"] != "unauthorized" {
		t.Errorf("error = %q, want unauthorized", body["error"])
	}
	if body["detail"] == "" {
		t.Error("detail is empty")
	}

	// Unknown dataset carries the same two-field shape.
	resp = ts.do(t, http.MethodGet, "/api/v1/datasets/nope", nil, "")
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", resp.StatusCode)
	}
	decodeBody(t, resp, &body)
	if body["error"] != "not_found" || body["detail"] == "" {
		t.Errorf("body = %v, want not_found with detail", body)
	}
}

func TestAuthModeNone(t *testing.T) {
	ts := newTestServer(t, func(cfg *config.Config) {
		cfg.Auth.Mode = config.AuthNone
	})

	resp, err := ts.srv.Client().Get(ts.srv.URL + "/api/v1/datasets/")
	if err != nil {
		t.Fatal(err)
	}
	_ = resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("auth none = %d, want 200", resp.StatusCode)
	}
}

func TestAuthModeJWT(t *testing.T) {
	ts := newTestServer(t, func(cfg *config.Config) {
		cfg.Auth.Mode = config.AuthJWT
		cfg.Auth.JWTSecret = "shared-secret"
	})

	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": "user-42",
		"exp": time.Now().Add(time.Hour).Unix(),
	})
	signed, err := tok.SignedString([]byte("shared-secret"))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}

	req, _ := http.NewRequest(http.MethodGet, ts.srv.URL+"/api/v1/datasets/", nil)
	req.Header.Set("Authorization", "Bearer "+signed)
	resp, err := ts.srv.Client().Do(req)
	if err != nil {
		t.Fatal(err)
	}
	_ = resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("valid jwt = %d, want 200", resp.StatusCode)
	}
}

func TestAuthJWTFailClosedWithoutSecret(t *testing.T) {
	// JWT mode with no secret configured must reject every token, in
	// particular one HMAC-signed with the empty key.
	ts := newTestServer(t, func(cfg *config.Config) {
		cfg.Auth.Mode = config.AuthJWT
		cfg.Auth.JWTSecret = ""
	})

	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": "attacker",
		"exp": time.Now().Add(time.Hour).Unix(),
	})
	signed, err := tok.SignedString([]byte(""))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}

	req, _ := http.NewRequest(http.MethodGet, ts.srv.URL+"/api/v1/datasets/", nil)
	req.Header.Set("Authorization", "Bearer "+signed)
	resp, err := ts.srv.Client().Do(req)
	if err != nil {
		t.Fatal(err)
	}
	_ = resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("empty-secret jwt = %d, want 401", resp.StatusCode)
	}
}

func TestAuthFailClosedWithoutToken(t *testing.T) {
	// Token mode with an empty configured token must reject everyone.
	ts := newTestServer(t, func(cfg *config.Config) {
		cfg.Auth.Token = ""
	})

	resp := ts.do(t, http.MethodGet, "/api/v1/datasets/", nil, "")
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", resp.StatusCode)
	}
}
