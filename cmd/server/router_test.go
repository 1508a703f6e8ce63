package main

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"census/internal/citizens/service"
	"census/internal/citizens/store"
	"census/internal/health"
	"census/internal/platform/config"
	"census/internal/platform/metrics"
)

func newTestRouter(t *testing.T) http.Handler {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	reg := prometheus.NewRegistry()
	mem := store.NewMemory()

	router := newRouter(routerDeps{
		service:  service.New(mem, newCitizensMemoryTx(mem), service.WithLogger(logger)),
		logger:   logger,
		metrics:  metrics.New(reg),
		gatherer: reg,
		checks:   map[string]health.CheckFunc{"store": mem.Ping},
		server:   config.ServerConfig{MaxBodyBytes: 1 << 20},
	})
	return router
}

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(newTestRouter(t))
	t.Cleanup(srv.Close)
	return srv
}

func call(t *testing.T, srv *httptest.Server, method, path, body string) (int, map[string]any) {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req, err := http.NewRequest(method, srv.URL+path, reader)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")

	resp, err := srv.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var decoded map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&decoded))
	return resp.StatusCode, decoded
}

const familyImport = `{"citizens":[
	{"citizen_id":101,"town":"Москва","street":"Тверская","building":"1","apartment":1,
	 "name":"Иван","birth_date":"15.01.1990","gender":"male","relatives":[102]},
	{"citizen_id":102,"town":"Москва","street":"Тверская","building":"1","apartment":1,
	 "name":"Мария","birth_date":"03.10.1991","gender":"female","relatives":[101]},
	{"citizen_id":103,"town":"Керчь","street":"Ленина","building":"7","apartment":3,
	 "name":"Пётр","birth_date":"20.05.1980","gender":"male","relatives":[]}
]}`

func TestImportLifecycle(t *testing.T) {
	srv := newTestServer(t)

	status, body := call(t, srv, http.MethodPost, "/imports", familyImport)
	require.Equal(t, http.StatusCreated, status)
	importID := body["data"].(map[string]any)["import_id"]
	require.NotNil(t, importID)
	base := "/imports/" + jsonNumber(importID)

	status, body = call(t, srv, http.MethodGet, base+"/citizens/birthdays", "")
	require.Equal(t, http.StatusOK, status)
	months := body["data"].(map[string]any)
	assert.Len(t, months, 12)
	assert.Equal(t, []any{map[string]any{"citizen_id": float64(102), "presents": float64(1)}}, months["1"])
	assert.Equal(t, []any{map[string]any{"citizen_id": float64(101), "presents": float64(1)}}, months["10"])

	status, body = call(t, srv, http.MethodPatch, base+"/citizens/101/", `{"relatives":[102,103]}`)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, []any{float64(102), float64(103)}, body["data"].(map[string]any)["relatives"])

	status, body = call(t, srv, http.MethodGet, base+"/citizens", "")
	require.Equal(t, http.StatusOK, status)
	relatives := map[float64][]any{}
	for _, c := range body["data"].([]any) {
		citizen := c.(map[string]any)
		relatives[citizen["citizen_id"].(float64)] = citizen["relatives"].([]any)
	}
	assert.Equal(t, []any{float64(101)}, relatives[102])
	assert.Equal(t, []any{float64(101)}, relatives[103])

	status, body = call(t, srv, http.MethodGet, base+"/towns/stat/percentile/age", "")
	require.Equal(t, http.StatusOK, status)
	towns := body["data"].([]any)
	require.Len(t, towns, 2)
	assert.Equal(t, "Керчь", towns[0].(map[string]any)["town"])
	assert.Equal(t, "Москва", towns[1].(map[string]any)["town"])
}

func TestUnknownRelativeLeavesGraphUntouched(t *testing.T) {
	srv := newTestServer(t)

	status, body := call(t, srv, http.MethodPost, "/imports", familyImport)
	require.Equal(t, http.StatusCreated, status)
	base := "/imports/" + jsonNumber(body["data"].(map[string]any)["import_id"])

	status, _ = call(t, srv, http.MethodPatch, base+"/citizens/101", `{"relatives":[103,999]}`)
	require.Equal(t, http.StatusNotFound, status)

	_, body = call(t, srv, http.MethodGet, base+"/citizens", "")
	first := body["data"].([]any)[0].(map[string]any)
	assert.Equal(t, float64(101), first["citizen_id"])
	assert.Equal(t, []any{float64(102)}, first["relatives"])
}

func TestUnknownImport(t *testing.T) {
	srv := newTestServer(t)

	for _, path := range []string{
		"/imports/42/citizens",
		"/imports/42/citizens/birthdays",
		"/imports/42/towns/stat/percentile/age",
	} {
		status, body := call(t, srv, http.MethodGet, path, "")
		assert.Equal(t, http.StatusNotFound, status, path)
		assert.Equal(t, "not_found", body["error"], path)
	}
}

func TestHealthEndpointsAndMetrics(t *testing.T) {
	srv := newTestServer(t)

	status, body := call(t, srv, http.MethodGet, "/readyz", "")
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "ok", body["status"])

	call(t, srv, http.MethodGet, "/imports/1/citizens", "")

	resp, err := srv.Client().Get(srv.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(raw), `census_http_request_duration_seconds_count{method="GET",route="/imports/{import_id}/citizens",status="404"} 1`)
}

func jsonNumber(v any) string {
	b, _ := json.Marshal(v)
	return string(b)
}
