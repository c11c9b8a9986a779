package api_test

import (
	"bytes"
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/itsatony/emhub/api"
	"github.com/itsatony/emhub/internal/cleanup"
	"github.com/itsatony/emhub/internal/devicectl"
	"github.com/itsatony/emhub/internal/hubservice"
	"github.com/itsatony/emhub/internal/ingest"
	"github.com/itsatony/emhub/internal/monitoring"
	"github.com/itsatony/emhub/internal/ota"
	"github.com/itsatony/emhub/internal/registry"
	"github.com/itsatony/emhub/internal/registry/registrytest"
	"github.com/itsatony/emhub/internal/repository/memory"
	"github.com/itsatony/emhub/internal/state"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testAPI struct {
	router   *api.Router
	registry *registry.Registry
	svc      *hubservice.HubService
}

func newTestAPI(t *testing.T) *testAPI {
	t.Helper()
	reg := registry.New(nil)
	cache := state.New(nil)
	fw := memory.NewFirmwareRepository()
	hist := memory.NewHistoryRepository()
	svc := hubservice.New(
		fw, hist, reg, cache,
		ingest.New(cache, reg, hist),
		ota.New(fw, reg, 0),
		devicectl.New(reg, 0, time.Second),
		cleanup.New(hist, 0, time.Hour),
		hubservice.Options{},
	)
	monitor := monitoring.NewService(monitoring.Config{})
	monitor.WatchRegistry(reg)
	return &testAPI{
		router:   api.NewRouter(svc, monitor, api.Options{AllowedOrigins: []string{"*"}}),
		registry: reg,
		svc:      svc,
	}
}

func (a *testAPI) do(req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	a.router.ServeHTTP(rec, req)
	return rec
}

func (a *testAPI) doJSON(method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	return a.do(req)
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

func uploadRequest(t *testing.T, version, fileName string, data []byte) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	require.NoError(t, mw.WriteField("versionName", version))
	require.NoError(t, mw.WriteField("description", "nightly"))
	fw, err := mw.CreateFormFile("firmwareFile", fileName)
	require.NoError(t, err)
	_, err = fw.Write(data)
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/firmware/upload", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func TestFirmwareEndpoints(t *testing.T) {
	a := newTestAPI(t)
	image := []byte(":10000000\n:00000001FF\n")

	rec := a.do(uploadRequest(t, "v1.0.0", "fw.bin", image))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	body := decode(t, rec)
	sum := md5.Sum(image)
	assert.Equal(t, true, body["success"])
	assert.Equal(t, "v1.0.0", body["version"])
	assert.Equal(t, hex.EncodeToString(sum[:]), body["checksum"])

	rec = a.do(uploadRequest(t, "v1.0.0", "fw.bin", image))
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "conflict", decode(t, rec)["type"])

	rec = a.do(uploadRequest(t, "", "fw.bin", image))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "validation", decode(t, rec)["type"])

	rec = a.doJSON(http.MethodGet, "/api/firmware", "")
	require.Equal(t, http.StatusOK, rec.Code)
	versions := decode(t, rec)["versions"].([]any)
	require.Len(t, versions, 1)
	assert.NotContains(t, versions[0].(map[string]any), "data_hex")

	rec = a.doJSON(http.MethodGet, "/api/firmware/info/v1.0.0", "")
	require.Equal(t, http.StatusOK, rec.Code)
	info := decode(t, rec)["firmware"].(map[string]any)
	assert.Equal(t, "v1.0.0", info["version"])

	rec = a.doJSON(http.MethodGet, "/api/firmware/download/v1.0.0", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, image, rec.Body.Bytes())
	assert.Equal(t, "application/octet-stream", rec.Header().Get("Content-Type"))
	assert.Equal(t, "v1.0.0", rec.Header().Get("X-Firmware-Version"))
	assert.Equal(t, hex.EncodeToString(sum[:]), rec.Header().Get("X-Firmware-Checksum"))

	rec = a.doJSON(http.MethodDelete, "/api/firmware/v1.0.0", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	rec = a.doJSON(http.MethodDelete, "/api/firmware/v1.0.0", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	rec = a.doJSON(http.MethodGet, "/api/firmware/download/v1.0.0", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestOneShotReadingReachesDashboards(t *testing.T) {
	a := newTestAPI(t)
	dash := registrytest.NewConn("dash", "")
	require.NoError(t, a.registry.Register(dash, registry.RoleDashboard))

	rec := a.doJSON(http.MethodGet, "/api/device/config", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = a.doJSON(http.MethodPost, "/api/device/readings", `{"Temperature":21.5,"EtOH2":3}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, true, decode(t, rec)["success"])
	assert.Equal(t, 1, dash.CountKind("snapshot"))

	rec = a.doJSON(http.MethodGet, "/api/snapshot", "")
	require.Equal(t, http.StatusOK, rec.Code)
	data := decode(t, rec)["data"].(map[string]any)
	assert.Equal(t, 21.5, data["temperature"])
	assert.Equal(t, 3.0, data["gas2"])

	// httptest requests originate from 192.0.2.1
	rec = a.doJSON(http.MethodGet, "/api/device/config", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "192.0.2.1", decode(t, rec)["deviceAddress"])

	rec = a.doJSON(http.MethodPost, "/api/device/readings", `not json`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRegisterAddressAcceptsForm(t *testing.T) {
	a := newTestAPI(t)

	req := httptest.NewRequest(http.MethodPost, "/api/device/address", strings.NewReader("ip=10.1.1.7"))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := a.do(req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = a.doJSON(http.MethodGet, "/api/esp32/config", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "10.1.1.7", decode(t, rec)["ip"])

	rec = a.doJSON(http.MethodPost, "/api/device/address", `{}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestDeviceControlEndpoints(t *testing.T) {
	a := newTestAPI(t)

	rec := a.doJSON(http.MethodPost, "/api/device/start-sampling", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	var mu sync.Mutex
	var paths []string
	device := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		paths = append(paths, r.URL.Path)
		mu.Unlock()
		_, _ = w.Write([]byte(`{"sampling":true}`))
	}))
	defer device.Close()
	rec = a.doJSON(http.MethodPost, "/api/device/address", `{"address":"`+strings.TrimPrefix(device.URL, "http://")+`"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = a.doJSON(http.MethodPost, "/api/esp32/start-sampling", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	rec = a.doJSON(http.MethodPost, "/api/device/stop-sampling", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	rec = a.doJSON(http.MethodGet, "/api/device/status", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, decode(t, rec)["sampling"])
	rec = a.doJSON(http.MethodPost, "/api/device/config", `{"host":"192.168.4.1","port":8080}`)
	assert.Equal(t, http.StatusOK, rec.Code)
	rec = a.doJSON(http.MethodPost, "/api/device/config", `{"host":"192.168.4.1","port":0}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"/api/start", "/api/stop", "/api/status", "/api/config/dashboard"}, paths)
}

func TestReadingsEndpoint(t *testing.T) {
	a := newTestAPI(t)

	rec := a.doJSON(http.MethodGet, "/api/readings?granularity=Daily", "")
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, "daily", body["granularity"])
	assert.Empty(t, body["rows"])

	rec = a.doJSON(http.MethodGet, "/api/readings", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "hourly", decode(t, rec)["granularity"])

	rec = a.doJSON(http.MethodGet, "/api/readings?granularity=weekly", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHealthAndDocs(t *testing.T) {
	a := newTestAPI(t)

	rec := a.doJSON(http.MethodGet, "/api/health", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", decode(t, rec)["status"])
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))

	rec = a.doJSON(http.MethodGet, "/api/docs/swagger.json", "")
	require.Equal(t, http.StatusOK, rec.Code)
	doc := decode(t, rec)
	assert.Equal(t, "2.0", doc["swagger"])
	assert.Contains(t, doc["paths"].(map[string]any), "/firmware/upload")
	apiError := doc["definitions"].(map[string]any)["errors.APIError"].(map[string]any)
	assert.NotContains(t, apiError["properties"].(map[string]any), "details")
}
