package hubservice_test

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/itsatony/emhub/internal/cleanup"
	"github.com/itsatony/emhub/internal/devicectl"
	apierrors "github.com/itsatony/emhub/internal/errors"
	"github.com/itsatony/emhub/internal/hubservice"
	"github.com/itsatony/emhub/internal/ingest"
	"github.com/itsatony/emhub/internal/models"
	"github.com/itsatony/emhub/internal/ota"
	"github.com/itsatony/emhub/internal/registry"
	"github.com/itsatony/emhub/internal/repository/memory"
	"github.com/itsatony/emhub/internal/state"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newService(t *testing.T) *hubservice.HubService {
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
		hubservice.Options{MaxFirmwareSize: 64},
	)
	require.NoError(t, svc.Validate())
	return svc
}

func apiCode(t *testing.T, err error) int {
	t.Helper()
	require.Error(t, err)
	apiErr, ok := err.(*apierrors.APIError)
	require.True(t, ok, "expected *APIError, got %T", err)
	return apiErr.Code
}

func binFile(data string) hubservice.FirmwareFile {
	return hubservice.FirmwareFile{Name: "fw.bin", Data: []byte(data)}
}

func TestUploadValidation(t *testing.T) {
	svc := newService(t)
	ctx := context.Background()

	_, err := svc.UploadFirmware(ctx, models.FirmwareUpload{}, binFile("x"))
	assert.Equal(t, http.StatusBadRequest, apiCode(t, err))

	_, err = svc.UploadFirmware(ctx, models.FirmwareUpload{VersionName: "v1"}, binFile(""))
	assert.Equal(t, http.StatusBadRequest, apiCode(t, err))

	_, err = svc.UploadFirmware(ctx, models.FirmwareUpload{VersionName: "v1"}, binFile(strings.Repeat("x", 65)))
	assert.Equal(t, http.StatusBadRequest, apiCode(t, err))

	_, err = svc.UploadFirmware(ctx, models.FirmwareUpload{VersionName: "v1"},
		hubservice.FirmwareFile{Name: "fw.txt", ContentType: "text/plain", Data: []byte("x")})
	assert.Equal(t, http.StatusBadRequest, apiCode(t, err))

	_, err = svc.UploadFirmware(ctx, models.FirmwareUpload{VersionName: "v1"},
		hubservice.FirmwareFile{Name: "blob", ContentType: "application/octet-stream", Data: []byte("x")})
	assert.NoError(t, err)
}

func TestFirmwareLifecycle(t *testing.T) {
	svc := newService(t)
	ctx := context.Background()
	image := ":100000\n:00000001FF\n"

	summary, err := svc.UploadFirmware(ctx, models.FirmwareUpload{VersionName: " v1.2.0 ", Description: "fix"}, binFile(image))
	require.NoError(t, err)
	sum := md5.Sum([]byte(image))
	assert.Equal(t, "v1.2.0", summary.Version)
	assert.Equal(t, hex.EncodeToString(sum[:]), summary.Checksum)
	assert.Equal(t, int64(len(image)), summary.FileSize)
	assert.Equal(t, "fw.bin", summary.FileName)

	_, err = svc.UploadFirmware(ctx, models.FirmwareUpload{VersionName: "v1.2.0"}, binFile("other"))
	assert.Equal(t, http.StatusConflict, apiCode(t, err))

	record, data, err := svc.DownloadFirmware(ctx, "v1.2.0")
	require.NoError(t, err)
	assert.Equal(t, image, string(data))
	assert.Equal(t, "fix", record.Description)

	list, err := svc.ListFirmware(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)

	info, err := svc.GetFirmwareInfo(ctx, "v1.2.0")
	require.NoError(t, err)
	assert.Equal(t, "v1.2.0", info.Version)

	require.NoError(t, svc.DeleteFirmware(ctx, "v1.2.0"))
	assert.Equal(t, http.StatusNotFound, apiCode(t, svc.DeleteFirmware(ctx, "v1.2.0")))

	_, _, err = svc.DownloadFirmware(ctx, "v1.2.0")
	assert.Equal(t, http.StatusNotFound, apiCode(t, err))
}

func TestSubmitReadingRecordsPeerAddress(t *testing.T) {
	svc := newService(t)
	ctx := context.Background()

	_, err := svc.DeviceAddress()
	assert.Equal(t, http.StatusNotFound, apiCode(t, err))

	reading, err := svc.SubmitReading(ctx, map[string]any{"temperature": 19.5}, "10.0.0.5:40000")
	require.NoError(t, err)
	assert.Equal(t, 19.5, reading.Temperature)
	addr, err := svc.DeviceAddress()
	require.NoError(t, err)
	assert.Equal(t, "10.0.0.5", addr)

	_, err = svc.SubmitReading(ctx, map[string]any{"humidity": 50, "address": "10.0.0.9"}, "10.0.0.5:40000")
	require.NoError(t, err)
	addr, err = svc.DeviceAddress()
	require.NoError(t, err)
	assert.Equal(t, "10.0.0.9", addr)
	assert.Equal(t, 19.5, svc.Snapshot().Temperature)
	assert.Equal(t, 50.0, svc.Snapshot().Humidity)

	_, err = svc.SubmitReading(ctx, nil, "")
	assert.Equal(t, http.StatusBadRequest, apiCode(t, err))
}

func TestDeviceControl(t *testing.T) {
	svc := newService(t)
	ctx := context.Background()

	assert.Equal(t, http.StatusNotFound, apiCode(t, svc.StartSampling(ctx)))

	device := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/api/stop" {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte(`{"sampling":false}`))
	}))
	defer device.Close()

	require.NoError(t, svc.RegisterDeviceAddress(ctx, strings.TrimPrefix(device.URL, "http://")))
	assert.NoError(t, svc.StartSampling(ctx))
	assert.Equal(t, http.StatusServiceUnavailable, apiCode(t, svc.StopSampling(ctx)))

	status, err := svc.DeviceStatus(ctx)
	require.NoError(t, err)
	assert.False(t, status.Sampling)

	err = svc.ConfigureDeviceDashboard(ctx, devicectl.DashboardTarget{Host: "", Port: 80})
	assert.Equal(t, http.StatusBadRequest, apiCode(t, err))
	assert.NoError(t, svc.ConfigureDeviceDashboard(ctx, devicectl.DashboardTarget{Host: "192.168.4.1", Port: 8080}))

	assert.Equal(t, http.StatusBadRequest, apiCode(t, svc.RegisterDeviceAddress(ctx, "  ")))
}

func TestReadingHistory(t *testing.T) {
	svc := newService(t)
	ctx := context.Background()

	granularity, rows, err := svc.ReadingHistory(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, models.GranularityHourly, granularity)
	assert.Empty(t, rows)

	require.NoError(t, svc.History.Append(ctx, models.Reading{Time: "t1"}))
	granularity, rows, err = svc.ReadingHistory(ctx, models.GranularityDaily)
	require.NoError(t, err)
	assert.Equal(t, models.GranularityDaily, granularity)
	assert.Len(t, rows, 1)

	_, _, err = svc.ReadingHistory(ctx, "weekly")
	assert.Equal(t, http.StatusBadRequest, apiCode(t, err))
}
