package ws_test

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/itsatony/emhub/internal/ingest"
	"github.com/itsatony/emhub/internal/models"
	"github.com/itsatony/emhub/internal/ota"
	"github.com/itsatony/emhub/internal/registry"
	"github.com/itsatony/emhub/internal/repository/memory"
	"github.com/itsatony/emhub/internal/router"
	"github.com/itsatony/emhub/internal/state"
	"github.com/itsatony/emhub/internal/transport/ws"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newServer(t *testing.T, origins []string) (*httptest.Server, *registry.Registry, *state.Cache) {
	t.Helper()
	reg := registry.New(nil)
	cache := state.New(nil)
	fw := memory.NewFirmwareRepository()
	hist := memory.NewHistoryRepository()
	rt := router.New(reg, cache, ingest.New(cache, reg, hist), ota.New(fw, reg, 0), fw, hist)

	srv := httptest.NewServer(ws.NewServer(rt, origins, 16))
	t.Cleanup(srv.Close)
	return srv, reg, cache
}

func dial(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func readKind(t *testing.T, conn *websocket.Conn) map[string]any {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)
	var msg map[string]any
	require.NoError(t, json.Unmarshal(data, &msg))
	return msg
}

func TestReadingReachesDashboard(t *testing.T) {
	srv, reg, cache := newServer(t, []string{"*"})

	dash := dial(t, srv)
	require.NoError(t, dash.WriteMessage(websocket.TextMessage, []byte(`{"kind":"register","role":"dashboard"}`)))
	dev := dial(t, srv)
	require.NoError(t, dev.WriteMessage(websocket.TextMessage, []byte(`{"kind":"register","role":"device"}`)))

	require.Eventually(t, func() bool {
		return reg.Count(registry.RoleDevice) == 1 && reg.Count(registry.RoleDashboard) == 1
	}, 2*time.Second, 5*time.Millisecond)

	require.NoError(t, dev.WriteMessage(websocket.TextMessage, []byte(`{"kind":"reading","temperature":22.5,"humidity":40}`)))

	msg := readKind(t, dash)
	assert.Equal(t, models.KindSnapshot, msg["kind"])
	data := msg["data"].(map[string]any)
	assert.Equal(t, 22.5, data["temperature"])
	assert.Equal(t, 40.0, data["humidity"])
	assert.Equal(t, 22.5, cache.Snapshot().Temperature)
}

func TestDisconnectUnregisters(t *testing.T) {
	srv, reg, _ := newServer(t, nil)

	dev := dial(t, srv)
	require.NoError(t, dev.WriteMessage(websocket.TextMessage, []byte(`{"kind":"register","role":"device"}`)))
	require.Eventually(t, func() bool { return reg.Count(registry.RoleDevice) == 1 }, 2*time.Second, 5*time.Millisecond)

	require.NoError(t, dev.Close())
	require.Eventually(t, func() bool { return reg.Count(registry.RoleDevice) == 0 }, 2*time.Second, 5*time.Millisecond)
}

func TestOriginCheck(t *testing.T) {
	srv, _, _ := newServer(t, []string{"http://dashboard.local"})
	url := "ws" + strings.TrimPrefix(srv.URL, "http")

	header := http.Header{}
	header.Set("Origin", "http://evil.example")
	_, resp, err := websocket.DefaultDialer.Dial(url, header)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	header.Set("Origin", "http://dashboard.local")
	conn, _, err := websocket.DefaultDialer.Dial(url, header)
	require.NoError(t, err)
	_ = conn.Close()
}

func TestSlowDeviceGetsCompleteOTAStream(t *testing.T) {
	reg := registry.New(nil)
	cache := state.New(nil)
	fw := memory.NewFirmwareRepository()
	rt := router.New(reg, cache, ingest.New(cache, reg, nil), ota.New(fw, reg, 0), fw, nil)
	srv := httptest.NewServer(ws.NewServer(rt, []string{"*"}, 16))
	t.Cleanup(srv.Close)

	const total = 20000
	var image strings.Builder
	for i := 0; i < total; i++ {
		fmt.Fprintf(&image, ":10%06d00000000000000000000000000000000\n", i)
	}
	require.NoError(t, fw.Put(context.Background(), &models.FirmwareRecord{
		Version: "v1",
		DataHex: hex.EncodeToString([]byte(image.String())),
	}))

	dev := dial(t, srv)
	require.NoError(t, dev.WriteMessage(websocket.TextMessage, []byte(`{"kind":"register","role":"device"}`)))
	dash := dial(t, srv)
	require.NoError(t, dash.WriteMessage(websocket.TextMessage, []byte(`{"kind":"register","role":"dashboard"}`)))
	require.Eventually(t, func() bool {
		return reg.Count(registry.RoleDevice) == 1 && reg.Count(registry.RoleDashboard) == 1
	}, 2*time.Second, 5*time.Millisecond)

	require.NoError(t, dash.WriteMessage(websocket.TextMessage, []byte(`{"kind":"ota-stream","version":"v1"}`)))
	time.Sleep(300 * time.Millisecond)

	chunks := 0
	for {
		msg := readKind(t, dev)
		if msg["kind"] == models.KindOTADone {
			break
		}
		require.Equal(t, models.KindOTAChunk, msg["kind"])
		require.Equal(t, float64(chunks), msg["index"])
		chunks++
	}
	assert.Equal(t, total, chunks)
}
