package router

import (
	"context"
	"encoding/hex"
	"testing"
	"time"

	"github.com/itsatony/emhub/internal/ingest"
	"github.com/itsatony/emhub/internal/models"
	"github.com/itsatony/emhub/internal/ota"
	"github.com/itsatony/emhub/internal/registry"
	"github.com/itsatony/emhub/internal/registry/registrytest"
	"github.com/itsatony/emhub/internal/repository/memory"
	"github.com/itsatony/emhub/internal/state"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type harness struct {
	router   *Router
	registry *registry.Registry
	cache    *state.Cache
	firmware *memory.FirmwareRepo
	history  *memory.HistoryRepo
	streamer *ota.Streamer
}

func newHarness(delay time.Duration) *harness {
	reg := registry.New(nil)
	cache := state.New(nil)
	fw := memory.NewFirmwareRepository()
	hist := memory.NewHistoryRepository()
	streamer := ota.New(fw, reg, delay)
	adapter := ingest.New(cache, reg, hist)
	return &harness{
		router:   New(reg, cache, adapter, streamer, fw, hist),
		registry: reg,
		cache:    cache,
		firmware: fw,
		history:  hist,
		streamer: streamer,
	}
}

func (h *harness) conn(id string) *registrytest.Conn {
	c := registrytest.NewConn(id, "192.168.4.20:51000")
	h.router.Connect(c)
	return c
}

func (h *harness) send(c registry.Conn, raw string) {
	h.router.Handle(context.Background(), c, []byte(raw))
}

func (h *harness) putFirmware(t *testing.T, version, text string) {
	t.Helper()
	require.NoError(t, h.firmware.Put(context.Background(), &models.FirmwareRecord{
		Version:    version,
		DataHex:    hex.EncodeToString([]byte(text)),
		UploadDate: time.Now(),
	}))
}

func TestDecodeResolvesLegacyNames(t *testing.T) {
	env, err := Decode([]byte(`{"type":"get-real-time-data-daily","clientType":"frontend"}`))
	require.NoError(t, err)
	assert.Equal(t, models.KindHistoryRequest, env.Kind)
	assert.Equal(t, models.GranularityDaily, env.Granularity)
	assert.Equal(t, "frontend", env.RoleHint)

	env, err = Decode([]byte(`{"kind":"ota","version":"v2"}`))
	require.NoError(t, err)
	assert.Equal(t, models.KindOTAStart, env.Kind)
	assert.Equal(t, "v2", env.Version)

	_, err = Decode([]byte(`null`))
	assert.Error(t, err)
	_, err = Decode([]byte(`{not json`))
	assert.Error(t, err)
}

func TestMalformedInputIsDropped(t *testing.T) {
	h := newHarness(0)
	c := h.conn("c")
	assert.NotPanics(t, func() {
		h.send(c, `{"kind":`)
		h.send(c, `[1,2,3]`)
		h.send(c, ``)
	})
	assert.Equal(t, registry.RoleUnset, h.registry.RoleOf(c))
	assert.Empty(t, c.Messages())
}

func TestRegisterPerformsNoFurtherAction(t *testing.T) {
	h := newHarness(0)
	c := h.conn("c")
	h.send(c, `{"kind":"register","role":"dashboard"}`)
	assert.Equal(t, registry.RoleDashboard, h.registry.RoleOf(c))
	assert.Empty(t, c.Messages())
}

func TestUnsetRoleRoutesNowhere(t *testing.T) {
	h := newHarness(0)
	c := h.conn("c")
	h.send(c, `{"kind":"snapshot-request"}`)
	h.send(c, `{"kind":"reading","temperature":30}`)
	assert.Empty(t, c.Messages())
	assert.Equal(t, 0.0, h.cache.Snapshot().Temperature)
}

func TestImplicitHintRegistersAndDispatches(t *testing.T) {
	h := newHarness(0)
	c := h.conn("c")
	h.send(c, `{"type":"sync-request","clientType":"frontend"}`)
	assert.Equal(t, registry.RoleDashboard, h.registry.RoleOf(c))
	assert.Equal(t, []string{models.KindSnapshot}, c.Kinds())
}

func TestRoleExclusivity(t *testing.T) {
	h := newHarness(0)
	dev := h.conn("dev")
	dash := h.conn("dash")
	h.send(dev, `{"kind":"register","role":"device"}`)
	h.send(dash, `{"kind":"register","role":"dashboard"}`)

	// conflicting hints never move a connection into the other table
	h.send(dev, `{"kind":"snapshot-request","role":"dashboard"}`)
	h.send(dev, `{"kind":"catalog-request","clientType":"frontend"}`)
	assert.Empty(t, dev.Messages())
	assert.Equal(t, registry.RoleDevice, h.registry.RoleOf(dev))

	h.send(dash, `{"kind":"reading","temperature":99,"role":"device"}`)
	assert.Equal(t, 0.0, h.cache.Snapshot().Temperature)
	assert.Equal(t, registry.RoleDashboard, h.registry.RoleOf(dash))
}

func TestUnknownKindIsIgnored(t *testing.T) {
	h := newHarness(0)
	dash := h.conn("dash")
	h.send(dash, `{"kind":"register","role":"dashboard"}`)
	h.send(dash, `{"kind":"self-destruct"}`)
	assert.Empty(t, dash.Messages())
}

func TestReadingThenSnapshotScenario(t *testing.T) {
	h := newHarness(0)
	dev := h.conn("dev")
	dash := h.conn("dash")
	h.send(dev, `{"kind":"register","role":"device"}`)
	h.send(dash, `{"kind":"register","role":"dashboard"}`)

	h.send(dev, `{"kind":"reading","temperature":24.5}`)
	snap := h.cache.Snapshot()
	assert.Equal(t, 24.5, snap.Temperature)
	assert.Equal(t, 0.0, snap.Humidity)
	assert.Equal(t, 0.0, snap.Pressure)
	assert.Equal(t, 0.0, snap.Gas1)

	dash.Reset()
	h.send(dash, `{"kind":"snapshot-request"}`)
	msgs := dash.Messages()
	require.Len(t, msgs, 1)
	data := msgs[0]["data"].(map[string]any)
	assert.Equal(t, 24.5, data["temperature"])
	assert.Equal(t, 0.0, data["humidity"])
	assert.Equal(t, 0.0, data["gas4"])

	require.Eventually(t, func() bool { return h.history.Len() == 1 }, time.Second, 5*time.Millisecond)
}

func TestLegacyDeviceReading(t *testing.T) {
	h := newHarness(0)
	dev := h.conn("dev")
	h.send(dev, `{"type":"DataFromESP32","clientType":"esp32","Temperature":"21.5","ADC_Value":[10,20,30,40],"EtOH1":1}`)
	snap := h.cache.Snapshot()
	assert.Equal(t, 21.5, snap.Temperature)
	assert.Equal(t, 1.0, snap.Gas1)
	assert.Equal(t, 20.0, snap.Gas2)
	assert.Equal(t, 40.0, snap.Gas4)
}

func TestCatalogRequest(t *testing.T) {
	h := newHarness(0)
	h.putFirmware(t, "v1.0.0", "a\n")
	dash := h.conn("dash")
	h.send(dash, `{"kind":"register","role":"dashboard"}`)
	h.send(dash, `{"kind":"catalog-request"}`)

	msgs := dash.Messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, models.KindCatalog, msgs[0]["kind"])
	assert.Equal(t, true, msgs[0]["success"])
	versions := msgs[0]["versions"].([]any)
	require.Len(t, versions, 1)
	assert.Equal(t, "v1.0.0", versions[0].(map[string]any)["version"])
	assert.NotContains(t, versions[0].(map[string]any), "data_hex")
}

func TestOTAStartForMissingVersionSendsNothing(t *testing.T) {
	h := newHarness(0)
	dev := h.conn("dev")
	dash := h.conn("dash")
	h.send(dev, `{"kind":"register","role":"device"}`)
	h.send(dash, `{"kind":"register","role":"dashboard"}`)

	h.send(dash, `{"kind":"ota-start","version":"v9.9.9"}`)
	h.send(dash, `{"kind":"ota-stream","version":"v9.9.9"}`)

	assert.Empty(t, dev.Messages())
	assert.Empty(t, dash.Messages())
	assert.Nil(t, h.streamer.Active())
}

func TestOTAStartAnnouncesToEveryone(t *testing.T) {
	h := newHarness(0)
	h.putFirmware(t, "v2", "a\n")
	dev := h.conn("dev")
	dash := h.conn("dash")
	h.send(dev, `{"kind":"register","role":"device"}`)
	h.send(dash, `{"kind":"register","role":"dashboard"}`)

	h.send(dash, `{"kind":"ota-start","version":"v2"}`)
	assert.Equal(t, []string{models.KindOTAStart}, dev.Kinds())
	assert.Equal(t, []string{models.KindOTAStart}, dash.Kinds())
	assert.Equal(t, "v2", dev.Messages()[0]["version"])
}

func TestOTAStreamRunsInBackground(t *testing.T) {
	h := newHarness(0)
	h.putFirmware(t, "v3", "l1\nl2\nl3\n")
	dev := h.conn("dev")
	dash := h.conn("dash")
	h.send(dev, `{"kind":"register","role":"device"}`)
	h.send(dash, `{"kind":"register","role":"dashboard"}`)

	h.send(dash, `{"kind":"ota-stream","version":"v3"}`)
	require.Eventually(t, func() bool { return dev.CountKind(models.KindOTADone) == 1 }, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, 3, dev.CountKind(models.KindOTAChunk))
	assert.Equal(t, 3, dash.CountKind(models.KindOTAChunk))
	assert.Equal(t, 0, dash.CountKind(models.KindOTADone))
}

func TestHistoryRequest(t *testing.T) {
	h := newHarness(0)
	require.NoError(t, h.history.Append(context.Background(), models.Reading{Time: "t1", Temperature: 20}))
	dash := h.conn("dash")
	h.send(dash, `{"kind":"register","role":"dashboard"}`)
	h.send(dash, `{"kind":"history-request","granularity":"daily"}`)

	msgs := dash.Messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, models.KindHistory, msgs[0]["kind"])
	assert.Equal(t, "daily", msgs[0]["granularity"])
	assert.Len(t, msgs[0]["rows"].([]any), 1)
}

func TestLastDeviceLeavingCancelsOTA(t *testing.T) {
	h := newHarness(time.Hour)
	h.putFirmware(t, "v4", "a\nb\n")
	dev := h.conn("dev")
	dash := h.conn("dash")
	h.send(dev, `{"kind":"register","role":"device"}`)
	h.send(dash, `{"kind":"register","role":"dashboard"}`)

	h.send(dash, `{"kind":"ota-stream","version":"v4"}`)
	session := h.streamer.Active()
	require.NotNil(t, session)

	dev.Close()
	h.router.Disconnect(dev)

	select {
	case <-session.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("session was not cancelled")
	}
	assert.True(t, session.Cancelled())
	assert.Equal(t, registry.RoleUnset, h.registry.RoleOf(dev))
}
