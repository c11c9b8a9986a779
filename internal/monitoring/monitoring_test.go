package monitoring_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/itsatony/emhub/internal/monitoring"
	"github.com/itsatony/emhub/internal/registry"
	"github.com/itsatony/emhub/internal/registry/registrytest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type pinger struct{ err error }

func (p pinger) Ping(context.Context) error { return p.err }

func TestEventMetrics(t *testing.T) {
	svc := monitoring.NewService(monitoring.Config{MaxEvents: 3})
	svc.RecordEvent("ota.started", map[string]string{"version": "v1"})
	svc.RecordEvent("ota.started", map[string]string{"version": "v2"})
	svc.RecordEvent("ota.completed", map[string]string{"version": "v1"})

	m, err := svc.GetEventMetrics("ota.started", time.Minute)
	require.NoError(t, err)
	assert.Equal(t, int64(2), m["total"])
	assert.Equal(t, int64(1), m["version=v1"])

	// the oldest entry falls out of the bounded log, totals keep counting
	svc.RecordEvent("ota.completed", nil)
	m, _ = svc.GetEventMetrics("ota.started", time.Minute)
	assert.Equal(t, int64(1), m["total"])
	assert.Equal(t, int64(2), svc.Totals()["ota.started"])
}

func TestWatchRegistry(t *testing.T) {
	svc := monitoring.NewService(monitoring.Config{})
	reg := registry.New(nil)
	svc.WatchRegistry(reg)

	c := registrytest.NewConn("c", "10.0.0.1:1")
	require.NoError(t, reg.Register(c, registry.RoleDevice))
	reg.Unregister(c)

	require.Eventually(t, func() bool {
		totals := svc.Totals()
		return totals[registry.EventRegistered] == 1 && totals[registry.EventUnregistered] == 1
	}, time.Second, 5*time.Millisecond)
}

func TestHealthReportsDegradedBackend(t *testing.T) {
	svc := monitoring.NewService(monitoring.Config{})
	reg := registry.New(nil)
	svc.WatchRegistry(reg)
	require.NoError(t, reg.Register(registrytest.NewConn("d", "10.0.0.1:1"), registry.RoleDashboard))

	svc.AddBackend("redis", pinger{})
	report := svc.Health(context.Background())
	assert.Equal(t, "ok", report.Status)
	assert.Equal(t, "ok", report.Backends["redis"])
	require.NotNil(t, report.Connections)
	assert.Equal(t, 1, report.Connections.Dashboards)
	assert.NotNil(t, report.System)
	assert.Nil(t, report.OTA)

	svc.AddBackend("influx", pinger{err: errors.New("connection refused")})
	report = svc.Health(context.Background())
	assert.Equal(t, "degraded", report.Status)
	assert.Equal(t, "connection refused", report.Backends["influx"])
}
