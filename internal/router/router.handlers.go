package router

import (
	"context"
	"errors"

	"github.com/itsatony/emhub/internal/ingest"
	"github.com/itsatony/emhub/internal/models"
	"github.com/itsatony/emhub/internal/ota"
	"github.com/itsatony/emhub/internal/registry"
	"github.com/itsatony/emhub/internal/repository"
	nuts "github.com/vaudience/go-nuts"
)

func (r *Router) handleCatalogRequest(ctx context.Context, conn registry.Conn, _ *models.Envelope) {
	versions, err := r.firmware.List(ctx)
	if err != nil {
		nuts.L.Errorf("[Router] Failed to list firmware: %v", err)
		reply(conn, models.CatalogMessage{
			Kind:     models.KindCatalog,
			Success:  false,
			Versions: []models.FirmwareSummary{},
			Message:  "error fetching firmware versions",
		})
		return
	}
	reply(conn, models.CatalogMessage{Kind: models.KindCatalog, Success: true, Versions: versions})
}

// handleOTAStart announces an update to devices and dashboards once the
// version is known to exist.
func (r *Router) handleOTAStart(ctx context.Context, conn registry.Conn, env *models.Envelope) {
	if env.Version == "" {
		nuts.L.Warnf("[Router] ota-start from %s without version", conn.ID())
		return
	}
	if _, err := r.firmware.Get(ctx, env.Version); err != nil {
		logFirmwareError(env.Version, err)
		return
	}
	notice := models.OTAStartMessage{Kind: models.KindOTAStart, Version: env.Version}
	n, err := r.registry.Broadcast(notice, registry.RoleDevice, registry.RoleDashboard)
	if err != nil {
		nuts.L.Errorf("[Router] Failed to announce OTA %s: %v", env.Version, err)
		return
	}
	nuts.L.Infof("[Router] OTA start for %s announced to %d connections", env.Version, n)
}

func (r *Router) handleOTAStream(ctx context.Context, conn registry.Conn, env *models.Envelope) {
	if env.Version == "" {
		nuts.L.Warnf("[Router] ota-stream from %s without version", conn.ID())
		return
	}
	if _, err := r.streamer.Start(ctx, env.Version); err != nil {
		if errors.Is(err, ota.ErrSessionActive) || errors.Is(err, ota.ErrNotText) {
			nuts.L.Warnf("[Router] OTA %s refused: %v", env.Version, err)
			return
		}
		logFirmwareError(env.Version, err)
	}
}

func (r *Router) handleSnapshotRequest(_ context.Context, conn registry.Conn, _ *models.Envelope) {
	reply(conn, models.SnapshotMessage{Kind: models.KindSnapshot, Data: r.cache.Snapshot()})
}

func (r *Router) handleHistoryRequest(ctx context.Context, conn registry.Conn, env *models.Envelope) {
	granularity := env.Granularity
	if !granularity.Valid() {
		granularity = models.GranularityHourly
	}
	msg := models.HistoryMessage{Kind: models.KindHistory, Granularity: granularity, Rows: []models.HistoryRow{}}
	if r.history == nil {
		msg.Success = true
		reply(conn, msg)
		return
	}
	rows, err := r.history.ReadAll(ctx)
	if err != nil {
		nuts.L.Errorf("[Router] Failed to read history: %v", err)
		msg.Message = "error fetching history"
		reply(conn, msg)
		return
	}
	msg.Success = true
	msg.Rows = rows
	reply(conn, msg)
}

func (r *Router) handleReading(ctx context.Context, conn registry.Conn, env *models.Envelope) {
	r.ingest.Submit(ctx, env.Fields, ingest.Source{
		Transport: ingest.TransportChannel,
		Address:   conn.RemoteAddr(),
	})
}

func logFirmwareError(version string, err error) {
	if errors.Is(err, repository.ErrNotFound) {
		nuts.L.Warnf("[Router] Firmware version %s not found", version)
		return
	}
	nuts.L.Errorf("[Router] Failed to load firmware %s: %v", version, err)
}
