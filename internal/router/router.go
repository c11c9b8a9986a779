// FilePath: internal/router/router.go
package router

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"

	"github.com/itsatony/emhub/internal/ingest"
	"github.com/itsatony/emhub/internal/models"
	"github.com/itsatony/emhub/internal/ota"
	"github.com/itsatony/emhub/internal/registry"
	"github.com/itsatony/emhub/internal/repository"
	"github.com/itsatony/emhub/internal/state"
	nuts "github.com/vaudience/go-nuts"
)

// kindAlias maps legacy wire names onto canonical kinds. A non-empty
// granularity is implied by the alias.
type kindAlias struct {
	kind        string
	granularity models.Granularity
}

var kindAliases = map[string]kindAlias{
	"firmware-versions":         {kind: models.KindCatalogRequest},
	"ota":                       {kind: models.KindOTAStart},
	"ota-upload":                {kind: models.KindOTAStream},
	"sync-request":              {kind: models.KindSnapshotRequest},
	"get-real-time-data-hourly": {kind: models.KindHistoryRequest, granularity: models.GranularityHourly},
	"get-real-time-data-daily":  {kind: models.KindHistoryRequest, granularity: models.GranularityDaily},
	"DataFromESP32":             {kind: models.KindReading},
}

type handlerFunc func(ctx context.Context, conn registry.Conn, env *models.Envelope)

// Router dispatches inbound channel messages by (role, kind).
type Router struct {
	registry *registry.Registry
	cache    *state.Cache
	ingest   *ingest.Adapter
	streamer *ota.Streamer
	firmware repository.FirmwareRepository
	history  repository.HistoryRepository

	handlers map[registry.Role]map[string]handlerFunc
}

// New wires a Router. history may be nil.
func New(
	reg *registry.Registry,
	cache *state.Cache,
	adapter *ingest.Adapter,
	streamer *ota.Streamer,
	firmware repository.FirmwareRepository,
	history repository.HistoryRepository,
) *Router {
	r := &Router{
		registry: reg,
		cache:    cache,
		ingest:   adapter,
		streamer: streamer,
		firmware: firmware,
		history:  history,
	}
	r.handlers = map[registry.Role]map[string]handlerFunc{
		registry.RoleDashboard: {
			models.KindCatalogRequest:  r.handleCatalogRequest,
			models.KindOTAStart:        r.handleOTAStart,
			models.KindOTAStream:       r.handleOTAStream,
			models.KindSnapshotRequest: r.handleSnapshotRequest,
			models.KindHistoryRequest:  r.handleHistoryRequest,
		},
		registry.RoleDevice: {
			models.KindReading: r.handleReading,
		},
	}
	return r
}

// Connect tracks a new connection with no role.
func (r *Router) Connect(conn registry.Conn) {
	r.registry.Track(conn)
}

// Disconnect unregisters conn. When the last device leaves, a running OTA
// session is abandoned.
func (r *Router) Disconnect(conn registry.Conn) {
	role := r.registry.Unregister(conn)
	if role != registry.RoleDevice || r.registry.Count(registry.RoleDevice) > 0 {
		return
	}
	if r.streamer.CancelActive() {
		nuts.L.Warnf("[Router] Last device %s left, OTA session abandoned", conn.ID())
	}
}

// Handle processes one raw message from conn. Malformed or unroutable input
// is logged and dropped.
func (r *Router) Handle(ctx context.Context, conn registry.Conn, raw []byte) {
	env, err := Decode(raw)
	if err != nil {
		nuts.L.Warnf("[Router] Dropping malformed message from %s: %v", conn.ID(), err)
		return
	}

	if env.Kind == models.KindRegister {
		role, ok := registry.ParseRole(env.RoleHint)
		if !ok {
			nuts.L.Warnf("[Router] Connection %s sent register with unknown role %q", conn.ID(), env.RoleHint)
			return
		}
		if err := r.registry.Register(conn, role); err != nil {
			nuts.L.Errorf("[Router] Failed to register %s: %v", conn.ID(), err)
		}
		return
	}

	if env.RoleHint != "" {
		if role, ok := registry.ParseRole(env.RoleHint); ok {
			r.registry.RegisterHint(conn, role)
		}
	}

	role := r.registry.RoleOf(conn)
	if role == registry.RoleUnset {
		nuts.L.Warnf("[Router] Dropping %q from unregistered connection %s", env.Kind, conn.ID())
		return
	}
	handler, ok := r.handlers[role][env.Kind]
	if !ok {
		nuts.L.Warnf("[Router] Unknown %s message kind %q from %s", role, env.Kind, conn.ID())
		return
	}
	handler(ctx, conn, env)
}

// Decode parses raw into an Envelope, resolving legacy field and kind names.
func Decode(raw []byte) (*models.Envelope, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var fields map[string]any
	if err := dec.Decode(&fields); err != nil {
		return nil, err
	}
	if fields == nil {
		return nil, errors.New("message is not an object")
	}

	env := &models.Envelope{
		Kind:     firstString(fields, "kind", "type"),
		RoleHint: firstString(fields, "role", "clientType"),
		Version:  firstString(fields, "version"),
		Fields:   fields,
	}
	env.Granularity = models.Granularity(strings.ToLower(firstString(fields, "granularity")))
	if alias, ok := kindAliases[env.Kind]; ok {
		env.Kind = alias.kind
		if alias.granularity != "" {
			env.Granularity = alias.granularity
		}
	}
	return env, nil
}

func firstString(fields map[string]any, keys ...string) string {
	for _, k := range keys {
		if s, ok := fields[k].(string); ok && s != "" {
			return strings.TrimSpace(s)
		}
	}
	return ""
}

func reply(conn registry.Conn, msg any) {
	if err := registry.SendTo(conn, msg); err != nil {
		nuts.L.Warnf("[Router] Reply to %s failed: %v", conn.ID(), err)
	}
}
