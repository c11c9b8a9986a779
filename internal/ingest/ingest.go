// FilePath: internal/ingest/ingest.go
package ingest

import (
	"context"
	"time"

	"github.com/itsatony/emhub/internal/models"
	"github.com/itsatony/emhub/internal/registry"
	"github.com/itsatony/emhub/internal/repository"
	"github.com/itsatony/emhub/internal/state"
	nuts "github.com/vaudience/go-nuts"
)

// EventSnapshotUpdated is emitted with the new models.Reading after every
// committed update.
const EventSnapshotUpdated = "snapshot.updated"

const persistTimeout = 10 * time.Second

// Transport identifies how a reading reached the hub.
type Transport string

const (
	TransportChannel Transport = "channel"
	TransportOneShot Transport = "oneshot"
	TransportMQTT    Transport = "mqtt"
)

// Source describes the origin of a payload. Address is the transport-level
// peer address, if any.
type Source struct {
	Transport Transport
	Address   string
}

// Adapter normalizes readings and commits them.
type Adapter struct {
	cache    *state.Cache
	registry *registry.Registry
	history  repository.HistoryRepository
	events   *nuts.EventEmitter
	now      func() time.Time
}

// New creates an Adapter. history may be nil.
func New(cache *state.Cache, reg *registry.Registry, history repository.HistoryRepository) *Adapter {
	return &Adapter{
		cache:    cache,
		registry: reg,
		history:  history,
		events:   nuts.NewEventEmitter(),
		now:      time.Now,
	}
}

// Normalize resolves every canonical field of payload through its alias list.
// A missing time becomes now, formatted RFC 3339 in UTC.
func Normalize(payload map[string]any, now time.Time) models.ReadingUpdate {
	u := models.ReadingUpdate{
		Time:        resolveString(payload, timeAliases),
		Temperature: resolveNumber(payload, temperatureAliases),
		Humidity:    resolveNumber(payload, humidityAliases),
		Pressure:    resolveNumber(payload, pressureAliases),
	}
	for i := range u.Gas {
		u.Gas[i] = resolveNumber(payload, gasAliases[i])
	}
	if u.Time == nil {
		ts := now.UTC().Format(time.RFC3339)
		u.Time = &ts
	}
	return u
}

// Submit normalizes payload, commits it to the cache, fans the snapshot out
// to dashboards and hands the reading to the history store in the background.
func (a *Adapter) Submit(ctx context.Context, payload map[string]any, src Source) models.Reading {
	update := Normalize(payload, a.now())
	reading := a.cache.Apply(ctx, update)

	a.recordAddress(ctx, payload, src)

	if _, err := a.registry.Broadcast(models.SnapshotMessage{Kind: models.KindSnapshot, Data: reading}, registry.RoleDashboard); err != nil {
		nuts.L.Errorf("[Ingest] Failed to fan out snapshot: %v", err)
	}
	if err := a.events.Emit(EventSnapshotUpdated, reading); err != nil {
		nuts.L.Warnf("[Ingest] %s listener failed: %v", EventSnapshotUpdated, err)
	}

	if a.history != nil {
		go a.persist(reading)
	}
	return reading
}

// recordAddress applies the device address precedence: an explicit payload
// field, then the peer address of a one-shot call. Channel peer addresses are
// tracked by the registry itself.
func (a *Adapter) recordAddress(ctx context.Context, payload map[string]any, src Source) {
	if addr := resolveString(payload, addressAliases); addr != nil {
		a.registry.RecordOneShotAddress(ctx, *addr)
		return
	}
	if src.Transport == TransportOneShot && src.Address != "" {
		a.registry.RecordOneShotAddress(ctx, src.Address)
	}
}

func (a *Adapter) persist(r models.Reading) {
	ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
	defer cancel()
	if err := a.history.Append(ctx, r); err != nil {
		nuts.L.Errorf("[Ingest] Failed to persist reading %s: %v", r.Time, err)
	}
}

// OnSnapshot registers a callback for committed readings.
func (a *Adapter) OnSnapshot(handlerID string, handler func(models.Reading)) {
	a.events.On(EventSnapshotUpdated, handlerID, func(args ...interface{}) {
		if len(args) > 0 {
			if r, ok := args[0].(models.Reading); ok {
				handler(r)
			}
		}
	})
}
