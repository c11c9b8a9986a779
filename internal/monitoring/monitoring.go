package monitoring

import (
	"context"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/itsatony/emhub/internal/cleanup"
	"github.com/itsatony/emhub/internal/ingest"
	"github.com/itsatony/emhub/internal/models"
	"github.com/itsatony/emhub/internal/ota"
	"github.com/itsatony/emhub/internal/registry"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/disk"
	"github.com/shirou/gopsutil/v3/mem"
	"github.com/shirou/gopsutil/v3/process"
	nuts "github.com/vaudience/go-nuts"
)

const (
	defaultMaxEvents = 2048
	pingTimeout      = 2 * time.Second
)

// Config holds monitoring configuration
type Config struct {
	// MaxEvents bounds the in-memory event log.
	MaxEvents int
	// DiskPath is the filesystem reported in system stats.
	DiskPath string
}

// Pinger is a backend that can report its reachability.
type Pinger interface {
	Ping(ctx context.Context) error
}

type event struct {
	name   string
	labels map[string]string
	at     time.Time
}

// Service records hub events and reports health
type Service struct {
	config  Config
	started time.Time

	mu       sync.Mutex
	events   []event
	totals   map[string]int64
	backends map[string]Pinger

	registry *registry.Registry
	streamer *ota.Streamer
}

// NewService creates a new monitoring service
func NewService(config Config) *Service {
	if config.MaxEvents <= 0 {
		config.MaxEvents = defaultMaxEvents
	}
	if config.DiskPath == "" {
		config.DiskPath = "/"
	}
	return &Service{
		config:   config,
		started:  time.Now(),
		totals:   make(map[string]int64),
		backends: make(map[string]Pinger),
	}
}

// RecordEvent records a monitored event with labels
func (s *Service) RecordEvent(eventName string, labels map[string]string) {
	s.mu.Lock()
	s.totals[eventName]++
	s.events = append(s.events, event{name: eventName, labels: labels, at: time.Now()})
	if over := len(s.events) - s.config.MaxEvents; over > 0 {
		s.events = append(s.events[:0], s.events[over:]...)
	}
	s.mu.Unlock()

	nuts.L.Infof("[Monitoring] Event %s recorded with labels: %v", eventName, labels)
}

// GetEventMetrics counts events of eventType seen within duration. The
// "total" key holds the overall count; every label adds a "key=value" bucket.
func (s *Service) GetEventMetrics(eventType string, duration time.Duration) (map[string]int64, error) {
	since := time.Now().Add(-duration)
	out := map[string]int64{"total": 0}

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, e := range s.events {
		if e.name != eventType || e.at.Before(since) {
			continue
		}
		out["total"]++
		for k, v := range e.labels {
			out[k+"="+v]++
		}
	}
	return out, nil
}

// Totals returns lifetime counts per event name.
func (s *Service) Totals() map[string]int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]int64, len(s.totals))
	for k, v := range s.totals {
		out[k] = v
	}
	return out
}

// AddBackend includes a backend in health checks.
func (s *Service) AddBackend(name string, p Pinger) {
	s.mu.Lock()
	s.backends[name] = p
	s.mu.Unlock()
}

// WatchRegistry counts connection registrations and departures.
func (s *Service) WatchRegistry(reg *registry.Registry) {
	s.registry = reg
	handler := func(event string) func(string, registry.Role) {
		return func(connID string, role registry.Role) {
			s.RecordEvent(event, map[string]string{"role": string(role)})
		}
	}
	reg.On(registry.EventRegistered, "monitoring", handler(registry.EventRegistered))
	reg.On(registry.EventUnregistered, "monitoring", handler(registry.EventUnregistered))
}

// WatchOTA counts OTA session outcomes.
func (s *Service) WatchOTA(streamer *ota.Streamer) {
	s.streamer = streamer
	for _, name := range []string{ota.EventStarted, ota.EventCompleted, ota.EventCancelled, ota.EventFailed} {
		event := name
		streamer.On(event, "monitoring", func(session *ota.Session) {
			s.RecordEvent(event, map[string]string{"version": session.Version})
		})
	}
}

// WatchIngest counts committed readings.
func (s *Service) WatchIngest(adapter *ingest.Adapter) {
	adapter.OnSnapshot("monitoring", func(models.Reading) {
		s.mu.Lock()
		s.totals[ingest.EventSnapshotUpdated]++
		s.mu.Unlock()
	})
}

// WatchCleanup counts retention runs.
func (s *Service) WatchCleanup(svc *cleanup.CleanupService) {
	svc.OnCleanup("monitoring", func(removed int64) {
		s.mu.Lock()
		s.totals[cleanup.EventHistoryPruned] += removed
		s.mu.Unlock()
	})
}

// SystemStats is a point-in-time view of the host and the hub process.
type SystemStats struct {
	CPULoad      float64 `json:"cpu_load"`
	RAMUsedMB    float64 `json:"ram_used_mb"`
	RAMTotalMB   float64 `json:"ram_total_mb"`
	ProcessRSSMB float64 `json:"process_rss_mb"`
	DiskUsedGB   float64 `json:"disk_used_gb"`
	DiskTotalGB  float64 `json:"disk_total_gb"`
}

// CollectSystemStats reads host statistics. Individual read failures are
// logged and leave their fields zero.
func (s *Service) CollectSystemStats(ctx context.Context) *SystemStats {
	stats := &SystemStats{}

	// A zero interval compares against the previous call and does not block.
	if pct, err := cpu.PercentWithContext(ctx, 0, false); err == nil && len(pct) > 0 {
		stats.CPULoad = pct[0]
	} else if err != nil {
		nuts.L.Warnf("[Monitoring] CPU stats unavailable: %v", err)
	}

	if vm, err := mem.VirtualMemoryWithContext(ctx); err == nil {
		stats.RAMUsedMB = float64(vm.Total-vm.Available) / 1024 / 1024
		stats.RAMTotalMB = float64(vm.Total) / 1024 / 1024
	} else {
		nuts.L.Warnf("[Monitoring] Memory stats unavailable: %v", err)
	}

	if p, err := process.NewProcessWithContext(ctx, int32(os.Getpid())); err == nil {
		if mi, err := p.MemoryInfoWithContext(ctx); err == nil {
			stats.ProcessRSSMB = float64(mi.RSS) / 1024 / 1024
		}
	}

	if du, err := disk.UsageWithContext(ctx, s.config.DiskPath); err == nil {
		stats.DiskUsedGB = float64(du.Used) / 1024 / 1024 / 1024
		stats.DiskTotalGB = float64(du.Total) / 1024 / 1024 / 1024
	} else {
		nuts.L.Warnf("[Monitoring] Disk stats unavailable: %v", err)
	}
	return stats
}

// OTAStatus describes the running firmware stream, if any.
type OTAStatus struct {
	SessionID string    `json:"session_id"`
	Version   string    `json:"version"`
	Total     int       `json:"total"`
	Sent      int       `json:"sent"`
	Percent   float64   `json:"percent"`
	StartedAt time.Time `json:"started_at"`
}

// HealthReport is the body of the health endpoint.
type HealthReport struct {
	Status      string            `json:"status"`
	Version     string            `json:"version"`
	Uptime      string            `json:"uptime"`
	Connections *registry.Stats   `json:"connections,omitempty"`
	OTA         *OTAStatus        `json:"ota,omitempty"`
	Backends    map[string]string `json:"backends"`
	Events      map[string]int64  `json:"events"`
	System      *SystemStats      `json:"system"`
}

// Health pings every backend and gathers the report. Status is "degraded"
// when any backend fails.
func (s *Service) Health(ctx context.Context) *HealthReport {
	report := &HealthReport{
		Status:   "ok",
		Version:  nuts.GetVersion(),
		Uptime:   time.Since(s.started).Round(time.Second).String(),
		Backends: map[string]string{},
		Events:   s.Totals(),
		System:   s.CollectSystemStats(ctx),
	}

	if s.registry != nil {
		stats := s.registry.Stats()
		report.Connections = &stats
	}
	if s.streamer != nil {
		if session := s.streamer.Active(); session != nil {
			report.OTA = &OTAStatus{
				SessionID: session.ID,
				Version:   session.Version,
				Total:     session.Total,
				Sent:      session.Sent(),
				Percent:   session.Percent(),
				StartedAt: session.StartedAt,
			}
		}
	}

	s.mu.Lock()
	names := make([]string, 0, len(s.backends))
	for name := range s.backends {
		names = append(names, name)
	}
	backends := make(map[string]Pinger, len(s.backends))
	for k, v := range s.backends {
		backends[k] = v
	}
	s.mu.Unlock()
	sort.Strings(names)

	var failed []string
	for _, name := range names {
		pctx, cancel := context.WithTimeout(ctx, pingTimeout)
		err := backends[name].Ping(pctx)
		cancel()
		if err != nil {
			report.Backends[name] = err.Error()
			failed = append(failed, name)
			continue
		}
		report.Backends[name] = "ok"
	}
	if len(failed) > 0 {
		report.Status = "degraded"
		nuts.L.Warnf("[Monitoring] Unhealthy backends: %s", strings.Join(failed, ", "))
	}
	return report
}
