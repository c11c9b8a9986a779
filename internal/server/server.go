// FilePath: internal/server/server.go
package server

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/itsatony/emhub/api"
	"github.com/itsatony/emhub/internal/cleanup"
	"github.com/itsatony/emhub/internal/config"
	"github.com/itsatony/emhub/internal/database"
	"github.com/itsatony/emhub/internal/devicectl"
	"github.com/itsatony/emhub/internal/hubservice"
	"github.com/itsatony/emhub/internal/ingest"
	"github.com/itsatony/emhub/internal/monitoring"
	"github.com/itsatony/emhub/internal/mqttbridge"
	"github.com/itsatony/emhub/internal/ota"
	"github.com/itsatony/emhub/internal/registry"
	"github.com/itsatony/emhub/internal/repository"
	"github.com/itsatony/emhub/internal/repository/files"
	"github.com/itsatony/emhub/internal/repository/influx"
	"github.com/itsatony/emhub/internal/repository/memory"
	"github.com/itsatony/emhub/internal/repository/postgres"
	"github.com/itsatony/emhub/internal/repository/redis"
	"github.com/itsatony/emhub/internal/repository/timescale"
	"github.com/itsatony/emhub/internal/router"
	"github.com/itsatony/emhub/internal/state"
	"github.com/itsatony/emhub/internal/transport/ws"
	nuts "github.com/vaudience/go-nuts"
)

// Server represents our HTTP server
type Server struct {
	config     *config.Config
	srv        *http.Server
	hubservice *hubservice.HubService
	monitoring *monitoring.Service
	channel    *ws.Server
	bridge     *mqttbridge.Bridge
	closers    []io.Closer
}

// New creates a new server instance
func New(cfg *config.Config) *Server {
	srv := &http.Server{
		Addr:        fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		ReadTimeout: cfg.Server.ReadTimeout,
		// No WriteTimeout: /ws connections are long-lived.
	}

	return &Server{
		config: cfg,
		srv:    srv,
	}
}

// Start wires every component, begins listening and blocks until a
// termination signal arrives.
func (s *Server) Start() error {
	ctx := context.Background()

	s.monitoring = monitoring.NewService(monitoring.Config{})
	s.initializeHubService(ctx)

	// Set up cleanup event handlers
	s.setupCleanupHandlers()
	s.hubservice.Cleanup.Start(ctx)

	if s.config.MQTT.Enabled {
		s.bridge = mqttbridge.New(s.config.MQTT, s.hubservice.Ingest)
		if err := s.bridge.Start(); err != nil {
			nuts.L.Errorf("[Server] MQTT bridge unavailable: %v", err)
			s.bridge = nil
		}
	}

	s.srv.Handler = api.NewRouter(s.hubservice, s.monitoring, api.Options{
		AllowedOrigins:  s.config.Server.AllowedOrigins,
		MaxFirmwareSize: s.config.Firmware.MaxFileSize,
		Channel:         s.channel,
	})

	// Start server
	go func() {
		nuts.L.Infof("[Server] Starting server on %s", s.srv.Addr)
		if err := s.srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			nuts.L.Errorf("[Server] Error starting server: %v", err)
			os.Exit(1)
		}
	}()

	return s.waitForShutdown()
}

// waitForShutdown waits for interrupt signal and gracefully shuts down the server
func (s *Server) waitForShutdown() error {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	nuts.L.Infof("[Server] Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), s.config.Server.ShutdownTimeout)
	defer cancel()

	if s.hubservice.OTA.CancelActive() {
		nuts.L.Infof("[Server] Cancelled running OTA session")
	}
	s.channel.Shutdown()
	s.hubservice.Cleanup.Stop()
	if s.bridge != nil {
		s.bridge.Stop()
	}

	err := s.srv.Shutdown(ctx)

	for _, c := range s.closers {
		if cerr := c.Close(); cerr != nil {
			nuts.L.Warnf("[Server] Error closing backend: %v", cerr)
		}
	}
	if err != nil {
		return fmt.Errorf("error shutting down server: %w", err)
	}

	nuts.L.Infof("[Server] Server shut down successfully")
	return nil
}

func (s *Server) setupCleanupHandlers() {
	s.hubservice.Cleanup.OnCleanup("server", func(removed int64) {
		nuts.L.Infof("[Cleanup] Pruned %d history rows older than %s", removed, s.config.History.Retention)
	})
	s.monitoring.WatchCleanup(s.hubservice.Cleanup)
}

// initializeHubService creates the backends, the message core and the hub service
func (s *Server) initializeHubService(ctx context.Context) {
	cfg := s.config

	firmware := s.initFirmwareStore(cfg)
	history := s.initHistoryStore(cfg)

	var (
		addresses registry.AddressStore
		snapshots state.SnapshotStore
	)
	if cfg.Redis.Enabled {
		mirror, err := redis.NewMirror(ctx, cfg.Redis)
		if err != nil {
			nuts.L.Errorf("[Server] Redis mirror unavailable, state stays in memory: %v", err)
		} else {
			addresses, snapshots = mirror, mirror
			s.closers = append(s.closers, mirror)
			s.monitoring.AddBackend("redis", mirror)
		}
	}

	reg := registry.New(addresses)
	if err := reg.Restore(ctx); err != nil {
		nuts.L.Warnf("[Server] Could not restore device address: %v", err)
	}
	cache := state.New(snapshots)
	if err := cache.Restore(ctx); err != nil {
		nuts.L.Warnf("[Server] Could not restore snapshot: %v", err)
	}

	adapter := ingest.New(cache, reg, history)
	streamer := ota.New(firmware, reg, cfg.OTA.ChunkDelay)
	streamer.SetSendTimeout(cfg.OTA.SendTimeout)
	s.channel = ws.NewServer(
		router.New(reg, cache, adapter, streamer, firmware, history),
		cfg.Server.AllowedOrigins,
		cfg.Server.SendBuffer,
	)

	s.monitoring.WatchRegistry(reg)
	s.monitoring.WatchOTA(streamer)
	s.monitoring.WatchIngest(adapter)

	s.hubservice = hubservice.New(
		firmware, history, reg, cache, adapter, streamer,
		devicectl.New(reg, cfg.Device.Port, cfg.Device.Timeout),
		cleanup.New(history, cfg.History.Retention, cfg.History.CleanupInterval),
		hubservice.Options{MaxFirmwareSize: cfg.Firmware.MaxFileSize},
	)
	if err := s.hubservice.Validate(); err != nil {
		nuts.L.Fatalf("[Server] Invalid hub service: %v", err)
	}
}

func (s *Server) initFirmwareStore(cfg *config.Config) repository.FirmwareRepository {
	switch cfg.Firmware.Backend {
	case config.BackendFiles:
		repo, err := files.NewFirmwareRepository(files.FileConfig{BasePath: cfg.Firmware.BasePath})
		if err != nil {
			nuts.L.Fatalf("[Server] Failed to initialize firmware directory: %v", err)
		}
		nuts.L.Infof("[Server] Firmware stored under %s", cfg.Firmware.BasePath)
		return repo
	case config.BackendPostgres:
		appDB := s.initAppDB(cfg.Database.AppDB)
		repo, err := postgres.NewFirmwareRepository(appDB)
		if err != nil {
			nuts.L.Fatalf("[Server] Failed to initialize firmware table: %v", err)
		}
		return repo
	default:
		nuts.L.Infof("[Server] Firmware kept in memory")
		return memory.NewFirmwareRepository()
	}
}

func (s *Server) initHistoryStore(cfg *config.Config) repository.HistoryRepository {
	switch cfg.History.Backend {
	case config.BackendTimescale:
		tsdb := s.initTimescaleDB(cfg.Database.TimescaleDB)
		repo, err := timescale.NewHistoryRepository(tsdb, cfg.History.Retention)
		if err != nil {
			nuts.L.Fatalf("[Server] Failed to initialize readings hypertable: %v", err)
		}
		return repo
	case config.BackendInflux:
		client := influxdb2.NewClient(cfg.Influx.URL, cfg.Influx.Token)
		repo := influx.NewHistoryRepository(client, cfg.Influx.Org, cfg.Influx.Bucket)
		s.closers = append(s.closers, closerFunc(func() error {
			client.Close()
			return nil
		}))
		s.monitoring.AddBackend("influx", repo)
		return repo
	default:
		nuts.L.Infof("[Server] Reading history kept in memory")
		return memory.NewHistoryRepository()
	}
}

func (s *Server) initTimescaleDB(cfg config.PostgresConfig) database.DB {
	wrappedDB, err := database.NewTimescaleDB(cfg)
	if err != nil {
		nuts.L.Fatalf("[Server] Failed to connect to TimescaleDB: %v", err)
	}
	s.trackDB("timescaledb", wrappedDB)
	return wrappedDB
}

func (s *Server) initAppDB(cfg config.PostgresConfig) database.DB {
	wrappedDB, err := database.NewPostgresDB(cfg)
	if err != nil {
		nuts.L.Fatalf("[Server] Failed to connect to AppDB: %v", err)
	}
	s.trackDB("postgres", wrappedDB)
	return wrappedDB
}

func (s *Server) trackDB(name string, db database.DB) {
	// Set up connection timeout
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.Ping(ctx); err != nil {
		nuts.L.Fatalf("[Server] Failed to ping %s: %v", name, err)
	}
	s.closers = append(s.closers, db)
	s.monitoring.AddBackend(name, db)
}

type closerFunc func() error

func (f closerFunc) Close() error { return f() }
