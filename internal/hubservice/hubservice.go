package hubservice

import (
	"context"

	"github.com/itsatony/emhub/internal/cleanup"
	"github.com/itsatony/emhub/internal/devicectl"
	"github.com/itsatony/emhub/internal/errors"
	"github.com/itsatony/emhub/internal/ingest"
	"github.com/itsatony/emhub/internal/ota"
	"github.com/itsatony/emhub/internal/registry"
	"github.com/itsatony/emhub/internal/repository"
	"github.com/itsatony/emhub/internal/state"
)

// Field access roles used for struccy read filtering.
const (
	RoleDashboard = "dashboard"
	RoleDevice    = "device"
	RoleSystem    = "system"
)

type rolesKey struct{}

// HubService contains all repositories and service-wide dependencies
type HubService struct {
	Firmware repository.FirmwareRepository
	History  repository.HistoryRepository
	Registry *registry.Registry
	Cache    *state.Cache
	Ingest   *ingest.Adapter
	OTA      *ota.Streamer
	Device   *devicectl.Client
	Cleanup  *cleanup.CleanupService

	maxFirmwareSize int64
}

// Options carries the tunables of a HubService.
type Options struct {
	MaxFirmwareSize int64
}

// New creates a new HubService instance
func New(
	firmware repository.FirmwareRepository,
	history repository.HistoryRepository,
	reg *registry.Registry,
	cache *state.Cache,
	adapter *ingest.Adapter,
	streamer *ota.Streamer,
	device *devicectl.Client,
	cleanupSvc *cleanup.CleanupService,
	opts Options,
) *HubService {
	if opts.MaxFirmwareSize <= 0 {
		opts.MaxFirmwareSize = DefaultMaxFirmwareSize
	}
	return &HubService{
		Firmware:        firmware,
		History:         history,
		Registry:        reg,
		Cache:           cache,
		Ingest:          adapter,
		OTA:             streamer,
		Device:          device,
		Cleanup:         cleanupSvc,
		maxFirmwareSize: opts.MaxFirmwareSize,
	}
}

// Validate checks if all required dependencies are initialized
func (s *HubService) Validate() error {
	if s.Firmware == nil {
		return ErrMissingDependency("firmware repository")
	}
	if s.Registry == nil {
		return ErrMissingDependency("registry")
	}
	if s.Cache == nil {
		return ErrMissingDependency("state cache")
	}
	if s.Ingest == nil {
		return ErrMissingDependency("ingest adapter")
	}
	if s.OTA == nil {
		return ErrMissingDependency("ota streamer")
	}
	if s.Device == nil {
		return ErrMissingDependency("device client")
	}
	return nil
}

func ErrMissingDependency(name string) error {
	return errors.NewInternalError("missing dependency: "+name, nil)
}

// WithRoles attaches field access roles to ctx.
func WithRoles(ctx context.Context, roles ...string) context.Context {
	return context.WithValue(ctx, rolesKey{}, roles)
}

// GetRoles returns the access roles of ctx, defaulting to the dashboard role.
func GetRoles(ctx context.Context) []string {
	if roles, ok := ctx.Value(rolesKey{}).([]string); ok && len(roles) > 0 {
		return roles
	}
	return []string{RoleDashboard}
}
