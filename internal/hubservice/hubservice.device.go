package hubservice

import (
	"context"
	stderrors "errors"
	"net"
	"strings"

	"github.com/itsatony/emhub/internal/devicectl"
	"github.com/itsatony/emhub/internal/errors"
	"github.com/itsatony/emhub/internal/ingest"
	"github.com/itsatony/emhub/internal/models"
	"github.com/itsatony/emhub/internal/registry"
	nuts "github.com/vaudience/go-nuts"
)

// DeviceService handles the one-shot ingest path and the device control plane
type DeviceService interface {
	SubmitReading(ctx context.Context, payload map[string]any, peerAddr string) (models.Reading, error)
	RegisterDeviceAddress(ctx context.Context, addr string) error
	DeviceAddress() (string, error)
	ConfigureDeviceDashboard(ctx context.Context, target devicectl.DashboardTarget) error
	StartSampling(ctx context.Context) error
	StopSampling(ctx context.Context) error
	DeviceStatus(ctx context.Context) (*devicectl.Status, error)
}

// SubmitReading ingests a reading delivered outside the persistent channel.
// peerAddr is the transport peer and is recorded only when the payload
// carries no explicit address.
func (s *HubService) SubmitReading(ctx context.Context, payload map[string]any, peerAddr string) (models.Reading, error) {
	if len(payload) == 0 {
		return models.Reading{}, errors.NewValidationError("reading payload is empty", nil)
	}
	reading := s.Ingest.Submit(ctx, payload, ingest.Source{
		Transport: ingest.TransportOneShot,
		Address:   hostOf(peerAddr),
	})
	return reading, nil
}

// RegisterDeviceAddress records the address the device announced for itself
func (s *HubService) RegisterDeviceAddress(ctx context.Context, addr string) error {
	addr = strings.TrimSpace(addr)
	if addr == "" {
		return errors.NewValidationError("device address is required", nil)
	}
	s.Registry.RecordOneShotAddress(ctx, addr)
	nuts.L.Infof("[DeviceService] Device address set to %s", addr)
	return nil
}

func (s *HubService) DeviceAddress() (string, error) {
	addr, err := s.Registry.FindDeviceAddress()
	if err != nil {
		return "", mapDeviceError(err)
	}
	return addr, nil
}

// ConfigureDeviceDashboard tells the device where the dashboard hub lives
func (s *HubService) ConfigureDeviceDashboard(ctx context.Context, target devicectl.DashboardTarget) error {
	target.Host = strings.TrimSpace(target.Host)
	if target.Host == "" {
		return errors.NewValidationError("dashboard host is required", nil)
	}
	if target.Port <= 0 || target.Port > 65535 {
		return errors.NewValidationError("dashboard port must be between 1 and 65535", nil)
	}
	return mapDeviceError(s.Device.ConfigureDashboard(ctx, target))
}

func (s *HubService) StartSampling(ctx context.Context) error {
	return mapDeviceError(s.Device.StartSampling(ctx))
}

func (s *HubService) StopSampling(ctx context.Context) error {
	return mapDeviceError(s.Device.StopSampling(ctx))
}

func (s *HubService) DeviceStatus(ctx context.Context) (*devicectl.Status, error) {
	status, err := s.Device.Status(ctx)
	if err != nil {
		return nil, mapDeviceError(err)
	}
	return status, nil
}

// mapDeviceError translates device control failures into API errors.
func mapDeviceError(err error) error {
	switch {
	case err == nil:
		return nil
	case stderrors.Is(err, registry.ErrDeviceUnavailable):
		return errors.NewDeviceUnavailableError("device IP not available", err)
	case stderrors.Is(err, devicectl.ErrDeviceTimeout):
		return errors.NewDeviceTimeoutError("device did not respond in time", err)
	case stderrors.Is(err, devicectl.ErrDeviceRefused):
		return errors.NewDeviceUnreachableError("device is unreachable", err)
	default:
		return errors.NewInternalError("device request failed", err)
	}
}

func hostOf(addr string) string {
	if host, _, err := net.SplitHostPort(addr); err == nil {
		return host
	}
	return addr
}
