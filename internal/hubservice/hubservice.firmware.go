package hubservice

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	stderrors "errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/itsatony/emhub/internal/errors"
	"github.com/itsatony/emhub/internal/models"
	"github.com/itsatony/emhub/internal/repository"
	"github.com/itsatony/struccy"
	nuts "github.com/vaudience/go-nuts"
)

// DefaultMaxFirmwareSize caps uploaded images at 10 MB.
const DefaultMaxFirmwareSize int64 = 10 << 20

// FirmwareFile is an uploaded image with its client-side metadata.
type FirmwareFile struct {
	Name        string
	ContentType string
	Data        []byte
}

// FirmwareService handles firmware storage business logic
type FirmwareService interface {
	UploadFirmware(ctx context.Context, upload models.FirmwareUpload, file FirmwareFile) (*models.FirmwareSummary, error)
	DownloadFirmware(ctx context.Context, version string) (*models.FirmwareRecord, []byte, error)
	GetFirmwareInfo(ctx context.Context, version string) (*models.FirmwareRecord, error)
	DeleteFirmware(ctx context.Context, version string) error
	ListFirmware(ctx context.Context) ([]models.FirmwareSummary, error)
}

// UploadFirmware validates and stores a new firmware image
func (s *HubService) UploadFirmware(ctx context.Context, upload models.FirmwareUpload, file FirmwareFile) (*models.FirmwareSummary, error) {
	version := strings.TrimSpace(upload.VersionName)
	if version == "" {
		return nil, errors.NewValidationError("version name is required", nil)
	}
	if len(file.Data) == 0 {
		return nil, errors.NewValidationError("no firmware file uploaded", nil)
	}
	if int64(len(file.Data)) > s.maxFirmwareSize {
		return nil, errors.NewValidationError(
			fmt.Sprintf("firmware file exceeds %d bytes", s.maxFirmwareSize), nil)
	}
	if !isFirmwareFile(file) {
		return nil, errors.NewValidationError("only .bin files are allowed", nil)
	}

	sum := md5.Sum(file.Data)
	record := &models.FirmwareRecord{
		Version:     version,
		DataHex:     hex.EncodeToString(file.Data),
		Description: strings.TrimSpace(upload.Description),
		FileName:    filepath.Base(file.Name),
		FileSize:    int64(len(file.Data)),
		Checksum:    hex.EncodeToString(sum[:]),
		UploadDate:  time.Now().UTC(),
	}

	if err := s.Firmware.Put(ctx, record); err != nil {
		switch {
		case stderrors.Is(err, repository.ErrDuplicate):
			return nil, errors.NewConflictError("firmware version already exists", err)
		case stderrors.Is(err, repository.ErrInvalidInput):
			return nil, errors.NewValidationError("invalid firmware version", err)
		default:
			return nil, errors.NewDatabaseError("failed to store firmware", err)
		}
	}

	nuts.L.Infof("[FirmwareService] Stored firmware %s (%d bytes, md5 %s)", version, record.FileSize, record.Checksum)
	summary := record.Summary()
	return &summary, nil
}

// DownloadFirmware returns the record and its decoded image
func (s *HubService) DownloadFirmware(ctx context.Context, version string) (*models.FirmwareRecord, []byte, error) {
	record, err := s.getFirmware(ctx, version)
	if err != nil {
		return nil, nil, err
	}
	data, err := hex.DecodeString(record.DataHex)
	if err != nil {
		return nil, nil, errors.NewInternalError("stored firmware is corrupt", err)
	}
	return record, data, nil
}

// GetFirmwareInfo retrieves a firmware record with role-based field filtering
func (s *HubService) GetFirmwareInfo(ctx context.Context, version string) (*models.FirmwareRecord, error) {
	record, err := s.getFirmware(ctx, version)
	if err != nil {
		return nil, err
	}

	roles := GetRoles(ctx)

	// Filter fields based on read access
	filteredMap, err := struccy.StructToMapFieldsWithReadXS(record, roles)
	if err != nil {
		return nil, errors.NewInternalError("failed to filter firmware fields", err)
	}
	filtered := &models.FirmwareRecord{}
	_, err = struccy.MergeMapStringFieldsToStruct(filtered, filteredMap, []string{RoleSystem})
	if err != nil {
		return nil, errors.NewInternalError("failed to map filtered fields to firmware struct", err)
	}
	return filtered, nil
}

// DeleteFirmware removes a version; unknown versions are reported as not found
func (s *HubService) DeleteFirmware(ctx context.Context, version string) error {
	if version == "" {
		return errors.NewValidationError("version is required", nil)
	}
	n, err := s.Firmware.Delete(ctx, version)
	if err != nil {
		if stderrors.Is(err, repository.ErrInvalidInput) {
			return errors.NewValidationError("invalid firmware version", err)
		}
		return errors.NewDatabaseError("failed to delete firmware", err)
	}
	if n == 0 {
		return errors.NewNotFoundError("firmware version not found", nil)
	}
	nuts.L.Infof("[FirmwareService] Deleted firmware %s", version)
	return nil
}

// ListFirmware returns every stored version, newest first
func (s *HubService) ListFirmware(ctx context.Context) ([]models.FirmwareSummary, error) {
	versions, err := s.Firmware.List(ctx)
	if err != nil {
		return nil, errors.NewDatabaseError("error fetching firmware versions", err)
	}
	return versions, nil
}

func (s *HubService) getFirmware(ctx context.Context, version string) (*models.FirmwareRecord, error) {
	if version == "" {
		return nil, errors.NewValidationError("version is required", nil)
	}
	record, err := s.Firmware.Get(ctx, version)
	if err != nil {
		switch {
		case stderrors.Is(err, repository.ErrNotFound):
			return nil, errors.NewNotFoundError("firmware version not found", err)
		case stderrors.Is(err, repository.ErrInvalidInput):
			return nil, errors.NewValidationError("invalid firmware version", err)
		default:
			return nil, errors.NewDatabaseError("failed to load firmware", err)
		}
	}
	return record, nil
}

func isFirmwareFile(f FirmwareFile) bool {
	if strings.EqualFold(filepath.Ext(f.Name), ".bin") {
		return true
	}
	return strings.HasPrefix(f.ContentType, "application/octet-stream")
}
