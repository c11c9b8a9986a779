// FilePath: internal/repository/files/files.storage.go
package files

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/itsatony/emhub/internal/errors"
	"github.com/itsatony/emhub/internal/models"
	"github.com/itsatony/emhub/internal/repository"
	nuts "github.com/vaudience/go-nuts"
)

const (
	defaultPermissions = 0755
	filePermissions    = 0644
	binaryExtension    = ".bin"
	metaExtension      = ".json"
)

// FileConfig holds configuration for the file storage
type FileConfig struct {
	BasePath string
}

// FirmwareRepo keeps each firmware image as <version>.bin with a
// <version>.json metadata sidecar under BasePath.
type FirmwareRepo struct {
	config FileConfig
	mu     sync.Mutex
}

// NewFirmwareRepository creates a new file storage repository
func NewFirmwareRepository(config FileConfig) (*FirmwareRepo, error) {
	if err := createDirectoryIfNotExists(config.BasePath); err != nil {
		return nil, err
	}
	return &FirmwareRepo{config: config}, nil
}

func (r *FirmwareRepo) Put(ctx context.Context, fw *models.FirmwareRecord) error {
	binPath, metaPath, err := r.paths(fw.Version)
	if err != nil {
		return err
	}
	data, err := hex.DecodeString(fw.DataHex)
	if err != nil {
		return fmt.Errorf("firmware payload is not hex: %w", repository.ErrInvalidInput)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, err := os.Stat(metaPath); err == nil {
		return fmt.Errorf("firmware %s: %w", fw.Version, repository.ErrDuplicate)
	}

	if err := os.WriteFile(binPath, data, filePermissions); err != nil {
		return errors.NewInternalError("failed to write firmware file", err)
	}

	meta := fw.Summary()
	raw, err := json.Marshal(meta)
	if err != nil {
		return errors.NewInternalError("failed to encode firmware metadata", err)
	}
	if err := os.WriteFile(metaPath, raw, filePermissions); err != nil {
		os.Remove(binPath)
		return errors.NewInternalError("failed to write firmware metadata", err)
	}

	nuts.L.Infof("[FileRepo] Stored firmware: %s", binPath)
	return nil
}

func (r *FirmwareRepo) Get(ctx context.Context, version string) (*models.FirmwareRecord, error) {
	binPath, metaPath, err := r.paths(version)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	meta, err := readMeta(metaPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("firmware %s: %w", version, repository.ErrNotFound)
		}
		return nil, errors.NewInternalError("failed to read firmware metadata", err)
	}
	data, err := os.ReadFile(binPath)
	if err != nil {
		return nil, errors.NewInternalError("failed to read firmware file", err)
	}

	return &models.FirmwareRecord{
		Version:     meta.Version,
		DataHex:     hex.EncodeToString(data),
		Description: meta.Description,
		FileName:    meta.FileName,
		FileSize:    meta.FileSize,
		Checksum:    meta.Checksum,
		UploadDate:  meta.UploadDate,
	}, nil
}

func (r *FirmwareRepo) Delete(ctx context.Context, version string) (int64, error) {
	binPath, metaPath, err := r.paths(version)
	if err != nil {
		return 0, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if err := os.Remove(metaPath); err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, errors.NewInternalError("failed to delete firmware metadata", err)
	}
	if err := os.Remove(binPath); err != nil && !os.IsNotExist(err) {
		nuts.L.Errorf("[FileRepo] Failed to delete firmware file %s: %v", binPath, err)
	}
	return 1, nil
}

func (r *FirmwareRepo) List(ctx context.Context) ([]models.FirmwareSummary, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var summaries []models.FirmwareSummary
	err := filepath.Walk(r.config.BasePath, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() || filepath.Ext(path) != metaExtension {
			return nil
		}
		meta, err := readMeta(path)
		if err != nil {
			nuts.L.Warnf("[FileRepo] Skipping unreadable metadata %s: %v", path, err)
			return nil
		}
		summaries = append(summaries, *meta)
		return nil
	})
	if err != nil {
		return nil, errors.NewInternalError("failed to list firmware", err)
	}

	sort.Slice(summaries, func(i, j int) bool {
		return summaries[i].UploadDate.After(summaries[j].UploadDate)
	})
	return summaries, nil
}

func (r *FirmwareRepo) paths(version string) (string, string, error) {
	if version == "" || strings.ContainsAny(version, `/\`) || strings.Contains(version, "..") {
		return "", "", fmt.Errorf("version %q: %w", version, repository.ErrInvalidInput)
	}
	base := filepath.Join(r.config.BasePath, version)
	return base + binaryExtension, base + metaExtension, nil
}

func readMeta(path string) (*models.FirmwareSummary, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	meta := &models.FirmwareSummary{}
	if err := json.Unmarshal(raw, meta); err != nil {
		return nil, err
	}
	return meta, nil
}

func createDirectoryIfNotExists(path string) error {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		err := os.MkdirAll(path, defaultPermissions)
		if err != nil {
			return errors.NewInternalError("failed to create directory", err)
		}
	}
	return nil
}
