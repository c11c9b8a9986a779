// FilePath: internal/repository/repository.go
package repository

import (
	"context"
	"errors"
	"time"

	"github.com/itsatony/emhub/internal/models"
)

var (
	// ErrNotFound indicates that a requested resource was not found
	ErrNotFound = errors.New("resource not found")
	// ErrDuplicate indicates that a resource already exists
	ErrDuplicate = errors.New("resource already exists")
	// ErrInvalidInput indicates that the input data is invalid
	ErrInvalidInput = errors.New("invalid input")
)

// FirmwareRepository is the blob store for firmware images, keyed by version.
type FirmwareRepository interface {
	// Put stores a new record. An existing version yields ErrDuplicate.
	Put(ctx context.Context, fw *models.FirmwareRecord) error
	// Get yields ErrNotFound for unknown versions.
	Get(ctx context.Context, version string) (*models.FirmwareRecord, error)
	// Delete returns the number of removed records.
	Delete(ctx context.Context, version string) (int64, error)
	List(ctx context.Context) ([]models.FirmwareSummary, error)
}

// HistoryRepository stores every reading the hub received.
type HistoryRepository interface {
	Append(ctx context.Context, r models.Reading) error
	ReadAll(ctx context.Context) ([]models.HistoryRow, error)
	// DeleteBefore removes rows recorded before the cutoff.
	DeleteBefore(ctx context.Context, before time.Time) (int64, error)
}
