// FilePath: internal/repository/postgres/postgres.firmware.go
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/itsatony/emhub/internal/database"
	apierrors "github.com/itsatony/emhub/internal/errors"
	"github.com/itsatony/emhub/internal/models"
	"github.com/itsatony/emhub/internal/repository"
	nuts "github.com/vaudience/go-nuts"
)

type FirmwareRepo struct {
	PostgresBaseRepo
}

func NewFirmwareRepository(db database.DB) (*FirmwareRepo, error) {
	repo := &FirmwareRepo{PostgresBaseRepo: PostgresBaseRepo{db: db}}
	err := repo.initializeSchema([]string{
		`CREATE TABLE IF NOT EXISTS firmware (
			version TEXT PRIMARY KEY,
			data_hex TEXT NOT NULL,
			description TEXT NOT NULL DEFAULT '',
			file_name TEXT NOT NULL DEFAULT '',
			file_size BIGINT NOT NULL DEFAULT 0,
			checksum TEXT NOT NULL DEFAULT '',
			upload_date TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,
		`CREATE INDEX IF NOT EXISTS idx_firmware_upload_date ON firmware(upload_date DESC)`,
	})
	if err != nil {
		return nil, err
	}
	return repo, nil
}

func (r *FirmwareRepo) Put(ctx context.Context, fw *models.FirmwareRecord) error {
	query := `
		INSERT INTO firmware (
			version, data_hex, description, file_name, file_size, checksum, upload_date
		) VALUES (
			:version, :data_hex, :description, :file_name, :file_size, :checksum, :upload_date
		)`

	_, err := r.db.GetDB().NamedExecContext(ctx, query, fw)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("firmware %s: %w", fw.Version, repository.ErrDuplicate)
		}
		return apierrors.NewDatabaseError("failed to store firmware", err)
	}
	nuts.L.Infof("[FirmwareRepo] Stored firmware %s (%d bytes)", fw.Version, fw.FileSize)
	return nil
}

func (r *FirmwareRepo) Get(ctx context.Context, version string) (*models.FirmwareRecord, error) {
	fw := &models.FirmwareRecord{}
	query := `SELECT * FROM firmware WHERE version = $1`

	err := r.db.GetDB().GetContext(ctx, fw, query, version)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("firmware %s: %w", version, repository.ErrNotFound)
		}
		return nil, apierrors.NewDatabaseError("failed to get firmware", err)
	}
	return fw, nil
}

func (r *FirmwareRepo) Delete(ctx context.Context, version string) (int64, error) {
	result, err := r.db.GetDB().ExecContext(ctx, `DELETE FROM firmware WHERE version = $1`, version)
	if err != nil {
		return 0, apierrors.NewDatabaseError("failed to delete firmware", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return 0, apierrors.NewDatabaseError("failed to get rows affected", err)
	}
	return rows, nil
}

func (r *FirmwareRepo) List(ctx context.Context) ([]models.FirmwareSummary, error) {
	summaries := []models.FirmwareSummary{}
	query := `
		SELECT version, description, file_name, file_size, checksum, upload_date
		FROM firmware
		ORDER BY upload_date DESC`

	if err := r.db.GetDB().SelectContext(ctx, &summaries, query); err != nil {
		return nil, apierrors.NewDatabaseError("failed to list firmware", err)
	}
	return summaries, nil
}
