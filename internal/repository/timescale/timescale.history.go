// FilePath: internal/repository/timescale/timescale.history.go
package timescale

import (
	"context"
	"fmt"
	"time"

	"github.com/itsatony/emhub/internal/database"
	"github.com/itsatony/emhub/internal/errors"
	"github.com/itsatony/emhub/internal/models"
	nuts "github.com/vaudience/go-nuts"
)

type HistoryRepo struct {
	TimeScaleBaseRepo
}

// NewHistoryRepository creates the readings hypertable if needed. A
// non-zero retention also installs a native retention policy.
func NewHistoryRepository(db database.DB, retention time.Duration) (*HistoryRepo, error) {
	repo := &HistoryRepo{TimeScaleBaseRepo: TimeScaleBaseRepo{db: db}}
	if err := repo.initializeSchema(); err != nil {
		return nil, err
	}
	if retention > 0 {
		repo.setupRetentionPolicy(retention)
	}
	return repo, nil
}

func (r *HistoryRepo) initializeSchema() error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS readings (
			id TEXT NOT NULL,
			recorded_at TIMESTAMPTZ NOT NULL,
			time TEXT NOT NULL,
			temperature DOUBLE PRECISION NOT NULL,
			humidity DOUBLE PRECISION NOT NULL,
			pressure DOUBLE PRECISION NOT NULL,
			gas1 DOUBLE PRECISION NOT NULL,
			gas2 DOUBLE PRECISION NOT NULL,
			gas3 DOUBLE PRECISION NOT NULL,
			gas4 DOUBLE PRECISION NOT NULL
		)`,
		`SELECT create_hypertable('readings', 'recorded_at',
			chunk_time_interval => INTERVAL '1 day',
			if_not_exists => TRUE
		)`,
		`CREATE INDEX IF NOT EXISTS idx_readings_recorded_at ON readings(recorded_at DESC)`,
	}

	for _, query := range queries {
		if _, err := r.db.GetDB().Exec(query); err != nil {
			return errors.NewDatabaseError("failed to initialize schema", err)
		}
	}
	return nil
}

func (r *HistoryRepo) setupRetentionPolicy(retention time.Duration) {
	query := fmt.Sprintf(`
		SELECT add_retention_policy('readings',
			INTERVAL '%d seconds',
			if_not_exists => TRUE
		)`, int64(retention.Seconds()))

	if _, err := r.db.GetDB().Exec(query); err != nil {
		nuts.L.Errorf("[TimescaleDB] Failed to set up retention policy: %v", err)
	}
}

func (r *HistoryRepo) Append(ctx context.Context, reading models.Reading) error {
	row := models.HistoryRow{
		ID:         nuts.NID("rd", 12),
		RecordedAt: time.Now().UTC(),
		Reading:    reading,
	}
	query := `
		INSERT INTO readings (
			id, recorded_at, time, temperature, humidity, pressure, gas1, gas2, gas3, gas4
		) VALUES (
			:id, :recorded_at, :time, :temperature, :humidity, :pressure, :gas1, :gas2, :gas3, :gas4
		)`

	if _, err := r.db.GetDB().NamedExecContext(ctx, query, row); err != nil {
		return errors.NewDatabaseError("failed to insert reading", err)
	}
	return nil
}

func (r *HistoryRepo) ReadAll(ctx context.Context) ([]models.HistoryRow, error) {
	rows := []models.HistoryRow{}
	query := `
		SELECT id, recorded_at, time, temperature, humidity, pressure, gas1, gas2, gas3, gas4
		FROM readings
		ORDER BY recorded_at ASC`

	if err := r.db.GetDB().SelectContext(ctx, &rows, query); err != nil {
		return nil, errors.NewDatabaseError("failed to read readings", err)
	}
	return rows, nil
}

func (r *HistoryRepo) DeleteBefore(ctx context.Context, before time.Time) (int64, error) {
	result, err := r.ExecContext(ctx, `DELETE FROM readings WHERE recorded_at < $1`, before)
	if err != nil {
		return 0, err
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, errors.NewDatabaseError("failed to get rows affected", err)
	}
	return n, nil
}
