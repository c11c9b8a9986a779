package hubservice

import (
	"context"

	"github.com/itsatony/emhub/internal/errors"
	"github.com/itsatony/emhub/internal/models"
)

// Snapshot returns the current reading
func (s *HubService) Snapshot() models.Reading {
	return s.Cache.Snapshot()
}

// ReadingHistory returns every stored row. Granularity is validated and
// echoed; aggregation is left to the caller.
func (s *HubService) ReadingHistory(ctx context.Context, granularity models.Granularity) (models.Granularity, []models.HistoryRow, error) {
	if granularity == "" {
		granularity = models.GranularityHourly
	}
	if !granularity.Valid() {
		return "", nil, errors.NewValidationError("granularity must be hourly or daily", nil)
	}
	if s.History == nil {
		return granularity, []models.HistoryRow{}, nil
	}
	rows, err := s.History.ReadAll(ctx)
	if err != nil {
		return "", nil, errors.NewDatabaseError("error fetching history", err)
	}
	if rows == nil {
		rows = []models.HistoryRow{}
	}
	return granularity, rows, nil
}
