// Package memory holds process-local repositories, used when no external
// store is configured and as test doubles.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/itsatony/emhub/internal/models"
	"github.com/itsatony/emhub/internal/repository"
	nuts "github.com/vaudience/go-nuts"
)

type FirmwareRepo struct {
	mu      sync.RWMutex
	records map[string]models.FirmwareRecord
}

func NewFirmwareRepository() *FirmwareRepo {
	return &FirmwareRepo{records: make(map[string]models.FirmwareRecord)}
}

func (r *FirmwareRepo) Put(_ context.Context, fw *models.FirmwareRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.records[fw.Version]; ok {
		return fmt.Errorf("firmware %s: %w", fw.Version, repository.ErrDuplicate)
	}
	r.records[fw.Version] = *fw
	return nil
}

func (r *FirmwareRepo) Get(_ context.Context, version string) (*models.FirmwareRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	fw, ok := r.records[version]
	if !ok {
		return nil, fmt.Errorf("firmware %s: %w", version, repository.ErrNotFound)
	}
	return &fw, nil
}

func (r *FirmwareRepo) Delete(_ context.Context, version string) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.records[version]; !ok {
		return 0, nil
	}
	delete(r.records, version)
	return 1, nil
}

// List returns summaries, newest upload first.
func (r *FirmwareRepo) List(_ context.Context) ([]models.FirmwareSummary, error) {
	r.mu.RLock()
	out := make([]models.FirmwareSummary, 0, len(r.records))
	for _, fw := range r.records {
		out = append(out, fw.Summary())
	}
	r.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool {
		return out[i].UploadDate.After(out[j].UploadDate)
	})
	return out, nil
}

type HistoryRepo struct {
	mu   sync.RWMutex
	rows []models.HistoryRow
	now  func() time.Time
}

func NewHistoryRepository() *HistoryRepo {
	return &HistoryRepo{now: time.Now}
}

func (r *HistoryRepo) Append(_ context.Context, reading models.Reading) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rows = append(r.rows, models.HistoryRow{
		ID:         nuts.NID("rd", 12),
		RecordedAt: r.now().UTC(),
		Reading:    reading,
	})
	return nil
}

func (r *HistoryRepo) ReadAll(_ context.Context) ([]models.HistoryRow, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]models.HistoryRow, len(r.rows))
	copy(out, r.rows)
	return out, nil
}

func (r *HistoryRepo) DeleteBefore(_ context.Context, before time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	kept := r.rows[:0]
	var removed int64
	for _, row := range r.rows {
		if row.RecordedAt.Before(before) {
			removed++
			continue
		}
		kept = append(kept, row)
	}
	r.rows = kept
	return removed, nil
}

// Len returns the number of stored rows.
func (r *HistoryRepo) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.rows)
}
