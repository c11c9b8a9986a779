package cleanup

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/itsatony/emhub/internal/repository"
	nuts "github.com/vaudience/go-nuts"
)

// EventHistoryPruned is emitted with the number of removed rows.
const EventHistoryPruned = "history.pruned"

// CleanupService removes readings that fall outside the retention window
type CleanupService struct {
	history   repository.HistoryRepository
	retention time.Duration
	interval  time.Duration
	events    *nuts.EventEmitter
	now       func() time.Time

	stopOnce sync.Once
	stop     chan struct{}
	done     chan struct{}
}

// New creates a new CleanupService. A zero retention disables pruning.
func New(history repository.HistoryRepository, retention, interval time.Duration) *CleanupService {
	if interval <= 0 {
		interval = time.Hour
	}
	return &CleanupService{
		history:   history,
		retention: retention,
		interval:  interval,
		events:    nuts.NewEventEmitter(),
		now:       time.Now,
		stop:      make(chan struct{}),
		done:      make(chan struct{}),
	}
}

// Enabled reports whether the service has anything to prune.
func (s *CleanupService) Enabled() bool {
	return s.history != nil && s.retention > 0
}

// PruneHistory deletes every reading older than the retention window
func (s *CleanupService) PruneHistory(ctx context.Context) (int64, error) {
	if !s.Enabled() {
		return 0, nil
	}
	cutoff := s.now().Add(-s.retention)
	n, err := s.history.DeleteBefore(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to prune history before %s: %w", cutoff.Format(time.RFC3339), err)
	}
	if n > 0 {
		nuts.L.Infof("[Cleanup] Pruned %d readings older than %s", n, cutoff.Format(time.RFC3339))
	}
	if err := s.events.Emit(EventHistoryPruned, n); err != nil {
		nuts.L.Warnf("[Cleanup] %s listener failed: %v", EventHistoryPruned, err)
	}
	return n, nil
}

// Start runs PruneHistory on every interval until Stop or ctx ends.
func (s *CleanupService) Start(ctx context.Context) {
	if !s.Enabled() {
		close(s.done)
		return
	}
	nuts.L.Infof("[Cleanup] Retention %s, checking every %s", s.retention, s.interval)
	go func() {
		defer close(s.done)
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-s.stop:
				return
			case <-ticker.C:
				if _, err := s.PruneHistory(ctx); err != nil {
					nuts.L.Errorf("[Cleanup] %v", err)
				}
			}
		}
	}()
}

// Stop ends the loop started by Start and waits for it.
func (s *CleanupService) Stop() {
	s.stopOnce.Do(func() { close(s.stop) })
	<-s.done
}

// OnCleanup registers a callback for cleanup events
func (s *CleanupService) OnCleanup(handlerID string, handler func(removed int64)) {
	s.events.On(EventHistoryPruned, handlerID, func(args ...interface{}) {
		if len(args) > 0 {
			if n, ok := args[0].(int64); ok {
				handler(n)
			}
		}
	})
}
