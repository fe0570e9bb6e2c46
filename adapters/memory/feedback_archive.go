package memory

import (
	"context"
	"sync"

	"github.com/satriahrh/formcoach/domain/entities"
	"github.com/satriahrh/formcoach/domain/repositories"
)

var _ repositories.FeedbackArchive = (*FeedbackArchive)(nil)

// FeedbackArchive keeps the most recent feedback per client in memory.
// It is the default archive when no database is configured.
type FeedbackArchive struct {
	mu      sync.RWMutex
	records map[string][]entities.FeedbackRecord
	limit   int
}

// NewFeedbackArchive creates an archive retaining up to limit records per client
func NewFeedbackArchive(limit int) *FeedbackArchive {
	if limit <= 0 {
		limit = entities.DefaultHistoryCap
	}
	return &FeedbackArchive{
		records: make(map[string][]entities.FeedbackRecord),
		limit:   limit,
	}
}

// Save implements FeedbackArchive interface
func (a *FeedbackArchive) Save(ctx context.Context, clientID string, record entities.FeedbackRecord) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	records := append(a.records[clientID], record)
	if overflow := len(records) - a.limit; overflow > 0 {
		records = append([]entities.FeedbackRecord(nil), records[overflow:]...)
	}
	a.records[clientID] = records
	return nil
}

// ListByClient implements FeedbackArchive interface
func (a *FeedbackArchive) ListByClient(ctx context.Context, clientID string, limit int) ([]entities.FeedbackRecord, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()

	records := a.records[clientID]
	if limit <= 0 || limit > len(records) {
		limit = len(records)
	}
	result := make([]entities.FeedbackRecord, limit)
	copy(result, records[len(records)-limit:])
	return result, nil
}
