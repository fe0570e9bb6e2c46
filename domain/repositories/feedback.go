package repositories

import (
	"context"

	"github.com/satriahrh/formcoach/domain/entities"
)

// FeedbackArchive keeps feedback beyond the lifetime of a connection
type FeedbackArchive interface {
	Save(ctx context.Context, clientID string, record entities.FeedbackRecord) error
	// ListByClient returns up to limit of the most recent records, oldest first
	ListByClient(ctx context.Context, clientID string, limit int) ([]entities.FeedbackRecord, error)
}
