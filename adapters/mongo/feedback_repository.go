package mongo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/satriahrh/formcoach/domain/entities"
	"github.com/satriahrh/formcoach/domain/repositories"
)

const feedbackCollection = "feedback"

// feedbackDocument is the stored form of a FeedbackRecord
type feedbackDocument struct {
	ID                      string `bson:"_id"`
	ClientID                string `bson:"client_id"`
	entities.FeedbackRecord `bson:",inline"`
}

// FeedbackRepository archives feedback records in MongoDB
type FeedbackRepository struct {
	collection *mongo.Collection
}

var _ repositories.FeedbackArchive = (*FeedbackRepository)(nil)

// NewFeedbackRepository archives feedback in the given collection
func NewFeedbackRepository(collection *mongo.Collection) *FeedbackRepository {
	return &FeedbackRepository{
		collection: collection,
	}
}

// EnsureIndexes creates the index used by ListByClient
func (r *FeedbackRepository) EnsureIndexes(ctx context.Context) error {
	_, err := r.collection.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "client_id", Value: 1}, {Key: "timestamp", Value: -1}},
	})
	if err != nil {
		return fmt.Errorf("failed to create feedback index: %w", err)
	}
	return nil
}

// Save implements repositories.FeedbackArchive
func (r *FeedbackRepository) Save(ctx context.Context, clientID string, record entities.FeedbackRecord) error {
	if clientID == "" {
		return errors.New("client ID cannot be empty")
	}
	if record.Timestamp.IsZero() {
		record.Timestamp = time.Now()
	}

	doc := feedbackDocument{
		ID:             uuid.NewString(),
		ClientID:       clientID,
		FeedbackRecord: record,
	}
	if _, err := r.collection.InsertOne(ctx, doc); err != nil {
		return fmt.Errorf("failed to save feedback: %w", err)
	}
	return nil
}

// ListByClient implements repositories.FeedbackArchive
func (r *FeedbackRepository) ListByClient(ctx context.Context, clientID string, limit int) ([]entities.FeedbackRecord, error) {
	if clientID == "" {
		return nil, errors.New("client ID cannot be empty")
	}

	opts := options.Find().SetSort(bson.D{{Key: "timestamp", Value: -1}})
	if limit > 0 {
		opts.SetLimit(int64(limit))
	}

	cursor, err := r.collection.Find(ctx, bson.M{"client_id": clientID}, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to list feedback for client %s: %w", clientID, err)
	}
	defer cursor.Close(ctx)

	var docs []feedbackDocument
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("failed to decode feedback: %w", err)
	}

	// newest first from the query, callers expect oldest first
	records := make([]entities.FeedbackRecord, len(docs))
	for i, doc := range docs {
		records[len(docs)-1-i] = doc.FeedbackRecord
	}
	return records, nil
}
