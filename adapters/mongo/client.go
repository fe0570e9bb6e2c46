package mongo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"
)

// Config describes where archived feedback lives
type Config struct {
	URI            string
	Database       string
	Collection     string
	MaxPoolSize    uint64
	ConnectTimeout time.Duration
}

func (c Config) withDefaults() Config {
	if c.Database == "" {
		c.Database = "formcoach"
	}
	if c.Collection == "" {
		c.Collection = feedbackCollection
	}
	if c.MaxPoolSize == 0 {
		c.MaxPoolSize = 10
	}
	if c.ConnectTimeout <= 0 {
		c.ConnectTimeout = 10 * time.Second
	}
	return c
}

// Store owns the MongoDB connection behind the feedback archive
type Store struct {
	client   *mongo.Client
	database *mongo.Database
	feedback *FeedbackRepository
	logger   *zap.Logger
}

// Open connects to MongoDB and prepares the feedback collection. Index
// creation failures are logged, not returned.
func Open(ctx context.Context, config Config, logger *zap.Logger) (*Store, error) {
	if config.URI == "" {
		return nil, errors.New("MongoDB URI is required")
	}
	config = config.withDefaults()

	ctx, cancel := context.WithTimeout(ctx, config.ConnectTimeout)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().
		ApplyURI(config.URI).
		SetMaxPoolSize(config.MaxPoolSize).
		SetServerSelectionTimeout(config.ConnectTimeout/2).
		SetConnectTimeout(config.ConnectTimeout))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("failed to ping MongoDB: %w", err)
	}

	database := client.Database(config.Database)
	feedback := NewFeedbackRepository(database.Collection(config.Collection))
	if err := feedback.EnsureIndexes(ctx); err != nil {
		logger.Warn("Feedback archive running without index", zap.Error(err))
	}

	logger.Info("Feedback archive connected",
		zap.String("database", config.Database),
		zap.String("collection", config.Collection))

	return &Store{
		client:   client,
		database: database,
		feedback: feedback,
		logger:   logger,
	}, nil
}

// Feedback returns the archive backed by this store
func (s *Store) Feedback() *FeedbackRepository {
	return s.feedback
}

// Drop deletes the archive database
func (s *Store) Drop(ctx context.Context) error {
	return s.database.Drop(ctx)
}

// Close disconnects from MongoDB
func (s *Store) Close(ctx context.Context) error {
	if err := s.client.Disconnect(ctx); err != nil {
		s.logger.Error("Failed to disconnect feedback archive", zap.Error(err))
		return err
	}
	s.logger.Info("Feedback archive disconnected")
	return nil
}
