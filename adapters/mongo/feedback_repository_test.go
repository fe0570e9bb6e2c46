package mongo

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap/zaptest"

	"github.com/satriahrh/formcoach/domain/entities"
)

// TestFeedbackRepository_Integration tests the MongoDB feedback archive
// This test requires a running MongoDB instance (skipped if MONGODB_URI is not set)
func TestFeedbackRepository_Integration(t *testing.T) {
	mongoURI := os.Getenv("MONGODB_URI")
	if mongoURI == "" {
		t.Skip("Skipping MongoDB integration test - MONGODB_URI not set")
	}

	ctx := context.Background()
	store, err := Open(ctx, Config{URI: mongoURI, Database: "formcoach_test"}, zaptest.NewLogger(t))
	if err != nil {
		t.Fatalf("Failed to connect to MongoDB: %v", err)
	}
	defer func() {
		store.Drop(ctx)
		store.Close(ctx)
	}()

	repo := store.Feedback()
	if err := repo.EnsureIndexes(ctx); err != nil {
		t.Fatalf("Failed to create indexes: %v", err)
	}

	clientID := "test-" + uuid.NewString()
	base := time.Now().Truncate(time.Millisecond)

	t.Run("SaveAndList", func(t *testing.T) {
		for i := 0; i < 4; i++ {
			record := entities.NewFeedbackRecord(base.Add(time.Duration(i)*time.Second), fmt.Sprintf("tip-%d", i), "squat", i%2 == 0)
			if err := repo.Save(ctx, clientID, record); err != nil {
				t.Fatalf("Failed to save feedback: %v", err)
			}
		}

		records, err := repo.ListByClient(ctx, clientID, 2)
		if err != nil {
			t.Fatalf("Failed to list feedback: %v", err)
		}
		if len(records) != 2 {
			t.Fatalf("Expected 2 records, got %d", len(records))
		}
		if records[0].Feedback != "tip-2" || records[1].Feedback != "tip-3" {
			t.Errorf("Expected oldest-first window tip-2..tip-3, got %s..%s", records[0].Feedback, records[1].Feedback)
		}
		if records[0].ExerciseType == nil || *records[0].ExerciseType != "squat" {
			t.Errorf("Exercise type not preserved: %v", records[0].ExerciseType)
		}
	})

	t.Run("UnknownClient", func(t *testing.T) {
		records, err := repo.ListByClient(ctx, "missing-"+uuid.NewString(), 10)
		if err != nil {
			t.Fatalf("Unexpected error: %v", err)
		}
		if len(records) != 0 {
			t.Errorf("Expected no records, got %d", len(records))
		}
	})
}
