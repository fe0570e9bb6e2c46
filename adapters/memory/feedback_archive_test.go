package memory

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/satriahrh/formcoach/domain/entities"
)

func TestFeedbackArchive_SaveAndList(t *testing.T) {
	archive := NewFeedbackArchive(3)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		rec := entities.NewFeedbackRecord(time.Now(), fmt.Sprintf("tip-%d", i), "squat", false)
		require.NoError(t, archive.Save(ctx, "alice", rec))
	}

	all, err := archive.ListByClient(ctx, "alice", 0)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "tip-2", all[0].Feedback)
	assert.Equal(t, "tip-4", all[2].Feedback)

	last, err := archive.ListByClient(ctx, "alice", 2)
	require.NoError(t, err)
	require.Len(t, last, 2)
	assert.Equal(t, "tip-3", last[0].Feedback)

	none, err := archive.ListByClient(ctx, "bob", 10)
	require.NoError(t, err)
	assert.Empty(t, none)
}
