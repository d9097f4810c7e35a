package services

import (
	"context"
	"testing"

	"github.com/classflow/live-session-service/internal/events"
	"github.com/classflow/live-session-service/internal/models"
	"github.com/classflow/live-session-service/internal/validator"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// seedActionableResponses records one actionable answer per question index.
func seedActionableResponses(t *testing.T, repo *fakeRepo, studentID string, activityID, sessionID uint, results []bool) {
	t.Helper()

	ctx := context.Background()
	for i, correct := range results {
		err := repo.Response().Create(ctx, &models.QuestionResponse{
			ActivityID:       activityID,
			SlideID:          repo.slideID(activityID, i),
			SessionID:        sessionID,
			StudentID:        studentID,
			QuestionNumber:   i + 1,
			SelectedOption:   1,
			IsCorrect:        correct,
			AttemptNumber:    1,
			Actionable:       true,
			TimeSpentSeconds: 30,
		})
		require.NoError(t, err)
	}
}

func newCompletionFixture(t *testing.T) (CompletionService, *fakeRepo, *events.MockEventPublisher, uint, uint) {
	t.Helper()

	repo := newFakeRepo()
	publisher := events.NewMockEventPublisher(testLogger())
	service := NewCompletionService(repo, publisher, testLogger(), validator.New())

	deckID := repo.addDeck(10, 0, 1, 2, 3, 4, 5, 6, 7, 8, 9)
	sessionID := repo.addSession("teacher-1", &deckID, models.SessionActive)

	return service, repo, publisher, sessionID, deckID
}

func TestCompletionService_ApplyResponse_LocksWhenAllAttempted(t *testing.T) {
	ctx := context.Background()
	service, repo, publisher, sessionID, deckID := newCompletionFixture(t)

	// Nine correct, one wrong: accuracy never blocks the lock.
	results := []bool{true, true, true, true, true, true, true, true, true, false}
	seedActionableResponses(t, repo, "student-7", deckID, sessionID, results)

	completion, justLocked, err := service.ApplyResponse(ctx, "student-7", deckID, sessionID)
	require.NoError(t, err)

	assert.True(t, justLocked)
	assert.Equal(t, models.CompletionLocked, completion.Status)
	assert.Equal(t, 10, completion.QuestionsAttempted)
	assert.Equal(t, 9, completion.QuestionsCorrect)
	assert.Equal(t, 90, completion.ScorePercentage)
	assert.Equal(t, 300, completion.TimeSpentSeconds)
	assert.NotNil(t, completion.CompletedAt)
	assert.NotNil(t, completion.LockedAt)

	published := publisher.GetPublishedEvents()
	require.Len(t, published, 1)
	assert.Equal(t, events.EventActivityCompleted, published[0].Type)
}

func TestCompletionService_ApplyResponse_PartialProgress(t *testing.T) {
	ctx := context.Background()
	service, repo, _, sessionID, deckID := newCompletionFixture(t)

	seedActionableResponses(t, repo, "student-7", deckID, sessionID, []bool{true, false, true})

	completion, justLocked, err := service.ApplyResponse(ctx, "student-7", deckID, sessionID)
	require.NoError(t, err)

	assert.False(t, justLocked)
	assert.Equal(t, models.CompletionInProgress, completion.Status)
	assert.Equal(t, 3, completion.QuestionsAttempted)
	assert.Equal(t, 2, completion.QuestionsCorrect)
	assert.Equal(t, 67, completion.ScorePercentage)
	assert.Nil(t, completion.LockedAt)
}

func TestCompletionService_ApplyResponse_LockFiresOnce(t *testing.T) {
	ctx := context.Background()
	service, repo, publisher, sessionID, deckID := newCompletionFixture(t)

	seedActionableResponses(t, repo, "student-7", deckID, sessionID,
		[]bool{true, true, true, true, true, true, true, true, true, true})

	_, justLocked, err := service.ApplyResponse(ctx, "student-7", deckID, sessionID)
	require.NoError(t, err)
	assert.True(t, justLocked)

	completion, justLocked, err := service.ApplyResponse(ctx, "student-7", deckID, sessionID)
	require.NoError(t, err)
	assert.False(t, justLocked)
	assert.Equal(t, models.CompletionLocked, completion.Status)

	// The completion event is emitted exactly once despite the second fold.
	count := 0
	for _, event := range publisher.GetPublishedEvents() {
		if event.Type == events.EventActivityCompleted {
			count++
		}
	}
	assert.Equal(t, 1, count)
}

func TestCompletionService_EnsureUnlocked(t *testing.T) {
	ctx := context.Background()
	service, repo, _, sessionID, deckID := newCompletionFixture(t)

	// No completion row yet: nothing to block.
	assert.NoError(t, service.EnsureUnlocked(ctx, "student-7", deckID, sessionID))

	seedActionableResponses(t, repo, "student-7", deckID, sessionID,
		[]bool{true, true, true, true, true, true, true, true, true, true})
	_, _, err := service.ApplyResponse(ctx, "student-7", deckID, sessionID)
	require.NoError(t, err)

	err = service.EnsureUnlocked(ctx, "student-7", deckID, sessionID)
	lockErr, ok := IsActivityLocked(err)
	require.True(t, ok)
	assert.Equal(t, deckID, lockErr.ActivityID)
	assert.Equal(t, "student-7", lockErr.StudentAccountID)
	assert.False(t, lockErr.LockedAt.IsZero())
}

func TestCompletionService_Unlock(t *testing.T) {
	ctx := context.Background()
	service, repo, publisher, sessionID, deckID := newCompletionFixture(t)

	seedActionableResponses(t, repo, "student-7", deckID, sessionID,
		[]bool{true, true, true, true, true, true, true, true, true, true})
	_, _, err := service.ApplyResponse(ctx, "student-7", deckID, sessionID)
	require.NoError(t, err)
	publisher.ClearEvents()

	t.Run("unlock clears lock and stamps audit trail", func(t *testing.T) {
		unlocked, err := service.Unlock(ctx, &UnlockRequest{
			ActivityID:       deckID,
			StudentAccountID: "student-7",
			UnlockedBy:       "teacher-1",
		})
		require.NoError(t, err)
		require.Len(t, unlocked, 1)

		row := unlocked[0]
		assert.Equal(t, models.CompletionInProgress, row.Status)
		assert.Nil(t, row.LockedAt)
		require.NotNil(t, row.UnlockedBy)
		assert.Equal(t, "teacher-1", *row.UnlockedBy)
		assert.NotNil(t, row.UnlockedAt)
		require.NotNil(t, row.UnlockReason)
		assert.Equal(t, models.DefaultUnlockReason, *row.UnlockReason)

		published := publisher.GetPublishedEvents()
		require.Len(t, published, 1)
		assert.Equal(t, events.EventActivityUnlocked, published[0].Type)

		// Writes pass again after the unlock.
		assert.NoError(t, service.EnsureUnlocked(ctx, "student-7", deckID, sessionID))
	})

	t.Run("unlocking an unlocked activity fails", func(t *testing.T) {
		_, err := service.Unlock(ctx, &UnlockRequest{
			ActivityID:       deckID,
			StudentAccountID: "student-7",
			UnlockedBy:       "teacher-1",
		})
		assert.ErrorIs(t, err, ErrActivityNotLocked)
	})
}

func TestCompletionService_GetStudentCompletions(t *testing.T) {
	ctx := context.Background()
	service, repo, _, sessionID, deckID := newCompletionFixture(t)

	seedActionableResponses(t, repo, "student-7", deckID, sessionID, []bool{true, true})
	_, _, err := service.ApplyResponse(ctx, "student-7", deckID, sessionID)
	require.NoError(t, err)

	t.Run("scoped to one session", func(t *testing.T) {
		completions, err := service.GetStudentCompletions(ctx, "student-7", &sessionID)
		require.NoError(t, err)
		require.Len(t, completions, 1)
		assert.Equal(t, deckID, completions[0].ActivityID)
	})

	t.Run("other sessions see no rows", func(t *testing.T) {
		other := uint(999)
		completions, err := service.GetStudentCompletions(ctx, "student-7", &other)
		require.NoError(t, err)
		assert.Empty(t, completions)
	})

	t.Run("unscoped lists everything", func(t *testing.T) {
		completions, err := service.GetStudentCompletions(ctx, "student-7", nil)
		require.NoError(t, err)
		assert.Len(t, completions, 1)
	})
}
