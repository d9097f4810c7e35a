package services

import (
	"bytes"
	"context"
	"testing"

	"github.com/classflow/live-session-service/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

func TestReportService_ExportActivityCompletions(t *testing.T) {
	ctx := context.Background()
	repo := newFakeRepo()
	service := NewReportService(repo, testLogger())

	deckID := repo.addDeck(2, 0, 1)
	require.NoError(t, repo.Completion().Create(ctx, &models.ActivityCompletion{
		StudentAccountID:   "student-7",
		ActivityID:         deckID,
		InstanceID:         "41",
		Status:             models.CompletionLocked,
		QuestionsAttempted: 2,
		QuestionsCorrect:   1,
		ScorePercentage:    50,
		TimeSpentSeconds:   80,
	}))

	data, err := service.ExportActivityCompletions(ctx, deckID)
	require.NoError(t, err)
	require.NotEmpty(t, data)

	workbook, err := excelize.OpenReader(bytes.NewReader(data))
	require.NoError(t, err)
	defer workbook.Close()

	rows, err := workbook.GetRows("Completions")
	require.NoError(t, err)
	require.Len(t, rows, 2)

	assert.Equal(t, "Student Account", rows[0][0])
	assert.Equal(t, "student-7", rows[1][0])
	assert.Equal(t, "locked", rows[1][2])
	assert.Equal(t, "50", rows[1][5])
}

func TestReportService_ExportActivityCompletions_UnknownActivity(t *testing.T) {
	repo := newFakeRepo()
	service := NewReportService(repo, testLogger())

	_, err := service.ExportActivityCompletions(context.Background(), 404)
	assert.ErrorIs(t, err, ErrActivityNotFound)
}
