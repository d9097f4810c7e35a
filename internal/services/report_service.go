package services

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/classflow/live-session-service/internal/repositories"
	"github.com/xuri/excelize/v2"
)

type reportService struct {
	repo   repositories.Repository
	logger *slog.Logger
}

func NewReportService(repo repositories.Repository, logger *slog.Logger) ReportService {
	return &reportService{repo: repo, logger: logger}
}

var completionHeaders = []string{
	"Student Account", "Instance", "Status", "Questions Attempted",
	"Questions Correct", "Score %", "Time Spent (s)", "Completed At", "Unlocked By",
}

func (s *reportService) ExportActivityCompletions(ctx context.Context, activityID uint) ([]byte, error) {
	if _, err := s.repo.Deck().GetByID(ctx, activityID); err != nil {
		if repositories.IsNotFoundError(err) {
			return nil, ErrActivityNotFound
		}
		return nil, fmt.Errorf("failed to load activity: %w", err)
	}

	rows, err := s.repo.Completion().ListByActivity(ctx, activityID)
	if err != nil {
		return nil, fmt.Errorf("failed to list completions: %w", err)
	}

	f := excelize.NewFile()
	defer f.Close()

	const sheet = "Completions"
	index, err := f.NewSheet(sheet)
	if err != nil {
		return nil, fmt.Errorf("failed to create sheet: %w", err)
	}
	f.SetActiveSheet(index)
	f.DeleteSheet("Sheet1")

	for col, header := range completionHeaders {
		cell, _ := excelize.CoordinatesToCellName(col+1, 1)
		if err := f.SetCellValue(sheet, cell, header); err != nil {
			return nil, fmt.Errorf("failed to write header: %w", err)
		}
	}

	for i, row := range rows {
		values := []any{
			row.StudentAccountID,
			row.InstanceID,
			string(row.Status),
			row.QuestionsAttempted,
			row.QuestionsCorrect,
			row.ScorePercentage,
			row.TimeSpentSeconds,
			formatTime(row.CompletedAt),
			stringOrEmpty(row.UnlockedBy),
		}
		for col, value := range values {
			cell, _ := excelize.CoordinatesToCellName(col+1, i+2)
			if err := f.SetCellValue(sheet, cell, value); err != nil {
				return nil, fmt.Errorf("failed to write row: %w", err)
			}
		}
	}

	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		return nil, fmt.Errorf("failed to render workbook: %w", err)
	}

	s.logger.Info("Completion report exported",
		"activity_id", activityID,
		"rows", len(rows))

	return buf.Bytes(), nil
}

func formatTime(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.Format(time.RFC3339)
}

func stringOrEmpty(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
