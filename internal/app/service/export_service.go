package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"
	"unicode/utf8"

	"canditrack/internal/domain/repository"

	"github.com/xuri/excelize/v2"
)

// ExportService renders the upload queue as an XLSX workbook for operators.
type ExportService struct {
	repo   repository.UploadQueueRepository
	logger *slog.Logger
}

func NewExportService(repo repository.UploadQueueRepository, logger *slog.Logger) *ExportService {
	if logger == nil {
		logger = slog.Default()
	}
	return &ExportService{repo: repo, logger: logger}
}

const queueSheet = "Upload Queue"

var queueHeaders = []string{
	"ID", "File Name", "File Size", "File Path", "Source", "Batch", "Status",
	"Error", "Error Details", "Created At", "Updated At", "Completed At",
}

func (s *ExportService) QueueXLSX(ctx context.Context) ([]byte, error) {
	start := time.Now()

	jobs, err := s.repo.ListAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("query upload queue: %w", err)
	}

	f := excelize.NewFile()
	defer f.Close()
	if err := f.SetSheetName("Sheet1", queueSheet); err != nil {
		return nil, fmt.Errorf("rename sheet: %w", err)
	}

	for i, h := range queueHeaders {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		_ = f.SetCellValue(queueSheet, cell, h)
	}

	for i, job := range jobs {
		row := i + 2
		write := func(col int, v any) {
			cell, _ := excelize.CoordinatesToCellName(col, row)
			_ = f.SetCellValue(queueSheet, cell, v)
		}
		write(1, job.ID)
		write(2, job.FileName)
		write(3, job.FileSize)
		write(4, job.FilePath)
		write(5, job.Source)
		write(6, deref(job.UploadBatchID))
		write(7, job.Status)
		write(8, deref(job.ErrorMessage))
		write(9, truncate(deref(job.ErrorDetails), 500))
		write(10, job.CreatedAt.Format(time.RFC3339))
		write(11, job.UpdatedAt.Format(time.RFC3339))
		if job.CompletedAt != nil {
			write(12, job.CompletedAt.Format(time.RFC3339))
		}
	}

	_ = f.SetColWidth(queueSheet, "A", "A", 38)
	_ = f.SetColWidth(queueSheet, "B", "B", 32)
	_ = f.SetColWidth(queueSheet, "D", "D", 60)
	_ = f.SetColWidth(queueSheet, "H", "I", 48)
	_ = f.SetColWidth(queueSheet, "J", "L", 22)

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("xlsx write: %w", err)
	}

	s.logger.Info("upload queue exported", "rows", len(jobs), "elapsed_ms", time.Since(start).Milliseconds())
	return buf.Bytes(), nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

// truncate caps s at n runes, ending with an ellipsis when it was cut.
func truncate(s string, n int) string {
	if n <= 0 || utf8.RuneCountInString(s) <= n {
		return s
	}
	r := []rune(s)
	return string(r[:n-1]) + "…"
}
