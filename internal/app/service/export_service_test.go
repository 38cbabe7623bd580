package service_test

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"canditrack/internal/app/service"
	"canditrack/internal/domain/model"
	"canditrack/internal/domain/repository"
	"canditrack/internal/testsupport"

	"github.com/xuri/excelize/v2"
)

func TestQueueXLSX(t *testing.T) {
	repo := repository.NewUploadQueueRepository(testsupport.OpenSQLite(t))
	first := testsupport.EnqueueJob(t, repo, "uploads/a.pdf", testsupport.WithFileName("a.pdf"))
	testsupport.EnqueueJob(t, repo, "uploads/b.pdf", testsupport.WithFileName("b.pdf"))

	data, err := service.NewExportService(repo, nil).QueueXLSX(context.Background())
	if err != nil {
		t.Fatalf("QueueXLSX: %v", err)
	}

	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("OpenReader: %v", err)
	}
	defer f.Close()

	rows, err := f.GetRows("Upload Queue")
	if err != nil {
		t.Fatalf("GetRows: %v", err)
	}
	if len(rows) != 3 {
		t.Fatalf("expected header plus 2 rows, got %d", len(rows))
	}
	if rows[0][0] != "ID" || rows[0][1] != "File Name" {
		t.Fatalf("unexpected header: %v", rows[0])
	}

	found := false
	for _, row := range rows[1:] {
		if row[0] == first.ID && row[1] == "a.pdf" && row[6] == "queued" {
			found = true
		}
	}
	if !found {
		t.Fatalf("job %s missing from export: %v", first.ID, rows)
	}
}

func TestQueueXLSXTruncatesDetailsOnRuneBoundary(t *testing.T) {
	repo := repository.NewUploadQueueRepository(testsupport.OpenSQLite(t))
	ctx := context.Background()
	job := testsupport.EnqueueJob(t, repo, "uploads/a.pdf")
	if _, err := repo.ClaimNext(ctx); err != nil {
		t.Fatalf("ClaimNext: %v", err)
	}
	msg := "Webhook responded with status 500"
	details := "ab" + strings.Repeat("é", 600)
	if _, err := repo.Complete(ctx, job.ID, model.UploadJobResult{
		Status:       model.UploadStatusError,
		ErrorMessage: &msg,
		ErrorDetails: &details,
		CompletedAt:  time.Now(),
	}); err != nil {
		t.Fatalf("Complete: %v", err)
	}

	data, err := service.NewExportService(repo, nil).QueueXLSX(ctx)
	if err != nil {
		t.Fatalf("QueueXLSX: %v", err)
	}
	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("OpenReader: %v", err)
	}
	defer f.Close()

	cell, err := f.GetCellValue("Upload Queue", "I2")
	if err != nil {
		t.Fatalf("GetCellValue: %v", err)
	}
	if !utf8.ValidString(cell) {
		t.Fatalf("details cell is not valid UTF-8: %q", cell)
	}
	if n := utf8.RuneCountInString(cell); n != 500 {
		t.Fatalf("details cell has %d runes, want 500", n)
	}
	if !strings.HasSuffix(cell, "é…") {
		t.Fatalf("details cell ends %q", cell[len(cell)-8:])
	}
}
