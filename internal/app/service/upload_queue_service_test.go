package service_test

import (
	"context"
	"errors"
	"testing"

	"canditrack/internal/app/service"
	"canditrack/internal/common"
	"canditrack/internal/domain/model"
	"canditrack/internal/domain/repository"
	"canditrack/internal/testsupport"
)

func newQueueService(t *testing.T) (*service.UploadQueueService, repository.UploadQueueRepository, *testsupport.RecordingNotifier) {
	t.Helper()
	repo := repository.NewUploadQueueRepository(testsupport.OpenSQLite(t))
	notifier := &testsupport.RecordingNotifier{}
	return service.NewUploadQueueService(repo, notifier, nil), repo, notifier
}

func TestEnqueueRequiresFilePath(t *testing.T) {
	svc, repo, notifier := newQueueService(t)
	ctx := context.Background()

	_, err := svc.Enqueue(ctx, service.EnqueueRequest{FileName: "cv.pdf", FilePath: "  "})
	if !errors.Is(err, common.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}

	_, total, err := repo.List(ctx, 10, 0)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if total != 0 {
		t.Fatalf("expected no rows after rejected enqueue, got %d", total)
	}
	if n := len(notifier.Events()); n != 0 {
		t.Fatalf("expected no events, got %d", n)
	}
}

func TestEnqueueDefaultsAndAnnounces(t *testing.T) {
	svc, _, notifier := newQueueService(t)

	job, err := svc.Enqueue(context.Background(), service.EnqueueRequest{FilePath: "uploads/2026/10/abc-jane-doe.pdf"})
	if err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	if job.Status != model.UploadStatusQueued {
		t.Fatalf("expected queued, got %q", job.Status)
	}
	if job.Source != model.UploadSourceSingle {
		t.Fatalf("expected single source, got %q", job.Source)
	}
	if job.FileName != "abc-jane-doe.pdf" {
		t.Fatalf("expected file name from path, got %q", job.FileName)
	}

	events := notifier.Events()
	if len(events) != 1 || events[0].JobID != job.ID || events[0].Type != model.QueueEventUpdated {
		t.Fatalf("unexpected events: %+v", events)
	}
}

func TestEnqueueRejectsUnknownStatus(t *testing.T) {
	svc, _, _ := newQueueService(t)

	_, err := svc.Enqueue(context.Background(), service.EnqueueRequest{FilePath: "a.pdf", Status: "done"})
	if !errors.Is(err, common.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestListPaginates(t *testing.T) {
	svc, repo, _ := newQueueService(t)
	for i := 0; i < 5; i++ {
		testsupport.EnqueueJob(t, repo, "uploads/cv.pdf")
	}

	resp, err := svc.List(context.Background(), 2, 2)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if resp.Total != 5 || resp.TotalPages != 3 || resp.Page != 2 || resp.Limit != 2 {
		t.Fatalf("unexpected page metadata: %+v", resp)
	}
	if len(resp.Jobs) != 2 {
		t.Fatalf("expected 2 jobs, got %d", len(resp.Jobs))
	}

	resp, err = svc.List(context.Background(), 0, 1000)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if resp.Page != 1 || resp.Limit != 100 {
		t.Fatalf("expected clamped page 1 limit 100, got page %d limit %d", resp.Page, resp.Limit)
	}
}

func TestRequeueClearsDiagnostics(t *testing.T) {
	svc, repo, notifier := newQueueService(t)
	ctx := context.Background()
	job := testsupport.EnqueueJob(t, repo, "uploads/cv.pdf")

	if _, err := repo.ClaimNext(ctx); err != nil {
		t.Fatalf("ClaimNext: %v", err)
	}
	msg, details := "Webhook responded with status 500", "boom"
	if _, err := repo.Complete(ctx, job.ID, model.UploadJobResult{
		Status:       model.UploadStatusError,
		ErrorMessage: &msg,
		ErrorDetails: &details,
	}); err != nil {
		t.Fatalf("Complete: %v", err)
	}

	requeued, err := svc.Requeue(ctx, job.ID)
	if err != nil {
		t.Fatalf("Requeue: %v", err)
	}
	if requeued.Status != model.UploadStatusQueued {
		t.Fatalf("expected queued, got %q", requeued.Status)
	}
	if requeued.ErrorMessage != nil || requeued.ErrorDetails != nil || requeued.CompletedAt != nil {
		t.Fatalf("expected diagnostics cleared, got %+v", requeued)
	}
	if requeued.FilePath != job.FilePath {
		t.Fatalf("file path changed: %q", requeued.FilePath)
	}

	events := notifier.Events()
	if len(events) == 0 || events[len(events)-1].Status != model.UploadStatusQueued {
		t.Fatalf("expected a queued event, got %+v", events)
	}
}

func TestUpdateValidatesStatus(t *testing.T) {
	svc, repo, _ := newQueueService(t)
	job := testsupport.EnqueueJob(t, repo, "uploads/cv.pdf")

	bad := "finished"
	if _, err := svc.Update(context.Background(), job.ID, model.UploadQueueJobPatch{Status: &bad}); !errors.Is(err, common.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestDeleteAnnouncesAndMissingIsNotFound(t *testing.T) {
	svc, repo, notifier := newQueueService(t)
	ctx := context.Background()
	job := testsupport.EnqueueJob(t, repo, "uploads/cv.pdf")

	if err := svc.Delete(ctx, job.ID); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := svc.Get(ctx, job.ID); !errors.Is(err, common.ErrNotFound) {
		t.Fatalf("expected not found after delete, got %v", err)
	}
	if err := svc.Delete(ctx, job.ID); !errors.Is(err, common.ErrNotFound) {
		t.Fatalf("expected not found on second delete, got %v", err)
	}
	if n := len(notifier.Events()); n != 1 {
		t.Fatalf("expected one event, got %d", n)
	}
}
