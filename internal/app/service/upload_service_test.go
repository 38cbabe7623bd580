package service_test

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"canditrack/internal/app/service"
	"canditrack/internal/common"
	"canditrack/internal/domain/model"
	"canditrack/internal/domain/repository"
	"canditrack/internal/testsupport"
)

func newUploadService(t *testing.T) (*service.UploadService, *testsupport.MemoryStore, repository.UploadQueueRepository) {
	t.Helper()
	repo := repository.NewUploadQueueRepository(testsupport.OpenSQLite(t))
	store := testsupport.NewMemoryStore()
	queue := service.NewUploadQueueService(repo, nil, nil)
	return service.NewUploadService(store, queue, nil), store, repo
}

func TestUploadSingleFile(t *testing.T) {
	svc, store, _ := newUploadService(t)
	userID := "user-1"

	resp, err := svc.Upload(context.Background(), service.UploadRequest{
		Files:     []service.UploadFile{{Name: "Jane Doe CV.pdf", Size: 5, Body: strings.NewReader("%PDF-")}},
		CreatedBy: &userID,
	})
	if err != nil {
		t.Fatalf("Upload: %v", err)
	}
	if resp.UploadBatchID != nil {
		t.Fatalf("single upload should not carry a batch id")
	}
	if len(resp.Jobs) != 1 {
		t.Fatalf("expected 1 job, got %d", len(resp.Jobs))
	}

	job := resp.Jobs[0]
	if job.Source != model.UploadSourceSingle || job.Status != model.UploadStatusQueued {
		t.Fatalf("unexpected job: %+v", job)
	}
	if job.FileName != "Jane Doe CV.pdf" {
		t.Fatalf("expected original file name, got %q", job.FileName)
	}
	if job.CreatedBy == nil || *job.CreatedBy != userID {
		t.Fatalf("expected created_by %q, got %v", userID, job.CreatedBy)
	}
	if !strings.HasSuffix(job.FilePath, "-jane-doe-cv.pdf") {
		t.Fatalf("unexpected object key %q", job.FilePath)
	}
	data, ok := store.Object(job.FilePath)
	if !ok || string(data) != "%PDF-" {
		t.Fatalf("object not stored under %q", job.FilePath)
	}
}

func TestUploadBulkSharesBatch(t *testing.T) {
	svc, store, repo := newUploadService(t)

	resp, err := svc.Upload(context.Background(), service.UploadRequest{Files: []service.UploadFile{
		{Name: "a.pdf", Size: 1, Body: strings.NewReader("a")},
		{Name: "b.docx", Size: 1, Body: strings.NewReader("b")},
	}})
	if err != nil {
		t.Fatalf("Upload: %v", err)
	}
	if resp.UploadBatchID == nil {
		t.Fatalf("bulk upload should carry a batch id")
	}
	for _, job := range resp.Jobs {
		if job.Source != model.UploadSourceBulk {
			t.Fatalf("expected bulk source, got %q", job.Source)
		}
		if job.UploadBatchID == nil || *job.UploadBatchID != *resp.UploadBatchID {
			t.Fatalf("job %s not in batch", job.ID)
		}
	}
	if n := len(store.Keys()); n != 2 {
		t.Fatalf("expected 2 objects, got %d", n)
	}
	if _, total, _ := repo.List(context.Background(), 10, 0); total != 2 {
		t.Fatalf("expected 2 rows, got %d", total)
	}
}

// failingPutStore fails the Put with the given 1-based index.
type failingPutStore struct {
	*testsupport.MemoryStore
	failOn int
	puts   int
}

func (s *failingPutStore) Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) error {
	s.puts++
	if s.puts == s.failOn {
		return errors.New("minio down")
	}
	return s.MemoryStore.Put(ctx, key, r, size, contentType)
}

func TestUploadStoreFailureLeavesNothingBehind(t *testing.T) {
	repo := repository.NewUploadQueueRepository(testsupport.OpenSQLite(t))
	store := &failingPutStore{MemoryStore: testsupport.NewMemoryStore(), failOn: 2}
	notifier := &testsupport.RecordingNotifier{}
	svc := service.NewUploadService(store, service.NewUploadQueueService(repo, notifier, nil), nil)

	_, err := svc.Upload(context.Background(), service.UploadRequest{Files: []service.UploadFile{
		{Name: "a.pdf", Size: 1, Body: strings.NewReader("a")},
		{Name: "b.pdf", Size: 1, Body: strings.NewReader("b")},
	}})
	if err == nil || !strings.Contains(err.Error(), "minio down") {
		t.Fatalf("expected store failure, got %v", err)
	}

	if _, total, _ := repo.List(context.Background(), 10, 0); total != 0 {
		t.Fatalf("expected no queued jobs after failed upload, got %d", total)
	}
	if keys := store.Keys(); len(keys) != 0 {
		t.Fatalf("expected stored objects to be removed, got %v", keys)
	}
	if n := len(notifier.Events()); n != 0 {
		t.Fatalf("expected no queue events, got %d", n)
	}
}

func TestUploadRequiresFiles(t *testing.T) {
	svc, _, _ := newUploadService(t)

	if _, err := svc.Upload(context.Background(), service.UploadRequest{}); !errors.Is(err, common.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestObjectKey(t *testing.T) {
	now := time.Date(2026, time.March, 9, 12, 0, 0, 0, time.UTC)

	cases := []struct{ in, want string }{
		{"Jane Doe.PDF", "uploads/2026/03/id-jane-doe.pdf"},
		{`C:\Users\me\résumé.docx`, "uploads/2026/03/id-resume.docx"},
		{"???.pdf", "uploads/2026/03/id-file.pdf"},
	}
	for _, tc := range cases {
		if got := service.ObjectKey(now, "id", tc.in); got != tc.want {
			t.Errorf("ObjectKey(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}
