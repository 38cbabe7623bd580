package testsupport

import (
	"context"
	"testing"
	"time"

	"canditrack/internal/domain/model"
	"canditrack/internal/domain/repository"
)

// JobOption customizes a job before it is enqueued.
type JobOption func(*model.UploadQueueJob)

func WithCreatedAt(at time.Time) JobOption {
	return func(j *model.UploadQueueJob) {
		j.CreatedAt = at
	}
}

func WithStatus(status string) JobOption {
	return func(j *model.UploadQueueJob) {
		j.Status = status
	}
}

func WithFileName(name string) JobOption {
	return func(j *model.UploadQueueJob) {
		j.FileName = name
	}
}

// EnqueueJob inserts a queued job for path and returns it.
func EnqueueJob(t testing.TB, repo repository.UploadQueueRepository, path string, opts ...JobOption) *model.UploadQueueJob {
	t.Helper()

	job := &model.UploadQueueJob{
		FileName: "resume.pdf",
		FileSize: 1024,
		FilePath: path,
		Source:   model.UploadSourceSingle,
		Status:   model.UploadStatusQueued,
	}
	for _, opt := range opts {
		opt(job)
	}
	if err := repo.Create(context.Background(), job); err != nil {
		t.Fatalf("repo.Create: %v", err)
	}
	return job
}
