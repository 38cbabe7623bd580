package service

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"path"
	"strings"
	"time"

	"canditrack/internal/common"
	"canditrack/internal/domain/model"
	"canditrack/internal/platform/storage"

	"github.com/google/uuid"
	"github.com/gosimple/slug"
)

// UploadService stores candidate files and enqueues them for processing.
type UploadService struct {
	store  storage.ObjectStore
	queue  *UploadQueueService
	logger *slog.Logger
	now    func() time.Time
}

func NewUploadService(store storage.ObjectStore, queue *UploadQueueService, logger *slog.Logger) *UploadService {
	if logger == nil {
		logger = slog.Default()
	}
	return &UploadService{store: store, queue: queue, logger: logger, now: time.Now}
}

type UploadFile struct {
	Name        string
	Size        int64
	ContentType string
	Body        io.Reader
}

type UploadRequest struct {
	Files     []UploadFile
	CreatedBy *string
}

type UploadResponse struct {
	UploadBatchID *string                 `json:"upload_batch_id,omitempty"`
	Jobs          []*model.UploadQueueJob `json:"jobs"`
}

// Upload puts every file in object storage and then enqueues one job per file.
// Nothing is enqueued unless every file was stored, and a failure removes what
// was already written. A single file is a "single" upload; several files share
// a batch id and are "bulk".
func (s *UploadService) Upload(ctx context.Context, req UploadRequest) (*UploadResponse, error) {
	if len(req.Files) == 0 {
		return nil, fmt.Errorf("at least one file is required: %w", common.ErrValidation)
	}

	source := model.UploadSourceSingle
	var batchID *string
	if len(req.Files) > 1 {
		source = model.UploadSourceBulk
		id := uuid.NewString()
		batchID = &id
	}

	keys := make([]string, 0, len(req.Files))
	for _, f := range req.Files {
		key := ObjectKey(s.now(), uuid.NewString(), f.Name)
		contentType := f.ContentType
		if contentType == "" {
			contentType = "application/octet-stream"
		}
		if err := s.store.Put(ctx, key, f.Body, f.Size, contentType); err != nil {
			s.removeObjects(ctx, keys)
			return nil, fmt.Errorf("failed to store %s: %w", f.Name, err)
		}
		keys = append(keys, key)
	}

	resp := &UploadResponse{UploadBatchID: batchID}
	for i, f := range req.Files {
		job, err := s.queue.Enqueue(ctx, EnqueueRequest{
			FileName:      path.Base(f.Name),
			FileSize:      f.Size,
			FilePath:      keys[i],
			Source:        source,
			UploadBatchID: batchID,
			CreatedBy:     req.CreatedBy,
		})
		if err != nil {
			s.discardJobs(ctx, resp.Jobs)
			s.removeObjects(ctx, keys)
			return nil, err
		}
		resp.Jobs = append(resp.Jobs, job)
	}

	s.logger.Info("files uploaded", "count", len(resp.Jobs), "source", source)
	return resp, nil
}

// removeObjects undoes the stores of a failed upload. Cleanup failures only
// leave unreferenced objects behind, so they are logged.
func (s *UploadService) removeObjects(ctx context.Context, keys []string) {
	cleanupCtx := context.WithoutCancel(ctx)
	for _, key := range keys {
		if err := s.store.Remove(cleanupCtx, key); err != nil {
			s.logger.Warn("failed to remove object of aborted upload", "key", key, "err", err)
		}
	}
}

func (s *UploadService) discardJobs(ctx context.Context, jobs []*model.UploadQueueJob) {
	cleanupCtx := context.WithoutCancel(ctx)
	for _, job := range jobs {
		if err := s.queue.Delete(cleanupCtx, job.ID); err != nil {
			s.logger.Error("failed to discard job of aborted upload", "job_id", job.ID, "err", err)
		}
	}
}

// ObjectKey builds "uploads/<yyyy>/<mm>/<id>-<slug><ext>" for a client file name.
func ObjectKey(now time.Time, id, fileName string) string {
	name := path.Base(strings.ReplaceAll(fileName, "\\", "/"))
	ext := strings.ToLower(path.Ext(name))
	base := slug.Make(strings.TrimSuffix(name, path.Ext(name)))
	if base == "" {
		base = "file"
	}
	now = now.UTC()
	return fmt.Sprintf("uploads/%04d/%02d/%s-%s%s", now.Year(), int(now.Month()), id, base, ext)
}
