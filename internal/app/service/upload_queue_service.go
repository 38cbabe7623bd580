package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"canditrack/internal/common"
	"canditrack/internal/domain/model"
	"canditrack/internal/domain/repository"
	"canditrack/internal/platform/notify"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

type UploadQueueService struct {
	repo     repository.UploadQueueRepository
	notifier notify.Publisher
	logger   *slog.Logger
}

func NewUploadQueueService(repo repository.UploadQueueRepository, notifier notify.Publisher, logger *slog.Logger) *UploadQueueService {
	if logger == nil {
		logger = slog.Default()
	}
	return &UploadQueueService{repo: repo, notifier: notifier, logger: logger}
}

type EnqueueRequest struct {
	FileName      string  `json:"file_name"`
	FileSize      int64   `json:"file_size"`
	FilePath      string  `json:"file_path"`
	Status        string  `json:"status,omitempty"`
	Source        string  `json:"source,omitempty"`
	UploadBatchID *string `json:"upload_batch_id,omitempty"`
	CreatedBy     *string `json:"created_by,omitempty"`
}

type ListJobsResponse struct {
	Jobs       []model.UploadQueueJob `json:"jobs"`
	Total      int                    `json:"total"`
	Page       int                    `json:"page"`
	Limit      int                    `json:"limit"`
	TotalPages int                    `json:"total_pages"`
}

func (s *UploadQueueService) Enqueue(ctx context.Context, req EnqueueRequest) (*model.UploadQueueJob, error) {
	if strings.TrimSpace(req.FilePath) == "" {
		return nil, fmt.Errorf("file_path is required: %w", common.ErrValidation)
	}
	if req.Status != "" && !model.IsValidUploadStatus(req.Status) {
		return nil, fmt.Errorf("unknown status %q: %w", req.Status, common.ErrValidation)
	}
	if req.Source != "" && !model.IsValidUploadSource(req.Source) {
		return nil, fmt.Errorf("unknown source %q: %w", req.Source, common.ErrValidation)
	}
	if req.FileName == "" {
		req.FileName = req.FilePath[strings.LastIndex(req.FilePath, "/")+1:]
	}

	job := &model.UploadQueueJob{
		FileName:      req.FileName,
		FileSize:      req.FileSize,
		FilePath:      req.FilePath,
		Status:        req.Status,
		Source:        req.Source,
		UploadBatchID: req.UploadBatchID,
		CreatedBy:     req.CreatedBy,
	}
	if err := s.repo.Create(ctx, job); err != nil {
		return nil, fmt.Errorf("failed to enqueue upload: %w", err)
	}

	s.logger.Info("upload enqueued", "job_id", job.ID, "file_name", job.FileName, "source", job.Source)
	notify.Announce(ctx, s.notifier, s.logger, model.QueueUpdated(job.ID, job.Status))
	return job, nil
}

func (s *UploadQueueService) List(ctx context.Context, page, limit int) (*ListJobsResponse, error) {
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = defaultPageSize
	}
	if limit > maxPageSize {
		limit = maxPageSize
	}

	jobs, total, err := s.repo.List(ctx, limit, (page-1)*limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list upload queue: %w", err)
	}
	return &ListJobsResponse{
		Jobs:       jobs,
		Total:      total,
		Page:       page,
		Limit:      limit,
		TotalPages: (total + limit - 1) / limit,
	}, nil
}

func (s *UploadQueueService) Get(ctx context.Context, id string) (*model.UploadQueueJob, error) {
	return s.repo.GetByID(ctx, id)
}

func (s *UploadQueueService) Update(ctx context.Context, id string, patch model.UploadQueueJobPatch) (*model.UploadQueueJob, error) {
	if patch.Status != nil && !model.IsValidUploadStatus(*patch.Status) {
		return nil, fmt.Errorf("unknown status %q: %w", *patch.Status, common.ErrValidation)
	}
	if patch.Source != nil && !model.IsValidUploadSource(*patch.Source) {
		return nil, fmt.Errorf("unknown source %q: %w", *patch.Source, common.ErrValidation)
	}

	job, err := s.repo.Update(ctx, id, patch)
	if err != nil {
		return nil, err
	}
	s.logger.Info("upload job updated", "job_id", id, "status", job.Status)
	notify.Announce(ctx, s.notifier, s.logger, model.QueueUpdated(job.ID, job.Status))
	return job, nil
}

// Requeue puts a finished or stuck job back in the queue with its diagnostics cleared.
func (s *UploadQueueService) Requeue(ctx context.Context, id string) (*model.UploadQueueJob, error) {
	queued := model.UploadStatusQueued
	return s.Update(ctx, id, model.UploadQueueJobPatch{Status: &queued, ClearError: true})
}

func (s *UploadQueueService) Delete(ctx context.Context, id string) error {
	if err := s.repo.Delete(ctx, id); err != nil {
		return err
	}
	s.logger.Info("upload job deleted", "job_id", id)
	notify.Announce(ctx, s.notifier, s.logger, model.QueueUpdated(id, ""))
	return nil
}

func (s *UploadQueueService) Stats(ctx context.Context) (map[string]int, error) {
	counts, err := s.repo.CountByStatus(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to count upload jobs: %w", err)
	}
	return counts, nil
}
