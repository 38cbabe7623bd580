package worker

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"canditrack/internal/domain/model"
	"canditrack/internal/domain/repository"
	"canditrack/internal/platform/notify"
	"canditrack/internal/platform/storage"
)

// WebhookURLResolver returns the webhook that should receive the next file.
type WebhookURLResolver interface {
	WebhookURL(ctx context.Context) string
}

// UploadWorker turns one claimed job into a terminal outcome.
type UploadWorker struct {
	repo     repository.UploadQueueRepository
	store    storage.ObjectStore
	webhook  *WebhookClient
	urls     WebhookURLResolver
	notifier notify.Publisher
	logger   *slog.Logger
	now      func() time.Time
}

func NewUploadWorker(
	repo repository.UploadQueueRepository,
	store storage.ObjectStore,
	webhook *WebhookClient,
	urls WebhookURLResolver,
	notifier notify.Publisher,
	logger *slog.Logger,
) *UploadWorker {
	if logger == nil {
		logger = slog.Default()
	}
	return &UploadWorker{
		repo:     repo,
		store:    store,
		webhook:  webhook,
		urls:     urls,
		notifier: notifier,
		logger:   logger,
		now:      time.Now,
	}
}

// ProcessOutcome is the result of one attempt. WebhookStatus is nil when the
// webhook was never called.
type ProcessOutcome struct {
	Job           *model.UploadQueueJob
	WebhookStatus *int
}

// Process runs a single attempt for a claimed job. Storage and transport
// failures are returned to the caller; webhook rejections are recorded on the job.
func (w *UploadWorker) Process(ctx context.Context, job *model.UploadQueueJob) (*ProcessOutcome, error) {
	log := w.logger.With("job_id", job.ID)

	if strings.TrimSpace(job.FilePath) == "" {
		msg := fmt.Sprintf("Invalid file path: %q", job.FilePath)
		log.Warn("upload job has no file path", "file_name", job.FileName)
		done, err := w.finish(ctx, job.ID, model.UploadStatusError, &msg, nil)
		if err != nil {
			return nil, err
		}
		return &ProcessOutcome{Job: done}, nil
	}

	data, err := w.store.Get(ctx, job.FilePath)
	if err != nil {
		return nil, fmt.Errorf("download %s: %w", job.FilePath, err)
	}

	url := w.urls.WebhookURL(ctx)
	log.Info("forwarding upload", "file_name", job.FileName, "bytes", len(data), "webhook", url)
	resp, err := w.webhook.Forward(ctx, url, job, data)
	if err != nil {
		return nil, err
	}

	status := resp.StatusCode
	var done *model.UploadQueueJob
	if resp.OK() {
		done, err = w.finish(ctx, job.ID, model.UploadStatusSuccess, nil, nil)
	} else {
		msg := fmt.Sprintf("Webhook responded with status %d", status)
		details := resp.Body
		log.Warn("webhook rejected upload", "status", status)
		done, err = w.finish(ctx, job.ID, model.UploadStatusError, &msg, &details)
	}
	if err != nil {
		return nil, err
	}
	return &ProcessOutcome{Job: done, WebhookStatus: &status}, nil
}

func (w *UploadWorker) finish(ctx context.Context, id, status string, errMsg, errDetails *string) (*model.UploadQueueJob, error) {
	done, err := w.repo.Complete(ctx, id, model.UploadJobResult{
		Status:       status,
		ErrorMessage: errMsg,
		ErrorDetails: errDetails,
		CompletedAt:  w.now(),
	})
	if err != nil {
		return nil, fmt.Errorf("record %s for job %s: %w", status, id, err)
	}
	w.logger.Info("upload job finished", "job_id", id, "status", status)
	notify.Announce(ctx, w.notifier, w.logger, model.QueueUpdated(id, status))
	return done, nil
}
