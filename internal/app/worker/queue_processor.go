package worker

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"time"

	"canditrack/internal/domain/model"
	"canditrack/internal/domain/repository"
	"canditrack/internal/platform/notify"
)

// failureWriteTimeout bounds the best-effort error write after a failed attempt.
const failureWriteTimeout = 10 * time.Second

// NoQueuedJobsMessage is reported when a cycle finds nothing to claim.
const NoQueuedJobsMessage = "No queued jobs"

// ProcessResult is the outcome of one claim-and-process cycle.
type ProcessResult struct {
	NoJob         bool
	Job           *model.UploadQueueJob
	WebhookStatus *int
}

// ProcessError is an unexpected failure during a cycle. JobID is empty when
// the failure happened before a job was claimed.
type ProcessError struct {
	JobID string
	Err   error
	Stack string
}

func (e *ProcessError) Error() string { return e.Err.Error() }
func (e *ProcessError) Unwrap() error { return e.Err }

// QueueProcessor claims one job and hands it to the UploadWorker.
type QueueProcessor struct {
	repo     repository.UploadQueueRepository
	worker   *UploadWorker
	notifier notify.Publisher
	logger   *slog.Logger
}

func NewQueueProcessor(repo repository.UploadQueueRepository, worker *UploadWorker, notifier notify.Publisher, logger *slog.Logger) *QueueProcessor {
	if logger == nil {
		logger = slog.Default()
	}
	return &QueueProcessor{repo: repo, worker: worker, notifier: notifier, logger: logger}
}

// ProcessNext runs one cycle. Any error it returns is a *ProcessError; a job
// that failed mid-attempt has already been marked as errored when possible.
func (p *QueueProcessor) ProcessNext(ctx context.Context) (*ProcessResult, error) {
	job, err := p.repo.ClaimNext(ctx)
	if err != nil {
		p.logger.Error("claim failed", "err", err)
		return nil, &ProcessError{Err: err, Stack: string(debug.Stack())}
	}
	if job == nil {
		notify.Announce(ctx, p.notifier, p.logger, model.QueueUpdated("", ""))
		return &ProcessResult{NoJob: true}, nil
	}
	p.logger.Info("claimed upload job", "job_id", job.ID, "file_name", job.FileName)

	outcome, stack, err := p.runGuarded(ctx, job)
	if err != nil {
		p.recordFailure(ctx, job, err, stack)
		return nil, &ProcessError{JobID: job.ID, Err: err, Stack: stack}
	}
	return &ProcessResult{Job: outcome.Job, WebhookStatus: outcome.WebhookStatus}, nil
}

// runGuarded converts a panic inside the worker into an error so the job can
// still be marked.
func (p *QueueProcessor) runGuarded(ctx context.Context, job *model.UploadQueueJob) (outcome *ProcessOutcome, stack string, err error) {
	defer func() {
		if r := recover(); r != nil {
			stack = string(debug.Stack())
			err = fmt.Errorf("panic while processing job %s: %v", job.ID, r)
		}
	}()
	outcome, err = p.worker.Process(ctx, job)
	if err != nil {
		stack = string(debug.Stack())
	}
	return outcome, stack, err
}

func (p *QueueProcessor) recordFailure(ctx context.Context, job *model.UploadQueueJob, cause error, stack string) {
	writeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), failureWriteTimeout)
	defer cancel()

	msg := cause.Error()
	details := fmt.Sprintf("%+v\n\n%s", cause, stack)
	_, err := p.repo.Complete(writeCtx, job.ID, model.UploadJobResult{
		Status:       model.UploadStatusError,
		ErrorMessage: &msg,
		ErrorDetails: &details,
		CompletedAt:  time.Now(),
	})
	if err != nil {
		// Nothing reclaims processing rows, so the job stays stuck until an operator requeues it.
		p.logger.Error("failed to record job failure, job left processing", "job_id", job.ID, "cause", cause, "err", err)
		return
	}
	p.logger.Error("upload job failed", "job_id", job.ID, "err", cause)
	notify.Announce(writeCtx, p.notifier, p.logger, model.QueueUpdated(job.ID, model.UploadStatusError))
}
