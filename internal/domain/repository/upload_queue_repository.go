package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"canditrack/internal/common"
	"canditrack/internal/domain/model"
	"canditrack/internal/platform/database"

	"github.com/google/uuid"
)

type UploadQueueRepository interface {
	Create(ctx context.Context, job *model.UploadQueueJob) error
	// ClaimNext atomically moves the oldest queued job to processing and returns it.
	// It returns nil, nil when no job is queued.
	ClaimNext(ctx context.Context) (*model.UploadQueueJob, error)
	Complete(ctx context.Context, id string, result model.UploadJobResult) (*model.UploadQueueJob, error)
	GetByID(ctx context.Context, id string) (*model.UploadQueueJob, error)
	List(ctx context.Context, limit, offset int) ([]model.UploadQueueJob, int, error)
	ListAll(ctx context.Context) ([]model.UploadQueueJob, error)
	Update(ctx context.Context, id string, patch model.UploadQueueJobPatch) (*model.UploadQueueJob, error)
	Delete(ctx context.Context, id string) error
	CountByStatus(ctx context.Context) (map[string]int, error)
}

const uploadQueueColumns = `id, file_name, file_size, file_path, source, upload_batch_id, created_by,
	status, error_message, error_details, created_at, updated_at, completed_at`

type uploadQueueRepository struct {
	db  *database.DB
	now func() time.Time
}

func NewUploadQueueRepository(db *database.DB) UploadQueueRepository {
	return &uploadQueueRepository{db: db, now: time.Now}
}

func (r *uploadQueueRepository) Create(ctx context.Context, job *model.UploadQueueJob) error {
	if strings.TrimSpace(job.FilePath) == "" {
		return fmt.Errorf("file_path is required: %w", common.ErrValidation)
	}
	if job.ID == "" {
		job.ID = uuid.NewString()
	}
	if job.Status == "" {
		job.Status = model.UploadStatusQueued
	}
	if job.Source == "" {
		job.Source = model.UploadSourceSingle
	}
	if job.CreatedAt.IsZero() {
		job.CreatedAt = r.now().UTC()
	}
	job.UpdatedAt = job.CreatedAt

	query := r.db.Rebind(`INSERT INTO upload_queue (` + uploadQueueColumns + `)
	          VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	_, err := r.db.ExecContext(ctx, query,
		job.ID, job.FileName, job.FileSize, job.FilePath, job.Source, job.UploadBatchID, job.CreatedBy,
		job.Status, job.ErrorMessage, job.ErrorDetails,
		r.db.Time(job.CreatedAt), r.db.Time(job.UpdatedAt), r.db.NullTime(job.CompletedAt),
	)
	if err != nil {
		if database.IsUniqueViolation(err) {
			return fmt.Errorf("upload job %s already exists: %w", job.ID, common.ErrConflict)
		}
		return fmt.Errorf("uploadQueueRepository.Create: %w", err)
	}
	return nil
}

// ClaimNext runs the selection and the status flip as one statement. Postgres
// skips rows locked by a concurrent claim; SQLite serializes writers, and the
// status re-check keeps the update conditional.
func (r *uploadQueueRepository) ClaimNext(ctx context.Context) (*model.UploadQueueJob, error) {
	var (
		query string
		args  []any
	)
	now := r.db.Time(r.now())

	switch r.db.Dialect {
	case database.Postgres:
		query = `UPDATE upload_queue SET status = ?, updated_at = ?
		         WHERE id = (
		             SELECT id FROM upload_queue
		             WHERE status = ?
		             ORDER BY created_at ASC
		             LIMIT 1
		             FOR UPDATE SKIP LOCKED
		         )
		         RETURNING ` + uploadQueueColumns
		args = []any{model.UploadStatusProcessing, now, model.UploadStatusQueued}
	default:
		query = `UPDATE upload_queue SET status = ?, updated_at = ?
		         WHERE id = (
		             SELECT id FROM upload_queue
		             WHERE status = ?
		             ORDER BY created_at ASC, rowid ASC
		             LIMIT 1
		         )
		         AND status = ?
		         RETURNING ` + uploadQueueColumns
		args = []any{model.UploadStatusProcessing, now, model.UploadStatusQueued, model.UploadStatusQueued}
	}

	job, err := scanUploadJob(r.db.QueryRowContext(ctx, r.db.Rebind(query), args...))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("uploadQueueRepository.ClaimNext: %w", err)
	}
	return job, nil
}

func (r *uploadQueueRepository) Complete(ctx context.Context, id string, result model.UploadJobResult) (*model.UploadQueueJob, error) {
	completedAt := result.CompletedAt
	if completedAt.IsZero() {
		completedAt = r.now()
	}
	query := r.db.Rebind(`UPDATE upload_queue
	          SET status = ?, error_message = ?, error_details = ?, completed_at = ?, updated_at = ?
	          WHERE id = ?
	          RETURNING ` + uploadQueueColumns)
	job, err := scanUploadJob(r.db.QueryRowContext(ctx, query,
		result.Status, result.ErrorMessage, result.ErrorDetails,
		r.db.Time(completedAt), r.db.Time(r.now()), id,
	))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrNotFound
		}
		return nil, fmt.Errorf("uploadQueueRepository.Complete: %w", err)
	}
	return job, nil
}

func (r *uploadQueueRepository) GetByID(ctx context.Context, id string) (*model.UploadQueueJob, error) {
	query := r.db.Rebind(`SELECT ` + uploadQueueColumns + ` FROM upload_queue WHERE id = ?`)
	job, err := scanUploadJob(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrNotFound
		}
		return nil, fmt.Errorf("uploadQueueRepository.GetByID: %w", err)
	}
	return job, nil
}

func (r *uploadQueueRepository) List(ctx context.Context, limit, offset int) ([]model.UploadQueueJob, int, error) {
	var total int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM upload_queue`).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("uploadQueueRepository.List count: %w", err)
	}

	query := r.db.Rebind(`SELECT ` + uploadQueueColumns + ` FROM upload_queue
	          ORDER BY created_at DESC LIMIT ? OFFSET ?`)
	jobs, err := r.queryJobs(ctx, query, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("uploadQueueRepository.List: %w", err)
	}
	return jobs, total, nil
}

func (r *uploadQueueRepository) ListAll(ctx context.Context) ([]model.UploadQueueJob, error) {
	jobs, err := r.queryJobs(ctx, `SELECT `+uploadQueueColumns+` FROM upload_queue ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("uploadQueueRepository.ListAll: %w", err)
	}
	return jobs, nil
}

func (r *uploadQueueRepository) Update(ctx context.Context, id string, patch model.UploadQueueJobPatch) (*model.UploadQueueJob, error) {
	if patch.IsEmpty() {
		return nil, fmt.Errorf("no fields to update: %w", common.ErrBadRequest)
	}

	var (
		sets []string
		args []any
	)
	set := func(column string, value any) {
		sets = append(sets, column+" = ?")
		args = append(args, value)
	}

	if patch.FileName != nil {
		set("file_name", *patch.FileName)
	}
	if patch.FileSize != nil {
		set("file_size", *patch.FileSize)
	}
	if patch.Source != nil {
		set("source", *patch.Source)
	}
	if patch.UploadBatchID != nil {
		set("upload_batch_id", *patch.UploadBatchID)
	}
	if patch.Status != nil {
		set("status", *patch.Status)
	}
	switch {
	case patch.ErrorMessage != nil:
		set("error_message", *patch.ErrorMessage)
	case patch.ClearError:
		set("error_message", nil)
	}
	switch {
	case patch.ErrorDetails != nil:
		set("error_details", *patch.ErrorDetails)
	case patch.ClearError:
		set("error_details", nil)
	}
	if patch.ClearError {
		set("completed_at", nil)
	}
	set("updated_at", r.db.Time(r.now()))
	args = append(args, id)

	query := r.db.Rebind(`UPDATE upload_queue SET ` + strings.Join(sets, ", ") +
		` WHERE id = ? RETURNING ` + uploadQueueColumns)
	job, err := scanUploadJob(r.db.QueryRowContext(ctx, query, args...))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrNotFound
		}
		return nil, fmt.Errorf("uploadQueueRepository.Update: %w", err)
	}
	return job, nil
}

func (r *uploadQueueRepository) Delete(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, r.db.Rebind(`DELETE FROM upload_queue WHERE id = ?`), id)
	if err != nil {
		return fmt.Errorf("uploadQueueRepository.Delete: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("uploadQueueRepository.Delete: %w", err)
	}
	if n == 0 {
		return common.ErrNotFound
	}
	return nil
}

func (r *uploadQueueRepository) CountByStatus(ctx context.Context) (map[string]int, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT status, COUNT(*) FROM upload_queue GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("uploadQueueRepository.CountByStatus: %w", err)
	}
	defer rows.Close()

	counts := map[string]int{
		model.UploadStatusQueued:     0,
		model.UploadStatusProcessing: 0,
		model.UploadStatusSuccess:    0,
		model.UploadStatusError:      0,
	}
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, fmt.Errorf("uploadQueueRepository.CountByStatus scan: %w", err)
		}
		counts[status] = n
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("uploadQueueRepository.CountByStatus rows: %w", err)
	}
	return counts, nil
}

func (r *uploadQueueRepository) queryJobs(ctx context.Context, query string, args ...any) ([]model.UploadQueueJob, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	jobs := []model.UploadQueueJob{}
	for rows.Next() {
		job, err := scanUploadJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, *job)
	}
	return jobs, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUploadJob(row rowScanner) (*model.UploadQueueJob, error) {
	job := &model.UploadQueueJob{}
	var batchID, createdBy, errMsg, errDetails sql.NullString
	err := row.Scan(
		&job.ID, &job.FileName, &job.FileSize, &job.FilePath, &job.Source, &batchID, &createdBy,
		&job.Status, &errMsg, &errDetails,
		database.ScanTime(&job.CreatedAt), database.ScanTime(&job.UpdatedAt), database.ScanNullTime(&job.CompletedAt),
	)
	if err != nil {
		return nil, err
	}
	job.UploadBatchID = stringPtr(batchID)
	job.CreatedBy = stringPtr(createdBy)
	job.ErrorMessage = stringPtr(errMsg)
	job.ErrorDetails = stringPtr(errDetails)
	return job, nil
}

func stringPtr(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	s := ns.String
	return &s
}
