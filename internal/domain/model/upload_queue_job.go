package model

import (
	"time"
)

// Upload queue job statuses. Stored as plain text; the store does not enforce the set.
const (
	UploadStatusQueued     = "queued"
	UploadStatusProcessing = "processing"
	UploadStatusSuccess    = "success"
	UploadStatusError      = "error"
)

const (
	UploadSourceSingle = "single"
	UploadSourceBulk   = "bulk"
)

type UploadQueueJob struct {
	ID            string     `json:"id"`
	FileName      string     `json:"file_name"`
	FileSize      int64      `json:"file_size"`
	FilePath      string     `json:"file_path"`
	Source        string     `json:"source"`
	UploadBatchID *string    `json:"upload_batch_id,omitempty"`
	CreatedBy     *string    `json:"created_by,omitempty"`
	Status        string     `json:"status"`
	ErrorMessage  *string    `json:"error_message"`
	ErrorDetails  *string    `json:"error_details"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
	CompletedAt   *time.Time `json:"completed_at"`
}

// UploadJobResult is the terminal write for one processing attempt.
type UploadJobResult struct {
	Status       string
	ErrorMessage *string
	ErrorDetails *string
	CompletedAt  time.Time
}

// UploadQueueJobPatch carries an administrative update. Nil fields are left alone.
// file_path is immutable, so it has no field here.
type UploadQueueJobPatch struct {
	FileName      *string `json:"file_name,omitempty"`
	FileSize      *int64  `json:"file_size,omitempty"`
	Source        *string `json:"source,omitempty"`
	UploadBatchID *string `json:"upload_batch_id,omitempty"`
	Status        *string `json:"status,omitempty"`
	ErrorMessage  *string `json:"error_message,omitempty"`
	ErrorDetails  *string `json:"error_details,omitempty"`

	// ClearError nulls error_message, error_details and completed_at.
	ClearError bool `json:"clear_error,omitempty"`
}

func (p UploadQueueJobPatch) IsEmpty() bool {
	return p.FileName == nil && p.FileSize == nil && p.Source == nil && p.UploadBatchID == nil &&
		p.Status == nil && p.ErrorMessage == nil && p.ErrorDetails == nil && !p.ClearError
}

func IsValidUploadStatus(status string) bool {
	switch status {
	case UploadStatusQueued, UploadStatusProcessing, UploadStatusSuccess, UploadStatusError:
		return true
	}
	return false
}

func IsValidUploadSource(source string) bool {
	return source == UploadSourceSingle || source == UploadSourceBulk
}
