package model

const QueueEventUpdated = "queue_updated"

// QueueEvent is published whenever the upload queue changes. Observers only
// need Type; JobID and Status are hints.
type QueueEvent struct {
	Type   string `json:"type"`
	JobID  string `json:"job_id,omitempty"`
	Status string `json:"status,omitempty"`
}

func QueueUpdated(jobID, status string) QueueEvent {
	return QueueEvent{Type: QueueEventUpdated, JobID: jobID, Status: status}
}
