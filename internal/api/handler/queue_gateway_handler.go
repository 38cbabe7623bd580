package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"canditrack/internal/app/worker"
	"canditrack/internal/common"
	"canditrack/internal/domain/model"
)

type GatewayProcessor interface {
	ProcessNext(ctx context.Context) (*worker.ProcessResult, error)
}

// QueueGatewayHandler exposes one claim-and-process cycle per POST. The API
// key check runs as middleware in front of it.
type QueueGatewayHandler struct {
	processor GatewayProcessor
	logger    *slog.Logger
}

func NewQueueGatewayHandler(p GatewayProcessor, logger *slog.Logger) *QueueGatewayHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &QueueGatewayHandler{processor: p, logger: logger}
}

type ProcessJobResponse struct {
	Job           *model.UploadQueueJob `json:"job"`
	WebhookStatus *int                  `json:"webhook_status"`
}

type ProcessErrorResponse struct {
	Error string `json:"error"`
	Stack string `json:"stack"`
}

func (h *QueueGatewayHandler) Process(w http.ResponseWriter, r *http.Request) {
	res, err := h.processor.ProcessNext(r.Context())
	if err != nil {
		resp := ProcessErrorResponse{Error: err.Error()}
		var perr *worker.ProcessError
		if errors.As(err, &perr) {
			resp.Stack = perr.Stack
		}
		h.logger.Error("queue gateway cycle failed", "err", err)
		common.RespondWithJSON(w, http.StatusInternalServerError, resp)
		return
	}
	if res.NoJob {
		common.RespondWithJSON(w, http.StatusOK, common.MessageResponse{Message: worker.NoQueuedJobsMessage})
		return
	}
	common.RespondWithJSON(w, http.StatusOK, ProcessJobResponse{Job: res.Job, WebhookStatus: res.WebhookStatus})
}
