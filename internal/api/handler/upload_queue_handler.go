package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"canditrack/internal/api/middleware"
	"canditrack/internal/app/service"
	"canditrack/internal/common"
	"canditrack/internal/domain/model"

	"github.com/go-chi/chi/v5"
)

type UploadQueueHandler struct {
	queueService  *service.UploadQueueService
	exportService *service.ExportService
	logger        *slog.Logger
}

func NewUploadQueueHandler(qs *service.UploadQueueService, es *service.ExportService, logger *slog.Logger) *UploadQueueHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &UploadQueueHandler{queueService: qs, exportService: es, logger: logger}
}

// RegisterRoutes expects an authenticated router.
func (h *UploadQueueHandler) RegisterRoutes(r chi.Router) {
	r.Get("/", h.listJobs)
	r.Post("/", h.enqueue)
	r.Get("/stats", h.stats)
	r.Get("/export.xlsx", h.export)
	r.Get("/{jobID}", h.getJob)
	r.Patch("/{jobID}", h.updateJob)
	r.Post("/{jobID}/requeue", h.requeueJob)
	r.With(middleware.AdminOnly).Delete("/{jobID}", h.deleteJob)
}

func (h *UploadQueueHandler) listJobs(w http.ResponseWriter, r *http.Request) {
	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))

	resp, err := h.queueService.List(r.Context(), page, limit)
	if err != nil {
		common.RespondWithError(w, common.HTTPStatusFromError(err), err.Error())
		return
	}
	common.RespondWithJSON(w, http.StatusOK, resp)
}

func (h *UploadQueueHandler) enqueue(w http.ResponseWriter, r *http.Request) {
	var req service.EnqueueRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		common.RespondWithError(w, http.StatusBadRequest, "Invalid request payload: "+err.Error())
		return
	}
	if req.CreatedBy == nil {
		if userID, ok := middleware.GetUserIDFromContext(r.Context()); ok {
			req.CreatedBy = &userID
		}
	}

	job, err := h.queueService.Enqueue(r.Context(), req)
	if err != nil {
		common.RespondWithError(w, common.HTTPStatusFromError(err), err.Error())
		return
	}
	common.RespondWithJSON(w, http.StatusCreated, job)
}

func (h *UploadQueueHandler) stats(w http.ResponseWriter, r *http.Request) {
	counts, err := h.queueService.Stats(r.Context())
	if err != nil {
		common.RespondWithError(w, common.HTTPStatusFromError(err), err.Error())
		return
	}
	common.RespondWithJSON(w, http.StatusOK, counts)
}

func (h *UploadQueueHandler) export(w http.ResponseWriter, r *http.Request) {
	data, err := h.exportService.QueueXLSX(r.Context())
	if err != nil {
		h.logger.Error("upload queue export failed", "err", err)
		common.RespondWithError(w, common.HTTPStatusFromError(err), err.Error())
		return
	}
	filename := "upload-queue-" + time.Now().UTC().Format("20060102-150405") + ".xlsx"
	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", `attachment; filename="`+filename+`"`)
	w.WriteHeader(http.StatusOK)
	w.Write(data)
}

func (h *UploadQueueHandler) getJob(w http.ResponseWriter, r *http.Request) {
	job, err := h.queueService.Get(r.Context(), chi.URLParam(r, "jobID"))
	if err != nil {
		common.RespondWithError(w, common.HTTPStatusFromError(err), err.Error())
		return
	}
	common.RespondWithJSON(w, http.StatusOK, job)
}

func (h *UploadQueueHandler) updateJob(w http.ResponseWriter, r *http.Request) {
	var patch model.UploadQueueJobPatch
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&patch); err != nil {
		common.RespondWithError(w, http.StatusBadRequest, "Invalid request payload: "+err.Error())
		return
	}

	job, err := h.queueService.Update(r.Context(), chi.URLParam(r, "jobID"), patch)
	if err != nil {
		common.RespondWithError(w, common.HTTPStatusFromError(err), err.Error())
		return
	}
	common.RespondWithJSON(w, http.StatusOK, job)
}

func (h *UploadQueueHandler) requeueJob(w http.ResponseWriter, r *http.Request) {
	job, err := h.queueService.Requeue(r.Context(), chi.URLParam(r, "jobID"))
	if err != nil {
		common.RespondWithError(w, common.HTTPStatusFromError(err), err.Error())
		return
	}
	common.RespondWithJSON(w, http.StatusOK, job)
}

func (h *UploadQueueHandler) deleteJob(w http.ResponseWriter, r *http.Request) {
	if err := h.queueService.Delete(r.Context(), chi.URLParam(r, "jobID")); err != nil {
		common.RespondWithError(w, common.HTTPStatusFromError(err), err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
