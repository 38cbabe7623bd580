package handler

import (
	"errors"
	"mime/multipart"
	"net/http"

	"canditrack/internal/api/middleware"
	"canditrack/internal/app/service"
	"canditrack/internal/common"

	"github.com/go-chi/chi/v5"
)

type UploadHandler struct {
	uploadService *service.UploadService
	maxBytes      int64
}

func NewUploadHandler(us *service.UploadService, maxBytes int64) *UploadHandler {
	return &UploadHandler{uploadService: us, maxBytes: maxBytes}
}

func (h *UploadHandler) RegisterRoutes(r chi.Router) {
	r.Post("/", h.upload)
}

// upload accepts multipart form files under "file" or "files".
func (h *UploadHandler) upload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxBytes)
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			common.RespondWithError(w, http.StatusRequestEntityTooLarge, "Upload exceeds size limit")
			return
		}
		common.RespondWithError(w, http.StatusBadRequest, "Invalid multipart form: "+err.Error())
		return
	}
	defer r.MultipartForm.RemoveAll()

	var headers []*multipart.FileHeader
	headers = append(headers, r.MultipartForm.File["file"]...)
	headers = append(headers, r.MultipartForm.File["files"]...)

	req := service.UploadRequest{}
	if userID, ok := middleware.GetUserIDFromContext(r.Context()); ok {
		req.CreatedBy = &userID
	}
	for _, fh := range headers {
		f, err := fh.Open()
		if err != nil {
			common.RespondWithError(w, http.StatusBadRequest, "Could not read "+fh.Filename)
			return
		}
		defer f.Close()
		req.Files = append(req.Files, service.UploadFile{
			Name:        fh.Filename,
			Size:        fh.Size,
			ContentType: fh.Header.Get("Content-Type"),
			Body:        f,
		})
	}

	resp, err := h.uploadService.Upload(r.Context(), req)
	if err != nil {
		common.RespondWithError(w, common.HTTPStatusFromError(err), err.Error())
		return
	}
	common.RespondWithJSON(w, http.StatusCreated, resp)
}
