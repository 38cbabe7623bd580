package handler

import (
	"encoding/json"
	"net/http"

	"canditrack/internal/api/middleware"
	"canditrack/internal/app/service"
	"canditrack/internal/common"

	"github.com/go-chi/chi/v5"
)

type SettingsHandler struct {
	settingsService *service.SettingsService
}

func NewSettingsHandler(ss *service.SettingsService) *SettingsHandler {
	return &SettingsHandler{settingsService: ss}
}

func (h *SettingsHandler) RegisterRoutes(r chi.Router) {
	r.Get("/webhook", h.getWebhook)
	r.With(middleware.AdminOnly).Put("/webhook", h.updateWebhook)
}

func (h *SettingsHandler) getWebhook(w http.ResponseWriter, r *http.Request) {
	common.RespondWithJSON(w, http.StatusOK, h.settingsService.GetWebhook(r.Context()))
}

func (h *SettingsHandler) updateWebhook(w http.ResponseWriter, r *http.Request) {
	var req service.UpdateWebhookRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		common.RespondWithError(w, http.StatusBadRequest, "Invalid request payload: "+err.Error())
		return
	}
	resp, err := h.settingsService.SetWebhook(r.Context(), req)
	if err != nil {
		common.RespondWithError(w, common.HTTPStatusFromError(err), err.Error())
		return
	}
	common.RespondWithJSON(w, http.StatusOK, resp)
}
