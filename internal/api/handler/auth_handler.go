package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"canditrack/internal/api/middleware"
	"canditrack/internal/app/service"
	"canditrack/internal/common"
	"canditrack/internal/domain/model"

	"github.com/go-chi/chi/v5"
)

type AuthHandler struct {
	authService *service.AuthService
	logger      *slog.Logger
}

func NewAuthHandler(authService *service.AuthService, logger *slog.Logger) *AuthHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &AuthHandler{authService: authService, logger: logger}
}

func (h *AuthHandler) RegisterRoutes(r chi.Router) {
	r.Post("/signup", h.signup)
	r.Post("/login", h.login)
	r.With(middleware.Authenticator(h.logger)).Get("/me", h.me)
}

// OperatorResponse describes the caller as seen by the queue endpoints.
type OperatorResponse struct {
	UserID  string `json:"user_id"`
	Role    string `json:"role"`
	IsAdmin bool   `json:"is_admin"`
}

func (h *AuthHandler) signup(w http.ResponseWriter, r *http.Request) {
	var req service.SignupRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		common.RespondWithError(w, http.StatusBadRequest, "Invalid request payload: "+err.Error())
		return
	}

	resp, err := h.authService.Signup(r.Context(), req)
	if err != nil {
		h.respondAuthError(w, r, "signup", err)
		return
	}
	if resp.User.Role == model.RoleAdmin {
		h.logger.Info("first operator registered as admin", "user_id", resp.User.ID)
	}
	common.RespondWithJSON(w, http.StatusCreated, resp)
}

func (h *AuthHandler) login(w http.ResponseWriter, r *http.Request) {
	var req service.LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		common.RespondWithError(w, http.StatusBadRequest, "Invalid request payload: "+err.Error())
		return
	}
	resp, err := h.authService.Login(r.Context(), req)
	if err != nil {
		h.respondAuthError(w, r, "login", err)
		return
	}
	common.RespondWithJSON(w, http.StatusOK, resp)
}

func (h *AuthHandler) me(w http.ResponseWriter, r *http.Request) {
	userID, _ := middleware.GetUserIDFromContext(r.Context())
	role, _ := middleware.GetUserRoleFromContext(r.Context())
	common.RespondWithJSON(w, http.StatusOK, OperatorResponse{
		UserID:  userID,
		Role:    role,
		IsAdmin: role == model.RoleAdmin,
	})
}

func (h *AuthHandler) respondAuthError(w http.ResponseWriter, r *http.Request, action string, err error) {
	status := common.HTTPStatusFromError(err)
	if status >= http.StatusInternalServerError {
		h.logger.Error(action+" failed", "err", err)
	} else {
		h.logger.Info(action+" rejected", "status", status, "remote", r.RemoteAddr)
	}
	common.RespondWithError(w, status, err.Error())
}
