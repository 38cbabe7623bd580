package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"

	"canditrack/internal/common"
	"canditrack/internal/domain/model"
	"canditrack/internal/domain/repository"
)

// DefaultUploadWebhookURL is used when neither the runtime setting nor the
// environment provides a webhook.
const DefaultUploadWebhookURL = "http://localhost:5678/webhook/candidate-upload"

type SettingsService struct {
	repo       repository.SettingsRepository
	envWebhook string
	logger     *slog.Logger
}

func NewSettingsService(repo repository.SettingsRepository, envWebhook string, logger *slog.Logger) *SettingsService {
	if logger == nil {
		logger = slog.Default()
	}
	return &SettingsService{repo: repo, envWebhook: strings.TrimSpace(envWebhook), logger: logger}
}

// WebhookSource says where the effective webhook URL came from.
const (
	WebhookSourceSetting = "setting"
	WebhookSourceEnv     = "env"
	WebhookSourceDefault = "default"
)

type WebhookSettingResponse struct {
	URL    string `json:"url"`
	Source string `json:"source"`
}

type UpdateWebhookRequest struct {
	URL string `json:"url"`
}

// WebhookURL resolves the upload webhook: runtime setting, then env, then the default.
// A failing settings lookup is logged and treated as unset.
func (s *SettingsService) WebhookURL(ctx context.Context) string {
	return s.resolveWebhook(ctx).URL
}

func (s *SettingsService) GetWebhook(ctx context.Context) *WebhookSettingResponse {
	return s.resolveWebhook(ctx)
}

func (s *SettingsService) resolveWebhook(ctx context.Context) *WebhookSettingResponse {
	setting, err := s.repo.Get(ctx, model.SettingUploadWebhookURL)
	switch {
	case err == nil && strings.TrimSpace(setting.Value) != "":
		return &WebhookSettingResponse{URL: strings.TrimSpace(setting.Value), Source: WebhookSourceSetting}
	case err != nil && !errors.Is(err, common.ErrNotFound):
		s.logger.Warn("webhook setting lookup failed, using fallback", "err", err)
	}
	if s.envWebhook != "" {
		return &WebhookSettingResponse{URL: s.envWebhook, Source: WebhookSourceEnv}
	}
	return &WebhookSettingResponse{URL: DefaultUploadWebhookURL, Source: WebhookSourceDefault}
}

// SetWebhook stores the runtime override. An empty URL removes it.
func (s *SettingsService) SetWebhook(ctx context.Context, req UpdateWebhookRequest) (*WebhookSettingResponse, error) {
	raw := strings.TrimSpace(req.URL)
	if raw == "" {
		if err := s.repo.Delete(ctx, model.SettingUploadWebhookURL); err != nil {
			return nil, fmt.Errorf("failed to clear webhook setting: %w", err)
		}
		return s.resolveWebhook(ctx), nil
	}

	u, err := url.Parse(raw)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, fmt.Errorf("webhook url must be an absolute http(s) URL: %w", common.ErrValidation)
	}
	if _, err := s.repo.Set(ctx, model.SettingUploadWebhookURL, raw); err != nil {
		return nil, fmt.Errorf("failed to save webhook setting: %w", err)
	}
	s.logger.Info("upload webhook updated", "url", raw)
	return &WebhookSettingResponse{URL: raw, Source: WebhookSourceSetting}, nil
}
