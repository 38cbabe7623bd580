package model

import "time"

// SettingUploadWebhookURL overrides the webhook that receives queued uploads.
const SettingUploadWebhookURL = "upload_webhook_url"

// SettingBootstrapAdmin holds the id of the operator that claimed the admin
// role on an empty users table. Only one signup can insert it.
const SettingBootstrapAdmin = "bootstrap_admin_user_id"

type Setting struct {
	Key       string    `json:"key"`
	Value     string    `json:"value"`
	UpdatedAt time.Time `json:"updated_at"`
}
