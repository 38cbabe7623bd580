package worker

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"time"

	"canditrack/internal/domain/model"
)

// maxWebhookBody caps how much of the webhook's reply is kept as error detail.
const maxWebhookBody = 1 << 20

type WebhookResponse struct {
	StatusCode int
	Body       string
}

func (r *WebhookResponse) OK() bool {
	return r.StatusCode >= 200 && r.StatusCode < 300
}

// WebhookClient forwards uploaded files to the automation webhook as multipart form data.
type WebhookClient struct {
	httpClient *http.Client
}

// NewWebhookClient returns a client; timeout 0 means the call may block as long
// as the webhook takes.
func NewWebhookClient(timeout time.Duration) *WebhookClient {
	return &WebhookClient{httpClient: &http.Client{Timeout: timeout}}
}

func (c *WebhookClient) Forward(ctx context.Context, url string, job *model.UploadQueueJob, data []byte) (*WebhookResponse, error) {
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)

	part, err := mw.CreateFormFile("file", job.FileName)
	if err != nil {
		return nil, fmt.Errorf("create multipart file part: %w", err)
	}
	if _, err := part.Write(data); err != nil {
		return nil, fmt.Errorf("write multipart file part: %w", err)
	}
	fields := [][2]string{
		{"file_name", job.FileName},
		{"job_id", job.ID},
		{"source", job.Source},
	}
	for _, f := range fields {
		if err := mw.WriteField(f[0], f[1]); err != nil {
			return nil, fmt.Errorf("write multipart field %s: %w", f[0], err)
		}
	}
	if err := mw.Close(); err != nil {
		return nil, fmt.Errorf("close multipart body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, &body)
	if err != nil {
		return nil, fmt.Errorf("build webhook request: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("webhook request to %s failed: %w", url, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxWebhookBody))
	if err != nil {
		return nil, fmt.Errorf("read webhook response: %w", err)
	}
	return &WebhookResponse{StatusCode: resp.StatusCode, Body: string(respBody)}, nil
}
