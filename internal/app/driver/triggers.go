package driver

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"canditrack/internal/app/worker"
	"canditrack/internal/domain/model"
)

// APIKeyHeader carries the shared secret the gateway checks.
const APIKeyHeader = "x-api-key"

// HTTPTrigger calls the gateway endpoint over HTTP.
type HTTPTrigger struct {
	url    string
	apiKey string
	client *http.Client
}

// NewHTTPTrigger builds a trigger; a nil client means no request timeout.
func NewHTTPTrigger(url, apiKey string, client *http.Client) *HTTPTrigger {
	if client == nil {
		client = &http.Client{}
	}
	return &HTTPTrigger{url: url, apiKey: apiKey, client: client}
}

type gatewayResponse struct {
	Message       string                `json:"message"`
	Job           *model.UploadQueueJob `json:"job"`
	WebhookStatus *int                  `json:"webhook_status"`
	Error         string                `json:"error"`
}

func (t *HTTPTrigger) Trigger(ctx context.Context) (*Outcome, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.url, nil)
	if err != nil {
		return nil, fmt.Errorf("build gateway request: %w", err)
	}
	req.Header.Set(APIKeyHeader, t.apiKey)

	resp, err := t.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("gateway request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("read gateway response: %w", err)
	}

	var parsed gatewayResponse
	if len(body) > 0 {
		if err := json.Unmarshal(body, &parsed); err != nil && resp.StatusCode == http.StatusOK {
			return nil, fmt.Errorf("decode gateway response: %w", err)
		}
	}
	if resp.StatusCode != http.StatusOK {
		msg := parsed.Error
		if msg == "" {
			msg = strings.TrimSpace(string(body))
		}
		return nil, fmt.Errorf("gateway returned %d: %s", resp.StatusCode, msg)
	}

	if parsed.Job == nil {
		return &Outcome{NoJob: true}, nil
	}
	return &Outcome{JobID: parsed.Job.ID, Status: parsed.Job.Status, WebhookStatus: parsed.WebhookStatus}, nil
}

// NextProcessor is satisfied by *worker.QueueProcessor.
type NextProcessor interface {
	ProcessNext(ctx context.Context) (*worker.ProcessResult, error)
}

// ProcessorTrigger runs cycles in-process, skipping the HTTP hop.
type ProcessorTrigger struct {
	processor NextProcessor
}

func NewProcessorTrigger(p NextProcessor) *ProcessorTrigger {
	return &ProcessorTrigger{processor: p}
}

func (t *ProcessorTrigger) Trigger(ctx context.Context) (*Outcome, error) {
	res, err := t.processor.ProcessNext(ctx)
	if err != nil {
		return nil, err
	}
	if res.NoJob || res.Job == nil {
		return &Outcome{NoJob: true}, nil
	}
	return &Outcome{JobID: res.Job.ID, Status: res.Job.Status, WebhookStatus: res.WebhookStatus}, nil
}
