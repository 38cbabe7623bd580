package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"canditrack/internal/api"
	"canditrack/internal/app/service"
	"canditrack/internal/app/worker"
	"canditrack/internal/common/security"
	"canditrack/internal/domain/model"
	"canditrack/internal/domain/repository"
	"canditrack/internal/testsupport"
)

const testAPIKey = "queue-secret"

type testServer struct {
	handler  http.Handler
	repo     repository.UploadQueueRepository
	store    *testsupport.MemoryStore
	settings *service.SettingsService
}

func newTestServer(t *testing.T, webhookURL string) *testServer {
	t.Helper()
	db := testsupport.OpenSQLite(t)
	queueRepo := repository.NewUploadQueueRepository(db)
	store := testsupport.NewMemoryStore()
	tokens := security.NewTokenIssuer([]byte("router-test"), time.Hour)

	settings := service.NewSettingsService(repository.NewSettingsRepository(db), webhookURL, nil)
	queue := service.NewUploadQueueService(queueRepo, nil, nil)
	uploadWorker := worker.NewUploadWorker(queueRepo, store, worker.NewWebhookClient(5*time.Second), settings, nil, nil)

	h := api.NewRouter(api.Deps{
		Tokens:          tokens,
		AuthService:     service.NewAuthService(repository.NewUserRepository(db), repository.NewSettingsRepository(db), tokens, nil),
		QueueService:    queue,
		UploadService:   service.NewUploadService(store, queue, nil),
		SettingsService: settings,
		ExportService:   service.NewExportService(queueRepo, nil),
		Processor:       worker.NewQueueProcessor(queueRepo, uploadWorker, nil, nil),
		QueueAPIKey:     testAPIKey,
		MaxUploadBytes:  1 << 20,
	})
	return &testServer{handler: h, repo: queueRepo, store: store, settings: settings}
}

func (s *testServer) do(t *testing.T, method, path string, body io.Reader, header http.Header) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, body)
	for k, v := range header {
		req.Header[k] = v
	}
	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)
	return rec
}

func (s *testServer) signup(t *testing.T, username string) string {
	t.Helper()
	payload := `{"username":"` + username + `","email":"` + username + `@example.com","password":"password1"}`
	rec := s.do(t, http.MethodPost, "/api/v1/auth/signup", strings.NewReader(payload), nil)
	if rec.Code != http.StatusCreated {
		t.Fatalf("signup %s: status %d body %s", username, rec.Code, rec.Body.String())
	}
	var resp service.AuthResponse
	decode(t, rec, &resp)
	return resp.Token
}

func bearer(token string) http.Header {
	return http.Header{"Authorization": {"Bearer " + token}}
}

func apiKey(key string) http.Header {
	return http.Header{"X-Api-Key": {key}}
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, v any) {
	t.Helper()
	if err := json.Unmarshal(rec.Body.Bytes(), v); err != nil {
		t.Fatalf("decode %q: %v", rec.Body.String(), err)
	}
}

func TestGatewayRejectsBadKeyWithoutClaiming(t *testing.T) {
	s := newTestServer(t, "")
	job := testsupport.EnqueueJob(t, s.repo, "uploads/cv.pdf")

	for name, header := range map[string]http.Header{
		"missing": nil,
		"wrong":   apiKey("nope"),
	} {
		rec := s.do(t, http.MethodPost, "/api/v1/upload-queue/process", nil, header)
		if rec.Code != http.StatusUnauthorized {
			t.Fatalf("%s key: status %d", name, rec.Code)
		}
		var body map[string]string
		decode(t, rec, &body)
		if body["error"] != "Unauthorized" {
			t.Fatalf("%s key: body %v", name, body)
		}
	}

	got, err := s.repo.GetByID(context.Background(), job.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if got.Status != model.UploadStatusQueued {
		t.Fatalf("job was touched by an unauthorized call: %q", got.Status)
	}
}

func TestGatewayEmptyQueue(t *testing.T) {
	s := newTestServer(t, "")

	rec := s.do(t, http.MethodPost, "/api/v1/upload-queue/process", nil, apiKey(testAPIKey))
	if rec.Code != http.StatusOK {
		t.Fatalf("status %d body %s", rec.Code, rec.Body.String())
	}
	var body map[string]string
	decode(t, rec, &body)
	if body["message"] != "No queued jobs" {
		t.Fatalf("unexpected body %v", body)
	}
}

func TestGatewayProcessesOldestJob(t *testing.T) {
	var gotFileName string
	hook := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseMultipartForm(1 << 20); err == nil {
			gotFileName = r.FormValue("file_name")
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer hook.Close()

	s := newTestServer(t, hook.URL)
	base := time.Now().Add(-time.Minute)
	older := testsupport.EnqueueJob(t, s.repo, "uploads/old.pdf", testsupport.WithCreatedAt(base), testsupport.WithFileName("old.pdf"))
	testsupport.EnqueueJob(t, s.repo, "uploads/new.pdf", testsupport.WithCreatedAt(base.Add(time.Second)))
	if err := s.store.Put(context.Background(), "uploads/old.pdf", strings.NewReader("pdf"), 3, "application/pdf"); err != nil {
		t.Fatalf("Put: %v", err)
	}

	rec := s.do(t, http.MethodPost, "/api/v1/upload-queue/process", nil, apiKey(testAPIKey))
	if rec.Code != http.StatusOK {
		t.Fatalf("status %d body %s", rec.Code, rec.Body.String())
	}
	var body struct {
		Job           model.UploadQueueJob `json:"job"`
		WebhookStatus *int                 `json:"webhook_status"`
	}
	decode(t, rec, &body)
	if body.Job.ID != older.ID || body.Job.Status != model.UploadStatusSuccess {
		t.Fatalf("unexpected job %+v", body.Job)
	}
	if body.WebhookStatus == nil || *body.WebhookStatus != http.StatusOK {
		t.Fatalf("unexpected webhook status %v", body.WebhookStatus)
	}
	if gotFileName != "old.pdf" {
		t.Fatalf("webhook saw file_name %q", gotFileName)
	}
}

func TestGatewayReportsFailureWithStack(t *testing.T) {
	s := newTestServer(t, "http://127.0.0.1:1/unused")
	job := testsupport.EnqueueJob(t, s.repo, "uploads/cv.pdf")
	s.store.GetErr = errors.New("bucket offline")

	rec := s.do(t, http.MethodPost, "/api/v1/upload-queue/process", nil, apiKey(testAPIKey))
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status %d body %s", rec.Code, rec.Body.String())
	}
	var body map[string]string
	decode(t, rec, &body)
	if !strings.Contains(body["error"], "bucket offline") || body["stack"] == "" {
		t.Fatalf("unexpected body %v", body)
	}

	got, err := s.repo.GetByID(context.Background(), job.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if got.Status != model.UploadStatusError {
		t.Fatalf("expected error status, got %q", got.Status)
	}
}

func TestQueueRoutesRequireToken(t *testing.T) {
	s := newTestServer(t, "")

	for _, path := range []string{"/api/v1/upload-queue", "/api/v1/upload-queue/stats", "/api/v1/settings/webhook"} {
		if rec := s.do(t, http.MethodGet, path, nil, nil); rec.Code != http.StatusUnauthorized {
			t.Fatalf("GET %s without token: status %d", path, rec.Code)
		}
	}
	// The gateway key is not a substitute for an operator token.
	if rec := s.do(t, http.MethodGet, "/api/v1/upload-queue", nil, apiKey(testAPIKey)); rec.Code != http.StatusUnauthorized {
		t.Fatalf("list with API key only: status %d", rec.Code)
	}
}

func TestOperatorRoles(t *testing.T) {
	s := newTestServer(t, "")
	admin := s.signup(t, "ada")
	recruiter := s.signup(t, "bob")

	for token, want := range map[string]string{admin: model.RoleAdmin, recruiter: model.RoleRecruiter} {
		rec := s.do(t, http.MethodGet, "/api/v1/auth/me", nil, bearer(token))
		if rec.Code != http.StatusOK {
			t.Fatalf("me: status %d", rec.Code)
		}
		var me struct {
			Role    string `json:"role"`
			IsAdmin bool   `json:"is_admin"`
		}
		decode(t, rec, &me)
		if me.Role != want || me.IsAdmin != (want == model.RoleAdmin) {
			t.Fatalf("me = %+v, want role %q", me, want)
		}
	}

	if rec := s.do(t, http.MethodGet, "/api/v1/auth/me", nil, nil); rec.Code != http.StatusUnauthorized {
		t.Fatalf("me without token: status %d", rec.Code)
	}
}

func TestQueueAdministration(t *testing.T) {
	s := newTestServer(t, "")
	admin := s.signup(t, "ada")
	recruiter := s.signup(t, "bob")

	rec := s.do(t, http.MethodPost, "/api/v1/upload-queue", strings.NewReader(`{"file_path":"uploads/x.pdf","file_name":"x.pdf"}`), bearer(recruiter))
	if rec.Code != http.StatusCreated {
		t.Fatalf("enqueue: status %d body %s", rec.Code, rec.Body.String())
	}
	var job model.UploadQueueJob
	decode(t, rec, &job)
	if job.CreatedBy == nil || *job.CreatedBy == "" {
		t.Fatalf("expected created_by from token, got %+v", job)
	}

	rec = s.do(t, http.MethodPost, "/api/v1/upload-queue", strings.NewReader(`{"file_name":"x.pdf"}`), bearer(recruiter))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("enqueue without path: status %d", rec.Code)
	}

	rec = s.do(t, http.MethodGet, "/api/v1/upload-queue?page=1&limit=10", nil, bearer(recruiter))
	if rec.Code != http.StatusOK {
		t.Fatalf("list: status %d", rec.Code)
	}
	var list service.ListJobsResponse
	decode(t, rec, &list)
	if list.Total != 1 || len(list.Jobs) != 1 {
		t.Fatalf("unexpected list %+v", list)
	}

	rec = s.do(t, http.MethodPatch, "/api/v1/upload-queue/"+job.ID, strings.NewReader(`{"file_path":"elsewhere"}`), bearer(recruiter))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("patching file_path: status %d", rec.Code)
	}

	rec = s.do(t, http.MethodPatch, "/api/v1/upload-queue/"+job.ID, strings.NewReader(`{"status":"error","error_message":"manual"}`), bearer(recruiter))
	if rec.Code != http.StatusOK {
		t.Fatalf("patch: status %d body %s", rec.Code, rec.Body.String())
	}

	rec = s.do(t, http.MethodPost, "/api/v1/upload-queue/"+job.ID+"/requeue", nil, bearer(recruiter))
	if rec.Code != http.StatusOK {
		t.Fatalf("requeue: status %d", rec.Code)
	}
	decode(t, rec, &job)
	if job.Status != model.UploadStatusQueued || job.ErrorMessage != nil {
		t.Fatalf("unexpected requeued job %+v", job)
	}

	rec = s.do(t, http.MethodGet, "/api/v1/upload-queue/stats", nil, bearer(recruiter))
	var stats map[string]int
	decode(t, rec, &stats)
	if stats[model.UploadStatusQueued] != 1 {
		t.Fatalf("unexpected stats %v", stats)
	}

	rec = s.do(t, http.MethodGet, "/api/v1/upload-queue/export.xlsx", nil, bearer(recruiter))
	if rec.Code != http.StatusOK || rec.Body.Len() == 0 {
		t.Fatalf("export: status %d len %d", rec.Code, rec.Body.Len())
	}

	if rec = s.do(t, http.MethodDelete, "/api/v1/upload-queue/"+job.ID, nil, bearer(recruiter)); rec.Code != http.StatusForbidden {
		t.Fatalf("recruiter delete: status %d", rec.Code)
	}
	if rec = s.do(t, http.MethodDelete, "/api/v1/upload-queue/"+job.ID, nil, bearer(admin)); rec.Code != http.StatusNoContent {
		t.Fatalf("admin delete: status %d", rec.Code)
	}
	if rec = s.do(t, http.MethodGet, "/api/v1/upload-queue/"+job.ID, nil, bearer(admin)); rec.Code != http.StatusNotFound {
		t.Fatalf("get deleted: status %d", rec.Code)
	}
}

func TestMultipartUpload(t *testing.T) {
	s := newTestServer(t, "")
	token := s.signup(t, "ada")

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for _, name := range []string{"one.pdf", "two.pdf"} {
		part, err := mw.CreateFormFile("files", name)
		if err != nil {
			t.Fatalf("CreateFormFile: %v", err)
		}
		part.Write([]byte("content of " + name))
	}
	mw.Close()

	header := bearer(token)
	header.Set("Content-Type", mw.FormDataContentType())
	rec := s.do(t, http.MethodPost, "/api/v1/uploads", &buf, header)
	if rec.Code != http.StatusCreated {
		t.Fatalf("upload: status %d body %s", rec.Code, rec.Body.String())
	}
	var resp service.UploadResponse
	decode(t, rec, &resp)
	if resp.UploadBatchID == nil || len(resp.Jobs) != 2 {
		t.Fatalf("unexpected upload response %+v", resp)
	}
	for _, job := range resp.Jobs {
		if _, ok := s.store.Object(job.FilePath); !ok {
			t.Fatalf("object %s not stored", job.FilePath)
		}
	}

	empty := bearer(token)
	var none bytes.Buffer
	mw = multipart.NewWriter(&none)
	mw.Close()
	empty.Set("Content-Type", mw.FormDataContentType())
	if rec = s.do(t, http.MethodPost, "/api/v1/uploads", &none, empty); rec.Code != http.StatusBadRequest {
		t.Fatalf("empty upload: status %d", rec.Code)
	}
}

func TestWebhookSettings(t *testing.T) {
	s := newTestServer(t, "")
	admin := s.signup(t, "ada")
	recruiter := s.signup(t, "bob")

	body := `{"url":"https://hooks.example/cv"}`
	if rec := s.do(t, http.MethodPut, "/api/v1/settings/webhook", strings.NewReader(body), bearer(recruiter)); rec.Code != http.StatusForbidden {
		t.Fatalf("recruiter put: status %d", rec.Code)
	}
	if rec := s.do(t, http.MethodPut, "/api/v1/settings/webhook", strings.NewReader(body), bearer(admin)); rec.Code != http.StatusOK {
		t.Fatalf("admin put: status %d body %s", rec.Code, rec.Body.String())
	}

	rec := s.do(t, http.MethodGet, "/api/v1/settings/webhook", nil, bearer(recruiter))
	var got service.WebhookSettingResponse
	decode(t, rec, &got)
	if got.URL != "https://hooks.example/cv" || got.Source != service.WebhookSourceSetting {
		t.Fatalf("unexpected webhook setting %+v", got)
	}
	if u := s.settings.WebhookURL(context.Background()); u != got.URL {
		t.Fatalf("worker would use %q", u)
	}
}

func TestEventsUnavailableWithoutSubscriber(t *testing.T) {
	s := newTestServer(t, "")
	token := s.signup(t, "ada")

	if rec := s.do(t, http.MethodGet, "/api/v1/upload-queue/events", nil, bearer(token)); rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("events: status %d", rec.Code)
	}
}
