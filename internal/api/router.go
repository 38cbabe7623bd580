package api

import (
	"log/slog"
	"net/http"
	"time"

	"canditrack/internal/api/handler"
	"canditrack/internal/api/middleware"
	"canditrack/internal/app/service"
	"canditrack/internal/common/security"
	"canditrack/internal/platform/notify"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/jwtauth/v5"
)

type Deps struct {
	Tokens          *security.TokenIssuer
	AuthService     *service.AuthService
	QueueService    *service.UploadQueueService
	UploadService   *service.UploadService
	SettingsService *service.SettingsService
	ExportService   *service.ExportService
	Processor       handler.GatewayProcessor
	// Events may be nil; the events endpoint then answers 503.
	Events         notify.Subscriber
	QueueAPIKey    string
	MaxUploadBytes int64
	Logger         *slog.Logger
}

func NewRouter(d Deps) http.Handler {
	r := chi.NewRouter()

	// Base Middlewares
	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(chiMiddleware.Logger)
	r.Use(chiMiddleware.Recoverer)

	// Verifies a Bearer token when present; Authenticator enforces it per group.
	r.Use(jwtauth.Verifier(d.Tokens.JWTAuth()))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("OK"))
	})

	authHandler := handler.NewAuthHandler(d.AuthService, d.Logger)
	gatewayHandler := handler.NewQueueGatewayHandler(d.Processor, d.Logger)
	queueHandler := handler.NewUploadQueueHandler(d.QueueService, d.ExportService, d.Logger)
	uploadHandler := handler.NewUploadHandler(d.UploadService, d.MaxUploadBytes)
	settingsHandler := handler.NewSettingsHandler(d.SettingsService)
	eventsHandler := handler.NewQueueEventsHandler(d.Events, d.Logger)

	r.Route("/api/v1", func(v1 chi.Router) {
		v1.Group(func(public chi.Router) {
			public.Use(chiMiddleware.Timeout(60 * time.Second))
			public.Route("/auth", authHandler.RegisterRoutes)
		})

		v1.Route("/upload-queue", func(q chi.Router) {
			// The gateway has no request deadline: a slow webhook is allowed to finish.
			q.With(middleware.APIKey(d.QueueAPIKey)).Post("/process", gatewayHandler.Process)

			q.Group(func(authed chi.Router) {
				authed.Use(middleware.Authenticator(d.Logger))
				authed.Get("/events", eventsHandler.Stream)

				authed.Group(func(timed chi.Router) {
					timed.Use(chiMiddleware.Timeout(60 * time.Second))
					queueHandler.RegisterRoutes(timed)
				})
			})
		})

		v1.Group(func(authed chi.Router) {
			authed.Use(middleware.Authenticator(d.Logger))
			authed.Use(chiMiddleware.Timeout(60 * time.Second))
			authed.Route("/uploads", uploadHandler.RegisterRoutes)
			authed.Route("/settings", settingsHandler.RegisterRoutes)
		})
	})

	return r
}
