package web

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"podcast-subscription-backend/internal/usecase"
)

type Server struct {
	purchaseUC  usecase.PurchaseUseCase
	webhookUC   usecase.WebhookUseCase
	reconcileUC usecase.ReconcileUseCase
	auth        *AuthManager
	cronSecret  string
	log         *zerolog.Logger
}

func NewServer(
	purchaseUC usecase.PurchaseUseCase,
	webhookUC usecase.WebhookUseCase,
	reconcileUC usecase.ReconcileUseCase,
	auth *AuthManager,
	cronSecret string,
	logger *zerolog.Logger,
) *Server {
	l := logger.With().Str("component", "web").Logger()
	return &Server{
		purchaseUC:  purchaseUC,
		webhookUC:   webhookUC,
		reconcileUC: reconcileUC,
		auth:        auth,
		cronSecret:  cronSecret,
		log:         &l,
	}
}

// Router builds the full route tree.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(s.traceID)
	r.Use(s.requestLog)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		// Machine-to-machine routes carry their own auth.
		r.Post("/cron", s.handleCron)
		r.Post("/webhooks/subscriptions/apple", s.handleAppleWebhook)

		r.Group(func(r chi.Router) {
			r.Use(s.sessionAuth)
			r.Post("/users/{userID}/subscriptions", s.handleCreateSubscription)
			r.Get("/users/{userID}/subscriptions", s.handleListSubscriptions)
		})
	})
	return r
}
