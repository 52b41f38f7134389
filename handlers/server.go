package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"

	"robotcfe.app/cloud/internal/billing"
	"robotcfe.app/cloud/internal/email"
	"robotcfe.app/cloud/internal/logger"
	"robotcfe.app/cloud/internal/ratelimit"
	"robotcfe.app/cloud/storage"
)

type Server struct {
	Router     *chi.Mux
	Store      storage.Store
	Classifier *billing.Classifier
	Notifier   *email.Dispatcher

	WebhookSecret string
	Version       string

	// Now is swapped out in tests; everything time-dependent goes through it.
	Now func() time.Time
}

type HealthResponse struct {
	Status       string    `json:"status"`
	Version      string    `json:"version"`
	Timestamp    time.Time `json:"timestamp"`
	EmailsSent   int64     `json:"emails_sent"`
	EmailsFailed int64     `json:"emails_failed"`
}

func NewServer(store storage.Store, classifier *billing.Classifier, notifier *email.Dispatcher, webhookSecret, version string) *Server {
	s := &Server{
		Router:        chi.NewRouter(),
		Store:         store,
		Classifier:    classifier,
		Notifier:      notifier,
		WebhookSecret: webhookSecret,
		Version:       version,
		Now:           time.Now,
	}

	s.Router.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST"},
		AllowedHeaders: []string{"Content-Type", "Stripe-Signature"},
	}))

	limiter := ratelimit.New(60, time.Minute)

	s.Router.Get("/health", s.Health)
	s.Router.Route("/api/v1", func(r chi.Router) {
		r.Post("/webhooks/stripe", s.Stripe)
		r.With(rateLimited(limiter)).Get("/licenses/{email}", s.CheckSubscription)
	})

	return s
}

func (s *Server) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{
		Status:       "healthy",
		Version:      s.Version,
		Timestamp:    s.Now(),
		EmailsSent:   s.Notifier.Sent(),
		EmailsFailed: s.Notifier.Failed(),
	})
}

func rateLimited(limiter ratelimit.RateLimit) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !limiter.Allow(r.RemoteAddr) {
				logger.Warn("Rate limit exceeded", map[string]interface{}{
					"remote_addr": r.RemoteAddr,
					"path":        r.URL.Path,
				})
				writeError(w, http.StatusTooManyRequests, "Too many requests")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		logger.Error("Failed to encode response", map[string]interface{}{
			"error": err.Error(),
		})
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
