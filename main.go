package main

import (
	"log"
	"net/http"
	"os"
	"strings"

	"github.com/getsentry/sentry-go"
	"github.com/joho/godotenv"
	"github.com/stripe/stripe-go/v82"

	"robotcfe.app/cloud/handlers"
	"robotcfe.app/cloud/internal/billing"
	"robotcfe.app/cloud/internal/config"
	"robotcfe.app/cloud/internal/email"
	"robotcfe.app/cloud/internal/logger"
	"robotcfe.app/cloud/storage"
)

var version = "dev"

func main() {
	if versionBytes, err := os.ReadFile("VERSION"); err == nil {
		version = strings.TrimSpace(string(versionBytes))
	}

	godotenv.Load()

	cfg, err := config.New()
	if err != nil {
		log.Fatalf("config: %s", err)
	}

	if err := sentry.Init(sentry.ClientOptions{
		Dsn:              cfg.SentryDSN,
		TracesSampleRate: 1.0,
	}); err != nil {
		log.Fatalf("sentry.Init: %s", err)
	}

	stripe.Key = cfg.StripeSecret

	store, err := storage.NewSQLiteStore(cfg.DatabasePath)
	if err != nil {
		log.Fatalf("storage: %s", err)
	}
	defer store.Close()

	classifier := billing.NewClassifier(billing.StripeResolver{})
	notifier := email.NewDispatcher(&email.SMTPNotifier{
		Host:     cfg.SMTPHost,
		Port:     cfg.SMTPPort,
		Username: cfg.SMTPUsername,
		Password: cfg.SMTPPassword,
		From:     cfg.EmailFrom,
	})

	server := handlers.NewServer(store, classifier, notifier, cfg.StripeWebhookSecret, version)

	logger.Info("Robot CFE license API starting", map[string]interface{}{
		"version": version,
		"port":    cfg.Port,
	})

	log.Fatal(http.ListenAndServe(":"+cfg.Port, server.Router))
}
