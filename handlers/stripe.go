package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"os"

	"github.com/google/uuid"
	"github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/webhook"

	"robotcfe.app/cloud/internal/billing"
	"robotcfe.app/cloud/internal/email"
	"robotcfe.app/cloud/internal/logger"
	"robotcfe.app/cloud/models"
	"robotcfe.app/cloud/storage"
)

func (s *Server) Stripe(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	logger.Info("Stripe webhook received", map[string]interface{}{
		"remote_addr": r.RemoteAddr,
		"user_agent":  r.Header.Get("User-Agent"),
	})

	const MaxBodyBytes = int64(65536)
	r.Body = http.MaxBytesReader(w, r.Body, MaxBodyBytes)
	payload, err := io.ReadAll(r.Body)
	if err != nil {
		logger.Error("Failed to read webhook payload", map[string]interface{}{
			"error": err.Error(),
		})
		w.WriteHeader(http.StatusServiceUnavailable)
		return
	}

	event := stripe.Event{}
	if err := json.Unmarshal(payload, &event); err != nil {
		logger.Error("Failed to parse webhook JSON", map[string]interface{}{
			"error": err.Error(),
		})
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	// Skip signature verification in test mode
	if os.Getenv("TEST_MODE") == "true" {
		logger.Debug("Skipping webhook signature verification (test mode)")
	} else {
		signatureHeader := r.Header.Get("Stripe-Signature")
		event, err = webhook.ConstructEvent(payload, signatureHeader, s.WebhookSecret)
		if err != nil {
			logger.Error("Webhook signature verification failed", map[string]interface{}{
				"error":     err.Error(),
				"signature": signatureHeader,
			})
			w.WriteHeader(http.StatusBadRequest)
			return
		}
	}

	logger.Info("Stripe event verified", map[string]interface{}{
		"event_type": event.Type,
		"event_id":   event.ID,
	})

	intent, err := s.Classifier.Classify(ctx, &event)
	if err != nil {
		if errors.Is(err, billing.ErrResolution) {
			logger.Error("Identity resolution failed", map[string]interface{}{
				"error":      err.Error(),
				"event_type": event.Type,
				"event_id":   event.ID,
			})
			w.WriteHeader(http.StatusInternalServerError)
			return
		}

		logger.Error("Failed to classify event", map[string]interface{}{
			"error":      err.Error(),
			"event_type": event.Type,
			"event_id":   event.ID,
		})
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	if err := s.apply(ctx, intent); err != nil {
		logger.Error("Failed to apply intent", map[string]interface{}{
			"error":    err.Error(),
			"intent":   intent.Kind.String(),
			"email":    intent.Email,
			"event_id": event.ID,
		})
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	logger.Info("Webhook processed successfully", map[string]interface{}{
		"event_type": event.Type,
		"event_id":   event.ID,
		"intent":     intent.Kind.String(),
	})

	w.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(w).Encode(map[string]string{"received": "true"}); err != nil {
		logger.Error("Failed to encode webhook response", map[string]interface{}{
			"error": err.Error(),
		})
	}
}

// apply runs the store operation an intent calls for. Errors returned here
// fail the webhook so Stripe redelivers; everything else is acknowledged.
func (s *Server) apply(ctx context.Context, intent billing.Intent) error {
	switch intent.Kind {
	case billing.IntentCreate:
		return s.createLicense(ctx, intent)
	case billing.IntentRenew:
		return s.renewLicense(ctx, intent)
	case billing.IntentSuspend:
		return s.suspendLicense(ctx, intent)
	default:
		logger.Info("Event ignored", map[string]interface{}{
			"email": intent.Email,
		})
		return nil
	}
}

func (s *Server) createLicense(ctx context.Context, intent billing.Intent) error {
	now := s.Now()
	license := &models.License{
		ID:                   uuid.Must(uuid.NewRandom()).String(),
		Email:                intent.Email,
		Status:               models.StatusActive,
		ExpiresAt:            billing.LicenseTerm(now),
		CreatedAt:            now,
		StripeCustomerID:     intent.StripeCustomerID,
		StripeSubscriptionID: intent.StripeSubscriptionID,
		UpdatedAt:            now,
	}

	err := s.Store.CreateLicense(ctx, license)
	if errors.Is(err, storage.ErrAlreadyExists) {
		// Redelivered or duplicated checkout event. The existing record is
		// untouched and the webhook is acknowledged.
		logger.Info("License already exists, skipping create", map[string]interface{}{
			"email": intent.Email,
		})
		return nil
	}
	if err != nil {
		return err
	}

	logger.Info("License created", map[string]interface{}{
		"email":      license.Email,
		"expires_at": license.ExpiresAt,
	})

	s.Notifier.Dispatch(license.Email, license.ExpiresAt, email.Welcome)
	return nil
}

func (s *Server) renewLicense(ctx context.Context, intent billing.Intent) error {
	newExpiry, err := s.Store.RenewLicense(ctx, intent.Email, s.Now())
	if errors.Is(err, storage.ErrNotFound) {
		// A renewal for an identity that was never created is a real
		// anomaly; fail the event so it gets surfaced and redelivered.
		return err
	}
	if err != nil {
		return err
	}

	logger.Info("License renewed", map[string]interface{}{
		"email":      intent.Email,
		"expires_at": newExpiry,
	})

	s.Notifier.Dispatch(intent.Email, newExpiry, email.Renewal)
	return nil
}

func (s *Server) suspendLicense(ctx context.Context, intent billing.Intent) error {
	err := s.Store.SuspendLicense(ctx, intent.Email)
	if errors.Is(err, storage.ErrNotFound) {
		// Suspension is defensive; a suspend for an unknown identity must
		// not block webhook acknowledgment.
		logger.Warn("Suspend for unknown license, skipping", map[string]interface{}{
			"email": intent.Email,
		})
		return nil
	}
	if err != nil {
		return err
	}

	logger.Info("License suspended", map[string]interface{}{
		"email": intent.Email,
	})
	return nil
}
