package handlers_test

import (
	"net/http"
	"testing"
	"time"

	"robotcfe.app/cloud/internal/testutil"
	"robotcfe.app/cloud/models"
)

func TestCheckSubscription(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	t.Run("unknown email reports no subscription", func(t *testing.T) {
		env := testutil.NewTestEnv(t, now)

		w := testutil.MakeCheckRequest(t, env.Server, "nobody@example.com")
		if w.Code != http.StatusOK {
			t.Fatalf("Expected status 200, got %d", w.Code)
		}

		view := testutil.DecodeView(t, w)
		if view.Active {
			t.Errorf("Expected active=false")
		}
		if view.Status != "no_subscription" {
			t.Errorf("Expected status 'no_subscription', got '%s'", view.Status)
		}
	})

	t.Run("active license reports expiry and days remaining", func(t *testing.T) {
		env := testutil.NewTestEnv(t, now)
		testutil.SeedLicense(t, env.Store, "active@example.com", models.StatusActive,
			now.AddDate(0, -1, 0), now.Add(10*24*time.Hour))

		w := testutil.MakeCheckRequest(t, env.Server, "active@example.com")
		view := testutil.DecodeView(t, w)

		if !view.Active {
			t.Errorf("Expected active=true")
		}
		if view.Status != "active" {
			t.Errorf("Expected status 'active', got '%s'", view.Status)
		}
		if view.ExpiryDate != "2025-06-11" {
			t.Errorf("Expected expiry date '2025-06-11', got '%s'", view.ExpiryDate)
		}
		if view.DaysRemaining == nil || *view.DaysRemaining != 10 {
			t.Errorf("Expected 10 days remaining, got %v", view.DaysRemaining)
		}
	})

	t.Run("lapsed license reports expired", func(t *testing.T) {
		env := testutil.NewTestEnv(t, now)
		testutil.SeedLicense(t, env.Store, "lapsed@example.com", models.StatusActive,
			now.AddDate(-1, -1, 0), now.Add(-24*time.Hour))

		w := testutil.MakeCheckRequest(t, env.Server, "lapsed@example.com")
		view := testutil.DecodeView(t, w)

		if view.Active {
			t.Errorf("Expected active=false")
		}
		if view.Status != "expired" {
			t.Errorf("Expected status 'expired', got '%s'", view.Status)
		}
	})

	t.Run("suspended license reports suspended regardless of expiry", func(t *testing.T) {
		env := testutil.NewTestEnv(t, now)
		testutil.SeedLicense(t, env.Store, "suspended@example.com", models.StatusSuspended,
			now.AddDate(0, -1, 0), now.AddDate(1, 0, 0))

		w := testutil.MakeCheckRequest(t, env.Server, "suspended@example.com")
		view := testutil.DecodeView(t, w)

		if view.Active {
			t.Errorf("Expected active=false")
		}
		if view.Status != "suspended" {
			t.Errorf("Expected status 'suspended', got '%s'", view.Status)
		}
	})

	t.Run("invalid email is rejected", func(t *testing.T) {
		env := testutil.NewTestEnv(t, now)

		w := testutil.MakeCheckRequest(t, env.Server, "not-an-email")
		if w.Code != http.StatusBadRequest {
			t.Errorf("Expected status 400, got %d", w.Code)
		}
	})

	t.Run("lookup is case insensitive", func(t *testing.T) {
		env := testutil.NewTestEnv(t, now)
		testutil.SeedLicense(t, env.Store, "case@example.com", models.StatusActive,
			now.AddDate(0, -1, 0), now.AddDate(0, 6, 0))

		w := testutil.MakeCheckRequest(t, env.Server, "Case@Example.COM")
		view := testutil.DecodeView(t, w)

		if view.Status != "active" {
			t.Errorf("Expected status 'active', got '%s'", view.Status)
		}
	})
}
