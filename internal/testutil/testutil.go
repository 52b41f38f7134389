package testutil

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"robotcfe.app/cloud/handlers"
	"robotcfe.app/cloud/internal/billing"
	"robotcfe.app/cloud/internal/email"
	"robotcfe.app/cloud/models"
	"robotcfe.app/cloud/storage"
)

// StaticResolver resolves Stripe customer IDs from a fixed map. Unknown IDs
// fail the way the real Stripe lookup does.
type StaticResolver struct {
	Emails map[string]string
}

func (r StaticResolver) Resolve(ctx context.Context, customerID string) (string, error) {
	emailAddr, ok := r.Emails[customerID]
	if !ok {
		return "", fmt.Errorf("%w: unknown customer %s", billing.ErrResolution, customerID)
	}
	return emailAddr, nil
}

// Notification records one dispatched email.
type Notification struct {
	To     string
	Expiry time.Time
	Kind   email.Kind
}

// RecordingNotifier captures notifications instead of sending them.
type RecordingNotifier struct {
	mu    sync.Mutex
	Calls []Notification
	Err   error
}

func (n *RecordingNotifier) Notify(to string, expiry time.Time, kind email.Kind) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.Calls = append(n.Calls, Notification{To: to, Expiry: expiry, Kind: kind})
	return n.Err
}

func (n *RecordingNotifier) Count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.Calls)
}

func (n *RecordingNotifier) Last() (Notification, bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if len(n.Calls) == 0 {
		return Notification{}, false
	}
	return n.Calls[len(n.Calls)-1], true
}

// WaitForCalls polls until the notifier has seen n calls. Dispatch is
// asynchronous, so tests asserting on notifications must wait.
func (n *RecordingNotifier) WaitForCalls(t *testing.T, want int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if n.Count() >= want {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("Expected %d notifications, got %d", want, n.Count())
}

// TestEnv bundles everything a handler test needs.
type TestEnv struct {
	Server   *handlers.Server
	Store    *storage.MemoryStore
	Notifier *RecordingNotifier
	Resolver StaticResolver
}

// NewTestEnv builds a server on memory storage with a static resolver and a
// recording notifier, pinned to the given time.
func NewTestEnv(t *testing.T, now time.Time) *TestEnv {
	t.Helper()
	t.Setenv("TEST_MODE", "true")

	store := storage.NewMemoryStore()
	notifier := &RecordingNotifier{}
	resolver := StaticResolver{Emails: make(map[string]string)}

	server := handlers.NewServer(
		store,
		billing.NewClassifier(resolver),
		email.NewDispatcher(notifier),
		"whsec_test",
		"test",
	)
	server.Now = func() time.Time { return now }

	return &TestEnv{
		Server:   server,
		Store:    store,
		Notifier: notifier,
		Resolver: resolver,
	}
}

// SeedLicense inserts a record directly into memory storage.
func SeedLicense(t *testing.T, store *storage.MemoryStore, emailAddr, status string, createdAt, expiresAt time.Time) {
	t.Helper()
	store.Licenses[storage.NormalizeEmail(emailAddr)] = models.License{
		ID:        "lic-" + emailAddr,
		Email:     storage.NormalizeEmail(emailAddr),
		Status:    status,
		ExpiresAt: expiresAt,
		CreatedAt: createdAt,
		UpdatedAt: createdAt,
	}
}

// StripeEventPayload builds a webhook payload for the given event type.
func StripeEventPayload(eventType string, object map[string]interface{}) []byte {
	event := map[string]interface{}{
		"id":   "evt_test123",
		"type": eventType,
		"data": map[string]interface{}{
			"object": object,
		},
	}

	payload, _ := json.Marshal(event)
	return payload
}

// CheckoutSessionObject mirrors the fields the classifier reads from a
// checkout.session.completed event.
func CheckoutSessionObject(emailAddr, customerID, subscriptionID string) map[string]interface{} {
	object := map[string]interface{}{
		"id":             "cs_test123",
		"customer_email": emailAddr,
		"customer_details": map[string]interface{}{
			"email": emailAddr,
		},
		"payment_status": "paid",
	}
	if customerID != "" {
		object["customer"] = map[string]interface{}{"id": customerID}
	}
	if subscriptionID != "" {
		object["subscription"] = map[string]interface{}{"id": subscriptionID}
	}
	return object
}

// InvoiceObject mirrors the fields the classifier reads from invoice events.
func InvoiceObject(customerEmail, customerID, billingReason string) map[string]interface{} {
	object := map[string]interface{}{
		"id":             "in_test123",
		"billing_reason": billingReason,
	}
	if customerEmail != "" {
		object["customer_email"] = customerEmail
	}
	if customerID != "" {
		object["customer"] = map[string]interface{}{"id": customerID}
	}
	return object
}

// SubscriptionObject mirrors the fields the classifier reads from
// customer.subscription.deleted events.
func SubscriptionObject(customerID string) map[string]interface{} {
	return map[string]interface{}{
		"id":       "sub_test123",
		"customer": map[string]interface{}{"id": customerID},
	}
}

// MakeWebhookRequest posts a payload to the Stripe webhook route.
func MakeWebhookRequest(t *testing.T, server *handlers.Server, payload []byte) *httptest.ResponseRecorder {
	t.Helper()

	req := httptest.NewRequest(http.MethodPost, "/api/v1/webhooks/stripe", bytes.NewBuffer(payload))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Stripe-Signature", "test-signature")

	w := httptest.NewRecorder()
	server.Router.ServeHTTP(w, req)
	return w
}

// MakeCheckRequest queries the subscription check endpoint.
func MakeCheckRequest(t *testing.T, server *handlers.Server, emailAddr string) *httptest.ResponseRecorder {
	t.Helper()

	req := httptest.NewRequest(http.MethodGet, "/api/v1/licenses/"+emailAddr, nil)
	w := httptest.NewRecorder()
	server.Router.ServeHTTP(w, req)
	return w
}

// DecodeView decodes a subscription check response body.
func DecodeView(t *testing.T, w *httptest.ResponseRecorder) models.LicenseView {
	t.Helper()

	var view models.LicenseView
	if err := json.NewDecoder(w.Body).Decode(&view); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	return view
}
