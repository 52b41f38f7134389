// Package billing maps verified Stripe events onto the closed set of
// license intents. Classification is a pure function of the event, except
// for the one identity lookup needed when an event carries only a Stripe
// customer reference.
package billing

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/customer"
)

type IntentKind int

const (
	IntentIgnore IntentKind = iota
	IntentCreate
	IntentRenew
	IntentSuspend
)

func (k IntentKind) String() string {
	switch k {
	case IntentCreate:
		return "create"
	case IntentRenew:
		return "renew"
	case IntentSuspend:
		return "suspend"
	default:
		return "ignore"
	}
}

// Intent is the classified meaning of one billing event. Email is set for
// every kind except IntentIgnore; the Stripe references are only carried on
// IntentCreate.
type Intent struct {
	Kind                 IntentKind
	Email                string
	StripeCustomerID     string
	StripeSubscriptionID string
}

// ErrResolution marks a failed identity lookup. The event it occurred on is
// failed individually; the service keeps running.
var ErrResolution = errors.New("failed to resolve customer identity")

// Resolver turns a Stripe customer reference into the customer's email.
type Resolver interface {
	Resolve(ctx context.Context, customerID string) (string, error)
}

// StripeResolver resolves identities through the Stripe customer API.
type StripeResolver struct{}

func (StripeResolver) Resolve(ctx context.Context, customerID string) (string, error) {
	if customerID == "" {
		return "", fmt.Errorf("%w: empty customer reference", ErrResolution)
	}
	c, err := customer.Get(customerID, nil)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrResolution, err)
	}
	if c.Email == "" {
		return "", fmt.Errorf("%w: customer %s has no email", ErrResolution, customerID)
	}
	return c.Email, nil
}

type Classifier struct {
	Resolver Resolver
}

func NewClassifier(resolver Resolver) *Classifier {
	return &Classifier{Resolver: resolver}
}

// Classify derives the intent for a verified event. Events outside the
// handled set map to IntentIgnore; the originating invoice of a
// subscription also maps to IntentIgnore because first-period activation is
// already covered by the checkout event.
func (c *Classifier) Classify(ctx context.Context, event *stripe.Event) (Intent, error) {
	switch event.Type {
	case "checkout.session.completed":
		return c.classifyCheckout(ctx, event)
	case "invoice.paid":
		return c.classifyInvoice(ctx, event, IntentRenew, true)
	case "invoice.payment_failed":
		return c.classifyInvoice(ctx, event, IntentSuspend, false)
	case "customer.subscription.deleted":
		return c.classifySubscriptionDeleted(ctx, event)
	default:
		return Intent{Kind: IntentIgnore}, nil
	}
}

func (c *Classifier) classifyCheckout(ctx context.Context, event *stripe.Event) (Intent, error) {
	var session stripe.CheckoutSession
	if err := json.Unmarshal(event.Data.Raw, &session); err != nil {
		return Intent{}, fmt.Errorf("failed to parse checkout session: %w", err)
	}

	email := session.CustomerEmail
	if session.CustomerDetails != nil && session.CustomerDetails.Email != "" {
		email = session.CustomerDetails.Email
	}

	intent := Intent{Kind: IntentCreate, Email: email}
	if session.Customer != nil {
		intent.StripeCustomerID = session.Customer.ID
	}
	if session.Subscription != nil {
		intent.StripeSubscriptionID = session.Subscription.ID
	}

	if intent.Email == "" {
		resolved, err := c.Resolver.Resolve(ctx, intent.StripeCustomerID)
		if err != nil {
			return Intent{}, err
		}
		intent.Email = resolved
	}

	return intent, nil
}

func (c *Classifier) classifyInvoice(ctx context.Context, event *stripe.Event, kind IntentKind, filterFirst bool) (Intent, error) {
	var invoice stripe.Invoice
	if err := json.Unmarshal(event.Data.Raw, &invoice); err != nil {
		return Intent{}, fmt.Errorf("failed to parse invoice: %w", err)
	}

	// The subscription's first invoice is already handled by the checkout
	// event. Renewing on it would stack a second year onto a fresh license.
	if filterFirst && invoice.BillingReason == stripe.InvoiceBillingReasonSubscriptionCreate {
		return Intent{Kind: IntentIgnore}, nil
	}

	email := invoice.CustomerEmail
	if email == "" {
		var customerID string
		if invoice.Customer != nil {
			customerID = invoice.Customer.ID
		}
		resolved, err := c.Resolver.Resolve(ctx, customerID)
		if err != nil {
			return Intent{}, err
		}
		email = resolved
	}

	return Intent{Kind: kind, Email: email}, nil
}

func (c *Classifier) classifySubscriptionDeleted(ctx context.Context, event *stripe.Event) (Intent, error) {
	var subscription stripe.Subscription
	if err := json.Unmarshal(event.Data.Raw, &subscription); err != nil {
		return Intent{}, fmt.Errorf("failed to parse subscription: %w", err)
	}

	var customerID string
	if subscription.Customer != nil {
		customerID = subscription.Customer.ID
	}

	email, err := c.Resolver.Resolve(ctx, customerID)
	if err != nil {
		return Intent{}, err
	}

	return Intent{Kind: IntentSuspend, Email: email}, nil
}

// LicenseTerm is the length of one paid subscription period.
func LicenseTerm(from time.Time) time.Time {
	return from.AddDate(1, 0, 0)
}
