package models

import "time"

const (
	StatusActive    = "active"
	StatusSuspended = "suspended"
)

// License is the one record kept per customer email. Status and ExpiresAt
// are independent: a record can be active yet past its expiry. Use Classify
// to derive the effective state, never Status alone.
type License struct {
	ID                   string
	Email                string
	Status               string
	ExpiresAt            time.Time
	CreatedAt            time.Time
	LastRenewalAt        *time.Time
	StripeCustomerID     string
	StripeSubscriptionID string
	UpdatedAt            time.Time
}

type LicenseState string

const (
	StateNoSubscription LicenseState = "no_subscription"
	StateSuspended      LicenseState = "suspended"
	StateExpired        LicenseState = "expired"
	StateActive         LicenseState = "active"
)

// Classify derives the effective license state from status and expiry.
// Suspension wins over expiry; expiry is a read-time classification, not a
// stored status.
func Classify(license *License, now time.Time) LicenseState {
	if license == nil {
		return StateNoSubscription
	}
	if license.Status == StatusSuspended {
		return StateSuspended
	}
	if license.ExpiresAt.Before(now) {
		return StateExpired
	}
	return StateActive
}

// DaysRemaining is the whole number of days between now and expiry,
// truncated toward zero. Negative only when the license is already expired.
func DaysRemaining(expiry, now time.Time) int {
	return int(expiry.Sub(now).Hours() / 24)
}

type LicenseView struct {
	Active        bool   `json:"active"`
	Status        string `json:"status"`
	ExpiryDate    string `json:"expiry_date,omitempty"`
	DaysRemaining *int   `json:"days_remaining,omitempty"`
}

// NewLicenseView flattens a record into the shape returned by the
// subscription check endpoint. Expiry is rendered date-only.
func NewLicenseView(license *License, now time.Time) LicenseView {
	state := Classify(license, now)

	view := LicenseView{
		Active: state == StateActive,
		Status: string(state),
	}

	if state == StateActive {
		days := DaysRemaining(license.ExpiresAt, now)
		view.ExpiryDate = license.ExpiresAt.Format("2006-01-02")
		view.DaysRemaining = &days
	}

	return view
}
