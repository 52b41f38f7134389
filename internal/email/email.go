package email

import (
	"fmt"
	"net/smtp"
	"time"

	"go.uber.org/atomic"

	"robotcfe.app/cloud/internal/logger"
)

type Kind int

const (
	Welcome Kind = iota
	Renewal
)

func (k Kind) String() string {
	if k == Renewal {
		return "renewal"
	}
	return "welcome"
}

// Notifier sends one subscription confirmation email.
type Notifier interface {
	Notify(to string, expiry time.Time, kind Kind) error
}

type SMTPNotifier struct {
	Host     string
	Port     string
	Username string
	Password string
	From     string
}

func (n *SMTPNotifier) Notify(to string, expiry time.Time, kind Kind) error {
	if n.Host == "" || n.Port == "" || n.Username == "" || n.Password == "" {
		return fmt.Errorf("SMTP configuration missing")
	}

	subject, body := compose(kind, expiry)

	auth := smtp.PlainAuth("", n.Username, n.Password, n.Host)

	msg := []byte(fmt.Sprintf("From: %s\r\n"+
		"To: %s\r\n"+
		"Subject: %s\r\n"+
		"\r\n"+
		"%s\r\n", n.From, to, subject, body))

	addr := fmt.Sprintf("%s:%s", n.Host, n.Port)
	return smtp.SendMail(addr, auth, n.From, []string{to}, msg)
}

func compose(kind Kind, expiry time.Time) (string, string) {
	expiryDate := expiry.Format("2006-01-02")

	if kind == Renewal {
		subject := "Your Robot CFE subscription has been renewed"
		body := fmt.Sprintf(`Hello,

Your Robot CFE subscription has been renewed successfully.

SUBSCRIPTION DETAILS
Status: Active
Valid until: %s
Renewal: Automatic

Launch RobotCFE.exe and sign in with your existing account credentials.
Your subscription renews automatically each year; you can cancel at any
time from your customer portal.

Thank you for staying with Robot CFE!`, expiryDate)
		return subject, body
	}

	subject := "Welcome to Robot CFE - subscription activated"
	body := fmt.Sprintf(`Hello,

Your Robot CFE subscription has been activated successfully.

SUBSCRIPTION DETAILS
Status: Active
Valid until: %s
Renewal: Automatic

GETTING STARTED
1. Launch RobotCFE.exe
2. Sign in with your existing account credentials
3. Your subscription is now active

Your subscription renews automatically each year; you can cancel at any
time from your customer portal.

Welcome aboard!`, expiryDate)
	return subject, body
}

// Dispatcher sends notifications in the background. A slow or failing SMTP
// server must never delay or fail the webhook acknowledgment, so Dispatch
// returns immediately and failures are only logged and counted.
type Dispatcher struct {
	notifier Notifier
	sent     atomic.Int64
	failed   atomic.Int64
}

func NewDispatcher(notifier Notifier) *Dispatcher {
	return &Dispatcher{notifier: notifier}
}

func (d *Dispatcher) Dispatch(to string, expiry time.Time, kind Kind) {
	go func() {
		if err := d.notifier.Notify(to, expiry, kind); err != nil {
			d.failed.Inc()
			logger.Error("Failed to send notification email", map[string]interface{}{
				"error": err.Error(),
				"email": to,
				"kind":  kind.String(),
			})
			return
		}

		d.sent.Inc()
		logger.Info("Notification email sent", map[string]interface{}{
			"email": to,
			"kind":  kind.String(),
		})
	}()
}

func (d *Dispatcher) Sent() int64 {
	return d.sent.Load()
}

func (d *Dispatcher) Failed() int64 {
	return d.failed.Load()
}
