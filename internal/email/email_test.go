package email

import (
	"errors"
	"strings"
	"sync"
	"testing"
	"time"
)

func TestSMTPNotifierMissingConfig(t *testing.T) {
	notifier := &SMTPNotifier{}

	err := notifier.Notify("user@example.com", time.Now(), Welcome)
	if err == nil {
		t.Fatalf("Expected error for missing SMTP configuration")
	}
	if !strings.Contains(err.Error(), "SMTP configuration missing") {
		t.Errorf("Expected configuration error, got: %v", err)
	}
}

func TestCompose(t *testing.T) {
	expiry := time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)

	t.Run("welcome", func(t *testing.T) {
		subject, body := compose(Welcome, expiry)

		if !strings.Contains(subject, "Welcome") {
			t.Errorf("Expected welcome subject, got '%s'", subject)
		}
		if !strings.Contains(body, "2026-06-01") {
			t.Errorf("Expected body to contain expiry date, got:\n%s", body)
		}
		if !strings.Contains(body, "GETTING STARTED") {
			t.Errorf("Expected getting-started section in welcome body")
		}
	})

	t.Run("renewal", func(t *testing.T) {
		subject, body := compose(Renewal, expiry)

		if !strings.Contains(subject, "renewed") {
			t.Errorf("Expected renewal subject, got '%s'", subject)
		}
		if !strings.Contains(body, "2026-06-01") {
			t.Errorf("Expected body to contain expiry date, got:\n%s", body)
		}
		if strings.Contains(body, "GETTING STARTED") {
			t.Errorf("Renewal body should not repeat the getting-started section")
		}
	})
}

func TestKindString(t *testing.T) {
	if Welcome.String() != "welcome" {
		t.Errorf("Expected 'welcome', got '%s'", Welcome.String())
	}
	if Renewal.String() != "renewal" {
		t.Errorf("Expected 'renewal', got '%s'", Renewal.String())
	}
}

type blockingNotifier struct {
	mu      sync.Mutex
	release chan struct{}
	calls   int
	err     error
}

func (n *blockingNotifier) Notify(to string, expiry time.Time, kind Kind) error {
	<-n.release
	n.mu.Lock()
	defer n.mu.Unlock()
	n.calls++
	return n.err
}

func TestDispatcherDoesNotBlock(t *testing.T) {
	notifier := &blockingNotifier{release: make(chan struct{})}
	dispatcher := NewDispatcher(notifier)

	done := make(chan struct{})
	go func() {
		dispatcher.Dispatch("user@example.com", time.Now(), Welcome)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatalf("Dispatch blocked on a slow notifier")
	}

	close(notifier.release)
	waitFor(t, func() bool { return dispatcher.Sent() == 1 })
}

func TestDispatcherCountsFailures(t *testing.T) {
	notifier := &blockingNotifier{release: make(chan struct{}), err: errors.New("smtp down")}
	close(notifier.release)
	dispatcher := NewDispatcher(notifier)

	dispatcher.Dispatch("user@example.com", time.Now(), Renewal)

	waitFor(t, func() bool { return dispatcher.Failed() == 1 })
	if dispatcher.Sent() != 0 {
		t.Errorf("Expected 0 sent, got %d", dispatcher.Sent())
	}
}

func waitFor(t *testing.T, condition func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if condition() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("Condition not met before deadline")
}
