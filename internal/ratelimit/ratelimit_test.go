package ratelimit

import (
	"fmt"
	"sync"
	"testing"
	"time"
)

func TestAllowWithinLimit(t *testing.T) {
	rl := New(3, time.Minute)

	for i := 0; i < 3; i++ {
		if !rl.Allow("1.2.3.4") {
			t.Errorf("Request %d should be allowed", i+1)
		}
	}

	if rl.Allow("1.2.3.4") {
		t.Errorf("Request over the limit should be denied")
	}
}

func TestAddressesAreIndependent(t *testing.T) {
	rl := New(1, time.Minute)

	if !rl.Allow("1.1.1.1") {
		t.Errorf("First address should be allowed")
	}
	if !rl.Allow("2.2.2.2") {
		t.Errorf("Second address should be allowed")
	}
	if rl.Allow("1.1.1.1") {
		t.Errorf("First address should now be limited")
	}
}

func TestWindowResets(t *testing.T) {
	rl := New(1, 10*time.Millisecond)

	if !rl.Allow("1.2.3.4") {
		t.Errorf("First request should be allowed")
	}
	if rl.Allow("1.2.3.4") {
		t.Errorf("Second request in window should be denied")
	}

	time.Sleep(15 * time.Millisecond)

	if !rl.Allow("1.2.3.4") {
		t.Errorf("Request in a new window should be allowed")
	}
}

func TestZeroLimitDeniesEverything(t *testing.T) {
	rl := New(0, time.Minute)

	if rl.Allow("1.2.3.4") {
		t.Errorf("Zero limit should deny all requests")
	}
}

func TestConcurrentAccess(t *testing.T) {
	rl := New(1000, time.Minute)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			addr := fmt.Sprintf("10.0.0.%d", id)
			for j := 0; j < 100; j++ {
				rl.Allow(addr)
			}
		}(i)
	}
	wg.Wait()
}
