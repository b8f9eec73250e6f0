package ratelimit

import (
	"fmt"
	"testing"
	"time"

	"github.com/onedrip/shield/internal/testutil"
)

func TestThrottle_Allow(t *testing.T) {
	th := NewThrottle(10, 5, testutil.DiscardLogger())
	defer th.Stop()

	ip := "203.0.113.7"

	for i := 0; i < 5; i++ {
		if !th.Allow(ip) {
			t.Errorf("request %d within burst should be allowed", i+1)
		}
	}

	if th.Allow(ip) {
		t.Error("request past burst should be denied")
	}

	if stats := th.GetStats(); stats.TotalDenied != 1 {
		t.Errorf("TotalDenied = %d, want 1", stats.TotalDenied)
	}
}

func TestThrottle_SeparateIPs(t *testing.T) {
	th := NewThrottle(10, 2, testutil.DiscardLogger())
	defer th.Stop()

	th.Allow("203.0.113.1")
	th.Allow("203.0.113.1")
	if th.Allow("203.0.113.1") {
		t.Error("first IP should be throttled")
	}

	if !th.Allow("203.0.113.2") {
		t.Error("second IP should have its own bucket")
	}
}

func TestThrottle_RefillOverTime(t *testing.T) {
	th := NewThrottle(100, 1, testutil.DiscardLogger())
	defer th.Stop()

	ip := "203.0.113.7"

	if !th.Allow(ip) {
		t.Fatal("first request should be allowed")
	}
	if th.Allow(ip) {
		t.Fatal("second immediate request should be denied")
	}

	// At 100 req/s a token returns within 10ms.
	time.Sleep(20 * time.Millisecond)
	if !th.Allow(ip) {
		t.Error("request after refill should be allowed")
	}
}

func TestThrottle_LRUEviction(t *testing.T) {
	th := NewThrottle(10, 5, testutil.DiscardLogger())
	defer th.Stop()
	th.maxEntries = 3

	for i := 0; i < 5; i++ {
		th.Allow(fmt.Sprintf("203.0.113.%d", i))
	}

	stats := th.GetStats()
	if stats.CurrentEntries != 3 {
		t.Errorf("CurrentEntries = %d, want 3 (bounded)", stats.CurrentEntries)
	}
	if stats.TotalEvictions != 2 {
		t.Errorf("TotalEvictions = %d, want 2", stats.TotalEvictions)
	}
}

func TestThrottle_CleanupIdleEntries(t *testing.T) {
	th := NewThrottle(10, 5, testutil.DiscardLogger())
	defer th.Stop()

	th.Allow("203.0.113.7")

	// Age the entry past the idle timeout.
	th.mu.Lock()
	for elem := th.lruList.Front(); elem != nil; elem = elem.Next() {
		elem.Value.(*throttleEntry).lastAccess = time.Now().Add(-time.Hour)
	}
	th.mu.Unlock()

	th.cleanup()

	if stats := th.GetStats(); stats.CurrentEntries != 0 {
		t.Errorf("CurrentEntries after cleanup = %d, want 0", stats.CurrentEntries)
	}
}
